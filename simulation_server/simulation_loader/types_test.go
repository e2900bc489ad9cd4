package simulationloader_test

import (
	"encoding/json"
	"testing"
	"time"

	simulationloader "github.com/fvdveen/simulacra/simulation_server/simulation_loader"
)

// Python stores plans, positions and utterances as lists, not objects. The
// frontend depends on these exact forms.

func TestPlanJSON(t *testing.T) {
	data, err := json.Marshal(simulationloader.Plan{Activity: "sleeping", Duration: 360})
	if err != nil {
		t.Fatalf("Could not marshal plan: %v", err)
	}
	if string(data) != `["sleeping",360]` {
		t.Fatalf("Wrong plan json, got: %s, want: [\"sleeping\",360]", data)
	}

	var plan simulationloader.Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		t.Fatalf("Could not unmarshal plan: %v", err)
	}
	if plan.Activity != "sleeping" || plan.Duration != 360 {
		t.Fatalf("Wrong plan, got: %v, want: {sleeping 360}", plan)
	}
}

func TestPositionJSON(t *testing.T) {
	data, err := json.Marshal(simulationloader.Position{X: 58, Y: 39})
	if err != nil {
		t.Fatalf("Could not marshal position: %v", err)
	}
	if string(data) != `[58,39]` {
		t.Fatalf("Wrong position json, got: %s, want: [58,39]", data)
	}

	var pos simulationloader.Position
	if err := json.Unmarshal(data, &pos); err != nil {
		t.Fatalf("Could not unmarshal position: %v", err)
	}
	if pos.X != 58 || pos.Y != 39 {
		t.Fatalf("Wrong position, got: %v, want: {58 39}", pos)
	}
}

func TestUtteranceJSON(t *testing.T) {
	data, err := json.Marshal(simulationloader.Utterance{Speaker: "Maria Lopez", Utterance: "hello"})
	if err != nil {
		t.Fatalf("Could not marshal utterance: %v", err)
	}
	if string(data) != `["Maria Lopez","hello"]` {
		t.Fatalf("Wrong utterance json, got: %s", data)
	}

	var utterance simulationloader.Utterance
	if err := json.Unmarshal(data, &utterance); err != nil {
		t.Fatalf("Could not unmarshal utterance: %v", err)
	}
	if utterance.Speaker != "Maria Lopez" || utterance.Utterance != "hello" {
		t.Fatalf("Wrong utterance, got: %v", utterance)
	}
}

func TestCurrentTimeNull(t *testing.T) {
	// A simulation that has not started yet has no current time, python
	// writes null.
	data, err := json.Marshal(simulationloader.CurrentTime(time.Time{}))
	if err != nil {
		t.Fatalf("Could not marshal zero time: %v", err)
	}
	if string(data) != "null" {
		t.Fatalf("Wrong zero time json, got: %s, want: null", data)
	}

	var parsed simulationloader.CurrentTime
	if err := json.Unmarshal([]byte("null"), &parsed); err != nil {
		t.Fatalf("Could not unmarshal null time: %v", err)
	}
	if !time.Time(parsed).IsZero() {
		t.Fatalf("Null time should be zero, got: %v", time.Time(parsed))
	}
}

func TestCurrentTimeFormat(t *testing.T) {
	moment := time.Date(2023, time.February, 13, 9, 0, 10, 0, time.UTC)

	data, err := json.Marshal(simulationloader.CurrentTime(moment))
	if err != nil {
		t.Fatalf("Could not marshal time: %v", err)
	}
	if string(data) != `"February 13, 2023, 09:00:10"` {
		t.Fatalf("Wrong time json, got: %s", data)
	}

	var parsed simulationloader.CurrentTime
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("Could not unmarshal time: %v", err)
	}
	if !time.Time(parsed).Equal(moment) {
		t.Fatalf("Wrong time, got: %v, want: %v", time.Time(parsed), moment)
	}
}

func TestStartDateFormat(t *testing.T) {
	data, err := json.Marshal(simulationloader.StartDate(time.Date(2023, time.February, 13, 0, 0, 0, 0, time.UTC)))
	if err != nil {
		t.Fatalf("Could not marshal start date: %v", err)
	}
	if string(data) != `"February 13, 2023"` {
		t.Fatalf("Wrong start date json, got: %s", data)
	}
}

func TestEnvironmentJSON(t *testing.T) {
	// Environment files have no wrapper object, the persona map is the
	// whole document.
	doc := `{"Maria Lopez": {"maze": "the_ville", "x": 58, "y": 39}}`

	var env simulationloader.Environment
	if err := json.Unmarshal([]byte(doc), &env); err != nil {
		t.Fatalf("Could not unmarshal environment: %v", err)
	}

	placement, ok := env.Personas["Maria Lopez"]
	if !ok {
		t.Fatalf("Persona missing from environment, got: %v", env.Personas)
	}
	if placement.Maze != "the_ville" || placement.X != 58 || placement.Y != 39 {
		t.Fatalf("Wrong placement, got: %v", placement)
	}

	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("Could not marshal environment: %v", err)
	}
	if string(data) != `{"Maria Lopez":{"maze":"the_ville","x":58,"y":39}}` {
		t.Fatalf("Wrong environment json, got: %s", data)
	}
}
