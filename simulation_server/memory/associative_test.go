package memory_test

import (
	"testing"
	"time"

	"github.com/fvdveen/simulacra/simulation_server/memory"
)

func newStore() *memory.Associative {
	return memory.NewAssociative(map[string][]float64{}, map[string]int{}, map[string]int{})
}

var testTime = time.Date(2023, time.February, 13, 9, 0, 0, 0, time.UTC)

func addTestEvent(store *memory.Associative, spo memory.SPO, desc string, kws []string, importance int, at time.Time) memory.ConceptNode {
	return store.AddEvent(spo, desc, kws, importance, 0, nil, at, nil, desc, []float64{1, 0})
}

func TestNodeIdsAreMonotonic(t *testing.T) {
	store := newStore()

	first := addTestEvent(store, memory.SPO{Subject: "a", Predicate: "is", Object: "busy"}, "a is busy", []string{"a"}, 3, testTime)
	second := store.AddThought(memory.SPO{Subject: "b", Predicate: "likes", Object: "c"}, "b likes c", []string{"b", "c"}, 4, 0, []memory.NodeId{first.Id}, testTime, nil, "b likes c", []float64{0, 1})

	if first.Id != 1 || second.Id != 2 {
		t.Fatalf("expected ids 1 and 2, got %d and %d", first.Id, second.Id)
	}
	if second.Depth != 1 {
		t.Fatalf("expected thought depth 1, got %d", second.Depth)
	}
}

func TestKeywordIndexConsistency(t *testing.T) {
	store := newStore()

	node := addTestEvent(store, memory.SPO{Subject: "Klaus", Predicate: "reading", Object: "book"}, "Klaus is reading", []string{"Klaus", "Book"}, 5, testTime)

	// Keywords are stored lower case and retrieval must not care about case.
	relevant := store.RetrieveRelevantEvents("kLaUs", "", "")
	if _, ok := relevant[node.Id]; !ok {
		t.Fatalf("expected node %d to be retrievable by keyword", node.Id)
	}

	for _, kw := range store.GetNode(node.Id).Keywords {
		found := false
		for id := range store.RetrieveRelevantEvents(kw, "", "") {
			if id == node.Id {
				found = true
			}
		}
		if !found {
			t.Fatalf("node %d missing from index entry for %q", node.Id, kw)
		}
	}
}

func TestRetrieveRelevantEventsDoesNotSeeThoughts(t *testing.T) {
	store := newStore()

	store.AddThought(memory.SPO{Subject: "Klaus", Predicate: "plan", Object: "today"}, "plan", []string{"klaus"}, 5, 0, nil, testTime, nil, "plan", []float64{1})

	if got := store.RetrieveRelevantEvents("klaus", "", ""); len(got) != 0 {
		t.Fatalf("expected no events, got %d nodes", len(got))
	}
	if got := store.RetrieveRelevantThoughts("klaus", "", ""); len(got) != 1 {
		t.Fatalf("expected one thought, got %d nodes", len(got))
	}
}

func TestKeywordStrengthSkipsIdle(t *testing.T) {
	store := newStore()

	addTestEvent(store, memory.SPO{Subject: "bed", Predicate: "is", Object: "idle"}, "bed is idle", []string{"bed"}, 1, testTime)
	if got := store.EventKeywordStrength()["bed"]; got != 0 {
		t.Fatalf("expected idle event not to count, got strength %d", got)
	}

	addTestEvent(store, memory.SPO{Subject: "bed", Predicate: "is", Object: "occupied"}, "bed is occupied", []string{"bed"}, 2, testTime)
	if got := store.EventKeywordStrength()["bed"]; got != 1 {
		t.Fatalf("expected strength 1, got %d", got)
	}

	// Only a full "is idle" pair is a filler; either part alone still counts.
	addTestEvent(store, memory.SPO{Subject: "bed", Predicate: "looks", Object: "idle"}, "bed looks idle", []string{"bed"}, 2, testTime)
	if got := store.EventKeywordStrength()["bed"]; got != 2 {
		t.Fatalf("expected strength 2, got %d", got)
	}
}

func TestLatestEventSPOs(t *testing.T) {
	store := newStore()

	addTestEvent(store, memory.SPO{Subject: "a", Predicate: "is", Object: "x"}, "a is x", []string{"a"}, 1, testTime)
	addTestEvent(store, memory.SPO{Subject: "b", Predicate: "is", Object: "y"}, "b is y", []string{"b"}, 1, testTime.Add(time.Minute))
	addTestEvent(store, memory.SPO{Subject: "c", Predicate: "is", Object: "z"}, "c is z", []string{"c"}, 1, testTime.Add(2*time.Minute))

	latest := store.GetLatestEventSPOs(2)
	if len(latest) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(latest))
	}
	if _, ok := latest[memory.SPO{Subject: "a", Predicate: "is", Object: "x"}]; ok {
		t.Fatal("expected oldest event to fall outside the retention window")
	}
	if _, ok := latest[memory.SPO{Subject: "c", Predicate: "is", Object: "z"}]; !ok {
		t.Fatal("expected newest event inside the retention window")
	}

	// Asking for more than exist must not panic.
	if got := store.GetLatestEventSPOs(100); len(got) != 3 {
		t.Fatalf("expected all 3 summaries, got %d", len(got))
	}
}

func TestTimestampsAndExpiration(t *testing.T) {
	store := newStore()

	expiration := testTime.AddDate(0, 0, 30)
	node := store.AddThought(memory.SPO{Subject: "k", Predicate: "plan", Object: "day"}, "plan", []string{"plan"}, 5, 0, nil, testTime, &expiration, "plan", []float64{1})

	if node.Created.After(node.LastAccessed) {
		t.Fatal("created must not be after last accessed")
	}
	if !node.Expiration.After(node.Created) {
		t.Fatal("expiration must be after created")
	}

	later := testTime.Add(time.Hour)
	store.UpdateNode(node.Id, func(n *memory.ConceptNode) { n.LastAccessed = later })
	if got := store.GetNode(node.Id).LastAccessed; !got.Equal(later) {
		t.Fatalf("expected last accessed %v, got %v", later, got)
	}
}

func TestGetLastChat(t *testing.T) {
	store := newStore()

	if _, ok := store.GetLastChat("Maria Lopez"); ok {
		t.Fatal("expected no chat yet")
	}

	chat := []memory.Utterance{
		{Speaker: "Klaus Mueller", Sentence: "Hi Maria!"},
		{Speaker: "Maria Lopez", Sentence: "Hey Klaus."},
	}
	node := store.AddChat(memory.SPO{Subject: "Klaus Mueller", Predicate: "chat with", Object: "Maria Lopez"}, "chatting about research", []string{"Klaus Mueller", "Maria Lopez"}, 5, 0, chat, testTime, nil, "chatting about research", []float64{1})

	got, ok := store.GetLastChat("Maria Lopez")
	if !ok {
		t.Fatal("expected to find the chat")
	}
	if got != node.Id {
		t.Fatalf("expected node %d, got %d", node.Id, got)
	}
	if node.TypeCount != 0 {
		t.Fatalf("expected first chat to have type count 0, got %d", node.TypeCount)
	}
}
