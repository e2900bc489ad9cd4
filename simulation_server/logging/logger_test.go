package logging_test

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fvdveen/simulacra/simulation_server/logging"
)

func TestMultiHandlerFanOut(t *testing.T) {
	var events, errors bytes.Buffer

	eventH := slog.NewTextHandler(&events, &slog.HandlerOptions{Level: slog.LevelInfo})
	errorH := slog.NewTextHandler(&errors, &slog.HandlerOptions{Level: slog.LevelWarn})

	log := slog.New(logging.NewMultiHandler(eventH, errorH))
	log.Info("step_done")
	log.Error("step_failed")

	if !strings.Contains(events.String(), "step_done") || !strings.Contains(events.String(), "step_failed") {
		t.Fatalf("Event log should carry both records, got: %s", events.String())
	}
	if strings.Contains(errors.String(), "step_done") {
		t.Fatalf("Error log should not carry info records, got: %s", errors.String())
	}
	if !strings.Contains(errors.String(), "step_failed") {
		t.Fatalf("Error log is missing the error record, got: %s", errors.String())
	}
}

func TestMultiHandlerWithAttrs(t *testing.T) {
	var a, b bytes.Buffer

	log := slog.New(logging.NewMultiHandler(
		slog.NewTextHandler(&a, nil),
		slog.NewTextHandler(&b, nil),
	))

	log.With(slog.String("persona", "Maria Lopez")).Info("persona_step_start")

	for _, out := range []string{a.String(), b.String()} {
		if !strings.Contains(out, "persona=\"Maria Lopez\"") {
			t.Fatalf("Attr missing from handler output: %s", out)
		}
	}
}

func TestNewRunLogs(t *testing.T) {
	base := t.TempDir()

	rl, err := logging.NewRunLogs(logging.Config{BaseDir: base, EnableDebugLog: true})
	if err != nil {
		t.Fatalf("NewRunLogs failed: %v", err)
	}

	if filepath.Dir(rl.RunDir) != base {
		t.Fatalf("Run dir not under the base dir, got: %s", rl.RunDir)
	}

	rl.Log.Info("step_done", slog.Int("step", 1))
	rl.Log.Error("step_failed")
	rl.Sync()

	if err := rl.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	events, err := os.ReadFile(filepath.Join(rl.RunDir, "events.jsonl"))
	if err != nil {
		t.Fatalf("could not read events log: %v", err)
	}
	for _, want := range []string{"run_start", "step_done", "step_failed"} {
		if !strings.Contains(string(events), want) {
			t.Fatalf("Events log is missing %q, got: %s", want, events)
		}
	}

	errorLog, err := os.ReadFile(filepath.Join(rl.RunDir, "errors.jsonl"))
	if err != nil {
		t.Fatalf("could not read errors log: %v", err)
	}
	if strings.Contains(string(errorLog), "step_done") {
		t.Fatalf("Errors log should not carry info records, got: %s", errorLog)
	}
	if !strings.Contains(string(errorLog), "step_failed") {
		t.Fatalf("Errors log is missing the error record, got: %s", errorLog)
	}

	if _, err := os.Stat(filepath.Join(rl.RunDir, "debug.jsonl")); err != nil {
		t.Fatalf("Expected a debug log: %v", err)
	}
}

func TestNewRunLogsWithoutDebug(t *testing.T) {
	base := t.TempDir()

	rl, err := logging.NewRunLogs(logging.Config{BaseDir: base})
	if err != nil {
		t.Fatalf("NewRunLogs failed: %v", err)
	}
	defer func() { _ = rl.Close() }()

	if _, err := os.Stat(filepath.Join(rl.RunDir, "debug.jsonl")); !os.IsNotExist(err) {
		t.Fatalf("Expected no debug log, got: %v", err)
	}
}

func TestRecoverAndLogRePanics(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	synced := false

	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("Expected the panic to propagate")
		}
		if !synced {
			t.Fatalf("Expected the sync function to run")
		}
		if !strings.Contains(buf.String(), "boom") {
			t.Fatalf("Expected the panic to be logged, got: %s", buf.String())
		}
	}()

	defer logging.RecoverAndLog(log, func() { synced = true })
	panic("boom")
}
