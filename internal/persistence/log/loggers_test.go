package log

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"sketchcraft.ai/internal/session"
	"sketchcraft.ai/internal/sim/world"
)

func TestJSONLZstdWriter_RotatesHourly(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLZstdWriter(dir, "x")
	now := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	if err := w.Write(map[string]int{"n": 1}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Write(map[string]int{"n": 2}); err != nil {
		t.Fatalf("write: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if err := w.Write(map[string]int{"n": 3}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := Files(dir, "x")
	if err != nil || len(files) != 2 {
		t.Fatalf("files = %v, %v", files, err)
	}
	if filepath.Base(files[0]) != "x-2026-03-01-10.jsonl.zst" {
		t.Fatalf("first file = %s", files[0])
	}
	var got []int
	for _, f := range files {
		err := ReadJSONL(f, func(line json.RawMessage) error {
			var v struct{ N int }
			if err := json.Unmarshal(line, &v); err != nil {
				return err
			}
			got = append(got, v.N)
			return nil
		})
		if err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
	}
	if len(got) != 3 || got[0] != 1 || got[2] != 3 {
		t.Fatalf("lines = %v", got)
	}
}

func TestSessionAndTickLoggers(t *testing.T) {
	dir := t.TempDir()
	sl := NewSessionLogger(dir)
	if err := sl.WriteSession(session.LogEntry{Session: "s", Kind: session.EntryGoal, Detail: "next"}); err != nil {
		t.Fatalf("write session: %v", err)
	}
	if err := sl.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	tl := NewTickLogger(dir)
	if err := tl.WriteObservation("s", world.Observation{Tick: 1}); err != nil {
		t.Fatalf("quiet tick: %v", err)
	}
	obs := world.Observation{Tick: 2, Epoch: 1, Level: "sandbox", Events: []world.Event{{Tick: 2, Kind: world.EventIgnite, Object: 3}}}
	if err := tl.WriteObservation("s", obs); err != nil {
		t.Fatalf("write tick: %v", err)
	}
	if err := tl.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, _ := Files(filepath.Join(dir, "sessions"), "session")
	if len(files) != 1 {
		t.Fatalf("session files = %v", files)
	}
	var e session.LogEntry
	_ = ReadJSONL(files[0], func(line json.RawMessage) error { return json.Unmarshal(line, &e) })
	if e.Kind != session.EntryGoal || e.Detail != "next" {
		t.Fatalf("entry = %+v", e)
	}

	files, _ = Files(filepath.Join(dir, "events"), "events")
	if len(files) != 1 {
		t.Fatalf("event files = %v", files)
	}
	var lines []TickEntry
	_ = ReadJSONL(files[0], func(line json.RawMessage) error {
		var te TickEntry
		if err := json.Unmarshal(line, &te); err != nil {
			return err
		}
		lines = append(lines, te)
		return nil
	})
	if len(lines) != 1 || lines[0].Tick != 2 || lines[0].Events[0].Kind != world.EventIgnite || lines[0].Session != "s" {
		t.Fatalf("ticks = %+v", lines)
	}
}

func TestJSONLZstdWriter_WriteAfterCloseAppends(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLZstdWriter(dir, "x")
	w.now = func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }

	for i := 0; i < 2; i++ {
		if err := w.Write(map[string]int{"n": i}); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("close %d: %v", i, err)
		}
	}
	files, err := Files(dir, "x")
	if err != nil || len(files) != 1 {
		t.Fatalf("files = %v, %v", files, err)
	}
	n := 0
	if err := ReadJSONL(files[0], func(json.RawMessage) error { n++; return nil }); err != nil {
		t.Fatalf("read: %v", err)
	}
	if n != 2 {
		t.Fatalf("lines = %d", n)
	}
}
