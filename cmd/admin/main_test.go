package main

import (
	"testing"
	"time"

	persistlog "sketchcraft.ai/internal/persistence/log"
	"sketchcraft.ai/internal/session"
)

func writeSessions(t *testing.T, dataDir string, entries ...session.LogEntry) {
	t.Helper()
	l := persistlog.NewSessionLogger(dataDir)
	for _, e := range entries {
		if err := l.WriteSession(e); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestDump_SessionFilterAndLimit(t *testing.T) {
	dir := t.TempDir()
	now := time.Now().UTC()
	writeSessions(t, dir,
		session.LogEntry{Time: now, Session: "a", Type: "boat"},
		session.LogEntry{Time: now, Session: "b", Type: "rock"},
		session.LogEntry{Time: now, Session: "a", Type: "tree"},
	)
	files, err := logFiles(dir, "sessions")
	if err != nil || len(files) == 0 {
		t.Fatalf("files = %v err = %v", files, err)
	}

	var got []string
	n, err := dump(files, "a", 0, func(line []byte) { got = append(got, string(line)) })
	if err != nil || n != 2 || len(got) != 2 {
		t.Fatalf("n=%d err=%v lines=%v", n, err, got)
	}

	n, err = dump(files, "", 1, func([]byte) {})
	if err != nil || n != 1 {
		t.Fatalf("limited: n=%d err=%v", n, err)
	}
}

func TestLogFiles_BadKind(t *testing.T) {
	if _, err := logFiles(t.TempDir(), "audit"); err == nil {
		t.Fatalf("expected error")
	}
	files, err := logFiles(t.TempDir(), "events")
	if err != nil || len(files) != 0 {
		t.Fatalf("empty dir: %v %v", files, err)
	}
}
