package indexdb

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"sketchcraft.ai/internal/gen"
	"sketchcraft.ai/internal/media/cache"
	"sketchcraft.ai/internal/session"
	"sketchcraft.ai/internal/sim/catalogs"
	"sketchcraft.ai/internal/sim/tuning"
)

func openTest(t *testing.T) *SQLiteIndex {
	t.Helper()
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "index.sqlite"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqJob, job: gen.JobStatus{Hash: "a"}}

	s.RecordMedia(cache.Entry{})
	s.RecordJob(gen.JobStatus{Hash: "b"})
	s.RecordJob(gen.JobStatus{})
	_ = s.WriteSession(session.LogEntry{Kind: session.EntryGoal})

	st := s.Stats()
	if st.DropMediaTotal != 1 || st.DropJobTotal != 1 || st.DropSessionTotal != 1 {
		t.Fatalf("drops = %+v", st)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_JobLifecycle(t *testing.T) {
	idx := openTest(t)
	ctx := context.Background()
	hash := gen.NewHash()
	t0 := time.Now().UTC()

	idx.RecordJob(gen.JobStatus{Hash: hash, Type: "lamp", Style: "realistic", State: gen.JobQueued, UpdatedAt: t0})
	idx.RecordJob(gen.JobStatus{Hash: hash, Type: "lamp", Style: "realistic", State: gen.JobRunning, UpdatedAt: t0.Add(time.Second)})
	idx.RecordJob(gen.JobStatus{Hash: hash, Type: "lamp", Style: "realistic", State: gen.JobDone, Frames: 4, FromCache: true, UpdatedAt: t0.Add(2 * time.Second)})
	if err := idx.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	j, ok, err := idx.Job(ctx, hash)
	if err != nil || !ok {
		t.Fatalf("job = %v, %v", ok, err)
	}
	if j.State != gen.JobDone || j.Frames != 4 || !j.FromCache || j.Type != "lamp" {
		t.Fatalf("job = %+v", j)
	}
	if !j.UpdatedAt.After(j.CreatedAt) {
		t.Fatalf("created_at moved with updates: %+v", j)
	}

	if _, ok, err := idx.Job(ctx, "missing"); ok || err != nil {
		t.Fatalf("missing job = %v, %v", ok, err)
	}
	done, err := idx.JobsByState(ctx, gen.JobDone, 10)
	if err != nil || len(done) != 1 || done[0].Hash != hash {
		t.Fatalf("done jobs = %+v, %v", done, err)
	}
}

func TestSQLiteIndex_FailedJobKeepsError(t *testing.T) {
	idx := openTest(t)
	ctx := context.Background()
	idx.RecordJob(gen.JobStatus{Hash: "h1", Type: "lamp", Style: "cartoon", State: gen.JobFailed, Error: "veo poll: not done after 30 polls"})
	if err := idx.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	j, ok, err := idx.Job(ctx, "h1")
	if err != nil || !ok || j.Error == "" || j.State != gen.JobFailed {
		t.Fatalf("job = %+v, %v, %v", j, ok, err)
	}
}

func TestSQLiteIndex_MediaAndSessions(t *testing.T) {
	idx := openTest(t)
	ctx := context.Background()
	k := cache.Key{Type: "boat", Style: "cartoon", Kind: cache.KindImagen}
	for slot := 0; slot < 3; slot++ {
		idx.RecordMedia(cache.Entry{Key: k, Slot: slot, Path: "p", Size: 10, WrittenAt: time.Now()})
	}
	// Rewriting a slot replaces its row.
	idx.RecordMedia(cache.Entry{Key: k, Slot: 0, Path: "p", Size: 11})
	idx.RecordMedia(cache.Entry{Key: cache.Key{Type: "boat", Style: "cartoon", Kind: cache.KindFrames}, Slot: 0, Path: "f"})
	_ = idx.WriteSession(session.LogEntry{Session: "s1", Kind: session.EntryLevel, Level: "first", Time: time.Now()})
	_ = idx.WriteSession(session.LogEntry{Session: "s1", Kind: session.EntrySketch, Type: "boat", Hash: "h"})
	_ = idx.WriteSession(session.LogEntry{Session: "s2", Kind: session.EntryGoal})
	if err := idx.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	counts, err := idx.MediaCount(ctx)
	if err != nil {
		t.Fatalf("media count: %v", err)
	}
	if counts[cache.KindImagen] != 3 || counts[cache.KindFrames] != 1 {
		t.Fatalf("counts = %v", counts)
	}
	n, err := idx.SessionEventCount(ctx, "s1")
	if err != nil || n != 2 {
		t.Fatalf("session events = %d, %v", n, err)
	}
}

func TestSQLiteIndex_UpsertCatalogs(t *testing.T) {
	idx := openTest(t)
	dir := t.TempDir()
	raw := []byte(`levels: []`)
	if err := os.WriteFile(filepath.Join(dir, "levels.yaml"), raw, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := idx.UpsertCatalogs(dir, &catalogs.Catalog{}, tuning.Defaults()); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	var n int
	if err := idx.db.QueryRow(`SELECT COUNT(*) FROM catalogs`).Scan(&n); err != nil || n != 2 {
		t.Fatalf("catalog rows = %d, %v", n, err)
	}
}

func TestSQLiteIndex_ClosedDropsQuietly(t *testing.T) {
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "index.sqlite"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	idx.RecordJob(gen.JobStatus{Hash: "late"})
	if err := idx.Flush(context.Background()); err != ErrClosed {
		t.Fatalf("flush after close = %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
