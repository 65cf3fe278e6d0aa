package main

import (
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"sketchcraft.ai/internal/media/cache"
	"sketchcraft.ai/internal/session"
	"sketchcraft.ai/internal/sim/catalogs"
)

type recordingLog struct {
	n   int
	err error
}

func (l *recordingLog) WriteSession(e session.LogEntry) error {
	l.n++
	return l.err
}

func TestEventFanout_WritesEveryLog(t *testing.T) {
	a := &recordingLog{err: errors.New("disk full")}
	b := &recordingLog{}
	f := eventFanout{a, nil, b}
	if err := f.WriteSession(session.LogEntry{}); err == nil || err.Error() != "disk full" {
		t.Fatalf("err = %v", err)
	}
	if a.n != 1 || b.n != 1 {
		t.Fatalf("writes = %d/%d", a.n, b.n)
	}
}

func TestMetrics(t *testing.T) {
	rt := &runtime{router: session.NewRouter(), log: log.New(io.Discard, "", 0)}
	rt.sessions.Add(3)
	rt.sessionsOpen.Add(1)
	mux := http.NewServeMux()
	rt.register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		"sketchcraft_sessions_total 3\n",
		"sketchcraft_sessions_open 1\n",
		"sketchcraft_animation_jobs_waiting 0\n",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}
	if strings.Contains(body, "sketchcraft_ws_connections") || strings.Contains(body, "sketchcraft_index_queue_depth") {
		t.Fatalf("metrics for disabled parts:\n%s", body)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != 200 || rec.Body.String() != "ok" {
		t.Fatalf("healthz = %d %q", rec.Code, rec.Body.String())
	}
}

func TestDefaultStyle(t *testing.T) {
	if got := defaultStyle(&catalogs.Catalog{}); got != "realistic" {
		t.Fatalf("empty catalog: %q", got)
	}
	if got := orDefault("  ", "x"); got != "x" {
		t.Fatalf("orDefault = %q", got)
	}
	if got := shortDigest("0123456789abcdef"); got != "0123456789ab" {
		t.Fatalf("shortDigest = %q", got)
	}
}

type countingRecorder struct{ paths []string }

func (r *countingRecorder) RecordMedia(e cache.Entry) { r.paths = append(r.paths, e.Path) }

func TestMediaFanout(t *testing.T) {
	a, b := &countingRecorder{}, &countingRecorder{}
	mediaFanout{a, b}.RecordMedia(cache.Entry{Path: "imagen/boat__realistic/0.png"})
	if len(a.paths) != 1 || len(b.paths) != 1 {
		t.Fatalf("a=%v b=%v", a.paths, b.paths)
	}
}

func TestOpenMirror_DisabledWithoutEndpoint(t *testing.T) {
	m, err := openMirror("", "bucket", "cache", t.TempDir(), log.New(io.Discard, "", 0))
	if err != nil || m != nil {
		t.Fatalf("mirror=%v err=%v", m, err)
	}
}
