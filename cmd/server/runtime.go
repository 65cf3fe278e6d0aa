package main

import (
	"fmt"
	"log"
	"net/http"
	"sync/atomic"

	"sketchcraft.ai/internal/media/cache"
	"sketchcraft.ai/internal/persistence/indexdb"
	"sketchcraft.ai/internal/persistence/objstore"
	"sketchcraft.ai/internal/session"
	"sketchcraft.ai/internal/sim/world"
	"sketchcraft.ai/internal/transport/ws"
)

// tickWriter is the durable per-tick event log.
type tickWriter interface {
	WriteObservation(sessionID string, obs world.Observation) error
}

// runtime holds what every player session shares.
type runtime struct {
	sessionCfg session.Config
	ticks      tickWriter
	router     *session.Router
	index      *indexdb.SQLiteIndex
	mirror     *objstore.Mirror
	ws         *ws.Server
	log        *log.Logger

	sessions     atomic.Int64
	tickErrors   atomic.Uint64
	sessionsOpen atomic.Int64
}

// newSession is the ws.SessionFactory: one world per connection, its
// eventful ticks logged for as long as it lives.
func (rt *runtime) newSession(cb session.Callbacks) (*session.Orchestrator, error) {
	cfg := rt.sessionCfg
	cfg.Callbacks = cb
	s, err := session.New(cfg)
	if err != nil {
		return nil, err
	}
	rt.sessions.Add(1)
	rt.sessionsOpen.Add(1)
	if rt.ticks != nil {
		go rt.logTicks(s)
	} else {
		go func() {
			<-s.Done()
			rt.sessionsOpen.Add(-1)
		}()
	}
	return s, nil
}

func (rt *runtime) logTicks(s *session.Orchestrator) {
	obs, unsubscribe := s.Subscribe(16)
	defer unsubscribe()
	defer rt.sessionsOpen.Add(-1)
	for {
		select {
		case <-s.Done():
			return
		case o := <-obs:
			if err := rt.ticks.WriteObservation(s.ID(), o); err != nil {
				if rt.tickErrors.Add(1) == 1 {
					rt.log.Printf("tick log: %v", err)
				}
			}
		}
	}
}

func (rt *runtime) register(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", rt.metrics)
}

func (rt *runtime) metrics(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

	// Minimal Prometheus exposition format.
	fmt.Fprintf(rw, "# HELP sketchcraft_sessions_total Sessions started.\n")
	fmt.Fprintf(rw, "# TYPE sketchcraft_sessions_total counter\n")
	fmt.Fprintf(rw, "sketchcraft_sessions_total %d\n", rt.sessions.Load())

	fmt.Fprintf(rw, "# HELP sketchcraft_sessions_open Sessions currently running.\n")
	fmt.Fprintf(rw, "# TYPE sketchcraft_sessions_open gauge\n")
	fmt.Fprintf(rw, "sketchcraft_sessions_open %d\n", rt.sessionsOpen.Load())

	fmt.Fprintf(rw, "# HELP sketchcraft_animation_jobs_waiting Animation jobs whose session still waits for frames.\n")
	fmt.Fprintf(rw, "# TYPE sketchcraft_animation_jobs_waiting gauge\n")
	fmt.Fprintf(rw, "sketchcraft_animation_jobs_waiting %d\n", rt.router.Owned())

	fmt.Fprintf(rw, "# HELP sketchcraft_tick_log_errors_total Failed tick log writes.\n")
	fmt.Fprintf(rw, "# TYPE sketchcraft_tick_log_errors_total counter\n")
	fmt.Fprintf(rw, "sketchcraft_tick_log_errors_total %d\n", rt.tickErrors.Load())

	if rt.ws != nil {
		st := rt.ws.Stats()
		fmt.Fprintf(rw, "# HELP sketchcraft_ws_connections Open websocket connections.\n")
		fmt.Fprintf(rw, "# TYPE sketchcraft_ws_connections gauge\n")
		fmt.Fprintf(rw, "sketchcraft_ws_connections %d\n", st.Connections)
		fmt.Fprintf(rw, "# HELP sketchcraft_ws_dropped_total Outbound messages dropped on full queues.\n")
		fmt.Fprintf(rw, "# TYPE sketchcraft_ws_dropped_total counter\n")
		fmt.Fprintf(rw, "sketchcraft_ws_dropped_total %d\n", st.Dropped)
	}

	if rt.index != nil {
		st := rt.index.Stats()
		fmt.Fprintf(rw, "# HELP sketchcraft_index_queue_depth Index writer backlog.\n")
		fmt.Fprintf(rw, "# TYPE sketchcraft_index_queue_depth gauge\n")
		fmt.Fprintf(rw, "sketchcraft_index_queue_depth %d\n", st.QueueDepth)
		fmt.Fprintf(rw, "# HELP sketchcraft_index_dropped_total Index rows dropped on a full queue.\n")
		fmt.Fprintf(rw, "# TYPE sketchcraft_index_dropped_total counter\n")
		fmt.Fprintf(rw, "sketchcraft_index_dropped_total{table=%q} %d\n", "media", st.DropMediaTotal)
		fmt.Fprintf(rw, "sketchcraft_index_dropped_total{table=%q} %d\n", "jobs", st.DropJobTotal)
		fmt.Fprintf(rw, "sketchcraft_index_dropped_total{table=%q} %d\n", "session_events", st.DropSessionTotal)
		fmt.Fprintf(rw, "# HELP sketchcraft_index_write_errors_total Failed index writes.\n")
		fmt.Fprintf(rw, "# TYPE sketchcraft_index_write_errors_total counter\n")
		fmt.Fprintf(rw, "sketchcraft_index_write_errors_total %d\n", st.WriteErrorTotal)
	}

	if rt.mirror != nil {
		st := rt.mirror.Stats()
		fmt.Fprintf(rw, "# HELP sketchcraft_mirror_queue_depth Media uploads waiting.\n")
		fmt.Fprintf(rw, "# TYPE sketchcraft_mirror_queue_depth gauge\n")
		fmt.Fprintf(rw, "sketchcraft_mirror_queue_depth %d\n", st.QueueDepth)
		fmt.Fprintf(rw, "# HELP sketchcraft_mirror_uploads_total Media uploads by result.\n")
		fmt.Fprintf(rw, "# TYPE sketchcraft_mirror_uploads_total counter\n")
		fmt.Fprintf(rw, "sketchcraft_mirror_uploads_total{result=%q} %d\n", "ok", st.UploadSuccessTotal)
		fmt.Fprintf(rw, "sketchcraft_mirror_uploads_total{result=%q} %d\n", "failed", st.UploadFailTotal)
		fmt.Fprintf(rw, "sketchcraft_mirror_uploads_total{result=%q} %d\n", "dropped", st.DroppedTotal)
	}
}

// eventFanout writes each session entry to every log. The first error wins
// but every log is still written.
type eventFanout []session.EventLog

func (m eventFanout) WriteSession(e session.LogEntry) error {
	var first error
	for _, l := range m {
		if l == nil {
			continue
		}
		if err := l.WriteSession(e); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// mediaFanout hands each cache write to every recorder.
type mediaFanout []cache.Recorder

func (m mediaFanout) RecordMedia(e cache.Entry) {
	for _, r := range m {
		r.RecordMedia(e)
	}
}
