package ws

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"sketchcraft.ai/internal/gen"
	"sketchcraft.ai/internal/protocol"
	"sketchcraft.ai/internal/session"
	"sketchcraft.ai/internal/sim/levels"
	"sketchcraft.ai/internal/sim/world"
)

type stubClassifier struct{}

func (stubClassifier) Classify(ctx context.Context, sketch []byte) (gen.Analysis, error) {
	return gen.Analysis{Type: "boat", Attributes: []string{"floats", "wooden"}, Known: true}, nil
}

func (stubClassifier) TextToCommand(ctx context.Context, text string, current []string) (gen.Command, error) {
	return gen.Command{Verb: "setfire", Target: "wooden"}, nil
}

type stubGenerator struct{}

func (stubGenerator) GenerateStatic(ctx context.Context, typ, style string, backend gen.Backend, sketch []byte) ([]byte, error) {
	return []byte("PNG"), nil
}

func (stubGenerator) GenerateAnimated(ctx context.Context, typ, style string) (gen.Animated, error) {
	return gen.Animated{Hash: gen.NewHash(), Image: []byte("PNG")}, nil
}

const testLevels = `
levels:
  - id: first
    next: second
    platforms:
      - {x: 640, y: 700, w: 1280, h: 40}
  - id: second
    platforms:
      - {x: 640, y: 700, w: 1280, h: 40}
`

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	set, err := levels.Parse([]byte(testLevels))
	if err != nil {
		t.Fatalf("levels: %v", err)
	}
	jobs, err := gen.NewJobStore(t.TempDir(), 4)
	if err != nil {
		t.Fatalf("jobs: %v", err)
	}
	quiet := log.New(io.Discard, "", 0)
	factory := func(cb session.Callbacks) (*session.Orchestrator, error) {
		return session.New(session.Config{
			World:      world.Config{Seed: 1},
			Levels:     set,
			Classifier: stubClassifier{},
			Generator:  stubGenerator{},
			Jobs:       jobs,
			Callbacks:  cb,
			Logger:     quiet,
		})
	}
	srv := NewServer(factory, Info{Levels: set.IDs(), TickRateHz: 60, FrameTotal: 4}, Options{}, quiet)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// readUntil skips messages (mostly OBS) until one of type typ arrives.
func readUntil(t *testing.T, conn *websocket.Conn, typ string, into any) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	_ = conn.SetReadDeadline(deadline)
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", typ, err)
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if base.Type != typ {
			continue
		}
		if err := json.Unmarshal(msg, into); err != nil {
			t.Fatalf("decode %s: %v", typ, err)
		}
		return
	}
}

func hello(t *testing.T, conn *websocket.Conn) protocol.WelcomeMsg {
	t.Helper()
	sendJSON(t, conn, protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version})
	var w protocol.WelcomeMsg
	readUntil(t, conn, protocol.TypeWelcome, &w)
	return w
}

func TestHandshake_Welcome(t *testing.T) {
	ts := newTestServer(t)
	conn := dial(t, ts)
	w := hello(t, conn)
	if w.SessionID == "" || w.Level != "first" || len(w.Levels) != 2 || w.TickRateHz != 60 {
		t.Fatalf("welcome = %+v", w)
	}
	var obs protocol.ObsMsg
	readUntil(t, conn, protocol.TypeObs, &obs)
	if obs.Level != "first" {
		t.Fatalf("obs level = %q", obs.Level)
	}
}

func TestHandshake_RejectsBadVersion(t *testing.T) {
	ts := newTestServer(t)
	conn := dial(t, ts)
	sendJSON(t, conn, protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: "0.1"})
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("err = %v", err)
	}
}

func TestSketchAndCommand(t *testing.T) {
	ts := newTestServer(t)
	conn := dial(t, ts)
	hello(t, conn)

	sendJSON(t, conn, protocol.SketchMsg{
		Type:            protocol.TypeSketch,
		ProtocolVersion: protocol.Version,
		ReqID:           "s1",
		Image:           protocol.EncodePNG([]byte("sketch")),
		X:               300,
		Y:               200,
		Backend:         "gemini",
	})
	var res protocol.SketchResultMsg
	readUntil(t, conn, protocol.TypeSketchResult, &res)
	if res.ReqID != "s1" || res.ObjectType != "boat" || res.Code != "" || !strings.HasPrefix(res.Texture, "/generated/") {
		t.Fatalf("sketch result = %+v", res)
	}

	sendJSON(t, conn, protocol.CommandMsg{Type: protocol.TypeCommand, ProtocolVersion: protocol.Version, ReqID: "c1", Text: "burn it"})
	var cr protocol.CommandResultMsg
	readUntil(t, conn, protocol.TypeCommandResult, &cr)
	if cr.ReqID != "c1" || cr.Verb != "setfire" || len(cr.Affected) != 1 || cr.Affected[0] != res.ObjectID {
		t.Fatalf("command result = %+v", cr)
	}
}

func TestLevelAndBulk(t *testing.T) {
	ts := newTestServer(t)
	conn := dial(t, ts)
	hello(t, conn)

	sendJSON(t, conn, protocol.LevelMsg{Type: protocol.TypeLevel, ProtocolVersion: protocol.Version, ReqID: "l1", Action: protocol.LevelNext})
	var ack protocol.AckMsg
	readUntil(t, conn, protocol.TypeAck, &ack)
	if ack.AckFor != "l1" || !ack.Accepted {
		t.Fatalf("ack = %+v", ack)
	}

	sendJSON(t, conn, protocol.LevelMsg{Type: protocol.TypeLevel, ProtocolVersion: protocol.Version, ReqID: "l2", Action: protocol.LevelLoad, Level: "nope"})
	readUntil(t, conn, protocol.TypeAck, &ack)
	if ack.AckFor != "l2" || ack.Accepted || ack.Code != protocol.ErrNotFound {
		t.Fatalf("ack = %+v", ack)
	}

	sendJSON(t, conn, protocol.BulkMsg{Type: protocol.TypeBulk, ProtocolVersion: protocol.Version, ReqID: "b1", Action: "nuke"})
	readUntil(t, conn, protocol.TypeAck, &ack)
	if ack.AckFor != "b1" || ack.Code != protocol.ErrProtoBadRequest {
		t.Fatalf("ack = %+v", ack)
	}

	sendJSON(t, conn, protocol.BulkMsg{Type: protocol.TypeBulk, ProtocolVersion: protocol.Version, ReqID: "b2", Action: session.BulkClearUser})
	readUntil(t, conn, protocol.TypeAck, &ack)
	if ack.AckFor != "b2" || !ack.Accepted {
		t.Fatalf("ack = %+v", ack)
	}
}
