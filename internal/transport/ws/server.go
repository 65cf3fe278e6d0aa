package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"sketchcraft.ai/internal/gen"
	"sketchcraft.ai/internal/protocol"
	"sketchcraft.ai/internal/session"
	"sketchcraft.ai/internal/sim/world"
)

// SessionFactory builds a player session whose outbound signals go to cb.
type SessionFactory func(cb session.Callbacks) (*session.Orchestrator, error)

// Info is what WELCOME advertises.
type Info struct {
	Levels        []string
	TickRateHz    int
	Backends      []string
	Styles        []string
	CatalogDigest string
	// FrameTotal is the frame count PROGRESS reports against.
	FrameTotal int
}

type Options struct {
	// OutQueue is the per-connection send buffer. Observations are dropped
	// when it is full.
	OutQueue int
	// MaxInflight caps concurrent SKETCH/COMMAND requests per connection.
	MaxInflight int
}

type Server struct {
	newSession SessionFactory
	info       Info
	opts       Options
	log        *log.Logger

	upgrader websocket.Upgrader

	conns   atomic.Int64
	dropped atomic.Uint64
}

func NewServer(newSession SessionFactory, info Info, opts Options, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(os.Stderr, "[ws] ", log.LstdFlags)
	}
	if opts.OutQueue <= 0 {
		opts.OutQueue = 64
	}
	if opts.MaxInflight <= 0 {
		opts.MaxInflight = 4
	}
	return &Server{
		newSession: newSession,
		info:       info,
		opts:       opts,
		log:        logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

type Stats struct {
	Connections int64
	Dropped     uint64
}

func (s *Server) Stats() Stats {
	return Stats{Connections: s.conns.Load(), Dropped: s.dropped.Load()}
}

// client is one connection's outbound side. It doubles as the session's
// Callbacks, so every send is non-blocking.
type client struct {
	out chan []byte
	srv *Server
}

func (c *client) send(v any) bool {
	b, err := json.Marshal(v)
	if err != nil {
		c.srv.log.Printf("marshal %T: %v", v, err)
		return false
	}
	select {
	case c.out <- b:
		return true
	default:
		c.srv.dropped.Add(1)
		return false
	}
}

// reply queues a request's answer, waiting for room unless ctx ends.
func (c *client) reply(ctx context.Context, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		c.srv.log.Printf("marshal %T: %v", v, err)
		return
	}
	select {
	case c.out <- b:
	case <-ctx.Done():
	}
}

func (c *client) GoalReached(next string) {
	c.send(protocol.GoalMsg{Type: protocol.TypeGoal, ProtocolVersion: protocol.Version, Next: next})
}

func (c *client) GameOver(reason string) {
	c.send(protocol.GameOverMsg{Type: protocol.TypeGameOver, ProtocolVersion: protocol.Version, Reason: reason})
}

func (c *client) GenerationProgress(hash string, ready bool, n int) {
	c.send(protocol.ProgressMsg{
		Type:            protocol.TypeProgress,
		ProtocolVersion: protocol.Version,
		Hash:            hash,
		Ready:           ready,
		Progress:        n,
		Total:           c.srv.info.FrameTotal,
	})
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		hello, ok := s.handshake(conn)
		if !ok {
			return
		}

		c := &client{out: make(chan []byte, s.opts.OutQueue), srv: s}
		sess, err := s.newSession(c)
		if err != nil {
			s.log.Printf("session: %v", err)
			closeWith(conn, websocket.CloseInternalServerErr, "session unavailable")
			return
		}
		s.conns.Add(1)
		defer s.conns.Add(-1)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		runDone := make(chan struct{})
		go func() {
			defer close(runDone)
			if err := sess.Run(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, world.ErrStopped) {
				s.log.Printf("session %s: %v", sess.ID(), err)
			}
		}()
		defer func() {
			sess.Close()
			<-runDone
		}()

		if hello.Level != "" {
			if err := sess.LoadLevel(ctx, hello.Level); err != nil {
				closeWith(conn, websocket.ClosePolicyViolation, err.Error())
				return
			}
		}
		obs, err := sess.Observe(ctx)
		if err != nil {
			return
		}
		welcome := protocol.WelcomeMsg{
			Type:            protocol.TypeWelcome,
			ProtocolVersion: protocol.Version,
			SessionID:       sess.ID(),
			Level:           obs.Level,
			Levels:          s.info.Levels,
			TickRateHz:      s.info.TickRateHz,
			Backends:        s.info.Backends,
			Styles:          s.info.Styles,
			CatalogDigest:   s.info.CatalogDigest,
		}
		if err := writeJSON(conn, welcome); err != nil {
			return
		}

		// Observation pump.
		frames, unsubscribe := sess.Subscribe(4)
		defer unsubscribe()
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case o, ok := <-frames:
					if !ok {
						return
					}
					c.send(protocol.ObsMsg{Type: protocol.TypeObs, ProtocolVersion: protocol.Version, Observation: o})
				}
			}
		}()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-c.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		var inflight errgroup.Group
		inflight.SetLimit(s.opts.MaxInflight)

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			s.dispatch(ctx, sess, c, &inflight, msg)
		}
		_ = inflight.Wait()
	}
}

func (s *Server) dispatch(ctx context.Context, sess *session.Orchestrator, c *client, inflight *errgroup.Group, msg []byte) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		c.send(nack("", protocol.ErrProtoBadRequest, "malformed message"))
		return
	}
	if base.ProtocolVersion != protocol.Version {
		c.send(nack(base.ReqID, protocol.ErrProtoBadRequest, "bad protocol_version"))
		return
	}
	if err := protocol.Validate(base.Type, msg); err != nil {
		c.send(nack(base.ReqID, protocol.ErrProtoBadRequest, err.Error()))
		return
	}

	var job func()
	switch base.Type {
	case protocol.TypeSketch:
		var m protocol.SketchMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			c.send(nack(base.ReqID, protocol.ErrProtoBadRequest, err.Error()))
			return
		}
		job = func() { c.reply(ctx, s.sketch(ctx, sess, m)) }
	case protocol.TypeCommand:
		var m protocol.CommandMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			c.send(nack(base.ReqID, protocol.ErrProtoBadRequest, err.Error()))
			return
		}
		job = func() { c.reply(ctx, s.command(ctx, sess, m)) }
	case protocol.TypeLevel:
		var m protocol.LevelMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			c.send(nack(base.ReqID, protocol.ErrProtoBadRequest, err.Error()))
			return
		}
		job = func() { c.reply(ctx, s.level(ctx, sess, m)) }
	case protocol.TypeBulk:
		var m protocol.BulkMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			c.send(nack(base.ReqID, protocol.ErrProtoBadRequest, err.Error()))
			return
		}
		job = func() {
			n, err := sess.Bulk(ctx, m.Action)
			if err != nil {
				c.reply(ctx, nack(m.ReqID, protocol.CodeFor(err), err.Error()))
				return
			}
			a := ack(m.ReqID)
			a.Count = n
			c.reply(ctx, a)
		}
	default:
		// A second HELLO is ignored.
		return
	}

	ok := inflight.TryGo(func() error {
		job()
		return nil
	})
	if !ok {
		c.send(nack(base.ReqID, protocol.ErrRateLimit, "too many requests in flight"))
	}
}

func (s *Server) sketch(ctx context.Context, sess *session.Orchestrator, m protocol.SketchMsg) any {
	png, err := protocol.DecodeImageData(m.Image)
	if err != nil {
		return nack(m.ReqID, protocol.ErrBadRequest, err.Error())
	}
	var backend gen.Backend
	if m.Backend != "" {
		if backend, err = gen.ParseBackend(m.Backend); err != nil {
			return nack(m.ReqID, protocol.ErrBadRequest, err.Error())
		}
	}
	res, err := sess.HandleSketch(ctx, session.Sketch{PNG: png, X: m.X, Y: m.Y, Backend: backend, Style: m.Style})
	out := protocol.SketchResultMsg{
		Type:            protocol.TypeSketchResult,
		ProtocolVersion: protocol.Version,
		ReqID:           m.ReqID,
		ObjectID:        uint64(res.Object),
		ObjectType:      res.Analysis.Type,
		Attributes:      res.Analysis.Attributes,
		Hash:            res.Hash,
		Texture:         res.Texture,
		Animated:        res.Animated,
		Blocked:         res.Blocked,
		Stale:           res.Stale,
	}
	switch {
	case err != nil:
		out.Code, out.Message = protocol.CodeFor(err), err.Error()
	case res.Blocked:
		b := protocol.Blocked()
		out.Code, out.Message = b.Code, b.Message
	}
	return out
}

func (s *Server) command(ctx context.Context, sess *session.Orchestrator, m protocol.CommandMsg) any {
	var res session.CommandResult
	var err error
	if m.Text != "" {
		res, err = sess.HandleCommand(ctx, m.Text)
	} else {
		res, err = sess.Apply(ctx, world.Command{Verb: m.Verb, Target: m.Target})
	}
	if err != nil {
		return nack(m.ReqID, protocol.CodeFor(err), err.Error())
	}
	ids := make([]uint64, len(res.Affected))
	for i, id := range res.Affected {
		ids[i] = uint64(id)
	}
	return protocol.CommandResultMsg{
		Type:            protocol.TypeCommandResult,
		ProtocolVersion: protocol.Version,
		ReqID:           m.ReqID,
		Verb:            res.Verb,
		Target:          res.Target,
		Affected:        ids,
	}
}

func (s *Server) level(ctx context.Context, sess *session.Orchestrator, m protocol.LevelMsg) any {
	var err error
	switch m.Action {
	case protocol.LevelLoad:
		err = sess.LoadLevel(ctx, m.Level)
	case protocol.LevelRestart:
		err = sess.Restart(ctx)
	case protocol.LevelNext:
		err = sess.Next(ctx)
	}
	if err != nil {
		code := protocol.CodeFor(err)
		if errors.Is(err, session.ErrUnknownLevel) {
			code = protocol.ErrNotFound
		}
		return nack(m.ReqID, code, err.Error())
	}
	return ack(m.ReqID)
}

func ack(reqID string) protocol.AckMsg {
	return protocol.AckMsg{Type: protocol.TypeAck, ProtocolVersion: protocol.Version, AckFor: reqID, Accepted: true}
}

func nack(reqID, code, msg string) protocol.AckMsg {
	return protocol.AckMsg{Type: protocol.TypeAck, ProtocolVersion: protocol.Version, AckFor: reqID, Code: code, Message: msg}
}

func (s *Server) handshake(conn *websocket.Conn) (protocol.HelloMsg, bool) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return protocol.HelloMsg{}, false
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(conn, websocket.ClosePolicyViolation, "expected HELLO")
		return protocol.HelloMsg{}, false
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return protocol.HelloMsg{}, false
	}
	if hello.ProtocolVersion != protocol.Version {
		closeWith(conn, websocket.ClosePolicyViolation, "bad protocol_version")
		return protocol.HelloMsg{}, false
	}
	return hello, true
}

func closeWith(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
