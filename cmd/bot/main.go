package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"

	"github.com/gorilla/websocket"

	"sketchcraft.ai/internal/protocol"
)

// bot is a scripted websocket player: it joins a level, optionally drops one
// sketch and then sends one command at it, logging what the world reports.
func main() {
	var (
		url     = flag.String("url", "ws://localhost:3000/v1/ws", "ws url")
		name    = flag.String("name", "bot", "client name")
		level   = flag.String("level", "", "level to join (default: server's first)")
		sketch  = flag.String("sketch", "", "PNG file to drop as a sketch (optional)")
		x       = flag.Float64("x", 640, "sketch x")
		y       = flag.Float64("y", 200, "sketch y")
		backend = flag.String("backend", "gemini", "image backend: gemini|imagen|veo")
		style   = flag.String("style", "", "visual style id (optional)")
		command = flag.String("command", "", "command text sent after the sketch lands (optional)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)

	var png []byte
	if *sketch != "" {
		b, err := os.ReadFile(*sketch)
		if err != nil {
			logger.Fatalf("read sketch: %v", err)
		}
		png = b
	}

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      *name,
		Level:           *level,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	go func() {
		<-stop
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
		_ = conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			logger.Printf("WELCOME session=%s level=%s tick_rate=%d backends=%v", w.SessionID, w.Level, w.TickRateHz, w.Backends)
			if png != nil {
				_ = conn.WriteJSON(protocol.SketchMsg{
					Type:            protocol.TypeSketch,
					ProtocolVersion: protocol.Version,
					ReqID:           "sketch-1",
					Image:           protocol.EncodePNG(png),
					X:               *x,
					Y:               *y,
					Backend:         *backend,
					Style:           *style,
				})
			}

		case protocol.TypeSketchResult:
			var r protocol.SketchResultMsg
			if err := json.Unmarshal(msg, &r); err != nil {
				continue
			}
			logger.Printf("SKETCH_RESULT object=%d type=%s attrs=%v texture=%s code=%s", r.ObjectID, r.ObjectType, r.Attributes, r.Texture, r.Code)
			if *command != "" && r.Code == "" {
				_ = conn.WriteJSON(protocol.CommandMsg{
					Type:            protocol.TypeCommand,
					ProtocolVersion: protocol.Version,
					ReqID:           "command-1",
					Text:            *command,
				})
			}

		case protocol.TypeCommandResult:
			var r protocol.CommandResultMsg
			if err := json.Unmarshal(msg, &r); err != nil {
				continue
			}
			logger.Printf("COMMAND_RESULT %s %s affected=%v", r.Verb, r.Target, r.Affected)

		case protocol.TypeAck:
			var a protocol.AckMsg
			if err := json.Unmarshal(msg, &a); err == nil && !a.Accepted {
				logger.Printf("NACK %s code=%s %s", a.AckFor, a.Code, a.Message)
			}

		case protocol.TypeObs:
			var obs protocol.ObsMsg
			if err := json.Unmarshal(msg, &obs); err != nil {
				continue
			}
			for _, e := range obs.Events {
				logger.Printf("tick=%d %s object=%d %s", e.Tick, e.Kind, e.Object, e.Detail)
			}

		case protocol.TypeProgress:
			var p protocol.ProgressMsg
			if err := json.Unmarshal(msg, &p); err == nil {
				logger.Printf("PROGRESS %s %d/%d ready=%v", p.Hash, p.Progress, p.Total, p.Ready)
			}

		case protocol.TypeGoal:
			var g protocol.GoalMsg
			if err := json.Unmarshal(msg, &g); err == nil {
				logger.Printf("GOAL next=%s", g.Next)
			}

		case protocol.TypeGameOver:
			var g protocol.GameOverMsg
			if err := json.Unmarshal(msg, &g); err == nil {
				logger.Printf("GAME_OVER %s", g.Reason)
			}
		}
	}
}
