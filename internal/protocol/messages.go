package protocol

import "sketchcraft.ai/internal/sim/world"

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name,omitempty"`
	// Level asks for a starting level instead of the session default.
	Level string `json:"level,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	SessionID       string   `json:"session_id"`
	Level           string   `json:"level"`
	Levels          []string `json:"levels"`
	TickRateHz      int      `json:"tick_rate_hz"`
	Backends        []string `json:"backends"`
	Styles          []string `json:"styles"`
	CatalogDigest   string   `json:"catalog_digest,omitempty"`
}

// SKETCH (client -> server): a finished drawing dropped at (x, y).
type SketchMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	ReqID           string  `json:"req_id"`
	Image           string  `json:"image"`
	X               float64 `json:"x"`
	Y               float64 `json:"y"`
	Backend         string  `json:"backend,omitempty"`
	Style           string  `json:"style,omitempty"`
}

// COMMAND (client -> server): free text, or an already parsed verb/target.
type CommandMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`
	Text            string `json:"text,omitempty"`
	Verb            string `json:"verb,omitempty"`
	Target          string `json:"target,omitempty"`
}

// Level actions.
const (
	LevelLoad    = "load"
	LevelRestart = "restart"
	LevelNext    = "next"
)

// LEVEL (client -> server)
type LevelMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`
	Action          string `json:"action"`
	Level           string `json:"level,omitempty"`
}

// BULK (client -> server): scene-wide actions.
type BulkMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`
	Action          string `json:"action"`
}

type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AckFor          string `json:"ack_for"`
	Accepted        bool   `json:"accepted"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	Count           int    `json:"count,omitempty"`
}

// OBS (server -> client): the scene after one tick.
type ObsMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	world.Observation
}

type SketchResultMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	ReqID           string   `json:"req_id"`
	ObjectID        uint64   `json:"object_id"`
	ObjectType      string   `json:"object_type,omitempty"`
	Attributes      []string `json:"attributes,omitempty"`
	Hash            string   `json:"hash,omitempty"`
	Texture         string   `json:"texture,omitempty"`
	Animated        bool     `json:"animated,omitempty"`
	Blocked         bool     `json:"blocked,omitempty"`
	Stale           bool     `json:"stale,omitempty"`
	Code            string   `json:"code,omitempty"`
	Message         string   `json:"message,omitempty"`
}

type CommandResultMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	ReqID           string   `json:"req_id"`
	Verb            string   `json:"verb"`
	Target          string   `json:"target"`
	Affected        []uint64 `json:"affected"`
}

type GoalMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	// Next is empty after the last level.
	Next string `json:"next"`
}

type GameOverMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Reason          string `json:"reason"`
}

type ProgressMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Hash            string `json:"hash"`
	Ready           bool   `json:"ready"`
	Progress        int    `json:"progress"`
	Total           int    `json:"total"`
}
