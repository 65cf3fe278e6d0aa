package protocol

import "encoding/json"

const Version = "1.0"

// Message types on the presentation websocket.
const (
	// client -> server
	TypeHello   = "HELLO"
	TypeSketch  = "SKETCH"
	TypeCommand = "COMMAND"
	TypeLevel   = "LEVEL"
	TypeBulk    = "BULK"

	// server -> client
	TypeWelcome       = "WELCOME"
	TypeObs           = "OBS"
	TypeAck           = "ACK"
	TypeSketchResult  = "SKETCH_RESULT"
	TypeCommandResult = "COMMAND_RESULT"
	TypeGoal          = "GOAL"
	TypeGameOver      = "GAME_OVER"
	TypeProgress      = "PROGRESS"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
	ReqID           string `json:"req_id,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
