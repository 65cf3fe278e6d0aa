package session

import "time"

type EntryKind string

const (
	EntryLevel       EntryKind = "level"
	EntryGoal        EntryKind = "goal"
	EntryGameOver    EntryKind = "game_over"
	EntrySketch      EntryKind = "sketch"
	EntryBlocked     EntryKind = "blocked"
	EntryFailed      EntryKind = "failed"
	EntryAnimation   EntryKind = "animation"
	EntryCommandText EntryKind = "command_text"
	EntryCommand     EntryKind = "command"
)

// LogEntry is one durable session event.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Session string    `json:"session"`
	Kind    EntryKind `json:"kind"`
	Epoch   uint64    `json:"epoch,omitempty"`
	Level   string    `json:"level,omitempty"`
	Object  uint64    `json:"object,omitempty"`
	Type    string    `json:"type,omitempty"`
	Hash    string    `json:"hash,omitempty"`
	Count   int       `json:"count,omitempty"`
	Detail  string    `json:"detail,omitempty"`
}
