// Package events defines the websocket wire contract of the analyzer:
// message types, the envelope written to clients and the run progress
// payload.
package events

// Message types
const (
	// TypeConnection is sent once to each client after it registers
	TypeConnection = "connection"

	TypeRunProgress = "run:progress"
	TypeRunComplete = "run:complete"
	TypeRunError    = "run:error"
)

// Message is the JSON envelope written to clients
type Message struct {
	Type      string      `json:"type"`
	Step      string      `json:"step,omitempty"`
	Status    string      `json:"status,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp string      `json:"timestamp"`
}

// ProgressEvent is the payload of every run:* message. Stage is empty for
// run-level events; Rows is the row count written by the stage or, on
// run:complete, by the last stage.
type ProgressEvent struct {
	RunID  string `json:"run_id"`
	Stage  string `json:"stage,omitempty"`
	Status string `json:"status"`
	Rows   int    `json:"rows"`
	Error  string `json:"error,omitempty"`
}
