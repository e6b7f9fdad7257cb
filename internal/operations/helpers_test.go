package operations_test

import (
	"context"
	"sync"

	"etaanalyzer/internal/operations"
)

// recordingHub captures every broadcast
type recordingHub struct {
	mu       sync.Mutex
	messages []hubMessage
}

type hubMessage struct {
	EventType string
	Step      string
	Status    string
	Event     operations.ProgressEvent
}

func (h *recordingHub) BroadcastUpdate(eventType, step, status string, metadata interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ev, _ := metadata.(operations.ProgressEvent)
	h.messages = append(h.messages, hubMessage{EventType: eventType, Step: step, Status: status, Event: ev})
}

func (h *recordingHub) Messages() []hubMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]hubMessage(nil), h.messages...)
}

func (h *recordingHub) Last() hubMessage {
	msgs := h.Messages()
	if len(msgs) == 0 {
		return hubMessage{}
	}
	return msgs[len(msgs)-1]
}

// funcStep is a Step whose behaviour is a closure
type funcStep struct {
	operations.BaseStage
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, state *operations.OperationState) error
}

func newFuncStep(id string, fn func(ctx context.Context, state *operations.OperationState) error, deps ...string) *funcStep {
	if fn == nil {
		fn = func(context.Context, *operations.OperationState) error { return nil }
	}
	return &funcStep{BaseStage: operations.NewBaseStage(id, id+" step", deps), fn: fn}
}

func (s *funcStep) Execute(ctx context.Context, state *operations.OperationState) error {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.fn(ctx, state)
}

// Validate accepts states without a spec
func (s *funcStep) Validate(*operations.OperationState) error { return nil }

func (s *funcStep) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func noManifest() *operations.Config {
	return operations.NewConfigBuilder().WithManifest(false).Build()
}
