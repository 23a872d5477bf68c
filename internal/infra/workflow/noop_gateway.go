package workflow

import (
	"context"
	"encoding/json"
	"sync"

	"goalforge-async/internal/domain/ports/adapter"
)

var _ adapter.WorkflowEngine = (*NoopGateway)(nil)

// NoopGateway is a simple in-memory engine to use in dev mode and tests.
type NoopGateway struct {
	mu      sync.Mutex
	started map[string]json.RawMessage
	stopped map[string]string // name -> cause
}

func NewNoopGateway() *NoopGateway {
	return &NoopGateway{
		started: make(map[string]json.RawMessage),
		stopped: make(map[string]string),
	}
}

func (g *NoopGateway) Name() string { return "noop" }

func (g *NoopGateway) StartExecution(ctx context.Context, name string, input json.RawMessage) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.started[name]; ok {
		return nil // duplicate start by the same name is a no-op
	}
	g.started[name] = input
	return nil
}

func (g *NoopGateway) StopExecution(ctx context.Context, name, cause string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopped[name] = cause
	return nil
}

// Started reports whether an execution with the given name was launched.
func (g *NoopGateway) Started(name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.started[name]
	return ok
}

// StopCause returns the recorded stop cause for an execution, if any.
func (g *NoopGateway) StopCause(name string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	cause, ok := g.stopped[name]
	return cause, ok
}
