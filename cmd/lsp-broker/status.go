package main

import (
	"context"
	"sync"

	"rockerboo/lsp-broker/broker"
	"rockerboo/lsp-broker/config"
	"rockerboo/lsp-broker/knowledge"
	"rockerboo/lsp-broker/launcher"
	"rockerboo/lsp-broker/sessions"
)

// statusTracker gives the broker_status MCP tool a handle to the routing
// actor without forcing main to wire the MCP server before the actor
// exists: set is called once, right after StartRoutingService returns.
type statusTracker struct {
	mu     sync.RWMutex
	handle broker.RoutingHandle
	ready  bool
}

func newStatusTracker() *statusTracker {
	return &statusTracker{}
}

func (t *statusTracker) set(handle broker.RoutingHandle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handle = handle
	t.ready = true
}

func (t *statusTracker) snapshot(ctx context.Context) (broker.StatusSnapshot, error) {
	t.mu.RLock()
	handle, ready := t.handle, t.ready
	t.mu.RUnlock()
	if !ready {
		return broker.StatusSnapshot{}, errNotReady
	}
	return handle.Status(ctx)
}

var errNotReady = statusNotReadyError{}

type statusNotReadyError struct{}

func (statusNotReadyError) Error() string { return "routing service not started yet" }

func startRoutingService(tracker *statusTracker, registry *sessions.Registry, know *knowledge.Handle, cfg config.Config) broker.RoutingHandle {
	handle := broker.StartRoutingService(registry, know, launcher.NewProcessLauncher(), cfg.IdleLease)
	tracker.set(handle)
	return handle
}
