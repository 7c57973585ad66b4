package launcher

import (
	"sync"

	"rockerboo/lsp-broker/broker"
)

// Stub is an in-process broker.LspLauncher that never spawns a real process.
// It is meant for tests of packages above broker (sessions, knowledge,
// cmd/lsp-broker) that need a working LspLauncher/LspInstance pair but have
// no interest in actual LSP server behavior; broker's own tests use their
// own lighter fakes instead since they live inside the package.
type Stub struct {
	mu        sync.Mutex
	instances []*StubInstance
	OnLaunch  func(config broker.LspServerConfig) error
}

// StubInstance records every notification and request sent to it, lets a
// test answer requests through Respond, and records whether it was
// terminated.
type StubInstance struct {
	mu            sync.Mutex
	Notifications []StubNotification
	Requests      []StubRequest
	pending       map[broker.RequestID]chan *broker.LspResponse
	Terminated    bool
}

type StubNotification struct {
	Method string
	Params any
}

type StubRequest struct {
	ID     broker.RequestID
	Method string
	Params any
}

func (s *Stub) Launch(handle broker.RoutingHandle, serverID broker.ServerID, config broker.LspServerConfig, sid broker.SessionID) (broker.LspInstance, error) {
	if s.OnLaunch != nil {
		if err := s.OnLaunch(config); err != nil {
			return nil, err
		}
	}
	inst := &StubInstance{pending: make(map[broker.RequestID]chan *broker.LspResponse)}
	s.mu.Lock()
	s.instances = append(s.instances, inst)
	s.mu.Unlock()
	return inst, nil
}

// Instances returns every StubInstance created so far, in launch order.
func (s *Stub) Instances() []*StubInstance {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*StubInstance, len(s.instances))
	copy(out, s.instances)
	return out
}

func (i *StubInstance) SendNotification(method string, params any) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.Notifications = append(i.Notifications, StubNotification{Method: method, Params: params})
	return nil
}

func (i *StubInstance) SendRequest(id broker.RequestID, method string, params any) (<-chan *broker.LspResponse, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.Requests = append(i.Requests, StubRequest{ID: id, Method: method, Params: params})
	ch := make(chan *broker.LspResponse, 1)
	i.pending[id] = ch
	return ch, true
}

// Respond answers a previously issued request as the LSP process would.
func (i *StubInstance) Respond(id broker.RequestID, result any, rpcErr error) {
	i.mu.Lock()
	ch, ok := i.pending[id]
	delete(i.pending, id)
	i.mu.Unlock()
	if !ok {
		return
	}
	ch <- &broker.LspResponse{ID: id, Result: result, Err: rpcErr}
}

func (i *StubInstance) Terminate() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.Terminated = true
	for id, ch := range i.pending {
		close(ch)
		delete(i.pending, id)
	}
}
