package broker

import (
	"sync"
)

// fakeInstance is an in-process stand-in for a launched LSP server. It
// never touches a real process: notifications and requests are recorded,
// and responses are delivered by the test driving them through respond.
type fakeInstance struct {
	mu            sync.Mutex
	notifications []fakeNotification
	requests      []fakeRequest
	pending       map[RequestID]chan *LspResponse
	terminated    bool
	refuseSend    bool
}

type fakeNotification struct {
	Method string
	Params any
}

type fakeRequest struct {
	ID     RequestID
	Method string
	Params any
}

func newFakeInstance() *fakeInstance {
	return &fakeInstance{pending: make(map[RequestID]chan *LspResponse)}
}

func (f *fakeInstance) SendNotification(method string, params any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifications = append(f.notifications, fakeNotification{Method: method, Params: params})
	return nil
}

func (f *fakeInstance) SendRequest(id RequestID, method string, params any) (<-chan *LspResponse, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refuseSend {
		return nil, false
	}
	f.requests = append(f.requests, fakeRequest{ID: id, Method: method, Params: params})
	ch := make(chan *LspResponse, 1)
	f.pending[id] = ch
	return ch, true
}

// respond delivers a response for a previously-issued request id, as the LSP
// process would over the wire.
func (f *fakeInstance) respond(id RequestID, resp *LspResponse) {
	f.mu.Lock()
	ch, ok := f.pending[id]
	delete(f.pending, id)
	f.mu.Unlock()
	if ok {
		ch <- resp
	}
}

// drop closes a pending request's channel without a value, simulating a
// dropped connection (maps to C2sSendFailed).
func (f *fakeInstance) drop(id RequestID) {
	f.mu.Lock()
	ch, ok := f.pending[id]
	delete(f.pending, id)
	f.mu.Unlock()
	if ok {
		close(ch)
	}
}

func (f *fakeInstance) Terminate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminated = true
}

// fakeLauncher hands back pre-built fakeInstances, one per call, recording
// every launch request for assertions.
type fakeLauncher struct {
	mu       sync.Mutex
	launches []LspServerConfig
	fail     error
	instance func() LspInstance
}

func (l *fakeLauncher) Launch(handle RoutingHandle, serverID ServerID, config LspServerConfig, sid SessionID) (LspInstance, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launches = append(l.launches, config)
	if l.fail != nil {
		return nil, l.fail
	}
	if l.instance != nil {
		return l.instance(), nil
	}
	return newFakeInstance(), nil
}

// fakeSessions records every event delivered to it and lets tests mark a
// session as unreachable for SendChecked.
type fakeSessions struct {
	mu          sync.Mutex
	sent        map[SessionID][]Event
	broadcasts  []Event
	unreachable map[SessionID]bool
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sent: make(map[SessionID][]Event), unreachable: make(map[SessionID]bool)}
}

func (s *fakeSessions) Send(sid SessionID, event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent[sid] = append(s.sent[sid], event)
}

func (s *fakeSessions) SendChecked(sid SessionID, event Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unreachable[sid] {
		return false
	}
	s.sent[sid] = append(s.sent[sid], event)
	return true
}

func (s *fakeSessions) Broadcast(sids []SessionID, event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcasts = append(s.broadcasts, event)
	for _, sid := range sids {
		s.sent[sid] = append(s.sent[sid], event)
	}
}

func (s *fakeSessions) eventsFor(sid SessionID) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.sent[sid]))
	copy(out, s.sent[sid])
	return out
}

// fakeKnowledge records every crawl request without doing any real work.
type fakeKnowledge struct {
	mu     sync.Mutex
	crawls []string
}

func (k *fakeKnowledge) SpawnProjectCrawl(cwd string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.crawls = append(k.crawls, cwd)
}
