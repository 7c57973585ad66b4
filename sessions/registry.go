package sessions

import (
	"sync"

	"rockerboo/lsp-broker/broker"
	"rockerboo/lsp-broker/logger"
)

// Conn is the minimal outbound sink a session transport must provide: one
// framed event at a time, in order. Implementations (ws_gateway.go's
// websocket wrapper, or a test double) must never block WriteEvent for long:
// each session's drain goroutine calls it, and a slow write backs up that
// session's queue until Registry starts dropping its oldest events.
type Conn interface {
	WriteEvent(payload []byte) error
}

// Registry is the default in-memory broker.SessionHandle: one outbound
// queue per attached session, drained by a per-session goroutine so a slow
// or stalled editor connection can never block the routing actor.
type Registry struct {
	mu       sync.RWMutex
	sessions map[broker.SessionID]*registeredSession
}

type registeredSession struct {
	queue  chan []byte
	done   chan struct{}
	conn   Conn
}

// NewRegistry constructs an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[broker.SessionID]*registeredSession)}
}

// Register attaches a transport connection under sid and starts its
// drain loop. queueSize bounds how many events may be buffered before the
// drain loop is backed up; a full queue drops the oldest unsent event
// rather than block the sender, since stale progress/diagnostics events are
// superseded by newer ones anyway.
func (r *Registry) Register(sid broker.SessionID, conn Conn, queueSize int) {
	if queueSize <= 0 {
		queueSize = 64
	}
	rs := &registeredSession{
		queue: make(chan []byte, queueSize),
		done:  make(chan struct{}),
		conn:  conn,
	}

	r.mu.Lock()
	r.sessions[sid] = rs
	r.mu.Unlock()

	go rs.drain()
}

func (rs *registeredSession) drain() {
	for {
		select {
		case payload := <-rs.queue:
			if err := rs.conn.WriteEvent(payload); err != nil {
				logger.Warn("sessions: write event failed: " + err.Error())
				return
			}
		case <-rs.done:
			return
		}
	}
}

// Unregister stops a session's drain loop. The caller is responsible for
// also calling broker.RoutingHandle.SessionLost so routing state is
// cleaned up; Unregister only tears down local delivery.
func (r *Registry) Unregister(sid broker.SessionID) {
	r.mu.Lock()
	rs, ok := r.sessions[sid]
	delete(r.sessions, sid)
	r.mu.Unlock()
	if ok {
		close(rs.done)
	}
}

func (r *Registry) lookup(sid broker.SessionID) (*registeredSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rs, ok := r.sessions[sid]
	return rs, ok
}

// Send implements broker.SessionHandle. A missing session is silently
// dropped: by the time the routing actor gets around to sending, the
// session may already be gone, and cleanup is SessionLost's job, not
// Send's.
func (r *Registry) Send(sid broker.SessionID, event broker.Event) {
	r.SendChecked(sid, event)
}

// SendChecked implements broker.SessionHandle, reporting whether sid was
// still a reachable session at enqueue time.
func (r *Registry) SendChecked(sid broker.SessionID, event broker.Event) bool {
	rs, ok := r.lookup(sid)
	if !ok {
		return false
	}
	payload, err := encodeEvent(event)
	if err != nil {
		logger.Warn("sessions: encode event: " + err.Error())
		return false
	}
	select {
	case rs.queue <- payload:
		return true
	default:
		// Queue is backed up: drop the oldest event to make room rather than
		// block the routing actor or silently drop the newest one.
		select {
		case <-rs.queue:
		default:
		}
		select {
		case rs.queue <- payload:
			return true
		default:
			return false
		}
	}
}

// Broadcast implements broker.SessionHandle by fanning one event out to
// every listed session via SendChecked.
func (r *Registry) Broadcast(sids []broker.SessionID, event broker.Event) {
	for _, sid := range sids {
		r.SendChecked(sid, event)
	}
}
