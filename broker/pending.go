package broker

import "github.com/sourcegraph/jsonrpc2"

// pendingKey is the correlation key for both pending tables: request ids are
// namespaced per server and per direction, so (ServerID, RequestID) is the
// only combination guaranteed unique.
type pendingKey struct {
	server ServerID
	id     RequestID
}

// PendingS2cReq is a server-initiated request currently delegated to a
// specific session (the leader at the time it was registered).
type PendingS2cReq struct {
	Responder SessionID
	Tx        chan<- S2cResult
}

// S2cResult is what a CompleteS2c/CancelS2c/server-exit resolves a pending
// server-to-client request with: either the session's reply payload or an
// LSP-native ResponseError.
type S2cResult struct {
	Result any
	Err    *jsonrpc2.Error
}

// PendingC2sReq is a client-initiated request whose id the broker rewrote;
// on response it restores origin_id and routes the reply to origin_session.
type PendingC2sReq struct {
	OriginSession SessionID
	OriginID      RequestID
}

// PendingRequests holds the two correlation tables described in §4.2: S2C
// (server-to-client) and C2S (client-to-server), both keyed by
// (ServerID, RequestID).
type PendingRequests struct {
	s2c map[pendingKey]PendingS2cReq
	c2s map[pendingKey]PendingC2sReq
}

// NewPendingRequests constructs empty correlation tables.
func NewPendingRequests() *PendingRequests {
	return &PendingRequests{
		s2c: make(map[pendingKey]PendingS2cReq),
		c2s: make(map[pendingKey]PendingC2sReq),
	}
}

func (p *PendingRequests) insertS2c(server ServerID, id RequestID, req PendingS2cReq) {
	p.s2c[pendingKey{server, id}] = req
}

func (p *PendingRequests) getS2c(server ServerID, id RequestID) (PendingS2cReq, bool) {
	req, ok := p.s2c[pendingKey{server, id}]
	return req, ok
}

func (p *PendingRequests) removeS2c(server ServerID, id RequestID) (PendingS2cReq, bool) {
	key := pendingKey{server, id}
	req, ok := p.s2c[key]
	if ok {
		delete(p.s2c, key)
	}
	return req, ok
}

// s2cKeysForServer returns every pending S2C key for a server, optionally
// filtered to a single responder.
func (p *PendingRequests) s2cKeysForServer(server ServerID, responder *SessionID) []RequestID {
	var out []RequestID
	for k, req := range p.s2c {
		if k.server != server {
			continue
		}
		if responder != nil && req.Responder != *responder {
			continue
		}
		out = append(out, k.id)
	}
	return out
}

func (p *PendingRequests) hasAnyS2cForServer(server ServerID) bool {
	for k := range p.s2c {
		if k.server == server {
			return true
		}
	}
	return false
}

func (p *PendingRequests) insertC2s(server ServerID, wireID RequestID, req PendingC2sReq) {
	p.c2s[pendingKey{server, wireID}] = req
}

func (p *PendingRequests) removeC2s(server ServerID, wireID RequestID) (PendingC2sReq, bool) {
	key := pendingKey{server, wireID}
	req, ok := p.c2s[key]
	if ok {
		delete(p.c2s, key)
	}
	return req, ok
}

// countS2cForServer and countC2sForServer back the broker_status
// introspection tool; they are not on any hot path.
func (p *PendingRequests) countS2cForServer(server ServerID) int {
	n := 0
	for k := range p.s2c {
		if k.server == server {
			n++
		}
	}
	return n
}

func (p *PendingRequests) countC2sForServer(server ServerID) int {
	n := 0
	for k := range p.c2s {
		if k.server == server {
			n++
		}
	}
	return n
}

func (p *PendingRequests) hasAnyC2sForServer(server ServerID) bool {
	for k := range p.c2s {
		if k.server == server {
			return true
		}
	}
	return false
}

// dropC2sForSession removes every pending C2S entry whose origin is sid
// (used on session loss).
func (p *PendingRequests) dropC2sForSession(sid SessionID) {
	for k, req := range p.c2s {
		if req.OriginSession == sid {
			delete(p.c2s, k)
		}
	}
}

// dropC2sForServer removes every pending C2S entry for a server (used on
// server exit).
func (p *PendingRequests) dropC2sForServer(server ServerID) {
	for k := range p.c2s {
		if k.server == server {
			delete(p.c2s, k)
		}
	}
}
