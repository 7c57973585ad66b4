package broker

import (
	"context"
	"encoding/json"
	"time"
)

// C2sRequest is the client-to-server request payload BeginC2s sends onward,
// after the caller has already decoded it off the wire. ID is the id the
// originating editor chose; the broker rewrites it to a wire id for the
// outbound leg and restores ID on the way back. Params stays opaque because
// the broker never interprets LSP semantics.
type C2sRequest struct {
	ID     RequestID
	Method string
	Params any
}

// routingCmd is the sealed set of messages the routing actor understands.
// Each variant below carries its own reply channel(s), matching the command
// list in SPEC_FULL.md §4.
type routingCmd interface{ isRoutingCmd() }

type cmdStartServer struct {
	sid    SessionID
	config LspServerConfig
	reply  chan<- startServerResult
}

type startServerResult struct {
	id  ServerID
	err error
}

type cmdLspSendNotif struct {
	sid      SessionID
	serverID ServerID
	message  json.RawMessage
	reply    chan<- error
}

type cmdBeginS2c struct {
	serverID  ServerID
	requestID RequestID
	message   json.RawMessage
	tx        chan<- S2cResult
	reply     chan<- error
}

type cmdCompleteS2c struct {
	sid       SessionID
	serverID  ServerID
	requestID RequestID
	result    S2cResult
	reply     chan<- bool
}

type cmdCancelS2c struct {
	serverID  ServerID
	requestID RequestID
}

type cmdBeginC2s struct {
	sid      SessionID
	serverID ServerID
	req      C2sRequest
	originID RequestID
	timeout  time.Duration
	reply    chan<- c2sResult
}

type c2sResult struct {
	value any
	err   error
}

type cmdC2sResp struct {
	serverID ServerID
	resp     *LspResponse
	reply    chan<- c2sResult
}

type cmdC2sTimeout struct {
	serverID ServerID
	wireID   RequestID
	reply    chan<- c2sResult
}

type cmdC2sSendFailed struct {
	serverID ServerID
	wireID   RequestID
	reply    chan<- c2sResult
}

type cmdSessionLost struct {
	sid SessionID
}

type cmdServerExited struct {
	serverID ServerID
	crashed  bool
}

type cmdLeaseExpired struct {
	serverID   ServerID
	generation uint64
}

type cmdServerNotif struct {
	serverID ServerID
	message  []byte
}

type cmdTerminateAll struct {
	done chan<- struct{}
}

type cmdSnapshot struct {
	reply chan<- StatusSnapshot
}

// ServerStatus is one server's worth of introspection data, returned by
// RoutingHandle.Status for reporting through the broker_status MCP tool.
type ServerStatus struct {
	ServerID      ServerID
	Project       ProjectKey
	AttachedCount int
	Leader        SessionID
	PendingS2c    int
	PendingC2s    int
}

// StatusSnapshot is a point-in-time read of the routing actor's state,
// assembled entirely from within the actor loop so it never races the
// mutations the loop itself is making.
type StatusSnapshot struct {
	Servers []ServerStatus
}

func (cmdStartServer) isRoutingCmd()     {}
func (cmdSnapshot) isRoutingCmd()        {}
func (cmdLspSendNotif) isRoutingCmd()    {}
func (cmdBeginS2c) isRoutingCmd()        {}
func (cmdCompleteS2c) isRoutingCmd()     {}
func (cmdCancelS2c) isRoutingCmd()       {}
func (cmdBeginC2s) isRoutingCmd()        {}
func (cmdC2sResp) isRoutingCmd()         {}
func (cmdC2sTimeout) isRoutingCmd()      {}
func (cmdC2sSendFailed) isRoutingCmd()   {}
func (cmdSessionLost) isRoutingCmd()     {}
func (cmdServerExited) isRoutingCmd()    {}
func (cmdLeaseExpired) isRoutingCmd()    {}
func (cmdServerNotif) isRoutingCmd()     {}
func (cmdTerminateAll) isRoutingCmd()    {}

// RoutingHandle is a cheap, cloneable handle for sending commands to a
// RoutingService. All of its methods are safe to call concurrently from
// many goroutines; each posts one command onto the actor's queue and waits
// on a private reply channel, so per-caller ordering is preserved even
// though replies from different callers may interleave.
type RoutingHandle struct {
	queue chan routingCmd
}

// StartServer starts or attaches to the LSP server for config, returning its
// ServerID. Attaching recomputes the leader and replays cached diagnostics
// to the newly attached session.
func (h RoutingHandle) StartServer(ctx context.Context, sid SessionID, config LspServerConfig) (ServerID, error) {
	reply := make(chan startServerResult, 1)
	if err := h.send(ctx, cmdStartServer{sid: sid, config: config, reply: reply}); err != nil {
		return 0, err
	}
	select {
	case res := <-reply:
		return res.id, res.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// LspSendNotif forwards an editor-originated JSON-RPC notification through
// text-sync gating to the LSP server. message is the raw encoded
// notification object, exactly as received off the wire.
func (h RoutingHandle) LspSendNotif(ctx context.Context, sid SessionID, serverID ServerID, message json.RawMessage) error {
	reply := make(chan error, 1)
	if err := h.send(ctx, cmdLspSendNotif{sid: sid, serverID: serverID, message: message, reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// BeginS2c registers a server-initiated request as pending and delivers it
// to the server's current leader session. The caller supplies tx, which
// receives the eventual session reply (or a cancellation/exit error). tx
// must have capacity for at least one value: the actor sends on it
// synchronously from its own loop and must never block on a slow reader.
func (h RoutingHandle) BeginS2c(ctx context.Context, serverID ServerID, requestID RequestID, message json.RawMessage, tx chan<- S2cResult) error {
	reply := make(chan error, 1)
	if err := h.send(ctx, cmdBeginS2c{serverID: serverID, requestID: requestID, message: message, tx: tx, reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CompleteS2c resolves a pending server-to-client request if sid is its
// registered responder, returning whether it did.
func (h RoutingHandle) CompleteS2c(ctx context.Context, sid SessionID, serverID ServerID, requestID RequestID, result any, rpcErr error) bool {
	reply := make(chan bool, 1)
	res := S2cResult{Result: result}
	if rpcErr != nil {
		res.Err = InternalLspError(rpcErr.Error())
	}
	if err := h.send(ctx, cmdCompleteS2c{sid: sid, serverID: serverID, requestID: requestID, result: res, reply: reply}); err != nil {
		return false
	}
	select {
	case ok := <-reply:
		return ok
	case <-ctx.Done():
		return false
	}
}

// CancelS2c cancels a pending server-to-client request, idempotently.
func (h RoutingHandle) CancelS2c(serverID ServerID, requestID RequestID) {
	select {
	case h.queue <- cmdCancelS2c{serverID: serverID, requestID: requestID}:
	default:
		go func() { h.queue <- cmdCancelS2c{serverID: serverID, requestID: requestID} }()
	}
}

// BeginC2s issues an editor-originated request to the LSP server, blocking
// until a response, timeout, or terminal failure. The returned value is the
// server's raw result. Broker-side failures are an *Error carrying an
// ErrorCode; an error response from the server is passed through as the
// error the LspInstance reported.
func (h RoutingHandle) BeginC2s(ctx context.Context, sid SessionID, serverID ServerID, req C2sRequest, timeout time.Duration) (any, error) {
	reply := make(chan c2sResult, 1)
	if err := h.send(ctx, cmdBeginC2s{sid: sid, serverID: serverID, req: req, originID: req.ID, timeout: timeout, reply: reply}); err != nil {
		return nil, err
	}
	select {
	case res := <-reply:
		return res.value, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SessionLost performs authoritative cleanup for a disconnected session.
func (h RoutingHandle) SessionLost(sid SessionID) {
	h.postAsync(cmdSessionLost{sid: sid})
}

// ServerExited reports that an LSP process exited, crashed or not.
func (h RoutingHandle) ServerExited(serverID ServerID, crashed bool) {
	h.postAsync(cmdServerExited{serverID: serverID, crashed: crashed})
}

// ServerNotif delivers a raw inbound notification from an LSP process.
func (h RoutingHandle) ServerNotif(serverID ServerID, message []byte) {
	h.postAsync(cmdServerNotif{serverID: serverID, message: message})
}

// Status returns a snapshot of every managed server for introspection
// tooling (the broker_status MCP tool). It blocks until the actor loop has
// assembled the reply or ctx is done.
func (h RoutingHandle) Status(ctx context.Context) (StatusSnapshot, error) {
	reply := make(chan StatusSnapshot, 1)
	if err := h.send(ctx, cmdSnapshot{reply: reply}); err != nil {
		return StatusSnapshot{}, err
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-ctx.Done():
		return StatusSnapshot{}, ctx.Err()
	}
}

// TerminateAll tears down every managed server and blocks until done.
func (h RoutingHandle) TerminateAll(ctx context.Context) {
	done := make(chan struct{})
	if err := h.send(ctx, cmdTerminateAll{done: done}); err != nil {
		return
	}
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// leaseExpired and internal C2S continuations are posted only by the
// service's own spawned tasks, never by external callers, so they bypass
// the context-aware send path.
func (h RoutingHandle) leaseExpired(serverID ServerID, generation uint64) {
	h.postAsync(cmdLeaseExpired{serverID: serverID, generation: generation})
}

func (h RoutingHandle) c2sResp(serverID ServerID, resp *LspResponse, reply chan<- c2sResult) {
	h.postAsync(cmdC2sResp{serverID: serverID, resp: resp, reply: reply})
}

func (h RoutingHandle) c2sTimeout(serverID ServerID, wireID RequestID, reply chan<- c2sResult) {
	h.postAsync(cmdC2sTimeout{serverID: serverID, wireID: wireID, reply: reply})
}

func (h RoutingHandle) c2sSendFailed(serverID ServerID, wireID RequestID, reply chan<- c2sResult) {
	h.postAsync(cmdC2sSendFailed{serverID: serverID, wireID: wireID, reply: reply})
}

func (h RoutingHandle) send(ctx context.Context, cmd routingCmd) error {
	select {
	case h.queue <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// postAsync enqueues a fire-and-forget command, never blocking the caller
// beyond a full queue: if the queue is momentarily full it hands off to a
// detached goroutine rather than stall the caller (mirrors the teacher's
// "best-effort, no await" outbound discipline applied to inbound signals).
func (h RoutingHandle) postAsync(cmd routingCmd) {
	select {
	case h.queue <- cmd:
	default:
		go func() { h.queue <- cmd }()
	}
}
