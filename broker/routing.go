package broker

import (
	"encoding/json"
	"time"

	"rockerboo/lsp-broker/logger"
	"rockerboo/lsp-broker/lspwire"
	"rockerboo/lsp-broker/utils"
)

// textDocumentNotif is the subset of a textDocument/{didOpen,didChange,
// didClose} notification the gate needs: method plus the identifier/version
// pair nested under params.textDocument.
type textDocumentNotif struct {
	Method string `json:"method"`
	Params struct {
		TextDocument struct {
			URI     string `json:"uri"`
			Version *int64 `json:"version"`
		} `json:"textDocument"`
	} `json:"params"`
}

// rawNotif splits a raw JSON-RPC notification into its method and opaque
// params, for forwarding onward without re-encoding.
type rawNotif struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// RoutingService is the single-actor state machine described in package
// broker's doc comment. All of its state is owned exclusively by the
// goroutine running run; every other goroutine talks to it only through a
// RoutingHandle's command queue, so nothing here needs a mutex.
type RoutingService struct {
	queue chan routingCmd
	self  RoutingHandle

	servers  map[ServerID]*ServerEntry
	projects map[ProjectKey]ServerID
	pending  *PendingRequests

	sessions  SessionHandle
	knowledge KnowledgeHandle
	launcher  LspLauncher

	nextServerID uint64
	idleLease    time.Duration
}

// StartRoutingService constructs a RoutingService and runs it on a new
// goroutine, returning a handle for the rest of the process to talk to it.
// idleLease is how long a server with no attached sessions is kept warm
// before it is torn down.
func StartRoutingService(sessions SessionHandle, knowledge KnowledgeHandle, launcher LspLauncher, idleLease time.Duration) RoutingHandle {
	queue := make(chan routingCmd, 256)
	handle := RoutingHandle{queue: queue}
	svc := &RoutingService{
		queue:     queue,
		self:      handle,
		servers:   make(map[ServerID]*ServerEntry),
		projects:  make(map[ProjectKey]ServerID),
		pending:   NewPendingRequests(),
		sessions:  sessions,
		knowledge: knowledge,
		launcher:  launcher,
		idleLease: idleLease,
	}
	go svc.run()
	return handle
}

func (s *RoutingService) run() {
	for cmd := range s.queue {
		switch c := cmd.(type) {
		case cmdStartServer:
			id, err := s.handleLspStart(c.sid, c.config)
			c.reply <- startServerResult{id: id, err: err}

		case cmdLspSendNotif:
			c.reply <- s.handleLspSendNotif(c.sid, c.serverID, c.message)

		case cmdBeginS2c:
			c.reply <- s.handleBeginS2c(c.serverID, c.requestID, c.message, c.tx)

		case cmdCompleteS2c:
			c.reply <- s.handleCompleteS2c(c.sid, c.serverID, c.requestID, c.result)

		case cmdCancelS2c:
			s.handleCancelS2c(c.serverID, c.requestID)

		case cmdBeginC2s:
			s.handleBeginC2s(c)

		case cmdC2sResp:
			c.reply <- s.handleC2sResp(c.serverID, c.resp)

		case cmdC2sTimeout:
			c.reply <- s.handleC2sTimeout(c.serverID, c.wireID)

		case cmdC2sSendFailed:
			c.reply <- s.handleC2sSendFailed(c.serverID, c.wireID)

		case cmdSessionLost:
			s.handleSessionLost(c.sid)

		case cmdServerExited:
			s.handleServerExit(c.serverID, c.crashed)

		case cmdLeaseExpired:
			s.handleLeaseExpiry(c.serverID, c.generation)

		case cmdServerNotif:
			s.handleServerNotif(c.serverID, c.message)

		case cmdTerminateAll:
			s.handleTerminateAll()
			close(c.done)

		case cmdSnapshot:
			c.reply <- s.handleSnapshot()
		}
	}
}

func (s *RoutingService) handleLspStart(sid SessionID, config LspServerConfig) (ServerID, error) {
	if id, ok := s.findServerForProject(config); ok && s.attachSession(id, sid) {
		return id, nil
	}

	serverID := ServerID(s.nextServerID)
	s.nextServerID++

	instance, err := s.launcher.Launch(s.self, serverID, config, sid)
	if err != nil {
		return 0, newErr(ErrInternal, "launch failed: "+err.Error())
	}

	project := NewProjectKey(config)
	s.projects[project] = serverID
	s.servers[serverID] = NewServerEntry(instance, project, sid)

	if config.Cwd != "" {
		s.knowledge.SpawnProjectCrawl(config.Cwd)
	}

	return serverID, nil
}

func (s *RoutingService) findServerForProject(config LspServerConfig) (ServerID, bool) {
	id, ok := s.projects[NewProjectKey(config)]
	return id, ok
}

// attachSession joins session_id to server_id's attached set, recomputes the
// leader, and replays cached diagnostics to the newly attached session in
// the background so the actor loop is never blocked on session delivery.
func (s *RoutingService) attachSession(serverID ServerID, sid SessionID) bool {
	entry, ok := s.servers[serverID]
	if !ok {
		return false
	}
	entry.Attached[sid] = struct{}{}
	entry.recomputeLeader()
	entry.LeaseGen++

	cached := entry.Docs.CachedDiagnostics()
	if len(cached) == 0 {
		return true
	}
	sessions := s.sessions
	go func() {
		for uri, diag := range cached {
			var docID *uint64
			if id, ok := entry.Docs.DocIDFor(uri); ok {
				docID = &id
			}
			sessions.Send(sid, Event{
				Kind:        EventLspDiagnostics,
				ServerID:    serverID,
				DocID:       docID,
				URI:         uri,
				Version:     diag.Version,
				Diagnostics: diag.Diagnostics,
			})
		}
	}()
	return true
}

func (s *RoutingService) handleBeginS2c(serverID ServerID, requestID RequestID, message json.RawMessage, tx chan<- S2cResult) error {
	entry, ok := s.servers[serverID]
	if !ok {
		return InternalLspError("server not found")
	}
	if len(entry.Attached) == 0 {
		return MethodNotFoundError("no sessions attached")
	}
	leader := entry.Leader

	s.pending.insertS2c(serverID, requestID, PendingS2cReq{Responder: leader, Tx: tx})

	if !s.sessions.SendChecked(leader, Event{Kind: EventLspRequest, ServerID: serverID, Message: string(message)}) {
		s.pending.removeS2c(serverID, requestID)
		return InternalLspError("leader session lost")
	}
	return nil
}

func (s *RoutingService) handleCompleteS2c(sid SessionID, serverID ServerID, requestID RequestID, result S2cResult) bool {
	req, ok := s.pending.getS2c(serverID, requestID)
	if !ok || req.Responder != sid {
		return false
	}
	s.pending.removeS2c(serverID, requestID)
	req.Tx <- result
	return true
}

func (s *RoutingService) handleCancelS2c(serverID ServerID, requestID RequestID) {
	req, ok := s.pending.removeS2c(serverID, requestID)
	if !ok {
		return
	}
	req.Tx <- S2cResult{Err: CancelledError("cancelled")}
}

func (s *RoutingService) handleSessionLost(sid SessionID) {
	var affected []ServerID
	for id, entry := range s.servers {
		if _, ok := entry.Attached[sid]; ok {
			affected = append(affected, id)
		}
	}

	for _, serverID := range affected {
		entry := s.servers[serverID]
		delete(entry.Attached, sid)
		if entry.Leader == sid {
			entry.recomputeLeader()
		}

		vacated := entry.DocOwners.RemoveSession(sid)
		entry.DocOwners.ReelectOrphanedOwners(entry.Attached)
		for _, uri := range vacated {
			entry.Docs.Remove(uri)
		}

		for _, rid := range s.pending.s2cKeysForServer(serverID, &sid) {
			s.handleCancelS2c(serverID, rid)
		}

		if len(entry.Attached) == 0 {
			entry.LeaseGen++
			gen := entry.LeaseGen

			for _, rid := range s.pending.s2cKeysForServer(serverID, nil) {
				s.handleCancelS2c(serverID, rid)
			}

			handle := s.self
			duration := s.idleLease
			go func(serverID ServerID, gen uint64) {
				time.Sleep(duration)
				handle.leaseExpired(serverID, gen)
			}(serverID, gen)
		}
	}

	s.pending.dropC2sForSession(sid)
}

func (s *RoutingService) handleLspSendNotif(sid SessionID, serverID ServerID, message json.RawMessage) error {
	entry, ok := s.servers[serverID]
	if !ok {
		return errServerNotFound
	}

	var notif textDocumentNotif
	if err := json.Unmarshal(message, &notif); err != nil {
		return newErr(ErrInvalidArgs, "malformed notification")
	}
	// Normalize before the URI is used as an ownership or doc-version map
	// key: surrounding whitespace is trimmed and a bare local path becomes a
	// file:// URI. file:// URIs are kept verbatim, so two spellings of the
	// same file URI are tracked as separate documents.
	notif.Params.TextDocument.URI = utils.NormalizeURI(notif.Params.TextDocument.URI)

	decision := s.gateTextSync(sid, entry, notif)
	switch decision {
	case RejectNotOwner:
		return newErr(ErrNotDocOwner, "not document owner")
	case DropSilently:
		return nil
	}

	switch {
	case (notif.Method == "textDocument/didOpen" || notif.Method == "textDocument/didChange") && notif.Params.TextDocument.URI != "":
		var version uint32
		if notif.Params.TextDocument.Version != nil {
			version = uint32(*notif.Params.TextDocument.Version)
		}
		entry.Docs.Update(notif.Params.TextDocument.URI, version)
	case notif.Method == "textDocument/didClose" && notif.Params.TextDocument.URI != "":
		// Forward only happens once the last refcount holder has closed the
		// document (see DocOwnerRegistry.Gate); docs and doc_owners must be
		// removed together so a session attaching later never gets replayed
		// a phantom LspDiagnostics event for a document nobody has open.
		entry.Docs.Remove(notif.Params.TextDocument.URI)
	}

	var raw rawNotif
	if err := json.Unmarshal(message, &raw); err != nil {
		return newErr(ErrInvalidArgs, "malformed notification")
	}
	if err := entry.Instance.SendNotification(raw.Method, raw.Params); err != nil {
		logger.Warn("failed to forward notification to lsp server: " + err.Error())
	}
	return nil
}

// gateTextSync applies DocOwnerRegistry.Gate to one notification, extracting
// the uri/version pair methods outside didOpen/didChange/didClose never
// need.
func (s *RoutingService) gateTextSync(sid SessionID, entry *ServerEntry, notif textDocumentNotif) DocGateDecision {
	switch notif.Method {
	case "textDocument/didOpen", "textDocument/didChange", "textDocument/didClose":
	default:
		return Forward
	}
	if notif.Params.TextDocument.URI == "" {
		return RejectNotOwner
	}
	var version uint32
	if notif.Params.TextDocument.Version != nil {
		version = uint32(*notif.Params.TextDocument.Version)
	}
	return entry.DocOwners.Gate(notif.Method, sid, notif.Params.TextDocument.URI, version, entry.Attached)
}

func (s *RoutingService) handleBeginC2s(c cmdBeginC2s) {
	entry, ok := s.servers[c.serverID]
	if !ok {
		c.reply <- c2sResult{err: errServerNotFound}
		return
	}
	if _, attached := entry.Attached[c.sid]; !attached {
		c.reply <- c2sResult{err: errNotAttached}
		return
	}

	wireID := entry.NextWireRequestID(c.serverID)

	ch, ok := entry.Instance.SendRequest(wireID, c.req.Method, c.req.Params)
	if !ok {
		c.reply <- c2sResult{err: errInternal}
		return
	}

	s.pending.insertC2s(c.serverID, wireID, PendingC2sReq{OriginSession: c.sid, OriginID: c.originID})

	handle := s.self
	serverID := c.serverID
	reply := c.reply
	timeout := c.timeout
	go func() {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case resp, chOK := <-ch:
			if !chOK {
				handle.c2sSendFailed(serverID, wireID, reply)
				return
			}
			handle.c2sResp(serverID, resp, reply)
		case <-timer.C:
			handle.c2sTimeout(serverID, wireID, reply)
		}
	}()
}

func (s *RoutingService) handleC2sResp(serverID ServerID, resp *LspResponse) c2sResult {
	// removeC2s both validates the wire id was actually pending and drops the
	// correlation entry; origin_id itself is not needed here because the
	// caller's own reply channel already ties this result back to the
	// editor-chosen id it supplied to BeginC2s.
	if _, ok := s.pending.removeC2s(serverID, resp.ID); !ok {
		return c2sResult{err: newErr(ErrRequestNotFound, "request not found")}
	}
	if resp.Err != nil {
		return c2sResult{err: resp.Err}
	}
	return c2sResult{value: resp.Result}
}

func (s *RoutingService) handleC2sTimeout(serverID ServerID, wireID RequestID) c2sResult {
	if _, ok := s.pending.removeC2s(serverID, wireID); !ok {
		return c2sResult{err: newErr(ErrRequestNotFound, "request not found")}
	}
	return c2sResult{err: newErr(ErrTimeout, "request timed out")}
}

func (s *RoutingService) handleC2sSendFailed(serverID ServerID, wireID RequestID) c2sResult {
	if _, ok := s.pending.removeC2s(serverID, wireID); !ok {
		return c2sResult{err: newErr(ErrRequestNotFound, "request not found")}
	}
	return c2sResult{err: errInternal}
}

func (s *RoutingService) handleServerNotif(serverID ServerID, message []byte) {
	entry, ok := s.servers[serverID]
	if !ok {
		return
	}

	event := Event{Kind: EventLspMessage, ServerID: serverID, Message: string(message)}

	if params, ok := lspwire.ParsePublishDiagnostics(message); ok {
		var version *uint32
		if params.Version != nil {
			v := uint32(*params.Version)
			version = &v
		}
		diagnosticsJSON := string(params.Diagnostics)
		entry.Docs.UpdateDiagnostics(params.URI, version, diagnosticsJSON)
		var docID *uint64
		if id, ok := entry.Docs.DocIDFor(params.URI); ok {
			docID = &id
		}
		event = Event{
			Kind:        EventLspDiagnostics,
			ServerID:    serverID,
			DocID:       docID,
			URI:         params.URI,
			Version:     version,
			Diagnostics: diagnosticsJSON,
		}
	}

	attached := make([]SessionID, 0, len(entry.Attached))
	for sid := range entry.Attached {
		attached = append(attached, sid)
	}
	if len(attached) == 0 {
		return
	}
	s.sessions.Broadcast(attached, event)
}

func (s *RoutingService) handleTerminateAll() {
	ids := make([]ServerID, 0, len(s.servers))
	for id := range s.servers {
		ids = append(ids, id)
	}
	for _, id := range ids {
		s.handleServerExit(id, false)
	}
	for key, req := range s.pending.s2c {
		req.Tx <- S2cResult{Err: CancelledError("shutting down")}
		delete(s.pending.s2c, key)
	}
	s.pending.c2s = make(map[pendingKey]PendingC2sReq)
}

// handleSnapshot assembles a StatusSnapshot from the actor's own state. It
// must only ever be called from inside run's loop.
func (s *RoutingService) handleSnapshot() StatusSnapshot {
	out := StatusSnapshot{Servers: make([]ServerStatus, 0, len(s.servers))}
	for id, entry := range s.servers {
		out.Servers = append(out.Servers, ServerStatus{
			ServerID:      id,
			Project:       entry.Project,
			AttachedCount: len(entry.Attached),
			Leader:        entry.Leader,
			PendingS2c:    s.pending.countS2cForServer(id),
			PendingC2s:    s.pending.countC2sForServer(id),
		})
	}
	return out
}

func (s *RoutingService) handleLeaseExpiry(serverID ServerID, generation uint64) {
	entry, ok := s.servers[serverID]
	if !ok || entry.LeaseGen != generation || len(entry.Attached) != 0 {
		return
	}
	if s.pending.hasAnyS2cForServer(serverID) || s.pending.hasAnyC2sForServer(serverID) {
		return
	}
	s.handleServerExit(serverID, false)
}

func (s *RoutingService) handleServerExit(serverID ServerID, crashed bool) {
	for _, rid := range s.pending.s2cKeysForServer(serverID, nil) {
		if req, ok := s.pending.removeS2c(serverID, rid); ok {
			req.Tx <- S2cResult{Err: CancelledError("exited")}
		}
	}
	s.pending.dropC2sForServer(serverID)

	entry, ok := s.servers[serverID]
	if !ok {
		return
	}
	delete(s.servers, serverID)
	delete(s.projects, entry.Project)

	attached := make([]SessionID, 0, len(entry.Attached))
	for sid := range entry.Attached {
		attached = append(attached, sid)
	}
	status := LspServerStopped
	if crashed {
		status = LspServerCrashed
	}
	s.sessions.Broadcast(attached, Event{Kind: EventLspStatus, ServerID: serverID, Status: status})

	instance := entry.Instance
	go instance.Terminate()
}
