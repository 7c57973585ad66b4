package broker

// LspInstance is the communication handle and exit-monitor for one launched
// LSP process, as returned by LspLauncher.Launch. The routing service never
// touches the process directly; it only ever calls these methods.
type LspInstance interface {
	// SendNotification enqueues an outgoing LSP notification. Best-effort:
	// the actor never awaits this.
	SendNotification(method string, params any) error
	// SendRequest enqueues an outgoing LSP request carrying the given wire
	// id and returns a channel that receives exactly one *LspResponse, or is
	// closed without a send if the in-flight request was abandoned (e.g. the
	// connection dropped). ok is false if the request could not be enqueued
	// at all.
	SendRequest(id RequestID, method string, params any) (ch <-chan *LspResponse, ok bool)
	// Terminate kills the process and releases its resources. Always called
	// from a detached goroutine by the routing service, never awaited inline.
	Terminate()
}

// LspResponse is a completed client-to-server response, not yet rewritten
// back to the origin session's id.
type LspResponse struct {
	ID     RequestID
	Result any
	Err    error
}

// DiagnosticsCacheEntry is the last published diagnostics set for one URI.
type DiagnosticsCacheEntry struct {
	Version     *uint32
	Diagnostics string // serialized JSON form of the `diagnostics` array
}

// docEntry tracks one document's broker-assigned id and last known version.
type docEntry struct {
	id      uint64
	version uint32
}

// DocRegistry holds per-server document versions and cached published
// diagnostics, keyed by URI.
type DocRegistry struct {
	byURI            map[string]docEntry
	diagnosticsByURI map[string]DiagnosticsCacheEntry
	nextDocID        uint64
}

// NewDocRegistry constructs an empty registry.
func NewDocRegistry() *DocRegistry {
	return &DocRegistry{
		byURI:            make(map[string]docEntry),
		diagnosticsByURI: make(map[string]DiagnosticsCacheEntry),
	}
}

// Update records a didOpen/didChange version for uri, assigning it a
// broker-local doc id the first time it is seen.
func (r *DocRegistry) Update(uri string, version uint32) {
	e, ok := r.byURI[uri]
	if !ok {
		r.nextDocID++
		e.id = r.nextDocID
	}
	e.version = version
	r.byURI[uri] = e
}

// DocIDFor returns the broker-local document id for uri, if known.
func (r *DocRegistry) DocIDFor(uri string) (uint64, bool) {
	e, ok := r.byURI[uri]
	return e.id, ok
}

// UpdateDiagnostics caches the latest published diagnostics for uri.
func (r *DocRegistry) UpdateDiagnostics(uri string, version *uint32, diagnostics string) {
	r.diagnosticsByURI[uri] = DiagnosticsCacheEntry{Version: version, Diagnostics: diagnostics}
}

// Remove drops all tracked state for uri (called when the last session
// closes a document).
func (r *DocRegistry) Remove(uri string) {
	delete(r.byURI, uri)
	delete(r.diagnosticsByURI, uri)
}

// CachedDiagnostics returns a snapshot of every cached diagnostics entry,
// used to replay state to newly attached sessions.
func (r *DocRegistry) CachedDiagnostics() map[string]DiagnosticsCacheEntry {
	out := make(map[string]DiagnosticsCacheEntry, len(r.diagnosticsByURI))
	for k, v := range r.diagnosticsByURI {
		out[k] = v
	}
	return out
}

// DocOwnerState is the single-writer gate for one URI: the currently
// authoritative session, the set of sessions that currently have it open
// (refcounted, since multiple sessions may open the same file), and the last
// version number observed from the owner's edits.
type DocOwnerState struct {
	Owner          SessionID
	OpenRefcounts  map[SessionID]uint32
	LastVersion    uint32
}

func newDocOwnerState(owner SessionID, version uint32) *DocOwnerState {
	return &DocOwnerState{
		Owner:         owner,
		OpenRefcounts: map[SessionID]uint32{owner: 1},
		LastVersion:   version,
	}
}

func (s *DocOwnerState) refcountSum() uint32 {
	var total uint32
	for _, c := range s.OpenRefcounts {
		total += c
	}
	return total
}

// DocOwnerRegistry is the per-server, per-URI ownership table that
// implements text-sync gating.
type DocOwnerRegistry struct {
	byURI map[string]*DocOwnerState
}

// NewDocOwnerRegistry constructs an empty registry.
func NewDocOwnerRegistry() *DocOwnerRegistry {
	return &DocOwnerRegistry{byURI: make(map[string]*DocOwnerState)}
}

// DocGateDecision is the outcome of gating one textDocument/{didOpen,
// didChange, didClose} notification.
type DocGateDecision int

const (
	// Forward means the notification should be sent to the LSP server.
	Forward DocGateDecision = iota
	// RejectNotOwner means the sender is not authorized to mutate this
	// document; the broker replies NotDocOwner and does not forward.
	RejectNotOwner
	// DropSilently means the notification is a harmless duplicate (a second
	// open, or a close that still has other holders) and should be
	// acknowledged without forwarding.
	DropSilently
)

// Gate applies text-sync gating to one textDocument/{didOpen, didChange,
// didClose} notification for uri from session, given the set of sessions
// currently attached to the server (needed to detect an orphaned owner).
//
// A didChange from a non-owner whose refcounts still contain the owner is
// rejected, not transferred: the owner stays authoritative until it
// disconnects, closes the document, or the sender opens it and the owner
// turns out to be gone.
func (r *DocOwnerRegistry) Gate(method string, session SessionID, uri string, version uint32, attached map[SessionID]struct{}) DocGateDecision {
	switch method {
	case "textDocument/didOpen":
		state, ok := r.byURI[uri]
		if !ok {
			r.byURI[uri] = newDocOwnerState(session, version)
			return Forward
		}
		state.OpenRefcounts[session]++
		if _, ownerAttached := attached[state.Owner]; !ownerAttached {
			state.Owner = session
		} else if _, ownerHolds := state.OpenRefcounts[state.Owner]; !ownerHolds {
			state.Owner = session
		}
		return DropSilently

	case "textDocument/didChange":
		state, ok := r.byURI[uri]
		if !ok {
			return RejectNotOwner
		}
		_, ownerAttached := attached[state.Owner]
		if session == state.Owner || !ownerAttached {
			state.Owner = session
			state.LastVersion = version
			return Forward
		}
		return RejectNotOwner

	case "textDocument/didClose":
		state, ok := r.byURI[uri]
		if !ok {
			return RejectNotOwner
		}
		if c, held := state.OpenRefcounts[session]; held {
			if c > 0 {
				c--
			}
			if c == 0 {
				delete(state.OpenRefcounts, session)
			} else {
				state.OpenRefcounts[session] = c
			}
		}
		if session == state.Owner && len(state.OpenRefcounts) > 0 {
			state.Owner = minSessionID(state.OpenRefcounts)
		}
		if state.refcountSum() == 0 {
			delete(r.byURI, uri)
			return Forward
		}
		return DropSilently

	default:
		return Forward
	}
}

// RemoveSession removes sid from every URI's refcounts (authoritative
// session-loss cleanup). It reports which URIs were fully vacated (and so
// must also be dropped from DocRegistry) and re-elects owners for URIs that
// lost their owner but still have holders.
func (r *DocOwnerRegistry) RemoveSession(sid SessionID) (vacated []string) {
	for uri, state := range r.byURI {
		delete(state.OpenRefcounts, sid)
		if len(state.OpenRefcounts) == 0 {
			vacated = append(vacated, uri)
			continue
		}
		if state.Owner == sid {
			state.Owner = minSessionID(state.OpenRefcounts)
		}
	}
	for _, uri := range vacated {
		delete(r.byURI, uri)
	}
	return vacated
}

// ReelectOrphanedOwners re-elects an owner for every URI whose current owner
// is no longer in attached, leaving single-holder documents alone if their
// sole holder is still attached. Used after a session loss to repair
// ownership left pointing at a session that never explicitly closed.
func (r *DocOwnerRegistry) ReelectOrphanedOwners(attached map[SessionID]struct{}) {
	for _, state := range r.byURI {
		if _, ok := attached[state.Owner]; !ok && len(state.OpenRefcounts) > 0 {
			state.Owner = minSessionID(state.OpenRefcounts)
		}
	}
}

func minSessionID(m map[SessionID]uint32) SessionID {
	first := true
	var min SessionID
	for sid := range m {
		if first || sid < min {
			min = sid
			first = false
		}
	}
	return min
}

// ServerEntry aggregates all routing state for one live LSP server instance.
type ServerEntry struct {
	Instance LspInstance
	Project  ProjectKey

	Attached map[SessionID]struct{}
	Leader   SessionID

	Docs       *DocRegistry
	DocOwners  *DocOwnerRegistry

	LeaseGen     uint64
	NextWireSeq  uint64
}

// NewServerEntry constructs a freshly started server entry with a single
// attached session acting as leader.
func NewServerEntry(instance LspInstance, project ProjectKey, initial SessionID) *ServerEntry {
	return &ServerEntry{
		Instance:    instance,
		Project:     project,
		Attached:    map[SessionID]struct{}{initial: {}},
		Leader:      initial,
		Docs:        NewDocRegistry(),
		DocOwners:   NewDocOwnerRegistry(),
		LeaseGen:    0,
		NextWireSeq: 1,
	}
}

// recomputeLeader sets Leader to min(Attached), the invariant that must hold
// immediately after every attach/detach.
func (e *ServerEntry) recomputeLeader() {
	if len(e.Attached) == 0 {
		return
	}
	first := true
	for sid := range e.Attached {
		if first || sid < e.Leader {
			e.Leader = sid
			first = false
		}
	}
}

// NextWireRequestID allocates the next broker-minted request id for a
// client-to-server request on this server.
func (e *ServerEntry) NextWireRequestID(server ServerID) RequestID {
	id := WireRequestID(server, e.NextWireSeq)
	e.NextWireSeq++
	return id
}
