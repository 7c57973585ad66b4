package broker

// LspServerStatus is the terminal lifecycle state broadcast when a server
// exits.
type LspServerStatus int

const (
	LspServerStopped LspServerStatus = iota
	LspServerCrashed
)

func (s LspServerStatus) String() string {
	if s == LspServerCrashed {
		return "crashed"
	}
	return "stopped"
}

// EventKind discriminates the Event union below. Go has no sum types, so the
// routing service fills in only the fields relevant to Kind and leaves the
// rest zero, the same shape sessions.Registry.Send encodes to wire JSON.
type EventKind int

const (
	// EventLspRequest is a server-to-client request delegated to the leader.
	EventLspRequest EventKind = iota
	// EventLspMessage is a raw inbound server message with no broker-level
	// interpretation (anything but publishDiagnostics).
	EventLspMessage
	// EventLspDiagnostics is a textDocument/publishDiagnostics notification,
	// unpacked so it can be cached and replayed to late-attaching sessions.
	EventLspDiagnostics
	// EventLspStatus reports a server's terminal lifecycle transition.
	EventLspStatus
)

// Event is delivered outward to editor sessions through SessionHandle.
type Event struct {
	Kind     EventKind
	ServerID ServerID

	// EventLspRequest, EventLspMessage
	Message string

	// EventLspDiagnostics
	DocID       *uint64
	URI         string
	Version     *uint32
	Diagnostics string

	// EventLspStatus
	Status LspServerStatus
}

// SessionHandle is the routing service's narrow view of the session
// registry: deliver one event, deliver one event only if the session is
// still reachable, or fan one event out to many sessions. Implementations
// must never block the routing actor; they own their own delivery queues.
type SessionHandle interface {
	Send(sid SessionID, event Event)
	SendChecked(sid SessionID, event Event) bool
	Broadcast(sids []SessionID, event Event)
}

// KnowledgeHandle lets the routing service kick off a best-effort background
// crawl of a newly started project's workspace root, without blocking
// server startup on it.
type KnowledgeHandle interface {
	SpawnProjectCrawl(cwd string)
}

// LspLauncher starts one LSP server process and wires its inbound traffic
// back to handle, tagged with serverID so ServerNotif/ServerExited commands
// can be attributed correctly. sid identifies the session that triggered the
// launch, for launchers that need it for logging or tracing only.
type LspLauncher interface {
	Launch(handle RoutingHandle, serverID ServerID, config LspServerConfig, sid SessionID) (LspInstance, error)
}
