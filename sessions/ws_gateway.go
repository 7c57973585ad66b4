package sessions

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"rockerboo/lsp-broker/broker"
	"rockerboo/lsp-broker/logger"
)

// Gateway accepts WebSocket connections from editors, registers each as a
// session, and decodes JSON editor commands (one per WebSocket message) into
// RoutingHandle calls, the adapted-for-the-server-side counterpart of the
// teacher's gorillaRWC/NewWebSocketLanguageClient client-side wiring.
type Gateway struct {
	routing  broker.RoutingHandle
	registry *Registry
	upgrader websocket.Upgrader

	mu        sync.Mutex
	nextSID   uint64
}

// NewGateway constructs a Gateway. registry is the SessionHandle the routing
// service was started with; the gateway is the only writer to it.
func NewGateway(routing broker.RoutingHandle, registry *Registry) *Gateway {
	return &Gateway{
		routing:  routing,
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the connection and runs its session loop until the
// socket closes.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("sessions: websocket upgrade failed: " + err.Error())
		return
	}
	defer conn.Close()

	sid := g.allocateSessionID()
	wsConn := &websocketConn{conn: conn}
	g.registry.Register(sid, wsConn, 64)
	defer func() {
		g.registry.Unregister(sid)
		g.routing.SessionLost(sid)
	}()

	// traceID is a correlation tag for this connection's log lines; it has
	// no bearing on routing, which addresses sessions solely by SessionID.
	traceID := uuid.NewString()
	logger.Info("sessions: session attached (trace=" + traceID + ")")
	g.readLoop(sid, conn)
}

func (g *Gateway) allocateSessionID() broker.SessionID {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextSID++
	return broker.SessionID(g.nextSID)
}

// editorCommand is the envelope decoded from each WebSocket message an
// editor sends.
type editorCommand struct {
	Type     string          `json:"type"`
	ServerID broker.ServerID `json:"serverId"`
	Command  string          `json:"command"`
	Args     []string        `json:"args"`
	Cwd      string          `json:"cwd"`
	Message  json.RawMessage `json:"message"`
	ID       *broker.RequestID `json:"id"`
	Method   string          `json:"method"`
	Params   json.RawMessage `json:"params"`
	Result   json.RawMessage `json:"result"`
	Error    *editorError    `json:"error"`
}

type editorError struct {
	Message string `json:"message"`
}

// editorReply is the envelope written back for request/response-shaped
// commands (startServer, request); events flow separately through
// Registry/Conn.
type editorReply struct {
	Type     string          `json:"type"`
	ID       *broker.RequestID `json:"id,omitempty"`
	ServerID broker.ServerID `json:"serverId,omitempty"`
	Result   json.RawMessage `json:"result,omitempty"`
	Error    string          `json:"error,omitempty"`
}

func (g *Gateway) readLoop(sid broker.SessionID, conn *websocket.Conn) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd editorCommand
		if err := json.Unmarshal(payload, &cmd); err != nil {
			logger.Warn("sessions: malformed editor command: " + err.Error())
			continue
		}
		g.handleCommand(sid, conn, cmd)
	}
}

func (g *Gateway) handleCommand(sid broker.SessionID, conn *websocket.Conn, cmd editorCommand) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch cmd.Type {
	case "startServer":
		serverID, err := g.routing.StartServer(ctx, sid, broker.LspServerConfig{
			Command: cmd.Command,
			Args:    cmd.Args,
			Cwd:     cmd.Cwd,
		})
		writeJSON(conn, editorReply{Type: "startServer", ServerID: serverID, ID: cmd.ID, Error: errString(err)})

	case "notify":
		if err := g.routing.LspSendNotif(ctx, sid, cmd.ServerID, cmd.Message); err != nil {
			logger.Warn("sessions: lsp notif rejected: " + err.Error())
		}

	case "request":
		id := broker.RequestID{}
		if cmd.ID != nil {
			id = *cmd.ID
		}
		result, err := g.routing.BeginC2s(ctx, sid, cmd.ServerID, broker.C2sRequest{
			ID:     id,
			Method: cmd.Method,
			Params: cmd.Params,
		}, 30*time.Second)
		reply := editorReply{Type: "response", ID: cmd.ID, ServerID: cmd.ServerID, Error: errString(err)}
		if err == nil {
			raw, merr := json.Marshal(result)
			if merr != nil {
				reply.Error = merr.Error()
			} else {
				reply.Result = raw
			}
		}
		writeJSON(conn, reply)

	case "s2cResponse":
		var id broker.RequestID
		if cmd.ID != nil {
			id = *cmd.ID
		}
		var result any
		if len(cmd.Result) > 0 {
			_ = json.Unmarshal(cmd.Result, &result)
		}
		var rpcErr error
		if cmd.Error != nil {
			rpcErr = errMessage(cmd.Error.Message)
		}
		g.routing.CompleteS2c(ctx, sid, cmd.ServerID, id, result, rpcErr)

	default:
		logger.Warn("sessions: unknown editor command type: " + cmd.Type)
	}
}

type errMessage string

func (e errMessage) Error() string { return string(e) }

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func writeJSON(conn *websocket.Conn, v any) {
	if err := conn.WriteJSON(v); err != nil {
		logger.Warn("sessions: write reply failed: " + err.Error())
	}
}

// websocketConn adapts *websocket.Conn to the Conn interface Registry
// expects for outbound event delivery, mirroring the teacher's gorillaRWC
// wrapper but writing discrete JSON text frames instead of a byte stream.
type websocketConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *websocketConn) WriteEvent(payload []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteMessage(websocket.TextMessage, payload)
}
