// Package launcher implements broker.LspLauncher by spawning real LSP
// server processes and speaking Content-Length-framed JSON-RPC to them over
// stdio.
package launcher

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"rockerboo/lsp-broker/broker"
	"rockerboo/lsp-broker/logger"
	"rockerboo/lsp-broker/lspwire"
)

// process is a broker.LspInstance backed by one running LSP server. It owns
// the server's stdin/stdout and the request/response correlation table for
// the client-to-server direction; server-to-client traffic (requests and
// notifications the server initiates) is parsed here and handed back to the
// routing actor through handle.
type process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[broker.RequestID]chan *broker.LspResponse
	closed  bool

	handle   broker.RoutingHandle
	serverID broker.ServerID
}

// Start launches command with args in cwd, wires its stdio to the
// Content-Length framing the LSP protocol uses, and begins reading its
// output on a background goroutine. It returns once the process has been
// spawned; it does not wait for the server's initialize handshake, which is
// the caller's responsibility to drive like any other request.
func Start(handle broker.RoutingHandle, serverID broker.ServerID, config broker.LspServerConfig) (broker.LspInstance, error) {
	cmd := exec.Command(config.Command, config.Args...)
	if config.Cwd != "" {
		cmd.Dir = config.Cwd
	}
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("launcher: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("launcher: stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("launcher: start %s: %w", config.Command, err)
	}

	p := &process{
		cmd:      cmd,
		stdin:    stdin,
		pending:  make(map[broker.RequestID]chan *broker.LspResponse),
		handle:   handle,
		serverID: serverID,
	}

	go p.readLoop(stdout)
	go p.waitExit()

	return p, nil
}

// SendNotification writes a fire-and-forget message. A write failure is
// returned to the caller; the routing actor only logs it.
func (p *process) SendNotification(method string, params any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("launcher: marshal notification params: %w", err)
	}
	msg := lspwire.Message{JSONRPC: "2.0", Method: method, Params: raw}
	return p.write(msg)
}

// SendRequest writes a request carrying id and registers a pending entry for
// its eventual response.
func (p *process) SendRequest(id broker.RequestID, method string, params any) (<-chan *broker.LspResponse, bool) {
	raw, err := json.Marshal(params)
	if err != nil {
		logger.Warn("launcher: marshal request params: " + err.Error())
		return nil, false
	}

	ch := make(chan *broker.LspResponse, 1)
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, false
	}
	p.pending[id] = ch
	p.mu.Unlock()

	wireID := id
	msg := lspwire.Message{JSONRPC: "2.0", ID: &wireID, Method: method, Params: raw}
	if err := p.write(msg); err != nil {
		p.mu.Lock()
		delete(p.pending, id)
		p.mu.Unlock()
		logger.Warn("launcher: send request failed: " + err.Error())
		return nil, false
	}
	return ch, true
}

// Terminate kills the underlying process. Safe to call more than once.
func (p *process) Terminate() {
	p.mu.Lock()
	p.closed = true
	for id, ch := range p.pending {
		close(ch)
		delete(p.pending, id)
	}
	p.mu.Unlock()

	p.stdin.Close()
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
}

func (p *process) write(msg lspwire.Message) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return lspwire.WriteMessage(p.stdin, msg)
}

// readLoop parses Content-Length-framed messages off stdout until the pipe
// closes, dispatching each to the response-correlation table or onward to
// the routing actor as a server-initiated notification/request.
func (p *process) readLoop(stdout io.ReadCloser) {
	defer stdout.Close()
	r := bufio.NewReaderSize(stdout, 64*1024)

	for {
		body, err := lspwire.ReadFrame(r)
		if err != nil {
			if err != io.EOF {
				logger.Warn("launcher: read frame: " + err.Error())
			}
			break
		}
		p.dispatch(body)
	}
}

func (p *process) dispatch(body []byte) {
	var msg lspwire.Message
	if err := json.Unmarshal(body, &msg); err != nil {
		logger.Warn("launcher: malformed message from lsp server: " + err.Error())
		return
	}

	switch {
	case msg.IsResponse():
		p.completeResponse(msg)
	case msg.ID != nil && msg.Method != "":
		// A server-initiated request: it needs an answer, so it is routed
		// through BeginS2c rather than forwarded as a notification.
		p.dispatchServerRequest(*msg.ID, body)
	default:
		// A notification. The broker does not interpret LSP semantics
		// beyond text-sync and publishDiagnostics, both of which routing.go
		// handles from the raw bytes, so it is forwarded verbatim.
		p.handle.ServerNotif(p.serverID, body)
	}
}

func (p *process) completeResponse(msg lspwire.Message) {
	p.mu.Lock()
	ch, ok := p.pending[*msg.ID]
	if ok {
		delete(p.pending, *msg.ID)
	}
	p.mu.Unlock()
	if !ok {
		return
	}

	resp := &broker.LspResponse{ID: *msg.ID}
	if msg.Error != nil {
		resp.Err = fmt.Errorf("%s", msg.Error.Message)
	} else {
		var result any
		if len(msg.Result) > 0 {
			if err := json.Unmarshal(msg.Result, &result); err != nil {
				resp.Err = fmt.Errorf("launcher: unmarshal result: %w", err)
			} else {
				resp.Result = result
			}
		}
	}
	ch <- resp
}

func (p *process) waitExit() {
	err := p.cmd.Wait()
	p.mu.Lock()
	p.closed = true
	for id, ch := range p.pending {
		close(ch)
		delete(p.pending, id)
	}
	p.mu.Unlock()

	crashed := err != nil
	p.handle.ServerExited(p.serverID, crashed)
}
