package launcher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sourcegraph/jsonrpc2"

	"rockerboo/lsp-broker/broker"
	"rockerboo/lsp-broker/logger"
	"rockerboo/lsp-broker/lspwire"
)

// s2cTimeout bounds how long a server-initiated request waits for its
// delegated leader session to answer. The broker never blocks the LSP
// process indefinitely on a slow or vanished editor.
const s2cTimeout = 30 * time.Second

// dispatchServerRequest handles one inbound frame that carries both an id
// and a method: a request the server expects an answer to, as opposed to a
// notification. The broker does not interpret what the request means — it
// delegates the raw body to the server's current leader session through
// BeginS2c and writes back whatever the session answers with, the same
// pattern the teacher's ClientHandler.Handle uses to switch over inbound
// method names, generalized here to a single catch-all delegation instead
// of a per-method case list.
func (p *process) dispatchServerRequest(id broker.RequestID, body []byte) {
	tx := make(chan broker.S2cResult, 1)
	ctx, cancel := context.WithTimeout(context.Background(), s2cTimeout)
	defer cancel()

	if err := p.handle.BeginS2c(ctx, p.serverID, id, body, tx); err != nil {
		logger.Warn("launcher: begin s2c: " + err.Error())
		p.replyError(id, broker.InternalLspError(err.Error()))
		return
	}

	select {
	case res := <-tx:
		if res.Err != nil {
			p.replyError(id, res.Err)
			return
		}
		p.replyResult(id, res.Result)
	case <-ctx.Done():
		p.handle.CancelS2c(p.serverID, id)
		p.replyError(id, broker.CancelledError("timed out waiting for editor"))
	}
}

func (p *process) replyResult(id broker.RequestID, result any) {
	raw, err := json.Marshal(result)
	if err != nil {
		logger.Warn("launcher: marshal s2c result: " + err.Error())
		return
	}
	wireID := id
	if err := p.write(lspwire.Message{JSONRPC: "2.0", ID: &wireID, Result: raw}); err != nil {
		logger.Warn("launcher: write s2c response: " + err.Error())
	}
}

func (p *process) replyError(id broker.RequestID, rpcErr *jsonrpc2.Error) {
	wireID := id
	msg := lspwire.Message{JSONRPC: "2.0", ID: &wireID, Error: rpcErr}
	if err := p.write(msg); err != nil {
		logger.Warn("launcher: write s2c error response: " + err.Error())
	}
}
