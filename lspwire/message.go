// Package lspwire implements the Content-Length-framed JSON-RPC codec LSP
// servers speak over stdio, independent of any particular transport.
package lspwire

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sourcegraph/jsonrpc2"
)

// Message is the union of request, response, and notification shapes a
// server or client can send. Exactly one of Result/Error is set on a
// response; Method is empty on a response.
type Message struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      *jsonrpc2.ID     `json:"id,omitempty"`
	Method  string           `json:"method,omitempty"`
	Params  json.RawMessage  `json:"params,omitempty"`
	Result  json.RawMessage  `json:"result,omitempty"`
	Error   *jsonrpc2.Error  `json:"error,omitempty"`
}

// IsResponse reports whether msg is shaped like a response: it carries an
// id and no method. Whether the id is pending is for the caller to check.
func (m Message) IsResponse() bool {
	return m.ID != nil && m.Method == ""
}

// IsNotification reports whether msg is a fire-and-forget server message.
func (m Message) IsNotification() bool {
	return m.ID == nil && m.Method != ""
}

// WriteMessage encodes v as JSON and frames it with an LSP Content-Length
// header before writing it to w.
func WriteMessage(w io.Writer, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("lspwire: marshal message: %w", err)
	}
	if _, err := fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(body)); err != nil {
		return fmt.Errorf("lspwire: write header: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("lspwire: write body: %w", err)
	}
	return nil
}

// ReadFrame reads one Content-Length-framed message body from r, skipping
// any headers other than Content-Length (e.g. Content-Type, which some
// servers send and which the LSP spec makes optional).
func ReadFrame(r *bufio.Reader) ([]byte, error) {
	contentLength := -1

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		if name, value, ok := strings.Cut(line, ":"); ok && strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			n, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil {
				return nil, fmt.Errorf("lspwire: invalid Content-Length: %w", err)
			}
			contentLength = n
		}
	}

	if contentLength < 0 {
		return nil, fmt.Errorf("lspwire: message with no Content-Length header")
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}
