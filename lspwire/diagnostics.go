package lspwire

import "encoding/json"

// PublishDiagnosticsParams is the params payload of a
// textDocument/publishDiagnostics notification, trimmed to the fields the
// broker needs to cache and replay: it never inspects the diagnostics
// themselves, only the URI/version they're attached to.
type PublishDiagnosticsParams struct {
	URI         string          `json:"uri"`
	Version     *int64          `json:"version"`
	Diagnostics json.RawMessage `json:"diagnostics"`
}

type publishDiagnosticsMessage struct {
	Method string                   `json:"method"`
	Params PublishDiagnosticsParams `json:"params"`
}

// ParsePublishDiagnostics reports whether raw is a
// textDocument/publishDiagnostics notification and, if so, its params.
func ParsePublishDiagnostics(raw []byte) (PublishDiagnosticsParams, bool) {
	var msg publishDiagnosticsMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return PublishDiagnosticsParams{}, false
	}
	if msg.Method != "textDocument/publishDiagnostics" || msg.Params.URI == "" {
		return PublishDiagnosticsParams{}, false
	}
	return msg.Params, true
}
