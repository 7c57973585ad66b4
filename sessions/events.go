// Package sessions implements broker.SessionHandle: a registry of attached
// editor sessions and the default WebSocket transport that feeds it.
package sessions

import (
	"encoding/json"

	"rockerboo/lsp-broker/broker"
)

// wireEvent is the JSON envelope an Event is encoded to before being
// written to a session's connection, one JSON object per WebSocket text
// message.
type wireEvent struct {
	Kind        string          `json:"kind"`
	ServerID    broker.ServerID `json:"serverId"`
	Message     string          `json:"message,omitempty"`
	DocID       *uint64         `json:"docId,omitempty"`
	URI         string          `json:"uri,omitempty"`
	Version     *uint32         `json:"version,omitempty"`
	Diagnostics json.RawMessage `json:"diagnostics,omitempty"`
	Status      string          `json:"status,omitempty"`
}

func encodeEvent(e broker.Event) ([]byte, error) {
	w := wireEvent{
		ServerID: e.ServerID,
		Message:  e.Message,
		DocID:    e.DocID,
		URI:      e.URI,
		Version:  e.Version,
	}
	switch e.Kind {
	case broker.EventLspRequest:
		w.Kind = "lspRequest"
	case broker.EventLspMessage:
		w.Kind = "lspMessage"
	case broker.EventLspDiagnostics:
		w.Kind = "lspDiagnostics"
		if e.Diagnostics != "" {
			w.Diagnostics = json.RawMessage(e.Diagnostics)
		}
	case broker.EventLspStatus:
		w.Kind = "lspStatus"
		w.Status = e.Status.String()
	}
	return json.Marshal(w)
}
