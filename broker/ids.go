// Package broker implements the routing service: a single-actor state
// machine that deduplicates LSP server instances per project, multiplexes
// editor sessions onto them, arbitrates document ownership, elects a leader
// session for server-initiated requests, and manages process lifecycle with
// idle-lease shutdown.
package broker

import (
	"strconv"
	"strings"

	"github.com/sourcegraph/jsonrpc2"
)

// SessionID identifies one attached editor session. It is opaque but totally
// ordered; the leader of a server is always min(attached).
type SessionID uint64

// ServerID identifies one live LSP server instance, assigned monotonically by
// the routing service.
type ServerID uint64

// RequestID is either an integer or a string, matching LSP JSON-RPC's id
// field. jsonrpc2.ID already expresses exactly that duality, so it is reused
// directly rather than re-declared.
type RequestID = jsonrpc2.ID

// WireRequestID formats the broker-minted id used on the LSP-server side of a
// client-to-server request: "b:{server_id}:{seq}". It is always a string id,
// which can never collide with an editor-chosen integer id.
func WireRequestID(server ServerID, seq uint64) RequestID {
	return RequestID{Str: "b:" + strconv.FormatUint(uint64(server), 10) + ":" + strconv.FormatUint(seq, 10), IsString: true}
}

// LspServerConfig is the launch configuration for one LSP server process:
// command, arguments, and working directory identify the project.
// InitializationOptions is carried along but is not part of the project key,
// and neither the broker nor the launcher sends it to the server.
type LspServerConfig struct {
	Command               string
	Args                  []string
	Cwd                   string
	InitializationOptions map[string]any
}

// ProjectKey is the canonical fingerprint of an LSP configuration, used to
// deduplicate server instances: two configs that launch the same command
// with the same arguments in the same directory share one server.
type ProjectKey struct {
	command string
	args    string
	cwd     string
}

// NewProjectKey computes the fingerprint for a config.
func NewProjectKey(cfg LspServerConfig) ProjectKey {
	return ProjectKey{
		command: cfg.Command,
		args:    strings.Join(cfg.Args, "\x00"),
		cwd:     cfg.Cwd,
	}
}

// String renders a ProjectKey for logging and introspection tooling: the
// working directory identifies a project to a human far better than the
// full fingerprint does.
func (k ProjectKey) String() string {
	if k.cwd != "" {
		return k.cwd
	}
	return k.command
}
