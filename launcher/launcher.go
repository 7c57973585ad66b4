package launcher

import "rockerboo/lsp-broker/broker"

// ProcessLauncher is the production broker.LspLauncher: every Launch call
// spawns a real OS process for the given command.
type ProcessLauncher struct{}

// NewProcessLauncher returns a launcher with no state of its own; the
// routing service is the sole owner of server lifecycle bookkeeping.
func NewProcessLauncher() ProcessLauncher {
	return ProcessLauncher{}
}

func (ProcessLauncher) Launch(handle broker.RoutingHandle, serverID broker.ServerID, config broker.LspServerConfig, sid broker.SessionID) (broker.LspInstance, error) {
	return Start(handle, serverID, config)
}
