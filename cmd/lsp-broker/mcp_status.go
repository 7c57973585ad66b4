package main

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"rockerboo/lsp-broker/logger"
)

// statusPayload is the JSON shape returned by the broker_status tool: one
// entry per managed LSP server plus when the snapshot was taken.
type statusPayload struct {
	TakenAt time.Time          `json:"taken_at"`
	Servers []serverStatusJSON `json:"servers"`
}

type serverStatusJSON struct {
	ServerID      uint64 `json:"server_id"`
	Project       string `json:"project"`
	AttachedCount int    `json:"attached_sessions"`
	Leader        uint64 `json:"leader_session"`
	PendingS2c    int    `json:"pending_server_to_client"`
	PendingC2s    int    `json:"pending_client_to_server"`
}

// BrokerStatusTool reports which LSP servers the broker currently manages:
// how many editors are attached to each, which one is the leader, and how
// many requests are in flight in each direction. Useful for diagnosing a
// stuck editor without attaching a debugger to the broker process.
func BrokerStatusTool(tracker *statusTracker) (mcp.Tool, server.ToolHandlerFunc) {
	return mcp.NewTool("broker_status",
			mcp.WithDescription("Show which LSP servers lsp-broker currently manages, their attached sessions, leader, and in-flight request counts."),
			mcp.WithDestructiveHintAnnotation(false),
		), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			snap, err := tracker.snapshot(ctx)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}

			payload := statusPayload{TakenAt: time.Now(), Servers: make([]serverStatusJSON, 0, len(snap.Servers))}
			for _, s := range snap.Servers {
				payload.Servers = append(payload.Servers, serverStatusJSON{
					ServerID:      uint64(s.ServerID),
					Project:       s.Project.String(),
					AttachedCount: s.AttachedCount,
					Leader:        uint64(s.Leader),
					PendingS2c:    s.PendingS2c,
					PendingC2s:    s.PendingC2s,
				})
			}

			body, err := json.MarshalIndent(payload, "", "  ")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			logger.Debug("broker_status: reported status for " + strconv.Itoa(len(payload.Servers)) + " server(s)")
			return mcp.NewToolResultText(string(body)), nil
		}
}
