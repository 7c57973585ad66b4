package sessions

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"rockerboo/lsp-broker/broker"
	"rockerboo/lsp-broker/knowledge"
	"rockerboo/lsp-broker/launcher"
)

func dialGateway(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestGateway_StartServerRoundTrips(t *testing.T) {
	registry := NewRegistry()
	stub := &launcher.Stub{}
	handle := broker.StartRoutingService(registry, knowledge.New(), stub, time.Hour)
	gateway := NewGateway(handle, registry)

	srv := httptest.NewServer(gateway)
	t.Cleanup(srv.Close)
	conn := dialGateway(t, srv)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":    "startServer",
		"command": "gopls",
		"args":    []string{"serve"},
		"cwd":     "/work/proj",
	}))

	var reply map[string]any
	require.NoError(t, conn.ReadJSON(&reply))
	assert200(t, reply)
	require.Len(t, stub.Instances(), 1)
}

func TestGateway_NotifyForwardsToLaunchedInstance(t *testing.T) {
	registry := NewRegistry()
	stub := &launcher.Stub{}
	handle := broker.StartRoutingService(registry, knowledge.New(), stub, time.Hour)
	gateway := NewGateway(handle, registry)

	srv := httptest.NewServer(gateway)
	t.Cleanup(srv.Close)
	conn := dialGateway(t, srv)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":    "startServer",
		"command": "gopls",
		"cwd":     "/work/proj",
	}))
	var started map[string]any
	require.NoError(t, conn.ReadJSON(&started))
	serverID := started["serverId"]

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":     "notify",
		"serverId": serverID,
		"message":  map[string]any{"method": "initialized", "params": map[string]any{}},
	}))

	require.Eventually(t, func() bool {
		instances := stub.Instances()
		return len(instances) == 1 && len(instances[0].Notifications) == 1
	}, time.Second, 10*time.Millisecond)
}

func assert200(t *testing.T, reply map[string]any) {
	t.Helper()
	if errMsg, ok := reply["error"].(string); ok && errMsg != "" {
		t.Fatalf("gateway returned error: %s", errMsg)
	}
}
