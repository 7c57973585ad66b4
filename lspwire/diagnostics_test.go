package lspwire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePublishDiagnostics_ExtractsParams(t *testing.T) {
	raw := []byte(`{"jsonrpc":"2.0","method":"textDocument/publishDiagnostics","params":{"uri":"file:///a.go","version":3,"diagnostics":[{"message":"x"}]}}`)

	params, ok := ParsePublishDiagnostics(raw)
	require.True(t, ok)
	assert.Equal(t, "file:///a.go", params.URI)
	require.NotNil(t, params.Version)
	assert.EqualValues(t, 3, *params.Version)
}

func TestParsePublishDiagnostics_RejectsOtherMethods(t *testing.T) {
	raw := []byte(`{"jsonrpc":"2.0","method":"window/logMessage","params":{"uri":"file:///a.go"}}`)
	_, ok := ParsePublishDiagnostics(raw)
	assert.False(t, ok)
}

func TestParsePublishDiagnostics_RejectsMalformedJSON(t *testing.T) {
	_, ok := ParsePublishDiagnostics([]byte(`not json`))
	assert.False(t, ok)
}
