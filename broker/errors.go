package broker

import "github.com/sourcegraph/jsonrpc2"

// ErrorCode is the broker-facing error taxonomy from the routing protocol.
// It is distinct from the LSP-native jsonrpc2.Error values used for
// S2C cancellations and server-exit teardown, which waiters see directly.
type ErrorCode int

const (
	// ErrServerNotFound means the given ServerID is absent, or the calling
	// session is not attached to it.
	ErrServerNotFound ErrorCode = iota
	// ErrInvalidArgs means a notification or request payload failed to parse.
	ErrInvalidArgs
	// ErrNotDocOwner means a text-sync write was rejected because another
	// session owns the document.
	ErrNotDocOwner
	// ErrRequestNotFound means a pending-table lookup missed on a
	// response/timeout/send-failed path.
	ErrRequestNotFound
	// ErrTimeout means a client-to-server request exceeded its deadline.
	ErrTimeout
	// ErrInternal covers launcher failures, closed channels, and
	// serialization errors in places that should never fail.
	ErrInternal
)

func (c ErrorCode) String() string {
	switch c {
	case ErrServerNotFound:
		return "ServerNotFound"
	case ErrInvalidArgs:
		return "InvalidArgs"
	case ErrNotDocOwner:
		return "NotDocOwner"
	case ErrRequestNotFound:
		return "RequestNotFound"
	case ErrTimeout:
		return "Timeout"
	case ErrInternal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// Error is a broker-facing error carrying one of the ErrorCode values.
type Error struct {
	Code ErrorCode
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func newErr(code ErrorCode, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

var (
	errServerNotFound = newErr(ErrServerNotFound, "server not found")
	errNotAttached    = newErr(ErrServerNotFound, "session not attached to server")
	errInternal       = newErr(ErrInternal, "internal error")
)

// lspRequestCancelled is LSP's REQUEST_CANCELLED error code (-32800), which
// jsonrpc2's base error-code constants do not include.
const lspRequestCancelled = -32800

// CancelledError returns the LSP REQUEST_CANCELLED response error.
func CancelledError(reason string) *jsonrpc2.Error {
	return &jsonrpc2.Error{Code: lspRequestCancelled, Message: reason}
}

// InternalLspError returns an LSP INTERNAL_ERROR response error.
func InternalLspError(reason string) *jsonrpc2.Error {
	return &jsonrpc2.Error{Code: jsonrpc2.CodeInternalError, Message: reason}
}

// MethodNotFoundError returns an LSP METHOD_NOT_FOUND response error.
func MethodNotFoundError(reason string) *jsonrpc2.Error {
	return &jsonrpc2.Error{Code: jsonrpc2.CodeMethodNotFound, Message: reason}
}
