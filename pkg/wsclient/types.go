package wsclient

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/telnet2/go-practice/go-ipcbind/internal/rpc"
)

// Options configures the client
type Options struct {
	// URL is the host endpoint (e.g., "ws://127.0.0.1:7420/ipc")
	URL string
	// Label names this window to the host. Sent as the label query parameter.
	Label string
	// Timeout for a single request (default: 30s)
	Timeout time.Duration
	// AutoReconnect enables automatic reconnection after the connection drops
	AutoReconnect bool
	// MaxReconnectAttempts limits reconnection attempts (default: 5)
	MaxReconnectAttempts int
	// ReconnectDelay is the initial delay between reconnection attempts (default: 1s)
	ReconnectDelay time.Duration
	// Logger receives connection lifecycle logs. The zero value discards them.
	Logger zerolog.Logger
}

func (o *Options) applyDefaults() {
	if o.Timeout == 0 {
		o.Timeout = 30 * time.Second
	}
	if o.MaxReconnectAttempts == 0 {
		o.MaxReconnectAttempts = 5
	}
	if o.ReconnectDelay == 0 {
		o.ReconnectDelay = time.Second
	}
}

// State represents the connection state
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

var (
	// ErrNotConnected is returned when no connection is available.
	ErrNotConnected = errors.New("not connected")
	// ErrConnectionLost fails requests pending when the connection drops.
	ErrConnectionLost = errors.New("connection lost")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("client closed")
	// ErrTimeout is returned when the host does not answer within Options.Timeout.
	ErrTimeout = errors.New("request timeout")

	// ErrCommandNotFound matches RPCErrors for unregistered commands.
	ErrCommandNotFound = errors.New("command not found")
	// ErrCommandFailed matches RPCErrors raised by command implementations.
	ErrCommandFailed = errors.New("command failed")
)

// RPCError is an error response from the host.
type RPCError struct {
	Method  string
	Code    int
	Message string
	Data    any
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	return fmt.Sprintf("JSON-RPC error [%d] in %s: %s", e.Code, e.Method, e.Message)
}

// Is maps host error codes to ErrCommandNotFound and ErrCommandFailed.
func (e *RPCError) Is(target error) bool {
	switch target {
	case ErrCommandNotFound:
		return e.Code == rpc.CommandNotFound
	case ErrCommandFailed:
		return e.Code == rpc.CommandFailed
	}
	return false
}
