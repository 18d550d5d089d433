// Package rpc defines the JSON-RPC 2.0 messages exchanged between IPC
// clients and the host server over WebSocket.
package rpc

import (
	"encoding/json"
	"fmt"
)

// Version is the only supported protocol version.
const Version = "2.0"

// Methods accepted by the host.
const (
	MethodInvoke   = "invoke"
	MethodListen   = "listen"
	MethodUnlisten = "unlisten"
	MethodEmit     = "emit"
)

// NotifyEvent is the method of server-to-client event notifications.
const NotifyEvent = "event"

// Error codes
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603

	// CommandFailed reports an error returned by a command implementation.
	CommandFailed = -32000
	// CommandNotFound reports an invoke of an unregistered command.
	CommandNotFound = -32001
)

// Request represents a JSON-RPC 2.0 request. A request without an ID is a
// notification and gets no response.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

// IsNotification reports whether the request expects no response.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0 || string(r.ID) == "null"
}

// Response represents a JSON-RPC 2.0 response
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

// Error represents a JSON-RPC 2.0 error
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Notification is a server-to-client message without an ID.
type Notification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Incoming is any message a client reads: a response when ID is set,
// a notification when Method is set.
type Incoming struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// InvokeParams are the parameters of the invoke method.
type InvokeParams struct {
	Command string          `json:"command"`
	Args    json.RawMessage `json:"args,omitempty"`
}

// ListenParams are the parameters of the listen method. ID is chosen by the
// client and echoed in every event notification for the subscription.
type ListenParams struct {
	ID     string `json:"id"`
	Event  string `json:"event"`
	Window string `json:"windowLabel,omitempty"`
	Once   bool   `json:"once,omitempty"`
}

// UnlistenParams are the parameters of the unlisten method.
type UnlistenParams struct {
	ID string `json:"id"`
}

// EmitParams are the parameters of the emit method. An empty Window broadcasts.
type EmitParams struct {
	Event   string          `json:"event"`
	Window  string          `json:"windowLabel,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// EventParams are the parameters of an event notification.
type EventParams struct {
	Subscription string          `json:"subscription"`
	ID           string          `json:"id"`
	Event        string          `json:"event"`
	Window       string          `json:"windowLabel,omitempty"`
	Payload      json.RawMessage `json:"payload"`
}

// NewRequest builds a request with a numeric ID and marshalled params.
func NewRequest(id uint64, method string, params any) (*Request, error) {
	req := &Request{
		JSONRPC: Version,
		Method:  method,
		ID:      json.RawMessage(fmt.Sprintf("%d", id)),
	}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal %s params: %w", method, err)
		}
		req.Params = data
	}
	return req, nil
}

// Result builds a success response.
func Result(id json.RawMessage, result any) *Response {
	data, err := json.Marshal(result)
	if err != nil {
		return Fail(id, InternalError, "Failed to encode result", err.Error())
	}
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	return &Response{JSONRPC: Version, Result: data, ID: nullID(id)}
}

// Fail builds an error response.
func Fail(id json.RawMessage, code int, message string, data any) *Response {
	return &Response{
		JSONRPC: Version,
		Error:   &Error{Code: code, Message: message, Data: data},
		ID:      nullID(id),
	}
}

// Event builds an event notification.
func Event(params EventParams) (*Notification, error) {
	data, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	return &Notification{JSONRPC: Version, Method: NotifyEvent, Params: data}, nil
}

func nullID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return json.RawMessage("null")
	}
	return id
}
