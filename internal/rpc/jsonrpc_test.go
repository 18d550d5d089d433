package rpc

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequest_IsNotification(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want bool
	}{
		{"numeric id", `{"jsonrpc":"2.0","method":"invoke","id":1}`, false},
		{"string id", `{"jsonrpc":"2.0","method":"invoke","id":"a"}`, false},
		{"missing id", `{"jsonrpc":"2.0","method":"emit"}`, true},
		{"null id", `{"jsonrpc":"2.0","method":"emit","id":null}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req Request
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &req))
			assert.Equal(t, tt.want, req.IsNotification())
		})
	}
}

func TestNewRequest(t *testing.T) {
	req, err := NewRequest(7, MethodInvoke, InvokeParams{Command: "hello_world", Args: json.RawMessage(`{"myName":"x"}`)})
	require.NoError(t, err)

	data, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","method":"invoke","id":7,"params":{"command":"hello_world","args":{"myName":"x"}}}`, string(data))
}

func TestResultNull(t *testing.T) {
	resp := Result(json.RawMessage(`3`), nil)

	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","result":null,"id":3}`, string(data))
}

func TestFailWithoutID(t *testing.T) {
	resp := Fail(nil, ParseError, "Parse error", nil)

	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","error":{"code":-32700,"message":"Parse error"},"id":null}`, string(data))
	assert.EqualError(t, resp.Error, "rpc error -32700: Parse error")
}

func TestEventNotification(t *testing.T) {
	n, err := Event(EventParams{Subscription: "s1", ID: "e1", Event: "demo-event", Payload: json.RawMessage(`"hi"`)})
	require.NoError(t, err)

	var in Incoming
	data, err := json.Marshal(n)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &in))

	assert.Equal(t, NotifyEvent, in.Method)
	assert.Empty(t, in.ID)

	var params EventParams
	require.NoError(t, json.Unmarshal(in.Params, &params))
	assert.Equal(t, "s1", params.Subscription)
	assert.Equal(t, "demo-event", params.Event)
	assert.JSONEq(t, `"hi"`, string(params.Payload))
}
