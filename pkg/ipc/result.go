package ipc

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Status is the discriminant of a Result.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Result is a two-variant envelope for commands that report failure as data
// instead of a transport error. On the wire it is either
// {"status":"ok","data":...} or {"status":"error","error":...}.
type Result[T, E any] struct {
	Status Status
	Data   T
	Error  E
}

// Ok returns a successful Result.
func Ok[T, E any](data T) Result[T, E] {
	return Result[T, E]{Status: StatusOK, Data: data}
}

// Fail returns a failed Result.
func Fail[T, E any](err E) Result[T, E] {
	return Result[T, E]{Status: StatusError, Error: err}
}

// IsOk reports whether r is the ok variant.
func (r Result[T, E]) IsOk() bool {
	return r.Status == StatusOK
}

// IsError reports whether r is the error variant.
func (r Result[T, E]) IsError() bool {
	return r.Status == StatusError
}

// Unwrap returns the data, the error value and whether r is ok.
func (r Result[T, E]) Unwrap() (T, E, bool) {
	return r.Data, r.Error, r.IsOk()
}

type okWire[T any] struct {
	Status Status `json:"status"`
	Data   T      `json:"data"`
}

type errorWire[E any] struct {
	Status Status `json:"status"`
	Error  E      `json:"error"`
}

// MarshalJSON encodes only the field belonging to the active variant.
func (r Result[T, E]) MarshalJSON() ([]byte, error) {
	switch r.Status {
	case StatusOK:
		return json.Marshal(okWire[T]{Status: StatusOK, Data: r.Data})
	case StatusError:
		return json.Marshal(errorWire[E]{Status: StatusError, Error: r.Error})
	default:
		return nil, fmt.Errorf("%w: result status %q", ErrShapeMismatch, r.Status)
	}
}

// UnmarshalJSON decodes either variant strictly: the envelope carries
// only the field of its variant, and that field decodes into T or E without
// unknown fields. Data may be omitted only when T is Void.
func (r *Result[T, E]) UnmarshalJSON(data []byte) error {
	var head struct {
		Status Status          `json:"status"`
		Data   json.RawMessage `json:"data"`
		Error  json.RawMessage `json:"error"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&head); err != nil {
		return fmt.Errorf("%w: result envelope: %v", ErrShapeMismatch, err)
	}

	var out Result[T, E]
	switch head.Status {
	case StatusOK:
		if head.Error != nil {
			return fmt.Errorf("%w: ok result carries an error field", ErrShapeMismatch)
		}
		v, err := decodeStrict[T](head.Data)
		if err != nil {
			return fmt.Errorf("%w: result data: %v", ErrShapeMismatch, err)
		}
		out = Ok[T, E](v)
	case StatusError:
		if head.Data != nil {
			return fmt.Errorf("%w: error result carries a data field", ErrShapeMismatch)
		}
		if head.Error == nil {
			return fmt.Errorf("%w: error result without error field", ErrShapeMismatch)
		}
		e, err := decodeStrict[E](head.Error)
		if err != nil {
			return fmt.Errorf("%w: result error: %v", ErrShapeMismatch, err)
		}
		out = Fail[T](e)
	default:
		return fmt.Errorf("%w: result status %q", ErrShapeMismatch, head.Status)
	}

	*r = out
	return nil
}
