package api

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes dispatch failures for handling.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	// KindNetworkUnreachable means no connection could be established.
	KindNetworkUnreachable
	// KindTimeout means the per-call deadline elapsed. The transport-level
	// request is abandoned locally, not cancelled server-side.
	KindTimeout
	// KindHTTP means the server answered with a non-success status.
	KindHTTP
	// KindMalformedResponse means a success status carried a body that
	// failed schema validation.
	KindMalformedResponse
)

// String returns the kind as a short lowercase label for logs.
func (k ErrorKind) String() string {
	switch k {
	case KindNetworkUnreachable:
		return "network_unreachable"
	case KindTimeout:
		return "timeout"
	case KindHTTP:
		return "http_error"
	case KindMalformedResponse:
		return "malformed_response"
	default:
		return "unknown"
	}
}

// DispatchError is the classified outcome of a failed dispatch.
type DispatchError struct {
	Kind   ErrorKind
	Status int    // set for KindHTTP
	Detail string // server-supplied detail, if any
	Cause  error
}

func (e *DispatchError) Error() string {
	msg := "dispatch failed: " + e.Kind.String()
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *DispatchError) Unwrap() error {
	return e.Cause
}

// AsDispatchError returns the classified error, or a KindUnknown wrapper
// when err did not originate from the dispatcher.
func AsDispatchError(err error) *DispatchError {
	var de *DispatchError
	if errors.As(err, &de) {
		return de
	}
	return &DispatchError{Kind: KindUnknown, Cause: err}
}
