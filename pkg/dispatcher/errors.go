package dispatcher

import (
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Kind enumerates the per-call failure modes. Every error leaving Dispatch is
// a *DispatchError carrying exactly one of these.
type Kind string

const (
	// KindFunctionNotFound: the request named a function that is not in the
	// registry. No handler was invoked.
	KindFunctionNotFound Kind = "FUNCTION_NOT_FOUND"
	// KindHandlerExecution: the handler returned an error or panicked. The
	// original error is wrapped, never swallowed.
	KindHandlerExecution Kind = "HANDLER_EXECUTION"
	// KindResponseEncoding: the handler's return value could not be
	// serialized into the response payload.
	KindResponseEncoding Kind = "RESPONSE_ENCODING"
)

// DispatchError is the uniform error kind for one failed invocation. It is
// isolated to the failing call: the serving loop and concurrent calls are
// unaffected.
type DispatchError struct {
	Kind     Kind
	Function string
	Err      error
}

func (e *DispatchError) Error() string {
	switch e.Kind {
	case KindFunctionNotFound:
		return fmt.Sprintf("function not found: %s", e.Function)
	case KindHandlerExecution:
		return fmt.Sprintf("function %s: handler failed: %v", e.Function, e.Err)
	case KindResponseEncoding:
		return fmt.Sprintf("function %s: could not encode result: %v", e.Function, e.Err)
	default:
		return fmt.Sprintf("function %s: %v", e.Function, e.Err)
	}
}

func (e *DispatchError) Unwrap() error { return e.Err }

// GRPCStatus maps the error kind to a structured status code, so transports
// surface distinguishable codes rather than message text alone.
func (e *DispatchError) GRPCStatus() *status.Status {
	switch e.Kind {
	case KindFunctionNotFound:
		return status.New(codes.NotFound, e.Error())
	default:
		return status.New(codes.Internal, e.Error())
	}
}
