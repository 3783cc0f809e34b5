// Package dispatcher routes one invocation request to its registered handler
// and marshals the payload in both directions.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/nats-io/nuid"

	"github.com/fnhost/fnhost/pkg/api"
	"github.com/fnhost/fnhost/pkg/function"
	"github.com/fnhost/fnhost/pkg/registry"
)

const logPrefix = "dispatcher:dispatch"

// Dispatcher is the single per-call entry point used by every transport. It
// owns all per-call transients; the registry it reads is shared and
// read-only. Handlers receive absolute code directories at registration, so
// dispatch never touches the process working directory and concurrent calls
// cannot race on it.
type Dispatcher struct {
	registry *registry.Registry
}

// NewDispatcher creates a Dispatcher over a fully loaded registry.
func NewDispatcher(reg *registry.Registry) *Dispatcher {
	return &Dispatcher{registry: reg}
}

// Dispatch executes one invocation. The returned error, when non-nil, is
// always a *DispatchError; it terminates this call only and never the serving
// loop. ctx is accepted for transport-level cancellation; handler execution
// itself is synchronous and owns no timeout here.
func (d *Dispatcher) Dispatch(ctx context.Context, req *api.Message) (*api.Message, error) {
	h, ok := d.registry.Lookup(req.FunctionName)
	if !ok {
		derr := &DispatchError{Kind: KindFunctionNotFound, Function: req.FunctionName}
		slog.Warn(fmt.Sprintf("%s - %v", logPrefix, derr))
		return nil, derr
	}

	invokeID := req.FunctionInvokeID
	if invokeID == "" {
		invokeID = nuid.Next()
	}

	execCtx := &function.ExecutionContext{
		QOS:              req.QOS,
		Topic:            req.Topic,
		TimestampMS:      req.Timestamp,
		FunctionName:     req.FunctionName,
		FunctionInvokeID: invokeID,
		InvokeID:         invokeID,
	}

	msg := decodePayload(req.Payload)

	result, err := invoke(h, msg, execCtx)
	if err != nil {
		derr := &DispatchError{Kind: KindHandlerExecution, Function: req.FunctionName, Err: err}
		slog.Error(fmt.Sprintf("%s - function=%s invokeID=%s handler failed: %v",
			logPrefix, req.FunctionName, invokeID, err))
		return nil, derr
	}

	payload, err := encodeResult(result)
	if err != nil {
		derr := &DispatchError{Kind: KindResponseEncoding, Function: req.FunctionName, Err: err}
		slog.Error(fmt.Sprintf("%s - function=%s invokeID=%s result encode failed: %v",
			logPrefix, req.FunctionName, invokeID, err))
		return nil, derr
	}

	return &api.Message{
		QOS:              req.QOS,
		Topic:            req.Topic,
		Timestamp:        req.Timestamp,
		FunctionName:     req.FunctionName,
		FunctionInvokeID: invokeID,
		Payload:          payload,
	}, nil
}

// invoke runs the handler with panic isolation: a panicking handler fails its
// own call, with the stack logged, instead of taking the process down.
func invoke(h function.Handler, msg any, execCtx *function.ExecutionContext) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error(fmt.Sprintf("%s - function=%s invokeID=%s handler panic: %v\n%s",
				logPrefix, execCtx.FunctionName, execCtx.InvokeID, r, debug.Stack()))
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.Invoke(msg, execCtx)
}

// decodePayload is opportunistic, never an error: valid JSON is decoded, an
// empty payload becomes an empty JSON object, anything else passes through as
// raw bytes.
func decodePayload(payload []byte) any {
	if len(payload) == 0 {
		return map[string]any{}
	}
	var v any
	if err := json.Unmarshal(payload, &v); err != nil {
		return payload
	}
	return v
}

// encodeResult renders the handler's return value: nil becomes empty bytes,
// raw bytes pass through unchanged, everything else is JSON-encoded as UTF-8.
func encodeResult(result any) ([]byte, error) {
	switch v := result.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	default:
		return json.Marshal(v)
	}
}
