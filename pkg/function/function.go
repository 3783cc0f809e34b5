// Package function defines the contract user handler code satisfies. Any
// value exposing Initialize and Invoke is a valid handler, regardless of how
// it was produced: a compiled-in factory, a Go plugin, or anything else a
// registry.Resolver can construct.
package function

// ExecutionContext is the read-only per-call view a handler receives. It is
// derived from the request envelope and has no identity beyond one call.
type ExecutionContext struct {
	QOS          uint32 `json:"messageQOS"`
	Topic        string `json:"messageTopic"`
	TimestampMS  int64  `json:"messageTimestamp"`
	FunctionName string `json:"functionName"`
	// FunctionInvokeID identifies one invocation. InvokeID carries the same
	// value under the older field name; callers correlating asynchronous
	// transports may read either.
	FunctionInvokeID string `json:"functionInvokeID"`
	InvokeID         string `json:"invokeid"`
}

// Handler is the capability every registered function exposes.
//
// Initialize is called exactly once at registration with the function's code
// directory, resolved to an absolute path. Invoke is called once per matching
// request; it must be safe to run concurrently with invocations of other
// handlers, but no synchronization is imposed between concurrent invocations
// of the same instance.
//
// msg is either a decoded JSON value or, when the payload is not valid JSON,
// the raw []byte unchanged. The return value may be nil (empty response),
// []byte (passed through unchanged), or any JSON-serializable value.
type Handler interface {
	Initialize(codeDir string) error
	Invoke(msg any, ctx *ExecutionContext) (any, error)
}

// Versioner is optionally implemented by handlers that report a semantic
// version, checked against the function's compat constraint at load time.
type Versioner interface {
	Version() string
}

// Factory constructs a fresh handler instance.
type Factory func() Handler

// Func adapts a bare function into a Handler with a no-op Initialize.
type Func func(msg any, ctx *ExecutionContext) (any, error)

func (f Func) Initialize(string) error { return nil }

func (f Func) Invoke(msg any, ctx *ExecutionContext) (any, error) { return f(msg, ctx) }
