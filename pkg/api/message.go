// Package api defines the wire contract of the function host: the invocation
// envelope, the gRPC service descriptor, and the JSON codec both sides speak.
package api

// Message is the invocation envelope. The same shape is used for requests and
// responses: a response reuses the request's QOS, Topic, Timestamp and
// FunctionInvokeID with the handler's output in Payload.
type Message struct {
	QOS              uint32 `json:"qos,omitempty"`
	Topic            string `json:"topic,omitempty"`
	Timestamp        int64  `json:"timestamp,omitempty"` // milliseconds since epoch
	FunctionName     string `json:"functionName"`
	FunctionInvokeID string `json:"functionInvokeID,omitempty"`
	Payload          []byte `json:"payload,omitempty"`
}
