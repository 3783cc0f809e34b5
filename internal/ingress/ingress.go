// Package ingress feeds broker messages into the dispatcher. Each registered
// function gets a subscription on <prefix>.<name>; when a message carries a
// reply subject, the invocation result is published back to it.
package ingress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nuid"

	"github.com/fnhost/fnhost/internal/config"
	"github.com/fnhost/fnhost/internal/metrics"
	"github.com/fnhost/fnhost/pkg/api"
	"github.com/fnhost/fnhost/pkg/dispatcher"
)

const logPrefix = "ingress:ingress"

const defaultPrefix = "fn"

// queueGroup makes multiple instances of the same service share subjects
// instead of each receiving every message.
const queueGroup = "fnhost"

// Reply is the envelope published to a message's reply subject.
type Reply struct {
	OK      bool         `json:"ok"`
	Message *api.Message `json:"message,omitempty"`
	Code    string       `json:"code,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// Ingress holds the broker connection and its per-function subscriptions.
type Ingress struct {
	nc   *nats.Conn
	subs []*nats.Subscription
}

// Start connects to the broker and subscribes one subject per function name.
// The dispatcher it hands messages to is the same one the RPC surface uses.
func Start(cfg config.BrokerConfig, instanceName string, names []string, disp *dispatcher.Dispatcher) (*Ingress, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name(instanceName),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(60),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn(fmt.Sprintf("%s - broker disconnected: %v", logPrefix, err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info(fmt.Sprintf("%s - broker reconnected to %s", logPrefix, nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%s - connect to broker at %s: %w", logPrefix, cfg.URL, err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}

	in := &Ingress{nc: nc}
	for _, name := range names {
		name := name
		subject := prefix + "." + name
		sub, err := nc.QueueSubscribe(subject, queueGroup, func(msg *nats.Msg) {
			in.handle(name, msg, disp)
		})
		if err != nil {
			in.Close()
			return nil, fmt.Errorf("%s - subscribe to %s: %w", logPrefix, subject, err)
		}
		in.subs = append(in.subs, sub)
		slog.Info(fmt.Sprintf("%s - subscribed to %s", logPrefix, subject))
	}
	return in, nil
}

func (in *Ingress) handle(name string, msg *nats.Msg, disp *dispatcher.Dispatcher) {
	req := &api.Message{
		Topic:            msg.Subject,
		Timestamp:        time.Now().UnixMilli(),
		FunctionName:     name,
		FunctionInvokeID: nuid.Next(),
		Payload:          msg.Data,
	}

	start := time.Now()
	resp, err := disp.Dispatch(context.Background(), req)

	outcome := "ok"
	reply := Reply{OK: true, Message: resp}
	if err != nil {
		var derr *dispatcher.DispatchError
		if errors.As(err, &derr) {
			outcome = string(derr.Kind)
			reply = Reply{OK: false, Code: string(derr.Kind), Error: derr.Error()}
		} else {
			outcome = "error"
			reply = Reply{OK: false, Error: err.Error()}
		}
	}
	metrics.ObserveInvocation(name, outcome, time.Since(start))

	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(reply)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - encode reply for %s: %v", logPrefix, msg.Subject, err))
		return
	}
	if err := msg.Respond(data); err != nil {
		slog.Error(fmt.Sprintf("%s - respond on %s: %v", logPrefix, msg.Reply, err))
	}
}

// Close unsubscribes everything and drains the connection so in-flight
// handlers finish before the connection drops.
func (in *Ingress) Close() {
	for _, sub := range in.subs {
		sub.Unsubscribe()
	}
	if in.nc != nil {
		if err := in.nc.Drain(); err != nil {
			slog.Warn(fmt.Sprintf("%s - drain: %v", logPrefix, err))
		}
	}
}
