package ingress

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/fnhost/fnhost/internal/config"
	"github.com/fnhost/fnhost/pkg/dispatcher"
	"github.com/fnhost/fnhost/pkg/function"
	"github.com/fnhost/fnhost/pkg/registry"
)

const testPrefix = "ingress:ingress_test"

func startBroker(t *testing.T) *natsserver.Server {
	t.Helper()
	opts := &natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1, // pick a free port
		NoLog:  true,
		NoSigs: true,
	}
	ns, err := natsserver.NewServer(opts)
	if err != nil {
		t.Fatalf("%s - failed to create broker: %v", testPrefix, err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		t.Fatalf("%s - broker failed to start", testPrefix)
	}
	t.Cleanup(func() {
		ns.Shutdown()
		ns.WaitForShutdown()
	})
	return ns
}

func testDispatcher(t *testing.T) *dispatcher.Dispatcher {
	t.Helper()
	dir := t.TempDir()
	factories := map[string]function.Factory{
		"echo": func() function.Handler {
			return function.Func(func(msg any, ctx *function.ExecutionContext) (any, error) {
				return msg, nil
			})
		},
		"boom": func() function.Handler {
			return function.Func(func(msg any, ctx *function.ExecutionContext) (any, error) {
				return nil, errors.New("user code failed")
			})
		},
	}
	reg, err := registry.Load([]registry.Spec{
		{Name: "echo", Handler: "echo", CodeDir: dir},
		{Name: "boom", Handler: "boom", CodeDir: dir},
	}, registry.NewStaticResolver(factories))
	if err != nil {
		t.Fatalf("%s - Load failed: %v", testPrefix, err)
	}
	return dispatcher.NewDispatcher(reg)
}

func TestIngress_RequestReply(t *testing.T) {
	ns := startBroker(t)
	disp := testDispatcher(t)

	ing, err := Start(config.BrokerConfig{URL: ns.ClientURL(), Prefix: "fn"}, "fnhost-test", []string{"echo", "boom"}, disp)
	if err != nil {
		t.Fatalf("%s - Start failed: %v", testPrefix, err)
	}
	t.Cleanup(ing.Close)

	nc, err := nats.Connect(ns.ClientURL(), nats.Timeout(5*time.Second))
	if err != nil {
		t.Fatalf("%s - client connect failed: %v", testPrefix, err)
	}
	defer nc.Close()

	msg, err := nc.Request("fn.echo", []byte(`{"x":1}`), 5*time.Second)
	if err != nil {
		t.Fatalf("%s - request failed: %v", testPrefix, err)
	}

	var reply Reply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		t.Fatalf("%s - decode reply: %v", testPrefix, err)
	}
	if !reply.OK {
		t.Fatalf("%s - expected ok reply, got %+v", testPrefix, reply)
	}
	if reply.Message == nil || reply.Message.FunctionName != "echo" {
		t.Fatalf("%s - unexpected message envelope: %+v", testPrefix, reply.Message)
	}
	if reply.Message.FunctionInvokeID == "" {
		t.Error("expected an invoke ID to be assigned")
	}
	if reply.Message.Topic != "fn.echo" {
		t.Errorf("expected topic fn.echo, got %q", reply.Message.Topic)
	}

	var decoded map[string]any
	if err := json.Unmarshal(reply.Message.Payload, &decoded); err != nil {
		t.Fatalf("%s - payload not JSON: %v", testPrefix, err)
	}
	if decoded["x"] != float64(1) {
		t.Errorf("expected x=1, got %v", decoded["x"])
	}
}

func TestIngress_HandlerErrorReply(t *testing.T) {
	ns := startBroker(t)
	disp := testDispatcher(t)

	ing, err := Start(config.BrokerConfig{URL: ns.ClientURL()}, "fnhost-test", []string{"boom"}, disp)
	if err != nil {
		t.Fatalf("%s - Start failed: %v", testPrefix, err)
	}
	t.Cleanup(ing.Close)

	nc, err := nats.Connect(ns.ClientURL(), nats.Timeout(5*time.Second))
	if err != nil {
		t.Fatalf("%s - client connect failed: %v", testPrefix, err)
	}
	defer nc.Close()

	// Default prefix applies when none is configured.
	msg, err := nc.Request("fn.boom", []byte(`{}`), 5*time.Second)
	if err != nil {
		t.Fatalf("%s - request failed: %v", testPrefix, err)
	}

	var reply Reply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		t.Fatalf("%s - decode reply: %v", testPrefix, err)
	}
	if reply.OK {
		t.Fatalf("%s - expected error reply, got %+v", testPrefix, reply)
	}
	if reply.Code != string(dispatcher.KindHandlerExecution) {
		t.Errorf("expected code %s, got %q", dispatcher.KindHandlerExecution, reply.Code)
	}
	if reply.Error == "" {
		t.Error("expected a descriptive error message")
	}
}

func TestIngress_BadBrokerURL(t *testing.T) {
	disp := testDispatcher(t)
	if _, err := Start(config.BrokerConfig{URL: "nats://127.0.0.1:1"}, "fnhost-test", []string{"echo"}, disp); err == nil {
		t.Fatalf("%s - expected connect failure", testPrefix)
	}
}
