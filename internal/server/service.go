package server

import (
	"context"
	"errors"
	"time"

	"github.com/fnhost/fnhost/internal/metrics"
	"github.com/fnhost/fnhost/pkg/api"
	"github.com/fnhost/fnhost/pkg/dispatcher"
)

// functionService exposes the dispatcher over the RPC surface.
type functionService struct {
	disp *dispatcher.Dispatcher
}

func (s *functionService) Call(ctx context.Context, req *api.Message) (*api.Message, error) {
	start := time.Now()
	resp, err := s.disp.Dispatch(ctx, req)

	outcome := "ok"
	if err != nil {
		var derr *dispatcher.DispatchError
		if errors.As(err, &derr) {
			outcome = string(derr.Kind)
		} else {
			outcome = "error"
		}
	}
	metrics.ObserveInvocation(req.FunctionName, outcome, time.Since(start))

	return resp, err
}

// Talk is declared for protocol compatibility with bidirectional-streaming
// callers and intentionally does nothing.
func (s *functionService) Talk(stream api.FunctionTalkServer) error {
	return nil
}
