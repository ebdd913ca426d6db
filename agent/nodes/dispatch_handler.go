package orchestratornode

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Loan-Advisor/agent/contract"
	"github.com/tanpawarit/Chative-Loan-Advisor/agent/metrics"
	statex "github.com/tanpawarit/Chative-Loan-Advisor/agent/state"
)

// DispatchHandler runs the handler registered for the application's current
// status and merges its data updates.
func DispatchHandler(
	ctx context.Context,
	in *TurnState,
	registry contractx.HandlerRegistry,
	timeout time.Duration,
) (*TurnState, error) {
	if in == nil || in.App == nil {
		return nil, fmt.Errorf("%w: turn state is incomplete", contractx.ErrValidation)
	}

	h, err := registry.ForStatus(in.App.Status)
	if err != nil {
		return nil, err
	}

	resp, err := InvokeHandler(ctx, h, in.App, in.Text, timeout)
	if err != nil {
		return nil, err
	}

	mergeUpdates(in.App, resp.DataUpdates, sourceHandler, resp.AgentName)
	in.Response = resp
	in.Message = resp.Message
	return in, nil
}

// InvokeHandler calls h on a clone of app under timeout. The handler runs in
// its own goroutine so an expired deadline returns even if the handler
// ignores its context.
func InvokeHandler(
	ctx context.Context,
	h contractx.Handler,
	app *statex.LoanApplication,
	message string,
	timeout time.Duration,
) (contractx.AgentResponse, error) {
	name := h.Name()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		resp contractx.AgentResponse
		err  error
	}
	done := make(chan result, 1)
	snapshot := app.Clone()
	start := time.Now()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("handler panic: %v", r)}
			}
		}()
		resp, err := h.Process(ctx, snapshot, message)
		done <- result{resp: resp, err: err}
	}()

	select {
	case <-ctx.Done():
		metrics.HandlerDuration.WithLabelValues(string(name)).Observe(time.Since(start).Seconds())
		cause := ctx.Err()
		reason := "canceled"
		if errors.Is(cause, context.DeadlineExceeded) {
			cause = contractx.ErrHandlerTimeout
			reason = "timeout"
		}
		metrics.HandlerFailures.WithLabelValues(string(name), reason).Inc()
		log.Error().
			Str("application_id", app.ApplicationID).
			Str("agent", string(name)).
			Err(cause).
			Msg("handler did not finish")
		return contractx.AgentResponse{}, fmt.Errorf("%w: agent=%s: %w", contractx.ErrHandlerFailed, name, cause)

	case r := <-done:
		metrics.HandlerDuration.WithLabelValues(string(name)).Observe(time.Since(start).Seconds())
		if r.err != nil {
			metrics.HandlerFailures.WithLabelValues(string(name), "error").Inc()
			log.Error().
				Str("application_id", app.ApplicationID).
				Str("agent", string(name)).
				Err(r.err).
				Msg("handler failed")
			return contractx.AgentResponse{}, fmt.Errorf("%w: agent=%s: %w", contractx.ErrHandlerFailed, name, r.err)
		}

		resp := r.resp
		if resp.AgentName == "" {
			resp.AgentName = name
		}
		return resp, nil
	}
}
