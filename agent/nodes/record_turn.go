package orchestratornode

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Loan-Advisor/agent/contract"
	"github.com/tanpawarit/Chative-Loan-Advisor/agent/metrics"
)

// RecordTurn offers the finished turn to every sink. A failing sink is
// logged and counted; the turn itself has already succeeded.
func RecordTurn(ctx context.Context, in *TurnState, sinks []contractx.TurnSink) (*TurnState, error) {
	if in == nil || in.App == nil {
		return nil, fmt.Errorf("%w: turn state is incomplete", contractx.ErrValidation)
	}
	if len(sinks) == 0 {
		return in, nil
	}

	rec := buildRecord(in)
	for _, sink := range sinks {
		if sink == nil {
			continue
		}
		if err := sink.RecordTurn(ctx, rec); err != nil {
			label := fmt.Sprintf("%T", sink)
			metrics.SinkFailures.WithLabelValues(label).Inc()
			log.Warn().
				Str("application_id", rec.ApplicationID).
				Str("sink", label).
				Err(err).
				Msg("turn sink failed")
		}
	}
	return in, nil
}

func buildRecord(in *TurnState) contractx.TurnRecord {
	return contractx.TurnRecord{
		ApplicationID:  in.App.ApplicationID,
		CustomerID:     in.App.Customer.CustomerID,
		Inbound:        in.Text,
		Reply:          in.Message,
		AgentName:      in.Response.AgentName,
		ChainedAgent:   in.ChainedAgent,
		PreviousStatus: string(in.PreviousStatus),
		Status:         string(in.App.Status),
		IntentRule:     in.Decision.Rule,
		OccurredAt:     in.Now,
	}
}
