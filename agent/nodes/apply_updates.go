package orchestratornode

import (
	"fmt"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Loan-Advisor/agent/contract"
	"github.com/tanpawarit/Chative-Loan-Advisor/agent/metrics"
	statex "github.com/tanpawarit/Chative-Loan-Advisor/agent/state"
)

const (
	sourceDataUpdate = "data_update"
	sourceHandler    = "handler"
)

// ApplyDataUpdate merges the caller's explicit update before extraction and
// routing see the message.
func ApplyDataUpdate(in *TurnState) (*TurnState, error) {
	if in == nil || in.App == nil {
		return nil, fmt.Errorf("%w: turn state is incomplete", contractx.ErrValidation)
	}

	mergeUpdates(in.App, in.DataUpdate, sourceDataUpdate, "")
	return in, nil
}

func mergeUpdates(app *statex.LoanApplication, updates map[string]any, source string, agent contractx.AgentName) statex.MergeResult {
	res := statex.ApplyUpdates(app, updates)
	for _, d := range res.Dropped {
		metrics.UpdateKeysDropped.WithLabelValues(source).Inc()
		log.Warn().
			Str("application_id", app.ApplicationID).
			Str("source", source).
			Str("agent", string(agent)).
			Str("key", d.Key).
			Str("reason", d.Reason).
			Msg("update key dropped")
	}
	return res
}
