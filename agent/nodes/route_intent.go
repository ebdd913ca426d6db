package orchestratornode

import (
	"fmt"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Loan-Advisor/agent/contract"
	intentx "github.com/tanpawarit/Chative-Loan-Advisor/agent/intent"
	"github.com/tanpawarit/Chative-Loan-Advisor/agent/metrics"
)

func RouteIntent(in *TurnState) (*TurnState, error) {
	if in == nil || in.App == nil {
		return nil, fmt.Errorf("%w: turn state is incomplete", contractx.ErrValidation)
	}

	d := intentx.Route(in.App, in.Text)
	in.Decision = d
	if d.Changed() {
		metrics.IntentTransitions.WithLabelValues(d.Rule, string(d.From), string(d.To)).Inc()
		log.Info().
			Str("application_id", in.ApplicationID).
			Str("rule", d.Rule).
			Str("from", string(d.From)).
			Str("to", string(d.To)).
			Msg("intent transition")
	}
	return in, nil
}
