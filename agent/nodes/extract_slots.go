package orchestratornode

import (
	"fmt"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Loan-Advisor/agent/contract"
	"github.com/tanpawarit/Chative-Loan-Advisor/agent/metrics"
	"github.com/tanpawarit/Chative-Loan-Advisor/agent/slot"
)

func ExtractSlots(in *TurnState) (*TurnState, error) {
	if in == nil || in.App == nil {
		return nil, fmt.Errorf("%w: turn state is incomplete", contractx.ErrValidation)
	}

	res := slot.Extract(in.App, in.Text)
	in.Filled = res.Filled
	for _, name := range res.Filled {
		metrics.SlotsFilled.WithLabelValues(name).Inc()
	}
	if len(res.Filled) > 0 {
		log.Debug().
			Str("application_id", in.ApplicationID).
			Strs("slots", res.Filled).
			Msg("slots filled from message")
	}
	return in, nil
}
