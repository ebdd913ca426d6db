package orchestratornode

import (
	"fmt"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Loan-Advisor/agent/contract"
	"github.com/tanpawarit/Chative-Loan-Advisor/agent/metrics"
)

// FinalizeReply stamps the application and snapshots it into the turn
// result. The snapshot is detached from the store object.
func FinalizeReply(in *TurnState) (GraphOutput, error) {
	if in == nil || in.App == nil {
		return GraphOutput{}, fmt.Errorf("%w: turn state is incomplete", contractx.ErrValidation)
	}

	in.App.Touch(in.Now)

	turn := contractx.TurnResult{
		AgentName:       in.Response.AgentName,
		Message:         in.Message,
		Status:          string(in.App.Status),
		ActionRequired:  in.Response.ActionRequired,
		ApplicationData: in.App.Clone(),
	}

	metrics.TurnsProcessed.WithLabelValues(string(turn.AgentName), turn.Status).Inc()
	log.Debug().
		Str("application_id", in.ApplicationID).
		Str("agent", string(turn.AgentName)).
		Str("status", turn.Status).
		Msg("turn completed")

	return GraphOutput{Turn: turn, Record: buildRecord(in)}, nil
}
