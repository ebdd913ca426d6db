package orchestratornode

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Loan-Advisor/agent/contract"
)

const chainSeparator = "\n\n"

// DispatchChained follows the first response's next_agent exactly once. An
// unregistered name is skipped and the turn keeps the first response.
func DispatchChained(
	ctx context.Context,
	in *TurnState,
	registry contractx.HandlerRegistry,
	timeout time.Duration,
) (*TurnState, error) {
	if in == nil || in.App == nil {
		return nil, fmt.Errorf("%w: turn state is incomplete", contractx.ErrValidation)
	}

	next := strings.TrimSpace(in.Response.NextAgent)
	if next == "" {
		return in, nil
	}

	h, ok := registry.Lookup(next)
	if !ok {
		log.Warn().
			Str("application_id", in.ApplicationID).
			Str("agent", string(in.Response.AgentName)).
			Str("next_agent", next).
			Msg("next agent is not registered, skipping chained call")
		return in, nil
	}

	resp, err := InvokeHandler(ctx, h, in.App, "", timeout)
	if err != nil {
		return nil, err
	}

	if msg := resp.Message; msg != "" {
		in.Message = in.Message + chainSeparator + msg
	}
	mergeUpdates(in.App, resp.DataUpdates, sourceHandler, resp.AgentName)
	in.ChainedAgent = resp.AgentName
	return in, nil
}
