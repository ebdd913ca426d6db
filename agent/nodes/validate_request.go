package orchestratornode

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Chative-Loan-Advisor/agent/contract"
	intentx "github.com/tanpawarit/Chative-Loan-Advisor/agent/intent"
	statex "github.com/tanpawarit/Chative-Loan-Advisor/agent/state"
)

type GraphInput struct {
	ApplicationID string
	Text          string
	DataUpdate    map[string]any
}

type GraphOutput struct {
	Turn   contractx.TurnResult
	Record contractx.TurnRecord
}

// TurnState is threaded through every node of one turn. App is the live
// store object; the caller holds the application's turn lock.
type TurnState struct {
	ApplicationID string
	Text          string
	DataUpdate    map[string]any
	Now           time.Time

	App            *statex.LoanApplication
	PreviousStatus statex.LoanStatus
	Filled         []string
	Decision       intentx.Decision

	Response     contractx.AgentResponse
	ChainedAgent contractx.AgentName
	Message      string
}

// ValidateRequest accepts an empty text: a turn with no message still
// dispatches to the current stage.
func ValidateRequest(in GraphInput, nowFn func() time.Time) (*TurnState, error) {
	id := strings.TrimSpace(in.ApplicationID)
	if id == "" {
		return nil, fmt.Errorf("%w: %w", contractx.ErrValidation, statex.ErrInvalidApplication)
	}

	return &TurnState{
		ApplicationID: id,
		Text:          in.Text,
		DataUpdate:    in.DataUpdate,
		Now:           nowFn().UTC(),
	}, nil
}
