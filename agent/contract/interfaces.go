package contract

import (
	"context"

	statex "github.com/tanpawarit/Chative-Loan-Advisor/agent/state"
)

// Handler processes one turn for one pipeline stage. It receives a detached
// copy of the application and may only change state through
// AgentResponse.DataUpdates.
type Handler interface {
	Name() AgentName
	Process(ctx context.Context, app *statex.LoanApplication, message string) (AgentResponse, error)
}

// HandlerRegistry resolves handlers by application status and by name.
type HandlerRegistry interface {
	ForStatus(status statex.LoanStatus) (Handler, error)
	Lookup(name string) (Handler, bool)
}

// TurnSink receives a record of every completed turn. Failures are logged by
// the caller and never fail the turn.
type TurnSink interface {
	RecordTurn(ctx context.Context, rec TurnRecord) error
}
