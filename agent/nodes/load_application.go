package orchestratornode

import (
	"context"
	"errors"
	"fmt"

	contractx "github.com/tanpawarit/Chative-Loan-Advisor/agent/contract"
	statex "github.com/tanpawarit/Chative-Loan-Advisor/agent/state"
)

func LoadApplication(ctx context.Context, in *TurnState, store statex.Store) (*TurnState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: turn state is nil", contractx.ErrValidation)
	}

	app, err := store.Get(ctx, in.ApplicationID)
	if err != nil {
		if errors.Is(err, statex.ErrApplicationNotFound) {
			return nil, fmt.Errorf("%w: id=%s", contractx.ErrApplicationNotFound, in.ApplicationID)
		}
		return nil, err
	}

	in.App = app
	in.PreviousStatus = app.Status
	return in, nil
}
