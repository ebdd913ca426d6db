package contract

import (
	"errors"

	statex "github.com/tanpawarit/Chative-Loan-Advisor/agent/state"
)

var (
	ErrValidation          = errors.New("validation failed")
	ErrApplicationNotFound = statex.ErrApplicationNotFound
	ErrHandlerFailed       = errors.New("handler failed")
	ErrHandlerTimeout      = errors.New("handler timed out")
	ErrUnknownAgent        = errors.New("unknown agent")
	ErrModelInvoke         = errors.New("model invoke failed")
	ErrSchemaViolation     = errors.New("model response violates schema")
	ErrPromptMissing       = errors.New("required prompt is missing")
)
