package handler

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/Chative-Loan-Advisor/agent/contract"
	llmx "github.com/tanpawarit/Chative-Loan-Advisor/agent/llm"
	promptx "github.com/tanpawarit/Chative-Loan-Advisor/agent/prompt"
	statex "github.com/tanpawarit/Chative-Loan-Advisor/agent/state"
)

// StatusTable maps each status to the stage that handles it. Statuses not
// listed fall back to the master handler.
var StatusTable = map[statex.LoanStatus]contractx.AgentName{
	statex.StatusInitiated:        contractx.AgentMaster,
	statex.StatusSalesDiscussion:  contractx.AgentSales,
	statex.StatusKYCVerification:  contractx.AgentVerification,
	statex.StatusUnderwriting:     contractx.AgentUnderwriting,
	statex.StatusEligibilityCheck: contractx.AgentEligibility,
	statex.StatusApproved:         contractx.AgentPDF,
}

var _ contractx.HandlerRegistry = (*Registry)(nil)

// Registry is immutable once built.
type Registry struct {
	byName map[contractx.AgentName]contractx.Handler
}

// NewRegistry requires a master handler, because every unmapped status
// resolves to it, and rejects duplicate names.
func NewRegistry(handlers ...contractx.Handler) (*Registry, error) {
	byName := make(map[contractx.AgentName]contractx.Handler, len(handlers))
	for _, h := range handlers {
		if h == nil {
			return nil, fmt.Errorf("%w: nil handler", contractx.ErrValidation)
		}
		name := contractx.NormalizeAgentName(string(h.Name()))
		if name == "" {
			return nil, fmt.Errorf("%w: handler name is empty", contractx.ErrValidation)
		}
		if _, dup := byName[name]; dup {
			return nil, fmt.Errorf("%w: duplicate handler %q", contractx.ErrValidation, name)
		}
		byName[name] = h
	}
	if _, ok := byName[contractx.AgentMaster]; !ok {
		return nil, fmt.Errorf("%w: master handler is required", contractx.ErrValidation)
	}
	return &Registry{byName: byName}, nil
}

func (r *Registry) ForStatus(status statex.LoanStatus) (contractx.Handler, error) {
	name, ok := StatusTable[status]
	if !ok {
		name = contractx.AgentMaster
	}
	h, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: no handler registered for status=%s agent=%s", contractx.ErrUnknownAgent, status, name)
	}
	return h, nil
}

// Lookup accepts both "verification" and "verification_agent".
func (r *Registry) Lookup(name string) (contractx.Handler, bool) {
	h, ok := r.byName[contractx.NormalizeAgentName(name)]
	return h, ok
}

func (r *Registry) Names() []contractx.AgentName {
	out := make([]contractx.AgentName, 0, len(r.byName))
	for _, name := range contractx.AllAgents {
		if _, ok := r.byName[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

// NewLLMRegistry builds one chat-model handler per stage.
func NewLLMRegistry(ctx context.Context, cfg llmx.Config) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	prompts, err := promptx.LoadPromptSet()
	if err != nil {
		return nil, err
	}

	handlers := make([]contractx.Handler, 0, len(contractx.AllAgents))
	for _, name := range contractx.AllAgents {
		systemPrompt, err := prompts.For(name)
		if err != nil {
			return nil, err
		}
		modelCfg := cfg.OpenRouterFor(name)
		chatModel, err := modelCfg.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: create %s model: %v", contractx.ErrModelInvoke, name, err)
		}
		h, err := newLLMHandler(ctx, name, chatModel, systemPrompt)
		if err != nil {
			return nil, err
		}
		handlers = append(handlers, h)
	}

	return NewRegistry(handlers...)
}
