package contract

import (
	"encoding/json"
	"strings"
	"time"

	statex "github.com/tanpawarit/Chative-Loan-Advisor/agent/state"
)

type AgentName string

const (
	AgentMaster       AgentName = "master"
	AgentSales        AgentName = "sales"
	AgentVerification AgentName = "verification"
	AgentUnderwriting AgentName = "underwriting"
	AgentEligibility  AgentName = "eligibility"
	AgentPDF          AgentName = "pdf"
)

// AllAgents lists every stage handler in pipeline order.
var AllAgents = []AgentName{
	AgentMaster,
	AgentSales,
	AgentVerification,
	AgentUnderwriting,
	AgentEligibility,
	AgentPDF,
}

// NormalizeAgentName maps "Verification_Agent" and "verification" to the
// same registered name.
func NormalizeAgentName(raw string) AgentName {
	name := strings.ToLower(strings.TrimSpace(raw))
	name = strings.TrimSuffix(name, "_agent")
	return AgentName(name)
}

type AgentResponse struct {
	AgentName      AgentName      `json:"agent_name"`
	Message        string         `json:"message"`
	DataUpdates    map[string]any `json:"data_updates,omitempty"`
	NextAgent      string         `json:"next_agent,omitempty"`
	ActionRequired any            `json:"action_required,omitempty"`
}

type TurnResult struct {
	AgentName       AgentName               `json:"agent_name"`
	Message         string                  `json:"message"`
	Status          string                  `json:"status"`
	ActionRequired  any                     `json:"action_required"`
	ApplicationData *statex.LoanApplication `json:"application_data"`
}

type ResultKind string

const (
	ResultOK       ResultKind = "ok"
	ResultNotFound ResultKind = "not_found"
)

const NotFoundMessage = "Application not found"

// ProcessResult is what ProcessMessage returns when no Go error occurred.
// Handler failures are reported through the error return instead.
type ProcessResult struct {
	Kind  ResultKind
	Turn  *TurnResult
	Error string
}

func NotFoundResult() ProcessResult {
	return ProcessResult{Kind: ResultNotFound, Error: NotFoundMessage}
}

func (r ProcessResult) OK() bool {
	return r.Kind == ResultOK && r.Turn != nil
}

// MarshalJSON renders either the turn or {"error": "..."}.
func (r ProcessResult) MarshalJSON() ([]byte, error) {
	if r.OK() {
		return json.Marshal(r.Turn)
	}
	return json.Marshal(struct {
		Error string `json:"error"`
	}{Error: r.Error})
}

type StartResult struct {
	ApplicationID string     `json:"application_id"`
	Response      TurnResult `json:"response"`
}

type TurnRecord struct {
	ApplicationID  string    `json:"application_id"`
	CustomerID     string    `json:"customer_id"`
	Inbound        string    `json:"inbound"`
	Reply          string    `json:"reply"`
	AgentName      AgentName `json:"agent_name"`
	ChainedAgent   AgentName `json:"chained_agent,omitempty"`
	PreviousStatus string    `json:"previous_status"`
	Status         string    `json:"status"`
	IntentRule     string    `json:"intent_rule,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}
