package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/xeipuuv/gojsonschema"
	contractx "github.com/tanpawarit/Chative-Loan-Advisor/agent/contract"
	statex "github.com/tanpawarit/Chative-Loan-Advisor/agent/state"
)

// responseSchema is what every stage model must answer with.
var responseSchema = map[string]any{
	"type":     "object",
	"required": []string{"message"},
	"properties": map[string]any{
		"message":         map[string]any{"type": "string"},
		"data_updates":    map[string]any{"type": "object"},
		"next_agent":      map[string]any{"type": "string"},
		"action_required": map[string]any{},
	},
}

type llmOutput struct {
	Message        string         `json:"message"`
	DataUpdates    map[string]any `json:"data_updates,omitempty"`
	NextAgent      string         `json:"next_agent,omitempty"`
	ActionRequired any            `json:"action_required,omitempty"`
}

type llmHandler struct {
	name   contractx.AgentName
	runner compose.Runnable[map[string]any, llmOutput]
}

var _ contractx.Handler = (*llmHandler)(nil)

func newLLMHandler(
	ctx context.Context,
	name contractx.AgentName,
	chatModel einomodel.BaseChatModel,
	systemPrompt string,
) (*llmHandler, error) {
	if strings.TrimSpace(systemPrompt) == "" {
		return nil, fmt.Errorf("%w: agent=%s", contractx.ErrPromptMissing, name)
	}

	validator, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(responseSchema))
	if err != nil {
		return nil, fmt.Errorf("compile response schema: %w", err)
	}

	runner, err := compileHandlerGraph(ctx, chatModel, systemPrompt, "handler."+string(name), func(raw string) (llmOutput, error) {
		return parseLLMOutput(validator, raw)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: compile handler graph for agent=%s: %v", contractx.ErrModelInvoke, name, err)
	}

	return &llmHandler{name: name, runner: runner}, nil
}

func (h *llmHandler) Name() contractx.AgentName {
	return h.name
}

func (h *llmHandler) Process(ctx context.Context, app *statex.LoanApplication, message string) (contractx.AgentResponse, error) {
	payload := map[string]any{
		"agent":       h.name,
		"chained":     message == "",
		"message":     message,
		"application": app,
	}
	input, err := json.Marshal(payload)
	if err != nil {
		return contractx.AgentResponse{}, fmt.Errorf("%w: marshal handler payload: %v", contractx.ErrValidation, err)
	}

	out, err := h.runner.Invoke(ctx, map[string]any{
		"input": string(input),
	})
	if err != nil {
		return contractx.AgentResponse{}, fmt.Errorf("%w: agent=%s: %w", contractx.ErrModelInvoke, h.name, err)
	}

	return contractx.AgentResponse{
		AgentName:      h.name,
		Message:        strings.TrimSpace(out.Message),
		DataUpdates:    out.DataUpdates,
		NextAgent:      strings.TrimSpace(out.NextAgent),
		ActionRequired: out.ActionRequired,
	}, nil
}

func parseLLMOutput(validator *gojsonschema.Schema, raw string) (llmOutput, error) {
	content := stripCodeFence(raw)
	if content == "" {
		return llmOutput{}, fmt.Errorf("%w: empty model response", contractx.ErrSchemaViolation)
	}

	result, err := validator.Validate(gojsonschema.NewStringLoader(content))
	if err != nil {
		return llmOutput{}, fmt.Errorf("%w: %v", contractx.ErrSchemaViolation, err)
	}
	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return llmOutput{}, fmt.Errorf("%w: %s", contractx.ErrSchemaViolation, strings.Join(errs, "; "))
	}

	var out llmOutput
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return llmOutput{}, fmt.Errorf("%w: %v", contractx.ErrSchemaViolation, err)
	}
	return out, nil
}

// stripCodeFence removes a ```json ... ``` wrapper some models add.
func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func messageContent(msg *schema.Message) (string, error) {
	if msg == nil {
		return "", fmt.Errorf("%w: nil model message", contractx.ErrSchemaViolation)
	}
	return msg.Content, nil
}
