package prompt

import (
	"embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
	contractx "github.com/tanpawarit/Chative-Loan-Advisor/agent/contract"
)

//go:embed template/agents.yaml
var templateFS embed.FS

const agentsFile = "template/agents.yaml"

// PromptSet holds one system prompt per stage. Every stage prompt ends with
// the shared response contract.
type PromptSet struct {
	Response string            `yaml:"response_contract"`
	Agents   map[string]string `yaml:"agents"`
}

func LoadPromptSet() (PromptSet, error) {
	raw, err := templateFS.ReadFile(agentsFile)
	if err != nil {
		return PromptSet{}, fmt.Errorf("%w: read %s: %v", contractx.ErrPromptMissing, agentsFile, err)
	}
	return ParsePromptSet(raw)
}

func ParsePromptSet(raw []byte) (PromptSet, error) {
	var set PromptSet
	if err := yaml.Unmarshal(raw, &set); err != nil {
		return PromptSet{}, fmt.Errorf("%w: parse prompts: %v", contractx.ErrPromptMissing, err)
	}
	if strings.TrimSpace(set.Response) == "" {
		return PromptSet{}, fmt.Errorf("%w: response_contract is empty", contractx.ErrPromptMissing)
	}
	return set, nil
}

// For returns the full system prompt for agent. The result is used as an
// FString template, so it must not contain single braces.
func (s PromptSet) For(agent contractx.AgentName) (string, error) {
	body := strings.TrimSpace(s.Agents[string(agent)])
	if body == "" {
		return "", fmt.Errorf("%w: agent=%s", contractx.ErrPromptMissing, agent)
	}
	return body + "\n\n" + strings.TrimSpace(s.Response), nil
}
