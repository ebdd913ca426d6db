package llm

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Chative-Loan-Advisor/agent/contract"
	openrouterx "github.com/tanpawarit/Chative-Loan-Advisor/pkg/openrouter"
)

// Config drives every stage model. A stage-specific model or temperature
// overrides the default; a negative temperature means "use the default".
type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"https://openrouter.ai/api/v1"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true" required:"true"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"1000"`
	Temperature        float32       `envconfig:"TEMPERATURE" split_words:"true" default:"0.3"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
	SiteURL            string        `envconfig:"SITE_URL" split_words:"true"`
	SiteName           string        `envconfig:"SITE_NAME" split_words:"true"`

	MasterModel       string  `envconfig:"MASTER_MODEL" split_words:"true"`
	SalesModel        string  `envconfig:"SALES_MODEL" split_words:"true"`
	VerificationModel string  `envconfig:"VERIFICATION_MODEL" split_words:"true"`
	UnderwritingModel string  `envconfig:"UNDERWRITING_MODEL" split_words:"true"`
	EligibilityModel  string  `envconfig:"ELIGIBILITY_MODEL" split_words:"true"`
	PDFModel          string  `envconfig:"PDF_MODEL" split_words:"true"`
	SalesTemperature  float32 `envconfig:"SALES_TEMPERATURE" split_words:"true" default:"-1"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: openrouter api key is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: default model is required", contractx.ErrValidation)
	}
	return nil
}

func (c Config) modelFor(agent contractx.AgentName) string {
	var override string
	switch agent {
	case contractx.AgentMaster:
		override = c.MasterModel
	case contractx.AgentSales:
		override = c.SalesModel
	case contractx.AgentVerification:
		override = c.VerificationModel
	case contractx.AgentUnderwriting:
		override = c.UnderwritingModel
	case contractx.AgentEligibility:
		override = c.EligibilityModel
	case contractx.AgentPDF:
		override = c.PDFModel
	}
	if v := strings.TrimSpace(override); v != "" {
		return v
	}
	return strings.TrimSpace(c.Model)
}

func (c Config) OpenRouterFor(agent contractx.AgentName) openrouterx.Config {
	temp := c.Temperature
	if agent == contractx.AgentSales && c.SalesTemperature >= 0 {
		temp = c.SalesTemperature
	}

	maxCompletionToken := c.MaxCompletionToken
	return openrouterx.Config{
		BaseURL:            strings.TrimSpace(c.BaseURL),
		APIKey:             strings.TrimSpace(c.APIKey),
		Model:              c.modelFor(agent),
		MaxCompletionToken: &maxCompletionToken,
		Temperature:        temp,
		Timeout:            c.Timeout,
		SiteURL:            strings.TrimSpace(c.SiteURL),
		SiteName:           strings.TrimSpace(c.SiteName),
	}
}
