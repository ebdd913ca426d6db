// Package intent moves an application between statuses based on keywords in
// the inbound message.
package intent

import (
	"strings"

	"github.com/tanpawarit/Chative-Loan-Advisor/agent/slot"
	statex "github.com/tanpawarit/Chative-Loan-Advisor/agent/state"
)

// Rule fires when Match reports true and the current status is in Guard.
// A nil Guard allows every status.
type Rule struct {
	Name   string
	Match  func(message, lower string) bool
	Guard  map[statex.LoanStatus]struct{}
	Target statex.LoanStatus
}

func (r Rule) allows(s statex.LoanStatus) bool {
	if r.Guard == nil {
		return true
	}
	_, ok := r.Guard[s]
	return ok
}

const (
	RuleVerification = "verification"
	RuleSales        = "sales"
	RuleUnderwriting = "underwriting"
	RuleEligibility  = "eligibility"
	RulePDF          = "pdf"
)

var (
	salesKeywords        = []string{"emi", "interest", "rate", "tenure", "months", "years", "loan", "amount", "rupees", "₹", "lakh", "crore"}
	underwritingKeywords = []string{"credit score", "underwriting"}
	eligibilityKeywords  = []string{"eligibility", "approve", "approval", "salary"}
	pdfKeywords          = []string{"sanction letter", "pdf"}
)

// Rules is evaluated top to bottom and stops at the first rule that fires.
// Verification has no guard, so a KYC-looking message can pull an
// application back from any later stage.
var Rules = []Rule{
	{
		Name:   RuleVerification,
		Match:  verificationIntent,
		Target: statex.StatusKYCVerification,
	},
	{
		Name:   RuleSales,
		Match:  containsAny(salesKeywords),
		Guard:  guard(statex.StatusInitiated, statex.StatusSalesDiscussion, statex.StatusKYCVerification),
		Target: statex.StatusSalesDiscussion,
	},
	{
		Name:   RuleUnderwriting,
		Match:  containsAny(underwritingKeywords),
		Guard:  guard(statex.StatusKYCVerification, statex.StatusUnderwriting, statex.StatusEligibilityCheck),
		Target: statex.StatusUnderwriting,
	},
	{
		Name:   RuleEligibility,
		Match:  containsAny(eligibilityKeywords),
		Guard:  guard(statex.StatusUnderwriting, statex.StatusEligibilityCheck, statex.StatusApproved),
		Target: statex.StatusEligibilityCheck,
	},
	{
		Name:   RulePDF,
		Match:  containsAny(pdfKeywords),
		Guard:  guard(statex.StatusApproved, statex.StatusCompleted),
		Target: statex.StatusApproved,
	},
}

// Decision reports which rule fired, if any.
type Decision struct {
	Rule string
	From statex.LoanStatus
	To   statex.LoanStatus
}

func (d Decision) Fired() bool {
	return d.Rule != ""
}

func (d Decision) Changed() bool {
	return d.Fired() && d.From != d.To
}

// Route evaluates Rules against message and the application's current status
// and applies the first rule that fires.
func Route(app *statex.LoanApplication, message string) Decision {
	if app == nil {
		return Decision{}
	}
	d := Evaluate(app.Status, message)
	if d.Fired() {
		app.Status = d.To
	}
	return d
}

// Evaluate is Route without the mutation.
func Evaluate(current statex.LoanStatus, message string) Decision {
	lower := strings.ToLower(message)
	for _, r := range Rules {
		if !r.Match(message, lower) {
			continue
		}
		if !r.allows(current) {
			continue
		}
		return Decision{Rule: r.Name, From: current, To: r.Target}
	}
	return Decision{From: current, To: current}
}

func verificationIntent(message, lower string) bool {
	if strings.Contains(lower, "kyc") || strings.Contains(lower, "pan") || strings.Contains(lower, "aadhar") {
		return true
	}
	if slot.PANPattern.MatchString(strings.ToUpper(message)) {
		return true
	}
	return slot.AadharPattern.MatchString(message)
}

func containsAny(keywords []string) func(string, string) bool {
	return func(_ string, lower string) bool {
		for _, k := range keywords {
			if strings.Contains(lower, k) {
				return true
			}
		}
		return false
	}
}

func guard(statuses ...statex.LoanStatus) map[statex.LoanStatus]struct{} {
	m := make(map[statex.LoanStatus]struct{}, len(statuses))
	for _, s := range statuses {
		m[s] = struct{}{}
	}
	return m
}
