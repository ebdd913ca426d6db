// Package slot fills empty application fields from free-text messages.
// Every rule is best-effort: a miss leaves the field untouched and is never
// reported as an error.
package slot

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	statex "github.com/tanpawarit/Chative-Loan-Advisor/agent/state"
)

const (
	lakh  = 100_000
	crore = 10_000_000
)

var (
	amountPattern = regexp.MustCompile(`(\d+(?:,\d+)*(?:\.\d+)?)\s*(?:lakhs?|crores?)?`)
	tenurePattern = regexp.MustCompile(`(\d+)\s*(months?|years?)`)
	salaryPattern = regexp.MustCompile(`salary.*?(\d+(?:,\d+)*)`)

	// PANPattern and AadharPattern are shared with the intent router.
	PANPattern    = regexp.MustCompile(`[A-Z]{5}[0-9]{4}[A-Z]`)
	AadharPattern = regexp.MustCompile(`\b\d{12}\b`)

	namePhrases = []string{"my name is", "i am", "i'm"}
)

// Slot names, as reported in Result.Filled.
const (
	SlotName         = "name"
	SlotLoanAmount   = "loan_amount"
	SlotTenureMonths = "tenure_months"
	SlotPAN          = "pan"
	SlotAadhar       = "aadhar"
	SlotSalary       = "salary"
)

type Result struct {
	Filled []string
}

// Extract runs every slot rule against message. A rule only fires when its
// field is currently unset, so extraction never overwrites.
func Extract(app *statex.LoanApplication, message string) Result {
	var res Result
	if app == nil {
		return res
	}
	lower := strings.ToLower(message)
	c := &app.Customer

	if c.Name == "" {
		if name, ok := ExtractName(message); ok {
			c.Name = name
			res.Filled = append(res.Filled, SlotName)
		}
	}
	if app.LoanAmount == 0 {
		if amount, ok := ExtractLoanAmount(message); ok {
			app.LoanAmount = amount
			res.Filled = append(res.Filled, SlotLoanAmount)
		}
	}
	if app.TenureMonths == 0 {
		if months, ok := ExtractTenureMonths(lower); ok {
			app.TenureMonths = months
			res.Filled = append(res.Filled, SlotTenureMonths)
		}
	}
	if c.PAN == "" {
		if pan, ok := ExtractPAN(message); ok {
			c.PAN = pan
			res.Filled = append(res.Filled, SlotPAN)
		}
	}
	if c.Aadhar == "" {
		if aadhar, ok := ExtractAadhar(message); ok {
			c.Aadhar = aadhar
			res.Filled = append(res.Filled, SlotAadhar)
		}
	}
	if c.Salary == 0 {
		if salary, ok := ExtractSalary(lower); ok {
			c.Salary = salary
			res.Filled = append(res.Filled, SlotSalary)
		}
	}
	return res
}

// ExtractName takes the token after the first "is"/"am", provided one of the
// introduction phrases appears somewhere in the message.
func ExtractName(message string) (string, bool) {
	lower := strings.ToLower(message)
	triggered := false
	for _, phrase := range namePhrases {
		if strings.Contains(lower, phrase) {
			triggered = true
			break
		}
	}
	if !triggered {
		return "", false
	}

	parts := strings.Fields(message)
	for i, part := range parts {
		p := strings.ToLower(part)
		if (p == "is" || p == "am") && i+1 < len(parts) {
			name := strings.Trim(parts[i+1], ".,!?")
			if name == "" {
				return "", false
			}
			return name, true
		}
	}
	return "", false
}

// ExtractLoanAmount parses the first number in the message. The lakh/crore
// multiplier is chosen from the whole message, not from the word next to the
// number.
func ExtractLoanAmount(message string) (float64, bool) {
	m := amountPattern.FindStringSubmatch(message)
	if m == nil {
		return 0, false
	}
	amount, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil || amount <= 0 {
		return 0, false
	}

	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "lakh"):
		amount *= lakh
	case strings.Contains(lower, "crore"):
		amount *= crore
	}
	return amount, true
}

// ExtractTenureMonths expects a lower-cased message.
func ExtractTenureMonths(lower string) (int, bool) {
	m := tenurePattern.FindStringSubmatch(lower)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, false
	}
	if strings.HasPrefix(m[2], "year") {
		if n > math.MaxInt/12 {
			return 0, false
		}
		n *= 12
	}
	return n, n > 0
}

func ExtractPAN(message string) (string, bool) {
	pan := PANPattern.FindString(strings.ToUpper(message))
	return pan, pan != ""
}

func ExtractAadhar(message string) (string, bool) {
	aadhar := AadharPattern.FindString(message)
	return aadhar, aadhar != ""
}

// ExtractSalary expects a lower-cased message and reads the first number
// after "salary".
func ExtractSalary(lower string) (float64, bool) {
	if !strings.Contains(lower, "salary") {
		return 0, false
	}
	m := salaryPattern.FindStringSubmatch(lower)
	if m == nil {
		return 0, false
	}
	salary, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil || salary <= 0 {
		return 0, false
	}
	return salary, true
}
