package state

import (
	"encoding/json"
	"strings"
	"time"
)

// LoanStatus is the workflow state of an application. Transitions are
// intent-driven, so no ordering between values is implied.
type LoanStatus string

const (
	StatusInitiated        LoanStatus = "initiated"
	StatusSalesDiscussion  LoanStatus = "sales_discussion"
	StatusKYCVerification  LoanStatus = "kyc_verification"
	StatusUnderwriting     LoanStatus = "underwriting"
	StatusEligibilityCheck LoanStatus = "eligibility_check"
	StatusApproved         LoanStatus = "approved"
	StatusRejected         LoanStatus = "rejected"
	StatusCompleted        LoanStatus = "completed"
)

var knownStatuses = map[LoanStatus]struct{}{
	StatusInitiated:        {},
	StatusSalesDiscussion:  {},
	StatusKYCVerification:  {},
	StatusUnderwriting:     {},
	StatusEligibilityCheck: {},
	StatusApproved:         {},
	StatusRejected:         {},
	StatusCompleted:        {},
}

// ParseStatus accepts the wire value in any case ("KYC_VERIFICATION" and
// "kyc_verification" are the same status).
func ParseStatus(raw string) (LoanStatus, bool) {
	s := LoanStatus(strings.ToLower(strings.TrimSpace(raw)))
	_, ok := knownStatuses[s]
	return s, ok
}

func (s LoanStatus) Valid() bool {
	_, ok := knownStatuses[s]
	return ok
}

func (s LoanStatus) String() string {
	return string(s)
}

// Customer is owned by exactly one LoanApplication. Zero values mean "unset".
type Customer struct {
	CustomerID       string  `json:"customer_id"`
	Name             string  `json:"name"`
	PAN              string  `json:"pan"`
	Aadhar           string  `json:"aadhar"`
	Salary           float64 `json:"salary"`
	Phone            string  `json:"phone"`
	Email            string  `json:"email"`
	CreditScore      int     `json:"credit_score"`
	PreApprovedLimit float64 `json:"pre_approved_limit"`
}

type LoanApplication struct {
	ApplicationID   string     `json:"application_id"`
	Customer        Customer   `json:"customer"`
	Status          LoanStatus `json:"status"`
	LoanAmount      float64    `json:"loan_amount"`
	TenureMonths    int        `json:"tenure_months"`
	InterestRate    float64    `json:"interest_rate"`
	EMI             float64    `json:"emi"`
	RejectionReason string     `json:"rejection_reason"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func NewLoanApplication(applicationID, customerID string, now time.Time) *LoanApplication {
	return &LoanApplication{
		ApplicationID: applicationID,
		Customer:      Customer{CustomerID: customerID},
		Status:        StatusInitiated,
		CreatedAt:     now.UTC(),
		UpdatedAt:     now.UTC(),
	}
}

// Clone returns a detached copy. All fields are values, so a shallow copy is
// already deep.
func (a *LoanApplication) Clone() *LoanApplication {
	if a == nil {
		return nil
	}
	cp := *a
	return &cp
}

func (a *LoanApplication) Touch(now time.Time) {
	a.UpdatedAt = now.UTC()
}

// MarshalJSON writes every field. Unset optional fields come out as null.
func (c Customer) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		CustomerID       string   `json:"customer_id"`
		Name             *string  `json:"name"`
		PAN              *string  `json:"pan"`
		Aadhar           *string  `json:"aadhar"`
		Salary           *float64 `json:"salary"`
		Phone            *string  `json:"phone"`
		Email            *string  `json:"email"`
		CreditScore      *int     `json:"credit_score"`
		PreApprovedLimit *float64 `json:"pre_approved_limit"`
	}{
		CustomerID:       c.CustomerID,
		Name:             orNull(c.Name),
		PAN:              orNull(c.PAN),
		Aadhar:           orNull(c.Aadhar),
		Salary:           orNull(c.Salary),
		Phone:            orNull(c.Phone),
		Email:            orNull(c.Email),
		CreditScore:      orNull(c.CreditScore),
		PreApprovedLimit: orNull(c.PreApprovedLimit),
	})
}

func (a LoanApplication) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ApplicationID   string     `json:"application_id"`
		Customer        Customer   `json:"customer"`
		Status          LoanStatus `json:"status"`
		LoanAmount      *float64   `json:"loan_amount"`
		TenureMonths    *int       `json:"tenure_months"`
		InterestRate    *float64   `json:"interest_rate"`
		EMI             *float64   `json:"emi"`
		RejectionReason *string    `json:"rejection_reason"`
		CreatedAt       time.Time  `json:"created_at"`
		UpdatedAt       time.Time  `json:"updated_at"`
	}{
		ApplicationID:   a.ApplicationID,
		Customer:        a.Customer,
		Status:          a.Status,
		LoanAmount:      orNull(a.LoanAmount),
		TenureMonths:    orNull(a.TenureMonths),
		InterestRate:    orNull(a.InterestRate),
		EMI:             orNull(a.EMI),
		RejectionReason: orNull(a.RejectionReason),
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	})
}

func orNull[T comparable](v T) *T {
	var zero T
	if v == zero {
		return nil
	}
	return &v
}
