package state

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// setter assigns a raw update value to one field. Values arrive from JSON or
// from handlers, so numbers may be float64, int or numeric strings; weak
// decoding normalises them.
type setter func(app *LoanApplication, raw any) error

func stringField(get func(*LoanApplication) *string) setter {
	return func(app *LoanApplication, raw any) error {
		var v string
		if raw != nil {
			if err := mapstructure.WeakDecode(raw, &v); err != nil {
				return err
			}
		}
		*get(app) = strings.TrimSpace(v)
		return nil
	}
}

func floatField(get func(*LoanApplication) *float64) setter {
	return func(app *LoanApplication, raw any) error {
		var v float64
		if raw != nil {
			if s, ok := raw.(string); ok {
				raw = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
			}
			if err := mapstructure.WeakDecode(raw, &v); err != nil {
				return err
			}
		}
		*get(app) = v
		return nil
	}
}

func intField(get func(*LoanApplication) *int) setter {
	return func(app *LoanApplication, raw any) error {
		var v int
		if raw != nil {
			if f, ok := raw.(float64); ok {
				raw = int(f)
			}
			if err := mapstructure.WeakDecode(raw, &v); err != nil {
				return err
			}
		}
		*get(app) = v
		return nil
	}
}

// Application fields are checked before customer fields, so a key present on
// both would land on the application. No key currently overlaps.
var applicationFields = map[string]setter{
	"loan_amount":      floatField(func(a *LoanApplication) *float64 { return &a.LoanAmount }),
	"tenure_months":    intField(func(a *LoanApplication) *int { return &a.TenureMonths }),
	"interest_rate":    floatField(func(a *LoanApplication) *float64 { return &a.InterestRate }),
	"emi":              floatField(func(a *LoanApplication) *float64 { return &a.EMI }),
	"rejection_reason": stringField(func(a *LoanApplication) *string { return &a.RejectionReason }),
}

var customerFields = map[string]setter{
	"name":               stringField(func(a *LoanApplication) *string { return &a.Customer.Name }),
	"pan":                stringField(func(a *LoanApplication) *string { return &a.Customer.PAN }),
	"aadhar":             stringField(func(a *LoanApplication) *string { return &a.Customer.Aadhar }),
	"salary":             floatField(func(a *LoanApplication) *float64 { return &a.Customer.Salary }),
	"phone":              stringField(func(a *LoanApplication) *string { return &a.Customer.Phone }),
	"email":              stringField(func(a *LoanApplication) *string { return &a.Customer.Email }),
	"credit_score":       intField(func(a *LoanApplication) *int { return &a.Customer.CreditScore }),
	"pre_approved_limit": floatField(func(a *LoanApplication) *float64 { return &a.Customer.PreApprovedLimit }),
}

// DroppedKey explains why an update key was not applied.
type DroppedKey struct {
	Key    string
	Reason string
}

// MergeResult lists what ApplyUpdates did with each key.
type MergeResult struct {
	Applied []string
	Dropped []DroppedKey
}

// ApplyUpdates merges an update map into the application. "status" is
// converted to a LoanStatus; other keys go to the application if it has the
// field, else to the customer, else they are dropped. Explicit updates
// overwrite regardless of the current value. Identity fields are not
// updatable.
func ApplyUpdates(app *LoanApplication, updates map[string]any) MergeResult {
	var res MergeResult
	if app == nil || len(updates) == 0 {
		return res
	}

	keys := make([]string, 0, len(updates))
	for k := range updates {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		raw := updates[key]
		if key == "status" {
			s, ok := ParseStatus(fmt.Sprint(raw))
			if raw == nil || !ok {
				res.Dropped = append(res.Dropped, DroppedKey{Key: key, Reason: fmt.Sprintf("invalid status %v", raw)})
				continue
			}
			app.Status = s
			res.Applied = append(res.Applied, key)
			continue
		}

		set, ok := applicationFields[key]
		if !ok {
			set, ok = customerFields[key]
		}
		if !ok {
			res.Dropped = append(res.Dropped, DroppedKey{Key: key, Reason: "unknown field"})
			continue
		}
		if err := set(app, raw); err != nil {
			res.Dropped = append(res.Dropped, DroppedKey{Key: key, Reason: err.Error()})
			continue
		}
		res.Applied = append(res.Applied, key)
	}
	return res
}
