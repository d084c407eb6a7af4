package matching

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/leasepay/reconciler/internal/domain"
)

var (
	// ErrInvalidInput is wrapped by every *ValidationError.
	ErrInvalidInput = errors.New("invalid reconciliation input")
	// ErrTenantMismatch means a batch mixed records of several tenants. This is
	// a caller bug, not a data problem.
	ErrTenantMismatch = errors.New("batch contains more than one tenant")
)

// Problem is one reason a batch was rejected.
type Problem struct {
	Entity string `json:"entity"`
	Index  int    `json:"index"`
	ID     string `json:"id,omitempty"`
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (p Problem) String() string {
	if p.ID != "" {
		return fmt.Sprintf("%s %s: %s %s", p.Entity, p.ID, p.Field, p.Reason)
	}
	return fmt.Sprintf("%s #%d: %s %s", p.Entity, p.Index, p.Field, p.Reason)
}

// ValidationError lists every problem found in a rejected batch. Nothing is
// matched when it is returned.
type ValidationError struct {
	Problems []Problem
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		parts = append(parts, p.String())
	}
	return fmt.Sprintf("%s: %s", ErrInvalidInput, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// validateBatch checks the whole input before any matching happens.
func validateBatch(payments []domain.Payment, invoices []domain.Invoice, cfg Config) error {
	if err := checkSingleTenant(payments, invoices); err != nil {
		return err
	}

	var problems []Problem
	if cfg.ToleranceMinorUnits < 0 {
		problems = append(problems, Problem{Entity: "config", Field: "tolerance_minor_units", Reason: "must not be negative"})
	}
	if cfg.FuzzyWindow < 0 {
		problems = append(problems, Problem{Entity: "config", Field: "fuzzy_window", Reason: "must not be negative"})
	}

	currency := ""
	seen := make(map[string]bool, len(payments))
	for i := range payments {
		p := &payments[i]
		problems = append(problems, structProblems("payment", i, p.ID, p)...)
		if p.ReceivedAt.IsZero() {
			problems = append(problems, Problem{Entity: "payment", Index: i, ID: p.ID, Field: "received_at", Reason: "is required"})
		}
		// Amounts of one run are summed, so they must share a currency.
		switch {
		case p.Currency == "":
		case currency == "":
			currency = p.Currency
		case !strings.EqualFold(p.Currency, currency):
			problems = append(problems, Problem{
				Entity: "payment", Index: i, ID: p.ID, Field: "currency",
				Reason: fmt.Sprintf("must match the batch currency %s", strings.ToUpper(currency)),
			})
		}
		if p.ID != "" {
			if seen[p.ID] {
				problems = append(problems, Problem{Entity: "payment", Index: i, ID: p.ID, Field: "id", Reason: "is duplicated in the batch"})
			}
			seen[p.ID] = true
		}
	}

	seen = make(map[string]bool, len(invoices))
	for i := range invoices {
		inv := &invoices[i]
		problems = append(problems, structProblems("invoice", i, inv.ID, inv)...)
		if inv.DueDate.IsZero() {
			problems = append(problems, Problem{Entity: "invoice", Index: i, ID: inv.ID, Field: "due_date", Reason: "is required"})
		}
		if inv.ID != "" {
			if seen[inv.ID] {
				problems = append(problems, Problem{Entity: "invoice", Index: i, ID: inv.ID, Field: "id", Reason: "is duplicated in the batch"})
			}
			seen[inv.ID] = true
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func checkSingleTenant(payments []domain.Payment, invoices []domain.Invoice) error {
	tenants := make(map[string]struct{})
	for _, p := range payments {
		if p.TenantID != "" {
			tenants[p.TenantID] = struct{}{}
		}
	}
	for _, inv := range invoices {
		if inv.TenantID != "" {
			tenants[inv.TenantID] = struct{}{}
		}
	}
	if len(tenants) <= 1 {
		return nil
	}
	ids := make([]string, 0, len(tenants))
	for t := range tenants {
		ids = append(ids, t)
	}
	sort.Strings(ids)
	return fmt.Errorf("%w: %s", ErrTenantMismatch, strings.Join(ids, ", "))
}

func structProblems(entity string, index int, id string, v any) []Problem {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []Problem{{Entity: entity, Index: index, ID: id, Field: "-", Reason: err.Error()}}
	}
	out := make([]Problem, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, Problem{
			Entity: entity,
			Index:  index,
			ID:     id,
			Field:  fe.Field(),
			Reason: reasonFor(fe),
		})
	}
	return out
}

func reasonFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte":
		return "must not be negative"
	case "len":
		return fmt.Sprintf("must be %s characters", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	default:
		return fmt.Sprintf("failed %q", fe.Tag())
	}
}
