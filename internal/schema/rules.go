// Package schema implements the field-level validation rules for the three
// record shapes. The rules run at the form/API boundary before a payload
// reaches the store; the store itself does not re-validate.
package schema

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"patientcore/pkg/domain"
)

// NewDefaultRulesEngine builds a rules engine with the built-in field rules
// for all three collections.
func NewDefaultRulesEngine() *domain.RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(PatientFieldsRule{})
	engine.Register(AllergyFieldsRule{})
	engine.Register(SavedQueryFieldsRule{})
	return engine
}

// Validate evaluates payload against the default rule set and converts
// blocking violations into a domain.ValidationError.
func Validate(ctx context.Context, payload any) error {
	res, err := NewDefaultRulesEngine().Evaluate(ctx, payload)
	if err != nil {
		return err
	}
	if res.HasBlocking() {
		return domain.ValidationError{Result: res}
	}
	return nil
}

func block(rule string, table domain.Table, field, message string) domain.Violation {
	return domain.Violation{
		Rule:     rule,
		Severity: domain.SeverityBlock,
		Field:    field,
		Message:  message,
		Table:    table,
	}
}

// PatientFieldsRule enforces patient demographic and contact constraints.
type PatientFieldsRule struct{}

// Name identifies the rule.
func (PatientFieldsRule) Name() string { return "patient_fields" }

// Evaluate checks a PatientInsert payload. Other payload types pass through.
func (r PatientFieldsRule) Evaluate(_ context.Context, payload any) (domain.Result, error) {
	ins, ok := payload.(domain.PatientInsert)
	if !ok {
		return domain.Result{}, nil
	}
	var res domain.Result
	if len(strings.TrimSpace(ins.FirstName)) < 2 {
		res.Violations = append(res.Violations, block(r.Name(), domain.TablePatients, "firstName", "First name must be at least 2 characters"))
	}
	if len(strings.TrimSpace(ins.LastName)) < 2 {
		res.Violations = append(res.Violations, block(r.Name(), domain.TablePatients, "lastName", "Last name must be at least 2 characters"))
	}
	if len(ins.Phone) < 10 {
		res.Violations = append(res.Violations, block(r.Name(), domain.TablePatients, "phone", "Phone number must be at least 10 characters"))
	}
	if _, err := time.Parse("2006-01-02", ins.DOB); err != nil {
		res.Violations = append(res.Violations, block(r.Name(), domain.TablePatients, "dob", fmt.Sprintf("Date of birth %q is not a calendar date", ins.DOB)))
	}
	if ins.Email != nil && *ins.Email != "" {
		if _, err := mail.ParseAddress(*ins.Email); err != nil {
			res.Violations = append(res.Violations, block(r.Name(), domain.TablePatients, "email", "Must be a valid email"))
		}
	}
	return res, nil
}

// AllergyFieldsRule enforces allergy naming and ownership constraints.
type AllergyFieldsRule struct{}

// Name identifies the rule.
func (AllergyFieldsRule) Name() string { return "allergy_fields" }

// Evaluate checks an AllergyInsert payload.
func (r AllergyFieldsRule) Evaluate(_ context.Context, payload any) (domain.Result, error) {
	ins, ok := payload.(domain.AllergyInsert)
	if !ok {
		return domain.Result{}, nil
	}
	var res domain.Result
	if len(strings.TrimSpace(ins.Name)) < 2 {
		res.Violations = append(res.Violations, block(r.Name(), domain.TableAllergies, "name", "Allergy name must be at least 2 characters"))
	}
	if ins.PatientID <= 0 {
		res.Violations = append(res.Violations, block(r.Name(), domain.TableAllergies, "patientId", "Allergy must reference a patient"))
	}
	return res, nil
}

// SavedQueryFieldsRule enforces saved-query naming and length constraints.
type SavedQueryFieldsRule struct{}

// Name identifies the rule.
func (SavedQueryFieldsRule) Name() string { return "saved_query_fields" }

// Evaluate checks a SavedQueryInsert payload.
func (r SavedQueryFieldsRule) Evaluate(_ context.Context, payload any) (domain.Result, error) {
	ins, ok := payload.(domain.SavedQueryInsert)
	if !ok {
		return domain.Result{}, nil
	}
	var res domain.Result
	if len(strings.TrimSpace(ins.Name)) < 2 {
		res.Violations = append(res.Violations, block(r.Name(), domain.TableSavedQueries, "name", "Query name must be at least 2 characters"))
	}
	if len(ins.Query) < 5 {
		res.Violations = append(res.Violations, block(r.Name(), domain.TableSavedQueries, "query", "Query must be at least 5 characters"))
	}
	return res, nil
}
