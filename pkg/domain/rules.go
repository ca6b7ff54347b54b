package domain

import "context"

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine whether a payload is accepted.
const (
	// SeverityBlock rejects the payload.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but accepts the payload.
	SeverityWarn Severity = "warn"
)

// Violation reports a failed rule evaluation against an insert payload.
type Violation struct {
	Rule     string
	Severity Severity
	Field    string
	Message  string
	Table    Table
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// ValidationError is returned when blocking violations are present.
type ValidationError struct {
	Result Result
}

func (e ValidationError) Error() string {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			return "validation failed: " + v.Message
		}
	}
	return "validation failed"
}

// Rule evaluates one insert payload. Payloads are the *Insert types; a rule
// that does not recognize the payload type returns an empty result.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, payload any) (Result, error)
}

// RulesEngine orchestrates rule evaluation. Validation runs at the form/API
// boundary; the store itself does not re-validate payloads.
type RulesEngine struct {
	rules []Rule
}

// NewRulesEngine constructs an engine instance.
func NewRulesEngine() *RulesEngine {
	return &RulesEngine{}
}

// Register appends a rule to the engine.
func (e *RulesEngine) Register(rule Rule) {
	e.rules = append(e.rules, rule)
}

// Evaluate executes all registered rules and aggregates their results.
func (e *RulesEngine) Evaluate(ctx context.Context, payload any) (Result, error) {
	var combined Result
	for _, rule := range e.rules {
		res, err := rule.Evaluate(ctx, payload)
		if err != nil {
			return Result{}, err
		}
		combined.Merge(res)
	}
	return combined, nil
}
