package domain

import "context"

// EntityType names a store record kind inside change and violation records.
type EntityType string

// Entity types recorded in the audit trail.
const (
	EntityPanel              EntityType = "panel"
	EntityPanelSnapshot      EntityType = "panel_snapshot"
	EntityGeneReference      EntityType = "gene_reference"
	EntityHistoricalSnapshot EntityType = "historical_snapshot"
	EntityRelease            EntityType = "release"
	EntityTag                EntityType = "tag"
	EntityActivity           EntityType = "activity"
)

// Severity determines commit behaviour and logging for rule violations.
type Severity string

// Rule evaluation severities.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn allows commit but surfaces the violation to the caller.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Change captures one entity modification performed inside a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
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

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}

// RuleView provides read-only access to domain entities for rule evaluation.
type RuleView interface {
	FindPanel(id string) (Panel, bool)
	FindPanelSnapshot(id string) (PanelSnapshot, bool)
	ListPanelSnapshots(panelID string) []PanelSnapshot
	FindGeneReference(symbol string) (GeneReference, bool)
	ListHistoricalSnapshots(panelID string) []HistoricalSnapshot
}

// Rule defines an evaluation executed within a transaction boundary.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, view RuleView, changes []Change) (Result, error)
}

// RulesEngine orchestrates rule evaluation.
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
func (e *RulesEngine) Evaluate(ctx context.Context, view RuleView, changes []Change) (Result, error) {
	var combined Result
	for _, rule := range e.rules {
		res, err := rule.Evaluate(ctx, view, changes)
		if err != nil {
			return Result{}, err
		}
		combined.Merge(res)
	}
	return combined, nil
}
