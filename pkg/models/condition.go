package models

// LogicalOperator combines the children of a condition group.
type LogicalOperator string

const (
	LogicalAnd LogicalOperator = "and"
	LogicalOr  LogicalOperator = "or"
)

// ComparisonOperator compares a variable against a literal.
type ComparisonOperator string

const (
	OpEquals       ComparisonOperator = "equals"
	OpNotEquals    ComparisonOperator = "not_equals"
	OpContains     ComparisonOperator = "contains"
	OpNotContains  ComparisonOperator = "not_contains"
	OpGreater      ComparisonOperator = "greater"
	OpLess         ComparisonOperator = "less"
	OpGreaterEqual ComparisonOperator = "greater_equal"
	OpLessEqual    ComparisonOperator = "less_equal"
	OpRegex        ComparisonOperator = "regex"
	OpInArray      ComparisonOperator = "in_array"
	OpIsEmpty      ComparisonOperator = "is_empty"
	OpIsNotEmpty   ComparisonOperator = "is_not_empty"
)

// ComparisonOperators lists every supported leaf operator.
func ComparisonOperators() []ComparisonOperator {
	return []ComparisonOperator{
		OpEquals, OpNotEquals, OpContains, OpNotContains,
		OpGreater, OpLess, OpGreaterEqual, OpLessEqual,
		OpRegex, OpInArray, OpIsEmpty, OpIsNotEmpty,
	}
}

// Comparison is a leaf of a condition tree. Variable is a reference such as
// "session.step" or "step".
type Comparison struct {
	Variable string             `json:"variable"        validate:"required"`
	Operator ComparisonOperator `json:"operator"        validate:"required"`
	Value    any                `json:"value,omitempty"`
}

// ConditionGroup is an interior node of a condition tree. Each group declares
// its own operator; there is no implicit precedence.
type ConditionGroup struct {
	Operator    LogicalOperator  `json:"operator"              validate:"required,oneof=and or"`
	Comparisons []Comparison     `json:"comparisons,omitempty" validate:"dive"`
	Groups      []ConditionGroup `json:"groups,omitempty"      validate:"dive"`
}

// IsEmpty reports whether the group has no children.
func (g ConditionGroup) IsEmpty() bool {
	return len(g.Comparisons) == 0 && len(g.Groups) == 0
}
