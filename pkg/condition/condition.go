// Package condition evaluates condition trees against scoped variables.
package condition

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/dukex/loyalflow/pkg/models"
)

// ErrInvalidExpression indicates a condition tree that cannot be evaluated.
var ErrInvalidExpression = errors.New("invalid expression")

// Lookup resolves a variable reference. The boolean is false when the
// variable is undefined.
type Lookup interface {
	Lookup(ref string) (any, bool)
}

var (
	regexMu    sync.RWMutex
	regexCache = map[string]*regexp.Regexp{}
)

// Evaluate evaluates the group. An undefined variable makes its comparison
// false regardless of the operator.
func Evaluate(group models.ConditionGroup, vars Lookup) (bool, error) {
	switch group.Operator {
	case models.LogicalAnd:
		for _, c := range group.Comparisons {
			ok, err := compare(c, vars)
			if err != nil || !ok {
				return false, err
			}
		}

		for _, g := range group.Groups {
			ok, err := Evaluate(g, vars)
			if err != nil || !ok {
				return false, err
			}
		}

		return true, nil
	case models.LogicalOr:
		for _, c := range group.Comparisons {
			ok, err := compare(c, vars)
			if err != nil || ok {
				return ok, err
			}
		}

		for _, g := range group.Groups {
			ok, err := Evaluate(g, vars)
			if err != nil || ok {
				return ok, err
			}
		}

		return false, nil
	default:
		return false, fmt.Errorf("%w: unknown group operator %q", ErrInvalidExpression, group.Operator)
	}
}

// Validate checks operators and regex patterns without evaluating anything.
func Validate(group models.ConditionGroup) error {
	if group.Operator != models.LogicalAnd && group.Operator != models.LogicalOr {
		return fmt.Errorf("%w: unknown group operator %q", ErrInvalidExpression, group.Operator)
	}

	if group.IsEmpty() {
		return fmt.Errorf("%w: empty %s group", ErrInvalidExpression, group.Operator)
	}

	for _, c := range group.Comparisons {
		if c.Variable == "" {
			return fmt.Errorf("%w: comparison without variable", ErrInvalidExpression)
		}

		if !knownOperator(c.Operator) {
			return fmt.Errorf("%w: unknown operator %q", ErrInvalidExpression, c.Operator)
		}

		if c.Operator == models.OpRegex {
			if _, err := compileRegex(c.Value); err != nil {
				return err
			}
		}
	}

	for _, g := range group.Groups {
		if err := Validate(g); err != nil {
			return err
		}
	}

	return nil
}

func knownOperator(op models.ComparisonOperator) bool {
	for _, known := range models.ComparisonOperators() {
		if op == known {
			return true
		}
	}

	return false
}

func compare(c models.Comparison, vars Lookup) (bool, error) {
	actual, ok := vars.Lookup(c.Variable)
	if !ok {
		return false, nil
	}

	switch c.Operator {
	case models.OpEquals:
		return LooseEqual(actual, c.Value), nil
	case models.OpNotEquals:
		return !LooseEqual(actual, c.Value), nil
	case models.OpContains:
		return contains(actual, c.Value), nil
	case models.OpNotContains:
		return !contains(actual, c.Value), nil
	case models.OpGreater:
		cmp, ok := order(actual, c.Value)
		return ok && cmp > 0, nil
	case models.OpLess:
		cmp, ok := order(actual, c.Value)
		return ok && cmp < 0, nil
	case models.OpGreaterEqual:
		cmp, ok := order(actual, c.Value)
		return ok && cmp >= 0, nil
	case models.OpLessEqual:
		cmp, ok := order(actual, c.Value)
		return ok && cmp <= 0, nil
	case models.OpRegex:
		re, err := compileRegex(c.Value)
		if err != nil {
			return false, err
		}

		return re.MatchString(toString(actual)), nil
	case models.OpInArray:
		return inArray(actual, c.Value), nil
	case models.OpIsEmpty:
		return IsEmpty(actual), nil
	case models.OpIsNotEmpty:
		return !IsEmpty(actual), nil
	default:
		return false, fmt.Errorf("%w: unknown operator %q", ErrInvalidExpression, c.Operator)
	}
}

func compileRegex(pattern any) (*regexp.Regexp, error) {
	s, ok := pattern.(string)
	if !ok {
		return nil, fmt.Errorf("%w: regex pattern must be a string, got %T", ErrInvalidExpression, pattern)
	}

	regexMu.RLock()
	re, ok := regexCache[s]
	regexMu.RUnlock()

	if ok {
		return re, nil
	}

	re, err := regexp.Compile(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidExpression, err)
	}

	regexMu.Lock()
	regexCache[s] = re
	regexMu.Unlock()

	return re, nil
}

// ToNumber converts numeric values and numeric strings to float64.
func ToNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// LooseEqual compares numbers numerically and everything else by value or
// string form.
func LooseEqual(a, b any) bool {
	if an, ok := ToNumber(a); ok {
		if bn, ok := ToNumber(b); ok {
			return an == bn
		}
	}

	if ab, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			return ab == bb
		}
	}

	if reflect.DeepEqual(a, b) {
		return true
	}

	if isScalar(a) && isScalar(b) {
		return toString(a) == toString(b)
	}

	return false
}

// IsEmpty reports nil, empty strings and empty collections.
func IsEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Slice, reflect.Map, reflect.Array:
			return rv.Len() == 0
		default:
			return false
		}
	}
}

func contains(haystack, needle any) bool {
	switch h := haystack.(type) {
	case string:
		return strings.Contains(h, toString(needle))
	case []any:
		for _, item := range h {
			if LooseEqual(item, needle) {
				return true
			}
		}

		return false
	case map[string]any:
		_, ok := h[toString(needle)]
		return ok
	default:
		return strings.Contains(toString(haystack), toString(needle))
	}
}

func inArray(value, list any) bool {
	switch l := list.(type) {
	case []any:
		for _, item := range l {
			if LooseEqual(value, item) {
				return true
			}
		}
	case []string:
		for _, item := range l {
			if LooseEqual(value, item) {
				return true
			}
		}
	case string:
		for _, item := range strings.Split(l, ",") {
			if LooseEqual(value, strings.TrimSpace(item)) {
				return true
			}
		}
	}

	return false
}

// order compares numerically when both sides are numbers, otherwise
// lexicographically when both sides are strings.
func order(a, b any) (int, bool) {
	if an, ok := ToNumber(a); ok {
		if bn, ok := ToNumber(b); ok {
			switch {
			case an < bn:
				return -1, true
			case an > bn:
				return 1, true
			default:
				return 0, true
			}
		}
	}

	as, aok := a.(string)
	bs, bok := b.(string)

	if aok && bok {
		return strings.Compare(as, bs), true
	}

	return 0, false
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool, float64, float32, int, int32, int64, uint, uint64:
		return true
	default:
		return false
	}
}

func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
