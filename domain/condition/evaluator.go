// Package condition evaluates an automation rule's Condition tree against
// a conversation snapshot (spec.md §4.3). Evaluation is pure and
// synchronous: no repository calls, no I/O, so the rule engine can run it
// under a hard per-rule timeout without worrying about a stuck dependency.
package condition

import (
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/oxidesk/deskcore/domain"
)

// knownAttributes is the attribute table from spec.md §4.3. An attribute
// not in this set is always an evaluation error, never a false.
var knownAttributes = map[string]struct{}{
	"status":            {},
	"priority":          {},
	"tags":              {},
	"assigned_user_id":  {},
	"assigned_team_id":  {},
}

// Evaluate walks cond against snap and returns one of the three outcomes
// named in domain.ConditionResult. It never panics on malformed input;
// a malformed Simple node (unknown attribute, unsupported operator for
// that attribute's value space) evaluates to ConditionError.
func Evaluate(cond domain.Condition, snap domain.Snapshot) domain.ConditionResult {
	result, _ := evaluate(cond, snap.AttributeJSON())
	return result
}

// EvaluateErr is Evaluate plus the error that produced ConditionError, for
// callers (the rule engine's audit log) that want the message.
func EvaluateErr(cond domain.Condition, snap domain.Snapshot) (domain.ConditionResult, error) {
	return evaluate(cond, snap.AttributeJSON())
}

func evaluate(cond domain.Condition, attrJSON []byte) (domain.ConditionResult, error) {
	switch cond.Kind {
	case domain.ConditionSimple:
		return evalSimple(cond, attrJSON)

	case domain.ConditionAnd:
		for _, child := range cond.Children {
			r, err := evaluate(child, attrJSON)
			if r != domain.ConditionTrue {
				return r, err
			}
		}
		return domain.ConditionTrue, nil

	case domain.ConditionOr:
		var lastErr error
		for _, child := range cond.Children {
			r, err := evaluate(child, attrJSON)
			if r == domain.ConditionTrue {
				return domain.ConditionTrue, nil
			}
			if r == domain.ConditionError {
				lastErr = err
			}
		}
		if lastErr != nil {
			return domain.ConditionError, lastErr
		}
		return domain.ConditionFalse, nil

	case domain.ConditionNot:
		if cond.Child == nil {
			return domain.ConditionError, fmt.Errorf("condition: Not node has no child")
		}
		r, err := evaluate(*cond.Child, attrJSON)
		switch r {
		case domain.ConditionTrue:
			return domain.ConditionFalse, nil
		case domain.ConditionFalse:
			return domain.ConditionTrue, nil
		default:
			return domain.ConditionError, err
		}

	default:
		return domain.ConditionError, fmt.Errorf("condition: unknown kind %q", cond.Kind)
	}
}

func evalSimple(cond domain.Condition, attrJSON []byte) (domain.ConditionResult, error) {
	if _, ok := knownAttributes[cond.Attribute]; !ok {
		return domain.ConditionError, fmt.Errorf("condition: unknown attribute %q", cond.Attribute)
	}

	actual := gjson.GetBytes(attrJSON, cond.Attribute)

	switch cond.Op {
	case domain.OpEquals:
		return boolResult(equalsCanonical(actual, cond.Value)), nil

	case domain.OpNotEquals:
		return boolResult(!equalsCanonical(actual, cond.Value)), nil

	case domain.OpContains:
		if cond.Attribute != "tags" {
			return domain.ConditionError, fmt.Errorf("condition: Contains not supported on %q", cond.Attribute)
		}
		tag, ok := cond.Value.(string)
		if !ok {
			return domain.ConditionError, fmt.Errorf("condition: Contains value must be a string")
		}
		return boolResult(sliceContains(actual, tag)), nil

	case domain.OpIn:
		values, err := toStringSlice(cond.Value)
		if err != nil {
			return domain.ConditionError, err
		}
		if cond.Attribute == "tags" {
			for _, v := range values {
				if sliceContains(actual, v) {
					return domain.ConditionTrue, nil
				}
			}
			return domain.ConditionFalse, nil
		}
		for _, v := range values {
			if equalsCanonical(actual, v) {
				return domain.ConditionTrue, nil
			}
		}
		return domain.ConditionFalse, nil

	case domain.OpNotIn:
		r, err := evalSimple(domain.Condition{Kind: domain.ConditionSimple, Attribute: cond.Attribute, Op: domain.OpIn, Value: cond.Value}, attrJSON)
		if err != nil {
			return domain.ConditionError, err
		}
		if r == domain.ConditionTrue {
			return domain.ConditionFalse, nil
		}
		return domain.ConditionTrue, nil

	default:
		return domain.ConditionError, fmt.Errorf("condition: unknown operator %q", cond.Op)
	}
}

func boolResult(b bool) domain.ConditionResult {
	if b {
		return domain.ConditionTrue
	}
	return domain.ConditionFalse
}

// equalsCanonical compares a gjson result against an expected value after
// coercing both sides to their canonical lowercase string form, so rule
// authors can write Priority("High") or Priority("high") interchangeably.
func equalsCanonical(actual gjson.Result, expected any) bool {
	if expected == nil {
		return actual.Type == gjson.Null
	}
	expStr := fmt.Sprintf("%v", expected)
	return canonical(actual.String()) == canonical(expStr) && actual.Type != gjson.Null
}

func canonical(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

func sliceContains(arr gjson.Result, value string) bool {
	found := false
	arr.ForEach(func(_, v gjson.Result) bool {
		if canonical(v.String()) == canonical(value) {
			found = true
			return false
		}
		return true
	})
	return found
}

func toStringSlice(v any) ([]string, error) {
	raw, ok := v.([]any)
	if !ok {
		if s, ok := v.([]string); ok {
			return s, nil
		}
		return nil, fmt.Errorf("condition: In/NotIn value must be a list")
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		out = append(out, fmt.Sprintf("%v", item))
	}
	return out, nil
}
