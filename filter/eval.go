package filter

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Evaluate evaluates expr against a decoded record.
//
// Field names may use OData path syntax (`parent/name`) to reach nested
// objects. Missing properties compare as null. Raw expressions other than the
// literals `true` and `false` cannot be evaluated and return an error.
func Evaluate(expr Expr, record map[string]any) (bool, error) {
	switch e := expr.(type) {
	case nil:
		return true, nil

	case *Logical:
		switch e.Operator {
		case LogicalAnd:
			for _, child := range e.Exprs {
				ok, err := Evaluate(child, record)
				if err != nil {
					return false, err
				}
				if !ok {
					return false, nil
				}
			}
			return true, nil
		case LogicalOr:
			for _, child := range e.Exprs {
				ok, err := Evaluate(child, record)
				if err != nil {
					return false, err
				}
				if ok {
					return true, nil
				}
			}
			return false, nil
		default:
			return false, fmt.Errorf("unsupported logical operator %s", e.Operator)
		}

	case *NotExpr:
		val, err := Evaluate(e.Expr, record)
		if err != nil {
			return false, err
		}
		return !val, nil

	case *Comparison:
		value := e.Value
		if value == nil {
			value = Null{}
		}
		return compareValues(lookup(record, e.Field), e.Operator, valueToAny(value))

	case *StringFunction:
		raw := lookup(record, e.Field)
		if raw == nil {
			return false, nil
		}
		s, ok := raw.(string)
		if !ok {
			return false, fmt.Errorf("%s() on %q expects a string value, got %T", e.Function, e.Field, raw)
		}
		switch e.Function {
		case FuncContains:
			return strings.Contains(s, e.Text), nil
		case FuncStartsWith:
			return strings.HasPrefix(s, e.Text), nil
		case FuncEndsWith:
			return strings.HasSuffix(s, e.Text), nil
		default:
			return false, fmt.Errorf("unsupported string function %q", e.Function)
		}

	case *Raw:
		switch strings.TrimSpace(e.Text) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		default:
			return false, fmt.Errorf("raw expression %q cannot be evaluated", e.Text)
		}

	default:
		return false, fmt.Errorf("unsupported expression type %T", expr)
	}
}

func lookup(record map[string]any, path string) any {
	var current any = record
	for _, segment := range strings.Split(path, "/") {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = obj[segment]
	}
	return current
}

func valueToAny(v Value) any {
	switch x := v.(type) {
	case String:
		return string(x)
	case Number:
		return float64(x)
	case Integer:
		return int64(x)
	case Boolean:
		return bool(x)
	case Guid:
		return uuid.UUID(x)
	case DateTime:
		return time.Time(x)
	default:
		return nil
	}
}

func compareValues(left any, op ComparisonOperator, right any) (bool, error) {
	if left == nil || right == nil {
		switch op {
		case CompareEq:
			return left == nil && right == nil, nil
		case CompareNe:
			return !(left == nil && right == nil), nil
		default:
			return false, nil
		}
	}

	switch r := right.(type) {
	case uuid.UUID:
		l, err := toUUID(left)
		if err != nil {
			return false, err
		}
		return applyOrdering(strings.Compare(l.String(), r.String()), op)
	case time.Time:
		l, err := toTime(left)
		if err != nil {
			return false, err
		}
		return applyOrdering(l.Compare(r), op)
	case string:
		l, ok := left.(string)
		if !ok {
			return false, fmt.Errorf("cannot compare %T with string", left)
		}
		return applyOrdering(strings.Compare(l, r), op)
	case bool:
		l, ok := left.(bool)
		if !ok {
			return false, fmt.Errorf("cannot compare %T with bool", left)
		}
		switch op {
		case CompareEq:
			return l == r, nil
		case CompareNe:
			return l != r, nil
		default:
			return false, fmt.Errorf("operator %s not supported for bool", op)
		}
	}

	l, err := toFloat64(left)
	if err != nil {
		return false, err
	}
	r, err := toFloat64(right)
	if err != nil {
		return false, err
	}
	switch {
	case l < r:
		return applyOrdering(-1, op)
	case l > r:
		return applyOrdering(1, op)
	default:
		return applyOrdering(0, op)
	}
}

func applyOrdering(cmp int, op ComparisonOperator) (bool, error) {
	switch op {
	case CompareEq:
		return cmp == 0, nil
	case CompareNe:
		return cmp != 0, nil
	case CompareLt:
		return cmp < 0, nil
	case CompareLe:
		return cmp <= 0, nil
	case CompareGt:
		return cmp > 0, nil
	case CompareGe:
		return cmp >= 0, nil
	default:
		return false, fmt.Errorf("unsupported comparison operator %s", op)
	}
}

func toUUID(value any) (uuid.UUID, error) {
	switch v := value.(type) {
	case uuid.UUID:
		return v, nil
	case string:
		return uuid.Parse(v)
	default:
		return uuid.Nil, fmt.Errorf("cannot convert %T to guid", value)
	}
}

func toTime(value any) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case string:
		return time.Parse(time.RFC3339Nano, v)
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(n, 0), nil
	default:
		return time.Time{}, fmt.Errorf("cannot convert %T to timestamp", value)
	}
}
