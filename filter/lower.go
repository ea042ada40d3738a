package filter

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

func lower(n node, bindings Bindings) (Expr, error) {
	switch c := n.(type) {
	case *logicalNode:
		flattened := make([]node, 0, 4)
		flattenLogical(c, c.op, &flattened)
		children := make([]Expr, 0, len(flattened))
		for _, child := range flattened {
			expr, err := lower(child, bindings)
			if err != nil {
				return nil, err
			}
			children = append(children, expr)
		}
		return &Logical{Operator: c.op, Exprs: children}, nil

	case *notNode:
		child, err := lower(c.child, bindings)
		if err != nil {
			return nil, err
		}
		return Not(child), nil

	case *fieldPredicateNode:
		return &Comparison{Field: c.field.property(), Operator: CompareEq, Value: Boolean(true)}, nil

	case *comparisonNode:
		return lowerComparison(c, bindings)

	case *inNode:
		return lowerIn(c, bindings)

	case *stringFuncNode:
		raw, err := resolveOperand(c.arg, bindings)
		if err != nil {
			return nil, err
		}
		text, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("%s() on %q expects a string argument, got %T", c.fn, c.field.Name, raw)
		}
		return &StringFunction{Function: c.fn, Field: c.field.property(), Text: text}, nil

	case *namedPredicateNode:
		return lowerNamedPredicate(c, bindings)

	case *constNode:
		if c.value {
			return RawExpr("true"), nil
		}
		return RawExpr("false"), nil

	default:
		return nil, fmt.Errorf("unsupported node type %T", c)
	}
}

// flattenLogical collapses left-leaning chains such as `a && b && c` into a
// single node so they render as `(a and b and c)`.
func flattenLogical(n node, op LogicalOperator, out *[]node) {
	if n == nil {
		return
	}
	logical, ok := n.(*logicalNode)
	if ok && logical.op == op {
		flattenLogical(logical.left, op, out)
		flattenLogical(logical.right, op, out)
		return
	}
	*out = append(*out, n)
}

func lowerComparison(c *comparisonNode, bindings Bindings) (Expr, error) {
	left, right, op := c.left, c.right, c.op

	// Allow symmetry: `0 < statecode`.
	if _, ok := left.(*fieldOperand); !ok {
		if _, ok := right.(*fieldOperand); ok {
			inverted, err := invertComparisonOperator(op)
			if err != nil {
				return nil, err
			}
			left, right, op = right, left, inverted
		}
	}

	lf, ok := left.(*fieldOperand)
	if !ok {
		// No field refs: fold to a constant using bindings only.
		l, err := resolveOperand(left, bindings)
		if err != nil {
			return nil, err
		}
		r, err := resolveOperand(right, bindings)
		if err != nil {
			return nil, err
		}
		result, err := compareValues(l, op, r)
		if err != nil {
			return nil, err
		}
		if result {
			return RawExpr("true"), nil
		}
		return RawExpr("false"), nil
	}

	if rf, ok := right.(*fieldOperand); ok {
		return RawExpr(fmt.Sprintf("%s %s %s", lf.field.property(), op, rf.field.property())), nil
	}

	raw, err := resolveOperand(right, bindings)
	if err != nil {
		return nil, err
	}
	value, err := convertForField(lf.field, raw)
	if err != nil {
		return nil, err
	}
	return &Comparison{Field: lf.field.property(), Operator: op, Value: value}, nil
}

func lowerIn(c *inNode, bindings Bindings) (Expr, error) {
	field := c.left.(*fieldOperand).field

	raws := make([]any, 0, len(c.values))
	for _, v := range c.values {
		raw, err := resolveOperand(v, bindings)
		if err != nil {
			return nil, err
		}
		if _, isParam := v.(*paramOperand); isParam {
			if list, ok := toAnySlice(raw); ok {
				raws = append(raws, list...)
				continue
			}
		}
		raws = append(raws, raw)
	}

	if len(raws) == 0 {
		return RawExpr("false"), nil
	}
	children := make([]Expr, 0, len(raws))
	for _, raw := range raws {
		value, err := convertForField(field, raw)
		if err != nil {
			return nil, err
		}
		children = append(children, &Comparison{Field: field.property(), Operator: CompareEq, Value: value})
	}
	return &Logical{Operator: LogicalOr, Exprs: children}, nil
}

func resolveOperand(op operand, bindings Bindings) (any, error) {
	switch v := op.(type) {
	case *literalOperand:
		return v.value, nil
	case *nowOperand:
		return time.Now(), nil
	case *paramOperand:
		if bindings == nil {
			return nil, fmt.Errorf("missing binding for %q", v.name)
		}
		value, ok := bindings[v.name]
		if !ok {
			return nil, fmt.Errorf("missing binding for %q", v.name)
		}
		return value, nil
	case *fieldOperand:
		return nil, fmt.Errorf("field %q cannot be used as a value here", v.field.Name)
	default:
		return nil, fmt.Errorf("unsupported operand %T", op)
	}
}

// convertForField coerces a raw value to the literal type the field expects.
func convertForField(field *Field, raw any) (Value, error) {
	if raw == nil {
		return Null{}, nil
	}
	switch field.Type {
	case FieldTypeInt:
		n, err := toInt64(raw)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", field.Name, err)
		}
		return Integer(n), nil
	case FieldTypeDouble:
		f, err := toFloat64(raw)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", field.Name, err)
		}
		return Number(f), nil
	case FieldTypeBool:
		b, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("field %q expects bool, got %T", field.Name, raw)
		}
		return Boolean(b), nil
	case FieldTypeGuid:
		switch v := raw.(type) {
		case uuid.UUID:
			return Guid(v), nil
		case string:
			id, err := uuid.Parse(v)
			if err != nil {
				return nil, fmt.Errorf("field %q expects a guid: %w", field.Name, err)
			}
			return Guid(id), nil
		default:
			return nil, fmt.Errorf("field %q expects a guid, got %T", field.Name, raw)
		}
	case FieldTypeDateTime:
		switch v := raw.(type) {
		case time.Time:
			return DateTime(v), nil
		case string:
			ts, err := time.Parse(time.RFC3339Nano, v)
			if err != nil {
				return nil, fmt.Errorf("field %q expects an RFC3339 timestamp: %w", field.Name, err)
			}
			return DateTime(ts), nil
		default:
			return nil, fmt.Errorf("field %q expects a timestamp, got %T", field.Name, raw)
		}
	default:
		return ValueOf(raw), nil
	}
}

func invertComparisonOperator(op ComparisonOperator) (ComparisonOperator, error) {
	switch op {
	case CompareEq, CompareNe:
		return op, nil
	case CompareLt:
		return CompareGt, nil
	case CompareLe:
		return CompareGe, nil
	case CompareGt:
		return CompareLt, nil
	case CompareGe:
		return CompareLe, nil
	default:
		return "", fmt.Errorf("unsupported comparison operator %s", op)
	}
}
