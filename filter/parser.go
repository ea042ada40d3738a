package filter

import (
	"fmt"
	"time"

	exprv1 "google.golang.org/genproto/googleapis/api/expr/v1alpha1"
)

// node is the intermediate tree built from the CEL AST, before variable
// bindings are known.
type node interface {
	isNode()
}

type logicalNode struct {
	op          LogicalOperator
	left, right node
}

type notNode struct {
	child node
}

// fieldPredicateNode asserts that a boolean field is true.
type fieldPredicateNode struct {
	field *Field
}

type comparisonNode struct {
	left  operand
	op    ComparisonOperator
	right operand
}

type inNode struct {
	left   operand
	values []operand
}

type stringFuncNode struct {
	fn    StringFunctionName
	field *Field
	arg   operand
}

type namedPredicateNode struct {
	name     string
	template string
	args     []operand
}

type constNode struct {
	value bool
}

func (*logicalNode) isNode()        {}
func (*notNode) isNode()            {}
func (*fieldPredicateNode) isNode() {}
func (*comparisonNode) isNode()     {}
func (*inNode) isNode()             {}
func (*stringFuncNode) isNode()     {}
func (*namedPredicateNode) isNode() {}
func (*constNode) isNode()          {}

// operand models the scalar sides of a comparison.
type operand interface {
	isOperand()
}

type fieldOperand struct {
	field *Field
}

// paramOperand references a CEL variable which is not a schema field.
type paramOperand struct {
	name string
}

type literalOperand struct {
	value any
}

// nowOperand is resolved when the program is lowered.
type nowOperand struct{}

func (*fieldOperand) isOperand()   {}
func (*paramOperand) isOperand()   {}
func (*literalOperand) isOperand() {}
func (*nowOperand) isOperand()     {}

func buildNode(expr *exprv1.Expr, schema Schema, predicates map[string]NamedPredicate) (node, error) {
	switch v := expr.ExprKind.(type) {
	case *exprv1.Expr_CallExpr:
		return buildCallNode(v.CallExpr, schema, predicates)
	case *exprv1.Expr_ConstExpr:
		val, err := getConstValue(expr)
		if err != nil {
			return nil, err
		}
		switch v := val.(type) {
		case bool:
			return &constNode{value: v}, nil
		case int64:
			return &constNode{value: v != 0}, nil
		case float64:
			return &constNode{value: v != 0}, nil
		default:
			return nil, fmt.Errorf("filter must evaluate to a boolean value")
		}
	case *exprv1.Expr_IdentExpr:
		name := v.IdentExpr.GetName()
		field, ok := schema.Field(name)
		if !ok {
			return nil, fmt.Errorf("unknown identifier %q", name)
		}
		if field.Type != FieldTypeBool {
			return nil, fmt.Errorf("identifier %q is not boolean", name)
		}
		return &fieldPredicateNode{field: field}, nil
	default:
		return nil, fmt.Errorf("unsupported top-level expression")
	}
}

func buildCallNode(call *exprv1.Expr_Call, schema Schema, predicates map[string]NamedPredicate) (node, error) {
	switch call.Function {
	case "_&&_", "_||_":
		if len(call.Args) != 2 {
			return nil, fmt.Errorf("logical operator expects two arguments")
		}
		left, err := buildNode(call.Args[0], schema, predicates)
		if err != nil {
			return nil, err
		}
		right, err := buildNode(call.Args[1], schema, predicates)
		if err != nil {
			return nil, err
		}
		op := LogicalAnd
		if call.Function == "_||_" {
			op = LogicalOr
		}
		return &logicalNode{op: op, left: left, right: right}, nil

	case "!_":
		if len(call.Args) != 1 {
			return nil, fmt.Errorf("logical NOT expects one argument")
		}
		child, err := buildNode(call.Args[0], schema, predicates)
		if err != nil {
			return nil, err
		}
		return &notNode{child: child}, nil

	case "_==_", "_!=_", "_<_", "_>_", "_<=_", "_>=_":
		return buildComparisonNode(call, schema)

	case "@in":
		return buildInNode(call, schema)

	case "contains":
		return buildStringFuncNode(call, schema, FuncContains)

	case "startsWith":
		return buildStringFuncNode(call, schema, FuncStartsWith)

	case "endsWith":
		return buildStringFuncNode(call, schema, FuncEndsWith)

	case "odata":
		return buildNamedPredicateNode(call, schema, predicates)

	default:
		return nil, fmt.Errorf("unsupported call expression %q", call.Function)
	}
}

func buildNamedPredicateNode(call *exprv1.Expr_Call, schema Schema, predicates map[string]NamedPredicate) (node, error) {
	if predicates == nil {
		return nil, fmt.Errorf("odata() is not enabled (no predicates registered)")
	}
	if len(call.Args) != 1 && len(call.Args) != 2 {
		return nil, fmt.Errorf("odata() expects 1 or 2 arguments")
	}

	nameAny, err := getConstValue(call.Args[0])
	if err != nil {
		return nil, fmt.Errorf("odata() predicate name must be a string literal")
	}
	name, ok := nameAny.(string)
	if !ok || name == "" {
		return nil, fmt.Errorf("odata() predicate name must be a non-empty string literal")
	}
	pred, ok := predicates[name]
	if !ok {
		return nil, fmt.Errorf("unknown odata predicate %q", name)
	}

	var args []operand
	if len(call.Args) == 2 {
		listExpr := call.Args[1].GetListExpr()
		if listExpr == nil {
			return nil, fmt.Errorf("odata() args must be a list literal")
		}
		args = make([]operand, 0, len(listExpr.Elements))
		for _, elem := range listExpr.Elements {
			v, err := buildOperand(elem, schema)
			if err != nil {
				return nil, err
			}
			if _, isField := v.(*fieldOperand); isField {
				return nil, fmt.Errorf("odata() args must be literals or params")
			}
			args = append(args, v)
		}
	}

	template, err := interpolateFields(pred.Template, schema)
	if err != nil {
		return nil, fmt.Errorf("predicate %q: %w", name, err)
	}
	return &namedPredicateNode{name: name, template: template, args: args}, nil
}

func buildComparisonNode(call *exprv1.Expr_Call, schema Schema) (node, error) {
	if len(call.Args) != 2 {
		return nil, fmt.Errorf("comparison expects two arguments")
	}
	op, err := toComparisonOperator(call.Function)
	if err != nil {
		return nil, err
	}

	left, err := buildOperand(call.Args[0], schema)
	if err != nil {
		return nil, err
	}
	right, err := buildOperand(call.Args[1], schema)
	if err != nil {
		return nil, err
	}

	for _, side := range []operand{left, right} {
		if f, ok := side.(*fieldOperand); ok && f.field.AllowedComparisonOps != nil {
			if !f.field.AllowedComparisonOps[op] {
				return nil, fmt.Errorf("operator %s not allowed for field %q", op, f.field.Name)
			}
		}
	}

	return &comparisonNode{left: left, op: op, right: right}, nil
}

func buildInNode(call *exprv1.Expr_Call, schema Schema) (node, error) {
	if len(call.Args) != 2 {
		return nil, fmt.Errorf("in operator expects two arguments")
	}

	left, err := buildOperand(call.Args[0], schema)
	if err != nil {
		return nil, err
	}
	if _, ok := left.(*fieldOperand); !ok {
		return nil, fmt.Errorf("left side of in must be a field")
	}

	if listExpr := call.Args[1].GetListExpr(); listExpr != nil {
		values := make([]operand, 0, len(listExpr.Elements))
		for _, element := range listExpr.Elements {
			value, err := buildOperand(element, schema)
			if err != nil {
				return nil, err
			}
			values = append(values, value)
		}
		return &inNode{left: left, values: values}, nil
	}

	// Allow: `field in some_list_param`.
	right, err := buildOperand(call.Args[1], schema)
	if err != nil {
		return nil, err
	}
	if _, ok := right.(*paramOperand); !ok {
		return nil, fmt.Errorf("right side of in must be a list literal or param")
	}
	return &inNode{left: left, values: []operand{right}}, nil
}

func buildStringFuncNode(call *exprv1.Expr_Call, schema Schema, fn StringFunctionName) (node, error) {
	if call.Target == nil {
		return nil, fmt.Errorf("%s requires a target", call.Function)
	}
	targetName, err := getIdentName(call.Target)
	if err != nil {
		return nil, err
	}

	field, ok := schema.Field(targetName)
	if !ok {
		return nil, fmt.Errorf("unknown identifier %q", targetName)
	}
	if !field.SupportsContains {
		return nil, fmt.Errorf("identifier %q does not support %s()", targetName, call.Function)
	}
	if len(call.Args) != 1 {
		return nil, fmt.Errorf("%s expects exactly one argument", call.Function)
	}
	value, err := buildOperand(call.Args[0], schema)
	if err != nil {
		return nil, err
	}
	switch value.(type) {
	case *literalOperand, *paramOperand:
		// ok
	default:
		return nil, fmt.Errorf("%s argument must be a literal or param", call.Function)
	}

	return &stringFuncNode{fn: fn, field: field, arg: value}, nil
}

func buildOperand(expr *exprv1.Expr, schema Schema) (operand, error) {
	if identName, err := getIdentName(expr); err == nil {
		if field, ok := schema.Field(identName); ok {
			return &fieldOperand{field: field}, nil
		}
		return &paramOperand{name: identName}, nil
	}

	if literal, err := getConstValue(expr); err == nil {
		return &literalOperand{value: literal}, nil
	}

	if value, ok, err := evaluateNumeric(expr); err != nil {
		return nil, err
	} else if ok {
		return &literalOperand{value: value}, nil
	}

	if call := expr.GetCallExpr(); call != nil {
		switch call.Function {
		case "now":
			return &nowOperand{}, nil
		case "timestamp":
			if len(call.Args) != 1 {
				return nil, fmt.Errorf("timestamp() expects one argument")
			}
			raw, err := getConstValue(call.Args[0])
			if err != nil {
				return nil, fmt.Errorf("timestamp() argument must be a string literal")
			}
			s, ok := raw.(string)
			if !ok {
				return nil, fmt.Errorf("timestamp() argument must be a string literal")
			}
			ts, err := time.Parse(time.RFC3339Nano, s)
			if err != nil {
				return nil, fmt.Errorf("invalid timestamp %q: %w", s, err)
			}
			return &literalOperand{value: ts}, nil
		}
	}

	return nil, fmt.Errorf("unsupported value expression")
}

func toComparisonOperator(fn string) (ComparisonOperator, error) {
	switch fn {
	case "_==_":
		return CompareEq, nil
	case "_!=_":
		return CompareNe, nil
	case "_<_":
		return CompareLt, nil
	case "_>_":
		return CompareGt, nil
	case "_<=_":
		return CompareLe, nil
	case "_>=_":
		return CompareGe, nil
	default:
		return "", fmt.Errorf("unsupported comparison operator %q", fn)
	}
}

func getIdentName(expr *exprv1.Expr) (string, error) {
	if ident := expr.GetIdentExpr(); ident != nil {
		return ident.GetName(), nil
	}
	return "", fmt.Errorf("expression is not an identifier")
}

func getConstValue(expr *exprv1.Expr) (any, error) {
	v, ok := expr.ExprKind.(*exprv1.Expr_ConstExpr)
	if !ok {
		return nil, fmt.Errorf("expression is not a literal")
	}
	switch x := v.ConstExpr.ConstantKind.(type) {
	case *exprv1.Constant_StringValue:
		return v.ConstExpr.GetStringValue(), nil
	case *exprv1.Constant_Int64Value:
		return v.ConstExpr.GetInt64Value(), nil
	case *exprv1.Constant_Uint64Value:
		return int64(v.ConstExpr.GetUint64Value()), nil
	case *exprv1.Constant_DoubleValue:
		return v.ConstExpr.GetDoubleValue(), nil
	case *exprv1.Constant_BoolValue:
		return v.ConstExpr.GetBoolValue(), nil
	case *exprv1.Constant_NullValue:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported constant %T", x)
	}
}

// evaluateNumeric folds integer arithmetic over literals, e.g. `-(1 + 2)`.
func evaluateNumeric(expr *exprv1.Expr) (int64, bool, error) {
	if literal, err := getConstValue(expr); err == nil {
		switch v := literal.(type) {
		case int64:
			return v, true, nil
		default:
			return 0, false, nil
		}
	}

	call := expr.GetCallExpr()
	if call == nil {
		return 0, false, nil
	}

	switch call.Function {
	case "_+_", "_-_", "_*_":
		if len(call.Args) != 2 {
			return 0, false, fmt.Errorf("numeric %q expects two arguments", call.Function)
		}
		left, ok, err := evaluateNumeric(call.Args[0])
		if err != nil || !ok {
			return 0, ok, err
		}
		right, ok, err := evaluateNumeric(call.Args[1])
		if err != nil || !ok {
			return 0, ok, err
		}
		switch call.Function {
		case "_+_":
			return left + right, true, nil
		case "_-_":
			return left - right, true, nil
		case "_*_":
			return left * right, true, nil
		}
	case "-_":
		if len(call.Args) != 1 {
			return 0, false, fmt.Errorf("unary negation expects one argument")
		}
		val, ok, err := evaluateNumeric(call.Args[0])
		if err != nil || !ok {
			return 0, ok, err
		}
		return -val, true, nil
	}

	return 0, false, nil
}
