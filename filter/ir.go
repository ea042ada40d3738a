package filter

// Expr is a boolean predicate tree rendered as an OData $filter expression.
//
// Trees are immutable once built and safe to share between goroutines.
type Expr interface {
	isExpr()
	String() string
}

// ComparisonOperator lists the OData comparison operators.
type ComparisonOperator string

const (
	CompareEq ComparisonOperator = "eq"
	CompareNe ComparisonOperator = "ne"
	CompareGt ComparisonOperator = "gt"
	CompareGe ComparisonOperator = "ge"
	CompareLt ComparisonOperator = "lt"
	CompareLe ComparisonOperator = "le"
)

// Comparison represents `{field} {op} {literal}`.
type Comparison struct {
	Field    string
	Operator ComparisonOperator
	Value    Value
}

func (*Comparison) isExpr()          {}
func (c *Comparison) String() string { return Render(c) }

// StringFunctionName enumerates the supported OData string functions.
type StringFunctionName string

const (
	FuncContains   StringFunctionName = "contains"
	FuncStartsWith StringFunctionName = "startswith"
	FuncEndsWith   StringFunctionName = "endswith"
)

// StringFunction represents `{fn}({field}, '{text}')`.
type StringFunction struct {
	Function StringFunctionName
	Field    string
	Text     string
}

func (*StringFunction) isExpr()          {}
func (f *StringFunction) String() string { return Render(f) }

// LogicalOperator enumerates the supported logical operators.
type LogicalOperator string

const (
	LogicalAnd LogicalOperator = "and"
	LogicalOr  LogicalOperator = "or"
)

// Logical joins any number of children with a single operator.
//
// It always renders parenthesized, even with a single child.
type Logical struct {
	Operator LogicalOperator
	Exprs    []Expr
}

func (*Logical) isExpr()          {}
func (l *Logical) String() string { return Render(l) }

// NotExpr negates a child expression.
type NotExpr struct {
	Expr Expr
}

func (*NotExpr) isExpr()          {}
func (n *NotExpr) String() string { return Render(n) }

// Raw is passed through verbatim. Escaping is the caller's responsibility.
type Raw struct {
	Text string
}

func (*Raw) isExpr()          {}
func (r *Raw) String() string { return r.Text }

func Eq(field string, value any) Expr { return compare(field, CompareEq, value) }
func Ne(field string, value any) Expr { return compare(field, CompareNe, value) }
func Gt(field string, value any) Expr { return compare(field, CompareGt, value) }
func Ge(field string, value any) Expr { return compare(field, CompareGe, value) }
func Lt(field string, value any) Expr { return compare(field, CompareLt, value) }
func Le(field string, value any) Expr { return compare(field, CompareLe, value) }

func compare(field string, op ComparisonOperator, value any) Expr {
	return &Comparison{Field: field, Operator: op, Value: ValueOf(value)}
}

func Contains(field, text string) Expr {
	return &StringFunction{Function: FuncContains, Field: field, Text: text}
}

func StartsWith(field, text string) Expr {
	return &StringFunction{Function: FuncStartsWith, Field: field, Text: text}
}

func EndsWith(field, text string) Expr {
	return &StringFunction{Function: FuncEndsWith, Field: field, Text: text}
}

// And combines exprs with `and`. The slice is copied.
func And(exprs ...Expr) Expr {
	return &Logical{Operator: LogicalAnd, Exprs: append([]Expr(nil), exprs...)}
}

// Or combines exprs with `or`. The slice is copied.
func Or(exprs ...Expr) Expr {
	return &Logical{Operator: LogicalOr, Exprs: append([]Expr(nil), exprs...)}
}

func Not(expr Expr) Expr {
	return &NotExpr{Expr: expr}
}

// RawExpr wraps a pre-built OData expression.
func RawExpr(text string) Expr {
	return &Raw{Text: text}
}
