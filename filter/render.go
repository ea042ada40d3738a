package filter

import (
	"strings"
)

type renderer struct {
	out strings.Builder
}

// Render serializes the expression into OData $filter syntax.
//
// Rendering is total: every well-formed tree produces a string. A nil
// expression renders as the empty string.
func Render(expr Expr) string {
	if expr == nil {
		return ""
	}
	r := &renderer{}
	r.renderExpr(expr)
	return r.out.String()
}

func (r *renderer) renderExpr(expr Expr) {
	switch e := expr.(type) {
	case *Comparison:
		r.renderComparison(e)
	case *StringFunction:
		r.renderStringFunction(e)
	case *Logical:
		r.renderLogical(e)
	case *NotExpr:
		r.out.WriteString("not (")
		r.renderExpr(e.Expr)
		r.out.WriteByte(')')
	case *Raw:
		r.out.WriteString(e.Text)
	case nil:
		// Nil children inside a logical node render as nothing.
	default:
		r.out.WriteString(expr.String())
	}
}

func (r *renderer) renderComparison(c *Comparison) {
	value := c.Value
	if value == nil {
		value = Null{}
	}
	r.out.WriteString(c.Field)
	r.out.WriteByte(' ')
	r.out.WriteString(string(c.Operator))
	r.out.WriteByte(' ')
	r.out.WriteString(value.Literal())
}

func (r *renderer) renderStringFunction(f *StringFunction) {
	r.out.WriteString(string(f.Function))
	r.out.WriteByte('(')
	r.out.WriteString(f.Field)
	r.out.WriteString(", ")
	r.out.WriteString(quote(f.Text))
	r.out.WriteByte(')')
}

func (r *renderer) renderLogical(l *Logical) {
	if len(l.Exprs) == 0 {
		// Identity elements of the two operators.
		if l.Operator == LogicalOr {
			r.out.WriteString("false")
		} else {
			r.out.WriteString("true")
		}
		return
	}

	sep := " and "
	if l.Operator == LogicalOr {
		sep = " or "
	}

	r.out.WriteByte('(')
	for i, child := range l.Exprs {
		if i > 0 {
			r.out.WriteString(sep)
		}
		r.renderExpr(child)
	}
	r.out.WriteByte(')')
}
