package filter

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Value is a scalar literal on the right-hand side of a comparison.
type Value interface {
	isValue()
	// Literal renders the value using OData literal syntax.
	Literal() string
}

// String is a single-quoted string literal.
type String string

// Number is a decimal literal.
//
// Non-finite values have no OData representation; callers must avoid them.
type Number float64

// Integer is an integral literal.
type Integer int64

// Boolean renders as unquoted true/false.
type Boolean bool

// Null is the null literal.
type Null struct{}

// Guid renders unquoted, as Edm.Guid literals are.
type Guid uuid.UUID

// DateTime renders as an unquoted Edm.DateTimeOffset literal.
type DateTime time.Time

func (String) isValue()   {}
func (Number) isValue()   {}
func (Integer) isValue()  {}
func (Boolean) isValue()  {}
func (Null) isValue()     {}
func (Guid) isValue()     {}
func (DateTime) isValue() {}

func (s String) Literal() string { return quote(string(s)) }

func (n Number) Literal() string { return strconv.FormatFloat(float64(n), 'f', -1, 64) }

func (i Integer) Literal() string  { return strconv.FormatInt(int64(i), 10) }
func (b Boolean) Literal() string  { return strconv.FormatBool(bool(b)) }
func (Null) Literal() string       { return "null" }
func (g Guid) Literal() string     { return uuid.UUID(g).String() }
func (d DateTime) Literal() string { return time.Time(d).UTC().Format(time.RFC3339Nano) }

// quote wraps s in single quotes, doubling any embedded quote.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// EscapeString doubles single quotes so s can be embedded in a quoted literal.
func EscapeString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// ValueOf converts a Go value to a literal.
//
// Unknown types are rendered as string literals using their fmt representation.
func ValueOf(v any) Value {
	switch x := v.(type) {
	case nil:
		return Null{}
	case Value:
		return x
	case string:
		return String(x)
	case bool:
		return Boolean(x)
	case int:
		return Integer(x)
	case int8:
		return Integer(x)
	case int16:
		return Integer(x)
	case int32:
		return Integer(x)
	case int64:
		return Integer(x)
	case uint:
		return Integer(x)
	case uint8:
		return Integer(x)
	case uint16:
		return Integer(x)
	case uint32:
		return Integer(x)
	case uint64:
		return Integer(x)
	case float32:
		return Number(x)
	case float64:
		return Number(x)
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return Integer(i)
		}
		if f, err := x.Float64(); err == nil {
			return Number(f)
		}
		return String(x.String())
	case uuid.UUID:
		return Guid(x)
	case time.Time:
		return DateTime(x)
	case fmt.Stringer:
		return String(x.String())
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return Null{}
		}
		return ValueOf(rv.Elem().Interface())
	}
	return String(fmt.Sprint(v))
}
