package filter

import (
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// FieldType represents the logical type of a field.
type FieldType string

const (
	FieldTypeString   FieldType = "string"
	FieldTypeInt      FieldType = "int"
	FieldTypeDouble   FieldType = "double"
	FieldTypeBool     FieldType = "bool"
	FieldTypeGuid     FieldType = "guid"
	FieldTypeDateTime FieldType = "datetime"
)

// Field captures the schema metadata for an exposed CEL identifier.
type Field struct {
	Name string
	// Property is the OData property name. Defaults to Name.
	Property             string
	Type                 FieldType
	SupportsContains     bool
	AllowedComparisonOps map[ComparisonOperator]bool
}

// Schema collects CEL environment options and field metadata.
type Schema struct {
	Name       string
	Fields     map[string]*Field
	EnvOptions []cel.EnvOption
}

// Field returns the field metadata if present.
func (s Schema) Field(name string) (*Field, bool) {
	f, ok := s.Fields[name]
	if !ok || f == nil {
		return nil, false
	}
	return f, ok
}

// property returns the OData property name for the field.
func (f Field) property() string {
	if f.Property != "" {
		return f.Property
	}
	return f.Name
}

// celType maps the field type to its CEL declaration type.
func (t FieldType) celType() *cel.Type {
	switch t {
	case FieldTypeInt:
		return cel.IntType
	case FieldTypeDouble:
		return cel.DoubleType
	case FieldTypeBool:
		return cel.BoolType
	case FieldTypeDateTime:
		return cel.TimestampType
	default:
		return cel.StringType
	}
}

// NowFunction exposes a CEL `now()` helper returning the current time.
//
// Comparisons against now() are rendered with the time captured at compile
// time, not deferred to the server.
var NowFunction = cel.Function("now",
	cel.Overload("now",
		[]*cel.Type{},
		cel.TimestampType,
		cel.FunctionBinding(func(_ ...ref.Val) ref.Val {
			return types.Timestamp{Time: time.Now()}
		}),
	),
)
