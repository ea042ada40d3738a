package filter

import (
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/google/cel-go/cel"
	"github.com/google/uuid"
)

var (
	timeType = reflect.TypeOf(time.Time{})
	uuidType = reflect.TypeOf(uuid.UUID{})
)

// SchemaFromStruct builds a Schema from a Go struct type using reflection.
//
// It is intended as a convenience helper when the filter schema matches an
// entity model struct.
//
// Supported Go field types:
//   - string / *string          -> FieldTypeString
//   - bool / *bool              -> FieldTypeBool
//   - int/uint variants         -> FieldTypeInt
//   - float32 / float64         -> FieldTypeDouble
//   - uuid.UUID / *uuid.UUID    -> FieldTypeGuid
//   - time.Time / *time.Time    -> FieldTypeDateTime
//
// Field name resolution precedence:
//  1. `filter` tag (first segment, json-style)
//  2. `json` tag
//  3. snake_case of Go field name
//
// The OData property defaults to the `json` tag name, falling back to the
// field name.
//
// The `filter` tag supports:
//   - "-" to skip the field
//   - "contains" to enable <field>.contains(x), startsWith and endsWith
//   - "property=..." to set the OData property name
//   - "type=..." to force the FieldType (e.g. guid for string-typed ids)
//   - "ops=..." to set AllowedComparisonOps (pipe separated; eq|ne|lt|le|gt|ge)
func SchemaFromStruct(name string, model any) (Schema, error) {
	rt, err := normalizeStructType(model)
	if err != nil {
		return Schema{}, err
	}

	if strings.TrimSpace(name) == "" {
		base := rt.Name()
		if base == "" {
			return Schema{}, fmt.Errorf("schema name is required for anonymous structs")
		}
		name = snakeCase(base)
	}

	fields := map[string]*Field{}
	envOptions := make([]cel.EnvOption, 0, rt.NumField())
	if err := collectFieldsFromStruct(rt, fields, &envOptions); err != nil {
		return Schema{}, err
	}

	return Schema{
		Name:       name,
		Fields:     fields,
		EnvOptions: envOptions,
	}, nil
}

func normalizeStructType(model any) (reflect.Type, error) {
	if model == nil {
		return nil, fmt.Errorf("model is nil")
	}

	var rt reflect.Type
	if t, ok := model.(reflect.Type); ok {
		rt = t
	} else {
		rt = reflect.TypeOf(model)
	}

	for rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	if rt.Kind() != reflect.Struct {
		return nil, fmt.Errorf("model must be a struct (or pointer to struct), got %s", rt.Kind())
	}
	return rt, nil
}

type parsedFilterTag struct {
	skip             bool
	explicit         bool
	name             string
	property         string
	fieldType        FieldType
	supportsContains bool
	allowedOps       map[ComparisonOperator]bool
}

func parseFilterTag(raw string) parsedFilterTag {
	if raw == "" {
		return parsedFilterTag{}
	}

	out := parsedFilterTag{explicit: true}
	parts := strings.Split(raw, ",")
	for idx, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if part == "-" {
			out.skip = true
			return out
		}
		if idx == 0 && !strings.Contains(part, "=") && part != "contains" {
			out.name = part
			continue
		}

		switch {
		case part == "contains":
			out.supportsContains = true
		case strings.HasPrefix(part, "property="):
			out.property = strings.TrimPrefix(part, "property=")
		case strings.HasPrefix(part, "type="):
			out.fieldType = FieldType(strings.TrimPrefix(part, "type="))
		case strings.HasPrefix(part, "ops="):
			out.allowedOps = parseComparisonOps(strings.TrimPrefix(part, "ops="))
		}
	}

	return out
}

func parseComparisonOps(spec string) map[ComparisonOperator]bool {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil
	}

	out := map[ComparisonOperator]bool{}
	for _, raw := range strings.Split(spec, "|") {
		raw = strings.TrimSpace(raw)
		switch raw {
		case "eq", "==":
			out[CompareEq] = true
		case "ne", "neq", "!=":
			out[CompareNe] = true
		case "lt", "<":
			out[CompareLt] = true
		case "le", "lte", "<=":
			out[CompareLe] = true
		case "gt", ">":
			out[CompareGt] = true
		case "ge", "gte", ">=":
			out[CompareGe] = true
		}
	}
	return out
}

func collectFieldsFromStruct(rt reflect.Type, fields map[string]*Field, envOptions *[]cel.EnvOption) error {
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)

		// Skip unexported fields unless they are anonymous (embedded) structs.
		if sf.PkgPath != "" && !sf.Anonymous {
			continue
		}

		filterTagRaw, filterTagPresent := sf.Tag.Lookup("filter")
		tag := parseFilterTag(filterTagRaw)
		if tag.skip {
			continue
		}

		fieldType := sf.Type
		for fieldType.Kind() == reflect.Pointer {
			fieldType = fieldType.Elem()
		}

		// Flatten embedded structs by default.
		if sf.Anonymous && fieldType.Kind() == reflect.Struct && fieldType != timeType && !filterTagPresent {
			if err := collectFieldsFromStruct(fieldType, fields, envOptions); err != nil {
				return err
			}
			continue
		}

		jsonName := pickTagName(sf.Tag.Get("json"))
		if jsonName == "-" {
			continue
		}

		name := tag.name
		if name == "" {
			name = jsonName
		}
		if name == "" {
			name = snakeCase(sf.Name)
		}

		ft := tag.fieldType
		if ft == "" {
			inferred, err := inferFieldType(sf.Type)
			if err != nil {
				if tag.explicit {
					return fmt.Errorf("field %s: %w", sf.Name, err)
				}
				continue
			}
			ft = inferred
		}

		property := tag.property
		if property == "" {
			property = jsonName
		}

		def := &Field{
			Name:             name,
			Property:         property,
			Type:             ft,
			SupportsContains: tag.supportsContains,
		}
		if tag.allowedOps != nil {
			def.AllowedComparisonOps = tag.allowedOps
		} else {
			def.AllowedComparisonOps = defaultAllowedComparisonOps(ft)
		}

		if _, exists := fields[name]; exists {
			return fmt.Errorf("duplicate schema field name %q", name)
		}
		fields[name] = def
		*envOptions = append(*envOptions, cel.Variable(name, ft.celType()))
	}
	return nil
}

func inferFieldType(rt reflect.Type) (FieldType, error) {
	for rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}

	switch rt {
	case timeType:
		return FieldTypeDateTime, nil
	case uuidType:
		return FieldTypeGuid, nil
	}

	switch rt.Kind() {
	case reflect.String:
		return FieldTypeString, nil
	case reflect.Bool:
		return FieldTypeBool, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return FieldTypeInt, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return FieldTypeInt, nil
	case reflect.Float32, reflect.Float64:
		return FieldTypeDouble, nil
	default:
		return "", fmt.Errorf("unsupported Go type %s", rt.String())
	}
}

func defaultAllowedComparisonOps(ft FieldType) map[ComparisonOperator]bool {
	switch ft {
	case FieldTypeBool, FieldTypeGuid:
		return map[ComparisonOperator]bool{
			CompareEq: true,
			CompareNe: true,
		}
	default:
		return nil
	}
}

func pickTagName(tag string) string {
	if tag == "" {
		return ""
	}
	name := strings.Split(tag, ",")[0]
	return strings.TrimSpace(name)
}

func snakeCase(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(s) + 4)

	runes := []rune(s)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := runes[i-1]
				var next rune
				if i+1 < len(runes) {
					next = runes[i+1]
				}
				if (unicode.IsLower(prev) || unicode.IsDigit(prev)) || (next != 0 && unicode.IsLower(next)) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
