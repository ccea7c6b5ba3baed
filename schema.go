// File: envresolver/schema.go
package envresolver

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Basic definition types validated inline by the resolver. Any other type
// tag is dispatched to the advanced validator registry.
const (
	TypeString  = "string"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeEnum    = "enum"
	TypeArray   = "array"
	TypeCustom  = "custom"
)

// DefaultArraySeparator splits array-shaped raw values.
const DefaultArraySeparator = ","

// ValidatorFunc validates a raw string value and produces its typed form.
type ValidatorFunc func(raw string) (any, error)

// Definition is the canonical description of one configuration key.
// A definition is immutable once normalized for a resolution call.
type Definition struct {
	// Type identifies the basic or advanced kind of the value.
	Type string

	// Default is returned when no source provides the key. nil means no default.
	Default any

	// Optional keys may be absent without failing resolution.
	Optional bool

	// Enum restricts the value to the listed strings.
	Enum []string

	// Pattern, when set, must match the raw value.
	Pattern *regexp.Regexp

	// Min and Max bound string/array length or numeric value.
	Min *float64
	Max *float64

	// Secret marks the key as sensitive for auditing and debug output.
	// It does not affect validation.
	Secret bool

	// Validator is the custom function for Type == TypeCustom.
	Validator ValidatorFunc

	// Separator overrides DefaultArraySeparator for array values.
	Separator string
}

// Schema maps key names to specs. A spec is one of:
//   - string shorthand: "string", "string?", "number:8080", "string:/^[a-z]+$/"
//   - literal default: int, int64, float64 (number) or bool (boolean)
//   - []string: enum whose first element is the default
//   - ValidatorFunc (or func(string) (any, error)): custom type
//   - Definition or *Definition: used as-is
type Schema map[string]any

// keyNameRe matches valid schema key identifiers.
var keyNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Normalize converts every schema entry into its canonical definition.
// Key names are validated first; a bad name fails the whole schema since it
// indicates a programming error rather than missing configuration.
func (s Schema) Normalize() (map[string]Definition, error) {
	for key := range s {
		if !keyNameRe.MatchString(key) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidKeyName, key)
		}
	}

	defs := make(map[string]Definition, len(s))
	for key, spec := range s {
		def, err := normalizeSpec(spec)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", key, err)
		}
		defs[key] = def
	}
	return defs, nil
}

// normalizeSpec parses one schema entry into a definition. Each accepted
// shape has exactly one branch here; nothing downstream branches on shape
// again.
func normalizeSpec(spec any) (Definition, error) {
	switch v := spec.(type) {
	case string:
		return parseShorthand(v)
	case int:
		return Definition{Type: TypeNumber, Default: int64(v)}, nil
	case int64:
		return Definition{Type: TypeNumber, Default: v}, nil
	case float64:
		return Definition{Type: TypeNumber, Default: v}, nil
	case bool:
		return Definition{Type: TypeBoolean, Default: v}, nil
	case []string:
		if len(v) == 0 {
			return Definition{}, fmt.Errorf("%w: enum must not be empty", ErrInvalidSchema)
		}
		enum := make([]string, len(v))
		copy(enum, v)
		return Definition{Type: TypeEnum, Enum: enum, Default: enum[0]}, nil
	case ValidatorFunc:
		return Definition{Type: TypeCustom, Validator: v}, nil
	case func(string) (any, error):
		return Definition{Type: TypeCustom, Validator: v}, nil
	case Definition:
		return normalizeDefinition(v)
	case *Definition:
		if v == nil {
			return Definition{}, fmt.Errorf("%w: nil definition", ErrInvalidSchema)
		}
		return normalizeDefinition(*v)
	case nil:
		return Definition{}, fmt.Errorf("%w: nil spec", ErrInvalidSchema)
	default:
		return Definition{}, fmt.Errorf("%w: unsupported spec type %T", ErrInvalidSchema, spec)
	}
}

// normalizeDefinition fills derived fields of an explicit definition.
func normalizeDefinition(def Definition) (Definition, error) {
	if def.Type == "" {
		def.Type = TypeString
	}
	def.Type = canonicalType(def.Type)
	if def.Type == TypeEnum && len(def.Enum) == 0 {
		return Definition{}, fmt.Errorf("%w: enum definition without values", ErrInvalidSchema)
	}
	if def.Type == TypeCustom && def.Validator == nil {
		return Definition{}, fmt.Errorf("%w: custom definition without validator", ErrInvalidSchema)
	}
	if def.Type == TypeArray && def.Separator == "" {
		def.Separator = DefaultArraySeparator
	}
	return def, nil
}

// parseShorthand handles the string spec grammar. Parsing is purely
// syntactic: a trailing "?" on the type token always means optional, and
// "type:value" splits exactly once at the first colon. Pattern shorthand
// ("type:/re/") is matched before default shorthand so a colon inside the
// regex literal is never mistaken for a default separator.
func parseShorthand(s string) (Definition, error) {
	typePart, rest, hasRest := strings.Cut(s, ":")

	optional := strings.HasSuffix(typePart, "?")
	typeName := canonicalType(strings.TrimSuffix(typePart, "?"))
	if typeName == "" {
		return Definition{}, fmt.Errorf("%w: empty type in shorthand %q", ErrInvalidSchema, s)
	}

	def := Definition{Type: typeName, Optional: optional}
	if def.Type == TypeArray {
		def.Separator = DefaultArraySeparator
	}
	if !hasRest {
		return def, nil
	}

	if len(rest) >= 2 && rest[0] == '/' && rest[len(rest)-1] == '/' {
		re, err := regexp.Compile(rest[1 : len(rest)-1])
		if err != nil {
			return Definition{}, fmt.Errorf("%w: bad pattern in %q: %v", ErrInvalidSchema, s, err)
		}
		def.Pattern = re
		return def, nil
	}

	dflt, err := coerceLiteral(typeName, rest)
	if err != nil {
		return Definition{}, fmt.Errorf("%w: bad default in %q: %v", ErrInvalidSchema, s, err)
	}
	def.Default = dflt
	return def, nil
}

// coerceLiteral converts a shorthand default literal into its typed form
// according to the type tag. Advanced-type defaults stay strings and are
// coerced by their validator at resolution time.
func coerceLiteral(typeName, literal string) (any, error) {
	switch typeName {
	case TypeNumber:
		if i, err := strconv.ParseInt(literal, 10, 64); err == nil {
			return i, nil
		}
		f, err := strconv.ParseFloat(literal, 64)
		if err != nil {
			return nil, fmt.Errorf("cannot parse %q as number", literal)
		}
		return f, nil
	case TypeBoolean:
		b, err := strconv.ParseBool(literal)
		if err != nil {
			return nil, fmt.Errorf("cannot parse %q as boolean", literal)
		}
		return b, nil
	case TypeArray:
		return splitArray(literal, DefaultArraySeparator), nil
	default:
		return literal, nil
	}
}

// canonicalType maps accepted type aliases onto their canonical tags.
func canonicalType(name string) string {
	switch strings.ToLower(name) {
	case "bool", "boolean":
		return TypeBoolean
	case "int", "integer", "float", "number":
		return TypeNumber
	case "str", "string":
		return TypeString
	default:
		return strings.ToLower(name)
	}
}

// splitArray splits a raw array value on the separator, trimming whitespace
// around each element.
func splitArray(raw, sep string) []string {
	if sep == "" {
		sep = DefaultArraySeparator
	}
	parts := strings.Split(raw, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
