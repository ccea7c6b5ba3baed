// File: envresolver/result.go
package envresolver

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// Result is the typed outcome of one resolution call: a keyed map from the
// schema's keys to typed values, plus per-key provenance. Values are
// all-or-nothing; a Result only exists for fully successful calls.
type Result struct {
	values     map[string]any
	provenance map[string]Provenance
	secrets    map[string]bool // keys marked Secret in the schema
	nested     map[string]any  // set when NestedDelimiter was used

	// sessionID ties the result to its audit session. Empty when
	// auditing was disabled for the call.
	sessionID string
}

// Get retrieves a resolved value. The second return reports whether the
// key resolved to a value (optional keys without defaults are absent).
func (r *Result) Get(key string) (any, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Keys returns the resolved key names in sorted order.
func (r *Result) Keys() []string {
	keys := make([]string, 0, len(r.values))
	for k := range r.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Map returns a copy of the resolved values. When the call used a nested
// delimiter, the nested shape is returned.
func (r *Result) Map() map[string]any {
	if r.nested != nil {
		return copyNested(r.nested)
	}
	out := make(map[string]any, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// Provenance returns where a resolved key's value came from.
func (r *Result) Provenance(key string) (Provenance, bool) {
	p, ok := r.provenance[key]
	return p, ok
}

// String retrieves a string value, converting from common types if the
// resolved value isn't already a string.
func (r *Result) String(key string) (string, error) {
	val, found := r.values[key]
	if !found {
		return "", fmt.Errorf("key not resolved: %s", key)
	}

	switch v := val.(type) {
	case string:
		return v, nil
	case fmt.Stringer:
		return v.String(), nil
	case bool:
		return strconv.FormatBool(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case []string:
		return strings.Join(v, DefaultArraySeparator), nil
	default:
		return "", fmt.Errorf("cannot convert type %T to string for key %s", val, key)
	}
}

// Int64 retrieves an integer value, converting from numeric types and
// parsable strings.
func (r *Result) Int64(key string) (int64, error) {
	val, found := r.values[key]
	if !found {
		return 0, fmt.Errorf("key not resolved: %s", key)
	}

	v := reflect.ValueOf(val)
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int(), nil
	case reflect.Float32, reflect.Float64:
		return int64(v.Float()), nil
	case reflect.String:
		i, err := strconv.ParseInt(v.String(), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert %q to int64 for key %s: %w", v.String(), key, err)
		}
		return i, nil
	case reflect.Bool:
		if v.Bool() {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("cannot convert type %T to int64 for key %s", val, key)
}

// Bool retrieves a boolean value, converting from numbers (0 is false)
// and parsable strings.
func (r *Result) Bool(key string) (bool, error) {
	val, found := r.values[key]
	if !found {
		return false, fmt.Errorf("key not resolved: %s", key)
	}

	v := reflect.ValueOf(val)
	switch v.Kind() {
	case reflect.Bool:
		return v.Bool(), nil
	case reflect.String:
		b, err := strconv.ParseBool(v.String())
		if err != nil {
			return false, fmt.Errorf("cannot convert %q to bool for key %s: %w", v.String(), key, err)
		}
		return b, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int() != 0, nil
	case reflect.Float32, reflect.Float64:
		return v.Float() != 0, nil
	}
	return false, fmt.Errorf("cannot convert type %T to bool for key %s", val, key)
}

// Float64 retrieves a floating-point value, converting from numeric types
// and parsable strings.
func (r *Result) Float64(key string) (float64, error) {
	val, found := r.values[key]
	if !found {
		return 0, fmt.Errorf("key not resolved: %s", key)
	}

	v := reflect.ValueOf(val)
	switch v.Kind() {
	case reflect.Float32, reflect.Float64:
		return v.Float(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int()), nil
	case reflect.String:
		f, err := strconv.ParseFloat(v.String(), 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert %q to float64 for key %s: %w", v.String(), key, err)
		}
		return f, nil
	}
	return 0, fmt.Errorf("cannot convert type %T to float64 for key %s", val, key)
}

// Strings retrieves an array value. Non-array strings are returned as a
// single-element slice.
func (r *Result) Strings(key string) ([]string, error) {
	val, found := r.values[key]
	if !found {
		return nil, fmt.Errorf("key not resolved: %s", key)
	}
	switch v := val.(type) {
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out, nil
	case string:
		return []string{v}, nil
	default:
		return nil, fmt.Errorf("cannot convert type %T to []string for key %s", val, key)
	}
}

// Duration retrieves a duration value.
func (r *Result) Duration(key string) (time.Duration, error) {
	val, found := r.values[key]
	if !found {
		return 0, fmt.Errorf("key not resolved: %s", key)
	}
	switch v := val.(type) {
	case time.Duration:
		return v, nil
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("cannot convert %q to duration for key %s: %w", v, key, err)
		}
		return d, nil
	case int64:
		return time.Duration(v), nil
	}
	return 0, fmt.Errorf("cannot convert type %T to duration for key %s", val, key)
}

// Scan decodes the resolved values into a target struct or map pointer.
// When the call used a nested delimiter the nested shape is decoded,
// otherwise field names (or `config` tags) match flat keys
// case-insensitively.
func (r *Result) Scan(target any) error {
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return fmt.Errorf("scan target must be a non-nil pointer, got %T", target)
	}

	data := r.values
	if r.nested != nil {
		data = r.nested
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "config",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToTimeHookFunc(time.RFC3339),
			mapstructure.StringToSliceHookFunc(DefaultArraySeparator),
		),
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(data); err != nil {
		return fmt.Errorf("failed to scan result into %T: %w", target, err)
	}
	return nil
}

// nestValues shapes flat keyed values into a nested map by splitting each
// key on the delimiter and lower-casing segments.
func nestValues(values map[string]any, delimiter string) map[string]any {
	nested := make(map[string]any)
	for key, value := range values {
		segments := strings.Split(strings.ToLower(key), strings.ToLower(delimiter))
		setNestedValue(nested, segments, value)
	}
	return nested
}

// setNestedValue sets a value at a segment path, creating intermediate
// maps as needed. A non-map value in the way is replaced by a map.
func setNestedValue(nested map[string]any, segments []string, value any) {
	current := nested
	for _, segment := range segments[:len(segments)-1] {
		next, exists := current[segment]
		nextMap, isMap := next.(map[string]any)
		if !exists || !isMap {
			nextMap = make(map[string]any)
			current[segment] = nextMap
		}
		current = nextMap
	}
	current[segments[len(segments)-1]] = value
}

func copyNested(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if sub, ok := v.(map[string]any); ok {
			out[k] = copyNested(sub)
			continue
		}
		out[k] = v
	}
	return out
}
