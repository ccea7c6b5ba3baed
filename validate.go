// File: envresolver/validate.go
package envresolver

import (
	"encoding/json"
	"fmt"
	"net"
	"net/mail"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// advancedValidators maps type tags outside the basic set to their
// validators. Built-in validators are registered lazily on first dispatch
// so the common string/number path never pays for them.
var advancedValidators = struct {
	once sync.Once
	mu   sync.RWMutex
	fns  map[string]ValidatorFunc
}{fns: make(map[string]ValidatorFunc)}

// RegisterValidator installs a validator for an advanced type tag, making
// that tag usable in schema definitions. Registering the same name twice
// replaces the previous validator.
func RegisterValidator(name string, fn ValidatorFunc) {
	name = strings.ToLower(name)
	advancedValidators.mu.Lock()
	defer advancedValidators.mu.Unlock()
	advancedValidators.fns[name] = fn
}

// lookupValidator resolves an advanced type tag, installing the built-in
// set on first use.
func lookupValidator(name string) (ValidatorFunc, bool) {
	advancedValidators.once.Do(registerBuiltins)
	advancedValidators.mu.RLock()
	defer advancedValidators.mu.RUnlock()
	fn, ok := advancedValidators.fns[strings.ToLower(name)]
	return fn, ok
}

// validateValue type-checks a raw string against a definition and produces
// the typed value. Constraint violations come back as ordinary errors and
// are aggregated per key; an unknown type tag comes back wrapping
// ErrUnknownType and is fatal for the whole call.
func validateValue(def Definition, raw string) (any, error) {
	if def.Pattern != nil && !def.Pattern.MatchString(raw) {
		return nil, fmt.Errorf("value %q does not match pattern %s", raw, def.Pattern)
	}

	switch def.Type {
	case TypeString:
		if err := checkLength(def, float64(len(raw))); err != nil {
			return nil, err
		}
		return raw, nil

	case TypeNumber:
		var num any
		if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
			num = i
			if err := checkBounds(def, float64(i)); err != nil {
				return nil, err
			}
		} else if f, err := strconv.ParseFloat(raw, 64); err == nil {
			num = f
			if err := checkBounds(def, f); err != nil {
				return nil, err
			}
		} else {
			return nil, fmt.Errorf("value %q is not a number", raw)
		}
		return num, nil

	case TypeBoolean:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("value %q is not a boolean", raw)
		}
		return b, nil

	case TypeEnum:
		for _, allowed := range def.Enum {
			if raw == allowed {
				return raw, nil
			}
		}
		return nil, fmt.Errorf("value %q is not one of [%s]", raw, strings.Join(def.Enum, ", "))

	case TypeArray:
		items := splitArray(raw, def.Separator)
		if err := checkLength(def, float64(len(items))); err != nil {
			return nil, err
		}
		return items, nil

	case TypeCustom:
		if def.Validator == nil {
			return nil, fmt.Errorf("%w: custom type without validator", ErrUnknownType)
		}
		return def.Validator(raw)

	default:
		fn, ok := lookupValidator(def.Type)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownType, def.Type)
		}
		return fn(raw)
	}
}

// checkBounds enforces numeric Min/Max.
func checkBounds(def Definition, v float64) error {
	if def.Min != nil && v < *def.Min {
		return fmt.Errorf("value %v is below minimum %v", v, *def.Min)
	}
	if def.Max != nil && v > *def.Max {
		return fmt.Errorf("value %v exceeds maximum %v", v, *def.Max)
	}
	return nil
}

// checkLength enforces Min/Max as length bounds for strings and arrays.
func checkLength(def Definition, n float64) error {
	if def.Min != nil && n < *def.Min {
		return fmt.Errorf("length %v is below minimum %v", n, *def.Min)
	}
	if def.Max != nil && n > *def.Max {
		return fmt.Errorf("length %v exceeds maximum %v", n, *def.Max)
	}
	return nil
}

var hostnameRe = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9-]{0,61}[A-Za-z0-9])?(\.[A-Za-z0-9]([A-Za-z0-9-]{0,61}[A-Za-z0-9])?)*$`)

// registerBuiltins installs the built-in advanced validators. Invoked at
// most once, from the first advanced dispatch.
func registerBuiltins() {
	builtins := map[string]ValidatorFunc{
		"port": func(raw string) (any, error) {
			p, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || p < 1 || p > 65535 {
				return nil, fmt.Errorf("value %q is not a valid port (1-65535)", raw)
			}
			return p, nil
		},
		"url": func(raw string) (any, error) {
			u, err := url.Parse(raw)
			if err != nil || u.Scheme == "" || u.Host == "" {
				return nil, fmt.Errorf("value %q is not a valid URL", raw)
			}
			return raw, nil
		},
		"email": func(raw string) (any, error) {
			addr, err := mail.ParseAddress(raw)
			if err != nil || addr.Address != raw {
				return nil, fmt.Errorf("value %q is not a valid email address", raw)
			}
			return raw, nil
		},
		"json": func(raw string) (any, error) {
			var v any
			if err := json.Unmarshal([]byte(raw), &v); err != nil {
				return nil, fmt.Errorf("value is not valid JSON: %v", err)
			}
			return v, nil
		},
		"duration": func(raw string) (any, error) {
			d, err := time.ParseDuration(raw)
			if err != nil {
				return nil, fmt.Errorf("value %q is not a valid duration", raw)
			}
			return d, nil
		},
		"date": func(raw string) (any, error) {
			if t, err := time.Parse(time.RFC3339, raw); err == nil {
				return t, nil
			}
			t, err := time.Parse("2006-01-02", raw)
			if err != nil {
				return nil, fmt.Errorf("value %q is not a valid date", raw)
			}
			return t, nil
		},
		"host": func(raw string) (any, error) {
			if ip := net.ParseIP(raw); ip != nil {
				return raw, nil
			}
			if len(raw) <= 253 && hostnameRe.MatchString(raw) {
				return raw, nil
			}
			return nil, fmt.Errorf("value %q is not a valid host", raw)
		},
	}

	advancedValidators.mu.Lock()
	defer advancedValidators.mu.Unlock()
	for name, fn := range builtins {
		// Caller registrations made before first dispatch win.
		if _, exists := advancedValidators.fns[name]; !exists {
			advancedValidators.fns[name] = fn
		}
	}
}
