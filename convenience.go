// File: envresolver/convenience.go
package envresolver

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// ResolveEnv resolves a schema against the process environment only, with
// default options. This is the recommended entry point for most
// applications.
func ResolveEnv(schema Schema) (*Result, error) {
	return Resolve(context.Background(), schema, Env())
}

// MustResolveEnv is like ResolveEnv but panics on error. Intended for
// program start-up where a bad configuration should halt the process.
func MustResolveEnv(schema Schema) *Result {
	result, err := ResolveEnv(schema)
	if err != nil {
		panic(fmt.Sprintf("configuration resolution failed: %v", err))
	}
	return result
}

// SafeResolveEnv is the non-failing variant of ResolveEnv.
func SafeResolveEnv(schema Schema) SafeResult {
	return wrapSafe(ResolveEnv(schema))
}

// Debug returns a formatted string showing every resolved value and its
// provenance. Keys marked secret in the schema are redacted.
func (r *Result) Debug() string {
	var b strings.Builder
	b.WriteString("Resolved configuration:\n")

	keys := r.Keys()
	for _, key := range keys {
		b.WriteString(fmt.Sprintf("  %s:\n", key))
		if r.secrets[key] {
			b.WriteString("    Value: [redacted]\n")
		} else {
			b.WriteString(fmt.Sprintf("    Value: %v\n", r.values[key]))
		}
		if p, ok := r.provenance[key]; ok {
			line := fmt.Sprintf("    Source: %s", p.Source)
			if p.CacheHit {
				line += " (cached)"
			}
			b.WriteString(line + "\n")
		} else {
			b.WriteString("    Source: default\n")
		}
	}
	return b.String()
}

// Sources lists the distinct source names that contributed values,
// sorted, for diagnostics.
func (r *Result) Sources() []string {
	seen := make(map[string]bool)
	for _, p := range r.provenance {
		seen[p.Source] = true
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
