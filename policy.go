// File: envresolver/policy.go
package envresolver

import (
	"fmt"
	"os"
	"strings"
)

// Mode is the runtime mode policies key off.
type Mode string

const (
	ModeDevelopment Mode = "development"
	ModeProduction  Mode = "production"
)

// DetectMode derives the runtime mode from the APP_ENV or GO_ENV
// environment variable. Anything other than "production" is development.
func DetectMode() Mode {
	for _, name := range []string{"APP_ENV", "GO_ENV"} {
		if v := os.Getenv(name); v != "" {
			if strings.EqualFold(v, string(ModeProduction)) {
				return ModeProduction
			}
			return ModeDevelopment
		}
	}
	return ModeDevelopment
}

// Policies restricts which sources may provide which keys. Policy is
// evaluated against provenance before value validation; a violating key is
// rejected without being validated.
type Policies struct {
	// AllowFileSourcesInProduction permits every key to come from
	// file-based local sources even in production mode. By default file
	// sources are rejected in production: managed runtimes are expected
	// to inject variables into the process environment instead.
	AllowFileSourcesInProduction bool

	// FileSourceAllowlist names keys that may come from file-based
	// sources in production even when file sources are otherwise rejected.
	FileSourceAllowlist []string

	// EnforceAllowedSources restricts a key to an explicit set of source
	// names regardless of runtime mode (e.g. "this key may only ever come
	// from the secret-store source").
	EnforceAllowedSources map[string][]string
}

// check returns a human-readable violation, or "" when the key's
// provenance is allowed. The production rule against file-based sources
// applies even with a nil policy set; the policy only widens it.
func (p *Policies) check(key string, prov Provenance, mode Mode) string {
	if p == nil {
		p = &Policies{}
	}

	if allowed, ok := p.EnforceAllowedSources[key]; ok {
		found := false
		for _, name := range allowed {
			if prov.Source == name {
				found = true
				break
			}
		}
		if !found {
			return fmt.Sprintf("key %s may only be provided by [%s], got %s",
				key, strings.Join(allowed, ", "), prov.Source)
		}
	}

	if mode == ModeProduction && isFileSourceName(prov.Source) && !p.AllowFileSourcesInProduction {
		for _, name := range p.FileSourceAllowlist {
			if name == key {
				return ""
			}
		}
		return fmt.Sprintf("key %s loaded from file source %s, which is not allowed in production",
			key, prov.Source)
	}

	return ""
}
