// File: envresolver/resolver.go
package envresolver

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// Priority selects the merge precedence strategy.
type Priority string

const (
	// PriorityLast is last-write-wins: sources load concurrently since
	// order cannot affect the outcome.
	PriorityLast Priority = "last"

	// PriorityFirst is first-write-wins: sources load sequentially and
	// loading stops early once every required key is satisfied, letting
	// cheap local sources short-circuit expensive remote ones.
	PriorityFirst Priority = "first"
)

// AuditMode controls whether a resolution call records audit events.
type AuditMode int

const (
	// AuditAuto enables auditing in production mode only.
	AuditAuto AuditMode = iota
	AuditOn
	AuditOff
)

// Options configures one resolution call.
type Options struct {
	// Interpolate rewrites merged values by substituting ${NAME}
	// references against the merged map. Single pass, non-recursive;
	// unresolved references are left verbatim.
	Interpolate bool

	// Strict aborts the whole call on any source load failure. When
	// false a failed source is skipped with a source-error audit event.
	Strict bool

	// Priority selects the merge strategy. Default PriorityLast.
	Priority Priority

	// Policies restricts source provenance per key.
	Policies *Policies

	// Audit controls event recording. Default AuditAuto.
	Audit AuditMode

	// ValidateDefaults runs literal defaults back through validation as
	// if they were provided raw values, so defaults are never silently
	// exempt from constraints.
	ValidateDefaults bool

	// NestedDelimiter, when set, additionally shapes the result into a
	// nested map by splitting keys on the delimiter and lower-casing
	// segments. Purely a presentation transform after validation.
	NestedDelimiter string

	// AllowEmpty treats empty-string values as satisfying required keys.
	// Off by default: an empty value for a required key is invalid,
	// distinct from missing.
	AllowEmpty bool

	// Mode is the runtime mode. Empty means DetectMode().
	Mode Mode
}

// DefaultOptions returns the standard resolution options.
func DefaultOptions() Options {
	return Options{Priority: PriorityLast}
}

// Binding pairs a source with the schema subset it is expected to serve.
// A nil Schema means the source participates in merging without
// contributing schema keys of its own.
type Binding struct {
	Source Source
	Schema Schema
}

// Provenance records where a resolved key's value came from. It exists
// only for the duration of one resolution call.
type Provenance struct {
	Source   string
	Time     time.Time
	CacheHit bool
}

// Resolve resolves the schema against the given sources with default
// options. Every source is bound to the full schema.
func Resolve(ctx context.Context, schema Schema, sources ...Source) (*Result, error) {
	return ResolveWithOptions(ctx, schema, sources, DefaultOptions())
}

// ResolveWithOptions resolves the schema against the given sources.
func ResolveWithOptions(ctx context.Context, schema Schema, sources []Source, opts Options) (*Result, error) {
	bindings := make([]Binding, len(sources))
	for i, src := range sources {
		bindings[i] = Binding{Source: src}
	}
	return resolveBindings(ctx, schema, bindings, opts)
}

// ResolveBindings resolves an ordered list of (source, schema subset)
// pairs. The effective schema is the union of all subsets; a key defined
// in several subsets takes its definition from the last one.
func ResolveBindings(ctx context.Context, bindings []Binding, opts Options) (*Result, error) {
	union := make(Schema)
	for _, b := range bindings {
		for key, spec := range b.Schema {
			union[key] = spec
		}
	}
	return resolveBindings(ctx, union, bindings, opts)
}

// SafeResult is the non-failing resolution wrapper: either Result is set
// and Success is true, or Error carries the aggregated message.
type SafeResult struct {
	Success bool
	Result  *Result
	Error   string
	Issues  []Issue
}

// SafeResolve is the non-failing variant of ResolveWithOptions.
func SafeResolve(ctx context.Context, schema Schema, sources []Source, opts Options) SafeResult {
	r, err := ResolveWithOptions(ctx, schema, sources, opts)
	return wrapSafe(r, err)
}

// SafeResolveBindings is the non-failing variant of ResolveBindings.
func SafeResolveBindings(ctx context.Context, bindings []Binding, opts Options) SafeResult {
	r, err := ResolveBindings(ctx, bindings, opts)
	return wrapSafe(r, err)
}

func wrapSafe(r *Result, err error) SafeResult {
	if err == nil {
		return SafeResult{Success: true, Result: r}
	}
	safe := SafeResult{Error: err.Error()}
	var re *ResolveError
	if errors.As(err, &re) {
		safe.Issues = re.Issues
	}
	return safe
}

// loadedSource is one source's settled load outcome.
type loadedSource struct {
	name     string
	values   map[string]string
	cacheHit bool
	err      error
	skipped  bool // sequential early termination never invoked it
}

// resolveBindings is the merge orchestrator.
func resolveBindings(ctx context.Context, schema Schema, bindings []Binding, opts Options) (*Result, error) {
	if opts.Priority == "" {
		opts.Priority = PriorityLast
	}
	if opts.Mode == "" {
		opts.Mode = DetectMode()
	}
	auditing := opts.Audit == AuditOn || (opts.Audit == AuditAuto && opts.Mode == ModeProduction)

	// Schema errors are programming errors: fail before any I/O.
	defs, err := schema.Normalize()
	if err != nil {
		return nil, err
	}

	session := ""
	if auditing {
		session = newSessionID()
	}
	audit := func(e Event) {
		if auditing {
			e.Session = session
			tracker.record(e)
		}
	}

	loaded, err := loadSources(ctx, bindings, defs, opts, audit)
	if err != nil {
		audit(Event{Type: EventResolveFailure, Err: err.Error()})
		return nil, err
	}

	merged, provenance := mergeLoaded(loaded, opts)

	if opts.Interpolate {
		interpolate(merged)
	}

	values := make(map[string]any, len(defs))
	fromSource := make(map[string]bool, len(defs))
	var issues []Issue

	keys := make([]string, 0, len(defs))
	for key := range defs {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		def := defs[key]
		raw, present := merged[key]
		prov, hasProv := provenance[key]

		if present && hasProv {
			if violation := opts.Policies.check(key, prov, opts.Mode); violation != "" {
				issues = append(issues, Issue{Key: key, Message: violation})
				audit(Event{Type: EventPolicyViolation, Key: key, Source: prov.Source, Err: violation})
				continue
			}
		}

		value, fromRaw, ok, err := resolveKey(def, raw, present, opts)
		if err != nil {
			if errors.Is(err, ErrUnknownType) {
				// A missing validator is a wiring bug, not bad input.
				audit(Event{Type: EventResolveFailure, Key: key, Err: err.Error()})
				return nil, fmt.Errorf("key %q: %w", key, err)
			}
			issues = append(issues, Issue{Key: key, Message: err.Error()})
			audit(Event{Type: EventValidationFailure, Key: key, Source: prov.Source, Err: err.Error()})
			continue
		}
		if !ok {
			continue // optional and absent
		}

		values[key] = value
		fromSource[key] = fromRaw && hasProv
		srcName := prov.Source
		if !fromRaw || !hasProv {
			srcName = "default"
		}
		meta := map[string]string{"value": auditValue(def, raw, fromRaw)}
		if fromRaw && prov.CacheHit {
			meta["cache_hit"] = "true"
		}
		audit(Event{Type: EventValueLoaded, Key: key, Source: srcName, Metadata: meta})
	}

	if len(issues) > 0 {
		err := &ResolveError{Issues: issues}
		audit(Event{Type: EventResolveFailure, Err: err.Error()})
		return nil, err
	}

	secrets := make(map[string]bool)
	for key, def := range defs {
		if def.Secret {
			secrets[key] = true
		}
	}

	result := &Result{
		values:     values,
		provenance: filterProvenance(provenance, fromSource),
		secrets:    secrets,
		sessionID:  session,
	}
	if opts.NestedDelimiter != "" {
		result.nested = nestValues(values, opts.NestedDelimiter)
	}

	audit(Event{Type: EventResolveSuccess, Metadata: map[string]string{
		"keys": strconv.Itoa(len(values)),
	}})
	return result, nil
}

// loadSources executes the selected loading strategy and returns settled
// outcomes in binding order.
func loadSources(ctx context.Context, bindings []Binding, defs map[string]Definition, opts Options, audit func(Event)) ([]loadedSource, error) {
	loaded := make([]loadedSource, len(bindings))
	for i, b := range bindings {
		loaded[i].name = b.Source.Name()
	}

	if opts.Priority == PriorityFirst {
		// Sequential with early termination: once every key that is
		// neither optional nor defaulted has a value, remaining sources
		// are never invoked.
		satisfied := make(map[string]bool)
		for i, b := range bindings {
			if requiredSatisfied(defs, satisfied) {
				for j := i; j < len(bindings); j++ {
					loaded[j].skipped = true
				}
				break
			}

			values, err := b.Source.Load(ctx)
			if err != nil {
				loaded[i].err = err
				audit(Event{Type: EventSourceError, Source: b.Source.Name(), Err: err.Error()})
				if opts.Strict {
					return nil, fmt.Errorf("%w: source %q: %v", ErrSourceLoad, b.Source.Name(), err)
				}
				continue
			}
			loaded[i].values = values
			loaded[i].cacheHit = reportedCacheHit(b.Source)
			for k, v := range values {
				if v != "" || opts.AllowEmpty {
					satisfied[k] = true
				}
			}
		}
		return loaded, nil
	}

	// Last-write-wins: order cannot affect the outcome, so load
	// concurrently to minimize total latency on network-bound sources.
	g, gctx := errgroup.WithContext(ctx)
	for i, b := range bindings {
		g.Go(func() error {
			values, err := b.Source.Load(gctx)
			if err != nil {
				loaded[i].err = err
				if opts.Strict {
					return fmt.Errorf("%w: source %q: %v", ErrSourceLoad, b.Source.Name(), err)
				}
				return nil
			}
			loaded[i].values = values
			loaded[i].cacheHit = reportedCacheHit(b.Source)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, l := range loaded {
		if l.err != nil {
			audit(Event{Type: EventSourceError, Source: l.name, Err: l.err.Error()})
		}
	}
	return loaded, nil
}

// requiredSatisfied reports whether every schema key that is neither
// optional nor defaulted already has a value.
func requiredSatisfied(defs map[string]Definition, satisfied map[string]bool) bool {
	for key, def := range defs {
		if def.Optional || def.Default != nil {
			continue
		}
		if !satisfied[key] {
			return false
		}
	}
	return true
}

// reportedCacheHit asks a source whether its last load came from cache.
func reportedCacheHit(src Source) bool {
	if cr, ok := src.(CacheReporter); ok {
		return cr.ServedFromCache()
	}
	return false
}

// mergeLoaded folds settled loads into one map, recording provenance for
// every key at the time it is written. Under PriorityLast a later source
// unconditionally overwrites. Under PriorityFirst the first writer sticks,
// except that an empty value never claims a key: empty does not satisfy a
// required key, so a later source may still provide it. AllowEmpty makes
// empty values claim keys like any other.
func mergeLoaded(loaded []loadedSource, opts Options) (map[string]string, map[string]Provenance) {
	merged := make(map[string]string)
	provenance := make(map[string]Provenance)

	for _, l := range loaded {
		if l.err != nil || l.skipped {
			continue
		}
		for key, value := range l.values {
			if opts.Priority == PriorityFirst {
				if existing, exists := merged[key]; exists && (existing != "" || opts.AllowEmpty) {
					continue
				}
			}
			merged[key] = value
			provenance[key] = Provenance{Source: l.name, Time: time.Now(), CacheHit: l.cacheHit}
		}
	}
	return merged, provenance
}

var interpolationRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// interpolate rewrites every merged value by substituting ${NAME}
// references against the merged map. Single pass against the pre-pass
// snapshot; unresolved references stay verbatim.
func interpolate(merged map[string]string) {
	snapshot := copyValues(merged)
	for key, value := range merged {
		if !strings.Contains(value, "${") {
			continue
		}
		merged[key] = interpolationRe.ReplaceAllStringFunc(value, func(ref string) string {
			name := ref[2 : len(ref)-1]
			if repl, ok := snapshot[name]; ok {
				return repl
			}
			return ref
		})
	}
}

// resolveKey produces the typed value for one key. fromRaw reports
// whether the provided raw value was used (as opposed to a default); ok
// is false when the key is legitimately absent (optional, no default).
func resolveKey(def Definition, raw string, present bool, opts Options) (value any, fromRaw, ok bool, err error) {
	// Empty string on an optional key counts as missing; on a required
	// key it is invalid input unless AllowEmpty is set.
	if present && raw == "" && !opts.AllowEmpty {
		if def.Optional || def.Default != nil {
			present = false
		} else {
			return nil, false, false, errors.New("required value is empty")
		}
	}

	if !present {
		if def.Default != nil {
			value, ok, err = resolveDefault(def, opts)
			return value, false, ok, err
		}
		if def.Optional {
			return nil, false, false, nil
		}
		return nil, false, false, errors.New("required value is missing")
	}

	value, err = validateValue(def, raw)
	if err != nil {
		return nil, false, false, err
	}
	return value, true, true, nil
}

// resolveDefault produces the typed value of a key's default. With
// ValidateDefaults the default is run back through validation as if it
// were a provided raw value. Advanced-type defaults always pass through
// their validator, which is what coerces them.
func resolveDefault(def Definition, opts Options) (any, bool, error) {
	if opts.ValidateDefaults || !isBasicType(def.Type) {
		value, err := validateValue(def, formatDefault(def))
		if err != nil {
			return nil, false, fmt.Errorf("default value invalid: %w", err)
		}
		return value, true, nil
	}
	return def.Default, true, nil
}

func isBasicType(t string) bool {
	switch t {
	case TypeString, TypeNumber, TypeBoolean, TypeEnum, TypeArray, TypeCustom:
		return true
	}
	return false
}

// formatDefault renders a typed default back into raw string form.
func formatDefault(def Definition) string {
	switch v := def.Default.(type) {
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case []string:
		sep := def.Separator
		if sep == "" {
			sep = DefaultArraySeparator
		}
		return strings.Join(v, sep)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// auditValue renders the value recorded in value-loaded events. Secret
// keys are redacted; defaults are marked as such.
func auditValue(def Definition, raw string, present bool) string {
	if def.Secret {
		return "[redacted]"
	}
	if !present {
		return "[default]"
	}
	return raw
}

// filterProvenance keeps provenance only for keys whose result value
// actually came from a source.
func filterProvenance(provenance map[string]Provenance, fromSource map[string]bool) map[string]Provenance {
	out := make(map[string]Provenance, len(fromSource))
	for key, used := range fromSource {
		if !used {
			continue
		}
		if p, ok := provenance[key]; ok {
			out[key] = p
		}
	}
	return out
}
