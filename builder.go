// File: envresolver/builder.go
package envresolver

import (
	"context"
	"fmt"
)

// Resolver provides a fluent interface for building resolution calls.
type Resolver struct {
	schema   Schema
	bindings []Binding
	opts     Options
	err      error
}

// NewResolver creates a new resolution builder with default options.
func NewResolver() *Resolver {
	return &Resolver{
		schema: make(Schema),
		opts:   DefaultOptions(),
	}
}

// WithSchema merges entries into the schema shared by all sources.
func (r *Resolver) WithSchema(schema Schema) *Resolver {
	for key, spec := range schema {
		r.schema[key] = spec
	}
	return r
}

// WithSource appends a source bound to the shared schema.
func (r *Resolver) WithSource(src Source) *Resolver {
	if src == nil {
		r.fail("nil source")
		return r
	}
	r.bindings = append(r.bindings, Binding{Source: src})
	return r
}

// WithBinding appends a source paired with its own schema subset.
func (r *Resolver) WithBinding(src Source, subset Schema) *Resolver {
	if src == nil {
		r.fail("nil source in binding")
		return r
	}
	r.bindings = append(r.bindings, Binding{Source: src, Schema: subset})
	return r
}

// WithOptions replaces the whole options block.
func (r *Resolver) WithOptions(opts Options) *Resolver {
	r.opts = opts
	return r
}

// WithPriority sets the merge precedence strategy.
func (r *Resolver) WithPriority(p Priority) *Resolver {
	r.opts.Priority = p
	return r
}

// WithPolicies sets the source policies.
func (r *Resolver) WithPolicies(p *Policies) *Resolver {
	r.opts.Policies = p
	return r
}

// WithMode sets the runtime mode explicitly instead of detecting it.
func (r *Resolver) WithMode(m Mode) *Resolver {
	r.opts.Mode = m
	return r
}

// WithInterpolation enables ${NAME} substitution across merged values.
func (r *Resolver) WithInterpolation() *Resolver {
	r.opts.Interpolate = true
	return r
}

// WithStrict aborts resolution on any source load failure.
func (r *Resolver) WithStrict() *Resolver {
	r.opts.Strict = true
	return r
}

// WithAudit controls audit event recording.
func (r *Resolver) WithAudit(mode AuditMode) *Resolver {
	r.opts.Audit = mode
	return r
}

// WithNestedDelimiter shapes the result into a nested map.
func (r *Resolver) WithNestedDelimiter(delimiter string) *Resolver {
	r.opts.NestedDelimiter = delimiter
	return r
}

// WithValidateDefaults runs defaults back through validation.
func (r *Resolver) WithValidateDefaults() *Resolver {
	r.opts.ValidateDefaults = true
	return r
}

func (r *Resolver) fail(msg string) {
	if r.err == nil {
		r.err = fmt.Errorf("resolver misconfigured: %s", msg)
	}
}

// Resolve executes the configured resolution call.
func (r *Resolver) Resolve(ctx context.Context) (*Result, error) {
	if r.err != nil {
		return nil, r.err
	}
	bindings := make([]Binding, len(r.bindings))
	copy(bindings, r.bindings)
	// Per-binding subsets contribute to the union; the shared schema
	// applies regardless.
	union := make(Schema, len(r.schema))
	for key, spec := range r.schema {
		union[key] = spec
	}
	for _, b := range bindings {
		for key, spec := range b.Schema {
			union[key] = spec
		}
	}
	return resolveBindings(ctx, union, bindings, r.opts)
}

// MustResolve is like Resolve but panics on error.
func (r *Resolver) MustResolve(ctx context.Context) *Result {
	result, err := r.Resolve(ctx)
	if err != nil {
		panic(fmt.Sprintf("resolution failed: %v", err))
	}
	return result
}

// SafeResolve executes the call without returning an error value.
func (r *Resolver) SafeResolve(ctx context.Context) SafeResult {
	return wrapSafe(r.Resolve(ctx))
}
