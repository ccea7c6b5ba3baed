// File: envresolver/doc.go

// Package envresolver resolves typed application configuration from
// untyped, string-only key/value sources: the process environment, files,
// secret stores, or any custom provider implementing the Source interface.
//
// Features:
//   - Flat schema with shorthand specs, literal defaults, enums, patterns
//     and custom validators, normalized to one canonical definition per key
//   - Multiple simultaneous sources with explicit precedence: last-write-wins
//     (loaded concurrently) or first-write-wins (sequential, early exit)
//   - TTL / stale-while-revalidate caching decorator for expensive sources
//   - Retry and circuit-breaker decorators for flaky remote sources
//   - Per-key provenance tracking and policy enforcement (e.g. no secrets
//     from local files in production)
//   - Process-wide bounded audit trail, scoped per resolution session
//   - All-or-nothing results: every violation reported in one error
//
// Quick Start:
//
//	result, err := envresolver.ResolveEnv(envresolver.Schema{
//	    "PORT":         3000,
//	    "NODE_ENV":     []string{"development", "production"},
//	    "DATABASE_URL": "string",
//	    "DEBUG":        "boolean?",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	port, _ := result.Int64("PORT")
//
// Multiple sources, secret store cached and retried:
//
//	secrets := envresolver.Cache(
//	    envresolver.Retry(vaultSource, envresolver.DefaultRetryOptions()),
//	    envresolver.DefaultCacheOptions(),
//	)
//	result, err := envresolver.Resolve(ctx, schema, envresolver.Env(), secrets)
//
// Under the default last-write-wins priority, later sources override
// earlier ones and all sources load concurrently. With PriorityFirst,
// sources load in order and loading stops as soon as every required key
// has a value, so cheap local sources short-circuit expensive remote ones.
//
// Thread Safety:
// Resolution calls are independent and safe to run concurrently. The
// caching decorator serializes access to its cache cell and runs at most
// one background refresh at a time; the audit trail is mutex-guarded.
package envresolver
