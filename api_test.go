// File: envresolver/api_test.go
package envresolver_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	envresolver "github.com/jagreehal/node-env-resolver-sub001"
)

// TestResolveEnvEndToEnd tests the one-call convenience path against the
// real process environment
func TestResolveEnvEndToEnd(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("PORT", "9000")
	t.Setenv("NODE_ENV", "production")

	r, err := envresolver.ResolveEnv(envresolver.Schema{
		"PORT":     "number:3000",
		"NODE_ENV": []string{"development", "production", "test"},
		"DEBUG":    false,
	})
	require.NoError(t, err)

	port, err := r.Int64("PORT")
	require.NoError(t, err)
	assert.Equal(t, int64(9000), port)

	env, err := r.String("NODE_ENV")
	require.NoError(t, err)
	assert.Equal(t, "production", env)

	debug, err := r.Bool("DEBUG")
	require.NoError(t, err)
	assert.False(t, debug)

	prov, ok := r.Provenance("PORT")
	require.True(t, ok)
	assert.Equal(t, "env", prov.Source)
}

// TestSafeResolveEnv tests the non-failing convenience wrapper
func TestSafeResolveEnv(t *testing.T) {
	t.Setenv("APP_ENV", "development")

	safe := envresolver.SafeResolveEnv(envresolver.Schema{
		"DEFINITELY_NOT_SET_ANYWHERE_12345": "string",
	})
	require.False(t, safe.Success)
	assert.NotEmpty(t, safe.Error)
	require.Len(t, safe.Issues, 1)
}

// TestDecoratorComposition tests cache, retry and resolution working
// together through the public API only
func TestDecoratorComposition(t *testing.T) {
	var calls atomic.Int64
	vault := envresolver.SourceFunc("vault", func(context.Context) (map[string]string, error) {
		calls.Add(1)
		return map[string]string{"API_KEY": "k1"}, nil
	})

	cached := envresolver.Cache(
		envresolver.Retry(vault, envresolver.DefaultRetryOptions()),
		envresolver.CacheOptions{TTL: time.Minute, MaxAge: time.Hour},
	)

	schema := envresolver.Schema{"API_KEY": envresolver.Definition{
		Type:   envresolver.TypeString,
		Secret: true,
	}}
	opts := envresolver.DefaultOptions()
	opts.Mode = envresolver.ModeDevelopment

	for i := 0; i < 3; i++ {
		r, err := envresolver.ResolveWithOptions(context.Background(), schema,
			[]envresolver.Source{cached}, opts)
		require.NoError(t, err)

		key, err := r.String("API_KEY")
		require.NoError(t, err)
		assert.Equal(t, "k1", key)
	}
	assert.Equal(t, int64(1), calls.Load(), "repeated resolutions hit the cache")

	r, err := envresolver.ResolveWithOptions(context.Background(), schema,
		[]envresolver.Source{cached}, opts)
	require.NoError(t, err)
	prov, ok := r.Provenance("API_KEY")
	require.True(t, ok)
	assert.True(t, prov.CacheHit)
}

// TestAuditedResolutionEndToEnd tests audit retrieval through the public API
func TestAuditedResolutionEndToEnd(t *testing.T) {
	envresolver.ClearAuditLog()
	t.Cleanup(envresolver.ClearAuditLog)

	opts := envresolver.DefaultOptions()
	opts.Mode = envresolver.ModeDevelopment
	opts.Audit = envresolver.AuditOn

	r, err := envresolver.ResolveWithOptions(context.Background(),
		envresolver.Schema{"PORT": "number:3000"},
		[]envresolver.Source{envresolver.Map("infra", map[string]string{"PORT": "8080"})},
		opts)
	require.NoError(t, err)

	trail := envresolver.AuditLog(r)
	require.NotEmpty(t, trail)

	var sawLoad, sawSuccess bool
	for _, e := range trail {
		switch e.Type {
		case envresolver.EventValueLoaded:
			sawLoad = true
			assert.Equal(t, "infra", e.Source)
		case envresolver.EventResolveSuccess:
			sawSuccess = true
		}
	}
	assert.True(t, sawLoad)
	assert.True(t, sawSuccess)
}

// TestCustomValidatorEndToEnd tests a registered advanced type through a
// full resolution
func TestCustomValidatorEndToEnd(t *testing.T) {
	envresolver.RegisterValidator("loglevel", func(raw string) (any, error) {
		switch raw {
		case "debug", "info", "warn", "error":
			return raw, nil
		}
		return nil, assert.AnError
	})

	opts := envresolver.DefaultOptions()
	opts.Mode = envresolver.ModeDevelopment

	r, err := envresolver.ResolveWithOptions(context.Background(),
		envresolver.Schema{"LOG_LEVEL": envresolver.Definition{Type: "loglevel", Default: "info"}},
		[]envresolver.Source{envresolver.Map("test", map[string]string{"LOG_LEVEL": "warn"})},
		opts)
	require.NoError(t, err)

	level, err := r.String("LOG_LEVEL")
	require.NoError(t, err)
	assert.Equal(t, "warn", level)
}
