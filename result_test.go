// File: envresolver/result_test.go
package envresolver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resolveForTest(t *testing.T, schema Schema, values map[string]string) *Result {
	t.Helper()
	r, err := ResolveWithOptions(context.Background(), schema,
		[]Source{Map("test", values)}, devOptions())
	require.NoError(t, err)
	return r
}

// TestResultTypedGetters tests the typed accessor conversions
func TestResultTypedGetters(t *testing.T) {
	r := resolveForTest(t, Schema{
		"HOST":    "string",
		"PORT":    "number",
		"RATIO":   "number",
		"DEBUG":   "boolean",
		"TAGS":    "array",
		"TIMEOUT": Definition{Type: "duration"},
	}, map[string]string{
		"HOST":    "localhost",
		"PORT":    "8080",
		"RATIO":   "0.75",
		"DEBUG":   "true",
		"TAGS":    "a,b,c",
		"TIMEOUT": "90s",
	})

	t.Run("String", func(t *testing.T) {
		s, err := r.String("HOST")
		require.NoError(t, err)
		assert.Equal(t, "localhost", s)

		s, err = r.String("PORT")
		require.NoError(t, err)
		assert.Equal(t, "8080", s, "numbers convert to their literal form")

		_, err = r.String("NO_SUCH_KEY")
		assert.Error(t, err)
	})

	t.Run("Int64", func(t *testing.T) {
		i, err := r.Int64("PORT")
		require.NoError(t, err)
		assert.Equal(t, int64(8080), i)

		i, err = r.Int64("RATIO")
		require.NoError(t, err)
		assert.Equal(t, int64(0), i, "float truncates")
	})

	t.Run("Float64", func(t *testing.T) {
		f, err := r.Float64("RATIO")
		require.NoError(t, err)
		assert.Equal(t, 0.75, f)

		f, err = r.Float64("PORT")
		require.NoError(t, err)
		assert.Equal(t, 8080.0, f)
	})

	t.Run("Bool", func(t *testing.T) {
		b, err := r.Bool("DEBUG")
		require.NoError(t, err)
		assert.True(t, b)

		_, err = r.Bool("TAGS")
		assert.Error(t, err)
	})

	t.Run("Strings", func(t *testing.T) {
		s, err := r.Strings("TAGS")
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, s)

		s, err = r.Strings("HOST")
		require.NoError(t, err)
		assert.Equal(t, []string{"localhost"}, s, "scalar strings become one-element slices")
	})

	t.Run("Duration", func(t *testing.T) {
		d, err := r.Duration("TIMEOUT")
		require.NoError(t, err)
		assert.Equal(t, 90*time.Second, d)
	})
}

// TestResultMapIsACopy tests that Map callers cannot mutate the result
func TestResultMapIsACopy(t *testing.T) {
	r := resolveForTest(t, Schema{"A": "string"}, map[string]string{"A": "1"})

	m := r.Map()
	m["A"] = "mutated"

	v, _ := r.Get("A")
	assert.Equal(t, "1", v)
}

// TestResultScan tests struct decoding
func TestResultScan(t *testing.T) {
	t.Run("FlatStruct", func(t *testing.T) {
		r := resolveForTest(t, Schema{
			"PORT":    "number",
			"HOST":    "string",
			"DEBUG":   "boolean",
			"TIMEOUT": Definition{Type: "duration"},
		}, map[string]string{
			"PORT":    "8080",
			"HOST":    "localhost",
			"DEBUG":   "true",
			"TIMEOUT": "30s",
		})

		var cfg struct {
			Port    int           `config:"PORT"`
			Host    string        `config:"HOST"`
			Debug   bool          `config:"DEBUG"`
			Timeout time.Duration `config:"TIMEOUT"`
		}
		require.NoError(t, r.Scan(&cfg))

		assert.Equal(t, 8080, cfg.Port)
		assert.Equal(t, "localhost", cfg.Host)
		assert.True(t, cfg.Debug)
		assert.Equal(t, 30*time.Second, cfg.Timeout)
	})

	t.Run("NestedStruct", func(t *testing.T) {
		opts := devOptions()
		opts.NestedDelimiter = "__"
		r, err := ResolveWithOptions(context.Background(), Schema{
			"SERVER__PORT": "number",
			"SERVER__HOST": "string",
		}, []Source{Map("test", map[string]string{
			"SERVER__PORT": "8080",
			"SERVER__HOST": "0.0.0.0",
		})}, opts)
		require.NoError(t, err)

		var cfg struct {
			Server struct {
				Port int    `config:"port"`
				Host string `config:"host"`
			} `config:"server"`
		}
		require.NoError(t, r.Scan(&cfg))
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	})

	t.Run("NonPointerTarget", func(t *testing.T) {
		r := resolveForTest(t, Schema{"A": "string"}, map[string]string{"A": "1"})
		var cfg struct{}
		assert.Error(t, r.Scan(cfg))
	})
}

// TestResultDebug tests the human-readable dump
func TestResultDebug(t *testing.T) {
	r := resolveForTest(t, Schema{
		"HOST":    "string",
		"API_KEY": Definition{Type: TypeString, Secret: true},
	}, map[string]string{
		"HOST":    "localhost",
		"API_KEY": "super-secret-value",
	})

	out := r.Debug()
	assert.Contains(t, out, "localhost")
	assert.Contains(t, out, "[redacted]")
	assert.NotContains(t, out, "super-secret-value")
}

// TestResultSources tests distinct source listing
func TestResultSources(t *testing.T) {
	r, err := ResolveWithOptions(context.Background(), Schema{
		"A": "string",
		"B": "string",
		"C": "string:dflt",
	}, []Source{
		Map("alpha", map[string]string{"A": "1"}),
		Map("beta", map[string]string{"B": "2"}),
	}, devOptions())
	require.NoError(t, err)

	assert.Equal(t, []string{"alpha", "beta"}, r.Sources())
}
