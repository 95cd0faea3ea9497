package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "k")
	cfg := Load()

	assert.Equal(t, "8090", cfg.Port)
	assert.Equal(t, BackendChromem, cfg.VectorBackend)
	assert.Equal(t, "./data/processed", cfg.ChromemPath)
	assert.Equal(t, 1000, cfg.DefaultChunkSize)
	assert.Equal(t, 200, cfg.DefaultChunkOverlap)
	assert.Equal(t, 5, cfg.DefaultTopK)
	assert.Equal(t, 10, cfg.MaxTopK)
	assert.Equal(t, time.Hour, cfg.JobTTL)
	require.NoError(t, cfg.Validate())
}

func TestLoad_ZeroOverlapIsKept(t *testing.T) {
	t.Setenv("DEFAULT_CHUNK_OVERLAP", "0")
	cfg := Load()
	assert.Equal(t, 0, cfg.DefaultChunkOverlap)
}

func TestLoad_InvalidNumbersFallBack(t *testing.T) {
	t.Setenv("WORKER_COUNT", "lots")
	t.Setenv("JOB_TTL", "soon")
	cfg := Load()
	assert.Equal(t, 2, cfg.WorkerCount)
	assert.Equal(t, time.Hour, cfg.JobTTL)
}

func TestValidate(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "k")
	base := func() Config { return Load() }

	cases := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(c *Config) {}, true},
		{"missing key", func(c *Config) { c.GeminiAPIKey = "" }, false},
		{"overlap too large", func(c *Config) { c.DefaultChunkOverlap = c.DefaultChunkSize }, false},
		{"top k above max", func(c *Config) { c.DefaultTopK = 11 }, false},
		{"similarity out of range", func(c *Config) { c.MinSimilarity = 1.5 }, false},
		{"postgres without url", func(c *Config) { c.VectorBackend = BackendPostgres }, false},
		{"postgres with url", func(c *Config) {
			c.VectorBackend = BackendPostgres
			c.PostgresURL = "postgres://localhost/pdfrag"
		}, true},
		{"unknown backend", func(c *Config) { c.VectorBackend = "faiss" }, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
