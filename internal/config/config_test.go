package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dynq/internal/testutil"
	"github.com/roach88/dynq/internal/token"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dynq.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "sqlite", cfg.Backend)
	assert.Equal(t, ":memory:", cfg.Database)
	assert.Equal(t, token.DefaultCacheSize, cfg.TokenCacheSize)
	assert.Equal(t, FormatText, cfg.Output.Format)

	p, err := cfg.Precision()
	require.NoError(t, err)
	assert.Equal(t, token.PrecisionMilliseconds, p)
}

func TestLoadFrom(t *testing.T) {
	path := writeConfig(t, `
schema_dir = "defs"
data_file = "/abs/data.yaml"
backend = "memory"
log_level = "debug"
date_precision = "days"
token_cache_size = 16

[output]
format = "json"
color = "never"
`)
	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	dir := filepath.Dir(path)
	assert.Equal(t, filepath.Join(dir, "defs"), cfg.SchemaDir)
	assert.Equal(t, "/abs/data.yaml", cfg.DataFile)
	assert.Equal(t, "memory", cfg.Backend)
	assert.Equal(t, ":memory:", cfg.Database, "unset keys keep their default")
	assert.Equal(t, 16, cfg.TokenCacheSize)
	assert.Equal(t, Output{Format: "json", Color: "never"}, cfg.Output)

	level, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoadFromRelativeDatabase(t *testing.T) {
	path := writeConfig(t, `database = "dynq.db"`)
	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "dynq.db"), cfg.Database)
}

func TestLoadFromErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{
			name: "unknown backend",
			body: `backend = "postgres"`,
			want: []string{"backend", "postgres"},
		},
		{
			name: "several invalid fields",
			body: "date_precision = \"weeks\"\nlog_level = \"loud\"\n[output]\nformat = \"xml\"",
			want: []string{"date_precision", "log_level", "output.format"},
		},
		{
			name: "unknown key",
			body: `schema = "x"`,
			want: []string{"unknown keys", "schema"},
		},
		{
			name: "auth without role",
			body: "[auth]\nrules = [{role = \"a\", object = \"Orders:*\"}]",
			want: []string{"auth.role"},
		},
		{
			name: "malformed",
			body: `backend = `,
			want: []string{"failed to parse config"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(writeConfig(t, tt.body))
			require.Error(t, err)
			for _, w := range tt.want {
				assert.ErrorContains(t, err, w)
			}
		})
	}
}

func TestLoadUsesEnv(t *testing.T) {
	path := writeConfig(t, `backend = "memory"`)
	t.Setenv(EnvVar, path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Backend)

	t.Setenv(EnvVar, "")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestAuthorizer(t *testing.T) {
	path := writeConfig(t, `
[auth]
role = "analyst"

[[auth.rules]]
role = "reader"
object = "Orders:*"

[[auth.rules]]
role = "reader"
object = "Orders:Total"
effect = "deny"

[[auth.inherits]]
role = "analyst"
parent = "reader"
`)
	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	auth, err := cfg.Authorizer()
	require.NoError(t, err)

	schema, _ := testutil.Orders(t)
	desc, err := schema.Describe("Orders")
	require.NoError(t, err)
	number, _ := desc.Column("Number")
	total, _ := desc.Column("Total")

	assert.Empty(t, auth.IsAllowed(token.NewColumn("Orders", *number)))
	assert.NotEmpty(t, auth.IsAllowed(token.NewColumn("Orders", *total)))

	open, err := Default().Authorizer()
	require.NoError(t, err)
	assert.Equal(t, token.AllowAll{}, open)
}
