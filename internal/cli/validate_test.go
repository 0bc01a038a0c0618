package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dynq/internal/compiler"
)

const badQuerySchema = `
package schema

entity: Customer: {
	toStr: "Name"
	properties: Name: {type: "string"}
}

query: Invoices: {
	entity: "Invoice"
	columns: ["Id"]
}
`

func TestValidateValidSchema(t *testing.T) {
	p := newProject(t, "memory", "")

	out, _, err := p.run(t, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Schema valid (3 entities, 2 queries)")
}

func TestValidateValidSchemaJSON(t *testing.T) {
	p := newProject(t, "memory", "")

	out, _, err := p.run(t, "--format", "json", "validate", "--data", filepath.Join(p.dir, "data.yaml"))
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, 3, resp.Data.Entities)
	assert.ElementsMatch(t, []string{"Orders", "Customers"}, resp.Data.Queries)
	assert.Len(t, resp.Data.Fingerprint, 64)
}

func TestSchemaFingerprint(t *testing.T) {
	p := newProject(t, "memory", "")
	schema, err := LoadSchema(filepath.Join(p.dir, "schema"))
	require.NoError(t, err)

	first, err := schemaFingerprint(schema)
	require.NoError(t, err)
	second, err := schemaFingerprint(schema)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	out, _, err := p.run(t, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "fingerprint "+first[:12])
}

func TestValidateNonExistentDirectory(t *testing.T) {
	p := newProject(t, "memory", "")

	out, _, err := p.run(t, "validate", "/nonexistent/schema")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E005]")
}

func TestValidateEmptyDirectory(t *testing.T) {
	p := newProject(t, "memory", "")

	out, _, err := p.run(t, "validate", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, out, "Error [E003]")
}

func TestValidateInvalidSchema(t *testing.T) {
	p := newProject(t, "memory", "")
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.cue"), []byte(badQuerySchema), 0644))

	out, _, err := p.run(t, "validate", dir)
	require.Error(t, err)
	assert.Contains(t, out, compiler.ErrUnknownQueryEntity)
	assert.Contains(t, out, "Invoice")
}

func TestValidateBadDataset(t *testing.T) {
	p := newProject(t, "memory", "")
	data := p.request(t, "bad.yaml", "Order:\n  - id: 1\n    Nope: 3\n")

	out, _, err := p.run(t, "validate", "--data", data)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E007]")
}

func TestMapFieldToErrorCode(t *testing.T) {
	tests := []struct {
		field    string
		expected string
	}{
		{"cue", ErrCodeBuildFailed},
		{"toStr", compiler.ErrMissingToStr},
		{"type", compiler.ErrInvalidFieldType},
		{"element", compiler.ErrInvalidFieldType},
		{"query.entity", compiler.ErrUnknownQueryEntity},
		{"query.columns", compiler.ErrUnknownQueryProperty},
		{"unknown", ErrCodeGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			assert.Equal(t, tt.expected, MapFieldToErrorCode(tt.field))
		})
	}
}
