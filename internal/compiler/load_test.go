package compiler

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDir(t *testing.T) {
	schema, err := LoadDir(filepath.Join("testdata", "orders"))
	require.NoError(t, err)

	assert.Equal(t, []string{"Customer", "Order"}, schema.EntityNames())
	assert.Equal(t, []string{"Orders"}, schema.QueryNames())
	assert.Contains(t, schema.Embedded, "OrderLine")
}

func TestLoadDirErrors(t *testing.T) {
	_, err := LoadDir(filepath.Join("testdata", "missing"))
	assert.Error(t, err)

	_, err = LoadDir(filepath.Join("testdata", "orders", "entities.cue"))
	assert.ErrorContains(t, err, "not a directory")

	_, err = LoadDir(filepath.Join("testdata", "empty"))
	assert.ErrorIs(t, err, ErrNoSchemaFiles)
}

func TestFindCUEFiles(t *testing.T) {
	files, err := FindCUEFiles(filepath.Join("testdata", "orders"))
	require.NoError(t, err)
	assert.Len(t, files, 2)
}
