package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprint(t *testing.T) {
	base := &QueryRequestDTO{
		QueryName: "Orders",
		Filters:   []FilterDTO{{Token: "Total", Operation: "GreaterThan", Value: 100}},
		Columns:   []ColumnDTO{{Token: "Number"}},
	}
	h, err := Fingerprint(base)
	require.NoError(t, err)
	assert.Len(t, h, 64)

	same, err := Fingerprint(&QueryRequestDTO{
		QueryName: "Orders",
		Filters:   []FilterDTO{{Token: "Total", Operation: "GreaterThan", Value: int64(100)}},
		Columns:   []ColumnDTO{{Token: "Number"}},
	})
	require.NoError(t, err)
	assert.Equal(t, h, same)

	other, err := Fingerprint(&QueryRequestDTO{
		QueryName: "Orders",
		Filters:   []FilterDTO{{Token: "Total", Operation: "GreaterThan", Value: 101}},
		Columns:   []ColumnDTO{{Token: "Number"}},
	})
	require.NoError(t, err)
	assert.NotEqual(t, h, other)

	// Fractional values hash as decimals.
	a, err := Fingerprint(&FilterDTO{Token: "Total", Operation: "EqualTo", Value: 1.5})
	require.NoError(t, err)
	b, err := Fingerprint(&FilterDTO{Token: "Total", Operation: "EqualTo", Value: "1.5"})
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "a number and a string never collide")
}

func TestExecuteQueryReportsRequestHash(t *testing.T) {
	e := setupEngines(t)[0]
	dto := &QueryRequestDTO{QueryName: "Orders", Columns: []ColumnDTO{{Token: "Number"}}}

	resp, err := e.ExecuteQuery(context.Background(), dto)
	require.NoError(t, err)
	want, err := Fingerprint(dto)
	require.NoError(t, err)
	assert.Equal(t, want, resp.RequestHash)
}
