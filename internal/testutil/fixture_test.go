package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dynq/internal/ir"
)

func TestOrdersFixture(t *testing.T) {
	schema, d := Orders(t)

	assert.Equal(t, []string{"Customer", "Employee", "Order"}, schema.EntityNames())
	assert.Equal(t, []string{"Customers", "Orders"}, schema.QueryNames())

	current, err := d.Scan("Order", nil)
	require.NoError(t, err)
	assert.Len(t, current, 25)

	all, err := d.Scan("Order", ir.AllVersions(ir.JoinCurrent))
	require.NoError(t, err)
	assert.Len(t, all, 26)

	over100 := 0
	for _, o := range current {
		if o.Fields["Total"].(ir.IRDecimal).GreaterThan(ir.MustDecimal("100").Decimal) {
			over100++
		}
	}
	assert.Equal(t, 12, over100)

	assert.Equal(t, "O-007", d.ToStr(ir.IRLite{ID: 107}))
	assert.Equal(t, ir.IRNull{}, current[6].Fields["Customer"])

	typ, ok := d.TypeOf(10)
	require.True(t, ok)
	assert.Equal(t, "Employee", typ)
	assert.Equal(t, ir.IRLite{Type: "Employee", ID: 10}, current[3].Fields["Responsible"])
}
