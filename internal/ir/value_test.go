package ir

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIRValueSealed(t *testing.T) {
	var _ IRValue = IRNull{}
	var _ IRValue = IRString("test")
	var _ IRValue = IRInt(42)
	var _ IRValue = IRBool(true)
	var _ IRValue = MustDecimal("1.5")
	var _ IRValue = NewIRTime(time.Now())
	var _ IRValue = IRLite{Type: "Customer", ID: 1}
	var _ IRValue = IREntity{Type: "Customer", ID: 1}
	var _ IRValue = IRArray{IRString("a"), IRInt(1)}
	var _ IRValue = IRObject{"key": IRString("value")}
}

func TestIRObjectSortedKeys(t *testing.T) {
	obj := IRObject{
		"zebra":  IRString("z"),
		"apple":  IRString("a"),
		"banana": IRString("b"),
	}
	assert.Equal(t, []string{"apple", "banana", "zebra"}, obj.SortedKeys())
}

func TestIRObjectSortedKeysUTF16(t *testing.T) {
	// U+FF61 sorts after a surrogate pair in UTF-16 but before it in UTF-8.
	obj := IRObject{
		"\uFF61":     IRInt(1),
		"\U0001F600": IRInt(2),
	}
	assert.Equal(t, []string{"\U0001F600", "\uFF61"}, obj.SortedKeys())
}

func TestIsNull(t *testing.T) {
	assert.True(t, IsNull(nil))
	assert.True(t, IsNull(IRNull{}))
	assert.False(t, IsNull(IRString("")))
	assert.False(t, IsNull(IRInt(0)))
}

func TestParseLiteKey(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    IRLite
		wantErr bool
	}{
		{"valid", "Customer;12", IRLite{Type: "Customer", ID: 12}, false},
		{"missing separator", "Customer12", IRLite{}, true},
		{"empty type", ";12", IRLite{}, true},
		{"non numeric id", "Customer;x", IRLite{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLiteKey(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.input, got.Key())
		})
	}
}

func TestParseTime(t *testing.T) {
	want := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for _, s := range []string{"2024-03-01", "2024-03-01 00:00:00", "2024-03-01 00:00:00.000", "2024-03-01T00:00:00Z"} {
		t.Run(s, func(t *testing.T) {
			got, err := ParseTime(s)
			require.NoError(t, err)
			assert.True(t, want.Equal(got))
		})
	}

	_, err := ParseTime("March 1st")
	assert.Error(t, err)
}

func TestNewIRTimeTruncatesToMillis(t *testing.T) {
	in := time.Date(2024, 3, 1, 10, 0, 0, 123456789, time.FixedZone("X", 3600))
	got := NewIRTime(in)
	assert.Equal(t, time.UTC, got.Location())
	assert.Equal(t, 123000000, got.Nanosecond())
	assert.Equal(t, 9, got.Hour())
}

func TestMarshalIRValue(t *testing.T) {
	tests := []struct {
		name     string
		input    IRValue
		expected string
	}{
		{"null", IRNull{}, "null"},
		{"nil", nil, "null"},
		{"string", IRString("a"), `"a"`},
		{"decimal keeps exact text", MustDecimal("10.25"), "10.25"},
		{"time", NewIRTime(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)), `"2024-01-02 03:04:05.000"`},
		{"lite", IRLite{Type: "Customer", ID: 1, ToStr: "Ada"}, `{"entityType":"Customer","id":1,"toStr":"Ada"}`},
		{"entity as lite", IREntity{Type: "Customer", ID: 1, Fields: IRObject{"Name": IRString("Ada")}}, `{"entityType":"Customer","id":1}`},
		{"array", IRArray{IRInt(1), IRNull{}, IRBool(true)}, "[1,null,true]"},
		{"object sorted", IRObject{"b": IRInt(2), "a": IRInt(1)}, `{"a":1,"b":2}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MarshalIRValue(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(got))
		})
	}
}

func TestIRObjectMarshalJSONNested(t *testing.T) {
	obj := IRObject{
		"address": IRObject{"city": IRString("Paris")},
		"lines":   IRArray{IRObject{"qty": IRInt(2)}},
	}
	data, err := json.Marshal(obj)
	require.NoError(t, err)
	assert.JSONEq(t, `{"address":{"city":"Paris"},"lines":[{"qty":2}]}`, string(data))
}

func TestDisplay(t *testing.T) {
	assert.Equal(t, "", Display(IRNull{}))
	assert.Equal(t, "12.5", Display(MustDecimal("12.50")))
	assert.Equal(t, "Ada", Display(IRLite{Type: "Customer", ID: 1, ToStr: "Ada"}))
	assert.Equal(t, "Customer;1", Display(IRLite{Type: "Customer", ID: 1}))
	assert.Equal(t, "true", Display(IRBool(true)))
}

func TestNewIRObjectFromPairs(t *testing.T) {
	obj := NewIRObjectFromPairs(O("Name", NewIRString("Ada")), O("Age", NewIRInt(36)))
	assert.Equal(t, IRObject{"Name": IRString("Ada"), "Age": IRInt(36)}, obj)
}
