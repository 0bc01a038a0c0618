package harness

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/roach88/dynq/internal/ir"
)

// AssertionError is returned when an expectation fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string // Expectation that failed: "error", "rows", "columns", ...
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("expect %s: want %s, got %s", e.Type, e.Expected, e.Actual)
}

// CheckExpect evaluates a step's expectations against one outcome and
// returns one message per failed expectation.
func CheckExpect(step Step, out Outcome) []string {
	exp := step.Expect
	if exp == nil {
		exp = &Expect{}
	}

	if err := assertError(exp, out); err != nil {
		return []string{err.Error()}
	}
	if out.Error != "" {
		return nil // expected failure; nothing else to check
	}

	var checks []func(*Expect, Outcome) error
	switch out.Kind {
	case KindQuery:
		checks = append(checks, assertRows, assertTotal, assertTableEntities, assertColumns)
	case KindValue, KindUnique:
		checks = append(checks, assertValue)
	case KindEntities:
		checks = append(checks, assertEntityList)
	}

	var msgs []string
	for _, check := range checks {
		if err := check(exp, out); err != nil {
			msgs = append(msgs, err.Error())
		}
	}
	return msgs
}

func assertError(exp *Expect, out Outcome) error {
	switch {
	case exp.Error == "" && out.Error != "":
		return &AssertionError{Type: "success", Expected: "no error", Actual: out.Message}
	case exp.Error != "" && out.Error == "":
		return &AssertionError{Type: "error", Expected: exp.Error, Actual: "success"}
	case exp.Error != out.Error:
		return &AssertionError{Type: "error", Expected: exp.Error, Actual: fmt.Sprintf("%s (%s)", out.Error, out.Message)}
	}
	return nil
}

func assertRows(exp *Expect, out Outcome) error {
	if exp.Rows == nil || *exp.Rows == out.table.Len() {
		return nil
	}
	return &AssertionError{Type: "rows", Expected: fmt.Sprint(*exp.Rows), Actual: fmt.Sprint(out.table.Len())}
}

func assertTotal(exp *Expect, out Outcome) error {
	total := out.table.TotalElements
	switch {
	case exp.NoTotal && total != nil:
		return &AssertionError{Type: "total", Expected: "unknown", Actual: fmt.Sprint(*total)}
	case exp.Total == nil:
		return nil
	case total == nil:
		return &AssertionError{Type: "total", Expected: fmt.Sprint(*exp.Total), Actual: "unknown"}
	case *total != *exp.Total:
		return &AssertionError{Type: "total", Expected: fmt.Sprint(*exp.Total), Actual: fmt.Sprint(*total)}
	}
	return nil
}

func assertTableEntities(exp *Expect, out Outcome) error {
	if exp.Entities == nil {
		return nil
	}
	got := make([]string, len(out.table.Entities))
	for i, v := range out.table.Entities {
		got[i] = display(v)
	}
	return compareList("entities", exp.Entities, got)
}

func assertEntityList(exp *Expect, out Outcome) error {
	if exp.Entities == nil {
		return nil
	}
	var got []string
	for _, l := range out.lites {
		got = append(got, l.Key())
	}
	for _, e := range out.entities {
		got = append(got, e.ToLite().Key())
	}
	return compareList("entities", exp.Entities, got)
}

func assertColumns(exp *Expect, out Outcome) error {
	if len(exp.Columns) == 0 {
		return nil
	}
	keys := make([]string, 0, len(exp.Columns))
	for k := range exp.Columns {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		col, ok := out.table.Column(key)
		if !ok {
			return &AssertionError{Type: "columns", Expected: "column " + key, Actual: "no such column"}
		}
		got := make([]string, out.table.Len())
		for i := range got {
			got[i] = display(col.Value(i))
		}
		if err := compareList("column "+key, exp.Columns[key], got); err != nil {
			return err
		}
	}
	return nil
}

func assertValue(exp *Expect, out Outcome) error {
	if exp.Value == nil {
		return nil
	}
	got := display(out.value)
	if arr, ok := out.value.(ir.IRArray); ok {
		items := make([]string, len(arr))
		for i, v := range arr {
			items[i] = display(v)
		}
		got = "[" + strings.Join(items, ", ") + "]"
	}
	if got != *exp.Value {
		return &AssertionError{Type: "value", Expected: *exp.Value, Actual: got}
	}
	return nil
}

func compareList(what string, want, got []string) error {
	if slices.Equal(want, got) {
		return nil
	}
	return &AssertionError{
		Type:     what,
		Expected: "[" + strings.Join(want, ", ") + "]",
		Actual:   "[" + strings.Join(got, ", ") + "]",
	}
}

// display renders a value the way expectations spell it: lites as their
// "Type;id" key and null as "null".
func display(v ir.IRValue) string {
	switch val := v.(type) {
	case nil, ir.IRNull:
		return "null"
	case ir.IRLite:
		return val.Key()
	}
	return ir.Display(v)
}
