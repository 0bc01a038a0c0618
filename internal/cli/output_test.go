package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dynq/internal/config"
	"github.com/roach88/dynq/internal/dquery"
	"github.com/roach88/dynq/internal/engine"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Success(map[string]string{"result": "success"}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
	assert.Empty(t, resp.RequestID)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Error("E004", "schema load failed", map[string]string{"file": "orders.cue"}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E004", resp.Error.Code)
	assert.Equal(t, "schema load failed", resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_TextError(t *testing.T) {
	tests := []struct {
		name        string
		verbose     bool
		wantDetails bool
	}{
		{"quiet", false, false},
		{"verbose", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{Format: "text", Writer: buf, Verbose: tt.verbose}

			require.NoError(t, formatter.Error("E001", "request failed", map[string]string{"file": "req.yaml"}))
			assert.Contains(t, buf.String(), "Error [E001]: request failed")
			if tt.wantDetails {
				assert.Contains(t, buf.String(), "Details:")
			} else {
				assert.NotContains(t, buf.String(), "Details:")
			}
		})
	}
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
			formatter := &OutputFormatter{Format: "json", Writer: out, ErrWriter: errOut, Verbose: tt.verbose}

			formatter.VerboseLog("Running %s", "Orders")

			assert.Empty(t, out.String(), "diagnostics never go to stdout")
			if tt.wantLog {
				assert.Contains(t, errOut.String(), "Running Orders")
			} else {
				assert.Empty(t, errOut.String())
			}
		})
	}
}

func TestOutputFormatter_RequestFailed(t *testing.T) {
	qerr := &dquery.QueryError{Code: dquery.ErrCodeInvalidFilter, Message: "not filterable", Details: []string{"Lines"}}
	err := &engine.RequestError{RequestID: "req-0007", Op: "query", QueryName: "Orders", Err: qerr}

	t.Run("json", func(t *testing.T) {
		buf := &bytes.Buffer{}
		formatter := &OutputFormatter{Format: "json", Writer: buf}

		exit := formatter.RequestFailed(err)
		assert.Equal(t, ExitFailure, GetExitCode(exit))

		var resp CLIResponse
		require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
		assert.Equal(t, "error", resp.Status)
		assert.Equal(t, "req-0007", resp.RequestID)
		require.NotNil(t, resp.Error)
		assert.Equal(t, "INVALID_FILTER", resp.Error.Code)
		assert.Equal(t, []any{"Lines"}, resp.Error.Details)
	})

	t.Run("text", func(t *testing.T) {
		buf := &bytes.Buffer{}
		formatter := &OutputFormatter{Format: "text", Writer: buf}

		formatter.RequestFailed(err)
		assert.Contains(t, buf.String(), "Error [INVALID_FILTER]")
	})

	t.Run("generic", func(t *testing.T) {
		buf := &bytes.Buffer{}
		formatter := &OutputFormatter{Format: "text", Writer: buf}

		formatter.RequestFailed(errors.New("disk on fire"))
		assert.Contains(t, buf.String(), "Error [E001]: disk on fire")
	})
}

func TestOutputFormatter_Table(t *testing.T) {
	formatter := &OutputFormatter{Format: "text", Writer: &bytes.Buffer{}}

	out := formatter.Table([]string{"Number", "Customer"}, [][]string{{"O-001", "Ada"}, {"O-007", ""}})
	assert.Contains(t, out, "Number")
	assert.Contains(t, out, "O-001")
	assert.Contains(t, out, "Ada")
	assert.Contains(t, out, "─", "header separator")
	assert.NotContains(t, out, "\x1b[", "no escapes without color")

	assert.Equal(t, "3 rows", formatter.Muted("3 rows"))
}

func TestColorEnabled(t *testing.T) {
	buf := &bytes.Buffer{}
	assert.True(t, colorEnabled(config.ColorAlways, buf))
	assert.False(t, colorEnabled(config.ColorNever, buf))
	assert.False(t, colorEnabled(config.ColorAuto, buf), "buffers are not terminals")

	t.Setenv("NO_COLOR", "1")
	assert.False(t, colorEnabled(config.ColorAuto, os.Stdout))
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad flag")))

	wrapped := fmt.Errorf("outer: %w", WrapExitError(ExitCommandError, "load", errors.New("inner")))
	assert.Equal(t, ExitCommandError, GetExitCode(wrapped))
}

func TestCLIError_JSON(t *testing.T) {
	data, err := json.Marshal(CLIError{Code: "TOKEN_NOT_FOUND", Message: "no Nope on Order"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"code":"TOKEN_NOT_FOUND","message":"no Nope on Order"}`, string(data))
}
