package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hyperdash/internal/faults"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	err := formatter.Success("run-1", map[string]string{"result": "success"}, nil)
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "run-1", resp.RunID)
	assert.NotNil(t, resp.Data)
	assert.Nil(t, resp.Error)
}

func TestOutputFormatter_JSONFailure(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	cause := faults.NewPrecondition("ACCOUNT_CREATED", "ACCOUNT_ACTIVE")
	require.NoError(t, formatter.Failure("run-1", fmt.Errorf("step 1 (resolve): %w", cause)))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "run-1", resp.RunID)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "PRECONDITION_VIOLATION", resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "ACCOUNT_ACTIVE")
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success("", "plain", nil))
	assert.Equal(t, "plain\n", buf.String())

	buf.Reset()
	require.NoError(t, formatter.Success("", "ignored", func(w io.Writer) {
		fmt.Fprintln(w, "custom")
	}))
	assert.Equal(t, "custom\n", buf.String())
}

func TestOutputFormatter_TextFailure(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	transport := faults.NewTransport(http.MethodGet, "http://api/x", http.StatusBadGateway, nil)
	require.NoError(t, formatter.Failure("run-7", transport))
	assert.Contains(t, buf.String(), "Error [TRANSPORT_ERROR] run run-7:")

	buf.Reset()
	require.NoError(t, formatter.Failure("", errors.New("boom")))
	assert.Equal(t, "Error [COMMAND_ERROR]: boom\n", buf.String())
}

func TestExitError(t *testing.T) {
	t.Run("without cause", func(t *testing.T) {
		err := NewExitError(ExitCommandError, "bad input")
		assert.Equal(t, "bad input", err.Error())
		assert.Nil(t, err.Unwrap())
	})

	t.Run("with cause", func(t *testing.T) {
		cause := errors.New("underlying")
		err := WrapExitError(ExitFailure, "poll failed", cause)
		assert.Equal(t, "poll failed: underlying", err.Error())
		assert.ErrorIs(t, err, cause)
	})
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "x")))
	assert.Equal(t, ExitFailure, GetExitCode(WrapExitError(ExitFailure, "x", errors.New("y"))))
	assert.Equal(t, ExitCommandError, GetExitCode(fmt.Errorf("wrapped: %w", NewExitError(ExitCommandError, "x"))))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
}
