package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusEmptyStore(t *testing.T) {
	path := writeConfigFile(t, "")
	stdout, _, err := execute("status", "--config", path)
	require.NoError(t, err)

	assert.Contains(t, stdout, "User:         (none)")
	assert.Contains(t, stdout, "State:        clean")
	assert.Contains(t, stdout, "Unsent edits: false")
	assert.Contains(t, stdout, "Data token:   (none)")
}

func TestStatusJSONOutput(t *testing.T) {
	path := writeConfigFile(t, "")
	stdout, _, err := execute("status", "--config", path, "--format", "json")
	require.NoError(t, err)

	var response CLIResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &response))
	assert.Equal(t, "ok", response.Status)
	data := response.Data.(map[string]any)
	assert.Equal(t, "clean", data["state"])
	assert.Equal(t, false, data["has_unsent_saving"])
	// tokens appear only as presence flags
	_, hasRawToken := data["data_token"]
	assert.False(t, hasRawToken)
}

func TestStatusBadConfig(t *testing.T) {
	path := writeConfigFile(t, "log_level: \"loud\"\n")
	_, _, err := execute("status", "--config", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
