package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "atrax.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestNewApplication_LoadsConfigAndWiresRouter(t *testing.T) {
	path := writeTempConfig(t, `{
		"mcpServers": {
			"fs": {"transportType": "stdio", "command": "mcp-server-fs"}
		}
	}`)

	application, err := NewApplication(Options{ConfigPath: path, Silent: true})
	require.NoError(t, err)
	assert.NotNil(t, application.Router())
	assert.Equal(t, 1, len(application.Config().MCPServers))
}

func TestNewApplication_InvalidConfigReturnsError(t *testing.T) {
	path := writeTempConfig(t, `{"mcpServers": {}}`)

	_, err := NewApplication(Options{ConfigPath: path, Silent: true})
	assert.Error(t, err)
}

func TestNewApplication_MissingFileReturnsError(t *testing.T) {
	_, err := NewApplication(Options{ConfigPath: filepath.Join(t.TempDir(), "missing.json"), Silent: true})
	assert.Error(t, err)
}
