package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "atrax.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestRunCheck_ValidConfigPrintsSummary(t *testing.T) {
	path := writeTempConfig(t, `{
		"mcpServers": {
			"fs": {"transportType": "stdio", "command": "mcp-server-fs"}
		}
	}`)
	checkConfigPath = path
	defer func() { checkConfigPath = "atrax.json" }()

	var buf bytes.Buffer
	checkCmd.SetOut(&buf)
	if err := runCheck(checkCmd, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if buf.Len() == 0 {
		t.Error("expected a summary to be printed")
	}
}

func TestRunCheck_MissingFileReturnsError(t *testing.T) {
	checkConfigPath = filepath.Join(t.TempDir(), "does-not-exist.json")
	defer func() { checkConfigPath = "atrax.json" }()

	if err := runCheck(checkCmd, nil); err == nil {
		t.Error("expected an error for a missing config file")
	}
}
