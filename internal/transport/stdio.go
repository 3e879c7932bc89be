package transport

import "fmt"

// NewStdio creates a transport that spawns command as a local child process and speaks
// newline-delimited JSON-RPC on its stdin/stdout. label identifies the owning session for
// stderr log lines and diagnostics. env entries are appended to the child's inherited
// environment, following the same KEY=VALUE convention the rest of the MCP ecosystem uses.
func NewStdio(label, command string, args []string, env map[string]string) Transport {
	return newProcessTransport(label, command, args, envStrings(env))
}

func envStrings(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, fmt.Sprintf("%s=%s", k, v))
	}
	return out
}
