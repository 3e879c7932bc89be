// Package config loads and validates the JSON configuration document that describes the
// downstream listener and the set of upstream MCP servers atrax aggregates.
package config

// TransportType identifies which substrate an upstream MCP server is reached over.
type TransportType string

const (
	TransportStdio  TransportType = "stdio"
	TransportDocker TransportType = "docker"
	TransportHTTP   TransportType = "http"
)

// ConflictStrategy controls how the namespace merger resolves two upstreams declaring the
// same tool, resource, or prompt name.
type ConflictStrategy string

const (
	// PrefixWithServerName is the default: every public name is made unique by prefixing it
	// with the owning session's name, so no conflict can occur.
	PrefixWithServerName ConflictStrategy = "prefixWithServerName"
	// FirstWins lets the first session (by sorted name) own a contested name; later
	// declarations are shadowed but tracked for deterministic promotion on eviction.
	FirstWins ConflictStrategy = "firstWins"
	// Reject treats a conflict as a configuration error and degrades the later session.
	Reject ConflictStrategy = "reject"
)

// ServerConfig is the immutable, validated definition of one upstream MCP server.
type ServerConfig struct {
	Name          string        `json:"-"`
	TransportType TransportType `json:"transportType"`
	Description   string        `json:"description,omitempty"`
	Tags          []string      `json:"tags,omitempty"`

	// stdio / docker
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`

	// docker-only
	Image        string            `json:"image,omitempty"`
	Volumes      map[string]string `json:"volumes,omitempty"`
	Network      string            `json:"network,omitempty"`
	RemoveOnExit *bool             `json:"removeOnExit,omitempty"`

	// http
	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// RemovesContainerOnExit reports whether the docker transport should pass --rm.
// Defaults to true when unset, matching the documented default.
func (s ServerConfig) RemovesContainerOnExit() bool {
	if s.RemoveOnExit == nil {
		return true
	}
	return *s.RemoveOnExit
}

// AuthConfig carries the single static credential the downstream HTTP listener checks.
// Parsing and issuance of the token itself is an external collaborator's concern; the core
// only consumes this validated value.
type AuthConfig struct {
	BearerToken string `json:"bearerToken,omitempty"`
}

// Config is the top-level, validated configuration document loaded once at startup.
type Config struct {
	Port             int                     `json:"port,omitempty"`
	Host             string                  `json:"host,omitempty"`
	Auth             *AuthConfig             `json:"auth,omitempty"`
	LogLevel         string                  `json:"logLevel,omitempty"`
	ConflictStrategy ConflictStrategy        `json:"conflictStrategy,omitempty"`
	MCPServers       map[string]ServerConfig `json:"mcpServers"`
}

// DefaultPort is used when neither the config file nor the PORT environment variable
// specifies one.
const DefaultPort = 8090

// DefaultHost is used when the config file does not specify a bind address.
const DefaultHost = "localhost"
