package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// Load reads the JSON configuration document at path, fills in documented defaults, applies
// the PORT environment variable override, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var raw struct {
		Port             int                        `json:"port"`
		Host             string                     `json:"host"`
		Auth             *AuthConfig                `json:"auth"`
		LogLevel         string                     `json:"logLevel"`
		ConflictStrategy ConflictStrategy           `json:"conflictStrategy"`
		MCPServers       map[string]json.RawMessage `json:"mcpServers"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg := &Config{
		Port:             raw.Port,
		Host:             raw.Host,
		Auth:             raw.Auth,
		LogLevel:         raw.LogLevel,
		ConflictStrategy: raw.ConflictStrategy,
		MCPServers:       make(map[string]ServerConfig, len(raw.MCPServers)),
	}

	for name, body := range raw.MCPServers {
		var sc ServerConfig
		if err := json.Unmarshal(body, &sc); err != nil {
			return nil, fmt.Errorf("failed to parse mcpServers.%s: %w", name, err)
		}
		sc.Name = name
		cfg.MCPServers[name] = sc
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.ConflictStrategy == "" {
		c.ConflictStrategy = PrefixWithServerName
	}
	if portEnv := os.Getenv("PORT"); portEnv != "" {
		if p, err := strconv.Atoi(portEnv); err == nil {
			c.Port = p
		}
	}
}
