package upstream

import "github.com/mark3labs/mcp-go/mcp"

// Capabilities is the snapshot of one session's exported tools, resources, and prompts, plus
// the raw server capability record returned by initialize. The Namespace Merger consumes this
// on every sessionReady/capabilitiesChanged event to rebuild its unified view.
type Capabilities struct {
	Server    mcp.ServerCapabilities
	Tools     []mcp.Tool
	Resources []mcp.Resource
	Prompts   []mcp.Prompt
}

func (c Capabilities) supportsTools() bool     { return c.Server.Tools != nil }
func (c Capabilities) supportsResources() bool { return c.Server.Resources != nil }
func (c Capabilities) supportsPrompts() bool   { return c.Server.Prompts != nil }
