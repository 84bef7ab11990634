// Package mcp exposes the filing operations as MCP tools over stdio.
package mcp

import (
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/casefile/internal/ops"
)

// KnownTypes lists all valid type names.
var KnownTypes = []string{"filing", "history"}

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"filing_suggest": {
		def:     suggestToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSuggest },
	},
	"filing_status": {
		def:     statusToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleStatus },
	},
	"filing_file": {
		def:     fileToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleFile },
	},
	"filing_unfile": {
		def:     unfileToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleUnfile },
	},
	"filing_do_not_file": {
		def:     doNotFileToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDoNotFile },
	},
	"filing_allow": {
		def:     allowToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleAllow },
	},
	"filing_intent_set": {
		def:     intentSetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleIntentSet },
	},
	"filing_intent_get": {
		def:     intentGetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleIntentGet },
	},
	"filing_intent_clear": {
		def:     intentClearToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleIntentClear },
	},
	"filing_deferred_list": {
		def:     deferredListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDeferredList },
	},
	"filing_deferred_confirm": {
		def:     deferredConfirmToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDeferredConfirm },
	},
	"filing_deferred_discard": {
		def:     deferredDiscardToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDeferredDiscard },
	},
	"history_stats": {
		def:     historyStatsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleHistoryStats },
	},
}

// AllToolNames returns a list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// ValidateDisabledTypes returns a list of unknown type names from the given list.
func ValidateDisabledTypes(names []string) []string {
	known := make(map[string]bool, len(KnownTypes))
	for _, t := range KnownTypes {
		known[t] = true
	}

	unknown := make([]string, 0)
	for _, name := range names {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// GetTypeForTool extracts the type name from a tool name.
// Tool names follow the pattern "type_action" (e.g., "filing_file" → "filing").
func GetTypeForTool(toolName string) string {
	if idx := strings.Index(toolName, "_"); idx > 0 {
		return toolName[:idx]
	}
	return ""
}

// ExpandTypesToTools returns all tool names belonging to the given types.
func ExpandTypesToTools(types []string) []string {
	if len(types) == 0 {
		return nil
	}

	typeSet := make(map[string]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}

	tools := make([]string, 0)
	for name := range toolRegistry {
		if typeSet[GetTypeForTool(name)] {
			tools = append(tools, name)
		}
	}
	return tools
}

// NewServer creates a new MCP server with the filing tools registered.
// Tools listed in the service config's DisabledTools or belonging to its
// DisabledTypes are excluded from registration.
func NewServer(svc *ops.Service, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"casefile",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(svc)
	cfg := svc.Config()

	disabled := make(map[string]bool)
	for _, tool := range ExpandTypesToTools(cfg.DisabledTypes) {
		disabled[tool] = true
	}
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(svc *ops.Service, version string) error {
	return server.ServeStdio(NewServer(svc, version))
}
