package tools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wagnerlima/memory-cloud/traceability-mcp/internal/toolbox"
)

// Toolbox is the part of the toolbox client the tools use.
type Toolbox interface {
	ListTools(ctx context.Context, toolset string) ([]toolbox.Tool, error)
	Invoke(ctx context.Context, name string, params map[string]any, bound map[string]string) (any, error)
}

// ToolboxTools forwards calls to a remote MCP Toolbox server.
type ToolboxTools struct {
	Client Toolbox
}

type ListToolboxToolsInput struct {
	Toolset string `json:"toolset,omitempty" jsonschema:"Toolset to list; empty for the configured default"`
}

type InvokeToolboxInput struct {
	Tool        string            `json:"tool" jsonschema:"Name of the toolbox tool to call"`
	Params      map[string]any    `json:"params,omitempty" jsonschema:"Arguments passed to the tool"`
	BoundParams map[string]string `json:"bound_params,omitempty" jsonschema:"Parameters fixed on the tool before the call"`
}

type toolList struct {
	Toolset string         `json:"toolset"`
	Tools   []toolbox.Tool `json:"tools"`
}

type invokeResult struct {
	Tool   string `json:"tool"`
	Result any    `json:"result"`
}

func (t *ToolboxTools) ListTools(ctx context.Context, _ *mcp.CallToolRequest, input ListToolboxToolsInput) (*mcp.CallToolResult, any, error) {
	tools, err := t.Client.ListTools(ctx, input.Toolset)
	if err != nil {
		return toolError("Failed to list toolbox tools: %v", err), nil, nil
	}
	if tools == nil {
		tools = []toolbox.Tool{}
	}
	toolset := input.Toolset
	if toolset == "" {
		toolset = "default"
	}
	return toolJSON(toolList{Toolset: toolset, Tools: tools})
}

func (t *ToolboxTools) Invoke(ctx context.Context, _ *mcp.CallToolRequest, input InvokeToolboxInput) (*mcp.CallToolResult, any, error) {
	if input.Tool == "" {
		return toolError("Tool name is required"), nil, nil
	}
	result, err := t.Client.Invoke(ctx, input.Tool, input.Params, input.BoundParams)
	if err != nil {
		return toolError("Failed to invoke %s: %v", input.Tool, err), nil, nil
	}
	return toolJSON(invokeResult{Tool: input.Tool, Result: result})
}
