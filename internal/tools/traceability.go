package tools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wagnerlima/memory-cloud/traceability-mcp/internal/traceability"
)

// TraceabilityTools holds the service behind the requirement tree tools.
type TraceabilityTools struct {
	Service *traceability.Service
}

// --- Input types ---

type GetTreeInput struct {
	ProjectID       string `json:"project_id" jsonschema:"UUID of the project whose requirement hierarchy to fetch"`
	IncludeMetadata *bool  `json:"include_metadata,omitempty" jsonschema:"Include node counts, depth and timing (default true)"`
}

type GetAllTreesInput struct {
	OrganizationID  string `json:"organization_id" jsonschema:"UUID of the organization whose projects to walk"`
	IncludeMetadata *bool  `json:"include_metadata,omitempty" jsonschema:"Include per-project metadata and an organization summary (default true)"`
}

type ListProjectsInput struct {
	OrganizationID string `json:"organization_id" jsonschema:"UUID of the organization"`
}

// --- Handlers ---

func (t *TraceabilityTools) GetTree(ctx context.Context, _ *mcp.CallToolRequest, input GetTreeInput) (*mcp.CallToolResult, any, error) {
	res := t.Service.GetTree(ctx, input.ProjectID, withDefault(input.IncludeMetadata, true))
	return toolResult(res, res.Success)
}

func (t *TraceabilityTools) GetAllTrees(ctx context.Context, _ *mcp.CallToolRequest, input GetAllTreesInput) (*mcp.CallToolResult, any, error) {
	res := t.Service.GetAllTrees(ctx, input.OrganizationID, withDefault(input.IncludeMetadata, true))
	return toolResult(res, res.Success)
}

func (t *TraceabilityTools) ListProjects(ctx context.Context, _ *mcp.CallToolRequest, input ListProjectsInput) (*mcp.CallToolResult, any, error) {
	res := t.Service.ListProjects(ctx, input.OrganizationID)
	return toolResult(res, res.Success)
}

func withDefault(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
