package server

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wagnerlima/memory-cloud/traceability-mcp/internal/tools"
	"github.com/wagnerlima/memory-cloud/traceability-mcp/internal/traceability"
)

const (
	Name    = "traceability-mcp"
	Version = "0.1.0"
)

// New creates a fully configured MCP server with all tools registered. The
// toolbox tools are only registered when tb is not nil.
func New(svc *traceability.Service, tb tools.Toolbox) *mcp.Server {
	tt := &tools.TraceabilityTools{Service: svc}

	srv := mcp.NewServer(&mcp.Implementation{
		Name:    Name,
		Version: Version,
	}, nil)

	// Requirement traceability tools
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "traceability_get_tree",
		Description: "Get the requirement hierarchy of a project as an ordered node list and an indented text view",
	}, tt.GetTree)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "traceability_get_all_trees",
		Description: "Get the requirement hierarchies of every project in an organization with an aggregate summary",
	}, tt.GetAllTrees)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "traceability_list_projects",
		Description: "List the projects of an organization ordered by name",
	}, tt.ListProjects)

	if tb == nil {
		return srv
	}

	// MCP Toolbox passthrough
	bt := &tools.ToolboxTools{Client: tb}

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "toolbox_list_tools",
		Description: "List the tools of a toolset on the connected MCP Toolbox server",
	}, bt.ListTools)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "toolbox_invoke",
		Description: "Invoke a tool on the connected MCP Toolbox server",
	}, bt.Invoke)

	return srv
}
