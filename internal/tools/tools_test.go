package tools

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wagnerlima/memory-cloud/traceability-mcp/internal/models"
	"github.com/wagnerlima/memory-cloud/traceability-mcp/internal/toolbox"
	"github.com/wagnerlima/memory-cloud/traceability-mcp/internal/traceability"
)

const (
	projectID = "6f1c2b9e-3d4a-4b5c-8d6e-7f8091a2b3c4"
	orgID     = "b5d4ea64-ccf1-4cb6-9236-6e8b239d9097"
)

type memSource struct{}

func (memSource) RequirementTree(_ context.Context, id string) ([]models.RequirementNode, error) {
	if id != projectID {
		return nil, errors.New("no such project")
	}
	return []models.RequirementNode{
		{RequirementID: "r1", Title: "SYS-1", Depth: 0, Path: "SYS-1", HasChildren: true},
		{RequirementID: "c1", Title: "SW-1", ParentID: "r1", Depth: 1, Path: "SYS-1 > SW-1"},
	}, nil
}

func (memSource) ListProjects(context.Context, string) ([]models.Project, error) {
	return []models.Project{{ID: projectID, Name: "Flight Software"}}, nil
}

func newTraceabilityTools() *TraceabilityTools {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &TraceabilityTools{Service: traceability.NewService(memSource{}, traceability.WithLogger(logger))}
}

func textOf(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, res.Content, 1)
	tc, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func decode(t *testing.T, res *mcp.CallToolResult) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(textOf(t, res)), &out))
	return out
}

func TestGetTreeDefaultsToMetadata(t *testing.T) {
	tt := newTraceabilityTools()

	res, _, err := tt.GetTree(context.Background(), nil, GetTreeInput{ProjectID: projectID})
	require.NoError(t, err)
	assert.False(t, res.IsError)

	out := decode(t, res)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, []any{"ROOT: SYS-1", "  +-- SW-1"}, out["hierarchy_view"])
	assert.Contains(t, out, "metadata")

	off := false
	res, _, err = tt.GetTree(context.Background(), nil, GetTreeInput{ProjectID: projectID, IncludeMetadata: &off})
	require.NoError(t, err)
	assert.NotContains(t, decode(t, res), "metadata")
}

func TestGetTreeInvalidID(t *testing.T) {
	tt := newTraceabilityTools()
	res, _, err := tt.GetTree(context.Background(), nil, GetTreeInput{ProjectID: "abc"})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.JSONEq(t, `{"success":false,"error":"Invalid UUID format","error_code":"INVALID_UUID"}`, textOf(t, res))
}

func TestGetAllTreesHandler(t *testing.T) {
	tt := newTraceabilityTools()
	res, _, err := tt.GetAllTrees(context.Background(), nil, GetAllTreesInput{OrganizationID: orgID})
	require.NoError(t, err)
	assert.False(t, res.IsError)

	out := decode(t, res)
	assert.Equal(t, orgID, out["organization_id"])
	projects := out["projects"].([]any)
	require.Len(t, projects, 1)
	assert.Equal(t, "Flight Software", projects[0].(map[string]any)["project_name"])
	summary := out["summary"].(map[string]any)
	assert.EqualValues(t, 2, summary["total_requirements"])
	assert.EqualValues(t, 1, summary["total_relationships"])
}

func TestListProjectsHandler(t *testing.T) {
	tt := newTraceabilityTools()
	res, _, err := tt.ListProjects(context.Background(), nil, ListProjectsInput{OrganizationID: orgID})
	require.NoError(t, err)
	out := decode(t, res)
	assert.Len(t, out["projects"], 1)

	res, _, err = tt.ListProjects(context.Background(), nil, ListProjectsInput{OrganizationID: "x"})
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

type fakeToolbox struct {
	tools      []toolbox.Tool
	err        error
	lastName   string
	lastParams map[string]any
	lastBound  map[string]string
}

func (f *fakeToolbox) ListTools(context.Context, string) ([]toolbox.Tool, error) {
	return f.tools, f.err
}

func (f *fakeToolbox) Invoke(_ context.Context, name string, params map[string]any, bound map[string]string) (any, error) {
	f.lastName, f.lastParams, f.lastBound = name, params, bound
	if f.err != nil {
		return nil, f.err
	}
	return "3 rows", nil
}

func TestToolboxListTools(t *testing.T) {
	fake := &fakeToolbox{tools: []toolbox.Tool{{Name: "search-hotels", Description: "Find hotels"}}}
	tt := &ToolboxTools{Client: fake}

	res, _, err := tt.ListTools(context.Background(), nil, ListToolboxToolsInput{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"toolset":"default","tools":[{"name":"search-hotels","description":"Find hotels"}]}`, textOf(t, res))

	fake.tools = nil
	res, _, err = tt.ListTools(context.Background(), nil, ListToolboxToolsInput{Toolset: "ops"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"toolset":"ops","tools":[]}`, textOf(t, res))

	fake.err = errors.New("connection refused")
	res, _, err = tt.ListTools(context.Background(), nil, ListToolboxToolsInput{})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, textOf(t, res), "connection refused")
}

func TestToolboxInvoke(t *testing.T) {
	fake := &fakeToolbox{}
	tt := &ToolboxTools{Client: fake}

	res, _, err := tt.Invoke(context.Background(), nil, InvokeToolboxInput{})
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, _, err = tt.Invoke(context.Background(), nil, InvokeToolboxInput{
		Tool:        "search-hotels",
		Params:      map[string]any{"city": "Lisbon"},
		BoundParams: map[string]string{"tenant": "acme"},
	})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.JSONEq(t, `{"tool":"search-hotels","result":"3 rows"}`, textOf(t, res))
	assert.Equal(t, "search-hotels", fake.lastName)
	assert.Equal(t, "Lisbon", fake.lastParams["city"])
	assert.Equal(t, "acme", fake.lastBound["tenant"])

	fake.err = errors.New("unauthorized")
	res, _, err = tt.Invoke(context.Background(), nil, InvokeToolboxInput{Tool: "search-hotels"})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, textOf(t, res), "unauthorized")
}
