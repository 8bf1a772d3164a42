package traceability

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wagnerlima/memory-cloud/traceability-mcp/internal/models"
)

const (
	projectA = "6f1c2b9e-3d4a-4b5c-8d6e-7f8091a2b3c4"
	projectB = "0a1b2c3d-4e5f-4a6b-9c7d-8e9f0a1b2c3d"
	projectC = "11111111-2222-4333-8444-555555555555"
	orgID    = "b5d4ea64-ccf1-4cb6-9236-6e8b239d9097"
)

// stubSource serves canned rows and counts calls.
type stubSource struct {
	mu        sync.Mutex
	trees     map[string][]models.RequirementNode
	treeErrs  map[string]error
	projects  []models.Project
	listErr   error
	treeCalls int
	listCalls int
}

func (s *stubSource) RequirementTree(_ context.Context, projectID string) ([]models.RequirementNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.treeCalls++
	if err := s.treeErrs[projectID]; err != nil {
		return nil, err
	}
	return append([]models.RequirementNode(nil), s.trees[projectID]...), nil
}

func (s *stubSource) ListProjects(_ context.Context, _ string) ([]models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.projects, nil
}

func (s *stubSource) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.treeCalls + s.listCalls
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleTree() []models.RequirementNode {
	return []models.RequirementNode{
		node("r1", "REQ-1", "", 0, "REQ-1", true),
		node("c1", "REQ-1.1", "r1", 1, "REQ-1 > REQ-1.1", true),
		node("g1", "REQ-1.1.1", "c1", 2, "REQ-1 > REQ-1.1 > REQ-1.1.1", false),
		node("lonely", "REQ-9", "", 0, "REQ-9", false),
	}
}

func newStub() *stubSource {
	return &stubSource{
		trees: map[string][]models.RequirementNode{
			projectA: sampleTree(),
			projectB: {
				node("x", "X", "", 0, "X", true),
				node("y", "Y", "x", 1, "X > Y", false),
			},
			projectC: nil,
		},
		treeErrs: map[string]error{},
		projects: []models.Project{
			{ID: projectA, Name: "Alpha"},
			{ID: projectB, Name: "Beta"},
			{ID: projectC, Name: "Empty"},
		},
	}
}

func TestValidationGate(t *testing.T) {
	for _, input := range []string{"not-a-uuid", "", "12345", "6f1c2b9e-3d4a-4b5c-8d6e-7f8091a2b3cZ"} {
		t.Run(input, func(t *testing.T) {
			src := newStub()
			svc := NewService(src, WithLogger(quietLogger()))

			tree := svc.GetTree(context.Background(), input, true)
			assert.False(t, tree.Success)
			assert.Equal(t, CodeInvalidIdentifier, tree.ErrorCode)
			assert.Equal(t, "Invalid UUID format", tree.Error)

			all := svc.GetAllTrees(context.Background(), input, true)
			assert.False(t, all.Success)
			assert.Equal(t, CodeInvalidIdentifier, all.ErrorCode)

			list := svc.ListProjects(context.Background(), input)
			assert.False(t, list.Success)
			assert.Equal(t, CodeInvalidIdentifier, list.ErrorCode)

			assert.Zero(t, src.calls(), "no remote call may happen for an invalid id")
		})
	}
}

func TestGetTree(t *testing.T) {
	svc := NewService(newStub(), WithLogger(quietLogger()))

	res := svc.GetTree(context.Background(), projectA, true)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, []string{"r1", "c1", "g1"}, ids(res.Tree))
	assert.Equal(t, []string{
		"ROOT: REQ-1",
		"  +-- REQ-1.1",
		"    +-- REQ-1.1.1",
	}, res.HierarchyView)

	require.NotNil(t, res.Metadata)
	assert.Equal(t, 3, res.Metadata.TotalNodes)
	assert.Equal(t, 4, res.Metadata.AllNodesIncludingOrphans)
	assert.Equal(t, 1, res.Metadata.RootNodes)
	assert.Equal(t, 2, res.Metadata.MaxDepth)
	assert.Equal(t, 1, res.Metadata.OrphanNodes)
	assert.GreaterOrEqual(t, res.Metadata.QueryTimeMS, int64(0))
}

func TestGetTreeWithoutMetadata(t *testing.T) {
	svc := NewService(newStub(), WithLogger(quietLogger()))
	res := svc.GetTree(context.Background(), projectA, false)
	require.True(t, res.Success)
	assert.Nil(t, res.Metadata)
}

func TestGetTreeAcceptsNonCanonicalUUID(t *testing.T) {
	src := newStub()
	svc := NewService(src, WithLogger(quietLogger()))
	res := svc.GetTree(context.Background(), "{6F1C2B9E-3D4A-4B5C-8D6E-7F8091A2B3C4}", true)
	require.True(t, res.Success)
	assert.Len(t, res.Tree, 3, "id must be normalized before reaching the source")
}

func TestGetTreeIdempotent(t *testing.T) {
	svc := NewService(newStub(), WithLogger(quietLogger()))

	first := svc.GetTree(context.Background(), projectA, true)
	second := svc.GetTree(context.Background(), projectA, true)
	require.True(t, first.Success)
	require.True(t, second.Success)

	assert.Equal(t, first.HierarchyView, second.HierarchyView)
	assert.Equal(t, first.Tree, second.Tree)

	m1, m2 := *first.Metadata, *second.Metadata
	m1.QueryTimeMS, m2.QueryTimeMS = 0, 0
	assert.Equal(t, m1, m2)
}

func TestGetTreeEmptyProject(t *testing.T) {
	svc := NewService(newStub(), WithLogger(quietLogger()))
	res := svc.GetTree(context.Background(), projectC, true)
	require.True(t, res.Success)
	assert.NotNil(t, res.Tree)
	assert.Empty(t, res.Tree)
	assert.NotNil(t, res.HierarchyView)
	assert.Empty(t, res.HierarchyView)
	require.NotNil(t, res.Metadata)
	assert.Zero(t, res.Metadata.RootNodes)
	assert.Zero(t, res.Metadata.MaxDepth)
	assert.Zero(t, res.Metadata.OrphanNodes)

	data, err := json.Marshal(res)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"tree":[]`)
	assert.Contains(t, string(data), `"hierarchy_view":[]`)
}

func TestGetTreeRemoteFailure(t *testing.T) {
	src := newStub()
	src.treeErrs[projectA] = errors.New("connection refused")
	svc := NewService(src, WithLogger(quietLogger()))

	res := svc.GetTree(context.Background(), projectA, true)
	assert.False(t, res.Success)
	assert.Equal(t, CodeDatabaseError, res.ErrorCode)
	assert.Contains(t, res.Error, "connection refused")

	data, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":false,"error":"connection refused","error_code":"DATABASE_ERROR"}`, string(data))
}

func TestGetAllTrees(t *testing.T) {
	for _, concurrency := range []int{1, 3} {
		svc := NewService(newStub(), WithLogger(quietLogger()), WithConcurrency(concurrency))

		res := svc.GetAllTrees(context.Background(), orgID, true)
		require.True(t, res.Success, res.Error)
		assert.Equal(t, orgID, res.OrganizationID)

		require.Len(t, res.Projects, 3)
		assert.Equal(t, "Alpha", res.Projects[0].ProjectName)
		assert.Equal(t, "Beta", res.Projects[1].ProjectName)
		assert.Equal(t, "Empty", res.Projects[2].ProjectName)
		assert.Equal(t, []string{"ROOT: X", "  +-- Y"}, res.Projects[1].HierarchyView)

		require.NotNil(t, res.Summary)
		assert.Equal(t, len(res.Projects), res.Summary.TotalProjects)

		totalNodes, totalRel := 0, 0
		for _, p := range res.Projects {
			require.NotNil(t, p.Metadata)
			totalNodes += p.Metadata.TotalNodes
			totalRel += p.Metadata.Relationships
		}
		assert.Equal(t, totalNodes, res.Summary.TotalRequirements)
		assert.Equal(t, 5, res.Summary.TotalRequirements)
		assert.Equal(t, totalRel, res.Summary.TotalRelationships)
		assert.Equal(t, 3, res.Summary.TotalRelationships)
		assert.Zero(t, res.Summary.FailedProjects)
	}
}

func TestGetAllTreesWithoutMetadata(t *testing.T) {
	svc := NewService(newStub(), WithLogger(quietLogger()))
	res := svc.GetAllTrees(context.Background(), orgID, false)
	require.True(t, res.Success)
	assert.Nil(t, res.Summary)
	for _, p := range res.Projects {
		assert.Nil(t, p.Metadata)
	}
}

func TestGetAllTreesListFailure(t *testing.T) {
	src := newStub()
	src.listErr = errors.New("permission denied for table projects")
	svc := NewService(src, WithLogger(quietLogger()))

	res := svc.GetAllTrees(context.Background(), orgID, true)
	assert.False(t, res.Success)
	assert.Equal(t, CodeDatabaseError, res.ErrorCode)
	assert.Contains(t, res.Error, "permission denied")
	assert.Equal(t, 0, src.treeCalls)
}

func TestGetAllTreesIsolatesProjectFailure(t *testing.T) {
	src := newStub()
	src.treeErrs[projectB] = errors.New("statement timeout")
	svc := NewService(src, WithLogger(quietLogger()))

	res := svc.GetAllTrees(context.Background(), orgID, true)
	require.True(t, res.Success)
	require.Len(t, res.Projects, 3)

	failed := res.Projects[1]
	assert.Equal(t, projectB, failed.ProjectID)
	assert.Equal(t, CodeDatabaseError, failed.ErrorCode)
	assert.Contains(t, failed.Error, "statement timeout")
	assert.Empty(t, failed.Tree)
	assert.Nil(t, failed.Metadata)

	assert.True(t, res.Projects[0].ErrorCode == "")
	assert.Len(t, res.Projects[0].Tree, 3)

	assert.Equal(t, 3, res.Summary.TotalProjects)
	assert.Equal(t, 1, res.Summary.FailedProjects)
	assert.Equal(t, 3, res.Summary.TotalRequirements)
}

func TestGetAllTreesFailFast(t *testing.T) {
	src := newStub()
	src.treeErrs[projectB] = errors.New("statement timeout")
	svc := NewService(src, WithLogger(quietLogger()), WithFailFast(true), WithConcurrency(1))

	res := svc.GetAllTrees(context.Background(), orgID, true)
	assert.False(t, res.Success)
	assert.Equal(t, CodeDatabaseError, res.ErrorCode)
	assert.Contains(t, res.Error, "statement timeout")

	src.mu.Lock()
	defer src.mu.Unlock()
	assert.Equal(t, 2, src.treeCalls, "projects after the failing one are not fetched")
}

func TestListProjects(t *testing.T) {
	svc := NewService(newStub(), WithLogger(quietLogger()))
	res := svc.ListProjects(context.Background(), orgID)
	require.True(t, res.Success)
	assert.Len(t, res.Projects, 3)

	empty := NewService(&stubSource{}, WithLogger(quietLogger()))
	res = empty.ListProjects(context.Background(), orgID)
	require.True(t, res.Success)
	assert.NotNil(t, res.Projects)
}
