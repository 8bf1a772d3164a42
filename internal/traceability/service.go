// Package traceability builds requirement hierarchy views from the flat rows
// returned by a Source.
//
// The public operations never return Go errors. Every outcome, including an
// invalid identifier or a failing data source, is a result value whose
// Success field must be checked.
package traceability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"disorder.dev/shandler"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/wagnerlima/memory-cloud/traceability-mcp/internal/models"
)

// DefaultConcurrency bounds the per-project fetches of GetAllTrees.
const DefaultConcurrency = 4

// Source is the remote side: the hierarchy procedure and the project listing.
type Source interface {
	RequirementTree(ctx context.Context, projectID string) ([]models.RequirementNode, error)
	ListProjects(ctx context.Context, organizationID string) ([]models.Project, error)
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. Trace-level records carry raw row samples and
// hierarchy previews.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithConcurrency sets how many project trees GetAllTrees fetches at once.
// 1 fetches strictly in sequence.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithFailFast makes GetAllTrees abort on the first project that fails
// instead of recording the failure on that project's entry.
func WithFailFast(failFast bool) Option {
	return func(s *Service) {
		s.failFast = failFast
	}
}

// Service runs the tree operations against a Source.
type Service struct {
	source      Source
	logger      *slog.Logger
	concurrency int
	failFast    bool
}

// NewService creates a Service reading from source.
func NewService(source Source, opts ...Option) *Service {
	s := &Service{
		source:      source,
		logger:      slog.Default(),
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetTree fetches and renders the requirement hierarchy of one project.
func (s *Service) GetTree(ctx context.Context, projectID string, includeMetadata bool) *TreeResult {
	id, ok := parseID(projectID)
	if !ok {
		s.logger.DebugContext(ctx, "rejected project id", "project_id", projectID)
		return &TreeResult{Error: invalidUUIDMessage, ErrorCode: CodeInvalidIdentifier}
	}
	log := s.logger.With("project_id", id)

	start := time.Now()
	raw, err := s.source.RequirementTree(ctx, id)
	if err != nil {
		log.ErrorContext(ctx, "fetch requirement tree", "error", err)
		return &TreeResult{Error: errorMessage(err), ErrorCode: CodeDatabaseError}
	}

	h := s.build(ctx, log, raw)
	res := &TreeResult{Success: true, Tree: h.tree, HierarchyView: h.view}
	if includeMetadata {
		m := Summarize(h.all, h.tree)
		m.QueryTimeMS = time.Since(start).Milliseconds()
		res.Metadata = &m
	}
	log.DebugContext(ctx, "requirement tree built", "nodes", len(raw), "kept", len(h.tree))
	return res
}

// GetAllTrees fetches and renders the hierarchy of every project of an
// organization. Projects keep the order of the project listing.
func (s *Service) GetAllTrees(ctx context.Context, organizationID string, includeMetadata bool) *OrganizationResult {
	id, ok := parseID(organizationID)
	if !ok {
		s.logger.DebugContext(ctx, "rejected organization id", "organization_id", organizationID)
		return &OrganizationResult{Error: invalidUUIDMessage, ErrorCode: CodeInvalidIdentifier}
	}
	log := s.logger.With("organization_id", id)

	start := time.Now()
	projects, err := s.source.ListProjects(ctx, id)
	if err != nil {
		log.ErrorContext(ctx, "list projects", "error", err)
		return &OrganizationResult{Error: errorMessage(err), ErrorCode: CodeDatabaseError}
	}
	log.DebugContext(ctx, "projects listed", "count", len(projects))

	entries, err := s.projectTrees(ctx, log, projects, includeMetadata)
	if err != nil {
		log.ErrorContext(ctx, "fetch project trees", "error", err)
		return &OrganizationResult{Error: errorMessage(err), ErrorCode: CodeDatabaseError}
	}

	sum := Summary{TotalProjects: len(entries)}
	for _, e := range entries {
		if e.ErrorCode != "" {
			sum.FailedProjects++
			continue
		}
		sum.TotalRequirements += len(e.Tree)
		sum.TotalRelationships += relationships(e.Tree)
	}

	res := &OrganizationResult{Success: true, OrganizationID: id, Projects: entries}
	if includeMetadata {
		sum.QueryTimeMS = time.Since(start).Milliseconds()
		res.Summary = &sum
	}
	log.DebugContext(ctx, "organization trees built",
		"projects", sum.TotalProjects,
		"requirements", sum.TotalRequirements,
		"failed", sum.FailedProjects,
	)
	return res
}

// ListProjects lists the projects of an organization.
func (s *Service) ListProjects(ctx context.Context, organizationID string) *ProjectsResult {
	id, ok := parseID(organizationID)
	if !ok {
		return &ProjectsResult{Error: invalidUUIDMessage, ErrorCode: CodeInvalidIdentifier}
	}
	projects, err := s.source.ListProjects(ctx, id)
	if err != nil {
		s.logger.ErrorContext(ctx, "list projects", "organization_id", id, "error", err)
		return &ProjectsResult{Error: errorMessage(err), ErrorCode: CodeDatabaseError}
	}
	if projects == nil {
		projects = []models.Project{}
	}
	return &ProjectsResult{Success: true, OrganizationID: id, Projects: projects}
}

// projectTrees fetches every project's tree with bounded concurrency. Unless
// failFast is set, a failing project yields an entry carrying its error.
func (s *Service) projectTrees(ctx context.Context, log *slog.Logger, projects []models.Project, includeMetadata bool) ([]ProjectTree, error) {
	entries := make([]ProjectTree, len(projects))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, p := range projects {
		g.Go(func() error {
			// A fail-fast abort cancels gctx; later projects are not fetched.
			if err := gctx.Err(); err != nil {
				return err
			}
			plog := log.With("project_id", p.ID, "project_name", p.Name)
			plog.Log(gctx, shandler.LevelTrace, "processing project", "index", i+1, "of", len(projects))

			entry, err := s.projectTree(gctx, plog, p, includeMetadata)
			if err != nil {
				if s.failFast {
					return fmt.Errorf("project %s: %w", p.ID, err)
				}
				plog.WarnContext(gctx, "project tree failed", "error", err)
				entry = ProjectTree{
					ProjectID:     p.ID,
					ProjectName:   p.Name,
					Tree:          []models.RequirementNode{},
					HierarchyView: []string{},
					Error:         errorMessage(err),
					ErrorCode:     CodeDatabaseError,
				}
			}
			entries[i] = entry
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Service) projectTree(ctx context.Context, log *slog.Logger, p models.Project, includeMetadata bool) (ProjectTree, error) {
	start := time.Now()
	raw, err := s.source.RequirementTree(ctx, p.ID)
	if err != nil {
		return ProjectTree{}, err
	}

	h := s.build(ctx, log, raw)
	entry := ProjectTree{
		ProjectID:     p.ID,
		ProjectName:   p.Name,
		Tree:          h.tree,
		HierarchyView: h.view,
	}
	if includeMetadata {
		m := Summarize(h.all, h.tree)
		m.QueryTimeMS = time.Since(start).Milliseconds()
		entry.Metadata = &m
	}
	return entry, nil
}

type hierarchy struct {
	all  []models.RequirementNode
	tree []models.RequirementNode
	view []string
}

const (
	traceSampleRows   = 3
	tracePreviewLines = 10
)

func (s *Service) build(ctx context.Context, log *slog.Logger, raw []models.RequirementNode) hierarchy {
	trace := log.Enabled(ctx, shandler.LevelTrace)
	if trace && len(raw) > 0 {
		log.Log(ctx, shandler.LevelTrace, "raw requirement rows", "sample", raw[:min(traceSampleRows, len(raw))])
	}

	tree := Order(Filter(raw))
	h := hierarchy{all: raw, tree: tree, view: Render(tree)}

	if trace && len(h.view) > 0 {
		log.Log(ctx, shandler.LevelTrace, "hierarchy preview",
			"lines", h.view[:min(tracePreviewLines, len(h.view))],
			"excluded_orphans", len(raw)-len(tree),
		)
	}
	return h
}

// parseID validates a UUID and returns its canonical form.
func parseID(raw string) (string, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", false
	}
	return id.String(), true
}

func errorMessage(err error) string {
	if msg := err.Error(); msg != "" {
		return msg
	}
	return "database error"
}
