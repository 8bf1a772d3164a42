package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wagnerlima/memory-cloud/traceability-mcp/internal/models"
)

// pgQuerier is the part of a pgx pool or connection PGSource needs.
type pgQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PGSource reads requirement trees straight from the hosted Postgres
// database through the get_requirement_tree function.
type PGSource struct {
	db   pgQuerier
	pool *pgxpool.Pool
}

// NewPGSource connects a pool to dsn and checks it with a ping.
func NewPGSource(ctx context.Context, dsn string) (*PGSource, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PGSource{db: pool, pool: pool}, nil
}

// Close releases the pool.
func (s *PGSource) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// RequirementTree calls get_requirement_tree(p_project_id).
func (s *PGSource) RequirementTree(ctx context.Context, projectID string) ([]models.RequirementNode, error) {
	rows, err := s.db.Query(ctx, `
SELECT requirement_id::text, title, parent_id::text, depth, path, has_children
FROM get_requirement_tree($1::uuid)`, projectID)
	if err != nil {
		return nil, fmt.Errorf("get_requirement_tree: %w", err)
	}
	defer rows.Close()

	var nodes []models.RequirementNode
	for rows.Next() {
		var (
			n             models.RequirementNode
			title, parent *string
			path          *string
			hasChildren   *bool
		)
		if err := rows.Scan(&n.RequirementID, &title, &parent, &n.Depth, &path, &hasChildren); err != nil {
			return nil, fmt.Errorf("scan requirement row: %w", err)
		}
		if title != nil {
			n.Title = *title
		}
		if parent != nil {
			n.ParentID = *parent
		}
		if path != nil {
			n.Path = *path
		}
		n.HasChildren = hasChildren != nil && *hasChildren
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get_requirement_tree: %w", err)
	}
	return nodes, nil
}

// ListProjects lists the projects of an organization ordered by name.
func (s *PGSource) ListProjects(ctx context.Context, organizationID string) ([]models.Project, error) {
	rows, err := s.db.Query(ctx, `
SELECT id::text, name, COALESCE(description, '')
FROM projects
WHERE organization_id = $1::uuid
ORDER BY name ASC`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []models.Project
	for rows.Next() {
		var p models.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Description); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}
