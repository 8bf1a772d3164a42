package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/wagnerlima/memory-cloud/traceability-mcp/internal/models"
)

// CreateRequirement inserts a requirement into an existing project. An empty
// id is replaced by a new UUID.
func (s *Store) CreateRequirement(ctx context.Context, r models.Requirement) (*models.Requirement, error) {
	return createRequirement(ctx, s.db, r)
}

func createRequirement(ctx context.Context, q querier, r models.Requirement) (*models.Requirement, error) {
	if r.Name == "" {
		return nil, fmt.Errorf("requirement name is required")
	}
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	id, err := canonicalID(r.ID)
	if err != nil {
		return nil, fmt.Errorf("requirement %q: invalid id %q", r.Name, r.ID)
	}
	r.ID = id
	project, err := getProject(ctx, q, r.ProjectID)
	if err != nil {
		return nil, err
	}
	r.ProjectID = project.ID

	_, err = q.ExecContext(ctx,
		`INSERT INTO requirements (id, project_id, name, external_id) VALUES (?, ?, ?, ?)`,
		r.ID, r.ProjectID, r.Name, r.ExternalID,
	)
	if err != nil {
		return nil, fmt.Errorf("insert requirement %q: %w", r.Name, err)
	}
	return &r, nil
}

// LinkRequirement makes parentID the direct parent of childID and extends the
// closure table accordingly. Both requirements must belong to the same
// project, the link may not create a cycle, and a requirement has at most
// one parent. Linking an existing pair again is a no-op.
func (s *Store) LinkRequirement(ctx context.Context, parentID, childID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := linkRequirement(ctx, tx, parentID, childID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// linkRequirement reports whether a new link was written.
func linkRequirement(ctx context.Context, q querier, parentID, childID string) (bool, error) {
	parentID, childID = lookupID(parentID), lookupID(childID)
	if parentID == childID {
		return false, fmt.Errorf("link %s to itself: %w", childID, ErrCycle)
	}

	parentProject, err := requirementProject(ctx, q, parentID)
	if err != nil {
		return false, err
	}
	childProject, err := requirementProject(ctx, q, childID)
	if err != nil {
		return false, err
	}
	if parentProject != childProject {
		return false, fmt.Errorf("requirements %s and %s belong to different projects", parentID, childID)
	}

	var existing string
	err = q.QueryRowContext(ctx,
		`SELECT ancestor_id FROM requirements_closure WHERE descendant_id = ? AND depth = 1`, childID,
	).Scan(&existing)
	switch {
	case err == nil && existing == parentID:
		return false, nil
	case err == nil:
		return false, fmt.Errorf("requirement %s already has parent %s", childID, existing)
	case err != sql.ErrNoRows:
		return false, fmt.Errorf("lookup parent: %w", err)
	}

	var one int
	err = q.QueryRowContext(ctx,
		`SELECT 1 FROM requirements_closure WHERE ancestor_id = ? AND descendant_id = ?`, childID, parentID,
	).Scan(&one)
	if err == nil {
		return false, fmt.Errorf("link %s -> %s: %w", parentID, childID, ErrCycle)
	}
	if err != sql.ErrNoRows {
		return false, fmt.Errorf("check cycle: %w", err)
	}

	// Every ancestor of the parent (and the parent itself) becomes an
	// ancestor of every descendant of the child (and the child itself).
	_, err = q.ExecContext(ctx, `
INSERT INTO requirements_closure (ancestor_id, descendant_id, depth)
SELECT a.ancestor_id, d.descendant_id, a.depth + d.depth + 1
FROM (SELECT ancestor_id, depth FROM requirements_closure WHERE descendant_id = ?1
      UNION ALL SELECT ?1, 0) AS a,
     (SELECT descendant_id, depth FROM requirements_closure WHERE ancestor_id = ?2
      UNION ALL SELECT ?2, 0) AS d`,
		parentID, childID,
	)
	if err != nil {
		return false, fmt.Errorf("insert closure rows: %w", err)
	}
	return true, nil
}

func requirementProject(ctx context.Context, q querier, id string) (string, error) {
	var projectID string
	err := q.QueryRowContext(ctx, `SELECT project_id FROM requirements WHERE id = ?`, id).Scan(&projectID)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("requirement %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("lookup requirement %s: %w", id, err)
	}
	return projectID, nil
}

// RequirementTree returns the hierarchy rows of a project in the shape of
// get_requirement_tree.
func (s *Store) RequirementTree(ctx context.Context, projectID string) ([]models.RequirementNode, error) {
	rows, err := s.db.QueryContext(ctx, requirementTreeQuery, lookupID(projectID))
	if err != nil {
		return nil, fmt.Errorf("get_requirement_tree: %w", err)
	}
	defer rows.Close()

	var nodes []models.RequirementNode
	for rows.Next() {
		var (
			n      models.RequirementNode
			parent sql.NullString
		)
		if err := rows.Scan(&n.RequirementID, &n.Title, &parent, &n.Depth, &n.Path, &n.HasChildren); err != nil {
			return nil, fmt.Errorf("scan tree row: %w", err)
		}
		n.ParentID = parent.String
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}
