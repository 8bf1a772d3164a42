package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wagnerlima/memory-cloud/traceability-mcp/internal/models"
)

// Fixture is a seed file for the local store:
//
//	projects:
//	  - id: 6f1c2b9e-...            # optional
//	    organization_id: b5d4ea64-...
//	    name: Flight Software
//	    requirements:
//	      - external_id: SYS-1
//	        name: System shall boot
//	      - external_id: SW-1
//	        name: Bootloader
//	        parent: SYS-1           # external_id or id of another requirement
type Fixture struct {
	Projects []FixtureProject `yaml:"projects"`
}

// FixtureProject is one project of a Fixture.
type FixtureProject struct {
	ID             string               `yaml:"id"`
	OrganizationID string               `yaml:"organization_id"`
	Name           string               `yaml:"name"`
	Description    string               `yaml:"description"`
	Requirements   []FixtureRequirement `yaml:"requirements"`
}

// FixtureRequirement is one requirement of a FixtureProject.
type FixtureRequirement struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	ExternalID string `yaml:"external_id"`
	Parent     string `yaml:"parent"`
}

// LoadFixture reads a YAML fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	var fx Fixture
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &fx, nil
}

// ImportStats counts what Import created. Rows that already existed are not
// counted.
type ImportStats struct {
	Projects     int
	Requirements int
	Links        int
}

func (st *ImportStats) add(o ImportStats) {
	st.Projects += o.Projects
	st.Requirements += o.Requirements
	st.Links += o.Links
}

// Import creates every project and requirement of the fixture, then links
// requirements to their parents. Parents are resolved within the same
// project by external id first, then by id.
//
// Each project is imported in its own transaction, and rows that already
// exist are reused, so importing the same fixture again is a no-op. A
// project without an id matches an existing one by organization and name; a
// requirement without an id matches by external id, else by name.
func (s *Store) Import(ctx context.Context, fx *Fixture) (ImportStats, error) {
	var stats ImportStats
	for _, fp := range fx.Projects {
		ps, err := s.importProject(ctx, fp)
		if err != nil {
			return stats, err
		}
		stats.add(ps)
	}
	return stats, nil
}

func (s *Store) importProject(ctx context.Context, fp FixtureProject) (ImportStats, error) {
	var stats ImportStats

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return stats, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	projectID, created, err := ensureProject(ctx, tx, fp)
	if err != nil {
		return stats, err
	}
	if created {
		stats.Projects++
	}

	byKey := make(map[string]string, 2*len(fp.Requirements))
	ids := make([]string, len(fp.Requirements))
	for i, fr := range fp.Requirements {
		id, created, err := ensureRequirement(ctx, tx, projectID, fr)
		if err != nil {
			return stats, fmt.Errorf("project %q: %w", fp.Name, err)
		}
		if created {
			stats.Requirements++
		}
		ids[i] = id
		byKey[id] = id
		if fr.ID != "" {
			byKey[fr.ID] = id
		}
		if fr.ExternalID != "" {
			byKey[fr.ExternalID] = id
		}
	}

	for i, fr := range fp.Requirements {
		if fr.Parent == "" {
			continue
		}
		parentID, ok := byKey[fr.Parent]
		if !ok {
			return stats, fmt.Errorf("project %q: parent %q of %q: %w", fp.Name, fr.Parent, fr.Name, ErrNotFound)
		}
		linked, err := linkRequirement(ctx, tx, parentID, ids[i])
		if err != nil {
			return stats, fmt.Errorf("project %q: %w", fp.Name, err)
		}
		if linked {
			stats.Links++
		}
	}

	if err := tx.Commit(); err != nil {
		return ImportStats{}, fmt.Errorf("commit project %q: %w", fp.Name, err)
	}
	return stats, nil
}

// ensureProject returns the id of the fixture project, creating it when no
// matching row exists.
func ensureProject(ctx context.Context, q querier, fp FixtureProject) (string, bool, error) {
	var (
		existing string
		err      error
	)
	if fp.ID != "" {
		err = q.QueryRowContext(ctx, `SELECT id FROM projects WHERE id = ?`, lookupID(fp.ID)).Scan(&existing)
	} else {
		err = q.QueryRowContext(ctx,
			`SELECT id FROM projects WHERE organization_id = ? AND name = ? ORDER BY id LIMIT 1`,
			lookupID(fp.OrganizationID), fp.Name,
		).Scan(&existing)
	}
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, sql.ErrNoRows):
		return "", false, fmt.Errorf("lookup project %q: %w", fp.Name, err)
	}

	p, err := createProject(ctx, q, models.Project{
		ID:             fp.ID,
		OrganizationID: fp.OrganizationID,
		Name:           fp.Name,
		Description:    fp.Description,
	})
	if err != nil {
		return "", false, err
	}
	return p.ID, true, nil
}

// ensureRequirement returns the id of the fixture requirement within
// projectID, creating it when no matching row exists.
func ensureRequirement(ctx context.Context, q querier, projectID string, fr FixtureRequirement) (string, bool, error) {
	var (
		existing string
		err      error
	)
	switch {
	case fr.ID != "":
		err = q.QueryRowContext(ctx,
			`SELECT id FROM requirements WHERE id = ? AND project_id = ?`, lookupID(fr.ID), projectID,
		).Scan(&existing)
	case fr.ExternalID != "":
		err = q.QueryRowContext(ctx,
			`SELECT id FROM requirements WHERE project_id = ? AND external_id = ? ORDER BY id LIMIT 1`,
			projectID, fr.ExternalID,
		).Scan(&existing)
	default:
		err = q.QueryRowContext(ctx,
			`SELECT id FROM requirements WHERE project_id = ? AND external_id = '' AND name = ? ORDER BY id LIMIT 1`,
			projectID, fr.Name,
		).Scan(&existing)
	}
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, sql.ErrNoRows):
		return "", false, fmt.Errorf("lookup requirement %q: %w", fr.Name, err)
	}

	r, err := createRequirement(ctx, q, models.Requirement{
		ID:         fr.ID,
		ProjectID:  projectID,
		Name:       fr.Name,
		ExternalID: fr.ExternalID,
	})
	if err != nil {
		return "", false, err
	}
	return r.ID, true, nil
}
