package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/wagnerlima/memory-cloud/traceability-mcp/internal/models"
)

// DBFile is the name of the local database inside the data directory.
const DBFile = "traceability.db"

var (
	// ErrNotFound is returned when a project or requirement does not exist.
	ErrNotFound = errors.New("not found")
	// ErrCycle is returned when a link would make a requirement its own ancestor.
	ErrCycle = errors.New("link would create a cycle")
)

// Store is the local SQLite data source. It holds projects, requirements and
// their closure table, and answers the same queries as the hosted database.
type Store struct {
	db      *sql.DB
	dataDir string
}

// Open opens (or creates) the local database under dataDir and runs
// migrations.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, DBFile)
	db, err := sql.Open("sqlite3", "file:"+dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate db: %w", err)
	}

	return &Store{db: db, dataDir: dataDir}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DataDir returns the base data directory.
func (s *Store) DataDir() string {
	return s.dataDir
}

// querier is the subset of *sql.DB and *sql.Tx the store runs statements on.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// canonicalID returns id in lower-case hyphenated UUID form.
func canonicalID(id string) (string, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// lookupID canonicalizes id for a WHERE clause. Ids that are not UUIDs
// cannot match a stored row and are passed through unchanged.
func lookupID(id string) string {
	if c, err := canonicalID(id); err == nil {
		return c
	}
	return id
}

// CreateProject inserts a project. An empty id is replaced by a new UUID;
// ids are stored in canonical UUID form.
func (s *Store) CreateProject(ctx context.Context, p models.Project) (*models.Project, error) {
	return createProject(ctx, s.db, p)
}

func createProject(ctx context.Context, q querier, p models.Project) (*models.Project, error) {
	if p.Name == "" {
		return nil, fmt.Errorf("project name is required")
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	id, err := canonicalID(p.ID)
	if err != nil {
		return nil, fmt.Errorf("project %q: invalid id %q", p.Name, p.ID)
	}
	org, err := canonicalID(p.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("project %q: invalid organization id %q", p.Name, p.OrganizationID)
	}
	p.ID, p.OrganizationID = id, org

	_, err = q.ExecContext(ctx,
		`INSERT INTO projects (id, organization_id, name, description) VALUES (?, ?, ?, ?)`,
		p.ID, p.OrganizationID, p.Name, p.Description,
	)
	if err != nil {
		return nil, fmt.Errorf("insert project %q: %w", p.Name, err)
	}
	return &p, nil
}

// GetProject looks up a project by id.
func (s *Store) GetProject(ctx context.Context, id string) (*models.Project, error) {
	return getProject(ctx, s.db, id)
}

func getProject(ctx context.Context, q querier, id string) (*models.Project, error) {
	var p models.Project
	err := q.QueryRowContext(ctx,
		`SELECT id, organization_id, name, description FROM projects WHERE id = ?`, lookupID(id),
	).Scan(&p.ID, &p.OrganizationID, &p.Name, &p.Description)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan project: %w", err)
	}
	return &p, nil
}

// ListProjects returns the projects of an organization ordered by name.
func (s *Store) ListProjects(ctx context.Context, organizationID string) ([]models.Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description FROM projects WHERE organization_id = ? ORDER BY name, id`,
		lookupID(organizationID),
	)
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
	return projects, rows.Err()
}

// DeleteProject removes a project with its requirements and links.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, lookupID(id))
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	return nil
}
