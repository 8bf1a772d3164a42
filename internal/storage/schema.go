package storage

// Schema is the SQL schema of the local traceability database. It mirrors
// the tables the hosted get_requirement_tree procedure reads from.
const Schema = `
CREATE TABLE IF NOT EXISTS projects (
    id              TEXT PRIMARY KEY,
    organization_id TEXT NOT NULL,
    name            TEXT NOT NULL,
    description     TEXT NOT NULL DEFAULT '',
    created_at      TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS requirements (
    id          TEXT PRIMARY KEY,
    project_id  TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
    name        TEXT NOT NULL,
    external_id TEXT NOT NULL DEFAULT '',
    created_at  TEXT NOT NULL DEFAULT (datetime('now'))
);

-- One row per ancestor/descendant pair; depth 1 rows are direct parent links.
CREATE TABLE IF NOT EXISTS requirements_closure (
    ancestor_id   TEXT NOT NULL REFERENCES requirements(id) ON DELETE CASCADE,
    descendant_id TEXT NOT NULL REFERENCES requirements(id) ON DELETE CASCADE,
    depth         INTEGER NOT NULL CHECK(depth >= 1),
    PRIMARY KEY (ancestor_id, descendant_id)
);

CREATE INDEX IF NOT EXISTS idx_projects_org ON projects(organization_id, name);
CREATE INDEX IF NOT EXISTS idx_requirements_project ON requirements(project_id);
CREATE INDEX IF NOT EXISTS idx_requirements_external ON requirements(project_id, external_id);
CREATE INDEX IF NOT EXISTS idx_closure_descendant ON requirements_closure(descendant_id, depth);
CREATE INDEX IF NOT EXISTS idx_closure_direct ON requirements_closure(depth, ancestor_id);
`

// requirementTreeQuery emulates get_requirement_tree(p_project_id): one row
// per requirement reachable from the project's roots, with the title
// (external id, else name), direct parent, depth and " > " joined path.
const requirementTreeQuery = `
WITH RECURSIVE
edges AS (
    SELECT ancestor_id AS parent_id, descendant_id AS child_id
    FROM requirements_closure
    WHERE depth = 1
),
tree (requirement_id, title, parent_id, depth, path) AS (
    SELECT r.id,
           COALESCE(NULLIF(r.external_id, ''), r.name),
           NULL,
           0,
           COALESCE(NULLIF(r.external_id, ''), r.name)
    FROM requirements r
    WHERE r.project_id = ?1
      AND NOT EXISTS (SELECT 1 FROM edges e WHERE e.child_id = r.id)
    UNION ALL
    SELECT r.id,
           COALESCE(NULLIF(r.external_id, ''), r.name),
           t.requirement_id,
           t.depth + 1,
           t.path || ' > ' || COALESCE(NULLIF(r.external_id, ''), r.name)
    FROM tree t
    JOIN edges e ON e.parent_id = t.requirement_id
    JOIN requirements r ON r.id = e.child_id
    WHERE r.project_id = ?1
)
SELECT t.requirement_id,
       t.title,
       t.parent_id,
       t.depth,
       t.path,
       EXISTS (SELECT 1 FROM edges e WHERE e.parent_id = t.requirement_id) AS has_children
FROM tree t
ORDER BY t.path, t.requirement_id
`
