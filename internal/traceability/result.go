package traceability

import (
	"encoding/json"

	"github.com/wagnerlima/memory-cloud/traceability-mcp/internal/models"
)

// ErrorCode classifies a failed result.
type ErrorCode string

const (
	// CodeInvalidIdentifier means the supplied id is not a UUID. No remote
	// call was made.
	CodeInvalidIdentifier ErrorCode = "INVALID_UUID"
	// CodeDatabaseError covers every failure of the data source.
	CodeDatabaseError ErrorCode = "DATABASE_ERROR"
)

const invalidUUIDMessage = "Invalid UUID format"

// Metadata holds hierarchy statistics for one project.
type Metadata struct {
	TotalNodes               int   `json:"total_nodes"`
	AllNodesIncludingOrphans int   `json:"all_nodes_including_orphans"`
	RootNodes                int   `json:"root_nodes"`
	MaxDepth                 int   `json:"max_depth"`
	OrphanNodes              int   `json:"orphan_nodes"`
	Relationships            int   `json:"relationships"`
	QueryTimeMS              int64 `json:"query_time_ms"`
}

// TreeResult is the outcome of GetTree.
type TreeResult struct {
	Success       bool                     `json:"success"`
	Tree          []models.RequirementNode `json:"tree"`
	HierarchyView []string                 `json:"hierarchy_view"`
	Metadata      *Metadata                `json:"metadata,omitempty"`
	Error         string                   `json:"error,omitempty"`
	ErrorCode     ErrorCode                `json:"error_code,omitempty"`
}

// ProjectTree is one project's entry in an OrganizationResult. Error and
// ErrorCode are set when only this project failed.
type ProjectTree struct {
	ProjectID     string                   `json:"project_id"`
	ProjectName   string                   `json:"project_name"`
	Tree          []models.RequirementNode `json:"tree"`
	HierarchyView []string                 `json:"hierarchy_view"`
	Metadata      *Metadata                `json:"metadata,omitempty"`
	Error         string                   `json:"error,omitempty"`
	ErrorCode     ErrorCode                `json:"error_code,omitempty"`
}

// Summary aggregates an organization's trees.
type Summary struct {
	TotalProjects      int   `json:"total_projects"`
	TotalRequirements  int   `json:"total_requirements"`
	TotalRelationships int   `json:"total_relationships"`
	FailedProjects     int   `json:"failed_projects,omitempty"`
	QueryTimeMS        int64 `json:"query_time_ms"`
}

// OrganizationResult is the outcome of GetAllTrees.
type OrganizationResult struct {
	Success        bool          `json:"success"`
	OrganizationID string        `json:"organization_id"`
	Projects       []ProjectTree `json:"projects"`
	Summary        *Summary      `json:"summary,omitempty"`
	Error          string        `json:"error,omitempty"`
	ErrorCode      ErrorCode     `json:"error_code,omitempty"`
}

// ProjectsResult is the outcome of ListProjects.
type ProjectsResult struct {
	Success        bool             `json:"success"`
	OrganizationID string           `json:"organization_id"`
	Projects       []models.Project `json:"projects"`
	Error          string           `json:"error,omitempty"`
	ErrorCode      ErrorCode        `json:"error_code,omitempty"`
}

// failure is the wire shape of every unsuccessful result.
type failure struct {
	Success   bool      `json:"success"`
	Error     string    `json:"error"`
	ErrorCode ErrorCode `json:"error_code"`
}

func (r TreeResult) MarshalJSON() ([]byte, error) {
	if !r.Success {
		return json.Marshal(failure{Error: r.Error, ErrorCode: r.ErrorCode})
	}
	type plain TreeResult
	return json.Marshal(plain(r))
}

func (r OrganizationResult) MarshalJSON() ([]byte, error) {
	if !r.Success {
		return json.Marshal(failure{Error: r.Error, ErrorCode: r.ErrorCode})
	}
	type plain OrganizationResult
	return json.Marshal(plain(r))
}

func (r ProjectsResult) MarshalJSON() ([]byte, error) {
	if !r.Success {
		return json.Marshal(failure{Error: r.Error, ErrorCode: r.ErrorCode})
	}
	type plain ProjectsResult
	return json.Marshal(plain(r))
}
