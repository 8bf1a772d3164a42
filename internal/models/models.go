package models

// UnknownTitle is displayed for requirements that arrive without a title.
const UnknownTitle = "Unknown"

// Project is a project row as listed for an organization.
type Project struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id,omitempty"`
	Name           string `json:"name"`
	Description    string `json:"description"`
}

// RequirementNode is one row of the requirement hierarchy of a project, as
// returned by get_requirement_tree.
type RequirementNode struct {
	RequirementID string `json:"requirement_id"`
	Title         string `json:"title,omitempty"`
	ParentID      string `json:"parent_id,omitempty"`
	Depth         int    `json:"depth"`
	Path          string `json:"path"`
	HasChildren   bool   `json:"has_children"`
}

// DisplayTitle returns the title, or UnknownTitle when it is empty.
func (n RequirementNode) DisplayTitle() string {
	if n.Title == "" {
		return UnknownTitle
	}
	return n.Title
}

// IsRoot reports whether the node sits at the top of its hierarchy. Negative
// depths from malformed rows count as roots.
func (n RequirementNode) IsRoot() bool {
	return n.Depth <= 0
}

// Requirement is a stored requirement of a project.
type Requirement struct {
	ID         string `json:"id"`
	ProjectID  string `json:"project_id"`
	Name       string `json:"name"`
	ExternalID string `json:"external_id,omitempty"`
}
