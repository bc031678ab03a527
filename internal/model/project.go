package model

import "time"

// Criteria are the acceptance thresholds a project's report is checked against.
type Criteria struct {
	MaxTotalVulns    int     `json:"max_total_vulns" validate:"min=0"`
	MinFixableRatio  float64 `json:"min_fixable_ratio" validate:"min=0,max=1"`
	MaxSeverityLevel float64 `json:"max_severity_level" validate:"min=0,max=10"`
	CompositeScore   float64 `json:"composite_score" validate:"min=0"`
}

// Project is an uploaded SBOM owned by one user. Email and Name form the key.
type Project struct {
	Email            string    `json:"email"`
	Name             string    `json:"project_name"`
	FileData         string    `json:"file_data"`
	Criteria         Criteria  `json:"criteria"`
	Report           *Report   `json:"report,omitempty"`
	InProcess        bool      `json:"in_process"`
	CreatedAt        time.Time `json:"created_at"`
	ModificationDate time.Time `json:"modification_date"`
}

// Key returns the owner/project pair identifying p.
func (p *Project) Key() ProjectKey {
	return ProjectKey{Email: p.Email, Name: p.Name}
}

// ProjectKey identifies a project across users.
type ProjectKey struct {
	Email string
	Name  string
}

// Pair renders the key the way the admin status endpoint returns it.
func (k ProjectKey) Pair() [2]string {
	return [2]string{k.Email, k.Name}
}

// RegisterProjectRequest represents POST /api/projects
type RegisterProjectRequest struct {
	ProjectName string `json:"project_name" validate:"required,min=1,max=128"`
	FileData    string `json:"file_data" validate:"required,json"`
	Criteria
}

// ProjectSummary is one entry of the project listing.
type ProjectSummary struct {
	Email            string    `json:"email"`
	Name             string    `json:"project_name"`
	HasReport        bool      `json:"has_report"`
	InProcess        bool      `json:"in_process"`
	ReportName       string    `json:"report_name,omitempty"`
	ModificationDate time.Time `json:"modification_date"`
}

// Summary converts p for listing.
func (p *Project) Summary() ProjectSummary {
	s := ProjectSummary{
		Email:            p.Email,
		Name:             p.Name,
		InProcess:        p.InProcess,
		ModificationDate: p.ModificationDate,
	}
	if p.Report != nil && p.Report.Data != "" {
		s.HasReport = true
		s.ReportName = p.Report.Name
	}
	return s
}
