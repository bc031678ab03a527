package model

import "time"

// Report is the artifact produced for a project. Regenerating overwrites it.
type Report struct {
	Name        string    `json:"report_name"`
	Data        string    `json:"report_data"`
	Reasoning   string    `json:"report_reasoning,omitempty"`
	ArchiveURL  string    `json:"archive_url,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// GenerateReportRequest represents POST /chat/generate-report
type GenerateReportRequest struct {
	UserEmail   string `json:"user_email" validate:"required,email"`
	ProjectName string `json:"project_name" validate:"required"`
}

// ReportDataRequest represents POST /api/get-report-data. Email defaults to
// the caller.
type ReportDataRequest struct {
	ProjectName string `json:"project_name" validate:"required"`
	Email       string `json:"email" validate:"omitempty,email"`
}

// ReportContent is the content of a successful generate-report or
// get-report-data response.
type ReportContent struct {
	ProjectName string `json:"project_name,omitempty"`
	ReportName  string `json:"report_name"`
	ReportData  string `json:"report_data"`
	Reasoning   string `json:"report_reasoning,omitempty"`
	ArchiveURL  string `json:"archive_url,omitempty"`
}

// NewReportContent builds the response content for project name.
func NewReportContent(name string, r *Report) *ReportContent {
	return &ReportContent{
		ProjectName: name,
		ReportName:  r.Name,
		ReportData:  r.Data,
		Reasoning:   r.Reasoning,
		ArchiveURL:  r.ArchiveURL,
	}
}

// ReportTaskPayload is the asynq payload of a generation task.
type ReportTaskPayload struct {
	RequestID   string `json:"requestId"`
	Email       string `json:"email"`
	ProjectName string `json:"projectName"`
}

// Generation event types
const (
	GenerationCompleted = "completed"
	GenerationFailed    = "failed"
)

// GenerationEvent is published when a generation finishes, either way.
type GenerationEvent struct {
	Type        string  `json:"type"`
	RequestID   string  `json:"requestId,omitempty"`
	Email       string  `json:"email"`
	ProjectName string  `json:"projectName"`
	Report      *Report `json:"report,omitempty"`
	Error       string  `json:"error,omitempty"`
}
