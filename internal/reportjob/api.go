package reportjob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized means the session is gone. The current operation must
	// be abandoned and the user sent to the login route.
	ErrUnauthorized = errors.New("reportjob: session expired or not authenticated")
	// ErrJobInFlight is returned by CreateReport while the marker is set.
	ErrJobInFlight = errors.New("reportjob: a report is already being generated")
	// ErrNotConfirmed is returned by CreateReport when the user declines.
	ErrNotConfirmed = errors.New("reportjob: generation not confirmed")
	// ErrStillRunning means the backend stopped waiting for a generation, or
	// the request timed out, while the job is still in flight. The job stays
	// marked and polling reports its outcome.
	ErrStillRunning = errors.New("reportjob: report generation still running")
)

// codeTimeout is the envelope code of a generation the backend stopped
// waiting for.
const codeTimeout = "TIMEOUT"

// RejectedError is an application-level refusal: the backend answered but
// with ok=false.
type RejectedError struct {
	Status  int
	Code    string
	Message string
}

func (e *RejectedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request rejected (status %d)", e.Status)
	}
	return e.Message
}

// Artifact is a finished report.
type Artifact struct {
	Name      string `json:"report_name"`
	Data      string `json:"report_data"`
	Reasoning string `json:"report_reasoning,omitempty"`
}

// API is the backend surface the controller talks to.
type API interface {
	// GenerationStatus lists the identifiers of the jobs still generating in
	// scope, as returned on the wire.
	GenerationStatus(ctx context.Context, scope Scope) ([]json.RawMessage, error)
	// GenerateReport runs a generation and blocks until the backend answers.
	GenerateReport(ctx context.Context, job JobID) (Artifact, error)
	// ReportData fetches the stored report of a project.
	ReportData(ctx context.Context, job JobID) (Artifact, error)
}
