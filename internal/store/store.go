// Package store keeps projects and their reports.
package store

import (
	"context"
	"errors"

	"github.com/svaia/api/internal/model"
)

var (
	ErrNotFound  = errors.New("project not found")
	ErrInProcess = errors.New("report generation already in process")
)

// ProjectStore is the project registry. BeginGeneration is the only way to
// set the in_process flag and must be atomic: of two concurrent callers for
// the same project exactly one succeeds.
type ProjectStore interface {
	// Save creates or updates a project's SBOM and criteria. The stored
	// report and in_process flag are kept.
	Save(ctx context.Context, p *model.Project) error
	Get(ctx context.Context, key model.ProjectKey) (*model.Project, error)
	// List returns the projects of email, or of every user when email is "".
	List(ctx context.Context, email string) ([]*model.Project, error)
	// InProcess lists the projects currently generating, filtered like List.
	InProcess(ctx context.Context, email string) ([]model.ProjectKey, error)

	BeginGeneration(ctx context.Context, key model.ProjectKey) error
	// SaveReport stores the report and clears in_process.
	SaveReport(ctx context.Context, key model.ProjectKey, r *model.Report) error
	// EndGeneration clears in_process without touching the report.
	EndGeneration(ctx context.Context, key model.ProjectKey) error
}
