package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/svaia/api/internal/config"
	"github.com/svaia/api/internal/events"
	"github.com/svaia/api/internal/metrics"
	"github.com/svaia/api/internal/model"
	"github.com/svaia/api/internal/store"
)

const TaskTypeReport = "report:generate"

var (
	ErrProjectNotFound      = errors.New("project not found")
	ErrGenerationInProgress = errors.New("a report is already being generated for this project")
	ErrReportNotReady       = errors.New("no report has been generated for this project")
	ErrForbidden            = errors.New("project belongs to another user")
	ErrWaitTimeout          = errors.New("report generation is still running")
)

// GenerationError is returned when the worker gave up on a generation.
type GenerationError struct {
	Reason string
}

func (e *GenerationError) Error() string {
	return "report generation failed: " + e.Reason
}

// Enqueuer is the part of asynq.Client the service needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Caller is the authenticated user a request is made for.
type Caller struct {
	Email string
	Admin bool
}

func (c Caller) canAccess(email string) bool {
	return c.Admin || c.Email == email
}

// ReportService handles project registration and report generation
type ReportService struct {
	store store.ProjectStore
	bus   events.Bus
	queue Enqueuer
	cfg   config.ReportConfig
	log   zerolog.Logger
}

func NewReportService(projects store.ProjectStore, bus events.Bus, queue Enqueuer, cfg config.ReportConfig, log zerolog.Logger) *ReportService {
	if cfg.Queue == "" {
		cfg.Queue = "reports"
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = 15 * time.Minute
	}
	return &ReportService{
		store: projects,
		bus:   bus,
		queue: queue,
		cfg:   cfg,
		log:   log.With().Str("component", "report_service").Logger(),
	}
}

// RegisterProject creates or replaces the caller's SBOM for a project.
func (s *ReportService) RegisterProject(ctx context.Context, caller Caller, req *model.RegisterProjectRequest) (*model.ProjectSummary, error) {
	p := &model.Project{
		Email:    caller.Email,
		Name:     req.ProjectName,
		FileData: req.FileData,
		Criteria: req.Criteria,
	}
	if err := s.store.Save(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to save project: %w", err)
	}
	summary := p.Summary()
	return &summary, nil
}

// ListProjects lists the caller's projects, or every project when all is set.
func (s *ReportService) ListProjects(ctx context.Context, caller Caller, all bool) ([]model.ProjectSummary, error) {
	email := caller.Email
	if all {
		if !caller.Admin {
			return nil, ErrForbidden
		}
		email = ""
	}

	projects, err := s.store.List(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	out := make([]model.ProjectSummary, 0, len(projects))
	for _, p := range projects {
		out = append(out, p.Summary())
	}
	return out, nil
}

// GenerationStatus returns the names of the caller's projects whose report
// is being generated.
func (s *ReportService) GenerationStatus(ctx context.Context, caller Caller) ([]string, error) {
	keys, err := s.store.InProcess(ctx, caller.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to read generation status: %w", err)
	}
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, k.Name)
	}
	return names, nil
}

// GenerationStatusAll returns every in-flight generation as [email, name].
func (s *ReportService) GenerationStatusAll(ctx context.Context) ([][2]string, error) {
	keys, err := s.store.InProcess(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to read generation status: %w", err)
	}
	pairs := make([][2]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k.Pair())
	}
	return pairs, nil
}

// Generate starts a generation and waits for it to finish. The in_process
// flag is claimed before anything is queued, so a second request for the
// same project fails with ErrGenerationInProgress.
func (s *ReportService) Generate(ctx context.Context, caller Caller, req *model.GenerateReportRequest) (*model.ReportContent, error) {
	key := model.ProjectKey{Email: req.UserEmail, Name: req.ProjectName}
	if !caller.canAccess(key.Email) {
		return nil, ErrForbidden
	}

	if err := s.store.BeginGeneration(ctx, key); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return nil, ErrProjectNotFound
		case errors.Is(err, store.ErrInProcess):
			return nil, ErrGenerationInProgress
		}
		return nil, fmt.Errorf("failed to start generation: %w", err)
	}

	sub, err := s.bus.Subscribe(ctx, key)
	if err != nil {
		s.abort(key)
		return nil, fmt.Errorf("failed to subscribe to generation events: %w", err)
	}
	defer sub.Close()

	requestID := uuid.New().String()
	if err := s.enqueue(ctx, requestID, key); err != nil {
		s.abort(key)
		return nil, err
	}

	log := s.log.With().Str("requestId", requestID).Str("email", key.Email).Str("project", key.Name).Logger()
	log.Info().Msg("report generation queued")

	timer := time.NewTimer(s.cfg.WaitTimeout)
	defer timer.Stop()

	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return nil, fmt.Errorf("generation event stream closed")
			}
			if ev.RequestID != "" && ev.RequestID != requestID {
				continue
			}
			if ev.Type == model.GenerationFailed {
				log.Warn().Str("reason", ev.Error).Msg("report generation failed")
				return nil, &GenerationError{Reason: ev.Error}
			}
			if ev.Report == nil {
				return nil, fmt.Errorf("completion event without report")
			}
			return model.NewReportContent(key.Name, ev.Report), nil
		case <-timer.C:
			metrics.IncWaitTimeout()
			log.Warn().Dur("waited", s.cfg.WaitTimeout).Msg("gave up waiting on report generation")
			return nil, ErrWaitTimeout
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (s *ReportService) enqueue(ctx context.Context, requestID string, key model.ProjectKey) error {
	payload, err := json.Marshal(&model.ReportTaskPayload{
		RequestID:   requestID,
		Email:       key.Email,
		ProjectName: key.Name,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	task := asynq.NewTask(TaskTypeReport, payload)
	_, err = s.queue.EnqueueContext(ctx, task,
		asynq.TaskID(requestID),
		asynq.Queue(s.cfg.Queue),
		asynq.MaxRetry(s.cfg.MaxRetry),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

// abort releases the in_process flag of a generation that never got queued.
func (s *ReportService) abort(key model.ProjectKey) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.store.EndGeneration(ctx, key); err != nil {
		s.log.Error().Err(err).Str("email", key.Email).Str("project", key.Name).Msg("failed to clear in_process")
	}
}

// ReportData returns the stored report of a project. An empty email means
// the caller's own project.
func (s *ReportService) ReportData(ctx context.Context, caller Caller, req *model.ReportDataRequest) (*model.ReportContent, error) {
	key := model.ProjectKey{Email: req.Email, Name: req.ProjectName}
	if key.Email == "" {
		key.Email = caller.Email
	}
	if !caller.canAccess(key.Email) {
		return nil, ErrForbidden
	}

	p, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to load project: %w", err)
	}
	if p.Report == nil || p.Report.Data == "" {
		return nil, ErrReportNotReady
	}
	return model.NewReportContent(p.Name, p.Report), nil
}

// Project loads one project for the worker.
func (s *ReportService) Project(ctx context.Context, key model.ProjectKey) (*model.Project, error) {
	p, err := s.store.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrProjectNotFound
	}
	return p, err
}

// CompleteGeneration stores the report, clears in_process and wakes the
// waiting request.
func (s *ReportService) CompleteGeneration(ctx context.Context, payload *model.ReportTaskPayload, r *model.Report) error {
	key := model.ProjectKey{Email: payload.Email, Name: payload.ProjectName}
	if err := s.store.SaveReport(ctx, key, r); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}

	ev := model.GenerationEvent{
		Type:        model.GenerationCompleted,
		RequestID:   payload.RequestID,
		Email:       key.Email,
		ProjectName: key.Name,
		Report:      r,
	}
	if err := s.bus.Publish(ctx, ev); err != nil {
		// The report is stored; pollers will still see it.
		s.log.Error().Err(err).Str("requestId", payload.RequestID).Msg("failed to publish completion")
	}
	return nil
}

// FailGeneration clears in_process and tells the waiting request why.
func (s *ReportService) FailGeneration(ctx context.Context, payload *model.ReportTaskPayload, reason string) error {
	key := model.ProjectKey{Email: payload.Email, Name: payload.ProjectName}
	if err := s.store.EndGeneration(ctx, key); err != nil {
		return fmt.Errorf("failed to clear in_process: %w", err)
	}

	ev := model.GenerationEvent{
		Type:        model.GenerationFailed,
		RequestID:   payload.RequestID,
		Email:       key.Email,
		ProjectName: key.Name,
		Error:       reason,
	}
	if err := s.bus.Publish(ctx, ev); err != nil {
		s.log.Error().Err(err).Str("requestId", payload.RequestID).Msg("failed to publish failure")
	}
	return nil
}
