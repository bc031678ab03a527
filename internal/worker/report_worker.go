package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/svaia/api/internal/client"
	"github.com/svaia/api/internal/metrics"
	"github.com/svaia/api/internal/model"
	"github.com/svaia/api/internal/service"
)

// Broadcaster pushes generation events to connected dashboards.
type Broadcaster interface {
	BroadcastStarted(email, project string)
	BroadcastComplete(email, project, reportName string)
	BroadcastError(email, project, code, message string)
}

// ReportWorker processes report generation tasks
type ReportWorker struct {
	reportService *service.ReportService
	generator     client.ReportGenerator
	archive       client.ReportArchive
	notifier      client.ReportNotifier
	hub           Broadcaster
	log           zerolog.Logger
}

// NewReportWorker creates a new report worker. archive and notifier may be nil.
func NewReportWorker(
	reportService *service.ReportService,
	generator client.ReportGenerator,
	archive client.ReportArchive,
	notifier client.ReportNotifier,
	hub Broadcaster,
	log zerolog.Logger,
) *ReportWorker {
	return &ReportWorker{
		reportService: reportService,
		generator:     generator,
		archive:       archive,
		notifier:      notifier,
		hub:           hub,
		log:           log.With().Str("component", "report_worker").Logger(),
	}
}

// ProcessTask handles report task processing
func (w *ReportWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload model.ReportTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %v: %w", err, asynq.SkipRetry)
	}

	log := w.log.With().
		Str("requestId", payload.RequestID).
		Str("email", payload.Email).
		Str("project", payload.ProjectName).
		Logger()
	log.Info().Msg("starting report generation")

	start := time.Now()
	w.hub.BroadcastStarted(payload.Email, payload.ProjectName)

	project, err := w.reportService.Project(ctx, model.ProjectKey{Email: payload.Email, Name: payload.ProjectName})
	if err != nil {
		if errors.Is(err, service.ErrProjectNotFound) {
			w.failJob(ctx, log, &payload, "project was deleted")
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return w.retryOrFail(ctx, log, &payload, fmt.Errorf("failed to load project: %w", err))
	}

	var generated *client.Generated
	if w.generator == nil || !w.generator.IsConfigured() {
		generated = mockReport(project)
	} else {
		generated, err = w.generator.GenerateReport(ctx, project.FileData, RequirementTags(project.Criteria))
		if err != nil {
			return w.retryOrFail(ctx, log, &payload, err)
		}
	}

	report := &model.Report{
		Name:        ReportName(project.Name),
		Data:        generated.Content,
		Reasoning:   generated.Reasoning,
		GeneratedAt: time.Now().UTC(),
	}
	w.archiveReport(ctx, log, project, report)

	if err := w.reportService.CompleteGeneration(ctx, &payload, report); err != nil {
		return w.retryOrFail(ctx, log, &payload, err)
	}

	metrics.IncGeneration("completed")
	metrics.ObserveGeneration(time.Since(start))
	log.Info().Str("report", report.Name).Dur("took", time.Since(start)).Msg("report generated")

	w.notify(ctx, log, project, report)
	w.hub.BroadcastComplete(payload.Email, payload.ProjectName, report.Name)
	return nil
}

// retryOrFail gives up on the generation once asynq has no retries left.
// Earlier attempts keep in_process set so clients keep seeing the job.
func (w *ReportWorker) retryOrFail(ctx context.Context, log zerolog.Logger, payload *model.ReportTaskPayload, err error) error {
	if isFinalAttempt(ctx) {
		w.failJob(ctx, log, payload, err.Error())
		return err
	}
	metrics.IncGeneration("retried")
	log.Warn().Err(err).Msg("report generation attempt failed, will retry")
	return err
}

func isFinalAttempt(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return true
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		return true
	}
	return retried >= maxRetry
}

// failJob marks the generation failed and notifies subscribers
func (w *ReportWorker) failJob(ctx context.Context, log zerolog.Logger, payload *model.ReportTaskPayload, reason string) {
	metrics.IncGeneration("failed")
	log.Error().Str("reason", reason).Msg("report generation failed")

	if err := w.reportService.FailGeneration(ctx, payload, reason); err != nil {
		log.Error().Err(err).Msg("failed to record generation failure")
	}
	w.hub.BroadcastError(payload.Email, payload.ProjectName, "JOB_FAILED", reason)
}

// archiveReport copies the report to object storage. Failures are logged only.
func (w *ReportWorker) archiveReport(ctx context.Context, log zerolog.Logger, p *model.Project, r *model.Report) {
	if w.archive == nil {
		return
	}
	url, err := w.archive.Archive(ctx, client.ArchivedReport{
		Owner:   p.Email,
		Project: p.Name,
		Name:    r.Name,
		Content: r.Data,
	})
	if err != nil {
		log.Warn().Err(err).Msg("failed to archive report")
		return
	}
	r.ArchiveURL = url
}

// notify tells the alert service about the report. Best-effort.
func (w *ReportWorker) notify(ctx context.Context, log zerolog.Logger, p *model.Project, r *model.Report) {
	if w.notifier == nil || !w.notifier.IsConfigured() {
		metrics.IncNotification("skipped")
		return
	}
	err := w.notifier.SendReport(ctx, &client.ReportNotification{
		UserEmail:   p.Email,
		Subject:     fmt.Sprintf("Report generated for project %s", p.Name),
		Body:        r.Data,
		ProjectName: p.Name,
	})
	if err != nil {
		metrics.IncNotification("failed")
		log.Warn().Err(err).Msg("failed to send report notification")
		return
	}
	metrics.IncNotification("sent")
}

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9_\-]`)

// ReportName derives the report file name from a project name: spaces
// become underscores and anything outside [A-Za-z0-9_-] is dropped.
func ReportName(project string) string {
	cleaned := unsafeNameChars.ReplaceAllString(strings.ReplaceAll(project, " ", "_"), "")
	return cleaned + "_report.txt"
}

// RequirementTags renders a project's criteria as the requirements the
// model is asked to check.
func RequirementTags(c model.Criteria) string {
	lines := []string{
		fmt.Sprintf("max_total_vulns: there must be no more than %d vulnerabilities", c.MaxTotalVulns),
		fmt.Sprintf("min_fixable_ratio: at least %g of the vulnerabilities must be fixable", c.MinFixableRatio),
		fmt.Sprintf("max_severity_level: there must be no vulnerability with CVSS > %g", c.MaxSeverityLevel),
		fmt.Sprintf("composite_score: the sum of CVSS scores must be <= %g", c.CompositeScore),
	}
	return strings.Join(lines, ",\n")
}

// mockReport stands in for the LLM when none is configured.
func mockReport(p *model.Project) *client.Generated {
	components := componentNames(p.FileData)

	var b strings.Builder
	fmt.Fprintf(&b, "# Vulnerability report for %s\n\n", p.Name)
	if len(components) == 0 {
		b.WriteString("The SBOM lists no components.\n")
	} else {
		fmt.Fprintf(&b, "The SBOM lists %d components:\n\n", len(components))
		for _, c := range components {
			fmt.Fprintf(&b, "- %s\n", c)
		}
	}
	b.WriteString("\nNo language model is configured; vulnerabilities were not analysed.\n")

	return &client.Generated{
		Reasoning: "Requirements checked:\n" + RequirementTags(p.Criteria),
		Content:   b.String(),
		Model:     "mock",
	}
}

// componentNames lists "name version" for each CycloneDX component.
func componentNames(sbom string) []string {
	var doc struct {
		Components []struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"components"`
	}
	if err := json.Unmarshal([]byte(sbom), &doc); err != nil {
		return nil
	}
	names := make([]string, 0, len(doc.Components))
	for _, c := range doc.Components {
		names = append(names, strings.TrimSpace(c.Name+" "+c.Version))
	}
	return names
}
