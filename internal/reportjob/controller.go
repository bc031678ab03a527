package reportjob

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DefaultPollInterval is the delay between two generation status polls.
const DefaultPollInterval = 10 * time.Second

const (
	msgConfirm  = "Generating a report can take several minutes and the chat stays unavailable meanwhile. Continue?"
	msgInFlight = "A report is already being generated. Wait for it to finish before starting another one."
	msgSuccess  = "Report generated successfully."
	msgFailed   = "Report generation failed"
	msgRunning  = "The report is still being generated. Keep watching to receive it when it finishes."
	msgStorage  = "Could not update the report generation marker"
)

// Level is the severity of a banner.
type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelSuccess:
		return "success"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// Notifier shows non-blocking banners.
type Notifier interface {
	Notify(level Level, message string)
}

// NotifyFunc adapts a function to Notifier.
type NotifyFunc func(level Level, message string)

func (f NotifyFunc) Notify(level Level, message string) { f(level, message) }

// Confirmer asks a blocking yes/no question.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) (bool, error) { return f(ctx, prompt) }

// Options configure a Controller.
type Options struct {
	Scope     Scope
	Viewer    string
	Interval  time.Duration
	Notifier  Notifier
	Confirmer Confirmer
	Logger    zerolog.Logger

	// After replaces time.After in tests.
	After func(d time.Duration) <-chan time.Time
}

// Controller runs the report job protocol for one view: the status poller,
// the completion reconciler and the job initiator share its marker, board
// and pending set.
type Controller struct {
	api    API
	marker *Marker
	board  *Board
	codec  Codec
	scope  Scope
	notify Notifier
	ask    Confirmer
	log    zerolog.Logger
	every  time.Duration
	after  func(d time.Duration) <-chan time.Time

	mu         sync.Mutex
	pending    []JobID
	seen       map[JobID]struct{}
	reconciled bool
}

func NewController(api API, marker *Marker, board *Board, opts Options) *Controller {
	c := &Controller{
		api:    api,
		marker: marker,
		board:  board,
		codec:  NewCodec(opts.Scope, opts.Viewer),
		scope:  opts.Scope,
		notify: opts.Notifier,
		ask:    opts.Confirmer,
		log:    opts.Logger.With().Str("component", "reportjob").Str("scope", opts.Scope.String()).Logger(),
		every:  opts.Interval,
		after:  opts.After,
		seen:   make(map[JobID]struct{}),
	}
	if c.every <= 0 {
		c.every = DefaultPollInterval
	}
	if c.after == nil {
		c.after = time.After
	}
	if c.notify == nil {
		c.notify = NotifyFunc(func(Level, string) {})
	}
	if c.ask == nil {
		c.ask = ConfirmFunc(func(context.Context, string) (bool, error) { return true, nil })
	}
	return c
}

// Board returns the view-model the controller drives.
func (c *Controller) Board() *Board { return c.board }

// Pending returns a copy of the jobs seen in flight during this session.
func (c *Controller) Pending() []JobID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]JobID(nil), c.pending...)
}

// Run polls until the backend confirms that every job seen in flight has
// finished, the context is cancelled or the session expires.
func (c *Controller) Run(ctx context.Context) error {
	first := true
	for {
		done, err := c.Tick(ctx, first)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		first = false

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.after(c.every):
		}
	}
}

// Tick performs one poll and reports whether polling should stop.
//
// A failed poll says nothing about the jobs: the marker is kept, nothing is
// reconciled and the caller polls again. Only a successful answer listing no
// jobs clears the marker and, once jobs are pending, starts reconciliation.
func (c *Controller) Tick(ctx context.Context, first bool) (bool, error) {
	raw, err := c.api.GenerationStatus(ctx, c.scope)
	if errors.Is(err, ErrUnauthorized) {
		return true, err
	}
	if err != nil {
		c.log.Warn().Err(err).Msg("generation status unknown, polling again")
		return false, nil
	}

	jobs := make([]JobID, 0, len(raw))
	for _, r := range raw {
		job, err := c.codec.Decode(r)
		if err != nil {
			c.log.Warn().Err(err).Msg("skipping unreadable job id")
			continue
		}
		jobs = append(jobs, job)
	}

	if len(jobs) > 0 {
		if err := c.marker.Mark(ctx, jobs...); err != nil {
			c.storageFailed(err)
		}
		c.mu.Lock()
		for _, job := range jobs {
			if _, ok := c.seen[job]; !ok {
				c.seen[job] = struct{}{}
				c.pending = append(c.pending, job)
			}
		}
		c.mu.Unlock()

		for _, job := range jobs {
			c.board.SetGenerating(job)
		}
		if first {
			c.notify.Notify(LevelInfo, msgInFlight)
		}
		c.log.Debug().Int("jobs", len(jobs)).Msg("reports still generating")
		return false, nil
	}

	if err := c.marker.Clear(ctx); err != nil {
		c.storageFailed(err)
	}

	// On a first poll the pending set is only non-empty when CreateReport
	// handed over a job the backend stopped waiting for.
	c.mu.Lock()
	batch := append([]JobID(nil), c.pending...)
	if c.reconciled || len(batch) == 0 {
		c.mu.Unlock()
		return true, nil
	}
	c.reconciled = true
	c.mu.Unlock()

	c.notify.Notify(LevelSuccess, msgSuccess)
	return true, c.Reconcile(ctx, batch)
}

// Reconcile fetches the finished report of every job concurrently and swaps
// each control to View. A failed fetch leaves that control in Retry.
func (c *Controller) Reconcile(ctx context.Context, jobs []JobID) error {
	var g errgroup.Group
	for _, job := range jobs {
		job := job
		g.Go(func() error {
			return c.reconcileOne(ctx, job)
		})
	}
	return g.Wait()
}

func (c *Controller) reconcileOne(ctx context.Context, job JobID) error {
	report, err := c.api.ReportData(ctx, job)
	if errors.Is(err, ErrUnauthorized) {
		return err
	}
	if err != nil {
		c.log.Error().Err(err).Str("job", job.String()).Msg("failed to fetch finished report")
		c.notify.Notify(LevelError, msgFailed+": "+err.Error())
		c.board.SetRetry(job, err.Error())
		return nil
	}

	if err := c.marker.Clear(ctx); err != nil {
		c.storageFailed(err)
	}
	c.board.SetView(job, report)
	c.log.Info().Str("job", job.String()).Str("report", report.Name).Msg("report reconciled")
	return nil
}

// CreateReport starts a generation for owner/project and waits for it.
// It refuses, without any request, while the marker records another job.
func (c *Controller) CreateReport(ctx context.Context, owner, project string) (Artifact, error) {
	job := JobID{Owner: owner, Project: project}

	ok, err := c.ask.Confirm(ctx, msgConfirm)
	if err != nil {
		return Artifact{}, err
	}
	if !ok {
		return Artifact{}, ErrNotConfirmed
	}

	marked, err := c.marker.TryMark(ctx, job)
	if err != nil {
		c.notify.Notify(LevelError, msgFailed+": "+err.Error())
		return Artifact{}, err
	}
	if !marked {
		c.notify.Notify(LevelWarning, msgInFlight)
		return Artifact{}, ErrJobInFlight
	}

	c.board.SetGenerating(job)
	c.log.Info().Str("job", job.String()).Msg("report generation requested")

	report, err := c.api.GenerateReport(ctx, job)
	if errors.Is(err, ErrUnauthorized) {
		return Artifact{}, err
	}
	if errors.Is(err, ErrStillRunning) {
		// The marker and the Generating row stay; Run picks the job up.
		c.log.Warn().Err(err).Str("job", job.String()).Msg("report still generating, handing over to the poller")
		c.track(job)
		c.notify.Notify(LevelInfo, msgRunning)
		return Artifact{}, err
	}
	if err != nil {
		c.log.Error().Err(err).Str("job", job.String()).Msg("report generation failed")
		if clearErr := c.marker.Clear(ctx); clearErr != nil {
			c.storageFailed(clearErr)
		}
		c.notify.Notify(LevelError, msgFailed+": "+err.Error())
		c.board.SetRetry(job, err.Error())
		return Artifact{}, err
	}

	if err := c.marker.Clear(ctx); err != nil {
		c.storageFailed(err)
	}
	c.board.SetView(job, report)
	c.notify.Notify(LevelSuccess, msgSuccess)
	return report, nil
}

// track adds job to the pending set and re-arms reconciliation for it.
func (c *Controller) track(job JobID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.seen[job]; !ok {
		c.seen[job] = struct{}{}
		c.pending = append(c.pending, job)
	}
	c.reconciled = false
}

// storageFailed reports a marker write the session store refused. The
// marker may now disagree with the backend until the next poll rewrites it.
func (c *Controller) storageFailed(err error) {
	c.log.Error().Err(err).Msg("failed to update marker")
	c.notify.Notify(LevelError, msgStorage+": "+err.Error())
}

// Retry starts the generation again for a control left in Retry.
func (c *Controller) Retry(ctx context.Context, job JobID) (Artifact, error) {
	if r, ok := c.board.Row(job); ok && r.State == StateGenerating {
		return Artifact{}, ErrJobInFlight
	}
	return c.CreateReport(ctx, job.Owner, job.Project)
}
