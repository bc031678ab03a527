package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/svaia/api/internal/reportjob"
)

// GenerateAction asks for confirmation, starts a generation and prints the
// report once the backend returns it. When the backend stops waiting first,
// it keeps polling until the job finishes.
func GenerateAction(ctx context.Context, cmd *cli.Command) error {
	app, err := NewAppContext(ctx, cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	app.UI.AssumeYes = cmd.Bool("yes")
	job := reportjob.JobID{Owner: app.Owner(cmd), Project: cmd.String("project")}

	report, err := app.Controller.CreateReport(ctx, job.Owner, job.Project)
	switch {
	case errors.Is(err, reportjob.ErrNotConfirmed):
		return nil
	case errors.Is(err, reportjob.ErrJobInFlight):
		return cli.Exit("", 2)
	case errors.Is(err, reportjob.ErrStillRunning):
		report, err = awaitReport(ctx, app, job)
		if err != nil {
			return app.Handle(err)
		}
	case err != nil:
		return app.Handle(err)
	}

	view := reportjob.NewReportView(report, nil)
	if cmd.Bool("reasoning") {
		view.ToggleReasoning()
	}
	app.UI.PrintReport(view)
	return nil
}

// awaitReport polls until the backend no longer lists job and returns the
// report the reconciler fetched for it.
func awaitReport(ctx context.Context, app *AppContext, job reportjob.JobID) (reportjob.Artifact, error) {
	if err := app.Controller.Run(ctx); err != nil {
		return reportjob.Artifact{}, err
	}
	row, ok := app.Board.Row(job)
	if !ok || row.Report == nil {
		return reportjob.Artifact{}, fmt.Errorf("report for %s was not retrieved: %s", job, row.Err)
	}
	return *row.Report, nil
}
