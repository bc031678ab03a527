package commands

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/svaia/api/internal/reportjob"
)

// ViewAction fetches a stored report and opens it in the viewer.
func ViewAction(ctx context.Context, cmd *cli.Command) error {
	app, err := NewAppContext(ctx, cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	job := reportjob.JobID{Owner: app.Owner(cmd), Project: cmd.String("project")}
	report, err := app.API.ReportData(ctx, job)
	if err != nil {
		return app.Handle(err)
	}

	view := reportjob.NewReportView(report, nil)
	if cmd.Bool("raw") {
		app.UI.PrintRaw(view)
		return nil
	}
	if cmd.Bool("reasoning") {
		view.ToggleReasoning()
	}
	app.UI.PrintReport(view)
	return nil
}
