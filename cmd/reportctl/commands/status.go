package commands

import (
	"context"

	"github.com/urfave/cli/v3"
)

// StatusAction performs a single poll and prints what it found next to the
// persisted marker.
func StatusAction(ctx context.Context, cmd *cli.Command) error {
	app, err := NewAppContext(ctx, cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	if _, err := app.Controller.Tick(ctx, true); err != nil {
		return app.Handle(err)
	}

	app.UI.PrintSection("In flight")
	app.UI.PrintJobs(app.Controller.Pending())

	jobs, err := app.Marker.Jobs(ctx)
	if err != nil {
		return err
	}
	app.UI.PrintSection("Marker")
	app.UI.PrintJobs(jobs)
	return nil
}
