package commands

import (
	"context"

	"github.com/urfave/cli/v3"
)

func MarkerShowAction(ctx context.Context, cmd *cli.Command) error {
	app, err := NewAppContext(ctx, cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	jobs, err := app.Marker.Jobs(ctx)
	if err != nil {
		return err
	}
	app.UI.PrintJobs(jobs)
	return nil
}

// MarkerClearAction drops a marker left behind by a client that died while
// a generation was running.
func MarkerClearAction(ctx context.Context, cmd *cli.Command) error {
	app, err := NewAppContext(ctx, cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.Marker.Clear(ctx); err != nil {
		return err
	}
	app.Log.Info().Msg("marker cleared")
	return nil
}
