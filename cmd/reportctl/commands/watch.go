package commands

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/svaia/api/internal/reportjob"
)

// WatchAction loads the project board and polls until every generation seen
// in flight has finished and its report is shown.
func WatchAction(ctx context.Context, cmd *cli.Command) error {
	app, err := NewAppContext(ctx, cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := loadBoard(ctx, app); err != nil {
		return app.Handle(err)
	}
	if err := app.UI.RenderBoard(app.Board.Rows()); err != nil {
		return err
	}

	app.Board.Subscribe(app.UI.PrintRow)
	if err := app.Controller.Run(ctx); err != nil {
		return app.Handle(err)
	}

	if len(app.Controller.Pending()) > 0 {
		return app.UI.RenderBoard(app.Board.Rows())
	}
	return nil
}

// loadBoard seeds one control per project the caller can see.
func loadBoard(ctx context.Context, app *AppContext) error {
	projects, err := app.API.Projects(ctx, app.Scope())
	if err != nil {
		return err
	}
	for _, p := range projects {
		var report *reportjob.Artifact
		if p.HasReport {
			report = &reportjob.Artifact{Name: p.ReportName}
		}
		app.Board.Load(p.Job(), report)
		if p.InProcess {
			app.Board.SetGenerating(p.Job())
		}
	}
	return nil
}
