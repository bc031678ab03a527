package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/svaia/api/cmd/reportctl/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "reportctl",
		Usage: "Generate SBOM vulnerability reports and follow running generations",
		Flags: commands.GlobalFlags(),
		Commands: []*cli.Command{
			{
				Name:   "watch",
				Usage:  "Show the project board and poll until running generations finish",
				Action: commands.WatchAction,
			},
			{
				Name:  "generate",
				Usage: "Generate a report for a project and wait for it",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "owner",
						Usage: "Project owner email (defaults to --email)",
					},
					&cli.StringFlag{
						Name:     "project",
						Usage:    "Project name",
						Required: true,
					},
					&cli.BoolFlag{
						Name:    "yes",
						Aliases: []string{"y"},
						Usage:   "Do not ask for confirmation",
					},
					&cli.BoolFlag{
						Name:  "reasoning",
						Usage: "Expand the model reasoning below the report",
					},
				},
				Action: commands.GenerateAction,
			},
			{
				Name:   "status",
				Usage:  "Poll the generation status once and show the stored marker",
				Action: commands.StatusAction,
			},
			{
				Name:  "view",
				Usage: "Show the stored report of a project",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "owner",
						Usage: "Project owner email (defaults to --email)",
					},
					&cli.StringFlag{
						Name:     "project",
						Usage:    "Project name",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "reasoning",
						Usage: "Expand the model reasoning below the report",
					},
					&cli.BoolFlag{
						Name:  "raw",
						Usage: "Print only the raw markdown, as copied to the clipboard",
					},
				},
				Action: commands.ViewAction,
			},
			{
				Name:  "marker",
				Usage: "Inspect the persisted in-flight job marker",
				Commands: []*cli.Command{
					{
						Name:   "show",
						Usage:  "Print the jobs recorded in the marker",
						Action: commands.MarkerShowAction,
					},
					{
						Name:   "clear",
						Usage:  "Remove the marker so new generations can start",
						Action: commands.MarkerClearAction,
					},
				},
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
