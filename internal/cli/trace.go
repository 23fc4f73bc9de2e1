package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/crewlens/crewlens/internal/backend"
	"github.com/crewlens/crewlens/internal/traceview"
)

// TraceCommand returns the CLI command definition for the 'trace'
// subcommand, a terminal view of one execution's traces without running
// the web UI.
func TraceCommand() *cli.Command {
	return &cli.Command{
		Name:      "trace",
		Usage:     "Print execution traces as ASCII waterfalls",
		ArgsUsage: "EXECUTION_ID",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to a config file (overrides discovery)",
			},
			&cli.StringFlag{
				Name:  "backend-url",
				Usage: "Backend REST base URL",
			},
			&cli.IntFlag{
				Name:  "width",
				Usage: "Output width in columns",
				Value: 100,
			},
		},
		Action: runTrace,
	}
}

func runTrace(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return fmt.Errorf("usage: crewlens trace EXECUTION_ID")
	}
	executionID := cmd.Args().First()

	cfg, err := LoadEffectiveConfig(cmd.String("config"))
	if err != nil {
		return err
	}
	if u := cmd.String("backend-url"); u != "" {
		cfg.BackendURL = u
	}

	client := backend.NewClient(cfg.BackendURL)
	traces, err := client.Traces(ctx, executionID)
	if err != nil {
		return err
	}
	if len(traces) == 0 {
		fmt.Printf("No traces recorded for %s\n", executionID)
		return nil
	}

	now := time.Now()
	for i, tr := range traces {
		if i > 0 {
			fmt.Println()
		}
		fmt.Printf("=== %s (%s, %s)\n", tr.Name, tr.ID, tr.Status)
		fmt.Print(traceview.Waterfall(tr.Spans, cmd.Int("width"), now))
	}
	return nil
}
