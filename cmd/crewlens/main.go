package main

import (
	"context"
	"fmt"
	"os"

	cliframework "github.com/urfave/cli/v3"

	"github.com/crewlens/crewlens/internal/cli"
)

const version = "0.1.0-dev"

func main() {
	app := &cliframework.Command{
		Name:    "crewlens",
		Usage:   "Live visualization bridge for agent orchestration backends",
		Version: version,
		Commands: []*cliframework.Command{
			cli.ServeCommand(),
			cli.DoctorCommand(version),
			cli.TraceCommand(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "❌ error: %v\n", err)
		os.Exit(1)
	}
}
