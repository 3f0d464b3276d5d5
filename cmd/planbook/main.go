// Package main provides the planbook command-line interface.
package main

import (
	"context"
	"os"

	"github.com/planbook/planbook/pkg/log"
	cli "github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:                  "planbook",
		Usage:                 "Create, manage, and execute plans",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.BoolFlag{
				Name:    "json-log",
				Usage:   "Emit JSON log records",
				Sources: cli.EnvVars("JSON_LOG"),
			},
		},
		Commands: []*cli.Command{
			apiCommand(),
			runCommand(),
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		log.WithModule("main").Error("planbook exited with error", "error", err)
		os.Exit(1)
	}
}
