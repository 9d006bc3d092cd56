package clicommand

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli"

	"github.com/sciagent/sci-agent/bootstrap"
	"github.com/sciagent/sci-agent/logger"
	"github.com/sciagent/sci-agent/recipe"
	"github.com/sciagent/sci-agent/session"
)

const bootstrapDescription = `Usage:

    sci-agent bootstrap <job-server-url> <session-id>

Description:

Runs as the recipe-runner subprocess the Agent Worker spawns for one
session: reads the dispatch descriptor from standard input, loads the
Session the Agent Worker already created on disk (rooted at the current
working directory, which the Agent Worker sets to its storage path), looks
up the named recipe in the compiled-in registry, and runs it to completion.

This is an internal command: the Agent Worker invokes it, a human never
runs it directly.`

// BootstrapConfig is the flag/env/file-backed configuration for the
// internal "bootstrap" command.
type BootstrapConfig struct {
	GlobalConfig

	JobServerURL string `cli:"arg:0" validate:"required"`
	SessionID    string `cli:"arg:1" validate:"required"`
}

var BootstrapCommand = cli.Command{
	Name:        "bootstrap",
	Category:    categoryInternal,
	Usage:       "Runs one session's recipe (invoked by the agent, not by users)",
	Description: bootstrapDescription,
	Flags: []cli.Flag{
		ConfigFlag,
		NoColorFlag,
		DebugFlag,
		LogLevelFlag,
	},
	Action: newCommand(func(cc commandConfig[BootstrapConfig]) {
		os.Exit(runBootstrap(context.Background(), cc.config, cc.logger))
	}),
}

func runBootstrap(ctx context.Context, cfg BootstrapConfig, l logger.Logger) int {
	desc, err := bootstrap.ReadDescriptor(os.Stdin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sci-agent bootstrap: %s\n", err)
		return 1
	}

	root, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "sci-agent bootstrap: determine working directory: %s\n", err)
		return 1
	}
	sessions := session.NewStore(root)

	code, err := bootstrap.Run(ctx, cfg.JobServerURL, recipe.DefaultRegistry, sessions, desc, l)
	if err != nil {
		l.Error("bootstrap: %v", err)
	}
	return code
}
