package clicommand

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/urfave/cli"

	"github.com/sciagent/sci-agent/logger"
)

const stopDescription = `Usage:

    sci-agent stop [options...]

Description:

Stops a running agent on this machine: reads the PID file written by
"sci-agent start --path <path>" and sends it SIGTERM, or SIGKILL when
--force is given. On SIGTERM the agent cancels its work and exits,
interrupting any currently running session; it does not wait for that
session to finish.

Example:

    # Stop the agent with SIGTERM
    $ sci-agent stop --path /var/lib/sci-agent

    # Kill the agent process with SIGKILL
    $ sci-agent stop --path /var/lib/sci-agent --force`

// AgentStopConfig is the flag/env/file-backed configuration for the "stop"
// command.
type AgentStopConfig struct {
	GlobalConfig

	Path  string `cli:"path" normalize:"filepath" validate:"required"`
	Force bool   `cli:"force"`
}

var AgentStopCommand = cli.Command{
	Name:        "stop",
	Category:    categoryAgent,
	Usage:       "Stops a locally running agent",
	Description: stopDescription,
	Flags: []cli.Flag{
		ConfigFlag,
		NoColorFlag,
		DebugFlag,
		LogLevelFlag,
		cli.StringFlag{
			Name:   "path",
			Usage:  "The --path the running agent was started with",
			EnvVar: "SCI_AGENT_PATH",
		},
		cli.BoolFlag{
			Name:  "force",
			Usage: "Send SIGKILL instead of SIGTERM (default: false)",
		},
	},
	Action: newCommand(func(cc commandConfig[AgentStopConfig]) {
		if err := stop(cc.config, cc.logger); err != nil {
			os.Exit(PrintMessageAndReturnExitCode(err))
		}
	}),
}

func stop(cfg AgentStopConfig, l logger.Logger) error {
	pidFile := filepath.Join(cfg.Path, "sci-agent.pid")

	raw, err := os.ReadFile(pidFile)
	if err != nil {
		return fmt.Errorf("read PID file %q: %w", pidFile, err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return fmt.Errorf("parse PID file %q: %w", pidFile, err)
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process %d: %w", pid, err)
	}

	sig := syscall.SIGTERM
	if cfg.Force {
		sig = syscall.SIGKILL
	}
	if err := proc.Signal(sig); err != nil {
		return fmt.Errorf("signal process %d: %w", pid, err)
	}

	l.Info("Sent %v to agent process %d", sig, pid)
	return nil
}
