package clicommand

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/urfave/cli"

	sciagent "github.com/sciagent/sci-agent/agent"
	"github.com/sciagent/sci-agent/logger"
	"github.com/sciagent/sci-agent/version"
)

const startDescription = `Usage:

    sci-agent start [options...] <job-server-url>

Description:

Starts the agent: registers with the job server, then waits for a single
session at a time to be dispatched to it. Each session runs in its own
recipe-runner subprocess, with its own workspace, logfile, and fan-out to
other agents for any step marked asynchronous.

Example:

    $ sci-agent start --nick ci-runner-1 https://job-server.example.com`

// AgentStartConfig is the flag/env/file-backed configuration for the
// "start" command, generalised from the teacher's much larger
// AgentStartConfig down to the fields the spec's "Agent configuration" data
// model actually names.
type AgentStartConfig struct {
	GlobalConfig

	JobServerURL string `cli:"arg:0" validate:"required"`

	Nick string `cli:"nick"`
	Port int    `cli:"port"`
	Path string `cli:"path" normalize:"filepath" validate:"required"`
}

var AgentStartCommand = cli.Command{
	Name:        "start",
	Category:    categoryAgent,
	Usage:       "Starts the agent",
	Description: startDescription,
	Flags: []cli.Flag{
		ConfigFlag,
		NoColorFlag,
		DebugFlag,
		LogLevelFlag,
		cli.StringFlag{
			Name:   "nick",
			Usage:  "A human-readable nickname this agent registers under",
			EnvVar: "SCI_AGENT_NICK",
		},
		cli.IntFlag{
			Name:   "port",
			Value:  sciagent.DefaultPort,
			Usage:  "The port the /dispatch HTTP endpoint listens on",
			EnvVar: "SCI_AGENT_PORT",
		},
		cli.StringFlag{
			Name:   "path",
			Usage:  "Where the agent keeps session state (workspaces, logs, its node identity)",
			EnvVar: "SCI_AGENT_PATH",
		},
	},
	Action: newCommand(func(cc commandConfig[AgentStartConfig]) {
		if err := start(context.Background(), cc.config, cc.logger); err != nil {
			os.Exit(PrintMessageAndReturnExitCode(err))
		}
	}),
}

func start(ctx context.Context, cfg AgentStartConfig, l logger.Logger) error {
	if cfg.Nick == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("determine default nick: %w", err)
		}
		cfg.Nick = hostname
	}

	if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
		return fmt.Errorf("create storage path %q: %w", cfg.Path, err)
	}

	configPath := filepath.Join(cfg.Path, "config.ini")
	nodeID, err := sciagent.LoadOrCreateNodeIdentity(configPath)
	if err != nil {
		return fmt.Errorf("load or create node identity: %w", err)
	}

	conf := sciagent.Configuration{
		NodeID:       nodeID,
		Nickname:     cfg.Nick,
		Port:         cfg.Port,
		StoragePath:  cfg.Path,
		JobServerURL: cfg.JobServerURL,
		ConfigPath:   configPath,
	}

	al := l.WithFields(
		logger.StringField("agent", conf.Nickname),
		logger.StringField("node_id", conf.NodeID),
	)
	al.Notice("Starting sci-agent v%s (node %s) on port %d", version.Version(), conf.NodeID, conf.Port)

	pidFile := filepath.Join(cfg.Path, "sci-agent.pid")
	if err := writePIDFile(pidFile); err != nil {
		al.Warn("Could not write PID file %q: %v", pidFile, err)
	} else {
		defer os.Remove(pidFile) //nolint:errcheck
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		al.Notice("Received signal %v, shutting down", sig)
		cancel()
	}()

	a := sciagent.New(conf, al)
	if err := a.Start(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("agent: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}
