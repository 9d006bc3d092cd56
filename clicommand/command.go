package clicommand

import (
	"fmt"
	"os"

	"github.com/urfave/cli"

	"github.com/sciagent/sci-agent/cliconfig"
	"github.com/sciagent/sci-agent/logger"
)

// configType enumerates the config structs a command can be loaded into.
// The teacher's version of this constraint spans a dozen command configs;
// this repository only starts or stops an agent and runs its internal
// bootstrap subprocess, so it names just those three.
type configType interface {
	AgentStartConfig | AgentStopConfig | BootstrapConfig
}

// commandConfig bundles everything newCommand loads before handing control
// to a command body: the parsed flags/env/file config, a logger built from
// it, and the loader (for inspecting which config file, if any, was used).
type commandConfig[T configType] struct {
	cliContext   *cli.Context
	config       T
	logger       logger.Logger
	configLoader cliconfig.Loader
}

// newCommand returns a urfave/cli action that loads T from flags, env vars,
// and an optional config file, builds a logger from the result, then calls
// f with the assembled commandConfig.
func newCommand[T configType](f func(cc commandConfig[T])) func(*cli.Context) {
	return func(c *cli.Context) {
		cfg := new(T)
		loader := cliconfig.Loader{
			CLI:                    c,
			Config:                 cfg,
			DefaultConfigFilePaths: DefaultConfigFilePaths(),
		}

		warnings, err := loader.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s\n", err)
			os.Exit(1)
		}

		l := CreateLogger(cfg)
		for _, warning := range warnings {
			l.Warn("%s", warning)
		}

		f(commandConfig[T]{
			cliContext:   c,
			config:       *cfg,
			logger:       l,
			configLoader: loader,
		})
	}
}
