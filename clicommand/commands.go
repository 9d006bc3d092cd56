package clicommand

import "github.com/urfave/cli"

const (
	categoryAgent    = "Agent commands"
	categoryInternal = "Internal commands, not intended to be run by users"
)

// Commands is the full set of subcommands sci-agent's main package installs
// on its urfave/cli App. Unlike the teacher's several dozen job-side
// subcommands (artifact, meta-data, pipeline, oidc, secret, ...), this
// repository's CLI surface is the one the spec names: start the agent,
// stop it, and (internally, invoked by the executor rather than a human)
// bootstrap one session.
var Commands = []cli.Command{
	AgentStartCommand,
	AgentStopCommand,
	BootstrapCommand,
}
