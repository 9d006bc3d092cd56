package clicommand

import (
	"fmt"
	"os"

	"github.com/oleiade/reflections"
	"github.com/urfave/cli"

	"github.com/sciagent/sci-agent/logger"
)

// GlobalConfig holds the flags every subcommand accepts, embedded into each
// command's own config struct the way the teacher's own GlobalConfig is
// embedded into each of its dozen command configs.
type GlobalConfig struct {
	Config   string `cli:"config"`
	Debug    bool   `cli:"debug"`
	LogLevel string `cli:"log-level"`
	NoColor  bool   `cli:"no-color"`
}

var (
	DebugFlag = cli.BoolFlag{
		Name:   "debug",
		Usage:  "Enable debug mode (default: false)",
		EnvVar: "SCI_AGENT_DEBUG",
	}

	LogLevelFlag = cli.StringFlag{
		Name:   "log-level",
		Value:  "notice",
		Usage:  "Set the log level. Allowed values are: debug, info, notice, warn, error, fatal",
		EnvVar: "SCI_AGENT_LOG_LEVEL",
	}

	NoColorFlag = cli.BoolFlag{
		Name:   "no-color",
		Usage:  "Don't show colors in logging (default: false)",
		EnvVar: "SCI_AGENT_NO_COLOR",
	}

	ConfigFlag = cli.StringFlag{
		Name:   "config",
		Usage:  "Path to a configuration file",
		EnvVar: "SCI_AGENT_CONFIG",
	}
)

func globalFlags() []cli.Flag {
	return []cli.Flag{
		ConfigFlag,
		NoColorFlag,
		DebugFlag,
		LogLevelFlag,
	}
}

// DefaultConfigFilePaths returns the locations searched for a config file
// when --config is not given.
func DefaultConfigFilePaths() []string {
	paths := []string{"/etc/sci-agent/config.ini"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append([]string{home + "/.sci-agent/config.ini"}, paths...)
	}
	return paths
}

// CreateLogger builds a Logger from the NoColor/LogLevel/Debug fields
// reflections finds on cfg, the same struct-tag-driven approach the loader
// itself uses to populate cfg in the first place.
func CreateLogger(cfg any) logger.Logger {
	printer := logger.NewTextPrinter(os.Stderr)
	printer.IsPrefixFn = func(field logger.Field) bool {
		switch field.Key() {
		case "agent", "session":
			return true
		default:
			return false
		}
	}

	noColor, err := reflections.GetField(cfg, "NoColor")
	printer.Colors = !(err == nil && noColor == true)

	l := logger.NewConsoleLogger(printer, os.Exit)
	l.SetLevel(logger.NOTICE)

	if err := handleLogLevelFlag(l, cfg); err != nil {
		l.Warn("Error when setting log level: %v. Defaulting log level to NOTICE", err)
	}

	if debug, err := reflections.GetField(cfg, "Debug"); err == nil {
		if d, ok := debug.(bool); ok && d {
			l.SetLevel(logger.DEBUG)
		}
	}

	return l
}

func handleLogLevelFlag(l logger.Logger, cfg any) error {
	logLevel, err := reflections.GetField(cfg, "LogLevel")
	if err != nil {
		return err
	}
	llStr, ok := logLevel.(string)
	if !ok {
		return fmt.Errorf("log level %v (%T) couldn't be cast to string", logLevel, logLevel)
	}
	level, err := logger.LevelFromString(llStr)
	if err != nil {
		return err
	}
	l.SetLevel(level)
	return nil
}
