package environment

import (
	"os"
	"strings"
	"time"
)

// Reserved parameter names, defined by Bootstrap when it constructs a
// fresh Environment for a new build (as opposed to deserializing one handed
// down from a parent session).
const (
	BuildUUID = "SCI_BUILD_UUID"
	BuildID   = "SCI_BUILD_ID"
	BuildName = "SCI_BUILD_NAME"
	Hostname  = "SCI_HOSTNAME"
	DateTime  = "SCI_DATETIME"
	JobKey    = "SCI_JOB_KEY"
)

// DateTimeFormat matches the original's strftime("%Y-%m-%d_%H-%M-%S").
const DateTimeFormat = "2006-01-02_15-04-05"

// NewBuildEnvironment constructs the Environment for a fresh top-level
// build: the caller-supplied parameters plus the reserved read-only
// identifiers. buildID is user-writable after construction (a recipe may
// call Set on it); the rest are read-only.
func NewBuildEnvironment(parameters map[string]any, buildUUID, buildName string) *Environment {
	env := New()
	for k, v := range parameters {
		env.values.Set(k, v)
	}

	env.Define(BuildUUID, buildUUID, "The unique build identifier", true, "initial environment", true)
	env.Define(BuildID, buildName, "The user-defined build identifier", false, "initial environment", true)
	env.Define(BuildName, buildName, "The unique build name", true, "initial environment", true)

	hostname, err := os.Hostname()
	if err != nil {
		hostname = ""
	}
	hostname = strings.TrimSuffix(hostname, ".local")
	env.Define(Hostname, hostname, "Host Name", true, "initial environment", true)

	env.Define(DateTime, time.Now().Format(DateTimeFormat), "The current date and time", true, "initial environment", true)

	if jobKey := os.Getenv(JobKey); jobKey != "" {
		env.values.Set(JobKey, jobKey)
	}

	return env
}
