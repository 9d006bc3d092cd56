// Package eventlog implements the tagged structured-log-event taxonomy a
// build streams to the job server as it runs. It is named eventlog, rather
// than the original's "slog", to avoid colliding with the standard
// library's log/slog package.
package eventlog

import "encoding/json"

// Event is any record that can be serialized to the job server's
// /slog/<session_id> endpoint.
type Event interface {
	// Type is the wire discriminator, e.g. "step-begun".
	Type() string
	// Params is the event-specific payload, omitted from the wire form when
	// empty (matching the original's `if self.params:`).
	Params() any
}

// wireEvent is the {type, params} envelope every Event serializes to.
type wireEvent struct {
	Type   string `json:"type"`
	Params any    `json:"params,omitempty"`
}

// Marshal serializes ev to its wire form.
func Marshal(ev Event) ([]byte, error) {
	return json.Marshal(wireEvent{Type: ev.Type(), Params: ev.Params()})
}

// JobBegun is emitted once per session, when its entry point (main or a
// named step) starts running.
type JobBegun struct{}

func (JobBegun) Type() string { return "job-begun" }
func (JobBegun) Params() any  { return nil }

// JobDone is emitted once per session, when its entry point returns
// successfully.
type JobDone struct{}

func (JobDone) Type() string { return "job-done" }
func (JobDone) Params() any  { return nil }

// JobErrorThrown is emitted when a step or command fails and aborts the
// build.
type JobErrorThrown struct {
	What string
}

func (JobErrorThrown) Type() string { return "job-error" }
func (e JobErrorThrown) Params() any {
	return map[string]any{"what": e.What}
}

// StepBegun is emitted when a step (sync or the entry point) starts.
type StepBegun struct {
	Name     string
	Args     []any
	Kwargs   map[string]any
	LogStart int64
}

func (StepBegun) Type() string { return "step-begun" }
func (e StepBegun) Params() any {
	return map[string]any{
		"name":      e.Name,
		"args":      e.Args,
		"kwargs":    e.Kwargs,
		"log_start": e.LogStart,
	}
}

// StepDone is emitted when a step's body (and any joins it triggered) has
// completed.
type StepDone struct {
	Name     string
	TimeMs   int64
	LogStart int64
	LogEnd   int64
}

func (StepDone) Type() string { return "step-done" }
func (e StepDone) Params() any {
	return map[string]any{
		"name":      e.Name,
		"time_ms":   e.TimeMs,
		"log_start": e.LogStart,
		"log_end":   e.LogEnd,
	}
}

// StepJoinBegun is emitted when a step with still-running async children
// starts waiting for them.
type StepJoinBegun struct {
	Name   string
	TimeMs int64
}

func (StepJoinBegun) Type() string { return "step-join-begun" }
func (e StepJoinBegun) Params() any {
	return map[string]any{"name": e.Name, "time_ms": e.TimeMs}
}

// StepJoinDone is emitted once all of a step's async children have been
// joined.
type StepJoinDone struct {
	Name   string
	TimeMs int64
}

func (StepJoinDone) Type() string { return "step-join-done" }
func (e StepJoinDone) Params() any {
	return map[string]any{"name": e.Name, "time_ms": e.TimeMs}
}

// AsyncJoined is emitted when a parent step's AsyncJob handle finishes
// waiting for its remote child session.
type AsyncJoined struct {
	SessionNo int
	TimeMs    int64
}

func (AsyncJoined) Type() string { return "async-joined" }
func (e AsyncJoined) Params() any {
	return map[string]any{"session_no": e.SessionNo, "time_ms": e.TimeMs}
}

// SetDescription is emitted when a recipe sets the build's human
// description.
type SetDescription struct {
	Description string
}

func (SetDescription) Type() string { return "set-description" }
func (e SetDescription) Params() any {
	return map[string]any{"description": e.Description}
}

// SetBuildID is emitted when a recipe sets the user-facing build id.
type SetBuildID struct {
	BuildID string
}

func (SetBuildID) Type() string { return "set-build-id" }
func (e SetBuildID) Params() any {
	return map[string]any{"build_id": e.BuildID}
}

// ArtifactAdded is emitted after an artifact upload succeeds.
type ArtifactAdded struct {
	Filename    string
	URL         string
	Description string
}

func (ArtifactAdded) Type() string { return "artifact-added" }
func (e ArtifactAdded) Params() any {
	p := map[string]any{"filename": e.Filename, "url": e.URL}
	if e.Description != "" {
		p["description"] = e.Description
	}
	return p
}
