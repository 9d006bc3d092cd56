package bootstrap

import "github.com/sciagent/sci-agent/environment"

// Descriptor is the dispatch information the Agent Worker pipes into the
// recipe-runner subprocess's standard input: everything bootstrap needs to
// turn an incoming session into a Recipe Engine invocation. Field names and
// shapes mirror the job server's GET /agent/session/<id> response, since
// the executor forwards that response body through unchanged.
type Descriptor struct {
	SessionID  string                   `json:"session_id"`
	Recipe     string                   `json:"recipe"`
	Parameters map[string]any           `json:"parameters"`
	BuildUUID  string                   `json:"build_uuid"`
	BuildName  string                   `json:"build_name"`
	SSURL      string                   `json:"ss_url"`
	RunInfo    *RunInfo                 `json:"run_info,omitempty"`
}

// RunInfo carries the two things a sub-session's dispatch descriptor adds
// over a fresh top-level build: an Environment inherited from its parent,
// and the name of the step to run as the entry point instead of "main".
type RunInfo struct {
	Env     *environment.Environment `json:"env,omitempty"`
	StepFun string                   `json:"step_fun,omitempty"`
}
