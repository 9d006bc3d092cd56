package recipe

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sciagent/sci-agent/artifact"
	"github.com/sciagent/sci-agent/environment"
	"github.com/sciagent/sci-agent/eventlog"
	"github.com/sciagent/sci-agent/logger"
	"github.com/sciagent/sci-agent/process"
)

// JobServerClient is the subset of *api.Client the recipe engine needs to
// fan work out to the pool and join the results. Declared locally, as
// eventlog.poster is, so this package doesn't need to import api (which
// would otherwise pull the whole HTTP client surface in just to dispatch
// and poll two endpoints).
type JobServerClient interface {
	NewRequest(ctx context.Context, method, path string, opts, body any) (*http.Request, error)
	Do(req *http.Request, v any) (*http.Response, error)
}

// Config bundles everything an Invocation needs beyond the recipe itself:
// the session it is running in, where to send events and sub-session
// dispatches, and the build identifiers every environment carries.
type Config struct {
	SessionID  string
	Workspace  string
	Env        *environment.Environment
	JobServer  JobServerClient
	Sink       eventlog.Sink
	Artifacts  *artifact.Store
	Logger     logger.Logger
	BuildUUID  string
	BuildName  string
	SSURL      string
	RecipeName string
}

// Invocation is the live state of one recipe execution within a session: it
// owns the Environment, the arena of AsyncJobs its steps have fanned out,
// and the stack of "current step" frames used to scope each step's join to
// only the children it spawned.
type Invocation struct {
	SessionID  string
	Workspace  string
	Env        *environment.Environment
	JobServer  JobServerClient
	Sink       eventlog.Sink
	Artifacts  *artifact.Store
	Logger     logger.Logger
	BuildUUID  string
	BuildName  string
	SSURL      string
	RecipeName string

	builder *Builder

	jobs    map[int]*asyncJob
	jobSeq  int
	frames  []*frame
	nowFunc func() time.Time
}

// frame tracks the AsyncJobs spawned during one step invocation's body, so
// that step's post-body join only waits on its own children and not its
// siblings' or ancestors'.
type frame struct {
	children []*asyncJob
}

// NewInvocation returns an Invocation ready to run builder's entry points
// within the session described by conf.
func NewInvocation(builder *Builder, conf Config) *Invocation {
	return &Invocation{
		SessionID:  conf.SessionID,
		Workspace:  conf.Workspace,
		Env:        conf.Env,
		JobServer:  conf.JobServer,
		Sink:       conf.Sink,
		Artifacts:  conf.Artifacts,
		Logger:     conf.Logger,
		BuildUUID:  conf.BuildUUID,
		BuildName:  conf.BuildName,
		SSURL:      conf.SSURL,
		RecipeName: conf.RecipeName,
		builder:    builder,
		jobs:       make(map[int]*asyncJob),
	}
}

func (inv *Invocation) now() time.Time {
	if inv.nowFunc != nil {
		return inv.nowFunc()
	}
	return time.Now()
}

func (inv *Invocation) emit(ctx context.Context, ev eventlog.Event) {
	if inv.Sink == nil {
		return
	}
	if err := inv.Sink.Emit(ctx, inv.SessionID, ev); err != nil && inv.Logger != nil {
		inv.Logger.Warn("recipe: failed to emit %s event: %v", ev.Type(), err)
	}
}

func (inv *Invocation) pushChild(job *asyncJob) {
	if len(inv.frames) == 0 {
		// An async step is only dispatched from inside a running step
		// body, and callStepDef pushes a frame around every body
		// (including the entry point's), so this should not happen in
		// practice.
		return
	}
	top := inv.frames[len(inv.frames)-1]
	top.children = append(top.children, job)
}

// resolveDefaults runs every registered default resolver whose name is
// absent from the environment, in registration order, storing each result
// under its name.
func (inv *Invocation) resolveDefaults(ctx context.Context) error {
	for _, d := range inv.builder.defaults {
		if inv.Env.Contains(d.name) {
			continue
		}
		val, err := d.fn(inv)
		if err != nil {
			return fmt.Errorf("recipe: resolve default %q: %w", d.name, err)
		}
		if err := inv.Env.Set(d.name, val); err != nil {
			return fmt.Errorf("recipe: set default %q: %w", d.name, err)
		}
	}
	return nil
}

// Run resolves defaults then invokes entryName (either "main" or a named
// step) as the session's entry point, emitting job-begun/job-done/job-error
// around the whole run. It is the single call bootstrap makes into the
// engine.
func (inv *Invocation) Run(ctx context.Context, entryName string, args []any, kwargs map[string]any) (any, error) {
	def, ok := inv.builder.step(entryName)
	if !ok {
		return nil, &ErrEntryPointMissing{Name: entryName}
	}

	inv.emit(ctx, eventlog.JobBegun{})

	if err := inv.resolveDefaults(ctx); err != nil {
		inv.emit(ctx, eventlog.JobErrorThrown{What: err.Error()})
		return nil, err
	}

	result, err := inv.callStepDef(ctx, def, Context{Args: args, Kwargs: kwargs}, true)
	if err != nil {
		inv.emit(ctx, eventlog.JobErrorThrown{What: err.Error()})
		return nil, err
	}

	inv.emit(ctx, eventlog.JobDone{})
	return result, nil
}

// Step is the call a running step body makes to invoke another registered
// step by name. When name refers to an async step and this call is not
// itself the session's entry-point invocation, the step's body does not run
// here: Step instead fans it out to a remote agent and returns a *Handle.
func (inv *Invocation) Step(ctx context.Context, name string, args ...any) (any, error) {
	return inv.StepWithKwargs(ctx, name, args, nil)
}

// StepWithKwargs is Step, additionally passing keyword arguments through to
// the step body (or the dispatch descriptor, for a fanned-out async step).
func (inv *Invocation) StepWithKwargs(ctx context.Context, name string, args []any, kwargs map[string]any) (any, error) {
	def, ok := inv.builder.step(name)
	if !ok {
		return nil, &ErrEntryPointMissing{Name: name}
	}
	return inv.callStepDef(ctx, def, Context{Args: args, Kwargs: kwargs}, false)
}

// callStepDef implements the "Step invocation" procedure from the spec: it
// either runs def's body locally (emitting step-begun/step-done/joins
// around it) or, for an async step not running as the entry point, fans it
// out and returns a Handle.
func (inv *Invocation) callStepDef(ctx context.Context, def *StepDef, call Context, isEntryPoint bool) (any, error) {
	if def.Async && !isEntryPoint {
		return inv.dispatchAsync(ctx, def, call)
	}

	start := inv.now()
	inv.emit(ctx, eventlog.StepBegun{Name: def.Name, Args: call.Args, Kwargs: call.Kwargs})
	if inv.Logger != nil {
		inv.Logger.Info("%s", formatBanner(def.Name))
	}

	inv.frames = append(inv.frames, &frame{})

	result, bodyErr := def.Fn(inv, call)

	f := inv.frames[len(inv.frames)-1]
	inv.frames = inv.frames[:len(inv.frames)-1]

	if running := stillRunning(f.children); len(running) > 0 {
		joinStart := inv.now()
		inv.emit(ctx, eventlog.StepJoinBegun{Name: def.Name, TimeMs: joinStart.Sub(start).Milliseconds()})

		for _, job := range running {
			h := &Handle{inv: inv, job: job}
			if _, err := h.Await(ctx); err != nil && bodyErr == nil {
				bodyErr = err
			}
		}

		joinElapsed := inv.now().Sub(joinStart)
		if inv.Logger != nil {
			inv.Logger.Info("%s joined %s", def.Name, formatElapsed(joinElapsed))
		}
		inv.emit(ctx, eventlog.StepJoinDone{Name: def.Name, TimeMs: joinElapsed.Milliseconds()})
	}

	elapsed := inv.now().Sub(start)
	if inv.Logger != nil {
		inv.Logger.Info("%s %s", formatBanner(def.Name), formatElapsed(elapsed))
	}
	inv.emit(ctx, eventlog.StepDone{Name: def.Name, TimeMs: elapsed.Milliseconds()})

	if bodyErr != nil {
		return nil, bodyErr
	}
	return result, nil
}

func stillRunning(children []*asyncJob) []*asyncJob {
	var running []*asyncJob
	for _, j := range children {
		if j.state == asyncJobRunning {
			running = append(running, j)
		}
	}
	return running
}

// Template substitutes {{NAME}} placeholders in s against overrides first,
// then the current environment, repeating to a fixed point.
func (inv *Invocation) Template(s string, overrides map[string]any) (string, error) {
	return substituteString(s, overrides, inv.Env)
}

// TemplateValue is Template, generalized to lists and maps of strings
// (substitution is applied element-wise).
func (inv *Invocation) TemplateValue(v any, overrides map[string]any) (any, error) {
	return substituteValue(v, overrides, inv.Env)
}

// SetDescription records the build's human-facing description and emits a
// set-description event. description is templated against the current
// environment first, same as any other step argument.
func (inv *Invocation) SetDescription(ctx context.Context, description string) error {
	resolved, err := inv.Template(description, nil)
	if err != nil {
		return err
	}
	inv.emit(ctx, eventlog.SetDescription{Description: resolved})
	return nil
}

// SetBuildID sets the user-facing SCI_BUILD_ID parameter and emits a
// set-build-id event. SCI_BUILD_ID is the one reserved name that is
// writable, so Set never fails here.
func (inv *Invocation) SetBuildID(ctx context.Context, buildID string) error {
	if err := inv.Env.Set(environment.BuildID, buildID); err != nil {
		return err
	}
	inv.emit(ctx, eventlog.SetBuildID{BuildID: buildID})
	return nil
}

// AddArtifact uploads local (relative to the session workspace unless
// absolute) to the storage service and emits an artifact-added event on
// success.
func (inv *Invocation) AddArtifact(ctx context.Context, local, remote, description string) (string, error) {
	art, url, err := inv.Artifacts.Add(ctx, local, remote)
	if err != nil {
		return "", err
	}
	inv.emit(ctx, eventlog.ArtifactAdded{Filename: art.Filename, URL: url, Description: description})
	return url, nil
}

// RunCommand invokes command under a POSIX shell with the session workspace
// as CWD, stdin from /dev/null, and stdout/stderr written to the agent's own
// stdout/stderr with each line prefixed by the session id. A non-zero exit
// returns *CommandFailed.
func (inv *Invocation) RunCommand(ctx context.Context, command string) error {
	devnull, err := openDevNull()
	if err != nil {
		return fmt.Errorf("recipe: open /dev/null: %w", err)
	}
	defer devnull.Close()

	l := inv.Logger
	if l == nil {
		l = logger.Discard
	}

	prefix := func() string { return "[" + inv.SessionID + "] " }
	p := process.New(l, process.Config{
		Path:   "/bin/sh",
		Args:   []string{"-c", command},
		Dir:    inv.Workspace,
		Stdin:  devnull,
		Stdout: process.NewPrefixer(stdout(), prefix),
		Stderr: process.NewPrefixer(stderr(), prefix),
	})

	if err := p.Run(ctx); err != nil {
		return fmt.Errorf("recipe: run %q: %w", command, err)
	}
	if code := p.WaitStatus().ExitStatus(); code != 0 {
		return &CommandFailed{Code: code, Command: command}
	}
	return nil
}
