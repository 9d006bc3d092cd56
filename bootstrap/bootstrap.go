// Package bootstrap is the glue that turns one dispatched session into a
// Recipe Engine invocation. It runs as the recipe-runner subprocess the
// Agent Worker spawns for every session: read the descriptor piped to
// stdin, load the Session the parent already created on disk, look up the
// named recipe, build the Environment, run it, and persist the result.
package bootstrap

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/sciagent/sci-agent/api"
	"github.com/sciagent/sci-agent/artifact"
	"github.com/sciagent/sci-agent/environment"
	"github.com/sciagent/sci-agent/eventlog"
	"github.com/sciagent/sci-agent/logger"
	"github.com/sciagent/sci-agent/recipe"
	"github.com/sciagent/sci-agent/session"
)

// defaultEntryPoint is "main", the entry point run when a dispatch
// descriptor names no step explicitly (every top-level build).
const defaultEntryPoint = "main"

// ReadDescriptor decodes the dispatch descriptor the Agent Worker pipes
// into this process's standard input.
func ReadDescriptor(r io.Reader) (*Descriptor, error) {
	var desc Descriptor
	if err := json.NewDecoder(r).Decode(&desc); err != nil {
		return nil, fmt.Errorf("bootstrap: decode descriptor: %w", err)
	}
	return &desc, nil
}

// Run executes desc's recipe to completion inside the Session desc
// identifies, and returns the process exit code the Agent Worker should
// observe: 0 on success, non-zero on any failure to load, look up, or run
// the recipe. Once the Session has been loaded, it is updated and saved
// before Run returns, win or lose, so the parent can classify the run
// without inspecting the error itself; if loading fails, nothing is saved.
func Run(ctx context.Context, jobServerURL string, registry *recipe.Registry, sessions *session.Store, desc *Descriptor, l logger.Logger) (int, error) {
	if l == nil {
		l = logger.Discard
	}

	sess, err := sessions.Load(desc.SessionID)
	if err != nil {
		return 1, fmt.Errorf("bootstrap: load session %q: %w", desc.SessionID, err)
	}

	builder, ok := registry.Lookup(desc.Recipe)
	if !ok {
		err := fmt.Errorf("bootstrap: recipe %q is not registered", desc.Recipe)
		sess.Finish(1, nil)
		saveErr := sess.Save()
		if saveErr != nil {
			l.Warn("bootstrap: save session %q: %v", sess.ID, saveErr)
		}
		return 1, err
	}

	env := buildEnvironment(desc)
	entryName := defaultEntryPoint
	if desc.RunInfo != nil && desc.RunInfo.StepFun != "" {
		entryName = desc.RunInfo.StepFun
	}

	jobServer := api.NewClient(l, api.Config{Endpoint: jobServerURL})
	storage := api.NewClient(l, api.Config{Endpoint: desc.SSURL})

	inv := recipe.NewInvocation(builder, recipe.Config{
		SessionID: desc.SessionID,
		Workspace: sess.Workspace,
		Env:       env,
		JobServer: jobServer,
		Sink:      &eventlog.HTTPSink{Client: jobServer},
		Artifacts: &artifact.Store{Client: storage, BuildUUID: desc.BuildUUID, Workspace: sess.Workspace},
		Logger:    l,
		BuildUUID: desc.BuildUUID,
		BuildName: desc.BuildName,
		SSURL:     desc.SSURL,
		RecipeName: desc.Recipe,
	})

	sess.State = session.StateRunning
	if err := sess.Save(); err != nil {
		l.Warn("bootstrap: save session %q: %v", sess.ID, err)
	}

	result, runErr := inv.Run(ctx, entryName, nil, nil)

	code := 0
	if runErr != nil {
		code = 1
	}
	sess.Finish(code, result)
	if err := sess.Save(); err != nil {
		return code, fmt.Errorf("bootstrap: save session %q: %w", sess.ID, err)
	}
	return code, runErr
}

// buildEnvironment constructs the Environment a recipe runs with: an
// inherited Environment for a fanned-out sub-session, or a fresh one built
// from the build's parameters and reserved identifiers for a top-level
// build.
func buildEnvironment(desc *Descriptor) *environment.Environment {
	if desc.RunInfo != nil && desc.RunInfo.Env != nil {
		return desc.RunInfo.Env
	}
	return environment.NewBuildEnvironment(desc.Parameters, desc.BuildUUID, desc.BuildName)
}
