package recipe

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sciagent/sci-agent/environment"
	"github.com/sciagent/sci-agent/eventlog"
)

// asyncJobState is the lifecycle of one fanned-out sub-session, from the
// parent invocation's point of view.
type asyncJobState string

const (
	asyncJobPrepared asyncJobState = "PREPARED"
	asyncJobRunning  asyncJobState = "RUNNING"
	asyncJobDone     asyncJobState = "DONE"
)

// asyncJob is a dispatched sub-session, owned by the step invocation that
// spawned it. It is removed from the invocation's arena once its result
// has been fetched, whether by an explicit Await or by its owning step's
// post-body join.
type asyncJob struct {
	id        int
	stepRef   string
	args      []any
	kwargs    map[string]any
	state     asyncJobState
	sessionID string
	tsStart   time.Time
	result    any
	output    any
}

// Handle is the opaque value CallStep returns to a step body when it calls
// an async step: a reference to the remote sub-session, awaitable once.
type Handle struct {
	inv *Invocation
	job *asyncJob
}

// dispatchRequest is the descriptor POSTed to <job_server>/agent/dispatch
// to start a new sub-session running stepRef as its entry point.
type dispatchRequest struct {
	ParentSessionID string                 `json:"parent_session_id"`
	StepRef         string                 `json:"step_ref"`
	Args            []any                  `json:"args"`
	Kwargs          map[string]any         `json:"kwargs"`
	Env             *environment.Environment `json:"env"`
	BuildUUID       string                 `json:"build_uuid"`
	BuildName       string                 `json:"build_name"`
	SSURL           string                 `json:"ss_url"`
	Recipe          string                 `json:"recipe"`
}

type dispatchResponse struct {
	SessionID string `json:"session_id"`
}

type resultResponse struct {
	Output any    `json:"output"`
	Result string `json:"result"`
}

// dispatchAsync snapshots the current environment and the call arguments
// into a dispatch descriptor, POSTs it to the job server, and returns a
// Handle for the new sub-session in the RUNNING state.
func (inv *Invocation) dispatchAsync(ctx context.Context, def *StepDef, call Context) (*Handle, error) {
	inv.jobSeq++
	job := &asyncJob{
		id:      inv.jobSeq,
		stepRef: def.Name,
		args:    call.Args,
		kwargs:  call.Kwargs,
		state:   asyncJobPrepared,
		tsStart: inv.now(),
	}

	req := dispatchRequest{
		ParentSessionID: inv.SessionID,
		StepRef:         def.Name,
		Args:            call.Args,
		Kwargs:          call.Kwargs,
		Env:             inv.Env,
		BuildUUID:       inv.BuildUUID,
		BuildName:       inv.BuildName,
		SSURL:           inv.SSURL,
		Recipe:          inv.RecipeName,
	}

	httpReq, err := inv.JobServer.NewRequest(ctx, http.MethodPost, "/agent/dispatch", nil, req)
	if err != nil {
		return nil, fmt.Errorf("recipe: build dispatch request for %q: %w", def.Name, err)
	}

	var resp dispatchResponse
	if _, err := inv.JobServer.Do(httpReq, &resp); err != nil {
		return nil, fmt.Errorf("recipe: dispatch %q: %w", def.Name, err)
	}

	job.sessionID = resp.SessionID
	job.state = asyncJobRunning
	inv.jobs[job.id] = job
	inv.pushChild(job)

	return &Handle{inv: inv, job: job}, nil
}

// Await blocks until the remote sub-session referenced by h completes,
// polling the job server's result endpoint, and returns the child
// session's output. Once the result has been fetched, a further call
// returns the recorded output without polling again.
func (h *Handle) Await(ctx context.Context) (any, error) {
	inv, job := h.inv, h.job
	if job.state == asyncJobDone {
		return job.output, nil
	}

	const pollInterval = 2 * time.Second
	for {
		httpReq, err := inv.JobServer.NewRequest(ctx, http.MethodGet, "/agent/result/"+job.sessionID, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("recipe: build result request for session %q: %w", job.sessionID, err)
		}

		var resp resultResponse
		_, err = inv.JobServer.Do(httpReq, &resp)
		switch {
		case err == nil:
			job.state = asyncJobDone
			job.result = resp.Result
			job.output = resp.Output
			delete(inv.jobs, job.id)

			elapsed := inv.now().Sub(job.tsStart)
			inv.emit(ctx, eventlog.AsyncJoined{SessionNo: job.id, TimeMs: elapsed.Milliseconds()})

			if resp.Result == "error" {
				return resp.Output, fmt.Errorf("recipe: async step %q (session %s) failed", job.stepRef, job.sessionID)
			}
			return resp.Output, nil

		default:
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(pollInterval):
				// Not ready yet; poll again.
			}
		}
	}
}
