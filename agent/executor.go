package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/sciagent/sci-agent/api"
	"github.com/sciagent/sci-agent/artifact"
	"github.com/sciagent/sci-agent/bootstrap"
	"github.com/sciagent/sci-agent/process"
)

// sessionInfoResponse is the job server's GET /agent/session/<id> response:
// everything the recipe-runner subprocess needs, forwarded to it unchanged
// as its dispatch descriptor.
type sessionInfoResponse struct {
	Recipe     string              `json:"recipe"`
	Parameters map[string]any      `json:"parameters"`
	BuildUUID  string              `json:"build_uuid"`
	BuildName  string              `json:"build_name"`
	SSURL      string              `json:"ss_url"`
	RunInfo    *bootstrap.RunInfo  `json:"run_info"`
}

type availableRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Result    string `json:"result,omitempty"`
	Output    any    `json:"output,omitempty"`
	LogFile   string `json:"log_file,omitempty"`
}

type busyRequest struct {
	SessionID string `json:"session_id"`
}

// executorLoop announces idleness, then runs one session at a time as they
// arrive on the queue, for as long as ctx is live.
func (a *Agent) executorLoop(ctx context.Context) {
	if err := a.sendAvailable(ctx, availableRequest{}); err != nil {
		a.logger.Warn("agent: initial send_available failed: %v", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case sessionID := <-a.queue:
			a.runSession(ctx, sessionID)
		}
	}
}

// runSession is the executor thread's per-session sequence (spec §4.G,
// steps 3-11): fetch session info, create the Session, spawn the
// recipe-runner subprocess, await it, upload its logfile, and report the
// result. The busy sentinel set by handleDispatch is always cleared before
// returning, however the session run ends.
func (a *Agent) runSession(ctx context.Context, sessionID string) {
	defer a.busy.Store(false)

	info, err := a.fetchSessionInfo(ctx, sessionID)
	if err != nil {
		a.logger.Error("agent: fetch session info for %q: %v", sessionID, err)
		a.sendAvailable(ctx, availableRequest{SessionID: sessionID, Result: "error"}) //nolint:errcheck
		return
	}

	sess, err := a.sessions.Create(sessionID)
	if err != nil {
		a.logger.Error("agent: create session %q: %v", sessionID, err)
		a.sendAvailable(ctx, availableRequest{SessionID: sessionID, Result: "error"}) //nolint:errcheck
		return
	}

	desc := bootstrap.Descriptor{
		SessionID:  sessionID,
		Recipe:     info.Recipe,
		Parameters: info.Parameters,
		BuildUUID:  info.BuildUUID,
		BuildName:  info.BuildName,
		SSURL:      info.SSURL,
		RunInfo:    info.RunInfo,
	}
	descBytes, err := json.Marshal(desc)
	if err != nil {
		a.logger.Error("agent: encode descriptor for %q: %v", sessionID, err)
		a.sendAvailable(ctx, availableRequest{SessionID: sessionID, Result: "error"}) //nolint:errcheck
		return
	}

	logFile, err := os.Create(sess.Logfile)
	if err != nil {
		a.logger.Error("agent: create logfile for %q: %v", sessionID, err)
		a.sendAvailable(ctx, availableRequest{SessionID: sessionID, Result: "error"}) //nolint:errcheck
		return
	}

	exe, err := os.Executable()
	if err != nil {
		logFile.Close() //nolint:errcheck
		a.logger.Error("agent: resolve own executable: %v", err)
		a.sendAvailable(ctx, availableRequest{SessionID: sessionID, Result: "error"}) //nolint:errcheck
		return
	}

	var tail process.Buffer
	out := io.MultiWriter(logFile, &tail)
	p := process.New(a.logger, process.Config{
		Path:   exe,
		Args:   []string{"bootstrap", a.conf.JobServerURL, sessionID},
		Dir:    a.conf.StoragePath,
		Stdin:  bytes.NewReader(descBytes),
		Stdout: out,
		Stderr: out,
	})

	if err := a.sendBusy(ctx, sessionID); err != nil {
		a.logger.Warn("agent: send_busy for %q: %v", sessionID, err)
	}

	runErr := p.Run(ctx)
	logFile.Close() //nolint:errcheck

	reloaded, loadErr := a.sessions.Load(sessionID)
	result := "success"
	var output any
	if loadErr != nil || runErr != nil || reloaded.ReturnCode != 0 {
		result = "error"
		a.logger.Warn("agent: session %q failed, last output: %s", sessionID, tail.ReadAndTruncate())
	}
	if loadErr == nil {
		output = reloaded.ReturnValue
	}

	logURL := a.uploadLog(ctx, info.BuildUUID, sessionID, sess.Logfile, info.SSURL)

	if err := a.sendAvailable(ctx, availableRequest{
		SessionID: sessionID,
		Result:    result,
		Output:    output,
		LogFile:   logURL,
	}); err != nil {
		a.logger.Warn("agent: send_available for %q: %v", sessionID, err)
	}
}

func (a *Agent) fetchSessionInfo(ctx context.Context, sessionID string) (*sessionInfoResponse, error) {
	var info sessionInfoResponse
	if err := a.jobServer.Call(ctx, http.MethodGet, "/agent/session/"+sessionID, nil, nil, &info); err != nil {
		return nil, fmt.Errorf("agent: get session %q: %w", sessionID, err)
	}
	return &info, nil
}

func (a *Agent) sendBusy(ctx context.Context, sessionID string) error {
	err := a.jobServer.Call(ctx, http.MethodPost, "/agent/busy/"+a.conf.NodeID, nil, busyRequest{SessionID: sessionID}, nil)
	if err == nil {
		a.markStatus()
	}
	return err
}

func (a *Agent) sendAvailable(ctx context.Context, req availableRequest) error {
	err := a.jobServer.Call(ctx, http.MethodPost, "/agent/available/"+a.conf.NodeID, nil, req, nil)
	if err == nil {
		a.markStatus()
	}
	return err
}

// uploadLog uploads sessionID's logfile to the storage service and returns
// its URL, or "" if the upload fails (the spec: "failure logs an error and
// proceeds with empty URL").
func (a *Agent) uploadLog(ctx context.Context, buildUUID, sessionID, logfile, ssURL string) string {
	storage := api.NewClient(a.logger, api.Config{Endpoint: ssURL})
	store := &artifact.Store{Client: storage, BuildUUID: buildUUID, Workspace: filepath.Dir(logfile)}
	_, url, err := store.Add(ctx, logfile, sessionID+".log")
	if err != nil {
		a.logger.Error("agent: upload logfile for %q: %v", sessionID, err)
		return ""
	}
	return url
}
