package agent

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/buildkite/roko"
	"github.com/dustin/go-humanize"
)

// registerRequest is POST /agent/register's body.
type registerRequest struct {
	ID     string   `json:"id"`
	Nick   string   `json:"nick"`
	Port   int      `json:"port"`
	Labels []string `json:"labels"`
}

// statusLoop registers with the job server, then keeps it informed of this
// agent's liveness: a heartbeat ping whenever no status message (register,
// ping, available, busy) has gone out within HeartbeatTTL. Any heartbeat
// failure drops the registered flag and re-enters the registration retry
// loop, matching the spec's "any heartbeat failure clears the registered
// flag and restarts the register loop".
func (a *Agent) statusLoop(ctx context.Context) {
	const tick = time.Second

	for {
		if ctx.Err() != nil {
			return
		}

		if !a.isRegistered() {
			if err := a.registerWithRetry(ctx); err != nil {
				// ctx was cancelled mid-retry; Start is shutting down.
				return
			}
			a.markRegistered()
			a.markStatus()
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(tick):
		}

		if time.Since(a.statusSince()) >= a.conf.HeartbeatTTL {
			a.logger.Info("agent: sending heartbeat, idle since %s", humanize.RelTime(a.statusSince(), time.Now(), "", ""))
			if err := a.ping(ctx); err != nil {
				a.logger.Warn("agent: heartbeat failed, re-registering: %v", err)
				a.clearRegistered()
				continue
			}
			a.markStatus()
		}
	}
}

// registerWithRetry retries POST /agent/register every RegisterInterval
// until it succeeds or ctx is cancelled.
func (a *Agent) registerWithRetry(ctx context.Context) error {
	req := registerRequest{
		ID:     a.conf.NodeID,
		Nick:   a.conf.Nickname,
		Port:   a.conf.Port,
		Labels: []string{runtime.GOOS, runtime.GOARCH},
	}

	return roko.NewRetrier(
		roko.WithMaxAttempts(1<<30),
		roko.WithStrategy(roko.Constant(a.conf.RegisterInterval)),
	).DoWithContext(ctx, func(r *roko.Retrier) error {
		err := a.jobServer.Call(ctx, http.MethodPost, "/agent/register", nil, req, nil)
		if err != nil {
			a.logger.Warn("agent: register failed, retrying: %v (%s)", err, r)
		}
		return err
	})
}

func (a *Agent) ping(ctx context.Context) error {
	return a.jobServer.Call(ctx, http.MethodPost, "/agent/ping/"+a.conf.NodeID, nil, nil, nil)
}

func (a *Agent) isRegistered() bool {
	a.statusMu.Lock()
	defer a.statusMu.Unlock()
	return a.registered
}

func (a *Agent) markRegistered() {
	a.statusMu.Lock()
	defer a.statusMu.Unlock()
	a.registered = true
}

func (a *Agent) clearRegistered() {
	a.statusMu.Lock()
	defer a.statusMu.Unlock()
	a.registered = false
}

func (a *Agent) markStatus() {
	a.statusMu.Lock()
	defer a.statusMu.Unlock()
	a.lastStatus = time.Now()
}

func (a *Agent) statusSince() time.Time {
	a.statusMu.Lock()
	defer a.statusMu.Unlock()
	return a.lastStatus
}
