// Package agent implements the Agent Worker: the long-running process a
// job server dispatches sessions to. It exposes a single-slot push queue
// over HTTP, supervises one recipe-runner subprocess at a time, and keeps
// the job server informed of its liveness and availability.
//
// This is a full rewrite of the teacher's pull/ping agent_worker.go: the
// original agent polls the job server for work (Ping, AcquireAndRunJob);
// this one is dispatched to directly (POST /dispatch) and reports its own
// availability, matching the spec's push/single-slot model.
package agent

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sciagent/sci-agent/api"
	"github.com/sciagent/sci-agent/logger"
	"github.com/sciagent/sci-agent/session"
	"github.com/sciagent/sci-agent/version"
)

// Agent is one running agent worker: its configuration, its job server
// client, its session store, and the single-slot queue and busy sentinel
// shared between the HTTP handler and the executor goroutine.
type Agent struct {
	conf      Configuration
	jobServer *api.Client
	sessions  *session.Store
	logger    logger.Logger

	queue chan string
	busy  atomic.Bool

	statusMu   sync.Mutex
	lastStatus time.Time
	registered bool

	server *http.Server
}

// New returns an Agent ready to Start. conf.NodeID must already be
// resolved (see LoadOrCreateNodeIdentity).
func New(conf Configuration, l logger.Logger) *Agent {
	if l == nil {
		l = logger.Discard
	}
	if conf.RegisterInterval == 0 {
		conf.RegisterInterval = DefaultRegisterInterval
	}
	if conf.HeartbeatTTL == 0 {
		conf.HeartbeatTTL = DefaultHeartbeatTTL
	}

	return &Agent{
		conf: conf,
		jobServer: api.NewClient(l, api.Config{
			Endpoint:  conf.JobServerURL,
			UserAgent: version.UserAgent(),
		}),
		sessions: session.NewStore(conf.StoragePath),
		logger:   l,
		queue:    make(chan string, 1),
	}
}

// Start runs the HTTP dispatch endpoint, the status thread, and the
// executor thread until ctx is cancelled or the HTTP server fails.
func (a *Agent) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- a.serveHTTP(ctx) }()
	go a.statusLoop(ctx)
	go a.executorLoop(ctx)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (a *Agent) serveHTTP(ctx context.Context) error {
	a.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", a.conf.Port),
		Handler: a.router(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.server.Shutdown(shutdownCtx) //nolint:errcheck
	}()

	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("agent: serve http: %w", err)
	}
	return nil
}
