// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bureau-foundation/splicebridge/lib/clock"
	"github.com/bureau-foundation/splicebridge/lib/process"
)

// DefaultReconnectPeriod is the delay between reconnect attempts.
const DefaultReconnectPeriod = 10 * time.Second

// State is the supervisor's connection state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
	Terminated
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case Terminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config holds the supervisor's collaborators.
type Config struct {
	Endpoint     string
	Transport    Transport
	Policy       CertificatePolicy
	Subscription Subscription

	// ReconnectPeriod defaults to DefaultReconnectPeriod. A failed
	// reconnect waits this long before the next attempt starts.
	ReconnectPeriod time.Duration

	// Clock times retry delays. Defaults to clock.Real().
	Clock clock.Clock

	// Logger is required.
	Logger *slog.Logger

	// Registerer receives the reconnect counter. Nil leaves it
	// unregistered.
	Registerer prometheus.Registerer
}

// Supervisor drives one session through startup, liveness, and
// reconnection.
type Supervisor struct {
	endpoint        string
	transport       Transport
	policy          CertificatePolicy
	subscription    Subscription
	reconnectPeriod time.Duration
	clock           clock.Clock
	logger          *slog.Logger
	reconnects      prometheus.Counter

	mu      sync.Mutex
	state   State
	stage   process.ExitCode
	session Session
	attempt uint64

	// runCtx bounds reconnect attempts; set by Start.
	runCtx context.Context
}

// New validates config.
func New(config Config) (*Supervisor, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("supervisor: Endpoint is required")
	}
	if config.Transport == nil {
		return nil, fmt.Errorf("supervisor: Transport is required")
	}
	if config.Logger == nil {
		return nil, fmt.Errorf("supervisor: Logger is required")
	}
	if config.Subscription.Handler == nil {
		return nil, fmt.Errorf("supervisor: Subscription.Handler is required")
	}
	period := config.ReconnectPeriod
	if period <= 0 {
		period = DefaultReconnectPeriod
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	return &Supervisor{
		endpoint:        config.Endpoint,
		transport:       config.Transport,
		policy:          config.Policy,
		subscription:    config.Subscription,
		reconnectPeriod: period,
		clock:           clk,
		logger:          config.Logger,
		reconnects: promauto.With(config.Registerer).NewCounter(prometheus.CounterOpts{
			Name: "splice_reconnects_total",
			Help: "Reconnect attempts started after a bad keep-alive.",
		}),
		state: Disconnected,
	}, nil
}

// State returns the current connection state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stage returns the startup stage reached: the failing stage after a
// failed Start, ExitRunning after a successful one.
func (s *Supervisor) Stage() process.ExitCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stage
}

// Start runs the startup stages. ctx also bounds later reconnect
// attempts, so it should live as long as the process runs.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Disconnected {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("supervisor: Start in state %s", state)
	}
	s.state = Connecting
	s.runCtx = ctx
	s.mu.Unlock()

	if err := s.runStage(process.ExitCheckCertificate, func() error {
		return s.transport.CheckCertificate(ctx)
	}); err != nil {
		return s.fail(err, nil)
	}

	if err := s.runStage(process.ExitDiscoverEndpoints, func() error {
		return s.transport.Discover(ctx, s.endpoint)
	}); err != nil {
		return s.fail(err, nil)
	}

	var session Session
	if err := s.runStage(process.ExitCreateSession, func() error {
		var err error
		session, err = s.transport.Connect(ctx, s.endpoint, s.policy)
		return err
	}); err != nil {
		return s.fail(err, nil)
	}
	s.logger.Info("session created", "endpoint", s.endpoint)

	if err := s.runStage(process.ExitBrowseNamespace, func() error {
		count, err := session.Browse(ctx)
		if err == nil {
			s.logger.Info("browsed namespace", "references", count)
		}
		return err
	}); err != nil {
		return s.fail(err, session)
	}

	if err := s.runStage(process.ExitCreateSubscription, func() error {
		return session.Subscribe(ctx, s.subscription)
	}); err != nil {
		return s.fail(err, session)
	}
	s.logger.Info("subscription attached",
		"items", len(s.subscription.Items),
		"publishing_interval", s.subscription.PublishingInterval,
	)

	s.mu.Lock()
	if s.state != Connecting {
		// Stopped while starting.
		s.mu.Unlock()
		s.closeSession(session)
		return fmt.Errorf("supervisor: stopped during startup")
	}
	s.stage = process.ExitRunning
	s.state = Connected
	s.session = session
	s.mu.Unlock()

	session.SetKeepAlive(s.onKeepAlive)
	return nil
}

// runStage records stage and runs fn, attributing a plain error to
// stage. An ExitError from fn keeps its own, more specific, code.
func (s *Supervisor) runStage(stage process.ExitCode, fn func() error) error {
	s.mu.Lock()
	s.stage = stage
	s.mu.Unlock()

	err := fn()
	if err == nil {
		return nil
	}
	var exitError *process.ExitError
	if errors.As(err, &exitError) {
		s.mu.Lock()
		s.stage = exitError.Code
		s.mu.Unlock()
		return err
	}
	return &process.ExitError{Code: stage, Err: err}
}

func (s *Supervisor) fail(err error, session Session) error {
	s.logger.Error("startup failed", "stage", s.Stage().String(), "error", err)
	if session != nil {
		s.closeSession(session)
	}
	s.mu.Lock()
	if s.state == Connecting {
		s.state = Disconnected
	}
	s.mu.Unlock()
	return err
}

// Run starts the session and holds it until ctx is done. It returns
// Start's error, or nil after ctx ends; call Stop afterwards for the
// final status.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

func (s *Supervisor) onKeepAlive(keepAlive KeepAlive) {
	if keepAlive.Good {
		return
	}

	s.mu.Lock()
	if s.state != Connected {
		s.mu.Unlock()
		return
	}
	s.state = Reconnecting
	s.attempt++
	attempt := s.attempt
	old := s.session
	ctx := s.runCtx
	s.mu.Unlock()

	s.logger.Warn(fmt.Sprintf("%s %d/%d", keepAlive.Status, keepAlive.Outstanding, keepAlive.Defunct),
		"attempt", attempt,
	)
	s.startReconnect(ctx, attempt, old)
}

func (s *Supervisor) startReconnect(ctx context.Context, attempt uint64, old Session) {
	s.reconnects.Inc()
	s.logger.Info("reconnecting", "endpoint", s.endpoint, "period", s.reconnectPeriod, "attempt", attempt)
	s.transport.Reconnect(ctx, old, s.reconnectPeriod, func(session Session, err error) {
		s.onReconnected(attempt, session, err)
	})
}

func (s *Supervisor) onReconnected(attempt uint64, session Session, err error) {
	s.mu.Lock()
	if attempt != s.attempt || s.state != Reconnecting {
		s.mu.Unlock()
		s.logger.Debug("discarding stale reconnect", "attempt", attempt)
		if session != nil {
			s.closeSession(session)
		}
		return
	}
	if err != nil {
		ctx := s.runCtx
		if ctx.Err() != nil {
			s.mu.Unlock()
			s.logger.Info("reconnect abandoned", "attempt", attempt, "error", err)
			return
		}
		s.attempt++
		next := s.attempt
		old := s.session
		s.mu.Unlock()
		s.logger.Error("reconnect failed, retrying", "attempt", attempt, "error", err, "delay", s.reconnectPeriod)
		go s.retryAfterDelay(ctx, next, old)
		return
	}
	old := s.session
	s.session = session
	s.state = Connected
	s.mu.Unlock()

	session.SetKeepAlive(s.onKeepAlive)
	s.logger.Info("reconnected", "endpoint", s.endpoint, "attempt", attempt)
	if old != nil && old != session {
		s.closeSession(old)
	}
}

// retryAfterDelay starts attempt once the reconnect period has passed,
// unless ctx ends or Stop or a newer attempt supersedes it. Runs on its
// own goroutine, so a Reconnect that fails synchronously never recurses.
func (s *Supervisor) retryAfterDelay(ctx context.Context, attempt uint64, old Session) {
	select {
	case <-ctx.Done():
		s.logger.Info("reconnect abandoned", "attempt", attempt, "error", ctx.Err())
		return
	case <-s.clock.After(s.reconnectPeriod):
	}

	s.mu.Lock()
	current := attempt == s.attempt && s.state == Reconnecting
	s.mu.Unlock()
	if !current {
		s.logger.Debug("discarding superseded retry", "attempt", attempt)
		return
	}
	s.startReconnect(ctx, attempt, old)
}

// Stop terminates the supervisor, closes the session, and returns the
// final status: ExitNoKeepAlive when keep-alives had stopped, else
// ExitOK.
func (s *Supervisor) Stop(ctx context.Context) process.ExitCode {
	s.mu.Lock()
	s.state = Terminated
	s.attempt++
	session := s.session
	s.session = nil
	s.mu.Unlock()

	if session == nil {
		return process.ExitOK
	}
	code := process.ExitOK
	if session.KeepAliveStopped() {
		code = process.ExitNoKeepAlive
	}
	if err := session.Close(ctx); err != nil {
		s.logger.Warn("closing session", "error", err)
	}
	s.logger.Info("supervisor stopped", "status", code.String())
	return code
}

func (s *Supervisor) closeSession(session Session) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := session.Close(ctx); err != nil {
		s.logger.Debug("closing session", "error", err)
	}
}
