// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package opcua

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"

	"github.com/bureau-foundation/splicebridge/lib/clock"
	"github.com/bureau-foundation/splicebridge/lib/supervisor"
)

// DefaultRequestTimeout bounds every service call.
const DefaultRequestTimeout = 10 * time.Second

// DefaultKeepAlivePoll is how often a session checks its connection
// state.
const DefaultKeepAlivePoll = 5 * time.Second

// Config configures the transport.
type Config struct {
	ApplicationName string

	// CertificateFile and PrivateKeyFile are the client's application
	// instance certificate. Both empty means anonymous with no client
	// certificate.
	CertificateFile string
	PrivateKeyFile  string

	RequestTimeout time.Duration
	KeepAlivePoll  time.Duration

	// Clock drives keep-alive polling and reconnect delays. Required.
	Clock clock.Clock

	// Logger is required.
	Logger *slog.Logger
}

// Transport creates gopcua clients.
type Transport struct {
	config Config

	// connect is Connect; tests replace it to drive Reconnect.
	connect func(ctx context.Context, endpoint string, policy supervisor.CertificatePolicy) (supervisor.Session, error)

	mu        sync.Mutex
	endpoints map[string]*ua.EndpointDescription
}

var _ supervisor.Transport = (*Transport)(nil)

// New validates config and fills defaults.
func New(config Config) (*Transport, error) {
	if config.Clock == nil {
		return nil, fmt.Errorf("opcua: Clock is required")
	}
	if config.Logger == nil {
		return nil, fmt.Errorf("opcua: Logger is required")
	}
	if (config.CertificateFile == "") != (config.PrivateKeyFile == "") {
		return nil, fmt.Errorf("opcua: CertificateFile and PrivateKeyFile must be set together")
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultRequestTimeout
	}
	if config.KeepAlivePoll <= 0 {
		config.KeepAlivePoll = DefaultKeepAlivePoll
	}
	transport := &Transport{config: config, endpoints: make(map[string]*ua.EndpointDescription)}
	transport.connect = transport.Connect
	return transport, nil
}

// CheckCertificate loads the client certificate when one is configured.
func (t *Transport) CheckCertificate(context.Context) error {
	if t.config.CertificateFile == "" {
		t.config.Logger.Info("no client certificate configured, connecting anonymously")
		return nil
	}
	if _, err := tls.LoadX509KeyPair(t.config.CertificateFile, t.config.PrivateKeyFile); err != nil {
		return fmt.Errorf("loading client certificate: %w", err)
	}
	return nil
}

// Discover fetches the server's endpoints and remembers the one with
// security mode None for Connect.
func (t *Transport) Discover(ctx context.Context, endpoint string) error {
	endpoints, err := opcua.GetEndpoints(ctx, endpoint)
	if err != nil {
		return fmt.Errorf("getting endpoints from %s: %w", endpoint, err)
	}
	selected := selectEndpoint(endpoints)
	if selected == nil {
		return fmt.Errorf("%s offers no endpoint with security mode None (%d endpoints)", endpoint, len(endpoints))
	}
	t.config.Logger.Info("endpoint discovered",
		"endpoint", selected.EndpointURL,
		"policy", selected.SecurityPolicyURI,
		"offered", len(endpoints),
	)
	t.mu.Lock()
	t.endpoints[endpoint] = selected
	t.mu.Unlock()
	return nil
}

func selectEndpoint(endpoints []*ua.EndpointDescription) *ua.EndpointDescription {
	for _, candidate := range endpoints {
		if candidate.SecurityMode == ua.MessageSecurityModeNone &&
			candidate.SecurityPolicyURI == ua.SecurityPolicyURINone {
			return candidate
		}
	}
	return nil
}

// Connect opens a client on endpoint after applying policy to the
// discovered server certificate.
func (t *Transport) Connect(ctx context.Context, endpoint string, policy supervisor.CertificatePolicy) (supervisor.Session, error) {
	t.mu.Lock()
	description := t.endpoints[endpoint]
	t.mu.Unlock()
	if description == nil {
		if err := t.Discover(ctx, endpoint); err != nil {
			return nil, err
		}
		t.mu.Lock()
		description = t.endpoints[endpoint]
		t.mu.Unlock()
	}

	if err := checkServerCertificate(description.ServerCertificate, t.config.Clock.Now(), policy); err != nil {
		return nil, err
	}

	options := []opcua.Option{
		opcua.SecurityPolicy(ua.SecurityPolicyURINone),
		opcua.SecurityMode(ua.MessageSecurityModeNone),
		opcua.AuthAnonymous(),
		opcua.AutoReconnect(false),
		opcua.RequestTimeout(t.config.RequestTimeout),
	}
	if t.config.ApplicationName != "" {
		options = append(options, opcua.ApplicationName(t.config.ApplicationName))
	}
	if t.config.CertificateFile != "" {
		options = append(options,
			opcua.CertificateFile(t.config.CertificateFile),
			opcua.PrivateKeyFile(t.config.PrivateKeyFile),
		)
	}

	client, err := opcua.NewClient(endpoint, options...)
	if err != nil {
		return nil, fmt.Errorf("creating client for %s: %w", endpoint, err)
	}
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", endpoint, err)
	}
	return newSession(sessionConfig{
		client:   client,
		endpoint: endpoint,
		policy:   policy,
		poll:     t.config.KeepAlivePoll,
		clock:    t.config.Clock,
		logger:   t.config.Logger,
	}), nil
}

// Reconnect replaces old in the background: every period it connects
// a new client and re-creates old's subscription, until one attempt
// succeeds or ctx ends.
func (t *Transport) Reconnect(ctx context.Context, old supervisor.Session, period time.Duration, done func(supervisor.Session, error)) {
	previous, ok := old.(*session)
	if !ok {
		done(nil, fmt.Errorf("opcua: cannot reconnect foreign session %T", old))
		return
	}
	// Only cancel here: Reconnect may be running on one of previous's
	// own watcher goroutines.
	previous.stopWatch()

	go func() {
		for attempt := 1; ; attempt++ {
			select {
			case <-ctx.Done():
				done(nil, ctx.Err())
				return
			case <-t.config.Clock.After(period):
			}

			replacement, err := t.connect(ctx, previous.endpoint, previous.policy)
			if err != nil {
				t.config.Logger.Warn("reconnect attempt failed", "attempt", attempt, "error", err)
				continue
			}
			subscription, subscribed := previous.currentSubscription()
			if subscribed {
				if err := replacement.Subscribe(ctx, subscription); err != nil {
					t.config.Logger.Warn("resubscribe failed", "attempt", attempt, "error", err)
					closeQuietly(replacement)
					continue
				}
			}
			done(replacement, nil)
			return
		}
	}()
}

func closeQuietly(session supervisor.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = session.Close(ctx)
}
