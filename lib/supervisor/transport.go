// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"context"
	"time"
)

// Transport creates and repairs sessions.
type Transport interface {
	// CheckCertificate validates the client's own application
	// certificate configuration before any network traffic.
	CheckCertificate(ctx context.Context) error

	// Discover verifies that endpoint answers endpoint discovery.
	Discover(ctx context.Context, endpoint string) error

	// Connect opens a session. policy decides on server certificate
	// problems encountered during the handshake.
	Connect(ctx context.Context, endpoint string, policy CertificatePolicy) (Session, error)

	// Reconnect replaces old asynchronously, retrying every period. It
	// returns at once; done is called exactly once with the new,
	// fully subscribed session, or with an error when ctx ends first.
	Reconnect(ctx context.Context, old Session, period time.Duration, done func(Session, error))
}

// Session is one live connection.
type Session interface {
	// SetKeepAlive installs the liveness callback, replacing any
	// previous one.
	SetKeepAlive(handler func(KeepAlive))

	// Browse counts the references under the Objects folder.
	Browse(ctx context.Context) (int, error)

	// Subscribe creates the subscription and its monitored items.
	// Failures should be process.ExitErrors naming the sub-stage
	// (create subscription, monitored item, add subscription); other
	// errors are attributed to subscription creation.
	Subscribe(ctx context.Context, subscription Subscription) error

	// KeepAliveStopped reports whether keep-alives had stopped arriving
	// when the session was last checked.
	KeepAliveStopped() bool

	Close(ctx context.Context) error
}

// KeepAlive is one liveness signal.
type KeepAlive struct {
	Good        bool
	Status      string
	Outstanding int
	Defunct     int
}

// Subscription describes what to monitor and where notifications go.
type Subscription struct {
	PublishingInterval time.Duration
	Items              []MonitoredItem

	// Handler receives each notification batch on the transport's
	// delivery goroutine. It must not block for long.
	Handler func(batch []Notification)
}

// MonitoredItem is one subscribed node.
type MonitoredItem struct {
	DisplayName string
	NodeID      string
}

// Notification is one value change.
type Notification struct {
	NodeID          string
	Value           any
	SourceTimestamp time.Time
	Status          string
	Good            bool
}
