// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bureau-foundation/splicebridge/lib/export"
	"github.com/bureau-foundation/splicebridge/lib/pairing"
	"github.com/bureau-foundation/splicebridge/lib/supervisor"
	"github.com/bureau-foundation/splicebridge/lib/tag"
)

// readingExporter receives tags that take no part in pairing.
type readingExporter interface {
	DeliverReading(reading export.Reading)
}

// resyncChecker is evaluated after every batch.
type resyncChecker interface {
	SyncIfDue() bool
}

type bridgeConfig struct {
	Registry *tag.Registry
	Engine   *pairing.Engine

	// Readings is nil when single readings are not exported.
	Readings readingExporter

	// Resync may be nil.
	Resync resyncChecker

	// Location is the zone source timestamps are converted to.
	Location *time.Location

	Logger     *slog.Logger
	Registerer prometheus.Registerer
}

// bridge turns notification batches into half-events and readings. It
// runs on the transport's delivery goroutine and never blocks on a
// sink.
type bridge struct {
	registry *tag.Registry
	engine   *pairing.Engine
	readings readingExporter
	resync   resyncChecker
	location *time.Location
	logger   *slog.Logger

	unresolved prometheus.Counter
	invalid    prometheus.Counter
}

func newBridge(config bridgeConfig) *bridge {
	location := config.Location
	if location == nil {
		location = time.UTC
	}
	factory := promauto.With(config.Registerer)
	return &bridge{
		registry: config.Registry,
		engine:   config.Engine,
		readings: config.Readings,
		resync:   config.Resync,
		location: location,
		logger:   config.Logger,
		unresolved: factory.NewCounter(prometheus.CounterOpts{
			Name: "splice_unresolved_notifications_total",
			Help: "Notifications whose node id matched no configured tag.",
		}),
		invalid: factory.NewCounter(prometheus.CounterOpts{
			Name: "splice_invalid_values_total",
			Help: "Half-event notifications whose value was not an integer.",
		}),
	}
}

// handle processes one batch in order.
func (b *bridge) handle(batch []supervisor.Notification) {
	for _, notification := range batch {
		b.handleOne(notification)
	}
	if b.resync != nil {
		b.resync.SyncIfDue()
	}
}

func (b *bridge) handleOne(notification supervisor.Notification) {
	definition, ok := b.registry.Resolve(notification.NodeID)
	if !ok {
		b.unresolved.Inc()
		b.logger.Warn("notification for unknown node discarded", "node", notification.NodeID)
		return
	}
	stamp := notification.SourceTimestamp.In(b.location)
	if !notification.Good {
		b.logger.Debug("notification with non-good status",
			"tag", definition.DisplayName,
			"status", notification.Status,
		)
	}

	key, half := definition.Pairing()
	if half == tag.HalfNone {
		if b.readings == nil {
			b.logger.Debug("reading not exported", "tag", definition.DisplayName)
			return
		}
		b.readings.DeliverReading(export.Reading{
			Key:    definition.DisplayName,
			Value:  notification.Value,
			Stamp:  stamp,
			Status: notification.Status,
		})
		return
	}

	value, err := pairing.ParseRemain(notification.Value)
	if err != nil {
		b.invalid.Inc()
		b.logger.Warn("half-event value discarded",
			"tag", definition.DisplayName,
			"value", notification.Value,
			"error", err,
		)
		return
	}
	b.logger.Info("half-event",
		"key", key,
		"half", half.String(),
		"value", value,
		"stamp", stamp,
	)
	b.engine.OnHalfEvent(key, value, stamp, half == tag.HalfPrevious)
}
