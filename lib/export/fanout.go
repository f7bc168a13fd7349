// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bureau-foundation/splicebridge/lib/pairing"
)

// ErrQueueFull is returned by Submit when at least one sink's job was
// dropped.
var ErrQueueFull = errors.New("export queue full")

// ErrDuplicate reports a row that already exists for the same key and
// stamp.
var ErrDuplicate = errors.New("duplicate export row")

// Sink delivers one event to an external system.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, event Event) error
}

// Defaults for FanOutConfig.
const (
	DefaultWorkers     = 4
	DefaultQueueSize   = 256
	DefaultSinkTimeout = 30 * time.Second
)

// FanOutConfig holds the fan-out's parameters.
type FanOutConfig struct {
	Sinks       []Sink
	Workers     int
	QueueSize   int
	SinkTimeout time.Duration

	// Logger is required.
	Logger *slog.Logger

	// Registerer receives the delivery metrics. Nil leaves them
	// unregistered.
	Registerer prometheus.Registerer
}

type job struct {
	sink  Sink
	event Event
}

// FanOut queues events for every sink and delivers them on a fixed
// worker set. It implements pairing.Dispatcher.
type FanOut struct {
	sinks       []Sink
	queue       chan job
	workers     int
	sinkTimeout time.Duration
	logger      *slog.Logger

	deliveries *prometheus.CounterVec
	dropped    *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

var _ pairing.Dispatcher = (*FanOut)(nil)

// NewFanOut validates config and builds an idle fan-out. Nothing is
// delivered until Run is called, but Submit may queue before that.
func NewFanOut(config FanOutConfig) (*FanOut, error) {
	if config.Logger == nil {
		return nil, fmt.Errorf("export: Logger is required")
	}
	for index, sink := range config.Sinks {
		if sink == nil {
			return nil, fmt.Errorf("export: sink %d is nil", index)
		}
	}
	workers := config.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	queueSize := config.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	sinkTimeout := config.SinkTimeout
	if sinkTimeout <= 0 {
		sinkTimeout = DefaultSinkTimeout
	}

	fanOut := &FanOut{
		sinks:       config.Sinks,
		queue:       make(chan job, queueSize),
		workers:     workers,
		sinkTimeout: sinkTimeout,
		logger:      config.Logger,
	}

	factory := promauto.With(config.Registerer)
	fanOut.deliveries = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "splice_export_deliveries_total",
		Help: "Sink deliveries by sink and result (ok, duplicate, error).",
	}, []string{"sink", "result"})
	fanOut.dropped = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "splice_export_dropped_total",
		Help: "Jobs dropped because the export queue was full.",
	}, []string{"sink"})
	fanOut.duration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "splice_export_delivery_seconds",
		Help:    "Time spent in one sink delivery.",
		Buckets: prometheus.DefBuckets,
	}, []string{"sink"})
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "splice_export_queue_depth",
		Help: "Jobs waiting for a worker.",
	}, func() float64 { return float64(len(fanOut.queue)) })

	return fanOut, nil
}

// Dispatch queues a live pair.
func (f *FanOut) Dispatch(snapshot pairing.Snapshot) {
	f.submitLogged(PairEvent(OriginLive, snapshot))
}

// Resync queues a re-delivered pair.
func (f *FanOut) Resync(snapshot pairing.Snapshot) {
	f.submitLogged(PairEvent(OriginResync, snapshot))
}

// DeliverReading queues a single reading.
func (f *FanOut) DeliverReading(reading Reading) {
	f.submitLogged(ReadingEvent(reading))
}

func (f *FanOut) submitLogged(event Event) {
	// Drops are already logged per sink.
	_ = f.Submit(event)
}

// Submit queues one job per sink without blocking. It returns
// ErrQueueFull if any job was dropped; jobs for other sinks may still
// have been queued.
func (f *FanOut) Submit(event Event) error {
	if err := event.validate(); err != nil {
		return err
	}
	if len(f.sinks) == 0 {
		f.logger.Debug("no export sinks configured", "event", event.ID, "key", event.Key())
		return nil
	}
	var full bool
	for _, sink := range f.sinks {
		select {
		case f.queue <- job{sink: sink, event: event}:
		default:
			full = true
			f.dropped.WithLabelValues(sink.Name()).Inc()
			f.logger.Warn("export queue full, event dropped",
				"sink", sink.Name(),
				"event", event.ID,
				"key", event.Key(),
				"origin", event.Origin,
			)
		}
	}
	if full {
		return ErrQueueFull
	}
	return nil
}

// Pending returns the number of queued jobs.
func (f *FanOut) Pending() int { return len(f.queue) }

// Run delivers queued jobs until ctx is done, then waits for in-flight
// deliveries to return. Jobs still queued are abandoned. Run always
// returns nil so it can share an errgroup with components whose exit
// is significant.
func (f *FanOut) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for range f.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.work(ctx)
		}()
	}
	wg.Wait()
	if abandoned := len(f.queue); abandoned > 0 {
		f.logger.Info("export stopped with queued jobs abandoned", "abandoned", abandoned)
	}
	return nil
}

func (f *FanOut) work(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case next := <-f.queue:
			// A ready job may win the select after cancellation.
			if ctx.Err() != nil {
				return
			}
			f.deliver(ctx, next)
		}
	}
}

func (f *FanOut) deliver(ctx context.Context, next job) {
	name := next.sink.Name()
	deliveryCtx, cancel := context.WithTimeout(ctx, f.sinkTimeout)
	defer cancel()

	start := time.Now()
	err := next.sink.Deliver(deliveryCtx, next.event)
	f.duration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		f.deliveries.WithLabelValues(name, "ok").Inc()
		f.logger.Debug("event exported",
			"sink", name,
			"event", next.event.ID,
			"key", next.event.Key(),
			"origin", next.event.Origin,
		)
	case errors.Is(err, ErrDuplicate):
		f.deliveries.WithLabelValues(name, "duplicate").Inc()
		f.logger.Debug("event already exported",
			"sink", name,
			"event", next.event.ID,
			"key", next.event.Key(),
			"origin", next.event.Origin,
		)
	default:
		f.deliveries.WithLabelValues(name, "error").Inc()
		f.logger.Error("export failed",
			"sink", name,
			"event", next.event.ID,
			"key", next.event.Key(),
			"origin", next.event.Origin,
			"error", err,
		)
	}
}
