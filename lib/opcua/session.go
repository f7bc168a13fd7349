// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package opcua

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/id"
	"github.com/gopcua/opcua/ua"

	"github.com/bureau-foundation/splicebridge/lib/clock"
	"github.com/bureau-foundation/splicebridge/lib/process"
	"github.com/bureau-foundation/splicebridge/lib/supervisor"
)

// connection is the part of *opcua.Client that the keep-alive watcher
// and Close use.
type connection interface {
	State() opcua.ConnState
	Close(ctx context.Context) error
}

type sessionConfig struct {
	client *opcua.Client
	// conn defaults to client.
	conn     connection
	endpoint string
	policy   supervisor.CertificatePolicy
	poll     time.Duration
	clock    clock.Clock
	logger   *slog.Logger
}

// session is one connected client and, once subscribed, its
// subscription.
type session struct {
	client   *opcua.Client
	conn     connection
	endpoint string
	policy   supervisor.CertificatePolicy
	poll     time.Duration
	clock    clock.Clock
	logger   *slog.Logger

	// watchCtx bounds the delivery and polling goroutines.
	watchCtx    context.Context
	stopWatch   context.CancelFunc
	watchers    sync.WaitGroup
	unsubscribe func(context.Context) error

	mu            sync.Mutex
	keepAlive     func(supervisor.KeepAlive)
	subscription  supervisor.Subscription
	subscribed    bool
	stopped       bool
	publishErrors int
}

var _ supervisor.Session = (*session)(nil)

func newSession(config sessionConfig) *session {
	watchCtx, stopWatch := context.WithCancel(context.Background())
	conn := config.conn
	if conn == nil {
		conn = config.client
	}
	return &session{
		client:    config.client,
		conn:      conn,
		endpoint:  config.endpoint,
		policy:    config.policy,
		poll:      config.poll,
		clock:     config.clock,
		logger:    config.logger,
		watchCtx:  watchCtx,
		stopWatch: stopWatch,
	}
}

func (s *session) SetKeepAlive(handler func(supervisor.KeepAlive)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keepAlive = handler
}

func (s *session) report(keepAlive supervisor.KeepAlive) {
	s.mu.Lock()
	handler := s.keepAlive
	s.mu.Unlock()
	if handler != nil {
		handler(keepAlive)
	}
}

// Browse counts hierarchical references below the Objects folder.
func (s *session) Browse(ctx context.Context) (int, error) {
	objects := s.client.Node(ua.NewNumericNodeID(0, id.ObjectsFolder))
	nodes, err := objects.ReferencedNodes(ctx, id.HierarchicalReferences, ua.BrowseDirectionForward, ua.NodeClassAll, true)
	if err != nil {
		return 0, fmt.Errorf("browsing Objects: %w", err)
	}
	return len(nodes), nil
}

// Subscribe creates the subscription, adds one monitored item per tag,
// and starts delivering notifications to subscription.Handler.
func (s *session) Subscribe(ctx context.Context, subscription supervisor.Subscription) error {
	requests := make([]*ua.MonitoredItemCreateRequest, 0, len(subscription.Items))
	handles := make(map[uint32]string, len(subscription.Items))
	for index, item := range subscription.Items {
		nodeID, err := ua.ParseNodeID(item.NodeID)
		if err != nil {
			return process.Errorf(process.ExitMonitoredItem, "tag %s: node id %q: %w", item.DisplayName, item.NodeID, err)
		}
		handle := uint32(index + 1)
		handles[handle] = item.NodeID
		requests = append(requests, opcua.NewMonitoredItemCreateRequestWithDefaults(nodeID, ua.AttributeIDValue, handle))
	}

	notifications := make(chan *opcua.PublishNotificationData, 64)
	created, err := s.client.Subscribe(ctx, &opcua.SubscriptionParameters{
		Interval: subscription.PublishingInterval,
	}, notifications)
	if err != nil {
		return process.Errorf(process.ExitCreateSubscription, "%w", err)
	}

	response, err := created.Monitor(ctx, ua.TimestampsToReturnBoth, requests...)
	if err != nil {
		_ = created.Cancel(ctx)
		return process.Errorf(process.ExitAddSubscription, "%w", err)
	}
	for index, result := range response.Results {
		if result.StatusCode != ua.StatusOK {
			_ = created.Cancel(ctx)
			return process.Errorf(process.ExitMonitoredItem, "tag %s: %v",
				subscription.Items[index].DisplayName, result.StatusCode)
		}
	}

	s.mu.Lock()
	s.subscription = subscription
	s.subscribed = true
	s.unsubscribe = created.Cancel
	s.mu.Unlock()

	s.startWatchers(notifications, handles, subscription.Handler)
	return nil
}

// startWatchers runs deliver and watch until stopWatching.
func (s *session) startWatchers(notifications <-chan *opcua.PublishNotificationData, handles map[uint32]string, handler func([]supervisor.Notification)) {
	s.watchers.Add(2)
	go s.deliver(notifications, handles, handler)
	go s.watch()
}

func (s *session) currentSubscription() (supervisor.Subscription, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscription, s.subscribed
}

// deliver converts publish results into notification batches and
// publish errors into bad keep-alives.
func (s *session) deliver(notifications <-chan *opcua.PublishNotificationData, handles map[uint32]string, handler func([]supervisor.Notification)) {
	defer s.watchers.Done()
	for {
		select {
		case <-s.watchCtx.Done():
			return
		case message := <-notifications:
			if message == nil {
				continue
			}
			if message.Error != nil {
				s.mu.Lock()
				s.publishErrors++
				defunct := s.publishErrors
				s.mu.Unlock()
				s.report(supervisor.KeepAlive{Status: message.Error.Error(), Outstanding: 1, Defunct: defunct})
				continue
			}
			change, ok := message.Value.(*ua.DataChangeNotification)
			if !ok {
				continue
			}
			if batch := convertDataChange(change, handles, s.logger); len(batch) > 0 {
				handler(batch)
			}
		}
	}
}

// watch polls the client's connection state.
func (s *session) watch() {
	defer s.watchers.Done()
	ticker := s.clock.NewTicker(s.poll)
	defer ticker.Stop()

	missed := 0
	for {
		select {
		case <-s.watchCtx.Done():
			return
		case <-ticker.C:
		}
		state := s.conn.State()
		if state == opcua.Connected {
			missed = 0
			s.mu.Lock()
			s.stopped = false
			s.mu.Unlock()
			s.report(supervisor.KeepAlive{Good: true, Status: "Good"})
			continue
		}
		missed++
		s.mu.Lock()
		s.stopped = true
		defunct := s.publishErrors
		s.mu.Unlock()
		s.report(supervisor.KeepAlive{
			Status:      fmt.Sprintf("connection %v", state),
			Outstanding: missed,
			Defunct:     defunct,
		})
	}
}

func (s *session) stopWatching() {
	s.stopWatch()
	s.watchers.Wait()
}

func (s *session) KeepAliveStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *session) Close(ctx context.Context) error {
	s.stopWatching()
	s.mu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()
	if unsubscribe != nil && s.conn.State() == opcua.Connected {
		if err := unsubscribe(ctx); err != nil {
			s.logger.Debug("cancelling subscription", "error", err)
		}
	}
	return s.conn.Close(ctx)
}

// convertDataChange maps monitored-item notifications to node ids.
// Unknown client handles are logged and skipped.
func convertDataChange(change *ua.DataChangeNotification, handles map[uint32]string, logger *slog.Logger) []supervisor.Notification {
	batch := make([]supervisor.Notification, 0, len(change.MonitoredItems))
	for _, item := range change.MonitoredItems {
		if item == nil {
			continue
		}
		nodeID, ok := handles[item.ClientHandle]
		if !ok {
			logger.Warn("notification for unknown client handle", "handle", item.ClientHandle)
			continue
		}
		notification := supervisor.Notification{NodeID: nodeID}
		if value := item.Value; value != nil {
			if value.Value != nil {
				notification.Value = value.Value.Value()
			}
			notification.SourceTimestamp = value.SourceTimestamp
			if notification.SourceTimestamp.IsZero() {
				notification.SourceTimestamp = value.ServerTimestamp
			}
			notification.Good = isGood(value.Status)
			notification.Status = statusText(value.Status)
		}
		batch = append(batch, notification)
	}
	return batch
}

// isGood reports whether the severity bits of status are Good.
func isGood(status ua.StatusCode) bool {
	return uint32(status)&0xC0000000 == 0
}

func statusText(status ua.StatusCode) string {
	if status == ua.StatusOK {
		return "Good"
	}
	return status.Error()
}
