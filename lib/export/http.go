// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"golang.org/x/net/http2"
)

// maxResponseBody bounds how much of a response is read for logging.
const maxResponseBody = 64 << 10

// HTTPConfig configures an HTTPSink.
type HTTPConfig struct {
	// TargetURL receives every POST. Required.
	TargetURL string

	// Client overrides the default HTTP/2-capable client.
	Client *http.Client

	Logger *slog.Logger
}

// HTTPSink POSTs events as JSON.
type HTTPSink struct {
	target string
	client *http.Client
	logger *slog.Logger
}

// NewHTTPSink validates config and builds the client. The default
// transport negotiates HTTP/2 over TLS and falls back to HTTP/1.1.
func NewHTTPSink(config HTTPConfig) (*HTTPSink, error) {
	target, err := url.Parse(config.TargetURL)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		return nil, fmt.Errorf("export: target URL %q must be an http(s) URL", config.TargetURL)
	}
	client := config.Client
	if client == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if err := http2.ConfigureTransport(transport); err != nil {
			return nil, fmt.Errorf("export: configuring HTTP/2: %w", err)
		}
		client = &http.Client{Transport: transport}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &HTTPSink{target: target.String(), client: client, logger: logger}, nil
}

// Name implements Sink.
func (s *HTTPSink) Name() string { return "api" }

// Deliver POSTs the event body. The request is bounded by ctx.
func (s *HTTPSink) Deliver(ctx context.Context, event Event) error {
	body, err := marshalBody(event)
	if err != nil {
		return err
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, s.target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := s.client.Do(request)
	if err != nil {
		return fmt.Errorf("posting to %s: %w", s.target, err)
	}
	defer response.Body.Close()

	responseBody, readErr := io.ReadAll(io.LimitReader(response.Body, maxResponseBody))
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return fmt.Errorf("posting to %s: HTTP %d: %s", s.target, response.StatusCode, bytes.TrimSpace(responseBody))
	}
	if readErr != nil {
		s.logger.Debug("reading response body failed", "event", event.ID, "error", readErr)
		return nil
	}
	if len(bytes.TrimSpace(responseBody)) == 0 {
		return nil
	}

	var result any
	if err := json.Unmarshal(responseBody, &result); err != nil {
		s.logger.Debug("response is not JSON", "event", event.ID, "error", err)
		return nil
	}
	s.logger.Debug("api accepted event", "event", event.ID, "response", result)
	return nil
}
