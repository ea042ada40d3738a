// Package httptransport sends odatakit requests over net/http.
package httptransport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fy0/odatakit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Transport implements odatakit.Transport. It performs exactly one round trip
// per Send and never retries.
type Transport struct {
	client  *http.Client
	timeout time.Duration
	logger  zerolog.Logger
	reg     prometheus.Registerer
	metrics *metrics
}

var _ odatakit.Transport = (*Transport)(nil)

// Option configures a Transport.
type Option func(*Transport)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Transport) {
		if c != nil {
			t.client = c
		}
	}
}

// WithTimeout bounds each round trip, on top of any deadline carried by the
// request context.
func WithTimeout(d time.Duration) Option {
	return func(t *Transport) {
		t.timeout = d
	}
}

// WithLogger logs one event per round trip.
func WithLogger(logger zerolog.Logger) Option {
	return func(t *Transport) {
		t.logger = logger
	}
}

// WithMetrics records request counts and durations on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(t *Transport) {
		t.reg = reg
	}
}

// New builds a Transport. It fails only when metric registration does.
func New(opts ...Option) (*Transport, error) {
	t := &Transport{
		client: http.DefaultClient,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	if t.reg != nil {
		m, err := newMetrics(t.reg)
		if err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		t.metrics = m
	}
	return t, nil
}

// Send performs the round trip described by req.
func (t *Transport) Send(ctx context.Context, req *odatakit.Request) (*odatakit.Response, error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for name, values := range req.Header {
		httpReq.Header[name] = append([]string(nil), values...)
	}

	start := time.Now()
	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		t.observe(req, 0, 0, time.Since(start), err)
		return nil, err
	}
	defer httpResp.Body.Close()

	payload, err := io.ReadAll(httpResp.Body)
	if err != nil {
		t.observe(req, httpResp.StatusCode, len(payload), time.Since(start), err)
		return nil, fmt.Errorf("read response body: %w", err)
	}
	t.observe(req, httpResp.StatusCode, len(payload), time.Since(start), nil)

	return &odatakit.Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       payload,
	}, nil
}

func (t *Transport) observe(req *odatakit.Request, status, size int, d time.Duration, err error) {
	t.metrics.record(req.Method, status, d)

	event := t.logger.Debug()
	switch {
	case err != nil || status >= 500:
		event = t.logger.Error()
	case status >= 400:
		event = t.logger.Warn()
	}
	if err != nil {
		event = event.Err(err)
	}
	event.
		Str("method", req.Method).
		Str("url", req.URL).
		Int("status", status).
		Dur("duration", d).
		Int("bytes", size).
		Msg("odata_request")
}
