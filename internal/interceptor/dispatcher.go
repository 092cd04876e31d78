package interceptor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/nimbafinance/edge-gateway/internal/metrics"
)

// Response is the upstream reply handed back to the edge.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// Dispatcher is the transport layer behind the pipeline. It resolves the
// request URL against the upstream base and performs exactly one attempt;
// there is no retry policy anywhere in this path.
type Dispatcher struct {
	base      *url.URL
	client    *http.Client
	collector *metrics.Collector
	logger    *zap.Logger
}

// NewDispatcher creates a dispatcher for the upstream base URL.
func NewDispatcher(baseURL string, timeout time.Duration, collector *metrics.Collector, logger *zap.Logger) (*Dispatcher, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("dispatcher: invalid upstream url: %w", err)
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Dispatcher{
		base:      base,
		client:    &http.Client{Timeout: timeout},
		collector: collector,
		logger:    logger,
	}, nil
}

// Dispatch sends the final pipeline output upstream.
func (d *Dispatcher) Dispatch(ctx context.Context, req *OutboundRequest) (*Response, error) {
	target, err := d.resolve(req.URL)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if req.Body != nil {
		raw, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("dispatcher: failed to encode body: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("dispatcher: failed to build request: %w", err)
	}
	for k, values := range req.Headers {
		for _, v := range values {
			httpReq.Header.Add(k, v)
		}
	}
	if req.Body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := d.client.Do(httpReq)
	duration := time.Since(start)
	if err != nil {
		if d.collector != nil {
			d.collector.ObserveDispatch("error", duration)
		}
		return nil, fmt.Errorf("dispatcher: upstream unreachable: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("dispatcher: failed to read response: %w", err)
	}

	if d.collector != nil {
		d.collector.ObserveDispatch(statusClass(resp.StatusCode), duration)
	}
	d.logger.Debug("request dispatched",
		zap.String("method", req.Method),
		zap.String("url", target),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", duration),
	)

	return &Response{
		Status:  resp.StatusCode,
		Headers: resp.Header.Clone(),
		Body:    respBody,
	}, nil
}

func (d *Dispatcher) resolve(raw string) (string, error) {
	ref, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("dispatcher: invalid request url: %w", err)
	}
	return d.base.ResolveReference(ref).String(), nil
}

func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}
