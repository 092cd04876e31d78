package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Sink receives batches of security events. Sink failures are logged and
// swallowed by the dispatcher: audit delivery must never affect the request
// that produced the event.
type Sink interface {
	Name() string
	Write(ctx context.Context, events []*SecurityEvent) error
}

// DispatcherConfig tunes the background delivery loop.
type DispatcherConfig struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

// Dispatcher queues security events on a bounded channel and delivers them to
// its sinks in batches from a background goroutine. Submission never blocks;
// when the buffer is full the event is dropped and counted.
type Dispatcher struct {
	config  DispatcherConfig
	logger  *zap.Logger
	sinks   []Sink
	events  chan *SecurityEvent
	batch   []*SecurityEvent
	dropped int64
	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewDispatcher creates a dispatcher delivering to sinks.
func NewDispatcher(cfg DispatcherConfig, logger *zap.Logger, sinks ...Sink) *Dispatcher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 16
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 2 * time.Second
	}
	return &Dispatcher{
		config: cfg,
		logger: logger,
		sinks:  sinks,
		events: make(chan *SecurityEvent, cfg.BufferSize),
		batch:  make([]*SecurityEvent, 0, cfg.BatchSize),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start launches the delivery loop.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return fmt.Errorf("audit: dispatcher already running")
	}
	d.running = true
	go d.deliveryLoop(ctx)
	d.logger.Info("audit dispatcher started",
		zap.Int("buffer_size", d.config.BufferSize),
		zap.Int("batch_size", d.config.BatchSize),
	)
	return nil
}

// Stop flushes pending events and stops the loop.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	d.mu.Unlock()

	close(d.stop)
	select {
	case <-d.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	d.logger.Info("audit dispatcher stopped", zap.Int64("dropped", d.dropped))
	return nil
}

// Submit enqueues an event for delivery. Missing IDs and timestamps are
// filled here so every sink observes the same record.
func (d *Dispatcher) Submit(event *SecurityEvent) {
	if event == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	select {
	case d.events <- event:
	default:
		d.mu.Lock()
		d.dropped++
		d.mu.Unlock()
		d.logger.Warn("audit buffer full, dropping event",
			zap.String("event_id", event.ID),
			zap.String("type", string(event.Type)),
		)
	}
}

// Dropped reports how many events were discarded due to backpressure.
func (d *Dispatcher) Dropped() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

func (d *Dispatcher) deliveryLoop(ctx context.Context) {
	defer close(d.done)
	ticker := time.NewTicker(d.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.flush(context.Background())
			return
		case <-d.stop:
			d.drain()
			d.flush(context.Background())
			return
		case event := <-d.events:
			d.batch = append(d.batch, event)
			if len(d.batch) >= d.config.BatchSize {
				d.flush(ctx)
			}
		case <-ticker.C:
			d.flush(ctx)
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		select {
		case event := <-d.events:
			d.batch = append(d.batch, event)
		default:
			return
		}
	}
}

func (d *Dispatcher) flush(ctx context.Context) {
	if len(d.batch) == 0 {
		return
	}
	batch := d.batch
	d.batch = make([]*SecurityEvent, 0, d.config.BatchSize)

	for _, sink := range d.sinks {
		if err := sink.Write(ctx, batch); err != nil {
			d.logger.Error("audit sink write failed",
				zap.String("sink", sink.Name()),
				zap.Int("count", len(batch)),
				zap.Error(err),
			)
		}
	}
}

// CollectorSink submits events to the remote audit collector over HTTP.
type CollectorSink struct {
	endpoint string
	client   *http.Client
}

// NewCollectorSink creates a sink posting to endpoint.
func NewCollectorSink(endpoint string, timeout time.Duration) *CollectorSink {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &CollectorSink{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// Name implements Sink.
func (s *CollectorSink) Name() string { return "collector" }

// Write posts the batch as a JSON array. The collector assigns its own IDs
// and timestamps, so those fields are advisory on the wire.
func (s *CollectorSink) Write(ctx context.Context, events []*SecurityEvent) error {
	body, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("audit: failed to encode batch: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("audit: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("audit: collector unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("audit: collector returned status %d", resp.StatusCode)
	}
	return nil
}
