package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/ELLIO-Technology/mmdbtree/pkg/logger"
)

const (
	defaultBatchSize     = 50
	defaultFlushInterval = 5 * time.Second
	maxRetries           = 3
	initialBackoff       = 1 * time.Second
	maxBackoff           = 10 * time.Second
)

// BatchMetadata identifies the tool run that produced a batch of events.
type BatchMetadata struct {
	MachineID string `json:"machine_id"`
	ToolName  string `json:"tool_name"`
}

// BatchPayload wraps a batch of events with the run's metadata.
type BatchPayload struct {
	BatchMetadata *BatchMetadata `json:"batch_metadata"`
	Events        []*BuildEvent  `json:"events"`
}

// Shipper batches BuildEvents and posts them to a telemetry collector,
// adapted from the teacher's pkg/logs.LogShipper (SendEvent/Start/Stop
// shape, channel-plus-overflow-buffer, leaky-bucket rate limiting,
// retry-with-backoff). The teacher's Yaegi-workaround fast-poll ticker —
// needed because the Traefik plugin interpreter mishandled select over
// channels — has no reason to exist in a normally compiled binary and is
// dropped; everything else survives.
type Shipper struct {
	client   *http.Client
	endpoint string
	token    string
	bucket   *LeakyBucket

	eventChan chan *BuildEvent
	buffer    *RingBuffer

	batchSize     int
	flushInterval time.Duration

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	batchMetadata *BatchMetadata
	metaMu        sync.RWMutex

	mu            sync.Mutex
	eventsShipped int64
	eventsDropped int64
}

// Config holds the shipper's tunables.
type Config struct {
	Endpoint       string
	Token          string
	BatchSize      int
	FlushInterval  time.Duration
	BucketCapacity int64
	RefillRate     int64
	BufferSize     int
}

// NewShipper creates a shipper posting batches to cfg.Endpoint. Endpoint
// being empty is a valid "telemetry disabled" configuration: SendEvent
// simply drops events on the floor in that case.
func NewShipper(cfg Config) *Shipper {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}
	if cfg.BucketCapacity <= 0 {
		cfg.BucketCapacity = 1000
	}
	if cfg.RefillRate <= 0 {
		cfg.RefillRate = 50
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Shipper{
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     30 * time.Second,
				MaxIdleConnsPerHost: 2,
			},
		},
		endpoint:      cfg.Endpoint,
		token:         cfg.Token,
		bucket:        NewLeakyBucket(cfg.BucketCapacity, cfg.RefillRate),
		eventChan:     make(chan *BuildEvent, 256),
		buffer:        NewRingBuffer(cfg.BufferSize),
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// SetBatchMetadata updates the metadata attached to every future batch.
func (s *Shipper) SetBatchMetadata(metadata *BatchMetadata) {
	s.metaMu.Lock()
	s.batchMetadata = metadata
	s.metaMu.Unlock()
}

// Start begins the background batching goroutine.
func (s *Shipper) Start() {
	logger.Trace("Starting telemetry shipper")
	s.wg.Add(1)
	go s.processEvents()
}

// Stop drains and ships any remaining events, waiting up to 5s for the
// goroutine to exit cleanly.
func (s *Shipper) Stop() error {
	s.cancel()
	close(s.eventChan)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.flushBuffer()
		return nil
	case <-time.After(5 * time.Second):
		return errors.New("timeout waiting for telemetry shipper to stop")
	}
}

// SendEvent enqueues event for shipping, falling back to the overflow
// buffer if the channel is full.
func (s *Shipper) SendEvent(event *BuildEvent) {
	if s.endpoint == "" {
		ReturnToPool(event)
		return
	}
	select {
	case s.eventChan <- event:
	default:
		if !s.buffer.Add(event) {
			s.mu.Lock()
			s.eventsDropped++
			dropped := s.eventsDropped
			s.mu.Unlock()
			logger.Warnf("telemetry event dropped - buffer full (total dropped: %d)", dropped)
		}
	}
}

func (s *Shipper) processEvents() {
	defer s.wg.Done()

	flushTicker := time.NewTicker(s.flushInterval)
	defer flushTicker.Stop()

	batch := make([]*BuildEvent, 0, s.batchSize)

	for {
		select {
		case <-s.ctx.Done():
			// Stop closes eventChan right after cancelling; collect what
			// is still queued so it ships with the final batch.
			for event := range s.eventChan {
				batch = append(batch, event)
			}
			if len(batch) > 0 {
				s.shipBatch(batch)
			}
			return

		case event, ok := <-s.eventChan:
			if !ok {
				if len(batch) > 0 {
					s.shipBatch(batch)
				}
				return
			}
			batch = append(batch, event)
			if len(batch) >= s.batchSize {
				s.shipBatch(batch)
				batch = make([]*BuildEvent, 0, s.batchSize)
			}

		case <-flushTicker.C:
			if len(batch) > 0 {
				s.shipBatch(batch)
				batch = make([]*BuildEvent, 0, s.batchSize)
			}
			s.processBufferedEvents()
		}
	}
}

func (s *Shipper) processBufferedEvents() {
	events := s.buffer.Drain(s.batchSize)
	if len(events) > 0 {
		s.shipBatch(events)
	}
}

func (s *Shipper) shipBatch(events []*BuildEvent) {
	waitTime := s.bucket.WaitTime(1)
	if waitTime > 0 {
		time.Sleep(waitTime)
	}

	if !s.bucket.Allow(1) {
		logger.Warn("telemetry rate limited, re-buffering events")
		for _, event := range events {
			if !s.buffer.Add(event) {
				s.mu.Lock()
				s.eventsDropped++
				s.mu.Unlock()
				ReturnToPool(event)
			}
		}
		return
	}

	payload, err := s.eventsToJSON(events)
	if err != nil {
		logger.Errorf("telemetry: failed to marshal batch: %v", err)
		s.mu.Lock()
		s.eventsDropped += int64(len(events))
		s.mu.Unlock()
		for _, event := range events {
			ReturnToPool(event)
		}
		return
	}

	if err := s.sendWithRetry(payload); err != nil {
		logger.Warnf("telemetry: failed to ship batch of %d events: %v", len(events), err)
		for _, event := range events {
			if !s.buffer.Add(event) {
				s.mu.Lock()
				s.eventsDropped++
				s.mu.Unlock()
				ReturnToPool(event)
			}
		}
		return
	}

	s.mu.Lock()
	s.eventsShipped += int64(len(events))
	shipped := s.eventsShipped
	s.mu.Unlock()
	logger.Debugf("telemetry: shipped %d events (total: %d)", len(events), shipped)
	for _, event := range events {
		ReturnToPool(event)
	}
}

func (s *Shipper) sendWithRetry(payload []byte) error {
	var lastErr error
	backoff := initialBackoff

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(backoff)
			if backoff*2 > maxBackoff {
				backoff = maxBackoff
			} else {
				backoff *= 2
			}
		}

		if err := s.send(payload); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	return lastErr
}

func (s *Shipper) send(payload []byte) error {
	if s.endpoint == "" {
		return errors.New("telemetry endpoint not configured")
	}

	// Stop cancels s.ctx before draining the buffer so processEvents can
	// unblock; requests issued during that drain must not inherit the
	// cancellation, or the final batch would always fail to ship. The
	// client's own 30s Timeout bounds the request instead.
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return errors.New("telemetry: server responded with: " + string(body))
}

func (s *Shipper) flushBuffer() {
	events := s.buffer.DrainAll()

	for len(events) > 0 {
		n := s.batchSize
		if n > len(events) {
			n = len(events)
		}
		s.shipBatch(events[:n])
		events = events[n:]
	}
}

func (s *Shipper) eventsToJSON(events []*BuildEvent) ([]byte, error) {
	s.metaMu.RLock()
	metadata := s.batchMetadata
	s.metaMu.RUnlock()

	return json.Marshal(BatchPayload{BatchMetadata: metadata, Events: events})
}

// Stats reports cumulative shipped/dropped event counts.
func (s *Shipper) Stats() (shipped, dropped int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eventsShipped, s.eventsDropped
}
