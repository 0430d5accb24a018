// Package service wires the ingest pipeline: validate, normalize, apply.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/provgraph/provgraph/internal/adapter/otel"
	"github.com/provgraph/provgraph/internal/adapter/ws"
	"github.com/provgraph/provgraph/internal/domain"
	"github.com/provgraph/provgraph/internal/domain/graph"
	"github.com/provgraph/provgraph/internal/domain/prov"
	"github.com/provgraph/provgraph/internal/normalizer"
	"github.com/provgraph/provgraph/internal/port/cache"
	"github.com/provgraph/provgraph/internal/port/graphstore"
)

// Config tunes the write scheduler.
type Config struct {
	// Parallelism bounds concurrent store applies across all flows.
	Parallelism int64
	// MaxAttempts bounds applies per event, first try included.
	MaxAttempts int
	// BaseBackoff is the first retry delay; it doubles per attempt.
	BaseBackoff time.Duration
	// DedupTTL is how long applied event ids stay in the dedup cache.
	DedupTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.Parallelism <= 0 {
		c.Parallelism = 16
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 100 * time.Millisecond
	}
	if c.DedupTTL <= 0 {
		c.DedupTTL = 10 * time.Minute
	}
	return c
}

// Ingestor runs events through validate, normalize and apply. Events
// sharing a task (or a context, for task-less flows) are applied strictly
// one at a time so last-writer-wins property merges observe source order.
type Ingestor struct {
	store   graphstore.Store
	dedup   cache.Cache // optional
	hub     *ws.Hub     // optional
	metrics *otel.Metrics
	logger  *slog.Logger
	cfg     Config

	sem *semaphore.Weighted

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewIngestor builds an ingestor. dedup and hub may be nil.
func NewIngestor(store graphstore.Store, dedup cache.Cache, hub *ws.Hub, metrics *otel.Metrics, logger *slog.Logger, cfg Config) *Ingestor {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		store:   store,
		dedup:   dedup,
		hub:     hub,
		metrics: metrics,
		logger:  logger,
		cfg:     cfg,
		sem:     semaphore.NewWeighted(cfg.Parallelism),
		locks:   make(map[string]*sync.Mutex),
	}
}

// Ingest processes one event end to end. Validation failures and
// domain.ErrConflict are returned to the caller; transient store failures
// are retried with exponential backoff up to the attempt bound.
func (s *Ingestor) Ingest(ctx context.Context, event prov.Event) error {
	ctx, span := otel.StartIngestSpan(ctx, event.ID, string(kindOf(event)), event.TaskID)
	defer span.End()

	if err := event.Validate(); err != nil {
		if s.metrics != nil {
			s.metrics.EventsRejected.Add(ctx, 1)
		}
		return fmt.Errorf("validate event %s: %w", event.ID, err)
	}

	if s.seen(ctx, event.ID) {
		if s.metrics != nil {
			s.metrics.EventsDeduped.Add(ctx, 1)
		}
		s.logger.Debug("event already applied, skipping", "event_id", event.ID)
		return nil
	}

	cs, err := normalizer.Normalize(event)
	if err != nil {
		if s.metrics != nil {
			s.metrics.EventsRejected.Add(ctx, 1)
		}
		return err
	}
	if cs.Empty() {
		return nil
	}

	lock := s.flowLock(event)
	lock.Lock()
	defer lock.Unlock()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire write slot: %w", err)
	}
	defer s.sem.Release(1)

	if err := s.applyWithRetry(ctx, event, cs); err != nil {
		return err
	}

	s.markSeen(ctx, event.ID)
	if s.metrics != nil {
		s.metrics.EventsIngested.Add(ctx, 1)
		s.metrics.NodesUpserted.Add(ctx, int64(len(cs.Nodes)))
		s.metrics.EdgesUpserted.Add(ctx, int64(len(cs.Edges)))
	}
	if s.hub != nil {
		s.hub.BroadcastEvent(ctx, ws.EventApplied, ws.AppliedEvent{
			EventID:   event.ID,
			ContextID: event.ContextID,
			TaskID:    event.TaskID,
			Kind:      string(kindOf(event)),
			Nodes:     len(cs.Nodes),
			Edges:     len(cs.Edges),
		})
	}
	return nil
}

// IngestBatch applies events in slice order, which preserves per-task
// ordering as long as the producer batched them in source order. It stops
// at the first failure so redelivery resumes from the failed event.
func (s *Ingestor) IngestBatch(ctx context.Context, events []prov.Event) error {
	for i, event := range events {
		if err := s.Ingest(ctx, event); err != nil {
			return fmt.Errorf("batch event %d (%s): %w", i, event.ID, err)
		}
	}
	return nil
}

// HandleMessage adapts the ingestor to the message queue handler signature.
func (s *Ingestor) HandleMessage(ctx context.Context, subject string, data []byte) error {
	var event prov.Event
	if err := json.Unmarshal(data, &event); err != nil {
		return fmt.Errorf("decode event from %s: %w", subject, err)
	}
	return s.Ingest(ctx, event)
}

func (s *Ingestor) applyWithRetry(ctx context.Context, event prov.Event, cs *graph.ChangeSet) error {
	applyCtx, span := otel.StartApplySpan(ctx, event.ID, len(cs.Nodes), len(cs.Edges))
	defer span.End()

	backoff := s.cfg.BaseBackoff
	var err error
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		start := time.Now()
		err = s.store.Apply(applyCtx, cs)
		if s.metrics != nil {
			s.metrics.ApplyDuration.Record(applyCtx, time.Since(start).Seconds())
		}
		if err == nil {
			return nil
		}
		// Conflicts mean a writer outside our ordering discipline; surface
		// them instead of racing it.
		if errors.Is(err, domain.ErrConflict) || !errors.Is(err, domain.ErrUnavailable) {
			return fmt.Errorf("apply event %s: %w", event.ID, err)
		}
		if attempt == s.cfg.MaxAttempts {
			break
		}
		if s.metrics != nil {
			s.metrics.WriteRetries.Add(applyCtx, 1)
		}
		s.logger.Warn("store apply failed, retrying",
			"event_id", event.ID, "attempt", attempt, "backoff", backoff, "error", err)
		select {
		case <-applyCtx.Done():
			return applyCtx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return fmt.Errorf("apply event %s after %d attempts: %w", event.ID, s.cfg.MaxAttempts, err)
}

// flowLock returns the serialization lock for an event's flow: its task,
// or its context when no task is set.
func (s *Ingestor) flowLock(event prov.Event) *sync.Mutex {
	key := "ctx:" + event.ContextID
	if event.TaskID != "" {
		key = "task:" + event.TaskID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	return lock
}

func (s *Ingestor) seen(ctx context.Context, eventID string) bool {
	if s.dedup == nil {
		return false
	}
	_, ok, err := s.dedup.Get(ctx, dedupKey(eventID))
	if err != nil {
		s.logger.Debug("dedup cache read failed", "event_id", eventID, "error", err)
		return false
	}
	return ok
}

func (s *Ingestor) markSeen(ctx context.Context, eventID string) {
	if s.dedup == nil {
		return
	}
	if err := s.dedup.Set(ctx, dedupKey(eventID), []byte{1}, s.cfg.DedupTTL); err != nil {
		s.logger.Debug("dedup cache write failed", "event_id", eventID, "error", err)
	}
}

func dedupKey(eventID string) string { return "evt:" + eventID }

func kindOf(event prov.Event) prov.Kind {
	if event.Data == nil {
		return ""
	}
	return event.Data.Kind()
}
