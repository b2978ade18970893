// Package sync exports the charter ledger (charters, sections and every
// version snapshot) as JSONL to S3 and git on a schedule.
package sync

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/charters/internal/events"
	"github.com/alfredjeanlab/charters/internal/metrics"
)

// Destination is the interface for a sync target (S3, git, etc.).
type Destination interface {
	// Name labels the destination in logs and metrics.
	Name() string
	// Write sends the JSONL payload to the destination.
	Write(ctx context.Context, data []byte) error
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithMetrics counts export results per destination.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithPublisher announces each export run on TopicLedgerExported.
func WithPublisher(p events.Publisher) Option {
	return func(s *Scheduler) { s.publisher = p }
}

// Scheduler runs periodic syncs to one or more destinations.
type Scheduler struct {
	source       Source
	destinations []Destination
	interval     time.Duration
	logger       *slog.Logger
	metrics      *metrics.Metrics
	publisher    events.Publisher

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler that exports from src to the given
// destinations at the specified interval.
func NewScheduler(src Source, destinations []Destination, interval time.Duration, logger *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		source:       src,
		destinations: destinations,
		interval:     interval,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins periodic sync. It runs an initial sync immediately, then
// on each tick.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop cancels the scheduler and waits for the current sync (if any) to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	_ = s.SyncOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.SyncOnce(ctx)
		}
	}
}

// SyncOnce exports the ledger and writes it to every destination. A failing
// destination does not stop the others; the returned error joins all
// failures.
func (s *Scheduler) SyncOnce(ctx context.Context) error {
	var buf bytes.Buffer
	sum, err := ExportJSONL(ctx, s.source, &buf)
	if err != nil {
		s.logger.Error("sync export failed", "err", err)
		return err
	}
	data := buf.Bytes()
	digest := sha256.Sum256(data)

	var (
		errs   []error
		names  []string
		failed []string
	)
	for _, dest := range s.destinations {
		names = append(names, dest.Name())
		err := dest.Write(ctx, data)
		s.metrics.ObserveExport(dest.Name(), err)
		if err != nil {
			s.logger.Error("sync destination write failed", "destination", dest.Name(), "err", err)
			failed = append(failed, dest.Name())
			errs = append(errs, fmt.Errorf("%s: %w", dest.Name(), err))
		}
	}

	s.logger.Info("sync completed",
		"destinations", len(s.destinations),
		"failed", len(failed),
		"charters", sum.Charters,
		"versions", sum.Versions,
		"bytes", len(data))

	if s.publisher != nil {
		evt := events.LedgerExported{
			Charters:     sum.Charters,
			Sections:     sum.Sections,
			Versions:     sum.Versions,
			Bytes:        len(data),
			SHA256:       hex.EncodeToString(digest[:]),
			Destinations: names,
			Failed:       failed,
			At:           time.Now().UTC().Format(time.RFC3339),
		}
		if err := s.publisher.Publish(ctx, events.TopicLedgerExported, evt); err != nil {
			s.logger.Warn("failed to publish export event", "err", err)
		}
	}
	return errors.Join(errs...)
}
