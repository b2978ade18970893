package sync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/alfredjeanlab/charters/internal/events"
	"github.com/alfredjeanlab/charters/internal/metrics"
)

// mockDestination records calls to Write.
type mockDestination struct {
	name   string
	err    error
	writes atomic.Int64
	last   atomic.Value // []byte
}

func (d *mockDestination) Name() string {
	if d.name == "" {
		return "mock"
	}
	return d.name
}

func (d *mockDestination) Write(_ context.Context, data []byte) error {
	d.writes.Add(1)
	cp := make([]byte, len(data))
	copy(cp, data)
	d.last.Store(cp)
	return d.err
}

// capturePublisher keeps the last published event.
type capturePublisher struct {
	topic string
	event any
}

func (p *capturePublisher) Publish(_ context.Context, topic string, event any) error {
	p.topic, p.event = topic, event
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSchedulerStartStop(t *testing.T) {
	dest := &mockDestination{}
	sched := NewScheduler(ledgerFixture(), []Destination{dest}, 50*time.Millisecond, discardLogger())
	sched.Start()

	// Wait for at least the initial sync + one tick.
	time.Sleep(120 * time.Millisecond)
	sched.Stop()

	if writes := dest.writes.Load(); writes < 2 {
		t.Fatalf("expected at least 2 writes, got %d", writes)
	}

	data, ok := dest.last.Load().([]byte)
	if !ok || len(data) == 0 {
		t.Fatal("expected non-empty data")
	}
	// 1 header + 2 charters + 1 section + 1 version
	if lines := nonEmptyLines(string(data)); len(lines) != 5 {
		t.Fatalf("expected 5 lines, got %d", len(lines))
	}
}

func TestSchedulerStop_NoStart(t *testing.T) {
	sched := NewScheduler(newFakeSource(), nil, time.Minute, discardLogger())
	// Stop without Start should not panic.
	sched.Stop()
}

func TestSyncOnce_PartialFailure(t *testing.T) {
	ok := &mockDestination{name: "git"}
	bad := &mockDestination{name: "s3", err: errors.New("access denied")}
	m := metrics.New()
	pub := &capturePublisher{}

	sched := NewScheduler(ledgerFixture(), []Destination{bad, ok}, time.Minute, discardLogger(),
		WithMetrics(m), WithPublisher(pub))
	err := sched.SyncOnce(context.Background())
	if err == nil || !errors.Is(err, bad.err) {
		t.Fatalf("expected the s3 failure to be reported, got %v", err)
	}
	if ok.writes.Load() != 1 {
		t.Fatal("a failing destination must not stop the others")
	}

	if pub.topic != events.TopicLedgerExported {
		t.Fatalf("expected %s, got %q", events.TopicLedgerExported, pub.topic)
	}
	evt := pub.event.(events.LedgerExported)
	if evt.Charters != 2 || evt.Versions != 1 || len(evt.SHA256) != 64 {
		t.Fatalf("unexpected event: %+v", evt)
	}
	if len(evt.Failed) != 1 || evt.Failed[0] != "s3" || len(evt.Destinations) != 2 {
		t.Fatalf("unexpected destinations: %+v", evt)
	}
}

func TestSyncOnce_Metrics(t *testing.T) {
	m := metrics.New()
	sched := NewScheduler(ledgerFixture(), []Destination{
		&mockDestination{name: "git"},
		&mockDestination{name: "s3", err: errors.New("timeout")},
	}, time.Minute, discardLogger(), WithMetrics(m))
	_ = sched.SyncOnce(context.Background())

	if n := testutil.CollectAndCount(m.Registry(), "charters_ledger_exports_total"); n != 2 {
		t.Fatalf("expected 2 export series, got %d", n)
	}
}

func TestSyncOnce_ExportError(t *testing.T) {
	src := newFakeSource()
	src.err = errors.New("db down")
	dest := &mockDestination{}
	sched := NewScheduler(src, []Destination{dest}, time.Minute, discardLogger())

	if err := sched.SyncOnce(context.Background()); !errors.Is(err, src.err) {
		t.Fatalf("expected export error, got %v", err)
	}
	if dest.writes.Load() != 0 {
		t.Fatal("nothing should be written when the export fails")
	}
}
