package eventpublisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/iho/numledger/internal/domain"
	"github.com/iho/numledger/internal/infrastructure/metrics"
	"github.com/iho/numledger/internal/usecase"
)

func TestProcessEventsPublishesAndMarks(t *testing.T) {
	repo := &stubOutboxRepo{
		events: []*domain.OutboxEvent{{ID: "evt-1", EventType: domain.EventTypeUserRevoked}},
	}
	pub := &stubPublisher{}
	ep := newTestPublisher(repo, pub)

	if err := ep.processEvents(context.Background()); err != nil {
		t.Fatalf("processEvents failed: %v", err)
	}

	if len(pub.published) != 1 {
		t.Fatalf("expected one published event, got %d", len(pub.published))
	}
	if len(repo.marked) != 1 || repo.marked[0] != "evt-1" {
		t.Fatalf("expected event to be marked published, got %#v", repo.marked)
	}
	if got := testutil.ToFloat64(ep.metrics.EventsPublished.WithLabelValues(domain.EventTypeUserRevoked, "ok")); got != 1 {
		t.Fatalf("expected published counter 1, got %v", got)
	}
}

func TestProcessEventsContinuesOnPublishError(t *testing.T) {
	repo := &stubOutboxRepo{
		events: []*domain.OutboxEvent{
			{ID: "evt-1", EventType: "type"},
			{ID: "evt-2", EventType: "type"},
		},
	}
	pub := &stubPublisher{
		errorsByID: map[string]error{"evt-1": errors.New("fail")},
	}
	ep := newTestPublisher(repo, pub)

	if err := ep.processEvents(context.Background()); err != nil {
		t.Fatalf("processEvents returned error: %v", err)
	}

	if len(pub.published) != 1 || pub.published[0].ID != "evt-2" {
		t.Fatalf("expected only evt-2 to be published, got %#v", pub.published)
	}
	if len(repo.marked) != 1 || repo.marked[0] != "evt-2" {
		t.Fatalf("expected only evt-2 to be marked, got %#v", repo.marked)
	}
	if got := testutil.ToFloat64(ep.metrics.EventsPublished.WithLabelValues("type", "error")); got != 1 {
		t.Fatalf("expected error counter 1, got %v", got)
	}
}

func TestProcessEventsReturnsRepositoryError(t *testing.T) {
	repo := &stubOutboxRepo{err: errors.New("db down")}
	ep := newTestPublisher(repo, &stubPublisher{})

	if err := ep.processEvents(context.Background()); err == nil {
		t.Fatal("expected repository error")
	}
}

func TestCleanupDeletesOldPublishedEvents(t *testing.T) {
	repo := &stubOutboxRepo{}
	ep := newTestPublisher(repo, &stubPublisher{})
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	ep.now = func() time.Time { return now }

	ep.cleanup(context.Background())
	if repo.deletedBefore != nil {
		t.Fatalf("expected no cleanup without retention")
	}

	ep.retention = 24 * time.Hour
	ep.cleanup(context.Background())
	if repo.deletedBefore == nil || !repo.deletedBefore.Equal(now.Add(-24*time.Hour)) {
		t.Fatalf("unexpected cleanup cutoff: %v", repo.deletedBefore)
	}
}

func TestStartStopsOnContextCancellation(t *testing.T) {
	repo := &stubOutboxRepo{}
	pub := &stubPublisher{}
	ep := newTestPublisher(repo, pub)
	ep.interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ep.Start(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("publisher did not stop after cancel")
	}
}

func TestLogPublisherWritesPayload(t *testing.T) {
	var buf bytes.Buffer
	p := NewLogPublisher(zerolog.New(&buf))

	err := p.Publish(context.Background(), &domain.OutboxEvent{
		ID:        "evt-1",
		EventType: domain.EventTypeReservationExpired,
		Payload:   map[string]any{"amount": "5"},
	})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("invalid log line %q: %v", buf.String(), err)
	}
	payload, _ := line["payload"].(map[string]any)
	if payload["amount"] != "5" {
		t.Fatalf("unexpected payload in log: %v", line)
	}
}

func newTestPublisher(repo *stubOutboxRepo, pub *stubPublisher) *EventPublisher {
	return NewEventPublisher(Config{
		OutboxRepo: repo,
		Publisher:  pub,
		Metrics:    metrics.New(prometheus.NewRegistry()),
		Logger:     zerolog.Nop(),
		BatchSize:  10,
		Interval:   5 * time.Millisecond,
	})
}

var _ usecase.OutboxRepository = (*stubOutboxRepo)(nil)

type stubOutboxRepo struct {
	events        []*domain.OutboxEvent
	marked        []string
	deletedBefore *time.Time
	err           error
}

func (s *stubOutboxRepo) Create(ctx context.Context, tx usecase.Transaction, event *domain.OutboxEvent) error {
	return nil
}

func (s *stubOutboxRepo) GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	if s.err != nil {
		return nil, s.err
	}
	if len(s.events) <= limit {
		return append([]*domain.OutboxEvent(nil), s.events...), nil
	}
	return append([]*domain.OutboxEvent(nil), s.events[:limit]...), nil
}

func (s *stubOutboxRepo) MarkPublished(ctx context.Context, id string, publishedAt time.Time) error {
	s.marked = append(s.marked, id)
	return nil
}

func (s *stubOutboxRepo) DeletePublished(ctx context.Context, before time.Time) error {
	s.deletedBefore = &before
	return nil
}

type stubPublisher struct {
	published  []*domain.OutboxEvent
	errorsByID map[string]error
}

func (s *stubPublisher) Publish(ctx context.Context, event *domain.OutboxEvent) error {
	if err := s.errorsByID[event.ID]; err != nil {
		return err
	}
	s.published = append(s.published, event)
	return nil
}
