package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facility-compliance-system/api/internal/lifecycle"
	"facility-compliance-system/api/internal/models"
	"facility-compliance-system/api/internal/repos"
	"facility-compliance-system/shared/influxx"
	"facility-compliance-system/shared/logx"
)

type failure struct {
	attempts int
	next     time.Time
	dead     bool
}

type fakeOutbox struct {
	pending   []models.OutboxEvent
	rows      map[uuid.UUID]models.OutboxEvent
	delivered []uuid.UUID
	failed    map[uuid.UUID]failure
	released  time.Duration
}

func newFakeOutbox(events ...models.OutboxEvent) *fakeOutbox {
	f := &fakeOutbox{rows: map[uuid.UUID]models.OutboxEvent{}, failed: map[uuid.UUID]failure{}}
	for _, ev := range events {
		f.rows[ev.EventID] = ev
		if ev.Status == repos.OutboxStatusPending {
			f.pending = append(f.pending, ev)
		}
	}
	return f
}

func (f *fakeOutbox) ClaimPending(_ context.Context, _ string, limit int) ([]models.OutboxEvent, error) {
	if limit < len(f.pending) {
		return f.pending[:limit], nil
	}
	return f.pending, nil
}

func (f *fakeOutbox) GetByID(_ context.Context, id uuid.UUID) (models.OutboxEvent, error) {
	ev, ok := f.rows[id]
	if !ok {
		return models.OutboxEvent{}, repos.ErrOutboxEventMissing
	}
	return ev, nil
}

func (f *fakeOutbox) MarkDelivered(_ context.Context, id uuid.UUID) error {
	f.delivered = append(f.delivered, id)
	return nil
}

func (f *fakeOutbox) MarkFailed(_ context.Context, id uuid.UUID, attempts int, next *time.Time, _ string, dead bool) error {
	f.failed[id] = failure{attempts: attempts, next: *next, dead: dead}
	return nil
}

func (f *fakeOutbox) ReleaseStale(_ context.Context, olderThan time.Duration) (int64, error) {
	f.released = olderThan
	return 2, nil
}

type published struct {
	topic   string
	key     string
	headers map[string]string
}

type fakePublisher struct {
	err  error
	sent []published
}

func (p *fakePublisher) Publish(_ context.Context, topic string, key []byte, _ []byte, headers map[string]string) error {
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, published{topic: topic, key: string(key), headers: headers})
	return nil
}

type fakeEnqueuer struct {
	err   error
	tasks []*asynq.Task
}

func (e *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if e.err != nil {
		return nil, e.err
	}
	e.tasks = append(e.tasks, task)
	return &asynq.TaskInfo{}, nil
}

var fixedNow = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func pendingEvent(attempts int) models.OutboxEvent {
	return models.OutboxEvent{
		EventID:       uuid.New(),
		AggregateType: "equipment",
		AggregateID:   "eq-1",
		Topic:         "equipment.events",
		Payload:       []byte(`{}`),
		Status:        repos.OutboxStatusPending,
		Attempts:      attempts,
	}
}

func newRelay(store *fakeOutbox, pub *fakePublisher, enq *fakeEnqueuer) *Relay {
	return &Relay{
		Store:       store,
		Publisher:   pub,
		Enqueuer:    enq,
		Queue:       "default",
		Owner:       "worker-1",
		BatchSize:   10,
		MaxAttempts: 3,
		Logger:      logx.Nop(),
		Now:         func() time.Time { return fixedNow },
	}
}

func TestScanEnqueuesOneDispatchPerClaimedEvent(t *testing.T) {
	a, b := pendingEvent(0), pendingEvent(0)
	store := newFakeOutbox(a, b)
	enq := &fakeEnqueuer{}
	relay := newRelay(store, &fakePublisher{}, enq)

	require.NoError(t, relay.HandleScan(context.Background(), asynq.NewTask(TypeOutboxScan, nil)))
	require.Len(t, enq.tasks, 2)
	assert.Equal(t, TypeOutboxDispatch, enq.tasks[0].Type())
	assert.JSONEq(t, `{"event_id":"`+a.EventID.String()+`"}`, string(enq.tasks[0].Payload()))
	assert.Empty(t, store.failed)
}

func TestScanReschedulesWhenEnqueueFails(t *testing.T) {
	ev := pendingEvent(1)
	store := newFakeOutbox(ev)
	relay := newRelay(store, &fakePublisher{}, &fakeEnqueuer{err: errors.New("redis down")})

	require.NoError(t, relay.HandleScan(context.Background(), nil))
	got := store.failed[ev.EventID]
	assert.Equal(t, 2, got.attempts)
	assert.Equal(t, fixedNow.Add(repos.RetryDelay(2)), got.next)
	assert.False(t, got.dead)
}

func TestDispatchPublishesAndMarksDelivered(t *testing.T) {
	ev := pendingEvent(0)
	store := newFakeOutbox(ev)
	pub := &fakePublisher{}
	relay := newRelay(store, pub, &fakeEnqueuer{})

	task, err := NewDispatchTask(ev.EventID, "default")
	require.NoError(t, err)
	require.NoError(t, relay.HandleDispatch(context.Background(), task))

	require.Len(t, pub.sent, 1)
	assert.Equal(t, "equipment.events", pub.sent[0].topic)
	assert.Equal(t, "eq-1", pub.sent[0].key)
	assert.Equal(t, ev.EventID.String(), pub.sent[0].headers["event_id"])
	assert.Equal(t, "equipment", pub.sent[0].headers["aggregate_type"])
	assert.Equal(t, []uuid.UUID{ev.EventID}, store.delivered)
}

func TestDispatchSkipsFinishedEvents(t *testing.T) {
	ev := pendingEvent(0)
	ev.Status = repos.OutboxStatusDelivered
	store := newFakeOutbox(ev)
	pub := &fakePublisher{}
	relay := newRelay(store, pub, &fakeEnqueuer{})

	task, err := NewDispatchTask(ev.EventID, "default")
	require.NoError(t, err)
	require.NoError(t, relay.HandleDispatch(context.Background(), task))
	assert.Empty(t, pub.sent)
	assert.Empty(t, store.delivered)
}

func TestDispatchFailureRetriesUntilDead(t *testing.T) {
	retrying := pendingEvent(0)
	last := pendingEvent(2)
	store := newFakeOutbox(retrying, last)
	relay := newRelay(store, &fakePublisher{err: errors.New("broker unavailable")}, &fakeEnqueuer{})

	task, err := NewDispatchTask(retrying.EventID, "default")
	require.NoError(t, err)
	assert.Error(t, relay.HandleDispatch(context.Background(), task))
	assert.False(t, store.failed[retrying.EventID].dead)

	task, err = NewDispatchTask(last.EventID, "default")
	require.NoError(t, err)
	assert.NoError(t, relay.HandleDispatch(context.Background(), task))
	assert.True(t, store.failed[last.EventID].dead)
	assert.Equal(t, 3, store.failed[last.EventID].attempts)
}

func TestDispatchRejectsMalformedPayload(t *testing.T) {
	relay := newRelay(newFakeOutbox(), &fakePublisher{}, &fakeEnqueuer{})
	err := relay.HandleDispatch(context.Background(), asynq.NewTask(TypeOutboxDispatch, []byte(`{"event_id":"nope"}`)))
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestDispatchDropsVanishedEvent(t *testing.T) {
	relay := newRelay(newFakeOutbox(), &fakePublisher{}, &fakeEnqueuer{})
	task, err := NewDispatchTask(uuid.New(), "default")
	require.NoError(t, err)
	err = relay.HandleDispatch(context.Background(), task)
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.ErrorIs(t, err, repos.ErrOutboxEventMissing)
}

func TestReleaseUsesDefaultAge(t *testing.T) {
	store := newFakeOutbox()
	relay := newRelay(store, &fakePublisher{}, &fakeEnqueuer{})
	require.NoError(t, relay.HandleRelease(context.Background(), nil))
	assert.Equal(t, 5*time.Minute, store.released)
}

type staticSummaries struct {
	sum lifecycle.ComplianceSummary
	err error
}

func (s staticSummaries) BuildSummary(context.Context) (lifecycle.ComplianceSummary, error) {
	return s.sum, s.err
}

type memCache struct {
	data map[string]any
	ttl  time.Duration
}

func (c *memCache) GetJSON(context.Context, string, any) (bool, error) { return false, nil }

func (c *memCache) SetJSON(_ context.Context, key string, value any, ttl time.Duration) error {
	if c.data == nil {
		c.data = map[string]any{}
	}
	c.data[key] = value
	c.ttl = ttl
	return nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	delete(c.data, key)
	return nil
}

type pointSink struct {
	err    error
	points []influxx.Point
}

func (p *pointSink) WritePoints(_ context.Context, points ...influxx.Point) error {
	if p.err != nil {
		return p.err
	}
	p.points = append(p.points, points...)
	return nil
}

func sampleSummary() lifecycle.ComplianceSummary {
	return lifecycle.ComplianceSummary{
		GeneratedAt:    fixedNow,
		ValidUntil:     fixedNow.Add(time.Hour),
		Training:       lifecycle.StatusCounts{Completed: 3, Overdue: 1},
		CompletionRate: 75,
		OpenBySeverity: map[lifecycle.Severity]int{lifecycle.SeverityHigh: 2},
		Equipment:      map[lifecycle.EquipmentStatus]int{lifecycle.EquipmentOperational: 4},
	}
}

func TestSnapshotRefreshesCacheAndWritesPoints(t *testing.T) {
	cache := &memCache{}
	sink := &pointSink{}
	s := &Snapshotter{
		Summaries: staticSummaries{sum: sampleSummary()},
		Writer:    sink,
		Cache:     cache,
		CacheTTL:  time.Minute,
		Env:       "test",
		Logger:    logx.Nop(),
	}
	require.NoError(t, s.HandleSnapshot(context.Background(), nil))
	require.Contains(t, cache.data, lifecycle.SummaryCacheKey)
	assert.Equal(t, time.Minute, cache.ttl)
	require.NotEmpty(t, sink.points)
	for _, p := range sink.points {
		assert.Equal(t, "test", p.Tags["env"])
	}
}

func TestSnapshotCacheTTLStopsAtNextStatusChange(t *testing.T) {
	sum := sampleSummary()
	sum.ValidUntil = fixedNow.Add(10 * time.Second)
	cache := &memCache{}
	s := &Snapshotter{Summaries: staticSummaries{sum: sum}, Cache: cache, CacheTTL: time.Minute, Logger: logx.Nop()}
	require.NoError(t, s.HandleSnapshot(context.Background(), nil))
	assert.Equal(t, 10*time.Second, cache.ttl)

	sum.ValidUntil = fixedNow
	cache = &memCache{}
	s = &Snapshotter{Summaries: staticSummaries{sum: sum}, Cache: cache, CacheTTL: time.Minute, Logger: logx.Nop()}
	require.NoError(t, s.HandleSnapshot(context.Background(), nil))
	assert.NotContains(t, cache.data, lifecycle.SummaryCacheKey)
}

func TestSnapshotSurfacesWriteFailure(t *testing.T) {
	s := &Snapshotter{
		Summaries: staticSummaries{sum: sampleSummary()},
		Writer:    &pointSink{err: errors.New("influx down")},
		Logger:    logx.Nop(),
	}
	assert.Error(t, s.HandleSnapshot(context.Background(), nil))
}

func TestSnapshotWithoutSinks(t *testing.T) {
	s := &Snapshotter{Summaries: staticSummaries{sum: sampleSummary()}, Logger: logx.Nop()}
	assert.NoError(t, s.HandleSnapshot(context.Background(), nil))

	s.Summaries = staticSummaries{err: errors.New("db down")}
	assert.Error(t, s.HandleSnapshot(context.Background(), nil))
}
