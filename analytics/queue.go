// Package analytics queues and delivers analytics events with at-least-once
// semantics. Records are persisted to the key/value store before every send,
// so a navigation between enqueue and delivery loses nothing; the next page
// load replays the backlog. Duplicate delivery is possible and the backend is
// expected to tolerate it.
package analytics

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/paywallkit/paywallkit/api"
	"github.com/paywallkit/paywallkit/models"
	"github.com/paywallkit/paywallkit/readiness"
	"github.com/paywallkit/paywallkit/storage"
)

// Queue is the durable event-delivery queue. Track is safe to call before the
// session is ready; delivery is gated and delayed by flushDelay to coalesce
// track-then-navigate sequences.
type Queue struct {
	store       storage.Store
	api         api.Client
	gate        *readiness.Gate
	logger      *zap.Logger
	flushDelay  time.Duration
	limiter     *rate.Limiter
	deviceID    func() string
	onDelivered func()

	mu      sync.Mutex
	backlog []models.EventRecord

	now func() time.Time
}

// NewQueue wires the queue. deviceID is consulted at enqueue time, once the
// gate has opened. onDelivered runs after each confirmed delivery (the client
// uses it to refresh the session without re-emitting ready); it may be nil.
// limiter may be nil to disable delivery pacing.
func NewQueue(
	store storage.Store,
	apiClient api.Client,
	gate *readiness.Gate,
	deviceID func() string,
	onDelivered func(),
	flushDelay time.Duration,
	limiter *rate.Limiter,
	logger *zap.Logger,
) *Queue {
	return &Queue{
		store:       store,
		api:         apiClient,
		gate:        gate,
		logger:      logger,
		flushDelay:  flushDelay,
		limiter:     limiter,
		deviceID:    deviceID,
		onDelivered: onDelivered,
		now:         time.Now,
	}
}

// Track builds an EventRecord with a fresh insertion id and timestamp and
// returns it immediately. Enqueue, persistence and delivery happen behind the
// readiness gate.
func (q *Queue) Track(name string, properties, userProperties map[string]interface{}) models.EventRecord {
	record := models.EventRecord{
		Name:           name,
		Properties:     properties,
		UserProperties: userProperties,
		Timestamp:      q.now().UnixMilli(),
		InsertID:       uuid.NewString(),
	}
	q.gate.Ready(func() {
		q.enqueue(record)
	})
	return record
}

// Recover loads the backlog persisted by a previous page instance and pushes
// every record back through the delivery path. Call once per bootstrap, after
// the session identity is known and before the gate drains new work, so the
// replayed records keep their place ahead of this instance's events.
func (q *Queue) Recover(ctx context.Context) {
	raw, ok, err := q.store.Get(ctx, storage.KeyBacklog)
	if err != nil {
		q.logger.Warn("backlog read failed", zap.Error(err))
		return
	}
	if !ok || raw == "" {
		return
	}

	var recovered []models.EventRecord
	if err := json.Unmarshal([]byte(raw), &recovered); err != nil {
		q.logger.Warn("backlog unmarshal failed, discarding", zap.Error(err))
		_ = q.store.Delete(ctx, storage.KeyBacklog)
		return
	}
	if len(recovered) == 0 {
		return
	}

	q.logger.Info("replaying event backlog", zap.Int("records", len(recovered)))

	// Install the whole recovered backlog before scheduling any send, so a
	// crash mid-replay still leaves every record persisted.
	q.mu.Lock()
	var replay []models.EventRecord
	for _, record := range recovered {
		if q.contains(record.InsertID) {
			continue
		}
		if record.DeviceID == "" {
			record.DeviceID = q.deviceID()
		}
		q.backlog = append(q.backlog, record)
		replay = append(replay, record)
	}
	q.persistLocked()
	q.mu.Unlock()

	for _, record := range replay {
		go q.deliver(record)
	}
}

// Backlog returns a snapshot of the in-memory backlog.
func (q *Queue) Backlog() []models.EventRecord {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]models.EventRecord, len(q.backlog))
	copy(out, q.backlog)
	return out
}

// enqueue stamps the record, appends it to the backlog, persists the backlog
// and only then schedules the delivery attempt. The persist-before-send
// ordering is what makes the queue durable across navigations.
func (q *Queue) enqueue(record models.EventRecord) {
	if record.DeviceID == "" {
		record.DeviceID = q.deviceID()
	}

	q.mu.Lock()
	if q.contains(record.InsertID) {
		q.mu.Unlock()
		return
	}
	q.backlog = append(q.backlog, record)
	q.persistLocked()
	q.mu.Unlock()

	go q.deliver(record)
}

// deliver waits out the flush delay and the rate limiter, then attempts
// ingestion of the single record. A failed send leaves the record in the
// backlog for the next page load's recovery pass; there is no in-session
// retry loop.
func (q *Queue) deliver(record models.EventRecord) {
	if q.flushDelay > 0 {
		time.Sleep(q.flushDelay)
	}
	ctx := context.Background()
	if q.limiter != nil {
		if err := q.limiter.Wait(ctx); err != nil {
			return
		}
	}

	if err := q.api.CreateEvent(ctx, record); err != nil {
		q.logger.Warn("event delivery failed, record stays in backlog",
			zap.String("event", record.Name),
			zap.String("insert_id", record.InsertID),
			zap.Error(err),
		)
		return
	}

	q.mu.Lock()
	q.removeLocked(record.InsertID)
	q.persistLocked()
	q.mu.Unlock()

	if q.onDelivered != nil {
		q.onDelivered()
	}
}

// removeLocked prunes a delivered record by insertion id, the only stable
// identity a record carries.
func (q *Queue) removeLocked(insertID string) {
	for i, r := range q.backlog {
		if r.InsertID == insertID {
			q.backlog = append(q.backlog[:i], q.backlog[i+1:]...)
			return
		}
	}
}

func (q *Queue) contains(insertID string) bool {
	for _, r := range q.backlog {
		if r.InsertID == insertID {
			return true
		}
	}
	return false
}

func (q *Queue) persistLocked() {
	buf, err := json.Marshal(q.backlog)
	if err != nil {
		q.logger.Error("backlog marshal failed", zap.Error(err))
		return
	}
	if err := q.store.Set(context.Background(), storage.KeyBacklog, string(buf), storage.TTLBacklog); err != nil {
		q.logger.Warn("backlog persist failed", zap.Error(err))
	}
}
