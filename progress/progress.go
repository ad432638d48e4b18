// Package progress fronts every long-running operation (URL extraction,
// card growth, deep research) with a progress tracker and a durable
// checkpoint manager, following spec.md §4.8: progress events carry a
// remaining-time estimate, checkpoints are written on a time/cards-created
// cadence, and are retained on failure, deleted on success, for possible
// resume (grounded on graph/checkpointing.go's CheckpointListener/
// CheckpointableRunnable shape and store/checkpoint.go's CheckpointStore).
package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/via-canvas/intelligence-core/bus"
	"github.com/via-canvas/intelligence-core/log"
	"github.com/via-canvas/intelligence-core/store"
)

// checkpointInterval/checkpointCardsEvery are the two auto-checkpoint
// triggers (spec §4.8).
const (
	checkpointInterval    = 30 * time.Second
	checkpointCardsEvery  = 10
	defaultCleanupHorizon = 7 * 24 * time.Hour
)

// checkpointBucket is the single store.CheckpointStore "execution id"
// every operation checkpoint is saved under, so List/Clear(checkpointBucket)
// enumerates every live operation regardless of which canvas or session it
// belongs to; GetIncomplete filters that list further in memory.
const checkpointBucket = "progress-operations"

// Record is the durable state of one long-running operation.
type Record struct {
	OperationID   string
	OperationType string
	CanvasID      string
	SessionID     string
	CurrentStep   string
	TotalSteps    int
	Progress      float64
	Message       string
	CardsCreated  []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Cancelled     bool
	Failed        bool
	Error         string
}

// Tracker fronts one long-running operation. Every UpdateProgress call
// emits a progress_update event and may trigger a checkpoint save.
type Tracker struct {
	mu                sync.Mutex
	record            Record
	bus               *bus.Bus
	checkpoints       *CheckpointManager
	logger            log.Logger
	now               func() time.Time
	startedAt         time.Time
	lastCheckpoint    time.Time
	cardsAtCheckpoint int
}

// NewTracker starts tracking a new operation, immediately persisting its
// initial (zero-progress) checkpoint if checkpoints is non-nil.
func NewTracker(operationID, operationType, canvasID, sessionID string, totalSteps int, b *bus.Bus, checkpoints *CheckpointManager, logger log.Logger) *Tracker {
	if logger == nil {
		logger = log.NewDefaultLogger(log.LogLevelInfo)
	}
	now := time.Now()
	return &Tracker{
		record: Record{
			OperationID: operationID, OperationType: operationType,
			CanvasID: canvasID, SessionID: sessionID, TotalSteps: totalSteps,
			CreatedAt: now, UpdatedAt: now,
		},
		bus: b, checkpoints: checkpoints, logger: logger,
		now: time.Now, startedAt: now, lastCheckpoint: now,
	}
}

// Record returns a snapshot of the tracker's current state.
func (t *Tracker) Record() Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.record
}

// IsCancelled reports whether Cancel has been called on this operation.
func (t *Tracker) IsCancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.record.Cancelled
}

// UpdateProgress appends step/progress/message/newCards to the tracker's
// state, emits progress_update, and persists a checkpoint if either 30s
// have elapsed since the last one or the cumulative cards_created count
// just crossed a multiple of 10 (spec §4.8). A no-op once cancelled
// (cooperative cancellation).
func (t *Tracker) UpdateProgress(ctx context.Context, step string, progress float64, message string, newCards []string) error {
	t.mu.Lock()
	if t.record.Cancelled {
		t.mu.Unlock()
		return nil
	}

	now := t.now()
	t.record.CurrentStep = step
	t.record.Progress = progress
	t.record.Message = message
	t.record.CardsCreated = append(t.record.CardsCreated, newCards...)
	t.record.UpdatedAt = now

	elapsed := now.Sub(t.startedAt).Seconds()
	var estimated *float64
	if progress > 0 && progress < 1 {
		remaining := (elapsed / progress) - elapsed
		if remaining < 0 {
			remaining = 0
		}
		estimated = &remaining
	}

	cardCount := len(t.record.CardsCreated)
	shouldCheckpoint := now.Sub(t.lastCheckpoint) >= checkpointInterval ||
		(cardCount != t.cardsAtCheckpoint && cardCount%checkpointCardsEvery == 0)

	record := t.record
	t.mu.Unlock()

	t.bus.Emit(ctx, bus.Event{
		Topic: bus.TopicProgressUpdate,
		OperationID: record.OperationID, OperationType: record.OperationType,
		CanvasID: record.CanvasID, SessionID: record.SessionID,
		Step: step, Progress: progress, Message: message,
		CardsCreated: cardCount, EstimatedSecs: estimated, CanCancel: true,
	})

	if shouldCheckpoint && t.checkpoints != nil {
		if err := t.checkpoints.Save(ctx, record); err != nil {
			t.logger.Error("progress: checkpoint save failed for %s: %v", record.OperationID, err)
		} else {
			t.mu.Lock()
			t.lastCheckpoint = now
			t.cardsAtCheckpoint = cardCount
			t.mu.Unlock()
		}
	}
	return nil
}

// Complete marks the operation 100% done, emits operation_complete, and
// deletes its checkpoint (spec §4.8: "on complete, the checkpoint is
// deleted").
func (t *Tracker) Complete(ctx context.Context, message string) error {
	t.mu.Lock()
	t.record.Progress = 1.0
	t.record.Message = message
	t.record.UpdatedAt = t.now()
	record := t.record
	t.mu.Unlock()

	t.bus.Emit(ctx, bus.Event{
		Topic: bus.TopicOperationComplete,
		OperationID: record.OperationID, OperationType: record.OperationType,
		CanvasID: record.CanvasID, SessionID: record.SessionID,
		Message: message, CardsCreated: len(record.CardsCreated),
	})

	if t.checkpoints != nil {
		if err := t.checkpoints.Delete(ctx, record.OperationID); err != nil {
			t.logger.Error("progress: checkpoint delete failed for %s: %v", record.OperationID, err)
		}
	}
	return nil
}

// Fail marks the operation failed, emits operation_failed, and persists
// (rather than deletes) its checkpoint so the operation can be resumed
// (spec §4.8: "on fail, retained").
func (t *Tracker) Fail(ctx context.Context, cause error) error {
	t.mu.Lock()
	t.record.Failed = true
	t.record.Error = cause.Error()
	t.record.UpdatedAt = t.now()
	record := t.record
	t.mu.Unlock()

	t.bus.Emit(ctx, bus.Event{
		Topic: bus.TopicOperationFailed,
		OperationID: record.OperationID, OperationType: record.OperationType,
		CanvasID: record.CanvasID, SessionID: record.SessionID,
		Message: cause.Error(), CardsCreated: len(record.CardsCreated),
	})

	if t.checkpoints != nil {
		if err := t.checkpoints.Save(ctx, record); err != nil {
			t.logger.Error("progress: checkpoint save on failure failed for %s: %v", record.OperationID, err)
		}
	}
	return nil
}

// Cancel sets the operation's cancellation flag and emits
// operation_cancelled. Every subsequent UpdateProgress call becomes a
// no-op (spec §4.8/§4.11 cooperative cancellation).
func (t *Tracker) Cancel(ctx context.Context) error {
	t.mu.Lock()
	t.record.Cancelled = true
	t.record.UpdatedAt = t.now()
	record := t.record
	t.mu.Unlock()

	t.bus.Emit(ctx, bus.Event{
		Topic: bus.TopicOperationCancelled,
		OperationID: record.OperationID, OperationType: record.OperationType,
		CanvasID: record.CanvasID, SessionID: record.SessionID,
		CardsCreated: len(record.CardsCreated),
	})

	if t.checkpoints != nil {
		if err := t.checkpoints.Save(ctx, record); err != nil {
			t.logger.Error("progress: checkpoint save on cancel failed for %s: %v", record.OperationID, err)
		}
	}
	return nil
}

// CheckpointManager persists Records keyed by operation id in a
// store.CheckpointStore, reused almost verbatim from
// graph/checkpointing.go's CheckpointListener: every record goes in under
// the same checkpointBucket "execution id" so List/Clear enumerate every
// operation, and GetIncomplete narrows that list to one canvas/session.
type CheckpointManager struct {
	store  store.CheckpointStore
	logger log.Logger
}

// NewCheckpointManager wraps s. Use memory.NewMemoryCheckpointStore,
// file.NewFileCheckpointStore, or postgres.NewPostgresCheckpointStore
// depending on deployment durability needs.
func NewCheckpointManager(s store.CheckpointStore, logger log.Logger) *CheckpointManager {
	if logger == nil {
		logger = log.NewDefaultLogger(log.LogLevelInfo)
	}
	return &CheckpointManager{store: s, logger: logger}
}

// Save persists record under its OperationID.
func (m *CheckpointManager) Save(ctx context.Context, record Record) error {
	cp := &store.Checkpoint{
		ID:        record.OperationID,
		NodeName:  record.CurrentStep,
		State:     record,
		Timestamp: time.Now(),
		Version:   1,
		Metadata: map[string]any{
			"execution_id": checkpointBucket,
			"operation_id": record.OperationID,
			"canvas_id":    record.CanvasID,
			"session_id":   record.SessionID,
		},
	}
	if err := m.store.Save(ctx, cp); err != nil {
		return fmt.Errorf("progress: save checkpoint %s: %w", record.OperationID, err)
	}
	return nil
}

// Load returns the record saved under operationID, if any.
func (m *CheckpointManager) Load(ctx context.Context, operationID string) (Record, bool, error) {
	cp, err := m.store.Load(ctx, operationID)
	if err != nil {
		return Record{}, false, nil
	}
	record, err := decodeRecord(cp)
	if err != nil {
		return Record{}, false, fmt.Errorf("progress: decode checkpoint %s: %w", operationID, err)
	}
	return record, true, nil
}

// Delete removes operationID's checkpoint.
func (m *CheckpointManager) Delete(ctx context.Context, operationID string) error {
	if err := m.store.Delete(ctx, operationID); err != nil {
		return fmt.Errorf("progress: delete checkpoint %s: %w", operationID, err)
	}
	return nil
}

// GetIncomplete returns every retained operation with progress < 1.0,
// optionally narrowed to one canvasID and/or sessionID (either may be
// empty to skip that filter).
func (m *CheckpointManager) GetIncomplete(ctx context.Context, canvasID, sessionID string) ([]Record, error) {
	checkpoints, err := m.store.List(ctx, checkpointBucket)
	if err != nil {
		return nil, fmt.Errorf("progress: list checkpoints: %w", err)
	}

	var out []Record
	for _, cp := range checkpoints {
		record, err := decodeRecord(cp)
		if err != nil {
			m.logger.Error("progress: skipping undecodable checkpoint %s: %v", cp.ID, err)
			continue
		}
		if record.Progress >= 1.0 {
			continue
		}
		if canvasID != "" && record.CanvasID != canvasID {
			continue
		}
		if sessionID != "" && record.SessionID != sessionID {
			continue
		}
		out = append(out, record)
	}
	return out, nil
}

// Cleanup removes every checkpoint older than horizon (default 7 days),
// regardless of completion state, per spec §4.8's periodic sweep.
func (m *CheckpointManager) Cleanup(ctx context.Context, horizon time.Duration) (int, error) {
	if horizon <= 0 {
		horizon = defaultCleanupHorizon
	}
	checkpoints, err := m.store.List(ctx, checkpointBucket)
	if err != nil {
		return 0, fmt.Errorf("progress: list checkpoints for cleanup: %w", err)
	}

	cutoff := time.Now().Add(-horizon)
	removed := 0
	for _, cp := range checkpoints {
		if cp.Timestamp.Before(cutoff) {
			if err := m.store.Delete(ctx, cp.ID); err != nil {
				m.logger.Error("progress: cleanup delete failed for %s: %v", cp.ID, err)
				continue
			}
			removed++
		}
	}
	return removed, nil
}

// decodeRecord recovers a Record from a checkpoint's State, which is a
// typed Record for in-process stores (memory) but a json-round-tripped
// map[string]any for stores that serialize (file, Postgres, Redis).
func decodeRecord(cp *store.Checkpoint) (Record, error) {
	if record, ok := cp.State.(Record); ok {
		return record, nil
	}
	raw, err := json.Marshal(cp.State)
	if err != nil {
		return Record{}, err
	}
	var record Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return Record{}, err
	}
	return record, nil
}
