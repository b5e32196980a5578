package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"practice-sync-client/internal/logger"
	"practice-sync-client/internal/store"
)

// Options configure a sync engine. Zero values fall back to defaults.
type Options struct {
	BatchSize               int
	MaxConcurrentOperations int
	MaxRetries              int
	RetryBaseDelay          time.Duration
	RetryMaxDelay           time.Duration
	RetryMultiplier         float64
	ConflictStrategy        Strategy
}

func (o *Options) withDefaults() {
	if o.BatchSize <= 0 {
		o.BatchSize = 10
	}
	if o.MaxConcurrentOperations <= 0 {
		o.MaxConcurrentOperations = 3
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.RetryBaseDelay <= 0 {
		o.RetryBaseDelay = time.Second
	}
	if o.RetryMaxDelay <= 0 {
		o.RetryMaxDelay = 5 * time.Minute
	}
	if o.RetryMultiplier <= 0 {
		o.RetryMultiplier = 2.0
	}
	if o.ConflictStrategy == "" {
		o.ConflictStrategy = StrategyAuto
	}
}

// Engine orchestrates sync passes: queue loading, ordering, batching,
// dispatch, conflict handling, retry scheduling and statistics. Constructed
// and owned by the host application; no global instance.
type Engine struct {
	opts     Options
	store    store.Store
	client   *RemoteClient
	resolver *Resolver
	probe    ConnectivityProbe
	monitor  *NetworkMonitor

	mu            sync.Mutex
	running       bool
	stopRequested bool
	wg            sync.WaitGroup

	totalUploaded   int64
	totalDownloaded int64
	totalConflicts  int64
	totalErrors     int64
	lastSyncAt      *time.Time
}

func NewEngine(opts Options, st store.Store, client *RemoteClient, probe ConnectivityProbe, monitor *NetworkMonitor) *Engine {
	opts.withDefaults()
	return &Engine{
		opts:     opts,
		store:    st,
		client:   client,
		resolver: NewResolver(),
		probe:    probe,
		monitor:  monitor,
	}
}

// Enqueue records a local mutation: the record is written to its collection
// with pending status and a queue entry is created in the same transaction.
func (e *Engine) Enqueue(ctx context.Context, opType store.OperationType, resourceType, resourceID string, data json.RawMessage, priority int) (*store.SyncOperation, error) {
	op := &store.SyncOperation{
		ID:           uuid.New().String(),
		Type:         opType,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Data:         data,
		Priority:     priority,
		Status:       store.StatusPending,
		MaxRetries:   e.opts.MaxRetries,
		CreatedAt:    time.Now(),
	}

	var rec *store.CachedRecord
	if opType == store.OpDelete {
		rec = &store.CachedRecord{ID: resourceID, SyncStatus: store.SyncStatusPending, IsDeleted: true}
	} else {
		rec = &store.CachedRecord{ID: resourceID, Data: data, SyncStatus: store.SyncStatusPending, LocalChanges: data}
	}

	if err := e.store.EnqueueOperation(ctx, op, rec); err != nil {
		return nil, fmt.Errorf("failed to enqueue operation: %w", err)
	}
	return op, nil
}

// Sync runs one pass over the queue. It rejects a concurrent start with
// ErrAlreadyRunning and an unreachable remote with ErrOffline.
func (e *Engine) Sync(ctx context.Context) (*SyncResult, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	e.running = true
	e.stopRequested = false
	e.wg.Add(1)
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
		e.wg.Done()
	}()

	if !e.probe.Online(ctx) {
		return nil, ErrOffline
	}

	start := time.Now()

	ops, err := e.store.LoadDueOperations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load sync queue: %w", err)
	}
	for _, op := range ops {
		if op.MaxRetries <= 0 {
			op.MaxRetries = e.opts.MaxRetries
		}
	}

	ordered := orderOperations(ops)
	batches := partition(ordered, e.opts.BatchSize)

	logger.Log.Info("Starting sync pass",
		zap.Int("operations", len(ordered)),
		zap.Int("batches", len(batches)))

	result := &SyncResult{}
	for _, batch := range batches {
		if e.stopping() {
			logger.Log.Info("Sync pass stopped before completion")
			break
		}
		for _, r := range e.runBatch(ctx, batch) {
			result.Operations = append(result.Operations, r)
			switch {
			case r.Status == string(store.StatusCompleted):
				result.Uploaded++
			case r.Error != "":
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", r.OperationID, r.Error))
			}
			if r.downloaded {
				result.Downloaded++
			}
			if r.conflicted {
				result.Conflicts++
			}
		}
	}
	result.Duration = time.Since(start)

	now := time.Now()
	e.mu.Lock()
	e.totalUploaded += int64(result.Uploaded)
	e.totalDownloaded += int64(result.Downloaded)
	e.totalConflicts += int64(result.Conflicts)
	e.totalErrors += int64(len(result.Errors))
	e.lastSyncAt = &now
	e.mu.Unlock()

	logger.Log.Info("Completed sync pass",
		zap.Int("uploaded", result.Uploaded),
		zap.Int("downloaded", result.Downloaded),
		zap.Int("conflicts", result.Conflicts),
		zap.Int("errors", len(result.Errors)),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// Stop cooperatively ends the current pass: no further batches start and
// in-flight operations run to completion. No request is aborted mid-flight.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.stopRequested = true
	e.mu.Unlock()
	e.wg.Wait()
}

func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

func (e *Engine) stopping() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopRequested
}

// Stats returns live totals plus pending/failed counts recomputed from the
// queue and the rolling mean latency.
func (e *Engine) Stats(ctx context.Context) (*SyncStats, error) {
	pending, err := e.store.CountOperations(ctx, store.StatusPending)
	if err != nil {
		return nil, err
	}
	failed, err := e.store.CountOperations(ctx, store.StatusFailed)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return &SyncStats{
		Running:           e.running,
		TotalUploaded:     e.totalUploaded,
		TotalDownloaded:   e.totalDownloaded,
		TotalConflicts:    e.totalConflicts,
		TotalErrors:       e.totalErrors,
		PendingOperations: pending,
		FailedOperations:  failed,
		AverageLatency:    e.monitor.Average(),
		LastSyncAt:        e.lastSyncAt,
	}, nil
}

// runBatch executes one batch with bounded concurrency. Batches run
// sequentially; operations inside a batch run concurrently up to
// MaxConcurrentOperations.
func (e *Engine) runBatch(ctx context.Context, batch []*store.SyncOperation) []OperationResult {
	results := make([]OperationResult, len(batch))
	sem := make(chan struct{}, e.opts.MaxConcurrentOperations)
	var wg sync.WaitGroup

	for i, op := range batch {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, op *store.SyncOperation) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = e.processOperation(ctx, op)
		}(i, op)
	}

	wg.Wait()
	return results
}

func (e *Engine) processOperation(ctx context.Context, op *store.SyncOperation) OperationResult {
	op.Status = store.StatusProcessing
	if err := e.store.UpdateOperation(ctx, op); err != nil {
		// Local-store failures count toward the same retry budget.
		return e.failOperation(ctx, op, err)
	}

	canonical, err := e.client.Execute(ctx, op)
	if err == nil {
		return e.completeOperation(ctx, op, canonical)
	}

	var conflict *ConflictError
	if errors.As(err, &conflict) {
		return e.handleConflict(ctx, op, conflict)
	}
	return e.failOperation(ctx, op, err)
}

func (e *Engine) completeOperation(ctx context.Context, op *store.SyncOperation, canonical json.RawMessage) OperationResult {
	op.Status = store.StatusCompleted
	op.Error = ""
	op.ScheduledAt = nil
	if err := e.store.UpdateOperation(ctx, op); err != nil {
		logger.Log.Warn("Failed to persist completed operation",
			zap.String("operationID", op.ID), zap.Error(err))
	}

	result := OperationResult{
		OperationID:  op.ID,
		ResourceType: op.ResourceType,
		ResourceID:   op.ResourceID,
		Status:       string(store.StatusCompleted),
	}

	// Converge on server-assigned fields: a canonical record in the
	// response replaces the local copy, except for deletes.
	if len(canonical) > 0 && op.Type != store.OpDelete {
		now := time.Now()
		rec := &store.CachedRecord{
			ID:         op.ResourceID,
			Data:       canonical,
			SyncStatus: store.SyncStatusSynced,
			LastSyncAt: &now,
		}
		if err := e.store.Put(ctx, store.ResourceCollection(op.ResourceType), rec); err != nil {
			logger.Log.Warn("Failed to apply canonical record",
				zap.String("operationID", op.ID), zap.Error(err))
		} else {
			result.downloaded = true
		}
	}
	if op.Type == store.OpDelete {
		if err := e.store.Delete(ctx, store.ResourceCollection(op.ResourceType), op.ResourceID); err != nil {
			logger.Log.Warn("Failed to remove deleted record",
				zap.String("operationID", op.ID), zap.Error(err))
		}
	}

	return result
}

func (e *Engine) handleConflict(ctx context.Context, op *store.SyncOperation, conflict *ConflictError) OperationResult {
	resolution, err := e.resolver.Resolve(op, conflict.Remote, e.opts.ConflictStrategy)
	if err != nil {
		return e.failOperation(ctx, op, err)
	}

	if resolution.RequiresUserInput {
		rec := &store.Conflict{
			ID:           op.ID,
			ResourceType: op.ResourceType,
			ResourceID:   op.ResourceID,
			LocalData:    op.Data,
			RemoteData:   conflict.Remote,
			Status:       "pending",
		}
		if err := e.store.CreateConflict(ctx, rec); err != nil {
			logger.Log.Error("Failed to persist conflict",
				zap.String("operationID", op.ID), zap.Error(err))
		}
		e.markRecordConflict(ctx, op, conflict.Remote)

		op.Status = store.StatusFailed
		op.Error = "conflict requires user input"
		op.ConflictData = conflict.Remote
		// Held out of automatic retry until the user resolves it.
		op.RetryCount = op.MaxRetries
		if err := e.store.UpdateOperation(ctx, op); err != nil {
			logger.Log.Warn("Failed to persist conflicted operation",
				zap.String("operationID", op.ID), zap.Error(err))
		}

		return OperationResult{
			OperationID:        op.ID,
			ResourceType:       op.ResourceType,
			ResourceID:         op.ResourceID,
			Status:             string(store.StatusFailed),
			Error:              op.Error,
			ConflictResolution: "user_choice",
			conflicted:         true,
		}
	}

	// Apply the merge and re-execute once. A second conflict on the retry
	// is not auto-resolved again; it surfaces as an ordinary failure.
	op.Data = resolution.MergedData
	canonical, err := e.client.Execute(ctx, op)
	if err != nil {
		r := e.failOperation(ctx, op, err)
		r.conflicted = true
		return r
	}

	r := e.completeOperation(ctx, op, canonical)
	r.ConflictResolution = "merged"
	r.conflicted = true
	return r
}

func (e *Engine) markRecordConflict(ctx context.Context, op *store.SyncOperation, remote json.RawMessage) {
	collection := store.ResourceCollection(op.ResourceType)
	rec, err := e.store.Get(ctx, collection, op.ResourceID)
	if err != nil || rec == nil {
		return
	}
	rec.SyncStatus = store.SyncStatusConflict
	rec.ConflictData = remote
	if err := e.store.Put(ctx, collection, rec); err != nil {
		logger.Log.Warn("Failed to flag record conflict",
			zap.String("resourceID", op.ResourceID), zap.Error(err))
	}
}

// failOperation applies the retry policy: exponential backoff while budget
// remains, terminal failed once it is exhausted.
func (e *Engine) failOperation(ctx context.Context, op *store.SyncOperation, cause error) OperationResult {
	op.RetryCount++
	op.Error = cause.Error()

	if op.RetryCount < op.MaxRetries {
		delay := computeBackoff(op.RetryCount, e.opts.RetryBaseDelay, e.opts.RetryMaxDelay, e.opts.RetryMultiplier)
		due := time.Now().Add(delay)
		op.ScheduledAt = &due
		op.Status = store.StatusPending
		logger.Log.Warn("Operation failed, retry scheduled",
			zap.String("operationID", op.ID),
			zap.Int("retryCount", op.RetryCount),
			zap.Duration("delay", delay),
			zap.Error(cause))
	} else {
		op.ScheduledAt = nil
		op.Status = store.StatusFailed
		logger.Log.Error("Operation failed terminally",
			zap.String("operationID", op.ID),
			zap.Int("retryCount", op.RetryCount),
			zap.Error(cause))
	}

	if err := e.store.UpdateOperation(ctx, op); err != nil {
		logger.Log.Warn("Failed to persist failed operation",
			zap.String("operationID", op.ID), zap.Error(err))
	}

	return OperationResult{
		OperationID:  op.ID,
		ResourceType: op.ResourceType,
		ResourceID:   op.ResourceID,
		Status:       string(op.Status),
		Error:        op.Error,
	}
}

// ResolveConflict applies a user decision for a persisted conflict:
// keep_local or merge re-enqueues the chosen payload as a fresh attempt,
// keep_remote accepts the remote copy as synced. The conflict record is
// destroyed once resolved.
func (e *Engine) ResolveConflict(ctx context.Context, id, resolution string, merged json.RawMessage) error {
	conflict, err := e.store.GetConflict(ctx, id)
	if err != nil {
		return err
	}
	if conflict == nil {
		return fmt.Errorf("conflict %s not found", id)
	}

	op, err := e.store.GetOperation(ctx, id)
	if err != nil {
		return err
	}

	collection := store.ResourceCollection(conflict.ResourceType)
	now := time.Now()

	switch resolution {
	case "keep_remote":
		rec := &store.CachedRecord{
			ID:         conflict.ResourceID,
			Data:       conflict.RemoteData,
			SyncStatus: store.SyncStatusSynced,
			LastSyncAt: &now,
		}
		if err := e.store.Put(ctx, collection, rec); err != nil {
			return err
		}
		if op != nil {
			if err := e.store.DeleteOperation(ctx, op.ID); err != nil {
				return err
			}
		}

	case "keep_local", "merge":
		data := conflict.LocalData
		if resolution == "merge" {
			if len(merged) == 0 {
				return errors.New("merge resolution requires data")
			}
			data = merged
		}
		if op == nil {
			return fmt.Errorf("operation %s no longer queued", id)
		}
		op.Data = data
		op.Status = store.StatusPending
		op.RetryCount = 0
		op.ScheduledAt = nil
		op.Error = ""
		op.ConflictData = nil
		if err := e.store.UpdateOperation(ctx, op); err != nil {
			return err
		}
		rec := &store.CachedRecord{
			ID:           conflict.ResourceID,
			Data:         data,
			SyncStatus:   store.SyncStatusPending,
			LocalChanges: data,
		}
		if err := e.store.Put(ctx, collection, rec); err != nil {
			return err
		}

	default:
		return fmt.Errorf("unknown resolution %q", resolution)
	}

	logger.Log.Info("Resolved conflict",
		zap.String("conflictID", id), zap.String("resolution", resolution))
	return e.store.DeleteConflict(ctx, id)
}
