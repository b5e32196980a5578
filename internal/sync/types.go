package sync

import (
	"time"
)

// OperationResult is the per-operation outcome of a sync pass.
type OperationResult struct {
	OperationID        string `json:"operationId"`
	ResourceType       string `json:"resourceType"`
	ResourceID         string `json:"resourceId"`
	Status             string `json:"status"`
	Error              string `json:"error,omitempty"`
	ConflictResolution string `json:"conflictResolution,omitempty"`

	// pass-internal accounting, not part of the reported result
	downloaded bool
	conflicted bool
}

// SyncResult aggregates one sync pass, queue load through completion.
type SyncResult struct {
	Uploaded   int               `json:"uploaded"`
	Downloaded int               `json:"downloaded"`
	Conflicts  int               `json:"conflicts"`
	Errors     []string          `json:"errors"`
	Duration   time.Duration     `json:"duration"`
	Operations []OperationResult `json:"operations"`
}

// SyncStats are live engine totals plus queue counts recomputed on demand.
type SyncStats struct {
	Running           bool          `json:"running"`
	TotalUploaded     int64         `json:"totalUploaded"`
	TotalDownloaded   int64         `json:"totalDownloaded"`
	TotalConflicts    int64         `json:"totalConflicts"`
	TotalErrors       int64         `json:"totalErrors"`
	PendingOperations int           `json:"pendingOperations"`
	FailedOperations  int           `json:"failedOperations"`
	AverageLatency    time.Duration `json:"averageLatency"`
	LastSyncAt        *time.Time    `json:"lastSyncAt,omitempty"`
}
