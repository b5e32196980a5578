package store

import (
	"encoding/json"
	"time"
)

type OperationType string

const (
	OpCreate OperationType = "create"
	OpUpdate OperationType = "update"
	OpDelete OperationType = "delete"
)

type OperationStatus string

const (
	StatusPending    OperationStatus = "pending"
	StatusProcessing OperationStatus = "processing"
	StatusCompleted  OperationStatus = "completed"
	StatusFailed     OperationStatus = "failed"
)

type SyncStatus string

const (
	SyncStatusSynced   SyncStatus = "synced"
	SyncStatusPending  SyncStatus = "pending"
	SyncStatusConflict SyncStatus = "conflict"
	SyncStatusError    SyncStatus = "error"
)

// Domain record collections. sync_queue, cache_metadata, conflicts and
// user_preferences live in their own tables.
const (
	CollectionTasks        = "tasks"
	CollectionDocuments    = "documents"
	CollectionEmails       = "emails"
	CollectionChatMessages = "chat_messages"
	CollectionTags         = "tags"
)

var resourceCollections = map[string]string{
	"task":         CollectionTasks,
	"document":     CollectionDocuments,
	"email":        CollectionEmails,
	"chat_message": CollectionChatMessages,
	"tag":          CollectionTags,
}

// ResourceCollection maps a resource type to its local collection. The
// collection name doubles as the remote endpoint plural.
func ResourceCollection(resourceType string) string {
	if c, ok := resourceCollections[resourceType]; ok {
		return c
	}
	return resourceType + "s"
}

// SyncOperation is a single queued create/update/delete destined for a
// remote resource. Exactly one status at a time:
// pending -> processing -> {completed|failed}; failed re-enters pending via
// a scheduled retry until the retry budget is exhausted.
type SyncOperation struct {
	ID           string          `json:"id"`
	Type         OperationType   `json:"type"`
	ResourceType string          `json:"resourceType"`
	ResourceID   string          `json:"resourceId"`
	Data         json.RawMessage `json:"data,omitempty"`
	Priority     int             `json:"priority"`
	Status       OperationStatus `json:"status"`
	RetryCount   int             `json:"retryCount"`
	MaxRetries   int             `json:"maxRetries"`
	CreatedAt    time.Time       `json:"createdAt"`
	ScheduledAt  *time.Time      `json:"scheduledAt,omitempty"`
	Error        string          `json:"error,omitempty"`
	ConflictData json.RawMessage `json:"conflictData,omitempty"`
}

// CachedRecord is the store-owned envelope around a domain record. The sync
// engine only holds transient in-memory references during a pass.
type CachedRecord struct {
	ID           string          `json:"id"`
	Collection   string          `json:"collection"`
	Data         json.RawMessage `json:"data"`
	SyncStatus   SyncStatus      `json:"syncStatus"`
	LastSyncAt   *time.Time      `json:"lastSyncAt,omitempty"`
	LocalChanges json.RawMessage `json:"localChanges,omitempty"`
	ConflictData json.RawMessage `json:"conflictData,omitempty"`
	IsDeleted    bool            `json:"isDeleted,omitempty"`
	CachedAt     time.Time       `json:"cachedAt"`
}

// CacheMetadata tracks access patterns per record, used solely for
// eviction ranking. Key is "collection:id".
type CacheMetadata struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastAccessed time.Time `json:"lastAccessed"`
	AccessCount  int64     `json:"accessCount"`
	Priority     int       `json:"priority"`
}

// Conflict is persisted when the remote rejects an operation with a version
// conflict that needs manual input. It is deleted once resolved.
type Conflict struct {
	ID           string          `json:"id"` // operation id
	ResourceType string          `json:"resourceType"`
	ResourceID   string          `json:"resourceId"`
	LocalData    json.RawMessage `json:"localData"`
	RemoteData   json.RawMessage `json:"remoteData"`
	Resolution   string          `json:"resolution,omitempty"`
	Status       string          `json:"status"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// UserPreferences drive the enforced cache budget and retention. Read at
// store initialization; an explicit update live-adjusts the budget.
type UserPreferences struct {
	CacheStrategy         string `json:"cacheStrategy"`
	MaxCacheSizeMB        int    `json:"maxCacheSizeMB"`
	RetentionDays         int    `json:"retentionDays"`
	SyncOnWifi            bool   `json:"syncOnWifi"`
	SyncOnCellular        bool   `json:"syncOnCellular"`
	AutoDownloadDocuments bool   `json:"autoDownloadDocuments"`
	AutoDownloadImages    bool   `json:"autoDownloadImages"`
}

func DefaultPreferences() *UserPreferences {
	return &UserPreferences{
		CacheStrategy:         "lru",
		MaxCacheSizeMB:        100,
		RetentionDays:         30,
		SyncOnWifi:            true,
		SyncOnCellular:        false,
		AutoDownloadDocuments: true,
		AutoDownloadImages:    false,
	}
}

func (p *UserPreferences) MaxCacheBytes() int64 {
	return int64(p.MaxCacheSizeMB) * 1024 * 1024
}
