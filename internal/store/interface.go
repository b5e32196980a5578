package store

import (
	"context"
)

type Store interface {
	// Records
	Put(ctx context.Context, collection string, rec *CachedRecord) error
	Get(ctx context.Context, collection, id string) (*CachedRecord, error)
	GetAll(ctx context.Context, collection string, filter func(*CachedRecord) bool) ([]*CachedRecord, error)
	Delete(ctx context.Context, collection, id string) error

	// Sync queue
	EnqueueOperation(ctx context.Context, op *SyncOperation, rec *CachedRecord) error
	LoadDueOperations(ctx context.Context) ([]*SyncOperation, error)
	GetOperation(ctx context.Context, id string) (*SyncOperation, error)
	UpdateOperation(ctx context.Context, op *SyncOperation) error
	DeleteOperation(ctx context.Context, id string) error
	CountOperations(ctx context.Context, status OperationStatus) (int, error)

	// Conflicts
	CreateConflict(ctx context.Context, conflict *Conflict) error
	GetConflict(ctx context.Context, id string) (*Conflict, error)
	ListConflicts(ctx context.Context) ([]*Conflict, error)
	DeleteConflict(ctx context.Context, id string) error

	// Preferences
	Preferences(ctx context.Context) (*UserPreferences, error)
	UpdatePreferences(ctx context.Context, prefs *UserPreferences) error

	// Cache maintenance
	CacheSize(ctx context.Context) (int64, error)
	CleanupExpiredCache(ctx context.Context) (int, error)
	OptimizeCache(ctx context.Context) (int, error)

	// General
	Close() error
}
