package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"practice-sync-client/internal/crypto"
	"practice-sync-client/internal/logger"
)

// SQLiteStore is the encrypted local persistent store. Every payload is
// serialized, encrypted and written as an opaque blob; columns needed for
// querying (status, priority, timestamps) stay in the clear.
type SQLiteStore struct {
	db    *sql.DB
	codec crypto.Codec

	mu            sync.Mutex
	maxCacheBytes int64
	retentionDays int

	initOnce sync.Once
	initErr  error
}

func Open(path string, codec crypto.Codec) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	s := &SQLiteStore{db: db, codec: codec}
	if err := s.ensureInit(); err != nil {
		db.Close()
		return nil, err
	}

	// Preferences drive the enforced budget from the start.
	prefs, err := s.Preferences(context.Background())
	if err != nil {
		db.Close()
		return nil, err
	}
	s.mu.Lock()
	s.maxCacheBytes = prefs.MaxCacheBytes()
	s.retentionDays = prefs.RetentionDays
	s.mu.Unlock()

	logger.Log.Info("Opened local store", zap.String("path", path))
	return s, nil
}

// ensureInit makes every entry point safe on an uninitialized store.
func (s *SQLiteStore) ensureInit() error {
	s.initOnce.Do(func() {
		_, s.initErr = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS records (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			payload BLOB NOT NULL,
			cached_at INTEGER NOT NULL,
			PRIMARY KEY (collection, id)
		);
		CREATE TABLE IF NOT EXISTS cache_metadata (
			key TEXT PRIMARY KEY,
			size INTEGER NOT NULL,
			last_accessed INTEGER NOT NULL,
			access_count INTEGER NOT NULL,
			priority INTEGER NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS sync_queue (
			id TEXT PRIMARY KEY,
			payload BLOB NOT NULL,
			status TEXT NOT NULL,
			priority INTEGER NOT NULL,
			retry_count INTEGER NOT NULL,
			max_retries INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			scheduled_at INTEGER
		);
		CREATE INDEX IF NOT EXISTS idx_queue_status ON sync_queue(status, scheduled_at);
		CREATE INDEX IF NOT EXISTS idx_records_cached ON records(cached_at);
		CREATE TABLE IF NOT EXISTS conflicts (
			id TEXT PRIMARY KEY,
			payload BLOB NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS user_preferences (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			payload BLOB NOT NULL
		);
		PRAGMA journal_mode=WAL;
		PRAGMA synchronous=NORMAL;
		`)
		if s.initErr != nil {
			s.initErr = fmt.Errorf("failed to initialize store: %w", s.initErr)
		}
	})
	return s.initErr
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// execTx executes a function within a transaction.
func (s *SQLiteStore) execTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("tx err: %v, rb err: %v", err, rbErr)
		}
		return err
	}

	return tx.Commit()
}

func (s *SQLiteStore) seal(v any) ([]byte, error) {
	plain, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize record: %w", err)
	}
	sealed, err := s.codec.Encrypt(plain)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt record: %w", err)
	}
	return sealed, nil
}

func (s *SQLiteStore) open(sealed []byte, v any) error {
	plain, err := s.codec.Decrypt(sealed)
	if err != nil {
		return fmt.Errorf("failed to decrypt record: %w", err)
	}
	if err := json.Unmarshal(plain, v); err != nil {
		return fmt.Errorf("failed to deserialize record: %w", err)
	}
	return nil
}

func metadataKey(collection, id string) string {
	return collection + ":" + id
}

// --- Records ---

func (s *SQLiteStore) Put(ctx context.Context, collection string, rec *CachedRecord) error {
	if err := s.ensureInit(); err != nil {
		return err
	}

	rec.Collection = collection
	if rec.CachedAt.IsZero() {
		rec.CachedAt = time.Now()
	}

	sealed, err := s.seal(rec)
	if err != nil {
		return err
	}

	return s.execTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO records (collection, id, payload, cached_at) VALUES (?, ?, ?, ?)`,
			collection, rec.ID, sealed, rec.CachedAt.UnixNano())
		if err != nil {
			return err
		}
		return upsertMetadata(ctx, tx, metadataKey(collection, rec.ID), int64(len(sealed)))
	})
}

func upsertMetadata(ctx context.Context, tx *sql.Tx, key string, size int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO cache_metadata (key, size, last_accessed, access_count, priority)
		VALUES (?, ?, ?, 1, 0)
		ON CONFLICT(key) DO UPDATE SET
			size = excluded.size,
			last_accessed = excluded.last_accessed,
			access_count = cache_metadata.access_count + 1`,
		key, size, time.Now().UnixNano())
	return err
}

// touchMetadata refreshes access tracking on reads, approximating LRU.
func (s *SQLiteStore) touchMetadata(ctx context.Context, keys ...string) {
	for _, key := range keys {
		_, err := s.db.ExecContext(ctx,
			`UPDATE cache_metadata SET last_accessed = ?, access_count = access_count + 1 WHERE key = ?`,
			time.Now().UnixNano(), key)
		if err != nil {
			logger.Log.Warn("Failed to refresh cache metadata", zap.String("key", key), zap.Error(err))
		}
	}
}

func (s *SQLiteStore) Get(ctx context.Context, collection, id string) (*CachedRecord, error) {
	if err := s.ensureInit(); err != nil {
		return nil, err
	}

	var sealed []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM records WHERE collection = ? AND id = ?`, collection, id).Scan(&sealed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rec CachedRecord
	if err := s.open(sealed, &rec); err != nil {
		return nil, err
	}

	s.touchMetadata(ctx, metadataKey(collection, id))
	return &rec, nil
}

func (s *SQLiteStore) GetAll(ctx context.Context, collection string, filter func(*CachedRecord) bool) ([]*CachedRecord, error) {
	if err := s.ensureInit(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM records WHERE collection = ? ORDER BY id`, collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*CachedRecord
	var touched []string
	for rows.Next() {
		var sealed []byte
		if err := rows.Scan(&sealed); err != nil {
			return nil, err
		}
		var rec CachedRecord
		if err := s.open(sealed, &rec); err != nil {
			return nil, err
		}
		// Filters apply after decryption.
		if filter != nil && !filter(&rec) {
			continue
		}
		recs = append(recs, &rec)
		touched = append(touched, metadataKey(collection, rec.ID))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	s.touchMetadata(ctx, touched...)
	return recs, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, collection, id string) error {
	if err := s.ensureInit(); err != nil {
		return err
	}

	return s.execTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM records WHERE collection = ? AND id = ?`, collection, id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`DELETE FROM cache_metadata WHERE key = ?`, metadataKey(collection, id))
		return err
	})
}

// --- Sync queue ---

// EnqueueOperation writes the locally mutated record and its queue entry
// together, so a crash cannot separate the two.
func (s *SQLiteStore) EnqueueOperation(ctx context.Context, op *SyncOperation, rec *CachedRecord) error {
	if err := s.ensureInit(); err != nil {
		return err
	}

	if op.CreatedAt.IsZero() {
		op.CreatedAt = time.Now()
	}
	if op.Status == "" {
		op.Status = StatusPending
	}

	sealedOp, err := s.seal(op)
	if err != nil {
		return err
	}

	var sealedRec []byte
	if rec != nil {
		rec.Collection = ResourceCollection(op.ResourceType)
		if rec.CachedAt.IsZero() {
			rec.CachedAt = time.Now()
		}
		if sealedRec, err = s.seal(rec); err != nil {
			return err
		}
	}

	return s.execTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sync_queue (id, payload, status, priority, retry_count, max_retries, created_at, scheduled_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, NULL)`,
			op.ID, sealedOp, string(op.Status), op.Priority, op.RetryCount, op.MaxRetries,
			op.CreatedAt.UnixNano()); err != nil {
			return err
		}
		if rec == nil {
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO records (collection, id, payload, cached_at) VALUES (?, ?, ?, ?)`,
			rec.Collection, rec.ID, sealedRec, rec.CachedAt.UnixNano()); err != nil {
			return err
		}
		return upsertMetadata(ctx, tx, metadataKey(rec.Collection, rec.ID), int64(len(sealedRec)))
	})
}

// LoadDueOperations returns pending operations plus failed ones that still
// have retry budget, with any scheduled retry delay elapsed. Terminally
// failed operations stay in the queue for user-triggered retry only.
func (s *SQLiteStore) LoadDueOperations(ctx context.Context) ([]*SyncOperation, error) {
	if err := s.ensureInit(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM sync_queue
		WHERE (status = ? OR (status = ? AND retry_count < max_retries))
		  AND (scheduled_at IS NULL OR scheduled_at <= ?)
		ORDER BY priority ASC, created_at ASC`,
		string(StatusPending), string(StatusFailed), time.Now().UnixNano())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ops []*SyncOperation
	for rows.Next() {
		var sealed []byte
		if err := rows.Scan(&sealed); err != nil {
			return nil, err
		}
		var op SyncOperation
		if err := s.open(sealed, &op); err != nil {
			return nil, err
		}
		ops = append(ops, &op)
	}
	return ops, rows.Err()
}

func (s *SQLiteStore) GetOperation(ctx context.Context, id string) (*SyncOperation, error) {
	if err := s.ensureInit(); err != nil {
		return nil, err
	}

	var sealed []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM sync_queue WHERE id = ?`, id).Scan(&sealed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var op SyncOperation
	if err := s.open(sealed, &op); err != nil {
		return nil, err
	}
	return &op, nil
}

func (s *SQLiteStore) DeleteOperation(ctx context.Context, id string) error {
	if err := s.ensureInit(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = ?`, id)
	return err
}

func (s *SQLiteStore) UpdateOperation(ctx context.Context, op *SyncOperation) error {
	if err := s.ensureInit(); err != nil {
		return err
	}

	sealed, err := s.seal(op)
	if err != nil {
		return err
	}

	var scheduledAt any
	if op.ScheduledAt != nil {
		scheduledAt = op.ScheduledAt.UnixNano()
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE sync_queue SET payload = ?, status = ?, retry_count = ?, scheduled_at = ?
		WHERE id = ?`,
		sealed, string(op.Status), op.RetryCount, scheduledAt, op.ID)
	return err
}

func (s *SQLiteStore) CountOperations(ctx context.Context, status OperationStatus) (int, error) {
	if err := s.ensureInit(); err != nil {
		return 0, err
	}

	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sync_queue WHERE status = ?`, string(status)).Scan(&n)
	return n, err
}

// --- Conflicts ---

func (s *SQLiteStore) CreateConflict(ctx context.Context, conflict *Conflict) error {
	if err := s.ensureInit(); err != nil {
		return err
	}

	if conflict.CreatedAt.IsZero() {
		conflict.CreatedAt = time.Now()
	}
	sealed, err := s.seal(conflict)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO conflicts (id, payload, created_at) VALUES (?, ?, ?)`,
		conflict.ID, sealed, conflict.CreatedAt.UnixNano())
	return err
}

func (s *SQLiteStore) GetConflict(ctx context.Context, id string) (*Conflict, error) {
	if err := s.ensureInit(); err != nil {
		return nil, err
	}

	var sealed []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM conflicts WHERE id = ?`, id).Scan(&sealed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var c Conflict
	if err := s.open(sealed, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *SQLiteStore) ListConflicts(ctx context.Context) ([]*Conflict, error) {
	if err := s.ensureInit(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM conflicts ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conflicts []*Conflict
	for rows.Next() {
		var sealed []byte
		if err := rows.Scan(&sealed); err != nil {
			return nil, err
		}
		var c Conflict
		if err := s.open(sealed, &c); err != nil {
			return nil, err
		}
		conflicts = append(conflicts, &c)
	}
	return conflicts, rows.Err()
}

func (s *SQLiteStore) DeleteConflict(ctx context.Context, id string) error {
	if err := s.ensureInit(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `DELETE FROM conflicts WHERE id = ?`, id)
	return err
}

// --- Preferences ---

func (s *SQLiteStore) Preferences(ctx context.Context) (*UserPreferences, error) {
	if err := s.ensureInit(); err != nil {
		return nil, err
	}

	var sealed []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM user_preferences WHERE id = 1`).Scan(&sealed)
	if err == sql.ErrNoRows {
		return DefaultPreferences(), nil
	}
	if err != nil {
		return nil, err
	}

	var prefs UserPreferences
	if err := s.open(sealed, &prefs); err != nil {
		return nil, err
	}
	return &prefs, nil
}

func (s *SQLiteStore) UpdatePreferences(ctx context.Context, prefs *UserPreferences) error {
	if err := s.ensureInit(); err != nil {
		return err
	}

	sealed, err := s.seal(prefs)
	if err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO user_preferences (id, payload) VALUES (1, ?)`, sealed); err != nil {
		return err
	}

	// Live-update the enforced budget.
	s.mu.Lock()
	s.maxCacheBytes = prefs.MaxCacheBytes()
	s.retentionDays = prefs.RetentionDays
	s.mu.Unlock()

	logger.Log.Info("Updated preferences",
		zap.Int("maxCacheSizeMB", prefs.MaxCacheSizeMB),
		zap.Int("retentionDays", prefs.RetentionDays))
	return nil
}
