package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"go.uber.org/zap"

	"practice-sync-client/internal/logger"
)

// optimizeThreshold is the fraction of the budget at which eviction kicks
// in; evictFraction is the share of tracked entries removed per pass.
const (
	optimizeThreshold = 0.9
	evictFraction     = 0.2
)

// CacheSize recomputes usage by summing persisted payload sizes. Expensive;
// intended for periodic invocation.
func (s *SQLiteStore) CacheSize(ctx context.Context) (int64, error) {
	if err := s.ensureInit(); err != nil {
		return 0, err
	}

	var size int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(LENGTH(payload)), 0) FROM records`).Scan(&size)
	return size, err
}

// CleanupExpiredCache removes records whose age since cachedAt exceeds the
// retention-days preference, together with their cache metadata.
func (s *SQLiteStore) CleanupExpiredCache(ctx context.Context) (int, error) {
	if err := s.ensureInit(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	retention := s.retentionDays
	s.mu.Unlock()
	if retention <= 0 {
		return 0, nil
	}

	cutoff := time.Now().Add(-time.Duration(retention) * 24 * time.Hour).UnixNano()

	removed := 0
	err := s.execTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT collection, id FROM records WHERE cached_at < ?`, cutoff)
		if err != nil {
			return err
		}
		var keys []string
		for rows.Next() {
			var collection, id string
			if err := rows.Scan(&collection, &id); err != nil {
				rows.Close()
				return err
			}
			keys = append(keys, metadataKey(collection, id))
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		removed = len(keys)

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM records WHERE cached_at < ?`, cutoff); err != nil {
			return err
		}
		return deleteMetadata(ctx, tx, keys)
	})
	if err != nil {
		return 0, err
	}

	if removed > 0 {
		logger.Log.Info("Removed expired cache records",
			zap.Int("removed", removed), zap.Int("retentionDays", retention))
	}
	return removed, nil
}

// OptimizeCache evicts only at >=90% of the budget: the oldest 20% of
// tracked entries by lastAccessed, plus their owning records. Approximate
// LRU, chosen for simplicity over exactness.
func (s *SQLiteStore) OptimizeCache(ctx context.Context) (int, error) {
	if err := s.ensureInit(); err != nil {
		return 0, err
	}

	size, err := s.CacheSize(ctx)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	budget := s.maxCacheBytes
	s.mu.Unlock()

	if budget <= 0 || float64(size) < optimizeThreshold*float64(budget) {
		return 0, nil
	}

	var tracked int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM cache_metadata`).Scan(&tracked); err != nil {
		return 0, err
	}
	evict := int(float64(tracked) * evictFraction)
	if evict == 0 && tracked > 0 {
		evict = 1
	}
	if evict == 0 {
		return 0, nil
	}

	err = s.execTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT key FROM cache_metadata ORDER BY last_accessed ASC LIMIT ?`, evict)
		if err != nil {
			return err
		}
		var keys []string
		for rows.Next() {
			var key string
			if err := rows.Scan(&key); err != nil {
				rows.Close()
				return err
			}
			keys = append(keys, key)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, key := range keys {
			collection, id, ok := strings.Cut(key, ":")
			if !ok {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM records WHERE collection = ? AND id = ?`, collection, id); err != nil {
				return err
			}
		}
		return deleteMetadata(ctx, tx, keys)
	})
	if err != nil {
		return 0, err
	}

	logger.Log.Info("Evicted cache records",
		zap.Int("evicted", evict),
		zap.Int64("sizeBytes", size),
		zap.Int64("budgetBytes", budget))
	return evict, nil
}

func deleteMetadata(ctx context.Context, tx *sql.Tx, keys []string) error {
	for _, key := range keys {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM cache_metadata WHERE key = ?`, key); err != nil {
			return err
		}
	}
	return nil
}
