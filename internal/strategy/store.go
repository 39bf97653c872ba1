package strategy

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"nutriplan/internal/database"
)

// Store caches strategies and meal structures per user with a TTL.
// Get methods return nil when nothing is cached or the entry expired.
type Store interface {
	GetStrategy(ctx context.Context, userID string) (*Strategy, error)
	PutStrategy(ctx context.Context, userID string, s Strategy) error
	GetStructure(ctx context.Context, userID string) (*MealStructure, error)
	PutStructure(ctx context.Context, userID string, m MealStructure) error
}

type kind string

const (
	kindStrategy  kind = "strategy"
	kindStructure kind = "structure"
)

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, now: time.Now, entries: make(map[string]memoryEntry)}
}

func memKey(userID string, k kind) string { return string(k) + ":" + userID }

func (m *MemoryStore) get(userID string, k kind, out any) (bool, error) {
	m.mu.RLock()
	e, ok := m.entries[memKey(userID, k)]
	m.mu.RUnlock()
	if !ok || !m.now().Before(e.expiresAt) {
		return false, nil
	}
	return true, json.Unmarshal(e.data, out)
}

func (m *MemoryStore) put(userID string, k kind, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.entries[memKey(userID, k)] = memoryEntry{data: data, expiresAt: m.now().Add(m.ttl)}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) GetStrategy(_ context.Context, userID string) (*Strategy, error) {
	var s Strategy
	ok, err := m.get(userID, kindStrategy, &s)
	if !ok || err != nil {
		return nil, err
	}
	return &s, nil
}

func (m *MemoryStore) PutStrategy(_ context.Context, userID string, s Strategy) error {
	return m.put(userID, kindStrategy, s)
}

func (m *MemoryStore) GetStructure(_ context.Context, userID string) (*MealStructure, error) {
	var s MealStructure
	ok, err := m.get(userID, kindStructure, &s)
	if !ok || err != nil {
		return nil, err
	}
	return &s, nil
}

func (m *MemoryStore) PutStructure(_ context.Context, userID string, s MealStructure) error {
	if err := s.Validate(); err != nil {
		return err
	}
	return m.put(userID, kindStructure, s)
}

// SQLiteStore persists cache entries in the strategy_cache table so they
// survive restarts of the server.
type SQLiteStore struct {
	db  database.DBTX
	ttl time.Duration
	now func() time.Time
}

func NewSQLiteStore(db database.DBTX, ttl time.Duration) *SQLiteStore {
	return &SQLiteStore{db: db, ttl: ttl, now: time.Now}
}

func (s *SQLiteStore) get(ctx context.Context, userID string, k kind, out any) (bool, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `
		SELECT data FROM strategy_cache
		WHERE user_id = ? AND kind = ? AND expires_at > ?`,
		userID, string(k), s.now().Unix()).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read %s cache for %s: %w", k, userID, err)
	}
	if err := json.Unmarshal([]byte(data), out); err != nil {
		return false, fmt.Errorf("failed to decode cached %s for %s: %w", k, userID, err)
	}
	return true, nil
}

func (s *SQLiteStore) put(ctx context.Context, userID string, k kind, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	now := s.now()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO strategy_cache (user_id, kind, data, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, kind) DO UPDATE SET
			data = excluded.data,
			expires_at = excluded.expires_at,
			created_at = excluded.created_at`,
		userID, string(k), string(data), now.Add(s.ttl).Unix(), now.UTC())
	if err != nil {
		return fmt.Errorf("failed to write %s cache for %s: %w", k, userID, err)
	}
	return nil
}

func (s *SQLiteStore) GetStrategy(ctx context.Context, userID string) (*Strategy, error) {
	var st Strategy
	ok, err := s.get(ctx, userID, kindStrategy, &st)
	if !ok || err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *SQLiteStore) PutStrategy(ctx context.Context, userID string, st Strategy) error {
	return s.put(ctx, userID, kindStrategy, st)
}

func (s *SQLiteStore) GetStructure(ctx context.Context, userID string) (*MealStructure, error) {
	var m MealStructure
	ok, err := s.get(ctx, userID, kindStructure, &m)
	if !ok || err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *SQLiteStore) PutStructure(ctx context.Context, userID string, m MealStructure) error {
	if err := m.Validate(); err != nil {
		return err
	}
	return s.put(ctx, userID, kindStructure, m)
}

// CleanupExpired removes expired entries and returns how many were deleted.
func (s *SQLiteStore) CleanupExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM strategy_cache WHERE expires_at <= ?`, s.now().Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
