package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dilneiss/CSRFProtector/core"
	"github.com/dilneiss/CSRFProtector/metrics"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// DefaultMemoryMaxEntries bounds the in-process store when no size is configured
const DefaultMemoryMaxEntries = 100000

// DefaultMemoryMaxPerSession bounds the records one session can hold
const DefaultMemoryMaxPerSession = 256

const backendMemory = "memory"

// MemoryStore keeps token records in process memory.
//
// Two bounds apply. A session holding maxPerSession records loses its
// oldest record on the next Put, so one session cannot push out the tokens
// of others. Once the whole store is full the least recently touched record
// of any session is dropped; size maxEntries for the expected number of
// concurrent sessions times the forms each keeps open.
type MemoryStore struct {
	// mu makes Consume a single lookup-and-remove step and guards sessions
	mu            sync.Mutex
	cache         *lru.Cache[string, core.TokenRecord]
	sessions      map[string][]string
	maxPerSession int
	closed        bool
	logger        *zap.SugaredLogger
}

// NewMemoryStore creates a MemoryStore holding at most maxEntries records
// and DefaultMemoryMaxPerSession records per session
func NewMemoryStore(maxEntries int, logger *zap.SugaredLogger) (*MemoryStore, error) {
	return NewMemoryStoreWithLimits(maxEntries, DefaultMemoryMaxPerSession, logger)
}

// NewMemoryStoreWithLimits creates a MemoryStore with explicit bounds.
// Non-positive bounds select the defaults.
func NewMemoryStoreWithLimits(maxEntries, maxPerSession int, logger *zap.SugaredLogger) (*MemoryStore, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultMemoryMaxEntries
	}
	if maxPerSession <= 0 {
		maxPerSession = DefaultMemoryMaxPerSession
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	m := &MemoryStore{
		sessions:      make(map[string][]string),
		maxPerSession: maxPerSession,
		logger:        logger,
	}
	// Every removal path (LRU eviction, Remove, Purge) runs the callback with mu held
	cache, err := lru.NewWithEvict[string, core.TokenRecord](maxEntries, func(key string, _ core.TokenRecord) {
		m.unindex(key)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}
	m.cache = cache
	return m, nil
}

func (m *MemoryStore) unindex(key string) {
	sessionID, _, _ := strings.Cut(key, keySeparator)
	keys := m.sessions[sessionID]
	for i, k := range keys {
		if k == key {
			keys = append(keys[:i], keys[i+1:]...)
			break
		}
	}
	if len(keys) == 0 {
		delete(m.sessions, sessionID)
		return
	}
	m.sessions[sessionID] = keys
}

// Put stores rec under its session, access key and token name
func (m *MemoryStore) Put(_ context.Context, sessionID string, rec core.TokenRecord) error {
	if !validKey(sessionID, rec.AccessKey, rec.TokenName) {
		return ErrInvalidKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}

	key := recordKey(sessionID, rec.AccessKey, rec.TokenName)
	if m.cache.Contains(key) {
		m.cache.Add(key, rec)
		return nil
	}

	if keys := m.sessions[sessionID]; len(keys) >= m.maxPerSession {
		m.cache.Remove(keys[0])
		m.logger.Debugw("Dropped oldest token record of session", "session_records", m.maxPerSession)
	}
	m.sessions[sessionID] = append(m.sessions[sessionID], key)
	m.cache.Add(key, rec)
	return nil
}

// Get returns the record at the key or core.ErrTokenNotFound
func (m *MemoryStore) Get(_ context.Context, sessionID, accessKey, tokenName string) (*core.TokenRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrStoreClosed
	}
	rec, ok := m.cache.Get(recordKey(sessionID, accessKey, tokenName))
	if !ok {
		return nil, core.ErrTokenNotFound
	}
	return &rec, nil
}

// Delete removes the record at the key if present
func (m *MemoryStore) Delete(_ context.Context, sessionID, accessKey, tokenName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	m.cache.Remove(recordKey(sessionID, accessKey, tokenName))
	return nil
}

// Consume removes the record when accept approves it
func (m *MemoryStore) Consume(_ context.Context, sessionID, accessKey, tokenName string, accept func(core.TokenRecord) bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, ErrStoreClosed
	}

	key := recordKey(sessionID, accessKey, tokenName)
	rec, ok := m.cache.Peek(key)
	if !ok || !accept(rec) {
		return false, nil
	}
	m.cache.Remove(key)
	return true, nil
}

// Sweep removes records issued before olderThan
func (m *MemoryStore) Sweep(_ context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrStoreClosed
	}

	cutoff := olderThan.Unix()
	var removed int64
	for _, key := range m.cache.Keys() {
		rec, ok := m.cache.Peek(key)
		if ok && rec.IssuedAt < cutoff {
			m.cache.Remove(key)
			removed++
		}
	}
	if removed > 0 {
		metrics.StoreSwept.WithLabelValues(backendMemory).Add(float64(removed))
	}
	return removed, nil
}

// Len returns the number of records currently held
func (m *MemoryStore) Len() int {
	return m.cache.Len()
}

// SessionLen returns the number of records held for sessionID
func (m *MemoryStore) SessionLen(sessionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions[sessionID])
}

// Close drops every record; later calls return ErrStoreClosed
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.cache.Purge()
	return nil
}
