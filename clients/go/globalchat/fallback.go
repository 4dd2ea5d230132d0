package globalchat

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// FallbackKey is the key under which degraded-mode messages are kept.
const FallbackKey = "fallback_messages"

// FallbackStore persists the local message list while the server is unreachable.
// It is never merged back into the server's state.
type FallbackStore interface {
	// Load returns the saved messages; found is false if nothing was saved yet.
	Load(ctx context.Context) (messages []Message, found bool, err error)
	Save(ctx context.Context, messages []Message) error
}

// MemoryFallback keeps the fallback list in process memory.
type MemoryFallback struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemoryFallback creates an empty in-memory fallback store.
func NewMemoryFallback() *MemoryFallback {
	return &MemoryFallback{data: make(map[string][]byte)}
}

// Load implements FallbackStore.
func (m *MemoryFallback) Load(_ context.Context) ([]Message, bool, error) {
	m.mu.Lock()
	raw, ok := m.data[FallbackKey]
	m.mu.Unlock()

	if !ok {
		return nil, false, nil
	}
	return decodeMessages(raw)
}

// Save implements FallbackStore.
func (m *MemoryFallback) Save(_ context.Context, messages []Message) error {
	raw, err := encodeMessages(messages)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[FallbackKey] = raw
	return nil
}

// SQLiteFallback keeps the fallback list in a local SQLite key/value table,
// surviving client restarts.
type SQLiteFallback struct {
	db *sql.DB
}

// NewSQLiteFallback opens (creating if needed) the database at dbPath.
func NewSQLiteFallback(ctx context.Context, dbPath string) (*SQLiteFallback, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	_, err = db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS local_storage (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteFallback{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteFallback) Close() error {
	return s.db.Close()
}

// Load implements FallbackStore.
func (s *SQLiteFallback) Load(ctx context.Context) ([]Message, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM local_storage WHERE key = ?
	`, FallbackKey).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return decodeMessages([]byte(raw))
}

// Save implements FallbackStore.
func (s *SQLiteFallback) Save(ctx context.Context, messages []Message) error {
	raw, err := encodeMessages(messages)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO local_storage (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, FallbackKey, string(raw), time.Now().UTC())
	return err
}

func encodeMessages(messages []Message) ([]byte, error) {
	if messages == nil {
		messages = []Message{}
	}
	return json.Marshal(messages)
}

func decodeMessages(raw []byte) ([]Message, bool, error) {
	var messages []Message
	if err := json.Unmarshal(raw, &messages); err != nil {
		return nil, true, err
	}
	if messages == nil {
		messages = []Message{}
	}
	return messages, true, nil
}
