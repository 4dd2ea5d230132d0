package store

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/globalchat/internal/metrics"
	"github.com/eldtechnologies/globalchat/internal/models"
)

const (
	DefaultMaxMessages   = 1000
	DefaultHeartbeatTTL  = 10 * time.Second
	DefaultSweepInterval = 5 * time.Second
)

// ErrMissingFields is returned when a required field is empty after trimming.
var ErrMissingFields = errors.New("missing required fields")

// Option configures a MemoryStore.
type Option func(*MemoryStore)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) { s.now = now }
}

// WithLogger sets the logger used by the sweeper.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *MemoryStore) { s.logger = logger }
}

// WithMaxMessages caps the number of retained messages.
func WithMaxMessages(n int) Option {
	return func(s *MemoryStore) {
		if n > 0 {
			s.maxMessages = n
		}
	}
}

// WithHeartbeatTTL sets how long a heartbeat keeps its user active.
func WithHeartbeatTTL(ttl time.Duration) Option {
	return func(s *MemoryStore) {
		if ttl > 0 {
			s.heartbeatTTL = ttl
		}
	}
}

// WithSweepInterval sets how often Run expires stale heartbeats.
func WithSweepInterval(d time.Duration) Option {
	return func(s *MemoryStore) {
		if d > 0 {
			s.sweepInterval = d
		}
	}
}

// MemoryStore keeps messages and heartbeats in process memory.
type MemoryStore struct {
	mu         sync.RWMutex
	messages   []models.Message
	heartbeats map[string]models.Heartbeat // keyed by session ID

	maxMessages   int
	heartbeatTTL  time.Duration
	sweepInterval time.Duration
	now           func() time.Time
	logger        zerolog.Logger
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		messages:      make([]models.Message, 0),
		heartbeats:    make(map[string]models.Heartbeat),
		maxMessages:   DefaultMaxMessages,
		heartbeatTTL:  DefaultHeartbeatTTL,
		sweepInterval: DefaultSweepInterval,
		now:           time.Now,
		logger:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ping always succeeds; the store has no backing connection.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Chat returns all messages in insertion order and the current active users.
func (s *MemoryStore) Chat(ctx context.Context) ([]models.Message, []string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages := make([]models.Message, len(s.messages))
	copy(messages, s.messages)

	return messages, activeUsers(s.heartbeats, s.now(), s.heartbeatTTL), nil
}

// AddMessage appends a message and drops the oldest ones past the cap.
func (s *MemoryStore) AddMessage(ctx context.Context, text, sender string) (models.Message, error) {
	text = strings.TrimSpace(text)
	sender = strings.TrimSpace(sender)
	if text == "" || sender == "" {
		return models.Message{}, ErrMissingFields
	}

	now := s.now().UTC()
	msg := models.Message{
		ID:        ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		Text:      text,
		Sender:    sender,
		Timestamp: now.Format(models.TimestampFormat),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, msg)
	if over := len(s.messages) - s.maxMessages; over > 0 {
		s.messages = slices.Delete(s.messages, 0, over)
		metrics.MessagesTruncated.Add(float64(over))
	}

	return msg, nil
}

// Clear removes every message. Presence is left untouched.
func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = make([]models.Message, 0)
	return nil
}

// Heartbeat upserts the session's heartbeat and returns the recomputed active users.
func (s *MemoryStore) Heartbeat(ctx context.Context, sessionID, username string) ([]string, error) {
	sessionID = strings.TrimSpace(sessionID)
	username = strings.TrimSpace(username)
	if sessionID == "" || username == "" {
		return nil, ErrMissingFields
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.heartbeats[sessionID] = models.Heartbeat{
		Username:  username,
		Timestamp: now.UnixMilli(),
	}

	users := activeUsers(s.heartbeats, now, s.heartbeatTTL)
	metrics.ActiveUsers.Set(float64(len(users)))
	return users, nil
}

// ActiveUsers returns the distinct usernames with a live heartbeat.
func (s *MemoryStore) ActiveUsers(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return activeUsers(s.heartbeats, s.now(), s.heartbeatTTL), nil
}

// Sweep deletes heartbeats older than the TTL and returns how many were removed.
func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for sessionID, hb := range s.heartbeats {
		if expired(hb, now, s.heartbeatTTL) {
			delete(s.heartbeats, sessionID)
			removed++
		}
	}

	metrics.HeartbeatsExpired.Add(float64(removed))
	metrics.ActiveUsers.Set(float64(len(activeUsers(s.heartbeats, now, s.heartbeatTTL))))
	return removed
}

// Run sweeps stale heartbeats on every interval until ctx is cancelled.
func (s *MemoryStore) Run(ctx context.Context) {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	s.logger.Info().
		Dur("interval", s.sweepInterval).
		Dur("ttl", s.heartbeatTTL).
		Msg("heartbeat sweeper started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("heartbeat sweeper stopped")
			return
		case <-ticker.C:
			if removed := s.Sweep(s.now()); removed > 0 {
				s.logger.Debug().Int("removed", removed).Msg("expired heartbeats")
			}
		}
	}
}

// activeUsers derives the sorted, de-duplicated set of live usernames.
func activeUsers(heartbeats map[string]models.Heartbeat, now time.Time, ttl time.Duration) []string {
	seen := make(map[string]struct{}, len(heartbeats))
	users := make([]string, 0, len(heartbeats))
	for _, hb := range heartbeats {
		if expired(hb, now, ttl) {
			continue
		}
		if _, ok := seen[hb.Username]; ok {
			continue
		}
		seen[hb.Username] = struct{}{}
		users = append(users, hb.Username)
	}
	slices.Sort(users)
	return users
}

func expired(hb models.Heartbeat, now time.Time, ttl time.Duration) bool {
	return now.UnixMilli()-hb.Timestamp > ttl.Milliseconds()
}
