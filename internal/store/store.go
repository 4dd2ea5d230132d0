package store

import (
	"context"
	"time"

	"github.com/eldtechnologies/globalchat/internal/models"
)

// Store defines the chat state shared by all clients.
// MemoryStore is the only implementation; handlers depend on this interface.
type Store interface {
	// Connection management
	Ping(ctx context.Context) error

	// Message operations
	Chat(ctx context.Context) ([]models.Message, []string, error)
	AddMessage(ctx context.Context, text, sender string) (models.Message, error)
	Clear(ctx context.Context) error

	// Presence operations
	Heartbeat(ctx context.Context, sessionID, username string) ([]string, error)
	ActiveUsers(ctx context.Context) ([]string, error)
	Sweep(now time.Time) int
}
