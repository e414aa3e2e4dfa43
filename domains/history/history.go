package history

import (
	"context"
	"time"
)

// Entry is one chat turn in the shape the AI provider consumes.
type Entry struct {
	Role    string
	Content string
}

// UserCount is the per-user message total for one chat.
type UserCount struct {
	UserID int64
	Count  int64
}

// IHistoryRepository persists the target chat's message log.
type IHistoryRepository interface {
	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error
	SaveMessage(ctx context.Context, chatID, userID, messageID int64, role, content string) error
	// RecentHistory returns the last limit messages in chronological order.
	RecentHistory(ctx context.Context, chatID int64, limit int) ([]Entry, error)
	CleanupOlderThan(ctx context.Context, age time.Duration) (int64, error)
	// ResetChat drops the chat's whole log, wiping the AI context.
	ResetChat(ctx context.Context, chatID int64) error
	UserMessageCounts(ctx context.Context, chatID int64) ([]UserCount, error)
}
