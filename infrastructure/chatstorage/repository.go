// Package chatstorage persists the target chat's message log in Postgres so
// the AI keeps conversational context across restarts.
package chatstorage

import (
	"context"
	"time"

	"github.com/brainzab/mranatoly-bot/domains/history"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type chatMessage struct {
	ID        uint      `gorm:"primaryKey"`
	ChatID    int64     `gorm:"index:idx_chat_created"`
	UserID    int64     `gorm:"index"`
	MessageID int64
	Role      string    `gorm:"size:16"`
	Content   string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"index:idx_chat_created"`
}

func (chatMessage) TableName() string { return "chat_messages" }

type Repository struct {
	db *gorm.DB
}

// NewRepository opens the database and migrates the schema.
func NewRepository(databaseURL string) (*Repository, error) {
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	return newWithDB(db)
}

func newWithDB(db *gorm.DB) (*Repository, error) {
	if err := db.AutoMigrate(&chatMessage{}); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

// Ping verifies the underlying database connection is alive.
func (r *Repository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (r *Repository) SaveMessage(ctx context.Context, chatID, userID, messageID int64, role, content string) error {
	return r.db.WithContext(ctx).Create(&chatMessage{
		ChatID:    chatID,
		UserID:    userID,
		MessageID: messageID,
		Role:      role,
		Content:   content,
	}).Error
}

// RecentHistory returns the last limit messages for the chat in chronological
// order, oldest first, ready to feed to the AI.
func (r *Repository) RecentHistory(ctx context.Context, chatID int64, limit int) ([]history.Entry, error) {
	var rows []chatMessage
	err := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	entries := make([]history.Entry, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		entries = append(entries, history.Entry{Role: rows[i].Role, Content: rows[i].Content})
	}
	return entries, nil
}

// CleanupOlderThan deletes messages past the retention window and returns how
// many rows went away.
func (r *Repository) CleanupOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := time.Now().Add(-age)
	res := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&chatMessage{})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		logrus.Infof("[CHAT_STORAGE] removed %d messages older than %s", res.RowsAffected, age)
	}
	return res.RowsAffected, nil
}

// ResetChat deletes the whole log for one chat.
func (r *Repository) ResetChat(ctx context.Context, chatID int64) error {
	return r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Delete(&chatMessage{}).Error
}

// UserMessageCounts aggregates per-user message totals for the chat, most
// active first. System and assistant rows carry user id 0 and are skipped.
func (r *Repository) UserMessageCounts(ctx context.Context, chatID int64) ([]history.UserCount, error) {
	var counts []history.UserCount
	err := r.db.WithContext(ctx).
		Model(&chatMessage{}).
		Select("user_id, count(*) as count").
		Where("chat_id = ? AND user_id <> 0", chatID).
		Group("user_id").
		Order("count DESC").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	return counts, nil
}

var _ history.IHistoryRepository = (*Repository)(nil)
