package chatstorage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	repo, err := newWithDB(db)
	require.NoError(t, err)
	return repo
}

func TestPing(t *testing.T) {
	repo := newTestRepository(t)
	require.NoError(t, repo.Ping(context.Background()))
}

func TestSaveAndRecentHistory(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.SaveMessage(ctx, 100, 1, 10, "user", "привет"))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, repo.SaveMessage(ctx, 100, 0, 11, "assistant", "ну привет"))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, repo.SaveMessage(ctx, 100, 2, 12, "user", "как дела"))
	require.NoError(t, repo.SaveMessage(ctx, 999, 3, 13, "user", "другой чат"))

	entries, err := repo.RecentHistory(ctx, 100, 30)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "привет", entries[0].Content, "history must be chronological")
	assert.Equal(t, "assistant", entries[1].Role)
	assert.Equal(t, "как дела", entries[2].Content)
}

func TestRecentHistoryHonorsLimit(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, repo.SaveMessage(ctx, 100, 1, int64(i), "user", "msg"))
	}
	entries, err := repo.RecentHistory(ctx, 100, 4)
	require.NoError(t, err)
	assert.Len(t, entries, 4)
}

func TestCleanupOlderThan(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.SaveMessage(ctx, 100, 1, 1, "user", "old"))
	repo.db.Model(&chatMessage{}).Where("message_id = ?", 1).
		Update("created_at", time.Now().Add(-48*time.Hour))
	require.NoError(t, repo.SaveMessage(ctx, 100, 1, 2, "user", "new"))

	removed, err := repo.CleanupOlderThan(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	entries, err := repo.RecentHistory(ctx, 100, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "new", entries[0].Content)
}

func TestUserMessageCounts(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.SaveMessage(ctx, 100, 1, int64(i), "user", "a"))
	}
	require.NoError(t, repo.SaveMessage(ctx, 100, 2, 20, "user", "b"))
	require.NoError(t, repo.SaveMessage(ctx, 100, 0, 21, "assistant", "bot reply"))

	counts, err := repo.UserMessageCounts(ctx, 100)
	require.NoError(t, err)
	require.Len(t, counts, 2, "assistant rows with user id 0 are excluded")
	assert.EqualValues(t, 1, counts[0].UserID)
	assert.EqualValues(t, 3, counts[0].Count)
	assert.EqualValues(t, 2, counts[1].UserID)
	assert.EqualValues(t, 1, counts[1].Count)
}
