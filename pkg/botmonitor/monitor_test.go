package botmonitor

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMonitor_CountersAndChatBreakdown(t *testing.T) {
	m := New()

	m.IncrementMessage(100)
	m.IncrementMessage(100)
	m.IncrementMessage(200)
	m.IncrementCommand(100)
	m.IncrementAPIRequest(200)
	m.IncrementAIRequest(0) // no chat attribution

	snap := m.GetSnapshot()
	assert.Equal(t, int64(3), snap.MessageCount)
	assert.Equal(t, int64(1), snap.CommandCount)
	assert.Equal(t, int64(1), snap.APIRequestCount)
	assert.Equal(t, int64(1), snap.AIRequestCount)

	assert.Equal(t, int64(2), snap.Chats[100].MessageCount)
	assert.Equal(t, int64(1), snap.Chats[100].CommandCount)
	assert.Equal(t, int64(1), snap.Chats[200].APIRequestCount)
	assert.NotContains(t, snap.Chats, int64(0))
}

func TestMonitor_ErrorRingBounded(t *testing.T) {
	m := New()
	for i := 0; i < 15; i++ {
		m.LogError(fmt.Errorf("err %d", i), "test")
	}

	snap := m.GetSnapshot()
	assert.Equal(t, int64(15), snap.ErrorCount)
	assert.Len(t, snap.LastErrors, 10)
	assert.Equal(t, "err 14", snap.LastErrors[9].Error)
	assert.Equal(t, "err 5", snap.LastErrors[0].Error)
}

func TestMonitor_ConcurrentIncrements(t *testing.T) {
	m := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.IncrementMessage(7)
			m.IncrementRequest()
			m.LogError(errors.New("x"), "concurrent")
		}()
	}
	wg.Wait()

	snap := m.GetSnapshot()
	assert.Equal(t, int64(50), snap.MessageCount)
	assert.Equal(t, int64(50), snap.RequestCount)
	assert.Equal(t, int64(50), snap.ErrorCount)
	assert.Equal(t, int64(50), snap.Chats[7].MessageCount)
}

func TestFormatUptime(t *testing.T) {
	assert.Equal(t, "5с", FormatUptime(5*time.Second))
	assert.Equal(t, "2м 0с", FormatUptime(2*time.Minute))
	assert.Equal(t, "1ч 0м 1с", FormatUptime(time.Hour+time.Second))
	assert.Equal(t, "1д 1ч 1м 1с", FormatUptime(25*time.Hour+61*time.Second))
}
