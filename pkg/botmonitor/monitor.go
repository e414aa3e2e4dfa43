// Package botmonitor tracks process-wide request counters, a per-chat
// breakdown and the most recent errors. Counters live for the process
// lifetime and are never persisted.
package botmonitor

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

const errorRingSize = 10

// ChatStats is the per-chat counter breakdown.
type ChatStats struct {
	MessageCount     int64 `json:"message_count"`
	CommandCount     int64 `json:"command_count"`
	APIRequestCount  int64 `json:"api_request_count"`
	AIRequestCount   int64 `json:"ai_request_count"`
	DBOperationCount int64 `json:"db_operation_count"`
}

// ErrorRecord keeps one captured error for the /stats report.
type ErrorRecord struct {
	Time    time.Time `json:"time"`
	Error   string    `json:"error"`
	Context string    `json:"context"`
}

// Snapshot is a read-only view of the counters.
type Snapshot struct {
	Uptime           time.Duration        `json:"-"`
	UptimeText       string               `json:"uptime"`
	MemoryBytes      uint64               `json:"memory_bytes"`
	RequestCount     int64                `json:"request_count"`
	ErrorCount       int64                `json:"error_count"`
	MessageCount     int64                `json:"message_count"`
	CommandCount     int64                `json:"command_count"`
	APIRequestCount  int64                `json:"api_request_count"`
	AIRequestCount   int64                `json:"ai_request_count"`
	DBOperationCount int64                `json:"db_operation_count"`
	LastErrors       []ErrorRecord        `json:"last_errors"`
	Chats            map[int64]*ChatStats `json:"chats"`
}

// Monitor is safe for concurrent use. Construct one per process via New and
// pass it to every component that performs a tracked operation.
type Monitor struct {
	startTime time.Time

	requestCount     int64
	errorCount       int64
	messageCount     int64
	commandCount     int64
	apiRequestCount  int64
	aiRequestCount   int64
	dbOperationCount int64

	mu         sync.Mutex
	chatStats  map[int64]*ChatStats
	lastErrors []ErrorRecord
}

func New() *Monitor {
	return &Monitor{
		startTime: time.Now(),
		chatStats: make(map[int64]*ChatStats),
	}
}

func (m *Monitor) chat(chatID int64) *ChatStats {
	s, ok := m.chatStats[chatID]
	if !ok {
		s = &ChatStats{}
		m.chatStats[chatID] = s
	}
	return s
}

func (m *Monitor) IncrementRequest() { atomic.AddInt64(&m.requestCount, 1) }

func (m *Monitor) IncrementMessage(chatID int64) {
	atomic.AddInt64(&m.messageCount, 1)
	if chatID != 0 {
		m.mu.Lock()
		m.chat(chatID).MessageCount++
		m.mu.Unlock()
	}
}

func (m *Monitor) IncrementCommand(chatID int64) {
	atomic.AddInt64(&m.commandCount, 1)
	if chatID != 0 {
		m.mu.Lock()
		m.chat(chatID).CommandCount++
		m.mu.Unlock()
	}
}

func (m *Monitor) IncrementAPIRequest(chatID int64) {
	atomic.AddInt64(&m.apiRequestCount, 1)
	if chatID != 0 {
		m.mu.Lock()
		m.chat(chatID).APIRequestCount++
		m.mu.Unlock()
	}
}

func (m *Monitor) IncrementAIRequest(chatID int64) {
	atomic.AddInt64(&m.aiRequestCount, 1)
	if chatID != 0 {
		m.mu.Lock()
		m.chat(chatID).AIRequestCount++
		m.mu.Unlock()
	}
}

func (m *Monitor) IncrementDBOperation(chatID int64) {
	atomic.AddInt64(&m.dbOperationCount, 1)
	if chatID != 0 {
		m.mu.Lock()
		m.chat(chatID).DBOperationCount++
		m.mu.Unlock()
	}
}

// LogError counts the error and keeps it in the recent-errors ring.
func (m *Monitor) LogError(err error, context string) {
	atomic.AddInt64(&m.errorCount, 1)
	logrus.Errorf("[MONITOR] %s: %v", context, err)

	m.mu.Lock()
	m.lastErrors = append(m.lastErrors, ErrorRecord{
		Time:    time.Now(),
		Error:   err.Error(),
		Context: context,
	})
	if len(m.lastErrors) > errorRingSize {
		m.lastErrors = m.lastErrors[len(m.lastErrors)-errorRingSize:]
	}
	m.mu.Unlock()
}

// GetSnapshot returns a copy of all counters.
func (m *Monitor) GetSnapshot() Snapshot {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	uptime := time.Since(m.startTime)

	m.mu.Lock()
	chats := make(map[int64]*ChatStats, len(m.chatStats))
	for id, s := range m.chatStats {
		copied := *s
		chats[id] = &copied
	}
	errs := make([]ErrorRecord, len(m.lastErrors))
	copy(errs, m.lastErrors)
	m.mu.Unlock()

	return Snapshot{
		Uptime:           uptime,
		UptimeText:       FormatUptime(uptime),
		MemoryBytes:      mem.Alloc,
		RequestCount:     atomic.LoadInt64(&m.requestCount),
		ErrorCount:       atomic.LoadInt64(&m.errorCount),
		MessageCount:     atomic.LoadInt64(&m.messageCount),
		CommandCount:     atomic.LoadInt64(&m.commandCount),
		APIRequestCount:  atomic.LoadInt64(&m.apiRequestCount),
		AIRequestCount:   atomic.LoadInt64(&m.aiRequestCount),
		DBOperationCount: atomic.LoadInt64(&m.dbOperationCount),
		LastErrors:       errs,
		Chats:            chats,
	}
}

// FormatUptime renders a duration as "1д 2ч 3м 4с", omitting leading zero units.
func FormatUptime(d time.Duration) string {
	total := int64(d.Seconds())
	days := total / 86400
	hours := (total % 86400) / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60

	out := ""
	if days > 0 {
		out += fmt.Sprintf("%dд ", days)
	}
	if hours > 0 || days > 0 {
		out += fmt.Sprintf("%dч ", hours)
	}
	if minutes > 0 || hours > 0 || days > 0 {
		out += fmt.Sprintf("%dм ", minutes)
	}
	return out + fmt.Sprintf("%dс", seconds)
}
