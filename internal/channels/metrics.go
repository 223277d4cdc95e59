package channels

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/solacebot/solace/pkg/models"
)

// Metrics tracks message counts and error rates for a channel adapter.
type Metrics struct {
	messagesSent     atomic.Uint64
	messagesReceived atomic.Uint64
	messagesFailed   atomic.Uint64

	errorsByCode map[ErrorCode]*atomic.Uint64
	errorsMu     sync.RWMutex

	connectionsOpened atomic.Uint64
	reconnectAttempts atomic.Uint64

	channelType models.ChannelType
	startTime   time.Time
}

// NewMetrics creates a new Metrics instance for a channel adapter.
func NewMetrics(channelType models.ChannelType) *Metrics {
	return &Metrics{
		errorsByCode: make(map[ErrorCode]*atomic.Uint64),
		channelType:  channelType,
		startTime:    time.Now(),
	}
}

// RecordMessageSent increments the sent counter.
func (m *Metrics) RecordMessageSent() { m.messagesSent.Add(1) }

// RecordMessageReceived increments the received counter.
func (m *Metrics) RecordMessageReceived() { m.messagesReceived.Add(1) }

// RecordMessageFailed increments the failed counter.
func (m *Metrics) RecordMessageFailed() { m.messagesFailed.Add(1) }

// RecordConnectionOpened increments the connections counter.
func (m *Metrics) RecordConnectionOpened() { m.connectionsOpened.Add(1) }

// RecordReconnectAttempt increments the reconnect counter.
func (m *Metrics) RecordReconnectAttempt() { m.reconnectAttempts.Add(1) }

// RecordError increments the counter for a specific error code.
func (m *Metrics) RecordError(code ErrorCode) {
	m.errorsMu.RLock()
	counter, ok := m.errorsByCode[code]
	m.errorsMu.RUnlock()

	if !ok {
		m.errorsMu.Lock()
		counter, ok = m.errorsByCode[code]
		if !ok {
			counter = &atomic.Uint64{}
			m.errorsByCode[code] = counter
		}
		m.errorsMu.Unlock()
	}
	counter.Add(1)
}

// MetricsSnapshot is a point-in-time view of adapter counters.
type MetricsSnapshot struct {
	ChannelType       models.ChannelType    `json:"channel_type"`
	Uptime            time.Duration         `json:"uptime"`
	MessagesSent      uint64                `json:"messages_sent"`
	MessagesReceived  uint64                `json:"messages_received"`
	MessagesFailed    uint64                `json:"messages_failed"`
	ErrorsByCode      map[ErrorCode]uint64  `json:"errors_by_code"`
	ConnectionsOpened uint64                `json:"connections_opened"`
	ReconnectAttempts uint64                `json:"reconnect_attempts"`
}

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.errorsMu.RLock()
	errs := make(map[ErrorCode]uint64, len(m.errorsByCode))
	for code, counter := range m.errorsByCode {
		errs[code] = counter.Load()
	}
	m.errorsMu.RUnlock()

	return MetricsSnapshot{
		ChannelType:       m.channelType,
		Uptime:            time.Since(m.startTime),
		MessagesSent:      m.messagesSent.Load(),
		MessagesReceived:  m.messagesReceived.Load(),
		MessagesFailed:    m.messagesFailed.Load(),
		ErrorsByCode:      errs,
		ConnectionsOpened: m.connectionsOpened.Load(),
		ReconnectAttempts: m.reconnectAttempts.Load(),
	}
}
