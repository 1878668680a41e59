package amqp

import (
	"encoding/json"
	"time"

	"finch/internal/engine"
)

// RefreshMessage announces a completed bridge refresh to the other devices
// of the same user. It carries the sender's rate-limiter state so receivers
// can merge quota usage monotonically and never under-count.
type RefreshMessage struct {
	DeviceID     string              `json:"device_id"`
	Accounts     int                 `json:"accounts"`
	Transactions int                 `json:"transactions"`
	Classified   int                 `json:"classified"`
	Limiter      engine.LimiterState `json:"limiter"`
	Timestamp    time.Time           `json:"timestamp"`
}

// NewRefreshMessage builds the message for one refresh outcome.
func NewRefreshMessage(deviceID string, accounts, transactions, classified int, limiter engine.LimiterState) *RefreshMessage {
	return &RefreshMessage{
		DeviceID:     deviceID,
		Accounts:     accounts,
		Transactions: transactions,
		Classified:   classified,
		Limiter:      limiter,
		Timestamp:    time.Now(),
	}
}

// ToJSON converts the message to JSON bytes.
func (m *RefreshMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RefreshMessageFromJSON parses a message from JSON bytes.
func RefreshMessageFromJSON(data []byte) (*RefreshMessage, error) {
	var msg RefreshMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
