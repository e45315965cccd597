package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// Reasons a materialization was requested.
const (
	ReasonSchedule      = "schedule"
	ReasonRecordChanged = "record_changed"
	ReasonManual        = "manual"
)

// MaterializeMessage asks a worker to rebuild one account's projection.
// ItemID names the record whose cron schedule fired, when there is one; the
// worker always rebuilds the whole account since balances depend on every item.
type MaterializeMessage struct {
	AccountID string    `json:"account_id"`
	ItemID    string    `json:"item_id,omitempty"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMaterializeMessage creates a message stamped with the current time
func NewMaterializeMessage(accountID, itemID, reason string) *MaterializeMessage {
	return &MaterializeMessage{
		AccountID: accountID,
		ItemID:    itemID,
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

func (m *MaterializeMessage) Validate() error {
	if m.AccountID == "" {
		return errors.New("materialize message without account id")
	}
	return nil
}

// ToJSON converts the message to JSON bytes
func (m *MaterializeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// MaterializeMessageFromJSON decodes and validates a message
func MaterializeMessageFromJSON(data []byte) (*MaterializeMessage, error) {
	var msg MaterializeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
