package amqp

import (
	"encoding/json"
	"time"
)

// Kinds of ledger change carried by LedgerChangedMessage.
const (
	KindProject  = "project"
	KindPayment  = "payment"
	KindExpense  = "expense"
	KindDividend = "dividend"
	KindReset    = "reset"
	KindImport   = "import"
)

// LedgerChangedMessage announces a committed mutation. It carries only the
// new revision; consumers read the ledger themselves.
type LedgerChangedMessage struct {
	Revision  int64     `json:"revision"`
	Kind      string    `json:"kind"`
	EntityID  string    `json:"entityId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewLedgerChangedMessage(revision int64, kind, entityID string) *LedgerChangedMessage {
	return &LedgerChangedMessage{
		Revision:  revision,
		Kind:      kind,
		EntityID:  entityID,
		Timestamp: time.Now().UTC(),
	}
}

func (m *LedgerChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func LedgerChangedMessageFromJSON(data []byte) (*LedgerChangedMessage, error) {
	var msg LedgerChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
