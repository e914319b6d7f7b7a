package amqp

import (
	"encoding/json"
	"time"
)

// RecalculationMessage asks the worker to rebuild one (budget, month)
// summary. It carries only identifiers; the worker reads everything else
// from the database so a stale message can never write stale figures.
type RecalculationMessage struct {
	BudgetID  string    `json:"budgetId"`
	Month     string    `json:"month"` // YYYY-MM
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewRecalculationMessage creates a message for the given budget and month.
func NewRecalculationMessage(budgetID, month, reason string) *RecalculationMessage {
	return &RecalculationMessage{
		BudgetID:  budgetID,
		Month:     month,
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *RecalculationMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RecalculationMessageFromJSON creates a message from JSON bytes
func RecalculationMessageFromJSON(data []byte) (*RecalculationMessage, error) {
	var msg RecalculationMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
