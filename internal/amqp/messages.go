package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message types carried on the export queue.
const (
	TypeExpenseRecorded = "expense.recorded"
	TypeExpenseDeleted  = "expense.deleted"
)

// Envelope wraps every queue message with its type so one consumer can
// dispatch both kinds.
type Envelope struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// ExpenseRecordedMessage asks the worker to export one expense. It carries
// only the ID; the worker fetches the full row from the database so the
// export always reflects current state.
type ExpenseRecordedMessage struct {
	ID int64 `json:"id"`
}

// ExpenseDeletedMessage asks the worker to remove the exported row.
type ExpenseDeletedMessage struct {
	ID int64 `json:"id"`
}

func newEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return json.Marshal(Envelope{
		Type:      msgType,
		Timestamp: time.Now(),
		Payload:   raw,
	})
}

// DecodeEnvelope parses a queue message body.
func DecodeEnvelope(body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("envelope missing type")
	}
	return env, nil
}

// DecodeExpenseRecorded extracts the payload of a recorded message.
func DecodeExpenseRecorded(env Envelope) (ExpenseRecordedMessage, error) {
	var msg ExpenseRecordedMessage
	if err := json.Unmarshal(env.Payload, &msg); err != nil {
		return msg, fmt.Errorf("unmarshal %s payload: %w", env.Type, err)
	}
	return msg, nil
}

// DecodeExpenseDeleted extracts the payload of a deleted message.
func DecodeExpenseDeleted(env Envelope) (ExpenseDeletedMessage, error) {
	var msg ExpenseDeletedMessage
	if err := json.Unmarshal(env.Payload, &msg); err != nil {
		return msg, fmt.Errorf("unmarshal %s payload: %w", env.Type, err)
	}
	return msg, nil
}
