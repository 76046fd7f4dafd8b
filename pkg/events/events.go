package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	TopicOrders    = "order-events"
	TopicInventory = "inventory-events"
	TopicUsers     = "user-events"
)

const (
	TypeOrderCreated     = "OrderCreated"
	TypeOrderPaid        = "OrderPaid"
	TypeInventoryUpdated = "InventoryUpdated"
	TypeStockDepleted    = "StockDepleted"
	TypeUserCreated      = "UserCreated"
)

// Message is the envelope carried on every topic. Payload is always a JSON
// object keyed by field name.
type Message struct {
	EventID    string          `json:"eventId"`
	EventType  string          `json:"eventType"`
	OccurredAt time.Time       `json:"occurredAt"`
	Payload    json.RawMessage `json:"payload"`
}

func New(eventType string, payload any) (Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Message{
		EventID:    uuid.NewString(),
		EventType:  eventType,
		OccurredAt: time.Now().UTC(),
		Payload:    raw,
	}, nil
}

func Parse(b []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		return Message{}, fmt.Errorf("decode envelope: %w", err)
	}
	if m.EventType == "" {
		return Message{}, fmt.Errorf("decode envelope: missing eventType")
	}
	return m, nil
}

func (m Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", m.EventType)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("%s: decode payload: %w", m.EventType, err)
	}
	return nil
}

type OrderItem struct {
	BookID   int64           `json:"bookId"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// OrderPayload is shared by OrderCreated and OrderPaid.
type OrderPayload struct {
	OrderID int64       `json:"orderId"`
	UserID  int64       `json:"userId"`
	Items   []OrderItem `json:"items"`
}

type InventoryUpdated struct {
	BookID   int64 `json:"bookId"`
	Quantity int   `json:"quantity"`
}

type DepletedLine struct {
	BookID    int64 `json:"bookId"`
	Requested int   `json:"requested"`
	Available int   `json:"available"`
}

type StockDepleted struct {
	OrderID  int64          `json:"orderId"`
	UserID   int64          `json:"userId"`
	Depleted []DepletedLine `json:"depleted"`
}

type UserCreated struct {
	UserID   int64  `json:"userId"`
	UserName string `json:"userName"`
	Email    string `json:"email"`
}
