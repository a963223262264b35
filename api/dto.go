/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types
  decouple the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

NOTE ON COMMANDS:
  Commands and events carry their own JSON codecs (tagged-union
  envelope in the ledger package), so the command endpoint decodes
  straight into ledger.Command rather than through a DTO here.

VALIDATION:
  Validation is done in handlers and command actions, not in DTOs.
  DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - ledger/command.go: the command envelope
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mesa/pos-edge/ledger"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// OrderSummaryDTO is the list-view projection of an order snapshot.
type OrderSummaryDTO struct {
	OrderID      string             `json:"order_id"`
	Status       ledger.OrderStatus `json:"status"`
	TableID      string             `json:"table_id"`
	ZoneID       string             `json:"zone_id,omitempty"`
	ItemCount    int                `json:"item_count"`
	Total        decimal.Decimal    `json:"total"`
	PaidTotal    decimal.Decimal    `json:"paid_total"`
	Balance      decimal.Decimal    `json:"balance"`
	MemberName   string             `json:"member_name,omitempty"`
	LastSequence uint64             `json:"last_sequence"`
	OpenedAt     time.Time          `json:"opened_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// CommandResultDTO is returned after a command commits.
type CommandResultDTO struct {
	OrderID string              `json:"order_id"`
	Events  []ledger.OrderEvent `json:"events"`
}

// EventsDTO wraps an order's event history.
type EventsDTO struct {
	OrderID string              `json:"order_id"`
	Events  []ledger.OrderEvent `json:"events"`
}

// HealthDTO reports liveness and the ledger head.
type HealthDTO struct {
	Status   string `json:"status"`
	Sequence uint64 `json:"sequence"`
	Epoch    string `json:"epoch"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toOrderSummary(s ledger.OrderSnapshot) OrderSummaryDTO {
	dto := OrderSummaryDTO{
		OrderID:      s.OrderID,
		Status:       s.Status,
		TableID:      s.TableID,
		ZoneID:       s.ZoneID,
		ItemCount:    len(s.Items),
		Total:        s.Total,
		PaidTotal:    s.PaidTotal,
		Balance:      s.Balance(),
		LastSequence: s.LastSequence,
		OpenedAt:     s.OpenedAt,
		UpdatedAt:    s.UpdatedAt,
	}
	if s.Member != nil {
		dto.MemberName = s.Member.Name
	}
	return dto
}
