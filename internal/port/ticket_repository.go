package port

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/rl1809/checkout-engine/internal/core/domain"
)

// TicketRepository is the append-only ledger of completed purchases.
type TicketRepository interface {
	// CreateTicket appends a ticket for the given user, generating a unique
	// code internally. Append is the only supported mutation.
	CreateTicket(ctx context.Context, userID string, items []domain.TicketItem, total decimal.Decimal) (*domain.Ticket, error)

	// GetTicketByCode returns the ticket with the given code, or (nil, nil)
	// when no such ticket exists.
	GetTicketByCode(ctx context.Context, code string) (*domain.Ticket, error)
}
