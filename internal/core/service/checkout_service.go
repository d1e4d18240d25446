package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/rl1809/checkout-engine/internal/core/domain"
	"github.com/rl1809/checkout-engine/internal/port"
)

var (
	ErrCartNotFound     = errors.New("cart not found")
	ErrNoAssociatedUser = errors.New("cart has no associated user")
)

// CheckoutService converts eligible cart line items into an immutable ticket,
// decrements stock accordingly, and leaves behind a residual cart holding
// only the items that could not be fulfilled.
type CheckoutService struct {
	inventory port.InventoryRepository
	carts     port.CartRepository
	tickets   port.TicketRepository
	logger    *slog.Logger
}

func NewCheckoutService(inventory port.InventoryRepository, carts port.CartRepository, tickets port.TicketRepository, logger *slog.Logger) *CheckoutService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CheckoutService{
		inventory: inventory,
		carts:     carts,
		tickets:   tickets,
		logger:    logger,
	}
}

// CheckoutResult is the outcome of a successful checkout. NotProcessed lists
// the product IDs whose line items could not be fulfilled; those items remain
// in the cart.
type CheckoutResult struct {
	Ticket       *domain.Ticket
	NotProcessed []string
}

// Checkout drives the purchase of the given cart.
//
// A line item is atomic: either its full quantity is reserved or it is routed
// to the not-processed partition; quantities are never partially reserved.
// Per-item failures (insufficient stock, vanished product, a failed
// reservation attempt) never fail the checkout as a whole; a ticket is
// produced even when it ends up empty. If persisting the ticket fails, every
// reservation made by this invocation is released before the error is
// returned.
func (s *CheckoutService) Checkout(ctx context.Context, cartID string) (*CheckoutResult, error) {
	cart, err := s.carts.GetCart(ctx, cartID)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if cart == nil {
		return nil, ErrCartNotFound
	}
	if cart.UserID == "" {
		return nil, ErrNoAssociatedUser
	}

	var (
		processed []domain.TicketItem
		residual  []domain.LineItem
		total     = decimal.Zero
	)
	// Stored order, duplicates merged, so repeated runs over the same
	// conditions produce the same partition.
	for _, item := range cart.NormalizedItems() {
		snapshot, err := s.inventory.GetProduct(ctx, item.ProductID)
		if err != nil {
			s.logger.Error("product lookup failed",
				"cart_id", cartID, "product_id", item.ProductID, "error", err)
			residual = append(residual, item)
			continue
		}
		if snapshot == nil {
			residual = append(residual, item)
			continue
		}

		ok, err := s.inventory.Reserve(ctx, item.ProductID, item.Quantity)
		if err != nil {
			s.logger.Error("reservation attempt failed",
				"cart_id", cartID, "product_id", item.ProductID, "error", err)
			residual = append(residual, item)
			continue
		}
		if !ok {
			residual = append(residual, item)
			continue
		}

		// Price at reservation time, never re-read later.
		processed = append(processed, domain.TicketItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: snapshot.Price,
		})
		total = total.Add(snapshot.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	ticket, err := s.tickets.CreateTicket(ctx, cart.UserID, processed, total)
	if err != nil {
		s.releaseReservations(ctx, cartID, processed)
		return nil, fmt.Errorf("persist ticket: %w", err)
	}

	if err := s.carts.ReplaceItems(ctx, cartID, residual); err != nil {
		// The ticket already exists and the ledger is append-only, so the
		// reservations stand; the stale cart is surfaced, not compensated.
		s.logger.Error("residual cart persist failed; cart left stale",
			"cart_id", cartID, "ticket_code", ticket.Code, "error", err)
		return nil, fmt.Errorf("persist residual cart: %w", err)
	}

	notProcessed := make([]string, 0, len(residual))
	for _, item := range residual {
		notProcessed = append(notProcessed, item.ProductID)
	}

	s.logger.Info("checkout completed",
		"cart_id", cartID,
		"user_id", cart.UserID,
		"ticket_code", ticket.Code,
		"total", ticket.Total.String(),
		"fulfilled", len(processed),
		"unfulfilled", len(residual),
	)

	return &CheckoutResult{Ticket: ticket, NotProcessed: notProcessed}, nil
}

// releaseReservations rolls back the stock decrements of this invocation.
func (s *CheckoutService) releaseReservations(ctx context.Context, cartID string, items []domain.TicketItem) {
	for _, item := range items {
		if err := s.inventory.Release(ctx, item.ProductID, item.Quantity); err != nil {
			s.logger.Error("CRITICAL: reservation release failed",
				"cart_id", cartID, "product_id", item.ProductID,
				"quantity", item.Quantity, "error", err)
		}
	}
}

// TicketByCode looks up a ticket in the ledger. Returns (nil, nil) when no
// ticket carries the code.
func (s *CheckoutService) TicketByCode(ctx context.Context, code string) (*domain.Ticket, error) {
	return s.tickets.GetTicketByCode(ctx, code)
}

// ProductByID returns a product snapshot, or (nil, nil) when it is unknown.
func (s *CheckoutService) ProductByID(ctx context.Context, productID string) (*domain.Product, error) {
	return s.inventory.GetProduct(ctx, productID)
}
