package port

import (
	"context"
	"errors"

	"github.com/rl1809/checkout-engine/internal/core/domain"
)

// ErrCartNotFound is returned by ReplaceItems when the cart does not exist.
var ErrCartNotFound = errors.New("cart not found")

// CartRepository stores carts. It is unaware of inventory semantics; stock
// checks never happen here.
type CartRepository interface {
	// GetCart returns the cart with its line items in stored order, or
	// (nil, nil) when the cart does not exist.
	GetCart(ctx context.Context, cartID string) (*domain.Cart, error)

	// ReplaceItems overwrites the cart's line items with the given
	// collection. It is a full replace, not a merge; callers supply the
	// complete desired state.
	ReplaceItems(ctx context.Context, cartID string, items []domain.LineItem) error

	// PutCart creates or overwrites a cart. Cart assembly is an external
	// concern; this exists for seeding.
	PutCart(ctx context.Context, cart domain.Cart) error
}
