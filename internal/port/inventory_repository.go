package port

import (
	"context"

	"github.com/rl1809/checkout-engine/internal/core/domain"
)

type InventoryRepository interface {
	// GetProduct returns a snapshot of the product, or (nil, nil) when the
	// product does not exist.
	GetProduct(ctx context.Context, productID string) (*domain.Product, error)

	// Reserve atomically decrements stock by quantity, returns false when
	// stock is insufficient or the product does not exist. The stock check
	// and the decrement are one indivisible unit with respect to all other
	// reservers; on failure no mutation occurs.
	Reserve(ctx context.Context, productID string, quantity int) (bool, error)

	// Release restores stock (compensation when a later persistence step fails).
	Release(ctx context.Context, productID string, quantity int) error

	// PutProduct creates or overwrites a product record. Restocking and
	// catalog management are external concerns; this exists for seeding.
	PutProduct(ctx context.Context, product domain.Product) error
}
