package domain

import "github.com/shopspring/decimal"

// Product is a point-in-time snapshot of an inventory record. Stock is never
// mutated through this struct; all stock changes go through the inventory
// repository's conditional reserve/release operations.
type Product struct {
	ID    string
	Price decimal.Decimal
	Stock int
}
