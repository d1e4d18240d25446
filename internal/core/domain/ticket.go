package domain

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TicketItem is a priced line item frozen at reservation time. UnitPrice is
// never re-read from the product record after the ticket is created.
type TicketItem struct {
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
}

// Ticket is an immutable record of a completed (possibly partial) purchase.
// The ledger only ever appends tickets; there is no update or delete path.
type Ticket struct {
	ID        string
	Code      string
	UserID    string
	Items     []TicketItem
	Total     decimal.Decimal
	CreatedAt time.Time
}

// codeAlphabet has 32 symbols, so indexing with byte % 32 is unbiased.
// I, L, O and U are excluded to keep codes unambiguous when read aloud.
const codeAlphabet = "ABCDEFGHJKMNPQRSTVWXYZ0123456789"

const codeLength = 14

// NewTicketCode returns a cryptographically sourced ticket code: 14 symbols
// from a 32-symbol alphabet, 70 bits of entropy. Ledger implementations still
// collision-check on insert and regenerate on a duplicate.
func NewTicketCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}

// TicketTotal sums quantity x unit price over items with exact decimal
// arithmetic.
func TicketTotal(items []TicketItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}
