package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/checkout-engine/internal/core/domain"
	"github.com/rl1809/checkout-engine/internal/port"
)

// In-memory implementations of all three repositories, used for development
// mode and as the backend of the stress tool. A single mutex per store is the
// serialization point that makes Reserve's check-and-decrement atomic.

type MemoryInventory struct {
	mu       sync.Mutex
	products map[string]domain.Product
}

func NewMemoryInventory() *MemoryInventory {
	return &MemoryInventory{products: make(map[string]domain.Product)}
}

func (m *MemoryInventory) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[productID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *MemoryInventory) Reserve(ctx context.Context, productID string, quantity int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[productID]
	if !ok || p.Stock < quantity {
		return false, nil
	}
	p.Stock -= quantity
	m.products[productID] = p
	return true, nil
}

func (m *MemoryInventory) Release(ctx context.Context, productID string, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[productID]
	if !ok {
		return nil
	}
	p.Stock += quantity
	m.products[productID] = p
	return nil
}

func (m *MemoryInventory) PutProduct(ctx context.Context, product domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[product.ID] = product
	return nil
}

type MemoryCarts struct {
	mu    sync.RWMutex
	carts map[string]domain.Cart
}

func NewMemoryCarts() *MemoryCarts {
	return &MemoryCarts{carts: make(map[string]domain.Cart)}
}

func (m *MemoryCarts) GetCart(ctx context.Context, cartID string) (*domain.Cart, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.carts[cartID]
	if !ok {
		return nil, nil
	}
	out := c
	out.Items = append([]domain.LineItem(nil), c.Items...)
	return &out, nil
}

func (m *MemoryCarts) ReplaceItems(ctx context.Context, cartID string, items []domain.LineItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.carts[cartID]
	if !ok {
		return port.ErrCartNotFound
	}
	c.Items = append([]domain.LineItem(nil), items...)
	m.carts[cartID] = c
	return nil
}

func (m *MemoryCarts) PutCart(ctx context.Context, cart domain.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cart.Items = append([]domain.LineItem(nil), cart.Items...)
	m.carts[cart.ID] = cart
	return nil
}

type MemoryTickets struct {
	mu     sync.Mutex
	byCode map[string]domain.Ticket
}

func NewMemoryTickets() *MemoryTickets {
	return &MemoryTickets{byCode: make(map[string]domain.Ticket)}
}

func (m *MemoryTickets) CreateTicket(ctx context.Context, userID string, items []domain.TicketItem, total decimal.Decimal) (*domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var code string
	for {
		c, err := domain.NewTicketCode()
		if err != nil {
			return nil, err
		}
		if _, taken := m.byCode[c]; !taken {
			code = c
			break
		}
	}

	ticket := domain.Ticket{
		ID:        uuid.New().String(),
		Code:      code,
		UserID:    userID,
		Items:     append([]domain.TicketItem(nil), items...),
		Total:     total,
		CreatedAt: time.Now().UTC(),
	}
	m.byCode[code] = ticket

	out := ticket
	out.Items = append([]domain.TicketItem(nil), ticket.Items...)
	return &out, nil
}

func (m *MemoryTickets) GetTicketByCode(ctx context.Context, code string) (*domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.byCode[code]
	if !ok {
		return nil, nil
	}
	out := t
	out.Items = append([]domain.TicketItem(nil), t.Items...)
	return &out, nil
}
