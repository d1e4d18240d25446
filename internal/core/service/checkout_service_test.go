package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/checkout-engine/internal/core/domain"
	"github.com/rl1809/checkout-engine/internal/port"
)

// Mock InventoryRepository
type mockInventory struct {
	mu         sync.Mutex
	products   map[string]domain.Product
	getErr     error
	reserveErr error
	reserves   int
	releases   []domain.LineItem
}

func newMockInventory(products ...domain.Product) *mockInventory {
	m := &mockInventory{products: make(map[string]domain.Product)}
	for _, p := range products {
		m.products[p.ID] = p
	}
	return m
}

func (m *mockInventory) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.getErr != nil {
		return nil, m.getErr
	}
	p, ok := m.products[productID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *mockInventory) Reserve(ctx context.Context, productID string, quantity int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reserves++
	if m.reserveErr != nil {
		return false, m.reserveErr
	}
	p, ok := m.products[productID]
	if !ok || p.Stock < quantity {
		return false, nil
	}
	p.Stock -= quantity
	m.products[productID] = p
	return true, nil
}

func (m *mockInventory) Release(ctx context.Context, productID string, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.releases = append(m.releases, domain.LineItem{ProductID: productID, Quantity: quantity})
	p, ok := m.products[productID]
	if !ok {
		return nil
	}
	p.Stock += quantity
	m.products[productID] = p
	return nil
}

func (m *mockInventory) PutProduct(ctx context.Context, product domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[product.ID] = product
	return nil
}

func (m *mockInventory) stockOf(t *testing.T, productID string) int {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok {
		t.Fatalf("product %s not found", productID)
	}
	return p.Stock
}

// Mock CartRepository
type mockCarts struct {
	mu         sync.Mutex
	carts      map[string]domain.Cart
	replaceErr error
	replaces   int
}

func newMockCarts(carts ...domain.Cart) *mockCarts {
	m := &mockCarts{carts: make(map[string]domain.Cart)}
	for _, c := range carts {
		m.carts[c.ID] = c
	}
	return m
}

func (m *mockCarts) GetCart(ctx context.Context, cartID string) (*domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.carts[cartID]
	if !ok {
		return nil, nil
	}
	out := c
	out.Items = append([]domain.LineItem(nil), c.Items...)
	return &out, nil
}

func (m *mockCarts) ReplaceItems(ctx context.Context, cartID string, items []domain.LineItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.replaceErr != nil {
		return m.replaceErr
	}
	c, ok := m.carts[cartID]
	if !ok {
		return port.ErrCartNotFound
	}
	m.replaces++
	c.Items = append([]domain.LineItem(nil), items...)
	m.carts[cartID] = c
	return nil
}

func (m *mockCarts) PutCart(ctx context.Context, cart domain.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.carts[cart.ID] = cart
	return nil
}

func (m *mockCarts) itemsOf(t *testing.T, cartID string) []domain.LineItem {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[cartID]
	if !ok {
		t.Fatalf("cart %s not found", cartID)
	}
	return append([]domain.LineItem(nil), c.Items...)
}

// Mock TicketRepository
type mockTickets struct {
	mu        sync.Mutex
	createErr error
	created   []domain.Ticket
	seq       int
}

func (m *mockTickets) CreateTicket(ctx context.Context, userID string, items []domain.TicketItem, total decimal.Decimal) (*domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.createErr != nil {
		return nil, m.createErr
	}
	m.seq++
	ticket := domain.Ticket{
		ID:        fmt.Sprintf("id-%d", m.seq),
		Code:      fmt.Sprintf("TICKET%d", m.seq),
		UserID:    userID,
		Items:     append([]domain.TicketItem(nil), items...),
		Total:     total,
		CreatedAt: time.Now().UTC(),
	}
	m.created = append(m.created, ticket)
	return &ticket, nil
}

func (m *mockTickets) GetTicketByCode(ctx context.Context, code string) (*domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range m.created {
		if t.Code == code {
			out := t
			return &out, nil
		}
	}
	return nil, nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCheckout_PartialFulfillment(t *testing.T) {
	inventory := newMockInventory(
		domain.Product{ID: "P1", Price: dec("3.00"), Stock: 10},
		domain.Product{ID: "P2", Price: dec("7.00"), Stock: 1},
	)
	carts := newMockCarts(domain.Cart{
		ID:     "C1",
		UserID: "U1",
		Items: []domain.LineItem{
			{ProductID: "P1", Quantity: 2},
			{ProductID: "P2", Quantity: 5},
		},
	})
	tickets := &mockTickets{}
	svc := NewCheckoutService(inventory, carts, tickets, nil)

	result, err := svc.Checkout(context.Background(), "C1")
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	if len(result.Ticket.Items) != 1 {
		t.Fatalf("expected 1 ticket item, got %d", len(result.Ticket.Items))
	}
	item := result.Ticket.Items[0]
	if item.ProductID != "P1" || item.Quantity != 2 || !item.UnitPrice.Equal(dec("3.00")) {
		t.Errorf("unexpected ticket item: %+v", item)
	}
	if !result.Ticket.Total.Equal(dec("6.00")) {
		t.Errorf("expected total 6.00, got %s", result.Ticket.Total)
	}

	if len(result.NotProcessed) != 1 || result.NotProcessed[0] != "P2" {
		t.Errorf("expected not-processed [P2], got %v", result.NotProcessed)
	}

	if stock := inventory.stockOf(t, "P1"); stock != 8 {
		t.Errorf("expected P1 stock 8, got %d", stock)
	}
	if stock := inventory.stockOf(t, "P2"); stock != 1 {
		t.Errorf("expected P2 stock 1, got %d", stock)
	}

	residual := carts.itemsOf(t, "C1")
	if len(residual) != 1 || residual[0].ProductID != "P2" || residual[0].Quantity != 5 {
		t.Errorf("expected residual cart [{P2 5}], got %v", residual)
	}
}

func TestCheckout_CartNotFound(t *testing.T) {
	inventory := newMockInventory(domain.Product{ID: "P1", Price: dec("1.00"), Stock: 5})
	carts := newMockCarts()
	tickets := &mockTickets{}
	svc := NewCheckoutService(inventory, carts, tickets, nil)

	_, err := svc.Checkout(context.Background(), "missing")
	if !errors.Is(err, ErrCartNotFound) {
		t.Fatalf("expected ErrCartNotFound, got: %v", err)
	}

	if inventory.reserves != 0 {
		t.Errorf("expected no reservation attempts, got %d", inventory.reserves)
	}
	if len(tickets.created) != 0 {
		t.Errorf("expected no tickets, got %d", len(tickets.created))
	}
	if carts.replaces != 0 {
		t.Errorf("expected no cart replaces, got %d", carts.replaces)
	}
}

func TestCheckout_NoAssociatedUser(t *testing.T) {
	inventory := newMockInventory(domain.Product{ID: "P1", Price: dec("1.00"), Stock: 5})
	carts := newMockCarts(domain.Cart{
		ID:    "C1",
		Items: []domain.LineItem{{ProductID: "P1", Quantity: 1}},
	})
	tickets := &mockTickets{}
	svc := NewCheckoutService(inventory, carts, tickets, nil)

	_, err := svc.Checkout(context.Background(), "C1")
	if !errors.Is(err, ErrNoAssociatedUser) {
		t.Fatalf("expected ErrNoAssociatedUser, got: %v", err)
	}

	if inventory.reserves != 0 {
		t.Errorf("expected no reservation attempts, got %d", inventory.reserves)
	}
	if stock := inventory.stockOf(t, "P1"); stock != 5 {
		t.Errorf("expected stock untouched at 5, got %d", stock)
	}
	if len(tickets.created) != 0 {
		t.Errorf("expected no tickets, got %d", len(tickets.created))
	}
}

func TestCheckout_EmptyTicketWhenNothingAvailable(t *testing.T) {
	inventory := newMockInventory(domain.Product{ID: "P1", Price: dec("4.00"), Stock: 0})
	carts := newMockCarts(domain.Cart{
		ID:     "C1",
		UserID: "U1",
		Items:  []domain.LineItem{{ProductID: "P1", Quantity: 1}},
	})
	tickets := &mockTickets{}
	svc := NewCheckoutService(inventory, carts, tickets, nil)

	result, err := svc.Checkout(context.Background(), "C1")
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	if len(result.Ticket.Items) != 0 {
		t.Errorf("expected empty ticket, got %d items", len(result.Ticket.Items))
	}
	if !result.Ticket.Total.IsZero() {
		t.Errorf("expected zero total, got %s", result.Ticket.Total)
	}
	if len(tickets.created) != 1 {
		t.Errorf("expected the empty ticket to be persisted, got %d tickets", len(tickets.created))
	}
	if len(result.NotProcessed) != 1 || result.NotProcessed[0] != "P1" {
		t.Errorf("expected not-processed [P1], got %v", result.NotProcessed)
	}
}

func TestCheckout_MissingProductNotProcessed(t *testing.T) {
	inventory := newMockInventory(domain.Product{ID: "P1", Price: dec("2.50"), Stock: 4})
	carts := newMockCarts(domain.Cart{
		ID:     "C1",
		UserID: "U1",
		Items: []domain.LineItem{
			{ProductID: "ghost", Quantity: 1},
			{ProductID: "P1", Quantity: 2},
		},
	})
	tickets := &mockTickets{}
	svc := NewCheckoutService(inventory, carts, tickets, nil)

	result, err := svc.Checkout(context.Background(), "C1")
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	if len(result.NotProcessed) != 1 || result.NotProcessed[0] != "ghost" {
		t.Errorf("expected not-processed [ghost], got %v", result.NotProcessed)
	}
	if len(result.Ticket.Items) != 1 || result.Ticket.Items[0].ProductID != "P1" {
		t.Errorf("expected ticket with P1 only, got %+v", result.Ticket.Items)
	}
	if !result.Ticket.Total.Equal(dec("5.00")) {
		t.Errorf("expected total 5.00, got %s", result.Ticket.Total)
	}
}

func TestCheckout_LookupErrorNotProcessed(t *testing.T) {
	inventory := newMockInventory(domain.Product{ID: "P1", Price: dec("2.50"), Stock: 4})
	inventory.getErr = errors.New("inventory unreachable")
	carts := newMockCarts(domain.Cart{
		ID:     "C1",
		UserID: "U1",
		Items:  []domain.LineItem{{ProductID: "P1", Quantity: 1}},
	})
	tickets := &mockTickets{}
	svc := NewCheckoutService(inventory, carts, tickets, nil)

	// A failed lookup degrades into the not-processed partition instead of
	// failing the checkout.
	result, err := svc.Checkout(context.Background(), "C1")
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	if len(result.NotProcessed) != 1 || result.NotProcessed[0] != "P1" {
		t.Errorf("expected not-processed [P1], got %v", result.NotProcessed)
	}
	if len(result.Ticket.Items) != 0 {
		t.Errorf("expected empty ticket, got %+v", result.Ticket.Items)
	}
	if inventory.reserves != 0 {
		t.Errorf("expected no reservation attempts, got %d", inventory.reserves)
	}
}

func TestCheckout_DuplicateLineItemsMerged(t *testing.T) {
	inventory := newMockInventory(domain.Product{ID: "P1", Price: dec("2.00"), Stock: 3})
	carts := newMockCarts(domain.Cart{
		ID:     "C1",
		UserID: "U1",
		Items: []domain.LineItem{
			{ProductID: "P1", Quantity: 1},
			{ProductID: "P1", Quantity: 2},
		},
	})
	tickets := &mockTickets{}
	svc := NewCheckoutService(inventory, carts, tickets, nil)

	result, err := svc.Checkout(context.Background(), "C1")
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	if inventory.reserves != 1 {
		t.Errorf("expected a single merged reservation, got %d", inventory.reserves)
	}
	if len(result.Ticket.Items) != 1 || result.Ticket.Items[0].Quantity != 3 {
		t.Errorf("expected one ticket item with quantity 3, got %+v", result.Ticket.Items)
	}
	if !result.Ticket.Total.Equal(dec("6.00")) {
		t.Errorf("expected total 6.00, got %s", result.Ticket.Total)
	}
	if stock := inventory.stockOf(t, "P1"); stock != 0 {
		t.Errorf("expected stock 0, got %d", stock)
	}
}

func TestCheckout_ConservationOfLineItems(t *testing.T) {
	inventory := newMockInventory(
		domain.Product{ID: "P1", Price: dec("1.00"), Stock: 10},
		domain.Product{ID: "P2", Price: dec("2.00"), Stock: 0},
		domain.Product{ID: "P3", Price: dec("3.00"), Stock: 10},
	)
	original := []domain.LineItem{
		{ProductID: "P1", Quantity: 2},
		{ProductID: "P2", Quantity: 1},
		{ProductID: "P3", Quantity: 4},
	}
	carts := newMockCarts(domain.Cart{ID: "C1", UserID: "U1", Items: original})
	tickets := &mockTickets{}
	svc := NewCheckoutService(inventory, carts, tickets, nil)

	result, err := svc.Checkout(context.Background(), "C1")
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	// Union of ticketed quantities and residual quantities must equal the
	// original cart exactly; nothing lost, nothing duplicated.
	got := make(map[string]int)
	for _, item := range result.Ticket.Items {
		got[item.ProductID] += item.Quantity
	}
	for _, item := range carts.itemsOf(t, "C1") {
		got[item.ProductID] += item.Quantity
	}
	for _, item := range original {
		if got[item.ProductID] != item.Quantity {
			t.Errorf("product %s: expected quantity %d, got %d", item.ProductID, item.Quantity, got[item.ProductID])
		}
		delete(got, item.ProductID)
	}
	if len(got) != 0 {
		t.Errorf("unexpected extra products: %v", got)
	}
}

func TestCheckout_ReleasesReservationsOnTicketFailure(t *testing.T) {
	inventory := newMockInventory(
		domain.Product{ID: "P1", Price: dec("3.00"), Stock: 10},
		domain.Product{ID: "P2", Price: dec("5.00"), Stock: 10},
	)
	carts := newMockCarts(domain.Cart{
		ID:     "C1",
		UserID: "U1",
		Items: []domain.LineItem{
			{ProductID: "P1", Quantity: 2},
			{ProductID: "P2", Quantity: 3},
		},
	})
	tickets := &mockTickets{createErr: errors.New("ledger unavailable")}
	svc := NewCheckoutService(inventory, carts, tickets, nil)

	_, err := svc.Checkout(context.Background(), "C1")
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	if stock := inventory.stockOf(t, "P1"); stock != 10 {
		t.Errorf("expected P1 stock restored to 10, got %d", stock)
	}
	if stock := inventory.stockOf(t, "P2"); stock != 10 {
		t.Errorf("expected P2 stock restored to 10, got %d", stock)
	}
	if len(inventory.releases) != 2 {
		t.Errorf("expected 2 releases, got %d", len(inventory.releases))
	}
	if carts.replaces != 0 {
		t.Errorf("expected cart untouched, got %d replaces", carts.replaces)
	}
}

func TestCheckout_ResidualCartPersistFailure(t *testing.T) {
	inventory := newMockInventory(domain.Product{ID: "P1", Price: dec("3.00"), Stock: 10})
	carts := newMockCarts(domain.Cart{
		ID:     "C1",
		UserID: "U1",
		Items:  []domain.LineItem{{ProductID: "P1", Quantity: 2}},
	})
	carts.replaceErr = errors.New("cart store unavailable")
	tickets := &mockTickets{}
	svc := NewCheckoutService(inventory, carts, tickets, nil)

	_, err := svc.Checkout(context.Background(), "C1")
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	// The ticket is already in the append-only ledger, so the reservations
	// stand and stock reflects the ticketed quantities.
	if len(tickets.created) != 1 {
		t.Errorf("expected ticket persisted, got %d", len(tickets.created))
	}
	if stock := inventory.stockOf(t, "P1"); stock != 8 {
		t.Errorf("expected P1 stock 8, got %d", stock)
	}
}

func TestCheckout_ResidualRecheckoutIsSafe(t *testing.T) {
	inventory := newMockInventory(
		domain.Product{ID: "P1", Price: dec("3.00"), Stock: 10},
		domain.Product{ID: "P2", Price: dec("7.00"), Stock: 1},
	)
	carts := newMockCarts(domain.Cart{
		ID:     "C1",
		UserID: "U1",
		Items: []domain.LineItem{
			{ProductID: "P1", Quantity: 2},
			{ProductID: "P2", Quantity: 5},
		},
	})
	tickets := &mockTickets{}
	svc := NewCheckoutService(inventory, carts, tickets, nil)

	if _, err := svc.Checkout(context.Background(), "C1"); err != nil {
		t.Fatalf("first checkout failed: %v", err)
	}

	// The residual cart holds only the unfulfilled P2 line; re-invoking must
	// not re-decrement P1.
	result, err := svc.Checkout(context.Background(), "C1")
	if err != nil {
		t.Fatalf("second checkout failed: %v", err)
	}

	if stock := inventory.stockOf(t, "P1"); stock != 8 {
		t.Errorf("expected P1 stock to stay at 8, got %d", stock)
	}
	if len(result.Ticket.Items) != 0 {
		t.Errorf("expected empty second ticket, got %+v", result.Ticket.Items)
	}
	if len(result.NotProcessed) != 1 || result.NotProcessed[0] != "P2" {
		t.Errorf("expected not-processed [P2], got %v", result.NotProcessed)
	}
}

func TestCheckout_Concurrent(t *testing.T) {
	initialStock := 20
	totalCheckouts := 50

	inventory := newMockInventory(domain.Product{ID: "P1", Price: dec("3.00"), Stock: initialStock})
	carts := newMockCarts()
	for i := 0; i < totalCheckouts; i++ {
		carts.PutCart(context.Background(), domain.Cart{
			ID:     fmt.Sprintf("cart-%d", i),
			UserID: fmt.Sprintf("user-%d", i),
			Items:  []domain.LineItem{{ProductID: "P1", Quantity: 1}},
		})
	}
	tickets := &mockTickets{}
	svc := NewCheckoutService(inventory, carts, tickets, nil)

	var fulfilled atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < totalCheckouts; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			result, err := svc.Checkout(context.Background(), fmt.Sprintf("cart-%d", id))
			if err != nil {
				t.Errorf("checkout failed: %v", err)
				return
			}
			if len(result.Ticket.Items) > 0 {
				fulfilled.Add(1)
			}
		}(i)
	}

	wg.Wait()

	if fulfilled.Load() != int32(initialStock) {
		t.Errorf("expected %d fulfilled checkouts, got %d", initialStock, fulfilled.Load())
	}
	if stock := inventory.stockOf(t, "P1"); stock != 0 {
		t.Errorf("expected stock 0, got %d", stock)
	}
}
