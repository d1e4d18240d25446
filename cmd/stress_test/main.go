package main

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/checkout-engine/internal/adapter/storage"
	"github.com/rl1809/checkout-engine/internal/core/domain"
	"github.com/rl1809/checkout-engine/internal/core/service"
)

const (
	productID     = "flash-item"
	unitPrice     = "3.00"
	initialStock  = 20
	totalRequests = 50
)

func main() {
	ctx := context.Background()

	inventory := storage.NewMemoryInventory()
	carts := storage.NewMemoryCarts()
	tickets := storage.NewMemoryTickets()

	price := decimal.RequireFromString(unitPrice)
	if err := inventory.PutProduct(ctx, domain.Product{ID: productID, Price: price, Stock: initialStock}); err != nil {
		log.Fatalf("failed to seed product: %v", err)
	}

	// One single-item cart per user, all contending for the same product.
	for i := 0; i < totalRequests; i++ {
		cart := domain.Cart{
			ID:     fmt.Sprintf("cart-%d", i),
			UserID: fmt.Sprintf("user-%d", i),
			Items:  []domain.LineItem{{ProductID: productID, Quantity: 1}},
		}
		if err := carts.PutCart(ctx, cart); err != nil {
			log.Fatalf("failed to seed cart: %v", err)
		}
	}

	checkoutService := service.NewCheckoutService(inventory, carts, tickets, nil)

	// Counters
	var fulfilledCount atomic.Int32
	var unfulfilledCount atomic.Int32
	var errorCount atomic.Int32
	totalMu := sync.Mutex{}
	grandTotal := decimal.Zero

	// Spawn concurrent checkouts
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			result, err := checkoutService.Checkout(ctx, fmt.Sprintf("cart-%d", id))
			if err != nil {
				errorCount.Add(1)
				return
			}
			if len(result.Ticket.Items) > 0 {
				fulfilledCount.Add(1)
				totalMu.Lock()
				grandTotal = grandTotal.Add(result.Ticket.Total)
				totalMu.Unlock()
			} else {
				unfulfilledCount.Add(1)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	// Results
	fulfilled := fulfilledCount.Load()
	unfulfilled := unfulfilledCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Checkouts:  %d\n", totalRequests)
	fmt.Printf("Fulfilled:        %d\n", fulfilled)
	fmt.Printf("Unfulfilled:      %d\n", unfulfilled)
	fmt.Printf("Errors:           %d\n", errorCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	// Assertions
	if fulfilled == int32(initialStock) && unfulfilled == int32(totalRequests-initialStock) {
		fmt.Printf("PASS: Exactly %d checkouts fulfilled, %d left unfulfilled\n", initialStock, totalRequests-initialStock)
	} else {
		fmt.Printf("FAIL: Expected %d fulfilled/%d unfulfilled, got %d/%d\n",
			initialStock, totalRequests-initialStock, fulfilled, unfulfilled)
	}

	// Verify final stock
	product, err := inventory.GetProduct(ctx, productID)
	if err != nil {
		log.Fatalf("failed to read product: %v", err)
	}
	fmt.Printf("Final Stock: %d\n", product.Stock)

	if product.Stock == 0 {
		fmt.Println("PASS: Stock depleted to 0")
	} else {
		fmt.Printf("FAIL: Expected stock 0, got %d\n", product.Stock)
	}

	// Verify ticketed revenue reconciles with what was decremented
	expectedTotal := price.Mul(decimal.NewFromInt(initialStock))
	fmt.Printf("Ticketed Total: %s\n", grandTotal.String())

	if grandTotal.Equal(expectedTotal) {
		fmt.Printf("PASS: Ticketed total equals %s\n", expectedTotal.String())
	} else {
		fmt.Printf("FAIL: Expected total %s, got %s\n", expectedTotal.String(), grandTotal.String())
	}
}
