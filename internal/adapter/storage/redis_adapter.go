package storage

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/rl1809/checkout-engine/internal/core/domain"
)

const productKeyPrefix = "product:"

// reserveStockScript performs the stock check and the decrement as one script
// execution, so concurrent reservers can never drive stock below zero.
// Returns 1 on success, 0 on insufficient stock or missing product.
var reserveStockScript = redis.NewScript(`
local key = KEYS[1]
local quantity = tonumber(ARGV[1])

local stock = redis.call('HGET', key, 'stock')
if not stock then
	return 0
end

stock = tonumber(stock)
if stock >= quantity then
	redis.call('HINCRBY', key, 'stock', -quantity)
	return 1
end

return 0
`)

// RedisInventory keeps each product as a hash {price, stock} under
// product:<id> and implements port.InventoryRepository.
type RedisInventory struct {
	client *redis.Client
}

func NewRedisInventory(client *redis.Client) *RedisInventory {
	return &RedisInventory{client: client}
}

func (r *RedisInventory) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	fields, err := r.client.HGetAll(ctx, productKeyPrefix+productID).Result()
	if err != nil {
		return nil, fmt.Errorf("get product %s: %w", productID, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	price, err := decimal.NewFromString(fields["price"])
	if err != nil {
		return nil, fmt.Errorf("parse price of product %s: %w", productID, err)
	}
	stock, err := strconv.Atoi(fields["stock"])
	if err != nil {
		return nil, fmt.Errorf("parse stock of product %s: %w", productID, err)
	}

	return &domain.Product{ID: productID, Price: price, Stock: stock}, nil
}

func (r *RedisInventory) Reserve(ctx context.Context, productID string, quantity int) (bool, error) {
	key := productKeyPrefix + productID

	result, err := reserveStockScript.Run(ctx, r.client, []string{key}, quantity).Int()
	if err != nil {
		return false, err
	}

	return result == 1, nil
}

func (r *RedisInventory) Release(ctx context.Context, productID string, quantity int) error {
	key := productKeyPrefix + productID
	return r.client.HIncrBy(ctx, key, "stock", int64(quantity)).Err()
}

func (r *RedisInventory) PutProduct(ctx context.Context, product domain.Product) error {
	key := productKeyPrefix + product.ID
	return r.client.HSet(ctx, key,
		"price", product.Price.String(),
		"stock", product.Stock,
	).Err()
}
