package domain

// LineItem is a {product, quantity} pair within a cart.
type LineItem struct {
	ProductID string
	Quantity  int
}

// Cart holds a user's pending line items. UserID may be empty while the cart
// is being assembled, but checkout requires it to be set.
type Cart struct {
	ID     string
	UserID string
	Items  []LineItem
}

// NormalizedItems merges duplicate product references into a single line item
// with the summed quantity, preserving first-occurrence order. Carts are
// expected to arrive merged, but checkout must not double-count when they
// don't.
func (c *Cart) NormalizedItems() []LineItem {
	merged := make([]LineItem, 0, len(c.Items))
	index := make(map[string]int, len(c.Items))
	for _, item := range c.Items {
		if i, ok := index[item.ProductID]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(merged)
		merged = append(merged, item)
	}
	return merged
}
