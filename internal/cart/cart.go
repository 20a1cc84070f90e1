// Package cart holds a single customer's line items while they shop.
package cart

// Item is one line of the cart, keyed by product id
type Item struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

// Total is the line total
func (i Item) Total() int64 {
	return i.UnitPrice * int64(i.Quantity)
}

// Cart is not safe for concurrent use; it belongs to one session.
type Cart struct {
	items []Item
	index map[string]int
}

// New returns an empty cart
func New() *Cart {
	return &Cart{index: make(map[string]int)}
}

// Add merges quantity into an existing line or appends a new one.
// Non-positive quantities are ignored.
func (c *Cart) Add(item Item) {
	if item.Quantity <= 0 {
		return
	}
	if i, ok := c.index[item.ProductID]; ok {
		c.items[i].Quantity += item.Quantity
		return
	}
	c.index[item.ProductID] = len(c.items)
	c.items = append(c.items, item)
}

// Items returns a copy of the lines in insertion order
func (c *Cart) Items() []Item {
	out := make([]Item, len(c.items))
	copy(out, c.items)
	return out
}

// ProductIDs lists the distinct products in the cart
func (c *Cart) ProductIDs() []string {
	ids := make([]string, len(c.items))
	for i, it := range c.items {
		ids[i] = it.ProductID
	}
	return ids
}

// Reprice overwrites name and unit price of a line, leaving quantity untouched
func (c *Cart) Reprice(productID, name string, unitPrice int64) {
	if i, ok := c.index[productID]; ok {
		c.items[i].Name = name
		c.items[i].UnitPrice = unitPrice
	}
}

func (c *Cart) TotalItems() int {
	n := 0
	for _, it := range c.items {
		n += it.Quantity
	}
	return n
}

func (c *Cart) TotalPrice() int64 {
	var total int64
	for _, it := range c.items {
		total += it.Total()
	}
	return total
}
