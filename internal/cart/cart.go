package cart

import "buysell/backend/internal/domain"

// Line is one product entry in an open cart. UnitPrice is the undiscounted
// sell price snapshotted when the line was set.
type Line struct {
	ProductID   string  `json:"product_id"`
	ProductName string  `json:"product_name"`
	UnitPrice   float64 `json:"unit_price"`
	Quantity    int     `json:"quantity"`
}

// Cart accumulates sale lines for a single owner before checkout. It carries
// no locking: each cart belongs to one request or one terminal session.
type Cart struct {
	lines map[string]Line
	order []string
}

func New() *Cart {
	return &Cart{lines: make(map[string]Line)}
}

// SetLine upserts the line for the product. A quantity of zero or less
// removes the line; setting an absent product to zero is a no-op.
func (c *Cart) SetLine(product domain.Product, quantity int) {
	if quantity <= 0 {
		c.RemoveLine(product.ID)
		return
	}
	if _, exists := c.lines[product.ID]; !exists {
		c.order = append(c.order, product.ID)
	}
	c.lines[product.ID] = Line{
		ProductID:   product.ID,
		ProductName: product.Name,
		UnitPrice:   product.SellPrice,
		Quantity:    quantity,
	}
}

func (c *Cart) RemoveLine(productID string) {
	if _, exists := c.lines[productID]; !exists {
		return
	}
	delete(c.lines, productID)
	for i, id := range c.order {
		if id == productID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func (c *Cart) Clear() {
	c.lines = make(map[string]Line)
	c.order = c.order[:0]
}

// Total recomputes the undiscounted cart total from the current lines.
// Discounts are applied per line at settlement time, never here.
func (c *Cart) Total() float64 {
	total := 0.0
	for _, line := range c.lines {
		total += line.UnitPrice * float64(line.Quantity)
	}
	return total
}

func (c *Cart) Len() int {
	return len(c.lines)
}

// Lines returns the cart contents in insertion order.
func (c *Cart) Lines() []Line {
	result := make([]Line, 0, len(c.order))
	for _, id := range c.order {
		result = append(result, c.lines[id])
	}
	return result
}
