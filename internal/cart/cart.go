// Package cart holds the line items of one in-progress sale.
package cart

import (
	"sync"

	"posengine/backend/internal/domain"
)

// Cart keeps one line per product in insertion order. Stock ceilings come
// from the product snapshot captured on the most recent Add.
type Cart struct {
	mu    sync.Mutex
	lines []domain.CartLine
	stock map[string]int
}

func New() *Cart {
	return &Cart{stock: make(map[string]int)}
}

func (c *Cart) Add(product domain.ProductSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if product.Stock <= 0 {
		return domain.ErrOutOfStock
	}
	c.stock[product.ID] = product.Stock

	idx := c.indexOf(product.ID)
	if idx < 0 {
		c.lines = append(c.lines, domain.CartLine{
			ProductID:      product.ID,
			Name:           product.Name,
			UnitPriceCents: product.PriceCents,
			Quantity:       1,
		})
		return nil
	}
	if c.lines[idx].Quantity+1 > product.Stock {
		return domain.ErrExceedsStock
	}
	c.lines[idx].Quantity++
	return nil
}

func (c *Cart) Increment(productID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.indexOf(productID)
	if idx < 0 {
		return domain.ErrLineNotFound
	}
	if c.lines[idx].Quantity+1 > c.stock[productID] {
		return domain.ErrExceedsStock
	}
	c.lines[idx].Quantity++
	return nil
}

// Decrement removes the line once its quantity would drop below one.
func (c *Cart) Decrement(productID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.indexOf(productID)
	if idx < 0 {
		return domain.ErrLineNotFound
	}
	if c.lines[idx].Quantity <= 1 {
		c.removeAt(idx)
		return nil
	}
	c.lines[idx].Quantity--
	return nil
}

func (c *Cart) Remove(productID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if idx := c.indexOf(productID); idx >= 0 {
		c.removeAt(idx)
	}
}

func (c *Cart) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lines = nil
	c.stock = make(map[string]int)
}

// Lines returns a copy of the current lines.
func (c *Cart) Lines() []domain.CartLine {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]domain.CartLine, len(c.lines))
	copy(out, c.lines)
	return out
}

func (c *Cart) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lines)
}

func (c *Cart) Totals(discountCents int64) domain.CartTotals {
	return Totals(c.Lines(), discountCents)
}

// Totals computes subtotal and total for lines. Negative discounts count as zero
// and the total never drops below zero.
func Totals(lines []domain.CartLine, discountCents int64) domain.CartTotals {
	var subtotal int64
	for _, line := range lines {
		subtotal += line.LineTotalCents()
	}
	if discountCents < 0 {
		discountCents = 0
	}
	total := subtotal - discountCents
	if total < 0 {
		total = 0
	}
	return domain.CartTotals{
		SubtotalCents: subtotal,
		DiscountCents: discountCents,
		TotalCents:    total,
	}
}

func (c *Cart) indexOf(productID string) int {
	for i, line := range c.lines {
		if line.ProductID == productID {
			return i
		}
	}
	return -1
}

func (c *Cart) removeAt(idx int) {
	delete(c.stock, c.lines[idx].ProductID)
	c.lines = append(c.lines[:idx], c.lines[idx+1:]...)
}
