package cart

import (
	"testing"

	"buysell/backend/internal/domain"
)

func product(id string, name string, sellPrice float64) domain.Product {
	return domain.Product{ID: id, Name: name, SellPrice: sellPrice, Stock: 100}
}

func TestSetLineUpsertsByProduct(t *testing.T) {
	c := New()
	c.SetLine(product("p1", "Coffee", 2500), 2)
	c.SetLine(product("p2", "Sugar", 1800), 1)
	c.SetLine(product("p1", "Coffee", 2500), 5)

	if c.Len() != 2 {
		t.Fatalf("len = %d, want 2", c.Len())
	}
	lines := c.Lines()
	if lines[0].ProductID != "p1" || lines[0].Quantity != 5 {
		t.Fatalf("first line = %+v, want p1 qty 5", lines[0])
	}
	if got, want := c.Total(), 2500*5+1800*1.0; got != want {
		t.Fatalf("total = %v, want %v", got, want)
	}
}

func TestSetLineZeroQuantityRemoves(t *testing.T) {
	c := New()
	c.SetLine(product("p1", "Coffee", 2500), 2)
	c.SetLine(product("p1", "Coffee", 2500), 0)

	if c.Len() != 0 {
		t.Fatalf("len = %d, want 0", c.Len())
	}

	// Zeroing an absent product must not panic or create a line.
	c.SetLine(product("p2", "Sugar", 1800), -3)
	if c.Len() != 0 {
		t.Fatalf("len after no-op = %d, want 0", c.Len())
	}
}

func TestRemoveLineAbsentIsNoop(t *testing.T) {
	c := New()
	c.SetLine(product("p1", "Coffee", 2500), 1)
	c.RemoveLine("missing")

	if c.Len() != 1 {
		t.Fatalf("len = %d, want 1", c.Len())
	}
}

func TestClearEmptiesCart(t *testing.T) {
	c := New()
	c.SetLine(product("p1", "Coffee", 2500), 1)
	c.SetLine(product("p2", "Sugar", 1800), 4)
	c.Clear()

	if c.Len() != 0 || c.Total() != 0 {
		t.Fatalf("cart not empty after clear: len=%d total=%v", c.Len(), c.Total())
	}
	if len(c.Lines()) != 0 {
		t.Fatalf("lines not empty after clear")
	}
}

func TestTotalIgnoresDiscounts(t *testing.T) {
	// The cart total is always the undiscounted sell price times quantity.
	c := New()
	c.SetLine(product("p1", "Coffee", 2500), 3)

	if got := c.Total(); got != 7500 {
		t.Fatalf("total = %v, want 7500", got)
	}
}
