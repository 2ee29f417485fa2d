package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"buysell/backend/internal/domain"
	"buysell/backend/internal/store"
)

func TestConditionalDecrementAndLedgerRoundtrip(t *testing.T) {
	databaseURL := os.Getenv("BUYSELL_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set BUYSELL_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	productID := fmt.Sprintf("it-product-%d", stamp)
	txID := fmt.Sprintf("it-tx-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sale_transactions WHERE id = $1`, txID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
	})

	created, err := s.CreateProduct(ctx, domain.Product{
		ID:        productID,
		Name:      "Integration Coffee",
		BuyPrice:  42000,
		SellPrice: 65000,
		Stock:     3,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	if err := s.DecrementStock(ctx, created.ID, 2); err != nil {
		t.Fatalf("decrement: %v", err)
	}
	if err := s.DecrementStock(ctx, created.ID, 2); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("over-decrement error = %v, want ErrInsufficientStock", err)
	}

	got, err := s.GetProduct(ctx, created.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if got.Stock != 1 {
		t.Fatalf("stock = %d, want 1 (failed decrement must not change stock)", got.Stock)
	}

	tx := domain.SaleTransaction{
		ID:                txID,
		ProductID:         created.ID,
		ProductName:       created.Name,
		OriginalSellPrice: 65000,
		DiscountType:      domain.DiscountNone,
		FinalPrice:        130000,
		Quantity:          2,
		BuyPrice:          42000,
		TotalProfit:       46000,
		CreatedAt:         time.Now().UTC().Format(domain.CreatedAtLayout),
	}
	if err := s.AppendTransaction(ctx, tx); err != nil {
		t.Fatalf("append transaction: %v", err)
	}

	txs, err := s.ListTransactions(ctx, 5)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	found := false
	for _, listed := range txs {
		if listed.ID == txID {
			found = true
			if listed.CreatedAt != tx.CreatedAt {
				t.Fatalf("created_at roundtrip changed: %q vs %q", listed.CreatedAt, tx.CreatedAt)
			}
		}
	}
	if !found {
		t.Fatalf("appended transaction not listed")
	}
}
