package store

import (
	"context"
	"errors"

	"buysell/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidProduct    = errors.New("invalid product")
)

// ProductStore is the catalog and inventory boundary. DecrementStock must be
// atomic: the stock check and the write happen as one operation inside the
// store, so two concurrent sales can never both consume the last unit.
type ProductStore interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DecrementStock(ctx context.Context, productID string, qty int) error
}

// TransactionStore is the append-only settlement ledger. Appended records are
// never updated or deleted.
type TransactionStore interface {
	AppendTransaction(ctx context.Context, tx domain.SaleTransaction) error
	ListTransactions(ctx context.Context, limit int) ([]domain.SaleTransaction, error)
}
