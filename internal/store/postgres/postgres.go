package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"buysell/backend/internal/domain"
	"buysell/backend/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, buy_price, sell_price, stock, COALESCE(image_url, ''), created_at
		FROM products
		ORDER BY lower(name), id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.BuyPrice, &p.SellPrice, &p.Stock, &p.ImageURL, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.CreatedAt = p.CreatedAt.UTC()
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var product domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, buy_price, sell_price, stock, COALESCE(image_url, ''), created_at
		FROM products
		WHERE id = $1
	`, id).Scan(&product.ID, &product.Name, &product.BuyPrice, &product.SellPrice, &product.Stock, &product.ImageURL, &product.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	product.CreatedAt = product.CreatedAt.UTC()
	return &product, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || product.BuyPrice < 0 || product.SellPrice < 0 || product.Stock < 0 {
		return nil, store.ErrInvalidProduct
	}
	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, buy_price, sell_price, stock, image_url, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, product.ID, product.Name, product.BuyPrice, product.SellPrice, product.Stock, product.ImageURL, product.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidProduct
		}
		return nil, err
	}

	created := product
	return &created, nil
}

// DecrementStock runs the conditional decrement as one UPDATE so the stock
// check and the write cannot interleave with a concurrent sale.
func (s *Store) DecrementStock(ctx context.Context, productID string, qty int) error {
	if qty < 1 {
		return store.ErrInvalidProduct
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET stock = stock - $2
		WHERE id = $1 AND stock >= $2
	`, productID, qty)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	var exists bool
	err = s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return store.ErrNotFound
	}
	return store.ErrInsufficientStock
}

func (s *Store) AppendTransaction(ctx context.Context, tx domain.SaleTransaction) error {
	if tx.ID == "" || tx.ProductID == "" {
		return store.ErrInvalidProduct
	}

	// created_at is kept as the canonical timestamp string so readers see
	// exactly what the settlement wrote.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sale_transactions
			(id, product_id, product_name, original_sell_price, discount_type, discount_value,
			 final_price, quantity, buy_price, total_profit, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, tx.ID, tx.ProductID, tx.ProductName, tx.OriginalSellPrice, string(tx.DiscountType), tx.DiscountValue,
		tx.FinalPrice, tx.Quantity, tx.BuyPrice, tx.TotalProfit, tx.CreatedAt)
	return err
}

func (s *Store) ListTransactions(ctx context.Context, limit int) ([]domain.SaleTransaction, error) {
	query := `
		SELECT id, product_id, product_name, original_sell_price, discount_type, discount_value,
		       final_price, quantity, buy_price, total_profit, created_at
		FROM sale_transactions
		ORDER BY created_at DESC, id DESC
	`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.SaleTransaction, 0, 128)
	for rows.Next() {
		var tx domain.SaleTransaction
		var discountType string
		if err := rows.Scan(&tx.ID, &tx.ProductID, &tx.ProductName, &tx.OriginalSellPrice, &discountType, &tx.DiscountValue,
			&tx.FinalPrice, &tx.Quantity, &tx.BuyPrice, &tx.TotalProfit, &tx.CreatedAt); err != nil {
			return nil, err
		}
		tx.DiscountType = domain.DiscountType(discountType)
		result = append(result, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 8)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidProduct
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
