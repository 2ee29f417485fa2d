package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"buysell/backend/internal/domain"
	"buysell/backend/internal/store"
)

type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	transactions    []domain.SaleTransaction
	usersByUsername map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		products:        make(map[string]domain.Product),
		transactions:    make([]domain.SaleTransaction, 0, 128),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// NewSeeded builds a dev/demo store with a small catalog and default user
// accounts. Production deployments use PostgreSQL (DATABASE_URL set).
func NewSeeded() *Store {
	s := New()
	s.usersByUsername = seedUsers()

	now := time.Now().UTC()
	seed := []domain.Product{
		{Name: "Drip Coffee 250g", BuyPrice: 42000, SellPrice: 65000, Stock: 40},
		{Name: "Green Tea 100g", BuyPrice: 18000, SellPrice: 28000, Stock: 55},
		{Name: "Mineral Water 600ml", BuyPrice: 2100, SellPrice: 4000, Stock: 200},
		{Name: "Cassava Chips", BuyPrice: 7500, SellPrice: 12500, Stock: 80},
		{Name: "Chocolate Bar", BuyPrice: 6200, SellPrice: 9800, Stock: 64},
		{Name: "Instant Noodles", BuyPrice: 2400, SellPrice: 3500, Stock: 150},
		{Name: "Granulated Sugar 1kg", BuyPrice: 14500, SellPrice: 17500, Stock: 30},
		{Name: "Cooking Oil 1L", BuyPrice: 16800, SellPrice: 21000, Stock: 25},
	}
	for _, p := range seed {
		p.ID = uuid.NewString()
		p.CreatedAt = now
		s.products[p.ID] = p
	}
	return s
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD; when
// unset, hardcoded dev defaults are used with a warning.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Name == b.Name {
			return cmpString(a.ID, b.ID)
		}
		return cmpString(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})

	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || product.BuyPrice < 0 || product.SellPrice < 0 || product.Stock < 0 {
		return nil, store.ErrInvalidProduct
	}
	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrInvalidProduct
	}
	s.products[product.ID] = product
	created := product
	return &created, nil
}

// DecrementStock performs the conditional decrement under one lock section:
// the stock check and the write are never separated, so concurrent sales of
// the last unit resolve to exactly one winner.
func (s *Store) DecrementStock(_ context.Context, productID string, qty int) error {
	if qty < 1 {
		return store.ErrInvalidProduct
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[productID]
	if !exists {
		return store.ErrNotFound
	}
	if product.Stock < qty {
		return store.ErrInsufficientStock
	}
	product.Stock -= qty
	s.products[productID] = product
	return nil
}

func (s *Store) AppendTransaction(_ context.Context, tx domain.SaleTransaction) error {
	if tx.ID == "" || tx.ProductID == "" {
		return store.ErrInvalidProduct
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.transactions = append(s.transactions, tx)
	return nil
}

func (s *Store) ListTransactions(_ context.Context, limit int) ([]domain.SaleTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.SaleTransaction, len(s.transactions))
	copy(result, s.transactions)

	// CreatedAt strings are ISO-8601 so lexicographic order is chronological.
	slices.SortFunc(result, func(a, b domain.SaleTransaction) int {
		if a.CreatedAt == b.CreatedAt {
			return cmpString(b.ID, a.ID)
		}
		return cmpString(b.CreatedAt, a.CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidProduct
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}
