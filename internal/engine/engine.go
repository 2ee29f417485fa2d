package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"buysell/backend/internal/cache"
	"buysell/backend/internal/domain"
	"buysell/backend/internal/pricing"
	"buysell/backend/internal/report"
	"buysell/backend/internal/store"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrPersistence       = errors.New("persistence failed")
	ErrInventoryConflict = errors.New("inventory conflict")
	ErrForbidden         = errors.New("forbidden")
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Engine orchestrates sale settlement and sales analytics over injected
// store handles. It holds no business state of its own: every operation is
// a request-scoped unit of work against the stores.
type Engine struct {
	products          store.ProductStore
	transactions      store.TransactionStore
	reports           cache.ReportCache
	reportTTL         time.Duration
	lowStockThreshold int
	logger            *zap.Logger

	nowFn func() time.Time
	idFn  func() string
}

func New(products store.ProductStore, transactions store.TransactionStore, reports cache.ReportCache, reportTTL time.Duration, lowStockThreshold int, logger *zap.Logger) *Engine {
	if reports == nil {
		reports = cache.NoopReportCache{}
	}
	if reportTTL <= 0 {
		reportTTL = 30 * time.Second
	}
	if lowStockThreshold < 0 {
		lowStockThreshold = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		products:          products,
		transactions:      transactions,
		reports:           reports,
		reportTTL:         reportTTL,
		lowStockThreshold: lowStockThreshold,
		logger:            logger,
		nowFn:             time.Now,
		idFn:              uuid.NewString,
	}
}

// Sell settles a single sale line: validate, price, persist the transaction,
// then decrement stock. The two writes are deliberately not atomic across
// stores: when the decrement loses a stock race after the transaction is
// already appended, the record stays and the caller gets ErrInventoryConflict
// together with the persisted transaction.
func (e *Engine) Sell(ctx context.Context, req domain.SellRequest) (domain.SaleTransaction, error) {
	if req.DiscountType == "" {
		req.DiscountType = domain.DiscountNone
	}
	if err := validateSellRequest(req); err != nil {
		return domain.SaleTransaction{}, err
	}

	product, err := e.products.GetProduct(ctx, req.ProductID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.SaleTransaction{}, fmt.Errorf("%w: product %s not found", ErrValidation, req.ProductID)
		}
		return domain.SaleTransaction{}, fmt.Errorf("%w: load product: %v", ErrPersistence, err)
	}
	if req.Quantity > product.Stock {
		return domain.SaleTransaction{}, fmt.Errorf("%w: quantity %d exceeds stock %d for %s", ErrValidation, req.Quantity, product.Stock, product.Name)
	}

	quote := pricing.Compute(product.SellPrice, product.BuyPrice, req.Quantity, req.DiscountType, req.DiscountValue)

	tx := domain.SaleTransaction{
		ID:                e.idFn(),
		ProductID:         product.ID,
		ProductName:       product.Name,
		OriginalSellPrice: product.SellPrice,
		DiscountType:      req.DiscountType,
		DiscountValue:     req.DiscountValue,
		FinalPrice:        quote.LineTotal,
		Quantity:          req.Quantity,
		BuyPrice:          product.BuyPrice,
		TotalProfit:       quote.LineProfit,
		CreatedAt:         e.nowFn().UTC().Format(domain.CreatedAtLayout),
	}

	if err := e.transactions.AppendTransaction(ctx, tx); err != nil {
		return domain.SaleTransaction{}, fmt.Errorf("%w: append transaction: %v", ErrPersistence, err)
	}

	if err := e.products.DecrementStock(ctx, product.ID, req.Quantity); err != nil {
		// The settlement record already exists and is not compensated.
		e.logger.Warn("stock decrement failed after settlement",
			zap.String("transaction_id", tx.ID),
			zap.String("product_id", product.ID),
			zap.Int("quantity", req.Quantity),
			zap.Error(err))
		return tx, fmt.Errorf("%w: %v", ErrInventoryConflict, err)
	}

	e.logger.Info("sale settled",
		zap.String("transaction_id", tx.ID),
		zap.String("product_id", product.ID),
		zap.Int("quantity", req.Quantity),
		zap.Float64("final_price", tx.FinalPrice))

	return tx, nil
}

// Checkout settles cart lines sequentially. A failed line is recorded and
// the batch moves on; earlier settled lines are never rolled back. Lines
// that hit an inventory conflict have their transaction persisted but are
// still reported as failures.
func (e *Engine) Checkout(ctx context.Context, req domain.CheckoutRequest) domain.CheckoutResult {
	result := domain.CheckoutResult{
		Completed: make([]domain.SaleTransaction, 0, len(req.Lines)),
		Failures:  make([]domain.LineFailure, 0),
	}

	for _, line := range req.Lines {
		discountType := line.DiscountType
		if discountType == "" {
			discountType = domain.DiscountNone
		}

		tx, err := e.Sell(ctx, domain.SellRequest{
			ProductID:     line.ProductID,
			Quantity:      line.Quantity,
			DiscountType:  discountType,
			DiscountValue: line.DiscountValue,
		})
		if err != nil {
			result.Failures = append(result.Failures, domain.LineFailure{
				ProductID:   line.ProductID,
				ProductName: e.productNameForFailure(ctx, line.ProductID, tx),
				Reason:      err.Error(),
			})
			continue
		}
		result.Completed = append(result.Completed, tx)
	}

	if len(result.Failures) > 0 {
		e.logger.Warn("checkout finished with failed lines",
			zap.Int("completed", len(result.Completed)),
			zap.Int("failed", len(result.Failures)))
	}

	return result
}

// productNameForFailure resolves a human-readable name for a failed line.
// Best effort: the id is used when the product cannot be loaded.
func (e *Engine) productNameForFailure(ctx context.Context, productID string, tx domain.SaleTransaction) string {
	if tx.ProductName != "" {
		return tx.ProductName
	}
	if product, err := e.products.GetProduct(ctx, productID); err == nil {
		return product.Name
	}
	return productID
}

func (e *Engine) ListTransactions(ctx context.Context, limit int) ([]domain.SaleTransaction, error) {
	txs, err := e.transactions.ListTransactions(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list transactions: %v", ErrPersistence, err)
	}
	return txs, nil
}

// SalesReport builds the bucketed profit report for the window ending at the
// anchor instant. Snapshots are cached per mode and anchor date.
func (e *Engine) SalesReport(ctx context.Context, mode report.Mode, anchor time.Time) (domain.AnalyticsSnapshot, error) {
	if mode != report.ModeWeekly && mode != report.ModeMonthly {
		return domain.AnalyticsSnapshot{}, fmt.Errorf("%w: unknown report mode %q", ErrValidation, mode)
	}

	key := fmt.Sprintf("report:%s:%s", mode, anchor.UTC().Format("2006-01-02"))
	if cached, found, err := e.reports.Get(ctx, key); err == nil && found {
		return *cached, nil
	}

	txs, err := e.transactions.ListTransactions(ctx, 0)
	if err != nil {
		return domain.AnalyticsSnapshot{}, fmt.Errorf("%w: list transactions: %v", ErrPersistence, err)
	}

	snap := report.Snapshot(mode, anchor, txs)
	if err := e.reports.Set(ctx, key, &snap, e.reportTTL); err != nil {
		e.logger.Warn("report cache write failed", zap.String("key", key), zap.Error(err))
	}
	return snap, nil
}

// Dashboard summarizes today's trading against yesterday plus catalog health.
func (e *Engine) Dashboard(ctx context.Context) (domain.DashboardSummary, error) {
	now := e.nowFn().UTC()
	today := now.Format("2006-01-02")
	yesterday := now.AddDate(0, 0, -1).Format("2006-01-02")

	txs, err := e.transactions.ListTransactions(ctx, 0)
	if err != nil {
		return domain.DashboardSummary{}, fmt.Errorf("%w: list transactions: %v", ErrPersistence, err)
	}

	summary := domain.DashboardSummary{
		RecentTransactions: make([]domain.SaleTransaction, 0, 5),
	}
	yesterdayProfit := 0.0
	for _, tx := range txs {
		if len(summary.RecentTransactions) < 5 {
			summary.RecentTransactions = append(summary.RecentTransactions, tx)
		}
		if len(tx.CreatedAt) < 10 {
			continue
		}
		switch tx.CreatedAt[:10] {
		case today:
			summary.TodaySalesCount++
			summary.TodayRevenue += tx.FinalPrice
			summary.TodayProfit += tx.TotalProfit
		case yesterday:
			yesterdayProfit += tx.TotalProfit
		}
	}
	summary.ProfitChangePercent = report.PercentChange(summary.TodayProfit, yesterdayProfit)

	products, err := e.products.ListProducts(ctx)
	if err != nil {
		return domain.DashboardSummary{}, fmt.Errorf("%w: list products: %v", ErrPersistence, err)
	}
	summary.TotalProducts = len(products)
	for _, p := range products {
		if p.Stock <= e.lowStockThreshold {
			summary.LowStockCount++
		}
	}

	return summary, nil
}

func (e *Engine) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Product{}, fmt.Errorf("%w: admin role required", ErrForbidden)
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Product{}, fmt.Errorf("%w: product name required", ErrValidation)
	}
	if req.BuyPrice < 0 || req.SellPrice < 0 {
		return domain.Product{}, fmt.Errorf("%w: prices must not be negative", ErrValidation)
	}
	if req.Stock < 0 {
		return domain.Product{}, fmt.Errorf("%w: stock must not be negative", ErrValidation)
	}

	product := domain.Product{
		ID:        e.idFn(),
		Name:      req.Name,
		BuyPrice:  req.BuyPrice,
		SellPrice: req.SellPrice,
		Stock:     req.Stock,
		ImageURL:  strings.TrimSpace(req.ImageURL),
		CreatedAt: e.nowFn().UTC(),
	}

	created, err := e.products.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, fmt.Errorf("%w: create product: %v", ErrPersistence, err)
	}

	e.logger.Info("product created", zap.String("product_id", created.ID), zap.String("name", created.Name))
	return *created, nil
}

func (e *Engine) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := e.products.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

// SearchProducts lists the catalog, optionally narrowed by a case-insensitive
// name substring and a low-stock filter.
func (e *Engine) SearchProducts(ctx context.Context, query string, lowStockOnly bool) ([]domain.Product, error) {
	products, err := e.products.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list products: %v", ErrPersistence, err)
	}

	query = strings.ToLower(strings.TrimSpace(query))
	result := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if query != "" && !strings.Contains(strings.ToLower(p.Name), query) {
			continue
		}
		if lowStockOnly && p.Stock > e.lowStockThreshold {
			continue
		}
		result = append(result, p)
	}
	return result, nil
}

func validateSellRequest(req domain.SellRequest) error {
	if strings.TrimSpace(req.ProductID) == "" {
		return fmt.Errorf("%w: product id required", ErrValidation)
	}
	if req.Quantity < 1 {
		return fmt.Errorf("%w: quantity must be at least 1", ErrValidation)
	}
	switch req.DiscountType {
	case domain.DiscountNone:
	case domain.DiscountPercentage:
		if req.DiscountValue < 0 || req.DiscountValue > 100 {
			return fmt.Errorf("%w: percentage discount must be between 0 and 100", ErrValidation)
		}
	case domain.DiscountDirectPrice:
		if req.DiscountValue <= 0 {
			return fmt.Errorf("%w: direct price must be positive", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown discount type %q", ErrValidation, req.DiscountType)
	}
	return nil
}
