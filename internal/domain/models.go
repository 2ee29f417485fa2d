package domain

import "time"

// CreatedAtLayout is the canonical timestamp format for sale transactions:
// UTC ISO-8601 with millisecond precision and a literal Z suffix.
const CreatedAtLayout = "2006-01-02T15:04:05.000Z"

type DiscountType string

const (
	DiscountNone        DiscountType = "none"
	DiscountPercentage  DiscountType = "percentage"
	DiscountDirectPrice DiscountType = "direct_price"
)

type Product struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	BuyPrice  float64   `json:"buy_price"`
	SellPrice float64   `json:"sell_price"`
	Stock     int       `json:"stock"`
	ImageURL  string    `json:"image_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type ProductCreateRequest struct {
	Name      string  `json:"name"`
	BuyPrice  float64 `json:"buy_price"`
	SellPrice float64 `json:"sell_price"`
	Stock     int     `json:"stock"`
	ImageURL  string  `json:"image_url,omitempty"`
}

// SaleTransaction is the immutable settlement record for one sold line.
// FinalPrice and TotalProfit cover the whole line (unit values times quantity).
// CreatedAt is a CreatedAtLayout string so downstream aggregation can bucket
// by its date prefix without re-parsing a full timestamp.
type SaleTransaction struct {
	ID                string       `json:"id"`
	ProductID         string       `json:"product_id"`
	ProductName       string       `json:"product_name"`
	OriginalSellPrice float64      `json:"original_sell_price"`
	DiscountType      DiscountType `json:"discount_type"`
	DiscountValue     float64      `json:"discount_value"`
	FinalPrice        float64      `json:"final_price"`
	Quantity          int          `json:"quantity"`
	BuyPrice          float64      `json:"buy_price"`
	TotalProfit       float64      `json:"total_profit"`
	CreatedAt         string       `json:"created_at"`
}

type SellRequest struct {
	ProductID     string       `json:"product_id"`
	Quantity      int          `json:"quantity"`
	DiscountType  DiscountType `json:"discount_type"`
	DiscountValue float64      `json:"discount_value"`
}

type CheckoutLine struct {
	ProductID     string       `json:"product_id"`
	Quantity      int          `json:"quantity"`
	DiscountType  DiscountType `json:"discount_type,omitempty"`
	DiscountValue float64      `json:"discount_value,omitempty"`
}

type CheckoutRequest struct {
	Lines []CheckoutLine `json:"lines"`
}

type LineFailure struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Reason      string `json:"reason"`
}

// CheckoutResult reports a batch checkout. Completed lines stay settled even
// when later lines fail; failures are reported, never rolled back.
type CheckoutResult struct {
	Completed []SaleTransaction `json:"completed"`
	Failures  []LineFailure     `json:"failures"`
}

type TimeBucket struct {
	Key    string  `json:"key"`
	Label  string  `json:"label"`
	Profit float64 `json:"profit"`
}

type AnalyticsSnapshot struct {
	Mode                string       `json:"mode"`
	Anchor              string       `json:"anchor"`
	Buckets             []TimeBucket `json:"buckets"`
	PeriodProfit        float64      `json:"period_profit"`
	ProfitChangePercent float64      `json:"profit_change_percent"`
}

type DashboardSummary struct {
	TodaySalesCount     int               `json:"today_sales_count"`
	TodayRevenue        float64           `json:"today_revenue"`
	TodayProfit         float64           `json:"today_profit"`
	ProfitChangePercent float64           `json:"profit_change_percent"`
	TotalProducts       int               `json:"total_products"`
	LowStockCount       int               `json:"low_stock_count"`
	RecentTransactions  []SaleTransaction `json:"recent_transactions"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}
