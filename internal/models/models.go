package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Marketplace discriminates the two parallel markets. The cart, checkout and
// order pipeline is identical for both; only the buyer/seller roles differ.
type Marketplace string

const (
	// Fertilizer: providers sell fertilizer to farmers.
	MarketplaceFertilizer Marketplace = "fertilizer"
	// Farm: farmers sell produce to consumers.
	MarketplaceFarm Marketplace = "farm"
)

func ParseMarketplace(s string) (Marketplace, error) {
	switch Marketplace(s) {
	case MarketplaceFertilizer, MarketplaceFarm:
		return Marketplace(s), nil
	}
	return "", fmt.Errorf("unknown marketplace %q", s)
}

// BuyerRole is the role allowed to shop in this marketplace.
func (m Marketplace) BuyerRole() Role {
	if m == MarketplaceFertilizer {
		return RoleFarmer
	}
	return RoleConsumer
}

// SellerRole is the role allowed to list products and fulfil orders here.
func (m Marketplace) SellerRole() Role {
	if m == MarketplaceFertilizer {
		return RoleProvider
	}
	return RoleFarmer
}

type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleProvider Role = "PROVIDER"
	RoleFarmer   Role = "FARMER"
	RoleConsumer Role = "CONSUMER"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin, RoleProvider, RoleFarmer, RoleConsumer:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int       `json:"version"`
}

type Product struct {
	ID            int64           `json:"id"`
	Marketplace   Marketplace     `json:"marketplace"`
	SellerID      int64           `json:"seller_id"`
	Name          string          `json:"name"`
	Description   string          `json:"description,omitempty"`
	Brand         string          `json:"brand,omitempty"`
	Category      string          `json:"category"`
	Unit          string          `json:"unit,omitempty"`
	ImageURL      string          `json:"image_url,omitempty"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock_quantity"`
	IsActive      bool            `json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Version       int             `json:"version"`
}

// Cart is the per-(buyer, marketplace) shopping cart. It is created lazily on
// first access and survives checkout with its items drained.
type Cart struct {
	ID          int64       `json:"id"`
	Marketplace Marketplace `json:"marketplace"`
	BuyerID     int64       `json:"buyer_id"`
	Items       []CartItem  `json:"items"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// TotalPrice sums the line subtotals at their captured prices.
func (c *Cart) TotalPrice() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// CartItem freezes the product price at the moment it was added. Later
// catalog price changes do not affect it.
type CartItem struct {
	ID              int64           `json:"id"`
	CartID          int64           `json:"cart_id"`
	ProductID       int64           `json:"product_id"`
	ProductName     string          `json:"product_name"`
	Unit            string          `json:"unit,omitempty"`
	ImageURL        string          `json:"image_url,omitempty"`
	Quantity        int             `json:"quantity"`
	PriceAtAddition decimal.Decimal `json:"price_at_addition"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (i *CartItem) Subtotal() decimal.Decimal {
	return i.PriceAtAddition.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Order is immutable after checkout except for Status and UpdatedAt.
type Order struct {
	ID              int64           `json:"id"`
	Marketplace     Marketplace     `json:"marketplace"`
	OrderNumber     string          `json:"order_number"`
	BuyerID         int64           `json:"buyer_id"`
	SellerID        int64           `json:"seller_id"`
	Status          OrderStatus     `json:"status"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	DeliveryAddress string          `json:"delivery_address"`
	DeliveryPhone   string          `json:"delivery_phone,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Version         int             `json:"version"`
	Items           []OrderItem     `json:"items,omitempty"`
}

// OrderItem snapshots a cart line at checkout. Product name and unit are
// copied so the order remains readable after catalog edits.
type OrderItem struct {
	ID           int64           `json:"id"`
	OrderID      int64           `json:"order_id"`
	ProductID    int64           `json:"product_id"`
	ProductName  string          `json:"product_name"`
	Unit         string          `json:"unit,omitempty"`
	Quantity     int             `json:"quantity"`
	PriceAtOrder decimal.Decimal `json:"price_at_order"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	CreatedAt    time.Time       `json:"created_at"`
}
