package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"

	StatusActive  = "active"
	StatusBlocked = "blocked"
)

type User struct {
	ID           int64     `gorm:"primaryKey;autoIncrement"     json:"id"`
	Username     string    `gorm:"uniqueIndex;not null"         json:"username"`
	Email        string    `gorm:"index"                        json:"email"`
	FirstName    string    `                                    json:"first_name"`
	LastName     string    `                                    json:"last_name"`
	Phone        string    `                                    json:"phone"`
	PasswordHash string    `gorm:"not null"                     json:"-"`
	Role         string    `gorm:"not null;default:customer"    json:"role"`
	Status       string    `gorm:"not null;default:active"      json:"status"`
	CreatedAt    time.Time `                                    json:"created_at"`
}

func (User) TableName() string {
	return "users"
}

type RefreshToken struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	JTI       string `gorm:"uniqueIndex;not null"`
	UserID    int64  `gorm:"index;not null"`
	ExpiresAt int64  `gorm:"not null"`
	Revoked   bool   `gorm:"not null;default:false"`
}

func (RefreshToken) TableName() string {
	return "refresh_tokens"
}

type Product struct {
	ID          int64           `gorm:"primaryKey;autoIncrement"  json:"id"`
	Name        string          `gorm:"not null;index"            json:"name"`
	Description string          `                                 json:"description"`
	Category    string          `gorm:"index"                     json:"category"`
	Image       string          `                                 json:"image"`
	Price       decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	Stock       int             `gorm:"not null;default:0"        json:"stock"`
}

func (Product) TableName() string {
	return "products"
}

type CartItem struct {
	ID        int64   `gorm:"primaryKey;autoIncrement"                 json:"id"`
	UserID    int64   `gorm:"uniqueIndex:idx_cart_user_product;not null" json:"-"`
	ProductID int64   `gorm:"uniqueIndex:idx_cart_user_product;not null" json:"-"`
	Product   Product `gorm:"foreignKey:ProductID"                     json:"product"`
	Quantity  int     `gorm:"not null;default:1;check:quantity>0"      json:"quantity"`
}

func (CartItem) TableName() string {
	return "cart_items"
}

type WishlistItem struct {
	ID        int64   `gorm:"primaryKey;autoIncrement"                     json:"id"`
	UserID    int64   `gorm:"uniqueIndex:idx_wishlist_user_product;not null" json:"-"`
	ProductID int64   `gorm:"uniqueIndex:idx_wishlist_user_product;not null" json:"-"`
	Product   Product `gorm:"foreignKey:ProductID"                         json:"product"`
}

func (WishlistItem) TableName() string {
	return "wishlist_items"
}

type Order struct {
	ID          int64           `gorm:"primaryKey;autoIncrement"     json:"id"`
	UserID      int64           `gorm:"index;not null"               json:"-"`
	Status      string          `gorm:"not null;default:pending"     json:"status"`
	TotalAmount decimal.Decimal `gorm:"type:numeric(12,2);not null"  json:"total_amount"`
	CreatedAt   time.Time       `                                    json:"created_at"`
	Items       []OrderItem     `gorm:"foreignKey:OrderID"           json:"items"`
}

func (Order) TableName() string {
	return "orders"
}

type OrderItem struct {
	ID        int64           `gorm:"primaryKey;autoIncrement"     json:"-"`
	OrderID   int64           `gorm:"index;not null"               json:"-"`
	ProductID int64           `gorm:"not null"                     json:"-"`
	Product   Product         `gorm:"foreignKey:ProductID"         json:"product"`
	Quantity  int             `gorm:"not null"                     json:"quantity"`
	Price     decimal.Decimal `gorm:"type:numeric(12,2);not null"  json:"price"`
}

func (OrderItem) TableName() string {
	return "order_items"
}

// All lists every model in migration order.
func All() []any {
	return []any{&User{}, &RefreshToken{}, &Product{}, &CartItem{}, &WishlistItem{}, &Order{}, &OrderItem{}}
}
