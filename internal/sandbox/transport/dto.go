package transport

import "github.com/Skotchmaster/storefront/internal/sandbox/models"

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	Access  string       `json:"access"`
	Refresh string       `json:"refresh"`
	User    *models.User `json:"user"`
}

type RegisterRequest struct {
	Username  string `json:"username"   validate:"required,min=3,max=150,alphanum"`
	Email     string `json:"email"      validate:"required,email"`
	Password  string `json:"password"   validate:"required,min=6"`
	FirstName string `json:"first_name" validate:"max=150"`
	LastName  string `json:"last_name"  validate:"max=150"`
	Phone     string `json:"phone"      validate:"omitempty,max=20"`
}

type ProfileRequest struct {
	Email     *string `json:"email"      validate:"omitempty,email"`
	FirstName *string `json:"first_name" validate:"omitempty,max=150"`
	LastName  *string `json:"last_name"  validate:"omitempty,max=150"`
	Phone     *string `json:"phone"      validate:"omitempty,max=20"`
}

type ProfileResponse struct {
	User *models.User `json:"user"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=6"`
}

type RefreshRequest struct {
	Refresh string `json:"refresh" validate:"required"`
}

type RefreshResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

type CartAddRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int   `json:"quantity"`
}

type CartUpdateRequest struct {
	CartID   int64 `json:"cart_id"  validate:"required,gt=0"`
	Quantity int   `json:"quantity" validate:"gte=1"`
}

type CartDeleteRequest struct {
	CartID int64 `json:"cart_id" validate:"required,gt=0"`
}

type WishlistRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
}

type WishlistAddResponse struct {
	Message string               `json:"message,omitempty"`
	Entry   *models.WishlistItem `json:"wishlist_items,omitempty"`
}

type BlockRequest struct {
	Action string `json:"action" validate:"required,oneof=block unblock"`
}

type Message struct {
	Message string `json:"message"`
}

type Detail struct {
	Detail string `json:"detail"`
	Code   string `json:"code,omitempty"`
}
