package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// WishlistItem is a locally favorited product. ProductID is the unique key.
// AddedAt is set once at insertion.
type WishlistItem struct {
	ProductID    string           `json:"product_id" validate:"required"`
	Handle       string           `json:"handle" validate:"required"`
	Title        string           `json:"title" validate:"required"`
	Image        string           `json:"image,omitempty"`
	Price        *decimal.Decimal `json:"price,omitempty"`
	CurrencyCode string           `json:"currency_code,omitempty"`
	AddedAt      time.Time        `json:"added_at"`
}
