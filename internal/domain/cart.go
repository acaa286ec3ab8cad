package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Money is a decimal amount in a single ISO 4217 currency.
type Money struct {
	Amount       decimal.Decimal `json:"amount"`
	CurrencyCode string          `json:"currency_code"`
}

// SelectedOption is one display-only (name, value) pair of a variant,
// for example Color=Blanco.
type SelectedOption struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ProductSnapshot is the denormalized product data carried on a cart line so
// the line can be rendered without a catalog lookup.
type ProductSnapshot struct {
	ProductID string `json:"product_id,omitempty"`
	Handle    string `json:"handle"`
	Title     string `json:"title"`
	ImageURL  string `json:"image_url,omitempty"`
}

// CartLine is one purchasable line in the cart. VariantID is the identity
// key; LineID is the backend's handle for the line and is needed for
// update and removal.
type CartLine struct {
	LineID          string           `json:"line_id"`
	VariantID       string           `json:"variant_id"`
	Quantity        int              `json:"quantity"`
	UnitPrice       Money            `json:"unit_price"`
	SelectedOptions []SelectedOption `json:"selected_options,omitempty"`
	Product         ProductSnapshot  `json:"product"`
}

// Subtotal returns unit price times quantity.
func (l CartLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Amount.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart is the aggregate root. ID is only ever assigned from a backend
// response and is empty until the first remote cart creation.
type Cart struct {
	ID          string     `json:"id,omitempty"`
	Lines       []CartLine `json:"lines"`
	CheckoutURL string     `json:"checkout_url,omitempty"`
	BuyerEmail  string     `json:"buyer_email,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at,omitempty"`
}

// TotalItems returns the sum of line quantities.
func (c *Cart) TotalItems() int {
	var n int
	for _, l := range c.Lines {
		n += l.Quantity
	}
	return n
}

// TotalPrice sums unit price times quantity over all lines. A cart holds a
// single currency, taken from the first line. An empty cart totals zero with
// no currency.
func (c *Cart) TotalPrice() Money {
	total := Money{Amount: decimal.Zero}
	for i, l := range c.Lines {
		if i == 0 {
			total.CurrencyCode = l.UnitPrice.CurrencyCode
		}
		total.Amount = total.Amount.Add(l.Subtotal())
	}
	return total
}

// FindLine returns the line for variantID, or nil.
func (c *Cart) FindLine(variantID string) *CartLine {
	for i := range c.Lines {
		if c.Lines[i].VariantID == variantID {
			return &c.Lines[i]
		}
	}
	return nil
}

// Clone returns a deep copy safe to hand to callers.
func (c *Cart) Clone() Cart {
	out := *c
	out.Lines = make([]CartLine, len(c.Lines))
	for i, l := range c.Lines {
		l.SelectedOptions = append([]SelectedOption(nil), l.SelectedOptions...)
		out.Lines[i] = l
	}
	return out
}

// CartStatus is the state of the cart store's request machinery.
type CartStatus string

const (
	CartStatusIdle     CartStatus = "idle"
	CartStatusSyncing  CartStatus = "syncing"
	CartStatusMutating CartStatus = "mutating"
	CartStatusError    CartStatus = "error"
)

// UserError is a semantic rejection reported by the commerce backend, such
// as insufficient stock. It is data, not a failure of the call.
type UserError struct {
	Field   []string `json:"field,omitempty"`
	Code    string   `json:"code,omitempty"`
	Message string   `json:"message"`
}

// CartLineInput identifies a variant and quantity to add to a cart.
type CartLineInput struct {
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

// CartLineUpdate sets the quantity of an existing backend line.
type CartLineUpdate struct {
	LineID   string `json:"line_id"`
	Quantity int    `json:"quantity"`
}

// BuyerIdentity is forwarded to checkout for pre-fill and market selection.
type BuyerIdentity struct {
	Email       string  `json:"email,omitempty"`
	CountryCode Country `json:"country_code,omitempty"`
}
