package storefront

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/utafrali/storefront/internal/domain"
)

// CartResult is the outcome of a cart mutation: the authoritative cart (nil
// if the backend returned none) and any userErrors, which are data.
type CartResult struct {
	Cart       *domain.Cart
	UserErrors []domain.UserError
}

// CartAPI is the remote cart contract the cart store depends on.
type CartAPI interface {
	CreateCart(ctx context.Context, lines []domain.CartLineInput, buyer domain.BuyerIdentity, locale domain.Locale) (*CartResult, error)
	// GetCart returns a nil cart when the backend no longer knows cartID,
	// for example after checkout completed or the cart expired.
	GetCart(ctx context.Context, cartID string, locale domain.Locale) (*domain.Cart, error)
	AddLines(ctx context.Context, cartID string, lines []domain.CartLineInput, locale domain.Locale) (*CartResult, error)
	UpdateLines(ctx context.Context, cartID string, lines []domain.CartLineUpdate, locale domain.Locale) (*CartResult, error)
	RemoveLines(ctx context.Context, cartID string, lineIDs []string, locale domain.Locale) (*CartResult, error)
	UpdateBuyerIdentity(ctx context.Context, cartID string, buyer domain.BuyerIdentity, locale domain.Locale) (*CartResult, error)
}

var _ CartAPI = (*Client)(nil)

type moneyV2 struct {
	Amount       decimal.Decimal `json:"amount"`
	CurrencyCode string          `json:"currencyCode"`
}

func (m moneyV2) toDomain() domain.Money {
	return domain.Money{Amount: m.Amount, CurrencyCode: m.CurrencyCode}
}

type imageNode struct {
	URL     string `json:"url"`
	AltText string `json:"altText"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
}

type cartLineNode struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
	Cost     struct {
		AmountPerQuantity moneyV2 `json:"amountPerQuantity"`
	} `json:"cost"`
	Merchandise struct {
		ID              string                  `json:"id"`
		SelectedOptions []domain.SelectedOption `json:"selectedOptions"`
		Image           *imageNode              `json:"image"`
		Product         struct {
			ID            string     `json:"id"`
			Handle        string     `json:"handle"`
			Title         string     `json:"title"`
			FeaturedImage *imageNode `json:"featuredImage"`
		} `json:"product"`
	} `json:"merchandise"`
}

type cartNode struct {
	ID            string    `json:"id"`
	CheckoutURL   string    `json:"checkoutUrl"`
	UpdatedAt     time.Time `json:"updatedAt"`
	BuyerIdentity struct {
		Email       string `json:"email"`
		CountryCode string `json:"countryCode"`
	} `json:"buyerIdentity"`
	Lines struct {
		Edges []struct {
			Node cartLineNode `json:"node"`
		} `json:"edges"`
	} `json:"lines"`
}

func (n *cartNode) toDomain() *domain.Cart {
	if n == nil {
		return nil
	}
	cart := &domain.Cart{
		ID:          n.ID,
		CheckoutURL: n.CheckoutURL,
		BuyerEmail:  n.BuyerIdentity.Email,
		UpdatedAt:   n.UpdatedAt,
		Lines:       make([]domain.CartLine, 0, len(n.Lines.Edges)),
	}
	for _, e := range n.Lines.Edges {
		l := e.Node
		image := ""
		switch {
		case l.Merchandise.Image != nil:
			image = l.Merchandise.Image.URL
		case l.Merchandise.Product.FeaturedImage != nil:
			image = l.Merchandise.Product.FeaturedImage.URL
		}
		cart.Lines = append(cart.Lines, domain.CartLine{
			LineID:          l.ID,
			VariantID:       l.Merchandise.ID,
			Quantity:        l.Quantity,
			UnitPrice:       l.Cost.AmountPerQuantity.toDomain(),
			SelectedOptions: l.Merchandise.SelectedOptions,
			Product: domain.ProductSnapshot{
				ProductID: l.Merchandise.Product.ID,
				Handle:    l.Merchandise.Product.Handle,
				Title:     l.Merchandise.Product.Title,
				ImageURL:  image,
			},
		})
	}
	return cart
}

type cartPayload struct {
	Cart       *cartNode          `json:"cart"`
	UserErrors []domain.UserError `json:"userErrors"`
}

func (p cartPayload) toResult() *CartResult {
	return &CartResult{Cart: p.Cart.toDomain(), UserErrors: p.UserErrors}
}

type lineInput struct {
	MerchandiseID string `json:"merchandiseId"`
	Quantity      int    `json:"quantity"`
}

type lineUpdateInput struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
}

type buyerIdentityInput struct {
	Email       string         `json:"email,omitempty"`
	CountryCode domain.Country `json:"countryCode,omitempty"`
}

func toLineInputs(lines []domain.CartLineInput) []lineInput {
	out := make([]lineInput, len(lines))
	for i, l := range lines {
		out[i] = lineInput{MerchandiseID: l.VariantID, Quantity: l.Quantity}
	}
	return out
}

// CreateCart creates a cart with the given lines and buyer identity.
func (c *Client) CreateCart(ctx context.Context, lines []domain.CartLineInput, buyer domain.BuyerIdentity, locale domain.Locale) (*CartResult, error) {
	input := map[string]any{"lines": toLineInputs(lines)}
	if buyer.Email != "" || buyer.CountryCode != "" {
		input["buyerIdentity"] = buyerIdentityInput{Email: buyer.Email, CountryCode: buyer.CountryCode}
	}

	var out struct {
		CartCreate cartPayload `json:"cartCreate"`
	}
	if err := c.Request(ctx, cartCreateMutation, map[string]any{"input": input}, locale, &out); err != nil {
		return nil, err
	}
	return out.CartCreate.toResult(), nil
}

// GetCart fetches the authoritative cart.
func (c *Client) GetCart(ctx context.Context, cartID string, locale domain.Locale) (*domain.Cart, error) {
	var out struct {
		Cart *cartNode `json:"cart"`
	}
	if err := c.Request(ctx, getCartQuery, map[string]any{"cartId": cartID}, locale, &out); err != nil {
		return nil, err
	}
	return out.Cart.toDomain(), nil
}

// AddLines adds lines to a cart. The backend merges quantities for variants
// already present.
func (c *Client) AddLines(ctx context.Context, cartID string, lines []domain.CartLineInput, locale domain.Locale) (*CartResult, error) {
	var out struct {
		CartLinesAdd cartPayload `json:"cartLinesAdd"`
	}
	vars := map[string]any{"cartId": cartID, "lines": toLineInputs(lines)}
	if err := c.Request(ctx, cartLinesAddMutation, vars, locale, &out); err != nil {
		return nil, err
	}
	return out.CartLinesAdd.toResult(), nil
}

// UpdateLines sets quantities of existing lines.
func (c *Client) UpdateLines(ctx context.Context, cartID string, lines []domain.CartLineUpdate, locale domain.Locale) (*CartResult, error) {
	updates := make([]lineUpdateInput, len(lines))
	for i, l := range lines {
		updates[i] = lineUpdateInput{ID: l.LineID, Quantity: l.Quantity}
	}

	var out struct {
		CartLinesUpdate cartPayload `json:"cartLinesUpdate"`
	}
	vars := map[string]any{"cartId": cartID, "lines": updates}
	if err := c.Request(ctx, cartLinesUpdateMutation, vars, locale, &out); err != nil {
		return nil, err
	}
	return out.CartLinesUpdate.toResult(), nil
}

// RemoveLines removes lines by backend line ID.
func (c *Client) RemoveLines(ctx context.Context, cartID string, lineIDs []string, locale domain.Locale) (*CartResult, error) {
	var out struct {
		CartLinesRemove cartPayload `json:"cartLinesRemove"`
	}
	vars := map[string]any{"cartId": cartID, "lineIds": lineIDs}
	if err := c.Request(ctx, cartLinesRemoveMutation, vars, locale, &out); err != nil {
		return nil, err
	}
	return out.CartLinesRemove.toResult(), nil
}

// UpdateBuyerIdentity attaches buyer email and country to the cart.
func (c *Client) UpdateBuyerIdentity(ctx context.Context, cartID string, buyer domain.BuyerIdentity, locale domain.Locale) (*CartResult, error) {
	var out struct {
		CartBuyerIdentityUpdate cartPayload `json:"cartBuyerIdentityUpdate"`
	}
	vars := map[string]any{
		"cartId":        cartID,
		"buyerIdentity": buyerIdentityInput{Email: buyer.Email, CountryCode: buyer.CountryCode},
	}
	if err := c.Request(ctx, cartBuyerIdentityUpdateMutation, vars, locale, &out); err != nil {
		return nil, err
	}
	return out.CartBuyerIdentityUpdate.toResult(), nil
}
