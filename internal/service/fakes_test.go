package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/repository/memory"
	"github.com/utafrali/storefront/internal/storefront"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeBackend is an in-memory commerce backend. Like the real one it
// accumulates quantities per variant, caps quantities at stock, and reports
// semantic problems as userErrors.
type fakeBackend struct {
	mu      sync.Mutex
	carts   map[string]*domain.Cart
	nextID  int
	version int
	stock   map[string]int
	errs    map[string]error
	calls   map[string]int
	buyers  map[string]domain.BuyerIdentity
	gates   map[string]*gate
}

type gate struct {
	started chan struct{}
	release chan struct{}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		carts:  make(map[string]*domain.Cart),
		stock:  make(map[string]int),
		errs:   make(map[string]error),
		calls:  make(map[string]int),
		buyers: make(map[string]domain.BuyerIdentity),
		gates:  make(map[string]*gate),
	}
}

var _ storefront.CartAPI = (*fakeBackend)(nil)

// block makes the next call to op capture its response and then wait until
// release is called.
func (b *fakeBackend) block(op string) (started <-chan struct{}, release func()) {
	g := &gate{started: make(chan struct{}), release: make(chan struct{})}
	b.mu.Lock()
	b.gates[op] = g
	b.mu.Unlock()
	var once sync.Once
	return g.started, func() { once.Do(func() { close(g.release) }) }
}

func (b *fakeBackend) failWith(op string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errs[op] = err
}

func (b *fakeBackend) callCount(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[op]
}

func (b *fakeBackend) cart(id string) *domain.Cart {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.carts[id]
	if !ok {
		return nil
	}
	out := c.Clone()
	return &out
}

// removeRemote drops a line out-of-band, as when stock runs out.
func (b *fakeBackend) removeRemote(cartID, variantID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := b.carts[cartID]
	for i, l := range c.Lines {
		if l.VariantID == variantID {
			c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
			b.touchLocked(c)
			return
		}
	}
}

func (b *fakeBackend) deleteRemote(cartID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.carts, cartID)
}

// enter records the call and returns the configured error, if any. The
// caller must hold b.mu.
func (b *fakeBackend) enter(op string) error {
	b.calls[op]++
	return b.errs[op]
}

// respond returns a copy of the cart and waits on any gate for op.
func (b *fakeBackend) respond(op string, c *domain.Cart) *domain.Cart {
	var out *domain.Cart
	if c != nil {
		clone := c.Clone()
		out = &clone
	}
	g := b.gates[op]
	delete(b.gates, op)
	b.mu.Unlock()
	if g != nil {
		close(g.started)
		<-g.release
	}
	b.mu.Lock()
	return out
}

func (b *fakeBackend) touchLocked(c *domain.Cart) {
	b.version++
	c.CheckoutURL = fmt.Sprintf("https://shop.test/checkouts/%s?v=%d", c.ID, b.version)
}

func (b *fakeBackend) addLocked(c *domain.Cart, lines []domain.CartLineInput) []domain.UserError {
	var userErrs []domain.UserError
	for _, in := range lines {
		if in.VariantID == "sold-out" {
			userErrs = append(userErrs, domain.UserError{
				Field:   []string{"lines", "0", "merchandiseId"},
				Code:    "MERCHANDISE_OUT_OF_STOCK",
				Message: "The product is sold out",
			})
			continue
		}
		if l := c.FindLine(in.VariantID); l != nil {
			l.Quantity = b.capLocked(in.VariantID, l.Quantity+in.Quantity)
			continue
		}
		c.Lines = append(c.Lines, domain.CartLine{
			LineID:    fmt.Sprintf("gid://shopify/CartLine/%s-%d", in.VariantID, len(c.Lines)),
			VariantID: in.VariantID,
			Quantity:  b.capLocked(in.VariantID, in.Quantity),
			UnitPrice: domain.Money{Amount: decimal.RequireFromString("10.00"), CurrencyCode: "EUR"},
			Product:   domain.ProductSnapshot{Handle: "product-" + in.VariantID, Title: "Product " + in.VariantID},
		})
	}
	b.touchLocked(c)
	return userErrs
}

func (b *fakeBackend) capLocked(variantID string, qty int) int {
	if limit, ok := b.stock[variantID]; ok && qty > limit {
		return limit
	}
	return qty
}

func (b *fakeBackend) CreateCart(_ context.Context, lines []domain.CartLineInput, buyer domain.BuyerIdentity, _ domain.Locale) (*storefront.CartResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter("CreateCart"); err != nil {
		return nil, err
	}
	b.nextID++
	c := &domain.Cart{ID: fmt.Sprintf("gid://shopify/Cart/c%d", b.nextID), BuyerEmail: buyer.Email}
	b.carts[c.ID] = c
	b.buyers[c.ID] = buyer
	userErrs := b.addLocked(c, lines)
	return &storefront.CartResult{Cart: b.respond("CreateCart", c), UserErrors: userErrs}, nil
}

func (b *fakeBackend) GetCart(_ context.Context, cartID string, _ domain.Locale) (*domain.Cart, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter("GetCart"); err != nil {
		return nil, err
	}
	return b.respond("GetCart", b.carts[cartID]), nil
}

func (b *fakeBackend) AddLines(_ context.Context, cartID string, lines []domain.CartLineInput, _ domain.Locale) (*storefront.CartResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter("AddLines"); err != nil {
		return nil, err
	}
	c, ok := b.carts[cartID]
	if !ok {
		return &storefront.CartResult{UserErrors: []domain.UserError{{Code: "INVALID", Message: "cart not found"}}}, nil
	}
	userErrs := b.addLocked(c, lines)
	return &storefront.CartResult{Cart: b.respond("AddLines", c), UserErrors: userErrs}, nil
}

func (b *fakeBackend) UpdateLines(_ context.Context, cartID string, lines []domain.CartLineUpdate, _ domain.Locale) (*storefront.CartResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter("UpdateLines"); err != nil {
		return nil, err
	}
	c := b.carts[cartID]
	for _, u := range lines {
		for i := range c.Lines {
			if c.Lines[i].LineID == u.LineID {
				c.Lines[i].Quantity = b.capLocked(c.Lines[i].VariantID, u.Quantity)
			}
		}
	}
	b.touchLocked(c)
	return &storefront.CartResult{Cart: b.respond("UpdateLines", c)}, nil
}

func (b *fakeBackend) RemoveLines(_ context.Context, cartID string, lineIDs []string, _ domain.Locale) (*storefront.CartResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter("RemoveLines"); err != nil {
		return nil, err
	}
	c := b.carts[cartID]
	for _, id := range lineIDs {
		idx := -1
		for i, l := range c.Lines {
			if l.LineID == id {
				idx = i
			}
		}
		if idx < 0 {
			return &storefront.CartResult{
				Cart:       b.respond("RemoveLines", c),
				UserErrors: []domain.UserError{{Field: []string{"lineIds"}, Code: "INVALID", Message: "line not found"}},
			}, nil
		}
		c.Lines = append(c.Lines[:idx], c.Lines[idx+1:]...)
	}
	b.touchLocked(c)
	return &storefront.CartResult{Cart: b.respond("RemoveLines", c)}, nil
}

func (b *fakeBackend) UpdateBuyerIdentity(_ context.Context, cartID string, buyer domain.BuyerIdentity, _ domain.Locale) (*storefront.CartResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter("UpdateBuyerIdentity"); err != nil {
		return nil, err
	}
	c := b.carts[cartID]
	b.buyers[cartID] = buyer
	c.BuyerEmail = buyer.Email
	b.touchLocked(c)
	return &storefront.CartResult{Cart: b.respond("UpdateBuyerIdentity", c)}, nil
}

func (b *fakeBackend) buyer(cartID string) domain.BuyerIdentity {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buyers[cartID]
}

// recordingEvents collects published event names.
type recordingEvents struct {
	mu     sync.Mutex
	topics []string
}

func (e *recordingEvents) PublishCartUpdated(context.Context, string, domain.Cart, domain.Locale) error {
	e.record("cart.updated")
	return nil
}

func (e *recordingEvents) PublishCartCleared(_ context.Context, _, _, reason string) error {
	e.record("cart.cleared:" + reason)
	return nil
}

func (e *recordingEvents) PublishCheckoutStarted(context.Context, string, domain.Cart) error {
	e.record("checkout.started")
	return nil
}

func (e *recordingEvents) record(topic string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.topics = append(e.topics, topic)
}

func (e *recordingEvents) all() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.topics...)
}

type fixedLocale domain.Locale

func (l fixedLocale) Current() domain.Locale { return domain.Locale(l) }

type cartFixture struct {
	backend *fakeBackend
	kv      *memory.KVStore
	events  *recordingEvents
	store   *CartStore
}

func newCartFixture(t *testing.T) *cartFixture {
	t.Helper()
	f := &cartFixture{
		backend: newFakeBackend(),
		kv:      memory.NewKVStore(),
		events:  &recordingEvents{},
	}
	f.store = f.newStore(t)
	return f
}

// newStore builds another store over the same backend and persistence, as
// after a restart.
func (f *cartFixture) newStore(t *testing.T) *CartStore {
	t.Helper()
	return NewCartStore(t.Context(), CartStoreConfig{
		SessionID: "sess-1",
		API:       f.backend,
		KV:        f.kv,
		Locale:    fixedLocale(domain.DefaultLocale),
		Events:    f.events,
		Logger:    testLogger(),
	})
}
