package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/repository"
	"github.com/utafrali/storefront/internal/storefront"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// MaxQuantityPerLine caps a single add or update request.
const MaxQuantityPerLine = 100

// Cart operations, used as metric labels and log fields.
const (
	opSync        = "sync"
	opAdd         = "add_item"
	opUpdate      = "update_quantity"
	opRemove      = "remove_item"
	opBuyerEmail  = "set_buyer_email"
	opApplyLocale = "apply_locale"
	opClear       = "clear"
)

// errCartGone is returned from a mutation body when the backend no longer
// knows the cart. The store then forgets the local cart.
var errCartGone = errors.New("cart no longer exists")

// LocaleProvider supplies the locale outgoing cart requests are made in.
type LocaleProvider interface {
	Current() domain.Locale
}

// CartEvents publishes cart lifecycle events.
type CartEvents interface {
	PublishCartUpdated(ctx context.Context, sessionID string, cart domain.Cart, locale domain.Locale) error
	PublishCartCleared(ctx context.Context, sessionID, cartID, reason string) error
	PublishCheckoutStarted(ctx context.Context, sessionID string, cart domain.Cart) error
}

// AddItemInput holds the parameters for adding a variant to the cart.
type AddItemInput struct {
	VariantID string `json:"variant_id" validate:"required,gid"`
	Quantity  int    `json:"quantity" validate:"required,gte=1,lte=100"`
}

// UpdateQuantityInput holds the new quantity for a cart line. Zero or less
// removes the line.
type UpdateQuantityInput struct {
	Quantity int `json:"quantity" validate:"lte=100"`
}

// CartSnapshot is an immutable view of the cart store.
type CartSnapshot struct {
	CartID      string            `json:"cart_id,omitempty"`
	Lines       []domain.CartLine `json:"lines"`
	CheckoutURL string            `json:"checkout_url,omitempty"`
	BuyerEmail  string            `json:"buyer_email,omitempty"`
	TotalItems  int               `json:"total_items"`
	TotalPrice  domain.Money      `json:"total_price"`
	Status      domain.CartStatus `json:"status"`
	LastError   string            `json:"last_error,omitempty"`
	UpdatedAt   time.Time         `json:"updated_at,omitempty"`
	// Version increases with every snapshot taken. Subscribers never see
	// versions go backwards.
	Version uint64 `json:"version"`
}

// MutationResult is returned by successful cart mutations. UserErrors are
// semantic rejections from the backend, such as insufficient stock.
type MutationResult struct {
	Cart       CartSnapshot       `json:"cart"`
	UserErrors []domain.UserError `json:"user_errors,omitempty"`
}

// persistedCart is the JSON document kept under repository.CartKey.
type persistedCart struct {
	Cart       domain.Cart `json:"cart"`
	BuyerEmail string      `json:"buyer_email,omitempty"`
}

// CartStoreConfig holds the dependencies of a CartStore.
type CartStoreConfig struct {
	SessionID string
	API       storefront.CartAPI
	KV        repository.KVStore
	Locale    LocaleProvider
	Events    CartEvents
	Logger    *slog.Logger
}

// CartStore owns the cart of one session. The backend is the source of truth:
// local state changes only by applying a cart the backend returned. Writes
// are serialized through a single slot; reads are ordered by request token.
type CartStore struct {
	sessionID string
	api       storefront.CartAPI
	kv        repository.KVStore
	key       string
	locale    LocaleProvider
	events    CartEvents
	logger    *slog.Logger

	slot *semaphore.Weighted

	mu         sync.RWMutex
	cart       domain.Cart
	buyerEmail string
	mutating   bool
	syncing    int
	// seq is the token of the most recently started request.
	seq uint64

	// version stamps snapshots. It is advanced while mu is held so the stamp
	// order matches the order of the state the snapshots describe.
	version atomic.Uint64

	// pubMu serializes delivery; published is the last version delivered.
	pubMu     sync.Mutex
	published uint64

	subMu   sync.Mutex
	subs    map[int]func(CartSnapshot)
	nextSub int
}

// NewCartStore builds a store for one session and loads its persisted cart.
// Unreadable persisted state is logged and treated as absent.
func NewCartStore(ctx context.Context, cfg CartStoreConfig) *CartStore {
	s := &CartStore{
		sessionID: cfg.SessionID,
		api:       cfg.API,
		kv:        cfg.KV,
		key:       repository.CartKey(cfg.SessionID),
		locale:    cfg.Locale,
		events:    cfg.Events,
		logger:    cfg.Logger.With(slog.String("session_id", cfg.SessionID)),
		slot:      semaphore.NewWeighted(1),
		subs:      make(map[int]func(CartSnapshot)),
	}

	var stored persistedCart
	found, err := repository.LoadJSON(ctx, cfg.KV, s.key, &stored)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to load persisted cart, starting empty",
			slog.String("error", err.Error()),
		)
	} else if found {
		s.cart = stored.Cart
		s.buyerEmail = stored.BuyerEmail
	}
	return s
}

// Snapshot returns the current state.
func (s *CartStore) Snapshot() CartSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *CartStore) snapshotLocked() CartSnapshot {
	snap := CartSnapshot{
		CartID:      s.cart.ID,
		Lines:       s.cart.Clone().Lines,
		CheckoutURL: s.cart.CheckoutURL,
		BuyerEmail:  s.buyerEmail,
		TotalItems:  s.cart.TotalItems(),
		TotalPrice:  s.cart.TotalPrice(),
		Status:      domain.CartStatusIdle,
		UpdatedAt:   s.cart.UpdatedAt,
		Version:     s.version.Add(1),
	}
	switch {
	case s.mutating:
		snap.Status = domain.CartStatusMutating
	case s.syncing > 0:
		snap.Status = domain.CartStatusSyncing
	}
	return snap
}

// Subscribe registers fn to receive published snapshots in version order.
// fn is called synchronously, one delivery at a time, and must not block or
// call back into the store's writers.
func (s *CartStore) Subscribe(fn func(CartSnapshot)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

// publish delivers snap unless a newer snapshot was already delivered. A
// snapshot captured before a concurrent writer's is dropped when it arrives
// late.
func (s *CartStore) publish(snap CartSnapshot) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	if snap.Version <= s.published {
		cartStaleSnapshots.Inc()
		return
	}
	s.published = snap.Version

	s.subMu.Lock()
	subs := make([]func(CartSnapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subMu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

// publishFailure reports the error state to subscribers, then the idle state
// the store settles back into.
func (s *CartStore) publishFailure(err error) {
	s.mu.RLock()
	failed := s.snapshotLocked()
	s.mu.RUnlock()
	failed.Status = domain.CartStatusError
	failed.LastError = err.Error()
	s.publish(failed)
	s.publish(s.Snapshot())
}

// CheckoutURL returns the last known checkout URL without a network call.
// Callers that need it to reflect the latest contents sync first.
func (s *CartStore) CheckoutURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cart.CheckoutURL
}

// StartCheckout returns the checkout URL for handoff and records the event.
func (s *CartStore) StartCheckout(ctx context.Context) (string, error) {
	s.mu.RLock()
	cart := s.cart.Clone()
	s.mu.RUnlock()

	if cart.CheckoutURL == "" {
		return "", apperrors.Conflict("cart has no checkout url yet")
	}
	if err := s.events.PublishCheckoutStarted(ctx, s.sessionID, cart); err != nil {
		s.logger.WarnContext(ctx, "failed to publish checkout.started event",
			slog.String("cart_id", cart.ID),
			slog.String("error", err.Error()),
		)
	}
	return cart.CheckoutURL, nil
}

// TotalItems returns the sum of line quantities.
func (s *CartStore) TotalItems() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cart.TotalItems()
}

// TotalPrice returns the cart total in the cart's currency.
func (s *CartStore) TotalPrice() domain.Money {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cart.TotalPrice()
}

// SyncCart replaces local state with the backend's cart. Without a cart ID,
// and while a mutation is in flight, it returns the current snapshot without
// a request. A response is discarded when any newer request started after
// it, so a late sync never overwrites a fresher mutation result.
func (s *CartStore) SyncCart(ctx context.Context) (CartSnapshot, error) {
	s.mu.Lock()
	if s.cart.ID == "" || s.mutating {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, nil
	}
	s.seq++
	token := s.seq
	s.syncing++
	cartID := s.cart.ID
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(snap)

	cart, err := s.api.GetCart(ctx, cartID, s.locale.Current())

	s.mu.Lock()
	s.syncing--
	if err != nil {
		s.mu.Unlock()
		s.recordFailure(ctx, opSync, err)
		s.publishFailure(err)
		return s.Snapshot(), fmt.Errorf("sync cart: %w", err)
	}
	if token != s.seq {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		cartStaleResponses.Inc()
		s.logger.DebugContext(ctx, "discarded stale cart sync response",
			slog.Uint64("token", token),
		)
		s.publish(snap)
		return snap, nil
	}
	if cart == nil {
		s.cart = domain.Cart{}
	} else {
		s.cart = *cart
	}
	snap = s.snapshotLocked()
	s.mu.Unlock()

	if cart == nil {
		s.forget(ctx, cartID, "expired")
	} else {
		s.persist(ctx)
	}
	cartOperations.WithLabelValues(opSync, resultSuccess).Inc()
	s.publish(snap)
	return snap, nil
}

// AddItem adds a variant to the cart, creating the remote cart on first use.
// Quantity accumulation for a variant already in the cart is left to the
// backend; the returned cart is applied as-is.
func (s *CartStore) AddItem(ctx context.Context, in AddItemInput) (MutationResult, error) {
	if in.VariantID == "" {
		return MutationResult{}, apperrors.InvalidInput("variant id is required")
	}
	if in.Quantity < 1 || in.Quantity > MaxQuantityPerLine {
		return MutationResult{}, apperrors.InvalidInput(
			fmt.Sprintf("quantity must be between 1 and %d", MaxQuantityPerLine))
	}

	return s.mutate(ctx, opAdd, false, func(cart domain.Cart, email string, locale domain.Locale) (*storefront.CartResult, error) {
		lines := []domain.CartLineInput{{VariantID: in.VariantID, Quantity: in.Quantity}}
		if cart.ID == "" {
			buyer := domain.BuyerIdentity{Email: email, CountryCode: locale.Country}
			return s.api.CreateCart(ctx, lines, buyer, locale)
		}
		return s.api.AddLines(ctx, cart.ID, lines, locale)
	})
}

// UpdateQuantity sets the quantity of the line holding variantID. A quantity
// of zero or less removes the line. The backend may cap the quantity; the
// confirmed value is what the store keeps.
func (s *CartStore) UpdateQuantity(ctx context.Context, variantID string, quantity int) (MutationResult, error) {
	if quantity <= 0 {
		return s.RemoveItem(ctx, variantID)
	}
	if quantity > MaxQuantityPerLine {
		return MutationResult{}, apperrors.InvalidInput(
			fmt.Sprintf("quantity must not exceed %d", MaxQuantityPerLine))
	}

	return s.mutate(ctx, opUpdate, false, func(cart domain.Cart, _ string, locale domain.Locale) (*storefront.CartResult, error) {
		line := cart.FindLine(variantID)
		if line == nil {
			return nil, apperrors.NotFound("cart line", variantID)
		}
		updates := []domain.CartLineUpdate{{LineID: line.LineID, Quantity: quantity}}
		return s.api.UpdateLines(ctx, cart.ID, updates, locale)
	})
}

// RemoveItem removes the line holding variantID. Removing a line that is not
// in the cart, locally or remotely, succeeds.
func (s *CartStore) RemoveItem(ctx context.Context, variantID string) (MutationResult, error) {
	return s.mutate(ctx, opRemove, false, func(cart domain.Cart, _ string, locale domain.Locale) (*storefront.CartResult, error) {
		line := cart.FindLine(variantID)
		if line == nil {
			return nil, nil
		}

		res, err := s.api.RemoveLines(ctx, cart.ID, []string{line.LineID}, locale)
		if err != nil || len(res.UserErrors) == 0 {
			return res, err
		}

		// The backend rejected the removal. If the line is already gone
		// remotely the removal has effectively happened.
		current, gerr := s.api.GetCart(ctx, cart.ID, locale)
		if gerr != nil {
			return res, nil
		}
		if current == nil {
			return nil, errCartGone
		}
		if current.FindLine(variantID) == nil {
			return &storefront.CartResult{Cart: current}, nil
		}
		return res, nil
	})
}

// SetBuyerEmail records the buyer's email and attaches it to the remote cart.
// It waits for any in-flight mutation instead of failing as busy. The email
// is kept locally even when the remote update fails, and is sent when the
// cart is created.
func (s *CartStore) SetBuyerEmail(ctx context.Context, email string) error {
	s.mu.Lock()
	s.buyerEmail = email
	s.mu.Unlock()

	res, err := s.mutate(ctx, opBuyerEmail, true, func(cart domain.Cart, email string, locale domain.Locale) (*storefront.CartResult, error) {
		if cart.ID == "" {
			// Nothing to send, but the email is persisted for cart creation.
			return &storefront.CartResult{}, nil
		}
		buyer := domain.BuyerIdentity{Email: email, CountryCode: locale.Country}
		return s.api.UpdateBuyerIdentity(ctx, cart.ID, buyer, locale)
	})
	if err != nil {
		return err
	}
	if len(res.UserErrors) > 0 {
		return apperrors.InvalidInput("buyer identity rejected: " + res.UserErrors[0].Message)
	}
	return nil
}

// ApplyLocale re-associates the remote cart with the locale's country so
// prices follow the selected market. It waits for the mutation slot.
func (s *CartStore) ApplyLocale(ctx context.Context, locale domain.Locale) error {
	_, err := s.mutate(ctx, opApplyLocale, true, func(cart domain.Cart, email string, _ domain.Locale) (*storefront.CartResult, error) {
		if cart.ID == "" {
			return nil, nil
		}
		buyer := domain.BuyerIdentity{Email: email, CountryCode: locale.Country}
		return s.api.UpdateBuyerIdentity(ctx, cart.ID, buyer, locale)
	})
	return err
}

// Clear forgets the local cart, for example once checkout has completed.
// The remote cart is left to expire.
func (s *CartStore) Clear(ctx context.Context) error {
	_, err := s.mutate(ctx, opClear, true, func(domain.Cart, string, domain.Locale) (*storefront.CartResult, error) {
		return nil, errCartGone
	})
	return err
}

type mutationFunc func(cart domain.Cart, buyerEmail string, locale domain.Locale) (*storefront.CartResult, error)

// mutate runs fn in the single mutation slot. User mutations fail fast with
// CART_BUSY when the slot is taken; queued ones wait under ctx. fn receives a
// copy of the current cart. A nil result with a nil error means nothing was
// sent and nothing changes.
func (s *CartStore) mutate(ctx context.Context, op string, queued bool, fn mutationFunc) (MutationResult, error) {
	if queued {
		if err := s.slot.Acquire(ctx, 1); err != nil {
			return MutationResult{}, fmt.Errorf("%s: %w", op, err)
		}
	} else if !s.slot.TryAcquire(1) {
		cartOperations.WithLabelValues(op, resultBusy).Inc()
		return MutationResult{}, apperrors.Busy("cart")
	}
	defer s.slot.Release(1)

	s.mu.Lock()
	s.seq++
	s.mutating = true
	cart := s.cart.Clone()
	email := s.buyerEmail
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(snap)

	locale := s.locale.Current()
	res, err := fn(cart, email, locale)

	if errors.Is(err, errCartGone) {
		s.mu.Lock()
		s.mutating = false
		s.cart = domain.Cart{}
		snap := s.snapshotLocked()
		s.mu.Unlock()

		reason := "expired"
		if op == opClear {
			reason = "cleared"
		}
		s.forget(ctx, cart.ID, reason)
		cartOperations.WithLabelValues(op, resultSuccess).Inc()
		s.publish(snap)
		return MutationResult{Cart: snap}, nil
	}

	if err != nil {
		s.mu.Lock()
		s.mutating = false
		s.mu.Unlock()
		s.recordFailure(ctx, op, err)
		s.publishFailure(err)
		return MutationResult{}, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	s.mutating = false
	applied := res != nil && res.Cart != nil
	if applied {
		s.cart = *res.Cart
	}
	snap = s.snapshotLocked()
	s.mu.Unlock()

	if res != nil {
		s.persist(ctx)
	}
	if applied {
		if err := s.events.PublishCartUpdated(ctx, s.sessionID, res.Cart.Clone(), locale); err != nil {
			s.logger.WarnContext(ctx, "failed to publish cart.updated event",
				slog.String("cart_id", res.Cart.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	result := MutationResult{Cart: snap}
	outcome := resultSuccess
	if res != nil && len(res.UserErrors) > 0 {
		result.UserErrors = res.UserErrors
		outcome = resultUserErrors
		s.logger.InfoContext(ctx, "cart mutation returned user errors",
			slog.String("operation", op),
			slog.Int("count", len(res.UserErrors)),
			slog.String("first", res.UserErrors[0].Message),
		)
	}
	cartOperations.WithLabelValues(op, outcome).Inc()
	s.publish(snap)
	return result, nil
}

func (s *CartStore) recordFailure(ctx context.Context, op string, err error) {
	result := resultError
	if storefront.IsNetworkError(err) {
		result = resultNetwork
	}
	cartOperations.WithLabelValues(op, result).Inc()
	s.logger.WarnContext(ctx, "cart operation failed",
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}

// persist writes the current cart. Failures are logged; the backend remains
// authoritative and the next sync repairs the cache.
func (s *CartStore) persist(ctx context.Context) {
	s.mu.RLock()
	doc := persistedCart{Cart: s.cart.Clone(), BuyerEmail: s.buyerEmail}
	s.mu.RUnlock()

	if err := repository.SaveJSON(ctx, s.kv, s.key, doc); err != nil {
		s.logger.WarnContext(ctx, "failed to persist cart",
			slog.String("cart_id", doc.Cart.ID),
			slog.String("error", err.Error()),
		)
	}
}

// forget drops the persisted cart but keeps the buyer email for the next
// cart this session creates.
func (s *CartStore) forget(ctx context.Context, cartID, reason string) {
	s.mu.RLock()
	email := s.buyerEmail
	s.mu.RUnlock()

	var err error
	if email == "" {
		err = s.kv.Delete(ctx, s.key)
	} else {
		err = repository.SaveJSON(ctx, s.kv, s.key, persistedCart{BuyerEmail: email})
	}
	if err != nil {
		s.logger.WarnContext(ctx, "failed to remove persisted cart",
			slog.String("cart_id", cartID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "cart forgotten",
		slog.String("cart_id", cartID),
		slog.String("reason", reason),
	)
	if cartID == "" {
		return
	}
	if err := s.events.PublishCartCleared(ctx, s.sessionID, cartID, reason); err != nil {
		s.logger.WarnContext(ctx, "failed to publish cart.cleared event",
			slog.String("cart_id", cartID),
			slog.String("error", err.Error()),
		)
	}
}
