package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/storefront/internal/domain"
	pkgkafka "github.com/utafrali/storefront/pkg/kafka"
	"github.com/utafrali/storefront/pkg/logger"
)

// Kafka topics for storefront cart events.
const (
	TopicCartUpdated     = "storefront.cart.updated"
	TopicCartCleared     = "storefront.cart.cleared"
	TopicCheckoutStarted = "storefront.checkout.started"
)

const (
	AggregateTypeCart = "cart"
	SourceStorefront  = "storefront-bff"
)

// CartUpdatedData is the payload for a cart.updated event.
type CartUpdatedData struct {
	SessionID  string         `json:"session_id"`
	CartID     string         `json:"cart_id"`
	Lines      []CartLineData `json:"lines"`
	TotalItems int            `json:"total_items"`
	Total      domain.Money   `json:"total"`
	Country    string         `json:"country"`
	Language   string         `json:"language"`
}

// CartLineData is the line payload within cart events.
type CartLineData struct {
	VariantID string       `json:"variant_id"`
	Handle    string       `json:"handle"`
	Quantity  int          `json:"quantity"`
	UnitPrice domain.Money `json:"unit_price"`
}

// CartClearedData is the payload for a cart.cleared event.
type CartClearedData struct {
	SessionID string `json:"session_id"`
	CartID    string `json:"cart_id"`
	Reason    string `json:"reason"`
}

// CheckoutStartedData is the payload for a checkout.started event.
type CheckoutStartedData struct {
	SessionID   string       `json:"session_id"`
	CartID      string       `json:"cart_id"`
	CheckoutURL string       `json:"checkout_url"`
	TotalItems  int          `json:"total_items"`
	Total       domain.Money `json:"total"`
}

// Publisher is the kafka producer surface used here.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes storefront cart events.
type Producer struct {
	kafka  Publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer.
func NewProducer(kafka Publisher, logger *slog.Logger) *Producer {
	return &Producer{kafka: kafka, logger: logger}
}

func (p *Producer) publish(ctx context.Context, topic, aggregateID string, data any) error {
	event, err := pkgkafka.NewEvent(topic, aggregateID, AggregateTypeCart, SourceStorefront, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	event.WithCorrelationID(logger.CorrelationIDFromContext(ctx))

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}
	return nil
}

// PublishCartUpdated publishes a cart.updated event.
func (p *Producer) PublishCartUpdated(ctx context.Context, sessionID string, cart domain.Cart, locale domain.Locale) error {
	lines := make([]CartLineData, len(cart.Lines))
	for i, l := range cart.Lines {
		lines[i] = CartLineData{
			VariantID: l.VariantID,
			Handle:    l.Product.Handle,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
		}
	}

	data := CartUpdatedData{
		SessionID:  sessionID,
		CartID:     cart.ID,
		Lines:      lines,
		TotalItems: cart.TotalItems(),
		Total:      cart.TotalPrice(),
		Country:    string(locale.Country),
		Language:   string(locale.Language),
	}
	if err := p.publish(ctx, TopicCartUpdated, cart.ID, data); err != nil {
		return err
	}

	p.logger.DebugContext(ctx, "published cart.updated event",
		slog.String("cart_id", cart.ID),
		slog.Int("total_items", data.TotalItems),
	)
	return nil
}

// PublishCartCleared publishes a cart.cleared event.
func (p *Producer) PublishCartCleared(ctx context.Context, sessionID, cartID, reason string) error {
	return p.publish(ctx, TopicCartCleared, cartID, CartClearedData{
		SessionID: sessionID,
		CartID:    cartID,
		Reason:    reason,
	})
}

// PublishCheckoutStarted publishes a checkout.started event.
func (p *Producer) PublishCheckoutStarted(ctx context.Context, sessionID string, cart domain.Cart) error {
	return p.publish(ctx, TopicCheckoutStarted, cart.ID, CheckoutStartedData{
		SessionID:   sessionID,
		CartID:      cart.ID,
		CheckoutURL: cart.CheckoutURL,
		TotalItems:  cart.TotalItems(),
		Total:       cart.TotalPrice(),
	})
}

// Noop discards events. It is used when no brokers are configured.
type Noop struct{}

func (Noop) PublishCartUpdated(context.Context, string, domain.Cart, domain.Locale) error { return nil }
func (Noop) PublishCartCleared(context.Context, string, string, string) error            { return nil }
func (Noop) PublishCheckoutStarted(context.Context, string, domain.Cart) error           { return nil }
