// Package events publishes procurement cart items for accepted
// recommendations.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/andresuchdata/autopo-engine/internal/config"
	"github.com/andresuchdata/autopo-engine/internal/domain"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const CartItemQueued = "procurement.cart_item.queued"

// CartItem is the event published when a buyer commits to a BUY_MORE
// recommendation.
type CartItem struct {
	EventID          uuid.UUID       `json:"event_id"`
	EventType        string          `json:"event_type"`
	RecommendationID uuid.UUID       `json:"recommendation_id"`
	StoreID          int64           `json:"store_id"`
	ItemID           string          `json:"store_item_id"`
	ProductName      string          `json:"product_name"`
	Quantity         int             `json:"quantity"`
	UnitCost         decimal.Decimal `json:"unit_cost"`
	FeedbackStatus   string          `json:"feedback_status"`
	Actor            string          `json:"actor"`
	Timestamp        time.Time       `json:"timestamp"`
}

// NewCartItem builds the event for a committed recommendation.
func NewCartItem(rec domain.Recommendation, actor string, at time.Time) CartItem {
	return CartItem{
		EventID:          uuid.New(),
		EventType:        CartItemQueued,
		RecommendationID: rec.ID,
		StoreID:          rec.StoreID,
		ItemID:           rec.ItemID,
		ProductName:      rec.ProductName,
		Quantity:         rec.OrderQuantity(),
		UnitCost:         rec.CostPrice,
		FeedbackStatus:   string(rec.FeedbackStatus),
		Actor:            actor,
		Timestamp:        at.UTC(),
	}
}

// CartQueue accepts cart items. Implementations must not block for long.
type CartQueue interface {
	Enqueue(ctx context.Context, item CartItem) error
	Close()
}

// Publisher sends cart items to NATS.
type Publisher struct {
	conn    *nats.Conn
	subject string
}

type noopCartQueue struct{}

// NewCartQueue connects to NATS, or returns a queue that only logs when
// events are disabled.
func NewCartQueue(cfg config.EventsConfig) (CartQueue, error) {
	if !cfg.Enabled {
		return noopCartQueue{}, nil
	}
	if cfg.NATSURL == "" {
		return nil, fmt.Errorf("NATS_URL not set")
	}

	conn, err := nats.Connect(cfg.NATSURL,
		nats.Name(cfg.ClientName+"-cart-publisher"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &Publisher{conn: conn, subject: cfg.CartSubject}, nil
}

func (p *Publisher) Enqueue(ctx context.Context, item CartItem) error {
	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode cart item: %w", err)
	}
	if err := p.conn.Publish(p.subject, payload); err != nil {
		return fmt.Errorf("publish cart item: %w", err)
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush cart item: %w", err)
	}
	return nil
}

func (p *Publisher) Close() {
	if err := p.conn.Drain(); err != nil {
		log.Warn().Err(err).Msg("failed to drain NATS connection")
	}
}

func (noopCartQueue) Enqueue(_ context.Context, item CartItem) error {
	log.Debug().
		Str("recommendation_id", item.RecommendationID.String()).
		Int("quantity", item.Quantity).
		Msg("events disabled, cart item not published")
	return nil
}

func (noopCartQueue) Close() {}
