// Package notify announces stored research snapshots to downstream consumers.
package notify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pricing-research/internal/research"
)

// Publisher delivers a JSON-encodable payload to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Event is the payload published for every stored snapshot.
type Event struct {
	ID            string                 `json:"id"`
	URL           string                 `json:"url"`
	Marketplace   string                 `json:"marketplace"`
	MarketplaceID string                 `json:"marketplace_id"`
	Sellers       []research.SellerOffer `json:"sellers"`
	ConductedAt   time.Time              `json:"conducted_at"`
}

// NewEvent builds the event for snap.
func NewEvent(snap research.Snapshot) Event {
	sellers := snap.Clone().Sellers
	if sellers == nil {
		sellers = []research.SellerOffer{}
	}
	return Event{
		ID:            snap.ID,
		URL:           snap.URL,
		Marketplace:   snap.Marketplace,
		MarketplaceID: snap.MarketplaceID,
		Sellers:       sellers,
		ConductedAt:   snap.ConductedAt,
	}
}

// Notifier implements research.Notifier.
type Notifier struct {
	publisher Publisher
	topic     string
	logger    *zap.Logger
}

// New returns a Notifier publishing to topic.
func New(publisher Publisher, topic string, logger *zap.Logger) (*Notifier, error) {
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{publisher: publisher, topic: topic, logger: logger.Named("notify")}, nil
}

// Notify publishes the research-stored event for snap.
func (n *Notifier) Notify(ctx context.Context, snap research.Snapshot) error {
	id, err := n.publisher.Publish(ctx, n.topic, NewEvent(snap))
	if err != nil {
		return fmt.Errorf("publish research %s: %w", snap.ID, err)
	}
	n.logger.Debug("research published",
		zap.String("snapshot_id", snap.ID),
		zap.String("topic", n.topic),
		zap.String("message_id", id),
	)
	return nil
}
