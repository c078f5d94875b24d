package events

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/vrd2140/storefront/internal/core/domain"
)

// LogPublisher stands in for Kafka when no brokers are configured.
type LogPublisher struct {
	logger zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.With().Str("component", "event_log").Logger()}
}

func (p *LogPublisher) Publish(_ context.Context, event domain.OrderEvent) error {
	p.logger.Info().
		Str("event", event.Type).
		Str("order_id", event.OrderID).
		Str("user_id", event.UserID).
		Str("total", event.Total).
		Msg("order event")
	return nil
}
