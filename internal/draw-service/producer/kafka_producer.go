package producer

import (
	"context"

	"github.com/radieske/number-draw-platform/internal/shared/kafka"
	"github.com/radieske/number-draw-platform/pkg/contracts/events"
)

// KafkaPublisher publica os eventos do sorteio; a chave é o id da sessão.
type KafkaPublisher struct {
	BetPlaced   *kafka.Writer
	DrawSettled *kafka.Writer
}

func NewKafkaPublisher(betPlaced, drawSettled *kafka.Writer) *KafkaPublisher {
	return &KafkaPublisher{BetPlaced: betPlaced, DrawSettled: drawSettled}
}

func (p *KafkaPublisher) PublishBetPlaced(ctx context.Context, e events.BetPlaced) error {
	return kafka.WriteJSON(ctx, p.BetPlaced, e.SessionID, e)
}

func (p *KafkaPublisher) PublishSettled(ctx context.Context, e events.DrawSettled) error {
	return kafka.WriteJSON(ctx, p.DrawSettled, e.SessionID, e)
}

func (p *KafkaPublisher) Close() error {
	var first error
	for _, w := range []*kafka.Writer{p.BetPlaced, p.DrawSettled} {
		if w == nil {
			continue
		}
		if err := w.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
