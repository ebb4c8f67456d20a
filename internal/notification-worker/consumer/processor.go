package consumer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/number-draw-platform/internal/notification-worker/notify"
	"github.com/radieske/number-draw-platform/internal/shared/kafka"
	"github.com/radieske/number-draw-platform/pkg/contracts/events"
	"github.com/radieske/number-draw-platform/pkg/contracts/topics"
)

type Reader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// Cache é o Redis de leitura do draw-service mais o canal de Pub/Sub do hub WebSocket.
type Cache interface {
	SetPool(ctx context.Context, sessionID string, pool decimal.Decimal) error
	SetResult(ctx context.Context, ev events.DrawSettled) error
	Broadcast(ctx context.Context, channel string, upd events.DrawUpdate) error
}

type Dispatcher interface {
	Dispatch(ctx context.Context, n notify.Notification) bool
}

// PoolPayload é o corpo de uma atualização de pool no WebSocket.
type PoolPayload struct {
	Pool     decimal.Decimal `json:"pool"`
	Digit    int             `json:"digit"`
	Amount   decimal.Decimal `json:"amount"`
	PlacedAt time.Time       `json:"placedAt"`
}

// Processor consome bet_placed e draw_settled, atualiza o cache, faz o broadcast
// e notifica vencedores. Callbacks de métricas podem ser usadas para monitoramento de cada etapa
type Processor struct {
	Log        *zap.Logger
	Reader     Reader
	Cache      Cache
	Dispatcher Dispatcher
	Channel    string // canal Pub/Sub do hub

	// vazios usam os nomes padrão de pkg/contracts/topics
	BetPlacedTopic   string
	DrawSettledTopic string

	OnConsumed func()       // métricas (counter++)
	OnCached   func()       // métricas
	OnNotified func()       // métricas (vencedor notificado)
	OnError    func(string) // métricas por fase
}

// Run inicia o loop principal de consumo até o contexto ser cancelado.
func (p *Processor) Run(ctx context.Context) error {
	for {
		m, err := p.Reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.Log.Warn("kafka read failed", zap.Error(err))
			p.fail("read")
			time.Sleep(500 * time.Millisecond)
			continue
		}
		if p.OnConsumed != nil {
			p.OnConsumed()
		}
		p.Handle(ctx, m)
	}
}

// Handle processa uma mensagem. Nada aqui é retentado via Kafka: cache e broadcast
// são best-effort e a entrega de notificações tem retry/DLQ próprios.
func (p *Processor) Handle(ctx context.Context, m kafka.Message) {
	switch m.Topic {
	case orDefault(p.BetPlacedTopic, topics.BetPlaced):
		var ev events.BetPlaced
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			p.Log.Warn("invalid bet_placed message", zap.Error(err))
			p.fail("decode")
			return
		}
		p.betPlaced(ctx, ev)
	case orDefault(p.DrawSettledTopic, topics.DrawSettled):
		var ev events.DrawSettled
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			p.Log.Warn("invalid draw_settled message", zap.Error(err))
			p.fail("decode")
			return
		}
		p.drawSettled(ctx, ev)
	default:
		p.Log.Warn("message from unexpected topic", zap.String("topic", m.Topic))
		p.fail("topic")
	}
}

func (p *Processor) betPlaced(ctx context.Context, ev events.BetPlaced) {
	if err := p.Cache.SetPool(ctx, ev.SessionID, ev.Pool); err != nil {
		p.Log.Warn("redis set pool failed", zap.String("session_id", ev.SessionID), zap.Error(err))
		p.fail("cache")
	} else if p.OnCached != nil {
		p.OnCached()
	}
	p.broadcast(ctx, events.DrawUpdate{
		SessionID: ev.SessionID,
		Type:      events.UpdatePool,
		Payload:   PoolPayload{Pool: ev.Pool, Digit: ev.Digit, Amount: ev.Amount, PlacedAt: ev.PlacedAt},
	})
}

func (p *Processor) drawSettled(ctx context.Context, ev events.DrawSettled) {
	if err := p.Cache.SetResult(ctx, ev); err != nil {
		p.Log.Warn("redis set result failed", zap.String("session_id", ev.SessionID), zap.Error(err))
		p.fail("cache")
	} else if p.OnCached != nil {
		p.OnCached()
	}

	// o feed público não expõe quem ganhou
	public := ev
	public.Winners = nil
	p.broadcast(ctx, events.DrawUpdate{SessionID: ev.SessionID, Type: events.UpdateResult, Payload: public})

	for _, w := range ev.Winners {
		n := notify.Notification{
			Kind:         notify.KindWin,
			UserID:       w.UserID,
			SessionID:    ev.SessionID,
			BetID:        w.BetID,
			WinningDigit: ev.WinningDigit,
			Payout:       w.Payout,
			SettledAt:    ev.SettledAt,
		}
		if p.Dispatcher.Dispatch(ctx, n) && p.OnNotified != nil {
			p.OnNotified()
		}
	}
	p.Log.Info("draw settled processed",
		zap.String("session_id", ev.SessionID),
		zap.Int("winning_digit", ev.WinningDigit),
		zap.Int("winners", len(ev.Winners)),
	)
}

func (p *Processor) broadcast(ctx context.Context, upd events.DrawUpdate) {
	if p.Channel == "" {
		return
	}
	bctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	if err := p.Cache.Broadcast(bctx, p.Channel, upd); err != nil {
		p.Log.Warn("ws broadcast publish failed", zap.String("session_id", upd.SessionID), zap.Error(err))
		p.fail("broadcast")
	}
}

func (p *Processor) fail(stage string) {
	if p.OnError != nil {
		p.OnError(stage)
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
