package notify

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DeadLetter recebe notificações que esgotaram as tentativas.
type DeadLetter func(ctx context.Context, key string, n Notification) error

// Dispatcher tenta entregar com backoff linear e manda para a DLQ depois de MaxRetries.
type Dispatcher struct {
	Log        *zap.Logger
	Notifier   Notifier
	MaxRetries int
	Backoff    time.Duration
	DLQ        DeadLetter // opcional

	OnDelivered func()       // métricas
	OnDead      func()       // métricas
	OnError     func(string) // métricas por fase
}

// Dispatch retorna false quando a notificação acabou na DLQ (ou foi perdida).
func (d *Dispatcher) Dispatch(ctx context.Context, n Notification) bool {
	var err error
	for attempt := 0; attempt <= d.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return false
			case <-time.After(time.Duration(attempt) * d.Backoff):
			}
		}
		if err = d.Notifier.Notify(ctx, n); err == nil {
			if d.OnDelivered != nil {
				d.OnDelivered()
			}
			return true
		}
		if d.OnError != nil {
			d.OnError("notify")
		}
	}

	d.Log.Warn("notification failed, sending to dlq",
		zap.String("key", n.Key()), zap.Int("attempts", d.MaxRetries+1), zap.Error(err))
	if d.DLQ != nil {
		if derr := d.DLQ(ctx, n.Key(), n); derr != nil {
			d.Log.Error("dlq write failed", zap.String("key", n.Key()), zap.Error(derr))
			if d.OnError != nil {
				d.OnError("dlq")
			}
			return false
		}
	}
	if d.OnDead != nil {
		d.OnDead()
	}
	return false
}
