// Package notify entrega avisos de prêmio aos usuários. Falha de entrega
// nunca afeta o estado financeiro: o crédito já foi aplicado antes do evento.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const KindWin = "win"

type Notification struct {
	Kind         string          `json:"kind"`
	UserID       string          `json:"userId"`
	SessionID    string          `json:"sessionId"`
	BetID        string          `json:"betId"`
	WinningDigit int             `json:"winningDigit"`
	Payout       decimal.Decimal `json:"payout"`
	SettledAt    time.Time       `json:"settledAt"`
}

// Key identifica a notificação (idempotência do lado do receptor).
func (n Notification) Key() string {
	return n.Kind + ":" + n.SessionID + ":" + n.UserID + ":" + n.BetID
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Webhook faz POST JSON da notificação; 2xx é sucesso.
type Webhook struct {
	URL  string
	HTTP *http.Client
}

func NewWebhook(url string) *Webhook {
	return &Webhook{URL: url, HTTP: &http.Client{Timeout: 3 * time.Second}}
}

func (w *Webhook) Notify(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", n.Key())
	res, err := w.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		return fmt.Errorf("webhook http %d", res.StatusCode)
	}
	return nil
}

// LogNotifier só registra a notificação; usado quando não há webhook configurado.
type LogNotifier struct{ Log *zap.Logger }

func (l LogNotifier) Notify(_ context.Context, n Notification) error {
	l.Log.Info("winner notification",
		zap.String("user_id", n.UserID),
		zap.String("session_id", n.SessionID),
		zap.String("bet_id", n.BetID),
		zap.String("payout", n.Payout.String()),
	)
	return nil
}
