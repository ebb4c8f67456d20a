package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// Evento publicado no tópico "bet_placed" depois do commit da aposta.
// Pool é o total da sessão já incluindo esta aposta.
type BetPlaced struct {
	BetID     string          `json:"betId"`
	UserID    string          `json:"userId"`
	SessionID string          `json:"sessionId"`
	Digit     int             `json:"digit"`
	Amount    decimal.Decimal `json:"amount"`
	PlacedAt  time.Time       `json:"placedAt"`
	Pool      decimal.Decimal `json:"pool"`
}
