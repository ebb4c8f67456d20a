package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// Winner é o crédito aplicado a uma aposta vencedora.
type Winner struct {
	UserID string          `json:"userId"`
	BetID  string          `json:"betId"`
	Payout decimal.Decimal `json:"payout"`
}

// Evento emitido pelo settlement-worker após liquidar uma sessão com resultado.
type DrawSettled struct {
	SessionID       string          `json:"sessionId"`
	ResultID        string          `json:"resultId"`
	WinningDigit    int             `json:"winningDigit"`
	TotalPool       decimal.Decimal `json:"totalPool"`
	AdminFee        decimal.Decimal `json:"adminFee"`
	WinnerCount     int             `json:"winnerCount"`
	PerWinnerPayout decimal.Decimal `json:"perWinnerPayout"`
	IsZeroBetWin    bool            `json:"isZeroBetWin"`
	SettledAt       time.Time       `json:"settledAt"`
	Winners         []Winner        `json:"winners"`
}

// DrawUpdate é a mensagem do canal Redis Pub/Sub consumida pelo hub WebSocket.
type DrawUpdate struct {
	SessionID string `json:"sessionId"`
	Type      string `json:"type"` // "pool" | "result"
	Payload   any    `json:"payload"`
}

const (
	UpdatePool   = "pool"
	UpdateResult = "result"
)
