package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type SessionState string

const (
	SessionActive  SessionState = "Active"
	SessionSettled SessionState = "Settled"
)

const (
	CreatedBySystem = "system"
	CreatedByAdmin  = "admin"
)

// Session é um sorteio agendado. Date e os horários são interpretados no fuso do sorteio.
type Session struct {
	ID            string          `json:"id"`
	Name          string          `json:"name,omitempty"`
	ScheduledTime string          `json:"scheduledTime"` // "HH:MM"
	Date          string          `json:"date"`          // "YYYY-MM-DD"
	BettingCutoff string          `json:"bettingCutoff"` // "HH:MM"
	Pool          decimal.Decimal `json:"pool"`
	State         SessionState    `json:"state"`
	CreatedBy     string          `json:"createdBy"`
}

// Bet é imutável depois de criada.
type Bet struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId"`
	SessionID string          `json:"sessionId"`
	Digit     int             `json:"digit"`
	Amount    decimal.Decimal `json:"amount"`
	PlacedAt  time.Time       `json:"placedAt"`
}

// SettlementResult existe no máximo uma vez por SessionID.
type SettlementResult struct {
	ID              string          `json:"id"`
	SessionID       string          `json:"sessionId"`
	WinningDigit    int             `json:"winningDigit"`
	TotalPool       decimal.Decimal `json:"totalPool"`
	AdminFee        decimal.Decimal `json:"adminFee"`
	WinnerCount     int             `json:"winnerCount"`
	PerWinnerPayout decimal.Decimal `json:"perWinnerPayout"`
	IsZeroBetWin    bool            `json:"isZeroBetWin"`
	SettledAt       time.Time       `json:"settledAt"`
}

type TxKind string

const (
	TxDeposit    TxKind = "deposit"
	TxWithdrawal TxKind = "withdrawal"
	TxBet        TxKind = "bet"
	TxWin        TxKind = "win"
)

type TxStatus string

const (
	TxPending   TxStatus = "pending"
	TxCompleted TxStatus = "completed"
	TxFailed    TxStatus = "failed"
)

type WalletTransaction struct {
	ID             string          `json:"id"`
	UserID         string          `json:"userId"`
	Kind           TxKind          `json:"kind"`
	Amount         decimal.Decimal `json:"amount"`
	Status         TxStatus        `json:"status"`
	Description    string          `json:"description,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
	IdempotencyKey string          `json:"idempotencyKey"`
}

type WithdrawalStatus string

const (
	WithdrawalPending  WithdrawalStatus = "pending"
	WithdrawalApproved WithdrawalStatus = "approved"
	WithdrawalRejected WithdrawalStatus = "rejected"
)

type WithdrawalRequest struct {
	ID          string           `json:"id"`
	UserID      string           `json:"userId"`
	Amount      decimal.Decimal  `json:"amount"`
	Status      WithdrawalStatus `json:"status"`
	RequestedAt time.Time        `json:"requestedAt"`
	ProcessedAt *time.Time       `json:"processedAt,omitempty"`
	ProcessedBy string           `json:"processedBy,omitempty"`
}

// Payout é o crédito devido a uma aposta vencedora.
type Payout struct {
	BetID  string          `json:"betId"`
	UserID string          `json:"userId"`
	Amount decimal.Decimal `json:"amount"`
}
