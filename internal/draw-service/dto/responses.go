package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/number-draw-platform/internal/domain"
	"github.com/radieske/number-draw-platform/pkg/contracts/events"
)

type SessionsResponse struct {
	Sessions []domain.Session `json:"sessions"`
}

type BetsResponse struct {
	Bets []domain.Bet `json:"bets"`
}

// ResultResponse é o resultado de uma sessão; Source diz se veio do cache ou do banco.
type ResultResponse struct {
	SessionID       string          `json:"sessionId"`
	ResultID        string          `json:"resultId"`
	WinningDigit    int             `json:"winningDigit"`
	TotalPool       decimal.Decimal `json:"totalPool"`
	AdminFee        decimal.Decimal `json:"adminFee"`
	WinnerCount     int             `json:"winnerCount"`
	PerWinnerPayout decimal.Decimal `json:"perWinnerPayout"`
	IsZeroBetWin    bool            `json:"isZeroBetWin"`
	SettledAt       time.Time       `json:"settledAt"`
	Source          string          `json:"source"`
}

func ResultFromDomain(r domain.SettlementResult) ResultResponse {
	return ResultResponse{
		SessionID: r.SessionID, ResultID: r.ID, WinningDigit: r.WinningDigit,
		TotalPool: r.TotalPool, AdminFee: r.AdminFee, WinnerCount: r.WinnerCount,
		PerWinnerPayout: r.PerWinnerPayout, IsZeroBetWin: r.IsZeroBetWin,
		SettledAt: r.SettledAt, Source: "db",
	}
}

func ResultFromEvent(e events.DrawSettled) ResultResponse {
	return ResultResponse{
		SessionID: e.SessionID, ResultID: e.ResultID, WinningDigit: e.WinningDigit,
		TotalPool: e.TotalPool, AdminFee: e.AdminFee, WinnerCount: e.WinnerCount,
		PerWinnerPayout: e.PerWinnerPayout, IsZeroBetWin: e.IsZeroBetWin,
		SettledAt: e.SettledAt, Source: "cache",
	}
}

type ResultsResponse struct {
	Results []ResultResponse `json:"results"`
}

// SettleResponse é a resposta do pedido manual de liquidação.
type SettleResponse struct {
	SessionID string               `json:"sessionId"`
	Status    string               `json:"status"` // settled | closed_without_bets
	Result    *ResultResponse      `json:"result,omitempty"`
	Payouts   []domain.Payout      `json:"payouts,omitempty"`
	Totals    *[10]decimal.Decimal `json:"totalsByDigit,omitempty"`
}
