package dto

import "github.com/shopspring/decimal"

type PlaceBetRequest struct {
	BetID     string          `json:"betId,omitempty" validate:"omitempty,max=64"` // opcional; reenvio idempotente
	SessionID string          `json:"sessionId" validate:"required,max=64"`
	Digit     *int            `json:"digit" validate:"required,min=0,max=9"`
	Amount    decimal.Decimal `json:"amount"`
}

type CreateSessionRequest struct {
	Name          string `json:"name,omitempty" validate:"max=64"`
	ScheduledTime string `json:"scheduledTime" validate:"required,datetime=15:04"`
	Date          string `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	BettingCutoff string `json:"bettingCutoff,omitempty" validate:"omitempty,datetime=15:04"`
}
