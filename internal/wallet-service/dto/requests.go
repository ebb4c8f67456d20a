package dto

import "github.com/shopspring/decimal"

// Amount aceita número ou string JSON; a positividade e os mínimos são checados no handler.

type DepositRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Ref    string          `json:"ref,omitempty" validate:"omitempty,max=128"` // idempotência do depósito
}

type DebitBetRequest struct {
	BetID  string          `json:"betId" validate:"required,max=128"`
	Amount decimal.Decimal `json:"amount"`
}

type VoidBetRequest struct {
	BetID string `json:"betId" validate:"required,max=128"`
}

type WithdrawalRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type ResolveWithdrawalRequest struct {
	Decision string `json:"decision" validate:"required,oneof=approved rejected"`
}
