package dto

import (
	"github.com/shopspring/decimal"

	"github.com/radieske/number-draw-platform/internal/domain"
)

type WalletResponse struct {
	UserID  string          `json:"userId"`
	Balance decimal.Decimal `json:"balance"`
}

type TransactionsResponse struct {
	UserID       string                     `json:"userId"`
	Transactions []domain.WalletTransaction `json:"transactions"`
}

type WithdrawalsResponse struct {
	Withdrawals []domain.WithdrawalRequest `json:"withdrawals"`
}
