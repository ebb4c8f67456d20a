// Package ledger é o único escritor de transações que afetam saldo.
// Toda escrita carrega uma idempotency key estruturada; repetir a chamada nunca duplica efeito.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/radieske/number-draw-platform/internal/domain"
	"github.com/radieske/number-draw-platform/internal/shared/clock"
)

type Store interface {
	Balance(ctx context.Context, userID string) (decimal.Decimal, error)
	Apply(ctx context.Context, t domain.WalletTransaction, delta decimal.Decimal) (domain.WalletTransaction, bool, error)
	Void(ctx context.Context, key, userID string) (domain.WalletTransaction, bool, error)
	CreateWithdrawal(ctx context.Context, w domain.WithdrawalRequest, t domain.WalletTransaction) (domain.WithdrawalRequest, bool, error)
	ResolveWithdrawal(ctx context.Context, id string, status domain.WithdrawalStatus, txStatus domain.TxStatus, txKey, by string, at time.Time) (domain.WithdrawalRequest, error)
	GetWithdrawal(ctx context.Context, id string) (domain.WithdrawalRequest, error)
	ListWithdrawals(ctx context.Context, status domain.WithdrawalStatus, userID string) ([]domain.WithdrawalRequest, error)
	ListTransactions(ctx context.Context, userID string, limit int) ([]domain.WalletTransaction, error)
}

// Chaves de idempotência
func BetKey(betID string) string           { return "bet:" + betID }
func DepositKey(userID, ref string) string { return "deposit:" + userID + ":" + ref }
func WithdrawalKey(id string) string       { return "withdrawal:" + id }
func WithdrawalRefundKey(id string) string { return "withdrawal-refund:" + id }

type Ledger struct {
	store Store
	clock clock.Clock
}

func New(store Store, clk clock.Clock) *Ledger {
	return &Ledger{store: store, clock: clk}
}

func validate(userID string, amount decimal.Decimal) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: user id required", domain.ErrInvalidInput)
	}
	if !amount.IsPositive() {
		return domain.ErrInvalidAmount
	}
	if !amount.Equal(amount.Round(2)) {
		return fmt.Errorf("%w: at most 2 decimal places", domain.ErrInvalidAmount)
	}
	return nil
}

func (l *Ledger) newTx(userID string, kind domain.TxKind, amount decimal.Decimal, status domain.TxStatus, key, desc string) domain.WalletTransaction {
	return domain.WalletTransaction{
		ID:             uuid.NewString(),
		UserID:         userID,
		Kind:           kind,
		Amount:         amount,
		Status:         status,
		Description:    desc,
		Timestamp:      l.clock.Now(),
		IdempotencyKey: key,
	}
}

// Credit credita um prêmio. Chave já usada é no-op (applied=false).
func (l *Ledger) Credit(ctx context.Context, userID string, amount decimal.Decimal, idempotencyKey, description string) (bool, error) {
	if err := validate(userID, amount); err != nil {
		return false, err
	}
	if idempotencyKey == "" {
		return false, fmt.Errorf("%w: idempotency key required", domain.ErrInvalidInput)
	}
	_, applied, err := l.store.Apply(ctx, l.newTx(userID, domain.TxWin, amount, domain.TxCompleted, idempotencyKey, description), amount)
	return applied, err
}

// Deposit credita saldo; ref informado torna a operação idempotente.
func (l *Ledger) Deposit(ctx context.Context, userID string, amount decimal.Decimal, ref string) (domain.WalletTransaction, error) {
	if err := validate(userID, amount); err != nil {
		return domain.WalletTransaction{}, err
	}
	if ref == "" {
		ref = uuid.NewString()
	}
	t, _, err := l.store.Apply(ctx, l.newTx(userID, domain.TxDeposit, amount, domain.TxCompleted, DepositKey(userID, ref), "Deposit"), amount)
	return t, err
}

// DebitBet debita o valor de uma aposta antes da colocação; idempotente por betID.
func (l *Ledger) DebitBet(ctx context.Context, userID string, amount decimal.Decimal, betID string) (domain.WalletTransaction, error) {
	if err := validate(userID, amount); err != nil {
		return domain.WalletTransaction{}, err
	}
	if betID == "" {
		return domain.WalletTransaction{}, fmt.Errorf("%w: bet id required", domain.ErrInvalidInput)
	}
	t, _, err := l.store.Apply(ctx, l.newTx(userID, domain.TxBet, amount, domain.TxCompleted, BetKey(betID), "Bet "+betID), amount.Neg())
	if err == nil && t.Status == domain.TxFailed {
		// um débito anulado não é reaproveitado: a aposta precisa de um id novo
		return t, fmt.Errorf("%w: bet %s was voided", domain.ErrAlreadyProcessed, betID)
	}
	return t, err
}

// VoidBet compensa um débito de aposta cuja colocação falhou: transação failed e saldo devolvido.
func (l *Ledger) VoidBet(ctx context.Context, userID, betID string) (domain.WalletTransaction, error) {
	t, _, err := l.store.Void(ctx, BetKey(betID), userID)
	return t, err
}

// RequestWithdrawal debita na hora e deixa o pedido pending até a decisão do admin.
// requestID informado torna o pedido idempotente (replay offline); vazio gera um novo.
func (l *Ledger) RequestWithdrawal(ctx context.Context, userID string, amount decimal.Decimal, requestID string) (domain.WithdrawalRequest, error) {
	if err := validate(userID, amount); err != nil {
		return domain.WithdrawalRequest{}, err
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}
	now := l.clock.Now()
	w := domain.WithdrawalRequest{
		ID:          requestID,
		UserID:      userID,
		Amount:      amount,
		Status:      domain.WithdrawalPending,
		RequestedAt: now,
	}
	t := l.newTx(userID, domain.TxWithdrawal, amount, domain.TxPending, WithdrawalKey(w.ID), "Withdrawal request")
	stored, _, err := l.store.CreateWithdrawal(ctx, w, t)
	if err != nil {
		return domain.WithdrawalRequest{}, err
	}
	return stored, nil
}

// ResolveWithdrawal aprova ou rejeita um pedido pending. Rejeitar NÃO devolve o saldo;
// a devolução é RefundWithdrawal.
func (l *Ledger) ResolveWithdrawal(ctx context.Context, id string, decision domain.WithdrawalStatus, processedBy string) (domain.WithdrawalRequest, error) {
	var txStatus domain.TxStatus
	switch decision {
	case domain.WithdrawalApproved:
		txStatus = domain.TxCompleted
	case domain.WithdrawalRejected:
		txStatus = domain.TxFailed
	default:
		return domain.WithdrawalRequest{}, fmt.Errorf("%w: decision %q", domain.ErrInvalidInput, decision)
	}
	return l.store.ResolveWithdrawal(ctx, id, decision, txStatus, WithdrawalKey(id), processedBy, l.clock.Now())
}

// RefundWithdrawal devolve o valor de um pedido rejeitado como crédito separado; idempotente.
func (l *Ledger) RefundWithdrawal(ctx context.Context, id string) (domain.WalletTransaction, error) {
	w, err := l.store.GetWithdrawal(ctx, id)
	if err != nil {
		return domain.WalletTransaction{}, err
	}
	if w.Status != domain.WithdrawalRejected {
		return domain.WalletTransaction{}, fmt.Errorf("%w: withdrawal %s is %s", domain.ErrInvalidInput, id, w.Status)
	}
	t := l.newTx(w.UserID, domain.TxDeposit, w.Amount, domain.TxCompleted, WithdrawalRefundKey(id), "Refund of rejected withdrawal "+id)
	t, _, err = l.store.Apply(ctx, t, w.Amount)
	return t, err
}

func (l *Ledger) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	return l.store.Balance(ctx, userID)
}

func (l *Ledger) Transactions(ctx context.Context, userID string, limit int) ([]domain.WalletTransaction, error) {
	return l.store.ListTransactions(ctx, userID, limit)
}

func (l *Ledger) Withdrawals(ctx context.Context, status domain.WithdrawalStatus, userID string) ([]domain.WithdrawalRequest, error) {
	return l.store.ListWithdrawals(ctx, status, userID)
}
