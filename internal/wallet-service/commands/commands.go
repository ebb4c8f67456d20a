// Package commands é a camada de comando do wallet-service: mínimos de valor,
// captura na fila offline quando o Postgres está fora e o replay dessas ações.
package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/number-draw-platform/internal/domain"
	"github.com/radieske/number-draw-platform/internal/shared/db"
	"github.com/radieske/number-draw-platform/internal/shared/offline"
)

const (
	KindDeposit    = "wallet.deposit"
	KindWithdrawal = "wallet.withdrawal"
	KindVoidBet    = "wallet.void_bet"
)

type Ledger interface {
	Deposit(ctx context.Context, userID string, amount decimal.Decimal, ref string) (domain.WalletTransaction, error)
	DebitBet(ctx context.Context, userID string, amount decimal.Decimal, betID string) (domain.WalletTransaction, error)
	VoidBet(ctx context.Context, userID, betID string) (domain.WalletTransaction, error)
	RequestWithdrawal(ctx context.Context, userID string, amount decimal.Decimal, requestID string) (domain.WithdrawalRequest, error)
}

type Queue interface {
	Enqueue(ctx context.Context, kind string, payload any) (offline.Action, error)
}

type Limits struct {
	MinDeposit    decimal.Decimal
	MinWithdrawal decimal.Decimal
}

type depositPayload struct {
	UserID string          `json:"userId"`
	Amount decimal.Decimal `json:"amount"`
	Ref    string          `json:"ref"`
}

type withdrawalPayload struct {
	ID     string          `json:"id"`
	UserID string          `json:"userId"`
	Amount decimal.Decimal `json:"amount"`
}

type voidPayload struct {
	UserID string `json:"userId"`
	BetID  string `json:"betId"`
}

type Service struct {
	Log    *zap.Logger
	Ledger Ledger
	Queue  Queue // nil desliga a captura offline
	Limits Limits

	OnQueued func(kind string) // métricas
}

func checkMin(amount, min decimal.Decimal, what string) error {
	if !amount.IsPositive() {
		return domain.ErrInvalidAmount
	}
	if min.IsPositive() && amount.LessThan(min) {
		return fmt.Errorf("%w: minimum %s is %s", domain.ErrInvalidInput, what, min.String())
	}
	return nil
}

// capture enfileira o comando se err for indisponibilidade do storage.
func (s *Service) capture(ctx context.Context, err error, kind string, payload any) (*offline.Action, error) {
	if s.Queue == nil || !db.IsUnavailable(err) {
		return nil, err
	}
	a, qerr := s.Queue.Enqueue(ctx, kind, payload)
	if qerr != nil {
		s.log().Error("offline capture failed", zap.String("kind", kind), zap.Error(qerr))
		return nil, err
	}
	s.log().Warn("storage unavailable, command queued",
		zap.String("kind", kind), zap.Int64("action_id", a.ID), zap.Error(err))
	if s.OnQueued != nil {
		s.OnQueued(kind)
	}
	return &a, nil
}

// Deposit retorna a ação enfileirada (e transação vazia) quando o storage está fora.
func (s *Service) Deposit(ctx context.Context, userID string, amount decimal.Decimal, ref string) (domain.WalletTransaction, *offline.Action, error) {
	if err := checkMin(amount, s.Limits.MinDeposit, "deposit"); err != nil {
		return domain.WalletTransaction{}, nil, err
	}
	if ref == "" {
		// replay offline precisa da mesma chave
		ref = uuid.NewString()
	}
	t, err := s.Ledger.Deposit(ctx, userID, amount, ref)
	if err != nil {
		q, err := s.capture(ctx, err, KindDeposit, depositPayload{UserID: userID, Amount: amount, Ref: ref})
		return domain.WalletTransaction{}, q, err
	}
	return t, nil, nil
}

// DebitBet nunca é enfileirado: sem débito confirmado a aposta não é colocada.
func (s *Service) DebitBet(ctx context.Context, userID string, amount decimal.Decimal, betID string) (domain.WalletTransaction, error) {
	return s.Ledger.DebitBet(ctx, userID, amount, betID)
}

func (s *Service) VoidBet(ctx context.Context, userID, betID string) (domain.WalletTransaction, *offline.Action, error) {
	t, err := s.Ledger.VoidBet(ctx, userID, betID)
	if err != nil {
		q, err := s.capture(ctx, err, KindVoidBet, voidPayload{UserID: userID, BetID: betID})
		return domain.WalletTransaction{}, q, err
	}
	return t, nil, nil
}

func (s *Service) RequestWithdrawal(ctx context.Context, userID string, amount decimal.Decimal) (domain.WithdrawalRequest, *offline.Action, error) {
	if err := checkMin(amount, s.Limits.MinWithdrawal, "withdrawal"); err != nil {
		return domain.WithdrawalRequest{}, nil, err
	}
	// id fixado antes da escrita: o replay offline reaproveita o mesmo pedido
	id := uuid.NewString()
	w, err := s.Ledger.RequestWithdrawal(ctx, userID, amount, id)
	if err != nil {
		q, err := s.capture(ctx, err, KindWithdrawal, withdrawalPayload{ID: id, UserID: userID, Amount: amount})
		return domain.WithdrawalRequest{}, q, err
	}
	return w, nil, nil
}

// Handlers reaplica as ações capturadas direto no ledger (sem recaptura).
func (s *Service) Handlers() offline.Handlers {
	return offline.Handlers{
		KindDeposit: func(ctx context.Context, a offline.Action) error {
			var p depositPayload
			if err := json.Unmarshal(a.Payload, &p); err != nil {
				return err
			}
			_, err := s.Ledger.Deposit(ctx, p.UserID, p.Amount, p.Ref)
			return err
		},
		KindWithdrawal: func(ctx context.Context, a offline.Action) error {
			var p withdrawalPayload
			if err := json.Unmarshal(a.Payload, &p); err != nil {
				return err
			}
			_, err := s.Ledger.RequestWithdrawal(ctx, p.UserID, p.Amount, p.ID)
			return err
		},
		KindVoidBet: func(ctx context.Context, a offline.Action) error {
			var p voidPayload
			if err := json.Unmarshal(a.Payload, &p); err != nil {
				return err
			}
			_, err := s.Ledger.VoidBet(ctx, p.UserID, p.BetID)
			return err
		},
	}
}

func (s *Service) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}
