package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/number-draw-platform/internal/domain"
)

// Memory espelha a semântica do Postgres com um único mutex; usado em testes.
type Memory struct {
	mu          sync.Mutex
	balances    map[string]decimal.Decimal
	txs         []domain.WalletTransaction
	byKey       map[string]int // idempotency_key -> índice em txs
	withdrawals map[string]domain.WithdrawalRequest
}

func NewMemory() *Memory {
	return &Memory{
		balances:    map[string]decimal.Decimal{},
		byKey:       map[string]int{},
		withdrawals: map[string]domain.WithdrawalRequest{},
	}
}

func (m *Memory) Balance(_ context.Context, userID string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[userID], nil
}

func (m *Memory) Apply(_ context.Context, t domain.WalletTransaction, delta decimal.Decimal) (domain.WalletTransaction, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i, ok := m.byKey[t.IdempotencyKey]; ok {
		if err := ownedBy("transaction", t.IdempotencyKey, m.txs[i].UserID, t.UserID); err != nil {
			return domain.WalletTransaction{}, false, err
		}
		return m.txs[i], false, nil
	}
	next := m.balances[t.UserID].Add(delta)
	if next.IsNegative() {
		return domain.WalletTransaction{}, false, domain.ErrInsufficientBalance
	}
	m.balances[t.UserID] = next
	m.byKey[t.IdempotencyKey] = len(m.txs)
	m.txs = append(m.txs, t)
	return t, true, nil
}

func (m *Memory) Void(_ context.Context, key, userID string) (domain.WalletTransaction, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.byKey[key]
	if !ok || m.txs[i].UserID != userID {
		return domain.WalletTransaction{}, false, domain.ErrNotFound
	}
	t := m.txs[i]
	if t.Status != domain.TxCompleted {
		return t, false, nil
	}
	t.Status = domain.TxFailed
	m.txs[i] = t
	m.balances[t.UserID] = m.balances[t.UserID].Add(t.Amount)
	return t, true, nil
}

func (m *Memory) CreateWithdrawal(_ context.Context, w domain.WithdrawalRequest, t domain.WalletTransaction) (domain.WithdrawalRequest, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.withdrawals[w.ID]; ok {
		if err := ownedBy("withdrawal", w.ID, existing.UserID, w.UserID); err != nil {
			return domain.WithdrawalRequest{}, false, err
		}
		return existing, false, nil
	}
	bal := m.balances[w.UserID]
	if w.Amount.GreaterThan(bal) {
		return domain.WithdrawalRequest{}, false, domain.ErrInsufficientBalance
	}
	m.balances[w.UserID] = bal.Sub(w.Amount)
	m.withdrawals[w.ID] = w
	m.byKey[t.IdempotencyKey] = len(m.txs)
	m.txs = append(m.txs, t)
	return w, true, nil
}

func (m *Memory) ResolveWithdrawal(_ context.Context, id string, status domain.WithdrawalStatus, txStatus domain.TxStatus, txKey, by string, at time.Time) (domain.WithdrawalRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.withdrawals[id]
	if !ok {
		return domain.WithdrawalRequest{}, domain.ErrWithdrawalNotFound
	}
	if w.Status != domain.WithdrawalPending {
		return w, domain.ErrAlreadyProcessed
	}
	w.Status, w.ProcessedAt, w.ProcessedBy = status, &at, by
	m.withdrawals[id] = w
	if i, ok := m.byKey[txKey]; ok {
		m.txs[i].Status = txStatus
	}
	return w, nil
}

func (m *Memory) GetWithdrawal(_ context.Context, id string) (domain.WithdrawalRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.withdrawals[id]
	if !ok {
		return domain.WithdrawalRequest{}, domain.ErrWithdrawalNotFound
	}
	return w, nil
}

func (m *Memory) ListWithdrawals(_ context.Context, status domain.WithdrawalStatus, userID string) ([]domain.WithdrawalRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.WithdrawalRequest
	for _, w := range m.withdrawals {
		if (status == "" || w.Status == status) && (userID == "" || w.UserID == userID) {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RequestedAt.Equal(out[j].RequestedAt) {
			return out[i].RequestedAt.Before(out[j].RequestedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) ListTransactions(_ context.Context, userID string, limit int) ([]domain.WalletTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []domain.WalletTransaction
	for i := len(m.txs) - 1; i >= 0 && len(out) < limit; i-- {
		if m.txs[i].UserID == userID {
			out = append(out, m.txs[i])
		}
	}
	return out, nil
}

func (m *Memory) Ping(context.Context) error { return nil }
