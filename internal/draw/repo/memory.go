package repo

import (
	"context"
	"sort"
	"sync"

	"github.com/radieske/number-draw-platform/internal/domain"
)

// Memory é a implementação em memória usada em testes e no modo local sem banco.
// Um único mutex dá a mesma garantia do lock de linha do Postgres.
type Memory struct {
	mu       sync.Mutex
	sessions map[string]domain.Session
	bets     map[string]domain.Bet
	order    []string // ids de aposta em ordem de inserção
	results  map[string]domain.SettlementResult
}

func NewMemory() *Memory {
	return &Memory{
		sessions: map[string]domain.Session{},
		bets:     map[string]domain.Bet{},
		results:  map[string]domain.SettlementResult{},
	}
}

func (m *Memory) InsertSession(_ context.Context, s domain.Session) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; ok {
		return false, nil
	}
	m.sessions[s.ID] = s
	return true, nil
}

func (m *Memory) GetSession(_ context.Context, id string) (domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return s, nil
}

func (m *Memory) ListSessions(_ context.Context, f SessionFilter) ([]domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Session
	for _, s := range m.sessions {
		if f.Date != "" && s.Date != f.Date {
			continue
		}
		if f.UpTo != "" && s.Date > f.UpTo {
			continue
		}
		if f.State != "" && s.State != f.State {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.ScheduledTime != b.ScheduledTime {
			return a.ScheduledTime < b.ScheduledTime
		}
		return a.ID < b.ID
	})
	return out, nil
}

func (m *Memory) MarkSettled(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return false, domain.ErrSessionNotFound
	}
	if s.State != domain.SessionActive {
		return false, nil
	}
	s.State = domain.SessionSettled
	m.sessions[id] = s
	return true, nil
}

func (m *Memory) AppendBet(_ context.Context, b domain.Bet, check BetCheck) (domain.Bet, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[b.SessionID]
	if !ok {
		return domain.Bet{}, false, domain.ErrSessionNotFound
	}
	if existing, ok := m.bets[b.ID]; ok {
		if err := sameBet(existing, b); err != nil {
			return domain.Bet{}, false, err
		}
		return existing, false, nil
	}
	if check != nil {
		if err := check(s, &b); err != nil {
			return domain.Bet{}, false, err
		}
	}
	m.bets[b.ID] = b
	m.order = append(m.order, b.ID)
	s.Pool = s.Pool.Add(b.Amount)
	m.sessions[s.ID] = s
	return b, true, nil
}

func (m *Memory) listBets(keep func(domain.Bet) bool) []domain.Bet {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Bet
	for _, id := range m.order {
		if b := m.bets[id]; keep(b) {
			out = append(out, b)
		}
	}
	return out
}

func (m *Memory) ListBetsBySession(_ context.Context, sessionID string) ([]domain.Bet, error) {
	return m.listBets(func(b domain.Bet) bool { return b.SessionID == sessionID }), nil
}

func (m *Memory) ListBetsByUser(_ context.Context, userID string) ([]domain.Bet, error) {
	return m.listBets(func(b domain.Bet) bool { return b.UserID == userID }), nil
}

func (m *Memory) InsertResult(_ context.Context, r domain.SettlementResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.results[r.SessionID]; ok {
		return domain.ErrAlreadySettled
	}
	m.results[r.SessionID] = r
	return nil
}

func (m *Memory) GetResultBySession(_ context.Context, sessionID string) (domain.SettlementResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.results[sessionID]
	if !ok {
		return domain.SettlementResult{}, domain.ErrNotFound
	}
	return r, nil
}

func (m *Memory) ListResults(_ context.Context, limit int) ([]domain.SettlementResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.SettlementResult, 0, len(m.results))
	for _, r := range m.results {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SettledAt.After(out[j].SettledAt) })
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) Ping(context.Context) error { return nil }
