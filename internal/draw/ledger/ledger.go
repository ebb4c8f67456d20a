// Package ledger registra apostas. É o único escritor do pool das sessões.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/radieske/number-draw-platform/internal/domain"
	"github.com/radieske/number-draw-platform/internal/draw/repo"
	"github.com/radieske/number-draw-platform/internal/shared/clock"
)

type Store interface {
	AppendBet(ctx context.Context, b domain.Bet, check repo.BetCheck) (domain.Bet, bool, error)
	ListBetsBySession(ctx context.Context, sessionID string) ([]domain.Bet, error)
	ListBetsByUser(ctx context.Context, userID string) ([]domain.Bet, error)
}

type PlaceBetRequest struct {
	BetID     string // opcional; torna a colocação idempotente
	SessionID string
	UserID    string
	Digit     int
	Amount    decimal.Decimal
}

type Ledger struct {
	store Store
	clock clock.Clock
	loc   *time.Location
}

func New(store Store, clk clock.Clock, loc *time.Location) *Ledger {
	if loc == nil {
		loc = time.UTC
	}
	return &Ledger{store: store, clock: clk, loc: loc}
}

// PlaceBet grava a aposta e incrementa o pool numa única unidade atômica.
// Com BetID já existente retorna a aposta gravada sem tocar no pool.
func (l *Ledger) PlaceBet(ctx context.Context, req PlaceBetRequest) (domain.Bet, error) {
	bet, _, err := l.place(ctx, req)
	return bet, err
}

// PlaceBetReplay é PlaceBet informando se a aposta foi criada agora (false = replay).
func (l *Ledger) PlaceBetReplay(ctx context.Context, req PlaceBetRequest) (domain.Bet, bool, error) {
	return l.place(ctx, req)
}

func (l *Ledger) place(ctx context.Context, req PlaceBetRequest) (domain.Bet, bool, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return domain.Bet{}, false, fmt.Errorf("%w: user id required", domain.ErrInvalidInput)
	}
	if req.Digit < 0 || req.Digit > 9 {
		return domain.Bet{}, false, domain.ErrInvalidDigit
	}
	if !req.Amount.IsPositive() {
		return domain.Bet{}, false, domain.ErrInvalidAmount
	}
	if !req.Amount.Equal(req.Amount.Round(2)) {
		return domain.Bet{}, false, fmt.Errorf("%w: at most 2 decimal places", domain.ErrInvalidAmount)
	}

	id := req.BetID
	if id == "" {
		id = uuid.NewString()
	}
	bet := domain.Bet{
		ID:        id,
		UserID:    req.UserID,
		SessionID: req.SessionID,
		Digit:     req.Digit,
		Amount:    req.Amount,
	}

	// o instante é lido com a sessão bloqueada, então cutoff e escrita são consistentes
	return l.store.AppendBet(ctx, bet, func(s domain.Session, b *domain.Bet) error {
		now := l.clock.Now()
		if s.State != domain.SessionActive {
			return fmt.Errorf("%w: session %s is %s", domain.ErrBettingClosed, s.ID, s.State)
		}
		cutoff, err := s.CutoffAt(l.loc)
		if err != nil {
			return err
		}
		if !now.Before(cutoff) {
			return fmt.Errorf("%w: cutoff %s %s passed", domain.ErrBettingClosed, s.Date, s.BettingCutoff)
		}
		b.PlacedAt = now
		return nil
	})
}

func (l *Ledger) ListBySession(ctx context.Context, sessionID string) ([]domain.Bet, error) {
	return l.store.ListBetsBySession(ctx, sessionID)
}

func (l *Ledger) ListByUser(ctx context.Context, userID string) ([]domain.Bet, error) {
	return l.store.ListBetsByUser(ctx, userID)
}
