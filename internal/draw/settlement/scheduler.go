// Package settlement liquida sessões vencidas exatamente uma vez.
//
// A exclusão mútua entre ticks, instâncias e reinícios vem do estado durável:
// o INSERT do resultado é único por sessão e cada crédito tem chave de idempotência.
// Não existe nenhum conjunto em memória de "já liquidadas".
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/number-draw-platform/internal/domain"
	"github.com/radieske/number-draw-platform/internal/draw/engine"
	"github.com/radieske/number-draw-platform/internal/shared/clock"
	"github.com/radieske/number-draw-platform/pkg/contracts/events"
)

type Sessions interface {
	Get(ctx context.Context, id string) (domain.Session, error)
	ListDue(ctx context.Context, now time.Time) ([]domain.Session, error)
	MarkSettled(ctx context.Context, id string) (bool, error)
}

type Bets interface {
	ListBySession(ctx context.Context, sessionID string) ([]domain.Bet, error)
}

type Results interface {
	InsertResult(ctx context.Context, r domain.SettlementResult) error
	GetResultBySession(ctx context.Context, sessionID string) (domain.SettlementResult, error)
}

// Wallet aplica créditos; uma chave repetida é no-op (applied=false).
type Wallet interface {
	Credit(ctx context.Context, userID string, amount decimal.Decimal, idempotencyKey, description string) (bool, error)
}

type Publisher interface {
	PublishSettled(ctx context.Context, ev events.DrawSettled) error
}

// WinKey é a chave de idempotência do crédito de uma aposta vencedora.
func WinKey(sessionID, userID, betID string) string {
	return "win:" + sessionID + ":" + userID + ":" + betID
}

// Scheduler varre sessões vencidas e liquida cada uma.
// Callbacks de métricas podem ser usadas para monitoramento de cada etapa
type Scheduler struct {
	Log       *zap.Logger
	Clock     clock.Clock
	Location  *time.Location
	Sessions  Sessions
	Bets      Bets
	Results   Results
	Wallet    Wallet
	Publisher Publisher // opcional

	OnSettled func(domain.SettlementResult) // métricas
	OnEmpty   func(sessionID string)        // métricas
	OnCredit  func()                        // métricas (crédito aplicado)
	OnError   func(string)                  // métricas por fase
}

// Tick liquida todas as sessões vencidas em Clock.Now(). Erros por sessão são
// logados e não interrompem o tick; falha ao listar é retornada (o próximo tick tenta de novo).
func (s *Scheduler) Tick(ctx context.Context) error {
	now := s.Clock.Now()
	due, err := s.Sessions.ListDue(ctx, now)
	if err != nil {
		s.fail("list_due")
		s.log().Warn("list due sessions failed", zap.Error(err))
		return err
	}
	for _, sess := range due {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := s.SettleSessionOnce(ctx, sess.ID); err != nil {
			if errors.Is(err, domain.ErrAlreadySettled) {
				continue
			}
			s.log().Warn("settle session failed", zap.String("session_id", sess.ID), zap.Error(err))
		}
	}
	return nil
}

// SettleSessionOnce liquida uma sessão. Retorna ErrAlreadySettled quando outra
// execução já liquidou (inclusive quando esta chamada só completou uma liquidação
// interrompida). Outcome nil com erro nil indica sessão sem apostas.
func (s *Scheduler) SettleSessionOnce(ctx context.Context, sessionID string) (*engine.Outcome, error) {
	sess, err := s.Sessions.Get(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.fail("load_session")
		}
		return nil, err
	}
	if sess.State == domain.SessionSettled {
		return nil, domain.ErrAlreadySettled
	}

	// resultado persistido com sessão ainda ativa: liquidação interrompida
	existing, err := s.Results.GetResultBySession(ctx, sessionID)
	switch {
	case err == nil:
		return nil, s.recover(ctx, sess, existing)
	case !errors.Is(err, domain.ErrNotFound):
		s.fail("load_result")
		return nil, err
	}

	if !sess.IsDue(s.Clock.Now(), s.location()) {
		return nil, fmt.Errorf("%w: session %s draws at %s %s", domain.ErrNotDue, sess.ID, sess.Date, sess.ScheduledTime)
	}

	bets, err := s.Bets.ListBySession(ctx, sessionID)
	if err != nil {
		s.fail("load_bets")
		return nil, err
	}

	outcome, ok := engine.Settle(sess, bets)
	if !ok {
		// sessão vazia: encerra sem resultado e sem transações
		transitioned, err := s.Sessions.MarkSettled(ctx, sessionID)
		if err != nil {
			s.fail("mark_settled")
			return nil, err
		}
		if !transitioned {
			return nil, domain.ErrAlreadySettled
		}
		s.log().Info("session closed without bets", zap.String("session_id", sessionID))
		if s.OnEmpty != nil {
			s.OnEmpty(sessionID)
		}
		return nil, nil
	}
	if err := engine.Validate(outcome.Result); err != nil {
		s.fail("validate")
		return nil, fmt.Errorf("invalid settlement for %s: %w", sessionID, err)
	}

	outcome.Result.ID = uuid.NewString()
	outcome.Result.SettledAt = s.Clock.Now()
	if err := s.Results.InsertResult(ctx, outcome.Result); err != nil {
		if errors.Is(err, domain.ErrAlreadySettled) {
			// perdeu a corrida: garante os créditos do vencedor da corrida
			stored, gerr := s.Results.GetResultBySession(ctx, sessionID)
			if gerr != nil {
				s.fail("load_result")
				return nil, gerr
			}
			return nil, s.recover(ctx, sess, stored)
		}
		s.fail("insert_result")
		return nil, err
	}

	if err := s.credit(ctx, sess, outcome.Payouts); err != nil {
		return nil, err
	}
	transitioned, err := s.Sessions.MarkSettled(ctx, sessionID)
	if err != nil {
		s.fail("mark_settled")
		return nil, err
	}

	s.log().Info("session settled",
		zap.String("session_id", sessionID),
		zap.Int("winning_digit", outcome.Result.WinningDigit),
		zap.Bool("zero_bet_win", outcome.Result.IsZeroBetWin),
		zap.Int("winners", outcome.Result.WinnerCount),
		zap.String("pool", outcome.Result.TotalPool.String()),
		zap.String("totals", engine.Summary(outcome)),
	)
	// se um recover concorrente já fez a transição, o evento saiu por ele
	if transitioned {
		s.settled(ctx, outcome.Result, outcome.Payouts)
	}
	return &outcome, nil
}

// recover completa a liquidação a partir de um resultado já persistido.
// Créditos são reaplicados com as mesmas chaves, então nada é pago duas vezes.
func (s *Scheduler) recover(ctx context.Context, sess domain.Session, r domain.SettlementResult) error {
	var payouts []domain.Payout
	if !r.IsZeroBetWin {
		bets, err := s.Bets.ListBySession(ctx, sess.ID)
		if err != nil {
			s.fail("load_bets")
			return err
		}
		payouts = engine.Payouts(sess.ID, r.WinningDigit, bets)
	}
	if err := s.credit(ctx, sess, payouts); err != nil {
		return err
	}
	transitioned, err := s.Sessions.MarkSettled(ctx, sess.ID)
	if err != nil {
		s.fail("mark_settled")
		return err
	}
	if transitioned {
		s.log().Info("session settlement recovered", zap.String("session_id", sess.ID), zap.String("result_id", r.ID))
		s.settled(ctx, r, payouts)
	}
	return domain.ErrAlreadySettled
}

func (s *Scheduler) credit(ctx context.Context, sess domain.Session, payouts []domain.Payout) error {
	for _, p := range payouts {
		desc := fmt.Sprintf("Win credit: %s (%s %s)", sessionLabel(sess), sess.Date, sess.ScheduledTime)
		applied, err := s.Wallet.Credit(ctx, p.UserID, p.Amount, WinKey(sess.ID, p.UserID, p.BetID), desc)
		if err != nil {
			s.fail("credit")
			return fmt.Errorf("credit bet %s: %w", p.BetID, err)
		}
		if applied && s.OnCredit != nil {
			s.OnCredit()
		}
	}
	return nil
}

// settled roda depois dos commits: evento best-effort, nunca falha a liquidação.
func (s *Scheduler) settled(ctx context.Context, r domain.SettlementResult, payouts []domain.Payout) {
	if s.OnSettled != nil {
		s.OnSettled(r)
	}
	if s.Publisher == nil {
		return
	}
	ev := events.DrawSettled{
		SessionID:       r.SessionID,
		ResultID:        r.ID,
		WinningDigit:    r.WinningDigit,
		TotalPool:       r.TotalPool,
		AdminFee:        r.AdminFee,
		WinnerCount:     r.WinnerCount,
		PerWinnerPayout: r.PerWinnerPayout,
		IsZeroBetWin:    r.IsZeroBetWin,
		SettledAt:       r.SettledAt,
		Winners:         make([]events.Winner, 0, len(payouts)),
	}
	for _, p := range payouts {
		ev.Winners = append(ev.Winners, events.Winner{UserID: p.UserID, BetID: p.BetID, Payout: p.Amount})
	}
	if err := s.Publisher.PublishSettled(ctx, ev); err != nil {
		s.fail("publish")
		s.log().Warn("publish draw_settled failed", zap.String("session_id", r.SessionID), zap.Error(err))
	}
}

func sessionLabel(sess domain.Session) string {
	if sess.Name != "" {
		return sess.Name
	}
	return sess.ID
}

func (s *Scheduler) fail(stage string) {
	if s.OnError != nil {
		s.OnError(stage)
	}
}

func (s *Scheduler) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

func (s *Scheduler) location() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}
