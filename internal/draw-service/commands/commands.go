// Package commands orquestra a colocação de apostas do draw-service:
// débito na carteira, gravação da aposta, compensação e evento bet_placed.
package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/number-draw-platform/internal/domain"
	"github.com/radieske/number-draw-platform/internal/draw/ledger"
	"github.com/radieske/number-draw-platform/internal/shared/db"
	"github.com/radieske/number-draw-platform/internal/shared/offline"
	"github.com/radieske/number-draw-platform/pkg/contracts/events"
)

const KindPlaceBet = "draw.place_bet"

type Ledger interface {
	PlaceBetReplay(ctx context.Context, req ledger.PlaceBetRequest) (domain.Bet, bool, error)
}

type Sessions interface {
	Get(ctx context.Context, id string) (domain.Session, error)
}

type Wallet interface {
	DebitBet(ctx context.Context, token string, amount decimal.Decimal, betID string) error
	VoidBet(ctx context.Context, token string, betID string) error
}

type Publisher interface {
	PublishBetPlaced(ctx context.Context, e events.BetPlaced) error
}

type Queue interface {
	Enqueue(ctx context.Context, kind string, payload any) (offline.Action, error)
}

// PlaceBet é o comando vindo da API. Token é o bearer do usuário, repassado à carteira.
type PlaceBet struct {
	BetID     string
	SessionID string
	UserID    string
	Digit     int
	Amount    decimal.Decimal
	Token     string
}

type placeBetPayload struct {
	BetID     string          `json:"betId"`
	SessionID string          `json:"sessionId"`
	UserID    string          `json:"userId"`
	Digit     int             `json:"digit"`
	Amount    decimal.Decimal `json:"amount"`
}

type Service struct {
	Log       *zap.Logger
	Ledger    Ledger
	Sessions  Sessions
	Wallet    Wallet
	Publisher Publisher // opcional
	Queue     Queue     // nil desliga a captura offline
	MinBet    decimal.Decimal

	// Tokens emite um token de serviço para o replay offline, quando o do usuário já não existe.
	Tokens func(userID string) (string, error)

	OnPlaced func()       // métricas
	OnQueued func()       // métricas
	OnVoided func()       // métricas
	OnError  func(string) // métricas por fase
}

func (s *Service) validate(c PlaceBet) error {
	if c.UserID == "" {
		return fmt.Errorf("%w: user id required", domain.ErrInvalidInput)
	}
	if c.SessionID == "" {
		return fmt.Errorf("%w: session id required", domain.ErrInvalidInput)
	}
	if c.Digit < 0 || c.Digit > 9 {
		return domain.ErrInvalidDigit
	}
	if !c.Amount.IsPositive() {
		return domain.ErrInvalidAmount
	}
	if !c.Amount.Equal(c.Amount.Round(2)) {
		return fmt.Errorf("%w: at most 2 decimal places", domain.ErrInvalidAmount)
	}
	if s.MinBet.IsPositive() && c.Amount.LessThan(s.MinBet) {
		return fmt.Errorf("%w: minimum bet is %s", domain.ErrInvalidInput, s.MinBet.String())
	}
	return nil
}

// PlaceBet debita, grava e publica. Com o storage fora o comando inteiro vai
// para a fila offline e a ação enfileirada é retornada.
func (s *Service) PlaceBet(ctx context.Context, c PlaceBet) (domain.Bet, *offline.Action, error) {
	if err := s.validate(c); err != nil {
		return domain.Bet{}, nil, err
	}
	if c.BetID == "" {
		c.BetID = uuid.NewString()
	}

	bet, err := s.run(ctx, c)
	if err == nil {
		return bet, nil, nil
	}
	if s.Queue == nil || !db.IsUnavailable(err) {
		return domain.Bet{}, nil, err
	}
	a, qerr := s.Queue.Enqueue(ctx, KindPlaceBet, placeBetPayload{
		BetID: c.BetID, SessionID: c.SessionID, UserID: c.UserID, Digit: c.Digit, Amount: c.Amount,
	})
	if qerr != nil {
		s.log().Error("offline capture failed", zap.String("bet_id", c.BetID), zap.Error(qerr))
		return domain.Bet{}, nil, err
	}
	s.log().Warn("storage unavailable, bet queued",
		zap.String("bet_id", c.BetID), zap.Int64("action_id", a.ID), zap.Error(err))
	if s.OnQueued != nil {
		s.OnQueued()
	}
	return domain.Bet{}, &a, nil
}

// run executa o fluxo idempotente: repetir com o mesmo BetID não debita nem grava duas vezes.
func (s *Service) run(ctx context.Context, c PlaceBet) (domain.Bet, error) {
	if err := s.Wallet.DebitBet(ctx, c.Token, c.Amount, c.BetID); err != nil {
		return domain.Bet{}, err
	}

	bet, created, err := s.Ledger.PlaceBetReplay(ctx, ledger.PlaceBetRequest{
		BetID: c.BetID, SessionID: c.SessionID, UserID: c.UserID, Digit: c.Digit, Amount: c.Amount,
	})
	if err != nil {
		if db.IsUnavailable(err) {
			// o débito fica; o replay grava a aposta ou anula o débito
			return domain.Bet{}, err
		}
		if errors.Is(err, domain.ErrAlreadyProcessed) {
			// o id já pertence a uma aposta gravada; o débito é dela e não pode ser anulado
			return domain.Bet{}, err
		}
		if verr := s.Wallet.VoidBet(ctx, c.Token, c.BetID); verr != nil {
			s.fail("void")
			s.log().Error("void after failed placement",
				zap.String("bet_id", c.BetID), zap.NamedError("placement_error", err), zap.Error(verr))
			return domain.Bet{}, fmt.Errorf("void bet %s after %v: %w", c.BetID, err, verr)
		}
		if s.OnVoided != nil {
			s.OnVoided()
		}
		return domain.Bet{}, err
	}
	if created {
		if s.OnPlaced != nil {
			s.OnPlaced()
		}
		s.publish(ctx, bet)
	}
	return bet, nil
}

// publish é best-effort: a aposta já está gravada.
func (s *Service) publish(ctx context.Context, bet domain.Bet) {
	if s.Publisher == nil {
		return
	}
	ev := events.BetPlaced{
		BetID: bet.ID, UserID: bet.UserID, SessionID: bet.SessionID,
		Digit: bet.Digit, Amount: bet.Amount, PlacedAt: bet.PlacedAt,
	}
	if sess, err := s.Sessions.Get(ctx, bet.SessionID); err == nil {
		ev.Pool = sess.Pool
	}
	if err := s.Publisher.PublishBetPlaced(ctx, ev); err != nil {
		s.fail("publish")
		s.log().Warn("publish bet_placed failed", zap.String("bet_id", bet.ID), zap.Error(err))
	}
}

// Handlers reaplica apostas capturadas. Uma rejeição no replay (sessão encerrada,
// saldo insuficiente) é o desfecho da ação: o débito já foi anulado e a fila segue.
func (s *Service) Handlers() offline.Handlers {
	return offline.Handlers{
		KindPlaceBet: func(ctx context.Context, a offline.Action) error {
			var p placeBetPayload
			if err := json.Unmarshal(a.Payload, &p); err != nil {
				return err
			}
			if s.Tokens == nil {
				return errors.New("no token source for offline replay")
			}
			tok, err := s.Tokens(p.UserID)
			if err != nil {
				return err
			}
			_, err = s.run(ctx, PlaceBet{
				BetID: p.BetID, SessionID: p.SessionID, UserID: p.UserID, Digit: p.Digit, Amount: p.Amount, Token: tok,
			})
			if err != nil && domain.IsRejection(err) {
				s.log().Warn("offline bet rejected on replay",
					zap.Int64("action_id", a.ID), zap.String("bet_id", p.BetID), zap.Error(err))
				return nil
			}
			return err
		},
	}
}

func (s *Service) fail(stage string) {
	if s.OnError != nil {
		s.OnError(stage)
	}
}

func (s *Service) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}
