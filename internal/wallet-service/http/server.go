package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/number-draw-platform/internal/domain"
	"github.com/radieske/number-draw-platform/internal/shared/auth"
	"github.com/radieske/number-draw-platform/internal/shared/httpx"
	"github.com/radieske/number-draw-platform/internal/shared/offline"
	"github.com/radieske/number-draw-platform/internal/wallet-service/dto"
)

// Commands são as escritas sujeitas a mínimos e à captura offline.
type Commands interface {
	Deposit(ctx context.Context, userID string, amount decimal.Decimal, ref string) (domain.WalletTransaction, *offline.Action, error)
	DebitBet(ctx context.Context, userID string, amount decimal.Decimal, betID string) (domain.WalletTransaction, error)
	VoidBet(ctx context.Context, userID, betID string) (domain.WalletTransaction, *offline.Action, error)
	RequestWithdrawal(ctx context.Context, userID string, amount decimal.Decimal) (domain.WithdrawalRequest, *offline.Action, error)
}

// Ledger cobre leituras e operações de admin.
type Ledger interface {
	Balance(ctx context.Context, userID string) (decimal.Decimal, error)
	Transactions(ctx context.Context, userID string, limit int) ([]domain.WalletTransaction, error)
	Withdrawals(ctx context.Context, status domain.WithdrawalStatus, userID string) ([]domain.WithdrawalRequest, error)
	ResolveWithdrawal(ctx context.Context, id string, decision domain.WithdrawalStatus, processedBy string) (domain.WithdrawalRequest, error)
	RefundWithdrawal(ctx context.Context, id string) (domain.WalletTransaction, error)
}

type Offline interface {
	Pending(ctx context.Context) ([]offline.Action, error)
	Discard(ctx context.Context, id int64) error
}

// Server expõe endpoints HTTP da carteira
type Server struct {
	log      *zap.Logger
	auth     auth.JWT
	commands Commands
	ledger   Ledger
	offline  Offline // opcional
}

func NewServer(log *zap.Logger, a auth.JWT, c Commands, l Ledger, o Offline) *Server {
	return &Server{log: log, auth: a, commands: c, ledger: l, offline: o}
}

// Router retorna o roteador com as rotas da API de wallet
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer)

	r.Group(func(r chi.Router) {
		r.Use(s.auth.Middleware)

		r.Get("/wallet", s.getWallet)
		r.Get("/wallet/transactions", s.transactions)
		r.Post("/wallet/deposit", s.deposit)
		r.Post("/wallet/bets/debit", s.debitBet) // chamado pelo draw-service com o token do usuário
		r.Post("/wallet/bets/void", s.voidBet)
		r.Post("/wallet/withdrawals", s.requestWithdrawal)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAdmin)
			r.Get("/wallet/withdrawals", s.listWithdrawals)
			r.Post("/wallet/withdrawals/{id}/resolve", s.resolveWithdrawal)
			r.Post("/wallet/withdrawals/{id}/refund", s.refundWithdrawal)
			r.Get("/wallet/offline", s.listOffline)
			r.Delete("/wallet/offline/{id}", s.discardOffline)
		})
	})
	return r
}

func caller(r *http.Request) auth.Claims {
	c, _ := auth.ClaimsFromContext(r.Context())
	return c
}

// target é o próprio usuário; admin pode consultar outro via ?userId=.
func target(r *http.Request) string {
	c := caller(r)
	if u := r.URL.Query().Get("userId"); u != "" && c.IsAdmin() {
		return u
	}
	return c.UserID()
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if httpx.StatusOf(err) >= http.StatusInternalServerError {
		s.log.Error(op+" failed", zap.String("request_id", middleware.GetReqID(r.Context())), zap.Error(err))
	}
	httpx.WriteDomainError(w, err)
}

func (s *Server) getWallet(w http.ResponseWriter, r *http.Request) {
	userID := target(r)
	bal, err := s.ledger.Balance(r.Context(), userID)
	if err != nil {
		s.fail(w, r, "balance", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.WalletResponse{UserID: userID, Balance: bal})
}

func (s *Server) transactions(w http.ResponseWriter, r *http.Request) {
	userID := target(r)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	txs, err := s.ledger.Transactions(r.Context(), userID, limit)
	if err != nil {
		s.fail(w, r, "transactions", err)
		return
	}
	if txs == nil {
		txs = []domain.WalletTransaction{}
	}
	httpx.WriteJSON(w, http.StatusOK, dto.TransactionsResponse{UserID: userID, Transactions: txs})
}

func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	var req dto.DepositRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteDomainError(w, err)
		return
	}
	t, queued, err := s.commands.Deposit(r.Context(), caller(r).UserID(), req.Amount, req.Ref)
	if err != nil {
		s.fail(w, r, "deposit", err)
		return
	}
	if queued != nil {
		httpx.WriteQueued(w, queued.ID)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, t)
}

func (s *Server) debitBet(w http.ResponseWriter, r *http.Request) {
	var req dto.DebitBetRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteDomainError(w, err)
		return
	}
	if !req.Amount.IsPositive() {
		httpx.WriteDomainError(w, domain.ErrInvalidAmount)
		return
	}
	t, err := s.commands.DebitBet(r.Context(), caller(r).UserID(), req.Amount, req.BetID)
	if err != nil {
		s.fail(w, r, "debit bet", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, t)
}

func (s *Server) voidBet(w http.ResponseWriter, r *http.Request) {
	var req dto.VoidBetRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteDomainError(w, err)
		return
	}
	t, queued, err := s.commands.VoidBet(r.Context(), caller(r).UserID(), req.BetID)
	if err != nil {
		s.fail(w, r, "void bet", err)
		return
	}
	if queued != nil {
		httpx.WriteQueued(w, queued.ID)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, t)
}

func (s *Server) requestWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req dto.WithdrawalRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteDomainError(w, err)
		return
	}
	wr, queued, err := s.commands.RequestWithdrawal(r.Context(), caller(r).UserID(), req.Amount)
	if err != nil {
		s.fail(w, r, "request withdrawal", err)
		return
	}
	if queued != nil {
		httpx.WriteQueued(w, queued.ID)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, wr)
}

func (s *Server) listWithdrawals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := domain.WithdrawalStatus(q.Get("status"))
	switch status {
	case "", domain.WithdrawalPending, domain.WithdrawalApproved, domain.WithdrawalRejected:
	default:
		httpx.WriteError(w, http.StatusBadRequest, "invalid status")
		return
	}
	ws, err := s.ledger.Withdrawals(r.Context(), status, q.Get("userId"))
	if err != nil {
		s.fail(w, r, "list withdrawals", err)
		return
	}
	if ws == nil {
		ws = []domain.WithdrawalRequest{}
	}
	httpx.WriteJSON(w, http.StatusOK, dto.WithdrawalsResponse{Withdrawals: ws})
}

func (s *Server) resolveWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req dto.ResolveWithdrawalRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteDomainError(w, err)
		return
	}
	wr, err := s.ledger.ResolveWithdrawal(r.Context(), chi.URLParam(r, "id"), domain.WithdrawalStatus(req.Decision), caller(r).UserID())
	if err != nil {
		s.fail(w, r, "resolve withdrawal", err)
		return
	}
	s.log.Info("withdrawal resolved", zap.String("withdrawal_id", wr.ID), zap.String("status", string(wr.Status)), zap.String("by", wr.ProcessedBy))
	httpx.WriteJSON(w, http.StatusOK, wr)
}

func (s *Server) refundWithdrawal(w http.ResponseWriter, r *http.Request) {
	t, err := s.ledger.RefundWithdrawal(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, "refund withdrawal", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, t)
}

func (s *Server) listOffline(w http.ResponseWriter, r *http.Request) {
	if s.offline == nil {
		httpx.WriteJSON(w, http.StatusOK, []offline.Action{})
		return
	}
	actions, err := s.offline.Pending(r.Context())
	if err != nil {
		s.fail(w, r, "list offline", err)
		return
	}
	if actions == nil {
		actions = []offline.Action{}
	}
	httpx.WriteJSON(w, http.StatusOK, actions)
}

func (s *Server) discardOffline(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if s.offline == nil {
		httpx.WriteDomainError(w, domain.ErrNotFound)
		return
	}
	if err := s.offline.Discard(r.Context(), id); err != nil {
		s.fail(w, r, "discard offline", err)
		return
	}
	s.log.Warn("offline action discarded", zap.Int64("action_id", id), zap.String("by", caller(r).UserID()))
	w.WriteHeader(http.StatusNoContent)
}
