package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/radieske/number-draw-platform/internal/domain"
	"github.com/radieske/number-draw-platform/internal/draw-service/commands"
	"github.com/radieske/number-draw-platform/internal/draw-service/dto"
	"github.com/radieske/number-draw-platform/internal/draw/engine"
	"github.com/radieske/number-draw-platform/internal/draw/sessions"
	"github.com/radieske/number-draw-platform/internal/shared/auth"
	"github.com/radieske/number-draw-platform/internal/shared/httpx"
	"github.com/radieske/number-draw-platform/internal/shared/offline"
	"github.com/radieske/number-draw-platform/pkg/contracts/events"
)

type Sessions interface {
	Create(ctx context.Context, req sessions.CreateRequest) (domain.Session, error)
	Get(ctx context.Context, id string) (domain.Session, error)
	List(ctx context.Context, f sessions.Filter) ([]domain.Session, error)
}

type Bets interface {
	ListBySession(ctx context.Context, sessionID string) ([]domain.Bet, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Bet, error)
}

type Results interface {
	GetResultBySession(ctx context.Context, sessionID string) (domain.SettlementResult, error)
	ListResults(ctx context.Context, limit int) ([]domain.SettlementResult, error)
}

// ResultCache é o cache Redis escrito pelo notification-worker.
type ResultCache interface {
	GetResult(ctx context.Context, sessionID string) (events.DrawSettled, bool, error)
}

type Settler interface {
	SettleSessionOnce(ctx context.Context, sessionID string) (*engine.Outcome, error)
}

type Commands interface {
	PlaceBet(ctx context.Context, c commands.PlaceBet) (domain.Bet, *offline.Action, error)
}

type Offline interface {
	Pending(ctx context.Context) ([]offline.Action, error)
	Discard(ctx context.Context, id int64) error
}

// API expõe os endpoints REST de sessões, apostas e resultados.
type API struct {
	Log      *zap.Logger
	Auth     auth.JWT
	Sessions Sessions
	Bets     Bets
	Results  Results
	Cache    ResultCache // opcional
	Settler  Settler
	Commands Commands
	Offline  Offline      // opcional
	WS       http.Handler // opcional (hub WebSocket)
}

// Router retorna o roteador HTTP com os endpoints REST
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer)

	if a.WS != nil {
		r.Get("/ws", a.WS.ServeHTTP) // feed público de pool/resultado
	}

	r.Group(func(r chi.Router) {
		r.Use(a.Auth.Middleware)

		r.Get("/v1/sessions", a.listSessions)
		r.Get("/v1/sessions/{id}", a.getSession)
		r.Get("/v1/sessions/{id}/result", a.getResult)
		r.Get("/v1/results", a.listResults)
		r.Get("/v1/bets", a.myBets)
		r.Post("/v1/bets", a.placeBet)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAdmin)
			r.Post("/v1/sessions", a.createSession)
			r.Get("/v1/sessions/{id}/bets", a.sessionBets)
			r.Post("/v1/sessions/{id}/settle", a.settle)
			r.Get("/v1/offline", a.listOffline)
			r.Delete("/v1/offline/{id}", a.discardOffline)
		})
	})
	return r
}

func (a *API) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if httpx.StatusOf(err) >= http.StatusInternalServerError {
		a.Log.Error(op+" failed", zap.String("request_id", middleware.GetReqID(r.Context())), zap.Error(err))
	}
	httpx.WriteDomainError(w, err)
}

func caller(r *http.Request) auth.Claims {
	c, _ := auth.ClaimsFromContext(r.Context())
	return c
}

func (a *API) listSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := a.Sessions.List(r.Context(), sessions.Filter{Date: q.Get("date"), State: domain.SessionState(q.Get("state"))})
	if err != nil {
		a.fail(w, r, "list sessions", err)
		return
	}
	if list == nil {
		list = []domain.Session{}
	}
	httpx.WriteJSON(w, http.StatusOK, dto.SessionsResponse{Sessions: list})
}

func (a *API) getSession(w http.ResponseWriter, r *http.Request) {
	s, err := a.Sessions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, "get session", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, s)
}

func (a *API) createSession(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateSessionRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteDomainError(w, err)
		return
	}
	s, err := a.Sessions.Create(r.Context(), sessions.CreateRequest{
		Name:          req.Name,
		ScheduledTime: req.ScheduledTime,
		Date:          req.Date,
		BettingCutoff: req.BettingCutoff,
		CreatedBy:     domain.CreatedByAdmin,
	})
	if err != nil {
		a.fail(w, r, "create session", err)
		return
	}
	a.Log.Info("session created", zap.String("session_id", s.ID), zap.String("date", s.Date),
		zap.String("scheduled_time", s.ScheduledTime), zap.String("by", caller(r).UserID()))
	httpx.WriteJSON(w, http.StatusCreated, s)
}

func (a *API) sessionBets(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := a.Sessions.Get(r.Context(), id); err != nil {
		a.fail(w, r, "get session", err)
		return
	}
	bets, err := a.Bets.ListBySession(r.Context(), id)
	if err != nil {
		a.fail(w, r, "list session bets", err)
		return
	}
	if bets == nil {
		bets = []domain.Bet{}
	}
	httpx.WriteJSON(w, http.StatusOK, dto.BetsResponse{Bets: bets})
}

func (a *API) myBets(w http.ResponseWriter, r *http.Request) {
	bets, err := a.Bets.ListByUser(r.Context(), caller(r).UserID())
	if err != nil {
		a.fail(w, r, "list user bets", err)
		return
	}
	if bets == nil {
		bets = []domain.Bet{}
	}
	httpx.WriteJSON(w, http.StatusOK, dto.BetsResponse{Bets: bets})
}

func (a *API) placeBet(w http.ResponseWriter, r *http.Request) {
	var req dto.PlaceBetRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteDomainError(w, err)
		return
	}
	tok, _ := auth.BearerToken(r)
	bet, queued, err := a.Commands.PlaceBet(r.Context(), commands.PlaceBet{
		BetID:     req.BetID,
		SessionID: req.SessionID,
		UserID:    caller(r).UserID(),
		Digit:     *req.Digit,
		Amount:    req.Amount,
		Token:     tok,
	})
	if err != nil {
		a.fail(w, r, "place bet", err)
		return
	}
	if queued != nil {
		httpx.WriteQueued(w, queued.ID)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, bet)
}

// getResult tenta o cache e cai para o banco em miss ou falha do Redis.
func (a *API) getResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if a.Cache != nil {
		ev, ok, err := a.Cache.GetResult(r.Context(), id)
		if err != nil {
			a.Log.Warn("result cache read failed", zap.String("session_id", id), zap.Error(err))
		} else if ok {
			httpx.WriteJSON(w, http.StatusOK, dto.ResultFromEvent(ev))
			return
		}
	}
	res, err := a.Results.GetResultBySession(r.Context(), id)
	if err != nil {
		a.fail(w, r, "get result", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.ResultFromDomain(res))
}

func (a *API) listResults(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := a.Results.ListResults(r.Context(), limit)
	if err != nil {
		a.fail(w, r, "list results", err)
		return
	}
	out := make([]dto.ResultResponse, 0, len(list))
	for _, res := range list {
		out = append(out, dto.ResultFromDomain(res))
	}
	httpx.WriteJSON(w, http.StatusOK, dto.ResultsResponse{Results: out})
}

// settle só pede a liquidação; a garantia de execução única é do scheduler.
func (a *API) settle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	outcome, err := a.Settler.SettleSessionOnce(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadySettled) {
			a.Log.Info("manual settle on settled session", zap.String("session_id", id))
		}
		a.fail(w, r, "settle", err)
		return
	}
	a.Log.Info("manual settle requested", zap.String("session_id", id), zap.String("by", caller(r).UserID()))
	if outcome == nil {
		httpx.WriteJSON(w, http.StatusOK, dto.SettleResponse{SessionID: id, Status: "closed_without_bets"})
		return
	}
	res := dto.ResultFromDomain(outcome.Result)
	totals := outcome.TotalsByDigit
	httpx.WriteJSON(w, http.StatusOK, dto.SettleResponse{
		SessionID: id,
		Status:    "settled",
		Result:    &res,
		Payouts:   outcome.Payouts,
		Totals:    &totals,
	})
}

func (a *API) listOffline(w http.ResponseWriter, r *http.Request) {
	if a.Offline == nil {
		httpx.WriteJSON(w, http.StatusOK, []offline.Action{})
		return
	}
	actions, err := a.Offline.Pending(r.Context())
	if err != nil {
		a.fail(w, r, "list offline", err)
		return
	}
	if actions == nil {
		actions = []offline.Action{}
	}
	httpx.WriteJSON(w, http.StatusOK, actions)
}

func (a *API) discardOffline(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if a.Offline == nil {
		httpx.WriteDomainError(w, domain.ErrNotFound)
		return
	}
	if err := a.Offline.Discard(r.Context(), id); err != nil {
		a.fail(w, r, "discard offline", err)
		return
	}
	a.Log.Warn("offline action discarded", zap.Int64("action_id", id), zap.String("by", caller(r).UserID()))
	w.WriteHeader(http.StatusNoContent)
}
