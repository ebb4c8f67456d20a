package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/number-draw-platform/internal/domain"
	"github.com/radieske/number-draw-platform/internal/shared/auth"
	"github.com/radieske/number-draw-platform/internal/shared/clock"
	"github.com/radieske/number-draw-platform/internal/wallet-service/commands"
	"github.com/radieske/number-draw-platform/internal/wallet-service/ledger"
	"github.com/radieske/number-draw-platform/internal/wallet-service/repo"
)

var testJWT = auth.JWT{Secret: []byte("test-secret")}

type apiHarness struct {
	t      *testing.T
	h      http.Handler
	ledger *ledger.Ledger
}

func newAPI(t *testing.T) *apiHarness {
	t.Helper()
	led := ledger.New(repo.NewMemory(), clock.NewFake(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)))
	cmds := &commands.Service{
		Ledger: led,
		Limits: commands.Limits{MinDeposit: decimal.NewFromInt(10), MinWithdrawal: decimal.NewFromInt(50)},
	}
	srv := NewServer(zap.NewNop(), testJWT, cmds, led, nil)
	return &apiHarness{t: t, h: srv.Router(), ledger: led}
}

func (a *apiHarness) do(method, path, user, role, body string) *httptest.ResponseRecorder {
	a.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		tok, err := testJWT.Sign(user, role)
		if err != nil {
			a.t.Fatal(err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	a.h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return v
}

func TestWalletRequiresToken(t *testing.T) {
	a := newAPI(t)
	if rec := a.do(http.MethodGet, "/wallet", "", "", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestDepositAndBalance(t *testing.T) {
	a := newAPI(t)
	rec := a.do(http.MethodPost, "/wallet/deposit", "u1", auth.RoleUser, `{"amount":"100.50","ref":"r1"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("deposit status = %d body=%s", rec.Code, rec.Body.String())
	}
	rec = a.do(http.MethodPost, "/wallet/deposit", "u1", auth.RoleUser, `{"amount":5}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("below minimum status = %d", rec.Code)
	}

	rec = a.do(http.MethodGet, "/wallet", "u1", auth.RoleUser, "")
	got := decode[struct {
		UserID  string          `json:"userId"`
		Balance decimal.Decimal `json:"balance"`
	}](t, rec)
	if got.UserID != "u1" || !got.Balance.Equal(decimal.RequireFromString("100.50")) {
		t.Fatalf("wallet = %+v", got)
	}
}

func TestDebitInsufficientAndVoid(t *testing.T) {
	a := newAPI(t)
	a.do(http.MethodPost, "/wallet/deposit", "u1", auth.RoleUser, `{"amount":50}`)

	rec := a.do(http.MethodPost, "/wallet/bets/debit", "u1", auth.RoleUser, `{"betId":"b1","amount":80}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("insufficient status = %d", rec.Code)
	}
	rec = a.do(http.MethodPost, "/wallet/bets/debit", "u1", auth.RoleUser, `{"betId":"b1","amount":20}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("debit status = %d body=%s", rec.Code, rec.Body.String())
	}
	rec = a.do(http.MethodPost, "/wallet/bets/void", "u1", auth.RoleUser, `{"betId":"b1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("void status = %d", rec.Code)
	}
	if tx := decode[domain.WalletTransaction](t, rec); tx.Status != domain.TxFailed {
		t.Fatalf("voided tx status = %s", tx.Status)
	}
	bal, _ := a.ledger.Balance(context.Background(), "u1")
	if !bal.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("balance = %s", bal)
	}
	// outro usuário não anula a aposta de u1
	if rec := a.do(http.MethodPost, "/wallet/bets/void", "u2", auth.RoleUser, `{"betId":"b1"}`); rec.Code != http.StatusNotFound {
		t.Fatalf("foreign void status = %d", rec.Code)
	}
}

func TestWithdrawalLifecycle(t *testing.T) {
	a := newAPI(t)
	a.do(http.MethodPost, "/wallet/deposit", "u1", auth.RoleUser, `{"amount":200}`)

	rec := a.do(http.MethodPost, "/wallet/withdrawals", "u1", auth.RoleUser, `{"amount":120}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("request status = %d body=%s", rec.Code, rec.Body.String())
	}
	wr := decode[domain.WithdrawalRequest](t, rec)

	if rec := a.do(http.MethodGet, "/wallet/withdrawals?status=pending", "u1", auth.RoleUser, ""); rec.Code != http.StatusForbidden {
		t.Fatalf("non-admin list status = %d", rec.Code)
	}
	rec = a.do(http.MethodGet, "/wallet/withdrawals?status=pending", "adm", auth.RoleAdmin, "")
	list := decode[struct {
		Withdrawals []domain.WithdrawalRequest `json:"withdrawals"`
	}](t, rec)
	if len(list.Withdrawals) != 1 || list.Withdrawals[0].ID != wr.ID {
		t.Fatalf("pending list = %+v", list)
	}

	path := "/wallet/withdrawals/" + wr.ID
	if rec := a.do(http.MethodPost, path+"/refund", "adm", auth.RoleAdmin, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("refund of pending status = %d", rec.Code)
	}
	if rec := a.do(http.MethodPost, path+"/resolve", "adm", auth.RoleAdmin, `{"decision":"maybe"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad decision status = %d", rec.Code)
	}
	rec = a.do(http.MethodPost, path+"/resolve", "adm", auth.RoleAdmin, `{"decision":"rejected"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("resolve status = %d body=%s", rec.Code, rec.Body.String())
	}
	if rec := a.do(http.MethodPost, path+"/resolve", "adm", auth.RoleAdmin, `{"decision":"approved"}`); rec.Code != http.StatusConflict {
		t.Fatalf("second resolve status = %d", rec.Code)
	}

	bal, _ := a.ledger.Balance(context.Background(), "u1")
	if !bal.Equal(decimal.NewFromInt(80)) {
		t.Fatalf("balance after reject = %s, want 80 (no auto refund)", bal)
	}
	if rec := a.do(http.MethodPost, path+"/refund", "adm", auth.RoleAdmin, ""); rec.Code != http.StatusOK {
		t.Fatalf("refund status = %d", rec.Code)
	}
	bal, _ = a.ledger.Balance(context.Background(), "u1")
	if !bal.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("balance after refund = %s", bal)
	}
}

func TestAdminCanReadOtherWallet(t *testing.T) {
	a := newAPI(t)
	a.do(http.MethodPost, "/wallet/deposit", "u1", auth.RoleUser, `{"amount":30}`)

	rec := a.do(http.MethodGet, "/wallet/transactions?userId=u1", "adm", auth.RoleAdmin, "")
	got := decode[struct {
		UserID       string                     `json:"userId"`
		Transactions []domain.WalletTransaction `json:"transactions"`
	}](t, rec)
	if got.UserID != "u1" || len(got.Transactions) != 1 {
		t.Fatalf("admin view = %+v", got)
	}

	// usuário comum ignora ?userId
	rec = a.do(http.MethodGet, "/wallet/transactions?userId=u1", "u2", auth.RoleUser, "")
	got = decode[struct {
		UserID       string                     `json:"userId"`
		Transactions []domain.WalletTransaction `json:"transactions"`
	}](t, rec)
	if got.UserID != "u2" || len(got.Transactions) != 0 {
		t.Fatalf("user view = %+v", got)
	}
}
