package commands

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/number-draw-platform/internal/domain"
	"github.com/radieske/number-draw-platform/internal/draw/ledger"
	"github.com/radieske/number-draw-platform/internal/draw/repo"
	"github.com/radieske/number-draw-platform/internal/shared/clock"
	"github.com/radieske/number-draw-platform/internal/shared/offline"
	"github.com/radieske/number-draw-platform/pkg/contracts/events"
)

type debit struct {
	user   string
	amount decimal.Decimal
	voided bool
}

// fakeWallet identifica o usuário pelo token "tok-<user>".
type fakeWallet struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
	debits   map[string]*debit
	down     bool
}

func newFakeWallet() *fakeWallet {
	return &fakeWallet{balances: map[string]decimal.Decimal{}, debits: map[string]*debit{}}
}

func userOf(token string) string { return strings.TrimPrefix(token, "tok-") }

func (w *fakeWallet) DebitBet(_ context.Context, token string, amount decimal.Decimal, betID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.down {
		return fmt.Errorf("wallet: %w", domain.ErrUnavailable)
	}
	if d, ok := w.debits[betID]; ok {
		if d.voided || d.user != userOf(token) {
			return domain.ErrAlreadyProcessed
		}
		return nil
	}
	u := userOf(token)
	if w.balances[u].LessThan(amount) {
		return domain.ErrInsufficientBalance
	}
	w.balances[u] = w.balances[u].Sub(amount)
	w.debits[betID] = &debit{user: u, amount: amount}
	return nil
}

func (w *fakeWallet) VoidBet(_ context.Context, token string, betID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.down {
		return fmt.Errorf("wallet: %w", domain.ErrUnavailable)
	}
	d, ok := w.debits[betID]
	if !ok || d.user != userOf(token) {
		return domain.ErrNotFound
	}
	if !d.voided {
		d.voided = true
		w.balances[d.user] = w.balances[d.user].Add(d.amount)
	}
	return nil
}

func (w *fakeWallet) balance(u string) decimal.Decimal {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balances[u]
}

type flakyLedger struct {
	*ledger.Ledger
	down bool
}

func (f *flakyLedger) PlaceBetReplay(ctx context.Context, r ledger.PlaceBetRequest) (domain.Bet, bool, error) {
	if f.down {
		return domain.Bet{}, false, fmt.Errorf("append bet: %w", domain.ErrUnavailable)
	}
	return f.Ledger.PlaceBetReplay(ctx, r)
}

type sessionsStore struct{ *repo.Memory }

func (s sessionsStore) Get(ctx context.Context, id string) (domain.Session, error) {
	return s.GetSession(ctx, id)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.BetPlaced
}

func (p *fakePublisher) PublishBetPlaced(_ context.Context, e events.BetPlaced) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

type harness struct {
	svc    *Service
	store  *repo.Memory
	wallet *fakeWallet
	ledger *flakyLedger
	pub    *fakePublisher
	clock  *clock.Fake
	queue  *offline.Queue
	voided int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	store := repo.NewMemory()
	if _, err := store.InsertSession(ctx, domain.Session{
		ID: "s1", ScheduledTime: "14:30", Date: "2026-03-10", BettingCutoff: "14:25",
		State: domain.SessionActive, CreatedBy: domain.CreatedBySystem,
	}); err != nil {
		t.Fatal(err)
	}
	clk := clock.NewFake(time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC))
	q, err := offline.Open(filepath.Join(t.TempDir(), "q.db"), clk)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = q.Close() })

	h := &harness{
		store:  store,
		wallet: newFakeWallet(),
		ledger: &flakyLedger{Ledger: ledger.New(store, clk, time.UTC)},
		pub:    &fakePublisher{},
		clock:  clk,
		queue:  q,
	}
	h.wallet.balances["u1"] = decimal.NewFromInt(100)
	h.svc = &Service{
		Ledger:    h.ledger,
		Sessions:  sessionsStore{store},
		Wallet:    h.wallet,
		Publisher: h.pub,
		Queue:     q,
		MinBet:    decimal.NewFromInt(10),
		Tokens:    func(u string) (string, error) { return "tok-" + u, nil },
		OnVoided:  func() { h.voided++ },
	}
	return h
}

func bet(id string, digit int, amount int64) PlaceBet {
	return PlaceBet{BetID: id, SessionID: "s1", UserID: "u1", Digit: digit, Amount: decimal.NewFromInt(amount), Token: "tok-u1"}
}

func (h *harness) pool(t *testing.T) decimal.Decimal {
	t.Helper()
	s, err := h.store.GetSession(context.Background(), "s1")
	if err != nil {
		t.Fatal(err)
	}
	return s.Pool
}

func TestPlaceBetDebitsAndPublishes(t *testing.T) {
	h := newHarness(t)
	b, q, err := h.svc.PlaceBet(context.Background(), bet("", 4, 20))
	if err != nil || q != nil {
		t.Fatalf("place: q=%v err=%v", q, err)
	}
	if b.ID == "" || b.Digit != 4 {
		t.Fatalf("bet = %+v", b)
	}
	if got := h.wallet.balance("u1"); !got.Equal(decimal.NewFromInt(80)) {
		t.Fatalf("balance = %s", got)
	}
	if len(h.pub.events) != 1 || !h.pub.events[0].Pool.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("events = %+v", h.pub.events)
	}
}

func TestPlaceBetValidatesBeforeDebit(t *testing.T) {
	h := newHarness(t)
	cases := []struct {
		cmd  PlaceBet
		want error
	}{
		{bet("", 4, 5), domain.ErrInvalidInput},
		{bet("", 10, 20), domain.ErrInvalidDigit},
		{bet("", 1, 0), domain.ErrInvalidAmount},
		{PlaceBet{SessionID: "s1", UserID: "u1", Digit: 1, Amount: decimal.RequireFromString("12.345"), Token: "tok-u1"}, domain.ErrInvalidAmount},
	}
	for _, c := range cases {
		if _, _, err := h.svc.PlaceBet(context.Background(), c.cmd); !errors.Is(err, c.want) {
			t.Errorf("err = %v, want %v", err, c.want)
		}
	}
	if got := h.wallet.balance("u1"); !got.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("balance moved: %s", got)
	}
}

func TestPlaceBetAfterCutoffVoidsDebit(t *testing.T) {
	h := newHarness(t)
	h.clock.Set(time.Date(2026, 3, 10, 14, 25, 0, 0, time.UTC))
	_, _, err := h.svc.PlaceBet(context.Background(), bet("b1", 4, 20))
	if !errors.Is(err, domain.ErrBettingClosed) {
		t.Fatalf("err = %v", err)
	}
	if got := h.wallet.balance("u1"); !got.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("balance after void = %s", got)
	}
	if h.voided != 1 || len(h.pub.events) != 0 {
		t.Fatalf("voided=%d events=%d", h.voided, len(h.pub.events))
	}
}

func TestPlaceBetSameIDIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, _, err := h.svc.PlaceBet(ctx, bet("b1", 2, 30)); err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}
	if got := h.wallet.balance("u1"); !got.Equal(decimal.NewFromInt(70)) {
		t.Fatalf("balance = %s", got)
	}
	if !h.pool(t).Equal(decimal.NewFromInt(30)) || len(h.pub.events) != 1 {
		t.Fatalf("pool=%s events=%d", h.pool(t), len(h.pub.events))
	}
}

func TestStorageDownQueuesAndReplays(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.ledger.down = true
	_, q, err := h.svc.PlaceBet(ctx, bet("b1", 6, 40))
	if err != nil || q == nil {
		t.Fatalf("place while down: q=%v err=%v", q, err)
	}
	if !h.pool(t).IsZero() {
		t.Fatalf("pool moved while down")
	}

	h.ledger.down = false
	n, err := h.queue.Drain(ctx, h.svc.Handlers().Replay)
	if err != nil || n != 1 {
		t.Fatalf("drain n=%d err=%v", n, err)
	}
	if !h.pool(t).Equal(decimal.NewFromInt(40)) {
		t.Fatalf("pool after replay = %s", h.pool(t))
	}
	// débito feito antes da queda não é repetido no replay
	if got := h.wallet.balance("u1"); !got.Equal(decimal.NewFromInt(60)) {
		t.Fatalf("balance = %s", got)
	}
	if len(h.pub.events) != 1 {
		t.Fatalf("events = %d", len(h.pub.events))
	}
}

func TestWalletDownQueuesWholeCommand(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.wallet.down = true
	if _, q, err := h.svc.PlaceBet(ctx, bet("b1", 6, 40)); err != nil || q == nil {
		t.Fatalf("q=%v err=%v", q, err)
	}
	h.wallet.down = false
	if _, err := h.queue.Drain(ctx, h.svc.Handlers().Replay); err != nil {
		t.Fatal(err)
	}
	if got := h.wallet.balance("u1"); !got.Equal(decimal.NewFromInt(60)) {
		t.Fatalf("balance = %s", got)
	}
	if !h.pool(t).Equal(decimal.NewFromInt(40)) {
		t.Fatalf("pool = %s", h.pool(t))
	}
}

func TestReplayAfterCutoffRefundsAndMovesOn(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.ledger.down = true
	if _, q, err := h.svc.PlaceBet(ctx, bet("b1", 6, 40)); err != nil || q == nil {
		t.Fatalf("q=%v err=%v", q, err)
	}
	h.ledger.down = false
	h.clock.Set(time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC))

	n, err := h.queue.Drain(ctx, h.svc.Handlers().Replay)
	if err != nil || n != 1 {
		t.Fatalf("drain n=%d err=%v", n, err)
	}
	if got := h.wallet.balance("u1"); !got.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("balance after rejected replay = %s", got)
	}
	if pending, _ := h.queue.Pending(ctx); len(pending) != 0 {
		t.Fatalf("pending = %d", len(pending))
	}
}

func TestPlaceBetWithForeignBetID(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.wallet.balances["u2"] = decimal.NewFromInt(100)
	if _, err := h.store.InsertSession(ctx, domain.Session{
		ID: "s2", ScheduledTime: "19:00", Date: "2026-03-10", BettingCutoff: "18:55",
		State: domain.SessionActive, CreatedBy: domain.CreatedBySystem,
	}); err != nil {
		t.Fatal(err)
	}
	if _, _, err := h.svc.PlaceBet(ctx, bet("b1", 4, 20)); err != nil {
		t.Fatal(err)
	}

	// outro usuário com o mesmo id: a carteira recusa e nada é gravado
	other := bet("b1", 7, 30)
	other.UserID, other.Token = "u2", "tok-u2"
	if _, _, err := h.svc.PlaceBet(ctx, other); !errors.Is(err, domain.ErrAlreadyProcessed) {
		t.Fatalf("u2 err = %v", err)
	}

	// mesmo usuário reaproveitando o id em outra sessão: o débito da aposta gravada continua
	moved := bet("b1", 4, 20)
	moved.SessionID = "s2"
	if _, _, err := h.svc.PlaceBet(ctx, moved); !errors.Is(err, domain.ErrAlreadyProcessed) {
		t.Fatalf("other session err = %v", err)
	}
	if h.voided != 0 {
		t.Fatalf("voided = %d", h.voided)
	}
	if got := h.wallet.balance("u1"); !got.Equal(decimal.NewFromInt(80)) {
		t.Fatalf("u1 balance = %s", got)
	}
	if got := h.wallet.balance("u2"); !got.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("u2 balance = %s", got)
	}
	if !h.pool(t).Equal(decimal.NewFromInt(20)) {
		t.Fatalf("pool = %s", h.pool(t))
	}
}
