package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func sample() Notification {
	return Notification{Kind: KindWin, UserID: "u1", SessionID: "s1", BetID: "b1", WinningDigit: 4, Payout: decimal.NewFromInt(90)}
}

func TestWebhookPostsJSON(t *testing.T) {
	var got Notification
	var key string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key = r.Header.Get("Idempotency-Key")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	if err := NewWebhook(srv.URL).Notify(context.Background(), sample()); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if got.BetID != "b1" || !got.Payout.Equal(decimal.NewFromInt(90)) {
		t.Fatalf("body = %+v", got)
	}
	if key != "win:s1:u1:b1" {
		t.Fatalf("idempotency key = %q", key)
	}
}

func TestWebhookNon2xxFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	if err := NewWebhook(srv.URL).Notify(context.Background(), sample()); err == nil {
		t.Fatal("expected error")
	}
}

type countingNotifier struct {
	calls    int32
	failures int32 // falha nas primeiras N chamadas
}

func (c *countingNotifier) Notify(context.Context, Notification) error {
	n := atomic.AddInt32(&c.calls, 1)
	if n <= c.failures {
		return errors.New("down")
	}
	return nil
}

func TestDispatcherRetriesThenDelivers(t *testing.T) {
	n := &countingNotifier{failures: 2}
	dead := 0
	d := &Dispatcher{Log: zap.NewNop(), Notifier: n, MaxRetries: 3,
		DLQ: func(context.Context, string, Notification) error { dead++; return nil }}
	if !d.Dispatch(context.Background(), sample()) {
		t.Fatal("expected delivery")
	}
	if n.calls != 3 || dead != 0 {
		t.Fatalf("calls=%d dead=%d", n.calls, dead)
	}
}

func TestDispatcherSendsToDLQAfterRetries(t *testing.T) {
	n := &countingNotifier{failures: 100}
	var dlqKey string
	dead := 0
	d := &Dispatcher{
		Log: zap.NewNop(), Notifier: n, MaxRetries: 2,
		DLQ:    func(_ context.Context, key string, _ Notification) error { dlqKey = key; return nil },
		OnDead: func() { dead++ },
	}
	if d.Dispatch(context.Background(), sample()) {
		t.Fatal("expected failure")
	}
	if n.calls != 3 || dead != 1 || dlqKey != "win:s1:u1:b1" {
		t.Fatalf("calls=%d dead=%d key=%q", n.calls, dead, dlqKey)
	}
}
