package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/radieske/number-draw-platform/internal/domain"
)

func TestStatusOf(t *testing.T) {
	cases := map[error]int{
		domain.ErrSessionNotFound:                           http.StatusNotFound,
		domain.ErrInvalidDigit:                              http.StatusBadRequest,
		domain.ErrBettingClosed:                             http.StatusConflict,
		domain.ErrNotDue:                                    http.StatusConflict,
		domain.ErrAlreadyProcessed:                          http.StatusConflict,
		domain.ErrInsufficientBalance:                       http.StatusUnprocessableEntity,
		fmt.Errorf("insert bet: %w", domain.ErrUnavailable): http.StatusServiceUnavailable,
		errors.New("boom"):                                  http.StatusInternalServerError,
	}
	for err, want := range cases {
		if got := StatusOf(err); got != want {
			t.Errorf("StatusOf(%v) = %d, want %d", err, got, want)
		}
	}
}

func TestWriteDomainErrorHidesInternals(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteDomainError(rec, errors.New("pq: password authentication failed"))
	if rec.Code != http.StatusInternalServerError || strings.Contains(rec.Body.String(), "password") {
		t.Fatalf("got %d %s", rec.Code, rec.Body.String())
	}
}

type sample struct {
	UserID string `json:"userId" validate:"required"`
	Digit  *int   `json:"digit" validate:"required,min=0,max=9"`
}

func TestDecodeValidates(t *testing.T) {
	ok := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"userId":"u1","digit":0}`))
	var s sample
	if err := Decode(ok, &s); err != nil {
		t.Fatalf("decode valid: %v", err)
	}
	if *s.Digit != 0 {
		t.Fatalf("digit = %d", *s.Digit)
	}

	for _, body := range []string{`{"userId":"u1","digit":10}`, `{"digit":3}`, `{bad`, `{"userId":"u1","digit":1,"x":1}`} {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		var s sample
		if err := Decode(req, &s); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("Decode(%s) err = %v, want ErrInvalidInput", body, err)
		}
	}
}
