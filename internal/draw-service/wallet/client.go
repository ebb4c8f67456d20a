// Package wallet é o cliente HTTP do wallet-service usado na colocação de apostas.
package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/number-draw-platform/internal/domain"
)

type debitRequest struct {
	BetID  string          `json:"betId"`
	Amount decimal.Decimal `json:"amount"`
}

type voidRequest struct {
	BetID string `json:"betId"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Client fala com o wallet-service em nome do usuário (o bearer token dele é repassado).
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func New(base string) *Client {
	return &Client{
		BaseURL: base,
		HTTP:    &http.Client{Timeout: 2 * time.Second},
	}
}

// DebitBet debita o valor da aposta; repetir o mesmo betID não debita de novo.
func (c *Client) DebitBet(ctx context.Context, token string, amount decimal.Decimal, betID string) error {
	return c.post(ctx, token, "/wallet/bets/debit", debitRequest{BetID: betID, Amount: amount})
}

// VoidBet desfaz o débito de uma aposta não colocada.
func (c *Client) VoidBet(ctx context.Context, token string, betID string) error {
	return c.post(ctx, token, "/wallet/bets/void", voidRequest{BetID: betID})
}

func (c *Client) post(ctx context.Context, token, path string, body any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	res, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("wallet %s: %w: %w", path, domain.ErrUnavailable, err)
	}
	defer res.Body.Close()
	if res.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	var e errorResponse
	_ = json.NewDecoder(res.Body).Decode(&e)
	return fmt.Errorf("wallet %s http %d: %w", path, res.StatusCode, statusErr(res.StatusCode, e.Error))
}

// statusErr reconstrói o erro de domínio a partir do status devolvido pelo wallet-service.
func statusErr(code int, msg string) error {
	var base error
	switch {
	case code == http.StatusNotFound:
		base = domain.ErrNotFound
	case code == http.StatusBadRequest:
		base = domain.ErrInvalidInput
	case code == http.StatusUnprocessableEntity:
		base = domain.ErrInsufficientBalance
	case code == http.StatusConflict:
		base = domain.ErrAlreadyProcessed
	case code == http.StatusServiceUnavailable, code == http.StatusBadGateway, code == http.StatusGatewayTimeout:
		base = domain.ErrUnavailable
	default:
		return fmt.Errorf("unexpected status: %s", msg)
	}
	if msg == "" {
		return base
	}
	return fmt.Errorf("%w (%s)", base, msg)
}
