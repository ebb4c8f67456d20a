// Package engine calcula o resultado de um sorteio. Não tem efeitos colaterais:
// persistência, créditos e transição de estado ficam com o settlement scheduler.
package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/radieske/number-draw-platform/internal/domain"
)

// PayoutMultiplier é a regra 9x: cada aposta vencedora recebe 9 vezes o próprio valor.
var PayoutMultiplier = decimal.NewFromInt(9)

// Outcome agrega o resultado e os pagamentos individuais de uma sessão.
// Result.ID e Result.SettledAt ficam a cargo de quem persiste.
type Outcome struct {
	Result        domain.SettlementResult
	Payouts       []domain.Payout
	TotalsByDigit [10]decimal.Decimal
}

// Settle aplica as regras de liquidação. Retorna ok=false quando não há apostas
// da sessão: nesse caso não existe resultado, a sessão apenas é encerrada.
func Settle(session domain.Session, bets []domain.Bet) (Outcome, bool) {
	var out Outcome
	for d := range out.TotalsByDigit {
		out.TotalsByDigit[d] = decimal.Zero
	}

	own := make([]domain.Bet, 0, len(bets))
	for _, b := range bets {
		if b.SessionID != session.ID || b.Digit < 0 || b.Digit > 9 {
			continue
		}
		own = append(own, b)
		out.TotalsByDigit[b.Digit] = out.TotalsByDigit[b.Digit].Add(b.Amount)
	}
	if len(own) == 0 {
		return Outcome{}, false
	}

	// menor total vence; empate fica com o menor dígito (só troca em melhora estrita)
	winning := 0
	for d := 1; d <= 9; d++ {
		if out.TotalsByDigit[d].LessThan(out.TotalsByDigit[winning]) {
			winning = d
		}
	}

	res := domain.SettlementResult{
		SessionID:       session.ID,
		WinningDigit:    winning,
		TotalPool:       session.Pool,
		AdminFee:        decimal.Zero,
		PerWinnerPayout: decimal.Zero,
	}

	if out.TotalsByDigit[winning].IsZero() && session.Pool.IsPositive() {
		res.IsZeroBetWin = true
		res.AdminFee = session.Pool
		out.Result = res
		return out, true
	}

	out.Payouts = Payouts(session.ID, winning, own)
	res.WinnerCount = len(out.Payouts)
	if res.WinnerCount > 0 {
		// apenas exibição; o pagamento real é por aposta
		res.PerWinnerPayout = out.Payouts[0].Amount
	}
	out.Result = res
	return out, true
}

// Payouts lista os créditos 9x das apostas da sessão no dígito vencedor, na ordem das apostas.
// Usado também para reconciliar créditos de um resultado já persistido.
func Payouts(sessionID string, winningDigit int, bets []domain.Bet) []domain.Payout {
	var out []domain.Payout
	for _, b := range bets {
		if b.SessionID != sessionID || b.Digit != winningDigit {
			continue
		}
		out = append(out, domain.Payout{
			BetID:  b.ID,
			UserID: b.UserID,
			Amount: b.Amount.Mul(PayoutMultiplier),
		})
	}
	return out
}

// Validate confere a consistência de um resultado calculado.
func Validate(r domain.SettlementResult) error {
	var errs []error
	if r.WinningDigit < 0 || r.WinningDigit > 9 {
		errs = append(errs, fmt.Errorf("winning digit %d out of range", r.WinningDigit))
	}
	if r.TotalPool.IsNegative() || r.AdminFee.IsNegative() || r.PerWinnerPayout.IsNegative() {
		errs = append(errs, errors.New("negative amount"))
	}
	if r.WinnerCount < 0 {
		errs = append(errs, errors.New("negative winner count"))
	}
	if r.IsZeroBetWin && !r.AdminFee.Equal(r.TotalPool) {
		errs = append(errs, errors.New("zero-bet win must retain the whole pool"))
	}
	if !r.IsZeroBetWin && !r.AdminFee.IsZero() {
		errs = append(errs, errors.New("admin fee only applies to zero-bet wins"))
	}
	if r.IsZeroBetWin && r.WinnerCount != 0 {
		errs = append(errs, errors.New("zero-bet win cannot have winners"))
	}
	return errors.Join(errs...)
}

// Summary formata a distribuição por dígito para log.
func Summary(o Outcome) string {
	var b strings.Builder
	for d, total := range o.TotalsByDigit {
		if d > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%d=%s", d, total.String())
	}
	return b.String()
}
