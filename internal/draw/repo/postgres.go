package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/radieske/number-draw-platform/internal/domain"
	"github.com/radieske/number-draw-platform/internal/shared/db"
)

// SessionFilter filtra listagens de sessões; campos vazios não filtram.
// UpTo limita a draw_date <= UpTo (datas "YYYY-MM-DD" ordenam lexicograficamente).
type SessionFilter struct {
	Date  string
	UpTo  string
	State domain.SessionState
}

// BetCheck roda com a linha da sessão bloqueada, antes da escrita da aposta;
// pode completar a aposta (ex.: PlacedAt).
type BetCheck func(s domain.Session, b *domain.Bet) error

// Postgres implementa a persistência de sessões, apostas e resultados.
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

const sessionCols = `id, name, scheduled_time, draw_date, betting_cutoff, pool, state, created_by`

type scanner interface{ Scan(dest ...any) error }

func scanSession(row scanner) (domain.Session, error) {
	var s domain.Session
	var state string
	err := row.Scan(&s.ID, &s.Name, &s.ScheduledTime, &s.Date, &s.BettingCutoff, &s.Pool, &state, &s.CreatedBy)
	s.State = domain.SessionState(state)
	return s, err
}

// InsertSession cria a sessão; retorna created=false se o id já existia.
func (p *Postgres) InsertSession(ctx context.Context, s domain.Session) (bool, error) {
	res, err := p.db.ExecContext(ctx, `
		INSERT INTO draw_sessions (`+sessionCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO NOTHING`,
		s.ID, s.Name, s.ScheduledTime, s.Date, s.BettingCutoff, s.Pool, string(s.State), s.CreatedBy)
	if err != nil {
		return false, db.Wrap("insert session", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, db.Wrap("insert session", err)
	}
	return n == 1, nil
}

func (p *Postgres) GetSession(ctx context.Context, id string) (domain.Session, error) {
	s, err := scanSession(p.db.QueryRowContext(ctx, `SELECT `+sessionCols+` FROM draw_sessions WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, db.Wrap("get session", err)
	}
	return s, nil
}

func (p *Postgres) ListSessions(ctx context.Context, f SessionFilter) ([]domain.Session, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, strings.Replace(cond, "?", "$"+strconv.Itoa(len(args)), 1))
	}
	if f.Date != "" {
		add("draw_date = ?", f.Date)
	}
	if f.UpTo != "" {
		add("draw_date <= ?", f.UpTo)
	}
	if f.State != "" {
		add("state = ?", string(f.State))
	}
	q := `SELECT ` + sessionCols + ` FROM draw_sessions`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY draw_date, scheduled_time, id`

	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, db.Wrap("list sessions", err)
	}
	defer rows.Close()
	var out []domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, db.Wrap("scan session", err)
		}
		out = append(out, s)
	}
	return out, db.Wrap("list sessions", rows.Err())
}

// MarkSettled faz a transição Active -> Settled; idempotente.
func (p *Postgres) MarkSettled(ctx context.Context, id string) (bool, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE draw_sessions SET state=$1 WHERE id=$2 AND state=$3`,
		string(domain.SessionSettled), id, string(domain.SessionActive))
	if err != nil {
		return false, db.Wrap("mark settled", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, db.Wrap("mark settled", err)
	}
	if n == 0 {
		if _, err := p.GetSession(ctx, id); err != nil {
			return false, err
		}
	}
	return n == 1, nil
}

// AppendBet grava a aposta e incrementa o pool da sessão na mesma transação.
// Lock pessimista na linha da sessão serializa apostas concorrentes.
// Se o id da aposta já existir, retorna a aposta gravada sem tocar no pool.
func (p *Postgres) AppendBet(ctx context.Context, b domain.Bet, check BetCheck) (domain.Bet, bool, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Bet{}, false, db.Wrap("begin bet tx", err)
	}
	defer tx.Rollback()

	s, err := scanSession(tx.QueryRowContext(ctx, `SELECT `+sessionCols+` FROM draw_sessions WHERE id=$1 FOR UPDATE`, b.SessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Bet{}, false, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Bet{}, false, db.Wrap("lock session", err)
	}

	// Idempotência: replay de uma aposta já gravada
	existing, err := scanBet(tx.QueryRowContext(ctx, `SELECT `+betCols+` FROM draw_bets WHERE id=$1`, b.ID))
	if err == nil {
		if err := sameBet(existing, b); err != nil {
			return domain.Bet{}, false, err
		}
		return existing, false, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return domain.Bet{}, false, db.Wrap("lookup bet", err)
	}

	if check != nil {
		if err := check(s, &b); err != nil {
			return domain.Bet{}, false, err
		}
	}

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO draw_bets (`+betCols+`) VALUES ($1,$2,$3,$4,$5,$6)`,
		b.ID, b.UserID, b.SessionID, b.Digit, b.Amount, b.PlacedAt); err != nil {
		if db.IsUniqueViolation(err) {
			// id gravado em paralelo a partir de outra sessão
			return domain.Bet{}, false, fmt.Errorf("%w: bet %s already exists", domain.ErrAlreadyProcessed, b.ID)
		}
		return domain.Bet{}, false, db.Wrap("insert bet", err)
	}
	if _, err = tx.ExecContext(ctx, `UPDATE draw_sessions SET pool = pool + $1 WHERE id=$2`, b.Amount, b.SessionID); err != nil {
		return domain.Bet{}, false, db.Wrap("increment pool", err)
	}

	if err = tx.Commit(); err != nil {
		return domain.Bet{}, false, db.Wrap("commit bet", err)
	}
	return b, true, nil
}

const betCols = `id, user_id, session_id, digit, amount, placed_at`

func scanBet(row scanner) (domain.Bet, error) {
	var b domain.Bet
	err := row.Scan(&b.ID, &b.UserID, &b.SessionID, &b.Digit, &b.Amount, &b.PlacedAt)
	return b, err
}

func (p *Postgres) listBets(ctx context.Context, where string, arg string) ([]domain.Bet, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+betCols+` FROM draw_bets WHERE `+where+` ORDER BY placed_at, id`, arg)
	if err != nil {
		return nil, db.Wrap("list bets", err)
	}
	defer rows.Close()
	var out []domain.Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, db.Wrap("scan bet", err)
		}
		out = append(out, b)
	}
	return out, db.Wrap("list bets", rows.Err())
}

func (p *Postgres) ListBetsBySession(ctx context.Context, sessionID string) ([]domain.Bet, error) {
	return p.listBets(ctx, "session_id=$1", sessionID)
}

func (p *Postgres) ListBetsByUser(ctx context.Context, userID string) ([]domain.Bet, error) {
	return p.listBets(ctx, "user_id=$1", userID)
}

const resultCols = `id, session_id, winning_digit, total_pool, admin_fee, winner_count, per_winner_payout, is_zero_bet_win, settled_at`

func scanResult(row scanner) (domain.SettlementResult, error) {
	var r domain.SettlementResult
	err := row.Scan(&r.ID, &r.SessionID, &r.WinningDigit, &r.TotalPool, &r.AdminFee,
		&r.WinnerCount, &r.PerWinnerPayout, &r.IsZeroBetWin, &r.SettledAt)
	return r, err
}

// InsertResult é o compare-and-set da liquidação: a constraint UNIQUE(session_id)
// garante um único resultado por sessão; quem perde a corrida recebe ErrAlreadySettled.
func (p *Postgres) InsertResult(ctx context.Context, r domain.SettlementResult) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO settlement_results (`+resultCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		r.ID, r.SessionID, r.WinningDigit, r.TotalPool, r.AdminFee,
		r.WinnerCount, r.PerWinnerPayout, r.IsZeroBetWin, r.SettledAt)
	if db.IsUniqueViolation(err) {
		return domain.ErrAlreadySettled
	}
	return db.Wrap("insert result", err)
}

func (p *Postgres) GetResultBySession(ctx context.Context, sessionID string) (domain.SettlementResult, error) {
	r, err := scanResult(p.db.QueryRowContext(ctx, `SELECT `+resultCols+` FROM settlement_results WHERE session_id=$1`, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SettlementResult{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.SettlementResult{}, db.Wrap("get result", err)
	}
	return r, nil
}

func (p *Postgres) ListResults(ctx context.Context, limit int) ([]domain.SettlementResult, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx, `SELECT `+resultCols+` FROM settlement_results ORDER BY settled_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, db.Wrap("list results", err)
	}
	defer rows.Close()
	var out []domain.SettlementResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, db.Wrap("scan result", err)
		}
		out = append(out, r)
	}
	return out, db.Wrap("list results", rows.Err())
}

// Ping expõe a checagem de conectividade usada pelo healthz e pelo offline syncer.
func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }
