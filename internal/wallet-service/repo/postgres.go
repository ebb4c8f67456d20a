package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/radieske/number-draw-platform/internal/domain"
	"github.com/radieske/number-draw-platform/internal/shared/db"
)

// Postgres implementa operações de carteira em banco
// Toda escrita trava a linha da carteira (lock pessimista) e grava a transação
// com idempotency_key único na mesma transação SQL.
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

const txCols = `id, user_id, kind, amount, status, description, idempotency_key, created_at`

type scanner interface{ Scan(dest ...any) error }

func scanTx(row scanner) (domain.WalletTransaction, error) {
	var t domain.WalletTransaction
	var kind, status string
	err := row.Scan(&t.ID, &t.UserID, &kind, &t.Amount, &status, &t.Description, &t.IdempotencyKey, &t.Timestamp)
	t.Kind, t.Status = domain.TxKind(kind), domain.TxStatus(status)
	return t, err
}

// lockWallet cria a carteira se não existir e retorna o saldo com a linha travada
func lockWallet(ctx context.Context, tx *sql.Tx, userID string) (walletID string, balance decimal.Decimal, err error) {
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO wallets(id, user_id, balance, version) VALUES($1,$2,0,1) ON CONFLICT (user_id) DO NOTHING`,
		uuid.NewString(), userID); err != nil {
		return "", decimal.Zero, db.Wrap("create wallet", err)
	}
	if err = tx.QueryRowContext(ctx, `SELECT id, balance FROM wallets WHERE user_id=$1 FOR UPDATE`, userID).
		Scan(&walletID, &balance); err != nil {
		return "", decimal.Zero, db.Wrap("lock wallet", err)
	}
	return walletID, balance, nil
}

func addBalance(ctx context.Context, tx *sql.Tx, walletID string, delta decimal.Decimal) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE wallets SET balance = balance + $1, version = version + 1, updated_at = NOW() WHERE id=$2`, delta, walletID)
	return db.Wrap("update balance", err)
}

func insertTx(ctx context.Context, tx *sql.Tx, t domain.WalletTransaction) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO wallet_transactions(`+txCols+`) VALUES($1,$2,$3,$4,$5,$6,$7,$8)`,
		t.ID, t.UserID, string(t.Kind), t.Amount, string(t.Status), t.Description, t.IdempotencyKey, t.Timestamp)
	return err
}

func findTxByKey(ctx context.Context, q interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}, key string, forUpdate bool) (domain.WalletTransaction, error) {
	query := `SELECT ` + txCols + ` FROM wallet_transactions WHERE idempotency_key=$1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	t, err := scanTx(q.QueryRowContext(ctx, query, key))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.WalletTransaction{}, domain.ErrNotFound
	}
	return t, db.Wrap("find transaction", err)
}

// Balance retorna o saldo do usuário (zero se ainda não há carteira)
func (p *Postgres) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	var bal decimal.Decimal
	err := p.db.QueryRowContext(ctx, `SELECT balance FROM wallets WHERE user_id=$1`, userID).Scan(&bal)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, db.Wrap("get balance", err)
	}
	return bal, nil
}

// Apply grava t e aplica delta ao saldo, atomicamente.
// Idempotente por t.IdempotencyKey: se a chave já existe devolve a transação gravada (applied=false).
// Delta negativo maior que o saldo falha com ErrInsufficientBalance sem alterar nada.
func (p *Postgres) Apply(ctx context.Context, t domain.WalletTransaction, delta decimal.Decimal) (domain.WalletTransaction, bool, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.WalletTransaction{}, false, db.Wrap("begin wallet tx", err)
	}
	defer tx.Rollback()

	walletID, balance, err := lockWallet(ctx, tx, t.UserID)
	if err != nil {
		return domain.WalletTransaction{}, false, err
	}

	// Idempotência: verifica se já existe transação para a mesma chave
	if existing, err := findTxByKey(ctx, tx, t.IdempotencyKey, false); err == nil {
		if err := ownedBy("transaction", t.IdempotencyKey, existing.UserID, t.UserID); err != nil {
			return domain.WalletTransaction{}, false, err
		}
		return existing, false, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.WalletTransaction{}, false, err
	}

	if balance.Add(delta).IsNegative() {
		return domain.WalletTransaction{}, false, domain.ErrInsufficientBalance
	}
	if err = addBalance(ctx, tx, walletID, delta); err != nil {
		return domain.WalletTransaction{}, false, err
	}
	if err = insertTx(ctx, tx, t); err != nil {
		if db.IsUniqueViolation(err) {
			// corrida com a mesma chave em outra carteira: a primeira vence
			tx.Rollback()
			existing, ferr := findTxByKey(ctx, p.db, t.IdempotencyKey, false)
			if ferr != nil {
				return domain.WalletTransaction{}, false, ferr
			}
			if err := ownedBy("transaction", t.IdempotencyKey, existing.UserID, t.UserID); err != nil {
				return domain.WalletTransaction{}, false, err
			}
			return existing, false, nil
		}
		return domain.WalletTransaction{}, false, db.Wrap("insert transaction", err)
	}

	if err = tx.Commit(); err != nil {
		return domain.WalletTransaction{}, false, db.Wrap("commit wallet tx", err)
	}
	return t, true, nil
}

// Void marca como failed uma transação completed de userID e devolve o valor ao saldo.
// Idempotente: transação já failed não é tocada (applied=false).
func (p *Postgres) Void(ctx context.Context, key, userID string) (domain.WalletTransaction, bool, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.WalletTransaction{}, false, db.Wrap("begin void tx", err)
	}
	defer tx.Rollback()

	t, err := findTxByKey(ctx, tx, key, true)
	if err != nil {
		return domain.WalletTransaction{}, false, err
	}
	if t.UserID != userID {
		return domain.WalletTransaction{}, false, domain.ErrNotFound
	}
	if t.Status != domain.TxCompleted {
		return t, false, nil
	}
	walletID, _, err := lockWallet(ctx, tx, t.UserID)
	if err != nil {
		return domain.WalletTransaction{}, false, err
	}
	if err = addBalance(ctx, tx, walletID, t.Amount); err != nil {
		return domain.WalletTransaction{}, false, err
	}
	if _, err = tx.ExecContext(ctx, `UPDATE wallet_transactions SET status=$1 WHERE id=$2`, string(domain.TxFailed), t.ID); err != nil {
		return domain.WalletTransaction{}, false, db.Wrap("void transaction", err)
	}
	if err = tx.Commit(); err != nil {
		return domain.WalletTransaction{}, false, db.Wrap("commit void", err)
	}
	t.Status = domain.TxFailed
	return t, true, nil
}

const wrCols = `id, user_id, amount, status, requested_at, processed_at, processed_by`

func scanWithdrawal(row scanner) (domain.WithdrawalRequest, error) {
	var w domain.WithdrawalRequest
	var status string
	var processedAt sql.NullTime
	var processedBy sql.NullString
	err := row.Scan(&w.ID, &w.UserID, &w.Amount, &status, &w.RequestedAt, &processedAt, &processedBy)
	w.Status = domain.WithdrawalStatus(status)
	if processedAt.Valid {
		at := processedAt.Time
		w.ProcessedAt = &at
	}
	w.ProcessedBy = processedBy.String
	return w, err
}

// CreateWithdrawal debita o saldo e grava o pedido pending e a transação pending juntos.
// Id já gravado devolve o pedido existente sem debitar de novo (applied=false).
func (p *Postgres) CreateWithdrawal(ctx context.Context, w domain.WithdrawalRequest, t domain.WalletTransaction) (domain.WithdrawalRequest, bool, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.WithdrawalRequest{}, false, db.Wrap("begin withdrawal tx", err)
	}
	defer tx.Rollback()

	walletID, balance, err := lockWallet(ctx, tx, w.UserID)
	if err != nil {
		return domain.WithdrawalRequest{}, false, err
	}

	// replay do mesmo pedido: a carteira travada serializa com a gravação original
	existing, err := scanWithdrawal(tx.QueryRowContext(ctx, `SELECT `+wrCols+` FROM withdrawal_requests WHERE id=$1`, w.ID))
	if err == nil {
		if err := ownedBy("withdrawal", w.ID, existing.UserID, w.UserID); err != nil {
			return domain.WithdrawalRequest{}, false, err
		}
		return existing, false, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return domain.WithdrawalRequest{}, false, db.Wrap("lookup withdrawal", err)
	}

	if w.Amount.GreaterThan(balance) {
		return domain.WithdrawalRequest{}, false, domain.ErrInsufficientBalance
	}
	if err = addBalance(ctx, tx, walletID, w.Amount.Neg()); err != nil {
		return domain.WithdrawalRequest{}, false, err
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO withdrawal_requests(`+wrCols+`) VALUES($1,$2,$3,$4,$5,NULL,NULL)`,
		w.ID, w.UserID, w.Amount, string(w.Status), w.RequestedAt); err != nil {
		if db.IsUniqueViolation(err) {
			// mesmo id gravado por outro usuário
			return domain.WithdrawalRequest{}, false, fmt.Errorf("%w: withdrawal %s belongs to another user", domain.ErrAlreadyProcessed, w.ID)
		}
		return domain.WithdrawalRequest{}, false, db.Wrap("insert withdrawal", err)
	}
	if err = insertTx(ctx, tx, t); err != nil {
		return domain.WithdrawalRequest{}, false, db.Wrap("insert withdrawal transaction", err)
	}
	if err = tx.Commit(); err != nil {
		return domain.WithdrawalRequest{}, false, db.Wrap("commit withdrawal", err)
	}
	return w, true, nil
}

// ResolveWithdrawal faz a transição terminal do pedido e da transação associada (txKey).
func (p *Postgres) ResolveWithdrawal(ctx context.Context, id string, status domain.WithdrawalStatus, txStatus domain.TxStatus, txKey, by string, at time.Time) (domain.WithdrawalRequest, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.WithdrawalRequest{}, db.Wrap("begin resolve tx", err)
	}
	defer tx.Rollback()

	w, err := scanWithdrawal(tx.QueryRowContext(ctx, `SELECT `+wrCols+` FROM withdrawal_requests WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.WithdrawalRequest{}, domain.ErrWithdrawalNotFound
	}
	if err != nil {
		return domain.WithdrawalRequest{}, db.Wrap("lock withdrawal", err)
	}
	if w.Status != domain.WithdrawalPending {
		return w, domain.ErrAlreadyProcessed
	}

	if _, err = tx.ExecContext(ctx, `UPDATE withdrawal_requests SET status=$1, processed_at=$2, processed_by=$3 WHERE id=$4`,
		string(status), at, by, id); err != nil {
		return domain.WithdrawalRequest{}, db.Wrap("update withdrawal", err)
	}
	if _, err = tx.ExecContext(ctx, `UPDATE wallet_transactions SET status=$1 WHERE idempotency_key=$2`,
		string(txStatus), txKey); err != nil {
		return domain.WithdrawalRequest{}, db.Wrap("update withdrawal transaction", err)
	}
	if err = tx.Commit(); err != nil {
		return domain.WithdrawalRequest{}, db.Wrap("commit resolve", err)
	}
	w.Status, w.ProcessedAt, w.ProcessedBy = status, &at, by
	return w, nil
}

func (p *Postgres) GetWithdrawal(ctx context.Context, id string) (domain.WithdrawalRequest, error) {
	w, err := scanWithdrawal(p.db.QueryRowContext(ctx, `SELECT `+wrCols+` FROM withdrawal_requests WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.WithdrawalRequest{}, domain.ErrWithdrawalNotFound
	}
	return w, db.Wrap("get withdrawal", err)
}

// ListWithdrawals filtra por status (vazio = todos) e, se informado, por usuário
func (p *Postgres) ListWithdrawals(ctx context.Context, status domain.WithdrawalStatus, userID string) ([]domain.WithdrawalRequest, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+wrCols+` FROM withdrawal_requests
		WHERE ($1 = '' OR status = $1) AND ($2 = '' OR user_id = $2)
		ORDER BY requested_at, id`, string(status), userID)
	if err != nil {
		return nil, db.Wrap("list withdrawals", err)
	}
	defer rows.Close()
	var out []domain.WithdrawalRequest
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, db.Wrap("scan withdrawal", err)
		}
		out = append(out, w)
	}
	return out, db.Wrap("list withdrawals", rows.Err())
}

// ListTransactions retorna o extrato do usuário, mais recentes primeiro
func (p *Postgres) ListTransactions(ctx context.Context, userID string, limit int) ([]domain.WalletTransaction, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := p.db.QueryContext(ctx, `SELECT `+txCols+` FROM wallet_transactions
		WHERE user_id=$1 ORDER BY created_at DESC, id LIMIT $2`, userID, limit)
	if err != nil {
		return nil, db.Wrap("list transactions", err)
	}
	defer rows.Close()
	var out []domain.WalletTransaction
	for rows.Next() {
		t, err := scanTx(rows)
		if err != nil {
			return nil, db.Wrap("scan transaction", err)
		}
		out = append(out, t)
	}
	return out, db.Wrap("list transactions", rows.Err())
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }
