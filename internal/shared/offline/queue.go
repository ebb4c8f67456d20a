// Package offline guarda comandos capturados enquanto o Postgres está fora
// e os reaplica, em ordem de captura, quando a conexão volta.
package offline

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/radieske/number-draw-platform/internal/domain"
	"github.com/radieske/number-draw-platform/internal/shared/clock"
)

const timeFormat = time.RFC3339Nano

// Action é um comando pendente. ID cresce monotonicamente e define a ordem de replay.
type Action struct {
	ID         int64           `json:"id"`
	Kind       string          `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	CapturedAt time.Time       `json:"capturedAt"`
	Synced     bool            `json:"synced"`
	Attempts   int             `json:"attempts"`
	LastError  string          `json:"lastError,omitempty"`
}

// ReplayFunc reaplica uma ação contra o storage durável.
type ReplayFunc func(ctx context.Context, a Action) error

// Handlers despacha o replay pelo Kind da ação.
type Handlers map[string]ReplayFunc

func (h Handlers) Replay(ctx context.Context, a Action) error {
	fn, ok := h[a.Kind]
	if !ok {
		return fmt.Errorf("no replay handler for %q", a.Kind)
	}
	return fn(ctx, a)
}

// Queue é a fila FIFO durável em SQLite local.
type Queue struct {
	db    *sql.DB
	clock clock.Clock
	drain sync.Mutex // um drain por vez
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS offline_actions (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		kind        TEXT NOT NULL,
		payload     TEXT NOT NULL,
		captured_at TEXT NOT NULL,
		synced      INTEGER NOT NULL DEFAULT 0,
		attempts    INTEGER NOT NULL DEFAULT 0,
		last_error  TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_offline_actions_pending ON offline_actions (synced, id)`,
}

// Open abre (ou cria) a fila no arquivo path.
func Open(path string, clk clock.Clock) (*Queue, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("offline queue path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply offline schema: %w", err)
		}
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Queue{db: db, clock: clk}, nil
}

func (q *Queue) Close() error { return q.db.Close() }

// Enqueue serializa payload em JSON e anexa ao fim da fila.
func (q *Queue) Enqueue(ctx context.Context, kind string, payload any) (Action, error) {
	if kind == "" {
		return Action{}, fmt.Errorf("%w: action kind required", domain.ErrInvalidInput)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Action{}, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	a := Action{Kind: kind, Payload: raw, CapturedAt: q.clock.Now().UTC()}
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO offline_actions (kind, payload, captured_at) VALUES (?, ?, ?)`,
		a.Kind, string(a.Payload), a.CapturedAt.Format(timeFormat))
	if err != nil {
		return Action{}, fmt.Errorf("enqueue %s: %w", kind, err)
	}
	if a.ID, err = res.LastInsertId(); err != nil {
		return Action{}, fmt.Errorf("enqueue %s: %w", kind, err)
	}
	return a, nil
}

func scanAction(rows *sql.Rows) (Action, error) {
	var (
		a        Action
		payload  string
		captured string
	)
	if err := rows.Scan(&a.ID, &a.Kind, &payload, &captured, &a.Synced, &a.Attempts, &a.LastError); err != nil {
		return Action{}, err
	}
	a.Payload = json.RawMessage(payload)
	t, err := time.Parse(timeFormat, captured)
	if err != nil {
		return Action{}, fmt.Errorf("parse captured_at %q: %w", captured, err)
	}
	a.CapturedAt = t
	return a, nil
}

// Pending lista as ações ainda não sincronizadas, em ordem de captura.
func (q *Queue) Pending(ctx context.Context) ([]Action, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT id, kind, payload, captured_at, synced, attempts, last_error
		FROM offline_actions WHERE synced = 0 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	defer rows.Close()
	var out []Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Discard remove uma ação pendente (saída do operador para um replay que nunca vai passar).
func (q *Queue) Discard(ctx context.Context, id int64) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM offline_actions WHERE id = ? AND synced = 0`, id)
	if err != nil {
		return fmt.Errorf("discard %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("offline action %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

// Drain reaplica as pendentes estritamente em ordem. Cada ação só é marcada synced
// depois do replay com sucesso; a primeira falha registra a tentativa e interrompe o drain.
func (q *Queue) Drain(ctx context.Context, replay ReplayFunc) (int, error) {
	q.drain.Lock()
	defer q.drain.Unlock()

	pending, err := q.Pending(ctx)
	if err != nil {
		return 0, err
	}
	synced := 0
	for _, a := range pending {
		if err := ctx.Err(); err != nil {
			return synced, err
		}
		if rerr := replay(ctx, a); rerr != nil {
			if _, err := q.db.ExecContext(ctx,
				`UPDATE offline_actions SET attempts = attempts + 1, last_error = ? WHERE id = ?`,
				rerr.Error(), a.ID); err != nil {
				return synced, fmt.Errorf("record replay failure of %d: %w", a.ID, err)
			}
			return synced, fmt.Errorf("replay offline action %d (%s): %w", a.ID, a.Kind, rerr)
		}
		if _, err := q.db.ExecContext(ctx,
			`UPDATE offline_actions SET synced = 1, attempts = attempts + 1, last_error = '' WHERE id = ?`, a.ID); err != nil {
			return synced, fmt.Errorf("mark %d synced: %w", a.ID, err)
		}
		synced++
	}
	return synced, nil
}
