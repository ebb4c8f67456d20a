// Package cache guarda no Redis o pool ao vivo e o último resultado de cada sessão.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/radieske/number-draw-platform/pkg/contracts/events"
)

func ConnectRedis(addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return rdb, nil
}

func keyResult(sessionID string) string { return "draw:result:" + sessionID }
func keyPool(sessionID string) string   { return "draw:pool:" + sessionID }

const keyLatest = "draw:results:latest"

// Draw é o cache de leitura do draw-service, escrito pelo notification-worker.
type Draw struct {
	R   *redis.Client
	TTL time.Duration
}

func NewDraw(r *redis.Client, ttl time.Duration) *Draw { return &Draw{R: r, TTL: ttl} }

// SetResult grava o resultado e o coloca no topo da lista dos mais recentes (máx. 50).
func (c *Draw) SetResult(ctx context.Context, ev events.DrawSettled) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	pipe := c.R.TxPipeline()
	pipe.Set(ctx, keyResult(ev.SessionID), b, c.TTL)
	pipe.LRem(ctx, keyLatest, 0, ev.SessionID)
	pipe.LPush(ctx, keyLatest, ev.SessionID)
	pipe.LTrim(ctx, keyLatest, 0, 49)
	_, err = pipe.Exec(ctx)
	return err
}

// GetResult devolve found=false em cache miss.
func (c *Draw) GetResult(ctx context.Context, sessionID string) (events.DrawSettled, bool, error) {
	var ev events.DrawSettled
	b, err := c.R.Get(ctx, keyResult(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ev, false, nil
	}
	if err != nil {
		return ev, false, err
	}
	return ev, true, json.Unmarshal(b, &ev)
}

// SetPool só avança o valor: eventos fora de ordem não regridem o pool exibido.
func (c *Draw) SetPool(ctx context.Context, sessionID string, pool decimal.Decimal) error {
	key := keyPool(sessionID)
	return c.R.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, key).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil {
			if old, perr := decimal.NewFromString(cur); perr == nil && old.GreaterThanOrEqual(pool) {
				return nil
			}
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, pool.String(), c.TTL)
			return nil
		})
		return err
	}, key)
}

func (c *Draw) GetPool(ctx context.Context, sessionID string) (decimal.Decimal, bool, error) {
	s, err := c.R.Get(ctx, keyPool(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	d, err := decimal.NewFromString(s)
	return d, err == nil, err
}

// Broadcast publica uma atualização no canal consumido pelo hub WebSocket.
func (c *Draw) Broadcast(ctx context.Context, channel string, upd events.DrawUpdate) error {
	b, err := json.Marshal(upd)
	if err != nil {
		return err
	}
	return c.R.Publish(ctx, channel, b).Err()
}
