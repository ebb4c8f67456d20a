package offline

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Syncer verifica periodicamente se o storage voltou e drena a fila.
type Syncer struct {
	Queue    *Queue
	Probe    func(ctx context.Context) error // ex.: ping no Postgres
	Replay   ReplayFunc
	Interval time.Duration
	Log      *zap.Logger

	OnSynced func(n int)  // métricas
	OnError  func(string) // métricas por fase
}

// Run executa RunOnce na partida e a cada Interval até o contexto ser cancelado.
func (s *Syncer) Run(ctx context.Context) error {
	interval := s.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	_ = s.RunOnce(ctx)

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			_ = s.RunOnce(ctx)
		}
	}
}

// RunOnce drena a fila se o storage responder; storage fora não é erro.
func (s *Syncer) RunOnce(ctx context.Context) error {
	log := s.Log
	if log == nil {
		log = zap.NewNop()
	}
	if s.Probe != nil {
		if err := s.Probe(ctx); err != nil {
			log.Debug("offline sync skipped, storage unreachable", zap.Error(err))
			return nil
		}
	}
	n, err := s.Queue.Drain(ctx, s.Replay)
	if n > 0 {
		log.Info("offline actions synced", zap.Int("count", n))
		if s.OnSynced != nil {
			s.OnSynced(n)
		}
	}
	if err != nil {
		log.Warn("offline drain halted", zap.Error(err))
		if s.OnError != nil {
			s.OnError("drain")
		}
	}
	return err
}
