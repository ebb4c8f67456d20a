package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/number-draw-platform/internal/domain"
	"github.com/radieske/number-draw-platform/internal/draw-service/producer"
	"github.com/radieske/number-draw-platform/internal/draw/ledger"
	"github.com/radieske/number-draw-platform/internal/draw/repo"
	"github.com/radieske/number-draw-platform/internal/draw/sessions"
	"github.com/radieske/number-draw-platform/internal/draw/settlement"
	"github.com/radieske/number-draw-platform/internal/shared/clock"
	"github.com/radieske/number-draw-platform/internal/shared/config"
	"github.com/radieske/number-draw-platform/internal/shared/cronrunner"
	"github.com/radieske/number-draw-platform/internal/shared/db"
	"github.com/radieske/number-draw-platform/internal/shared/kafka"
	"github.com/radieske/number-draw-platform/internal/shared/logger"
	"github.com/radieske/number-draw-platform/internal/shared/metrics"
	wledger "github.com/radieske/number-draw-platform/internal/wallet-service/ledger"
	wrepo "github.com/radieske/number-draw-platform/internal/wallet-service/repo"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Sinalização para shutdown gracioso (SIGINT/SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	loc, err := cfg.Location()
	if err != nil {
		log.Fatal("draw timezone", zap.Error(err))
	}
	slots, err := cfg.Slots()
	if err != nil {
		log.Fatal("daily sessions", zap.Error(err))
	}

	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()
	if err := db.Migrate(ctx, pg); err != nil {
		log.Fatal("postgres migrate", zap.Error(err))
	}

	publisher := producer.NewKafkaPublisher(nil, kafka.NewWriter(cfg.Brokers(), cfg.TopicDrawSettled))
	defer publisher.Close()

	clk := clock.Real{}
	store := repo.NewPostgres(pg)
	daily := make([]sessions.Slot, 0, len(slots))
	for _, s := range slots {
		daily = append(daily, sessions.Slot{Time: s.Time, Name: s.Name})
	}
	sessionSvc := sessions.New(store, clk, sessions.Options{Location: loc, CutoffLead: cfg.CutoffLead, Daily: daily})

	// Métricas Prometheus da liquidação
	settled, _ := metrics.Counter("settlement_sessions_settled_total", "sessões liquidadas com resultado")
	empty, _ := metrics.Counter("settlement_sessions_empty_total", "sessões fechadas sem apostas")
	_, credited := metrics.Counter("settlement_credits_total", "créditos de prêmio aplicados")
	_, errorsBy := metrics.Stage("settlement_errors_total", "erros por estágio")
	created, _ := metrics.Counter("settlement_daily_sessions_created_total", "sessões diárias criadas")

	scheduler := &settlement.Scheduler{
		Log:       log,
		Clock:     clk,
		Location:  loc,
		Sessions:  sessionSvc,
		Bets:      ledger.New(store, clk, loc),
		Results:   store,
		Wallet:    wledger.New(wrepo.NewPostgres(pg), clk),
		Publisher: publisher,
		OnSettled: func(domain.SettlementResult) { settled.Inc() },
		OnEmpty:   func(string) { empty.Inc() },
		OnCredit:  credited,
		OnError:   errorsBy,
	}

	ensureDaily := func(ctx context.Context) {
		sess, err := sessionSvc.EnsureDaily(ctx, "")
		if err != nil {
			errorsBy("daily_sessions")
			log.Warn("ensure daily sessions failed", zap.Error(err))
			return
		}
		created.Add(float64(len(sess)))
		for _, s := range sess {
			log.Info("daily session created", zap.String("session_id", s.ID), zap.String("scheduled_time", s.ScheduledTime))
		}
	}

	// estado inicial: sessões de hoje e o que venceu enquanto o worker estava fora
	ensureDaily(ctx)
	_ = scheduler.Tick(ctx)

	runner := cronrunner.New(log, ctx, loc)
	if _, err := runner.Add(cfg.SettlementSchedule, func(ctx context.Context) { _ = scheduler.Tick(ctx) }); err != nil {
		log.Fatal("settlement schedule", zap.String("spec", cfg.SettlementSchedule), zap.Error(err))
	}
	if _, err := runner.Add(cfg.DailySessionSchedule, ensureDaily); err != nil {
		log.Fatal("daily session schedule", zap.String("spec", cfg.DailySessionSchedule), zap.Error(err))
	}
	runner.Start()

	metricsSrv := metrics.StartMetricsServer(log, cfg.MetricsPort, pg.PingContext)

	log.Info("settlement-worker started",
		zap.String("settlement_schedule", cfg.SettlementSchedule),
		zap.String("daily_schedule", cfg.DailySessionSchedule),
		zap.String("publish", cfg.TopicDrawSettled),
	)
	<-ctx.Done()

	runner.Stop()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	_ = metricsSrv.Shutdown(shutdownCtx)
	log.Info("settlement-worker stopped")
}
