package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/number-draw-platform/internal/shared/auth"
	"github.com/radieske/number-draw-platform/internal/shared/clock"
	"github.com/radieske/number-draw-platform/internal/shared/config"
	"github.com/radieske/number-draw-platform/internal/shared/db"
	"github.com/radieske/number-draw-platform/internal/shared/logger"
	"github.com/radieske/number-draw-platform/internal/shared/metrics"
	"github.com/radieske/number-draw-platform/internal/shared/offline"
	"github.com/radieske/number-draw-platform/internal/wallet-service/commands"
	whttp "github.com/radieske/number-draw-platform/internal/wallet-service/http"
	"github.com/radieske/number-draw-platform/internal/wallet-service/ledger"
	wrepo "github.com/radieske/number-draw-platform/internal/wallet-service/repo"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	// Inicializa logger estruturado
	log, err := logger.New("wallet-service", cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("starting service", zap.String("service", "wallet-service"), zap.String("env", cfg.Env))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Conexão com Postgres para operações de carteira
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()
	if err := db.Migrate(ctx, pg); err != nil {
		log.Fatal("postgres migrate", zap.Error(err))
	}

	clk := clock.Real{}
	walletLedger := ledger.New(wrepo.NewPostgres(pg), clk)

	// Fila offline: depósitos, saques e estornos capturados com o Postgres fora
	queue, err := offline.Open(cfg.OfflineQueuePath, clk)
	if err != nil {
		log.Fatal("offline queue", zap.Error(err))
	}
	defer queue.Close()

	queuedBy, _ := metrics.Stage("wallet_offline_queued_total", "comandos capturados na fila offline por tipo")
	_, syncErr := metrics.Stage("wallet_offline_errors_total", "erros de sincronização offline")
	synced, _ := metrics.Counter("wallet_offline_synced_total", "ações offline sincronizadas")
	cmds := &commands.Service{
		Log:    log,
		Ledger: walletLedger,
		Queue:  queue,
		Limits: commands.Limits{MinDeposit: cfg.MinDeposit, MinWithdrawal: cfg.MinWithdrawal},
		OnQueued: func(kind string) {
			queuedBy.WithLabelValues(kind).Inc()
		},
	}

	syncer := &offline.Syncer{
		Queue:    queue,
		Probe:    pg.PingContext,
		Replay:   cmds.Handlers().Replay,
		Interval: cfg.OfflineSyncInterval,
		Log:      log,
		OnSynced: func(n int) { synced.Add(float64(n)) },
		OnError:  syncErr,
	}
	go func() {
		if err := syncer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("offline syncer stopped", zap.Error(err))
		}
	}()

	api := whttp.NewServer(log, auth.JWT{Secret: []byte(cfg.JWTSecret)}, cmds, walletLedger, queue)

	// Servidor HTTP público (API de wallet)
	apiSrv := &http.Server{
		Addr:              ":" + cfg.HTTPPort, // ex: 8082
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Servidor de métricas e health check
	metricsSrv := metrics.StartMetricsServer(log, cfg.MetricsPort, pg.PingContext) // ex: 9098

	go func() {
		log.Info("api listening", zap.String("addr", apiSrv.Addr))
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("api srv", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	_ = apiSrv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
}
