package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/number-draw-platform/internal/domain"
	"github.com/radieske/number-draw-platform/internal/draw-service/commands"
	httpapi "github.com/radieske/number-draw-platform/internal/draw-service/http"
	"github.com/radieske/number-draw-platform/internal/draw-service/producer"
	"github.com/radieske/number-draw-platform/internal/draw-service/wallet"
	"github.com/radieske/number-draw-platform/internal/draw-service/ws"
	"github.com/radieske/number-draw-platform/internal/draw/ledger"
	"github.com/radieske/number-draw-platform/internal/draw/repo"
	"github.com/radieske/number-draw-platform/internal/draw/sessions"
	"github.com/radieske/number-draw-platform/internal/draw/settlement"
	"github.com/radieske/number-draw-platform/internal/shared/auth"
	"github.com/radieske/number-draw-platform/internal/shared/cache"
	"github.com/radieske/number-draw-platform/internal/shared/clock"
	"github.com/radieske/number-draw-platform/internal/shared/config"
	"github.com/radieske/number-draw-platform/internal/shared/db"
	"github.com/radieske/number-draw-platform/internal/shared/kafka"
	"github.com/radieske/number-draw-platform/internal/shared/logger"
	"github.com/radieske/number-draw-platform/internal/shared/metrics"
	"github.com/radieske/number-draw-platform/internal/shared/offline"
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
	log.Info("starting service", zap.String("service", cfg.ServiceName), zap.String("env", cfg.Env))

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

	// Postgres: sessões, apostas, resultados e carteira
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()
	if err := db.Migrate(ctx, pg); err != nil {
		log.Fatal("postgres migrate", zap.Error(err))
	}

	// Redis: leitura do cache de resultados e fan-out do WebSocket
	redisClient, err := cache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer redisClient.Close()
	results := cache.NewDraw(redisClient, cfg.ResultCacheTTL)

	// Kafka: bet_placed e draw_settled (settle manual do admin)
	publisher := producer.NewKafkaPublisher(
		kafka.NewWriter(cfg.Brokers(), cfg.TopicBetPlaced),
		kafka.NewWriter(cfg.Brokers(), cfg.TopicDrawSettled),
	)
	defer publisher.Close()

	clk := clock.Real{}
	store := repo.NewPostgres(pg)
	daily := make([]sessions.Slot, 0, len(slots))
	for _, s := range slots {
		daily = append(daily, sessions.Slot{Time: s.Time, Name: s.Name})
	}
	sessionSvc := sessions.New(store, clk, sessions.Options{Location: loc, CutoffLead: cfg.CutoffLead, Daily: daily})
	betLedger := ledger.New(store, clk, loc)

	settled, _ := metrics.Counter("draw_sessions_settled_total", "sessões liquidadas manualmente")
	_, settleErr := metrics.Stage("draw_settlement_errors_total", "erros de liquidação por estágio")
	scheduler := &settlement.Scheduler{
		Log:       log,
		Clock:     clk,
		Location:  loc,
		Sessions:  sessionSvc,
		Bets:      betLedger,
		Results:   store,
		Wallet:    wledger.New(wrepo.NewPostgres(pg), clk),
		Publisher: publisher,
		OnError:   settleErr,
	}
	scheduler.OnSettled = func(_ domain.SettlementResult) { settled.Inc() }

	// Fila offline local para comandos capturados com o Postgres fora
	queue, err := offline.Open(cfg.OfflineQueuePath, clk)
	if err != nil {
		log.Fatal("offline queue", zap.Error(err))
	}
	defer queue.Close()

	jwt := auth.JWT{Secret: []byte(cfg.JWTSecret)}
	_, placed := metrics.Counter("draw_bets_placed_total", "apostas gravadas")
	_, queued := metrics.Counter("draw_bets_queued_total", "apostas capturadas na fila offline")
	_, voided := metrics.Counter("draw_bets_voided_total", "débitos estornados após falha na colocação")
	_, cmdErr := metrics.Stage("draw_bet_errors_total", "erros de aposta por estágio")
	cmds := &commands.Service{
		Log:       log,
		Ledger:    betLedger,
		Sessions:  sessionSvc,
		Wallet:    wallet.New(cfg.WalletURL),
		Publisher: publisher,
		Queue:     queue,
		MinBet:    cfg.MinBet,
		// no replay o bearer original já expirou; o serviço assina um token do próprio usuário
		Tokens:   func(userID string) (string, error) { return jwt.Sign(userID, auth.RoleUser) },
		OnPlaced: placed,
		OnQueued: queued,
		OnVoided: voided,
		OnError:  cmdErr,
	}

	synced, _ := metrics.Counter("draw_offline_synced_total", "ações offline sincronizadas")
	syncer := &offline.Syncer{
		Queue:    queue,
		Probe:    pg.PingContext,
		Replay:   cmds.Handlers().Replay,
		Interval: cfg.OfflineSyncInterval,
		Log:      log,
		OnSynced: func(n int) { synced.Add(float64(n)) },
		OnError:  cmdErr,
	}
	go func() {
		if err := syncer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("offline syncer stopped", zap.Error(err))
		}
	}()

	// Hub WebSocket alimentado pelo Pub/Sub do notification-worker
	hub := ws.NewHub(func(*http.Request) bool { return true }) // origem validada no gateway
	ws.StartRedisSubscriber(ctx, log, redisClient, cfg.RedisPubSubChannel, hub)

	api := &httpapi.API{
		Log:      log,
		Auth:     jwt,
		Sessions: sessionSvc,
		Bets:     betLedger,
		Results:  store,
		Cache:    results,
		Settler:  scheduler,
		Commands: cmds,
		Offline:  queue,
		WS:       http.HandlerFunc(hub.HandleWS),
	}

	metricsSrv := metrics.StartMetricsServer(log, cfg.MetricsPort, func(ctx context.Context) error {
		if err := pg.PingContext(ctx); err != nil {
			return err
		}
		return redisClient.Ping(ctx).Err()
	})

	apiSrv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
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
