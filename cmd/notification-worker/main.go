package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/number-draw-platform/internal/notification-worker/consumer"
	"github.com/radieske/number-draw-platform/internal/notification-worker/notify"
	"github.com/radieske/number-draw-platform/internal/shared/cache"
	"github.com/radieske/number-draw-platform/internal/shared/config"
	"github.com/radieske/number-draw-platform/internal/shared/kafka"
	"github.com/radieske/number-draw-platform/internal/shared/logger"
	"github.com/radieske/number-draw-platform/internal/shared/metrics"
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

	redisClient, err := cache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer redisClient.Close()

	// Consumer group único para bet_placed e draw_settled
	reader := kafka.NewGroupReader(cfg.Brokers(), "notification-worker", cfg.TopicBetPlaced, cfg.TopicDrawSettled)
	defer reader.Close()

	dlqWriter := kafka.NewWriter(cfg.Brokers(), cfg.TopicNotificationsDLQ)
	defer dlqWriter.Close()

	var notifier notify.Notifier = notify.LogNotifier{Log: log}
	if cfg.NotifyWebhookURL != "" {
		notifier = notify.NewWebhook(cfg.NotifyWebhookURL)
	}

	// Métricas Prometheus para monitoramento do processamento
	consumed, _ := metrics.Counter("notify_messages_consumed_total", "mensagens consumidas")
	cached, _ := metrics.Counter("notify_cache_sets_total", "sets no cache")
	notified, _ := metrics.Counter("notify_winners_notified_total", "vencedores notificados")
	dead, _ := metrics.Counter("notify_dead_letters_total", "notificações enviadas para a DLQ")
	_, errorsBy := metrics.Stage("notify_errors_total", "erros por estágio")

	dispatcher := &notify.Dispatcher{
		Log:        log,
		Notifier:   notifier,
		MaxRetries: cfg.NotifyMaxRetries,
		Backoff:    300 * time.Millisecond,
		DLQ: func(ctx context.Context, key string, n notify.Notification) error {
			return kafka.WriteJSON(ctx, dlqWriter, key, n)
		},
		OnDead:  dead.Inc,
		OnError: errorsBy,
	}

	proc := &consumer.Processor{
		Log:              log,
		Reader:           reader,
		Cache:            cache.NewDraw(redisClient, cfg.ResultCacheTTL),
		Dispatcher:       dispatcher,
		Channel:          cfg.RedisPubSubChannel,
		BetPlacedTopic:   cfg.TopicBetPlaced,
		DrawSettledTopic: cfg.TopicDrawSettled,
		OnConsumed:       consumed.Inc,
		OnCached:         cached.Inc,
		OnNotified:       notified.Inc,
		OnError:          errorsBy,
	}

	metricsSrv := metrics.StartMetricsServer(log, cfg.MetricsPort, func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	})

	// Sinalização para shutdown gracioso (SIGINT/SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("notification-worker started",
		zap.Strings("consume", []string{cfg.TopicBetPlaced, cfg.TopicDrawSettled}),
		zap.String("dlq", cfg.TopicNotificationsDLQ),
	)
	if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("processor stopped with error", zap.Error(err))
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	_ = metricsSrv.Shutdown(shutdownCtx)
	log.Info("notification-worker stopped")
}
