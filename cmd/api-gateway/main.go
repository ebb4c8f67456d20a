package main

import (
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/radieske/number-draw-platform/internal/shared/config"
	"github.com/radieske/number-draw-platform/internal/shared/logger"
	"github.com/radieske/number-draw-platform/internal/shared/metrics"
)

func rp(to string) (*httputil.ReverseProxy, error) {
	u, err := url.Parse(to)
	if err != nil {
		return nil, err
	}
	return httputil.NewSingleHostReverseProxy(u), nil
}

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

	// targets
	draw, err := rp(cfg.DrawURL)
	if err != nil {
		log.Fatal("draw url", zap.String("url", cfg.DrawURL), zap.Error(err))
	}
	wallet, err := rp(cfg.WalletURL)
	if err != nil {
		log.Fatal("wallet url", zap.String("url", cfg.WalletURL), zap.Error(err))
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)

	// sessões, apostas, resultados e /ws (ex.: /api/draw/v1/sessions -> draw-service)
	r.Handle("/api/draw/*", http.StripPrefix("/api/draw", draw))

	// wallet (ex.: /api/wallet/wallet -> wallet-service)
	r.Handle("/api/wallet/*", http.StripPrefix("/api/wallet", wallet))

	metricsSrv := metrics.StartMetricsServer(log, cfg.MetricsPort, nil)
	defer metricsSrv.Close()

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           withCORS(r),
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Info("api-gateway listening", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("gateway failed", zap.Error(err))
	}
}

func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.ServeHTTP(w, r)
	})
}
