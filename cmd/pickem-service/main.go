package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/radieske/pickem-pools-poc/internal/livesync/ratelimit"
	phttp "github.com/radieske/pickem-pools-poc/internal/pickem/http"
	"github.com/radieske/pickem-pools-poc/internal/pickem/picks"
	kpub "github.com/radieske/pickem-pools-poc/internal/pickem/producer"
	"github.com/radieske/pickem-pools-poc/internal/pickem/repo"
	"github.com/radieske/pickem-pools-poc/internal/shared/config"
	"github.com/radieske/pickem-pools-poc/internal/shared/db"
	"github.com/radieske/pickem-pools-poc/internal/shared/kafka"
	"github.com/radieske/pickem-pools-poc/internal/shared/logger"
	"github.com/radieske/pickem-pools-poc/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	log, _ := logger.New(cfg.ServiceName, cfg.Env)
	defer log.Sync()

	// Postgres
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("pg", zap.Error(err))
	}
	defer pg.Close()

	// Redis (cache da semana corrente)
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatal("redis", zap.Error(err))
	}

	// Kafka writer (topic picks_locked)
	lockedWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicPicksLocked)
	defer lockedWriter.Close()

	// Métricas do motor de travamento
	locked := prometheus.NewCounter(prometheus.CounterOpts{Name: "pickem_picks_locked_total", Help: "palpites travados"})
	scored := prometheus.NewCounter(prometheus.CounterOpts{Name: "pickem_picks_scored_total", Help: "palpites pontuados"})
	groupErrs := prometheus.NewCounter(prometheus.CounterOpts{Name: "pickem_reconcile_group_errors_total", Help: "grupos pulados na reconciliação"})
	prometheus.MustRegister(locked, scored, groupErrs)

	store := repo.NewStore(pg)
	publ := kpub.NewKafkaPublisher(lockedWriter, nil)

	engine := picks.NewEngine(log, store, publ)
	engine.OnLocked = func(n int) { locked.Add(float64(n)) }
	engine.OnScored = func(n int) { scored.Add(float64(n)) }
	engine.OnGroupError = func() { groupErrs.Inc() }

	// Status do orçamento do provider exposto no admin (somente leitura)
	limiter := ratelimit.New(log, ratelimit.NewPostgresLog(pg), "scoreboard-provider", cfg.SyncCallsPerHour)

	api := &phttp.API{
		Log:     log,
		Repo:    store,
		Engine:  engine,
		Limiter: limiter,
		Cache:   rdb,
	}

	// metrics/health
	metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		if err := pg.PingContext(ctx); err != nil {
			return err
		}
		return rdb.Ping(ctx).Err()
	})
	log.Info("metrics/health", zap.String("addr", ":"+cfg.MetricsPort))

	apiSrv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler: api.Router(),
	}
	log.Info("pickem-service listening", zap.String("addr", apiSrv.Addr))
	if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("api", zap.Error(err))
	}
}
