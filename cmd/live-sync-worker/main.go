package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/pickem-pools-poc/internal/livesync/client"
	"github.com/radieske/pickem-pools-poc/internal/livesync/ratelimit"
	"github.com/radieske/pickem-pools-poc/internal/livesync/scheduler"
	"github.com/radieske/pickem-pools-poc/internal/pickem/picks"
	kpub "github.com/radieske/pickem-pools-poc/internal/pickem/producer"
	"github.com/radieske/pickem-pools-poc/internal/pickem/repo"
	sharedcache "github.com/radieske/pickem-pools-poc/internal/shared/cache"
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

	// Redis (cache do scoreboard; hit não gasta orçamento do provider)
	rdb, err := sharedcache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis", zap.Error(err))
	}

	// Kafka writers: results_updated (scheduler) e picks_locked (motor de travamento)
	resultsWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicResultsUpdated)
	defer resultsWriter.Close()
	lockedWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicPicksLocked)
	defer lockedWriter.Close()

	// Métricas do worker
	ticks := prometheus.NewCounter(prometheus.CounterOpts{Name: "livesync_ticks_total", Help: "ticks executados"})
	skips := prometheus.NewCounter(prometheus.CounterOpts{Name: "livesync_ticks_skipped_total", Help: "ticks pulados por tick anterior em voo"})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "livesync_errors_total", Help: "erros por estágio"}, []string{"stage"})
	prometheus.MustRegister(ticks, skips, errorsBy)

	store := repo.NewStore(pg)
	publ := kpub.NewKafkaPublisher(lockedWriter, resultsWriter)

	// Orçamento persistente de chamadas ao provider (sobrevive a restart)
	limiter := ratelimit.New(log, ratelimit.NewPostgresLog(pg), "scoreboard-provider", cfg.SyncCallsPerHour)

	syncer := client.New(log, cfg.ProviderBaseURL, rdb, limiter, store)
	engine := picks.NewEngine(log, store, publ)

	sched := scheduler.New(log, scheduler.DefaultConfig(), store, syncer, engine, publ)
	sched.OnTick = func() { ticks.Inc() }
	sched.OnSkip = func() { skips.Inc() }
	sched.OnError = func(stage string) { errorsBy.WithLabelValues(stage).Inc() }

	// metrics/health
	metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		if err := pg.PingContext(ctx); err != nil {
			return err
		}
		return rdb.Ping(ctx).Err()
	})
	log.Info("metrics/health", zap.String("addr", ":"+cfg.MetricsPort))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("live-sync-worker started",
		zap.String("provider", cfg.ProviderBaseURL),
		zap.Int("calls_per_hour", cfg.SyncCallsPerHour),
	)
	sched.Start(ctx)

	<-ctx.Done()
	sched.Stop()
	log.Info("live-sync-worker stopped")
}
