package main

import (
	"context"
	"encoding/json"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/pickem-pools-poc/internal/pickem/repo"
	"github.com/radieske/pickem-pools-poc/internal/shared/config"
	"github.com/radieske/pickem-pools-poc/internal/shared/db"
	"github.com/radieske/pickem-pools-poc/internal/shared/kafka"
	"github.com/radieske/pickem-pools-poc/internal/shared/logger"
	"github.com/radieske/pickem-pools-poc/internal/shared/metrics"
	ev "github.com/radieske/pickem-pools-poc/pkg/contracts/events"
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

	// Kafka consumer: results_updated dispara o recálculo da classificação
	reader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicResultsUpdated, "standings-worker")
	defer reader.Close()

	// Métricas
	consumed := prometheus.NewCounter(prometheus.CounterOpts{Name: "standings_events_consumed_total", Help: "eventos results_updated consumidos"})
	rebuilt := prometheus.NewCounter(prometheus.CounterOpts{Name: "standings_rows_rebuilt_total", Help: "linhas de classificação recalculadas"})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "standings_errors_total", Help: "erros por estágio"}, []string{"stage"})
	prometheus.MustRegister(consumed, rebuilt, errorsBy)

	store := repo.NewStore(pg)

	// metrics/health
	metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		return pg.PingContext(ctx)
	})
	log.Info("metrics/health", zap.String("addr", ":"+cfg.MetricsPort))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("standings-worker started", zap.String("consume", cfg.TopicResultsUpdated))

	// Loop principal: cada evento de resultado recalcula a semana afetada
	for {
		_, value, err := kafka.ReadNext(ctx, reader)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("standings-worker stopped")
				return
			}
			log.Warn("kafka read", zap.Error(err))
			errorsBy.WithLabelValues("consume").Inc()
			time.Sleep(time.Second)
			continue
		}
		consumed.Inc()

		var evt ev.ResultsUpdated
		if jerr := json.Unmarshal(value, &evt); jerr != nil {
			log.Error("unmarshal results_updated", zap.Error(jerr))
			errorsBy.WithLabelValues("unmarshal").Inc()
			continue
		}
		if evt.Season == 0 || evt.Week == 0 {
			log.Warn("results_updated without season/week, skipping")
			continue
		}

		n, err := store.RebuildStandings(ctx, evt.Season, evt.Week)
		if err != nil {
			log.Error("rebuild standings",
				zap.Int("season", evt.Season),
				zap.Int("week", evt.Week),
				zap.Error(err),
			)
			errorsBy.WithLabelValues("rebuild").Inc()
			time.Sleep(500 * time.Millisecond)
			continue
		}
		rebuilt.Add(float64(n))
		log.Info("standings rebuilt",
			zap.Int("season", evt.Season),
			zap.Int("week", evt.Week),
			zap.Int64("rows", n),
		)
	}
}
