package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/example/parcel-express/internal/events"
	"github.com/example/parcel-express/internal/logging"
)

var metricsAddr string

var consumeCmd = &cobra.Command{
	Use:   "consume-activity",
	Short: "Roll site activity events from Kafka into daily Redis counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if len(cfg.KafkaBrokers) == 0 || cfg.RedisAddr == "" {
			return errors.New("consume-activity needs kafka_brokers and redis_addr")
		}
		logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat).With("component", "consumer")

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rc.Close()

		metrics := &http.Server{Addr: metricsAddr, Handler: consumerMux(rc)}
		go func() {
			logger.Info("metrics_listening", "addr", metricsAddr)
			if err := metrics.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics_server_stopped", "error", err)
			}
		}()
		defer metrics.Shutdown(context.WithoutCancel(ctx))

		c := events.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroup, events.RedisCounter{C: rc}, logger)
		logger.Info("consumer_started", slog.String("topic", cfg.KafkaTopic), slog.Any("brokers", cfg.KafkaBrokers), slog.String("group", cfg.KafkaGroup))
		return c.Run(ctx)
	},
}

func init() {
	consumeCmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":2112", "address to serve prometheus metrics on")
}

type pinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

func consumerMux(rc pinger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := rc.Ping(r.Context()).Err(); err != nil {
			http.Error(w, "redis not ready", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ready"))
	})
	return mux
}
