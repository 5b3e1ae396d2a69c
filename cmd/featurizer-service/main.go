package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/renalytics-ai/platform/pkg/common/config"
	"github.com/renalytics-ai/platform/pkg/common/database"
	"github.com/renalytics-ai/platform/pkg/common/kafka"
	"github.com/renalytics-ai/platform/pkg/common/logger"
	"github.com/renalytics-ai/platform/pkg/common/models"
	"github.com/renalytics-ai/platform/pkg/featurizer"
	"github.com/renalytics-ai/platform/pkg/observability/metrics"
	"github.com/renalytics-ai/platform/pkg/storage"
)

func main() {
	logger.Init()
	cfg := config.Load()

	db, err := database.GetPostgres()
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}
	redisClient := database.GetRedis()
	defer database.CloseRedis()

	telemetry := storage.NewTelemetryRepository(db)
	if err := telemetry.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate telemetry tables")
	}

	store := storage.NewFeatureStore(db, redisClient, cfg.FeatureCacheTTL)
	if err := store.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate feature tables")
	}

	svc := featurizer.NewService(telemetry, store, cfg.Pipeline)
	handler := featurizer.NewHTTPHandler(svc)

	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)

	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	handler.Register(api)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, "8082"),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Rebuild a patient's features whenever the ingestion service announces a
	// stored batch.
	consumer := kafka.NewConsumer(cfg.TelemetryTopic, cfg.KafkaGroupID)
	defer consumer.Close()

	go func() {
		err := consumer.Consume(ctx, func(ctx context.Context, event models.Event) error {
			pid, _ := event.Data["pid"].(string)
			if pid == "" {
				logger.Log.WithField("event_id", event.ID).Warn("telemetry event without pid")
				return nil
			}
			_, err := svc.BuildForPatient(ctx, pid)
			return err
		})
		if err != nil && ctx.Err() == nil {
			logger.Log.WithError(err).Error("telemetry consumer stopped")
		}
	}()

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": "8082",
		}).Info("Featurizer Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Featurizer Service...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("server forced to shutdown")
	}

	logger.Log.Info("Featurizer Service stopped")
}
