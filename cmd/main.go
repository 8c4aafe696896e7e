package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"caregiver-companion/internal/api"
	"caregiver-companion/internal/config"
	"caregiver-companion/internal/database"
	"caregiver-companion/internal/emergency"
	"caregiver-companion/internal/gateway"
	"caregiver-companion/internal/handler"
	"caregiver-companion/internal/logging"
	"caregiver-companion/internal/metrics"
	"caregiver-companion/internal/monitor"
	"caregiver-companion/internal/notify"
	"caregiver-companion/internal/schedule"
	"caregiver-companion/internal/session"
	"caregiver-companion/internal/simulator"

	"go.uber.org/zap"
)

func main() {
	log.Println("Starting Caregiver Companion Service...")
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := logging.New(logging.Options{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		File:        cfg.LogFile,
		ToConsole:   cfg.LogToConsole,
		ServiceName: "caregiver-companion",
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	logConfiguration(cfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo, err := database.NewRepository(cfg.DBPath, logger)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer repo.Close()

	store, closeStore, err := openStore(ctx, cfg, repo, logger)
	if err != nil {
		logger.Fatal("failed to initialize reading store", zap.String("backend", cfg.StoreBackend), zap.Error(err))
	}
	defer closeStore()

	collector := metrics.NewCollector("companion")
	gw := gateway.New(store, gateway.DefaultBreakerSettings(), logger)
	hub := notify.NewHub(64, logger)

	seed := cfg.SimulatorSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	mon := monitor.New(monitor.Config{
		TickInterval:     cfg.TickInterval,
		ConnectDelay:     cfg.ConnectDelay,
		PersistInterval:  cfg.PersistInterval,
		SaveTimeout:      cfg.SaveTimeout,
		HistoryLoadLimit: cfg.HistoryLoadLimit,
		AutoStart:        cfg.AutoStart,
	}, simulator.NewRandomSource(seed), schedule.NewReal(), gw, hub, collector, logger)

	sess := session.New()
	unbind := mon.BindSession(sess)
	defer unbind()

	alerts := emergency.NewService(repo, mon, hub, collector, logger)
	alerts.AddEcho("websocket", hub)

	var wg sync.WaitGroup

	if cfg.MQTTEnabled {
		bridge, err := handler.InitializeMQTT(cfg, mon, logger)
		if err != nil {
			logger.Fatal("failed to initialize MQTT client", zap.Error(err))
		}
		defer bridge.Disconnect()
		hub.AddSink(bridge)
		alerts.AddPublisher("mqtt", bridge)
	}

	if cfg.KafkaEnabled {
		producer, err := handler.NewAlertProducer(cfg.KafkaBrokers, cfg.AlertTopic, logger)
		if err != nil {
			logger.Fatal("failed to initialize Kafka producer", zap.Error(err))
		}
		defer producer.Close()
		alerts.AddPublisher("kafka", producer)

		wg.Add(1)
		go func() {
			defer wg.Done()
			route := handler.RouteAckMessage(ctx, alerts, logger)
			if err := handler.RunConsumer(ctx, cfg.KafkaBrokers, cfg.ConsumerGroup, cfg.AckTopic, route, logger); err != nil {
				logger.Error("ack consumer stopped", zap.Error(err))
			}
		}()
	}

	if cfg.WebhookURL != "" {
		alerts.AddPublisher("webhook", handler.NewWebhookForwarder(cfg.WebhookURL, cfg.WebhookAPIKey, logger))
	}

	server := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: api.NewServer(api.Deps{
			Monitor:         mon,
			Session:         sess,
			Verifier:        session.NewVerifier(cfg.JWTSecret),
			Events:          hub,
			Alerts:          alerts,
			Profiles:        repo,
			Readings:        gw,
			Metrics:         collector,
			CaregiverAPIKey: cfg.CaregiverAPIKey,
			AllowedOrigins:  cfg.AllowedOrigins,
			Logger:          logger,
		}).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", zap.Error(err))
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("service started successfully")
	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.SaveTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown", zap.Error(err))
	}

	sess.SignOut()
	mon.Teardown()
	mon.WaitForSaves()

	cancel()
	wg.Wait()
	logger.Info("all services closed, exiting")
}

// openStore selects the reading store behind the gateway. The returned
// close function is always safe to call.
func openStore(ctx context.Context, cfg *config.Config, repo *database.Repository, logger *zap.Logger) (gateway.Store, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendRedis:
		client := database.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("redis not reachable at startup", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		return database.NewRedisStore(client, cfg.RedisKeyPrefix), func() { client.Close() }, nil
	case config.BackendDynamoDB:
		client, err := database.NewDynamoClient(ctx, cfg.AWSRegion, cfg.DynamoEndpoint)
		if err != nil {
			return nil, nil, err
		}
		return database.NewDynamoStore(client, cfg.DynamoTable), func() {}, nil
	case config.BackendMemory:
		return database.NewMemoryStore(), func() {}, nil
	default:
		return repo, func() {}, nil
	}
}

func logConfiguration(cfg *config.Config, logger *zap.Logger) {
	logger.Info("service configuration",
		zap.String("http_addr", cfg.HTTPAddr),
		zap.String("store_backend", cfg.StoreBackend),
		zap.String("db_path", cfg.DBPath),
		zap.Bool("kafka_enabled", cfg.KafkaEnabled),
		zap.String("kafka_brokers", cfg.KafkaBrokers),
		zap.Bool("mqtt_enabled", cfg.MQTTEnabled),
		zap.String("mqtt_broker", cfg.MQTTBroker),
		zap.Duration("tick_interval", cfg.TickInterval),
		zap.Duration("persist_interval", cfg.PersistInterval),
		zap.Bool("auto_start", cfg.AutoStart),
		zap.Bool("jwt_secret_set", cfg.JWTSecret != ""),
		zap.Bool("caregiver_api_key_set", cfg.CaregiverAPIKey != ""),
		zap.Bool("mqtt_password_set", cfg.MQTTPassword != ""),
	)
}
