package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"orderflow/conditional"
	"orderflow/config"
	"orderflow/events"
	"orderflow/execution"
	"orderflow/feed"
	"orderflow/logger"
	"orderflow/models"
	"orderflow/pipeline"
	"orderflow/server"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	symbolsPath := flag.String("symbols", "config/symbols.yml", "Path to symbol configuration file")

	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Orderflow.Name,
		"version": cfg.Orderflow.Version,
	}).Info("starting orderflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.CloudWatch.Enabled {
		logger.InitCloudWatch(cfg.Metrics.CloudWatch.Region, cfg.Metrics.CloudWatch.Namespace)
	}
	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}

	syms, err := config.LoadSymbols(*symbolsPath)
	if err != nil {
		log.WithError(err).Error("failed to load symbol configuration")
		os.Exit(1)
	}

	// The server joins the fan-out after the coordinator exists, so the
	// pipeline holds a pointer to the growing emitter list.
	emitters := &events.Multi{events.NewLogEmitter()}

	var kafkaEmitter *events.KafkaEmitter
	if cfg.Events.Kafka.Enabled {
		kafkaEmitter, err = events.NewKafkaEmitter(cfg.Events.Kafka.Brokers, cfg.Events.Kafka.Topic, cfg.Events.Kafka.Buffer)
		if err != nil {
			log.WithError(err).Error("failed to create kafka emitter")
			os.Exit(1)
		}
		*emitters = append(*emitters, kafkaEmitter)
	} else {
		log.WithComponent("main").Info("kafka events disabled; skipping emitter")
	}

	executor := execution.NewPaper(emitters)

	coordinator, err := pipeline.NewCoordinator(cfg, syms, executor, emitters)
	if err != nil {
		log.WithError(err).Error("failed to build pipeline")
		os.Exit(1)
	}

	var srv *server.Server
	if cfg.Server.Enabled {
		srv = server.New(cfg, coordinator)
		*emitters = append(*emitters, srv)
	}

	if err := registerStandingOrders(coordinator, syms); err != nil {
		log.WithError(err).Error("failed to register standing orders")
		os.Exit(1)
	}

	if kafkaEmitter != nil {
		if err := kafkaEmitter.Start(ctx); err != nil {
			log.WithError(err).Error("failed to start kafka emitter")
			os.Exit(1)
		}
	}
	if srv != nil {
		if err := srv.Start(ctx); err != nil {
			log.WithError(err).Error("failed to start server")
			os.Exit(1)
		}
	}
	if err := coordinator.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start pipeline")
		os.Exit(1)
	}

	var simulator *feed.Simulator
	if cfg.Feed.Enabled {
		simulator, err = feed.NewSimulator(cfg, syms, coordinator.OnQuote)
		if err != nil {
			log.WithError(err).Error("failed to create feed simulator")
			os.Exit(1)
		}
		if err := simulator.Start(ctx); err != nil {
			log.WithError(err).Error("failed to start feed simulator")
			os.Exit(1)
		}
	} else {
		log.WithComponent("main").Info("built-in feed disabled; expecting external quote source")
	}

	log.WithFields(logger.Fields{"run_id": coordinator.RunID()}).Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")

	done := make(chan struct{})
	go func() {
		// Stop the quote source first, then let the pipeline drain, then
		// tear down the observers that consume its events.
		if simulator != nil {
			log.Info("stopping feed simulator")
			simulator.Stop()
		}

		log.Info("stopping pipeline")
		coordinator.Stop()

		if srv != nil {
			log.Info("stopping observability server")
			srv.Stop()
		}
		if kafkaEmitter != nil {
			log.Info("stopping kafka emitter")
			kafkaEmitter.Stop()
		}
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	cancel()
	log.Info("orderflow stopped")
}

// registerStandingOrders turns the configured per-symbol instructions into
// conditional orders on the pipeline. Must run before Start.
func registerStandingOrders(coordinator *pipeline.Coordinator, syms *config.Symbols) error {
	log := logger.GetLogger().WithComponent("main")
	now := time.Now().UnixNano()
	count := 0
	for _, sym := range syms.Symbols {
		for _, so := range sym.StandingOrders {
			side := models.Side(strings.ToLower(so.Side))
			id := uuid.New().String()

			var order *conditional.Order
			switch strings.ToLower(so.Kind) {
			case "limit":
				order = conditional.NewLimit(id, sym.Name, side, so.Quantity, so.LimitPrice, now)
			case "stop":
				order = conditional.NewStop(id, sym.Name, side, so.Quantity, so.StopPrice, now)
			case "stop_limit":
				order = conditional.NewStopLimit(id, sym.Name, side, so.Quantity, so.StopPrice, so.LimitPrice, now)
			default:
				return fmt.Errorf("symbol %s: unknown standing order kind %q", sym.Name, so.Kind)
			}
			if err := coordinator.Register(order); err != nil {
				return err
			}
			count++
		}
	}
	log.WithFields(logger.Fields{"orders": count}).Info("standing orders registered")
	return nil
}
