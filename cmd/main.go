package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"gitlab.com/savesync.net/internal/adapter/crypto"
	"gitlab.com/savesync.net/internal/adapter/logging"
	"gitlab.com/savesync.net/internal/adapter/memory/catalogstore"
	"gitlab.com/savesync.net/internal/adapter/postgres/catalogrepository"
	"gitlab.com/savesync.net/internal/adapter/redis/operationport"
	"gitlab.com/savesync.net/internal/adapter/redis/workerport"
	"gitlab.com/savesync.net/internal/config"
	"gitlab.com/savesync.net/internal/core/ports/primary"
	"gitlab.com/savesync.net/internal/core/ports/secondary"
	"gitlab.com/savesync.net/internal/core/services/background"
	"gitlab.com/savesync.net/internal/core/services/completion"
	"gitlab.com/savesync.net/internal/core/services/deletion"
	"gitlab.com/savesync.net/internal/core/services/operation"
	"gitlab.com/savesync.net/internal/core/services/worker"
	http2 "gitlab.com/savesync.net/internal/http"
	"gitlab.com/savesync.net/internal/schedulerengine"
	"gitlab.com/savesync.net/internal/ws"
)

func main() {
	InitReader()
	// Set up graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sysCfg := config.NewSystemConfig()
	logger := logging.NewZapLogger(sysCfg.DebugMode)
	defer func() { _ = logger.Sync() }()
	logger.Info("Starting save sync coordinator")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     sysCfg.RedisConfig.Url,
		Password: sysCfg.RedisConfig.Password,
		DB:       sysCfg.RedisConfig.DB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Error("Failed to connect to redis", "addr", sysCfg.RedisConfig.Url, "error", err)
		os.Exit(1)
	}

	catalog, closeCatalog, err := setupCatalog(sysCfg, logger)
	if err != nil {
		logger.Error("Failed to set up catalog", "backend", sysCfg.CatalogBackend, "error", err)
		os.Exit(1)
	}
	defer closeCatalog()

	// SECONDARY PORTS
	workerPort := workerport.NewWorkerRepository(redisClient, logger)
	operationPort := operationport.NewOperationRepository(redisClient, logger)

	//primary ports
	jwtProvider := crypto.NewJWTService(sysCfg.JwtConfig)
	bg := background.NewDispatcher(logger)

	//services
	registry := worker.NewWorkerRegistryService(workerPort, catalog, jwtProvider, bg, sysCfg.RegistryConfig, logger)
	queue := operation.NewOperationQueue(operationPort, registry, bg, logger)
	coordinator := completion.NewCompletionCoordinator(queue, catalog, logger)
	planner := deletion.NewDeletionPlanner(queue, catalog, logger)

	//server
	gateway := ws.NewGateway(registry, queue, coordinator, jwtProvider, sysCfg.RegistryConfig, logger,
		ws.WithAllowedOrigins(sysCfg.HTTPConfig.AllowedOrigins))
	registry.SetNotifier(gateway)
	queue.SetDispatcher(gateway)

	serviceProvider := http2.NewServiceProvider(registry, queue, coordinator, planner, jwtProvider)
	httpServer := http2.NewServer(sysCfg.HTTPConfig, sysCfg.SweepConfig, *serviceProvider, logger, gateway)
	if err := httpServer.Init(); err != nil {
		panic(err)
	}

	ctxBg, cancel := context.WithCancel(context.Background())
	defer cancel()
	serveErr := httpServer.Start(ctxBg)

	sweeper := schedulerengine.NewSweepEngine(sysCfg.SweepConfig, coordinator, queue, logger)
	sweeper.Start(ctxBg)

	select {
	case <-quit:
	case err := <-serveErr:
		if err != nil {
			logger.Error("Http server stopped", "error", err)
		}
	}
	logger.Info("Shutting down server...")

	ctx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	sweeper.Stop()
	if err := httpServer.Stop(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}
	gateway.Stop()
	cancel()
	bg.Close()

	logger.Info("successfully shutdown server")
}

// setupCatalog opens the account/game catalog. The memory backend starts empty and is meant for local runs.
func setupCatalog(cfg *config.AppConfig, logger primary.Logger) (secondary.CatalogPort, func(), error) {
	switch cfg.CatalogBackend {
	case "memory":
		return catalogstore.New(), func() {}, nil
	case "postgres", "":
		db, err := setupDatabase(cfg.PostgresConfig)
		if err != nil {
			return nil, nil, err
		}
		return catalogrepository.New(db, logger, cfg.PostgresConfig.Schema), func() { _ = db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown catalog backend %q", cfg.CatalogBackend)
	}
}

// setupDatabase sets up the PostgreSQL connection
func setupDatabase(cfg *config.PostgresConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", cfg.Url)
	if err != nil {
		return nil, err
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

func InitReader() {
	environment := ""
	if len(os.Args) < 2 {
		log.Fatalf("Env not supplied in argument")
	} else {
		environment = os.Args[1]
	}

	err := godotenv.Load(environment + ".env")
	if err != nil {
		log.Fatalf("Error loading %s.env file", environment)
	}
}
