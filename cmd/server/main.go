package main

import (
	"context"
	"database/sql"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/its333/NoStressPlanner-sub000/internal/auth"
	"github.com/its333/NoStressPlanner-sub000/internal/cache"
	"github.com/its333/NoStressPlanner-sub000/internal/config"
	"github.com/its333/NoStressPlanner-sub000/internal/handler"
	"github.com/its333/NoStressPlanner-sub000/internal/identity"
	"github.com/its333/NoStressPlanner-sub000/internal/logger"
	"github.com/its333/NoStressPlanner-sub000/internal/metrics"
	"github.com/its333/NoStressPlanner-sub000/internal/notifier"
	"github.com/its333/NoStressPlanner-sub000/internal/repository"
	"github.com/its333/NoStressPlanner-sub000/internal/service"
)

func main() {
	// Try the usual spots before falling back to process environment only.
	configPaths := []string{"config.env", "../config.env", "../../config.env"}
	var configLoaded bool
	for _, configPath := range configPaths {
		if err := godotenv.Load(configPath); err == nil {
			configLoaded = true
			break
		}
	}
	if !configLoaded {
		if err := godotenv.Load(); err != nil {
			log.Printf("Warning: config.env and .env files not found, using environment variables only")
		}
	}

	cfg := config.Load()
	appLog := logger.NewLogger("planner-core")
	appMetrics := metrics.NewMetrics("planner_core")

	// Parse DSN to get config, then open through a connector so pool
	// settings apply to every connection.
	dsnCfg, err := mysql.ParseDSN(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("Failed to parse DSN: %v", err)
	}
	connector, err := mysql.NewConnector(dsnCfg)
	if err != nil {
		log.Fatalf("Failed to create connector: %v", err)
	}

	db := sql.OpenDB(connector)
	defer db.Close()

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		cancel()
		log.Fatalf("Failed to ping database: %v", err)
	}
	cancel()
	log.Println("Successfully connected to database")

	// Redis is optional: without it the view cache runs on the local tier
	// alone and change notifications are dropped.
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Printf("Warning: invalid REDIS_URL, continuing without Redis: %v", err)
		} else {
			redisClient = redis.NewClient(redisOpts)
			pingCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
			if err := redisClient.Ping(pingCtx).Err(); err != nil {
				log.Printf("Warning: Redis not reachable at startup, keeping client: %v", err)
			} else {
				log.Println("Successfully connected to Redis")
			}
			cancel()
		}
	}

	eventRepo := repository.NewEventRepository(db)
	personRepo := repository.NewPersonRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	voteRepo := repository.NewVoteRepository(db)
	blockRepo := repository.NewBlockRepository(db)

	viewCache := cache.NewViewCache(redisClient, cfg.ViewCacheTTL, appLog, appMetrics)
	defer viewCache.Close()

	var notify notifier.Notifier
	if redisClient != nil {
		notify = notifier.NewRedisNotifier(redisClient, appLog)
	} else {
		notify = notifier.NewNopNotifier()
	}

	var authProvider auth.Provider
	if cfg.AuthURL != "" {
		authProvider = auth.NewHTTPProvider(cfg.AuthURL)
	}
	resolver := identity.NewResolver(sessionRepo, personRepo, authProvider, appLog)

	eventService := service.NewEventService(
		eventRepo,
		personRepo,
		sessionRepo,
		voteRepo,
		blockRepo,
		resolver,
		viewCache,
		notify,
		appLog,
		appMetrics,
	)

	sweeper := service.NewSweeper(eventRepo, eventService, appLog, appMetrics)
	if err := sweeper.Start(cfg.SweepInterval); err != nil {
		log.Fatalf("Failed to start deadline sweeper: %v", err)
	}

	poolDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				appMetrics.RecordDBPoolStats(db.Stats())
			case <-poolDone:
				return
			}
		}
	}()

	mux := http.NewServeMux()
	handler.NewEventHandler(eventService, appLog).Register(mux)
	mux.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      handler.CORSMiddleware(appMetrics.HTTPMiddleware(mux)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Planner core listening on port %s", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to serve HTTP: %v", err)
		}
	}()

	// gRPC carries only the standard health service; orchestrators probe it
	// while clients stay on HTTP.
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			logger.UnaryServerInterceptor(appLog),
			metrics.UnaryServerInterceptor(appMetrics),
		),
		grpc.ChainStreamInterceptor(
			logger.StreamServerInterceptor(appLog),
			metrics.StreamServerInterceptor(appMetrics),
		),
	)
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("planner-core", healthpb.HealthCheckResponse_SERVING)

	listener, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		log.Fatalf("Failed to listen on port %s: %v", cfg.GRPCPort, err)
	}
	go func() {
		log.Printf("Health probe listening on port %s", cfg.GRPCPort)
		if err := grpcServer.Serve(listener); err != nil {
			log.Fatalf("Failed to serve gRPC: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	healthServer.SetServingStatus("planner-core", healthpb.HealthCheckResponse_NOT_SERVING)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}
	cancel()
	grpcServer.GracefulStop()
	sweeper.Stop()
	close(poolDone)

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.Printf("Redis close error: %v", err)
		}
	}
	log.Println("Server stopped")
}
