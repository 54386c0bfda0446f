package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hosa-study-board/internal/auth"
	"hosa-study-board/internal/config"
	"hosa-study-board/internal/db"
	"hosa-study-board/internal/docstore"
	"hosa-study-board/internal/health"
	"hosa-study-board/internal/library"
	"hosa-study-board/internal/live"
	"hosa-study-board/internal/middleware"
	"hosa-study-board/internal/points"
	"hosa-study-board/internal/todo"
	"hosa-study-board/internal/worker"
	"hosa-study-board/redis"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
)

func setupLogger(env string) {
	zerolog.TimeFieldFormat = time.RFC3339
	if env == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// notifier picks Redis pub/sub when Redis answered at startup so several
// server instances share change events.
func notifier() docstore.Notifier {
	if redis.RedisClient != nil {
		return redis.NewNotifier(redis.RedisClient)
	}
	log.Warn().Msg("using in-process change notification")
	return docstore.NewLocalNotifier()
}

func openStore(publisher docstore.Publisher, policy docstore.RetryPolicy) (docstore.Store, func(), error) {
	switch config.AppConfig.StoreBackend {
	case "memory":
		log.Warn().Msg("using in-memory store, data is lost on restart")
		return docstore.NewMemStore(publisher, policy), func() {}, nil
	case "postgres":
		if err := db.ConnectDb(); err != nil {
			return nil, nil, err
		}
		if err := db.Migrate(); err != nil {
			db.CloseDb()
			return nil, nil, err
		}
		return docstore.NewGormStore(db.AppDb, publisher, policy), db.CloseDb, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", config.AppConfig.StoreBackend)
	}
}

func main() {
	// Load configuration
	config.LoadConfig()
	setupLogger(config.AppConfig.Environment)

	// Initialize Redis
	redis.InitRedis()
	changes := notifier()

	pool := worker.NewWorkerPool(config.AppConfig.WorkerPoolSize)
	policy := docstore.RetryPolicy{
		MaxAttempts: config.AppConfig.TxMaxAttempts,
		Base:        config.AppConfig.TxRetryBase,
	}

	store, closeStore, err := openStore(pool.Publisher(changes), policy)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer closeStore()

	cache := redis.NewCache(redis.RedisClient)
	members := config.AppConfig.Members

	// Initialize services and handlers
	authHandler := auth.NewHandler()
	pointsHandler := points.NewHandler(points.NewService(store, members))
	todoHandler := todo.NewHandler(todo.NewService(store))
	resourceHandler := library.NewHandler(library.NewService(library.Resources, store, cache))
	noteHandler := library.NewHandler(library.NewService(library.Notes, store, cache))
	liveHandler := live.NewHandler(store, changes, members)

	checker := health.NewChecker(store, 5*time.Second)

	// Initialize Gin router
	if config.AppConfig.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.ErrorHandler())

	// cors setting
	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: false,
	}
	if config.AppConfig.Environment == "development" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = []string{config.AppConfig.FrontendAddress}
	}
	router.Use(cors.New(corsConfig))

	router.POST("/auth/anonymous", authHandler.SignInAnonymously)
	router.GET("/healthz", checker.HTTP)

	api := router.Group("/", middleware.AuthMiddleWare())

	api.GET("/points", pointsHandler.Show)
	api.POST("/points", pointsHandler.Add)
	api.POST("/points/reset", pointsHandler.Reset)

	api.GET("/todos", todoHandler.List)
	api.POST("/todos", todoHandler.Add)
	api.DELETE("/todos/:index", todoHandler.Remove)
	api.POST("/todos/clear", todoHandler.Clear)

	resources := api.Group("/resources")
	resources.GET("", resourceHandler.List)
	resources.POST("", resourceHandler.Create)
	resources.GET("/export.csv", resourceHandler.Export)
	resources.GET("/:id", resourceHandler.Show)
	resources.PUT("/:id", resourceHandler.Update)
	resources.DELETE("/:id", resourceHandler.Delete)

	notes := api.Group("/notes")
	notes.GET("", noteHandler.List)
	notes.POST("", noteHandler.Create)
	notes.GET("/export.csv", noteHandler.Export)
	notes.POST("/clear", noteHandler.Clear)
	notes.GET("/:id", noteHandler.Show)
	notes.PUT("/:id", noteHandler.Update)
	notes.DELETE("/:id", noteHandler.Delete)

	api.GET("/live", liveHandler.Serve)

	// Server configuration
	serverPort := config.AppConfig.ServerPort
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", serverPort),
		Handler: router.Handler(),
	}

	grpcServer := grpc.NewServer()
	checker.Register(grpcServer)
	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", config.AppConfig.GRPCPort))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to listen for gRPC")
	}

	healthCtx, stopHealth := context.WithCancel(context.Background())
	go checker.Run(healthCtx)

	go func() {
		log.Info().Str("port", config.AppConfig.GRPCPort).Msg("gRPC health listening")
		if err := grpcServer.Serve(lis); err != nil {
			log.Error().Err(err).Msg("gRPC server stopped")
		}
	}()

	// Start server
	go func() {
		log.Info().Str("port", serverPort).Msg("server listening")
		err := server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}
	stopHealth()
	grpcServer.GracefulStop()
	pool.Shutdown()
	if redis.RedisClient != nil {
		_ = redis.RedisClient.Close()
	}

	log.Info().Msg("server shutdown complete")
}
