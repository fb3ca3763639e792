package server

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"gorm.io/gorm"

	"github.com/oneboxhq/onebox/api"
	"github.com/oneboxhq/onebox/config"
	"github.com/oneboxhq/onebox/internal/cron"
	"github.com/oneboxhq/onebox/internal/logger"
	"github.com/oneboxhq/onebox/internal/repository"
	"github.com/oneboxhq/onebox/internal/tracing"
	"github.com/oneboxhq/onebox/services/events"
	"github.com/oneboxhq/onebox/services/imap"
	syncengine "github.com/oneboxhq/onebox/services/sync"
)

type Server struct {
	config       *config.Config
	log          logger.Logger
	httpServer   *http.Server
	router       *gin.Engine
	repositories *repository.Repositories
	session      *imap.Session
	engine       *syncengine.Engine
	publisher    *events.RabbitMQPublisher
	cronManager  *cron.CronManager
	tracerCloser io.Closer
}

func NewServer(cfg *config.Config, db *gorm.DB) (*Server, error) {
	// Initialize logger
	appLogger := logger.NewAppLogger(cfg.Logger)
	appLogger.InitLogger()

	// Initialize tracing
	tracer, closer, err := tracing.NewJaegerTracer(cfg.Tracing, appLogger)
	if err != nil {
		log.Fatalf("Could not initialize jaeger tracer: %s", err.Error())
	}
	opentracing.SetGlobalTracer(tracer)

	// Initialize repositories
	repos := repository.InitRepositories(db, cfg.SearchConfig.DefaultPageSize)

	// Mailbox session and sync engine
	session := imap.NewSession(cfg.IMAPConfig)
	engine := syncengine.NewEngine(
		session,
		repos.EmailIndex,
		cfg.SyncConfig,
		cfg.IMAPConfig.Username,
		cfg.IMAPConfig.Folder,
		appLogger,
	)

	// Optional notification publisher
	var publisher *events.RabbitMQPublisher
	if cfg.EventsConfig.RabbitMQURL != "" {
		publisher, err = events.NewRabbitMQPublisher(cfg.EventsConfig.RabbitMQURL, appLogger, nil)
		if err != nil {
			return nil, err
		}
		engine.SetObserver(publisher)
	}

	cronManager := cron.NewCronManager(cfg.CronConfig, appLogger, engine)

	// Initialize Gin
	gin.SetMode(gin.ReleaseMode)
	router := gin.Default()

	return &Server{
		config:       cfg,
		log:          appLogger,
		router:       router,
		repositories: repos,
		session:      session,
		engine:       engine,
		publisher:    publisher,
		cronManager:  cronManager,
		tracerCloser: closer,
		httpServer: &http.Server{
			Addr:    ":" + cfg.AppConfig.APIPort,
			Handler: router,
		},
	}, nil
}

func (s *Server) recoverWithJaeger(name string) {
	if r := recover(); r != nil {
		span := opentracing.GlobalTracer().StartSpan(
			fmt.Sprintf("panic.%s", name),
		)
		defer span.Finish()

		ext.Error.Set(span, true)

		span.LogKV(
			"event", "panic",
			"process", name,
			"error", fmt.Sprintf("%v", r),
			"stack", string(debug.Stack()),
		)

		log.Printf("Panic in %s: %v\n%s", name, r, debug.Stack())
	}
}

func (s *Server) wrapGoroutine(name string, fn func()) {
	defer s.recoverWithJaeger(name)
	fn()
}

func (s *Server) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup API routes
	api.RegisterRoutes(s.router, s.repositories.EmailIndex, s.engine, s.config.AppConfig.APIKey)

	// Start the sync engine with panic recovery
	log.Println("Starting sync engine...")
	go s.wrapGoroutine("sync_engine", func() {
		if err := s.engine.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("Sync engine error: %v", err)
		}
	})

	// Start the scheduled reconciliation job
	s.cronManager.Start()

	// Start HTTP server in a goroutine with panic recovery
	go s.wrapGoroutine("http_server", func() {
		log.Println("Starting HTTP server")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
		}
	})
	log.Println("Onebox is now running. Press Ctrl+C to exit.")

	return s.waitForShutdown(cancel)
}

func (s *Server) waitForShutdown(cancel context.CancelFunc) error {
	defer s.recoverWithJaeger("shutdown")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	log.Println("Shutting down HTTP server...")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	log.Println("Stopping cron manager...")
	s.cronManager.Stop()

	log.Println("Stopping sync engine...")
	cancel()
	stopDone := make(chan struct{})
	go s.wrapGoroutine("sync_engine_shutdown", func() {
		defer close(stopDone)
		s.engine.Stop()
	})
	select {
	case <-stopDone:
	case <-time.After(15 * time.Second):
		log.Println("Timed out waiting for sync engine to stop")
	}

	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			log.Printf("Publisher shutdown error: %v", err)
		}
	}

	if s.tracerCloser != nil {
		s.tracerCloser.Close()
	}

	log.Println("Shutdown complete")
	return nil
}
