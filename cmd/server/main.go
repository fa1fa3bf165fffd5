package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/govbridge/govchat/internal/admin"
	"github.com/govbridge/govchat/internal/alert"
	"github.com/govbridge/govchat/internal/breaker"
	"github.com/govbridge/govchat/internal/cache"
	"github.com/govbridge/govchat/internal/config"
	"github.com/govbridge/govchat/internal/controller"
	"github.com/govbridge/govchat/internal/intent"
	"github.com/govbridge/govchat/internal/pipeline"
	"github.com/govbridge/govchat/internal/portal"
	"github.com/govbridge/govchat/internal/queue"
	"github.com/govbridge/govchat/internal/retry"
	"github.com/govbridge/govchat/internal/session"
	"github.com/govbridge/govchat/internal/transport"
)

func main() {
	// Load .env file if it exists (for development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	log.Println("🚀 Starting GovChat Core...")

	cfg := config.Load()
	log.Printf("📋 Service: %s", cfg.ServiceName)
	log.Printf("📡 NATS URL: %s", cfg.NatsURL)

	// Validate required configuration
	if cfg.OpenAIAPIKey == "" {
		log.Fatal("❌ OPENAI_API_KEY environment variable is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Session store: Redis when configured, in-memory otherwise
	var sessionStore session.Store
	var cacheStore cache.Store
	if cfg.RedisURL != "" {
		log.Printf("💾 Redis URL: %s", cfg.RedisURL)
		log.Println("🔌 Connecting to Redis...")
		redisSessions, err := session.NewRedisStore(cfg.RedisURL, cfg.SessionIdleTimeout)
		if err != nil {
			log.Fatalf("❌ Failed to connect to Redis: %v", err)
		}
		redisCache, err := cache.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("❌ Failed to connect to Redis: %v", err)
		}
		sessionStore = redisSessions
		cacheStore = redisCache
		log.Println("✅ Redis connected")
	} else {
		log.Println("💾 No REDIS_URL set, using in-memory stores")
		sessionStore = session.NewMemoryStore()
		cacheStore = cache.NewMemoryStore(time.Minute)
	}

	sessions := session.NewManager(sessionStore, cfg.SessionIdleTimeout, cfg.SessionMaxAge, cfg.HistoryCap)
	defer sessions.Close()
	go sessions.RunSweeper(ctx, cfg.SessionSweepEvery)
	log.Println("✅ Session manager initialized")

	// Intent classifier
	log.Printf("🤖 OpenAI model: %s", cfg.OpenAIModel)
	classifier, err := intent.NewOpenAIClassifier(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.LLMTimeout)
	if err != nil {
		log.Fatalf("❌ Failed to initialize classifier: %v", err)
	}
	log.Println("✅ Intent classifier initialized")

	// NATS transport (shared by chat intake and the portal automator)
	log.Println("📡 Connecting to NATS...")
	natsTransport, err := transport.NewNATSTransport(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to initialize NATS transport: %v", err)
	}
	defer natsTransport.Close()

	// Resilience stack: breaker registry, retry policy, alert monitor
	breakers := breaker.NewRegistry(cfg.BreakerThreshold, cfg.BreakerWindow, cfg.BreakerCooldown)
	policy := retry.NewPolicy(cfg.MaxRetries, cfg.RetryBaseDelay, cfg.RetryMaxDelay)
	monitor := alert.NewMonitor(alert.LogSink{}, cfg.AlertWindow, cfg.ErrorRateThreshold, cfg.LatencyThreshold)

	// Portal automator behind a hard per-call timeout
	automator := portal.WithTimeout(
		portal.NewNATSAutomator(natsTransport.Conn(), cfg.NatsPortalSubject),
		cfg.AutomatorTimeout,
	)

	// Service queues running the pipeline
	executor := pipeline.NewExecutor(automator, breakers, cacheStore, policy, monitor, cfg.CacheTTL)
	dispatcher := queue.NewDispatcher(cfg.QueueCapacity, cfg.WorkersPerQueue, executor)
	dispatcher.Start(ctx)
	log.Printf("✅ Service queues started (capacity=%d workers=%d per service)", cfg.QueueCapacity, cfg.WorkersPerQueue)

	// Conversation controller
	ctrl := controller.New(sessions, classifier, dispatcher, natsTransport)
	natsTransport.SetController(ctrl)

	if err := natsTransport.Start(); err != nil {
		log.Fatalf("❌ Failed to start NATS transport: %v", err)
	}

	// Admin surface
	e := echo.New()
	e.HideBanner = true
	admin.NewHandler(sessions, dispatcher, breakers, cacheStore).Register(e)
	go func() {
		if err := e.Start(cfg.AdminAddr); err != nil {
			log.Printf("Admin server stopped: %v", err)
		}
	}()
	log.Printf("📊 Admin API listening on %s", cfg.AdminAddr)

	log.Println("✅ GovChat Core is running!")
	log.Printf("👂 Listening on subject: %s", cfg.NatsInboundSubject)

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.Printf("🛑 Received signal: %v", sig)
	log.Println("🔄 Shutting down gracefully...")

	cancel()
	ctrl.Close()
	dispatcher.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️ Error stopping admin server: %v", err)
	}

	if err := cacheStore.Close(); err != nil {
		log.Printf("⚠️ Error closing cache store: %v", err)
	}
	if err := natsTransport.Close(); err != nil {
		log.Printf("⚠️ Error closing NATS transport: %v", err)
	}

	log.Println("👋 GovChat Core stopped")
}
