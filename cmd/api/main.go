package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"geoattend/internal/attendance"
	"geoattend/internal/authenticator"
	"geoattend/internal/config"
	"geoattend/internal/credential"
	"geoattend/internal/geo"
	"geoattend/internal/httpapi"
	"geoattend/internal/metrics"
	"geoattend/internal/notify"
	"geoattend/internal/queue"
	"geoattend/internal/roster"
	"geoattend/internal/store"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func loadRoster(cfg config.App) (*roster.Roster, error) {
	if cfg.RosterFile != "" {
		return roster.LoadFile(cfg.RosterFile, cfg.LocationTolerance)
	}
	log.Println("ROSTER_FILE not set, using the demo roster")
	return roster.Demo(time.Now(), cfg.LocationTolerance)
}

func runHTTP(cfg config.App) error {
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	rst, err := loadRoster(cfg)
	if err != nil {
		return err
	}

	health := map[string]httpapi.HealthCheck{}

	var redisClient *store.Redis
	if cfg.CredentialBackend == "redis" || cfg.QueueBackend == "redis" {
		redisClient = store.NewRedis(cfg.RedisAddr)
		defer redisClient.Close()
		health["redis"] = redisClient.Healthy
	}

	var ledger attendance.Ledger = attendance.NewMemoryLedger()
	if cfg.LedgerBackend == "postgres" {
		db, err := store.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Printf("warning: db not reachable: %v", err)
		}
		if db == nil {
			return err
		}
		defer db.Close()
		health["db"] = db.Healthy

		pg := attendance.NewPostgresLedger(db.Client)
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Printf("warning: ensure schema failed: %v", err)
		}
		ledger = pg
	}

	var creds credential.Store = credential.NewMemoryStore()
	if cfg.CredentialBackend == "redis" {
		creds = credential.NewRedisStore(redisClient.Client, "")
	}

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		inMem := queue.NewInMemory(64)
		// Nobody else can read an in-process queue.
		go func() {
			if err := notify.Deliver(ctx, inMem, notify.NewLogNotifier(nil)); err != nil {
				log.Printf("absence delivery stopped: %v", err)
			}
		}()
		q = inMem
	} else {
		q = queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)
	}

	var platform authenticator.Platform
	var bridge *authenticator.Bridge
	if cfg.Platform == "virtual" {
		platform = authenticator.NewVirtual()
	} else {
		bridge = authenticator.NewBridge()
		platform = bridge
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	gw := authenticator.New(platform, creds, authenticator.Config{
		RPID:             cfg.RPID,
		RPName:           cfg.RPName,
		UserVerification: cfg.UserVerification,
		Timeout:          cfg.CeremonyTimeout,
	}, authenticator.WithObserver(m.ObserveCeremony))

	svc := attendance.NewService(ledger, rst, gw, notify.NewQueueNotifier(q),
		attendance.WithObserver(m.ObserveTransition),
		attendance.WithDistanceObserver(m.ObserveDistance),
		attendance.WithOutcomeObserver(m.ObserveOutcome),
	)

	r := httpapi.NewRouter(httpapi.Deps{
		Roster:          rst,
		Attendance:      svc,
		Ledger:          ledger,
		Bridge:          bridge,
		Locator:         geo.Fallback{Default: cfg.FallbackLocation},
		JWTIssuer:       cfg.JWTIssuer,
		JWTSigningKey:   cfg.JWTSigningKey,
		AccessTTL:       cfg.AccessTTL,
		RateLimitPerMin: cfg.RateLimitPerMin,
		Health:          health,
		Metrics:         promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})

	// Ceremonies park requests until the browser answers, so the write
	// timeout has to outlast two of them.
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2*cfg.CeremonyTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("starting server on :%s (platform=%s ledger=%s credentials=%s queue=%s)",
			cfg.HTTPPort, cfg.Platform, cfg.LedgerBackend, cfg.CredentialBackend, cfg.QueueBackend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server forced shutdown: %v", err)
	}

	log.Println("server exited")
	return nil
}
