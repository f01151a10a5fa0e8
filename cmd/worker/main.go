package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"geoattend/internal/attendance"
	"geoattend/internal/config"
	"geoattend/internal/notify"
	"geoattend/internal/queue"
	"geoattend/internal/roster"
	"geoattend/internal/store"
)

// Worker delivers absence notices and sweeps expired classes on a schedule.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	if cfg.LedgerBackend == "postgres" {
		stopSweep, err := startSweeper(ctx, cfg)
		if err != nil {
			log.Fatalf("sweeper init failed: %v", err)
		}
		defer stopSweep()
	} else {
		log.Println("ledger is in memory, expiry sweep runs inside the api")
	}

	if cfg.QueueBackend != "redis" {
		log.Println("queue is in memory, absence notices are delivered by the api")
		<-ctx.Done()
		log.Println("worker stopped")
		return
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()
	q := queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)

	log.Println("worker started, waiting for absence notices...")
	if err := notify.Deliver(ctx, q, notify.NewLogNotifier(nil)); err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}
	log.Println("worker stopped")
}

// startSweeper schedules SweepExpired for every rostered student.
func startSweeper(ctx context.Context, cfg config.App) (func(), error) {
	var (
		rst *roster.Roster
		err error
	)
	if cfg.RosterFile != "" {
		rst, err = roster.LoadFile(cfg.RosterFile, cfg.LocationTolerance)
	} else {
		rst, err = roster.Demo(time.Now(), cfg.LocationTolerance)
	}
	if err != nil {
		return nil, err
	}

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		if db == nil {
			return nil, err
		}
		log.Printf("warning: db not reachable: %v", err)
	}
	ledger := attendance.NewPostgresLedger(db.Client)
	if err := ledger.EnsureSchema(ctx); err != nil {
		log.Printf("warning: ensure schema failed: %v", err)
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := c.AddFunc(cfg.SweepSchedule, func() { sweepAll(ctx, ledger, rst) }); err != nil {
		_ = db.Close()
		return nil, err
	}
	c.Start()
	log.Printf("expiry sweep scheduled: %s", cfg.SweepSchedule)

	return func() {
		<-c.Stop().Done()
		_ = db.Close()
	}, nil
}

func sweepAll(ctx context.Context, ledger attendance.Ledger, rst *roster.Roster) {
	now := time.Now()
	total := 0
	for _, roll := range rst.Students() {
		classes, err := rst.ClassesFor(roll)
		if err != nil {
			log.Printf("sweep: classes for %s: %v", roll, err)
			continue
		}
		marked, err := attendance.SweepExpired(ctx, ledger, roll, classes, now)
		if err != nil {
			log.Printf("sweep %s failed: %v", roll, err)
			continue
		}
		total += len(marked)
	}
	if total > 0 {
		log.Printf("sweep marked %d expired classes absent", total)
	}
}
