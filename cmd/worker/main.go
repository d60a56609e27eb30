package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"deptportal/internal/attendance"
	"deptportal/internal/catalog"
	"deptportal/internal/config"
	"deptportal/internal/metrics"
	"deptportal/internal/queue"
	"deptportal/internal/reportcache"
	"deptportal/internal/store"
)

// Worker consumes session-written messages and re-warms the report cache
// for every student on the session, so the student read path stays hot.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "deptportal:sessions")
	}

	sessions := attendance.NewRepository(db.Client)
	cat := catalog.NewRepository(db.Client)
	svc := attendance.NewService(sessions, cat, attendance.ScopePolicy(cfg.AttendanceScope))
	cache := reportcache.New(redisClient.Client, cfg.ReportCacheTTL)

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for messages...")
	for msg := range messages {
		if msg.Type != queue.TypeSessionWritten {
			continue
		}

		sess, err := svc.Session(ctx, msg.SessionID)
		if err != nil {
			log.Printf("fetch session %s failed: %v", msg.SessionID, err)
			continue
		}
		if sess == nil {
			log.Printf("session %s vanished before cache warm", msg.SessionID)
			continue
		}

		now := time.Now().UTC()
		for _, rec := range sess.Records {
			entries, err := svc.StudentReport(ctx, rec.StudentID, now)
			if err != nil {
				log.Printf("report for %s failed: %v", rec.StudentID, err)
				continue
			}
			metrics.ReportsComputed.Inc()
			if err := cache.Put(ctx, rec.StudentID, entries); err != nil {
				log.Printf("cache put for %s failed: %v", rec.StudentID, err)
			}
		}
		log.Printf("session %s: warmed %d student reports", sess.ID, len(sess.Records))
	}

	log.Println("worker stopped")
}
