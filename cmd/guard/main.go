package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/sentra/guard/internal/alerts"
	"github.com/sentra/guard/internal/behavior"
	"github.com/sentra/guard/internal/category"
	"github.com/sentra/guard/internal/fusion"
	"github.com/sentra/guard/internal/intent"
	"github.com/sentra/guard/internal/messaging"
	"github.com/sentra/guard/internal/metrics"
	"github.com/sentra/guard/internal/obfuscation"
	"github.com/sentra/guard/internal/ratelimit"
	"github.com/sentra/guard/internal/restrict"
	"github.com/sentra/guard/internal/sentiment"
	"github.com/sentra/guard/internal/stream"
	"github.com/sentra/guard/internal/textnorm"
)

const sweepInterval = 1 * time.Hour

func main() {
	log.Println("Starting Guard analysis service...")

	// --- Scheduler config from environment ---
	config := stream.DefaultConfig()
	if v := os.Getenv("BLOCKING_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			config.BlockingThreshold = f
		}
	}
	if v := os.Getenv("HIGH_RISK_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			config.HighRiskThreshold = f
		}
	}
	if v := os.Getenv("PROCESSING_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.ProcessingTimeout = d
		}
	}
	if v := os.Getenv("RATE_LIMIT_MAX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.RateLimit = n
		}
	}
	if v := os.Getenv("RATE_LIMIT_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.RateWindow = d
		}
	}

	metricsAddr := ":9100"
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		metricsAddr = v
	}

	// --- Redis ---
	redisAddr := "localhost:6379"
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		redisAddr = v
	}
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		cancel()
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	cancel()

	// --- Postgres (optional; alert auditing disabled when unset) ---
	var alertStore *alerts.Store
	var db *sql.DB
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		var err error
		db, err = sql.Open("postgres", dsn)
		if err != nil {
			log.Fatalf("failed to open Postgres: %v", err)
		}
		if err := db.Ping(); err != nil {
			log.Fatalf("failed to connect to Postgres: %v", err)
		}
		if err := alerts.Migrate(db); err != nil {
			log.Fatalf("failed to run migrations: %v", err)
		}
		alertStore = alerts.NewStore(db)
	} else {
		log.Println("[guard] DATABASE_URL not set, alert auditing disabled")
	}

	// --- NATS ---
	natsConfig := messaging.DefaultNATSConfig()
	if v := os.Getenv("NATS_URL"); v != "" {
		natsConfig.URL = v
	}
	natsConfig.Name = "guard-analyzer"
	natsClient, err := messaging.NewNATSClient(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	// --- Engines ---
	detector := category.NewDetector(category.DefaultConfig())
	tracker := behavior.NewTracker(behavior.DefaultConfig())
	engines := stream.Engines{
		Preprocessor: stream.CleanerFunc(textnorm.Clean),
		Category:     detector,
		Obfuscation:  obfuscation.NewDetector(),
		Behavior:     tracker,
		Sentiment:    sentiment.NewAnalyzer(),
		Intent:       intent.NewClassifier(),
	}

	limiter := ratelimit.NewLimiter(rdb).Bind(ratelimit.Rule{
		Key:    "rl:analyze:",
		Limit:  config.RateLimit,
		Window: config.RateWindow,
	})
	restrictions := restrict.NewStore(rdb)

	scheduler := stream.NewScheduler(config, engines, limiter)

	// Publish every finalized result to the sender's result subject.
	scheduler.OnProcessed(func(msg *stream.Message, res *stream.Result) {
		data, err := json.Marshal(res)
		if err != nil {
			log.Printf("[guard] marshal result %s: %v", msg.ID, err)
			return
		}
		if err := natsClient.PublishResult(msg.UserID, data); err != nil {
			log.Printf("[guard] publish result %s: %v", msg.ID, err)
		}
	})

	// Blocked content: audit it and escalate restrictions for critical risk.
	scheduler.OnBlocked(func(msg *stream.Message, res *stream.Result) {
		log.Printf("[guard] BLOCKED user=%s platform=%s score=%.2f level=%s",
			msg.UserID, msg.Platform, res.RiskScore, res.RiskLevel)

		if alertStore != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			err := alertStore.CreateBlocked(ctx, &alerts.BlockedMessage{
				MessageID: msg.ID,
				UserID:    msg.UserID,
				Platform:  msg.Platform,
				Text:      msg.Text,
				RiskScore: res.RiskScore,
				RiskLevel: string(res.RiskLevel),
			})
			cancel()
			if err != nil {
				log.Printf("[guard] audit blocked %s: %v", msg.ID, err)
			}
		}

		if res.RiskLevel == fusion.LevelCritical {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			duration, err := restrictions.Escalate(ctx, msg.UserID, "critical_risk")
			cancel()
			if err != nil {
				log.Printf("[guard] escalate %s: %v", msg.UserID, err)
			} else {
				log.Printf("[guard] restricted user=%s for %v", msg.UserID, duration)
			}
		}
	})

	// High-risk content: broadcast the alert and persist it.
	scheduler.OnHighRisk(func(msg *stream.Message, res *stream.Result) {
		for _, a := range res.Alerts {
			if a.Type != stream.AlertHighRisk {
				continue
			}
			data, err := json.Marshal(a)
			if err != nil {
				log.Printf("[guard] marshal alert %s: %v", msg.ID, err)
				continue
			}
			if err := natsClient.PublishAlert(data); err != nil {
				log.Printf("[guard] publish alert %s: %v", msg.ID, err)
			}
			if alertStore != nil {
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				err := alertStore.Create(ctx, &alerts.Alert{
					MessageID: a.MessageID,
					UserID:    a.UserID,
					Platform:  a.Platform,
					Type:      a.Type,
					RiskScore: a.RiskScore,
					RiskLevel: string(res.RiskLevel),
					Detail:    a.Detail,
				})
				cancel()
				if err != nil {
					log.Printf("[guard] audit alert %s: %v", msg.ID, err)
				}
			}
		}
	})

	scheduler.OnError(func(msg *stream.Message, res *stream.Result) {
		log.Printf("[guard] terminal failure message=%s user=%s", msg.ID, msg.UserID)
		if alertStore == nil || len(res.Alerts) == 0 {
			return
		}
		a := res.Alerts[0]
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := alertStore.Create(ctx, &alerts.Alert{
			MessageID: a.MessageID,
			UserID:    msg.UserID,
			Platform:  msg.Platform,
			Type:      a.Type,
			Detail:    a.Detail,
		})
		cancel()
		if err != nil {
			log.Printf("[guard] audit failure %s: %v", msg.ID, err)
		}
	})

	scheduler.Start()

	// Inbound analysis requests.
	err = natsClient.SubscribeAnalyze(func(data []byte) {
		var req messaging.AnalyzeRequest
		if err := json.Unmarshal(data, &req); err != nil {
			log.Printf("[guard] invalid analyze request: %v", err)
			return
		}

		// Restricted users are refused before the pipeline sees them.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		restricted, remaining, _, err := restrictions.IsRestricted(ctx, req.UserID)
		cancel()
		if err != nil {
			log.Printf("[guard] restriction check %s: %v (failing open)", req.UserID, err)
		}
		if restricted {
			log.Printf("[guard] refused restricted user=%s (%ds remaining)", req.UserID, remaining)
			publishRejection(natsClient, req.UserID, "restricted")
			return
		}

		if _, err := scheduler.Enqueue(req.Text, req.UserID, req.Platform, req.Context); err != nil {
			switch {
			case errors.Is(err, stream.ErrRateLimited):
				log.Printf("[guard] rate limited user=%s", req.UserID)
				publishRejection(natsClient, req.UserID, "rate_limited")
			case errors.Is(err, stream.ErrQueueFull):
				log.Printf("[guard] queue full, rejecting user=%s", req.UserID)
				publishRejection(natsClient, req.UserID, "queue_full")
			default:
				log.Printf("[guard] enqueue: %v", err)
			}
		}
	})
	if err != nil {
		log.Fatalf("failed to subscribe to analyze requests: %v", err)
	}

	// Retention sweeper for behavioral state.
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				profiles, conversations := tracker.Sweep(time.Now())
				if profiles > 0 || conversations > 0 {
					log.Printf("[guard] sweep dropped %d profiles, %d conversations", profiles, conversations)
				}
				metrics.TrackedProfiles.Set(float64(tracker.TrackerStats().TotalUsers))
			}
		}
	}()

	// Metrics endpoint.
	metricsServer := &http.Server{Addr: metricsAddr, Handler: metrics.Handler()}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[guard] metrics server: %v", err)
		}
	}()

	log.Printf("Guard analysis service running")
	log.Printf("  redis_addr:         %s", redisAddr)
	log.Printf("  nats_url:           %s", natsConfig.URL)
	log.Printf("  metrics_addr:       %s", metricsAddr)
	log.Printf("  blocking_threshold: %.2f", config.BlockingThreshold)
	log.Printf("  high_risk:          %.2f", config.HighRiskThreshold)
	log.Printf("  rate_limit:         %d per %s", config.RateLimit, config.RateWindow)

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, shutting down...", sig)

	stopSweep()
	scheduler.Stop()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	metricsServer.Shutdown(shutdownCtx)
	cancelShutdown()

	natsClient.Close()
	rdb.Close()
	if db != nil {
		db.Close()
	}
}

func publishRejection(nc *messaging.NATSClient, userID, reason string) {
	data, err := json.Marshal(messaging.Rejection{UserID: userID, Reason: reason})
	if err != nil {
		return
	}
	if err := nc.PublishResult(userID, data); err != nil {
		log.Printf("[guard] publish rejection for %s: %v", userID, err)
	}
}
