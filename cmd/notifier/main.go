// Command notifier consumes the gateway's durable NATS feed and maintains
// daily activity counters in Redis. Downstream consumers (push notification
// workers, the analytics dashboard) read the same subjects; this service is
// the reference consumer.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/redis/go-redis/v9"

	"github.com/meixup/realtime/internal/messaging"
)

type config struct {
	RedisAddr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	NATSURL   string `env:"NATS_URL" envDefault:"nats://localhost:4222"`
}

// counterTTL keeps daily counters around long enough for the dashboard to
// read yesterday's numbers.
const counterTTL = 48 * time.Hour

func main() {
	log.Println("Starting meixup realtime notifier...")

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("config: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(ctx).Err(); err != nil {
		cancel()
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	cancel()

	natsConfig := messaging.DefaultConfig()
	natsConfig.URL = cfg.NATSURL
	natsConfig.Name = "meixup-notifier"

	natsClient, err := messaging.NewClient(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	err = natsClient.SubscribeMatchCreated(func(ev messaging.MatchCreatedEvent) {
		log.Printf("[notifier] match created id=%d room=%d users=%d,%d",
			ev.MatchID, ev.RoomID, ev.UserOne, ev.UserTwo)
		bump(rdb, "stats:matches:"+day())
	})
	if err != nil {
		log.Fatalf("failed to subscribe to match feed: %v", err)
	}

	err = natsClient.SubscribeMessageCreated(func(ev messaging.MessageCreatedEvent) {
		bump(rdb, "stats:messages:"+day())
		if ev.HasMedia {
			bump(rdb, "stats:media_messages:"+day())
		}
	})
	if err != nil {
		log.Fatalf("failed to subscribe to message feed: %v", err)
	}

	log.Printf("meixup realtime notifier running")
	log.Printf("  redis_addr: %s", cfg.RedisAddr)
	log.Printf("  nats_url:   %s", natsConfig.URL)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, shutting down...", sig)

	natsClient.Close()
	rdb.Close()
}

func day() string {
	return time.Now().UTC().Format("2006-01-02")
}

// bump increments a daily counter and refreshes its TTL. Counter loss is
// tolerable, so errors are logged and dropped.
func bump(rdb *redis.Client, key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := rdb.Incr(ctx, key).Err(); err != nil {
		log.Printf("[notifier] incr %s: %v", key, err)
		return
	}
	if err := rdb.Expire(ctx, key, counterTTL).Err(); err != nil {
		log.Printf("[notifier] expire %s: %v", key, err)
	}
}
