package queue

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"

	"tle_zone_judge/internal/platform/config"

	"github.com/redis/go-redis/v9"
)

// RDB is shared by the job queue, admission limiter, locks, run results and
// the daily problem cache.
var RDB *redis.Client

const pingTimeout = 5 * time.Second

// poolSize leaves the default headroom on top of one connection per worker,
// since every worker parks a connection in BRPOP.
func poolSize(cfg *config.Config) int {
	return 10*runtime.GOMAXPROCS(0) + cfg.WorkersNative + cfg.WorkersJVM + cfg.WorkersScript
}

func ConnectRedis() {
	cfg := config.AppConfig
	RDB = redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		PoolSize: poolSize(cfg),
	})

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := RDB.Ping(ctx).Err(); err != nil {
		slog.Error("could not connect to redis", "addr", cfg.RedisAddr, "error", err)
		os.Exit(1)
	}
	slog.Info("connected to redis", "addr", cfg.RedisAddr, "db", cfg.RedisDB)
}

func CloseRedis() {
	if RDB == nil {
		return
	}
	if err := RDB.Close(); err != nil {
		slog.Warn("closing redis", "error", err)
		return
	}
	slog.Info("redis connection closed")
}
