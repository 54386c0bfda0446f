package redis

import (
	"context"
	"time"

	"hosa-study-board/internal/config"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

var RedisClient *redis.Client

// InitRedis connects to config.AppConfig.RedisAddress. RedisClient stays nil
// when the server does not answer, and callers fall back to in-process
// notification without an export cache.
func InitRedis() {
	client := redis.NewClient(&redis.Options{
		Addr: config.AppConfig.RedisAddress,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", config.AppConfig.RedisAddress).Msg("Redis not available. Running without Redis.")
		_ = client.Close()
		RedisClient = nil
		return
	}

	RedisClient = client
	log.Info().Msg("Redis connected successfully.")
}
