package testing

import (
	"context"
	"net"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
)

// GetRedisClientAndCtx connects to the redis at host:port (or UMKM_REDIS_HOST:port when host
// is empty), fails the test if it cannot be pinged, and closes the client on cleanup.
func GetRedisClientAndCtx(t *testing.T, host, port string) (context.Context, *redis.Client) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	if host == "" {
		host = os.Getenv("UMKM_REDIS_HOST")
	}
	if host == "" {
		host = "localhost"
	}
	if port == "" {
		port = "6379"
	}
	t.Logf("using redis: [%s:%s]", host, port)

	rdb := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(host, port),
		Password: os.Getenv("UMKM_REDIS_PASS"),
		DB:       0, // use default DB
	})
	t.Cleanup(func() {
		if err := rdb.Close(); err != nil {
			t.Logf("close redis client: %s", err)
		}
	})

	pingRes, err := rdb.Ping(ctx).Result()
	require.NoError(t, err)
	t.Logf("redis ping res: %s", pingRes)

	return ctx, rdb
}
