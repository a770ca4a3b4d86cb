package jobqueue

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// newTestRedis starts an in-process Redis and a client bound to it.
func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

// newTestQueue returns a queue on a fresh miniredis instance.
func newTestQueue(t *testing.T, workers int) (*Queue, *miniredis.Miniredis) {
	t.Helper()

	mr, client := newTestRedis(t)
	return NewQueueWithClient(client, workers), mr
}
