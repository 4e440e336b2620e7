package gate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a shared watermark for multi-replica deployments. The check and
// the set happen inside one Lua script, so the compare-and-set is atomic on
// the server.
type Redis struct {
	client *redis.Client
	key    string
}

// NewRedis creates a redis-backed watermark under the given key.
func NewRedis(client *redis.Client, key string) *Redis {
	return &Redis{client: client, key: key}
}

// tryAcquireScript compares the stored last-run (unix milliseconds) against
// now-interval and moves the watermark only when due. Returns the previous
// value and whether the caller acquired.
var tryAcquireScript = redis.NewScript(`
local last = tonumber(redis.call("GET", KEYS[1])) or 0
local now = tonumber(ARGV[1])
local interval = tonumber(ARGV[2])
if last > 0 and (now - last) < interval then
	return {0, last}
end
redis.call("SET", KEYS[1], ARGV[1])
return {1, last}
`)

func (r *Redis) TryAcquire(ctx context.Context, now time.Time, interval time.Duration) (bool, time.Time, error) {
	res, err := tryAcquireScript.Run(ctx, r.client,
		[]string{r.key}, now.UnixMilli(), interval.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return false, time.Time{}, fmt.Errorf("gate try acquire: %w", err)
	}
	if len(res) != 2 {
		return false, time.Time{}, fmt.Errorf("gate try acquire: unexpected reply length %d", len(res))
	}
	var lastRun time.Time
	if res[1] != 0 {
		lastRun = time.UnixMilli(res[1])
	}
	return res[0] == 1, lastRun, nil
}

func (r *Redis) Rollback(ctx context.Context, previous time.Time) error {
	if previous.IsZero() {
		if err := r.client.Del(ctx, r.key).Err(); err != nil {
			return fmt.Errorf("gate rollback: %w", err)
		}
		return nil
	}
	if err := r.client.Set(ctx, r.key, previous.UnixMilli(), 0).Err(); err != nil {
		return fmt.Errorf("gate rollback: %w", err)
	}
	return nil
}
