package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindow trims the sorted set to the window, admits the request when
// under the limit and reports {allowed, count, resetAtMs}.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < limit then
  redis.call('ZADD', key, now, ARGV[4])
  count = count + 1
  allowed = 1
end

local reset = now + window
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if oldest[2] then
  reset = tonumber(oldest[2]) + window
end
redis.call('PEXPIRE', key, window)
return {allowed, count, reset}
`)

// Redis shares a sliding window across replicas through one sorted set per
// key.
type Redis struct {
	Limit  int
	Window time.Duration
	Prefix string

	client redis.UniversalClient
	now    func() time.Time
}

func NewRedis(client redis.UniversalClient, limit int, window time.Duration) *Redis {
	return &Redis{Limit: limit, Window: window, Prefix: "sharpform:rl:", client: client, now: time.Now}
}

func (r *Redis) Allow(ctx context.Context, key string) (Decision, error) {
	now := r.now().UnixMilli()
	res, err := slidingWindow.Run(ctx, r.client, []string{r.Prefix + key},
		strconv.FormatInt(now, 10),
		strconv.FormatInt(r.Window.Milliseconds(), 10),
		strconv.Itoa(r.Limit),
		uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: redis: %w", err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("ratelimit: redis: unexpected reply %v", res)
	}
	remaining := r.Limit - int(res[1])
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   res[0] == 1,
		Limit:     r.Limit,
		Remaining: remaining,
		ResetAt:   time.UnixMilli(res[2]),
	}, nil
}
