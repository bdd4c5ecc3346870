package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "quote:"

// reserveScript classifies a fingerprint and reserves it in one round trip:
// 1 = in progress, 2 = already sent, 0 = new (reservation written).
var reserveScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then return 1 end
if redis.call('EXISTS', KEYS[2]) == 1 then return 2 end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
return 0
`)

// RedisStore shares duplicate state between several service instances. Every
// key carries the window as its TTL, so Redis expiry replaces the sweep.
type RedisStore struct {
	client redis.UniversalClient
	window time.Duration
	now    func() time.Time
}

func NewRedisStore(client redis.UniversalClient, window time.Duration) *RedisStore {
	if window <= 0 {
		window = DefaultWindow
	}
	return &RedisStore{client: client, window: window, now: time.Now}
}

func (s *RedisStore) Backend() string {
	return "redis"
}

func recentKey(fp string) string   { return keyPrefix + "recent:" + fp }
func sentKey(fp string) string     { return keyPrefix + "sent:" + fp }
func notifiedKey(fp string) string { return keyPrefix + "notified:" + fp }

func (s *RedisStore) CheckAndReserve(ctx context.Context, fp string) (Status, error) {
	res, err := reserveScript.Run(ctx, s.client,
		[]string{recentKey(fp), sentKey(fp)},
		s.now().UnixMilli(), s.window.Milliseconds(),
	).Int()
	if err != nil {
		return StatusNew, fmt.Errorf("reserve fingerprint: %w", err)
	}

	switch res {
	case 0:
		return StatusNew, nil
	case 1:
		return StatusInProgress, nil
	case 2:
		return StatusAlreadySent, nil
	default:
		return StatusNew, fmt.Errorf("reserve fingerprint: unexpected script result %d", res)
	}
}

func (s *RedisStore) Release(ctx context.Context, fp string) error {
	if err := s.client.Del(ctx, recentKey(fp)).Err(); err != nil {
		return fmt.Errorf("release fingerprint: %w", err)
	}
	return nil
}

func (s *RedisStore) NotifiedRecipients(ctx context.Context, fp string) (map[string]struct{}, error) {
	members, err := s.client.SMembers(ctx, notifiedKey(fp)).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("load notified recipients: %w", err)
	}
	out := make(map[string]struct{}, len(members))
	for _, m := range members {
		out[m] = struct{}{}
	}
	return out, nil
}

func (s *RedisStore) MarkNotified(ctx context.Context, fp, address string) error {
	key := notifiedKey(fp)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, key, NormalizeAddress(address))
		pipe.PExpire(ctx, key, s.window)
		return nil
	})
	if err != nil {
		return fmt.Errorf("mark notified: %w", err)
	}
	return nil
}

// MarkCompleted writes the sent record and resets the recipient set TTL in the
// same transaction, so the set expires together with its sent record.
func (s *RedisStore) MarkCompleted(ctx context.Context, fp string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sentKey(fp), s.now().UnixMilli(), s.window)
		pipe.PExpire(ctx, notifiedKey(fp), s.window)
		return nil
	})
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	return nil
}

func (s *RedisStore) Sweep(context.Context) error {
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
