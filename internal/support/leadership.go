package support

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultLeadershipTTL = 45 * time.Second

	leaderRetryDelay   = time.Second
	leaderRedisTimeout = 5 * time.Second
)

var errLeadershipLost = errors.New("support: leadership lost")

// Renewal and release must only touch the key while it still holds our
// token, otherwise a slow instance could stomp on the next leader.
var (
	leaderRenewScript = redis.NewScript(
		`if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("PEXPIRE", KEYS[1], ARGV[2]) else return 0 end`)
	leaderReleaseScript = redis.NewScript(
		`if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) else return 0 end`)
)

// RunWithLeader competes for the named lock and calls run while this instance
// holds it. The context handed to run is cancelled when leadership is lost.
// When run returns the lock is released and the instance rejoins the
// election, so a permanent worker loop keeps exactly one active copy across
// the fleet. Returns only once ctx is done.
func RunWithLeader(ctx context.Context, key string, ttl time.Duration, run func(context.Context)) error {
	if run == nil {
		return errors.New("support: leader run function cannot be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if ttl <= 0 {
		ttl = DefaultLeadershipTTL
	}

	client, err := GetRedisClient()
	if err != nil {
		return fmt.Errorf("support: leader lock redis client: %w", err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		token := newLeaderToken()
		acquired, err := client.SetNX(ctx, key, token, ttl).Result()
		if err != nil && ctx.Err() == nil {
			log.Warn("leader lock: acquire failed", "key", key, "error", err)
		}

		if acquired {
			log.Debug("leader lock: acquired", "key", key)
			holdLeadership(ctx, client, key, token, ttl, run)
			releaseLeadership(client, key, token)
			log.Debug("leader lock: released", "key", key)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(leaderRetryDelay):
		}
	}
}

// holdLeadership runs the worker and keeps the key alive until the worker
// returns, the parent context ends, or a renewal fails.
func holdLeadership(ctx context.Context, client *redis.Client, key, token string, ttl time.Duration, run func(context.Context)) {
	leaderCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	renewEvery := ttl / 3
	if renewEvery < time.Second {
		renewEvery = time.Second
	}

	go func() {
		ticker := time.NewTicker(renewEvery)
		defer ticker.Stop()

		for {
			select {
			case <-leaderCtx.Done():
				return
			case <-ticker.C:
				if err := renewLeadership(client, key, token, ttl); err != nil {
					log.Warn("leader lock: renewal failed", "key", key, "error", err)
					cancel()
					return
				}
			}
		}
	}()

	run(leaderCtx)
}

func renewLeadership(client *redis.Client, key, token string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), leaderRedisTimeout)
	defer cancel()

	res, err := leaderRenewScript.Run(ctx, client, []string{key}, token, ttl.Milliseconds()).Result()
	if err != nil {
		return err
	}
	if renewed, ok := res.(int64); ok && renewed == 0 {
		return errLeadershipLost
	}
	return nil
}

func releaseLeadership(client *redis.Client, key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), leaderRedisTimeout)
	defer cancel()

	if _, err := leaderReleaseScript.Run(ctx, client, []string{key}, token).Result(); err != nil && !errors.Is(err, redis.Nil) {
		log.Warn("leader lock: release failed", "key", key, "error", err)
	}
}

func newLeaderToken() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%d-%d", os.Getpid(), time.Now().UnixNano())
	}
	host, _ := os.Hostname()
	return fmt.Sprintf("%s-%d-%s", host, os.Getpid(), hex.EncodeToString(buf))
}
