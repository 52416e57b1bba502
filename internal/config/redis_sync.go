package config

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

const (
	redisConfigKey     = "shrike:config:settings"
	redisConfigChannel = "shrike:config:updates"
	redisOpTimeout     = 5 * time.Second
)

var syncState struct {
	mu     sync.RWMutex
	client *redis.Client
	ctx    context.Context
	cancel context.CancelFunc
}

// EnableRedisSynchronization keeps the settings of all instances aligned. On
// startup the redis-stored configuration wins over the local file; afterwards
// every save is pushed to the store and announced on the update channel.
func EnableRedisSynchronization(ctx context.Context, client *redis.Client) {
	if client == nil {
		log.Warn("Config synchronization disabled: redis client is nil")
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	syncCtx, cancel := context.WithCancel(ctx)

	syncState.mu.Lock()
	if syncState.client != nil {
		syncState.mu.Unlock()
		cancel()
		return
	}
	syncState.client = client
	syncState.ctx = syncCtx
	syncState.cancel = cancel
	syncState.mu.Unlock()

	if err := adoptStoredConfig(syncCtx, client); err != nil {
		log.Error("Config sync: failed to load configuration from redis", "error", err)
	}

	go listenForConfigUpdates(syncCtx, client)
}

// adoptStoredConfig pulls the shared configuration. A missing key means this
// is the first instance up, which then seeds the store with its own settings.
func adoptStoredConfig(ctx context.Context, client *redis.Client) error {
	opCtx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	payload, err := client.Get(opCtx, redisConfigKey).Result()
	if errors.Is(err, redis.Nil) {
		seed, err := json.Marshal(encryptedCopy(GetConfig()))
		if err != nil {
			return err
		}
		return broadcastConfigUpdate(seed)
	}
	if err != nil {
		return err
	}

	return applyRemotePayload([]byte(payload))
}

func listenForConfigUpdates(ctx context.Context, client *redis.Client) {
	pubsub := client.Subscribe(ctx, redisConfigChannel)
	defer pubsub.Close()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, redis.ErrClosed) || ctx.Err() != nil {
				return
			}
			log.Error("Config sync: subscription error", "error", err)
			time.Sleep(time.Second)
			continue
		}

		if err := applyRemotePayload([]byte(msg.Payload)); err != nil {
			log.Error("Config sync: failed to apply remote update", "error", err)
		}
	}
}

// applyRemotePayload installs a configuration received from another instance.
// The update is persisted locally but never re-broadcast.
func applyRemotePayload(payload []byte) error {
	var cfg Config
	if err := json.Unmarshal(payload, &cfg); err != nil {
		return err
	}
	decryptSecrets(&cfg)

	return applyConfigUpdate(cfg, configUpdateOptions{persistToFile: true, source: "redis"})
}

func broadcastConfigUpdate(payload []byte) error {
	if len(payload) == 0 {
		return nil
	}

	syncState.mu.RLock()
	client := syncState.client
	baseCtx := syncState.ctx
	syncState.mu.RUnlock()

	if client == nil {
		return nil
	}

	if baseCtx == nil || baseCtx.Err() != nil {
		baseCtx = context.Background()
	}
	opCtx, cancel := context.WithTimeout(baseCtx, redisOpTimeout)
	defer cancel()

	if err := client.Set(opCtx, redisConfigKey, payload, 0).Err(); err != nil {
		return err
	}
	return client.Publish(opCtx, redisConfigChannel, payload).Err()
}
