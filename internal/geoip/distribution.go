package geoip

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"

	"shrike/internal/config"
)

const (
	redisFileKeyPrefix = "shrike:geoip:file:"
	redisUpdateChannel = "shrike:geoip:updates"
	redisOpTimeout     = 30 * time.Second
)

type updatePayload struct {
	Editions  []string `json:"editions"`
	UpdatedAt string   `json:"updated_at,omitempty"`
}

type distributionState struct {
	mu     sync.RWMutex
	client *redis.Client
	ctx    context.Context
	cancel context.CancelFunc
}

var globalDistribution distributionState

// EnableRedisDistribution wires database replication through redis so that
// only one instance needs to download the MaxMind archives. Followers pull
// the files into their own configured paths and reload their locator.
func EnableRedisDistribution(ctx context.Context, client *redis.Client, locator *Locator) {
	if client == nil {
		log.Warn("GeoIP redis distribution disabled: redis client is nil")
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}

	syncCtx, cancel := context.WithCancel(ctx)

	globalDistribution.mu.Lock()
	if globalDistribution.client != nil {
		globalDistribution.mu.Unlock()
		cancel()
		return
	}

	globalDistribution.client = client
	globalDistribution.ctx = syncCtx
	globalDistribution.cancel = cancel
	globalDistribution.mu.Unlock()

	go func() {
		if updated, err := fetchFromRedis(syncCtx, client, locator, nil); err != nil {
			log.Error("geoip redis sync: initial load failed", "error", err)
		} else if updated {
			log.Info("geoip redis sync: loaded databases from redis")
		}
	}()

	go subscribeToUpdates(syncCtx, client, locator)
}

// PublishDatabases uploads the local database files to redis and notifies
// the other instances to pull them. editions is optional; when empty every
// configured edition is published. Without distribution enabled this is a
// no-op.
func PublishDatabases(ctx context.Context, editions []string) error {
	client, baseCtx := distributionClient()
	if client == nil {
		return nil
	}

	cfg := config.GetConfig()
	if len(editions) == 0 {
		editions = configuredEditions(cfg)
	}

	opCtx := mergedContext(ctx, baseCtx)
	for _, edition := range editions {
		path := editionPath(cfg, edition)
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("geoip redis sync: read %s: %w", edition, err)
		}
		if err := storeFile(opCtx, client, edition, data); err != nil {
			return fmt.Errorf("geoip redis sync: store %s: %w", edition, err)
		}
	}

	payload := updatePayload{
		Editions:  editions,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("geoip redis sync: serialize payload: %w", err)
	}

	return publishNotification(opCtx, client, data)
}

func subscribeToUpdates(ctx context.Context, client *redis.Client, locator *Locator) {
	pubsub := client.Subscribe(ctx, redisUpdateChannel)
	defer pubsub.Close()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, redis.ErrClosed) || ctx.Err() != nil {
				return
			}
			log.Error("geoip redis sync: subscription error", "error", err)
			time.Sleep(time.Second)
			continue
		}

		var payload updatePayload
		if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
			log.Error("geoip redis sync: invalid payload", "error", err)
			continue
		}

		if updated, err := fetchFromRedis(ctx, client, locator, payload.Editions); err != nil {
			log.Error("geoip redis sync: failed to apply update", "error", err)
		} else if updated {
			log.Info("geoip redis sync: applied update", "editions", payload.Editions)
		}
	}
}

func fetchFromRedis(ctx context.Context, client *redis.Client, locator *Locator, editions []string) (bool, error) {
	if client == nil {
		return false, errors.New("geoip redis sync: redis client is nil")
	}

	cfg := config.GetConfig()
	if len(editions) == 0 {
		editions = configuredEditions(cfg)
	}

	var updated bool
	for _, edition := range editions {
		destPath := editionPath(cfg, edition)
		if destPath == "" {
			continue
		}

		data, err := fetchFile(ctx, client, edition)
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return false, err
		}
		if len(data) == 0 {
			continue
		}

		if err := writeToFile(destPath, bytes.NewReader(data)); err != nil {
			return false, fmt.Errorf("geoip redis sync: write %s: %w", edition, err)
		}
		updated = true
	}

	if updated {
		if err := locator.Reload(cfg.GeoIP.CountryDB, cfg.GeoIP.ASNDB); err != nil {
			return false, fmt.Errorf("geoip redis sync: reload databases: %w", err)
		}
	}

	return updated, nil
}

func storeFile(ctx context.Context, client *redis.Client, edition string, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	opCtx, cancel := redisTimeoutCtx(ctx)
	defer cancel()
	return client.Set(opCtx, redisFileKeyPrefix+edition, data, 0).Err()
}

func publishNotification(ctx context.Context, client *redis.Client, payload []byte) error {
	opCtx, cancel := redisTimeoutCtx(ctx)
	defer cancel()
	return client.Publish(opCtx, redisUpdateChannel, payload).Err()
}

func fetchFile(ctx context.Context, client *redis.Client, edition string) ([]byte, error) {
	opCtx, cancel := redisTimeoutCtx(ctx)
	defer cancel()
	return client.Get(opCtx, redisFileKeyPrefix+edition).Bytes()
}

func configuredEditions(cfg config.Config) []string {
	targets := downloadTargets(cfg)
	editions := make([]string, 0, len(targets))
	for _, target := range targets {
		editions = append(editions, target.editionID)
	}
	return editions
}

func editionPath(cfg config.Config, edition string) string {
	switch edition {
	case CountryEdition:
		return strings.TrimSpace(cfg.GeoIP.CountryDB)
	case ASNEdition:
		return strings.TrimSpace(cfg.GeoIP.ASNDB)
	default:
		return ""
	}
}

func distributionClient() (*redis.Client, context.Context) {
	globalDistribution.mu.RLock()
	defer globalDistribution.mu.RUnlock()
	return globalDistribution.client, globalDistribution.ctx
}

func mergedContext(ctx context.Context, fallback context.Context) context.Context {
	switch {
	case ctx != nil && ctx.Err() == nil:
		return ctx
	case fallback != nil && fallback.Err() == nil:
		return fallback
	default:
		return context.Background()
	}
}

func redisTimeoutCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if deadline, hasDeadline := ctx.Deadline(); hasDeadline && time.Until(deadline) <= redisOpTimeout {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, redisOpTimeout)
}
