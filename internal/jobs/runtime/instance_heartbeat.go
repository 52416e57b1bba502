package runtime

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

const (
	instanceKeyPrefix  = "shrike:instance:"
	heartbeatInterval  = 15 * time.Second
	heartbeatKeyExpiry = 30 * time.Second
)

// LaunchInstanceHeartbeat announces this instance under a short-lived redis
// key so operators can see which nodes are alive. The returned cancel stops
// the heartbeat; the key then expires on its own.
func LaunchInstanceHeartbeat(parent context.Context, client *redis.Client) context.CancelFunc {
	ctx, cancel := context.WithCancel(parent)
	go beatLoop(ctx, client)
	return cancel
}

func beatLoop(ctx context.Context, client *redis.Client) {
	hostname, _ := os.Hostname()
	key := fmt.Sprintf("%s%s-%d-%d", instanceKeyPrefix, hostname, os.Getpid(), time.Now().UnixNano())

	beat := func() {
		value := time.Now().UTC().Format(time.RFC3339)
		if err := client.SetEx(ctx, key, value, heartbeatKeyExpiry).Err(); err != nil {
			log.Error("Failed to update instance heartbeat", "key", key, "error", err)
		}
	}

	beat()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			beat()
		}
	}
}
