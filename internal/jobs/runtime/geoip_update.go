package runtime

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"shrike/internal/config"
	"shrike/internal/geoip"
	"shrike/internal/support"
)

const (
	geoIPUpdateLockKey       = "shrike:leader:geoip_update"
	geoIPUpdateFallbackEvery = 24 * time.Hour
)

// StartGeoIPUpdateRoutine keeps the GeoLite databases fresh. With redis
// available the download runs on the elected leader only and followers
// receive the files through the distribution channel; without redis the
// instance refreshes its own files.
func StartGeoIPUpdateRoutine(ctx context.Context, locator *geoip.Locator) {
	if ctx == nil {
		ctx = context.Background()
	}

	if _, err := support.GetRedisClient(); err != nil {
		runGeoIPUpdateLoop(ctx, locator)
		return
	}

	err := support.RunWithLeader(ctx, geoIPUpdateLockKey, support.DefaultLeadershipTTL, func(leaderCtx context.Context) {
		runGeoIPUpdateLoop(leaderCtx, locator)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("GeoIP update routine stopped", "error", err)
	}
}

func runGeoIPUpdateLoop(ctx context.Context, locator *geoip.Locator) {
	currentInterval := geoIPUpdateInterval()

	ticker := time.NewTicker(currentInterval)
	defer ticker.Stop()

	triggerGeoIPUpdate(ctx, locator, "startup", false)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			triggerGeoIPUpdate(ctx, locator, "scheduled", false)

			if next := geoIPUpdateInterval(); next != currentInterval {
				currentInterval = next
				ticker.Reset(currentInterval)
			}
		}
	}
}

func geoIPUpdateInterval() time.Duration {
	hours := config.GetConfig().GeoIP.UpdateHours
	if hours == 0 {
		return geoIPUpdateFallbackEvery
	}
	return time.Duration(hours) * time.Hour
}

// RunGeoIPUpdate runs the updater on demand. When force is false the update
// is only executed if auto updates are enabled.
func RunGeoIPUpdate(ctx context.Context, locator *geoip.Locator, reason string, force bool) {
	if ctx == nil {
		ctx = context.Background()
	}
	triggerGeoIPUpdate(ctx, locator, reason, force)
}

func triggerGeoIPUpdate(ctx context.Context, locator *geoip.Locator, reason string, force bool) {
	cfg := config.GetConfig()
	if strings.TrimSpace(cfg.GeoIP.LicenseKey) == "" {
		log.Debug("GeoIP update skipped: license key missing", "reason", reason)
		return
	}

	if !force && !cfg.GeoIP.AutoUpdate {
		log.Debug("GeoIP update skipped: auto update disabled", "reason", reason)
		return
	}

	updated, err := geoip.UpdateDatabases(ctx, locator)
	switch {
	case errors.Is(err, geoip.ErrNoLicenseKey), errors.Is(err, geoip.ErrNoDatabasePaths):
		log.Debug("GeoIP update skipped", "reason", reason, "error", err)
	case err != nil:
		log.Error("GeoIP update failed", "reason", reason, "error", err)
	case updated:
		log.Info("GeoIP databases updated", "reason", reason)
	default:
		log.Debug("GeoIP update skipped", "reason", reason)
	}
}
