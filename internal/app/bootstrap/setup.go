package bootstrap

import (
	"fmt"

	"shrike/internal/config"
	"shrike/internal/database"
	"shrike/internal/geoip"
	"shrike/internal/resolve"
)

// Runtime bundles the long-lived services the application is built from.
// Everything that needs the database or the GeoIP readers receives them
// from here instead of reaching for package-level state.
type Runtime struct {
	Store        *database.Handler
	Locator      *geoip.Locator
	Orchestrator *resolve.Orchestrator
}

func Setup() (*Runtime, error) {
	config.ReadSettings()

	store, err := database.SetupDB()
	if err != nil {
		return nil, fmt.Errorf("failed to set up database: %w", err)
	}

	cfg := config.GetConfig()
	locator := geoip.Open(cfg.GeoIP.CountryDB, cfg.GeoIP.ASNDB)

	return &Runtime{
		Store:        store,
		Locator:      locator,
		Orchestrator: resolve.NewOrchestrator(store, locator),
	}, nil
}
