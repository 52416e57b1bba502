package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"

	"shrike/internal/config"
	jobruntime "shrike/internal/jobs/runtime"
)

func getGlobalSettings(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(config.GetConfig())
}

func (a *API) saveSettings(w http.ResponseWriter, r *http.Request) {
	previousCfg := config.GetConfig()

	var newConfig config.Config
	if err := json.NewDecoder(r.Body).Decode(&newConfig); err != nil {
		log.Error("Error decoding request body:", err)
		writeError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	newConfig.Lookup.Blocklists = config.NormalizeBlocklistZones(newConfig.Lookup.Blocklists)
	newConfig.Lookup.Resolvers = config.NormalizeResolverHosts(newConfig.Lookup.Resolvers)

	config.SetConfig(newConfig)

	if newConfig.GeoIP.CountryDB != previousCfg.GeoIP.CountryDB || newConfig.GeoIP.ASNDB != previousCfg.GeoIP.ASNDB {
		if err := a.locator.Reload(newConfig.GeoIP.CountryDB, newConfig.GeoIP.ASNDB); err != nil {
			log.Warn("GeoIP databases not fully reloaded", "error", err)
		}
	}

	if strings.TrimSpace(newConfig.GeoIP.LicenseKey) != "" {
		go jobruntime.RunGeoIPUpdate(context.Background(), a.locator, "config-save", true)
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"message": "Configuration updated successfully"})
}
