package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"shrike/internal/security"
)

type Config struct {
	Lookup struct {
		Blocklists  []string `json:"blocklists"`
		Resolvers   []string `json:"resolvers"`
		Timeout     uint32   `json:"timeout"`
		Workers     uint32   `json:"workers"`
		Socks5Proxy string   `json:"socks5_proxy"`
	} `json:"lookup"`

	GeoIP struct {
		CountryDB   string `json:"country_db"`
		ASNDB       string `json:"asn_db"`
		LicenseKey  string `json:"license_key"`
		AutoUpdate  bool   `json:"auto_update"`
		UpdateHours uint32 `json:"update_hours"`
	} `json:"geoip"`
}

const settingsFilePath = "data/settings.json"

var (
	//go:embed default_settings.json
	defaultConfig []byte

	configValue atomic.Value
	configMu    sync.Mutex

	InProductionMode bool
)

func init() {
	// Initialize configValue with a default Config instance
	configValue.Store(Config{})
}

func ReadSettings() {

	data, err := os.ReadFile(settingsFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn("Settings file not found, creating with default configuration")

			err = os.MkdirAll("data", os.ModePerm)
			if err != nil {
				log.Error("Error creating directory for settings file:", err)
				return
			}

			err = os.WriteFile(settingsFilePath, defaultConfig, os.ModePerm)
			if err != nil {
				log.Error("Error writing default settings file:", err)
				return
			}

			data = defaultConfig
		} else {
			log.Error("Error reading settings file:", err)
			return
		}
	}

	var newConfig Config
	err = json.Unmarshal(data, &newConfig)
	if err != nil {
		log.Error("Error unmarshalling settings file:", err)
		return
	}
	decryptSecrets(&newConfig)

	if err := applyConfigUpdate(newConfig, configUpdateOptions{source: "file"}); err != nil {
		log.Error("Error applying configuration from settings file:", err)
		return
	}

	log.Debug("Settings file loaded successfully")
}

func SetConfig(newConfig Config) {
	if err := applyConfigUpdate(newConfig, configUpdateOptions{persistToFile: true, broadcast: true, source: "local"}); err != nil {
		log.Error("Error applying configuration update:", err)
		return
	}

	log.Debug("Configuration updated and written to file successfully")
}

type configUpdateOptions struct {
	persistToFile bool
	broadcast     bool
	source        string
}

func applyConfigUpdate(newConfig Config, opts configUpdateOptions) error {
	configMu.Lock()
	defer configMu.Unlock()

	configValue.Store(newConfig)
	updateLookupSnapshot(newConfig)

	var errs []error

	// The file and the broadcast carry sealed secrets, the in-memory
	// snapshot keeps the plaintext the dialers need.
	if opts.persistToFile || opts.broadcast {
		sealed := encryptedCopy(newConfig)

		if opts.persistToFile {
			data, err := json.MarshalIndent(sealed, "", "  ")
			if err != nil {
				log.Error("Error marshalling new configuration:", err)
				errs = append(errs, err)
			} else if err := os.WriteFile(settingsFilePath, data, os.ModePerm); err != nil {
				log.Error("Error writing new configuration to file:", err)
				errs = append(errs, err)
			}
		}

		if opts.broadcast {
			payload, err := json.Marshal(sealed)
			if err != nil {
				log.Error("Error serializing configuration for broadcast:", err)
				errs = append(errs, err)
			} else if err := broadcastConfigUpdate(payload); err != nil {
				log.Error("Error broadcasting configuration update:", err)
				errs = append(errs, err)
			}
		}
	}

	if opts.source != "" {
		log.Debug("Configuration applied", "source", opts.source)
	} else {
		log.Debug("Configuration applied")
	}

	return errors.Join(errs...)
}

func GetConfig() Config {
	// Get the current Config atomically
	return configValue.Load().(Config)
}

func SetProductionMode(productionMode bool) {
	InProductionMode = productionMode
}

// secretFields lists the settings values that are sealed at rest.
func secretFields(cfg *Config) []*string {
	return []*string{&cfg.Lookup.Socks5Proxy, &cfg.GeoIP.LicenseKey}
}

func decryptSecrets(cfg *Config) {
	for _, field := range secretFields(cfg) {
		plain, _, err := security.DecryptSecret(*field)
		if err != nil {
			log.Error("Failed to decrypt settings secret, clearing it", "error", err)
			*field = ""
			continue
		}
		*field = plain
	}
}

// encryptedCopy seals the secret fields when an encryption key is configured.
// Without a key the values are stored in the clear, matching deployments that
// never opted into sealing.
func encryptedCopy(cfg Config) Config {
	for _, field := range secretFields(&cfg) {
		if *field == "" || security.IsSecretEncrypted(*field) {
			continue
		}

		sealed, err := security.EncryptSecret(*field)
		if err != nil {
			if !errors.Is(err, security.ErrNoEncryptionKey) {
				log.Warn("Failed to seal settings secret, storing in the clear", "error", err)
			}
			continue
		}
		*field = sealed
	}
	return cfg
}
