package app

import (
	"context"
	"flag"
	"os"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"shrike/internal/app/bootstrap"
	"shrike/internal/app/server"
	"shrike/internal/config"
	"shrike/internal/geoip"
	jobruntime "shrike/internal/jobs/runtime"
	"shrike/internal/support"
)

const defaultBackendPort = 8082

func Run() error {
	if err := godotenv.Load(); err != nil {
		log.Warn("No .env file found. Falling back to system environment variables.")
	}

	backendPortFlag := flag.Int("backend-port", defaultBackendPort, "Port for API server")
	productionFlag := flag.Bool("production", false, "Run in production mode")
	flag.Parse()

	config.SetProductionMode(*productionFlag)
	if config.InProductionMode {
		log.SetLevel(log.InfoLevel)
	} else {
		log.SetLevel(log.DebugLevel)
	}

	backendPort := resolvePort("BACKEND_PORT", "backend-port", *backendPortFlag)

	rt, err := bootstrap.Setup()
	if err != nil {
		return err
	}

	// Redis is optional. Without it the instance still serves lookups,
	// it just keeps its configuration and database files to itself.
	if redisClient, err := support.GetRedisClient(); err != nil {
		log.Warn("Running without redis, configuration changes stay local to this instance", "error", err)
	} else {
		defer support.CloseRedisClient()

		config.EnableRedisSynchronization(context.Background(), redisClient)
		geoip.EnableRedisDistribution(context.Background(), redisClient, rt.Locator)

		heartbeatCancel := jobruntime.LaunchInstanceHeartbeat(context.Background(), redisClient)
		defer heartbeatCancel()
	}

	go jobruntime.StartGeoIPUpdateRoutine(context.Background(), rt.Locator)

	api := server.NewAPI(rt.Store, rt.Orchestrator, rt.Locator)
	return api.OpenRoutes(backendPort)
}

func resolvePort(primaryEnv, legacyEnv string, fallback int) int {
	if port := readPort(primaryEnv); port != 0 {
		return port
	}
	if port := readPort(legacyEnv); port != 0 {
		return port
	}
	return fallback
}

func readPort(envKey string) int {
	raw := os.Getenv(envKey)
	if raw == "" {
		return 0
	}
	port, err := strconv.Atoi(raw)
	if err != nil || port == 0 {
		log.Warn("invalid port override", "env", envKey, "value", raw)
		return 0
	}
	return port
}
