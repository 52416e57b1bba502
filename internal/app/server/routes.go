package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/charmbracelet/log"

	"shrike/internal/auth"
	"shrike/internal/database"
	"shrike/internal/geoip"
	"shrike/internal/resolve"
)

// Enqueuer runs blocklist resolution for a batch of addresses.
type Enqueuer interface {
	Enqueue(ctx context.Context, addresses []string) []resolve.AddressReport
}

// API carries the handles the route handlers operate on. One instance serves
// the whole process.
type API struct {
	store    *database.Handler
	enqueuer Enqueuer
	locator  *geoip.Locator

	graphQLOnce    sync.Once
	graphQLHandler http.Handler
	graphQLErr     error
}

func NewAPI(store *database.Handler, enqueuer Enqueuer, locator *geoip.Locator) *API {
	return &API{
		store:    store,
		enqueuer: enqueuer,
		locator:  locator,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Set CORS headers
		w.Header().Set("Access-Control-Allow-Origin", "*") // Allow any origin
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		// Handle preflight request
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		// Pass the request to the next handler
		next.ServeHTTP(w, r)
	})
}

func (a *API) OpenRoutes(port int) error {
	router := a.buildRouter()

	log.Debug("Routes opened")

	server := http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: enableCORS(router),
	}

	log.Infof("Starting shrike backend on port :%d", port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server failed: %w", err)
	}
	return nil
}

func (a *API) buildRouter() *http.ServeMux {
	router := http.NewServeMux()

	router.HandleFunc("POST /register", a.registerUser)
	router.HandleFunc("POST /login", a.loginUser)
	router.Handle("GET /checkLogin", auth.RequireAuth(http.HandlerFunc(checkLogin)))
	router.Handle("POST /changePassword", auth.RequireAuth(http.HandlerFunc(a.changePassword)))

	router.Handle("POST /enqueue", auth.RequireAuth(http.HandlerFunc(a.enqueueAddresses)))
	router.Handle("GET /ip/{address}", auth.RequireAuth(http.HandlerFunc(a.getIPDetails)))
	router.Handle("GET /responseCodes", auth.RequireAuth(http.HandlerFunc(a.listResponseCodes)))

	router.Handle("GET /global/settings", auth.IsAdmin(http.HandlerFunc(getGlobalSettings)))
	router.Handle("POST /saveSettings", auth.IsAdmin(http.HandlerFunc(a.saveSettings)))

	router.HandleFunc("GET /version", getVersion)

	if gqlHandler, err := a.getGraphQLHandler(); err == nil {
		router.Handle("/graphql", gqlHandler)
	} else {
		log.Error("GraphQL endpoint disabled", "error", err)
	}

	return router
}
