package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"gorm.io/driver/sqlite"

	"shrike/internal/database"
	"shrike/internal/dnsbl"
	"shrike/internal/domain"
	"shrike/internal/resolve"
)

type fakeEnqueuer struct {
	mu      sync.Mutex
	batches [][]string
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, addresses []string) []resolve.AddressReport {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, append([]string(nil), addresses...))

	reports := make([]resolve.AddressReport, len(addresses))
	for i, address := range addresses {
		reports[i] = resolve.AddressReport{Address: address}
		if _, err := dnsbl.ReverseAddr(address); err != nil {
			reports[i].Error = err.Error()
		}
	}
	return reports
}

func newTestAPI(t *testing.T) (*API, *database.Handler, *fakeEnqueuer) {
	t.Helper()
	t.Setenv("JWT_SECRET", "route-test-secret")

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_fk=1", t.Name())
	store, err := database.SetupDB(
		database.WithDialector(sqlite.Open(dsn)),
		database.WithMigrations(
			domain.User{},
			domain.IPDetails{},
			domain.ResponseCode{},
			domain.IPResponseCode{},
		),
	)
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}

	enqueuer := &fakeEnqueuer{}
	return NewAPI(store, enqueuer, nil), store, enqueuer
}

func doJSON(t *testing.T, router http.Handler, method, target, token, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func registerAccount(t *testing.T, router http.Handler, email, password string) string {
	t.Helper()

	recorder := doJSON(t, router, http.MethodPost, "/register", "",
		fmt.Sprintf(`{"email":%q,"password":%q}`, email, password))
	if recorder.Code != http.StatusCreated {
		t.Fatalf("register %s: status = %d, body %s", email, recorder.Code, recorder.Body)
	}

	var payload map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode register response: %v", err)
	}
	if payload["token"] == "" {
		t.Fatal("register returned an empty token")
	}
	return payload["token"]
}

func seedStoredAddress(t *testing.T, store *database.Handler, address string, codes ...string) {
	t.Helper()

	ctx := context.Background()
	details, err := store.GetOrCreateIPDetails(ctx, address)
	if err != nil {
		t.Fatalf("seed %s: %v", address, err)
	}

	interned := make([]domain.ResponseCode, 0, len(codes))
	for _, code := range codes {
		entry, err := store.InternResponseCode(ctx, code)
		if err != nil {
			t.Fatalf("intern %s: %v", code, err)
		}
		interned = append(interned, entry)
	}
	if err := store.ReplaceResponseCodes(ctx, &details, interned); err != nil {
		t.Fatalf("associate codes: %v", err)
	}
}

func TestRegisterLoginFlow(t *testing.T) {
	api, _, _ := newTestAPI(t)
	router := api.buildRouter()

	token := registerAccount(t, router, "admin@example.com", "password123")

	if rec := doJSON(t, router, http.MethodPost, "/register", "",
		`{"email":"admin@example.com","password":"password123"}`); rec.Code != http.StatusConflict {
		t.Fatalf("duplicate register: status = %d, want 409", rec.Code)
	}

	rec := doJSON(t, router, http.MethodPost, "/login", "",
		`{"email":"admin@example.com","password":"password123"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: status = %d, body %s", rec.Code, rec.Body)
	}
	var login map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &login); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if login["role"] != "admin" {
		t.Fatalf("first account role = %q, want admin", login["role"])
	}

	if rec := doJSON(t, router, http.MethodPost, "/login", "",
		`{"email":"admin@example.com","password":"wrong-password"}`); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad password login: status = %d, want 401", rec.Code)
	}

	if rec := doJSON(t, router, http.MethodGet, "/checkLogin", token, ""); rec.Code != http.StatusOK {
		t.Fatalf("checkLogin with token: status = %d, want 200", rec.Code)
	}
	if rec := doJSON(t, router, http.MethodGet, "/checkLogin", "", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("checkLogin without token: status = %d, want 401", rec.Code)
	}
}

func TestSecondAccountIsRegularUser(t *testing.T) {
	api, _, _ := newTestAPI(t)
	router := api.buildRouter()

	registerAccount(t, router, "admin@example.com", "password123")
	registerAccount(t, router, "user@example.com", "password123")

	rec := doJSON(t, router, http.MethodPost, "/login", "",
		`{"email":"user@example.com","password":"password123"}`)
	var login map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &login); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if login["role"] != "user" {
		t.Fatalf("second account role = %q, want user", login["role"])
	}
}

func TestRegisterValidation(t *testing.T) {
	api, _, _ := newTestAPI(t)
	router := api.buildRouter()

	if rec := doJSON(t, router, http.MethodPost, "/register", "",
		`{"email":"not-an-email","password":"password123"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid email: status = %d, want 400", rec.Code)
	}

	if rec := doJSON(t, router, http.MethodPost, "/register", "",
		`{"email":"short@example.com","password":"short"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("short password: status = %d, want 400", rec.Code)
	}
}

func TestEnqueueRoute(t *testing.T) {
	api, _, enqueuer := newTestAPI(t)
	router := api.buildRouter()
	token := registerAccount(t, router, "admin@example.com", "password123")

	rec := doJSON(t, router, http.MethodPost, "/enqueue", token,
		`{"ipAddresses":["9.9.9.9","not-an-ip"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("enqueue: status = %d, body %s", rec.Code, rec.Body)
	}

	var result struct {
		IPAddresses []string `json:"ipAddresses"`
		Errors      []struct {
			IPAddress string `json:"ipAddress"`
			Error     string `json:"error"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode enqueue response: %v", err)
	}

	if len(result.IPAddresses) != 2 || result.IPAddresses[0] != "9.9.9.9" || result.IPAddresses[1] != "not-an-ip" {
		t.Fatalf("echoed addresses = %v", result.IPAddresses)
	}
	if len(result.Errors) != 1 || result.Errors[0].IPAddress != "not-an-ip" || result.Errors[0].Error == "" {
		t.Fatalf("errors = %+v, want one entry for the malformed address", result.Errors)
	}

	if len(enqueuer.batches) != 1 {
		t.Fatalf("enqueuer saw %d batches, want 1", len(enqueuer.batches))
	}

	if rec := doJSON(t, router, http.MethodPost, "/enqueue", "", `{"ipAddresses":["9.9.9.9"]}`); rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated enqueue: status = %d, want 401", rec.Code)
	}
}

func TestGetIPDetailsRoute(t *testing.T) {
	api, store, _ := newTestAPI(t)
	router := api.buildRouter()
	token := registerAccount(t, router, "admin@example.com", "password123")
	seedStoredAddress(t, store, "9.9.9.9", "127.0.0.2")

	rec := doJSON(t, router, http.MethodGet, "/ip/9.9.9.9", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get ip details: status = %d, body %s", rec.Code, rec.Body)
	}

	var details struct {
		IPAddress     string `json:"ipAddress"`
		ResponseCodes []struct {
			ResponseCode string `json:"responseCode"`
		} `json:"responseCodes"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &details); err != nil {
		t.Fatalf("decode details response: %v", err)
	}
	if details.IPAddress != "9.9.9.9" {
		t.Fatalf("ipAddress = %q", details.IPAddress)
	}
	if len(details.ResponseCodes) != 1 || details.ResponseCodes[0].ResponseCode != "127.0.0.2" {
		t.Fatalf("responseCodes = %+v", details.ResponseCodes)
	}

	rec = doJSON(t, router, http.MethodGet, "/ip/203.0.113.9", token, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown address: status = %d, want 404", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Details for given IP address cannot be found") {
		t.Fatalf("unknown address body = %s", rec.Body)
	}
}

func TestResponseCodesRoute(t *testing.T) {
	api, store, _ := newTestAPI(t)
	router := api.buildRouter()
	token := registerAccount(t, router, "admin@example.com", "password123")
	seedStoredAddress(t, store, "9.9.9.9", "127.0.0.2")
	seedStoredAddress(t, store, "1.2.3.4", "127.0.0.2")

	rec := doJSON(t, router, http.MethodGet, "/responseCodes", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list response codes: status = %d, body %s", rec.Code, rec.Body)
	}

	var listings []struct {
		ResponseCode string `json:"responseCode"`
		IPDetails    []struct {
			IPAddress string `json:"ipAddress"`
		} `json:"ipDetails"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listings); err != nil {
		t.Fatalf("decode listing response: %v", err)
	}
	if len(listings) != 1 || listings[0].ResponseCode != "127.0.0.2" {
		t.Fatalf("listings = %+v", listings)
	}
	if len(listings[0].IPDetails) != 2 {
		t.Fatalf("reverse links = %+v, want both addresses", listings[0].IPDetails)
	}
}

func TestVersionRouteIsOpen(t *testing.T) {
	api, _, _ := newTestAPI(t)
	router := api.buildRouter()

	rec := doJSON(t, router, http.MethodGet, "/version", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("version: status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "version") {
		t.Fatalf("version body = %s", rec.Body)
	}
}

func TestSettingsRoutesRequireAdmin(t *testing.T) {
	api, _, _ := newTestAPI(t)
	router := api.buildRouter()

	registerAccount(t, router, "admin@example.com", "password123")
	userToken := registerAccount(t, router, "user@example.com", "password123")

	if rec := doJSON(t, router, http.MethodGet, "/global/settings", userToken, ""); rec.Code != http.StatusForbidden {
		t.Fatalf("settings as user: status = %d, want 403", rec.Code)
	}
	if rec := doJSON(t, router, http.MethodPost, "/saveSettings", userToken, `{}`); rec.Code != http.StatusForbidden {
		t.Fatalf("saveSettings as user: status = %d, want 403", rec.Code)
	}
	if rec := doJSON(t, router, http.MethodGet, "/global/settings", "", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("settings without token: status = %d, want 401", rec.Code)
	}
}

func TestGraphQLBasicAuth(t *testing.T) {
	api, store, _ := newTestAPI(t)
	router := api.buildRouter()

	registerAccount(t, router, "admin@example.com", "password123")
	seedStoredAddress(t, store, "9.9.9.9", "127.0.0.2")

	query := `{"query":"query { getIpDetails(ipAddress: \"9.9.9.9\") { ipAddress } }"}`

	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(query))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Basic "+
		base64.StdEncoding.EncodeToString([]byte("admin@example.com:password123")))
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	var result struct {
		Data struct {
			GetIPDetails struct {
				IPAddress string `json:"ipAddress"`
			} `json:"getIpDetails"`
		} `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode graphql response: %v", err)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("authenticated query returned errors: %+v", result.Errors)
	}
	if result.Data.GetIPDetails.IPAddress != "9.9.9.9" {
		t.Fatalf("getIpDetails = %+v", result.Data)
	}

	req = httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(query))
	req.Header.Set("Content-Type", "application/json")
	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode graphql response: %v", err)
	}
	if len(result.Errors) == 0 || result.Errors[0].Message != "Authorization header is missing" {
		t.Fatalf("unauthenticated query errors = %+v", result.Errors)
	}
}
