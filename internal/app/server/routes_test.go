package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"anonedits/internal/auth"
	"anonedits/internal/database"
	"anonedits/internal/domain"
	"anonedits/internal/support"
)

func testAccounts() []*domain.Account {
	return []*domain.Account{
		{Name: "congress", Template: "{name}", Throttle: true},
		{Name: "broken", Template: "{name}", Disabled: errors.New("account \"broken\": invalid range")},
	}
}

func adminToken(t *testing.T) string {
	t.Helper()
	t.Setenv("JWT_SECRET", "server-test-secret")
	token, err := auth.GenerateJWT("admin", auth.RoleAdmin)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}
	return token
}

func do(t *testing.T, handler http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := do(t, NewRouter(nil), http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != `{"status":"ok"}` {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestVersion(t *testing.T) {
	rec := do(t, NewRouter(nil), http.MethodGet, "/version", "", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"buildVersion":"dev"`) {
		t.Fatalf("version response = %d %s", rec.Code, rec.Body.String())
	}
}

func TestLogin(t *testing.T) {
	t.Setenv("JWT_SECRET", "server-test-secret")
	hash, err := support.HashPassword("hunter2")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	t.Setenv("ADMIN_PASSWORD_HASH", hash)

	router := NewRouter(nil)

	if rec := do(t, router, http.MethodPost, "/login", "", `{"password":"wrong"}`); rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password status = %d", rec.Code)
	}
	if rec := do(t, router, http.MethodPost, "/login", "", `not json`); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad body status = %d", rec.Code)
	}

	rec := do(t, router, http.MethodPost, "/login", "", `{"password":"hunter2"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", rec.Code, rec.Body.String())
	}
	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, err := auth.ValidateJWT(payload["token"]); err != nil {
		t.Fatalf("issued token invalid: %v", err)
	}
}

func TestLoginIsRateLimited(t *testing.T) {
	t.Setenv("ADMIN_PASSWORD_HASH", "")
	router := NewRouter(nil)

	for i := 0; i < loginAttemptsPerMinute; i++ {
		if rec := do(t, router, http.MethodPost, "/login", "", `{"password":"guess"}`); rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d status = %d, want 401", i+1, rec.Code)
		}
	}

	rec := do(t, router, http.MethodPost, "/login", "", `{"password":"guess"}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status after limit = %d, want 429", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	rec := do(t, NewRouter(nil), http.MethodGet, "/metrics", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Fatal("metrics output missing default collectors")
	}
}

func TestAccountsRequireAuth(t *testing.T) {
	router := NewRouter(testAccounts)

	if rec := do(t, router, http.MethodGet, "/accounts", "", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d", rec.Code)
	}

	rec := do(t, router, http.MethodGet, "/accounts", adminToken(t), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var views []accountView
	if err := json.Unmarshal(rec.Body.Bytes(), &views); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("accounts = %d, want 2", len(views))
	}
	if !views[0].Enabled || !views[0].Throttle {
		t.Fatalf("first account = %+v", views[0])
	}
	if views[1].Enabled || !strings.Contains(views[1].DisabledReason, "invalid range") {
		t.Fatalf("second account = %+v", views[1])
	}
}

func TestNotificationsWithoutDatabase(t *testing.T) {
	database.DB = nil

	rec := do(t, NewRouter(nil), http.MethodGet, "/notifications", adminToken(t), "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestNotificationsAndOrganizations(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	if _, err := database.SetupDB(database.WithExistingDB(db)); err != nil {
		t.Fatalf("SetupDB: %v", err)
	}
	t.Cleanup(func() { database.DB = nil })

	for _, org := range []string{"House", "House", "Senate"} {
		n := domain.Notification{Account: "congress", Wiki: "enwiki", Page: "P", Editor: "10.0.0.1", Organization: org, Status: "s", URL: "u", Published: true}
		if err := database.RecordNotification(context.Background(), &n); err != nil {
			t.Fatalf("RecordNotification: %v", err)
		}
	}

	token := adminToken(t)
	router := NewRouter(nil)

	rec := do(t, router, http.MethodGet, "/notifications?limit=2", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("notifications status = %d", rec.Code)
	}
	var notifications []domain.Notification
	if err := json.Unmarshal(rec.Body.Bytes(), &notifications); err != nil {
		t.Fatalf("decode notifications: %v", err)
	}
	if len(notifications) != 2 {
		t.Fatalf("notifications = %d, want 2", len(notifications))
	}

	if rec := do(t, router, http.MethodGet, "/notifications?limit=abc", token, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid limit status = %d", rec.Code)
	}

	rec = do(t, router, http.MethodGet, "/organizations", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("organizations status = %d", rec.Code)
	}
	var counts []database.OrganizationCount
	if err := json.Unmarshal(rec.Body.Bytes(), &counts); err != nil {
		t.Fatalf("decode counts: %v", err)
	}
	if len(counts) != 2 || counts[0].Organization != "House" || counts[0].Count != 2 {
		t.Fatalf("counts = %+v", counts)
	}
}
