package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"anonedits/internal/auth"
	"anonedits/internal/domain"
)

const shutdownTimeout = 10 * time.Second

// AccountSource returns the accounts the dispatcher currently evaluates.
type AccountSource func() []*domain.Account

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
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func NewRouter(accounts AccountSource) http.Handler {
	h := &handlers{accounts: accounts}

	router := http.NewServeMux()
	router.HandleFunc("GET /health", health)
	router.HandleFunc("GET /version", getVersion)
	router.Handle("GET /metrics", promhttp.Handler())
	router.HandleFunc("POST /login", newLoginLimiter(loginAttemptsPerMinute).Middleware(login))
	router.Handle("GET /notifications", auth.RequireAuth(http.HandlerFunc(listNotifications)))
	router.Handle("GET /organizations", auth.RequireAuth(http.HandlerFunc(countOrganizations)))
	router.Handle("GET /accounts", auth.RequireAuth(http.HandlerFunc(h.listAccounts)))

	return enableCORS(router)
}

// OpenRoutes serves the admin API until ctx is cancelled, then shuts the
// server down gracefully.
func OpenRoutes(ctx context.Context, port int, accounts AccountSource) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           NewRouter(accounts),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Starting anonedits admin API on port :%d", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("api server failed: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}
	log.Debug("Admin API stopped")
	return <-errCh
}
