package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"

	"anonedits/internal/app/version"
	"anonedits/internal/auth"
	"anonedits/internal/database"
	"anonedits/internal/support"
)

type credentials struct {
	Password string `json:"password"`
}

type accountView struct {
	Name           string `json:"name"`
	Enabled        bool   `json:"enabled"`
	DisabledReason string `json:"disabled_reason,omitempty"`
	Throttle       bool   `json:"throttle"`
	Screenshot     bool   `json:"screenshot"`
	Organizations  int    `json:"organizations"`
	Ranges         int    `json:"ranges"`
	WhitelistPages int    `json:"whitelist_pages"`
}

type handlers struct {
	accounts AccountSource
}

func health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func getVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, version.Get())
}

func login(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if !support.CheckPasswordHash(creds.Password, support.GetEnv("ADMIN_PASSWORD_HASH", "")) {
		writeError(w, "Invalid password", http.StatusUnauthorized)
		return
	}

	token, err := auth.GenerateJWT("admin", auth.RoleAdmin)
	if err != nil {
		log.Error("Failed to generate token", "error", err)
		writeError(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func listNotifications(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	notifications, err := database.ListRecentNotifications(r.Context(), limit)
	if err != nil {
		writeDatabaseError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, notifications)
}

func countOrganizations(w http.ResponseWriter, r *http.Request) {
	counts, err := database.CountNotificationsByOrganization(r.Context())
	if err != nil {
		writeDatabaseError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (h *handlers) listAccounts(w http.ResponseWriter, r *http.Request) {
	views := []accountView{}
	if h.accounts != nil {
		for _, account := range h.accounts() {
			view := accountView{
				Name:           account.Name,
				Enabled:        account.Enabled(),
				Throttle:       account.Throttle,
				Screenshot:     account.Screenshot,
				Organizations:  account.Ranges.Len(),
				Ranges:         account.Ranges.RangeCount(),
				WhitelistPages: account.Whitelist.Len(),
			}
			if account.Disabled != nil {
				view.DisabledReason = account.Disabled.Error()
			}
			views = append(views, view)
		}
	}
	writeJSON(w, http.StatusOK, views)
}

func writeDatabaseError(w http.ResponseWriter, err error) {
	if errors.Is(err, database.ErrNotConfigured) {
		writeError(w, "Notification log is not configured", http.StatusServiceUnavailable)
		return
	}
	log.Error("Database query failed", "error", err)
	writeError(w, "Database error", http.StatusInternalServerError)
}
