package bot

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"conferencebot/internal/filter"
	"conferencebot/internal/models"
)

// initDataMaxAge bounds how old a Mini App session may be
const initDataMaxAge = 24 * time.Hour

type userIDKey struct{}

// HTTPServer serves the Mini App API
type HTTPServer struct {
	bot *Bot
}

// NewHTTPServer creates a new HTTP server for the Mini App
func NewHTTPServer(bot *Bot) *HTTPServer {
	return &HTTPServer{bot: bot}
}

// RegisterRoutes registers API routes on the provided mux
func (hs *HTTPServer) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/conferences", hs.authMiddleware(hs.handleConferences))
	mux.HandleFunc("/api/preferences", hs.authMiddleware(hs.handlePreferences))
}

// validateTelegramInitData validates the Telegram Mini App initData and returns the user ID
func (hs *HTTPServer) validateTelegramInitData(initData string) (int64, error) {
	if initData == "" {
		return 0, fmt.Errorf("missing initData")
	}

	values, err := url.ParseQuery(initData)
	if err != nil {
		return 0, fmt.Errorf("invalid initData format: %w", err)
	}

	hash := values.Get("hash")
	if hash == "" {
		return 0, fmt.Errorf("missing hash in initData")
	}
	values.Del("hash")

	if !hmac.Equal([]byte(signInitData(hs.bot.token, values)), []byte(hash)) {
		return 0, fmt.Errorf("invalid hash")
	}

	authDate, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("missing or invalid auth_date")
	}
	if hs.bot.clock().Sub(time.Unix(authDate, 0)) > initDataMaxAge {
		return 0, fmt.Errorf("initData is too old")
	}

	userStr := values.Get("user")
	if userStr == "" {
		return 0, fmt.Errorf("missing user data")
	}

	var userData struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal([]byte(userStr), &userData); err != nil {
		return 0, fmt.Errorf("invalid user data: %w", err)
	}

	if !hs.bot.isAllowed(userData.ID) {
		return 0, fmt.Errorf("user not allowed")
	}

	return userData.ID, nil
}

// signInitData computes the initData hash: HMAC-SHA256 of the sorted
// key=value lines, keyed by HMAC-SHA256("WebAppData", token)
func signInitData(token string, values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var dataCheckString strings.Builder
	for i, k := range keys {
		if i > 0 {
			dataCheckString.WriteByte('\n')
		}
		dataCheckString.WriteString(k)
		dataCheckString.WriteByte('=')
		dataCheckString.WriteString(values.Get(k))
	}

	secretKey := hmac.New(sha256.New, []byte("WebAppData"))
	secretKey.Write([]byte(token))

	h := hmac.New(sha256.New, secretKey.Sum(nil))
	h.Write([]byte(dataCheckString.String()))
	return hex.EncodeToString(h.Sum(nil))
}

// authMiddleware resolves the calling user from signed Mini App initData.
// Preferences are per user, so there is no unauthenticated path in any bot mode.
func (hs *HTTPServer) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "tma ") {
			hs.bot.logger.Warn("Missing or invalid authorization header",
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr),
			)
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		userID, err := hs.validateTelegramInitData(strings.TrimPrefix(authHeader, "tma "))
		if err != nil {
			hs.bot.logger.Warn("Failed to validate initData",
				zap.Error(err),
				zap.String("remote_addr", r.RemoteAddr),
			)
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), userIDKey{}, userID)))
	}
}

func requestUserID(r *http.Request) int64 {
	id, _ := r.Context().Value(userIDKey{}).(int64)
	return id
}

// handleConferences returns conferences matching the caller's filters.
// ?upcoming=true limits them to the next three months.
func (hs *HTTPServer) handleConferences(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	prefs, err := hs.bot.db.GetPreferences(r.Context(), requestUserID(r))
	if err != nil {
		hs.bot.logger.Error("Failed to load preferences", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to load preferences")
		return
	}

	all := hs.bot.catalog.List()
	var conferences []models.Conference
	if r.URL.Query().Get("upcoming") == "true" {
		conferences = filter.Upcoming(prefs, all, hs.bot.clock(), filter.UpcomingWindow)
	} else {
		conferences = filter.Filter(prefs, all)
	}
	if conferences == nil {
		conferences = []models.Conference{}
	}

	writeJSON(w, http.StatusOK, conferences)
}

// preferencesBody is the API view of a preference record
type preferencesBody struct {
	UserID     int64             `json:"user_id"`
	Countries  *models.Selection `json:"countries,omitempty"`
	Topics     *models.Selection `json:"topics,omitempty"`
	Subscribed *bool             `json:"subscribed,omitempty"`
}

func toBody(prefs models.UserPreferences) preferencesBody {
	return preferencesBody{
		UserID:     prefs.UserID,
		Countries:  &prefs.Countries,
		Topics:     &prefs.Topics,
		Subscribed: &prefs.Subscribed,
	}
}

// handlePreferences returns (GET) or partially updates (PUT) the caller's record
func (hs *HTTPServer) handlePreferences(w http.ResponseWriter, r *http.Request) {
	userID := requestUserID(r)
	defer hs.bot.lockUser(userID)()

	prefs, err := hs.bot.db.GetPreferences(r.Context(), userID)
	if err != nil {
		hs.bot.logger.Error("Failed to load preferences", zap.Error(err), zap.Int64("user_id", userID))
		writeError(w, http.StatusInternalServerError, "Failed to load preferences")
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, toBody(prefs))

	case http.MethodPut:
		var req preferencesBody
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			hs.bot.logger.Warn("Failed to decode request body", zap.Error(err))
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if req.Countries != nil {
			prefs.Countries = *req.Countries
		}
		if req.Topics != nil {
			prefs.Topics = *req.Topics
		}
		if req.Subscribed != nil {
			prefs.Subscribed = *req.Subscribed
		}

		if err := hs.bot.db.SavePreferences(r.Context(), prefs); err != nil {
			hs.bot.logger.Error("Failed to save preferences", zap.Error(err), zap.Int64("user_id", userID))
			writeError(w, http.StatusInternalServerError, "Failed to save preferences")
			return
		}

		hs.bot.logger.Info("Preferences updated via Mini App",
			zap.Int64("user_id", userID),
			zap.Stringer("countries", prefs.Countries),
			zap.Stringer("topics", prefs.Topics),
			zap.Bool("subscribed", prefs.Subscribed),
		)
		writeJSON(w, http.StatusOK, toBody(prefs))

	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
