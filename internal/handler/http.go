package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/scavenger-hunt/internal/auth"
	"github.com/scavenger-hunt/internal/domain"
	"github.com/scavenger-hunt/internal/leaderboard"
	"github.com/scavenger-hunt/internal/store"
	"github.com/scavenger-hunt/internal/tracker"
	"github.com/scavenger-hunt/internal/websocket"
)

// EventSource reads the durable audit trail.
type EventSource interface {
	RecentEvents(ctx context.Context, userID string, limit int) ([]domain.RunEvent, error)
}

// Handler provides the HTTP surface driving the collection pipeline.
type Handler struct {
	tracker *tracker.Tracker
	board   *leaderboard.Service
	auth    *auth.Service
	store   store.Store
	hub     *websocket.Hub
	events  EventSource
	logger  *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	tr *tracker.Tracker,
	board *leaderboard.Service,
	authSvc *auth.Service,
	st store.Store,
	hub *websocket.Hub,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		tracker: tr,
		board:   board,
		auth:    authSvc,
		store:   st,
		hub:     hub,
		logger:  logger,
	}
}

// SetEventSource attaches the audit-trail reader.
func (h *Handler) SetEventSource(es EventSource) {
	h.events = es
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

type ctxKey int

const claimsKey ctxKey = 0

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)

	r.Get("/ws", h.HandleWebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/signup", h.Signup)
		r.Post("/auth/signin", h.Signin)
		r.Post("/auth/signout", h.Signout)

		// anonymous quick-add under players/
		r.Post("/players", h.AddPlayer)
		r.Delete("/players/{userID}", h.DeletePlayer)
		r.Get("/players/{userID}/events", h.GetPlayerEvents)

		r.Get("/leaderboard/top", h.GetTop)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)

			r.Post("/collect", h.Collect)
			r.Get("/progress", h.GetProgress)
			r.Post("/progress/load", h.LoadProgress)

			r.Post("/timer/pause", h.PauseTimer)
			r.Post("/timer/resume", h.ResumeTimer)
			r.Post("/timer/reset", h.ResetTimer)

			r.Get("/leaderboard/rank", h.GetRank)
		})

		r.Get("/ws/stats", h.GetWebSocketStats)
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requireAuth validates the bearer token and stashes its claims.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			h.writeError(w, http.StatusUnauthorized, domain.ErrNotAuthenticated)
			return
		}

		claims, err := h.auth.ValidateToken(token)
		if err != nil {
			h.writeError(w, http.StatusUnauthorized, domain.ErrNotAuthenticated)
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func claimsFrom(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey).(*auth.Claims)
	return claims
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data any) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// writeAuthError maps auth failures to their user-facing display strings.
func (h *Handler) writeAuthError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, domain.ErrUserNotFound), errors.Is(err, domain.ErrWrongPassword):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrEmailInUse):
		status = http.StatusConflict
	case !domain.IsAuthError(err):
		h.logger.Error("auth failure", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   domain.AuthDisplayMessage(err),
	})
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]any{
		"total_connections": h.hub.GetTotalConnections(),
	})
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck returns service readiness status
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "ready"})
}

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
}

// Signup registers a new account.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	user, err := h.auth.CreateUser(r.Context(), req.Email, req.Password, req.Username)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}
	h.writeSuccess(w, user)
}

type signinRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Signin opens a session and returns its bearer token.
func (h *Handler) Signin(w http.ResponseWriter, r *http.Request) {
	var req signinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	session, err := h.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}
	h.writeSuccess(w, session)
}

// Signout clears the current user.
func (h *Handler) Signout(w http.ResponseWriter, r *http.Request) {
	h.auth.SignOut()
	h.writeSuccess(w, map[string]string{"status": "signed_out"})
}

type collectRequest struct {
	ItemID   string `json:"item_id"`
	ItemName string `json:"item_name"`
}

// Collect registers an item-touched event for the signed-in player.
func (h *Handler) Collect(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	var req collectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	if req.ItemID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	result, err := h.tracker.CollectItem(r.Context(), claims.UserID, req.ItemID, req.ItemName)
	if err != nil {
		h.logger.Error("failed to collect item", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	resp := map[string]any{
		"result":   result.String(),
		"progress": h.tracker.Progress(claims.UserID),
	}
	if result == domain.CollectAlreadyCollected {
		resp["notice"] = tracker.AlreadyCollectedNotice
	}
	h.writeSuccess(w, resp)
}

// GetProgress returns the session snapshot, ticking the timer first so the
// rendered elapsed time is current.
func (h *Handler) GetProgress(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	h.tracker.Tick(claims.UserID)

	resp := map[string]any{
		"progress": h.tracker.Progress(claims.UserID),
	}
	if notice := h.tracker.Notice(claims.UserID); notice != "" {
		resp["notice"] = notice
	}
	h.writeSuccess(w, resp)
}

// LoadProgress reconciles the session with the persisted record.
func (h *Handler) LoadProgress(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	state, err := h.tracker.LoadProgress(r.Context(), claims.UserID)
	if err != nil {
		h.logger.Error("failed to load progress", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}
	h.writeSuccess(w, state)
}

// PauseTimer pauses the run timer.
func (h *Handler) PauseTimer(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	h.tracker.Timer(claims.UserID).Pause()
	h.writeSuccess(w, h.tracker.Progress(claims.UserID))
}

// ResumeTimer resumes a paused run timer.
func (h *Handler) ResumeTimer(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	h.tracker.Timer(claims.UserID).Resume()
	h.writeSuccess(w, h.tracker.Progress(claims.UserID))
}

// ResetTimer resets the session: timer to zero and submission re-armed.
func (h *Handler) ResetTimer(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	h.tracker.ResetSession(claims.UserID)
	h.writeSuccess(w, h.tracker.Progress(claims.UserID))
}

// GetTop returns the ranked top-N leaderboard.
func (h *Handler) GetTop(w http.ResponseWriter, r *http.Request) {
	n := 0
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
			return
		}
		n = parsed
	}

	entries, err := h.board.FetchTop(r.Context(), n)
	if err != nil {
		h.logger.Error("failed to fetch leaderboard", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}
	h.writeSuccess(w, entries)
}

// GetRank returns the signed-in player's leaderboard rank.
func (h *Handler) GetRank(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	rank, err := h.board.GetRank(r.Context(), claims.UserID)
	if err != nil {
		if domain.IsNotFoundError(err) {
			h.writeError(w, http.StatusNotFound, domain.ErrNotFound)
			return
		}
		h.logger.Error("failed to get rank", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}
	h.writeSuccess(w, map[string]int{"rank": rank})
}

type addPlayerRequest struct {
	PlayerName string `json:"player_name"`
}

// AddPlayer creates an anonymous player document under players/ with a
// pushed key.
func (h *Handler) AddPlayer(w http.ResponseWriter, r *http.Request) {
	var req addPlayerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PlayerName == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	key, err := h.store.Push(r.Context(), store.PlayersPath)
	if err != nil {
		h.logger.Error("failed to push player key", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	record := domain.NewPlayerRecord(key, req.PlayerName, "")
	if err := h.store.Set(r.Context(), store.PlayersPath+"/"+key, record); err != nil {
		h.logger.Error("failed to create player", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}
	h.writeSuccess(w, map[string]string{"key": key, "player_name": req.PlayerName})
}

// GetPlayerEvents returns a player's recent audit events.
func (h *Handler) GetPlayerEvents(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		h.writeError(w, http.StatusNotFound, domain.ErrNotFound)
		return
	}
	userID := chi.URLParam(r, "userID")

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
			return
		}
		limit = parsed
	}

	events, err := h.events.RecentEvents(r.Context(), userID, limit)
	if err != nil {
		h.logger.Error("failed to read events", "user_id", userID, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}
	h.writeSuccess(w, events)
}

// DeletePlayer administratively removes a player and their entries.
func (h *Handler) DeletePlayer(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	if err := h.auth.DeleteUser(r.Context(), userID); err != nil {
		h.logger.Error("failed to delete player", "user_id", userID, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}
	h.writeSuccess(w, map[string]string{"status": "deleted"})
}
