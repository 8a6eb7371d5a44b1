package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"gomokuhub/internal/models"
	"gomokuhub/internal/room"
	"gomokuhub/internal/store"
)

// Handler serves the REST room boundary. Authentication is terminated
// upstream; the trusted identity arrives in X-User-Email / X-User-Id
// headers.
type Handler struct {
	log   *slog.Logger
	store store.Store
	rooms *room.Manager
}

// NewHandler creates a new handler.
func NewHandler(log *slog.Logger, st store.Store, rooms *room.Manager) *Handler {
	return &Handler{log: log, store: st, rooms: rooms}
}

// RegisterRoutes sets up the routes.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/rooms", h.handleListRooms)
	mux.HandleFunc("POST /api/rooms", h.handleCreateRoom)
	mux.HandleFunc("GET /api/rooms/{roomID}", h.handleGetRoom)
	mux.HandleFunc("POST /api/rooms/{roomID}/join", h.handleJoinRoom)
}

func (h *Handler) handleListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.store.ListRooms(r.Context())
	if err != nil {
		h.log.Error("list rooms failed", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to fetch rooms")
		return
	}
	h.respondJSON(w, http.StatusOK, rooms)
}

func (h *Handler) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requestUser(w, r)
	if !ok {
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		h.respondError(w, http.StatusBadRequest, "room name is required")
		return
	}

	created, err := h.rooms.CreateRoom(r.Context(), strings.TrimSpace(req.Name), user)
	if err != nil {
		h.log.Error("create room failed", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to create room")
		return
	}
	h.respondJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	found, err := h.store.FindRoom(r.Context(), r.PathValue("roomID"))
	if errors.Is(err, store.ErrNotFound) {
		h.respondError(w, http.StatusNotFound, "room not found")
		return
	}
	if err != nil {
		h.log.Error("get room failed", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to fetch room")
		return
	}
	h.respondJSON(w, http.StatusOK, found)
}

func (h *Handler) handleJoinRoom(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requestUser(w, r)
	if !ok {
		return
	}

	joined, err := h.rooms.JoinRoom(r.Context(), r.PathValue("roomID"), user)
	switch {
	case errors.Is(err, room.ErrRoomNotFound):
		h.respondError(w, http.StatusNotFound, "room not found")
	case errors.Is(err, room.ErrRoomFull):
		h.respondError(w, http.StatusBadRequest, "room is full")
	case err != nil:
		h.log.Error("join room failed", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to join room")
	default:
		h.respondJSON(w, http.StatusOK, joined)
	}
}

// requestUser resolves the authenticated caller, creating the user record
// on first sight (the find-or-create the session layer relies on).
func (h *Handler) requestUser(w http.ResponseWriter, r *http.Request) (models.UserProfile, bool) {
	email := r.Header.Get("X-User-Email")
	id := r.Header.Get("X-User-Id")
	if email == "" && id == "" {
		h.respondError(w, http.StatusUnauthorized, "unauthorized")
		return models.UserProfile{}, false
	}

	identifier := email
	if identifier == "" {
		identifier = id
	}

	profile, err := h.store.FindUserByKey(r.Context(), identifier)
	if errors.Is(err, store.ErrNotFound) {
		profile, err = h.store.CreateUser(r.Context(), models.UserProfile{
			ID:    id,
			Email: email,
			Name:  r.Header.Get("X-User-Name"),
			Image: r.Header.Get("X-User-Image"),
		})
	}
	if err != nil {
		h.log.Error("resolve user failed", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to resolve user")
		return models.UserProfile{}, false
	}
	return *profile, true
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}

// CORSMiddleware allows cross-origin access from the frontend.
func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-User-Email, X-User-Id, X-User-Name, X-User-Image")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
