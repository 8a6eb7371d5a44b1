package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gomokuhub/internal/broadcast"
	"gomokuhub/internal/models"
	"gomokuhub/internal/presence"
	"gomokuhub/internal/room"
	"gomokuhub/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMux(t *testing.T) (*http.ServeMux, *store.Memory) {
	t.Helper()
	log := slog.New(slog.DiscardHandler)
	st := store.NewMemory()
	hub := broadcast.NewHub(log)
	reg := presence.NewRegistry(log)
	rooms := room.NewManager(log, st, hub, reg, time.Hour, 2*time.Hour)
	h := NewHandler(log, st, rooms)

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return mux, st
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)
	return w
}

var asAlice = map[string]string{"X-User-Email": "alice@x.com", "X-User-Name": "Alice"}
var asBob = map[string]string{"X-User-Email": "bob@x.com", "X-User-Name": "Bob"}

func TestCreateRoomRequiresAuth(t *testing.T) {
	mux, _ := newTestMux(t)
	w := doJSON(t, mux, "POST", "/api/rooms", `{"name":"table"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateRoomRequiresName(t *testing.T) {
	mux, _ := newTestMux(t)
	w := doJSON(t, mux, "POST", "/api/rooms", `{"name":"  "}`, asAlice)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateAndListRooms(t *testing.T) {
	mux, _ := newTestMux(t)

	w := doJSON(t, mux, "POST", "/api/rooms", `{"name":"open table"}`, asAlice)
	require.Equal(t, http.StatusCreated, w.Code)

	var created models.Room
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "open table", created.Name)
	assert.Equal(t, models.RoomWaiting, created.Status)
	require.NotNil(t, created.BlackPlayer)
	assert.Equal(t, "Alice", created.BlackPlayer.Name)
	assert.Len(t, created.Game.Board, models.BoardSize)

	w = doJSON(t, mux, "GET", "/api/rooms", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var rooms []models.Room
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rooms))
	require.Len(t, rooms, 1)
	assert.Equal(t, created.ID, rooms[0].ID)
}

func TestGetRoomNotFound(t *testing.T) {
	mux, _ := newTestMux(t)
	w := doJSON(t, mux, "GET", "/api/rooms/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestJoinRoomFlow(t *testing.T) {
	mux, _ := newTestMux(t)

	w := doJSON(t, mux, "POST", "/api/rooms", `{"name":"table"}`, asAlice)
	require.Equal(t, http.StatusCreated, w.Code)
	var created models.Room
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = doJSON(t, mux, "POST", "/api/rooms/"+created.ID+"/join", "", asBob)
	require.Equal(t, http.StatusOK, w.Code)
	var joined models.Room
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &joined))
	assert.Equal(t, models.RoomPlaying, joined.Status)
	require.NotNil(t, joined.WhitePlayer)
	assert.Equal(t, "Bob", joined.WhitePlayer.Name)

	// Rejoining as a seated player is a no-op.
	w = doJSON(t, mux, "POST", "/api/rooms/"+created.ID+"/join", "", asBob)
	assert.Equal(t, http.StatusOK, w.Code)

	// A third party is turned away.
	carol := map[string]string{"X-User-Email": "carol@x.com", "X-User-Name": "Carol"}
	w = doJSON(t, mux, "POST", "/api/rooms/"+created.ID+"/join", "", carol)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestJoinUnknownRoom(t *testing.T) {
	mux, _ := newTestMux(t)
	w := doJSON(t, mux, "POST", "/api/rooms/missing/join", "", asAlice)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateRoomReusesExistingUser(t *testing.T) {
	mux, st := newTestMux(t)

	doJSON(t, mux, "POST", "/api/rooms", `{"name":"one"}`, asAlice)
	doJSON(t, mux, "POST", "/api/rooms", `{"name":"two"}`, asAlice)

	profile, err := st.FindUserByKey(context.Background(), "alice@x.com")
	require.NoError(t, err)
	assert.Equal(t, "Alice", profile.Name)
}

func TestCORSMiddleware(t *testing.T) {
	mux, _ := newTestMux(t)
	wrapped := CORSMiddleware(mux)

	r := httptest.NewRequest(http.MethodOptions, "/api/rooms", nil)
	w := httptest.NewRecorder()
	wrapped.ServeHTTP(w, r)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
