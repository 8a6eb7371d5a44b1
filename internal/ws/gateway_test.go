package ws

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
	"gomokuhub/internal/game"
	"gomokuhub/internal/invite"
	"gomokuhub/internal/models"
	"gomokuhub/internal/presence"
	"gomokuhub/internal/room"
	"gomokuhub/internal/store"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	AckID int64           `json:"ackId"`
}

type testServer struct {
	srv *httptest.Server
	st  *store.Memory
	reg *presence.Registry
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := slog.New(slog.DiscardHandler)
	st := store.NewMemory()
	hub := broadcast.NewHub(log)
	reg := presence.NewRegistry(log)
	rooms := room.NewManager(log, st, hub, reg, time.Hour, 2*time.Hour)
	broker := invite.NewBroker(log, reg, hub, rooms)
	gateway := NewGateway(log, st, hub, reg, broker, rooms, 10*time.Millisecond)

	mux := http.NewServeMux()
	gateway.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	ctx := context.Background()
	for _, u := range []models.UserProfile{
		{ID: "u1", Email: "alice@x.com", Name: "Alice"},
		{ID: "u2", Email: "bob@x.com", Name: "Bob"},
	} {
		_, err := st.CreateUser(ctx, u)
		require.NoError(t, err)
	}

	return &testServer{srv: srv, st: st, reg: reg}
}

func (ts *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, data any, ackID int64) {
	t.Helper()
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		require.NoError(t, err)
		raw = b
	}
	require.NoError(t, conn.WriteJSON(Envelope{Event: event, Data: raw, AckID: ackID}))
}

// readUntil skips unrelated pushes until the wanted event arrives.
func readUntil(t *testing.T, conn *websocket.Conn, event string) frame {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	require.NoError(t, conn.SetReadDeadline(deadline))
	for time.Now().Before(deadline) {
		var f frame
		require.NoError(t, conn.ReadJSON(&f), "waiting for %q", event)
		if f.Event == event {
			return f
		}
	}
	t.Fatalf("never received %q", event)
	return frame{}
}

func readAck(t *testing.T, conn *websocket.Conn, ackID int64) ack {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	require.NoError(t, conn.SetReadDeadline(deadline))
	for {
		var f frame
		require.NoError(t, conn.ReadJSON(&f), "waiting for ack %d", ackID)
		if f.Event == "ack" && f.AckID == ackID {
			var a ack
			require.NoError(t, json.Unmarshal(f.Data, &a))
			return a
		}
	}
}

// authenticate sends the authenticate event and waits until a presence
// broadcast actually lists the identifier. Connections receive presence
// broadcasts before they authenticate, so waiting for just any
// EventOnlineUsers frame could return on another user's stale broadcast.
func authenticate(t *testing.T, conn *websocket.Conn, identifier string) {
	t.Helper()
	send(t, conn, "authenticate", identifier, 0)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var f frame
		require.NoError(t, conn.ReadJSON(&f), "waiting for presence listing %q", identifier)
		if f.Event != broadcast.EventOnlineUsers {
			continue
		}
		var users []models.OnlineUser
		require.NoError(t, json.Unmarshal(f.Data, &users))
		for _, u := range users {
			if string(u.Key()) == identifier {
				return
			}
		}
	}
}

func TestInvitationToGameFlow(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.dial(t)
	bob := ts.dial(t)

	authenticate(t, alice, "alice@x.com")
	authenticate(t, bob, "bob@x.com")

	// Alice invites Bob.
	send(t, alice, "send-game-invitation", map[string]string{"toIdentity": "bob@x.com"}, 1)
	a := readAck(t, alice, 1)
	require.True(t, a.Success, "invite failed: %s", a.Error)

	invFrame := readUntil(t, bob, broadcast.EventGameInvitation)
	var inv models.Invitation
	require.NoError(t, json.Unmarshal(invFrame.Data, &inv))
	assert.Equal(t, "Alice", inv.From.Name)

	// Bob accepts; both sides learn the room id.
	send(t, bob, "accept-invitation", map[string]string{"invitationId": inv.ID}, 2)
	a = readAck(t, bob, 2)
	require.True(t, a.Success, "accept failed: %s", a.Error)
	roomID := a.RoomID
	require.NotEmpty(t, roomID)

	readUntil(t, alice, broadcast.EventInvitationAccepted)

	status, _ := ts.reg.Status("alice@x.com")
	assert.Equal(t, models.StatusPlaying, status)

	// Both join the room and get the snapshot.
	send(t, alice, "join-room", map[string]string{"roomId": roomID, "identity": "alice@x.com"}, 0)
	readUntil(t, alice, broadcast.EventRoomUpdated)
	send(t, bob, "join-room", map[string]string{"roomId": roomID, "identity": "bob@x.com"}, 0)
	readUntil(t, bob, broadcast.EventRoomUpdated)

	// Black (Alice) moves; everyone in the room sees the new state.
	send(t, alice, "make-move", map[string]any{"roomId": roomID, "row": 7, "col": 7, "identity": "alice@x.com"}, 0)
	f := readUntil(t, bob, broadcast.EventGameUpdated)
	var payload struct {
		Room models.Room `json:"room"`
	}
	require.NoError(t, json.Unmarshal(f.Data, &payload))
	assert.Equal(t, models.Black, payload.Room.Game.Board[7][7])
	assert.Equal(t, models.White, payload.Room.Game.CurrentPlayer)
	readUntil(t, alice, broadcast.EventGameUpdated)

	// Moving out of turn only errors the offender.
	send(t, alice, "make-move", map[string]any{"roomId": roomID, "row": 8, "col": 8, "identity": "alice@x.com"}, 0)
	errFrame := readUntil(t, alice, broadcast.EventError)
	var msg string
	require.NoError(t, json.Unmarshal(errFrame.Data, &msg))
	assert.Equal(t, room.ErrNotYourTurn.Error(), msg)
}

func TestDisconnectCancelsPendingInvitations(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.dial(t)
	bob := ts.dial(t)

	authenticate(t, alice, "alice@x.com")
	authenticate(t, bob, "bob@x.com")

	send(t, alice, "send-game-invitation", map[string]string{"toIdentity": "bob@x.com"}, 1)
	require.True(t, readAck(t, alice, 1).Success)
	readUntil(t, bob, broadcast.EventGameInvitation)

	alice.Close()

	f := readUntil(t, bob, broadcast.EventInvitationCancelled)
	var payload map[string]string
	require.NoError(t, json.Unmarshal(f.Data, &payload))
	assert.NotEmpty(t, payload["invitationId"])

	// The presence broadcast that follows no longer lists Alice.
	f = readUntil(t, bob, broadcast.EventOnlineUsers)
	var users []models.OnlineUser
	require.NoError(t, json.Unmarshal(f.Data, &users))
	require.Len(t, users, 1)
	assert.Equal(t, "bob@x.com", users[0].Email)
}

func TestAuthenticateUnknownUserIsIgnored(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dial(t)

	send(t, conn, "authenticate", "ghost@x.com", 0)

	// The connection stays usable and presence stays empty.
	send(t, conn, "request-lobby-update", nil, 0)
	readUntil(t, conn, broadcast.EventLobbyUpdated)
	assert.Empty(t, ts.reg.Snapshot())
}

func TestUnknownEventAnswersWithError(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dial(t)

	send(t, conn, "self-destruct", nil, 0)
	f := readUntil(t, conn, broadcast.EventError)
	var msg string
	require.NoError(t, json.Unmarshal(f.Data, &msg))
	assert.Contains(t, msg, "unknown event")
}

func TestReconnectRestoresPlayingStatus(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	aliceProfile := models.UserProfile{ID: "u1", Email: "alice@x.com", Name: "Alice"}
	bobProfile := models.UserProfile{ID: "u2", Email: "bob@x.com", Name: "Bob"}
	_, err := ts.st.CreateRoom(ctx, &models.Room{
		Name:        "Alice vs Bob",
		BlackPlayer: &aliceProfile,
		WhitePlayer: &bobProfile,
		Status:      models.RoomPlaying,
		Game:        game.NewState(),
	})
	require.NoError(t, err)

	alice := ts.dial(t)
	authenticate(t, alice, "alice@x.com")
	status, _ := ts.reg.Status("alice@x.com")
	require.Equal(t, models.StatusPlaying, status)

	// Drop the connection entirely, then come back on a fresh one. The
	// live game must put Alice back into playing, not available.
	alice.Close()
	require.Eventually(t, func() bool {
		_, ok := ts.reg.Status("alice@x.com")
		return !ok
	}, 3*time.Second, 10*time.Millisecond)

	again := ts.dial(t)
	authenticate(t, again, "alice@x.com")
	status, ok := ts.reg.Status("alice@x.com")
	require.True(t, ok)
	assert.Equal(t, models.StatusPlaying, status)
}

func TestDuplicateInvitationAck(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.dial(t)
	bob := ts.dial(t)

	authenticate(t, alice, "alice@x.com")
	authenticate(t, bob, "bob@x.com")

	send(t, alice, "send-game-invitation", map[string]string{"toIdentity": "bob@x.com"}, 1)
	require.True(t, readAck(t, alice, 1).Success)

	send(t, alice, "send-game-invitation", map[string]string{"toIdentity": "bob@x.com"}, 2)
	a := readAck(t, alice, 2)
	assert.False(t, a.Success)
	assert.Equal(t, invite.ErrDuplicatePending.Error(), a.Error)
}
