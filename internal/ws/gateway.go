package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"gomokuhub/internal/broadcast"
	"gomokuhub/internal/invite"
	"gomokuhub/internal/models"
	"gomokuhub/internal/presence"
	"gomokuhub/internal/room"
	"gomokuhub/internal/store"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const opTimeout = 10 * time.Second

// Gateway is the connection boundary: it upgrades websockets, dispatches
// inbound events to the presence registry, invitation broker and room
// manager, and tears sessions down on disconnect. Each connection's
// messages are handled one at a time in arrival order.
type Gateway struct {
	log      *slog.Logger
	store    store.Store
	hub      *broadcast.Hub
	presence *presence.Registry
	broker   *invite.Broker
	rooms    *room.Manager

	// grace between a disconnect and the idle-room sweep it schedules,
	// long enough for the user to reconnect without losing their room.
	sweepGrace time.Duration
}

// NewGateway wires the gateway over the core components.
func NewGateway(log *slog.Logger, st store.Store, hub *broadcast.Hub, reg *presence.Registry, broker *invite.Broker, rooms *room.Manager, sweepGrace time.Duration) *Gateway {
	return &Gateway{
		log:        log,
		store:      st,
		hub:        hub,
		presence:   reg,
		broker:     broker,
		rooms:      rooms,
		sweepGrace: sweepGrace,
	}
}

// RegisterRoutes sets up the websocket route.
func (g *Gateway) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", g.handleWebSocket)
}

func (g *Gateway) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := newClient(g.log, conn)
	g.hub.Register(c)
	go c.writePump()
	g.log.Info("client connected", "client", c.ID())

	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			break
		}
		g.dispatch(c, env)
	}

	c.close()
	g.teardown(c)
}

// teardown clears a dropped connection: presence eviction (skipped when a
// reconnect already replaced the entry), invitation cancellation, a fresh
// presence broadcast and a delayed idle-room sweep.
func (g *Gateway) teardown(c *client) {
	g.hub.Unregister(c)

	if key, evicted := g.presence.Disconnect(c); evicted {
		g.broker.CancelAllFor(key)
		g.hub.ToAll(broadcast.EventOnlineUsers, g.presence.Snapshot())
	}
	g.log.Info("client disconnected", "client", c.ID())

	time.AfterFunc(g.sweepGrace, func() {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		if _, err := g.rooms.SweepIdle(ctx); err != nil {
			g.log.Error("idle room sweep failed", "error", err)
		}
	})
}

// dispatch routes one inbound event. A malformed or failing request only
// ever answers the originating connection.
func (g *Gateway) dispatch(c *client, env Envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	switch env.Event {
	case "authenticate":
		g.handleAuthenticate(ctx, c, env)
	case "request-online-users":
		g.hub.ToAll(broadcast.EventOnlineUsers, g.presence.Snapshot())
	case "send-game-invitation":
		g.handleSendInvitation(c, env)
	case "accept-invitation":
		g.handleAcceptInvitation(ctx, c, env)
	case "decline-invitation":
		g.handleDeclineInvitation(c, env)
	case "join-room":
		g.handleJoinRoom(ctx, c, env)
	case "make-move":
		g.handleMakeMove(ctx, c, env)
	case "leave-room":
		g.handleLeaveRoom(c, env)
	case "request-lobby-update":
		c.Send(broadcast.EventLobbyUpdated, nil)
	default:
		c.Send(broadcast.EventError, "unknown event: "+env.Event)
	}
}

func (g *Gateway) handleAuthenticate(ctx context.Context, c *client, env Envelope) {
	var identifier string
	if err := json.Unmarshal(env.Data, &identifier); err != nil || identifier == "" {
		return
	}

	profile, err := g.store.FindUserByKey(ctx, identifier)
	if errors.Is(err, store.ErrNotFound) {
		g.log.Warn("authenticate for unknown user", "identifier", identifier)
		return
	}
	if err != nil {
		g.log.Error("authenticate lookup failed", "error", err)
		return
	}
	if profile.Email == "" {
		// Platform accounts without an email still need a displayable one.
		profile.Email = profile.ID + "@wechat.local"
	}

	g.presence.Authenticate(profile.Key(), c, *profile)

	// A reconnect after the old connection was torn down comes back as
	// available even though the user may still be mid-game. Check the
	// store so an active player is not offered new invitations.
	if active, err := g.rooms.HasActiveGame(ctx, profile.Key()); err != nil {
		g.log.Error("active game lookup failed", "error", err)
	} else if active {
		g.presence.SetStatus(profile.Key(), models.StatusPlaying)
	}

	g.hub.ToAll(broadcast.EventOnlineUsers, g.presence.Snapshot())
}

func (g *Gateway) handleSendInvitation(c *client, env Envelope) {
	var req struct {
		ToIdentity string `json:"toIdentity"`
	}
	if err := json.Unmarshal(env.Data, &req); err != nil {
		c.sendAck(env.AckID, ack{Error: "invalid request"})
		return
	}

	from, ok := g.presence.FindByClient(c)
	if !ok {
		c.sendAck(env.AckID, ack{Error: invite.ErrNotAuthenticated.Error()})
		return
	}

	if _, err := g.broker.Send(from, models.UserKey(req.ToIdentity)); err != nil {
		c.sendAck(env.AckID, ack{Error: wireError(err)})
		return
	}
	c.sendAck(env.AckID, ack{Success: true})
}

func (g *Gateway) handleAcceptInvitation(ctx context.Context, c *client, env Envelope) {
	var req struct {
		InvitationID string `json:"invitationId"`
	}
	if err := json.Unmarshal(env.Data, &req); err != nil {
		c.sendAck(env.AckID, ack{Error: "invalid request"})
		return
	}

	created, err := g.broker.Accept(ctx, req.InvitationID)
	if err != nil {
		c.sendAck(env.AckID, ack{Error: wireError(err)})
		return
	}
	c.sendAck(env.AckID, ack{Success: true, RoomID: created.ID})
}

func (g *Gateway) handleDeclineInvitation(c *client, env Envelope) {
	var req struct {
		InvitationID string `json:"invitationId"`
	}
	if err := json.Unmarshal(env.Data, &req); err != nil {
		c.sendAck(env.AckID, ack{Error: "invalid request"})
		return
	}

	if err := g.broker.Decline(req.InvitationID); err != nil {
		c.sendAck(env.AckID, ack{Error: wireError(err)})
		return
	}
	c.sendAck(env.AckID, ack{Success: true})
}

func (g *Gateway) handleJoinRoom(ctx context.Context, c *client, env Envelope) {
	var req struct {
		RoomID   string `json:"roomId"`
		Identity string `json:"identity"`
	}
	if err := json.Unmarshal(env.Data, &req); err != nil || req.RoomID == "" {
		c.Send(broadcast.EventError, "invalid request")
		return
	}

	if err := g.rooms.Watch(ctx, req.RoomID, c); err != nil {
		c.Send(broadcast.EventError, wireError(err))
		return
	}
	g.log.Info("joined room", "client", c.ID(), "room", req.RoomID, "identity", req.Identity)
}

func (g *Gateway) handleMakeMove(ctx context.Context, c *client, env Envelope) {
	var req struct {
		RoomID   string `json:"roomId"`
		Row      int    `json:"row"`
		Col      int    `json:"col"`
		Identity string `json:"identity"`
	}
	if err := json.Unmarshal(env.Data, &req); err != nil {
		c.Send(broadcast.EventError, "invalid request")
		return
	}

	_, err := g.rooms.SubmitMove(ctx, req.RoomID, models.UserKey(req.Identity), req.Row, req.Col)
	if err != nil {
		c.Send(broadcast.EventError, wireError(err))
	}
}

func (g *Gateway) handleLeaveRoom(c *client, env Envelope) {
	var roomID string
	if err := json.Unmarshal(env.Data, &roomID); err != nil || roomID == "" {
		return
	}
	g.rooms.Unwatch(roomID, c)
}

// wireError maps an internal error to the message sent to clients. Store
// failures collapse to a generic message; everything in the taxonomy
// passes through as-is.
func wireError(err error) string {
	if errors.Is(err, room.ErrStore) {
		return "internal server error"
	}
	return err.Error()
}
