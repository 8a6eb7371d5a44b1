package invite

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"gomokuhub/internal/broadcast"
	"gomokuhub/internal/models"
	"gomokuhub/internal/presence"

	"github.com/google/uuid"
)

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrUserOffline      = errors.New("user is not online")
	ErrUserUnavailable  = errors.New("user is not available")
	ErrDuplicatePending = errors.New("invitation already sent")
	ErrNotFound         = errors.New("invitation not found")
)

// MatchStarter creates the playing room once an invitation is accepted.
// Implemented by room.Manager.
type MatchStarter interface {
	StartMatch(ctx context.Context, black, white models.UserProfile) (*models.Room, error)
}

// Broker owns the pending-invitation map and arbitrates the invitation
// lifecycle. An invitation is removed from the map before any side effect
// runs, so a concurrent accept and decline on the same id resolve to
// exactly one winner; the loser observes ErrNotFound.
type Broker struct {
	log      *slog.Logger
	presence *presence.Registry
	hub      *broadcast.Hub
	starter  MatchStarter

	mu      sync.Mutex
	pending map[string]*models.Invitation
}

// NewBroker creates an empty broker.
func NewBroker(log *slog.Logger, reg *presence.Registry, hub *broadcast.Hub, starter MatchStarter) *Broker {
	return &Broker{
		log:      log,
		presence: reg,
		hub:      hub,
		starter:  starter,
		pending:  make(map[string]*models.Invitation),
	}
}

// Send creates a pending invitation from one online user to another and
// delivers it to the recipient's connection.
func (b *Broker) Send(from, to models.UserKey) (*models.Invitation, error) {
	sender, ok := b.presence.Lookup(from)
	if !ok {
		return nil, ErrNotAuthenticated
	}
	recipient, ok := b.presence.Lookup(to)
	if !ok {
		return nil, ErrUserOffline
	}
	if recipient.Status != models.StatusAvailable {
		return nil, ErrUserUnavailable
	}

	b.mu.Lock()
	for _, inv := range b.pending {
		if inv.From.Key() == from && inv.To.Key() == to {
			b.mu.Unlock()
			return nil, ErrDuplicatePending
		}
	}
	invitation := &models.Invitation{
		ID:        uuid.NewString(),
		From:      sender.Profile,
		To:        recipient.Profile,
		CreatedAt: time.Now(),
		Status:    models.InvitationPending,
	}
	b.pending[invitation.ID] = invitation
	b.mu.Unlock()

	if err := recipient.Client.Send(broadcast.EventGameInvitation, invitation); err != nil {
		b.log.Warn("invitation delivery failed", "invitation", invitation.ID, "error", err)
	}
	b.log.Info("invitation sent", "from", string(from), "to", string(to), "invitation", invitation.ID)
	return invitation, nil
}

// Accept resolves a pending invitation: it creates a PLAYING room with the
// sender seated black and the recipient white, marks both users as
// playing, notifies both connections of the room id and refreshes the
// presence broadcast.
func (b *Broker) Accept(ctx context.Context, invitationID string) (*models.Room, error) {
	invitation, ok := b.take(invitationID)
	if !ok {
		return nil, ErrNotFound
	}
	invitation.Status = models.InvitationAccepted

	room, err := b.starter.StartMatch(ctx, invitation.From, invitation.To)
	if err != nil {
		// A store failure must not destroy the invitation: put it back
		// so the recipient can retry once the store recovers. A decline
		// that raced in during the attempt already observed NotFound, so
		// re-insertion cannot resurrect a resolved invitation.
		invitation.Status = models.InvitationPending
		b.mu.Lock()
		b.pending[invitation.ID] = invitation
		b.mu.Unlock()
		return nil, err
	}

	b.presence.SetStatus(invitation.From.Key(), models.StatusPlaying)
	b.presence.SetStatus(invitation.To.Key(), models.StatusPlaying)

	payload := map[string]string{"invitationId": invitation.ID, "roomId": room.ID}
	b.notify(invitation.From.Key(), broadcast.EventInvitationAccepted, payload)
	b.notify(invitation.To.Key(), broadcast.EventInvitationAccepted, payload)

	b.hub.ToAll(broadcast.EventOnlineUsers, b.presence.Snapshot())
	b.log.Info("invitation accepted", "invitation", invitation.ID, "room", room.ID)
	return room, nil
}

// Decline resolves a pending invitation and tells the sender.
func (b *Broker) Decline(invitationID string) error {
	invitation, ok := b.take(invitationID)
	if !ok {
		return ErrNotFound
	}
	invitation.Status = models.InvitationDeclined

	b.notify(invitation.From.Key(), broadcast.EventInvitationDeclined, map[string]string{"invitationId": invitation.ID})
	b.log.Info("invitation declined", "invitation", invitation.ID)
	return nil
}

// CancelAllFor removes every pending invitation the identity participates
// in, telling each counterpart. Called when the identity disconnects.
func (b *Broker) CancelAllFor(key models.UserKey) {
	b.mu.Lock()
	var cancelled []*models.Invitation
	for id, inv := range b.pending {
		if inv.From.Key() == key || inv.To.Key() == key {
			delete(b.pending, id)
			inv.Status = models.InvitationCanceled
			cancelled = append(cancelled, inv)
		}
	}
	b.mu.Unlock()

	for _, inv := range cancelled {
		counterpart := inv.From.Key()
		if counterpart == key {
			counterpart = inv.To.Key()
		}
		b.notify(counterpart, broadcast.EventInvitationCancelled, map[string]string{"invitationId": inv.ID})
		b.log.Info("invitation cancelled", "invitation", inv.ID, "disconnected", string(key))
	}
}

// PendingFor returns the pending invitations addressed to an identity.
func (b *Broker) PendingFor(key models.UserKey) []*models.Invitation {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*models.Invitation
	for _, inv := range b.pending {
		if inv.To.Key() == key {
			out = append(out, inv)
		}
	}
	return out
}

// take atomically removes and returns a pending invitation.
func (b *Broker) take(id string) (*models.Invitation, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	inv, ok := b.pending[id]
	if ok {
		delete(b.pending, id)
	}
	return inv, ok
}

func (b *Broker) notify(key models.UserKey, event string, payload any) {
	entry, ok := b.presence.Lookup(key)
	if !ok {
		return
	}
	if err := entry.Client.Send(event, payload); err != nil {
		b.log.Warn("notify failed", "user", string(key), "event", event, "error", err)
	}
}
