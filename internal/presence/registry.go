package presence

import (
	"log/slog"
	"sync"

	"gomokuhub/internal/broadcast"
	"gomokuhub/internal/models"
)

// Entry is one online user: their live connection, displayable profile
// and lobby availability.
type Entry struct {
	Client  broadcast.Client
	Profile models.UserProfile
	Status  models.PresenceStatus
}

// Registry maps user identities to their presence entries. At most one
// entry exists per identity; a reconnect replaces the previous
// connection handle rather than merging.
type Registry struct {
	log     *slog.Logger
	mu      sync.Mutex
	entries map[models.UserKey]*Entry
}

// NewRegistry creates an empty registry.
func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		log:     log,
		entries: make(map[models.UserKey]*Entry),
	}
}

// Authenticate binds a connection to an identity. A fresh identity comes
// online as available; an identity that is already playing keeps that
// status across the rebind so a mid-game reconnect does not show the user
// as free to invite.
func (r *Registry) Authenticate(key models.UserKey, client broadcast.Client, profile models.UserProfile) {
	r.mu.Lock()
	defer r.mu.Unlock()

	status := models.StatusAvailable
	if existing, ok := r.entries[key]; ok && existing.Status == models.StatusPlaying {
		status = models.StatusPlaying
	}
	r.entries[key] = &Entry{Client: client, Profile: profile, Status: status}
	r.log.Info("user online", "user", string(key), "status", string(status))
}

// SetStatus updates an identity's availability. Unknown identities are
// ignored.
func (r *Registry) SetStatus(key models.UserKey, status models.PresenceStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.entries[key]; ok {
		entry.Status = status
	}
}

// Status returns the identity's availability and whether it is online.
func (r *Registry) Status(key models.UserKey) (models.PresenceStatus, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[key]
	if !ok {
		return "", false
	}
	return entry.Status, true
}

// Lookup returns the entry for an identity, or false when offline.
func (r *Registry) Lookup(key models.UserKey) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[key]
	if !ok {
		return Entry{}, false
	}
	return *entry, true
}

// FindByClient resolves which identity owns a connection.
func (r *Registry) FindByClient(client broadcast.Client) (models.UserKey, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, entry := range r.entries {
		if entry.Client.ID() == client.ID() {
			return key, true
		}
	}
	return "", false
}

// Disconnect removes the entry owned by this connection and returns the
// evicted identity. Removal is keyed on the connection, not the identity:
// if the identity reconnected first, the stale disconnect finds no entry
// and leaves the newer connection alone.
func (r *Registry) Disconnect(client broadcast.Client) (models.UserKey, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, entry := range r.entries {
		if entry.Client.ID() == client.ID() {
			delete(r.entries, key)
			r.log.Info("user offline", "user", string(key))
			return key, true
		}
	}
	return "", false
}

// Snapshot returns the current list of online users for broadcast.
func (r *Registry) Snapshot() []models.OnlineUser {
	r.mu.Lock()
	defer r.mu.Unlock()
	users := make([]models.OnlineUser, 0, len(r.entries))
	for _, entry := range r.entries {
		users = append(users, models.OnlineUser{UserProfile: entry.Profile, Status: entry.Status})
	}
	return users
}
