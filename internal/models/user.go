package models

import "time"

// UserKey identifies a user across connections. Users authenticated by
// email are keyed by email; platform accounts without one (WeChat) are
// keyed by their stored id.
type UserKey string

// UserProfile is the displayable identity of a user.
type UserProfile struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Image string `json:"image,omitempty"`
}

// Key derives the presence key for the profile.
func (p UserProfile) Key() UserKey {
	if p.Email != "" {
		return UserKey(p.Email)
	}
	return UserKey(p.ID)
}

// PresenceStatus is a user's availability in the lobby.
type PresenceStatus string

const (
	StatusAvailable PresenceStatus = "available"
	StatusPlaying   PresenceStatus = "playing"
	StatusAway      PresenceStatus = "away"
)

// OnlineUser is one entry of the broadcast presence snapshot.
type OnlineUser struct {
	UserProfile
	Status PresenceStatus `json:"status"`
}

// InvitationStatus tracks the lifecycle of a game invitation.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationDeclined InvitationStatus = "declined"
	InvitationCanceled InvitationStatus = "cancelled"
)

// Invitation is a pending game request between two online users.
type Invitation struct {
	ID        string           `json:"id"`
	From      UserProfile      `json:"fromUser"`
	To        UserProfile      `json:"toUser"`
	CreatedAt time.Time        `json:"createdAt"`
	Status    InvitationStatus `json:"status"`
}
