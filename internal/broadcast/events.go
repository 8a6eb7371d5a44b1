package broadcast

// Server-to-client push event names.
const (
	EventOnlineUsers         = "online-users-updated"
	EventGameInvitation      = "game-invitation"
	EventInvitationAccepted  = "invitation-accepted"
	EventInvitationDeclined  = "invitation-declined"
	EventInvitationCancelled = "invitation-cancelled"
	EventRoomUpdated         = "room-updated"
	EventGameUpdated         = "game-updated"
	EventLobbyUpdated        = "lobby-updated"
	EventError               = "error"
)
