package models

import "time"

// RoomStatus tracks the lifecycle of a game room.
type RoomStatus string

const (
	RoomWaiting  RoomStatus = "WAITING"
	RoomPlaying  RoomStatus = "PLAYING"
	RoomFinished RoomStatus = "FINISHED"
)

// Room is a game room with up to two seated players.
// BlackPlayer and WhitePlayer stay nil until the seat is filled.
type Room struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	BlackPlayer *UserProfile `json:"blackPlayer"`
	WhitePlayer *UserProfile `json:"whitePlayer"`
	Status      RoomStatus   `json:"status"`
	Game        GameState    `json:"gameState"`
	MoveCount   int          `json:"moveCount"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// SeatOf returns the color the user occupies, or Empty for non-players.
func (r *Room) SeatOf(key UserKey) Player {
	if r.BlackPlayer != nil && r.BlackPlayer.Key() == key {
		return Black
	}
	if r.WhitePlayer != nil && r.WhitePlayer.Key() == key {
		return White
	}
	return Empty
}

// SeatsFilled reports whether both player slots are occupied.
func (r *Room) SeatsFilled() bool {
	return r.BlackPlayer != nil && r.WhitePlayer != nil
}
