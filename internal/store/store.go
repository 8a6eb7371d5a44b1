package store

import (
	"context"
	"errors"
	"time"

	"gomokuhub/internal/models"
)

// ErrNotFound is returned when a looked-up user or room does not exist.
var ErrNotFound = errors.New("not found")

// Store is the durable room/user store. Implementations persist the latest
// snapshot after each mutation; authority over game state stays with the
// room manager, the store is written through.
type Store interface {
	// FindUserByKey looks a user up by email first, then by id. This is
	// the single lookup authenticate uses for both email and platform
	// identities.
	FindUserByKey(ctx context.Context, identifier string) (*models.UserProfile, error)
	CreateUser(ctx context.Context, profile models.UserProfile) (*models.UserProfile, error)

	FindRoom(ctx context.Context, id string) (*models.Room, error)
	ListRooms(ctx context.Context) ([]*models.Room, error)
	CreateRoom(ctx context.Context, room *models.Room) (*models.Room, error)
	UpdateRoom(ctx context.Context, room *models.Room) (*models.Room, error)

	// DeleteIdleRooms removes WAITING rooms last touched before
	// waitingBefore and PLAYING rooms last touched before playingBefore,
	// returning how many were deleted.
	DeleteIdleRooms(ctx context.Context, waitingBefore, playingBefore time.Time) (int64, error)
}
