package store

import (
	"context"
	"sync"
	"time"

	"gomokuhub/internal/models"

	"github.com/google/uuid"
)

// Memory is an in-process Store used by tests and by deployments without a
// configured database.
type Memory struct {
	mu    sync.Mutex
	users map[string]models.UserProfile
	rooms map[string]models.Room
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		users: make(map[string]models.UserProfile),
		rooms: make(map[string]models.Room),
	}
}

func (s *Memory) FindUserByKey(ctx context.Context, identifier string) (*models.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == identifier && u.Email != "" {
			profile := u
			return &profile, nil
		}
	}
	if u, ok := s.users[identifier]; ok {
		profile := u
		return &profile, nil
	}
	return nil, ErrNotFound
}

func (s *Memory) CreateUser(ctx context.Context, profile models.UserProfile) (*models.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if profile.ID == "" {
		profile.ID = uuid.NewString()
	}
	s.users[profile.ID] = profile
	return &profile, nil
}

func (s *Memory) FindRoom(ctx context.Context, id string) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRoom(room), nil
}

func (s *Memory) ListRooms(ctx context.Context) ([]*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rooms := make([]*models.Room, 0, len(s.rooms))
	for _, room := range s.rooms {
		rooms = append(rooms, cloneRoom(room))
	}
	// Newest first, matching the postgres ordering.
	for i := 0; i < len(rooms); i++ {
		for j := i + 1; j < len(rooms); j++ {
			if rooms[j].CreatedAt.After(rooms[i].CreatedAt) {
				rooms[i], rooms[j] = rooms[j], rooms[i]
			}
		}
	}
	return rooms, nil
}

func (s *Memory) CreateRoom(ctx context.Context, room *models.Room) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if room.ID == "" {
		room.ID = uuid.NewString()
	}
	now := time.Now()
	room.CreatedAt = now
	room.UpdatedAt = now
	room.MoveCount = len(room.Game.MoveHistory)
	s.rooms[room.ID] = *cloneRoom(*room)
	return cloneRoom(s.rooms[room.ID]), nil
}

func (s *Memory) UpdateRoom(ctx context.Context, room *models.Room) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.rooms[room.ID]
	if !ok {
		return nil, ErrNotFound
	}
	updated := *cloneRoom(*room)
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = time.Now()
	updated.MoveCount = len(room.Game.MoveHistory)
	s.rooms[room.ID] = updated
	return cloneRoom(updated), nil
}

func (s *Memory) DeleteIdleRooms(ctx context.Context, waitingBefore, playingBefore time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for id, room := range s.rooms {
		if (room.Status == models.RoomWaiting && room.UpdatedAt.Before(waitingBefore)) ||
			(room.Status == models.RoomPlaying && room.UpdatedAt.Before(playingBefore)) {
			delete(s.rooms, id)
			deleted++
		}
	}
	return deleted, nil
}

func cloneRoom(room models.Room) *models.Room {
	c := room
	c.Game.Board = room.Game.Board.Clone()
	c.Game.MoveHistory = append([]models.Move(nil), room.Game.MoveHistory...)
	if room.BlackPlayer != nil {
		p := *room.BlackPlayer
		c.BlackPlayer = &p
	}
	if room.WhitePlayer != nil {
		p := *room.WhitePlayer
		c.WhitePlayer = &p
	}
	return &c
}
