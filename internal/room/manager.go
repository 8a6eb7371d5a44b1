package room

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"gomokuhub/internal/broadcast"
	"gomokuhub/internal/game"
	"gomokuhub/internal/models"
	"gomokuhub/internal/presence"
	"gomokuhub/internal/store"
)

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrSeatsIncomplete = errors.New("waiting for another player to join")
	ErrNotAPlayer      = errors.New("you are not a player in this game")
	ErrNotYourTurn     = errors.New("not your turn")
	ErrGameOver        = errors.New("game is already over")
	ErrCellOccupied    = errors.New("cell already occupied")
	ErrRoomFull        = errors.New("room is full")
	ErrStore           = errors.New("store unavailable")
)

// roomPayload is the shape of room-updated and game-updated pushes.
type roomPayload struct {
	Room *models.Room `json:"room"`
}

// Manager owns authoritative per-room game state. Every mutation of a
// given room runs under that room's mutex, so two near-simultaneous move
// submissions cannot both read the pre-move board; the idle-room sweep
// takes the same locks before deleting.
type Manager struct {
	log      *slog.Logger
	store    store.Store
	hub      *broadcast.Hub
	presence *presence.Registry

	waitingIdle time.Duration
	playingIdle time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager wires a manager over the durable store, the broadcast hub
// and the presence registry. waitingIdle and playingIdle are how long a
// WAITING respectively PLAYING room may sit untouched before the sweep
// deletes it.
func NewManager(log *slog.Logger, st store.Store, hub *broadcast.Hub, reg *presence.Registry, waitingIdle, playingIdle time.Duration) *Manager {
	return &Manager{
		log:         log,
		store:       st,
		hub:         hub,
		presence:    reg,
		waitingIdle: waitingIdle,
		playingIdle: playingIdle,
		locks:       make(map[string]*sync.Mutex),
	}
}

func (m *Manager) lockFor(roomID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[roomID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[roomID] = l
	}
	return l
}

// StartMatch creates a PLAYING room for an accepted invitation, sender
// seated black and recipient white.
func (m *Manager) StartMatch(ctx context.Context, black, white models.UserProfile) (*models.Room, error) {
	room := &models.Room{
		Name:        fmt.Sprintf("%s vs %s", black.Name, white.Name),
		BlackPlayer: &black,
		WhitePlayer: &white,
		Status:      models.RoomPlaying,
		Game:        game.NewState(),
	}
	created, err := m.store.CreateRoom(ctx, room)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	m.log.Info("match started", "room", created.ID, "black", black.Name, "white", white.Name)
	return created, nil
}

// CreateRoom creates a WAITING room with the creator seated black.
func (m *Manager) CreateRoom(ctx context.Context, name string, creator models.UserProfile) (*models.Room, error) {
	room := &models.Room{
		Name:        name,
		BlackPlayer: &creator,
		Status:      models.RoomWaiting,
		Game:        game.NewState(),
	}
	created, err := m.store.CreateRoom(ctx, room)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	m.hub.ToAll(broadcast.EventLobbyUpdated, nil)
	return created, nil
}

// JoinRoom seats the user in the room's empty slot. Filling the second
// seat transitions WAITING to PLAYING. Joining a room the user already
// sits in returns the room unchanged; a full room rejects with
// ErrRoomFull.
func (m *Manager) JoinRoom(ctx context.Context, roomID string, user models.UserProfile) (*models.Room, error) {
	l := m.lockFor(roomID)
	l.Lock()
	defer l.Unlock()

	room, err := m.findRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	if room.SeatOf(user.Key()) != models.Empty {
		return room, nil
	}
	if room.SeatsFilled() {
		return nil, ErrRoomFull
	}

	if room.WhitePlayer == nil {
		room.WhitePlayer = &user
	} else {
		room.BlackPlayer = &user
	}
	if room.SeatsFilled() {
		room.Status = models.RoomPlaying
	}

	updated, err := m.store.UpdateRoom(ctx, room)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}

	m.hub.ToRoom(roomID, broadcast.EventRoomUpdated, roomPayload{Room: updated})
	m.hub.ToAll(broadcast.EventLobbyUpdated, nil)
	m.log.Info("player joined room", "room", roomID, "user", user.Name)
	return updated, nil
}

// Watch subscribes a connection to a room's broadcasts and immediately
// pushes the current snapshot to the whole room. Spectators and
// reconnecting players go through the same path.
func (m *Manager) Watch(ctx context.Context, roomID string, client broadcast.Client) error {
	room, err := m.findRoom(ctx, roomID)
	if err != nil {
		return err
	}

	m.hub.Subscribe(roomID, client)
	m.hub.ToRoom(roomID, broadcast.EventRoomUpdated, roomPayload{Room: room})
	return nil
}

// Unwatch unsubscribes a connection from a room. Game state is untouched.
func (m *Manager) Unwatch(roomID string, client broadcast.Client) {
	m.hub.Unsubscribe(roomID, client)
}

// HasActiveGame reports whether the user is seated in a room that is
// still being played. Used to restore playing presence on reconnect.
func (m *Manager) HasActiveGame(ctx context.Context, key models.UserKey) (bool, error) {
	rooms, err := m.store.ListRooms(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStore, err)
	}
	for _, room := range rooms {
		if room.Status == models.RoomPlaying && room.SeatOf(key) != models.Empty {
			return true, nil
		}
	}
	return false, nil
}

// SubmitMove validates and applies one move. Checks run in a fixed order
// and the first failure wins: room exists, both seats filled, submitter
// is seated, it is their turn, the game is still live, the cell is free.
// On success the new state is written through to the store, the room is
// broadcast to its subscribers and the lobby is nudged; a finishing move
// also flips the room to FINISHED and frees both players' presence.
func (m *Manager) SubmitMove(ctx context.Context, roomID string, key models.UserKey, row, col int) (*models.Room, error) {
	l := m.lockFor(roomID)
	l.Lock()
	defer l.Unlock()

	room, err := m.findRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	if !room.SeatsFilled() {
		return nil, ErrSeatsIncomplete
	}
	seat := room.SeatOf(key)
	if seat == models.Empty {
		return nil, ErrNotAPlayer
	}
	if seat != room.Game.CurrentPlayer {
		return nil, ErrNotYourTurn
	}
	if room.Game.IsGameOver {
		return nil, ErrGameOver
	}
	if !room.Game.Board.InBounds(row, col) || room.Game.Board[row][col] != models.Empty {
		return nil, ErrCellOccupied
	}

	room.Game = game.Apply(room.Game, row, col)
	if room.Game.IsGameOver {
		room.Status = models.RoomFinished
	}

	updated, err := m.store.UpdateRoom(ctx, room)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}

	if updated.Game.IsGameOver {
		if updated.BlackPlayer != nil {
			m.presence.SetStatus(updated.BlackPlayer.Key(), models.StatusAvailable)
		}
		if updated.WhitePlayer != nil {
			m.presence.SetStatus(updated.WhitePlayer.Key(), models.StatusAvailable)
		}
		m.hub.ToAll(broadcast.EventOnlineUsers, m.presence.Snapshot())
		m.log.Info("game finished", "room", roomID, "winner", string(updated.Game.Winner))
	}

	m.hub.ToRoom(roomID, broadcast.EventGameUpdated, roomPayload{Room: updated})
	m.hub.ToAll(broadcast.EventLobbyUpdated, nil)
	return updated, nil
}

// SweepIdle deletes WAITING rooms untouched beyond the waiting threshold
// and PLAYING rooms untouched beyond the playing one. Candidate rooms'
// locks are held across the delete so the sweep never races an in-flight
// move; a move that slips in first bumps the room's timestamp and the
// delete predicate skips it.
func (m *Manager) SweepIdle(ctx context.Context) (int64, error) {
	now := time.Now()
	waitingBefore := now.Add(-m.waitingIdle)
	playingBefore := now.Add(-m.playingIdle)

	rooms, err := m.store.ListRooms(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStore, err)
	}

	var candidates []string
	for _, r := range rooms {
		if (r.Status == models.RoomWaiting && r.UpdatedAt.Before(waitingBefore)) ||
			(r.Status == models.RoomPlaying && r.UpdatedAt.Before(playingBefore)) {
			candidates = append(candidates, r.ID)
		}
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	// Fixed lock order so a concurrent sweep cannot deadlock against us.
	sort.Strings(candidates)
	held := make([]*sync.Mutex, 0, len(candidates))
	for _, id := range candidates {
		l := m.lockFor(id)
		l.Lock()
		held = append(held, l)
	}
	defer func() {
		for _, l := range held {
			l.Unlock()
		}
	}()

	deleted, err := m.store.DeleteIdleRooms(ctx, waitingBefore, playingBefore)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStore, err)
	}
	if deleted > 0 {
		m.log.Info("cleaned up abandoned rooms", "count", deleted)
		m.hub.ToAll(broadcast.EventLobbyUpdated, nil)
		m.dropLocks(candidates)
	}
	return deleted, nil
}

// dropLocks forgets lock entries for rooms that no longer exist.
func (m *Manager) dropLocks(ids []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.locks, id)
	}
}

func (m *Manager) findRoom(ctx context.Context, roomID string) (*models.Room, error) {
	room, err := m.store.FindRoom(ctx, roomID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	return room, nil
}
