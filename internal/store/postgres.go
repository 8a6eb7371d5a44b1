package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"gomokuhub/internal/game"
	"gomokuhub/internal/models"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Config holds the database connection settings.
type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
}

// LoadConfig reads the database settings from the environment.
func LoadConfig() *Config {
	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// DSN builds the postgres connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName)
}

// userRecord is the users table row.
type userRecord struct {
	ID    string `gorm:"primaryKey;size:64"`
	Email string `gorm:"uniqueIndex;size:255"`
	Name  string `gorm:"size:255"`
	Image string `gorm:"size:512"`
}

func (userRecord) TableName() string { return "users" }

// roomRecord is the game_rooms table row. Board and move history are
// stored as JSON blobs and parsed back on read.
type roomRecord struct {
	ID            string `gorm:"primaryKey;size:64"`
	Name          string `gorm:"size:255"`
	BlackPlayerID *string
	WhitePlayerID *string
	BlackPlayer   *userRecord `gorm:"foreignKey:BlackPlayerID"`
	WhitePlayer   *userRecord `gorm:"foreignKey:WhitePlayerID"`
	Board         string
	MoveHistory   string
	CurrentPlayer string `gorm:"size:8"`
	Winner        string `gorm:"size:8"`
	IsGameOver    bool
	MoveCount     int
	Status        string `gorm:"size:16;index"`
	CreatedAt     time.Time
	UpdatedAt     time.Time `gorm:"index"`
}

func (roomRecord) TableName() string { return "game_rooms" }

// Postgres is the gorm-backed Store implementation.
type Postgres struct {
	db *gorm.DB
}

var _ Store = (*Postgres)(nil)

// OpenPostgres connects to the database and migrates the schema.
func OpenPostgres(cfg *Config) (*Postgres, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.AutoMigrate(&userRecord{}, &roomRecord{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (s *Postgres) FindUserByKey(ctx context.Context, identifier string) (*models.UserProfile, error) {
	var rec userRecord
	err := s.db.WithContext(ctx).Where("email = ?", identifier).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = s.db.WithContext(ctx).Where("id = ?", identifier).First(&rec).Error
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	profile := rec.toProfile()
	return &profile, nil
}

func (s *Postgres) CreateUser(ctx context.Context, profile models.UserProfile) (*models.UserProfile, error) {
	rec := userRecord{ID: profile.ID, Email: profile.Email, Name: profile.Name, Image: profile.Image}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return nil, err
	}
	created := rec.toProfile()
	return &created, nil
}

func (s *Postgres) FindRoom(ctx context.Context, id string) (*models.Room, error) {
	var rec roomRecord
	err := s.db.WithContext(ctx).
		Preload("BlackPlayer").Preload("WhitePlayer").
		Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec.toRoom()
}

func (s *Postgres) ListRooms(ctx context.Context) ([]*models.Room, error) {
	var recs []roomRecord
	err := s.db.WithContext(ctx).
		Preload("BlackPlayer").Preload("WhitePlayer").
		Order("created_at DESC").Find(&recs).Error
	if err != nil {
		return nil, err
	}
	rooms := make([]*models.Room, 0, len(recs))
	for i := range recs {
		room, err := recs[i].toRoom()
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, nil
}

func (s *Postgres) CreateRoom(ctx context.Context, room *models.Room) (*models.Room, error) {
	if room.ID == "" {
		room.ID = uuid.NewString()
	}
	rec, err := recordFromRoom(room)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, err
	}
	return s.FindRoom(ctx, rec.ID)
}

func (s *Postgres) UpdateRoom(ctx context.Context, room *models.Room) (*models.Room, error) {
	rec, err := recordFromRoom(room)
	if err != nil {
		return nil, err
	}
	res := s.db.WithContext(ctx).Model(&roomRecord{}).Where("id = ?", rec.ID).Updates(map[string]any{
		"name":            rec.Name,
		"black_player_id": rec.BlackPlayerID,
		"white_player_id": rec.WhitePlayerID,
		"board":           rec.Board,
		"move_history":    rec.MoveHistory,
		"current_player":  rec.CurrentPlayer,
		"winner":          rec.Winner,
		"is_game_over":    rec.IsGameOver,
		"move_count":      rec.MoveCount,
		"status":          rec.Status,
		"updated_at":      time.Now(),
	})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.FindRoom(ctx, rec.ID)
}

func (s *Postgres) DeleteIdleRooms(ctx context.Context, waitingBefore, playingBefore time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("(status = ? AND updated_at < ?) OR (status = ? AND updated_at < ?)",
			models.RoomWaiting, waitingBefore, models.RoomPlaying, playingBefore).
		Delete(&roomRecord{})
	return res.RowsAffected, res.Error
}

func (r userRecord) toProfile() models.UserProfile {
	return models.UserProfile{ID: r.ID, Email: r.Email, Name: r.Name, Image: r.Image}
}

func (r *roomRecord) toRoom() (*models.Room, error) {
	state := game.NewState()
	if r.Board != "" {
		if err := json.Unmarshal([]byte(r.Board), &state.Board); err != nil {
			return nil, fmt.Errorf("parse board for room %s: %w", r.ID, err)
		}
	}
	if r.MoveHistory != "" {
		if err := json.Unmarshal([]byte(r.MoveHistory), &state.MoveHistory); err != nil {
			return nil, fmt.Errorf("parse move history for room %s: %w", r.ID, err)
		}
	}
	state.CurrentPlayer = models.Player(r.CurrentPlayer)
	if state.CurrentPlayer == models.Empty {
		state.CurrentPlayer = models.Black
	}
	state.Winner = models.Player(r.Winner)
	state.IsGameOver = r.IsGameOver

	room := &models.Room{
		ID:        r.ID,
		Name:      r.Name,
		Status:    models.RoomStatus(r.Status),
		Game:      state,
		MoveCount: r.MoveCount,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.BlackPlayer != nil {
		p := r.BlackPlayer.toProfile()
		room.BlackPlayer = &p
	}
	if r.WhitePlayer != nil {
		p := r.WhitePlayer.toProfile()
		room.WhitePlayer = &p
	}
	return room, nil
}

func recordFromRoom(room *models.Room) (*roomRecord, error) {
	board, err := json.Marshal(room.Game.Board)
	if err != nil {
		return nil, err
	}
	history, err := json.Marshal(room.Game.MoveHistory)
	if err != nil {
		return nil, err
	}
	rec := &roomRecord{
		ID:            room.ID,
		Name:          room.Name,
		Board:         string(board),
		MoveHistory:   string(history),
		CurrentPlayer: string(room.Game.CurrentPlayer),
		Winner:        string(room.Game.Winner),
		IsGameOver:    room.Game.IsGameOver,
		MoveCount:     len(room.Game.MoveHistory),
		Status:        string(room.Status),
	}
	if room.BlackPlayer != nil {
		rec.BlackPlayerID = &room.BlackPlayer.ID
	}
	if room.WhitePlayer != nil {
		rec.WhitePlayerID = &room.WhitePlayer.ID
	}
	return rec, nil
}
