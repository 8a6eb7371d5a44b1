package models

// BoardSize is the side length of the square game board.
const BoardSize = 15

// Player represents a stone color. The empty string marks an empty cell.
type Player string

const (
	Black Player = "black"
	White Player = "white"
	Empty Player = ""
)

// Opponent returns the other color.
func (p Player) Opponent() Player {
	if p == Black {
		return White
	}
	return Black
}

// Board represents the 15x15 game board.
type Board [][]Player

// NewBoard creates an empty board.
func NewBoard() Board {
	b := make(Board, BoardSize)
	for i := range b {
		b[i] = make([]Player, BoardSize)
	}
	return b
}

// Clone returns a deep copy of the board.
func (b Board) Clone() Board {
	c := make(Board, len(b))
	for i, row := range b {
		c[i] = make([]Player, len(row))
		copy(c[i], row)
	}
	return c
}

// InBounds reports whether (row, col) is on the board.
func (b Board) InBounds(row, col int) bool {
	return row >= 0 && row < len(b) && col >= 0 && col < len(b[0])
}

// Full reports whether no empty cell remains.
func (b Board) Full() bool {
	for _, row := range b {
		for _, cell := range row {
			if cell == Empty {
				return false
			}
		}
	}
	return true
}

// Move records a single stone placement.
type Move struct {
	Row    int    `json:"row"`
	Col    int    `json:"col"`
	Player Player `json:"player"`
}

// GameState is the authoritative state of one game.
type GameState struct {
	Board         Board  `json:"board"`
	CurrentPlayer Player `json:"currentPlayer"`
	Winner        Player `json:"winner"`
	IsGameOver    bool   `json:"isGameOver"`
	MoveHistory   []Move `json:"moveHistory"`
}
