package game

import "gomokuhub/internal/models"

// directions are the four axes a winning line can lie on:
// horizontal, vertical, and the two diagonals.
var directions = [4][2]int{
	{0, 1},
	{1, 0},
	{1, 1},
	{1, -1},
}

// NewState returns the initial state: empty board, black to move.
func NewState() models.GameState {
	return models.GameState{
		Board:         models.NewBoard(),
		CurrentPlayer: models.Black,
		Winner:        models.Empty,
		MoveHistory:   []models.Move{},
	}
}

// HasWin reports whether the stone just placed at (row, col) completes a
// line of five or more for player. The cell must already hold the stone.
// Runs longer than five count as wins (overlines are not forbidden).
func HasWin(board models.Board, row, col int, player models.Player) bool {
	for _, d := range directions {
		count := 1

		r, c := row+d[0], col+d[1]
		for board.InBounds(r, c) && board[r][c] == player {
			count++
			r += d[0]
			c += d[1]
		}

		r, c = row-d[0], col-d[1]
		for board.InBounds(r, c) && board[r][c] == player {
			count++
			r -= d[0]
			c -= d[1]
		}

		if count >= 5 {
			return true
		}
	}
	return false
}

// Apply places the current player's stone at (row, col) and returns the
// resulting state. If the game is already over or the cell is occupied the
// input state is returned unchanged; callers detect the rejected move by
// validating beforehand or comparing move counts.
//
// The returned state always has CurrentPlayer toggled, even when the move
// ends the game, so on a finished state it names the side that did NOT make
// the final move rather than whose turn it is.
func Apply(state models.GameState, row, col int) models.GameState {
	if state.IsGameOver || !state.Board.InBounds(row, col) || state.Board[row][col] != models.Empty {
		return state
	}

	mover := state.CurrentPlayer
	board := state.Board.Clone()
	board[row][col] = mover

	winner := models.Empty
	if HasWin(board, row, col, mover) {
		winner = mover
	}

	history := make([]models.Move, len(state.MoveHistory), len(state.MoveHistory)+1)
	copy(history, state.MoveHistory)
	history = append(history, models.Move{Row: row, Col: col, Player: mover})

	return models.GameState{
		Board:         board,
		CurrentPlayer: mover.Opponent(),
		Winner:        winner,
		IsGameOver:    winner != models.Empty || board.Full(),
		MoveHistory:   history,
	}
}
