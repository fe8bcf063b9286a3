package main

import "errors"

// Snake is a player's body on the grid. Blocks are kept head-first in a
// deque-shaped slice; a parallel set mirrors the blocks for O(1) membership.
// Both ends mutate every round, so the slice is prepended at the head and
// trimmed at the tail, and the set tracks every change.
type Snake struct {
	blocks           []Point // index 0 = head
	blockSet         map[Point]struct{}
	direction        Direction
	invincibleRounds int
	alive            bool
	growthPending    int
}

// MoveResult describes what a single Move changed, so the caller can update
// the global occupancy index in O(1) instead of rescanning the body.
type MoveResult struct {
	Moved       bool
	NewHead     Point
	TailRemoved bool
	RemovedTail Point
}

// NewSnake creates a live snake occupying a single cell at head.
// The snake reaches initialLength naturally: the first initialLength-1
// moves keep the tail instead of trimming it.
func NewSnake(head Point, initialLength int) (*Snake, error) {
	if initialLength < 1 {
		return nil, errors.New("snake initial length must be at least 1")
	}
	return &Snake{
		blocks:        []Point{head},
		blockSet:      map[Point]struct{}{head: {}},
		direction:     DirNone,
		alive:         true,
		growthPending: initialLength - 1,
	}, nil
}

// Head returns the snake's head cell. Only valid while the snake is alive.
func (s *Snake) Head() Point {
	return s.blocks[0]
}

// Blocks returns the body cells, head first. Callers must not mutate it.
func (s *Snake) Blocks() []Point {
	return s.blocks
}

// Length returns the current body length
func (s *Snake) Length() int {
	return len(s.blocks)
}

// Direction returns the current movement direction
func (s *Snake) Direction() Direction {
	return s.direction
}

// Alive reports whether the snake is alive
func (s *Snake) Alive() bool {
	return s.alive
}

// InvincibleRounds returns the remaining invincibility rounds
func (s *Snake) InvincibleRounds() int {
	return s.invincibleRounds
}

// SetInvincibleRounds sets the remaining invincibility rounds
func (s *Snake) SetInvincibleRounds(rounds int) {
	if rounds < 0 {
		rounds = 0
	}
	s.invincibleRounds = rounds
}

// DecrementInvincible counts one round of invincibility down, stopping at 0
func (s *Snake) DecrementInvincible() {
	if s.invincibleRounds > 0 {
		s.invincibleRounds--
	}
}

// SetDirection records d as the direction for the next move.
// Reversing into the opposite of the current direction is ignored once the
// snake has started moving (direction != DirNone).
func (s *Snake) SetDirection(d Direction) {
	if s.direction != DirNone && d == s.direction.Opposite() {
		return
	}
	s.direction = d
}

// Move advances the snake one cell in its current direction.
// Dead snakes and snakes that have not picked a direction do not move.
// While growth is pending the tail is kept, consuming one growth unit.
func (s *Snake) Move() MoveResult {
	var res MoveResult
	if !s.alive || s.direction == DirNone {
		return res
	}

	newHead := s.blocks[0].Step(s.direction)
	res.Moved = true
	res.NewHead = newHead

	if s.growthPending > 0 {
		s.growthPending--
	} else {
		tail := s.blocks[len(s.blocks)-1]
		s.blocks = s.blocks[:len(s.blocks)-1]
		delete(s.blockSet, tail)
		res.TailRemoved = true
		res.RemovedTail = tail
	}

	s.blocks = append([]Point{newHead}, s.blocks...)
	s.blockSet[newHead] = struct{}{}
	return res
}

// UndoMove reverses a committed Move. The driver uses it when a simultaneous
// head-to-head is resolved in favor of an invincible snake: that snake's step
// is rejected and its body restored to the pre-move state.
func (s *Snake) UndoMove(res MoveResult) {
	if !res.Moved || !s.alive {
		return
	}
	s.blocks = s.blocks[1:]
	// The old head cell may still be covered further down the body
	if !s.containsBlock(res.NewHead) {
		delete(s.blockSet, res.NewHead)
	}
	if res.TailRemoved {
		s.blocks = append(s.blocks, res.RemovedTail)
		s.blockSet[res.RemovedTail] = struct{}{}
	} else {
		s.growthPending++
	}
}

func (s *Snake) containsBlock(p Point) bool {
	for _, b := range s.blocks {
		if b == p {
			return true
		}
	}
	return false
}

// Grow adds one unit of pending growth; the tail is kept on the next move
func (s *Snake) Grow() {
	s.growthPending++
}

// CancelGrowth retracts one unit of pending growth, stopping at zero. The
// driver uses it when a rejected step had eaten on the way in.
func (s *Snake) CancelGrowth() {
	if s.growthPending > 0 {
		s.growthPending--
	}
}

// CollidesWithSelf reports whether p hits the snake's own body,
// excluding the current head cell
func (s *Snake) CollidesWithSelf(p Point) bool {
	if len(s.blocks) <= 1 {
		return false
	}
	if p == s.blocks[0] {
		return false
	}
	_, ok := s.blockSet[p]
	return ok
}

// CollidesWithBody reports whether p hits any body cell, head included
func (s *Snake) CollidesWithBody(p Point) bool {
	_, ok := s.blockSet[p]
	return ok
}

// Kill marks the snake dead and releases its body. Dead snakes stay dead;
// the player has to start a new session to play again.
func (s *Snake) Kill() {
	s.alive = false
	s.blocks = nil
	s.blockSet = map[Point]struct{}{}
}
