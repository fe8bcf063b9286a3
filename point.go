package main

import "strings"

// Point is an integer cell on the grid
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// NullPoint signals "no valid position" (e.g. safe-spawn search failed)
var NullPoint = Point{X: -1, Y: -1}

// IsNull reports whether p is the null-point sentinel
func (p Point) IsNull() bool {
	return p == NullPoint
}

// Less defines a total order over points (row-major), used for stable output
func (p Point) Less(q Point) bool {
	if p.Y != q.Y {
		return p.Y < q.Y
	}
	return p.X < q.X
}

// Step returns the cell one step from p in direction d.
// Stepping with DirNone returns p unchanged.
func (p Point) Step(d Direction) Point {
	switch d {
	case DirUp:
		return Point{X: p.X, Y: p.Y - 1}
	case DirDown:
		return Point{X: p.X, Y: p.Y + 1}
	case DirLeft:
		return Point{X: p.X - 1, Y: p.Y}
	case DirRight:
		return Point{X: p.X + 1, Y: p.Y}
	}
	return p
}

// Direction is a snake's movement direction on the grid
type Direction int

const (
	DirNone Direction = iota
	DirUp
	DirDown
	DirLeft
	DirRight
)

// String returns the wire form of a direction ("up", "down", "left", "right", "none")
func (d Direction) String() string {
	switch d {
	case DirUp:
		return "up"
	case DirDown:
		return "down"
	case DirLeft:
		return "left"
	case DirRight:
		return "right"
	}
	return "none"
}

// Opposite returns the reverse of d. DirNone has no opposite and maps to itself.
func (d Direction) Opposite() Direction {
	switch d {
	case DirUp:
		return DirDown
	case DirDown:
		return DirUp
	case DirLeft:
		return DirRight
	case DirRight:
		return DirLeft
	}
	return DirNone
}

// ParseDirection parses a case-insensitive direction string.
// Returns DirNone and false for anything that is not up/down/left/right.
func ParseDirection(s string) (Direction, bool) {
	switch strings.ToLower(s) {
	case "up":
		return DirUp, true
	case "down":
		return DirDown, true
	case "left":
		return DirLeft, true
	case "right":
		return DirRight, true
	}
	return DirNone, false
}
