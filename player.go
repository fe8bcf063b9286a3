package main

import "time"

// Player is one game session: a stable account UID bound to a per-session ID
// and token, with the snake it controls. Account keys outlive sessions; the
// session ID and token are minted on every join and die with the session.
type Player struct {
	UID   string
	ID    string // session ID, format p_{uid}_{rand}
	Name  string
	Color string
	Key   string // long-lived account key
	Token string // per-join session token

	Snake   *Snake
	inGame  bool
	endedAt int64 // ms since epoch when the session left the game
}

// NewPlayer creates a joined player without a snake; the driver spawns the
// snake under the world lock once a safe cell is found.
func NewPlayer(uid, id, name, color, key, token string) *Player {
	return &Player{
		UID:    uid,
		ID:     id,
		Name:   name,
		Color:  color,
		Key:    key,
		Token:  token,
		inGame: true,
	}
}

// InGame reports whether the session is still playing
func (p *Player) InGame() bool {
	return p.inGame
}

// SetInGame toggles the in-game flag. Leaving the game kills the snake and
// stamps the end time so the session directory can sweep the entry later.
func (p *Player) SetInGame(inGame bool) {
	if !inGame && p.inGame {
		p.endedAt = time.Now().UnixMilli()
	}
	p.inGame = inGame
	if !inGame && p.Snake != nil {
		p.Snake.Kill()
	}
}

// EndedAtMs returns when the session left the game, 0 while still playing
func (p *Player) EndedAtMs() int64 {
	return p.endedAt
}

// AliveInGame reports whether the session is playing with a live snake
func (p *Player) AliveInGame() bool {
	return p.inGame && p.Snake != nil && p.Snake.Alive()
}

// PublicView serializes the player for clients: no key, no token,
// full body blocks included.
func (p *Player) PublicView() PlayerView {
	v := PlayerView{
		ID:    p.ID,
		Name:  p.Name,
		Color: p.Color,
	}
	if p.Snake != nil && p.Snake.Alive() {
		blocks := p.Snake.Blocks()
		v.Head = blocks[0]
		v.Blocks = append([]Point(nil), blocks...)
		v.Length = p.Snake.Length()
		v.InvincibleRounds = p.Snake.InvincibleRounds()
	} else {
		v.Blocks = []Point{}
	}
	return v
}

// DeltaView serializes the bandwidth-minimal per-round form: head only, no body
func (p *Player) DeltaView() PlayerDeltaView {
	v := PlayerDeltaView{ID: p.ID}
	if p.Snake != nil && p.Snake.Alive() {
		v.Head = p.Snake.Head()
		v.Direction = p.Snake.Direction().String()
		v.Length = p.Snake.Length()
		v.InvincibleRounds = p.Snake.InvincibleRounds()
	}
	return v
}
