// Package domain contains game entities without transport or lifecycle logic.
package domain

import (
	"errors"
	"time"
)

const (
	MaxPlayerNameLen = 36
	MaxCharacterName = 20
	MinCharacterBio  = 5
)

var (
	ErrPlayerNameEmpty   = errors.New("player name empty")
	ErrPlayerNameTooLong = errors.New("player name too long")
)

type (
	PlayerID string
	// Address is the opaque reply destination a player can be reached at.
	Address string
)

type PlayerStatus int

const (
	// PlayerActive means the player participates in the current phase and has
	// not acted yet this round.
	PlayerActive PlayerStatus = iota
	// PlayerPending joined while the room was paused and waits for resume.
	PlayerPending
	PlayerTimedOut
	PlayerActed
	PlayerCreatingChar
	PlayerCharDone
)

func (s PlayerStatus) String() string {
	switch s {
	case PlayerActive:
		return "active"
	case PlayerPending:
		return "pending"
	case PlayerTimedOut:
		return "timeout"
	case PlayerActed:
		return "acted"
	case PlayerCreatingChar:
		return "creating"
	case PlayerCharDone:
		return "char_done"
	}
	return "unknown"
}

type Player struct {
	ID   PlayerID
	Name string
	Addr Address

	CharacterName    string
	CharacterSetting string

	Status       PlayerStatus
	JoinedAt     time.Time
	LastActionAt time.Time
	Action       string
}

// NewPlayer avoids raw struct literals in adapters and keeps construction obvious.
func NewPlayer(id PlayerID, name string, addr Address) (*Player, error) {
	if len(name) == 0 {
		return nil, ErrPlayerNameEmpty
	}
	if len(name) > MaxPlayerNameLen {
		return nil, ErrPlayerNameTooLong
	}
	return &Player{
		ID:       id,
		Name:     name,
		Addr:     addr,
		Status:   PlayerActive,
		JoinedAt: time.Now(),
	}, nil
}

func (p *Player) HasCharacter() bool {
	return p.CharacterName != "" && p.CharacterSetting != ""
}

// DisplayName prefers the in-game character name once one exists.
func (p *Player) DisplayName() string {
	if p.CharacterName != "" {
		return p.CharacterName
	}
	return p.Name
}

// ResetForRound returns the player to the not-yet-acted state at round start.
func (p *Player) ResetForRound() {
	p.Status = PlayerActive
	p.Action = ""
}
