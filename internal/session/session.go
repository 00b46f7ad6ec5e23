package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"moltblox/internal/game"
)

// Status represents the session lifecycle.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusPlaying  Status = "playing"
	StatusFinished Status = "finished"
)

var (
	ErrNotFound       = errors.New("session not found")
	ErrNotAccepting   = errors.New("session is not accepting players")
	ErrFull           = errors.New("session is full")
	ErrAlreadyJoined  = errors.New("player already in session")
	ErrNotHost        = errors.New("only the host can start")
	ErrNotStarted     = errors.New("game not started")
	ErrAlreadyStarted = errors.New("session is not in waiting state")
)

// Player represents a seat and its live connection, if any.
type Player struct {
	ID   string
	Send chan []byte // outbound messages, nil while disconnected
}

// Session is one game session with its players and match.
type Session struct {
	mu        sync.RWMutex
	Code      string
	GameType  string
	Status    Status
	HostID    string
	Players   map[string]*Player
	order     []string
	Seed      uint64
	Options   json.RawMessage
	Match     game.Match
	Version   int64 // bumped on every state change
	CreatedAt time.Time
	game      game.Game
}

// NewSession creates a session in the waiting state.
func NewSession(code, gameType string, g game.Game, seed uint64, options json.RawMessage) *Session {
	return &Session{
		Code:      code,
		GameType:  gameType,
		Status:    StatusWaiting,
		Players:   make(map[string]*Player),
		Seed:      seed,
		Options:   options,
		CreatedAt: time.Now(),
		game:      g,
	}
}

// AddPlayer seats a player. The first player becomes the host.
func (s *Session) AddPlayer(playerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Status != StatusWaiting {
		return ErrNotAccepting
	}
	if playerID == game.CPUPlayerID {
		return fmt.Errorf("player id %q is reserved", playerID)
	}
	if _, exists := s.Players[playerID]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyJoined, playerID)
	}
	if len(s.order) >= s.game.Info().MaxPlayers {
		return ErrFull
	}
	s.Players[playerID] = &Player{ID: playerID}
	s.order = append(s.order, playerID)
	if s.HostID == "" {
		s.HostID = playerID
	}
	s.Version++
	return nil
}

// RemovePlayer drops a seat. Only waiting sessions release seats; the host
// passes to the next player in join order.
func (s *Session) RemovePlayer(playerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.Players[playerID]; !ok || s.Status != StatusWaiting {
		return false
	}
	delete(s.Players, playerID)
	s.order = slices.DeleteFunc(s.order, func(id string) bool { return id == playerID })
	if s.HostID == playerID {
		s.HostID = ""
		if len(s.order) > 0 {
			s.HostID = s.order[0]
		}
	}
	s.Version++
	return true
}

// ConnectPlayer attaches a send channel for a seated player.
func (s *Session) ConnectPlayer(playerID string, send chan []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.Players[playerID]
	if !ok {
		return false
	}
	p.Send = send
	return true
}

// DisconnectPlayer detaches send if it is still the player's channel. The
// seat is kept so the player can reconnect.
func (s *Session) DisconnectPlayer(playerID string, send chan []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.Players[playerID]; ok && p.Send == send {
		p.Send = nil
	}
}

// PlayerIDs returns the seated players in join order.
func (s *Session) PlayerIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.order)
}

// Connected reports how many players have a live connection.
func (s *Session) Connected() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, p := range s.Players {
		if p.Send != nil {
			n++
		}
	}
	return n
}

// startLocked builds the match. Caller must hold the write lock.
func (s *Session) startLocked() error {
	if s.Status != StatusWaiting {
		return ErrAlreadyStarted
	}
	match, err := s.game.NewMatch(game.MatchConfig{
		PlayerIDs: slices.Clone(s.order),
		Seed:      s.Seed,
		Options:   s.Options,
	})
	if err != nil {
		return fmt.Errorf("new match: %w", err)
	}
	s.Match = match
	s.Status = StatusPlaying
	s.Version++
	return nil
}

// Broadcast sends a message to all connected players.
func (s *Session) Broadcast(msg []byte) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.Players {
		if p.Send == nil {
			continue
		}
		select {
		case p.Send <- msg:
		default:
			// drop message if buffer full
		}
	}
}

// GetPlayer returns a seated player, or nil if not found.
func (s *Session) GetPlayer(playerID string) *Player {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Players[playerID]
}

// Info returns session info for the API.
type Info struct {
	Code     string   `json:"code"`
	GameType string   `json:"gameType"`
	Status   Status   `json:"status"`
	Players  []string `json:"players"`
	HostID   string   `json:"hostId"`
	Version  int64    `json:"version"`
}

func (s *Session) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.infoLocked()
}

func (s *Session) infoLocked() Info {
	return Info{
		Code:     s.Code,
		GameType: s.GameType,
		Status:   s.Status,
		Players:  slices.Clone(s.order),
		HostID:   s.HostID,
		Version:  s.Version,
	}
}

// View is the spectator-facing picture of a session at one version.
type View struct {
	Session Info                `json:"sessionInfo"`
	State   json.RawMessage     `json:"state,omitempty"`
	Scores  map[string]int      `json:"scores,omitempty"`
	Winner  string              `json:"winner,omitempty"`
	Over    bool                `json:"over"`
	Results []game.PlayerResult `json:"results,omitempty"`
}

func (s *Session) viewLocked() View {
	v := View{Session: s.infoLocked()}
	if s.Match == nil {
		return v
	}
	v.State = s.Match.Snapshot()
	v.Scores = s.Match.Scores()
	v.Over = s.Match.IsOver()
	if v.Over {
		v.Winner, _ = s.Match.Winner()
		v.Results = game.Results(s.Match)
	}
	return v
}

// View returns the current view of the session.
func (s *Session) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.viewLocked()
}
