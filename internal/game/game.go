package game

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// GameInfo describes a game template for the lobby.
type GameInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	MinPlayers  int    `json:"minPlayers"`
	MaxPlayers  int    `json:"maxPlayers"`
	SupportsCPU bool   `json:"supportsCpu"` // a lone human is paired with a cpu opponent
}

// MatchConfig holds settings for creating a new match.
type MatchConfig struct {
	PlayerIDs []string
	Seed      uint64
	Options   json.RawMessage // template-specific, every key optional
}

// Action represents a move a player can make.
type Action struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewAction builds an action, marshaling payload when it is non-nil. The
// payload must be JSON-marshalable; NewAction panics otherwise. Decode
// untrusted input into an Action directly instead.
func NewAction(actionType string, payload any) Action {
	a := Action{Type: actionType}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			panic(fmt.Sprintf("game: payload for %s: %v", actionType, err))
		}
		a.Payload = data
	}
	return a
}

// ActionResult is the outcome of a single ProcessAction call.
type ActionResult struct {
	Success  bool            `json:"success"`
	NewState json.RawMessage `json:"newState,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// Succeed snapshots state into a successful result.
func Succeed(state any) ActionResult {
	data, err := json.Marshal(state)
	if err != nil {
		return Reject(fmt.Errorf("snapshot state: %w", err))
	}
	return ActionResult{Success: true, NewState: data}
}

// Reject wraps err into a failed result.
func Reject(err error) ActionResult {
	return ActionResult{Success: false, Error: err.Error()}
}

// Event is one entry of the outward event log.
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	PlayerID  string         `json:"playerId,omitempty"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}

// PlayerKind tags whether a seat is driven by a person or by the engine.
type PlayerKind string

const (
	KindHuman PlayerKind = "human"
	KindCPU   PlayerKind = "cpu"
)

// CPUPlayerID is the seat synthesized for single-human matches.
const CPUPlayerID = "cpu"

// Player is one seat in a match.
type Player struct {
	ID   string     `json:"id"`
	Kind PlayerKind `json:"kind"`
}

// PlayerResult holds the outcome for one player.
type PlayerResult struct {
	PlayerID string `json:"playerId"`
	Rank     int    `json:"rank"` // 1 = first place
	Score    int    `json:"score"`
}

var (
	ErrGameOver       = errors.New("game is over")
	ErrNotYourTurn    = errors.New("not your turn")
	ErrUnknownPlayer  = errors.New("unknown player")
	ErrUnknownAction  = errors.New("unknown action type")
	ErrInvalidPayload = errors.New("invalid payload")
	ErrWrongPhase     = errors.New("action not allowed in this phase")
)

// UnknownAction returns the error for an unsupported action type.
func UnknownAction(actionType string) error {
	return fmt.Errorf("%w: %s", ErrUnknownAction, actionType)
}

// Game describes a game template (sumo, rhythm, etc.)
type Game interface {
	Info() GameInfo
	NewMatch(config MatchConfig) (Match, error)
	// Restore rebuilds a match from a blob produced by Match.MarshalJSON.
	Restore(data []byte) (Match, error)
}

// Match is one in-progress game. Callers must serialize calls against a
// single match; a Match does no locking of its own.
type Match interface {
	Players() []Player
	ProcessAction(playerID string, action Action) ActionResult
	IsOver() bool
	// Winner reports the winning player, or false for a draw or no winner yet.
	Winner() (string, bool)
	Scores() map[string]int
	// Snapshot returns a deep copy of the current state.
	Snapshot() json.RawMessage
	// DrainEvents returns the events emitted since the last drain.
	DrainEvents() []Event
	MarshalJSON() ([]byte, error)
	UnmarshalJSON(data []byte) error
}

// CPUDriver is implemented by matches with engine-controlled seats. The
// session host calls NextCPUAction after every human action until it
// reports false.
type CPUDriver interface {
	NextCPUAction() (playerID string, action Action, ok bool)
}
