package game

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Base carries the services every template shares: the ordered roster, the
// seeded RNG and the pending event log. Templates embed it in their Match.
type Base struct {
	Roster []Player `json:"players"`
	RNG    *RNG     `json:"rng"`

	events []Event
}

// NewBase seats the given humans, adding the cpu seat when withCPU is set.
func NewBase(playerIDs []string, withCPU bool, seed uint64) Base {
	roster := make([]Player, 0, len(playerIDs)+1)
	for _, id := range playerIDs {
		roster = append(roster, Player{ID: id, Kind: KindHuman})
	}
	if withCPU {
		roster = append(roster, Player{ID: CPUPlayerID, Kind: KindCPU})
	}
	return Base{Roster: roster, RNG: NewRNG(seed)}
}

// Players returns a copy of the roster.
func (b *Base) Players() []Player {
	out := make([]Player, len(b.Roster))
	copy(out, b.Roster)
	return out
}

// PlayerIDs returns seat IDs in roster order.
func (b *Base) PlayerIDs() []string {
	ids := make([]string, len(b.Roster))
	for i, p := range b.Roster {
		ids[i] = p.ID
	}
	return ids
}

func (b *Base) HasPlayer(id string) bool {
	return b.indexOf(id) >= 0
}

func (b *Base) IsCPU(id string) bool {
	i := b.indexOf(id)
	return i >= 0 && b.Roster[i].Kind == KindCPU
}

// HasCPU reports whether any seat is engine-controlled.
func (b *Base) HasCPU() bool {
	for _, p := range b.Roster {
		if p.Kind == KindCPU {
			return true
		}
	}
	return false
}

// Opponent returns the other seat in a two-seat match.
func (b *Base) Opponent(id string) string {
	for _, p := range b.Roster {
		if p.ID != id {
			return p.ID
		}
	}
	return ""
}

// RequirePlayer returns ErrUnknownPlayer when id is not seated.
func (b *Base) RequirePlayer(id string) error {
	if !b.HasPlayer(id) {
		return fmt.Errorf("%w: %s", ErrUnknownPlayer, id)
	}
	return nil
}

func (b *Base) indexOf(id string) int {
	for i, p := range b.Roster {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// Emit appends an event to the pending log.
func (b *Base) Emit(eventType, playerID string, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	b.events = append(b.events, Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		PlayerID:  playerID,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

// Events returns the pending events without draining them.
func (b *Base) Events() []Event {
	out := make([]Event, len(b.events))
	copy(out, b.events)
	return out
}

func (b *Base) DrainEvents() []Event {
	out := b.events
	b.events = nil
	return out
}
