package game

import "fmt"

// TurnOrder is a round-robin cursor over seat IDs.
type TurnOrder struct {
	Order []string `json:"order"`
	Index int      `json:"index"`
}

func NewTurnOrder(ids []string) TurnOrder {
	order := make([]string, len(ids))
	copy(order, ids)
	return TurnOrder{Order: order}
}

// Current returns the seat whose turn it is.
func (t *TurnOrder) Current() string {
	if len(t.Order) == 0 {
		return ""
	}
	return t.Order[t.Index]
}

func (t *TurnOrder) Is(id string) bool {
	return t.Current() == id
}

// Require returns ErrNotYourTurn unless it is id's turn.
func (t *TurnOrder) Require(id string) error {
	if !t.Is(id) {
		return fmt.Errorf("%w: waiting for %s", ErrNotYourTurn, t.Current())
	}
	return nil
}

// Advance moves to the next seat and reports whether the order wrapped
// back to the first seat.
func (t *TurnOrder) Advance() bool {
	if len(t.Order) == 0 {
		return false
	}
	t.Index = (t.Index + 1) % len(t.Order)
	return t.Index == 0
}

// AdvanceSkipping advances past seats for which skip returns true. It
// reports whether the order wrapped at least once, and stops after one
// full lap when every seat is skipped.
func (t *TurnOrder) AdvanceSkipping(skip func(id string) bool) bool {
	wrapped := false
	for range t.Order {
		if t.Advance() {
			wrapped = true
		}
		if !skip(t.Current()) {
			break
		}
	}
	return wrapped
}

// Reset points the cursor at id, leaving it unchanged if id is absent.
func (t *TurnOrder) Reset(id string) {
	for i, o := range t.Order {
		if o == id {
			t.Index = i
			return
		}
	}
}
