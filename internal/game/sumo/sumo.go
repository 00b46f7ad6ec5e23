// Package sumo implements a two-wrestler ring game on a one-dimensional
// line. Bouts are won by forcing the opponent past the ring edge.
package sumo

import (
	"encoding/json"
	"errors"
	"fmt"

	"moltblox/internal/game"
)

type Sumo struct{}

func (Sumo) Info() game.GameInfo {
	return game.GameInfo{
		Name:        "sumo",
		Description: "Push, throw and charge your opponent out of the ring.",
		MinPlayers:  2,
		MaxPlayers:  2,
		SupportsCPU: true,
	}
}

// Costs are stamina prices per move.
type Costs struct {
	Push     int `json:"push"`
	Throw    int `json:"throw"`
	Charge   int `json:"charge"`
	Sidestep int `json:"sidestep"`
}

type Config struct {
	RingSize     int            `json:"ringSize"`
	MaxStamina   int            `json:"maxStamina"`
	MaxBalance   int            `json:"maxBalance"`
	BoutsToWin   int            `json:"boutsToWin"`
	MaxBouts     int            `json:"maxBouts"`
	MaxTurns     int            `json:"maxTurns"`
	StaminaRegen int            `json:"staminaRegen"`
	Costs        Costs          `json:"costs"`
	Speeds       map[string]int `json:"speeds,omitempty"`
}

func (c *Config) applyDefaults() {
	game.Positive(&c.RingSize, 10)
	game.Positive(&c.MaxStamina, 100)
	game.Positive(&c.MaxBalance, 100)
	game.Positive(&c.BoutsToWin, 1)
	game.Positive(&c.MaxBouts, 2*c.BoutsToWin+1)
	game.Positive(&c.MaxTurns, 60)
	game.Positive(&c.StaminaRegen, 5)
	game.Positive(&c.Costs.Push, 10)
	game.Positive(&c.Costs.Throw, 20)
	game.Positive(&c.Costs.Charge, 15)
	game.Positive(&c.Costs.Sidestep, 5)
	c.RingSize = max(c.RingSize, 2)
	c.MaxBalance = max(c.MaxBalance, 1)
}

type Phase string

const (
	PhaseFighting  Phase = "fighting"
	PhaseBoutOver  Phase = "bout_over"
	PhaseMatchOver Phase = "match_over"
)

type Wrestler struct {
	Position      int  `json:"position"`
	Facing        int  `json:"facing"`
	Stamina       int  `json:"stamina"`
	Balance       int  `json:"balance"`
	PendingCharge bool `json:"pendingCharge"`
	BoutsWon      int  `json:"boutsWon"`
}

type State struct {
	Wrestlers  map[string]*Wrestler `json:"wrestlers"`
	Turn       game.TurnOrder       `json:"turn"`
	Phase      Phase                `json:"phase"`
	TurnCount  int                  `json:"turnCount"`
	Bout       int                  `json:"bout"`
	BoutWinner string               `json:"boutWinner,omitempty"`
	MatchOver  bool                 `json:"matchOver"`
	Winner     string               `json:"winner,omitempty"`
}

type Match struct {
	game.Base
	Config Config `json:"config"`
	State  State  `json:"state"`
}

var (
	ErrNotAdjacent     = errors.New("opponent is not adjacent")
	ErrBlocked         = errors.New("cannot move onto or past the opponent")
	ErrNoStamina       = errors.New("not enough stamina")
	ErrAlreadyCharging = errors.New("charge already pending")
)

func (s Sumo) NewMatch(config game.MatchConfig) (game.Match, error) {
	withCPU, err := game.CheckPlayers(s.Info(), config.PlayerIDs)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := game.DecodeOptions(config.Options, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	m := &Match{Base: game.NewBase(config.PlayerIDs, withCPU, config.Seed), Config: cfg}
	m.State.Wrestlers = make(map[string]*Wrestler, 2)
	m.State.Bout = 1
	m.resetBout()
	return m, nil
}

func (Sumo) Restore(data []byte) (game.Match, error) {
	m := &Match{}
	if err := m.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return m, nil
}

// resetBout returns both wrestlers to their marks. Seat 0 starts at -1
// facing +1 and seat 1 at +1 facing -1.
func (m *Match) resetBout() {
	ids := m.PlayerIDs()
	for i, id := range ids {
		w, ok := m.State.Wrestlers[id]
		if !ok {
			w = &Wrestler{}
			m.State.Wrestlers[id] = w
		}
		facing := 1
		if i == 1 {
			facing = -1
		}
		w.Position = -facing
		w.Facing = facing
		w.Stamina = m.Config.MaxStamina
		w.Balance = m.Config.MaxBalance
		w.PendingCharge = false
	}

	order := ids
	if m.Config.Speeds[ids[1]] > m.Config.Speeds[ids[0]] {
		order = []string{ids[1], ids[0]}
	}
	m.State.Turn = game.NewTurnOrder(order)
	m.State.Phase = PhaseFighting
	m.State.TurnCount = 0
	m.State.BoutWinner = ""
}

type stepPayload struct {
	Direction string `json:"direction" validate:"oneof=forward back"`
}

func (m *Match) ProcessAction(playerID string, action game.Action) game.ActionResult {
	if err := m.apply(playerID, action); err != nil {
		return game.Reject(err)
	}
	return game.Succeed(m.State)
}

func (m *Match) apply(playerID string, action game.Action) error {
	if err := m.RequirePlayer(playerID); err != nil {
		return err
	}
	if m.State.MatchOver {
		return game.ErrGameOver
	}
	if action.Type == "next_round" {
		if m.State.Phase != PhaseBoutOver {
			return fmt.Errorf("%w: bout still in progress", game.ErrWrongPhase)
		}
		m.State.Bout++
		m.resetBout()
		m.Emit("bout_start", "", map[string]any{"bout": m.State.Bout})
		return nil
	}
	if m.State.Phase != PhaseFighting {
		return fmt.Errorf("%w: bout is over, send next_round", game.ErrWrongPhase)
	}
	if err := m.State.Turn.Require(playerID); err != nil {
		return err
	}

	me := m.State.Wrestlers[playerID]
	oppID := m.Opponent(playerID)
	opp := m.State.Wrestlers[oppID]
	adjacent := game.Abs(me.Position-opp.Position) == 1

	switch action.Type {
	case "step":
		var p stepPayload
		if err := game.DecodePayload(action, &p); err != nil {
			return err
		}
		delta := me.Facing
		if p.Direction == "back" {
			delta = -delta
		}
		to := me.Position + delta
		if blocked(me.Position, to, opp.Position) {
			return ErrBlocked
		}
		me.Position = to
		m.Emit("step", playerID, map[string]any{"position": to})
		if m.outOfRing(me) {
			m.ringOut(playerID)
		}
	case "push":
		if !adjacent {
			return ErrNotAdjacent
		}
		if err := m.pay(me, m.Config.Costs.Push); err != nil {
			return err
		}
		distance := 1 + (m.Config.MaxBalance-opp.Balance)/40
		if me.PendingCharge {
			distance += 2
			me.PendingCharge = false
		}
		opp.Position += me.Facing * distance
		opp.Balance = game.Clamp(opp.Balance-10, 0, m.Config.MaxBalance)
		m.Emit("push", playerID, map[string]any{"target": oppID, "distance": distance, "position": opp.Position})
		if m.outOfRing(opp) {
			m.ringOut(oppID)
		}
	case "throw":
		if !adjacent {
			return ErrNotAdjacent
		}
		if err := m.pay(me, m.Config.Costs.Throw); err != nil {
			return err
		}
		maxBal := float64(m.Config.MaxBalance)
		chance := 0.3 + (maxBal-float64(opp.Balance))/(2*maxBal)
		if m.RNG.Chance(chance) {
			opp.Position += me.Facing * 3
			opp.Balance = game.Clamp(opp.Balance-20, 0, m.Config.MaxBalance)
			m.Emit("throw", playerID, map[string]any{"target": oppID, "success": true, "position": opp.Position})
			if m.outOfRing(opp) {
				m.ringOut(oppID)
			}
		} else {
			me.Balance = game.Clamp(me.Balance-15, 0, m.Config.MaxBalance)
			m.Emit("throw", playerID, map[string]any{"target": oppID, "success": false})
		}
	case "charge":
		if me.PendingCharge {
			return ErrAlreadyCharging
		}
		if err := m.pay(me, m.Config.Costs.Charge); err != nil {
			return err
		}
		me.PendingCharge = true
		m.Emit("charge", playerID, nil)
	case "sidestep":
		if err := m.pay(me, m.Config.Costs.Sidestep); err != nil {
			return err
		}
		data := map[string]any{"evaded": opp.PendingCharge}
		if opp.PendingCharge {
			opp.PendingCharge = false
			opp.Balance = game.Clamp(opp.Balance-25, 0, m.Config.MaxBalance)
		}
		m.Emit("sidestep", playerID, data)
	case "brace":
		me.Stamina = game.Clamp(me.Stamina+20, 0, m.Config.MaxStamina)
		me.Balance = game.Clamp(me.Balance+10, 0, m.Config.MaxBalance)
		m.Emit("brace", playerID, nil)
	default:
		return game.UnknownAction(action.Type)
	}

	m.endTurn(playerID)
	return nil
}

// pay deducts a stamina cost, failing without change when short.
func (m *Match) pay(w *Wrestler, cost int) error {
	if w.Stamina < cost {
		return fmt.Errorf("%w: need %d, have %d", ErrNoStamina, cost, w.Stamina)
	}
	w.Stamina -= cost
	return nil
}

// blocked reports whether moving from -> to lands on or crosses opp.
func blocked(from, to, opp int) bool {
	if to == opp {
		return true
	}
	return (from < opp) != (to < opp)
}

func (m *Match) outOfRing(w *Wrestler) bool {
	return game.Abs(w.Position) >= m.Config.RingSize
}

func (m *Match) ringOut(loserID string) {
	winnerID := m.Opponent(loserID)
	m.Emit("ring_out", loserID, map[string]any{
		"position": m.State.Wrestlers[loserID].Position,
		"winner":   winnerID,
	})
	m.finishBout(winnerID)
}

// finishBout awards the bout (empty winnerID is a draw) and decides
// whether the match continues.
func (m *Match) finishBout(winnerID string) {
	m.State.BoutWinner = winnerID
	if winnerID != "" {
		m.State.Wrestlers[winnerID].BoutsWon++
	}
	m.Emit("bout_over", winnerID, map[string]any{"bout": m.State.Bout, "winner": winnerID})

	if winnerID != "" && m.State.Wrestlers[winnerID].BoutsWon >= m.Config.BoutsToWin {
		m.endMatch(winnerID)
		return
	}
	if m.State.Bout >= m.Config.MaxBouts {
		bouts := make(map[string]int, 2)
		for id, w := range m.State.Wrestlers {
			bouts[id] = w.BoutsWon
		}
		leader, _ := game.TopScorer(bouts)
		m.endMatch(leader)
		return
	}
	m.State.Phase = PhaseBoutOver
}

func (m *Match) endMatch(winnerID string) {
	m.State.Phase = PhaseMatchOver
	m.State.MatchOver = true
	m.State.Winner = winnerID
	m.Emit("match_over", winnerID, map[string]any{"winner": winnerID, "scores": m.Scores()})
}

func (m *Match) endTurn(playerID string) {
	if m.State.Phase != PhaseFighting {
		return
	}
	me := m.State.Wrestlers[playerID]
	me.Stamina = game.Clamp(me.Stamina+m.Config.StaminaRegen, 0, m.Config.MaxStamina)
	m.State.TurnCount++
	if m.State.TurnCount >= m.Config.MaxTurns {
		m.timeUp()
		return
	}
	m.State.Turn.Advance()
}

// timeUp awards the bout to the wrestler nearer the centre.
func (m *Match) timeUp() {
	ids := m.PlayerIDs()
	a, b := m.State.Wrestlers[ids[0]], m.State.Wrestlers[ids[1]]
	m.Emit("time_up", "", map[string]any{"turns": m.State.TurnCount})
	switch da, db := game.Abs(a.Position), game.Abs(b.Position); {
	case da < db:
		m.finishBout(ids[0])
	case db < da:
		m.finishBout(ids[1])
	default:
		m.finishBout("")
	}
}

// NextCPUAction pushes when adjacent and affordable, otherwise closes
// distance, otherwise braces.
func (m *Match) NextCPUAction() (string, game.Action, bool) {
	if !m.HasCPU() || m.State.Phase != PhaseFighting || !m.State.Turn.Is(game.CPUPlayerID) {
		return "", game.Action{}, false
	}
	me := m.State.Wrestlers[game.CPUPlayerID]
	opp := m.State.Wrestlers[m.Opponent(game.CPUPlayerID)]
	if game.Abs(me.Position-opp.Position) == 1 && me.Stamina >= m.Config.Costs.Push {
		return game.CPUPlayerID, game.Action{Type: "push"}, true
	}
	if !blocked(me.Position, me.Position+me.Facing, opp.Position) {
		return game.CPUPlayerID, game.NewAction("step", stepPayload{Direction: "forward"}), true
	}
	return game.CPUPlayerID, game.Action{Type: "brace"}, true
}

func (m *Match) IsOver() bool {
	return m.State.MatchOver
}

func (m *Match) Winner() (string, bool) {
	if !m.State.MatchOver || m.State.Winner == "" {
		return "", false
	}
	return m.State.Winner, true
}

func (m *Match) Scores() map[string]int {
	scores := make(map[string]int, len(m.State.Wrestlers))
	for id, w := range m.State.Wrestlers {
		scores[id] = w.BoutsWon*100 + max(0, m.Config.RingSize-game.Abs(w.Position))
	}
	return scores
}

func (m *Match) Snapshot() json.RawMessage {
	data, _ := json.Marshal(m.State)
	return data
}

func (m *Match) MarshalJSON() ([]byte, error) {
	type alias Match
	return json.Marshal((*alias)(m))
}

func (m *Match) UnmarshalJSON(data []byte) error {
	type alias Match
	return json.Unmarshal(data, (*alias)(m))
}
