// Package fighter implements a round-based one-on-one fighting game
// driven by the shared counter table.
package fighter

import (
	"encoding/json"
	"errors"
	"fmt"

	"moltblox/internal/game"
	"moltblox/internal/game/combat"
)

type Fighter struct{}

func (Fighter) Info() game.GameInfo {
	return game.GameInfo{
		Name:        "fighter",
		Description: "Read your opponent: light beats grab, grab beats block, block beats heavy, heavy beats light.",
		MinPlayers:  2,
		MaxPlayers:  2,
		SupportsCPU: true,
	}
}

// Special is the meter-gated move outside the counter cycle.
const Special = "special"

type MoveStats struct {
	Damage int `json:"damage"`
	Cost   int `json:"cost"`
}

type Moves struct {
	Light MoveStats `json:"light"`
	Heavy MoveStats `json:"heavy"`
	Grab  MoveStats `json:"grab"`
}

type SpecialStats struct {
	Damage int `json:"damage"`
	Meter  int `json:"meter"`
}

type Config struct {
	MaxHP             int          `json:"maxHp"`
	MaxStamina        int          `json:"maxStamina"`
	MaxMeter          int          `json:"maxMeter"`
	RoundsToWin       int          `json:"roundsToWin"`
	MaxRounds         int          `json:"maxRounds"`
	TurnsPerRound     int          `json:"turnsPerRound"`
	StaminaRegen      int          `json:"staminaRegen"`
	BlockRegen        int          `json:"blockRegen"`
	CounterMultiplier float64      `json:"counterMultiplier"`
	BlockReduction    float64      `json:"blockReduction"`
	MeterOnHit        int          `json:"meterOnHit"`
	MeterWhenHit      int          `json:"meterWhenHit"`
	Moves             Moves        `json:"moves"`
	Special           SpecialStats `json:"special"`
}

func (c *Config) applyDefaults() {
	game.Positive(&c.MaxHP, 100)
	game.Positive(&c.MaxStamina, 100)
	game.Positive(&c.MaxMeter, 100)
	game.Positive(&c.RoundsToWin, 2)
	game.Positive(&c.MaxRounds, 2*c.RoundsToWin+1)
	game.Positive(&c.TurnsPerRound, 30)
	game.Positive(&c.StaminaRegen, 5)
	game.Positive(&c.BlockRegen, 10)
	game.Positive(&c.CounterMultiplier, 1.5)
	game.Positive(&c.BlockReduction, 0.75)
	game.Positive(&c.MeterOnHit, 10)
	game.Positive(&c.MeterWhenHit, 5)
	game.Default(&c.Moves.Light, MoveStats{Damage: 8, Cost: 5})
	game.Default(&c.Moves.Heavy, MoveStats{Damage: 18, Cost: 15})
	game.Default(&c.Moves.Grab, MoveStats{Damage: 12, Cost: 10})
	for _, s := range []*MoveStats{&c.Moves.Light, &c.Moves.Heavy, &c.Moves.Grab} {
		s.Damage, s.Cost = max(s.Damage, 0), max(s.Cost, 0)
	}
	game.Positive(&c.Special.Damage, 30)
	game.Positive(&c.Special.Meter, 100)
	c.BlockReduction = game.ClampF(c.BlockReduction, 0, 1)
	c.Special.Meter = min(c.Special.Meter, c.MaxMeter)
}

func (c Config) stats(move combat.Move) MoveStats {
	switch move {
	case combat.Light:
		return c.Moves.Light
	case combat.Heavy:
		return c.Moves.Heavy
	case combat.Grab:
		return c.Moves.Grab
	}
	return MoveStats{}
}

type Phase string

const (
	PhaseFighting  Phase = "fighting"
	PhaseRoundOver Phase = "round_over"
	PhaseMatchOver Phase = "match_over"
)

type Player struct {
	HP          int    `json:"hp"`
	Stamina     int    `json:"stamina"`
	Meter       int    `json:"meter"`
	LastMove    string `json:"lastMove,omitempty"`
	RoundsWon   int    `json:"roundsWon"`
	DamageDealt int    `json:"damageDealt"`
}

type State struct {
	Players     map[string]*Player `json:"players"`
	Turn        game.TurnOrder     `json:"turn"`
	Phase       Phase              `json:"phase"`
	Round       int                `json:"round"`
	TurnCount   int                `json:"turnCount"`
	RoundWinner string             `json:"roundWinner,omitempty"`
	Winner      string             `json:"winner,omitempty"`
}

type Match struct {
	game.Base
	Config Config `json:"config"`
	State  State  `json:"state"`
}

var (
	ErrNoStamina = errors.New("not enough stamina")
	ErrNoMeter   = errors.New("special meter not full")
)

func (f Fighter) NewMatch(config game.MatchConfig) (game.Match, error) {
	withCPU, err := game.CheckPlayers(f.Info(), config.PlayerIDs)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := game.DecodeOptions(config.Options, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	m := &Match{Base: game.NewBase(config.PlayerIDs, withCPU, config.Seed), Config: cfg}
	m.State = State{Players: make(map[string]*Player, 2), Round: 1}
	for _, id := range m.PlayerIDs() {
		m.State.Players[id] = &Player{}
	}
	m.resetRound()
	return m, nil
}

func (Fighter) Restore(data []byte) (game.Match, error) {
	m := &Match{}
	if err := m.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return m, nil
}

// resetRound restores HP and stamina. Meter carries over between rounds.
func (m *Match) resetRound() {
	for _, p := range m.State.Players {
		p.HP = m.Config.MaxHP
		p.Stamina = m.Config.MaxStamina
		p.LastMove = ""
	}
	m.State.Turn = game.NewTurnOrder(m.PlayerIDs())
	m.State.Phase = PhaseFighting
	m.State.TurnCount = 0
	m.State.RoundWinner = ""
}

type attackPayload struct {
	Move string `json:"move" validate:"oneof=light heavy grab block special"`
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
	if m.State.Phase == PhaseMatchOver {
		return game.ErrGameOver
	}
	switch action.Type {
	case "next_round":
		if m.State.Phase != PhaseRoundOver {
			return fmt.Errorf("%w: round in progress", game.ErrWrongPhase)
		}
		m.State.Round++
		m.resetRound()
		m.Emit("round_start", "", map[string]any{"round": m.State.Round})
		return nil
	case "attack":
	default:
		return game.UnknownAction(action.Type)
	}

	if m.State.Phase != PhaseFighting {
		return fmt.Errorf("%w: round is over, send next_round", game.ErrWrongPhase)
	}
	if err := m.State.Turn.Require(playerID); err != nil {
		return err
	}
	var p attackPayload
	if err := game.DecodePayload(action, &p); err != nil {
		return err
	}
	if err := m.attack(playerID, p.Move); err != nil {
		return err
	}
	m.endTurn(playerID)
	return nil
}

func (m *Match) attack(playerID, move string) error {
	me := m.State.Players[playerID]
	oppID := m.Opponent(playerID)
	opp := m.State.Players[oppID]
	cfg := m.Config

	var base int
	switch move {
	case string(combat.Block):
		me.LastMove = move
		me.Stamina = game.Clamp(me.Stamina+cfg.BlockRegen, 0, cfg.MaxStamina)
		m.Emit("block", playerID, map[string]any{"stamina": me.Stamina})
		return nil
	case Special:
		if me.Meter < cfg.Special.Meter {
			return fmt.Errorf("%w: %d/%d", ErrNoMeter, me.Meter, cfg.Special.Meter)
		}
		me.Meter -= cfg.Special.Meter
		base = cfg.Special.Damage
	default:
		stats := cfg.stats(combat.Move(move))
		if me.Stamina < stats.Cost {
			return fmt.Errorf("%w: %s costs %d", ErrNoStamina, move, stats.Cost)
		}
		me.Stamina -= stats.Cost
		base = stats.Damage
	}

	strike := combat.Resolve(base, combat.Move(move), combat.Move(opp.LastMove), cfg.BlockReduction, cfg.CounterMultiplier)
	if strike.Countered {
		m.Emit("counter", playerID, map[string]any{"move": move, "countered": opp.LastMove})
	}
	damage := strike.Damage

	hpBefore := opp.HP
	opp.HP = game.Clamp(opp.HP-damage, 0, cfg.MaxHP)
	me.DamageDealt += hpBefore - opp.HP
	me.Meter = game.Clamp(me.Meter+cfg.MeterOnHit, 0, cfg.MaxMeter)
	opp.Meter = game.Clamp(opp.Meter+cfg.MeterWhenHit, 0, cfg.MaxMeter)
	me.LastMove = move
	m.Emit("attack", playerID, map[string]any{
		"move":    move,
		"target":  oppID,
		"damage":  damage,
		"blocked": strike.Blocked,
		"hp":      opp.HP,
	})

	if opp.HP == 0 {
		m.Emit("ko", oppID, map[string]any{"by": playerID})
		m.finishRound(playerID)
	}
	return nil
}

func (m *Match) endTurn(playerID string) {
	if m.State.Phase != PhaseFighting {
		return
	}
	me := m.State.Players[playerID]
	me.Stamina = game.Clamp(me.Stamina+m.Config.StaminaRegen, 0, m.Config.MaxStamina)
	m.State.TurnCount++
	if m.State.TurnCount >= m.Config.TurnsPerRound {
		ids := m.PlayerIDs()
		a, b := m.State.Players[ids[0]], m.State.Players[ids[1]]
		switch {
		case a.HP > b.HP:
			m.finishRound(ids[0])
		case b.HP > a.HP:
			m.finishRound(ids[1])
		default:
			m.finishRound("")
		}
		return
	}
	m.State.Turn.Advance()
}

// finishRound awards the round; an empty winnerID awards nothing.
func (m *Match) finishRound(winnerID string) {
	m.State.RoundWinner = winnerID
	if winnerID != "" {
		m.State.Players[winnerID].RoundsWon++
	}
	m.Emit("round_over", winnerID, map[string]any{"round": m.State.Round, "winner": winnerID})

	if winnerID != "" && m.State.Players[winnerID].RoundsWon >= m.Config.RoundsToWin {
		m.finishMatch(winnerID)
		return
	}
	if m.State.Round >= m.Config.MaxRounds {
		rounds := make(map[string]int, 2)
		for id, p := range m.State.Players {
			rounds[id] = p.RoundsWon
		}
		leader, _ := game.TopScorer(rounds)
		m.finishMatch(leader)
		return
	}
	m.State.Phase = PhaseRoundOver
}

func (m *Match) finishMatch(winnerID string) {
	m.State.Phase = PhaseMatchOver
	m.State.Winner = winnerID
	m.Emit("match_over", winnerID, map[string]any{"winner": winnerID, "scores": m.Scores()})
}

// NextCPUAction fires the special when charged, otherwise counter-picks
// the opponent's last move, falling back to light or block.
func (m *Match) NextCPUAction() (string, game.Action, bool) {
	if !m.HasCPU() || m.State.Phase != PhaseFighting || !m.State.Turn.Is(game.CPUPlayerID) {
		return "", game.Action{}, false
	}
	me := m.State.Players[game.CPUPlayerID]
	opp := m.State.Players[m.Opponent(game.CPUPlayerID)]
	pick := func(move string) (string, game.Action, bool) {
		return game.CPUPlayerID, game.NewAction("attack", attackPayload{Move: move}), true
	}

	if me.Meter >= m.Config.Special.Meter {
		return pick(Special)
	}
	if last := combat.Move(opp.LastMove); last != "" && last != Special {
		counter := combat.CounterFor(last)
		if counter == combat.Block || me.Stamina >= m.Config.stats(counter).Cost {
			return pick(string(counter))
		}
	}
	if me.Stamina >= m.Config.Moves.Light.Cost {
		return pick(string(combat.Light))
	}
	return pick(string(combat.Block))
}

func (m *Match) IsOver() bool {
	return m.State.Phase == PhaseMatchOver
}

func (m *Match) Winner() (string, bool) {
	if m.State.Phase != PhaseMatchOver || m.State.Winner == "" {
		return "", false
	}
	return m.State.Winner, true
}

func (m *Match) Scores() map[string]int {
	scores := make(map[string]int, len(m.State.Players))
	for id, p := range m.State.Players {
		scores[id] = p.RoundsWon*1000 + p.DamageDealt
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
