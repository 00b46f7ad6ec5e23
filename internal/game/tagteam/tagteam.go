// Package tagteam implements two-on-two tag fighting: each side fields one
// active fighter while the benched partner recovers.
package tagteam

import (
	"encoding/json"
	"errors"
	"fmt"

	"moltblox/internal/game"
	"moltblox/internal/game/combat"
)

type TagTeam struct{}

func (TagTeam) Info() game.GameInfo {
	return game.GameInfo{
		Name:        "tagteam",
		Description: "Two fighters per side; tag out to let your partner recover.",
		MinPlayers:  2,
		MaxPlayers:  2,
		SupportsCPU: true,
	}
}

type MoveStats struct {
	Damage int `json:"damage"`
	Cost   int `json:"cost"`
}

type Member struct {
	Name string `json:"name"`
	HP   int    `json:"hp"`
}

type Config struct {
	MaxHP             int       `json:"maxHp"`
	MaxStamina        int       `json:"maxStamina"`
	StaminaRegen      int       `json:"staminaRegen"`
	BenchRecovery     int       `json:"benchRecovery"`
	MaxTurns          int       `json:"maxTurns"`
	CounterMultiplier float64   `json:"counterMultiplier"`
	BlockReduction    float64   `json:"blockReduction"`
	Light             MoveStats `json:"light"`
	Heavy             MoveStats `json:"heavy"`
	Grab              MoveStats `json:"grab"`
	Roster            []Member  `json:"roster,omitempty"`
}

func (c *Config) applyDefaults() {
	game.Positive(&c.MaxHP, 100)
	game.Positive(&c.MaxStamina, 100)
	game.Positive(&c.StaminaRegen, 5)
	game.Positive(&c.BenchRecovery, 5)
	game.Positive(&c.MaxTurns, 60)
	game.Positive(&c.CounterMultiplier, 1.5)
	game.Positive(&c.BlockReduction, 0.75)
	game.Default(&c.Light, MoveStats{Damage: 8, Cost: 5})
	game.Default(&c.Heavy, MoveStats{Damage: 18, Cost: 15})
	game.Default(&c.Grab, MoveStats{Damage: 12, Cost: 10})
	for _, s := range []*MoveStats{&c.Light, &c.Heavy, &c.Grab} {
		s.Damage, s.Cost = max(s.Damage, 0), max(s.Cost, 0)
	}
	c.BlockReduction = game.ClampF(c.BlockReduction, 0, 1)

	roster := make([]Member, 2)
	for i := range roster {
		if i < len(c.Roster) {
			roster[i] = c.Roster[i]
		}
		game.Default(&roster[i].Name, fmt.Sprintf("fighter-%d", i+1))
		if roster[i].HP <= 0 || roster[i].HP > c.MaxHP {
			roster[i].HP = c.MaxHP
		}
	}
	c.Roster = roster
}

func (c Config) stats(move combat.Move) MoveStats {
	switch move {
	case combat.Light:
		return c.Light
	case combat.Heavy:
		return c.Heavy
	case combat.Grab:
		return c.Grab
	}
	return MoveStats{}
}

type TeamFighter struct {
	Name     string `json:"name"`
	HP       int    `json:"hp"`
	MaxHP    int    `json:"maxHp"`
	Stamina  int    `json:"stamina"`
	LastMove string `json:"lastMove,omitempty"`
}

func (f *TeamFighter) Down() bool { return f.HP == 0 }

type Team struct {
	Fighters    []*TeamFighter `json:"fighters"`
	Active      int            `json:"active"`
	DamageDealt int            `json:"damageDealt"`
}

func (t *Team) active() *TeamFighter  { return t.Fighters[t.Active] }
func (t *Team) partner() *TeamFighter { return t.Fighters[1-t.Active] }

func (t *Team) totalHP() int {
	total := 0
	for _, f := range t.Fighters {
		total += f.HP
	}
	return total
}

type State struct {
	Teams     map[string]*Team `json:"teams"`
	Turn      game.TurnOrder   `json:"turn"`
	TurnCount int              `json:"turnCount"`
	MatchOver bool             `json:"matchOver"`
	Winner    string           `json:"winner,omitempty"`
}

type Match struct {
	game.Base
	Config Config `json:"config"`
	State  State  `json:"state"`
}

var (
	ErrNoStamina   = errors.New("not enough stamina")
	ErrPartnerDown = errors.New("partner is down")
)

func (tt TagTeam) NewMatch(config game.MatchConfig) (game.Match, error) {
	withCPU, err := game.CheckPlayers(tt.Info(), config.PlayerIDs)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := game.DecodeOptions(config.Options, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	m := &Match{Base: game.NewBase(config.PlayerIDs, withCPU, config.Seed), Config: cfg}
	ids := m.PlayerIDs()
	m.State = State{Teams: make(map[string]*Team, 2), Turn: game.NewTurnOrder(ids)}
	for _, id := range ids {
		team := &Team{}
		for _, mem := range cfg.Roster {
			team.Fighters = append(team.Fighters, &TeamFighter{
				Name:    mem.Name,
				HP:      mem.HP,
				MaxHP:   cfg.MaxHP,
				Stamina: cfg.MaxStamina,
			})
		}
		m.State.Teams[id] = team
	}
	return m, nil
}

func (TagTeam) Restore(data []byte) (game.Match, error) {
	m := &Match{}
	if err := m.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return m, nil
}

type attackPayload struct {
	Move string `json:"move" validate:"oneof=light heavy grab block"`
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
	if err := m.State.Turn.Require(playerID); err != nil {
		return err
	}
	team := m.State.Teams[playerID]

	switch action.Type {
	case "attack":
		var p attackPayload
		if err := game.DecodePayload(action, &p); err != nil {
			return err
		}
		if err := m.attack(playerID, combat.Move(p.Move)); err != nil {
			return err
		}
	case "tag":
		if team.partner().Down() {
			return ErrPartnerDown
		}
		out := team.active()
		team.Active = 1 - team.Active
		team.active().LastMove = ""
		m.Emit("tag", playerID, map[string]any{"out": out.Name, "in": team.active().Name})
	default:
		return game.UnknownAction(action.Type)
	}

	if !m.State.MatchOver {
		m.endTurn(playerID)
	}
	return nil
}

func (m *Match) attack(playerID string, move combat.Move) error {
	me := m.State.Teams[playerID].active()
	oppID := m.Opponent(playerID)
	oppTeam := m.State.Teams[oppID]
	target := oppTeam.active()

	if move == combat.Block {
		me.LastMove = string(move)
		m.Emit("block", playerID, map[string]any{"fighter": me.Name})
		return nil
	}
	stats := m.Config.stats(move)
	if me.Stamina < stats.Cost {
		return fmt.Errorf("%w: %s costs %d", ErrNoStamina, move, stats.Cost)
	}
	me.Stamina -= stats.Cost
	me.LastMove = string(move)

	strike := combat.Resolve(stats.Damage, move, combat.Move(target.LastMove), m.Config.BlockReduction, m.Config.CounterMultiplier)
	if strike.Countered {
		m.Emit("counter", playerID, map[string]any{"move": string(move), "countered": target.LastMove})
	}
	hpBefore := target.HP
	target.HP = game.Clamp(target.HP-strike.Damage, 0, target.MaxHP)
	m.State.Teams[playerID].DamageDealt += hpBefore - target.HP
	m.Emit("attack", playerID, map[string]any{
		"fighter": me.Name,
		"move":    string(move),
		"target":  target.Name,
		"damage":  strike.Damage,
		"blocked": strike.Blocked,
		"hp":      target.HP,
	})

	if !target.Down() {
		return nil
	}
	m.Emit("ko", oppID, map[string]any{"fighter": target.Name})
	if partner := oppTeam.partner(); !partner.Down() {
		oppTeam.Active = 1 - oppTeam.Active
		partner.LastMove = ""
		m.Emit("forced_swap", oppID, map[string]any{"in": partner.Name})
		return nil
	}
	m.finish(playerID)
	return nil
}

// endTurn regenerates the acting team: stamina for the active fighter and
// HP for a standing benched partner.
func (m *Match) endTurn(playerID string) {
	team := m.State.Teams[playerID]
	a := team.active()
	a.Stamina = game.Clamp(a.Stamina+m.Config.StaminaRegen, 0, m.Config.MaxStamina)
	if b := team.partner(); !b.Down() {
		b.HP = game.Clamp(b.HP+m.Config.BenchRecovery, 0, b.MaxHP)
	}

	m.State.TurnCount++
	if m.State.TurnCount >= m.Config.MaxTurns {
		leader, _ := game.TopScorer(m.Scores())
		m.finish(leader)
		return
	}
	m.State.Turn.Advance()
}

func (m *Match) finish(winnerID string) {
	m.State.MatchOver = true
	m.State.Winner = winnerID
	m.Emit("match_over", winnerID, map[string]any{"winner": winnerID, "scores": m.Scores()})
}

// NextCPUAction tags out a badly hurt fighter when the partner is fitter,
// otherwise counter-picks the opposing fighter's last move.
func (m *Match) NextCPUAction() (string, game.Action, bool) {
	if !m.HasCPU() || m.State.MatchOver || !m.State.Turn.Is(game.CPUPlayerID) {
		return "", game.Action{}, false
	}
	team := m.State.Teams[game.CPUPlayerID]
	me, partner := team.active(), team.partner()
	if me.HP*10 < me.MaxHP*3 && partner.HP > me.HP {
		return game.CPUPlayerID, game.Action{Type: "tag"}, true
	}

	move := combat.Light
	target := m.State.Teams[m.Opponent(game.CPUPlayerID)].active()
	if target.LastMove != "" {
		move = combat.CounterFor(combat.Move(target.LastMove))
	}
	if move != combat.Block && me.Stamina < m.Config.stats(move).Cost {
		move = combat.Block
	}
	return game.CPUPlayerID, game.NewAction("attack", attackPayload{Move: string(move)}), true
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
	scores := make(map[string]int, len(m.State.Teams))
	for id, t := range m.State.Teams {
		scores[id] = t.totalHP()
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
