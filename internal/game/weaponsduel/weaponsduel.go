// Package weaponsduel implements a spaced weapon duel with zone guards,
// feints, wounds and ring-outs.
package weaponsduel

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"

	"moltblox/internal/game"
	"moltblox/internal/game/combat"
)

type WeaponsDuel struct{}

func (WeaponsDuel) Info() game.GameInfo {
	return game.GameInfo{
		Name:        "weaponsduel",
		Description: "Pick a weapon, manage reach, and strike where your opponent is not guarding.",
		MinPlayers:  2,
		MaxPlayers:  2,
		SupportsCPU: true,
	}
}

type Config struct {
	Weapons            []Weapon `json:"weapons,omitempty"`
	ArenaSize          int      `json:"arenaSize"`
	MaxHP              int      `json:"maxHp"`
	MaxStamina         int      `json:"maxStamina"`
	WoundChance        float64  `json:"woundChance"`
	WoundBleed         int      `json:"woundBleed"`
	WoundTurns         int      `json:"woundTurns"`
	GuardChip          float64  `json:"guardChip"`
	CounterMultiplier  float64  `json:"counterMultiplier"`
	KnockbackThreshold int      `json:"knockbackThreshold"`
	StaminaRegen       int      `json:"staminaRegen"`
	GuardRegen         int      `json:"guardRegen"`
	FeintCost          int      `json:"feintCost"`
	MaxTurns           int      `json:"maxTurns"`
}

func (c *Config) applyDefaults() {
	c.Weapons = validWeapons(c.Weapons)
	if len(c.Weapons) == 0 {
		c.Weapons = append([]Weapon(nil), DefaultWeapons...)
	}
	game.Positive(&c.ArenaSize, 6)
	c.ArenaSize = max(c.ArenaSize, 3)
	game.Positive(&c.MaxHP, 100)
	game.Positive(&c.MaxStamina, 100)
	game.Positive(&c.WoundChance, 0.25)
	game.Positive(&c.WoundBleed, 2)
	game.Positive(&c.WoundTurns, 3)
	game.Positive(&c.GuardChip, 0.25)
	game.Positive(&c.CounterMultiplier, 1.25)
	game.Positive(&c.KnockbackThreshold, 15)
	game.Positive(&c.StaminaRegen, 5)
	game.Positive(&c.GuardRegen, 10)
	game.Positive(&c.FeintCost, 5)
	game.Positive(&c.MaxTurns, 40)
	c.WoundChance = game.ClampF(c.WoundChance, 0, 1)
	c.GuardChip = game.ClampF(c.GuardChip, 0, 1)
}

func (c Config) weapon(name string) (Weapon, bool) {
	for _, w := range c.Weapons {
		if w.Name == name {
			return w, true
		}
	}
	return Weapon{}, false
}

type Phase string

const (
	PhaseSelect Phase = "select"
	PhaseDuel   Phase = "duel"
	PhaseOver   Phase = "over"
)

type Duelist struct {
	Weapon     string `json:"weapon,omitempty"`
	HP         int    `json:"hp"`
	Stamina    int    `json:"stamina"`
	Position   int    `json:"position"`
	Facing     int    `json:"facing"`
	Guard      string `json:"guard,omitempty"`
	GuardOpen  bool   `json:"guardOpen"`
	WoundTurns int    `json:"woundTurns"`
	// FeintPending is set on the feinter until the start of its next turn.
	FeintPending bool `json:"feintPending"`
	FeintedTurn  bool `json:"feintedThisTurn"`
}

type State struct {
	Duelists  map[string]*Duelist `json:"duelists"`
	Phase     Phase               `json:"phase"`
	Turn      game.TurnOrder      `json:"turn"`
	TurnCount int                 `json:"turnCount"`
	Winner    string              `json:"winner,omitempty"`
}

type Match struct {
	game.Base
	Config Config `json:"config"`
	State  State  `json:"state"`
}

var (
	ErrUnknownWeapon  = errors.New("unknown weapon")
	ErrAlreadyChosen  = errors.New("weapon already chosen")
	ErrOutOfReach     = errors.New("opponent out of reach")
	ErrBlocked        = errors.New("cannot move onto or past the opponent")
	ErrArenaEdge      = errors.New("at the arena edge")
	ErrNoStamina      = errors.New("not enough stamina")
	ErrAlreadyFeinted = errors.New("already feinted this turn")
)

func (wd WeaponsDuel) NewMatch(config game.MatchConfig) (game.Match, error) {
	withCPU, err := game.CheckPlayers(wd.Info(), config.PlayerIDs)
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
	m.State = State{Duelists: make(map[string]*Duelist, 2), Phase: PhaseSelect, Turn: game.NewTurnOrder(ids)}
	for i, id := range ids {
		facing := 1
		if i == 1 {
			facing = -1
		}
		m.State.Duelists[id] = &Duelist{
			HP:       cfg.MaxHP,
			Stamina:  cfg.MaxStamina,
			Position: -2 * facing,
			Facing:   facing,
		}
	}
	return m, nil
}

func (WeaponsDuel) Restore(data []byte) (game.Match, error) {
	m := &Match{}
	if err := m.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return m, nil
}

type weaponPayload struct {
	Weapon string `json:"weapon" validate:"required"`
}

type zonePayload struct {
	Zone string `json:"zone" validate:"oneof=high mid low"`
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
	switch m.State.Phase {
	case PhaseOver:
		return game.ErrGameOver
	case PhaseSelect:
		if action.Type != "choose_weapon" {
			return fmt.Errorf("%w: choose a weapon first", game.ErrWrongPhase)
		}
		return m.choose(playerID, action)
	}

	if action.Type == "choose_weapon" {
		return fmt.Errorf("%w: weapons are locked in", game.ErrWrongPhase)
	}
	if err := m.State.Turn.Require(playerID); err != nil {
		return err
	}
	me := m.State.Duelists[playerID]
	opp := m.State.Duelists[m.Opponent(playerID)]

	switch action.Type {
	case "advance":
		to := me.Position + me.Facing
		if to == opp.Position || (me.Position < opp.Position) != (to < opp.Position) {
			return ErrBlocked
		}
		me.Position = to
		m.Emit("advance", playerID, map[string]any{"position": to})
	case "retreat":
		to := me.Position - me.Facing
		if game.Abs(to) > m.Config.ArenaSize {
			return ErrArenaEdge
		}
		me.Position = to
		m.Emit("retreat", playerID, map[string]any{"position": to})
	case "attack":
		var p zonePayload
		if err := game.DecodePayload(action, &p); err != nil {
			return err
		}
		if err := m.attack(playerID, combat.Zone(p.Zone)); err != nil {
			return err
		}
	case "guard":
		var p zonePayload
		if err := game.DecodePayload(action, &p); err != nil {
			return err
		}
		me.Guard = p.Zone
		me.Stamina = game.Clamp(me.Stamina+m.Config.GuardRegen, 0, m.Config.MaxStamina)
		m.Emit("guard", playerID, map[string]any{"zone": p.Zone, "active": !me.GuardOpen})
	case "feint":
		if me.FeintedTurn {
			return ErrAlreadyFeinted
		}
		if me.Stamina < m.Config.FeintCost {
			return fmt.Errorf("%w: feint costs %d", ErrNoStamina, m.Config.FeintCost)
		}
		me.Stamina -= m.Config.FeintCost
		me.FeintedTurn = true
		me.FeintPending = true
		opp.GuardOpen = true
		m.Emit("feint", playerID, map[string]any{"target": m.Opponent(playerID)})
		return nil
	default:
		return game.UnknownAction(action.Type)
	}

	if m.State.Phase == PhaseDuel {
		m.endTurn(playerID)
	}
	return nil
}

func (m *Match) choose(playerID string, action game.Action) error {
	var p weaponPayload
	if err := game.DecodePayload(action, &p); err != nil {
		return err
	}
	me := m.State.Duelists[playerID]
	if me.Weapon != "" {
		return ErrAlreadyChosen
	}
	if _, ok := m.Config.weapon(p.Weapon); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownWeapon, p.Weapon)
	}
	me.Weapon = p.Weapon
	m.Emit("weapon_chosen", playerID, map[string]any{"weapon": p.Weapon})

	for _, d := range m.State.Duelists {
		if d.Weapon == "" {
			return nil
		}
	}
	m.startDuel()
	return nil
}

// startDuel orders turns by weapon speed, the first seat winning ties.
func (m *Match) startDuel() {
	ids := m.PlayerIDs()
	sort.SliceStable(ids, func(i, j int) bool {
		return m.speed(ids[i]) > m.speed(ids[j])
	})
	m.State.Turn = game.NewTurnOrder(ids)
	m.State.Phase = PhaseDuel
	m.Emit("duel_start", ids[0], map[string]any{"order": ids})
}

func (m *Match) speed(id string) int {
	w, _ := m.Config.weapon(m.State.Duelists[id].Weapon)
	return w.Speed
}

func (m *Match) attack(playerID string, zone combat.Zone) error {
	me := m.State.Duelists[playerID]
	oppID := m.Opponent(playerID)
	opp := m.State.Duelists[oppID]
	w, _ := m.Config.weapon(me.Weapon)

	if game.Abs(me.Position-opp.Position) > w.Reach {
		return ErrOutOfReach
	}
	if me.Stamina < w.StaminaCost {
		return fmt.Errorf("%w: %s costs %d", ErrNoStamina, w.Name, w.StaminaCost)
	}
	me.Stamina -= w.StaminaCost
	me.Guard = ""

	guardActive := opp.Guard != "" && !opp.GuardOpen
	data := map[string]any{"zone": string(zone), "target": oppID}
	var damage int
	switch {
	case guardActive && combat.Zone(opp.Guard) == zone:
		damage = int(math.Round(float64(w.Damage) * m.Config.GuardChip))
		data["guarded"] = true
	default:
		dmg := float64(w.Damage)
		if guardActive && combat.ZoneCounters(zone, combat.Zone(opp.Guard)) {
			dmg *= m.Config.CounterMultiplier
			data["counter"] = true
		}
		damage = int(math.Round(dmg))
		if m.RNG.Chance(m.Config.WoundChance) {
			opp.WoundTurns = m.Config.WoundTurns
			m.Emit("wound", oppID, map[string]any{"turns": opp.WoundTurns})
		}
	}
	opp.HP = game.Clamp(opp.HP-damage, 0, m.Config.MaxHP)
	data["damage"] = damage
	data["hp"] = opp.HP
	m.Emit("attack", playerID, data)

	if opp.HP == 0 {
		m.finish(playerID, "ko")
		return nil
	}
	if damage >= m.Config.KnockbackThreshold {
		opp.Position += me.Facing
		m.Emit("knockback", oppID, map[string]any{"position": opp.Position})
		if game.Abs(opp.Position) > m.Config.ArenaSize {
			m.Emit("ring_out", oppID, map[string]any{"winner": playerID})
			m.finish(playerID, "ring_out")
		}
	}
	return nil
}

func (m *Match) endTurn(playerID string) {
	me := m.State.Duelists[playerID]
	me.Stamina = game.Clamp(me.Stamina+m.Config.StaminaRegen, 0, m.Config.MaxStamina)
	me.FeintedTurn = false
	m.State.TurnCount++
	if m.State.TurnCount >= m.Config.MaxTurns {
		leader, _ := game.TopScorer(m.Scores())
		m.finish(leader, "turn_limit")
		return
	}
	m.State.Turn.Advance()
	m.startTurn(m.State.Turn.Current())
}

// startTurn lifts the feinter's hold on the opposing guard, then bleeds a
// wounded duelist.
func (m *Match) startTurn(playerID string) {
	me := m.State.Duelists[playerID]
	oppID := m.Opponent(playerID)
	if me.FeintPending {
		me.FeintPending = false
		m.State.Duelists[oppID].GuardOpen = false
		m.Emit("guard_restored", oppID, nil)
	}
	if me.WoundTurns > 0 {
		me.WoundTurns--
		me.HP = game.Clamp(me.HP-m.Config.WoundBleed, 0, m.Config.MaxHP)
		m.Emit("bleed", playerID, map[string]any{"damage": m.Config.WoundBleed, "hp": me.HP})
		if me.HP == 0 {
			m.finish(oppID, "bleed")
		}
	}
}

func (m *Match) finish(winnerID, reason string) {
	m.State.Phase = PhaseOver
	m.State.Winner = winnerID
	m.Emit("duel_over", winnerID, map[string]any{"winner": winnerID, "reason": reason})
}

// NextCPUAction picks a weapon the opponent did not take, then closes to
// reach and strikes around the opponent's guard.
func (m *Match) NextCPUAction() (string, game.Action, bool) {
	if !m.HasCPU() {
		return "", game.Action{}, false
	}
	me := m.State.Duelists[game.CPUPlayerID]
	opp := m.State.Duelists[m.Opponent(game.CPUPlayerID)]
	act := func(t string, payload any) (string, game.Action, bool) {
		return game.CPUPlayerID, game.NewAction(t, payload), true
	}

	switch m.State.Phase {
	case PhaseSelect:
		if me.Weapon != "" {
			return "", game.Action{}, false
		}
		pick := m.Config.Weapons[0].Name
		for _, w := range m.Config.Weapons {
			if w.Name != opp.Weapon {
				pick = w.Name
				break
			}
		}
		return act("choose_weapon", weaponPayload{Weapon: pick})
	case PhaseDuel:
		if !m.State.Turn.Is(game.CPUPlayerID) {
			return "", game.Action{}, false
		}
	default:
		return "", game.Action{}, false
	}

	w, _ := m.Config.weapon(me.Weapon)
	dist := game.Abs(me.Position - opp.Position)
	if dist > w.Reach && dist > 1 {
		return act("advance", nil)
	}
	if dist <= w.Reach && me.Stamina >= w.StaminaCost {
		zone := combat.Mid
		if opp.Guard != "" && !opp.GuardOpen {
			zone = combat.ZoneCounterFor(combat.Zone(opp.Guard))
		}
		return act("attack", zonePayload{Zone: string(zone)})
	}
	return act("guard", zonePayload{Zone: string(combat.Mid)})
}

func (m *Match) IsOver() bool {
	return m.State.Phase == PhaseOver
}

func (m *Match) Winner() (string, bool) {
	if m.State.Phase != PhaseOver || m.State.Winner == "" {
		return "", false
	}
	return m.State.Winner, true
}

func (m *Match) Scores() map[string]int {
	scores := make(map[string]int, len(m.State.Duelists))
	for id, d := range m.State.Duelists {
		scores[id] = d.HP
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
