// Package fps implements a turn-based grid arena shooter with line of
// sight, ammo, pickups and respawns.
package fps

import (
	"encoding/json"
	"errors"
	"fmt"

	"moltblox/internal/game"
)

type FPS struct{}

func (FPS) Info() game.GameInfo {
	return game.GameInfo{
		Name:        "fps",
		Description: "Move, take cover and frag your rivals on a grid arena.",
		MinPlayers:  2,
		MaxPlayers:  4,
	}
}

type Weapon struct {
	Name     string  `json:"name"`
	Damage   int     `json:"damage"`
	Range    int     `json:"range"`
	Accuracy float64 `json:"accuracy"`
	MagSize  int     `json:"magSize"`
}

var DefaultWeapons = []Weapon{
	{Name: "pistol", Damage: 15, Range: 6, Accuracy: 0.9, MagSize: 12},
	{Name: "rifle", Damage: 25, Range: 10, Accuracy: 0.8, MagSize: 6},
	{Name: "shotgun", Damage: 40, Range: 3, Accuracy: 0.95, MagSize: 4},
}

type PickupKind string

const (
	PickupHealth PickupKind = "health"
	PickupArmor  PickupKind = "armor"
)

type Pickup struct {
	Cell
	Kind      PickupKind `json:"kind"`
	Amount    int        `json:"amount"`
	RespawnIn int        `json:"respawnIn"`
}

type Config struct {
	Width         int      `json:"width"`
	Height        int      `json:"height"`
	Walls         []Cell   `json:"walls"`
	WallDensity   float64  `json:"wallDensity"`
	Weapons       []Weapon `json:"weapons,omitempty"`
	FragLimit     int      `json:"fragLimit"`
	MaxTurns      int      `json:"maxTurns"`
	MaxHP         int      `json:"maxHp"`
	MaxArmor      int      `json:"maxArmor"`
	Pickups       []Pickup `json:"pickups"`
	PickupRespawn int      `json:"pickupRespawn"`
}

func (c *Config) applyDefaults() {
	game.Positive(&c.Width, 10)
	game.Positive(&c.Height, 10)
	c.Width = game.Clamp(c.Width, 4, 64)
	c.Height = game.Clamp(c.Height, 4, 64)
	game.Positive(&c.WallDensity, 0.1)
	c.WallDensity = game.ClampF(c.WallDensity, 0, 0.5)
	game.Positive(&c.FragLimit, 5)
	game.Positive(&c.MaxTurns, 100)
	game.Positive(&c.MaxHP, 100)
	game.Positive(&c.MaxArmor, 50)
	game.Positive(&c.PickupRespawn, 10)

	var weapons []Weapon
	seen := map[string]bool{}
	for _, w := range c.Weapons {
		if w.Name != "" && !seen[w.Name] && w.Damage > 0 && w.Range > 0 && w.MagSize > 0 {
			w.Accuracy = game.ClampF(w.Accuracy, 0, 1)
			seen[w.Name] = true
			weapons = append(weapons, w)
		}
	}
	if len(weapons) == 0 {
		weapons = append([]Weapon(nil), DefaultWeapons...)
	}
	c.Weapons = weapons

	if c.Pickups == nil {
		c.Pickups = []Pickup{
			{Cell: Cell{c.Width / 2, c.Height / 2}, Kind: PickupHealth},
			{Cell: Cell{c.Width/2 - 1, c.Height/2 - 1}, Kind: PickupArmor},
		}
	}
	for i := range c.Pickups {
		game.Positive(&c.Pickups[i].Amount, 25)
	}
}

func (c Config) weapon(name string) (Weapon, bool) {
	for _, w := range c.Weapons {
		if w.Name == name {
			return w, true
		}
	}
	return Weapon{}, false
}

type Soldier struct {
	Pos    Cell           `json:"pos"`
	Spawn  Cell           `json:"spawn"`
	HP     int            `json:"hp"`
	Armor  int            `json:"armor"`
	Weapon string         `json:"weapon"`
	Ammo   map[string]int `json:"ammo"`
	Frags  int            `json:"frags"`
	Deaths int            `json:"deaths"`
}

type State struct {
	Players   map[string]*Soldier `json:"players"`
	Walls     []Cell              `json:"walls"`
	Pickups   []*Pickup           `json:"pickups"`
	Turn      game.TurnOrder      `json:"turn"`
	TurnCount int                 `json:"turnCount"`
	GameOver  bool                `json:"gameOver"`
	Winner    string              `json:"winner,omitempty"`
}

type Match struct {
	game.Base
	Config Config `json:"config"`
	State  State  `json:"state"`
}

var (
	ErrBlocked       = errors.New("cell is blocked")
	ErrOutOfRange    = errors.New("target out of range")
	ErrNoLineOfSight = errors.New("no line of sight")
	ErrNoAmmo        = errors.New("out of ammo")
	ErrFullMag       = errors.New("magazine is full")
	ErrUnknownWeapon = errors.New("unknown weapon")
	ErrEquipped      = errors.New("weapon already equipped")
	ErrBadTarget     = errors.New("invalid target")
)

func (f FPS) NewMatch(config game.MatchConfig) (game.Match, error) {
	if _, err := game.CheckPlayers(f.Info(), config.PlayerIDs); err != nil {
		return nil, err
	}
	var cfg Config
	if err := game.DecodeOptions(config.Options, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	m := &Match{Base: game.NewBase(config.PlayerIDs, false, config.Seed), Config: cfg}
	ids := m.PlayerIDs()
	spawns := spawnPoints(cfg.Width, cfg.Height)
	m.State = State{Players: make(map[string]*Soldier, len(ids)), Turn: game.NewTurnOrder(ids)}
	for i, id := range ids {
		s := &Soldier{Spawn: spawns[i]}
		m.respawn(s)
		m.State.Players[id] = s
	}
	for _, p := range cfg.Pickups {
		if m.inBounds(p.Cell) && (p.Kind == PickupHealth || p.Kind == PickupArmor) {
			pk := p
			m.State.Pickups = append(m.State.Pickups, &pk)
		}
	}
	m.State.Walls = m.buildWalls(spawns)
	return m, nil
}

// buildWalls keeps explicit walls that do not cover a spawn or pickup, or
// scatters walls by density when none are configured. Spawn corners and
// their neighbours stay open.
func (m *Match) buildWalls(spawns []Cell) []Cell {
	reserved := func(c Cell) bool {
		for _, s := range spawns {
			if distance(c, s) <= 1 {
				return true
			}
		}
		for _, p := range m.State.Pickups {
			if p.Cell == c {
				return true
			}
		}
		return false
	}
	walls := []Cell{}
	if m.Config.Walls != nil {
		for _, c := range m.Config.Walls {
			if m.inBounds(c) && !reserved(c) {
				walls = append(walls, c)
			}
		}
		return walls
	}
	for y := range m.Config.Height {
		for x := range m.Config.Width {
			c := Cell{x, y}
			if !reserved(c) && m.RNG.Chance(m.Config.WallDensity) {
				walls = append(walls, c)
			}
		}
	}
	return walls
}

func (m *Match) respawn(s *Soldier) {
	s.Pos = s.Spawn
	s.HP = m.Config.MaxHP
	s.Armor = 0
	s.Weapon = m.Config.Weapons[0].Name
	s.Ammo = make(map[string]int, len(m.Config.Weapons))
	for _, w := range m.Config.Weapons {
		s.Ammo[w.Name] = w.MagSize
	}
}

func (FPS) Restore(data []byte) (game.Match, error) {
	m := &Match{}
	if err := m.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return m, nil
}

type movePayload struct {
	DX int `json:"dx" validate:"min=-1,max=1"`
	DY int `json:"dy" validate:"min=-1,max=1"`
}

type shootPayload struct {
	TargetID string `json:"targetId" validate:"required"`
}

type weaponPayload struct {
	Weapon string `json:"weapon" validate:"required"`
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
	if m.State.GameOver {
		return game.ErrGameOver
	}
	if err := m.State.Turn.Require(playerID); err != nil {
		return err
	}
	me := m.State.Players[playerID]

	switch action.Type {
	case "move":
		var p movePayload
		if err := game.DecodePayload(action, &p); err != nil {
			return err
		}
		if p.DX == 0 && p.DY == 0 {
			return fmt.Errorf("%w: move needs a direction", game.ErrInvalidPayload)
		}
		to := me.Pos.add(p.DX, p.DY)
		if !m.inBounds(to) || m.wall(to) || m.occupant(to) != "" {
			return ErrBlocked
		}
		me.Pos = to
		m.Emit("move", playerID, map[string]any{"x": to.X, "y": to.Y})
		m.collect(playerID)
	case "shoot":
		var p shootPayload
		if err := game.DecodePayload(action, &p); err != nil {
			return err
		}
		if err := m.shoot(playerID, p.TargetID); err != nil {
			return err
		}
	case "reload":
		w, _ := m.Config.weapon(me.Weapon)
		if me.Ammo[w.Name] >= w.MagSize {
			return ErrFullMag
		}
		me.Ammo[w.Name] = w.MagSize
		m.Emit("reload", playerID, map[string]any{"weapon": w.Name})
	case "switch_weapon":
		var p weaponPayload
		if err := game.DecodePayload(action, &p); err != nil {
			return err
		}
		if _, ok := m.Config.weapon(p.Weapon); !ok {
			return fmt.Errorf("%w: %s", ErrUnknownWeapon, p.Weapon)
		}
		if p.Weapon == me.Weapon {
			return ErrEquipped
		}
		me.Weapon = p.Weapon
		m.Emit("switch_weapon", playerID, map[string]any{"weapon": p.Weapon})
	default:
		return game.UnknownAction(action.Type)
	}

	if !m.State.GameOver {
		m.endTurn()
	}
	return nil
}

// hitChance is the weapon accuracy inside half range, then falls linearly
// to half the accuracy at full range.
func hitChance(w Weapon, dist int) float64 {
	half := float64(w.Range) / 2
	d := float64(dist)
	if d <= half {
		return w.Accuracy
	}
	return w.Accuracy * (1 - 0.5*(d-half)/(float64(w.Range)-half))
}

func (m *Match) shoot(playerID, targetID string) error {
	me := m.State.Players[playerID]
	target, ok := m.State.Players[targetID]
	if !ok || targetID == playerID {
		return fmt.Errorf("%w: %s", ErrBadTarget, targetID)
	}
	w, _ := m.Config.weapon(me.Weapon)
	dist := distance(me.Pos, target.Pos)
	switch {
	case me.Ammo[w.Name] == 0:
		return ErrNoAmmo
	case dist > w.Range:
		return ErrOutOfRange
	case !m.lineOfSight(me.Pos, target.Pos):
		return ErrNoLineOfSight
	}
	me.Ammo[w.Name]--

	if !m.RNG.Chance(hitChance(w, dist)) {
		m.Emit("miss", playerID, map[string]any{"target": targetID, "weapon": w.Name})
		return nil
	}
	absorbed := min(target.Armor, w.Damage/2)
	target.Armor -= absorbed
	target.HP = game.Clamp(target.HP-(w.Damage-absorbed), 0, m.Config.MaxHP)
	m.Emit("hit", playerID, map[string]any{
		"target":   targetID,
		"weapon":   w.Name,
		"damage":   w.Damage - absorbed,
		"absorbed": absorbed,
		"hp":       target.HP,
	})
	if target.HP > 0 {
		return nil
	}

	me.Frags++
	target.Deaths++
	m.Emit("frag", playerID, map[string]any{"victim": targetID, "frags": me.Frags})
	m.respawnAt(targetID)
	if me.Frags >= m.Config.FragLimit {
		m.finish()
	}
	return nil
}

// respawnAt returns the victim to its corner, or to the first free corner
// when another soldier stands there.
func (m *Match) respawnAt(id string) {
	s := m.State.Players[id]
	m.respawn(s)
	taken := func(c Cell) bool {
		for other, o := range m.State.Players {
			if other != id && o.Pos == c {
				return true
			}
		}
		return false
	}
	if taken(s.Pos) {
		for _, c := range spawnPoints(m.Config.Width, m.Config.Height) {
			if !taken(c) {
				s.Pos = c
				break
			}
		}
	}
	m.Emit("respawn", id, map[string]any{"x": s.Pos.X, "y": s.Pos.Y})
}

func (m *Match) collect(playerID string) {
	me := m.State.Players[playerID]
	for _, p := range m.State.Pickups {
		if p.Cell != me.Pos || p.RespawnIn > 0 {
			continue
		}
		switch p.Kind {
		case PickupHealth:
			me.HP = game.Clamp(me.HP+p.Amount, 0, m.Config.MaxHP)
		case PickupArmor:
			me.Armor = game.Clamp(me.Armor+p.Amount, 0, m.Config.MaxArmor)
		}
		p.RespawnIn = m.Config.PickupRespawn
		m.Emit("pickup", playerID, map[string]any{"kind": string(p.Kind), "hp": me.HP, "armor": me.Armor})
	}
}

func (m *Match) endTurn() {
	for _, p := range m.State.Pickups {
		if p.RespawnIn > 0 {
			p.RespawnIn--
		}
	}
	m.State.TurnCount++
	if m.State.TurnCount >= m.Config.MaxTurns {
		m.finish()
		return
	}
	m.State.Turn.Advance()
}

func (m *Match) finish() {
	m.State.GameOver = true
	m.State.Winner, _ = game.TopScorer(m.Scores())
	m.Emit("game_over", m.State.Winner, map[string]any{"scores": m.Scores()})
}

func (m *Match) IsOver() bool {
	return m.State.GameOver
}

func (m *Match) Winner() (string, bool) {
	if !m.State.GameOver || m.State.Winner == "" {
		return "", false
	}
	return m.State.Winner, true
}

func (m *Match) Scores() map[string]int {
	scores := make(map[string]int, len(m.State.Players))
	for id, s := range m.State.Players {
		scores[id] = s.Frags
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
