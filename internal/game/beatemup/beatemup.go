// Package beatemup implements a co-op brawler with enemy waves, XP levels
// and unlockable skills.
package beatemup

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"moltblox/internal/game"
)

type BeatEmUp struct{}

func (BeatEmUp) Info() game.GameInfo {
	return game.GameInfo{
		Name:        "beatemup",
		Description: "Fight through enemy waves together, level up and unlock skills.",
		MinPlayers:  1,
		MaxPlayers:  4,
	}
}

type EnemySpec struct {
	Name    string `json:"name"`
	HP      int    `json:"hp"`
	Attack  int    `json:"attack"`
	Defense int    `json:"defense"`
	XP      int    `json:"xp"`
}

type Config struct {
	Waves        [][]EnemySpec `json:"waves,omitempty"`
	Growth       Growth        `json:"growth"`
	PlateauLevel int           `json:"plateauLevel"`
	MaxLevel     int           `json:"maxLevel"`
	XPBase       int           `json:"xpBase"`
	BaseHP       int           `json:"baseHp"`
	BaseAttack   int           `json:"baseAttack"`
	BaseDefense  int           `json:"baseDefense"`
}

func (c *Config) applyDefaults() {
	switch c.Growth {
	case GrowthLinear, GrowthExponential, GrowthPlateau:
	default:
		c.Growth = GrowthLinear
	}
	game.Positive(&c.PlateauLevel, 5)
	game.Positive(&c.MaxLevel, 20)
	game.Positive(&c.XPBase, 100)
	game.Positive(&c.BaseHP, 100)
	game.Positive(&c.BaseAttack, 10)
	game.Positive(&c.BaseDefense, 2)

	waves := make([][]EnemySpec, 0, len(c.Waves))
	for _, w := range c.Waves {
		var valid []EnemySpec
		for _, e := range w {
			if e.HP > 0 {
				game.Default(&e.Name, "enemy")
				e.Attack, e.Defense, e.XP = max(e.Attack, 0), max(e.Defense, 0), max(e.XP, 0)
				valid = append(valid, e)
			}
		}
		if len(valid) > 0 {
			waves = append(waves, valid)
		}
	}
	if len(waves) == 0 {
		waves = defaultWaves()
	}
	c.Waves = waves
}

// defaultWaves grows a grunt squad per wave and closes with a brute.
func defaultWaves() [][]EnemySpec {
	waves := make([][]EnemySpec, 3)
	for w := 1; w <= 3; w++ {
		for range w + 1 {
			waves[w-1] = append(waves[w-1], EnemySpec{
				Name:    "grunt",
				HP:      20 + 10*w,
				Attack:  6 + 2*w,
				Defense: w,
				XP:      30 + 10*w,
			})
		}
	}
	waves[2] = append(waves[2], EnemySpec{Name: "brute", HP: 80, Attack: 14, Defense: 3, XP: 150})
	return waves
}

type Phase string

const (
	PhaseCombat    Phase = "combat"
	PhaseWaveClear Phase = "wave_clear"
	PhaseVictory   Phase = "victory"
	PhaseDefeat    Phase = "defeat"
)

type Player struct {
	Level       int           `json:"level"`
	XP          int           `json:"xp"`
	HP          int           `json:"hp"`
	MaxHP       int           `json:"maxHp"`
	Attack      int           `json:"attack"`
	Defense     int           `json:"defense"`
	SkillPoints int           `json:"skillPoints"`
	Skills      []Skill       `json:"skills"`
	Cooldowns   map[Skill]int `json:"cooldowns"`
	Defending   bool          `json:"defending"`
	DamageDealt int           `json:"damageDealt"`
	Kills       int           `json:"kills"`
}

func (p *Player) Down() bool { return p.HP == 0 }

type Enemy struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	HP      int    `json:"hp"`
	MaxHP   int    `json:"maxHp"`
	Attack  int    `json:"attack"`
	Defense int    `json:"defense"`
	XP      int    `json:"xp"`
}

type State struct {
	Players map[string]*Player `json:"players"`
	Enemies []*Enemy           `json:"enemies"`
	Wave    int                `json:"wave"`
	Phase   Phase              `json:"phase"`
	Turn    game.TurnOrder     `json:"turn"`
	Round   int                `json:"round"`
}

type Match struct {
	game.Base
	Config Config `json:"config"`
	State  State  `json:"state"`
}

var (
	ErrNoTarget      = errors.New("no such enemy")
	ErrSkillLocked   = errors.New("skill not unlocked")
	ErrPassiveSkill  = errors.New("skill is passive")
	ErrOnCooldown    = errors.New("skill on cooldown")
	ErrNoSkillPoints = errors.New("no skill points")
	ErrLevelTooLow   = errors.New("level too low")
	ErrKnownSkill    = errors.New("skill already unlocked")
)

func (b BeatEmUp) NewMatch(config game.MatchConfig) (game.Match, error) {
	if _, err := game.CheckPlayers(b.Info(), config.PlayerIDs); err != nil {
		return nil, err
	}
	var cfg Config
	if err := game.DecodeOptions(config.Options, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	m := &Match{Base: game.NewBase(config.PlayerIDs, false, config.Seed), Config: cfg}
	ids := m.PlayerIDs()
	m.State = State{Players: make(map[string]*Player, len(ids)), Turn: game.NewTurnOrder(ids)}
	for _, id := range ids {
		m.State.Players[id] = &Player{
			Level:     1,
			HP:        cfg.BaseHP,
			MaxHP:     cfg.BaseHP,
			Attack:    cfg.BaseAttack,
			Defense:   cfg.BaseDefense,
			Skills:    []Skill{},
			Cooldowns: map[Skill]int{},
		}
	}
	m.spawnWave(1)
	m.DrainEvents()
	return m, nil
}

func (BeatEmUp) Restore(data []byte) (game.Match, error) {
	m := &Match{}
	if err := m.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return m, nil
}

type targetPayload struct {
	Target string `json:"target" validate:"required"`
}

type skillPayload struct {
	Skill  Skill  `json:"skill" validate:"oneof=power_strike iron_skin whirlwind second_wind berserker"`
	Target string `json:"target"`
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
	if m.IsOver() {
		return game.ErrGameOver
	}

	switch action.Type {
	case "unlock_skill":
		if m.State.Phase == PhaseCombat {
			return fmt.Errorf("%w: skills unlock between waves", game.ErrWrongPhase)
		}
		return m.unlock(playerID, action)
	case "start_wave":
		if m.State.Phase != PhaseWaveClear {
			return fmt.Errorf("%w: wave in progress", game.ErrWrongPhase)
		}
		m.spawnWave(m.State.Wave + 1)
		return nil
	case "attack", "use_skill", "defend":
	default:
		return game.UnknownAction(action.Type)
	}

	if m.State.Phase != PhaseCombat {
		return fmt.Errorf("%w: start the next wave", game.ErrWrongPhase)
	}
	if err := m.State.Turn.Require(playerID); err != nil {
		return err
	}
	p := m.State.Players[playerID]

	switch action.Type {
	case "attack":
		var pl targetPayload
		if err := game.DecodePayload(action, &pl); err != nil {
			return err
		}
		e, err := m.enemy(pl.Target)
		if err != nil {
			return err
		}
		m.hit(playerID, e, p.attackPower(), "attack")
	case "use_skill":
		if err := m.useSkill(playerID, action); err != nil {
			return err
		}
	case "defend":
		p.Defending = true
		m.Emit("defend", playerID, nil)
	}

	if m.State.Phase == PhaseCombat {
		m.endTurn()
	}
	return nil
}

func (m *Match) unlock(playerID string, action game.Action) error {
	var pl skillPayload
	if err := game.DecodePayload(action, &pl); err != nil {
		return err
	}
	p := m.State.Players[playerID]
	def := skills[pl.Skill]
	switch {
	case p.has(pl.Skill):
		return ErrKnownSkill
	case p.SkillPoints < 1:
		return ErrNoSkillPoints
	case p.Level < def.Level:
		return fmt.Errorf("%w: %s needs level %d", ErrLevelTooLow, pl.Skill, def.Level)
	}
	p.SkillPoints--
	p.Skills = append(p.Skills, pl.Skill)
	m.Emit("skill_unlocked", playerID, map[string]any{"skill": string(pl.Skill)})
	return nil
}

func (m *Match) useSkill(playerID string, action game.Action) error {
	var pl skillPayload
	if err := game.DecodePayload(action, &pl); err != nil {
		return err
	}
	p := m.State.Players[playerID]
	def := skills[pl.Skill]
	switch {
	case !p.has(pl.Skill):
		return ErrSkillLocked
	case !def.Active:
		return ErrPassiveSkill
	case p.Cooldowns[pl.Skill] > 0:
		return fmt.Errorf("%w: %d rounds left", ErrOnCooldown, p.Cooldowns[pl.Skill])
	}

	switch pl.Skill {
	case PowerStrike:
		e, err := m.enemy(pl.Target)
		if err != nil {
			return err
		}
		p.Cooldowns[pl.Skill] = def.Cooldown
		m.hit(playerID, e, p.attackPower()*2, string(pl.Skill))
	case Whirlwind:
		p.Cooldowns[pl.Skill] = def.Cooldown
		power := int(math.Round(float64(p.attackPower()) * 0.75))
		for _, e := range m.State.Enemies {
			if e.HP > 0 && m.State.Phase == PhaseCombat {
				m.hit(playerID, e, power, string(pl.Skill))
			}
		}
	case SecondWind:
		p.Cooldowns[pl.Skill] = def.Cooldown
		heal := int(math.Round(float64(p.MaxHP) * 0.3))
		p.HP = game.Clamp(p.HP+heal, 0, p.MaxHP)
		m.Emit("heal", playerID, map[string]any{"amount": heal, "hp": p.HP})
	}
	return nil
}

func (m *Match) enemy(id string) (*Enemy, error) {
	for _, e := range m.State.Enemies {
		if e.ID == id && e.HP > 0 {
			return e, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoTarget, id)
}

func (m *Match) hit(playerID string, e *Enemy, power int, source string) {
	p := m.State.Players[playerID]
	dmg := max(1, power-e.Defense)
	before := e.HP
	e.HP = game.Clamp(e.HP-dmg, 0, e.MaxHP)
	p.DamageDealt += before - e.HP
	m.Emit("hit", playerID, map[string]any{"target": e.ID, "damage": dmg, "hp": e.HP, "source": source})
	if e.HP > 0 {
		return
	}
	p.Kills++
	m.Emit("enemy_defeated", playerID, map[string]any{"target": e.ID, "xp": e.XP})
	m.gainXP(playerID, e.XP)
	if m.livingEnemies() == 0 {
		m.clearWave()
	}
}

func (m *Match) livingEnemies() int {
	n := 0
	for _, e := range m.State.Enemies {
		if e.HP > 0 {
			n++
		}
	}
	return n
}

func (m *Match) clearWave() {
	if m.State.Wave >= len(m.Config.Waves) {
		m.State.Phase = PhaseVictory
		m.Emit("victory", "", map[string]any{"scores": m.Scores()})
		return
	}
	m.State.Phase = PhaseWaveClear
	m.Emit("wave_clear", "", map[string]any{"wave": m.State.Wave})
}

func (m *Match) spawnWave(wave int) {
	m.State.Wave = wave
	m.State.Enemies = nil
	for i, spec := range m.Config.Waves[wave-1] {
		m.State.Enemies = append(m.State.Enemies, &Enemy{
			ID:      fmt.Sprintf("w%d-e%d", wave, i+1),
			Name:    spec.Name,
			HP:      spec.HP,
			MaxHP:   spec.HP,
			Attack:  spec.Attack,
			Defense: spec.Defense,
			XP:      spec.XP,
		})
	}
	for _, p := range m.State.Players {
		p.Defending = false
	}
	m.State.Phase = PhaseCombat
	m.resetTurn()
	m.Emit("wave_start", "", map[string]any{"wave": wave, "enemies": len(m.State.Enemies)})
}

func (m *Match) resetTurn() {
	for _, id := range m.State.Turn.Order {
		if !m.State.Players[id].Down() {
			m.State.Turn.Reset(id)
			return
		}
	}
}

func (m *Match) endTurn() {
	down := func(id string) bool { return m.State.Players[id].Down() }
	if m.State.Turn.AdvanceSkipping(down) {
		m.enemyPhase()
	}
}

// enemyPhase lets every living enemy strike the weakest living player, then
// ticks cooldowns and opens the next round.
func (m *Match) enemyPhase() {
	for _, e := range m.State.Enemies {
		if e.HP == 0 {
			continue
		}
		targetID := m.weakestPlayer()
		if targetID == "" {
			break
		}
		t := m.State.Players[targetID]
		dmg := max(1, e.Attack-t.defense())
		if t.Defending {
			dmg = max(1, dmg/2)
		}
		t.HP = game.Clamp(t.HP-dmg, 0, t.MaxHP)
		m.Emit("enemy_attack", targetID, map[string]any{"enemy": e.ID, "damage": dmg, "hp": t.HP})
		if t.Down() {
			m.Emit("player_down", targetID, nil)
		}
	}

	if m.weakestPlayer() == "" {
		m.State.Phase = PhaseDefeat
		m.Emit("defeat", "", map[string]any{"wave": m.State.Wave})
		return
	}
	for _, p := range m.State.Players {
		p.Defending = false
		for s, cd := range p.Cooldowns {
			if cd > 0 {
				p.Cooldowns[s] = cd - 1
			}
		}
	}
	m.State.Round++
	m.resetTurn()
}

// weakestPlayer returns the living player with the lowest HP, earliest seat
// first on ties.
func (m *Match) weakestPlayer() string {
	best := ""
	for _, id := range m.State.Turn.Order {
		p := m.State.Players[id]
		if p.Down() {
			continue
		}
		if best == "" || p.HP < m.State.Players[best].HP {
			best = id
		}
	}
	return best
}

func (m *Match) IsOver() bool {
	return m.State.Phase == PhaseVictory || m.State.Phase == PhaseDefeat
}

func (m *Match) Winner() (string, bool) {
	if m.State.Phase != PhaseVictory {
		return "", false
	}
	return game.TopScorer(m.Scores())
}

func (m *Match) Scores() map[string]int {
	scores := make(map[string]int, len(m.State.Players))
	for id, p := range m.State.Players {
		scores[id] = p.XP
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
