// Package sidebattler implements a party-versus-enemies side-view battler.
// Heroes and enemies share one speed-ordered turn list; enemy entries are
// played by the cpu seat.
package sidebattler

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"

	"moltblox/internal/game"
)

type SideBattler struct{}

func (SideBattler) Info() game.GameInfo {
	return game.GameInfo{
		Name:        "sidebattler",
		Description: "Lead a warrior, mage and healer through stages of enemies.",
		MinPlayers:  1,
		MaxPlayers:  3,
		SupportsCPU: true,
	}
}

type Config struct {
	Classes []Class       `json:"classes,omitempty"`
	Stages  [][]EnemySpec `json:"stages,omitempty"`
}

func (c *Config) applyDefaults() {
	stages := make([][]EnemySpec, 0, len(c.Stages))
	for _, s := range c.Stages {
		var valid []EnemySpec
		for _, e := range s {
			if e.HP > 0 {
				game.Default(&e.Name, "enemy")
				e.Attack, e.Defense, e.Speed = max(e.Attack, 0), max(e.Defense, 0), max(e.Speed, 0)
				valid = append(valid, e)
			}
		}
		if len(valid) > 0 {
			stages = append(stages, valid)
		}
	}
	if len(stages) == 0 {
		stages = defaultStages()
	}
	c.Stages = stages
}

func (c Config) classFor(seat int) Class {
	if seat < len(c.Classes) {
		if _, ok := classes[c.Classes[seat]]; ok {
			return c.Classes[seat]
		}
	}
	return joinOrder[seat%len(joinOrder)]
}

type Phase string

const (
	PhaseBattle     Phase = "battle"
	PhaseStageClear Phase = "stage_clear"
	PhaseVictory    Phase = "victory"
	PhaseDefeat     Phase = "defeat"
)

type Hero struct {
	Class       Class `json:"class"`
	HP          int   `json:"hp"`
	MaxHP       int   `json:"maxHp"`
	MP          int   `json:"mp"`
	MaxMP       int   `json:"maxMp"`
	Attack      int   `json:"attack"`
	Defense     int   `json:"defense"`
	Speed       int   `json:"speed"`
	Defending   bool  `json:"defending"`
	DamageDealt int   `json:"damageDealt"`
}

type Enemy struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	HP      int    `json:"hp"`
	MaxHP   int    `json:"maxHp"`
	Attack  int    `json:"attack"`
	Defense int    `json:"defense"`
	Speed   int    `json:"speed"`
}

type EntryType string

const (
	EntryHero  EntryType = "hero"
	EntryEnemy EntryType = "enemy"
)

type TurnEntry struct {
	ID   string    `json:"id"`
	Type EntryType `json:"type"`
}

type State struct {
	Heroes           map[string]*Hero `json:"heroes"`
	Enemies          []*Enemy         `json:"enemies"`
	Stage            int              `json:"stage"`
	Phase            Phase            `json:"phase"`
	TurnOrder        []TurnEntry      `json:"turnOrder"`
	CurrentTurnIndex int              `json:"currentTurnIndex"`
	Round            int              `json:"round"`
}

type Match struct {
	game.Base
	Config Config `json:"config"`
	State  State  `json:"state"`
}

var (
	ErrBadTarget = errors.New("invalid target")
	ErrNoMP      = errors.New("not enough mp")
)

func (sb SideBattler) NewMatch(config game.MatchConfig) (game.Match, error) {
	if _, err := game.CheckPlayers(sb.Info(), config.PlayerIDs); err != nil {
		return nil, err
	}
	var cfg Config
	if err := game.DecodeOptions(config.Options, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	// The cpu seat always plays the enemies.
	m := &Match{Base: game.NewBase(config.PlayerIDs, true, config.Seed), Config: cfg}
	m.State.Heroes = make(map[string]*Hero, len(config.PlayerIDs))
	for i, id := range config.PlayerIDs {
		class := cfg.classFor(i)
		s := classes[class]
		m.State.Heroes[id] = &Hero{
			Class:   class,
			HP:      s.HP,
			MaxHP:   s.HP,
			MP:      s.MP,
			MaxMP:   s.MP,
			Attack:  s.Attack,
			Defense: s.Defense,
			Speed:   s.Speed,
		}
	}
	m.startStage(1)
	m.DrainEvents()
	return m, nil
}

func (SideBattler) Restore(data []byte) (game.Match, error) {
	m := &Match{}
	if err := m.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Match) heroIDs() []string {
	ids := make([]string, 0, len(m.State.Heroes))
	for _, p := range m.Roster {
		if _, ok := m.State.Heroes[p.ID]; ok {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

func (m *Match) startStage(stage int) {
	m.State.Stage = stage
	m.State.Enemies = nil
	for i, spec := range m.Config.Stages[stage-1] {
		m.State.Enemies = append(m.State.Enemies, &Enemy{
			ID:      fmt.Sprintf("s%d-e%d", stage, i+1),
			Name:    spec.Name,
			HP:      spec.HP,
			MaxHP:   spec.HP,
			Attack:  spec.Attack,
			Defense: spec.Defense,
			Speed:   spec.Speed,
		})
	}

	order := make([]TurnEntry, 0, len(m.State.Heroes)+len(m.State.Enemies))
	speed := make(map[string]int, cap(order))
	for _, id := range m.heroIDs() {
		h := m.State.Heroes[id]
		h.Defending = false
		order = append(order, TurnEntry{ID: id, Type: EntryHero})
		speed[id] = h.Speed
	}
	for _, e := range m.State.Enemies {
		order = append(order, TurnEntry{ID: e.ID, Type: EntryEnemy})
		speed[e.ID] = e.Speed
	}
	// Stable sort keeps heroes ahead of enemies on equal speed.
	sort.SliceStable(order, func(i, j int) bool { return speed[order[i].ID] > speed[order[j].ID] })

	m.State.TurnOrder = order
	m.State.CurrentTurnIndex = 0
	m.State.Phase = PhaseBattle
	if !m.alive(order[0]) {
		m.advance()
	}
	m.Emit("stage_start", "", map[string]any{"stage": stage, "turnOrder": order})
}

func (m *Match) alive(e TurnEntry) bool {
	if e.Type == EntryHero {
		return m.State.Heroes[e.ID].HP > 0
	}
	enemy := m.enemy(e.ID)
	return enemy != nil && enemy.HP > 0
}

func (m *Match) enemy(id string) *Enemy {
	for _, e := range m.State.Enemies {
		if e.ID == id {
			return e
		}
	}
	return nil
}

func (m *Match) current() TurnEntry {
	return m.State.TurnOrder[m.State.CurrentTurnIndex]
}

type targetPayload struct {
	Target string `json:"target" validate:"required"`
}

type skillPayload struct {
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
	if action.Type == "next_stage" {
		if m.State.Phase != PhaseStageClear {
			return fmt.Errorf("%w: stage in progress", game.ErrWrongPhase)
		}
		if m.IsCPU(playerID) {
			return game.ErrNotYourTurn
		}
		m.nextStage()
		return nil
	}
	if m.State.Phase != PhaseBattle {
		return fmt.Errorf("%w: advance to the next stage", game.ErrWrongPhase)
	}

	entry := m.current()
	waiting := entry.ID
	if entry.Type == EntryEnemy {
		waiting = game.CPUPlayerID
	}
	if playerID != waiting {
		return fmt.Errorf("%w: waiting for %s", game.ErrNotYourTurn, waiting)
	}

	var err error
	if entry.Type == EntryEnemy {
		err = m.enemyAct(m.enemy(entry.ID), action)
	} else {
		err = m.heroAct(playerID, action)
	}
	if err != nil {
		return err
	}
	m.resolve()
	return nil
}

func (m *Match) heroAct(id string, action game.Action) error {
	h := m.State.Heroes[id]
	switch action.Type {
	case "attack":
		var p targetPayload
		if err := game.DecodePayload(action, &p); err != nil {
			return err
		}
		e := m.enemy(p.Target)
		if e == nil || e.HP == 0 {
			return fmt.Errorf("%w: %s", ErrBadTarget, p.Target)
		}
		m.strike(id, e, h.Attack, "attack")
	case "skill":
		var p skillPayload
		if err := game.DecodePayload(action, &p); err != nil {
			return err
		}
		return m.skill(id, p.Target)
	case "defend":
		h.Defending = true
		m.Emit("defend", id, nil)
	default:
		return game.UnknownAction(action.Type)
	}
	return nil
}

func (m *Match) skill(id, target string) error {
	h := m.State.Heroes[id]
	s := classes[h.Class]

	// Validate the target before spending MP.
	var enemy *Enemy
	var ally *Hero
	switch h.Class {
	case Mage:
		if enemy = m.enemy(target); enemy == nil || enemy.HP == 0 {
			return fmt.Errorf("%w: %s", ErrBadTarget, target)
		}
	case Healer:
		if target == "" {
			target = id
		}
		if ally = m.State.Heroes[target]; ally == nil || ally.HP == 0 {
			return fmt.Errorf("%w: %s", ErrBadTarget, target)
		}
	}
	if h.MP < s.SkillCost {
		return fmt.Errorf("%w: %s costs %d", ErrNoMP, s.Skill, s.SkillCost)
	}
	h.MP -= s.SkillCost

	switch h.Class {
	case Warrior:
		power := int(math.Round(float64(h.Attack) * 0.7))
		for _, e := range m.State.Enemies {
			if e.HP > 0 {
				m.strike(id, e, power, s.Skill)
			}
		}
	case Mage:
		m.strike(id, enemy, int(math.Round(float64(h.Attack)*2.2)), s.Skill)
	case Healer:
		ally.HP = game.Clamp(ally.HP+30, 0, ally.MaxHP)
		m.Emit("heal", id, map[string]any{"target": target, "hp": ally.HP})
	}
	return nil
}

func (m *Match) strike(id string, e *Enemy, power int, source string) {
	dmg := max(1, power-e.Defense)
	before := e.HP
	e.HP = game.Clamp(e.HP-dmg, 0, e.MaxHP)
	m.State.Heroes[id].DamageDealt += before - e.HP
	m.Emit("hit", id, map[string]any{"target": e.ID, "damage": dmg, "hp": e.HP, "source": source})
	if e.HP == 0 {
		m.Emit("enemy_defeated", id, map[string]any{"target": e.ID})
	}
}

func (m *Match) enemyAct(e *Enemy, action game.Action) error {
	if action.Type != "enemy_act" {
		return game.UnknownAction(action.Type)
	}
	var p targetPayload
	if err := game.DecodePayload(action, &p); err != nil {
		return err
	}
	h := m.State.Heroes[p.Target]
	if h == nil || h.HP == 0 {
		return fmt.Errorf("%w: %s", ErrBadTarget, p.Target)
	}
	dmg := max(1, e.Attack-h.Defense)
	if h.Defending {
		dmg = max(1, dmg/2)
	}
	h.HP = game.Clamp(h.HP-dmg, 0, h.MaxHP)
	m.Emit("enemy_attack", p.Target, map[string]any{"enemy": e.ID, "damage": dmg, "hp": h.HP})
	if h.HP == 0 {
		m.Emit("hero_down", p.Target, nil)
	}
	return nil
}

// resolve checks for a cleared stage or a wiped party, then hands the turn
// to the next living entry.
func (m *Match) resolve() {
	enemiesLeft := false
	for _, e := range m.State.Enemies {
		if e.HP > 0 {
			enemiesLeft = true
		}
	}
	if !enemiesLeft {
		if m.State.Stage >= len(m.Config.Stages) {
			m.State.Phase = PhaseVictory
			m.Emit("victory", "", map[string]any{"scores": m.Scores()})
		} else {
			m.State.Phase = PhaseStageClear
			m.Emit("stage_clear", "", map[string]any{"stage": m.State.Stage})
		}
		return
	}
	if m.weakestHero() == "" {
		m.State.Phase = PhaseDefeat
		m.Emit("defeat", "", map[string]any{"stage": m.State.Stage})
		return
	}
	m.advance()
}

func (m *Match) advance() {
	n := len(m.State.TurnOrder)
	for range n {
		m.State.CurrentTurnIndex++
		if m.State.CurrentTurnIndex == n {
			m.State.CurrentTurnIndex = 0
			m.State.Round++
		}
		entry := m.current()
		if !m.alive(entry) {
			continue
		}
		if entry.Type == EntryHero {
			m.State.Heroes[entry.ID].Defending = false
		}
		return
	}
}

// nextStage revives fallen heroes at a quarter of their HP and refills MP.
func (m *Match) nextStage() {
	for _, h := range m.State.Heroes {
		if h.HP == 0 {
			h.HP = max(1, h.MaxHP/4)
		}
		h.MP = h.MaxMP
	}
	m.startStage(m.State.Stage + 1)
}

func (m *Match) weakestHero() string {
	best := ""
	for _, id := range m.heroIDs() {
		h := m.State.Heroes[id]
		if h.HP == 0 {
			continue
		}
		if best == "" || h.HP < m.State.Heroes[best].HP {
			best = id
		}
	}
	return best
}

// NextCPUAction plays the current enemy entry against the weakest hero.
func (m *Match) NextCPUAction() (string, game.Action, bool) {
	if m.State.Phase != PhaseBattle || m.current().Type != EntryEnemy {
		return "", game.Action{}, false
	}
	target := m.weakestHero()
	if target == "" {
		return "", game.Action{}, false
	}
	return game.CPUPlayerID, game.NewAction("enemy_act", targetPayload{Target: target}), true
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

// Scores covers heroes only; the cpu seat never scores.
func (m *Match) Scores() map[string]int {
	scores := make(map[string]int, len(m.State.Heroes))
	for id, h := range m.State.Heroes {
		scores[id] = h.DamageDealt
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
