// Package cardbattler implements a two-player mana-curve card game.
package cardbattler

import (
	"encoding/json"
	"errors"
	"fmt"

	"moltblox/internal/game"
)

type CardBattler struct{}

func (CardBattler) Info() game.GameInfo {
	return game.GameInfo{
		Name:        "cardbattler",
		Description: "Spend growing mana on attacks, armor, spells and creatures.",
		MinPlayers:  2,
		MaxPlayers:  2,
		SupportsCPU: true,
	}
}

type Config struct {
	StartingHP   int    `json:"startingHp"`
	StartingMana int    `json:"startingMana"`
	ManaCap      int    `json:"manaCap"`
	ManaGrowth   int    `json:"manaGrowth"`
	StartingHand int    `json:"startingHand"`
	HandLimit    int    `json:"handLimit"`
	FieldLimit   int    `json:"fieldLimit"`
	MaxArmor     int    `json:"maxArmor"`
	MaxRounds    int    `json:"maxRounds"`
	Deck         []Card `json:"deck,omitempty"`
}

func (c *Config) applyDefaults() {
	game.Positive(&c.StartingHP, 30)
	game.Positive(&c.StartingMana, 1)
	game.Positive(&c.ManaCap, 10)
	game.Positive(&c.ManaGrowth, 1)
	game.Positive(&c.StartingHand, 3)
	game.Positive(&c.HandLimit, 7)
	game.Positive(&c.FieldLimit, 5)
	game.Positive(&c.MaxArmor, 30)
	game.Positive(&c.MaxRounds, 30)
	c.StartingMana = min(c.StartingMana, c.ManaCap)
	c.StartingHand = min(c.StartingHand, c.HandLimit)
	c.Deck = usable(c.Deck)
	if len(c.Deck) == 0 {
		c.Deck = append([]Card(nil), DefaultDeck...)
	}
}

// Creature is a card on the field.
type Creature struct {
	Card  Card `json:"card"`
	Power int  `json:"power"`
}

type Player struct {
	HP      int        `json:"hp"`
	MaxHP   int        `json:"maxHp"`
	Armor   int        `json:"armor"`
	Mana    int        `json:"mana"`
	MaxMana int        `json:"maxMana"`
	Deck    []Card     `json:"deck"`
	Hand    []Card     `json:"hand"`
	Field   []Creature `json:"field"`
	Fatigue int        `json:"fatigue"`
}

type State struct {
	Players  map[string]*Player `json:"players"`
	Turn     game.TurnOrder     `json:"turn"`
	Round    int                `json:"round"`
	GameOver bool               `json:"gameOver"`
}

type Match struct {
	game.Base
	Config Config `json:"config"`
	State  State  `json:"state"`
}

var (
	// ErrNotEnoughMana's text is part of the client contract.
	ErrNotEnoughMana = errors.New("Not enough mana")
	ErrFieldFull     = errors.New("field is full")
	ErrBadHandIndex  = errors.New("invalid hand index")
)

func (cb CardBattler) NewMatch(config game.MatchConfig) (game.Match, error) {
	withCPU, err := game.CheckPlayers(cb.Info(), config.PlayerIDs)
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
	m.State = State{Players: make(map[string]*Player, len(ids)), Turn: game.NewTurnOrder(ids), Round: 1}
	for _, id := range ids {
		deck := append([]Card(nil), cfg.Deck...)
		m.RNG.Shuffle(len(deck), func(i, j int) { deck[i], deck[j] = deck[j], deck[i] })
		m.State.Players[id] = &Player{
			HP:      cfg.StartingHP,
			MaxHP:   cfg.StartingHP,
			Mana:    cfg.StartingMana,
			MaxMana: cfg.StartingMana,
			Deck:    deck,
			Hand:    []Card{},
			Field:   []Creature{},
		}
	}
	for _, id := range ids {
		for i := 0; i < cfg.StartingHand; i++ {
			m.draw(id)
		}
	}
	m.DrainEvents()
	return m, nil
}

func (CardBattler) Restore(data []byte) (game.Match, error) {
	m := &Match{}
	if err := m.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return m, nil
}

type playPayload struct {
	HandIndex int `json:"handIndex" validate:"min=0"`
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
	switch action.Type {
	case "play_card":
		var p playPayload
		if err := game.DecodePayload(action, &p); err != nil {
			return err
		}
		return m.play(playerID, p.HandIndex)
	case "end_turn":
		m.endTurn(playerID)
		return nil
	default:
		return game.UnknownAction(action.Type)
	}
}

func (m *Match) play(playerID string, index int) error {
	me := m.State.Players[playerID]
	if index >= len(me.Hand) {
		return fmt.Errorf("%w: %d", ErrBadHandIndex, index)
	}
	card := me.Hand[index]
	if me.Mana < card.ManaCost {
		return ErrNotEnoughMana
	}
	if card.Type == TypeCreature && len(me.Field) >= m.Config.FieldLimit {
		return ErrFieldFull
	}

	me.Mana -= card.ManaCost
	me.Hand = append(me.Hand[:index:index], me.Hand[index+1:]...)
	m.Emit("card_played", playerID, map[string]any{"card": card.ID, "type": string(card.Type), "manaCost": card.ManaCost})

	oppID := m.Opponent(playerID)
	switch card.Type {
	case TypeAttack:
		m.damage(oppID, card.Value, card.ID)
	case TypeDefense:
		me.Armor = game.Clamp(me.Armor+card.Value, 0, m.Config.MaxArmor)
		m.Emit("armor_gained", playerID, map[string]any{"armor": me.Armor})
	case TypeSpell:
		switch card.Effect {
		case EffectHeal:
			m.heal(playerID, card.Value)
		case EffectDraw:
			for i := 0; i < card.Value; i++ {
				m.draw(playerID)
			}
		case EffectDrain:
			m.damage(oppID, card.Value, card.ID)
			m.heal(playerID, card.Value)
		}
	case TypeCreature:
		me.Field = append(me.Field, Creature{Card: card, Power: card.Power})
		m.Emit("creature_summoned", playerID, map[string]any{"card": card.ID, "power": card.Power})
	}
	m.checkKO()
	return nil
}

// damage applies amount to the target, armor first.
func (m *Match) damage(targetID string, amount int, source string) {
	t := m.State.Players[targetID]
	absorbed := min(t.Armor, amount)
	t.Armor -= absorbed
	t.HP = game.Clamp(t.HP-(amount-absorbed), 0, t.MaxHP)
	m.Emit("damage", targetID, map[string]any{
		"source":   source,
		"amount":   amount,
		"absorbed": absorbed,
		"hp":       t.HP,
	})
}

func (m *Match) heal(playerID string, amount int) {
	p := m.State.Players[playerID]
	p.HP = game.Clamp(p.HP+amount, 0, p.MaxHP)
	m.Emit("heal", playerID, map[string]any{"hp": p.HP})
}

// draw moves the top card to the hand. An empty deck deals escalating
// fatigue damage and a full hand burns the card.
func (m *Match) draw(playerID string) {
	p := m.State.Players[playerID]
	if len(p.Deck) == 0 {
		p.Fatigue++
		p.HP = game.Clamp(p.HP-p.Fatigue, 0, p.MaxHP)
		m.Emit("fatigue", playerID, map[string]any{"damage": p.Fatigue, "hp": p.HP})
		return
	}
	card := p.Deck[0]
	p.Deck = p.Deck[1:]
	if len(p.Hand) >= m.Config.HandLimit {
		m.Emit("card_burned", playerID, map[string]any{"card": card.ID})
		return
	}
	p.Hand = append(p.Hand, card)
	m.Emit("card_drawn", playerID, map[string]any{"handSize": len(p.Hand)})
}

func (m *Match) endTurn(playerID string) {
	oppID := m.Opponent(playerID)
	for _, c := range m.State.Players[playerID].Field {
		m.damage(oppID, c.Power, c.Card.ID)
	}
	if m.checkKO() {
		return
	}

	if m.State.Turn.Advance() {
		m.State.Round++
		for _, id := range m.PlayerIDs() {
			p := m.State.Players[id]
			p.MaxMana = min(m.Config.ManaCap, p.MaxMana+m.Config.ManaGrowth)
		}
		if m.State.Round > m.Config.MaxRounds {
			m.finish("round_limit")
			return
		}
	}
	next := m.State.Turn.Current()
	p := m.State.Players[next]
	p.Mana = p.MaxMana
	m.draw(next)
	m.Emit("turn_start", next, map[string]any{"round": m.State.Round, "mana": p.Mana})
	m.checkKO()
}

// checkKO ends the game once any player is at zero HP.
func (m *Match) checkKO() bool {
	for _, p := range m.State.Players {
		if p.HP == 0 {
			m.finish("knockout")
			return true
		}
	}
	return false
}

func (m *Match) finish(reason string) {
	m.State.GameOver = true
	winner, _ := m.Winner()
	m.Emit("game_over", winner, map[string]any{"reason": reason, "winner": winner})
}

// NextCPUAction plays the most expensive affordable card, else ends the turn.
func (m *Match) NextCPUAction() (string, game.Action, bool) {
	if !m.HasCPU() || m.State.GameOver || !m.State.Turn.Is(game.CPUPlayerID) {
		return "", game.Action{}, false
	}
	me := m.State.Players[game.CPUPlayerID]
	best := -1
	for i, c := range me.Hand {
		if c.ManaCost > me.Mana {
			continue
		}
		if c.Type == TypeCreature && len(me.Field) >= m.Config.FieldLimit {
			continue
		}
		if best < 0 || c.ManaCost > me.Hand[best].ManaCost {
			best = i
		}
	}
	if best < 0 {
		return game.CPUPlayerID, game.Action{Type: "end_turn"}, true
	}
	return game.CPUPlayerID, game.NewAction("play_card", playPayload{HandIndex: best}), true
}

func (m *Match) IsOver() bool {
	return m.State.GameOver
}

func (m *Match) Winner() (string, bool) {
	if !m.State.GameOver {
		return "", false
	}
	return game.TopScorer(m.Scores())
}

func (m *Match) Scores() map[string]int {
	scores := make(map[string]int, len(m.State.Players))
	for id, p := range m.State.Players {
		scores[id] = p.HP
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
