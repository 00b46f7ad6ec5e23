package cardbattler

type CardType string

const (
	TypeAttack   CardType = "attack"
	TypeDefense  CardType = "defense"
	TypeSpell    CardType = "spell"
	TypeCreature CardType = "creature"
)

// Spell effects.
const (
	EffectHeal  = "heal"
	EffectDraw  = "draw"
	EffectDrain = "drain"
)

type Card struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Type     CardType `json:"type"`
	ManaCost int      `json:"manaCost"`
	Value    int      `json:"value"`
	Effect   string   `json:"effect,omitempty"`
	Power    int      `json:"power,omitempty"`
}

// DefaultDeck is the card pool used when no deck is configured. Each
// player gets a shuffled copy.
var DefaultDeck = []Card{
	{ID: "quick-jab", Name: "Quick Jab", Type: TypeAttack, ManaCost: 1, Value: 1},
	{ID: "spark", Name: "Spark", Type: TypeAttack, ManaCost: 1, Value: 2},
	{ID: "strike", Name: "Strike", Type: TypeAttack, ManaCost: 2, Value: 3},
	{ID: "fireball", Name: "Fireball", Type: TypeAttack, ManaCost: 3, Value: 5},
	{ID: "lightning", Name: "Lightning", Type: TypeAttack, ManaCost: 5, Value: 8},
	{ID: "meteor", Name: "Meteor", Type: TypeAttack, ManaCost: 7, Value: 12},
	{ID: "shield", Name: "Shield", Type: TypeDefense, ManaCost: 1, Value: 3},
	{ID: "ward", Name: "Ward", Type: TypeDefense, ManaCost: 2, Value: 4},
	{ID: "barrier", Name: "Barrier", Type: TypeDefense, ManaCost: 3, Value: 6},
	{ID: "fortress", Name: "Fortress", Type: TypeDefense, ManaCost: 5, Value: 10},
	{ID: "mend", Name: "Mend", Type: TypeSpell, ManaCost: 2, Value: 5, Effect: EffectHeal},
	{ID: "greater-heal", Name: "Greater Heal", Type: TypeSpell, ManaCost: 4, Value: 10, Effect: EffectHeal},
	{ID: "insight", Name: "Insight", Type: TypeSpell, ManaCost: 2, Value: 2, Effect: EffectDraw},
	{ID: "drain", Name: "Drain", Type: TypeSpell, ManaCost: 3, Value: 3, Effect: EffectDrain},
	{ID: "siphon", Name: "Siphon", Type: TypeSpell, ManaCost: 5, Value: 6, Effect: EffectDrain},
	{ID: "imp", Name: "Imp", Type: TypeCreature, ManaCost: 1, Power: 1},
	{ID: "wolf", Name: "Wolf", Type: TypeCreature, ManaCost: 2, Power: 2},
	{ID: "knight", Name: "Knight", Type: TypeCreature, ManaCost: 3, Power: 3},
	{ID: "golem", Name: "Golem", Type: TypeCreature, ManaCost: 5, Power: 4},
	{ID: "dragon", Name: "Dragon", Type: TypeCreature, ManaCost: 7, Power: 6},
}

// MaxCardValue caps a card's value and power.
const MaxCardValue = 50

// usable drops cards the engine cannot resolve and caps the rest at
// MaxCardValue.
func usable(cards []Card) []Card {
	out := make([]Card, 0, len(cards))
	for _, c := range cards {
		if c.ManaCost < 0 || c.Value < 0 || c.Power < 0 {
			continue
		}
		c.Value, c.Power = min(c.Value, MaxCardValue), min(c.Power, MaxCardValue)
		switch c.Type {
		case TypeAttack, TypeDefense:
		case TypeCreature:
			if c.Power == 0 {
				c.Power = max(c.Value, 1)
			}
		case TypeSpell:
			if c.Effect != EffectHeal && c.Effect != EffectDraw && c.Effect != EffectDrain {
				continue
			}
		default:
			continue
		}
		out = append(out, c)
	}
	return out
}
