package beatemup

import "math"

type Growth string

const (
	GrowthLinear      Growth = "linear"
	GrowthExponential Growth = "exponential"
	GrowthPlateau     Growth = "plateau"
)

type Skill string

const (
	PowerStrike Skill = "power_strike"
	IronSkin    Skill = "iron_skin"
	Whirlwind   Skill = "whirlwind"
	SecondWind  Skill = "second_wind"
	Berserker   Skill = "berserker"
)

type skillDef struct {
	Level    int
	Active   bool
	Cooldown int
}

var skills = map[Skill]skillDef{
	PowerStrike: {Level: 2, Active: true, Cooldown: 2},
	IronSkin:    {Level: 2},
	Whirlwind:   {Level: 3, Active: true, Cooldown: 3},
	SecondWind:  {Level: 4, Active: true, Cooldown: 4},
	Berserker:   {Level: 5},
}

// xpForLevel is the total XP needed to advance past level.
func xpForLevel(base, level int) int {
	return base * level * (level + 1) / 2
}

// gainXP adds xp and resolves every level-up it pays for.
func (m *Match) gainXP(playerID string, xp int) {
	p := m.State.Players[playerID]
	p.XP += xp
	for p.Level < m.Config.MaxLevel && p.XP >= xpForLevel(m.Config.XPBase, p.Level) {
		p.Level++
		p.SkillPoints++
		m.grow(p)
		m.Emit("level_up", playerID, map[string]any{
			"level":       p.Level,
			"skillPoints": p.SkillPoints,
			"maxHp":       p.MaxHP,
			"attack":      p.Attack,
			"defense":     p.Defense,
		})
	}
}

func (m *Match) grow(p *Player) {
	hp, atk, def := 10, 2, 1
	switch m.Config.Growth {
	case GrowthExponential:
		hp = int(math.Round(float64(p.MaxHP) * 0.1))
		atk = max(1, int(math.Round(float64(p.Attack)*0.1)))
	case GrowthPlateau:
		if p.Level <= m.Config.PlateauLevel {
			hp, atk, def = 15, 3, 2
		} else {
			hp, atk, def = 5, 1, 0
		}
	}
	p.MaxHP += hp
	p.HP += hp
	p.Attack += atk
	p.Defense += def
}

func (p *Player) has(s Skill) bool {
	for _, u := range p.Skills {
		if u == s {
			return true
		}
	}
	return false
}

func (p *Player) attackPower() int {
	if p.has(Berserker) && p.HP*2 < p.MaxHP {
		return int(math.Round(float64(p.Attack) * 1.25))
	}
	return p.Attack
}

func (p *Player) defense() int {
	if p.has(IronSkin) {
		return p.Defense + 3
	}
	return p.Defense
}
