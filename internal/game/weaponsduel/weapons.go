package weaponsduel

type Weapon struct {
	Name        string `json:"name"`
	Damage      int    `json:"damage"`
	Reach       int    `json:"reach"`
	Speed       int    `json:"speed"`
	StaminaCost int    `json:"staminaCost"`
}

// DefaultWeapons is the pool used when none is configured.
var DefaultWeapons = []Weapon{
	{Name: "sword", Damage: 12, Reach: 2, Speed: 3, StaminaCost: 10},
	{Name: "spear", Damage: 10, Reach: 3, Speed: 2, StaminaCost: 12},
	{Name: "axe", Damage: 16, Reach: 1, Speed: 1, StaminaCost: 15},
	{Name: "dagger", Damage: 7, Reach: 1, Speed: 4, StaminaCost: 6},
}

func validWeapons(pool []Weapon) []Weapon {
	seen := make(map[string]bool, len(pool))
	out := make([]Weapon, 0, len(pool))
	for _, w := range pool {
		if w.Name == "" || seen[w.Name] || w.Damage <= 0 || w.Reach <= 0 || w.StaminaCost < 0 {
			continue
		}
		seen[w.Name] = true
		out = append(out, w)
	}
	return out
}
