package sidebattler

type Class string

const (
	Warrior Class = "warrior"
	Mage    Class = "mage"
	Healer  Class = "healer"
)

// joinOrder assigns classes to seats when no override is given.
var joinOrder = []Class{Warrior, Mage, Healer}

type classStats struct {
	HP, MP, Attack, Defense, Speed int
	Skill                          string
	SkillCost                      int
}

var classes = map[Class]classStats{
	Warrior: {HP: 120, MP: 20, Attack: 14, Defense: 6, Speed: 4, Skill: "cleave", SkillCost: 8},
	Mage:    {HP: 80, MP: 40, Attack: 8, Defense: 2, Speed: 6, Skill: "fireball", SkillCost: 12},
	Healer:  {HP: 90, MP: 40, Attack: 7, Defense: 3, Speed: 5, Skill: "heal", SkillCost: 10},
}

type EnemySpec struct {
	Name    string `json:"name"`
	HP      int    `json:"hp"`
	Attack  int    `json:"attack"`
	Defense int    `json:"defense"`
	Speed   int    `json:"speed"`
}

func defaultStages() [][]EnemySpec {
	goblin := EnemySpec{Name: "goblin", HP: 40, Attack: 10, Defense: 2, Speed: 3}
	return [][]EnemySpec{
		{goblin, goblin},
		{goblin, goblin, {Name: "orc", HP: 90, Attack: 16, Defense: 4, Speed: 2}},
	}
}
