// Package catalog wires every game template into a registry.
package catalog

import (
	"moltblox/internal/game"
	"moltblox/internal/game/beatemup"
	"moltblox/internal/game/cardbattler"
	"moltblox/internal/game/fighter"
	"moltblox/internal/game/fps"
	"moltblox/internal/game/graphstrategy"
	"moltblox/internal/game/rhythm"
	"moltblox/internal/game/sidebattler"
	"moltblox/internal/game/sumo"
	"moltblox/internal/game/tagteam"
	"moltblox/internal/game/weaponsduel"
)

// Templates returns one value of every template.
func Templates() []game.Game {
	return []game.Game{
		rhythm.Rhythm{},
		sumo.Sumo{},
		cardbattler.CardBattler{},
		graphstrategy.GraphStrategy{},
		fighter.Fighter{},
		tagteam.TagTeam{},
		weaponsduel.WeaponsDuel{},
		beatemup.BeatEmUp{},
		fps.FPS{},
		sidebattler.SideBattler{},
	}
}

func Register(r *game.Registry) {
	for _, g := range Templates() {
		r.Register(g)
	}
}

// NewRegistry returns a registry holding every template.
func NewRegistry() *game.Registry {
	r := game.NewRegistry()
	Register(r)
	return r
}
