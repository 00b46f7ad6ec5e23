// Package combat holds the counter-relationship tables shared by the
// melee templates.
package combat

import "math"

// Move is a melee move type.
type Move string

const (
	Light Move = "light"
	Heavy Move = "heavy"
	Grab  Move = "grab"
	Block Move = "block"
)

// CounterOf maps a move to the moves it beats. The relation is a directed
// cycle: light > grab > block > heavy > light.
var CounterOf = map[Move][]Move{
	Light: {Grab},
	Grab:  {Block},
	Block: {Heavy},
	Heavy: {Light},
}

// Counters reports whether attack beats the defender's last move.
func Counters(attack, last Move) bool {
	for _, m := range CounterOf[attack] {
		if m == last {
			return true
		}
	}
	return false
}

// CounterFor returns the move that beats target.
func CounterFor(target Move) Move {
	for m, beaten := range CounterOf {
		for _, b := range beaten {
			if b == target {
				return m
			}
		}
	}
	return Light
}

// Zone is an attack or guard height.
type Zone string

const (
	High Zone = "high"
	Mid  Zone = "mid"
	Low  Zone = "low"
)

var zoneCounter = map[Zone]Zone{
	High: Low,
	Low:  Mid,
	Mid:  High,
}

// ZoneCounters reports whether an attack at zone exploits a guard held at guard.
func ZoneCounters(zone, guard Zone) bool {
	return zoneCounter[zone] == guard
}

// ZoneCounterFor returns the attack zone that exploits guard.
func ZoneCounterFor(guard Zone) Zone {
	for z, g := range zoneCounter {
		if g == guard {
			return z
		}
	}
	return Mid
}

// Strike is the outcome of one attack against the counter table.
type Strike struct {
	Damage    int  `json:"damage"`
	Blocked   bool `json:"blocked"`
	Countered bool `json:"countered"`
}

// Resolve applies block reduction, then the counter bonus, to base damage.
// Grabs and moves outside the cycle are never reduced by a block.
func Resolve(base int, attack, defenderLast Move, blockReduction, counterMultiplier float64) Strike {
	dmg := float64(base)
	_, inCycle := CounterOf[attack]
	s := Strike{
		Blocked:   defenderLast == Block && attack != Grab && inCycle,
		Countered: Counters(attack, defenderLast),
	}
	if s.Blocked {
		dmg *= 1 - blockReduction
	}
	if s.Countered {
		dmg *= counterMultiplier
	}
	s.Damage = int(math.Round(dmg))
	return s
}
