package game

import (
	"fmt"
	"sort"
)

// CheckPlayers validates the human seat list for a template and reports
// whether a cpu seat should be added.
func CheckPlayers(info GameInfo, ids []string) (withCPU bool, err error) {
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" {
			return false, fmt.Errorf("empty player id")
		}
		if id == CPUPlayerID {
			return false, fmt.Errorf("player id %q is reserved", CPUPlayerID)
		}
		if seen[id] {
			return false, fmt.Errorf("duplicate player %s", id)
		}
		seen[id] = true
	}
	if info.SupportsCPU && len(ids) == 1 {
		return true, nil
	}
	if len(ids) < info.MinPlayers || len(ids) > info.MaxPlayers {
		return false, fmt.Errorf("%s needs %d-%d players, got %d", info.Name, info.MinPlayers, info.MaxPlayers, len(ids))
	}
	return false, nil
}

// Default sets *v to def when *v holds the zero value.
func Default[T comparable](v *T, def T) {
	var zero T
	if *v == zero {
		*v = def
	}
}

// Positive sets *v to def unless it is greater than zero. Capacities and
// starting pools use it so negative options fall back like missing ones.
func Positive[T int | float64](v *T, def T) {
	if *v <= 0 {
		*v = def
	}
}

func Clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func ClampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func Abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// TopScorer returns the single highest scorer, or false on a tie.
func TopScorer(scores map[string]int) (string, bool) {
	best, bestID, tied := 0, "", false
	for id, s := range scores {
		switch {
		case bestID == "" || s > best:
			best, bestID, tied = s, id, false
		case s == best:
			tied = true
		}
	}
	if bestID == "" || tied {
		return "", false
	}
	return bestID, true
}

// Results ranks players by score, the winner first. Equal scores share a rank.
func Results(m Match) []PlayerResult {
	scores := m.Scores()
	winner, hasWinner := m.Winner()
	results := make([]PlayerResult, 0, len(scores))
	for _, p := range m.Players() {
		results = append(results, PlayerResult{PlayerID: p.ID, Score: scores[p.ID]})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if hasWinner {
			if results[i].PlayerID == winner {
				return true
			}
			if results[j].PlayerID == winner {
				return false
			}
		}
		return results[i].Score > results[j].Score
	})
	for i := range results {
		switch {
		case i == 0:
			results[i].Rank = 1
		case results[i].Score == results[i-1].Score && !(hasWinner && i == 1):
			results[i].Rank = results[i-1].Rank
		default:
			results[i].Rank = i + 1
		}
	}
	return results
}
