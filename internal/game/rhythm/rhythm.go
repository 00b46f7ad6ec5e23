// Package rhythm implements a shared-chart rhythm game graded by timing
// windows against a caller-driven beat clock.
package rhythm

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"moltblox/internal/game"
)

// Rhythm implements game.Game.
type Rhythm struct{}

func (Rhythm) Info() game.GameInfo {
	return game.GameInfo{
		Name:        "rhythm",
		Description: "Hit notes on the beat; closer hits score more and build combo multipliers.",
		MinPlayers:  1,
		MaxPlayers:  4,
	}
}

// Windows are timing tolerances in beats.
type Windows struct {
	Perfect float64 `json:"perfect"`
	Good    float64 `json:"good"`
	Ok      float64 `json:"ok"`
}

// NoteSpec places a note on the chart.
type NoteSpec struct {
	Beat float64 `json:"beat"`
	Lane int     `json:"lane"`
}

// Config holds the match options.
type Config struct {
	BPM             float64    `json:"bpm"`
	SongLengthBeats float64    `json:"songLengthBeats"`
	Lanes           int        `json:"lanes"`
	Difficulty      string     `json:"difficulty"`
	NoteDensity     float64    `json:"noteDensity"` // notes per beat when generating
	Windows         Windows    `json:"windows"`
	MaxMultiplier   int        `json:"maxMultiplier"`
	ComboStep       int        `json:"comboStep"`
	Notes           []NoteSpec `json:"notes,omitempty"`
}

var speedMultiplier = map[string]float64{
	"easy":   1.5,
	"normal": 1.0,
	"hard":   0.75,
}

func (c *Config) applyDefaults() {
	game.Positive(&c.BPM, 120)
	game.Positive(&c.SongLengthBeats, 32)
	game.Positive(&c.Lanes, 4)
	game.Positive(&c.NoteDensity, 0.5)
	game.Positive(&c.Windows.Perfect, 0.1)
	game.Positive(&c.Windows.Good, 0.25)
	game.Positive(&c.Windows.Ok, 0.5)
	game.Positive(&c.MaxMultiplier, 4)
	game.Positive(&c.ComboStep, 10)
	if _, ok := speedMultiplier[c.Difficulty]; !ok {
		c.Difficulty = "normal"
	}
}

// windows returns the tolerances scaled for the difficulty.
func (c Config) windows() Windows {
	s := speedMultiplier[c.Difficulty]
	return Windows{Perfect: c.Windows.Perfect * s, Good: c.Windows.Good * s, Ok: c.Windows.Ok * s}
}

type Rating string

const (
	RatingPerfect Rating = "perfect"
	RatingGood    Rating = "good"
	RatingOk      Rating = "ok"
)

var ratingPoints = map[Rating]int{
	RatingPerfect: 300,
	RatingGood:    100,
	RatingOk:      50,
}

type NoteStatus string

const (
	NotePending NoteStatus = "pending"
	NoteHit     NoteStatus = "hit"
	NoteMissed  NoteStatus = "missed"
)

// Note is one scheduled event on the chart.
type Note struct {
	ID     int        `json:"id"`
	Beat   float64    `json:"beatTime"`
	Lane   int        `json:"lane"`
	Status NoteStatus `json:"status"`
	Rating Rating     `json:"rating,omitempty"`
	HitBy  string     `json:"hitBy,omitempty"`
}

// PlayerStats is one player's scoring line.
type PlayerStats struct {
	Score      int `json:"score"`
	Combo      int `json:"combo"`
	MaxCombo   int `json:"maxCombo"`
	Multiplier int `json:"multiplier"`
	Perfect    int `json:"perfect"`
	Good       int `json:"good"`
	Ok         int `json:"ok"`
	Missed     int `json:"missed"`
}

// State is the full match state.
type State struct {
	CurrentBeat  float64                 `json:"currentBeat"`
	Notes        []Note                  `json:"notes"`
	Players      map[string]*PlayerStats `json:"players"`
	SongComplete bool                    `json:"songComplete"`
}

// Match implements game.Match for the rhythm template.
type Match struct {
	game.Base
	Config Config `json:"config"`
	State  State  `json:"state"`
}

func (r Rhythm) NewMatch(config game.MatchConfig) (game.Match, error) {
	if _, err := game.CheckPlayers(r.Info(), config.PlayerIDs); err != nil {
		return nil, err
	}
	var cfg Config
	if err := game.DecodeOptions(config.Options, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	m := &Match{Base: game.NewBase(config.PlayerIDs, false, config.Seed), Config: cfg}
	m.State.Players = make(map[string]*PlayerStats, len(config.PlayerIDs))
	for _, id := range config.PlayerIDs {
		m.State.Players[id] = &PlayerStats{Multiplier: 1}
	}
	m.State.Notes = m.buildChart()
	return m, nil
}

func (Rhythm) Restore(data []byte) (game.Match, error) {
	m := &Match{}
	if err := m.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return m, nil
}

// buildChart uses the configured notes when any are valid, otherwise
// generates one from the RNG on half-beat steps.
func (m *Match) buildChart() []Note {
	cfg := m.Config
	var specs []NoteSpec
	for _, n := range cfg.Notes {
		if n.Lane >= 0 && n.Lane < cfg.Lanes && n.Beat >= 0 && n.Beat < cfg.SongLengthBeats {
			specs = append(specs, n)
		}
	}
	if len(specs) == 0 {
		chance := game.ClampF(cfg.NoteDensity*0.5, 0, 1)
		for beat := 4.0; beat < cfg.SongLengthBeats-1; beat += 0.5 {
			if m.RNG.Chance(chance) {
				specs = append(specs, NoteSpec{Beat: beat, Lane: m.RNG.IntN(cfg.Lanes)})
			}
		}
	}
	if len(specs) == 0 {
		specs = append(specs, NoteSpec{Beat: math.Min(4, cfg.SongLengthBeats/2), Lane: 0})
	}
	sort.SliceStable(specs, func(i, j int) bool { return specs[i].Beat < specs[j].Beat })

	notes := make([]Note, len(specs))
	for i, s := range specs {
		notes[i] = Note{ID: i, Beat: s.Beat, Lane: s.Lane, Status: NotePending}
	}
	return notes
}

type hitPayload struct {
	Lane      int     `json:"lane" validate:"min=0"`
	ElapsedMs float64 `json:"elapsedMs" validate:"min=0"`
}

type tickPayload struct {
	ElapsedMs float64 `json:"elapsedMs" validate:"min=0"`
}

func errLane(lane, lanes int) error {
	return fmt.Errorf("%w: lane %d out of range 0-%d", game.ErrInvalidPayload, lane, lanes-1)
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
	if m.State.SongComplete {
		return game.ErrGameOver
	}
	switch action.Type {
	case "hit":
		var p hitPayload
		if err := game.DecodePayload(action, &p); err != nil {
			return err
		}
		if p.Lane >= m.Config.Lanes {
			return errLane(p.Lane, m.Config.Lanes)
		}
		m.advance(p.ElapsedMs)
		m.hit(playerID, p.Lane)
	case "tick", "advance_beat":
		var p tickPayload
		if err := game.DecodePayload(action, &p); err != nil {
			return err
		}
		m.advance(p.ElapsedMs)
	default:
		return game.UnknownAction(action.Type)
	}
	m.checkComplete()
	return nil
}

// advance moves the clock and expires every note whose ok window has
// fully elapsed. Expiry depends only on the clock.
func (m *Match) advance(elapsedMs float64) {
	m.State.CurrentBeat += elapsedMs * m.Config.BPM / 60000
	ok := m.Config.windows().Ok
	songOver := m.State.CurrentBeat >= m.Config.SongLengthBeats

	missed := 0
	for i := range m.State.Notes {
		n := &m.State.Notes[i]
		if n.Status != NotePending {
			continue
		}
		if songOver || m.State.CurrentBeat-n.Beat > ok {
			n.Status = NoteMissed
			missed++
			m.Emit("note_missed", "", map[string]any{"noteId": n.ID, "beatTime": n.Beat, "lane": n.Lane})
		}
	}
	if missed == 0 {
		return
	}
	for _, id := range m.PlayerIDs() {
		ps := m.State.Players[id]
		if ps == nil {
			continue
		}
		if ps.Combo > 0 {
			m.Emit("combo_break", id, map[string]any{"combo": ps.Combo})
		}
		ps.Combo = 0
		ps.Multiplier = 1
		ps.Missed += missed
	}
}

// hit rates the closest pending note in the lane. A tap with no note in
// the window is a no-op.
func (m *Match) hit(playerID string, lane int) {
	win := m.Config.windows()
	best, bestDist := -1, math.Inf(1)
	for i, n := range m.State.Notes {
		if n.Status != NotePending || n.Lane != lane {
			continue
		}
		d := math.Abs(n.Beat - m.State.CurrentBeat)
		if d <= win.Ok && d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		m.Emit("ghost_tap", playerID, map[string]any{"lane": lane, "beat": m.State.CurrentBeat})
		return
	}

	rating := RatingOk
	switch {
	case bestDist <= win.Perfect:
		rating = RatingPerfect
	case bestDist <= win.Good:
		rating = RatingGood
	}

	ps := m.State.Players[playerID]
	mult := m.multiplier(ps.Combo)
	points := ratingPoints[rating] * mult
	ps.Score += points
	ps.Combo++
	ps.MaxCombo = max(ps.MaxCombo, ps.Combo)
	ps.Multiplier = m.multiplier(ps.Combo)
	switch rating {
	case RatingPerfect:
		ps.Perfect++
	case RatingGood:
		ps.Good++
	default:
		ps.Ok++
	}

	n := &m.State.Notes[best]
	n.Status = NoteHit
	n.Rating = rating
	n.HitBy = playerID
	m.Emit("note_hit", playerID, map[string]any{
		"noteId":     n.ID,
		"rating":     string(rating),
		"points":     points,
		"multiplier": mult,
		"combo":      ps.Combo,
	})
}

func (m *Match) multiplier(combo int) int {
	return min(m.Config.MaxMultiplier, 1+combo/m.Config.ComboStep)
}

func (m *Match) checkComplete() {
	if m.State.SongComplete {
		return
	}
	done := m.State.CurrentBeat >= m.Config.SongLengthBeats
	if !done {
		done = true
		for _, n := range m.State.Notes {
			if n.Status == NotePending {
				done = false
				break
			}
		}
	}
	if done {
		m.State.SongComplete = true
		m.Emit("song_complete", "", map[string]any{"scores": m.Scores()})
	}
}

func (m *Match) IsOver() bool {
	return m.State.SongComplete
}

func (m *Match) Winner() (string, bool) {
	if !m.State.SongComplete {
		return "", false
	}
	return game.TopScorer(m.Scores())
}

func (m *Match) Scores() map[string]int {
	scores := make(map[string]int, len(m.State.Players))
	for id, ps := range m.State.Players {
		scores[id] = ps.Score
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
