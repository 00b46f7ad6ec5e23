// Package graphstrategy implements territory control over a directed graph
// where per-player signal diffuses along edges and decays every turn.
package graphstrategy

import (
	"encoding/json"
	"errors"
	"fmt"

	"moltblox/internal/game"
)

type GraphStrategy struct{}

func (GraphStrategy) Info() game.GameInfo {
	return game.GameInfo{
		Name:        "graphstrategy",
		Description: "Spread signal across a network and hold the most nodes.",
		MinPlayers:  2,
		MaxPlayers:  4,
	}
}

// MaxNodes bounds the generated graph.
const MaxNodes = 64

type Config struct {
	NodeCount        int     `json:"nodeCount"`
	ExtraEdges       int     `json:"extraEdges"`
	MaxTurns         int     `json:"maxTurns"`
	Propagation      float64 `json:"propagation"`
	Decay            float64 `json:"decay"`
	ControlThreshold float64 `json:"controlThreshold"`
	Amplify          float64 `json:"amplify"`
	MaxSignal        float64 `json:"maxSignal"`
	StartSignal      float64 `json:"startSignal"`
}

func (c *Config) applyDefaults(players int) {
	game.Positive(&c.NodeCount, 12)
	c.NodeCount = game.Clamp(c.NodeCount, players, MaxNodes)
	game.Positive(&c.ExtraEdges, c.NodeCount/2)
	c.ExtraEdges = min(c.ExtraEdges, c.NodeCount*(c.NodeCount-1)/2)
	game.Positive(&c.MaxTurns, 30)
	game.Positive(&c.Propagation, 0.3)
	game.Positive(&c.Decay, 5)
	game.Positive(&c.ControlThreshold, 20)
	game.Positive(&c.Amplify, 25)
	game.Positive(&c.MaxSignal, 200)
	game.Positive(&c.StartSignal, 100)
	c.StartSignal = min(c.StartSignal, c.MaxSignal)
}

type Node struct {
	ID        int                `json:"id"`
	Edges     []int              `json:"edges"`
	Signal    map[string]float64 `json:"signal"`
	Owner     string             `json:"owner,omitempty"`
	Fortified bool               `json:"fortified"`
}

const (
	ResultOngoing = "ongoing"
	ResultEnded   = "ended"
)

type State struct {
	Nodes       []*Node        `json:"nodes"`
	Turn        game.TurnOrder `json:"turn"`
	CurrentTurn int            `json:"currentTurn"`
	GameResult  string         `json:"gameResult"`
}

type Match struct {
	game.Base
	Config Config `json:"config"`
	State  State  `json:"state"`
}

var (
	ErrNoSuchNode       = errors.New("no such node")
	ErrNotOwned         = errors.New("node not owned")
	ErrUnreachable      = errors.New("node not reachable from owned territory")
	ErrAlreadyFortified = errors.New("node already fortified")
)

func (g GraphStrategy) NewMatch(config game.MatchConfig) (game.Match, error) {
	if _, err := game.CheckPlayers(g.Info(), config.PlayerIDs); err != nil {
		return nil, err
	}
	var cfg Config
	if err := game.DecodeOptions(config.Options, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults(len(config.PlayerIDs))

	m := &Match{Base: game.NewBase(config.PlayerIDs, false, config.Seed), Config: cfg}
	m.State = State{
		Nodes:      m.buildGraph(),
		Turn:       game.NewTurnOrder(config.PlayerIDs),
		GameResult: ResultOngoing,
	}
	for i, id := range config.PlayerIDs {
		n := m.State.Nodes[i*cfg.NodeCount/len(config.PlayerIDs)]
		n.Signal[id] = cfg.StartSignal
		n.Owner = id
	}
	return m, nil
}

func (GraphStrategy) Restore(data []byte) (game.Match, error) {
	m := &Match{}
	if err := m.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return m, nil
}

// buildGraph links the nodes in a ring and adds random chords.
func (m *Match) buildGraph() []*Node {
	n := m.Config.NodeCount
	nodes := make([]*Node, n)
	for i := range nodes {
		nodes[i] = &Node{ID: i, Edges: []int{(i + 1) % n}, Signal: map[string]float64{}}
	}
	added := 0
	for tries := 0; added < m.Config.ExtraEdges && tries < m.Config.ExtraEdges*4; tries++ {
		from, to := m.RNG.IntN(n), m.RNG.IntN(n)
		if from == to || hasEdge(nodes[from], to) {
			continue
		}
		nodes[from].Edges = append(nodes[from].Edges, to)
		added++
	}
	return nodes
}

func hasEdge(n *Node, to int) bool {
	for _, e := range n.Edges {
		if e == to {
			return true
		}
	}
	return false
}

type nodePayload struct {
	NodeID int `json:"nodeId" validate:"min=0"`
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
	if m.State.GameResult == ResultEnded {
		return game.ErrGameOver
	}
	if err := m.State.Turn.Require(playerID); err != nil {
		return err
	}

	switch action.Type {
	case "amplify":
		n, err := m.target(action)
		if err != nil {
			return err
		}
		if n.Owner != playerID && !m.reachable(playerID, n.ID) {
			return fmt.Errorf("%w: %d", ErrUnreachable, n.ID)
		}
		n.Signal[playerID] = game.ClampF(n.Signal[playerID]+m.Config.Amplify, 0, m.Config.MaxSignal)
		m.Emit("amplify", playerID, map[string]any{"nodeId": n.ID, "signal": n.Signal[playerID]})
	case "fortify":
		n, err := m.target(action)
		if err != nil {
			return err
		}
		if n.Owner != playerID {
			return fmt.Errorf("%w: %d", ErrNotOwned, n.ID)
		}
		if n.Fortified {
			return ErrAlreadyFortified
		}
		n.Fortified = true
		m.Emit("fortify", playerID, map[string]any{"nodeId": n.ID})
	case "pass":
		m.Emit("pass", playerID, nil)
	default:
		return game.UnknownAction(action.Type)
	}

	if m.State.Turn.Advance() {
		m.resolve()
	}
	return nil
}

func (m *Match) target(action game.Action) (*Node, error) {
	var p nodePayload
	if err := game.DecodePayload(action, &p); err != nil {
		return nil, err
	}
	if p.NodeID >= len(m.State.Nodes) {
		return nil, fmt.Errorf("%w: %d", ErrNoSuchNode, p.NodeID)
	}
	return m.State.Nodes[p.NodeID], nil
}

// reachable reports whether id is an edge target of a node owned by playerID.
func (m *Match) reachable(playerID string, id int) bool {
	for _, n := range m.State.Nodes {
		if n.Owner == playerID && hasEdge(n, id) {
			return true
		}
	}
	return false
}

// resolve runs once per full turn: every node propagates from the old
// values, then every node decays, then ownership is recomputed.
func (m *Match) resolve() {
	ids := m.PlayerIDs()
	cfg := m.Config

	next := make([]map[string]float64, len(m.State.Nodes))
	for i, n := range m.State.Nodes {
		next[i] = make(map[string]float64, len(ids))
		for _, id := range ids {
			next[i][id] = n.Signal[id]
		}
	}
	for _, n := range m.State.Nodes {
		for _, to := range n.Edges {
			for _, id := range ids {
				if s := n.Signal[id]; s > 0 {
					next[to][id] += s * cfg.Propagation
				}
			}
		}
	}

	for i, n := range m.State.Nodes {
		decay := cfg.Decay
		if n.Fortified {
			decay /= 2
		}
		signal := make(map[string]float64, len(ids))
		for _, id := range ids {
			if v := game.ClampF(next[i][id]-decay, 0, cfg.MaxSignal); v > 0 {
				signal[id] = v
			}
		}
		n.Signal = signal
	}

	for _, n := range m.State.Nodes {
		owner := m.controller(n)
		if owner == n.Owner {
			continue
		}
		prev := n.Owner
		n.Owner = owner
		n.Fortified = false
		m.Emit("ownership_changed", owner, map[string]any{"nodeId": n.ID, "from": prev, "to": owner})
	}

	m.State.CurrentTurn++
	m.Emit("turn_resolved", "", map[string]any{"turn": m.State.CurrentTurn, "nodes": m.Scores()})

	for _, id := range ids {
		if m.owned(id) == len(m.State.Nodes) {
			m.end("domination")
			return
		}
	}
	if m.State.CurrentTurn >= cfg.MaxTurns {
		m.end("turn_limit")
	}
}

// controller is the unique argmax over signal at or above the threshold.
func (m *Match) controller(n *Node) string {
	best, bestID, tied := 0.0, "", false
	for _, id := range m.PlayerIDs() {
		s := n.Signal[id]
		switch {
		case s > best:
			best, bestID, tied = s, id, false
		case s == best && s > 0:
			tied = true
		}
	}
	if tied || best < m.Config.ControlThreshold {
		return ""
	}
	return bestID
}

func (m *Match) owned(playerID string) int {
	count := 0
	for _, n := range m.State.Nodes {
		if n.Owner == playerID {
			count++
		}
	}
	return count
}

func (m *Match) end(reason string) {
	m.State.GameResult = ResultEnded
	winner, _ := m.Winner()
	m.Emit("game_over", winner, map[string]any{"reason": reason, "winner": winner})
}

func (m *Match) IsOver() bool {
	return m.State.GameResult == ResultEnded
}

func (m *Match) Winner() (string, bool) {
	if m.State.GameResult != ResultEnded {
		return "", false
	}
	return game.TopScorer(m.Scores())
}

func (m *Match) Scores() map[string]int {
	scores := make(map[string]int, len(m.Roster))
	for _, id := range m.PlayerIDs() {
		scores[id] = m.owned(id)
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
