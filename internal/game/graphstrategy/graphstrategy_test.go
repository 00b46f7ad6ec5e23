package graphstrategy

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moltblox/internal/game"
)

func newMatch(t *testing.T, ids []string, opts map[string]any) *Match {
	t.Helper()
	raw, err := json.Marshal(opts)
	require.NoError(t, err)
	m, err := GraphStrategy{}.NewMatch(game.MatchConfig{PlayerIDs: ids, Seed: 5, Options: raw})
	require.NoError(t, err)
	return m.(*Match)
}

// ringMatch is a four-node ring with no chords: alice holds node 0 and
// bob holds node 2.
func ringMatch(t *testing.T) *Match {
	m := newMatch(t, []string{"alice", "bob"}, map[string]any{"nodeCount": 4})
	for i, n := range m.State.Nodes {
		n.Edges = []int{(i + 1) % 4}
	}
	return m
}

var pass = game.Action{Type: "pass"}

func node(id int) map[string]any { return map[string]any{"nodeId": id} }

func TestInitialLayout(t *testing.T) {
	m := newMatch(t, []string{"alice", "bob"}, nil)
	require.Len(t, m.State.Nodes, 12)
	assert.Equal(t, "alice", m.State.Nodes[0].Owner)
	assert.Equal(t, "bob", m.State.Nodes[6].Owner)
	assert.Equal(t, 100.0, m.State.Nodes[0].Signal["alice"])
	for i, n := range m.State.Nodes {
		assert.Contains(t, n.Edges, (i+1)%12, "ring edge")
	}
	assert.Equal(t, map[string]int{"alice": 1, "bob": 1}, m.Scores())

	again := newMatch(t, []string{"alice", "bob"}, nil)
	assert.Equal(t, m.Snapshot(), again.Snapshot())
}

func TestPropagateThenDecayThenOwnership(t *testing.T) {
	m := ringMatch(t)
	require.True(t, m.ProcessAction("alice", pass).Success)
	assert.Equal(t, 0, m.State.CurrentTurn, "resolution waits for the last player")
	require.True(t, m.ProcessAction("bob", pass).Success)

	nodes := m.State.Nodes
	assert.Equal(t, 1, m.State.CurrentTurn)
	assert.InDelta(t, 95, nodes[0].Signal["alice"], 1e-9)
	assert.InDelta(t, 25, nodes[1].Signal["alice"], 1e-9)
	assert.InDelta(t, 95, nodes[2].Signal["bob"], 1e-9)
	assert.InDelta(t, 25, nodes[3].Signal["bob"], 1e-9)
	assert.Zero(t, nodes[2].Signal["alice"], "propagation reads last turn's values only")

	assert.Equal(t, "alice", nodes[1].Owner)
	assert.Equal(t, "bob", nodes[3].Owner)
	assert.Equal(t, map[string]int{"alice": 2, "bob": 2}, m.Scores())
}

func TestFortifyHalvesDecayAndClearsOnCapture(t *testing.T) {
	m := ringMatch(t)
	require.True(t, m.ProcessAction("alice", game.NewAction("fortify", node(0))).Success)
	require.True(t, m.ProcessAction("bob", pass).Success)
	assert.InDelta(t, 97.5, m.State.Nodes[0].Signal["alice"], 1e-9)
	assert.True(t, m.State.Nodes[0].Fortified)

	n := m.State.Nodes[0]
	n.Signal = map[string]float64{"alice": 10, "bob": 150}
	require.True(t, m.ProcessAction("alice", pass).Success)
	require.True(t, m.ProcessAction("bob", pass).Success)
	assert.Equal(t, "bob", n.Owner)
	assert.False(t, n.Fortified)
}

func TestTiesAndWeakSignalAreUnowned(t *testing.T) {
	m := ringMatch(t)
	m.State.Nodes[1].Signal = map[string]float64{"alice": 50, "bob": 80}
	m.State.Nodes[3].Signal = map[string]float64{"bob": 1}
	m.State.Nodes[0].Signal = map[string]float64{"alice": 5}
	require.True(t, m.ProcessAction("alice", pass).Success)
	require.True(t, m.ProcessAction("bob", pass).Success)

	// node 1: alice 50+1.5-5, bob 80-5 -> bob; node 0: alice 5-5 -> nobody
	assert.Equal(t, "bob", m.State.Nodes[1].Owner)
	assert.Equal(t, "", m.State.Nodes[0].Owner)

	m.State.Nodes[1].Signal = map[string]float64{"alice": 60, "bob": 60}
	assert.Equal(t, "", m.controller(m.State.Nodes[1]))
}

func TestDominationEndsImmediately(t *testing.T) {
	m := newMatch(t, []string{"alice", "bob"}, nil)
	for _, n := range m.State.Nodes {
		n.Signal = map[string]float64{"alice": 100}
	}
	require.True(t, m.ProcessAction("alice", pass).Success)
	require.True(t, m.ProcessAction("bob", pass).Success)

	assert.Equal(t, ResultEnded, m.State.GameResult)
	assert.Less(t, m.State.CurrentTurn, m.Config.MaxTurns)
	winner, ok := m.Winner()
	require.True(t, ok)
	assert.Equal(t, "alice", winner)

	res := m.ProcessAction("alice", pass)
	assert.Equal(t, game.ErrGameOver.Error(), res.Error)
}

func TestTurnLimit(t *testing.T) {
	m := newMatch(t, []string{"alice", "bob"}, map[string]any{"maxTurns": 2})
	for i := 0; i < 2; i++ {
		require.True(t, m.ProcessAction("alice", pass).Success)
		require.True(t, m.ProcessAction("bob", pass).Success)
	}
	assert.True(t, m.IsOver())
}

func TestAmplifyRules(t *testing.T) {
	m := ringMatch(t)
	before := m.Snapshot()

	assert.False(t, m.ProcessAction("alice", game.NewAction("amplify", node(2))).Success, "unreachable")
	assert.False(t, m.ProcessAction("alice", game.NewAction("amplify", node(99))).Success, "no such node")
	assert.False(t, m.ProcessAction("alice", game.NewAction("fortify", node(1))).Success, "not owned")
	assert.False(t, m.ProcessAction("bob", pass).Success, "off turn")
	assert.False(t, m.ProcessAction("alice", game.Action{Type: "nuke"}).Success)
	assert.Equal(t, before, m.Snapshot())

	require.True(t, m.ProcessAction("alice", game.NewAction("amplify", node(1))).Success)
	assert.Equal(t, 25.0, m.State.Nodes[1].Signal["alice"])

	require.True(t, m.ProcessAction("bob", game.NewAction("amplify", node(2))).Success)
	// amplified to 125, then one decay step
	assert.InDelta(t, 120, m.State.Nodes[2].Signal["bob"], 1e-9)
}

func TestRestoreRoundTrip(t *testing.T) {
	m := newMatch(t, []string{"alice", "bob", "carol"}, nil)
	require.True(t, m.ProcessAction("alice", pass).Success)
	blob, err := m.MarshalJSON()
	require.NoError(t, err)
	restored, err := GraphStrategy{}.Restore(blob)
	require.NoError(t, err)
	assert.Equal(t, m.Snapshot(), restored.Snapshot())
	assert.True(t, restored.ProcessAction("bob", pass).Success)
}
