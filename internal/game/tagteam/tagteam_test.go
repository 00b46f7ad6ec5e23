package tagteam

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
	m, err := TagTeam{}.NewMatch(game.MatchConfig{PlayerIDs: ids, Seed: 2, Options: raw})
	require.NoError(t, err)
	return m.(*Match)
}

func attack(move string) game.Action {
	return game.NewAction("attack", map[string]any{"move": move})
}

var tag = game.Action{Type: "tag"}

func TestRosters(t *testing.T) {
	m := newMatch(t, []string{"alice", "bob"}, map[string]any{
		"roster": []map[string]any{{"name": "Rex", "hp": 80}},
	})
	team := m.State.Teams["alice"]
	require.Len(t, team.Fighters, 2)
	assert.Equal(t, "Rex", team.Fighters[0].Name)
	assert.Equal(t, 80, team.Fighters[0].HP)
	assert.Equal(t, "fighter-2", team.Fighters[1].Name)
	assert.Equal(t, 100, team.Fighters[1].HP)
	assert.Equal(t, map[string]int{"alice": 180, "bob": 180}, m.Scores())
}

func TestTagAndBenchRecovery(t *testing.T) {
	m := newMatch(t, []string{"alice", "bob"}, nil)
	alice := m.State.Teams["alice"]
	alice.Fighters[1].HP = 50

	require.True(t, m.ProcessAction("alice", attack("light")).Success)
	assert.Equal(t, 55, alice.Fighters[1].HP)
	assert.Equal(t, 92, m.State.Teams["bob"].active().HP)

	require.True(t, m.ProcessAction("bob", tag).Success)
	assert.Equal(t, 1, m.State.Teams["bob"].Active)
	assert.Equal(t, 97, m.State.Teams["bob"].Fighters[0].HP, "tagged-out fighter recovers on the bench")

	require.True(t, m.ProcessAction("alice", tag).Success)
	assert.Equal(t, 1, alice.Active)
	assert.Equal(t, 100, alice.Fighters[0].HP, "recovery is capped")
}

func TestTagNeedsStandingPartner(t *testing.T) {
	m := newMatch(t, []string{"alice", "bob"}, nil)
	m.State.Teams["alice"].Fighters[1].HP = 0
	before := m.Snapshot()
	res := m.ProcessAction("alice", tag)
	assert.Equal(t, ErrPartnerDown.Error(), res.Error)
	assert.Equal(t, before, m.Snapshot())
}

func TestKnockoutForcesSwapThenEndsMatch(t *testing.T) {
	m := newMatch(t, []string{"alice", "bob"}, nil)
	bob := m.State.Teams["bob"]
	bob.Fighters[0].HP = 5

	require.True(t, m.ProcessAction("alice", attack("light")).Success)
	assert.Equal(t, 0, bob.Fighters[0].HP)
	assert.Equal(t, 1, bob.Active)
	assert.False(t, m.IsOver())

	var types []string
	for _, e := range m.DrainEvents() {
		types = append(types, e.Type)
	}
	assert.Contains(t, types, "ko")
	assert.Contains(t, types, "forced_swap")

	bob.Fighters[1].HP = 3
	require.True(t, m.ProcessAction("bob", attack("light")).Success)
	require.True(t, m.ProcessAction("alice", attack("light")).Success)
	assert.True(t, m.IsOver())
	winner, ok := m.Winner()
	require.True(t, ok)
	assert.Equal(t, "alice", winner)

	res := m.ProcessAction("bob", tag)
	assert.Equal(t, game.ErrGameOver.Error(), res.Error)
}

func TestCounterAndBlock(t *testing.T) {
	m := newMatch(t, []string{"alice", "bob"}, nil)
	m.State.Teams["bob"].active().LastMove = "grab"
	require.True(t, m.ProcessAction("alice", attack("light")).Success)
	assert.Equal(t, 88, m.State.Teams["bob"].active().HP)

	require.True(t, m.ProcessAction("bob", attack("block")).Success)
	require.True(t, m.ProcessAction("alice", attack("heavy")).Success)
	assert.Equal(t, 83, m.State.Teams["bob"].active().HP)
}

func TestTurnLimit(t *testing.T) {
	m := newMatch(t, []string{"alice", "bob"}, map[string]any{"maxTurns": 2})
	require.True(t, m.ProcessAction("alice", attack("light")).Success)
	require.True(t, m.ProcessAction("bob", attack("block")).Success)
	assert.True(t, m.IsOver())
	winner, ok := m.Winner()
	require.True(t, ok)
	assert.Equal(t, "alice", winner)
}

func TestRejections(t *testing.T) {
	m := newMatch(t, []string{"alice", "bob"}, nil)
	m.State.Teams["alice"].active().Stamina = 1
	before := m.Snapshot()
	assert.False(t, m.ProcessAction("bob", attack("light")).Success)
	assert.False(t, m.ProcessAction("alice", attack("heavy")).Success)
	assert.False(t, m.ProcessAction("alice", attack("special")).Success)
	assert.False(t, m.ProcessAction("alice", game.Action{Type: "pin"}).Success)
	assert.Equal(t, before, m.Snapshot())
}

func TestCPUDriver(t *testing.T) {
	m := newMatch(t, []string{"alice"}, nil)
	require.True(t, m.ProcessAction("alice", attack("light")).Success)

	id, action, ok := m.NextCPUAction()
	require.True(t, ok)
	assert.Equal(t, game.CPUPlayerID, id)
	assert.JSONEq(t, `{"move":"heavy"}`, string(action.Payload))

	m.State.Teams[game.CPUPlayerID].active().HP = 20
	_, action, _ = m.NextCPUAction()
	assert.Equal(t, "tag", action.Type)
	require.True(t, m.ProcessAction(id, action).Success)

	_, _, ok = m.NextCPUAction()
	assert.False(t, ok)
}

func TestRestoreRoundTrip(t *testing.T) {
	m := newMatch(t, []string{"alice", "bob"}, nil)
	require.True(t, m.ProcessAction("alice", attack("grab")).Success)
	blob, err := m.MarshalJSON()
	require.NoError(t, err)
	restored, err := TagTeam{}.Restore(blob)
	require.NoError(t, err)
	assert.Equal(t, m.Snapshot(), restored.Snapshot())
}
