package beatemup

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
	m, err := BeatEmUp{}.NewMatch(game.MatchConfig{PlayerIDs: ids, Seed: 5, Options: raw})
	require.NoError(t, err)
	return m.(*Match)
}

func attack(target string) game.Action {
	return game.NewAction("attack", map[string]any{"target": target})
}

func skill(name, target string) game.Action {
	return game.NewAction("use_skill", map[string]any{"skill": name, "target": target})
}

func unlock(name string) game.Action {
	return game.NewAction("unlock_skill", map[string]any{"skill": name})
}

var defend = game.Action{Type: "defend"}

func countEvents(events []game.Event, eventType string) int {
	n := 0
	for _, e := range events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

func TestDefaultWaves(t *testing.T) {
	m := newMatch(t, []string{"alice"}, nil)
	require.Len(t, m.Config.Waves, 3)
	assert.Len(t, m.State.Enemies, 2)
	assert.Equal(t, "w1-e1", m.State.Enemies[0].ID)
	assert.Equal(t, 30, m.State.Enemies[0].HP)
	assert.Len(t, m.Config.Waves[2], 5)
	assert.Equal(t, PhaseCombat, m.State.Phase)
}

func TestOneKillCrossesTwoLevels(t *testing.T) {
	m := newMatch(t, []string{"alice"}, map[string]any{
		"waves": [][]map[string]any{
			{{"name": "boss", "hp": 5, "attack": 1, "xp": 300}},
			{{"name": "grunt", "hp": 10}},
		},
	})
	require.True(t, m.ProcessAction("alice", attack("w1-e1")).Success)

	events := m.DrainEvents()
	assert.Equal(t, 2, countEvents(events, "level_up"))
	alice := m.State.Players["alice"]
	assert.Equal(t, 3, alice.Level)
	assert.Equal(t, 2, alice.SkillPoints)
	assert.Equal(t, 120, alice.MaxHP)
	assert.Equal(t, 14, alice.Attack)
	assert.Equal(t, 4, alice.Defense)
	assert.Equal(t, PhaseWaveClear, m.State.Phase)
}

func TestGrowthCurves(t *testing.T) {
	tests := []struct {
		growth       string
		plateauLevel int
		hp, atk, def int
	}{
		{"linear", 0, 110, 12, 3},
		{"exponential", 0, 110, 11, 3},
		{"plateau", 0, 115, 13, 4},
		{"plateau", 1, 105, 11, 2},
	}
	for _, tt := range tests {
		t.Run(tt.growth, func(t *testing.T) {
			m := newMatch(t, []string{"alice"}, map[string]any{"growth": tt.growth, "plateauLevel": tt.plateauLevel})
			m.gainXP("alice", 100)
			p := m.State.Players["alice"]
			assert.Equal(t, 2, p.Level)
			assert.Equal(t, tt.hp, p.MaxHP)
			assert.Equal(t, tt.atk, p.Attack)
			assert.Equal(t, tt.def, p.Defense)
		})
	}
}

func TestMaxLevelCapsLoop(t *testing.T) {
	m := newMatch(t, []string{"alice"}, map[string]any{"maxLevel": 2})
	m.gainXP("alice", 10000)
	assert.Equal(t, 2, m.State.Players["alice"].Level)
	assert.Equal(t, 1, countEvents(m.DrainEvents(), "level_up"))
}

func TestEnemiesFocusWeakestPlayer(t *testing.T) {
	m := newMatch(t, []string{"alice", "bob"}, nil)
	alice, bob := m.State.Players["alice"], m.State.Players["bob"]
	bob.HP = 50

	require.True(t, m.ProcessAction("alice", attack("w1-e1")).Success)
	assert.Equal(t, 21, m.State.Enemies[0].HP)
	assert.Equal(t, 50, bob.HP, "enemies wait for the last player")

	require.True(t, m.ProcessAction("bob", defend).Success)
	assert.Equal(t, 44, bob.HP, "two halved hits")
	assert.Equal(t, 100, alice.HP)
	assert.False(t, bob.Defending)
	assert.Equal(t, 1, m.State.Round)
	assert.Equal(t, "alice", m.State.Turn.Current())
}

func TestFallenPlayersAreSkipped(t *testing.T) {
	m := newMatch(t, []string{"alice", "bob"}, nil)
	m.State.Players["bob"].HP = 0

	require.True(t, m.ProcessAction("alice", attack("w1-e2")).Success)
	assert.Equal(t, 1, m.State.Round)
	assert.Equal(t, "alice", m.State.Turn.Current())
	assert.Equal(t, 88, m.State.Players["alice"].HP)

	res := m.ProcessAction("bob", defend)
	assert.Contains(t, res.Error, game.ErrNotYourTurn.Error())
}

func TestSkillUnlockBetweenWaves(t *testing.T) {
	m := newMatch(t, []string{"alice"}, nil)
	res := m.ProcessAction("alice", unlock("power_strike"))
	assert.Contains(t, res.Error, game.ErrWrongPhase.Error())

	for _, e := range m.State.Enemies {
		e.HP = 1
	}
	require.True(t, m.ProcessAction("alice", attack("w1-e1")).Success)
	require.True(t, m.ProcessAction("alice", attack("w1-e2")).Success)
	require.Equal(t, PhaseWaveClear, m.State.Phase)
	alice := m.State.Players["alice"]
	assert.Equal(t, 80, alice.XP)

	assert.Equal(t, ErrNoSkillPoints.Error(), m.ProcessAction("alice", unlock("power_strike")).Error)
	alice.SkillPoints = 2
	assert.Contains(t, m.ProcessAction("alice", unlock("power_strike")).Error, ErrLevelTooLow.Error())
	alice.Level = 2
	require.True(t, m.ProcessAction("alice", unlock("power_strike")).Success)
	assert.Equal(t, []Skill{PowerStrike}, alice.Skills)
	assert.Equal(t, 1, alice.SkillPoints)
	assert.Equal(t, ErrKnownSkill.Error(), m.ProcessAction("alice", unlock("power_strike")).Error)
	assert.False(t, m.ProcessAction("alice", unlock("fireball")).Success)

	res = m.ProcessAction("alice", attack("w1-e1"))
	assert.Contains(t, res.Error, game.ErrWrongPhase.Error())

	require.True(t, m.ProcessAction("alice", game.Action{Type: "start_wave"}).Success)
	assert.Equal(t, 2, m.State.Wave)
	assert.Len(t, m.State.Enemies, 3)
	assert.Equal(t, PhaseCombat, m.State.Phase)
	assert.Contains(t, m.ProcessAction("alice", game.Action{Type: "start_wave"}).Error, game.ErrWrongPhase.Error())
}

func TestPowerStrikeCooldown(t *testing.T) {
	m := newMatch(t, []string{"alice"}, nil)
	alice := m.State.Players["alice"]
	alice.Skills = []Skill{PowerStrike, IronSkin}

	require.True(t, m.ProcessAction("alice", skill("power_strike", "w1-e1")).Success)
	assert.Equal(t, 11, m.State.Enemies[0].HP)
	assert.Equal(t, 1, alice.Cooldowns[PowerStrike], "ticked once by the enemy phase")
	assert.Equal(t, 94, alice.HP, "iron skin soaks 3 per hit")

	before := m.Snapshot()
	res := m.ProcessAction("alice", skill("power_strike", "w1-e1"))
	assert.Contains(t, res.Error, ErrOnCooldown.Error())
	assert.Equal(t, ErrPassiveSkill.Error(), m.ProcessAction("alice", skill("iron_skin", "")).Error)
	assert.Equal(t, ErrSkillLocked.Error(), m.ProcessAction("alice", skill("whirlwind", "")).Error)
	assert.Contains(t, m.ProcessAction("alice", skill("power_strike", "w9-e9")).Error, ErrOnCooldown.Error())
	assert.Equal(t, before, m.Snapshot())

	require.True(t, m.ProcessAction("alice", defend).Success)
	assert.Equal(t, 0, alice.Cooldowns[PowerStrike])
	require.True(t, m.ProcessAction("alice", skill("power_strike", "w1-e1")).Success)
	assert.Equal(t, 0, m.State.Enemies[0].HP)
}

func TestWhirlwindSecondWindBerserker(t *testing.T) {
	m := newMatch(t, []string{"alice"}, nil)
	alice := m.State.Players["alice"]
	alice.Skills = []Skill{Whirlwind, SecondWind, Berserker}

	require.True(t, m.ProcessAction("alice", skill("whirlwind", "")).Success)
	assert.Equal(t, 23, m.State.Enemies[0].HP)
	assert.Equal(t, 23, m.State.Enemies[1].HP)
	assert.Equal(t, 88, alice.HP)

	alice.HP = 40
	require.True(t, m.ProcessAction("alice", attack("w1-e1")).Success)
	assert.Equal(t, 11, m.State.Enemies[0].HP, "berserker adds a quarter below half HP")
	assert.Equal(t, 28, alice.HP)

	require.True(t, m.ProcessAction("alice", skill("second_wind", "")).Success)
	assert.Equal(t, 46, alice.HP)
}

func TestDefeat(t *testing.T) {
	m := newMatch(t, []string{"alice"}, nil)
	m.State.Players["alice"].HP = 1
	require.True(t, m.ProcessAction("alice", defend).Success)

	assert.True(t, m.IsOver())
	assert.Equal(t, PhaseDefeat, m.State.Phase)
	_, ok := m.Winner()
	assert.False(t, ok)
	assert.Equal(t, game.ErrGameOver.Error(), m.ProcessAction("alice", defend).Error)
	assert.Equal(t, game.ErrGameOver.Error(), m.ProcessAction("alice", unlock("iron_skin")).Error)
}

func TestVictoryGoesToTopXP(t *testing.T) {
	m := newMatch(t, []string{"alice", "bob"}, map[string]any{
		"waves": [][]map[string]any{{{"name": "slime", "hp": 5, "xp": 10}}},
	})
	require.True(t, m.ProcessAction("alice", attack("w1-e1")).Success)
	assert.True(t, m.IsOver())
	winner, ok := m.Winner()
	require.True(t, ok)
	assert.Equal(t, "alice", winner)
	assert.Equal(t, map[string]int{"alice": 10, "bob": 0}, m.Scores())
}

func TestInvalidWavesFallBack(t *testing.T) {
	m := newMatch(t, []string{"alice"}, map[string]any{
		"waves": [][]map[string]any{{{"name": "ghost", "hp": 0}}},
	})
	assert.Len(t, m.Config.Waves, 3)
}

func TestRestoreRoundTrip(t *testing.T) {
	m := newMatch(t, []string{"alice", "bob"}, nil)
	require.True(t, m.ProcessAction("alice", attack("w1-e1")).Success)
	blob, err := m.MarshalJSON()
	require.NoError(t, err)
	restored, err := BeatEmUp{}.Restore(blob)
	require.NoError(t, err)
	assert.Equal(t, m.Snapshot(), restored.Snapshot())
}
