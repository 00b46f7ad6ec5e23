package session

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moltblox/internal/game"
	"moltblox/internal/game/catalog"
	"moltblox/internal/logging"
	"moltblox/internal/storage"
)

// spinGame is a match whose cpu seat never stops wanting to move.
type spinGame struct{}

func (spinGame) Info() game.GameInfo {
	return game.GameInfo{Name: "spin", Description: "cpu never yields", MinPlayers: 2, MaxPlayers: 2, SupportsCPU: true}
}

func (g spinGame) NewMatch(cfg game.MatchConfig) (game.Match, error) {
	withCPU, err := game.CheckPlayers(g.Info(), cfg.PlayerIDs)
	if err != nil {
		return nil, err
	}
	return &spinMatch{Base: game.NewBase(cfg.PlayerIDs, withCPU, cfg.Seed)}, nil
}

func (spinGame) Restore(data []byte) (game.Match, error) {
	m := &spinMatch{}
	return m, m.UnmarshalJSON(data)
}

type spinMatch struct {
	game.Base
	Spins int `json:"spins"`
}

func (m *spinMatch) ProcessAction(playerID string, action game.Action) game.ActionResult {
	if err := m.RequirePlayer(playerID); err != nil {
		return game.Reject(err)
	}
	m.Spins++
	m.Emit("spin", playerID, nil)
	return game.Succeed(m.Spins)
}

func (m *spinMatch) IsOver() bool { return false }
func (m *spinMatch) Winner() (string, bool) { return "", false }
func (m *spinMatch) Scores() map[string]int { return map[string]int{} }
func (m *spinMatch) Snapshot() json.RawMessage { b, _ := json.Marshal(m.Spins); return b }
func (m *spinMatch) NextCPUAction() (string, game.Action, bool) {
	return game.CPUPlayerID, game.Action{Type: "spin"}, m.HasCPU()
}

func (m *spinMatch) MarshalJSON() ([]byte, error) {
	type alias spinMatch
	return json.Marshal((*alias)(m))
}

func (m *spinMatch) UnmarshalJSON(data []byte) error {
	type alias spinMatch
	return json.Unmarshal(data, (*alias)(m))
}

func newStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newManager(t *testing.T, store *storage.Store, opts Options) *Manager {
	t.Helper()
	r := catalog.NewRegistry()
	r.Register(spinGame{})
	m, err := NewManager(r, store, logging.Discard(), opts)
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func light() game.Action {
	return game.NewAction("attack", map[string]any{"move": "light"})
}

// started creates a session of gameType seated with ids and starts it.
func started(t *testing.T, m *Manager, gameType string, options string, ids ...string) *Session {
	t.Helper()
	var opts json.RawMessage
	if options != "" {
		opts = json.RawMessage(options)
	}
	s, err := m.Create(gameType, 9, opts)
	require.NoError(t, err)
	for _, id := range ids {
		_, err := m.Join(s.Code, id)
		require.NoError(t, err)
	}
	_, err = m.Start(s.Code, ids[0])
	require.NoError(t, err)
	return s
}

func TestCreateAndJoin(t *testing.T) {
	store := newStore(t)
	m := newManager(t, store, Options{})

	_, err := m.Create("chess", 0, nil)
	assert.ErrorIs(t, err, game.ErrUnknownGame)
	_, err = m.Create("fighter", 0, json.RawMessage(`{not json`))
	assert.ErrorIs(t, err, game.ErrInvalidPayload)

	s, err := m.Create("fighter", 0, nil)
	require.NoError(t, err)
	assert.Len(t, s.Code, 6)
	assert.NotZero(t, s.Seed, "a zero seed is replaced")

	_, err = m.Join(s.Code, "bob")
	require.NoError(t, err)
	_, err = m.Join(s.Code, "alice")
	require.NoError(t, err)
	_, err = m.Join(s.Code, "bob")
	assert.NoError(t, err, "rejoining is idempotent")
	_, err = m.Join(s.Code, "carol")
	assert.ErrorIs(t, err, ErrFull)
	_, err = m.Join(s.Code, game.CPUPlayerID)
	assert.Error(t, err)
	_, err = m.Join("zzzzzz", "bob")
	assert.ErrorIs(t, err, ErrNotFound)

	info := s.Info()
	assert.Equal(t, []string{"bob", "alice"}, info.Players)
	assert.Equal(t, "bob", info.HostID)

	row, err := store.GetSession(s.Code)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob", "alice"}, row.Players)
	assert.Equal(t, "bob", row.HostID)
	assert.Equal(t, s.Seed, row.Seed)

	require.NoError(t, m.Leave(s.Code, "bob"))
	assert.Equal(t, "alice", s.Info().HostID, "host passes on in join order")
}

func TestStartLifecycle(t *testing.T) {
	store := newStore(t)
	m := newManager(t, store, Options{})
	s, err := m.Create("fighter", 1, nil)
	require.NoError(t, err)
	m.Join(s.Code, "alice")
	m.Join(s.Code, "bob")

	_, err = m.Apply(s.Code, "alice", light())
	assert.ErrorIs(t, err, ErrNotStarted)
	_, err = m.Start(s.Code, "bob")
	assert.ErrorIs(t, err, ErrNotHost)

	out, err := m.Start(s.Code, "alice")
	require.NoError(t, err)
	assert.True(t, out.Result.Success)
	assert.NotEmpty(t, out.Result.NewState)
	assert.Equal(t, StatusPlaying, s.Info().Status)

	_, err = m.Start(s.Code, "")
	assert.ErrorIs(t, err, ErrAlreadyStarted)
	_, err = m.Join(s.Code, "carol")
	assert.ErrorIs(t, err, ErrNotAccepting)
	assert.ErrorIs(t, m.Leave(s.Code, "bob"), ErrNotAccepting)

	row, err := store.GetSession(s.Code)
	require.NoError(t, err)
	assert.Equal(t, "playing", row.Status)
	_, err = store.GetMatchState(s.Code)
	assert.NoError(t, err)
}

func TestStartRejectsBadOptions(t *testing.T) {
	m := newManager(t, newStore(t), Options{})
	s, err := m.Create("fighter", 1, json.RawMessage(`{"maxHp":"lots"}`))
	require.NoError(t, err)
	m.Join(s.Code, "alice")
	_, err = m.Start(s.Code, "alice")
	assert.Error(t, err)
	assert.Equal(t, StatusWaiting, s.Info().Status)
}

func TestApplyDrivesCPU(t *testing.T) {
	m := newManager(t, newStore(t), Options{})
	s := started(t, m, "fighter", "", "alice")
	version := s.Info().Version

	out, err := m.Apply(s.Code, "alice", light())
	require.NoError(t, err)
	require.True(t, out.Result.Success, out.Result.Error)
	assert.Equal(t, 1, out.CPUSteps, "cpu answers once and hands the turn back")
	assert.Greater(t, s.Info().Version, version)

	var sawCPU bool
	for i, e := range out.Events {
		assert.Equal(t, int64(i+1), e.Seq)
		if e.PlayerID == game.CPUPlayerID {
			sawCPU = true
		}
	}
	assert.True(t, sawCPU, "cpu events are part of the outcome")

	var state struct {
		Players map[string]struct {
			LastMove string `json:"lastMove"`
		} `json:"players"`
	}
	require.NoError(t, json.Unmarshal(out.Result.NewState, &state))
	assert.NotEmpty(t, state.Players[game.CPUPlayerID].LastMove, "new state includes the cpu reply")

	out, err = m.Apply(s.Code, "alice", light())
	require.NoError(t, err)
	assert.True(t, out.Result.Success, out.Result.Error)
}

func TestApplyRejectionChangesNothing(t *testing.T) {
	m := newManager(t, newStore(t), Options{})
	s := started(t, m, "fighter", "", "alice", "bob")
	before := s.Info().Version
	snap, err := m.Snapshot(s.Code)
	require.NoError(t, err)

	for _, tc := range []struct {
		player string
		action game.Action
	}{
		{"bob", light()},
		{"mallory", light()},
		{game.CPUPlayerID, light()},
		{"alice", game.Action{Type: "dance"}},
		{"alice", game.NewAction("attack", map[string]any{"move": "kick"})},
	} {
		out, err := m.Apply(s.Code, tc.player, tc.action)
		require.NoError(t, err)
		assert.False(t, out.Result.Success, "%s %s", tc.player, tc.action.Type)
		assert.NotEmpty(t, out.Result.Error)
		assert.Empty(t, out.Events)
	}
	assert.Equal(t, before, s.Info().Version)
	after, err := m.Snapshot(s.Code)
	require.NoError(t, err)
	assert.Equal(t, snap.State, after.State)

	_, err = m.Apply("nope", "alice", light())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestApplyFinishesMatch(t *testing.T) {
	store := newStore(t)
	m := newManager(t, store, Options{})
	s := started(t, m, "fighter", `{"maxHp":5,"roundsToWin":1}`, "alice", "bob")

	out, err := m.Apply(s.Code, "alice", light())
	require.NoError(t, err)
	require.True(t, out.Result.Success)
	require.NotEmpty(t, out.Events)
	assert.Equal(t, "match_over", out.Events[len(out.Events)-1].Type)
	assert.Equal(t, StatusFinished, s.Info().Status)

	view, err := m.Snapshot(s.Code)
	require.NoError(t, err)
	assert.True(t, view.Over)
	assert.Equal(t, "alice", view.Winner)
	require.Len(t, view.Results, 2)
	assert.Equal(t, game.PlayerResult{PlayerID: "alice", Rank: 1, Score: view.Scores["alice"]}, view.Results[0])

	row, err := store.GetSession(s.Code)
	require.NoError(t, err)
	assert.Equal(t, "finished", row.Status)

	out, err = m.Apply(s.Code, "bob", light())
	require.NoError(t, err)
	assert.Contains(t, out.Result.Error, game.ErrGameOver.Error())
}

func TestCPUStepLimit(t *testing.T) {
	m := newManager(t, newStore(t), Options{MaxCPUSteps: 5})
	s, err := m.Create("spin", 1, nil)
	require.NoError(t, err)
	m.Join(s.Code, "alice")

	out, err := m.Start(s.Code, "alice")
	require.NoError(t, err)
	assert.Equal(t, 5, out.CPUSteps)

	out, err = m.Apply(s.Code, "alice", game.Action{Type: "spin"})
	require.NoError(t, err)
	assert.Equal(t, 5, out.CPUSteps)
	assert.Len(t, out.Events, 6)
	assert.Equal(t, int64(11), out.Events[5].Seq, "seq continues across commits")
	assert.JSONEq(t, `11`, string(out.Result.NewState))
}

func TestEventsLog(t *testing.T) {
	m := newManager(t, newStore(t), Options{MaxCPUSteps: 2})
	s, err := m.Create("spin", 1, nil)
	require.NoError(t, err)
	m.Join(s.Code, "alice")
	m.Start(s.Code, "alice")
	m.Apply(s.Code, "alice", game.Action{Type: "spin"})

	all, err := m.Events(s.Code, 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "alice", all[2].PlayerID)
	assert.Equal(t, map[string]any{}, all[2].Data)

	tail, err := m.Events(s.Code, 3)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.Equal(t, int64(4), tail[0].Seq)

	_, err = m.Events("nope", 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSnapshotTracksVersion(t *testing.T) {
	m := newManager(t, newStore(t), Options{})
	s, err := m.Create("fighter", 1, nil)
	require.NoError(t, err)

	view, err := m.Snapshot(s.Code)
	require.NoError(t, err)
	assert.Nil(t, view.State)
	assert.Equal(t, StatusWaiting, view.Session.Status)

	m.Join(s.Code, "alice")
	m.Start(s.Code, "alice")
	first, err := m.Snapshot(s.Code)
	require.NoError(t, err)
	require.NotNil(t, first.State)
	again, err := m.Snapshot(s.Code)
	require.NoError(t, err)
	assert.Equal(t, first, again)

	m.Apply(s.Code, "alice", light())
	next, err := m.Snapshot(s.Code)
	require.NoError(t, err)
	assert.Greater(t, next.Session.Version, first.Session.Version)
	assert.NotEqual(t, string(first.State), string(next.State))

	_, err = m.Snapshot("nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRestore(t *testing.T) {
	store := newStore(t)
	first := newManager(t, store, Options{})
	playing := started(t, first, "fighter", "", "alice", "bob")
	first.Apply(playing.Code, "alice", light())
	waiting, err := first.Create("sumo", 3, json.RawMessage(`{"ringRadius":7}`))
	require.NoError(t, err)
	first.Join(waiting.Code, "carol")
	done := started(t, first, "fighter", `{"maxHp":5,"roundsToWin":1}`, "dan", "erin")
	first.Apply(done.Code, "dan", light())
	want, err := first.Snapshot(playing.Code)
	require.NoError(t, err)

	second := newManager(t, store, Options{})
	require.NoError(t, second.Restore())

	got, ok := second.Get(playing.Code)
	require.True(t, ok)
	assert.Equal(t, StatusPlaying, got.Info().Status)
	assert.Equal(t, []string{"alice", "bob"}, got.PlayerIDs())
	view, err := second.Snapshot(playing.Code)
	require.NoError(t, err)
	assert.JSONEq(t, string(want.State), string(view.State))

	out, err := second.Apply(playing.Code, "bob", light())
	require.NoError(t, err)
	assert.True(t, out.Result.Success, out.Result.Error)

	w, ok := second.Get(waiting.Code)
	require.True(t, ok)
	assert.Equal(t, uint64(3), w.Seed)
	assert.JSONEq(t, `{"ringRadius":7}`, string(w.Options))
	assert.Equal(t, "carol", w.Info().HostID)

	_, ok = second.Get(done.Code)
	assert.False(t, ok, "finished sessions stay on disk only")
}

func TestCleanup(t *testing.T) {
	store := newStore(t)
	m := newManager(t, store, Options{})
	idle, err := m.Create("fighter", 1, nil)
	require.NoError(t, err)
	m.Join(idle.Code, "alice")
	live, err := m.Create("fighter", 1, nil)
	require.NoError(t, err)
	m.Join(live.Code, "bob")
	require.True(t, live.ConnectPlayer("bob", make(chan []byte, 1)))

	assert.Equal(t, 0, m.cleanup(time.Now(), time.Hour), "young sessions survive")
	assert.Equal(t, 1, m.cleanup(time.Now().Add(2*time.Hour), time.Hour))

	_, ok := m.Get(idle.Code)
	assert.False(t, ok)
	_, err = store.GetSession(idle.Code)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, ok = m.Get(live.Code)
	assert.True(t, ok)

	live.DisconnectPlayer("bob", make(chan []byte))
	assert.Equal(t, 1, live.Connected(), "a stale channel does not detach the current one")
}

func TestBroadcastSkipsDisconnected(t *testing.T) {
	g, _ := catalog.NewRegistry().Get("sumo")
	s := NewSession("abc123", "sumo", g, 1, nil)
	require.NoError(t, s.AddPlayer("alice"))
	require.NoError(t, s.AddPlayer("bob"))
	send := make(chan []byte, 1)
	s.ConnectPlayer("alice", send)

	s.Broadcast([]byte("hi"))
	s.Broadcast([]byte("dropped when full"))
	assert.Equal(t, []byte("hi"), <-send)
	assert.Nil(t, s.GetPlayer("bob").Send)
}

func TestAddPlayerSeatedBeforeFull(t *testing.T) {
	g, _ := catalog.NewRegistry().Get("fighter")
	s := NewSession("abc123", "fighter", g, 1, nil)
	require.NoError(t, s.AddPlayer("alice"))
	require.NoError(t, s.AddPlayer("bob"))

	assert.ErrorIs(t, s.AddPlayer("bob"), ErrAlreadyJoined, "a seated player is reported as seated, not as overflow")
	assert.ErrorIs(t, s.AddPlayer("carol"), ErrFull)
	assert.Equal(t, []string{"alice", "bob"}, s.PlayerIDs())
}

func TestCreateRetriesTakenCodes(t *testing.T) {
	store := newStore(t)
	m := newManager(t, store, Options{})
	draws := []string{"aaaaaa", "aaaaaa", "bbbbbb", "bbbbbb", "cccccc"}
	m.codes = func() string {
		code := draws[0]
		draws = draws[1:]
		return code
	}

	first, err := m.Create("fighter", 1, nil)
	require.NoError(t, err)
	assert.Equal(t, "aaaaaa", first.Code)

	second, err := m.Create("fighter", 1, nil)
	require.NoError(t, err)
	assert.Equal(t, "bbbbbb", second.Code, "a live code is skipped")

	// A code held only by the store still counts as taken.
	m.mu.Lock()
	delete(m.sessions, "bbbbbb")
	m.mu.Unlock()
	third, err := m.Create("fighter", 1, nil)
	require.NoError(t, err)
	assert.Equal(t, "cccccc", third.Code)

	m.codes = func() string { return "aaaaaa" }
	_, err = m.Create("fighter", 1, nil)
	assert.ErrorContains(t, err, "no free session code")
}
