package session

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgraph-io/ristretto"

	"moltblox/internal/game"
	"moltblox/internal/storage"
)

// Options tune a Manager. Zero values take defaults.
type Options struct {
	MaxCPUSteps int           // cpu actions run after one human action
	SnapshotTTL time.Duration // how long a cached View lives
}

func (o *Options) applyDefaults() {
	game.Default(&o.MaxCPUSteps, 64)
	game.Default(&o.SnapshotTTL, 5*time.Minute)
}

// Event is a match event with its position in the session's log.
type Event struct {
	Seq int64 `json:"seq"`
	game.Event
}

// Outcome is what one accepted or rejected action produced.
type Outcome struct {
	Result   game.ActionResult `json:"result"`
	Events   []Event           `json:"events,omitempty"`
	CPUSteps int               `json:"cpuSteps,omitempty"`
}

// Manager manages all active sessions.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	registry *game.Registry
	store    *storage.Store
	logger   *log.Logger
	cache    *ristretto.Cache
	opts     Options
	codes    func() string
}

// codeAttempts bounds how many join codes Create draws before giving up.
const codeAttempts = 16

// NewManager creates a session manager.
func NewManager(registry *game.Registry, store *storage.Store, logger *log.Logger, opts Options) (*Manager, error) {
	opts.applyDefaults()
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     1 << 12, // one unit per cached view
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot cache: %w", err)
	}
	return &Manager{
		sessions: make(map[string]*Session),
		registry: registry,
		store:    store,
		logger:   logger,
		cache:    cache,
		opts:     opts,
		codes:    generateCode,
	}, nil
}

// Close releases the snapshot cache.
func (m *Manager) Close() {
	m.cache.Close()
}

// Create makes a new session and persists it. A zero seed is replaced by a
// random one so every match has a reproducible seed on record.
func (m *Manager) Create(gameType string, seed uint64, options json.RawMessage) (*Session, error) {
	g, err := m.registry.Lookup(gameType)
	if err != nil {
		return nil, err
	}
	if len(options) > 0 && !json.Valid(options) {
		return nil, fmt.Errorf("%w: options are not valid json", game.ErrInvalidPayload)
	}
	if seed == 0 {
		seed = randomSeed()
	}
	code, err := m.freeCode()
	if err != nil {
		return nil, err
	}
	if err := m.store.CreateSession(code, gameType, seed, options); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}
	s := NewSession(code, gameType, g, seed, options)
	m.mu.Lock()
	m.sessions[code] = s
	m.mu.Unlock()
	m.logger.Info("session created", "code", code, "game", gameType, "seed", seed)
	return s, nil
}

// Get returns a session by code.
func (m *Manager) Get(code string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[code]
	return s, ok
}

// freeCode draws join codes until one is used by neither a live session
// nor a stored one.
func (m *Manager) freeCode() (string, error) {
	for range codeAttempts {
		code := m.codes()
		if _, live := m.Get(code); live {
			continue
		}
		_, err := m.store.GetSession(code)
		if errors.Is(err, storage.ErrNotFound) {
			return code, nil
		}
		if err != nil {
			return "", fmt.Errorf("check session code: %w", err)
		}
	}
	return "", fmt.Errorf("no free session code after %d attempts", codeAttempts)
}

func (m *Manager) lookup(code string) (*Session, error) {
	s, ok := m.Get(code)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, code)
	}
	return s, nil
}

// List returns info for all active sessions.
func (m *Manager) List() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	infos := make([]Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		infos = append(infos, s.Info())
	}
	return infos
}

// Join seats playerID in a waiting session and persists the roster.
// Joining a session the player already sits in is not an error.
func (m *Manager) Join(code, playerID string) (*Session, error) {
	s, err := m.lookup(code)
	if err != nil {
		return nil, err
	}
	if err := s.AddPlayer(playerID); err != nil {
		if errors.Is(err, ErrAlreadyJoined) {
			return s, nil
		}
		return nil, err
	}
	if err := m.savePlayers(s); err != nil {
		m.logger.Error("save players", "code", code, "err", err)
	}
	return s, nil
}

// Leave releases a seat in a waiting session.
func (m *Manager) Leave(code, playerID string) error {
	s, err := m.lookup(code)
	if err != nil {
		return err
	}
	if !s.RemovePlayer(playerID) {
		return ErrNotAccepting
	}
	return m.savePlayers(s)
}

func (m *Manager) savePlayers(s *Session) error {
	s.mu.RLock()
	host, players := s.HostID, append([]string(nil), s.order...)
	s.mu.RUnlock()
	return m.store.UpdateSessionPlayers(s.Code, host, players)
}

// Start begins the match. When playerID is non-empty it must be the host.
// Engine seats that move first are played before Start returns.
func (m *Manager) Start(code, playerID string) (Outcome, error) {
	s, err := m.lookup(code)
	if err != nil {
		return Outcome{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if playerID != "" && playerID != s.HostID {
		return Outcome{}, ErrNotHost
	}
	if err := s.startLocked(); err != nil {
		return Outcome{}, err
	}
	steps := m.runCPU(s)
	out := Outcome{Result: game.ActionResult{Success: true, NewState: s.Match.Snapshot()}, CPUSteps: steps}
	out.Events = m.commitLocked(s)
	m.logger.Info("session started", "code", code, "players", s.order)
	return out, nil
}

// Apply runs one player action against the session's match, then lets any
// cpu seats respond. Rejected actions come back in Outcome.Result with a
// nil error and change nothing.
func (m *Manager) Apply(code, playerID string, action game.Action) (Outcome, error) {
	s, err := m.lookup(code)
	if err != nil {
		return Outcome{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Match == nil {
		return Outcome{}, ErrNotStarted
	}
	if playerID == game.CPUPlayerID {
		return Outcome{Result: game.Reject(fmt.Errorf("%w: %s", game.ErrUnknownPlayer, playerID))}, nil
	}

	res := s.Match.ProcessAction(playerID, action)
	if !res.Success {
		m.logger.Debug("action rejected", "code", code, "player", playerID, "type", action.Type, "err", res.Error)
		return Outcome{Result: res}, nil
	}
	steps := m.runCPU(s)
	if steps > 0 {
		res.NewState = s.Match.Snapshot()
	}
	events := m.commitLocked(s)
	return Outcome{Result: res, Events: events, CPUSteps: steps}, nil
}

// runCPU feeds cpu actions back into the match until the driver yields or
// the step bound is hit. Caller must hold the write lock.
func (m *Manager) runCPU(s *Session) int {
	driver, ok := s.Match.(game.CPUDriver)
	if !ok {
		return 0
	}
	for step := 0; step < m.opts.MaxCPUSteps; step++ {
		id, action, ok := driver.NextCPUAction()
		if !ok {
			return step
		}
		if res := s.Match.ProcessAction(id, action); !res.Success {
			m.logger.Error("cpu action rejected", "code", s.Code, "type", action.Type, "err", res.Error)
			return step
		}
	}
	m.logger.Warn("cpu step limit reached", "code", s.Code, "limit", m.opts.MaxCPUSteps)
	return m.opts.MaxCPUSteps
}

// commitLocked bumps the version, flips finished matches, and persists the
// drained events and state. Storage errors are logged; the in-memory match
// stays authoritative.
func (m *Manager) commitLocked(s *Session) []Event {
	s.Version++
	if s.Match.IsOver() && s.Status != StatusFinished {
		s.Status = StatusFinished
		winner, _ := s.Match.Winner()
		m.logger.Info("match finished", "code", s.Code, "winner", winner)
	}

	drained := s.Match.DrainEvents()
	rows := make([]storage.EventRow, 0, len(drained))
	for _, e := range drained {
		data, err := json.Marshal(e.Data)
		if err != nil {
			m.logger.Error("marshal event", "code", s.Code, "type", e.Type, "err", err)
			data = []byte("{}")
		}
		rows = append(rows, storage.EventRow{ID: e.ID, Type: e.Type, PlayerID: e.PlayerID, Data: data, CreatedAt: e.Timestamp})
	}
	stored, err := m.store.AppendEvents(s.Code, rows)
	if err != nil {
		m.logger.Error("append events", "code", s.Code, "err", err)
	}
	events := make([]Event, len(drained))
	for i, e := range drained {
		events[i] = Event{Event: e}
		if i < len(stored) {
			events[i].Seq = stored[i].Seq
		}
	}

	if err := m.saveLocked(s); err != nil {
		m.logger.Error("save match state", "code", s.Code, "err", err)
	}
	return events
}

func (m *Manager) saveLocked(s *Session) error {
	if err := m.store.UpdateSessionStatus(s.Code, string(s.Status)); err != nil {
		return err
	}
	data, err := s.Match.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal match state: %w", err)
	}
	return m.store.SaveMatchState(s.Code, string(data))
}

// Snapshot returns the current View of a session, served from the cache
// while the session's version is unchanged.
func (m *Manager) Snapshot(code string) (View, error) {
	s, err := m.lookup(code)
	if err != nil {
		return View{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	key := fmt.Sprintf("%s@%d", s.Code, s.Version)
	if v, ok := m.cache.Get(key); ok {
		if view, ok := v.(View); ok {
			return view, nil
		}
	}
	view := s.viewLocked()
	m.cache.SetWithTTL(key, view, 1, m.opts.SnapshotTTL)
	return view, nil
}

// Events returns the persisted events of a session after seq.
func (m *Manager) Events(code string, after int64) ([]Event, error) {
	if _, err := m.lookup(code); err != nil {
		return nil, err
	}
	rows, err := m.store.ListEvents(code, after)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	events := make([]Event, 0, len(rows))
	for _, r := range rows {
		e := Event{Seq: r.Seq, Event: game.Event{ID: r.ID, Type: r.Type, PlayerID: r.PlayerID, Timestamp: r.CreatedAt}}
		if err := json.Unmarshal(r.Data, &e.Data); err != nil {
			return nil, fmt.Errorf("event %d: %w", r.Seq, err)
		}
		events = append(events, e)
	}
	return events, nil
}

// Restore loads unfinished sessions from the database on startup.
func (m *Manager) Restore() error {
	rows, err := m.store.ListSessions("")
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	restored := 0
	for _, row := range rows {
		if row.Status == string(StatusFinished) {
			continue
		}
		g, ok := m.registry.Get(row.GameType)
		if !ok {
			m.logger.Warn("skipping session: unknown game type", "code", row.Code, "game", row.GameType)
			continue
		}
		s := NewSession(row.Code, row.GameType, g, row.Seed, row.Options)
		s.Status = Status(row.Status)
		s.HostID = row.HostID
		s.CreatedAt = row.CreatedAt
		for _, id := range row.Players {
			s.Players[id] = &Player{ID: id}
			s.order = append(s.order, id)
		}

		if s.Status == StatusPlaying {
			stateJSON, err := m.store.GetMatchState(row.Code)
			if err != nil {
				m.logger.Warn("skipping session: no match state", "code", row.Code, "err", err)
				continue
			}
			match, err := g.Restore([]byte(stateJSON))
			if err != nil {
				m.logger.Warn("skipping session: restore failed", "code", row.Code, "err", err)
				continue
			}
			s.Match = match
		}
		m.mu.Lock()
		m.sessions[row.Code] = s
		m.mu.Unlock()
		restored++
	}
	m.logger.Info("sessions restored", "count", restored)
	return nil
}

// Remove deletes a session from memory and storage.
func (m *Manager) Remove(code string) {
	m.mu.Lock()
	delete(m.sessions, code)
	m.mu.Unlock()
	if err := m.store.DeleteSession(code); err != nil {
		m.logger.Error("delete session", "code", code, "err", err)
	}
}

// CleanupLoop removes stale sessions every interval until ctx is done.
func (m *Manager) CleanupLoop(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.cleanup(time.Now(), maxAge)
		}
	}
}

// cleanup drops finished sessions and sessions nobody is connected to once
// they are older than maxAge.
func (m *Manager) cleanup(now time.Time, maxAge time.Duration) int {
	m.mu.Lock()
	var stale []string
	for code, s := range m.sessions {
		s.mu.RLock()
		idle := s.Status == StatusFinished || len(s.order) == 0
		if !idle {
			idle = true
			for _, p := range s.Players {
				if p.Send != nil {
					idle = false
					break
				}
			}
		}
		old := now.Sub(s.CreatedAt) > maxAge
		s.mu.RUnlock()
		if idle && old {
			stale = append(stale, code)
			delete(m.sessions, code)
		}
	}
	m.mu.Unlock()

	for _, code := range stale {
		m.logger.Info("cleaning up session", "code", code)
		if err := m.store.DeleteSession(code); err != nil {
			m.logger.Error("delete session", "code", code, "err", err)
		}
	}
	return len(stale)
}

func generateCode() string {
	b := make([]byte, 3) // 6 hex chars
	rand.Read(b)
	return hex.EncodeToString(b)
}

func randomSeed() uint64 {
	var b [8]byte
	rand.Read(b[:])
	if seed := binary.LittleEndian.Uint64(b[:]); seed != 0 {
		return seed
	}
	return 1
}
