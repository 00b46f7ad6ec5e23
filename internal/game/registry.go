package game

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// ErrUnknownGame is returned by Lookup for a slug nobody registered.
var ErrUnknownGame = errors.New("unknown game type")

// template is a registered game with the metadata it reported at
// registration. Info is read once so listings never call into templates.
type template struct {
	game Game
	info GameInfo
}

// Registry holds the game templates a host can start, keyed by slug.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]template
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{templates: make(map[string]template)}
}

// Register adds a game template. It panics on a duplicate slug or on
// metadata no lobby could seat.
func (r *Registry) Register(g Game) {
	info := g.Info()
	if err := checkInfo(info); err != nil {
		panic(fmt.Sprintf("register game: %v", err))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.templates[info.Name]; exists {
		panic(fmt.Sprintf("game %q already registered", info.Name))
	}
	r.templates[info.Name] = template{game: g, info: info}
}

func checkInfo(info GameInfo) error {
	switch {
	case info.Name == "" || strings.TrimSpace(info.Name) != info.Name:
		return fmt.Errorf("invalid slug %q", info.Name)
	case info.MinPlayers < 1:
		return fmt.Errorf("%s: min players %d", info.Name, info.MinPlayers)
	case info.MaxPlayers < info.MinPlayers:
		return fmt.Errorf("%s: max players %d below min %d", info.Name, info.MaxPlayers, info.MinPlayers)
	}
	return nil
}

// Get returns a game by slug.
func (r *Registry) Get(name string) (Game, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[name]
	return t.game, ok
}

// Lookup is Get with an ErrUnknownGame-wrapped error for missing slugs.
func (r *Registry) Lookup(name string) (Game, error) {
	g, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGame, name)
	}
	return g, nil
}

// List returns info for all registered games, sorted by slug.
func (r *Registry) List() []GameInfo {
	return r.filter(func(GameInfo) bool { return true })
}

// Seating returns the games a lobby of humans can start, sorted by slug.
// A lone human counts for templates that add a cpu seat.
func (r *Registry) Seating(humans int) []GameInfo {
	return r.filter(func(info GameInfo) bool {
		if humans == 1 && info.SupportsCPU {
			return true
		}
		return humans >= info.MinPlayers && humans <= info.MaxPlayers
	})
}

func (r *Registry) filter(keep func(GameInfo) bool) []GameInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	infos := make([]GameInfo, 0, len(r.templates))
	for _, t := range r.templates {
		if keep(t.info) {
			infos = append(infos, t.info)
		}
	}
	slices.SortFunc(infos, func(a, b GameInfo) int { return strings.Compare(a.Name, b.Name) })
	return infos
}
