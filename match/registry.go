package match

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"othello/bot"
)

// ErrMatchNotFound is returned when a match id is not (or no longer) registered.
var ErrMatchNotFound = errors.New("match not found")

// Registry maps match ids to live coordinators. All methods are safe for
// concurrent use.
type Registry struct {
	mu      sync.RWMutex
	matches map[string]*Coordinator
	catalog *bot.Catalog

	defaultInit time.Duration
	defaultMove time.Duration
}

func NewRegistry(catalog *bot.Catalog) *Registry {
	return &Registry{
		matches: make(map[string]*Coordinator),
		catalog: catalog,
	}
}

// SetDefaultTimeouts sets the bot deadlines applied to match configs that do
// not specify their own. Call before serving traffic.
func (r *Registry) SetDefaultTimeouts(init, move time.Duration) {
	r.defaultInit = init
	r.defaultMove = move
}

// Create builds a coordinator under a fresh uuid and registers it. The id is
// only visible once the coordinator is fully constructed.
func (r *Registry) Create(cfg Config) (*Coordinator, error) {
	if cfg.InitTimeout == 0 && r.defaultInit > 0 {
		cfg.InitTimeout = r.defaultInit.Seconds()
	}
	if cfg.MoveTimeout == 0 && r.defaultMove > 0 {
		cfg.MoveTimeout = r.defaultMove.Seconds()
	}
	id := uuid.NewString()
	c, err := New(id, cfg, r.catalog)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.matches[id] = c
	r.mu.Unlock()
	return c, nil
}

// Get returns the coordinator registered under id.
func (r *Registry) Get(id string) (*Coordinator, error) {
	r.mu.RLock()
	c, ok := r.matches[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrMatchNotFound
	}
	return c, nil
}

// Remove unregisters and closes a match. Removing an unknown id is an error;
// the close itself is idempotent.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	c, ok := r.matches[id]
	delete(r.matches, id)
	r.mu.Unlock()
	if !ok {
		return ErrMatchNotFound
	}
	c.Close()
	log.Info().Str("match", id).Msg("match removed")
	return nil
}

// IDs lists the registered match ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.matches))
	for id := range r.matches {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Len reports the number of live matches.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.matches)
}

// CloseAll removes and closes every match, for shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	matches := r.matches
	r.matches = make(map[string]*Coordinator)
	r.mu.Unlock()
	for _, c := range matches {
		c.Close()
	}
}
