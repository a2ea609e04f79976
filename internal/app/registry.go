package app

import (
	"sync"

	"github.com/dkeye/Molian/internal/core"
	"github.com/dkeye/Molian/internal/domain"
	"github.com/rs/zerolog/log"
)

// Registry is the in-process connection registry: user -> live sockets.
// It lives only in process memory; the sockets it indexes die with the
// process too, so a restart loses nothing that is still reachable.
type Registry struct {
	mu     sync.RWMutex
	byUser map[domain.UserID]map[core.ConnID]core.Conn
	conns  int
}

var _ core.ConnRegistry = (*Registry)(nil)

func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[domain.UserID]map[core.ConnID]core.Conn),
	}
}

func (r *Registry) Add(c core.Conn) {
	uid := c.UserID()
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.byUser[uid]
	if !ok {
		set = make(map[core.ConnID]core.Conn)
		r.byUser[uid] = set
	}
	if _, dup := set[c.ID()]; !dup {
		r.conns++
	}
	set[c.ID()] = c
	log.Info().Str("module", "app.registry").Str("user", string(uid)).Str("conn", string(c.ID())).Int("devices", len(set)).Msg("connection registered")
}

func (r *Registry) Remove(c core.Conn) bool {
	uid := c.UserID()
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.byUser[uid]
	if !ok {
		return false
	}
	// Only the exact handle is removed; a reused id with another handle stays.
	if cur, ok := set[c.ID()]; !ok || cur != c {
		return false
	}
	delete(set, c.ID())
	r.conns--
	if len(set) == 0 {
		delete(r.byUser, uid)
	}
	log.Info().Str("module", "app.registry").Str("user", string(uid)).Str("conn", string(c.ID())).Int("devices", len(set)).Msg("connection removed")
	return true
}

// Lookup returns a snapshot; callers may send without holding the lock.
func (r *Registry) Lookup(uid domain.UserID) []core.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.byUser[uid]
	if len(set) == 0 {
		return nil
	}
	out := make([]core.Conn, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

func (r *Registry) Stats() core.RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return core.RegistryStats{Users: len(r.byUser), Connections: r.conns}
}

func (r *Registry) CloseAll() {
	r.mu.Lock()
	all := make([]core.Conn, 0, r.conns)
	for _, set := range r.byUser {
		for _, c := range set {
			all = append(all, c)
		}
	}
	r.byUser = make(map[domain.UserID]map[core.ConnID]core.Conn)
	r.conns = 0
	r.mu.Unlock()

	for _, c := range all {
		c.Close()
	}
	log.Info().Str("module", "app.registry").Int("closed", len(all)).Msg("registry drained")
}
