package orch

import (
	"github.com/dkeye/Molian/internal/core"
	"github.com/rs/zerolog/log"
)

// Admit registers an authenticated, already upgraded connection.
func (o *Orchestrator) Admit(c core.Conn) {
	o.Registry.Add(c)
	log.Info().Str("module", "orch").Str("user", string(c.UserID())).Str("conn", string(c.ID())).Msg("connection admitted")
}

// Drop is the close/error path. It is safe to call more than once and
// never panics; only c is removed, other devices of the user stay.
func (o *Orchestrator) Drop(c core.Conn) {
	if c == nil {
		return
	}
	if o.Registry.Remove(c) {
		log.Info().Str("module", "orch").Str("user", string(c.UserID())).Str("conn", string(c.ID())).Msg("connection dropped")
	}
	c.Close()
}

// Shutdown closes every open socket.
func (o *Orchestrator) Shutdown() {
	o.Registry.CloseAll()
}

func (o *Orchestrator) Stats() core.RegistryStats {
	return o.Registry.Stats()
}
