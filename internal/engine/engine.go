// Package engine implements the orchestration core: assignment chains,
// batch dispatch, result aggregation, and the guardian monitor. Every
// multi-row mutation runs inside a single store transaction so that group
// status, counters, and chain links never drift apart.
package engine

import (
	"log/slog"
	"time"

	"baton/internal/store"
)

// Engine coordinates all state changes. It owns no state of its own beyond
// the expansion policy; everything durable lives in the store.
type Engine struct {
	store  store.Store
	policy ExpansionPolicy
	log    *slog.Logger

	// Now returns the current time. Tests override it for deterministic
	// timestamps.
	Now func() time.Time
}

// New builds an engine on top of a store. A nil policy disables fan-out
// expansion; specs then pass through unchanged.
func New(s store.Store, policy ExpansionPolicy, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		store:  s,
		policy: policy,
		log:    log,
		Now:    time.Now,
	}
}

func (e *Engine) now() time.Time {
	return e.Now().UTC()
}
