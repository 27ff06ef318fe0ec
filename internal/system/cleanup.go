package system

import (
	"time"

	"github.com/whalecs/ecsrt/internal/core/ecs"
)

// Priorities of the built-in systems. User systems normally run below
// PriorityPersist.
const (
	PriorityPersist = 900
	PriorityCleanup = 1000
)

// CleanupSystem flushes the deferred entity destruction queue at tick end.
type CleanupSystem struct {
	flushed int
}

func NewCleanupSystem() *CleanupSystem {
	return &CleanupSystem{}
}

func (s *CleanupSystem) Name() string  { return "cleanup" }
func (s *CleanupSystem) Priority() int { return PriorityCleanup }

func (s *CleanupSystem) Update(w *ecs.World, _ time.Duration) error {
	s.flushed += w.FlushDestroyQueue()
	return nil
}

// Flushed returns how many entities the system has destroyed.
func (s *CleanupSystem) Flushed() int { return s.flushed }
