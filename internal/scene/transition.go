package scene

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Phase is a transition's current stage.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseFadeOut
	PhaseSwitch
	PhaseFadeIn
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseFadeOut:
		return "fade-out"
	case PhaseSwitch:
		return "switch"
	case PhaseFadeIn:
		return "fade-in"
	case PhaseDone:
		return "done"
	}
	return "unknown"
}

// FadeFunc receives fade progress in (0, 1] for PhaseFadeOut and PhaseFadeIn.
type FadeFunc func(phase Phase, progress float64)

type TransitionConfig struct {
	FadeOut time.Duration
	FadeIn  time.Duration
	// Steps is the number of OnFade calls per fade phase.
	Steps  int
	OnFade FadeFunc
}

// DefaultTransition is used when neither the manager nor the scene sets one.
var DefaultTransition = TransitionConfig{
	FadeOut: 250 * time.Millisecond,
	FadeIn:  250 * time.Millisecond,
	Steps:   10,
}

// Transition runs fade-out, switch and fade-in strictly in sequence.
type Transition struct {
	ID   string
	From string
	To   string
	cfg  TransitionConfig

	mu    sync.Mutex
	phase Phase
}

func newTransition(from, to string, cfg TransitionConfig) *Transition {
	return &Transition{
		ID:   uuid.NewString(),
		From: from,
		To:   to,
		cfg:  cfg,
	}
}

func (t *Transition) Phase() Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phase
}

func (t *Transition) setPhase(p Phase) {
	t.mu.Lock()
	t.phase = p
	t.mu.Unlock()
}

// Run executes the protocol. switchFn runs between the fades; an error from
// it or a cancelled context stops the transition where it is.
func (t *Transition) Run(ctx context.Context, switchFn func(ctx context.Context) error) error {
	t.setPhase(PhaseFadeOut)
	if err := t.fade(ctx, PhaseFadeOut, t.cfg.FadeOut); err != nil {
		return err
	}
	t.setPhase(PhaseSwitch)
	if err := switchFn(ctx); err != nil {
		return err
	}
	t.setPhase(PhaseFadeIn)
	if err := t.fade(ctx, PhaseFadeIn, t.cfg.FadeIn); err != nil {
		return err
	}
	t.setPhase(PhaseDone)
	return nil
}

func (t *Transition) fade(ctx context.Context, phase Phase, d time.Duration) error {
	if d <= 0 {
		t.emit(phase, 1)
		return ctx.Err()
	}
	steps := t.cfg.Steps
	if steps <= 0 {
		steps = 1
	}
	interval := d / time.Duration(steps)
	timer := time.NewTimer(interval)
	defer timer.Stop()
	for i := 1; i <= steps; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
		t.emit(phase, float64(i)/float64(steps))
		timer.Reset(interval)
	}
	return nil
}

func (t *Transition) emit(phase Phase, progress float64) {
	if t.cfg.OnFade != nil {
		t.cfg.OnFade(phase, progress)
	}
}
