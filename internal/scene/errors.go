package scene

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound             = errors.New("scene not found")
	ErrAlreadyRegistered    = errors.New("scene already registered")
	ErrTransitionInProgress = errors.New("scene transition in progress")
	ErrActiveScene          = errors.New("operation not allowed on the active scene")
	ErrInvalidState         = errors.New("invalid scene state")
)

// Hook names used in LifecycleHookError.
const (
	HookLoad   = "onLoad"
	HookUnload = "onUnload"
	HookEnter  = "onEnter"
	HookExit   = "onExit"
	HookPause  = "onPause"
	HookResume = "onResume"
)

// LifecycleHookError wraps a failure returned by a scene's lifecycle hook.
type LifecycleHookError struct {
	Scene string
	Hook  string
	Err   error
}

func (e *LifecycleHookError) Error() string {
	return fmt.Sprintf("scene %s: %s: %v", e.Scene, e.Hook, e.Err)
}

func (e *LifecycleHookError) Unwrap() error { return e.Err }
