// Package errors provides the error taxonomy of the agent runtime.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for the runtime's failure modes.
var (
	ErrDuplicateIdentity       = errors.New("duplicate agent identity")
	ErrUnknownRecipient        = errors.New("unknown recipient")
	ErrUnknownAgent            = errors.New("unknown agent")
	ErrMailboxOverflow         = errors.New("mailbox overflow")
	ErrMailboxClosed           = errors.New("mailbox closed")
	ErrMailboxInUse            = errors.New("mailbox already attached")
	ErrPlanningFailed          = errors.New("planning failed")
	ErrLifecycleCallbackFailed = errors.New("lifecycle callback failed")
	ErrSensorReadFailed        = errors.New("sensor read failed")
	ErrTickTimeout             = errors.New("tick timeout exceeded")
	ErrRuntimeStopped          = errors.New("runtime stopped")
)

// Phase names the lifecycle callback an error was raised in.
type Phase string

const (
	PhaseInitialize Phase = "initialize"
	PhaseExecute    Phase = "execute"
	PhaseShutdown   Phase = "shutdown"
)

// LifecycleCallbackError is recorded on a host when one of its agent's
// callbacks returns an error or panics.
type LifecycleCallbackError struct {
	AgentID string
	Phase   Phase
	Err     error
}

func (e *LifecycleCallbackError) Error() string {
	return fmt.Sprintf("agent %s: %s callback failed: %v", e.AgentID, e.Phase, e.Err)
}

func (e *LifecycleCallbackError) Unwrap() error { return e.Err }

// Is lets errors.Is match ErrLifecycleCallbackFailed as well as the cause.
func (e *LifecycleCallbackError) Is(target error) bool {
	return target == ErrLifecycleCallbackFailed
}

// NewCallbackError wraps err as a failure of the given phase.
func NewCallbackError(agentID string, phase Phase, err error) *LifecycleCallbackError {
	return &LifecycleCallbackError{AgentID: agentID, Phase: phase, Err: err}
}

// PlanningError is attached to a goal whose planner could not produce a plan.
type PlanningError struct {
	GoalID string
	Err    error
}

func (e *PlanningError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("goal %s: planning failed: %v", e.GoalID, e.Err)
	}
	return fmt.Sprintf("goal %s: planning failed", e.GoalID)
}

func (e *PlanningError) Unwrap() error { return e.Err }

func (e *PlanningError) Is(target error) bool { return target == ErrPlanningFailed }

// SensorError reports a failed sensor read.
type SensorError struct {
	SensorID string
	Err      error
}

func (e *SensorError) Error() string {
	return fmt.Sprintf("sensor %s: read failed: %v", e.SensorID, e.Err)
}

func (e *SensorError) Unwrap() error { return e.Err }

func (e *SensorError) Is(target error) bool { return target == ErrSensorReadFailed }

// RoutingError is returned synchronously to a sender when a message
// could not be delivered.
type RoutingError struct {
	Receiver string
	Err      error
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("route to %s: %v", e.Receiver, e.Err)
}

func (e *RoutingError) Unwrap() error { return e.Err }

// IsRetryable returns true if the error is transient and the sender may
// try again later. Only a full mailbox qualifies; an unknown recipient
// stays unknown.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrMailboxOverflow)
}
