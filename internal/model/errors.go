package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a resource is not found.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a resource already exists.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotValid is returned when a resource is not valid.
	ErrNotValid = errors.New("not valid")
	// ErrInvalidTransition is returned when a task status transition is not allowed.
	ErrInvalidTransition = errors.New("invalid task status transition")
	// ErrTaskNotPending is returned when a task was expected to be pending and it isn't.
	ErrTaskNotPending = errors.New("task is not in PENDING status")
	// ErrNothingToCommit is returned when a workspace has no changes to commit.
	ErrNothingToCommit = errors.New("nothing to commit")
	// ErrPushRejected is returned when the remote rejects a push (e.g non fast-forward).
	ErrPushRejected = errors.New("push rejected")
)

// WorkspaceError is returned when a git working copy operation fails (clone, fetch,
// checkout, pull, commit or push).
type WorkspaceError struct {
	Op  string
	Err error
}

func (e *WorkspaceError) Error() string {
	return fmt.Sprintf("workspace %s failed: %s", e.Op, e.Err)
}

func (e *WorkspaceError) Unwrap() error { return e.Err }

// PlanParseError is returned when the planner model output is not a valid execution plan.
type PlanParseError struct {
	Reason string
	Err    error
}

func (e *PlanParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("could not parse execution plan: %s: %s", e.Reason, e.Err)
	}
	return fmt.Sprintf("could not parse execution plan: %s", e.Reason)
}

func (e *PlanParseError) Unwrap() error { return e.Err }

// ActionError is returned when a single plan action can't be applied.
type ActionError struct {
	Action Action
	Err    error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s action on %q failed: %s", e.Action.Type, e.Action.File, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }

// DeploymentError is returned when a deployment could not be triggered.
type DeploymentError struct {
	Err error
}

func (e *DeploymentError) Error() string {
	return fmt.Sprintf("could not trigger deployment: %s", e.Err)
}

func (e *DeploymentError) Unwrap() error { return e.Err }
