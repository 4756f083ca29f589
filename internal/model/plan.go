package model

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ActionType is the kind of file operation of a plan action.
type ActionType string

const (
	ActionTypeRead   ActionType = "read"
	ActionTypeWrite  ActionType = "write"
	ActionTypeCreate ActionType = "create"
	ActionTypeModify ActionType = "modify"
)

// Mutates returns true for actions that write to the workspace.
func (t ActionType) Mutates() bool {
	return t == ActionTypeWrite || t == ActionTypeCreate || t == ActionTypeModify
}

// Action is a single file level step of an execution plan.
type Action struct {
	Type        ActionType
	File        string
	Content     string
	Description string
}

// Validate validates the action.
func (a Action) Validate() error {
	switch a.Type {
	case ActionTypeRead, ActionTypeWrite, ActionTypeCreate, ActionTypeModify:
	default:
		return fmt.Errorf("unknown action type %q: %w", a.Type, ErrNotValid)
	}

	if err := ValidateRelPath(a.File); err != nil {
		return err
	}

	if a.Type.Mutates() && a.Content == "" {
		return fmt.Errorf("content required for %s action on %q: %w", a.Type, a.File, ErrNotValid)
	}

	return nil
}

// Plan is the ordered list of actions generated for a task prompt.
type Plan struct {
	Actions []Action
	Summary string
}

// Validate validates all the plan actions, the first invalid one fails the whole plan.
func (p Plan) Validate() error {
	for i, a := range p.Actions {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("action %d: %w", i, err)
		}
	}

	return nil
}

// ValidateRelPath checks a path is relative and stays inside its root once cleaned.
func ValidateRelPath(p string) error {
	if strings.TrimSpace(p) == "" {
		return fmt.Errorf("file path is required: %w", ErrNotValid)
	}

	if filepath.IsAbs(p) || strings.HasPrefix(p, "/") {
		return fmt.Errorf("file path %q must be relative: %w", p, ErrNotValid)
	}

	clean := filepath.Clean(p)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("file path %q escapes the workspace: %w", p, ErrNotValid)
	}

	return nil
}
