// Package storage defines persistence contracts for stored workflow
// definitions.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates a requested workflow record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists indicates a workflow with the same name is stored.
	ErrAlreadyExists = errors.New("record already exists")
)

// PlaceRecord is one stored place with its display label.
type PlaceRecord struct {
	Name  string
	Label string
}

// TransitionRecord is one stored transition row.
type TransitionRecord struct {
	Name           string
	Label          string
	From           []string
	To             []string
	Permission     string
	HandleBySystem bool
}

// WorkflowRecord is one stored workflow with its places and transitions.
type WorkflowRecord struct {
	Name        string
	Supports    []string
	StartPlace  string
	Places      []PlaceRecord
	FinalPlace  string
	LastPlaces  []string
	Extra       map[string]any
	Transitions []TransitionRecord
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// WorkflowSource lists stored workflows together with their transitions.
type WorkflowSource interface {
	ListWorkflows(ctx context.Context) ([]WorkflowRecord, error)
}

// WorkflowStore persists workflow records.
type WorkflowStore interface {
	WorkflowSource
	CreateWorkflow(ctx context.Context, record WorkflowRecord) error
	GetWorkflow(ctx context.Context, name string) (WorkflowRecord, error)
	DeleteWorkflow(ctx context.Context, name string) error
}
