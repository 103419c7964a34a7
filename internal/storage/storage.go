// Package storage declares the persistence boundary used by the service.
package storage

import (
	"context"
	"errors"

	"taskit/internal/models"
)

// ErrNotFound is returned when a project id is unknown to the store.
var ErrNotFound = errors.New("project not found")

// Filter narrows ListProjects.
type Filter int

const (
	AllProjects Filter = iota
	ActiveProjects
	FinishedProjects
)

// Match reports whether a project passes the filter.
func (f Filter) Match(p models.Project) bool {
	switch f {
	case ActiveProjects:
		return p.State != models.ProjectFinished
	case FinishedProjects:
		return p.State == models.ProjectFinished
	default:
		return true
	}
}

// Mutator edits a project inside a write transaction. Returning an error
// rolls the transaction back.
type Mutator func(p *models.Project) error

// Store persists projects as whole aggregates.
type Store interface {
	CreateProject(ctx context.Context, p models.Project) error
	GetProject(ctx context.Context, id string) (models.Project, error)
	ListProjects(ctx context.Context, f Filter) ([]models.Project, error)
	// Update loads the project, applies fn and commits the result atomically.
	Update(ctx context.Context, id string, fn Mutator) (models.Project, error)
	DeleteProject(ctx context.Context, id string) error
	Close() error
}
