// Package collector defines the sources that feed vault changes into the
// engine, plus the file-system and config watchers.
package collector

import (
	"context"

	"github.com/grovetools/superstate/internal/daemon/store"
	"github.com/grovetools/superstate/pkg/models"
)

// MutationKind names the change a Mutation reports.
type MutationKind string

const (
	MutationCreated    MutationKind = "created"
	MutationRenamed    MutationKind = "renamed"
	MutationDeleted    MutationKind = "deleted"
	MutationChanged    MutationKind = "changed"
	MutationDefinition MutationKind = "definition"
	MutationRenameTag  MutationKind = "rename_tag"
	MutationDeleteTag  MutationKind = "delete_tag"

	// MutationDeclared replaces a configured space's definition; a nil
	// definition retracts the space.
	MutationDeclared MutationKind = "declared"
)

// Valid reports whether k is a known kind.
func (k MutationKind) Valid() bool {
	switch k {
	case MutationCreated, MutationRenamed, MutationDeleted, MutationChanged,
		MutationDefinition, MutationRenameTag, MutationDeleteTag, MutationDeclared:
		return true
	}
	return false
}

// Mutation is one observed change. For tag mutations OldPath and Path hold
// the old and new tag.
type Mutation struct {
	Kind       MutationKind            `json:"kind"`
	Path       string                  `json:"path"`
	OldPath    string                  `json:"oldPath,omitempty"`
	Definition *models.SpaceDefinition `json:"definition,omitempty"`
}

// Collector is a source of mutations.
type Collector interface {
	// Name returns the collector's identifier.
	Name() string

	// Run starts the collection loop. It sends mutations to the channel
	// and blocks until ctx is cancelled.
	Run(ctx context.Context, st *store.Store, out chan<- Mutation) error
}
