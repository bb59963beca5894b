// Package vault reads and writes the content store behind the index.
package vault

import (
	"time"

	"github.com/grovetools/superstate/pkg/models"
)

// MainTable is the schema ID of a space's context table.
const MainTable = "main"

// PathCache is what the store knows about one item before it is indexed.
// Tags are the inline tags of the body; Links are resolved vault paths.
type PathCache struct {
	Path     string
	Type     models.PathType
	SubType  string
	Metadata map[string]interface{}
	Tags     []string
	Links    []string
	ReadOnly bool
	ModTime  time.Time
}

// Adapter is the storage surface the engine and workers depend on. Reads of
// missing entities return nil without an error.
type Adapter interface {
	ReadPathCache(path string) (*PathCache, error)
	// ReadAllTables returns the tables stored for a space, keyed by schema ID.
	ReadAllTables(space string) (map[string]*models.Table, error)
	// SaveTable writes table under its schema ID. Without forceCreate a
	// space that has no stored tables yet is left alone and false is
	// returned.
	SaveTable(space string, table *models.Table, forceCreate bool) (bool, error)
	// AllPaths lists every path of type t, or every path when t is empty.
	AllPaths(t models.PathType) ([]string, error)
	ContextInitiated(space string) bool
	ReadSpaceDefinition(space string) (*models.SpaceDefinition, error)
	SaveSpaceDefinition(space string, def *models.SpaceDefinition) error
	SaveMetadata(path string, meta map[string]interface{}) error
	Create(path string, t models.PathType) error
	Rename(oldPath, newPath string) error
	Delete(path string) error
}
