// Package daemon provides a client interface for interacting with the
// superstate daemon. It implements a transparent fallback pattern: if the
// daemon is running, use its HTTP API; if not, index the vault in-process.
package daemon

import (
	"context"

	"github.com/grovetools/superstate/internal/daemon/collector"
	"github.com/grovetools/superstate/internal/daemon/engine"
	"github.com/grovetools/superstate/internal/daemon/store"
	"github.com/grovetools/superstate/internal/search"
	"github.com/grovetools/superstate/pkg/models"
)

// Row is one query result row in its JSON form.
type Row map[string]interface{}

// Client defines the interface for interacting with the index.
// Both RemoteClient (HTTP) and LocalClient (direct calls) implement this interface.
type Client interface {
	// Stats returns the engine counters.
	Stats(ctx context.Context) (*engine.Stats, error)

	// Path returns the cached state of one path.
	Path(ctx context.Context, path string) (*models.PathState, error)

	// Spaces returns every known space.
	Spaces(ctx context.Context) ([]*models.SpaceState, error)

	// Query filters and sorts a space's table.
	Query(ctx context.Context, space string, view models.View) ([]Row, error)

	// Search ranks paths against text.
	Search(ctx context.Context, text string, limit int) ([]search.Result, error)

	// Focuses returns the focus lists; SetFocuses replaces them.
	Focuses(ctx context.Context) ([]models.Focus, error)
	SetFocuses(ctx context.Context, focuses []models.Focus) error

	// Apply reports a change the caller already made to the vault.
	Apply(ctx context.Context, m collector.Mutation) error

	// StreamEvents subscribes to store events.
	// For LocalClient, this returns an error since streaming is only available via daemon.
	StreamEvents(ctx context.Context) (<-chan store.Event, error)

	// IsRunning returns true if the daemon is available and responding.
	IsRunning() bool

	// Close cleans up any resources used by the client.
	Close() error
}
