// Package store provides the in-memory entity caches and dependency maps
// of the index, plus the event surface consumers subscribe to.
package store

// EventType defines what kind of change an event reports.
type EventType string

const (
	EventPathCreated     EventType = "path.created"
	EventPathChanged     EventType = "path.changed"
	EventPathRenamed     EventType = "path.renamed"
	EventPathDeleted     EventType = "path.deleted"
	EventSpaceChanged    EventType = "space.changed"
	EventSpaceDeleted    EventType = "space.deleted"
	EventContextChanged  EventType = "context.changed"
	EventMutationFailed  EventType = "context.mutation_failed"
	EventFocusChanged    EventType = "focus.changed"
	EventReindexStarted  EventType = "index.reindex_started"
	EventIndexFullyReady EventType = "index.fully_loaded"
)

// Event represents a change to the index.
type Event struct {
	Type    EventType   `json:"type"`
	Path    string      `json:"path,omitempty"`
	OldPath string      `json:"oldPath,omitempty"`
	Space   string      `json:"space,omitempty"`
	Source  string      `json:"source,omitempty"` // which operation emitted it (e.g. "rename", "metadata", "sync")
	Error   string      `json:"error,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}

// Listener receives events synchronously.
type Listener func(Event)
