// Package persist stores serialized cache entries keyed by kind and path.
package persist

// Kind separates the entry namespaces.
type Kind string

const (
	KindPath    Kind = "path"
	KindSpace   Kind = "space"
	KindContext Kind = "context"
	KindFocus   Kind = "focus"
)

// Entry is one stored cache value.
type Entry struct {
	Path string
	Data []byte
}

// Facade is the durable key/value store used to hydrate caches at startup
// and to keep recomputed entries.
type Facade interface {
	LoadAll(kind Kind) ([]Entry, error)
	Store(path string, data []byte, kind Kind) error
	Remove(path string, kind Kind) error
	CleanType(kind Kind) error
	Close() error
}
