package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/superstate/internal/persist"
	"github.com/grovetools/superstate/pkg/models"
)

func pathState(p string, spaces, tags, links []string) *models.PathState {
	return &models.PathState{
		Path:     p,
		Name:     models.BaseName(p),
		Parent:   models.ParentPath(p),
		Type:     models.PathTypeFile,
		Spaces:   spaces,
		Tags:     tags,
		Outlinks: links,
	}
}

func TestPutPathKeepsMapsInSync(t *testing.T) {
	s := New(nil)
	s.PutPath(pathState("/docs/a.md", []string{"/docs"}, []string{"#todo"}, []string{"/docs/b.md"}))
	s.PutPath(pathState("/docs/b.md", []string{"/docs"}, nil, nil))

	assert.Equal(t, []string{"/docs/a.md", "/docs/b.md"}, s.Members("/docs"))
	assert.Equal(t, []string{"/docs/a.md"}, s.PathsWithTag("TODO"))
	assert.Equal(t, []string{"/docs/a.md"}, s.Inlinks("/docs/b.md"))
	assert.Equal(t, []string{"/docs/a.md"}, s.PathWithLinks("/docs/b.md").Inlinks)
	assert.Nil(t, s.PathWithLinks("/missing.md"))

	s.PutPath(pathState("/docs/a.md", []string{"/notes"}, nil, nil))
	assert.Equal(t, []string{"/docs/b.md"}, s.Members("/docs"))
	assert.Empty(t, s.PathsWithTag("#todo"))
	assert.Empty(t, s.Inlinks("/docs/b.md"))

	s.RemovePath("/docs/a.md")
	assert.Nil(t, s.Path("/docs/a.md"))
	assert.Empty(t, s.Members("/notes"))
}

func TestRenamePathMovesRelationsAndRewritesLinkers(t *testing.T) {
	s := New(nil)
	s.PutPath(pathState("/docs/a.md", []string{"/docs"}, []string{"#x"}, nil))
	s.PutPath(pathState("/notes/n.md", nil, nil, []string{"/docs/a.md"}))

	s.RenamePath("/docs/a.md", "/docs/b.md")

	assert.Nil(t, s.Path("/docs/a.md"))
	moved := s.Path("/docs/b.md")
	require.NotNil(t, moved)
	assert.Equal(t, "b", moved.Name)
	assert.Equal(t, []string{"/docs/b.md"}, s.Members("/docs"))
	assert.Equal(t, []string{"/docs/b.md"}, s.PathsWithTag("#x"))
	assert.Empty(t, s.Inlinks("/docs/a.md"))
	assert.Equal(t, []string{"/notes/n.md"}, s.Inlinks("/docs/b.md"))
	assert.Equal(t, []string{"/docs/b.md"}, s.Path("/notes/n.md").Outlinks)
}

func TestRemoveAndRenameSpaceRewriteMembers(t *testing.T) {
	s := New(nil)
	s.PutSpace(&models.SpaceState{Path: "/docs", Name: "docs", Kind: models.SpaceKindFolder})
	s.PutPath(pathState("/docs/a.md", []string{"/docs", "/all"}, nil, nil))

	s.RenameSpace("/docs", "/papers")
	assert.Nil(t, s.Space("/docs"))
	require.NotNil(t, s.Space("/papers"))
	assert.Equal(t, []string{"/docs/a.md"}, s.Members("/papers"))
	assert.ElementsMatch(t, []string{"/papers", "/all"}, s.Path("/docs/a.md").Spaces)

	s.RemoveSpace("/papers")
	assert.Empty(t, s.Members("/papers"))
	assert.Equal(t, []string{"/all"}, s.Path("/docs/a.md").Spaces)
	assert.Equal(t, []string{"/all"}, s.SpacesOf("/docs/a.md"))
}

func TestContextDependencies(t *testing.T) {
	s := New(nil)
	s.PutContext(&models.ContextState{Space: "/projects", Dependencies: []string{"/tasks"}})
	assert.Equal(t, []string{"/projects"}, s.Dependents("/tasks"))

	s.RenameContext("/tasks", "/todo")
	assert.Equal(t, []string{"/projects"}, s.Dependents("/todo"))

	s.RenameContext("/projects", "/work")
	assert.Nil(t, s.Context("/projects"))
	assert.Equal(t, "/work", s.Context("/work").Space)
	assert.Equal(t, []string{"/work"}, s.Dependents("/todo"))

	s.RemoveContext("/work")
	assert.Empty(t, s.Dependents("/todo"))
}

func TestDispatchOrderAndPanicRecovery(t *testing.T) {
	s := New(nil)
	var got []string

	s.Subscribe(EventPathCreated, func(e Event) { got = append(got, "first:"+e.Path) })
	s.Subscribe(EventPathCreated, func(e Event) { panic("boom") })
	unsub := s.Subscribe(EventPathCreated, func(e Event) { got = append(got, "third:"+e.Path) })
	s.SubscribeAll(func(e Event) { got = append(got, "all:"+string(e.Type)) })
	s.Subscribe(EventPathDeleted, func(e Event) { got = append(got, "deleted") })

	s.Dispatch(Event{Type: EventPathCreated, Path: "/a.md"})
	assert.Equal(t, []string{"first:/a.md", "third:/a.md", "all:path.created"}, got)

	got = nil
	unsub()
	s.Dispatch(Event{Type: EventPathCreated, Path: "/b.md"})
	assert.Equal(t, []string{"first:/b.md", "all:path.created"}, got)
}

func TestChannelSubscribers(t *testing.T) {
	s := New(nil)
	ch := s.SubscribeChan()

	s.Dispatch(Event{Type: EventSpaceChanged, Space: "/docs"})
	e := <-ch
	assert.Equal(t, EventSpaceChanged, e.Type)

	s.Unsubscribe(ch)
	_, open := <-ch
	assert.False(t, open)
	s.Unsubscribe(ch)
}

func TestSnapshotIsIsolated(t *testing.T) {
	s := New(nil)
	s.PutPath(pathState("/docs/a.md", []string{"/docs"}, nil, nil))
	snap := s.Snapshot()

	s.PutPath(pathState("/docs/b.md", []string{"/docs"}, nil, nil))
	s.RemovePath("/docs/a.md")

	assert.NotNil(t, snap.Path("/docs/a.md"))
	assert.Nil(t, snap.Path("/docs/b.md"))
	assert.Equal(t, []string{"/docs/a.md"}, snap.Members("/docs"))

	fresh := snap.WithPath(pathState("/docs/c.md", nil, nil, nil))
	assert.NotNil(t, fresh.Path("/docs/c.md"))
	assert.Nil(t, snap.Path("/docs/c.md"))
}

func TestHydratePersistTeardown(t *testing.T) {
	db, err := persist.Open(persist.InMemoryConfig())
	require.NoError(t, err)

	s := New(nil)
	require.NoError(t, s.Hydrate(db))
	s.PutPath(pathState("/docs/a.md", []string{"/docs"}, []string{"#x"}, nil))
	s.PutSpace(&models.SpaceState{Path: "/docs", Name: "docs"})
	s.PutContext(&models.ContextState{Space: "/docs", Table: models.NewTable("docs"), Exists: true})
	s.SetFocuses([]models.Focus{{Name: "today", Paths: []string{"/docs/a.md"}}})

	require.NoError(t, s.PersistPath("/docs/a.md"))
	require.NoError(t, s.PersistSpace("/docs"))
	require.NoError(t, s.PersistContext("/docs"))
	require.NoError(t, s.PersistFocuses())

	// a second store over the same database sees everything
	other := New(nil)
	require.NoError(t, other.Hydrate(db))
	assert.Equal(t, []string{"/docs/a.md"}, other.Members("/docs"))
	assert.Equal(t, []string{"/docs/a.md"}, other.PathsWithTag("#x"))
	require.NotNil(t, other.Context("/docs"))
	assert.True(t, other.Context("/docs").Exists)
	assert.Equal(t, "today", other.Focuses()[0].Name)

	s.RemovePath("/docs/a.md")
	require.NoError(t, s.PersistPath("/docs/a.md"))
	entries, err := db.LoadAll(persist.KindPath)
	require.NoError(t, err)
	assert.Empty(t, entries)

	ch := s.SubscribeChan()
	require.NoError(t, s.Teardown())
	_, open := <-ch
	assert.False(t, open)
	assert.Empty(t, s.Paths())
	assert.Empty(t, s.Members("/docs"))
}
