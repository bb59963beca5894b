package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/grovetools/superstate/internal/daemon/collector"
	"github.com/grovetools/superstate/internal/daemon/store"
	"github.com/grovetools/superstate/internal/dispatcher"
	"github.com/grovetools/superstate/internal/indexer"
	"github.com/grovetools/superstate/internal/linker"
	"github.com/grovetools/superstate/internal/vault"
	"github.com/grovetools/superstate/pkg/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const spaceS = "spaces://S"

func docsJoin() *models.SpaceDefinition {
	return &models.SpaceDefinition{Joins: []models.Join{{Path: "/docs", Recursive: true}}}
}

func newEngine(t *testing.T, m *vault.Memory) (*Engine, *store.Store) {
	t.Helper()
	st := store.New(nil)
	ev, err := linker.NewExprEvaluator(16)
	require.NoError(t, err)
	d := dispatcher.New(4, Snapshots(st, true), nil, nil)
	indexer.New(m, ev, nil, 2).Register(d)
	e := New(Options{Store: st, Dispatcher: d, Adapter: m})
	t.Cleanup(func() {
		require.NoError(t, e.Close(context.Background()))
		require.NoError(t, d.Close(context.Background()))
	})
	return e, st
}

func initialized(t *testing.T, m *vault.Memory) (*Engine, *store.Store) {
	t.Helper()
	e, st := newEngine(t, m)
	require.NoError(t, e.Initialize(context.Background()))
	return e, st
}

func tableKeys(st *store.Store, space string) []string {
	c := st.Context(space)
	if c == nil || c.Table == nil {
		return nil
	}
	return c.Table.Keys()
}

func TestEndToEndScenario(t *testing.T) {
	ctx := context.Background()
	m := vault.NewMemory()
	m.AddFolder("/docs")
	e, st := initialized(t, m)

	require.NoError(t, e.SpaceDefinitionChanged(ctx, spaceS, docsJoin()))
	require.NotNil(t, st.Space(spaceS))
	assert.Equal(t, models.SpaceKindVirtual, st.Space(spaceS).Kind)

	m.AddFile("/docs/a.md", map[string]interface{}{"title": "A"}, nil, nil)
	require.NoError(t, e.PathCreated(ctx, "/docs/a.md"))

	c := st.Context(spaceS)
	require.NotNil(t, c)
	require.Len(t, c.Table.Rows, 1)
	assert.Equal(t, models.Row{models.KeyColumn: "/docs/a.md", "title": "A"}, c.Table.Rows[0])
	assert.Equal(t, []string{"/docs", spaceS}, st.SpacesOf("/docs/a.md"))

	require.NoError(t, m.Rename("/docs/a.md", "/docs/b.md"))
	require.NoError(t, e.PathRenamed(ctx, "/docs/a.md", "/docs/b.md"))

	assert.Equal(t, []string{"/docs/b.md"}, tableKeys(st, spaceS))
	assert.Equal(t, []string{"/docs/b.md"}, st.Members(spaceS))
	assert.Empty(t, st.SpacesOf("/docs/a.md"))
	assert.Nil(t, st.Path("/docs/a.md"))
	assert.Equal(t, "A", st.Context(spaceS).Table.Rows[0]["title"])

	require.NoError(t, m.Delete("/docs/b.md"))
	require.NoError(t, e.PathDeleted(ctx, "/docs/b.md"))

	assert.Empty(t, tableKeys(st, spaceS))
	assert.Empty(t, st.Members(spaceS))
	assert.Empty(t, st.SpacesOf("/docs/b.md"))
	assert.Empty(t, tableKeys(st, "/docs"))
}

func TestCascadeCompleteness(t *testing.T) {
	ctx := context.Background()
	m := vault.NewMemory()
	m.AddFolder("/docs")
	m.AddFile("/other/x.md", nil, nil, nil)
	e, st := initialized(t, m)
	require.NoError(t, e.SpaceDefinitionChanged(ctx, spaceS, docsJoin()))

	for _, p := range []string{"/docs/a.md", "/docs/b.md", "/docs/deep", "/docs/deep/c.md"} {
		if p == "/docs/deep" {
			m.AddFolder(p)
		} else {
			m.AddFile(p, map[string]interface{}{"status": "draft"}, nil, nil)
		}
		require.NoError(t, e.PathCreated(ctx, p))
	}
	require.NotNil(t, st.Space("/docs/deep"))

	members := st.Members(spaceS)
	assert.Equal(t, []string{"/docs/a.md", "/docs/b.md", "/docs/deep", "/docs/deep/c.md"}, members)
	assert.ElementsMatch(t, members, tableKeys(st, spaceS))
	for _, p := range members {
		assert.Contains(t, st.SpacesOf(p), spaceS, p)
	}
	assert.NotContains(t, st.SpacesOf("/other/x.md"), spaceS)

	// narrowing the definition drops exactly the paths it no longer selects
	narrow := &models.SpaceDefinition{Joins: []models.Join{{Path: "/docs"}}}
	require.NoError(t, e.SpaceDefinitionChanged(ctx, spaceS, narrow))
	assert.Equal(t, []string{"/docs/a.md", "/docs/b.md", "/docs/deep"}, st.Members(spaceS))
	assert.ElementsMatch(t, st.Members(spaceS), tableKeys(st, spaceS))
	assert.NotContains(t, st.SpacesOf("/docs/deep/c.md"), spaceS)
}

func TestConcurrentMutationsOnOneTable(t *testing.T) {
	ctx := context.Background()
	m := vault.NewMemory()
	m.AddFile("/docs/a.md", map[string]interface{}{"title": "old"}, nil, nil)
	e, st := initialized(t, m)

	m.AddFile("/docs/c.md", map[string]interface{}{"title": "C"}, nil, nil)
	require.NoError(t, m.SaveMetadata("/docs/a.md", map[string]interface{}{"title": "new"}))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		errs[0] = e.PathCreated(ctx, "/docs/c.md")
	}()
	go func() {
		defer wg.Done()
		errs[1] = e.PathMetadataChanged(ctx, "/docs/a.md")
	}()
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	require.NoError(t, e.Flush(ctx))

	c := st.Context("/docs")
	require.NotNil(t, c)
	assert.Equal(t, []string{"/docs/a.md", "/docs/c.md"}, c.Table.Keys())
	assert.Equal(t, "new", c.Table.Rows[0]["title"])
	assert.Equal(t, "C", c.Table.Rows[1]["title"])
}

func TestStoredTableKeepsUserColumnsAcrossRename(t *testing.T) {
	ctx := context.Background()
	m := vault.NewMemory()
	m.AddFile("/docs/a.md", nil, nil, nil)
	m.AddFile("/docs/b.md", nil, nil, nil)

	table := models.NewTable("docs")
	table.Cols = append(table.Cols,
		models.Column{Name: "notes", Type: models.ColumnText},
		models.Column{Name: "see", Type: models.ColumnLink, Props: models.ColumnProps{Multi: true}},
	)
	table.Rows = []models.Row{
		{models.KeyColumn: "/docs/a.md", "notes": "first"},
		{models.KeyColumn: "/docs/b.md", "see": "[[/docs/a.md]], /other.md"},
	}
	_, err := m.SaveTable("/docs", table, true)
	require.NoError(t, err)
	e, st := initialized(t, m)

	require.NoError(t, m.Rename("/docs/a.md", "/docs/z.md"))
	require.NoError(t, e.PathRenamed(ctx, "/docs/a.md", "/docs/z.md"))

	stored, err := m.ReadAllTables("/docs")
	require.NoError(t, err)
	main := stored[vault.MainTable]
	require.NotNil(t, main)
	assert.ElementsMatch(t, []string{"/docs/z.md", "/docs/b.md"}, main.Keys())
	row := main.Rows[main.RowIndex("/docs/z.md")]
	assert.Equal(t, "first", row["notes"])
	assert.Equal(t, models.JoinList([]string{"[[/docs/z.md]]", "/other.md"}), main.Rows[main.RowIndex("/docs/b.md")]["see"])
	assert.ElementsMatch(t, main.Keys(), tableKeys(st, "/docs"))

	require.NoError(t, m.Delete("/docs/z.md"))
	require.NoError(t, e.PathDeleted(ctx, "/docs/z.md"))
	stored, err = m.ReadAllTables("/docs")
	require.NoError(t, err)
	main = stored[vault.MainTable]
	assert.Equal(t, []string{"/docs/b.md"}, main.Keys())
	assert.Equal(t, "/other.md", main.Rows[0]["see"])
}

func TestFolderRenameMovesChildren(t *testing.T) {
	ctx := context.Background()
	m := vault.NewMemory()
	m.AddFile("/docs/a.md", map[string]interface{}{"title": "A"}, nil, nil)
	e, st := initialized(t, m)
	require.NoError(t, e.SpaceDefinitionChanged(ctx, spaceS, docsJoin()))
	require.Equal(t, []string{"/docs/a.md"}, tableKeys(st, spaceS))

	require.NoError(t, m.Rename("/docs", "/archive"))
	require.NoError(t, e.PathRenamed(ctx, "/docs", "/archive"))

	assert.Nil(t, st.Space("/docs"))
	require.NotNil(t, st.Space("/archive"))
	assert.Equal(t, models.SpaceKindFolder, st.Space("/archive").Kind)
	assert.Equal(t, "/archive/archive.md", st.Space("/archive").NotePath)
	assert.NotNil(t, st.Path("/archive/a.md"))
	assert.Nil(t, st.Path("/docs/a.md"))
	assert.Equal(t, []string{"/archive"}, st.SpacesOf("/archive/a.md"))
	assert.Equal(t, []string{"/archive/a.md"}, tableKeys(st, "/archive"))
	assert.Empty(t, tableKeys(st, spaceS))
}

func TestFolderNoteFeedsFolderPath(t *testing.T) {
	ctx := context.Background()
	m := vault.NewMemory()
	m.AddFolder("/docs")
	e, st := initialized(t, m)

	m.AddFile("/docs/docs.md", map[string]interface{}{"status": "active"}, nil, nil)
	require.NoError(t, e.PathCreated(ctx, "/docs/docs.md"))
	assert.Equal(t, "active", st.Path("/docs").Metadata["status"])

	require.NoError(t, m.SaveMetadata("/docs/docs.md", map[string]interface{}{"status": "done"}))
	require.NoError(t, e.PathMetadataChanged(ctx, "/docs/docs.md"))
	assert.Equal(t, "done", st.Path("/docs").Metadata["status"])
}

func TestRenameAndDeleteTag(t *testing.T) {
	ctx := context.Background()
	m := vault.NewMemory()
	m.AddFile("/notes/x.md", map[string]interface{}{"tags": []interface{}{"old", "keep"}}, nil, nil)
	m.AddFile("/notes/y.md", nil, nil, nil)
	e, st := initialized(t, m)
	require.NotNil(t, st.Space("spaces://#old"))
	assert.Equal(t, []string{"/notes/x.md"}, tableKeys(st, "spaces://#old"))

	require.NoError(t, e.RenameTag(ctx, "old", "#new"))

	assert.Nil(t, st.Space("spaces://#old"))
	require.NotNil(t, st.Space("spaces://#new"))
	assert.Equal(t, models.SpaceKindTag, st.Space("spaces://#new").Kind)
	assert.Equal(t, []interface{}{"new", "keep"}, m.Metadata("/notes/x.md")["tags"])
	assert.Contains(t, st.SpacesOf("/notes/x.md"), "spaces://#new")
	assert.NotContains(t, st.SpacesOf("/notes/x.md"), "spaces://#old")
	assert.Equal(t, []string{"/notes/x.md"}, tableKeys(st, "spaces://#new"))

	require.NoError(t, e.DeleteTag(ctx, "new"))
	assert.Nil(t, st.Space("spaces://#new"))
	assert.Equal(t, []interface{}{"keep"}, m.Metadata("/notes/x.md")["tags"])
	assert.Equal(t, []string{"/notes", "spaces://#keep"}, st.SpacesOf("/notes/x.md"))

	err := e.RenameTag(ctx, "same", "same")
	assert.Error(t, err)
}

func TestFailedTableMutationIsDeadLettered(t *testing.T) {
	ctx := context.Background()
	m := vault.NewMemory()
	m.AddFolder("/docs")
	table := models.NewTable("docs")
	table.Cols = append(table.Cols,
		models.Column{Name: "a", Type: models.ColumnFormula, Props: models.ColumnProps{Formula: `prop("b")`}},
		models.Column{Name: "b", Type: models.ColumnFormula, Props: models.ColumnProps{Formula: `prop("a")`}},
	)
	_, err := m.SaveTable("/docs", table, true)
	require.NoError(t, err)
	e, st := initialized(t, m)

	var mu sync.Mutex
	var failed []store.Event
	unsubscribe := st.Subscribe(store.EventMutationFailed, func(ev store.Event) {
		mu.Lock()
		defer mu.Unlock()
		failed = append(failed, ev)
	})
	defer unsubscribe()

	m.AddFile("/docs/a.md", nil, nil, nil)
	require.NoError(t, e.PathCreated(ctx, "/docs/a.md"))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(failed) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, e.DeadLetters())
	mu.Lock()
	assert.Equal(t, "/docs", failed[0].Space)
	assert.Equal(t, "insert", failed[0].Source)
	mu.Unlock()

	// the path itself is still indexed
	assert.NotNil(t, st.Path("/docs/a.md"))
}

func TestFocusesFollowRenamesAndDeletes(t *testing.T) {
	ctx := context.Background()
	m := vault.NewMemory()
	m.AddFile("/docs/a.md", nil, nil, nil)
	m.AddFile("/docs/b.md", nil, nil, nil)
	e, _ := initialized(t, m)
	e.SetFocuses([]models.Focus{{Name: "today", Paths: []string{"/docs/a.md", "/docs/b.md"}}})

	require.NoError(t, m.Rename("/docs/a.md", "/docs/c.md"))
	require.NoError(t, e.PathRenamed(ctx, "/docs/a.md", "/docs/c.md"))
	assert.Equal(t, []string{"/docs/c.md", "/docs/b.md"}, e.Focuses()[0].Paths)

	require.NoError(t, m.Delete("/docs/b.md"))
	require.NoError(t, e.PathDeleted(ctx, "/docs/b.md"))
	assert.Equal(t, []string{"/docs/c.md"}, e.Focuses()[0].Paths)
}

func TestDefinitionLinksFollowRenames(t *testing.T) {
	ctx := context.Background()
	m := vault.NewMemory()
	m.AddFile("/docs/a.md", nil, nil, nil)
	e, st := initialized(t, m)
	require.NoError(t, e.SpaceDefinitionChanged(ctx, "spaces://picked", &models.SpaceDefinition{Links: []string{"/docs/a.md"}}))
	assert.Equal(t, []string{"/docs/a.md"}, st.Members("spaces://picked"))

	require.NoError(t, m.Rename("/docs/a.md", "/docs/b.md"))
	require.NoError(t, e.PathRenamed(ctx, "/docs/a.md", "/docs/b.md"))

	def, err := m.ReadSpaceDefinition("spaces://picked")
	require.NoError(t, err)
	assert.Equal(t, []string{"/docs/b.md"}, def.Links)
	assert.Equal(t, []string{"/docs/b.md"}, st.Members("spaces://picked"))
	assert.Equal(t, []string{"/docs/b.md"}, tableKeys(st, "spaces://picked"))
}

func TestQueryAndSearch(t *testing.T) {
	ctx := context.Background()
	m := vault.NewMemory()
	m.AddFile("/docs/alpha.md", map[string]interface{}{"title": "Alpha", "rank": 2}, nil, nil)
	m.AddFile("/docs/beta.md", map[string]interface{}{"title": "Beta", "rank": 1}, nil, nil)
	m.AddFile("/docs/gamma.md", map[string]interface{}{"title": "Gamma", "rank": 3}, nil, nil)
	e, _ := initialized(t, m)

	rows := e.Query("/docs", models.View{
		Filters: models.FilterGroup{Type: "all", Filters: []models.Filter{{Field: "rank", Fn: "gte", Value: "2"}}},
		Sort:    []models.SortKey{{Field: "rank", Desc: true}},
	})
	require.Len(t, rows, 2)
	assert.Equal(t, "Gamma", rows[0]["title"].String())
	assert.Equal(t, "Alpha", rows[1]["title"].String())
	assert.Nil(t, e.Query("/missing", models.View{}))

	hits, err := e.Search(ctx, "beta", 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "/docs/beta.md", hits[0].Path)
}

func TestInitializeDropsStaleEntries(t *testing.T) {
	m := vault.NewMemory()
	m.AddFile("/docs/a.md", nil, nil, nil)
	e, st := newEngine(t, m)
	st.PutPath(&models.PathState{Path: "/ghost.md", Name: "ghost"})
	st.PutSpace(&models.SpaceState{Path: "/gone", Name: "gone", Kind: models.SpaceKindFolder})

	var mu sync.Mutex
	var seen []store.EventType
	unsubscribe := st.SubscribeAll(func(ev store.Event) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, ev.Type)
	})
	defer unsubscribe()

	require.NoError(t, e.Initialize(context.Background()))
	assert.Nil(t, st.Path("/ghost.md"))
	assert.Nil(t, st.Space("/gone"))
	assert.NotNil(t, st.Space("/docs"))
	assert.Equal(t, []string{"/docs/a.md"}, tableKeys(st, "/docs"))

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	assert.Equal(t, store.EventReindexStarted, seen[0])
	assert.Equal(t, store.EventIndexFullyReady, seen[len(seen)-1])
}

func TestDeclaredSpacesAreSeeded(t *testing.T) {
	m := vault.NewMemory()
	m.AddFile("/docs/a.md", nil, nil, nil)
	st := store.New(nil)
	ev, err := linker.NewExprEvaluator(16)
	require.NoError(t, err)
	d := dispatcher.New(2, Snapshots(st, false), nil, nil)
	indexer.New(m, ev, nil, 2).Register(d)
	e := New(Options{
		Store:      st,
		Dispatcher: d,
		Adapter:    m,
		Spaces:     map[string]*models.SpaceDefinition{"spaces://reading": docsJoin()},
	})
	defer func() {
		require.NoError(t, e.Close(context.Background()))
		require.NoError(t, d.Close(context.Background()))
	}()

	require.NoError(t, e.Initialize(context.Background()))
	assert.Equal(t, []string{"/docs/a.md"}, st.Members("spaces://reading"))
	assert.Equal(t, []string{"/docs/a.md"}, tableKeys(st, "spaces://reading"))
}

func TestRunAppliesMutationsInOrder(t *testing.T) {
	m := vault.NewMemory()
	m.AddFolder("/docs")
	e, st := initialized(t, m)

	m.AddFile("/docs/a.md", nil, nil, nil)
	require.NoError(t, m.Rename("/docs/a.md", "/docs/b.md"))
	mutations := make(chan collector.Mutation, 2)
	mutations <- collector.Mutation{Kind: collector.MutationCreated, Path: "/docs/a.md"}
	mutations <- collector.Mutation{Kind: collector.MutationRenamed, OldPath: "/docs/a.md", Path: "/docs/b.md"}
	close(mutations)

	e.Run(context.Background(), mutations)
	assert.Equal(t, []string{"/docs/b.md"}, tableKeys(st, "/docs"))
	assert.Equal(t, PhaseCurrent, e.Phase("/docs/b.md"))

	assert.Error(t, e.Apply(context.Background(), collector.Mutation{Kind: "bogus"}))
}

func TestSubmitSharesTheRunLoop(t *testing.T) {
	m := vault.NewMemory()
	m.AddFolder("/docs")
	e, st := initialized(t, m)

	ctx, cancel := context.WithCancel(context.Background())
	mutations := make(chan collector.Mutation)
	done := make(chan struct{})
	go func() {
		defer close(done)
		e.Run(ctx, mutations)
	}()
	defer func() {
		cancel()
		<-done
	}()
	require.Eventually(t, func() bool {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.loop != nil
	}, time.Second, time.Millisecond)

	m.AddFile("/docs/new.md", nil, nil, nil)
	var wg sync.WaitGroup
	var submitErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		mutations <- collector.Mutation{Kind: collector.MutationCreated, Path: "/docs/new.md"}
	}()
	go func() {
		defer wg.Done()
		submitErr = e.Submit(ctx, collector.Mutation{Kind: collector.MutationDefinition, Path: spaceS, Definition: docsJoin()})
	}()
	wg.Wait()
	require.NoError(t, submitErr)

	// the loop picks this up only after the watcher mutation settled
	require.NoError(t, e.Submit(ctx, collector.Mutation{Kind: collector.MutationChanged, Path: "/docs/new.md"}))
	assert.Equal(t, []string{"/docs/new.md"}, st.Members(spaceS))
	assert.Equal(t, []string{"/docs/new.md"}, tableKeys(st, spaceS))
}

func TestSubmitOutlivesCallerContext(t *testing.T) {
	m := vault.NewMemory()
	m.AddFolder("/docs")
	e, st := initialized(t, m)

	// a loop that already stopped falls back to applying in place
	loopCtx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		e.Run(loopCtx, nil)
	}()
	stop()
	<-done

	callerCtx, cancel := context.WithCancel(context.Background())
	cancel()
	m.AddFile("/docs/a.md", nil, nil, nil)
	require.NoError(t, e.Submit(callerCtx, collector.Mutation{Kind: collector.MutationCreated, Path: "/docs/a.md"}))
	assert.NotNil(t, st.Path("/docs/a.md"))
	assert.Equal(t, []string{"/docs/a.md"}, tableKeys(st, "/docs"))
}

func TestMetadataChangeMovesPathAcrossJoinFilter(t *testing.T) {
	ctx := context.Background()
	m := vault.NewMemory()
	m.AddFile("/docs/a.md", map[string]interface{}{"status": "draft"}, nil, nil)
	e, st := initialized(t, m)

	def := &models.SpaceDefinition{Joins: []models.Join{{
		Path:      "/docs",
		Recursive: true,
		Filters: models.FilterGroup{Type: models.GroupAll, Filters: []models.Filter{
			{Field: "status", Fn: "is", Value: "done"},
		}},
	}}}
	require.NoError(t, e.SpaceDefinitionChanged(ctx, spaceS, def))
	assert.Empty(t, st.Members(spaceS))

	require.NoError(t, m.SaveMetadata("/docs/a.md", map[string]interface{}{"status": "done"}))
	require.NoError(t, e.PathMetadataChanged(ctx, "/docs/a.md"))
	assert.Equal(t, []string{"/docs/a.md"}, st.Members(spaceS))
	assert.Equal(t, []string{"/docs/a.md"}, tableKeys(st, spaceS))
	assert.Contains(t, st.SpacesOf("/docs/a.md"), spaceS)

	require.NoError(t, m.SaveMetadata("/docs/a.md", map[string]interface{}{"status": "draft"}))
	require.NoError(t, e.PathMetadataChanged(ctx, "/docs/a.md"))
	assert.Empty(t, st.Members(spaceS))
	assert.Empty(t, tableKeys(st, spaceS))
	assert.NotContains(t, st.SpacesOf("/docs/a.md"), spaceS)
}

func TestLinksInOtherSpacesFollowRenameAndDelete(t *testing.T) {
	ctx := context.Background()
	m := vault.NewMemory()
	m.AddFile("/docs/a.md", nil, nil, nil)
	m.AddFile("/proj/p.md", nil, nil, nil)

	table := models.NewTable("proj")
	table.Cols = append(table.Cols, models.Column{Name: "ref", Type: models.ColumnLink})
	table.Rows = []models.Row{{models.KeyColumn: "/proj/p.md", "ref": "[[/docs/a.md]]"}}
	_, err := m.SaveTable("/proj", table, true)
	require.NoError(t, err)
	e, st := initialized(t, m)

	refOf := func() (string, bool) {
		stored, err := m.ReadAllTables("/proj")
		require.NoError(t, err)
		main := stored[vault.MainTable]
		require.NotNil(t, main)
		require.Equal(t, []string{"/proj/p.md"}, main.Keys())
		v, ok := main.Rows[0]["ref"]
		return v, ok
	}

	require.NoError(t, m.Rename("/docs/a.md", "/docs/b.md"))
	require.NoError(t, e.PathRenamed(ctx, "/docs/a.md", "/docs/b.md"))
	ref, ok := refOf()
	require.True(t, ok)
	assert.Equal(t, "[[/docs/b.md]]", ref)
	assert.Equal(t, "[[/docs/b.md]]", st.Context("/proj").Table.Rows[0]["ref"])

	require.NoError(t, m.Delete("/docs/b.md"))
	require.NoError(t, e.PathDeleted(ctx, "/docs/b.md"))
	_, ok = refOf()
	assert.False(t, ok)
	assert.NotContains(t, st.Context("/proj").Table.Rows[0], "ref")
}

func TestUnstoredTableIsNeverOutdated(t *testing.T) {
	ctx := context.Background()
	m := vault.NewMemory()
	m.AddFolder("/docs")
	m.AddFile("/docs/a.md", nil, nil, nil)
	e, st := initialized(t, m)

	m.AddFile("/docs/b.md", nil, nil, nil)
	require.NoError(t, e.PathCreated(ctx, "/docs/b.md"))

	c := st.Context("/docs")
	require.NotNil(t, c)
	assert.False(t, c.Exists)
	assert.False(t, c.Outdated)
	assert.Equal(t, []string{"/docs/a.md", "/docs/b.md"}, c.Table.Keys())
}
