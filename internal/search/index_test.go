package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/superstate/pkg/models"
)

func fixture() []*models.PathState {
	return []*models.PathState{
		{Path: "/docs/running.md", Name: "running", Parent: "/docs"},
		{Path: "/docs/plan.md", Name: "plan", Parent: "/docs", Tags: []string{"#roadmap"},
			Metadata: map[string]interface{}{"title": "Quarterly Roadmap"}},
		{Path: "/notes/runner-guide.md", Name: "runner-guide", Parent: "/notes"},
		{Path: "/notes/secret.md", Name: "secret", Parent: "/notes", Hidden: true},
	}
}

func TestTokenizeStems(t *testing.T) {
	assert.Equal(t, []string{"run", "fast", "plan"}, Tokenize("Running FAST-plans"))
}

func TestQueryRanksExactAbovePrefix(t *testing.T) {
	idx := Build(fixture())
	assert.Equal(t, 3, idx.Len())

	results := idx.Query("run", 10)
	require.Len(t, results, 2)
	assert.Equal(t, "/docs/running.md", results[0].Path)
	assert.Equal(t, "/notes/runner-guide.md", results[1].Path)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestQueryMatchesTitlesAndTags(t *testing.T) {
	idx := Build(fixture())

	results := idx.Query("roadmap", 10)
	require.NotEmpty(t, results)
	assert.Equal(t, "/docs/plan.md", results[0].Path)

	assert.Empty(t, idx.Query("secret", 10), "hidden paths are not indexed")
}

func TestQueryFallsBackToFuzzy(t *testing.T) {
	idx := Build(fixture())

	results := idx.Query("roadmpa", 10)
	require.NotEmpty(t, results)
	assert.Equal(t, "/docs/plan.md", results[0].Path)
}

func TestQueryLimitAndDeterministicTies(t *testing.T) {
	idx := Build(fixture())

	all := idx.Query("docs", 0)
	require.Len(t, all, 2)
	assert.Equal(t, "/docs/plan.md", all[0].Path)
	assert.Equal(t, "/docs/running.md", all[1].Path)

	assert.Len(t, idx.Query("docs", 1), 1)

	var nilIndex *Index
	assert.Nil(t, nilIndex.Query("x", 1))
}
