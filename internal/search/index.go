// Package search provides an in-memory inverted index over paths.
package search

import (
	"sort"
	"strings"
	"unicode"

	"github.com/hbollon/go-edlib"
	"github.com/surgebase/porter2"

	"github.com/grovetools/superstate/pkg/models"
)

// Field weights.
const (
	weightName  = 3.0
	weightTitle = 2.0
	weightTag   = 2.0
	weightPath  = 1.0
)

// FuzzyThreshold is the minimum Jaro-Winkler similarity for a fuzzy hit.
const FuzzyThreshold = 0.85

// Result is one ranked match.
type Result struct {
	Path  string  `json:"path"`
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// Index is immutable once built and safe for concurrent queries.
type Index struct {
	names    map[string]string
	postings map[string]map[string]float64 // stem -> path -> weight
	vocab    []string                      // sorted stems
}

// Build indexes the names, titles, tags and path segments of paths.
func Build(paths []*models.PathState) *Index {
	idx := &Index{
		names:    make(map[string]string, len(paths)),
		postings: make(map[string]map[string]float64),
	}
	for _, p := range paths {
		if p == nil || p.Hidden {
			continue
		}
		idx.names[p.Path] = p.Name
		idx.add(p.Path, p.Name, weightName)
		if title := p.Title(); title != p.Name {
			idx.add(p.Path, title, weightTitle)
		}
		for _, tag := range p.Tags {
			idx.add(p.Path, tag, weightTag)
		}
		idx.add(p.Path, strings.TrimPrefix(p.Parent, models.SpacePrefix), weightPath)
	}
	idx.vocab = make([]string, 0, len(idx.postings))
	for stem := range idx.postings {
		idx.vocab = append(idx.vocab, stem)
	}
	sort.Strings(idx.vocab)
	return idx
}

func (idx *Index) add(path, text string, weight float64) {
	for _, tok := range Tokenize(text) {
		post, ok := idx.postings[tok]
		if !ok {
			post = make(map[string]float64)
			idx.postings[tok] = post
		}
		if weight > post[path] {
			post[path] = weight
		}
	}
}

// Len returns the number of indexed paths.
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.names)
}

// Tokenize lowercases text, splits it on anything that is not a letter or
// digit and stems each word.
func Tokenize(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make([]string, 0, len(words))
	for _, w := range words {
		out = append(out, porter2.Stem(w))
	}
	return out
}

// Query ranks paths against text. Each query token scores exact stem hits
// highest, then vocabulary entries it prefixes, then fuzzy matches when
// nothing else matched. Ties order by path.
func (idx *Index) Query(text string, limit int) []Result {
	if idx == nil {
		return nil
	}
	scores := make(map[string]float64)
	for _, tok := range Tokenize(text) {
		hit := false
		if post, ok := idx.postings[tok]; ok {
			hit = true
			for p, w := range post {
				scores[p] += 2 * w
			}
		}
		i := sort.SearchStrings(idx.vocab, tok)
		for ; i < len(idx.vocab) && strings.HasPrefix(idx.vocab[i], tok); i++ {
			if idx.vocab[i] == tok {
				continue
			}
			hit = true
			for p, w := range idx.postings[idx.vocab[i]] {
				scores[p] += w
			}
		}
		if hit {
			continue
		}
		for _, stem := range idx.vocab {
			sim, err := edlib.StringsSimilarity(tok, stem, edlib.JaroWinkler)
			if err != nil || float64(sim) < FuzzyThreshold {
				continue
			}
			for p, w := range idx.postings[stem] {
				scores[p] += w * float64(sim)
			}
		}
	}

	results := make([]Result, 0, len(scores))
	for p, s := range scores {
		results = append(results, Result{Path: p, Name: idx.names[p], Score: s})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Path < results[j].Path
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}
