package features

import (
	"math"
	"sort"
	"strings"

	"github.com/siret/somhunter-go/internal/errs"
	"github.com/siret/somhunter-go/internal/types"
)

// Keyword is one named concept with one or more surface forms, grounded
// on the original keyword-ranker.cpp "kw_ID:synset_ID:strings:top_imgs:desc"
// record shape.
type Keyword struct {
	ID          types.KeywordID
	SynsetID    types.SynsetID
	Surfaces    []string // sorted
	Description string
	TopExamples []types.FrameID
}

// surfaceEntry is one (surface form, keyword) pair used for the sorted
// prefix-match table that the text ranker and Autocomplete both query.
type surfaceEntry struct {
	surface string
	kwID    types.KeywordID
}

// Table is the immutable keyword table: surface-form lookup, per-keyword
// feature vectors, and the PCA that maps the summed keyword-feature space
// into the primary embedding space.
type Table struct {
	keywords []Keyword
	byID     map[types.KeywordID]*Keyword
	entries  []surfaceEntry // sorted by surface

	kwFeatures [][]float32 // indexed by KeywordID
	bias       []float32
	pcaMean    []float32
	pcaMat     [][]float32 // [postDim][preDim]: one row per output dimension
}

// NewTable builds a Table from already-parsed pieces — used by loaders
// and by tests that construct small synthetic keyword tables directly.
func NewTable(keywords []Keyword, kwFeatures [][]float32, bias, pcaMean []float32, pcaMat [][]float32) (*Table, error) {
	if len(kwFeatures) != len(keywords) {
		return nil, errs.WrapLoad("keywords.new", errNotFound("kwFeatures length mismatch"))
	}
	t := &Table{
		keywords:   keywords,
		byID:       make(map[types.KeywordID]*Keyword, len(keywords)),
		kwFeatures: kwFeatures,
		bias:       bias,
		pcaMean:    pcaMean,
		pcaMat:     pcaMat,
	}
	for i := range t.keywords {
		kw := &t.keywords[i]
		t.byID[kw.ID] = kw
		for _, s := range kw.Surfaces {
			t.entries = append(t.entries, surfaceEntry{surface: s, kwID: kw.ID})
		}
	}
	sort.Slice(t.entries, func(i, j int) bool { return t.entries[i].surface < t.entries[j].surface })
	return t, nil
}

type simpleErr string

func (e simpleErr) Error() string { return string(e) }
func errNotFound(s string) error  { return simpleErr(s) }

// Keyword returns the keyword record for id, if present.
func (t *Table) Keyword(id types.KeywordID) (Keyword, bool) {
	kw, ok := t.byID[id]
	if !ok {
		return Keyword{}, false
	}
	return *kw, true
}

// FindPrefix implements the shared "longest prefix match" search used by
// both the text ranker's tokenizer and Autocomplete: entries whose
// surface form *starts with* query rank above ones that merely *contain*
// it; within each group, ties break by surface-form string order. Returns
// up to limit matches.
func (t *Table) FindPrefix(query string, limit int) []types.KeywordID {
	if query == "" {
		return nil
	}
	var starts, contains []surfaceEntry
	for _, e := range t.entries {
		idx := strings.Index(e.surface, query)
		if idx < 0 {
			continue
		}
		if idx == 0 {
			starts = append(starts, e)
		} else {
			contains = append(contains, e)
		}
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i].surface < starts[j].surface })
	sort.Slice(contains, func(i, j int) bool { return contains[i].surface < contains[j].surface })

	out := make([]types.KeywordID, 0, limit)
	for _, e := range starts {
		if len(out) >= limit {
			return out
		}
		out = append(out, e.kwID)
	}
	for _, e := range contains {
		if len(out) >= limit {
			return out
		}
		out = append(out, e.kwID)
	}
	return out
}

// AutocompleteCandidate is one suggestion returned to the client.
type AutocompleteCandidate struct {
	Keyword Keyword
	Surface string
}

// Autocomplete returns up to count keyword candidates whose any surface
// form contains prefix, prefix matches sorted first — spec.md §4.2.
func (t *Table) Autocomplete(prefix string, count int) []AutocompleteCandidate {
	if prefix == "" || count <= 0 {
		return nil
	}
	ids := t.FindPrefix(prefix, count)
	out := make([]AutocompleteCandidate, 0, len(ids))
	for _, id := range ids {
		kw, ok := t.Keyword(id)
		if !ok {
			continue
		}
		surface := kw.Surfaces[0]
		for _, s := range kw.Surfaces {
			if strings.Contains(s, prefix) {
				surface = s
				break
			}
		}
		out = append(out, AutocompleteCandidate{Keyword: kw, Surface: surface})
	}
	return out
}

// Embed computes the keyword-embedding vector for a set of keyword ids:
//
//	normalize( PCA . (normalize(tanh(sum(kw_features) + bias)) - pca_mean) )
//
// grounded on KeywordRanker::embedd_text_queries.
func (t *Table) Embed(ids []types.KeywordID) []float32 {
	dim := len(t.bias)
	sum := make([]float64, dim)
	for _, id := range ids {
		vec := t.kwFeatures[id]
		for i, v := range vec {
			sum[i] += float64(v)
		}
	}
	for i, b := range t.bias {
		sum[i] += float64(b)
	}
	tanh := make([]float32, dim)
	for i, v := range sum {
		tanh[i] = float32(math.Tanh(v))
	}
	Normalize(tanh)

	out := make([]float32, len(t.pcaMat))
	for row := range t.pcaMat {
		var acc float64
		mrow := t.pcaMat[row]
		for i := 0; i < dim && i < len(mrow); i++ {
			acc += float64(mrow[i]) * float64(tanh[i]-t.pcaMean[i])
		}
		out[row] = float32(acc)
	}
	return Normalize(out)
}
