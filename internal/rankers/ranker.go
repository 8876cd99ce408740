// Package rankers implements the pure scoring functions that turn one
// query component into a sub-score vector written into a ScoreModel
// temporal slot: the text embedding ranker (primary and secondary), the
// k-NN/relocation ranker, and the canvas/region ranker. Grounded on the
// original source's EmbeddingRanker/KeywordRanker/CanvasRanker family in
// rankers.cpp and keyword-ranker.cpp, generalized per the REDESIGN FLAGS
// item that replaces template-inheritance dispatch with a small
// capability interface and explicit dispatch on the query's variant.
package rankers

import (
	"strings"

	"github.com/siret/somhunter-go/internal/features"
	"github.com/siret/somhunter-go/internal/scores"
)

// SlotRanker scores one temporal slot of model from frame features,
// multiplying temporal_scores[slot][i] in place. It never touches the
// model's main score vector — that is apply_temporals' job.
type SlotRanker interface {
	ScoreSlot(slot int, model *scores.Model, feat *features.Matrix) error
}

// tokenize lowercases text, strips the punctuation set the original
// tokenizer strips, and splits on whitespace — grounded on
// KeywordRanker::parse_text_query's preprocessing step.
func tokenize(text string) []string {
	text = strings.ToLower(text)
	text = strings.Map(func(r rune) rune {
		if strings.ContainsRune(`\/?!,.'"`, r) {
			return -1
		}
		return r
	}, text)
	return strings.Fields(text)
}

// distanceToUnit converts a cosine similarity (dot product of two unit
// vectors) into the [0,1] distance-like value rankers write into a
// temporal slot: (1 - dot) / 2.
func distanceToUnit(dot float64) float64 {
	return (1 - dot) / 2
}
