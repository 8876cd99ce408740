package rankers

import (
	"github.com/siret/somhunter-go/internal/errs"
	"github.com/siret/somhunter-go/internal/features"
	"github.com/siret/somhunter-go/internal/scores"
	"github.com/siret/somhunter-go/internal/types"
)

// maxSuggestionsPerToken bounds the prefix-match candidates considered
// for each token before taking the first (highest-ranked) one, grounded
// on the original tokenizer's "keep up to 10 suggestions" step.
const maxSuggestionsPerToken = 10

// TextRanker is the primary embedding ranker: free text against the
// keyword table's PCA-projected embedding space, grounded on
// KeywordRanker::rank (the primary, in-process embedding path).
type TextRanker struct {
	KW *features.Table
}

// QueryKeywords tokenizes text and resolves each token to its
// highest-ranked matching keyword id, skipping tokens with no match.
func (r *TextRanker) QueryKeywords(text string) []types.KeywordID {
	tokens := tokenize(text)
	ids := make([]types.KeywordID, 0, len(tokens))
	for _, tok := range tokens {
		matches := r.KW.FindPrefix(tok, maxSuggestionsPerToken)
		if len(matches) == 0 {
			continue
		}
		ids = append(ids, matches[0])
	}
	return ids
}

// Embed returns the normalized keyword-embedding vector for text, or nil
// if text tokenizes to no known keyword.
func (r *TextRanker) Embed(text string) []float32 {
	ids := r.QueryKeywords(text)
	if len(ids) == 0 {
		return nil
	}
	return r.KW.Embed(ids)
}

// ScoreSlot scores every frame against text's keyword embedding and
// multiplies the result into temporal_scores[slot]. An empty token list
// (no recognized keyword) is a no-op, per KeywordRanker::rank.
func (r *TextRanker) ScoreSlot(text string, slot int, model *scores.Model, feat *features.Matrix) error {
	vec := r.Embed(text)
	if vec == nil {
		return nil
	}
	for i := 0; i < feat.N; i++ {
		d := distanceToUnit(feat.DotVec(i, vec))
		if err := model.AdjustTemporal(slot, types.FrameID(i), d); err != nil {
			return errs.Wrap("rankers.text", err)
		}
	}
	return nil
}
