package rankers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/siret/somhunter-go/internal/errs"
	"github.com/siret/somhunter-go/internal/logging"
	"github.com/siret/somhunter-go/internal/scores"
	"github.com/siret/somhunter-go/internal/types"
)

// SecondaryUnknownDistance is the default distance assigned to every
// frame the secondary embedding service did not return a similarity for,
// grounded on spec.md §4.2's "all other frames keep a default large
// value 2.0".
const SecondaryUnknownDistance = 2.0

type secondaryMatch struct {
	FrameID    types.FrameID `json:"frame_id"`
	Similarity float64       `json:"similarity"`
}

// SecondaryTextRanker calls an external embedding service over HTTP,
// grounded on spec.md §4.2's secondary text ranker and on the blocking
// external-call pattern the evaluation-server client also uses.
// Failures are swallowed as warnings per the rescore's "transient I/O is
// swallowed" policy — the caller gets a nil error and unchanged scores.
type SecondaryTextRanker struct {
	Client   *http.Client
	Endpoint string // base URL; ?q=<text> is appended
	Log      logging.Logger
}

// ScoreSlot queries the secondary embedding service for text and folds
// the returned (frame_id, similarity) pairs into temporal_scores[slot];
// unmatched frames get SecondaryUnknownDistance.
func (r *SecondaryTextRanker) ScoreSlot(ctx context.Context, text string, slot int, model *scores.Model) error {
	matches, err := r.query(ctx, text)
	if err != nil {
		if r.Log != nil {
			r.Log.Warn("secondary text ranker call failed, leaving scores unchanged", "error", err)
		}
		return nil
	}

	got := make(map[types.FrameID]float64, len(matches))
	for _, m := range matches {
		got[m.FrameID] = 1 - m.Similarity
	}
	for i := 0; i < model.Len(); i++ {
		id := types.FrameID(i)
		d, ok := got[id]
		if !ok {
			d = SecondaryUnknownDistance
		}
		if err := model.AdjustTemporal(slot, id, d); err != nil {
			return errs.Wrap("rankers.secondary", err)
		}
	}
	return nil
}

func (r *SecondaryTextRanker) query(ctx context.Context, text string) ([]secondaryMatch, error) {
	client := r.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	u := fmt.Sprintf("%s?q=%s", r.Endpoint, url.QueryEscape(text))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("secondary embedding service returned status %d", resp.StatusCode)
	}
	var matches []secondaryMatch
	if err := json.NewDecoder(resp.Body).Decode(&matches); err != nil {
		return nil, err
	}
	return matches, nil
}
