package scores

import (
	"math/rand"
	"os"
	"testing"

	"github.com/siret/somhunter-go/internal/catalog"
	"github.com/siret/somhunter-go/internal/features"
	"github.com/siret/somhunter-go/internal/types"
)

func TestResetSetsUniformScores(t *testing.T) {
	m := New(5, 0.5)
	for i := 0; i < 5; i++ {
		if m.Score(types.FrameID(i)) != 0.5 {
			t.Fatalf("frame %d: want 0.5, got %v", i, m.Score(types.FrameID(i)))
		}
	}
}

func TestAdjustOutOfRange(t *testing.T) {
	m := New(3, 1)
	if err := m.Adjust(types.FrameID(5), 0.5); err == nil {
		t.Fatal("expected error for out-of-range frame id")
	}
}

func TestMaskExcludesFromTopN(t *testing.T) {
	m := New(4, 1)
	m.Adjust(0, 4)
	m.Adjust(1, 3)
	m.Adjust(2, 2)
	m.Adjust(3, 1)
	m.SetMask(0, false)

	cat := tinyCatalog(t, 4)
	top := m.TopN(cat, 4, 0, 0)
	if len(top) != 3 {
		t.Fatalf("expected 3 unmasked frames, got %d", len(top))
	}
	for _, id := range top {
		if id == 0 {
			t.Fatal("masked frame 0 should not appear in TopN")
		}
	}
	if top[0] != 1 || top[1] != 2 || top[2] != 3 {
		t.Fatalf("expected descending order [1 2 3], got %v", top)
	}
}

func TestTopNPerVideoCap(t *testing.T) {
	// Frames 0,1,2 in video 0 (0 highest score), 3 in video 1.
	cat := catalogWithVideos(t, []types.VideoID{0, 0, 0, 1})
	m := New(4, 1)
	m.Adjust(0, 4)
	m.Adjust(1, 3)
	m.Adjust(2, 2)
	m.Adjust(3, 1)

	top := m.TopN(cat, 4, 1, 0)
	if len(top) != 2 {
		t.Fatalf("expected cap of 1-per-video to leave 2 results, got %v", top)
	}
	if top[0] != 0 || top[1] != 3 {
		t.Fatalf("expected [0 3], got %v", top)
	}
}

func TestTopNCacheInvalidatesOnMutation(t *testing.T) {
	cat := tinyCatalog(t, 3)
	m := New(3, 1)
	m.Adjust(0, 5)
	first := m.TopN(cat, 3, 0, 0)
	if first[0] != 0 {
		t.Fatalf("expected frame 0 first, got %v", first)
	}
	m.Adjust(1, 10)
	second := m.TopN(cat, 3, 0, 0)
	if second[0] != 1 {
		t.Fatalf("expected cache invalidation to reflect new top frame 1, got %v", second)
	}
}

func TestApplyBayesNoOpOnEmptyLikes(t *testing.T) {
	m := New(3, 1)
	before := append([]float64(nil), m.Scores()...)
	feat := features.NewMatrix(3, 2, []float32{1, 0, 0, 1, 1, 1})
	m.ApplyBayes(nil, map[types.FrameID]bool{}, feat, rand.New(rand.NewSource(1)))
	for i, v := range m.Scores() {
		if v != before[i] {
			t.Fatalf("expected no change at %d, got %v want %v", i, v, before[i])
		}
	}
}

func TestApplyBayesFavorsSimilarToLiked(t *testing.T) {
	// 3 frames: 0 is the liked frame, 1 is identical to 0, 2 is orthogonal.
	feat := features.NewMatrix(3, 2, []float32{1, 0, 1, 0, 0, 1})
	m := New(3, 1)
	shown := map[types.FrameID]bool{0: true, 1: true, 2: true}
	m.ApplyBayes([]types.FrameID{0}, shown, feat, rand.New(rand.NewSource(1)))
	if m.Score(1) <= m.Score(2) {
		t.Fatalf("expected frame 1 (identical to liked) to outscore orthogonal frame 2: got %v vs %v", m.Score(1), m.Score(2))
	}
}

func TestNormalizeClampsToMinScore(t *testing.T) {
	m := New(2, 0)
	m.Normalize(0)
	for i := 0; i < 2; i++ {
		if m.Score(types.FrameID(i)) < MinScore {
			t.Fatalf("expected score clamped to MinScore, got %v", m.Score(types.FrameID(i)))
		}
	}
}

func TestWeightedSampleDistinctAndWithinRange(t *testing.T) {
	m := New(10, 1)
	rng := rand.New(rand.NewSource(42))
	sample, err := m.WeightedSample(5, 1.0, rng)
	if err != nil {
		t.Fatal(err)
	}
	if len(sample) != 5 {
		t.Fatalf("expected 5 samples, got %d", len(sample))
	}
	seen := map[types.FrameID]bool{}
	for _, id := range sample {
		if seen[id] {
			t.Fatalf("duplicate id %d in weighted sample", id)
		}
		seen[id] = true
		if int(id) < 0 || int(id) >= 10 {
			t.Fatalf("id %d out of range", id)
		}
	}
}

func TestWeightedSampleCapsAtMaskedCount(t *testing.T) {
	m := New(3, 1)
	m.SetMask(0, false)
	m.SetMask(1, false)
	rng := rand.New(rand.NewSource(1))
	sample, err := m.WeightedSample(10, 1.0, rng)
	if err != nil {
		t.Fatal(err)
	}
	if len(sample) != 1 || sample[0] != 2 {
		t.Fatalf("expected exactly the single unmasked frame 2, got %v", sample)
	}
}

func TestApplyTemporalsDepthOne(t *testing.T) {
	cat := tinyCatalog(t, 3)
	m := New(3, 1)
	m.AdjustTemporal(0, 0, 0.1)
	m.AdjustTemporal(0, 1, 0.5)
	m.AdjustTemporal(0, 2, 1.0)
	m.SetTemporalSlots(1)
	if err := m.ApplyTemporals(1, cat); err != nil {
		t.Fatal(err)
	}
	// Lower temporal sub-score (closer match) should exponentiate to a
	// higher fused score.
	if !(m.Score(0) > m.Score(1) && m.Score(1) > m.Score(2)) {
		t.Fatalf("expected descending fused scores by ascending sub-score, got %v %v %v", m.Score(0), m.Score(1), m.Score(2))
	}
}

func TestFrameRank(t *testing.T) {
	m := New(4, 1)
	m.Adjust(0, 4)
	m.Adjust(1, 3)
	m.Adjust(2, 2)
	m.Adjust(3, 1)
	if m.FrameRank(0) != 0 {
		t.Fatalf("expected rank 0 for top frame, got %d", m.FrameRank(0))
	}
	if m.FrameRank(3) != 3 {
		t.Fatalf("expected rank 3 for bottom frame, got %d", m.FrameRank(3))
	}
}

func TestSortByScoreAscending(t *testing.T) {
	out := SortByScore([]float64{3, 1, 2})
	if out[0].Score != 1 || out[1].Score != 2 || out[2].Score != 3 {
		t.Fatalf("expected ascending order, got %v", out)
	}
}

func tinyCatalog(t *testing.T, n int) *catalog.FrameCatalog {
	t.Helper()
	vids := make([]types.VideoID, n)
	return catalogWithVideos(t, vids)
}

func catalogWithVideos(t *testing.T, vids []types.VideoID) *catalog.FrameCatalog {
	t.Helper()
	dir := t.TempDir()
	path := dir + "/frames.lst"
	lines := ""
	for i, v := range vids {
		lines += sprintFrameLine(v, i) + "\n"
	}
	if err := os.WriteFile(path, []byte(lines), 0o644); err != nil {
		t.Fatal(err)
	}
	off := catalog.FilenameOffsets{VidIDOff: 1, VidIDLen: 2, ShotIDOff: 5, ShotIDLen: 2, FrameNumOff: 8, FrameNumLen: 3}
	c, err := catalog.Load(path, off, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func sprintFrameLine(vid types.VideoID, frameNum int) string {
	// Matches the fixed-width offsets used by catalogWithVideos:
	// v<2-digit-vid>_s<2-digit-shot>_<3-digit-frame-num>
	return "v" + pad2(int(vid)) + "_s" + pad2(0) + "_" + pad3(frameNum)
}

func pad2(n int) string {
	s := itoa(n)
	for len(s) < 2 {
		s = "0" + s
	}
	return s
}

func pad3(n int) string {
	s := itoa(n)
	for len(s) < 3 {
		s = "0" + s
	}
	return s
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := ""
	for n > 0 {
		digits = string(rune('0'+n%10)) + digits
		n /= 10
	}
	return digits
}
