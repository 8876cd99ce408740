package som

import (
	"math/rand"
	"testing"
	"time"

	"github.com/siret/somhunter-go/internal/scores"
	"github.com/siret/somhunter-go/internal/types"
)

func samplePoints(n, dim int, seed int64) [][]float32 {
	rng := rand.New(rand.NewSource(seed))
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, dim)
		for d := range v {
			v[d] = rng.Float32()
		}
		out[i] = v
	}
	return out
}

func TestSeedCodebookReturnsDistinctCount(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	points := samplePoints(50, 4, 1)
	seeds := seedCodebook(points, 9, rng)
	if len(seeds) != 9 {
		t.Fatalf("expected 9 seeds, got %d", len(seeds))
	}
	for _, s := range seeds {
		if len(s) != 4 {
			t.Fatalf("expected seed dim 4, got %d", len(s))
		}
	}
}

func TestNeighborhoodMonotonic(t *testing.T) {
	if neighborhood(0, 2) != 1 {
		t.Fatalf("expected h(0,r)=1, got %v", neighborhood(0, 2))
	}
	if neighborhood(3, 2) != 0 {
		t.Fatalf("expected h(d>r)=0, got %v", neighborhood(3, 2))
	}
	if h := neighborhood(1, 2); h <= 0 || h >= 1 {
		t.Fatalf("expected 0<h<1 for d<r, got %v", h)
	}
}

func TestFitSOMProducesUnitVectorsOfRightDim(t *testing.T) {
	points := samplePoints(40, 3, 2)
	weights := make([]float64, 40)
	for i := range weights {
		weights[i] = 1
	}
	rng := rand.New(rand.NewSource(3))
	cb := fitSOMSmall(points, weights, 2, 2, rng)
	for i := 0; i < 4; i++ {
		if len(cb.unit(i)) != 3 {
			t.Fatalf("unit %d: expected dim 3, got %d", i, len(cb.unit(i)))
		}
	}
}

// fitSOMSmall re-implements fitSOM's loop with a drastically reduced
// iteration budget (50) and a fixed alpha (0.2) and radius (2). It shares
// seedCodebook, weightedDraw, nearestUnit and neighborhood with fitSOM but
// does not call fitSOM itself.
func fitSOMSmall(points [][]float32, weights []float64, width, height int, rng *rand.Rand) *codebook {
	dim := len(points[0])
	cb := newCodebook(width, height, dim)
	for i, v := range seedCodebook(points, width*height, rng) {
		cb.setUnit(i, v)
	}
	draw := newWeightedDraw(weights)
	for it := 0; it < 50; it++ {
		pointIdx := draw.draw(rng)
		point := points[pointIdx]
		bmu := nearestUnit(cb, point)
		for u := 0; u < width*height; u++ {
			h := neighborhood(manhattan(width, u, bmu), 2)
			if h <= 0 {
				continue
			}
			unit := cb.unit(u)
			for d := 0; d < dim; d++ {
				unit[d] += float32(0.2 * h * float64(point[d]-unit[d]))
			}
		}
	}
	return cb
}

func TestWorkerTrainAndDisplay(t *testing.T) {
	points := samplePoints(60, 4, 11)
	ids := make([]types.FrameID, len(points))
	weights := make([]float64, len(points))
	for i := range points {
		ids[i] = types.FrameID(i)
		weights[i] = 1
	}

	w := NewWorker(2, 2, 2, nil, rand.New(rand.NewSource(5)))
	defer w.Close()

	w.Start(Request{IDs: ids, Points: points, Weights: weights})

	deadline := time.After(10 * time.Second)
	for !w.IsReady() {
		select {
		case <-deadline:
			t.Fatal("worker never became ready")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	model := scores.New(len(points), 1)
	display, err := w.GetDisplay(model, nil, rand.New(rand.NewSource(9)))
	if err != nil {
		t.Fatal(err)
	}
	if len(display) != 4 {
		t.Fatalf("expected 4 cells for a 2x2 grid, got %d", len(display))
	}
}

func TestWorkerNotReadyBeforeTraining(t *testing.T) {
	w := NewWorker(2, 2, 1, nil, rand.New(rand.NewSource(1)))
	defer w.Close()
	if w.IsReady() {
		t.Fatal("expected fresh worker to not be ready")
	}
	if _, err := w.GetDisplay(scores.New(4, 1), nil, rand.New(rand.NewSource(1))); err == nil {
		t.Fatal("expected SomNotReady error before any training completes")
	}
}

func TestWeightedDrawRespectsZeroWeights(t *testing.T) {
	weights := []float64{0, 0, 1, 0}
	draw := newWeightedDraw(weights)
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		if idx := draw.draw(rng); idx != 2 {
			t.Fatalf("expected only index 2 to be drawable, got %d", idx)
		}
	}
}
