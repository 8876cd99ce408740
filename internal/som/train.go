package som

import (
	"math/rand"
	"sort"
)

// Iters is the total number of online Kohonen training iterations, split
// evenly between the learning phase and the anti-learning phase, per
// spec.md §4.3.
const Iters = 20000

// trainingPhase holds one (alpha, radius) linear schedule over a run of
// iterations, grounded on the two std::array<float,2> endpoint pairs
// (alphasA/radiiA, alphasB/radiiB) in the original fit_SOM call.
type trainingPhase struct {
	alphaFrom, alphaTo   float64
	radiusFrom, radiusTo float64
	iters                int
}

func schedules(width, height int) []trainingPhase {
	radiusBase := float64(width+height) / 3
	const negAlpha = -0.01
	const negRadius = 1.1
	half := Iters / 2
	return []trainingPhase{
		{alphaFrom: 0.3, alphaTo: 0.1, radiusFrom: radiusBase, radiusTo: 0.1, iters: half},
		{
			alphaFrom: negAlpha * 0.3, alphaTo: negAlpha * 0.1,
			radiusFrom: negRadius * radiusBase, radiusTo: negRadius * 0.1,
			iters: Iters - half,
		},
	}
}

// weightedDraw is a fixed, read-only cumulative-weight sampler: every
// draw is independent and with replacement, unlike ScoreModel's
// without-replacement segment tree, because the same training point may
// be (and typically is) resampled many times across Iters iterations.
type weightedDraw struct {
	cum   []float64
	total float64
}

func newWeightedDraw(weights []float64) *weightedDraw {
	cum := make([]float64, len(weights))
	var total float64
	for i, w := range weights {
		if w < 0 {
			w = 0
		}
		total += w
		cum[i] = total
	}
	return &weightedDraw{cum: cum, total: total}
}

func (w *weightedDraw) draw(rng *rand.Rand) int {
	if w.total <= 0 {
		return rng.Intn(len(w.cum))
	}
	target := rng.Float64() * w.total
	return sort.Search(len(w.cum), func(i int) bool { return w.cum[i] >= target })
}

// codebook is a flat width*height grid of dim-dimensional prototype
// vectors, row-major by (x + width*y).
type codebook struct {
	width, height, dim int
	data               []float32
}

func newCodebook(width, height, dim int) *codebook {
	return &codebook{width: width, height: height, dim: dim, data: make([]float32, width*height*dim)}
}

func (c *codebook) unit(idx int) []float32 { return c.data[idx*c.dim : (idx+1)*c.dim] }

func (c *codebook) setUnit(idx int, v []float32) { copy(c.unit(idx), v) }

func manhattan(width, a, b int) float64 {
	ax, ay := a%width, a/width
	bx, by := b%width, b/width
	return absf(ax-bx) + absf(ay-by)
}

func absf(i int) float64 {
	if i < 0 {
		return float64(-i)
	}
	return float64(i)
}

func neighborhood(d, radius float64) float64 {
	if radius <= 0 {
		if d == 0 {
			return 1
		}
		return 0
	}
	h := 1 - d/radius
	if h < 0 {
		return 0
	}
	return h
}

// fitSOM runs the online Kohonen training loop: seed the codebook via
// k-means++ (SPEC_FULL.md §6.6), then for Iters iterations sample one
// training point weighted by scores (restricted to unmasked frames),
// find its BMU, and nudge every unit toward it scaled by the
// neighborhood function and the current phase's (alpha, radius).
// Grounded on AsyncSom::async_som_worker's fit_SOM call.
func fitSOM(points [][]float32, weights []float64, width, height int, rng *rand.Rand) *codebook {
	dim := len(points[0])
	cb := newCodebook(width, height, dim)
	for i, v := range seedCodebook(points, width*height, rng) {
		cb.setUnit(i, v)
	}

	draw := newWeightedDraw(weights)
	k := width * height

	for _, phase := range schedules(width, height) {
		for it := 0; it < phase.iters; it++ {
			t := float64(it) / float64(maxInt(phase.iters-1, 1))
			alpha := lerp(phase.alphaFrom, phase.alphaTo, t)
			radius := lerp(phase.radiusFrom, phase.radiusTo, t)

			pointIdx := draw.draw(rng)
			point := points[pointIdx]
			bmu := nearestUnit(cb, point)

			for u := 0; u < k; u++ {
				h := neighborhood(manhattan(width, u, bmu), radius)
				if h <= 0 {
					continue
				}
				unit := cb.unit(u)
				for d := 0; d < dim; d++ {
					unit[d] += float32(alpha * h * float64(point[d]-unit[d]))
				}
			}
		}
	}
	return cb
}

func nearestUnit(cb *codebook, point []float32) int {
	best, bestDist := 0, -1.0
	for u := 0; u < cb.width*cb.height; u++ {
		d := squaredDist(point, cb.unit(u))
		if bestDist < 0 || d < bestDist {
			best, bestDist = u, d
		}
	}
	return best
}

func lerp(from, to, t float64) float64 { return from + (to-from)*t }

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// assignBMUs maps points[start:end) to their nearest codebook unit,
// grounded on map_points_to_kohos; worker.go partitions the full range
// across goroutines and joins before reading out.
func assignBMUs(cb *codebook, points [][]float32, start, end int, out []int) {
	for i := start; i < end; i++ {
		out[i] = nearestUnit(cb, points[i])
	}
}
