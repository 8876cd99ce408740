package som

import (
	"math"
	"math/rand"
)

// seedCodebook picks k initial prototype vectors of dimension dim from
// points via k-means++: the first seed uniform at random, each
// subsequent one drawn with probability proportional to its squared
// distance from the nearest seed chosen so far. Grounded on the
// teacher's kMeansIVF centroid initialization in pkg/index/ivf.go,
// generalized from "IVF cluster centroids" to "Kohonen grid prototype
// vectors" (SPEC_FULL.md §6.6) in place of the original C++ fit_SOM's
// uniform-random codebook init.
func seedCodebook(points [][]float32, k int, rng *rand.Rand) [][]float32 {
	seeds := make([][]float32, k)

	seeds[0] = cloneVec(points[rng.Intn(len(points))])
	for i := 1; i < k; i++ {
		dist := make([]float64, len(points))
		var total float64
		for j, p := range points {
			minDist := math.MaxFloat64
			for c := 0; c < i; c++ {
				if d := squaredDist(p, seeds[c]); d < minDist {
					minDist = d
				}
			}
			dist[j] = minDist
			total += minDist
		}
		if total <= 0 {
			seeds[i] = cloneVec(points[rng.Intn(len(points))])
			continue
		}
		r := rng.Float64() * total
		var cum float64
		chosen := len(points) - 1
		for j, d := range dist {
			cum += d
			if cum >= r {
				chosen = j
				break
			}
		}
		seeds[i] = cloneVec(points[chosen])
	}
	return seeds
}

func squaredDist(a, b []float32) float64 {
	var s float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		s += d * d
	}
	return s
}

func cloneVec(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
