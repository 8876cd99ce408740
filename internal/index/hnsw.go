// Package index wraps an HNSW approximate nearest-neighbor index over the
// primary feature matrix, grounded on the teacher's own use of
// github.com/fogfish/hnsw + github.com/kshard/vector in store.go
// (initHNSWIndex/searchWithHNSW), generalized from "vector store search"
// to "k-NN ranker anchor lookup" and "SOM empty-cell nearest codebook
// lookup".
package index

import (
	"github.com/fogfish/hnsw"
	"github.com/fogfish/hnsw/vector"
	surface "github.com/kshard/vector"

	"github.com/siret/somhunter-go/internal/features"
	"github.com/siret/somhunter-go/internal/types"
)

// FrameIndex accelerates nearest-neighbor lookups over a frame feature
// matrix. Built once at catalog load time; immutable afterward (the
// engine never indexes new frames at runtime, per spec.md's non-goals).
type FrameIndex struct {
	idx *hnsw.HNSW[vector.VF32]
	m   int
}

// Build constructs an HNSW index over every row of mat.
func Build(mat *features.Matrix, m, efConstruction int) *FrameIndex {
	idx := hnsw.New(
		vector.SurfaceVF32(surface.Cosine()),
		hnsw.WithM(m),
		hnsw.WithEfConstruction(efConstruction),
	)
	for i := 0; i < mat.N; i++ {
		idx.Insert(vector.VF32{Key: uint32(i), Vec: mat.Row(i)})
	}
	return &FrameIndex{idx: idx, m: m}
}

// Nearest returns up to k approximate nearest neighbors (by cosine
// distance) to the feature row of anchor, excluding anchor itself.
func (fi *FrameIndex) Nearest(mat *features.Matrix, anchor types.FrameID, k, efSearch int) []types.FrameID {
	if fi == nil || fi.idx == nil {
		return nil
	}
	neighbors := fi.idx.Search(vector.VF32{Key: 0, Vec: mat.Row(int(anchor))}, k+1, efSearch)
	out := make([]types.FrameID, 0, k)
	for _, n := range neighbors {
		if types.FrameID(n.Key) == anchor {
			continue
		}
		out = append(out, types.FrameID(n.Key))
		if len(out) == k {
			break
		}
	}
	return out
}

// NearestToVec returns up to k approximate nearest neighbors to an
// arbitrary query vector (used by the SOM's empty-cell resolution, which
// searches by codebook prototype rather than by an existing frame's row).
func (fi *FrameIndex) NearestToVec(v []float32, k, efSearch int) []types.FrameID {
	if fi == nil || fi.idx == nil {
		return nil
	}
	neighbors := fi.idx.Search(vector.VF32{Key: 0, Vec: v}, k, efSearch)
	out := make([]types.FrameID, 0, len(neighbors))
	for _, n := range neighbors {
		out = append(out, types.FrameID(n.Key))
	}
	return out
}
