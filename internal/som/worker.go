// Package som implements the asynchronous SOM (self-organizing map)
// worker: off-thread Kohonen training over a snapshot of the current
// score distribution and feature matrix, plus best-matching-unit
// assignment and weighted per-cell display generation. Grounded on
// AsyncSom/async-som.cpp, with the REDESIGN FLAGS item adopted: a
// buffered, newer-replaces-older channel and an atomically published
// result snapshot stand in for the original's
// new_data/m_ready/terminate condition-variable booleans.
package som

import (
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/siret/somhunter-go/internal/errs"
	"github.com/siret/somhunter-go/internal/index"
	"github.com/siret/somhunter-go/internal/types"
)

// Request is one training snapshot: feature rows and scores for every
// unmasked frame, taken by value so the worker owns its own copy and the
// session lock can be released immediately after Start returns.
type Request struct {
	IDs     []types.FrameID
	Points  [][]float32
	Weights []float64
}

// snapshot is the atomically published, immutable training result.
type snapshot struct {
	codebook *codebook
	mapping  [][]types.FrameID // per-cell, width*height entries
}

// Worker is one AsyncSomWorker instance: a dedicated goroutine, a
// capacity-1 "newest request replaces in-flight" work channel, and an
// atomically readable result snapshot.
type Worker struct {
	width, height int
	workers       int
	index         *index.FrameIndex

	requests chan Request
	cancel   chan struct{}
	ready    atomic.Bool
	result   atomic.Pointer[snapshot]

	rng *rand.Rand

	closeOnce sync.Once
	done      chan struct{}
}

// NewWorker starts the worker goroutine for a width x height grid. seed
// is the single per-UserContext random source (REDESIGN FLAGS: no
// scattered global random devices); it is read exactly once, here, to
// give the worker its own private *rand.Rand — the session goroutine
// goes on using seed concurrently with the worker's goroutine after
// Start returns, and math/rand.Rand is not safe for concurrent use, so
// the worker must never touch seed again after construction. idx
// accelerates empty-cell resolution (SPEC_FULL.md §6.5); nil falls back
// to a brute-force scan.
func NewWorker(width, height, parallelism int, idx *index.FrameIndex, seed *rand.Rand) *Worker {
	w := &Worker{
		width: width, height: height, workers: parallelism,
		index:    idx,
		requests: make(chan Request, 1),
		cancel:   make(chan struct{}),
		rng:      rand.New(rand.NewSource(seed.Int63())),
		done:     make(chan struct{}),
	}
	go w.run()
	return w
}

// Start installs a new training request, discarding any request still
// waiting to be picked up (newer-replaces-older), and wakes the worker.
// Non-blocking; always succeeds, matching start_work's "no back-pressure"
// contract.
func (w *Worker) Start(req Request) {
	w.ready.Store(false)
	for {
		select {
		case w.requests <- req:
			return
		default:
			select {
			case <-w.requests:
			default:
			}
		}
	}
}

// IsReady reports whether the latest training run completed without
// being superseded by a newer Start call.
func (w *Worker) IsReady() bool { return w.ready.Load() }

// Close terminates the worker goroutine and waits for it to exit.
func (w *Worker) Close() {
	w.closeOnce.Do(func() { close(w.cancel) })
	<-w.done
}

func (w *Worker) run() {
	defer close(w.done)
	for {
		select {
		case <-w.cancel:
			return
		case req := <-w.requests:
			w.train(req)
		}
	}
}

// train runs one full Kohonen training + BMU assignment pass, checking
// w.requests/w.cancel at each of the original's restart checkpoints so a
// superseding Start or a Close discards the in-progress run.
func (w *Worker) train(req Request) {
	if len(req.Points) == 0 {
		return
	}
	if w.superseded() {
		return
	}

	cb := fitSOM(req.Points, req.Weights, w.width, w.height, w.rng)
	if w.superseded() {
		return
	}

	bmus := make([]int, len(req.Points))
	w.assignParallel(cb, req.Points, bmus)
	if w.superseded() {
		return
	}

	mapping := make([][]types.FrameID, w.width*w.height)
	for i, id := range req.IDs {
		mapping[bmus[i]] = append(mapping[bmus[i]], id)
	}

	w.result.Store(&snapshot{codebook: cb, mapping: mapping})
	w.ready.Store(true)
}

func (w *Worker) assignParallel(cb *codebook, points [][]float32, out []int) {
	n := len(points)
	workers := w.workers
	if workers < 1 {
		workers = 1
	}
	if workers > n {
		workers = n
	}
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		start := i * n / workers
		end := (i + 1) * n / workers
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			assignBMUs(cb, points, start, end, out)
		}(start, end)
	}
	wg.Wait()
}

// superseded reports whether a newer request is already waiting or the
// worker has been asked to terminate — the restart checkpoint check.
func (w *Worker) superseded() bool {
	select {
	case <-w.cancel:
		return true
	default:
	}
	return len(w.requests) > 0
}

// Cell returns the frame ids assigned to grid cell (i,j), or nil if the
// worker has never completed a training run.
func (w *Worker) Cell(i, j int) []types.FrameID {
	snap := w.result.Load()
	if snap == nil {
		return nil
	}
	return snap.mapping[i+w.width*j]
}

// Codebook returns the prototype vector of cell (i,j).
func (w *Worker) Codebook(i, j int) ([]float32, error) {
	snap := w.result.Load()
	if snap == nil {
		return nil, errs.Wrap("som.codebook", errs.ErrSomNotReady)
	}
	return snap.codebook.unit(i + w.width*j), nil
}

// Width and Height expose the grid dimensions for display assembly.
func (w *Worker) Width() int  { return w.width }
func (w *Worker) Height() int { return w.height }
