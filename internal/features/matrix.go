// Package features holds the immutable, L2-normalized feature matrices,
// the keyword table (with its PCA projection into the primary feature
// space), and the fixed-RoI region feature bank used by the canvas
// ranker. The raw little-endian float decoding is grounded on the
// teacher's encodeVector/decodeVector in utils.go, generalized from "one
// length-prefixed vector" to "an offset, then a stream of fixed-width
// rows" to match the dataset's on-disk matrix format.
package features

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/siret/somhunter-go/internal/errs"
)

// Matrix is a dense, row-major, L2-unit-normalized float32 matrix:
// N rows of dimension D.
type Matrix struct {
	N, D int
	data []float32
}

// NewMatrix wraps already-normalized row-major data (used by tests and by
// the SOM worker, which never touches disk).
func NewMatrix(n, d int, data []float32) *Matrix {
	return &Matrix{N: n, D: d, data: data}
}

// Row returns the i-th row as a slice view (not a copy) into the matrix.
func (m *Matrix) Row(i int) []float32 { return m.data[i*m.D : (i+1)*m.D] }

// Dot returns the dot product of rows a and b.
func (m *Matrix) Dot(a, b int) float64 {
	return dot(m.Row(a), m.Row(b))
}

// DotVec returns the dot product of row i with an arbitrary vector v,
// which must have length D.
func (m *Matrix) DotVec(i int, v []float32) float64 {
	return dot(m.Row(i), v)
}

func dot(a, b []float32) float64 {
	var s float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

// Normalize L2-normalizes v in place, returning v.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
	return v
}

// LoadMatrix reads n rows of dim float32 values, little-endian, after
// skipping dataOff bytes — the raw feature-matrix file format named by
// features_file/features_file_data_off/features_dim in the config.
func LoadMatrix(path string, dataOff int64, dim int) (*Matrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.WrapLoad("features.load", err)
	}
	defer f.Close()

	if _, err := f.Seek(dataOff, io.SeekStart); err != nil {
		return nil, errs.WrapLoad("features.load", err)
	}

	r := bufio.NewReaderSize(f, 1<<20)
	var data []float32
	row := make([]float32, dim)
	for {
		if err := readRow(r, row); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return nil, errs.WrapLoad("features.load", err)
		}
		r2 := make([]float32, dim)
		copy(r2, row)
		data = append(data, Normalize(r2)...)
	}
	n := len(data) / dim
	if n == 0 {
		return nil, errs.WrapLoad("features.load", fmt.Errorf("%s: no rows read at offset %d dim %d", path, dataOff, dim))
	}
	return &Matrix{N: n, D: dim, data: data}, nil
}

func readRow(r io.Reader, row []float32) error {
	buf := make([]byte, 4*len(row))
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}
	for i := range row {
		bits := binary.LittleEndian.Uint32(buf[i*4:])
		row[i] = math.Float32frombits(bits)
	}
	return nil
}
