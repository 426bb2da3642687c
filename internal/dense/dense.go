// Package dense holds the whole-matrix primitives shared by the loss functions
// and the network components. Every matrix is a contiguous, row-major, 2D
// *tensor.Dense of float32.
package dense

import (
	"math"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
	"gorgonia.org/tensor/native"
	"gorgonia.org/vecf32"
)

// New returns a zeroed rows×cols matrix.
func New(rows, cols int) *tensor.Dense {
	return tensor.New(tensor.WithShape(rows, cols), tensor.WithBacking(make([]float32, rows*cols)))
}

// FromRows copies a ragged-free [][]float32 into a new matrix.
func FromRows(rows [][]float32) *tensor.Dense {
	var cols int
	if len(rows) > 0 {
		cols = len(rows[0])
	}
	backing := make([]float32, 0, len(rows)*cols)
	for _, r := range rows {
		if len(r) != cols {
			panic(errors.Errorf("ragged rows: expected %d columns, got %d", cols, len(r)))
		}
		backing = append(backing, r...)
	}
	return tensor.New(tensor.WithShape(len(rows), cols), tensor.WithBacking(backing))
}

// Dims returns the number of rows and columns.
func Dims(m *tensor.Dense) (rows, cols int) {
	s := m.Shape()
	switch len(s) {
	case 1:
		return 1, s[0]
	case 2:
		return s[0], s[1]
	}
	panic(errors.Errorf("expected a matrix, got shape %v", s))
}

// Data returns the backing slice.
func Data(m *tensor.Dense) []float32 { return m.Data().([]float32) }

// Rows returns row views into m. Writes through the views modify m.
func Rows(m *tensor.Dense) [][]float32 {
	retVal, err := native.MatrixF32(m)
	if err != nil {
		panic(errors.Wrapf(err, "cannot iterate rows of %v", m.Shape()))
	}
	return retVal
}

// Clone deep copies m.
func Clone(m *tensor.Dense) *tensor.Dense { return m.Clone().(*tensor.Dense) }

// ColRange copies the columns [off, off+n) of m into a new matrix.
func ColRange(m *tensor.Dense, off, n int) *tensor.Dense {
	rows, cols := Dims(m)
	if off < 0 || n < 0 || off+n > cols {
		panic(errors.Errorf("column range [%d, %d) out of bounds for %d columns", off, off+n, cols))
	}
	retVal := New(rows, n)
	dst := Rows(retVal)
	for i, r := range Rows(m) {
		copy(dst[i], r[off:off+n])
	}
	return retVal
}

// SetColRange writes src into the columns [off, off+cols(src)) of dst.
func SetColRange(dst *tensor.Dense, off int, src *tensor.Dense) {
	dr, dc := Dims(dst)
	sr, sc := Dims(src)
	if dr != sr || off < 0 || off+sc > dc {
		panic(errors.Errorf("cannot write %dx%d into columns [%d, %d) of %dx%d", sr, sc, off, off+sc, dr, dc))
	}
	srows := Rows(src)
	for i, r := range Rows(dst) {
		copy(r[off:off+sc], srows[i])
	}
}

// MulRows scales row i of m by w[i].
func MulRows(m *tensor.Dense, w []float32) {
	for i, r := range Rows(m) {
		vecf32.Scale(r, w[i])
	}
}

// Scale multiplies every element of m by s.
func Scale(m *tensor.Dense, s float32) { vecf32.Scale(Data(m), s) }

// AddScaled performs dst += alpha * src.
func AddScaled(dst *tensor.Dense, alpha float32, src *tensor.Dense) {
	d, s := Data(dst), Data(src)
	for i := range d {
		d[i] += alpha * s[i]
	}
}

// Sum adds up every element in float64.
func Sum(m *tensor.Dense) float64 { return SumF32(Data(m)) }

// SumF32 adds up a slice in float64.
func SumF32(a []float32) float64 {
	var s float64
	for _, v := range a {
		s += float64(v)
	}
	return s
}

// RowSums returns the per-row sums of m.
func RowSums(m *tensor.Dense) []float32 {
	rows := Rows(m)
	retVal := make([]float32, len(rows))
	for i, r := range rows {
		retVal[i] = vecf32.Sum(r)
	}
	return retVal
}

// ColSums returns the per-column sums of m.
func ColSums(m *tensor.Dense) []float32 {
	_, cols := Dims(m)
	retVal := make([]float32, cols)
	for _, r := range Rows(m) {
		vecf32.Add(retVal, r)
	}
	return retVal
}

// RowArgmax returns the column index of the maximum of each row.
func RowArgmax(m *tensor.Dense) []int {
	rows := Rows(m)
	retVal := make([]int, len(rows))
	for i, r := range rows {
		retVal[i] = vecf32.Argmax(r)
	}
	return retVal
}

// Apply replaces each element x of m with fn(x).
func Apply(m *tensor.Dense, fn func(float32) float32) {
	d := Data(m)
	for i := range d {
		d[i] = fn(d[i])
	}
}

// IsFinite reports whether v is neither NaN nor infinite.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// MatMul returns a × b.
func MatMul(a, b *tensor.Dense) (*tensor.Dense, error) {
	retVal, err := a.MatMul(b)
	if err != nil {
		return nil, errors.Wrapf(err, "matmul %v × %v", a.Shape(), b.Shape())
	}
	return retVal, nil
}

// Transpose returns a transposed copy of m.
func Transpose(m *tensor.Dense) *tensor.Dense {
	rows, cols := Dims(m)
	retVal := New(cols, rows)
	dst := Rows(retVal)
	for i, r := range Rows(m) {
		for j, v := range r {
			dst[j][i] = v
		}
	}
	return retVal
}

// SameShape reports whether a and b have identical row and column counts.
func SameShape(a, b *tensor.Dense) bool {
	ar, ac := Dims(a)
	br, bc := Dims(b)
	return ar == br && ac == bc
}
