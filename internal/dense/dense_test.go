package dense

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestColRange(t *testing.T) {
	assert := assert.New(t)
	m := FromRows([][]float32{
		{1, 2, 3, 4},
		{5, 6, 7, 8},
	})
	sub := ColRange(m, 1, 2)
	assert.Equal([]float32{2, 3, 6, 7}, Data(sub))

	// ColRange copies, so m must not be touched
	Scale(sub, 10)
	assert.Equal([]float32{1, 2, 3, 4, 5, 6, 7, 8}, Data(m))

	SetColRange(m, 2, sub)
	assert.Equal([]float32{1, 2, 20, 30, 5, 6, 60, 70}, Data(m))
}

func TestRowOps(t *testing.T) {
	assert := assert.New(t)
	m := FromRows([][]float32{
		{1, -2, 3},
		{0, 5, -1},
	})
	assert.Equal([]float32{2, 4}, RowSums(m))
	assert.Equal([]float32{1, 3, 2}, ColSums(m))
	assert.Equal([]int{2, 1}, RowArgmax(m))
	assert.Equal(float64(6), Sum(m))

	MulRows(m, []float32{2, 0})
	assert.Equal([]float32{2, -4, 6, 0, 0, 0}, Data(m))
}

func TestTransposeMatMul(t *testing.T) {
	assert := assert.New(t)
	a := FromRows([][]float32{
		{1, 2},
		{3, 4},
		{5, 6},
	})
	at := Transpose(a)
	rows, cols := Dims(at)
	assert.Equal(2, rows)
	assert.Equal(3, cols)
	assert.Equal([]float32{1, 3, 5, 2, 4, 6}, Data(at))

	p, err := MatMul(at, a)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	assert.Equal([]float32{35, 44, 44, 56}, Data(p))
}

func TestIsFinite(t *testing.T) {
	var zero float64
	assert.True(t, IsFinite(1e30))
	assert.False(t, IsFinite(1/zero))
	assert.False(t, IsFinite(zero/zero))
}

func TestBorrowReturn(t *testing.T) {
	m := Borrow(3, 2)
	Data(m)[0] = 42
	Return(m)
	m2 := Borrow(3, 2)
	for _, v := range Data(m2) {
		if v != 0 {
			t.Fatalf("Borrowed matrix should be zeroed. Got %v", Data(m2))
		}
	}
}
