package kio

import (
	"bytes"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

func writeAll(w *Writer) {
	w.WriteHeader()
	w.WriteToken("<Test>")
	w.WriteInt(-7)
	w.WriteFloat(0.25)
	w.Newline()
	w.WriteMatrix(tensor.New(tensor.WithShape(2, 3), tensor.WithBacking([]float32{1, 2, 3, 4.5, -5, 6})))
	w.WriteVector([]float32{0.5, -1})
	w.WriteIntVector([]int{-2, 0, 2})
	w.WriteToken("</Test>")
}

func TestRoundTrip(t *testing.T) {
	for _, bin := range []bool{false, true} {
		var buf bytes.Buffer
		w := NewWriter(&buf, bin)
		writeAll(w)
		require.NoError(t, w.Flush())

		r, err := Open(&buf)
		require.NoError(t, err)
		assert.Equal(t, bin, r.Binary)

		require.NoError(t, r.ExpectToken("<Test>"))
		i, err := r.ReadInt()
		require.NoError(t, err)
		assert.Equal(t, -7, i)
		f, err := r.ReadFloat()
		require.NoError(t, err)
		assert.Equal(t, float32(0.25), f)

		m, err := r.ReadMatrix()
		require.NoError(t, err)
		assert.Equal(t, []int{2, 3}, []int(m.Shape()))
		assert.Equal(t, []float32{1, 2, 3, 4.5, -5, 6}, m.Data())

		v, err := r.ReadVector()
		require.NoError(t, err)
		assert.Equal(t, []float32{0.5, -1}, v)

		iv, err := r.ReadIntVector()
		require.NoError(t, err)
		assert.Equal(t, []int{-2, 0, 2}, iv)

		require.NoError(t, r.ExpectToken("</Test>"))
		assert.True(t, r.EOF(), "binary=%v", bin)
	}
}

func TestReadTextMatrixSemicolons(t *testing.T) {
	r := NewReader(strings.NewReader("[ 1 2 3 ; 4 5 6 ]"), false)
	m, err := r.ReadMatrix()
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, []int(m.Shape()))
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, m.Data())
}

func TestReadTextMatrixRagged(t *testing.T) {
	r := NewReader(strings.NewReader("[ 1 2 3 ; 4 5 ]"), false)
	_, err := r.ReadMatrix()
	assert.Equal(t, ErrUnexpectedToken, errors.Cause(err))
}

func TestExpectToken(t *testing.T) {
	r := NewReader(strings.NewReader("  <A>\n<B> 12"), false)
	assert.NoError(t, r.ExpectToken("<A>"))
	err := r.ExpectToken("<C>")
	assert.Equal(t, ErrUnexpectedToken, errors.Cause(err))
	i, err := r.ReadInt()
	assert.NoError(t, err)
	assert.Equal(t, 12, i)
	assert.True(t, r.EOF())
}

func TestReadNegativeSizes(t *testing.T) {
	tests := map[string]func(w *Writer){
		"int vector": func(w *Writer) { w.WriteInt(-1) },
		"vector":     func(w *Writer) { w.WriteToken(vectorToken); w.WriteInt(-3) },
		"matrix":     func(w *Writer) { w.WriteToken(matrixToken); w.WriteInt(-2); w.WriteInt(-3) },
		"columns":    func(w *Writer) { w.WriteToken(matrixToken); w.WriteInt(2); w.WriteInt(-3) },
	}
	for name, write := range tests {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			w := NewWriter(&buf, true)
			write(w)
			require.NoError(t, w.Flush())

			r := NewReader(&buf, true)
			var err error
			switch name {
			case "int vector":
				_, err = r.ReadIntVector()
			case "vector":
				_, err = r.ReadVector()
			default:
				_, err = r.ReadMatrix()
			}
			assert.Equal(t, ErrUnexpectedToken, errors.Cause(err))
		})
	}
}
