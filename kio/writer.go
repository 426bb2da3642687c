package kio

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"strconv"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
	"gorgonia.org/tensor/native"
)

// Writer writes tokens, numbers and matrices. The first error is sticky: every
// later call is a no-op and Flush reports it.
type Writer struct {
	w      *bufio.Writer
	Binary bool
	err    error
}

// NewWriter wraps w. No header is written.
func NewWriter(w io.Writer, binary bool) *Writer {
	return &Writer{w: bufio.NewWriter(w), Binary: binary}
}

// WriteHeader marks the stream as binary. It does nothing for text streams.
func (w *Writer) WriteHeader() {
	if w.Binary {
		w.writeString(binaryHeader)
	}
}

func (w *Writer) writeString(s string) {
	if w.err != nil {
		return
	}
	if _, w.err = w.w.WriteString(s); w.err != nil {
		w.err = errors.WithStack(w.err)
	}
}

func (w *Writer) write(p []byte) {
	if w.err != nil {
		return
	}
	if _, w.err = w.w.Write(p); w.err != nil {
		w.err = errors.WithStack(w.err)
	}
}

// WriteToken writes tok followed by a space.
func (w *Writer) WriteToken(tok string) { w.writeString(tok + " ") }

// Newline ends a line in text mode.
func (w *Writer) Newline() {
	if !w.Binary {
		w.writeString("\n")
	}
}

// WriteInt writes an integer.
func (w *Writer) WriteInt(v int) {
	if w.Binary {
		var p [5]byte
		p[0] = 4
		binary.LittleEndian.PutUint32(p[1:], uint32(int32(v)))
		w.write(p[:])
		return
	}
	w.writeString(strconv.Itoa(v) + " ")
}

func formatFloat(v float32) string { return strconv.FormatFloat(float64(v), 'g', -1, 32) }

// WriteFloat writes a float.
func (w *Writer) WriteFloat(v float32) {
	if w.Binary {
		var p [5]byte
		p[0] = 4
		binary.LittleEndian.PutUint32(p[1:], math.Float32bits(v))
		w.write(p[:])
		return
	}
	w.writeString(formatFloat(v) + " ")
}

func (w *Writer) writeFloats(a []float32) {
	p := make([]byte, 4*len(a))
	for i, v := range a {
		binary.LittleEndian.PutUint32(p[4*i:], math.Float32bits(v))
	}
	w.write(p)
}

// WriteMatrix writes a 2D float32 matrix.
func (w *Writer) WriteMatrix(m *tensor.Dense) {
	if w.err != nil {
		return
	}
	rows, err := native.MatrixF32(m)
	if err != nil {
		w.err = errors.Wrapf(err, "cannot write matrix of shape %v", m.Shape())
		return
	}
	if w.Binary {
		w.WriteToken(matrixToken)
		w.WriteInt(m.Shape()[0])
		w.WriteInt(m.Shape()[1])
		for _, r := range rows {
			w.writeFloats(r)
		}
		return
	}
	w.writeString(" [")
	for _, r := range rows {
		w.writeString("\n ")
		for _, v := range r {
			w.writeString(" " + formatFloat(v))
		}
	}
	w.writeString(" ]\n")
}

// WriteVector writes a float vector.
func (w *Writer) WriteVector(v []float32) {
	if w.Binary {
		w.WriteToken(vectorToken)
		w.WriteInt(len(v))
		w.writeFloats(v)
		return
	}
	w.writeString(" [")
	for _, x := range v {
		w.writeString(" " + formatFloat(x))
	}
	w.writeString(" ]\n")
}

// WriteIntVector writes an integer vector.
func (w *Writer) WriteIntVector(v []int) {
	if w.Binary {
		w.WriteInt(len(v))
		for _, x := range v {
			w.WriteInt(x)
		}
		return
	}
	w.writeString(" [")
	for _, x := range v {
		w.writeString(" " + strconv.Itoa(x))
	}
	w.writeString(" ]\n")
}

// Err returns the first error encountered.
func (w *Writer) Err() error { return w.err }

// Flush flushes the buffer and returns the first error encountered.
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	return errors.WithStack(w.w.Flush())
}
