// Package kio reads and writes the token streams networks are persisted in.
//
// A stream is either text, where tokens and numbers are separated by white
// space, or binary, where it starts with "\x00B", tokens are followed by a
// single space and numbers are stored little-endian behind a one byte size
// prefix.
package kio

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// ErrUnexpectedToken is the cause of every error raised when the stream does not
// contain what the caller expected.
var ErrUnexpectedToken = errors.New("unexpected token")

const (
	binaryHeader = "\x00B"
	matrixToken  = "FM"
	vectorToken  = "FV"
)

// Reader reads tokens, numbers and matrices.
type Reader struct {
	r      *bufio.Reader
	Binary bool
}

// NewReader wraps r. No header is consumed.
func NewReader(r io.Reader, binary bool) *Reader {
	return &Reader{r: bufio.NewReader(r), Binary: binary}
}

// Open wraps r and consumes the binary header if there is one.
func Open(r io.Reader) (*Reader, error) {
	retVal := NewReader(r, false)
	p, err := retVal.r.Peek(2)
	if err != nil && err != io.EOF {
		return nil, errors.WithStack(err)
	}
	if string(p) == binaryHeader {
		retVal.r.Discard(2)
		retVal.Binary = true
	}
	return retVal, nil
}

func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\v' || c == '\f' }

func (r *Reader) skipSpace() error {
	for {
		c, err := r.r.ReadByte()
		if err != nil {
			return err
		}
		if !isSpace(c) {
			return r.r.UnreadByte()
		}
	}
}

// EOF reports whether only white space is left in the stream.
func (r *Reader) EOF() bool {
	if err := r.skipSpace(); err != nil {
		return true
	}
	_, err := r.r.Peek(1)
	return err != nil
}

// ReadToken reads the next white space delimited token and consumes the single
// delimiter behind it.
func (r *Reader) ReadToken() (string, error) {
	if err := r.skipSpace(); err != nil {
		if err == io.EOF {
			return "", io.EOF
		}
		return "", errors.WithStack(err)
	}
	var buf strings.Builder
	for {
		c, err := r.r.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", errors.WithStack(err)
		}
		if isSpace(c) {
			break
		}
		buf.WriteByte(c)
	}
	return buf.String(), nil
}

// ExpectToken reads a token and fails unless it is tok.
func (r *Reader) ExpectToken(tok string) error {
	got, err := r.ReadToken()
	if err != nil {
		return errors.Wrapf(err, "expected %q", tok)
	}
	if got != tok {
		return errors.Wrapf(ErrUnexpectedToken, "expected %q, got %q", tok, got)
	}
	return nil
}

func (r *Reader) readSized(size int) ([]byte, error) {
	s, err := r.r.ReadByte()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if int(s) != size {
		return nil, errors.Wrapf(ErrUnexpectedToken, "expected a %d byte number, got size %d", size, s)
	}
	p := make([]byte, size)
	if _, err = io.ReadFull(r.r, p); err != nil {
		return nil, errors.WithStack(err)
	}
	return p, nil
}

// ReadInt reads an integer.
func (r *Reader) ReadInt() (int, error) {
	if r.Binary {
		if err := r.skipSpace(); err != nil {
			return 0, errors.WithStack(err)
		}
		p, err := r.readSized(4)
		if err != nil {
			return 0, err
		}
		return int(int32(binary.LittleEndian.Uint32(p))), nil
	}
	tok, err := r.ReadToken()
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(tok)
	if err != nil {
		return 0, errors.Wrapf(ErrUnexpectedToken, "expected an integer, got %q", tok)
	}
	return v, nil
}

// ReadFloat reads a float.
func (r *Reader) ReadFloat() (float32, error) {
	if r.Binary {
		if err := r.skipSpace(); err != nil {
			return 0, errors.WithStack(err)
		}
		p, err := r.readSized(4)
		if err != nil {
			return 0, err
		}
		return math.Float32frombits(binary.LittleEndian.Uint32(p)), nil
	}
	tok, err := r.ReadToken()
	if err != nil {
		return 0, err
	}
	return parseFloat(tok)
}

func parseFloat(tok string) (float32, error) {
	v, err := strconv.ParseFloat(tok, 32)
	if err != nil {
		return 0, errors.Wrapf(ErrUnexpectedToken, "expected a float, got %q", tok)
	}
	return float32(v), nil
}

func (r *Reader) readFloats(n int) ([]float32, error) {
	if n < 0 {
		return nil, errors.Wrapf(ErrUnexpectedToken, "negative element count %d", n)
	}
	p := make([]byte, 4*n)
	if _, err := io.ReadFull(r.r, p); err != nil {
		return nil, errors.WithStack(err)
	}
	retVal := make([]float32, n)
	for i := range retVal {
		retVal[i] = math.Float32frombits(binary.LittleEndian.Uint32(p[4*i:]))
	}
	return retVal, nil
}

// ReadMatrix reads a matrix. The text form is "[ a b ; c d ]" where rows end at
// a newline or a semicolon.
func (r *Reader) ReadMatrix() (*tensor.Dense, error) {
	if r.Binary {
		if err := r.ExpectToken(matrixToken); err != nil {
			return nil, err
		}
		rows, err := r.ReadInt()
		if err != nil {
			return nil, err
		}
		cols, err := r.ReadInt()
		if err != nil {
			return nil, err
		}
		if rows < 0 || cols < 0 {
			return nil, errors.Wrapf(ErrUnexpectedToken, "negative matrix size %dx%d", rows, cols)
		}
		data, err := r.readFloats(rows * cols)
		if err != nil {
			return nil, err
		}
		return tensor.New(tensor.WithShape(rows, cols), tensor.WithBacking(data)), nil
	}

	if err := r.ExpectToken("["); err != nil {
		return nil, err
	}
	var (
		data  []float32
		row   []float32
		cols  = -1
		rows  int
		tok   strings.Builder
		ended bool
	)
	flushTok := func() error {
		if tok.Len() == 0 {
			return nil
		}
		v, err := parseFloat(tok.String())
		tok.Reset()
		if err != nil {
			return err
		}
		row = append(row, v)
		return nil
	}
	flushRow := func() error {
		if len(row) == 0 {
			return nil
		}
		if cols >= 0 && len(row) != cols {
			return errors.Wrapf(ErrUnexpectedToken, "row %d has %d columns, expected %d", rows, len(row), cols)
		}
		cols = len(row)
		data = append(data, row...)
		row = row[:0]
		rows++
		return nil
	}
	for !ended {
		c, err := r.r.ReadByte()
		if err != nil {
			return nil, errors.Wrapf(err, "unterminated matrix")
		}
		switch {
		case c == '\n' || c == ';':
			if err = flushTok(); err == nil {
				err = flushRow()
			}
		case c == ']':
			if err = flushTok(); err == nil {
				err = flushRow()
			}
			ended = true
		case isSpace(c):
			err = flushTok()
		default:
			tok.WriteByte(c)
		}
		if err != nil {
			return nil, err
		}
	}
	if rows == 0 {
		return nil, errors.Wrapf(ErrUnexpectedToken, "empty matrix")
	}
	return tensor.New(tensor.WithShape(rows, cols), tensor.WithBacking(data)), nil
}

// ReadVector reads a float vector. The text form is "[ a b c ]".
func (r *Reader) ReadVector() ([]float32, error) {
	if r.Binary {
		if err := r.ExpectToken(vectorToken); err != nil {
			return nil, err
		}
		n, err := r.ReadInt()
		if err != nil {
			return nil, err
		}
		return r.readFloats(n)
	}
	if err := r.ExpectToken("["); err != nil {
		return nil, err
	}
	var retVal []float32
	for {
		tok, err := r.ReadToken()
		if err != nil {
			return nil, errors.Wrapf(err, "unterminated vector")
		}
		if tok == "]" {
			return retVal, nil
		}
		v, err := parseFloat(tok)
		if err != nil {
			return nil, err
		}
		retVal = append(retVal, v)
	}
}

// ReadIntVector reads an integer vector. The text form is "[ 1 2 3 ]", the
// binary form is the count followed by the values.
func (r *Reader) ReadIntVector() ([]int, error) {
	if r.Binary {
		n, err := r.ReadInt()
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, errors.Wrapf(ErrUnexpectedToken, "negative vector length %d", n)
		}
		retVal := make([]int, n)
		for i := range retVal {
			if retVal[i], err = r.ReadInt(); err != nil {
				return nil, err
			}
		}
		return retVal, nil
	}
	if err := r.ExpectToken("["); err != nil {
		return nil, err
	}
	var retVal []int
	for {
		tok, err := r.ReadToken()
		if err != nil {
			return nil, errors.Wrapf(err, "unterminated vector")
		}
		if tok == "]" {
			return retVal, nil
		}
		v, err := strconv.Atoi(tok)
		if err != nil {
			return nil, errors.Wrapf(ErrUnexpectedToken, "expected an integer, got %q", tok)
		}
		retVal = append(retVal, v)
	}
}
