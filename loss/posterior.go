package loss

import (
	"github.com/gorgonia/nnet/internal/dense"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Pair is one sparse target entry: an output column and its value.
type Pair struct {
	Index int
	Value float32
}

// Posterior holds the sparse targets of a minibatch, one slice per frame. A
// frame may have no entries at all.
type Posterior [][]Pair

// ToMatrix expands the posterior into a dense frames×cols target matrix.
// Repeated indices within a frame accumulate.
func (p Posterior) ToMatrix(cols int) (*tensor.Dense, error) {
	retVal := dense.New(len(p), cols)
	rows := dense.Rows(retVal)
	for f, frame := range p {
		for _, e := range frame {
			if e.Index < 0 || e.Index >= cols {
				return nil, errors.Wrapf(ErrShape, "frame %d has target index %d, outside [0, %d)", f, e.Index, cols)
			}
			rows[f][e.Index] += e.Value
		}
	}
	return retVal, nil
}

// HasTargetIn reports whether frame f has at least one entry in [begin, end).
func (p Posterior) HasTargetIn(f, begin, end int) bool {
	for _, e := range p[f] {
		if e.Index >= begin && e.Index < end {
			return true
		}
	}
	return false
}
