package nnet

import (
	"github.com/chewxy/math32"
	"github.com/gorgonia/nnet/internal/dense"
	"github.com/gorgonia/nnet/kio"
	"gorgonia.org/tensor"
	"gorgonia.org/vecf32"
)

// activation holds what the parameterless element-wise components share.
type activation struct{ dim int }

func (c activation) InputDim() int { return c.dim }
func (c activation) OutputDim() int { return c.dim }
func (c activation) Info() string { return "" }
func (c activation) InfoGradient() string { return "" }
func (c activation) initData(cfg *tokens) error { return nil }
func (c activation) readData(r *kio.Reader) error { return nil }
func (c activation) writeData(w *kio.Writer) {}

// Softmax normalises every row into a probability distribution.
//
// Its backward pass is the identity: Softmax is meant to be followed by a cross
// entropy loss, whose gradient w.r.t. the softmax input is already y - t.
type Softmax struct{ activation }

// NewSoftmax creates a dim-way softmax.
func NewSoftmax(dim int) *Softmax { return &Softmax{activation{dim}} }

func (c *Softmax) Type() ComponentType { return TypeSoftmax }

// Propagate implements Component.
func (c *Softmax) Propagate(in *tensor.Dense) (*tensor.Dense, error) {
	out := dense.Clone(in)
	for _, r := range dense.Rows(out) {
		max := r[vecf32.Argmax(r)]
		var sum float32
		for i, v := range r {
			r[i] = math32.Exp(v - max)
			sum += r[i]
		}
		vecf32.Scale(r, 1/sum)
	}
	return out, nil
}

// Backpropagate implements Component.
func (c *Softmax) Backpropagate(in, out, outDiff *tensor.Dense) (*tensor.Dense, error) {
	return dense.Clone(outDiff), nil
}

// Sigmoid is the logistic function.
type Sigmoid struct{ activation }

// NewSigmoid creates a dim wide sigmoid.
func NewSigmoid(dim int) *Sigmoid { return &Sigmoid{activation{dim}} }

func (c *Sigmoid) Type() ComponentType { return TypeSigmoid }

// Propagate implements Component.
func (c *Sigmoid) Propagate(in *tensor.Dense) (*tensor.Dense, error) {
	out := dense.Clone(in)
	dense.Apply(out, func(x float32) float32 { return 1 / (1 + math32.Exp(-x)) })
	return out, nil
}

// Backpropagate implements Component.
func (c *Sigmoid) Backpropagate(in, out, outDiff *tensor.Dense) (*tensor.Dense, error) {
	inDiff := dense.Clone(outDiff)
	d, y := dense.Data(inDiff), dense.Data(out)
	for i := range d {
		d[i] *= y[i] * (1 - y[i])
	}
	return inDiff, nil
}
