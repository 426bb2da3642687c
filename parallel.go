package nnet

import (
	"fmt"
	"log"
	"strings"

	"github.com/chewxy/math32"
	"github.com/gorgonia/nnet/internal/dense"
	"github.com/gorgonia/nnet/kio"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// activityThreshold is the L1 norm below which the derivative a softmax branch
// receives for a frame counts as absent.
const activityThreshold = 1e-6

// ParallelComponent runs nested networks side by side. Branch i reads its own
// consecutive block of input columns and writes its own consecutive block of
// output columns, in branch order.
//
// A frame only trains the branches it is relevant to. A branch ending in a
// softmax is active for a frame when its slice of the output derivative is not
// (numerically) zero, which is the case when the loss had a target for it. All
// other branches are active exactly on the frames on which no softmax branch
// is. Inactive frames contribute nothing to the updates of a branch or to the
// derivative w.r.t. its input.
type ParallelComponent struct {
	in, out int
	nnets   []*Nnet

	inOffsets, outOffsets []int
}

// NewParallelComponent creates a parallel component from its branches.
func NewParallelComponent(nnets ...*Nnet) (*ParallelComponent, error) {
	retVal := new(ParallelComponent)
	for _, n := range nnets {
		retVal.in += n.InputDim()
		retVal.out += n.OutputDim()
	}
	if err := retVal.setNnets(nnets); err != nil {
		return nil, err
	}
	return retVal, nil
}

func (c *ParallelComponent) setNnets(nnets []*Nnet) error {
	if len(nnets) == 0 {
		return errors.Wrap(ErrConfig, "no nested networks")
	}
	var in, out int
	inOffsets := make([]int, len(nnets))
	outOffsets := make([]int, len(nnets))
	for i, n := range nnets {
		inOffsets[i], outOffsets[i] = in, out
		in += n.InputDim()
		out += n.OutputDim()
	}
	var errs manyErr
	if in != c.in {
		errs = append(errs, errors.Wrapf(ErrWidth, "nested networks take %d inputs, the component %d", in, c.in))
	}
	if out != c.out {
		errs = append(errs, errors.Wrapf(ErrWidth, "nested networks produce %d outputs, the component %d", out, c.out))
	}
	if len(errs) > 0 {
		return errs
	}
	c.nnets, c.inOffsets, c.outOffsets = nnets, inOffsets, outOffsets
	return nil
}

func (c *ParallelComponent) Type() ComponentType { return TypeParallelComponent }
func (c *ParallelComponent) InputDim() int { return c.in }
func (c *ParallelComponent) OutputDim() int { return c.out }

// NumNestedNnets returns the number of branches.
func (c *ParallelComponent) NumNestedNnets() int { return len(c.nnets) }

// NestedNnet returns branch i.
func (c *ParallelComponent) NestedNnet(i int) *Nnet { return c.nnets[i] }

func (c *ParallelComponent) initData(cfg *tokens) error {
	var filenames, protos []string
	var err error
	for !cfg.eof() {
		tok, _ := cfg.next()
		switch tok {
		case "<NestedNnetFilename>":
			filenames, err = cfg.until("</NestedNnetFilename>")
		case "<NestedNnetProto>":
			protos, err = cfg.until("</NestedNnetProto>")
		default:
			err = errors.Wrapf(ErrConfig, "unknown token %q, typo in config? (NestedNnetFilename|NestedNnetProto)", tok)
		}
		if err != nil {
			return err
		}
	}

	var nnets []*Nnet
	switch {
	case len(filenames) > 0 && len(protos) > 0:
		return errors.Wrap(ErrConfig, "both <NestedNnetFilename> and <NestedNnetProto> given")
	case len(filenames) > 0:
		for _, f := range filenames {
			n, err := ReadFile(f)
			if err != nil {
				return err
			}
			log.Printf("Loaded nested <Nnet> from file : %s", f)
			nnets = append(nnets, n)
		}
	case len(protos) > 0:
		for _, f := range protos {
			n, err := InitFromProto(f)
			if err != nil {
				return err
			}
			nnets = append(nnets, n)
		}
	default:
		return errors.Wrap(ErrConfig, "missing <NestedNnetFilename> or <NestedNnetProto>")
	}
	return c.setNnets(nnets)
}

func (c *ParallelComponent) readData(r *kio.Reader) error {
	if err := r.ExpectToken("<NestedNnetCount>"); err != nil {
		return err
	}
	count, err := r.ReadInt()
	if err != nil {
		return err
	}
	if count < 0 {
		return errors.Wrapf(kio.ErrUnexpectedToken, "negative nested network count %d", count)
	}
	nnets := make([]*Nnet, 0, count)
	for i := 0; i < count; i++ {
		if err = r.ExpectToken("<NestedNnet>"); err != nil {
			return err
		}
		id, err := r.ReadInt()
		if err != nil {
			return err
		}
		if id != i+1 {
			return errors.Wrapf(kio.ErrUnexpectedToken, "expected nested network %d, got %d", i+1, id)
		}
		n, err := read(r)
		if err != nil {
			return errors.WithMessage(err, fmt.Sprintf("nested network %d", id))
		}
		nnets = append(nnets, n)
	}
	if err = r.ExpectToken("</ParallelComponent>"); err != nil {
		return err
	}
	return c.setNnets(nnets)
}

func (c *ParallelComponent) writeData(w *kio.Writer) {
	w.WriteToken("<NestedNnetCount>")
	w.WriteInt(len(c.nnets))
	w.Newline()
	for i, n := range c.nnets {
		w.WriteToken("<NestedNnet>")
		w.WriteInt(i + 1)
		w.Newline()
		n.write(w)
	}
	w.WriteToken("</ParallelComponent>")
	w.Newline()
}

// Propagate implements Component.
func (c *ParallelComponent) Propagate(in *tensor.Dense) (*tensor.Dense, error) {
	rows, _ := dense.Dims(in)
	out := dense.New(rows, c.out)
	for i, n := range c.nnets {
		y, err := n.Propagate(dense.ColRange(in, c.inOffsets[i], n.InputDim()))
		if err != nil {
			return nil, errors.WithMessage(err, fmt.Sprintf("nested network %d", i+1))
		}
		dense.SetColRange(out, c.outOffsets[i], y)
	}
	return out, nil
}

// activity computes the 0/1 frame masks of the branches, one row per branch.
// The caller owns the returned matrix and hands it back with dense.Return.
func (c *ParallelComponent) activity(outDiff *tensor.Dense) *tensor.Dense {
	rows, _ := dense.Dims(outDiff)
	masks := dense.Borrow(len(c.nnets), rows)
	maskRows := dense.Rows(masks)
	diffRows := dense.Rows(outDiff)

	var others []int
	anySoftmax := make([]bool, rows)
	for i, n := range c.nnets {
		if n.Last().Type() != TypeSoftmax {
			others = append(others, i)
			continue
		}
		lo, hi := c.outOffsets[i], c.outOffsets[i]+n.OutputDim()
		for f, r := range diffRows {
			var l1 float32
			for _, v := range r[lo:hi] {
				l1 += math32.Abs(v)
			}
			if l1 >= activityThreshold {
				maskRows[i][f] = 1
				anySoftmax[f] = true
			}
		}
	}
	if len(others) > 1 && len(others) < len(c.nnets) {
		log.Printf("%d nested networks without a softmax output share the frames no softmax branch is active on", len(others))
	}
	for _, i := range others {
		for f, active := range anySoftmax {
			if !active {
				maskRows[i][f] = 1
			}
		}
	}
	return masks
}

// Backpropagate implements Component. The nested networks are updated on the way.
func (c *ParallelComponent) Backpropagate(in, out, outDiff *tensor.Dense) (*tensor.Dense, error) {
	rows, _ := dense.Dims(outDiff)
	inDiff := dense.New(rows, c.in)
	masks := c.activity(outDiff)
	defer dense.Return(masks)
	maskRows := dense.Rows(masks)
	for i, n := range c.nnets {
		diff := dense.ColRange(outDiff, c.outOffsets[i], n.OutputDim())
		dense.MulRows(diff, maskRows[i])
		d, err := n.Backpropagate(diff)
		if err != nil {
			return nil, errors.WithMessage(err, fmt.Sprintf("nested network %d", i+1))
		}
		dense.MulRows(d, maskRows[i])
		dense.SetColRange(inDiff, c.inOffsets[i], d)
	}
	return inDiff, nil
}

// SetTrainOptions implements Updatable.
func (c *ParallelComponent) SetTrainOptions(opts TrainOptions) {
	for _, n := range c.nnets {
		n.SetTrainOptions(opts)
	}
}

// Update implements Updatable. The nested networks update themselves during
// Backpropagate.
func (c *ParallelComponent) Update(in, outDiff *tensor.Dense) error { return nil }

// NumParams implements Updatable.
func (c *ParallelComponent) NumParams() int {
	var retVal int
	for _, n := range c.nnets {
		retVal += n.NumParams()
	}
	return retVal
}

// Params implements Updatable.
func (c *ParallelComponent) Params() []float32 {
	retVal := make([]float32, 0, c.NumParams())
	for _, n := range c.nnets {
		retVal = append(retVal, n.Params()...)
	}
	return retVal
}

func (c *ParallelComponent) nested(f func(*Nnet) string) string {
	var buf strings.Builder
	for i, n := range c.nnets {
		fmt.Fprintf(&buf, "nested_network #%d{\n%s}\n", i+1, f(n))
	}
	return buf.String()
}

func (c *ParallelComponent) Info() string {
	return "\n" + strings.TrimSuffix(c.nested((*Nnet).Info), "\n")
}

func (c *ParallelComponent) InfoGradient() string {
	return "\n" + strings.TrimSuffix(c.nested((*Nnet).InfoGradient), "\n")
}

// InfoPropagate describes the activations inside every branch.
func (c *ParallelComponent) InfoPropagate() string { return c.nested((*Nnet).InfoPropagate) }

// InfoBackPropagate describes the derivatives inside every branch.
func (c *ParallelComponent) InfoBackPropagate() string {
	return c.nested((*Nnet).InfoBackPropagate)
}
