package nnet

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gorgonia/nnet/internal/dense"
	"github.com/gorgonia/nnet/kio"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
	"gorgonia.org/vecf32"
)

// Splice concatenates every frame with its neighbours at the given offsets.
// Neighbours are taken from the same minibatch; offsets falling outside of it
// are clamped to the first or last frame.
type Splice struct {
	in, out int
	offsets []int
}

// NewSplice creates a splice of in-dimensional frames.
func NewSplice(in int, offsets []int) *Splice {
	return &Splice{
		in:      in,
		out:     in * len(offsets),
		offsets: append([]int(nil), offsets...),
	}
}

func (c *Splice) Type() ComponentType { return TypeSplice }
func (c *Splice) InputDim() int { return c.in }
func (c *Splice) OutputDim() int { return c.out }

// Offsets returns the frame offsets.
func (c *Splice) Offsets() []int { return c.offsets }

func (c *Splice) setOffsets(offsets []int) error {
	if c.in*len(offsets) != c.out {
		return errors.Wrapf(ErrWidth, "%d offsets of %d-dimensional frames cannot produce %d outputs", len(offsets), c.in, c.out)
	}
	c.offsets = offsets
	return nil
}

// parseOffsets reads "<BuildVector> 0 1:3 -4:2:0 </BuildVector>" style lists,
// where a:b and a:step:b denote inclusive ranges.
func parseOffsets(toks []string) ([]int, error) {
	var retVal []int
	for _, tok := range toks {
		parts := strings.Split(tok, ":")
		nums := make([]int, len(parts))
		for i, p := range parts {
			v, err := strconv.Atoi(p)
			if err != nil {
				return nil, errors.Wrapf(ErrConfig, "bad offset %q", tok)
			}
			nums[i] = v
		}
		switch len(nums) {
		case 1:
			retVal = append(retVal, nums[0])
		case 2, 3:
			from, step, to := nums[0], 1, nums[len(nums)-1]
			if len(nums) == 3 {
				step = nums[1]
			}
			if step == 0 || (to-from)*step < 0 {
				return nil, errors.Wrapf(ErrConfig, "bad offset range %q", tok)
			}
			for v := from; (step > 0 && v <= to) || (step < 0 && v >= to); v += step {
				retVal = append(retVal, v)
			}
		default:
			return nil, errors.Wrapf(ErrConfig, "bad offset %q", tok)
		}
	}
	return retVal, nil
}

func (c *Splice) initData(cfg *tokens) error {
	for !cfg.eof() {
		tok, _ := cfg.next()
		switch tok {
		case "<BuildVector>":
			toks, err := cfg.until("</BuildVector>")
			if err != nil {
				return err
			}
			offsets, err := parseOffsets(toks)
			if err != nil {
				return err
			}
			if err = c.setOffsets(offsets); err != nil {
				return err
			}
		default:
			return errors.Wrapf(ErrConfig, "unknown token %q, typo in config? (BuildVector)", tok)
		}
	}
	if c.offsets == nil {
		return errors.Wrap(ErrConfig, "missing <BuildVector>")
	}
	return nil
}

func (c *Splice) readData(r *kio.Reader) error {
	offsets, err := r.ReadIntVector()
	if err != nil {
		return err
	}
	return c.setOffsets(offsets)
}

func (c *Splice) writeData(w *kio.Writer) { w.WriteIntVector(c.offsets) }

func clamp(i, lo, hi int) int {
	if i < lo {
		return lo
	}
	if i > hi {
		return hi
	}
	return i
}

// Propagate implements Component.
func (c *Splice) Propagate(in *tensor.Dense) (*tensor.Dense, error) {
	rows, _ := dense.Dims(in)
	out := dense.New(rows, c.out)
	src := dense.Rows(in)
	for f, r := range dense.Rows(out) {
		for k, off := range c.offsets {
			copy(r[k*c.in:(k+1)*c.in], src[clamp(f+off, 0, rows-1)])
		}
	}
	return out, nil
}

// Backpropagate implements Component. Every input frame receives the sum of
// the derivatives of the output slots it was copied into.
func (c *Splice) Backpropagate(in, out, outDiff *tensor.Dense) (*tensor.Dense, error) {
	rows, _ := dense.Dims(outDiff)
	inDiff := dense.New(rows, c.in)
	dst := dense.Rows(inDiff)
	for f, r := range dense.Rows(outDiff) {
		for k, off := range c.offsets {
			vecf32.Add(dst[clamp(f+off, 0, rows-1)], r[k*c.in:(k+1)*c.in])
		}
	}
	return inDiff, nil
}

func (c *Splice) Info() string { return fmt.Sprintf("\n  frame_offsets %v", c.offsets) }

func (c *Splice) InfoGradient() string { return "" }
