package nnet

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// maebe chains matrix producing calls. After the first failure every call is a
// no-op and err holds the failure.
type maebe struct {
	err error
}

func (m *maebe) do(f func() (*tensor.Dense, error)) (retVal *tensor.Dense) {
	if m.err != nil {
		return nil
	}
	if retVal, m.err = f(); m.err != nil {
		m.err = errors.WithStack(m.err)
	}
	return
}

func (m *maebe) propagate(c Component, in *tensor.Dense) *tensor.Dense {
	if m.err != nil {
		return nil
	}
	if err := checkCols(in, c.InputDim()); err != nil {
		m.err = errors.WithMessage(err, c.Type().String())
		return nil
	}
	return m.do(func() (*tensor.Dense, error) { return c.Propagate(in) })
}

func (m *maebe) backpropagate(c Component, in, out, outDiff *tensor.Dense) *tensor.Dense {
	if m.err != nil {
		return nil
	}
	if err := checkCols(outDiff, c.OutputDim()); err != nil {
		m.err = errors.WithMessage(err, c.Type().String())
		return nil
	}
	return m.do(func() (*tensor.Dense, error) { return c.Backpropagate(in, out, outDiff) })
}

func (m *maebe) update(c Component, in, outDiff *tensor.Dense) {
	if m.err != nil {
		return
	}
	if u, ok := c.(Updatable); ok {
		if m.err = u.Update(in, outDiff); m.err != nil {
			m.err = errors.WithMessage(m.err, c.Type().String())
		}
	}
}
