// Package loss implements the objective functions used to train multi-output
// acoustic models: frame level cross entropy, mean squared error, cross entropy
// regularised by minimum conditional entropy, and MultiTask, which splits one
// output layer into disjoint column ranges each trained with its own loss.
//
// Every Eval call checks its inputs and accumulates running statistics that
// Report and AvgLoss read back. Errors returned by Eval indicate programming or
// configuration defects; callers are expected to abort on them.
package loss

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

var (
	// ErrShape is the cause of errors raised when matrices, frame weights or
	// targets do not agree in size.
	ErrShape = errors.New("shape mismatch")
	// ErrNonFinite is the cause of errors raised when inputs or results contain
	// NaN or Inf.
	ErrNonFinite = errors.New("non-finite value")
	// ErrNegativeWeight is the cause of errors raised when a frame weight is
	// negative.
	ErrNegativeWeight = errors.New("negative frame weights")
	// ErrConfig is the cause of errors raised when a loss specification cannot be
	// parsed.
	ErrConfig = errors.New("bad loss configuration")
	// ErrUnsupported is returned by operations a loss does not provide.
	ErrUnsupported = errors.New("unsupported operation")
)

// epsilon keeps log() away from zero.
const epsilon = 1e-20

// Function is an objective function.
type Function interface {
	// Eval computes the gradient w.r.t. netOut given a dense target matrix and
	// accumulates the loss.
	Eval(frameWeights []float32, netOut, target *tensor.Dense) (*tensor.Dense, error)
	// EvalPosterior is Eval with sparse targets.
	EvalPosterior(frameWeights []float32, netOut *tensor.Dense, target Posterior) (*tensor.Dense, error)
	// Report renders the accumulated statistics.
	Report() string
	// AvgLoss returns the accumulated loss per frame, or 0 before the first Eval.
	AvgLoss() float64
	// SetTargetInterp sets how targets are blended with the network output.
	SetTargetInterp(mode InterpMode, weight float32)
}

// Historian is implemented by the losses that keep a windowed progress history.
type Historian interface {
	History() []float32
}

// InterpMode is the way targets are interpolated with the network's own output.
type InterpMode byte

const (
	// InterpNone uses the targets as given.
	InterpNone InterpMode = iota
	// InterpSoft uses w·t + (1-w)·y.
	InterpSoft
	// InterpHard uses w·t + (1-w)·onehot(argmax y).
	InterpHard
)

func (m InterpMode) String() string {
	switch m {
	case InterpNone:
		return "none"
	case InterpSoft:
		return "soft"
	case InterpHard:
		return "hard"
	}
	return "UNKNOWN INTERPOLATION"
}

// ParseInterpMode parses "none", "soft" or "hard".
func ParseInterpMode(s string) (InterpMode, error) {
	switch s {
	case "none":
		return InterpNone, nil
	case "soft":
		return InterpSoft, nil
	case "hard":
		return InterpHard, nil
	}
	return InterpNone, errors.Wrapf(ErrConfig, "unknown target interpolation mode %q", s)
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}
