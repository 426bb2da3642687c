package loss

import (
	"fmt"
	"strings"

	"github.com/chewxy/math32"
	"github.com/gorgonia/nnet/internal/dense"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
	"gorgonia.org/vecf32"
)

// Mse is the weighted mean squared error.
type Mse struct {
	frames, loss float64
	cols         int

	progress *Progress
}

// NewMse creates a mean squared error loss.
func NewMse() *Mse {
	return &Mse{progress: NewProgress(DefaultProgressWindow, "Mse")}
}

// SetTargetInterp does nothing; Mse targets are never interpolated.
func (l *Mse) SetTargetInterp(mode InterpMode, weight float32) {}

// Eval implements Function.
func (l *Mse) Eval(frameWeights []float32, netOut, target *tensor.Dense) (*tensor.Dense, error) {
	frames, err := checkInputs(frameWeights, netOut, target)
	if err != nil {
		return nil, errors.WithMessage(err, "Mse")
	}
	diff := dense.Clone(netOut)
	dense.AddScaled(diff, -1, target)

	var mse float64
	sq := make([]float32, 0)
	for i, r := range dense.Rows(diff) {
		sq = append(sq[:0], r...)
		vecf32.Mul(sq, r)
		mse += float64(frameWeights[i]) * dense.SumF32(sq)
	}
	mse *= 0.5
	if !dense.IsFinite(mse) {
		return nil, errors.Wrapf(ErrNonFinite, "Mse: loss %v", mse)
	}
	dense.MulRows(diff, frameWeights)

	_, l.cols = dense.Dims(netOut)
	l.loss += mse
	l.frames += frames
	l.progress.Add(frames, mse)
	return diff, nil
}

// EvalPosterior implements Function.
func (l *Mse) EvalPosterior(frameWeights []float32, netOut *tensor.Dense, target Posterior) (*tensor.Dense, error) {
	tgt, err := posteriorTarget(netOut, target)
	if err != nil {
		return nil, errors.WithMessage(err, "Mse")
	}
	return l.Eval(frameWeights, netOut, tgt)
}

// AvgLoss is the accumulated loss per frame.
func (l *Mse) AvgLoss() float64 {
	if l.frames == 0 {
		return 0
	}
	return l.loss / l.frames
}

// RMS is the root mean square error per output.
func (l *Mse) RMS() float64 {
	if l.cols == 0 {
		return 0
	}
	return float64(math32.Sqrt(float32(safeDiv(l.loss, l.frames) / float64(l.cols))))
}

// History implements Historian.
func (l *Mse) History() []float32 { return l.progress.History() }

// Progress returns the progress accumulator.
func (l *Mse) Progress() *Progress { return l.progress }

// Report implements Function.
func (l *Mse) Report() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "AvgLoss: %s (Mse), [RMS %s]\n", formatFloat(l.AvgLoss()), formatFloat(l.RMS()))
	buf.WriteString(formatProgress(l.History()))
	return buf.String()
}
