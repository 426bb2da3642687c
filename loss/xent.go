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

// Xent is the frame level cross entropy between a softmax output and a target
// distribution.
type Xent struct {
	frames, correct float64
	loss, entropy   float64

	progress     *Progress
	interp       InterpMode
	interpWeight float32
}

// NewXent creates a cross entropy loss with no target interpolation.
func NewXent() *Xent {
	return &Xent{
		progress:     NewProgress(DefaultProgressWindow, "Xent"),
		interpWeight: 1,
	}
}

// SetTargetInterp sets the target interpolation. InterpNone resets the weight
// to 1.
func (l *Xent) SetTargetInterp(mode InterpMode, weight float32) {
	l.interp = mode
	if mode == InterpNone {
		weight = 1
	}
	l.interpWeight = weight
}

// interpolate returns the targets after blending them with netOut.
func (l *Xent) interpolate(netOut, target *tensor.Dense) *tensor.Dense {
	if l.interp == InterpNone || l.interpWeight <= 0 || l.interpWeight >= 1 {
		return target
	}
	retVal := dense.Clone(target)
	dense.Scale(retVal, l.interpWeight)
	switch l.interp {
	case InterpSoft:
		dense.AddScaled(retVal, 1-l.interpWeight, netOut)
	case InterpHard:
		rows := dense.Rows(retVal)
		for i, j := range dense.RowArgmax(netOut) {
			rows[i][j] += 1 - l.interpWeight
		}
	}
	return retVal
}

// Eval implements Function.
func (l *Xent) Eval(frameWeights []float32, netOut, target *tensor.Dense) (*tensor.Dense, error) {
	frames, err := checkInputs(frameWeights, netOut, target)
	if err != nil {
		return nil, errors.WithMessage(err, "Xent")
	}
	correct := countCorrect(netOut, target, frameWeights)
	tgt := l.interpolate(netOut, target)

	diff := dense.Clone(netOut)
	dense.AddScaled(diff, -1, tgt)
	dense.MulRows(diff, frameWeights)

	xent := -weightedTLogY(frameWeights, tgt, netOut)
	entropy := -weightedTLogY(frameWeights, target, target)
	if !dense.IsFinite(xent) || !dense.IsFinite(entropy) {
		return nil, errors.Wrapf(ErrNonFinite, "Xent: cross entropy %v, entropy %v", xent, entropy)
	}

	l.loss += xent
	l.entropy += entropy
	l.correct += correct
	l.frames += frames

	l.progress.Add(frames, xent-entropy)
	return diff, nil
}

// EvalPosterior implements Function.
func (l *Xent) EvalPosterior(frameWeights []float32, netOut *tensor.Dense, target Posterior) (*tensor.Dense, error) {
	tgt, err := posteriorTarget(netOut, target)
	if err != nil {
		return nil, errors.WithMessage(err, "Xent")
	}
	return l.Eval(frameWeights, netOut, tgt)
}

// AvgLoss is the cross entropy minus the target entropy, per frame.
func (l *Xent) AvgLoss() float64 {
	if l.frames == 0 {
		return 0
	}
	return (l.loss - l.entropy) / l.frames
}

// Accuracy is the weighted fraction of frames classified correctly.
func (l *Xent) Accuracy() float64 { return safeDiv(l.correct, l.frames) }

// History implements Historian.
func (l *Xent) History() []float32 { return l.progress.History() }

// Progress returns the progress accumulator, mainly to redirect its logger.
func (l *Xent) Progress() *Progress { return l.progress }

// Report implements Function.
func (l *Xent) Report() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "AvgLoss: %s (Xent), [AvgXent: %s, AvgTargetEnt: %s]\n",
		formatFloat(l.AvgLoss()), formatFloat(safeDiv(l.loss, l.frames)), formatFloat(safeDiv(l.entropy, l.frames)))
	if h := l.History(); len(h) > 0 {
		buf.WriteString(formatProgress(h))
	}
	fmt.Fprintf(&buf, "FRAME_ACCURACY >> %s%% <<\n", formatFloat(100*l.Accuracy()))
	return buf.String()
}

// weightedTLogY returns Σ w·t·log(y+ε).
func weightedTLogY(frameWeights []float32, t, y *tensor.Dense) float64 {
	yRows := dense.Rows(y)
	if len(yRows) == 0 {
		return 0
	}
	tmp := make([]float32, len(yRows[0]))
	var retVal float64
	for i, tr := range dense.Rows(t) {
		for j, v := range yRows[i] {
			tmp[j] = math32.Log(v + epsilon)
		}
		vecf32.Mul(tmp, tr)
		retVal += float64(frameWeights[i]) * dense.SumF32(tmp)
	}
	return retVal
}
