package loss

import (
	"fmt"
	"log"
	"strings"

	"github.com/chewxy/math32"
	"github.com/gorgonia/nnet/internal/dense"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
	"gorgonia.org/vecf32"
)

// MCEConfig configures XentRegMCE.
type MCEConfig struct {
	UseXent bool    // add the cross entropy gradient to the MCE gradient
	EtaMCE  float32 // weight of the MCE term
	Verbose int     // > 0 logs every intermediate matrix
}

// DefaultMCEConfig returns a config with only the MCE term, weighted 1.
func DefaultMCEConfig() MCEConfig {
	return MCEConfig{EtaMCE: 1}
}

// IsValid reports whether the config can be used.
func (c MCEConfig) IsValid() bool {
	return c.EtaMCE >= 0 && !math32.IsNaN(c.EtaMCE) && !math32.IsInf(c.EtaMCE, 0)
}

// XentRegMCE is cross entropy regularised by minimum conditional entropy: the
// entropy of the network output is added to the objective, which pushes the
// posteriors towards confident decisions.
type XentRegMCE struct {
	MCEConfig
	Logger *log.Logger

	frames, correct float64
	loss, entropy   float64

	progress *Progress
}

// NewXentRegMCE creates the loss. It panics if conf is invalid.
func NewXentRegMCE(conf MCEConfig) *XentRegMCE {
	if !conf.IsValid() {
		panic(fmt.Sprintf("invalid MCE config %+v", conf))
	}
	name := "MCE"
	if conf.UseXent {
		name = "XentRegMCE - Ent"
	}
	return &XentRegMCE{
		MCEConfig: conf,
		progress:  NewProgress(DefaultProgressWindow, name),
	}
}

// SetTargetInterp does nothing; targets are never interpolated.
func (l *XentRegMCE) SetTargetInterp(mode InterpMode, weight float32) {}

func (l *XentRegMCE) logf(format string, args ...interface{}) {
	if l.Verbose <= 0 {
		return
	}
	if l.Logger != nil {
		l.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// Eval implements Function.
func (l *XentRegMCE) Eval(frameWeights []float32, netOut, target *tensor.Dense) (*tensor.Dense, error) {
	frames, err := checkInputs(frameWeights, netOut, target)
	if err != nil {
		return nil, errors.WithMessage(err, "XentRegMCE")
	}
	l.logf("use_xent = %v, eta_mce = %v\ny: %v\nt: %v", l.UseXent, l.EtaMCE, netOut, target)

	_, cols := dense.Dims(netOut)
	logY := dense.Clone(netOut)
	dense.Apply(logY, func(v float32) float32 { return math32.Log(v + epsilon) })

	// yLogY holds y·log(y); the regulariser gradient is η·y⊙(-log y - H) with
	// H the row entropy.
	yLogY := dense.Clone(logY)
	reg := dense.New(dense.Dims(netOut))
	yRows := dense.Rows(netOut)
	regRows := dense.Rows(reg)
	logRows := dense.Rows(logY)
	for i, r := range dense.Rows(yLogY) {
		vecf32.Mul(r, yRows[i])
		h := -vecf32.Sum(r)
		lr := logRows[i]
		for j := 0; j < cols; j++ {
			regRows[i][j] = l.EtaMCE * yRows[i][j] * (-lr[j] - h)
		}
	}
	l.logf("eta*y(I - H): %v", reg)

	var diff *tensor.Dense
	if l.UseXent {
		diff = dense.Clone(netOut)
		dense.AddScaled(diff, -1, target)
		dense.MulRows(diff, frameWeights)
		dense.AddScaled(diff, 1, reg)
	} else {
		diff = reg
	}
	l.logf("diff: %v", diff)

	loss := -float64(l.EtaMCE) * dense.Sum(yLogY)
	if l.UseXent {
		loss -= weightedTLogY(frameWeights, target, netOut)
	}
	entropy := -weightedTLogY(frameWeights, target, target)
	if !dense.IsFinite(loss) || !dense.IsFinite(entropy) {
		return nil, errors.Wrapf(ErrNonFinite, "XentRegMCE: loss %v, entropy %v", loss, entropy)
	}

	l.loss += loss
	l.entropy += entropy
	l.correct += countCorrect(netOut, target, frameWeights)
	l.frames += frames
	if l.UseXent {
		l.progress.Add(frames, loss-entropy)
	} else {
		l.progress.Add(frames, loss)
	}
	return diff, nil
}

// EvalPosterior implements Function.
func (l *XentRegMCE) EvalPosterior(frameWeights []float32, netOut *tensor.Dense, target Posterior) (*tensor.Dense, error) {
	tgt, err := posteriorTarget(netOut, target)
	if err != nil {
		return nil, errors.WithMessage(err, "XentRegMCE")
	}
	return l.Eval(frameWeights, netOut, tgt)
}

// AvgLoss is the regularised cross entropy minus the target entropy per frame,
// or only the MCE term per frame when UseXent is off.
func (l *XentRegMCE) AvgLoss() float64 {
	if l.frames == 0 {
		return 0
	}
	if l.UseXent {
		return (l.loss - l.entropy) / l.frames
	}
	return l.loss / l.frames
}

// History implements Historian.
func (l *XentRegMCE) History() []float32 { return l.progress.History() }

// Report implements Function.
func (l *XentRegMCE) Report() string {
	var buf strings.Builder
	name := "MCE"
	if l.UseXent {
		name = "XentRegMCE - Ent"
	}
	fmt.Fprintf(&buf, "AvgLoss: %s (%s), [AvgXent: %s, AvgTargetEnt: %s]\n",
		formatFloat(l.AvgLoss()), name, formatFloat(safeDiv(l.loss, l.frames)), formatFloat(safeDiv(l.entropy, l.frames)))
	if h := l.History(); len(h) > 0 {
		buf.WriteString(formatProgress(h))
	}
	fmt.Fprintf(&buf, "\nFRAME_ACCURACY >> %s%% <<", formatFloat(100*safeDiv(l.correct, l.frames)))
	return buf.String()
}
