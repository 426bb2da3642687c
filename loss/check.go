package loss

import (
	"strconv"

	"github.com/gorgonia/nnet/internal/dense"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// checkInputs validates the arguments of a dense Eval and returns the weighted
// frame count.
func checkInputs(frameWeights []float32, netOut, target *tensor.Dense) (float64, error) {
	if !dense.SameShape(netOut, target) {
		return 0, errors.Wrapf(ErrShape, "network output is %v, target is %v", netOut.Shape(), target.Shape())
	}
	rows, _ := dense.Dims(netOut)
	if rows == 0 {
		return 0, errors.Wrap(ErrShape, "no frames")
	}
	if len(frameWeights) != rows {
		return 0, errors.Wrapf(ErrShape, "%d frame weights for %d frames", len(frameWeights), rows)
	}
	for f, w := range frameWeights {
		if w < 0 {
			return 0, errors.Wrapf(ErrNegativeWeight, "frame %d has weight %v", f, w)
		}
	}
	frames := dense.SumF32(frameWeights)
	switch {
	case !dense.IsFinite(frames):
		return 0, errors.Wrap(ErrNonFinite, "frame weights")
	case !dense.IsFinite(dense.Sum(netOut)):
		return 0, errors.Wrap(ErrNonFinite, "network output")
	case !dense.IsFinite(dense.Sum(target)):
		return 0, errors.Wrap(ErrNonFinite, "target")
	}
	return frames, nil
}

// countCorrect is the weighted number of frames where the argmax of a and b agree.
func countCorrect(a, b *tensor.Dense, frameWeights []float32) float64 {
	am, bm := dense.RowArgmax(a), dense.RowArgmax(b)
	var correct float64
	for i := range am {
		if am[i] == bm[i] {
			correct += float64(frameWeights[i])
		}
	}
	return correct
}

// posteriorTarget expands a sparse target for a network output.
func posteriorTarget(netOut *tensor.Dense, target Posterior) (*tensor.Dense, error) {
	rows, cols := dense.Dims(netOut)
	if rows == 0 {
		return nil, errors.Wrap(ErrShape, "no frames")
	}
	if len(target) != rows {
		return nil, errors.Wrapf(ErrShape, "%d posterior frames for %d frames", len(target), rows)
	}
	return target.ToMatrix(cols)
}

func formatProgress(history []float32) string {
	var buf []byte
	buf = append(buf, "progress: ["...)
	for _, v := range history {
		buf = append(buf, formatFloat(float64(v))...)
		buf = append(buf, ' ')
	}
	buf = append(buf, "]\n"...)
	return string(buf)
}

// formatFloat prints v with six significant digits.
func formatFloat(v float64) string { return strconv.FormatFloat(v, 'g', 6, 64) }
