package loss

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/gorgonia/nnet/internal/dense"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

const multiTaskHeader = "multitask"

// MultiTask splits the network output into consecutive column ranges, one per
// task, and evaluates each with its own loss. A task only sees the frames whose
// sparse target has an entry inside its columns.
type MultiTask struct {
	losses  []Function
	dims    []int
	offsets []int // len(dims)+1, offsets[0] == 0
	weights []float32

	interp       InterpMode
	interpWeight float32
}

// NewMultiTask parses a specification of the form
//
//	multitask,<kind>,<width>,<weight>,<kind>,<width>,<weight>...
//
// where commas and colons are interchangeable and kind is "xent" or "mse".
func NewMultiTask(spec string) (*MultiTask, error) {
	retVal := &MultiTask{interpWeight: 1}
	if err := retVal.Configure(spec); err != nil {
		return nil, err
	}
	return retVal, nil
}

// MustMultiTask is NewMultiTask for literal specifications. It panics on error.
func MustMultiTask(spec string) *MultiTask {
	retVal, err := NewMultiTask(spec)
	if err != nil {
		panic(fmt.Sprintf("%+v", err))
	}
	return retVal
}

// Configure replaces the tasks with the ones described by spec. On error the
// MultiTask is left unchanged.
func (m *MultiTask) Configure(spec string) error {
	v := strings.FieldsFunc(spec, func(r rune) bool { return r == ',' || r == ':' })
	if len(v) < 4 || (len(v)-1)%3 != 0 {
		return errors.Wrapf(ErrConfig, "%q: expected a header followed by triplets of <kind>,<width>,<weight>", spec)
	}
	if v[0] != multiTaskHeader {
		return errors.Wrapf(ErrConfig, "%q: expected header %q, got %q", spec, multiTaskHeader, v[0])
	}

	var (
		losses  []Function
		dims    []int
		weights []float32
	)
	for i := 1; i < len(v); i += 3 {
		switch v[i] {
		case "xent":
			losses = append(losses, NewXent())
		case "mse":
			losses = append(losses, NewMse())
		default:
			return errors.Wrapf(ErrConfig, "unknown objective function code %q", v[i])
		}
		dim, err := strconv.Atoi(v[i+1])
		if err != nil || dim <= 0 {
			return errors.Wrapf(ErrConfig, "cannot convert width %q to a positive integer", v[i+1])
		}
		dims = append(dims, dim)
		weight, err := strconv.ParseFloat(v[i+2], 32)
		if err != nil {
			return errors.Wrapf(ErrConfig, "cannot convert weight %q to a real number", v[i+2])
		}
		if !(weight >= 0) || math.IsInf(weight, 0) {
			return errors.Wrapf(ErrConfig, "weight %v of task %d is not a finite non-negative number", weight, len(weights))
		}
		weights = append(weights, float32(weight))
	}

	offsets := make([]int, len(dims)+1)
	for i, d := range dims {
		offsets[i+1] = offsets[i] + d
	}
	m.losses, m.dims, m.offsets, m.weights = losses, dims, offsets, weights
	return nil
}

// NumTasks returns the number of tasks.
func (m *MultiTask) NumTasks() int { return len(m.losses) }

// Task returns the loss of task i.
func (m *MultiTask) Task(i int) Function { return m.losses[i] }

// Offsets returns the first column of every task followed by the total width.
func (m *MultiTask) Offsets() []int { return m.offsets }

// Weights returns the task weights.
func (m *MultiTask) Weights() []float32 { return m.weights }

// Width is the total number of columns covered by the tasks.
func (m *MultiTask) Width() int { return m.offsets[len(m.offsets)-1] }

// SetTargetInterp sets the target interpolation of the first task. The other
// tasks are always evaluated without interpolation.
func (m *MultiTask) SetTargetInterp(mode InterpMode, weight float32) {
	m.interp = mode
	m.interpWeight = weight
}

// Eval is not supported: task membership of a frame is only known from sparse
// targets.
func (m *MultiTask) Eval(frameWeights []float32, netOut, target *tensor.Dense) (*tensor.Dense, error) {
	return nil, errors.Wrap(ErrUnsupported, "MultiTask requires sparse targets, use EvalPosterior")
}

// EvalPosterior implements Function.
func (m *MultiTask) EvalPosterior(frameWeights []float32, netOut *tensor.Dense, target Posterior) (*tensor.Dense, error) {
	if len(m.losses) == 0 {
		return nil, errors.Wrap(ErrConfig, "MultiTask is not configured")
	}
	rows, cols := dense.Dims(netOut)
	if rows == 0 {
		return nil, errors.Wrap(ErrShape, "MultiTask: no frames")
	}
	if len(target) != rows {
		return nil, errors.Wrapf(ErrShape, "MultiTask: %d posterior frames for %d frames", len(target), rows)
	}
	if cols != m.Width() {
		return nil, errors.Wrapf(ErrShape, "MultiTask: network output has %d columns, tasks cover %d", cols, m.Width())
	}
	if len(frameWeights) != rows {
		return nil, errors.Wrapf(ErrShape, "MultiTask: %d frame weights for %d frames", len(frameWeights), rows)
	}
	tgt, err := target.ToMatrix(cols)
	if err != nil {
		return nil, errors.WithMessage(err, "MultiTask")
	}

	diff := dense.New(rows, cols)
	for t, l := range m.losses {
		beg, end := m.offsets[t], m.offsets[t+1]
		weights := make([]float32, rows)
		copy(weights, frameWeights)
		for f := range weights {
			if !target.HasTargetIn(f, beg, end) {
				weights[f] = 0
			}
		}

		if t == 0 {
			l.SetTargetInterp(m.interp, m.interpWeight)
		} else {
			l.SetTargetInterp(InterpNone, 1)
		}
		d, err := l.Eval(weights, dense.ColRange(netOut, beg, m.dims[t]), dense.ColRange(tgt, beg, m.dims[t]))
		if err != nil {
			return nil, errors.WithMessage(err, fmt.Sprintf("MultiTask loss %d", t+1))
		}
		dense.Scale(d, m.weights[t])
		dense.SetColRange(diff, beg, d)
	}
	return diff, nil
}

// AvgLoss is the weighted sum of the task losses.
func (m *MultiTask) AvgLoss() float64 {
	var retVal float64
	for i, l := range m.losses {
		retVal += float64(m.weights[i]) * l.AvgLoss()
	}
	return retVal
}

// Report implements Function.
func (m *MultiTask) Report() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "MultiTaskLoss, with %d parallel loss functions.\n", len(m.losses))
	values := make([]float64, len(m.losses))
	for i, l := range m.losses {
		fmt.Fprintf(&buf, "Loss %d, %s\n", i+1, l.Report())
		values[i] = l.AvgLoss()
	}
	weights := make([]float64, len(m.weights))
	for i, w := range m.weights {
		weights[i] = float64(w)
	}
	fmt.Fprintf(&buf, "Loss (OVERALL), AvgLoss: %s (MultiTaskLoss), weights %s, values %s\n",
		formatFloat(m.AvgLoss()), formatVector(weights), formatVector(values))
	return buf.String()
}

func formatVector(a []float64) string {
	var buf strings.Builder
	buf.WriteString("[ ")
	for _, v := range a {
		buf.WriteString(formatFloat(v))
		buf.WriteByte(' ')
	}
	buf.WriteByte(']')
	return buf.String()
}
