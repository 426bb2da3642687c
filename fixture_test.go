package nnet

import (
	"math"
	"testing"

	"github.com/gorgonia/nnet/internal/dense"
	"github.com/gorgonia/nnet/loss"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

var (
	w1 = [][]float32{
		{0.1, -0.2, 0.3, 0, 0.05},
		{-0.1, 0.2, 0.1, -0.3, 0.2},
		{0.2, 0.1, -0.1, 0.1, -0.2},
	}
	b1 = []float32{0.1, 0, -0.1}
	w2 = [][]float32{
		{-0.2, 0.1, 0, 0.3, 0.1},
		{0.3, -0.1, 0.2, 0.1, 0},
		{0, 0.2, -0.3, -0.1, 0.1},
	}
	b2 = []float32{0, 0.2, -0.2}

	// frames drawn around -10, 0 and 10, two of each
	spreadFrames = [][]float32{
		{-9.2396, -7.4065, -13.1945, -8.7807, -9.5492},
		{-11.8494, -10.6132, -9.5155, -4.9394, -6.0834},
		{-1.9090, 4.2920, 1.0259, -0.0892, 1.0108},
		{-0.2899, -0.1756, 2.1068, 1.9927, 2.0042},
		{10.9496, 8.2924, 11.0143, 12.3055, 10.6914},
		{11.4633, 11.0280, 9.5709, 10.4156, 8.8866},
	}
)

// affineBranch builds an affine transform with the given weights, followed by a
// softmax unless plain is set.
func affineBranch(t *testing.T, w [][]float32, b []float32, plain bool) *Nnet {
	a := NewAffineTransform(len(w[0]), len(w))
	require.NoError(t, a.SetLinearity(dense.FromRows(w)))
	require.NoError(t, a.SetBias(b))
	components := []Component{a}
	if !plain {
		components = append(components, NewSoftmax(len(w)))
	}
	n, err := New(components...)
	require.NoError(t, err)
	return n
}

// fixtureInput is a frames×cols ramp.
func fixtureInput(frames, cols int) *tensor.Dense {
	rows := make([][]float32, frames)
	for f := range rows {
		rows[f] = make([]float32, cols)
		for j := range rows[f] {
			rows[f][j] = float32(f+1)*0.1 - float32(j)*0.07
		}
	}
	return dense.FromRows(rows)
}

// spliceParallel is a splice duplicating 5-dimensional frames into a two way
// parallel component of 5→3 softmax branches.
func spliceParallel(t *testing.T) (*Nnet, *ParallelComponent) {
	p, err := NewParallelComponent(affineBranch(t, w1, b1, false), affineBranch(t, w2, b2, false))
	require.NoError(t, err)
	n, err := New(NewSplice(5, []int{0, 0}), p)
	require.NoError(t, err)
	return n, p
}

// refAffine computes x·Wᵀ + b in float64, optionally followed by a softmax.
func refAffine(x []float32, w [][]float32, b []float32, softmax bool) []float64 {
	y := make([]float64, len(w))
	for i, r := range w {
		y[i] = float64(b[i])
		for j, v := range r {
			y[i] += float64(v) * float64(x[j])
		}
	}
	if !softmax {
		return y
	}
	max := y[0]
	for _, v := range y {
		max = math.Max(max, v)
	}
	var sum float64
	for i, v := range y {
		y[i] = math.Exp(v - max)
		sum += y[i]
	}
	for i := range y {
		y[i] /= sum
	}
	return y
}

// refBackprop computes Wᵀ·d in float64.
func refBackprop(w [][]float32, d []float64) []float64 {
	retVal := make([]float64, len(w[0]))
	for i, r := range w {
		for j, v := range r {
			retVal[j] += float64(v) * d[i]
		}
	}
	return retVal
}

func onesF32(n int) []float32 {
	retVal := make([]float32, n)
	for i := range retVal {
		retVal[i] = 1
	}
	return retVal
}

func TestSpliceParallelMultiTask(t *testing.T) {
	const frames = 6
	net, _ := spliceParallel(t)
	in := dense.FromRows(spreadFrames)
	targets := []int{0, 3, 1, 4, 2, 5}
	post := make(loss.Posterior, frames)
	for f, c := range targets {
		post[f] = []loss.Pair{{Index: c, Value: 1}}
	}

	out, err := net.Propagate(in)
	require.NoError(t, err)
	require.Equal(t, []int{frames, 6}, []int(out.Shape()))

	mt := loss.MustMultiTask("multitask,xent,3,1.0,xent,3,1.0")
	diff, err := mt.EvalPosterior(onesF32(frames), out, post)
	require.NoError(t, err)

	inDiff, err := net.Backpropagate(diff)
	require.NoError(t, err)
	require.Equal(t, []int{frames, 5}, []int(inDiff.Shape()))

	inRows, gotRows := dense.Rows(in), dense.Rows(inDiff)
	outRows := dense.Rows(out)
	for f, c := range targets {
		w, b := w1, b1
		if c >= 3 {
			w, b, c = w2, b2, c-3
		}
		y := refAffine(inRows[f], w, b, true)
		// forward output of the branch owning the target
		off := 0
		if targets[f] >= 3 {
			off = 3
		}
		for i, v := range y {
			require.InDelta(t, v, outRows[f][off+i], 1e-5, "frame %d output %d", f, i)
		}
		y[c]--
		want := refBackprop(w, y)
		for j, v := range want {
			require.InDelta(t, v, gotRows[f][j], 1e-5, "frame %d input diff %d", f, j)
		}
	}
}

func TestParallelInactiveBranchUntouched(t *testing.T) {
	const frames = 4
	net, p := spliceParallel(t)
	before := p.NestedNnet(1).Params()
	firstBefore := p.NestedNnet(0).Params()

	out, err := net.Propagate(fixtureInput(frames, 5))
	require.NoError(t, err)
	post := loss.Posterior{{{Index: 0, Value: 1}}, {{Index: 1, Value: 1}}, {{Index: 2, Value: 1}}, {{Index: 0, Value: 1}}}
	mt := loss.MustMultiTask("multitask,xent,3,1,xent,3,1")
	diff, err := mt.EvalPosterior(onesF32(frames), out, post)
	require.NoError(t, err)
	_, err = net.Backpropagate(diff)
	require.NoError(t, err)

	require.Equal(t, before, p.NestedNnet(1).Params())
	require.NotEqual(t, firstBefore, p.NestedNnet(0).Params())
}

func TestParallelMseBranch(t *testing.T) {
	// two softmax branches and one plain affine branch trained with Mse
	wc := [][]float32{
		{0.1, 0.2, 0.3, 0.4},
		{-0.1, 0, 0.1, 0.2},
		{0.3, -0.3, 0.2, -0.2},
		{0, 0.1, 0, 0.1},
		{0.2, 0.2, -0.1, -0.1},
	}
	p, err := NewParallelComponent(
		affineBranch(t, [][]float32{{0.1, 0, 0.2, -0.1}, {0, 0.3, -0.2, 0.1}, {-0.1, 0.1, 0, 0.2}}, []float32{0, 0, 0}, false),
		affineBranch(t, [][]float32{{0.2, -0.1, 0.1, 0}, {-0.2, 0.1, 0, 0.3}}, []float32{0.1, -0.1}, false),
		affineBranch(t, wc, []float32{0, 0, 0, 0, 0}, true),
	)
	require.NoError(t, err)
	require.Equal(t, 12, p.InputDim())
	require.Equal(t, 10, p.OutputDim())
	net, err := New(p)
	require.NoError(t, err)

	const frames = 9
	post := loss.Posterior{
		{{Index: 0, Value: 1}},
		{{Index: 4, Value: 1}},
		{{Index: 5, Value: 0.5}, {Index: 7, Value: 1}},
		{{Index: 2, Value: 1}},
		{{Index: 3, Value: 1}},
		{{Index: 9, Value: 2}},
		{{Index: 1, Value: 1}, {Index: 6, Value: 1}}, // xent and mse targets on one frame
		{{Index: 8, Value: -1}},
		{{Index: 3, Value: 1}},
	}
	mseOnly := map[int]bool{2: true, 5: true, 7: true}

	in := fixtureInput(frames, 12)
	out, err := net.Propagate(in)
	require.NoError(t, err)
	mt := loss.MustMultiTask("multitask,xent,3,1,xent,2,1,mse,5,0.5")
	diff, err := mt.EvalPosterior(onesF32(frames), out, post)
	require.NoError(t, err)
	inDiff, err := net.Backpropagate(diff)
	require.NoError(t, err)

	// the affine-only branch sees the derivative only on frames no softmax
	// branch has a target on
	diffRows := dense.Rows(diff)
	for f, r := range dense.Rows(inDiff) {
		mse := r[8:12]
		nonZero := false
		for _, v := range mse {
			if v != 0 {
				nonZero = true
			}
		}
		require.Equal(t, mseOnly[f], nonZero, "frame %d", f)
		if mseOnly[f] {
			want := refBackprop(wc, toF64(diffRows[f][5:10]))
			for j, v := range want {
				require.InDelta(t, v, mse[j], 1e-5, "frame %d input diff %d", f, j)
			}
			for _, v := range r[:8] {
				require.Zero(t, v, "frame %d", f)
			}
		}
	}
	require.Contains(t, mt.Report(), "(Mse)")
}

func toF64(a []float32) []float64 {
	retVal := make([]float64, len(a))
	for i, v := range a {
		retVal[i] = float64(v)
	}
	return retVal
}
