package nnet

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/gorgonia/nnet/internal/dense"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var approx = cmpopts.EquateApprox(0, 1e-5)

func TestInitComponent(t *testing.T) {
	tests := []struct {
		line  string
		typ   ComponentType
		in    int
		out   int
		cause error
	}{
		{"<AffineTransform> <InputDim> 5 <OutputDim> 3 <ParamStddev> 0.1 <BiasMean> 0 <BiasRange> 0", TypeAffineTransform, 5, 3, nil},
		{"<AffineTransform> <InputDim> 5 <OutputDim> 3 <LearnRateCoef> 0.5 <BiasLearnRateCoef> 0", TypeAffineTransform, 5, 3, nil},
		{"<Softmax> <InputDim> 3 <OutputDim> 3", TypeSoftmax, 3, 3, nil},
		{"<Sigmoid> <OutputDim> 4 <InputDim> 4", TypeSigmoid, 4, 4, nil},
		{"<Splice> <InputDim> 2 <OutputDim> 6 <BuildVector> -1:1 </BuildVector>", TypeSplice, 2, 6, nil},
		{"<Splice> <InputDim> 2 <OutputDim> 6 <BuildVector> -2:2:2 </BuildVector>", TypeSplice, 2, 6, nil},

		{"<Softmax> <InputDim> 3 <OutputDim> 4", 0, 0, 0, ErrWidth},
		{"<Splice> <InputDim> 2 <OutputDim> 6 <BuildVector> 0 1 </BuildVector>", 0, 0, 0, ErrWidth},
		{"<Splice> <InputDim> 2 <OutputDim> 6", 0, 0, 0, ErrConfig},
		{"<Splice> <InputDim> 2 <OutputDim> 6 <BuildVector> 1:x </BuildVector>", 0, 0, 0, ErrConfig},
		{"<Splice> <InputDim> 2 <OutputDim> 6 <BuildVector> 1 0 -1", 0, 0, 0, ErrConfig},
		{"<Convolutional> <InputDim> 2 <OutputDim> 2", 0, 0, 0, ErrConfig},
		{"<AffineTransform> <InputDim> 2 <OutputDim> 2 <Bogus> 1", 0, 0, 0, ErrConfig},
		{"<AffineTransform> <InputDim> 2 <OutputDim> 2 <ParamStddev>", 0, 0, 0, ErrConfig},
		{"<AffineTransform> <InputDim> 2", 0, 0, 0, ErrConfig},
		{"<AffineTransform> <InputDim> two <OutputDim> 2", 0, 0, 0, ErrConfig},
		{"", 0, 0, 0, ErrConfig},
	}
	for _, tc := range tests {
		t.Run(tc.line, func(t *testing.T) {
			c, err := InitComponent(tc.line)
			if tc.cause != nil {
				require.Error(t, err)
				assert.Equal(t, tc.cause, errors.Cause(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.typ, c.Type())
			assert.Equal(t, tc.in, c.InputDim())
			assert.Equal(t, tc.out, c.OutputDim())
		})
	}
}

func TestAffineInit(t *testing.T) {
	c, err := InitComponent("<AffineTransform> <InputDim> 4 <OutputDim> 2 <ParamStddev> 0 <BiasMean> 0.5 <BiasRange> 0 <LearnRateCoef> 0.25")
	require.NoError(t, err)
	a := c.(*AffineTransform)
	assert.Equal(t, make([]float32, 8), dense.Data(a.Linearity()))
	assert.Equal(t, []float32{0.5, 0.5}, a.Bias())
	assert.Equal(t, float32(0.25), a.LearnRateCoef)
	assert.Equal(t, float32(1), a.BiasLearnRateCoef)

	c, err = InitComponent("<AffineTransform> <InputDim> 40 <OutputDim> 20")
	require.NoError(t, err)
	a = c.(*AffineTransform)
	for _, v := range a.Bias() {
		assert.True(t, v >= -3 && v <= -1, "bias %v outside [-3, -1]", v)
	}
	var nonZero int
	for _, v := range dense.Data(a.Linearity()) {
		if v != 0 {
			nonZero++
		}
	}
	assert.NotZero(t, nonZero)
}

func TestAffine(t *testing.T) {
	a := NewAffineTransform(3, 2)
	require.NoError(t, a.SetLinearity(dense.FromRows([][]float32{{1, 0, -1}, {0.5, 2, 0}})))
	require.NoError(t, a.SetBias([]float32{1, -1}))
	assert.Equal(t, ErrWidth, errors.Cause(a.SetBias([]float32{1})))
	assert.Equal(t, ErrWidth, errors.Cause(a.SetLinearity(dense.New(3, 2))))

	in := dense.FromRows([][]float32{{1, 2, 3}, {0, 1, 0}})
	out, err := a.Propagate(in)
	require.NoError(t, err)
	if diff := cmp.Diff([][]float32{{-1, 3.5}, {1, 1}}, dense.Rows(out), approx); diff != "" {
		t.Errorf("Propagate (-want +got):\n%s", diff)
	}

	outDiff := dense.FromRows([][]float32{{1, 0}, {0, 1}})
	inDiff, err := a.Backpropagate(in, out, outDiff)
	require.NoError(t, err)
	if diff := cmp.Diff([][]float32{{1, 0, -1}, {0.5, 2, 0}}, dense.Rows(inDiff), approx); diff != "" {
		t.Errorf("Backpropagate (-want +got):\n%s", diff)
	}

	opts := DefaultTrainOptions()
	opts.LearnRate = 0.5
	a.SetTrainOptions(opts)
	require.NoError(t, a.Update(in, outDiff))
	// gW = outDiffᵀ·in, gB = column sums of outDiff
	wantW := [][]float32{{1 - 0.5*1, 0 - 0.5*2, -1 - 0.5*3}, {0.5, 2 - 0.5, 0}}
	if diff := cmp.Diff(wantW, dense.Rows(a.Linearity()), approx); diff != "" {
		t.Errorf("updated linearity (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float32{0.5, -1.5}, a.Bias(), approx); diff != "" {
		t.Errorf("updated bias (-want +got):\n%s", diff)
	}
	assert.Equal(t, 8, a.NumParams())
	assert.Len(t, a.Params(), 8)
	assert.Contains(t, a.InfoGradient(), "linearity_grad ( min 0, max 3")

	assert.Panics(t, func() { a.SetTrainOptions(TrainOptions{LearnRate: -1, BatchSize: 1}) })
}

func TestSoftmaxSigmoid(t *testing.T) {
	in := dense.FromRows([][]float32{{1, 2, 3}, {1000, 1000, 1000}})
	out, err := NewSoftmax(3).Propagate(in)
	require.NoError(t, err)
	for _, s := range dense.RowSums(out) {
		assert.InDelta(t, 1, s, 1e-6)
	}
	assert.InDelta(t, 1.0/3, dense.Rows(out)[1][0], 1e-6)
	d, err := NewSoftmax(3).Backpropagate(in, out, in)
	require.NoError(t, err)
	assert.Equal(t, dense.Data(in), dense.Data(d))

	sig := NewSigmoid(2)
	out, err = sig.Propagate(dense.FromRows([][]float32{{0, 0}}))
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.5}, dense.Data(out))
	d, err = sig.Backpropagate(nil, out, dense.FromRows([][]float32{{1, 2}}))
	require.NoError(t, err)
	assert.Equal(t, []float32{0.25, 0.5}, dense.Data(d))
}

func TestSplice(t *testing.T) {
	s := NewSplice(2, []int{-1, 0, 1})
	assert.Equal(t, 6, s.OutputDim())
	in := dense.FromRows([][]float32{{1, 2}, {3, 4}, {5, 6}})
	out, err := s.Propagate(in)
	require.NoError(t, err)
	want := [][]float32{
		{1, 2, 1, 2, 3, 4},
		{1, 2, 3, 4, 5, 6},
		{3, 4, 5, 6, 5, 6},
	}
	assert.Equal(t, want, dense.Rows(out))

	outDiff := dense.FromRows([][]float32{
		{1, 1, 1, 1, 1, 1},
		{0, 0, 1, 0, 0, 0},
		{0, 0, 0, 0, 0, 1},
	})
	inDiff, err := s.Backpropagate(in, out, outDiff)
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{2, 2}, {2, 1}, {0, 1}}, dense.Rows(inDiff))
}

func TestParseOffsets(t *testing.T) {
	got, err := parseOffsets([]string{"-2:2", "5", "10:-5:0"})
	require.NoError(t, err)
	assert.Equal(t, []int{-2, -1, 0, 1, 2, 5, 10, 5, 0}, got)

	for _, bad := range []string{"1:0", "0:0:3", "1:2:3:4", "a"} {
		_, err = parseOffsets([]string{bad})
		assert.Equal(t, ErrConfig, errors.Cause(err), bad)
	}
}
