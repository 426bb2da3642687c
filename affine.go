package nnet

import (
	"fmt"

	"github.com/gorgonia/nnet/internal/dense"
	"github.com/gorgonia/nnet/kio"
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
	"gorgonia.org/vecf32"
)

// param is a trainable tensor together with its gradient. It is what the
// solvers step over.
type param struct {
	value, grad *tensor.Dense
}

func newParam(shape ...int) *param {
	size := 1
	for _, s := range shape {
		size *= s
	}
	return &param{
		value: tensor.New(tensor.WithShape(shape...), tensor.WithBacking(make([]float32, size))),
		grad:  tensor.New(tensor.WithShape(shape...), tensor.WithBacking(make([]float32, size))),
	}
}

func (p *param) Value() G.Value { return p.value }
func (p *param) Grad() (G.Value, error) { return p.grad, nil }
func (p *param) data() []float32 { return dense.Data(p.value) }
func (p *param) gradData() []float32 { return dense.Data(p.grad) }
func (p *param) setGrad(g []float32) { copy(p.gradData(), g) }
func (p *param) valueGrads() []G.ValueGrad { return []G.ValueGrad{p} }

// AffineTransform computes x·Wᵀ + b.
type AffineTransform struct {
	in, out int

	linearity *param // out×in
	bias      *param // out

	LearnRateCoef     float32
	BiasLearnRateCoef float32

	opts                        TrainOptions
	linearitySolver, biasSolver G.Solver

	// gradients of the last update, kept for InfoGradient
	lastLinearityGrad, lastBiasGrad []float32
}

// NewAffineTransform creates a zero initialised in→out affine transform.
func NewAffineTransform(in, out int) *AffineTransform {
	retVal := &AffineTransform{
		in:                in,
		out:               out,
		linearity:         newParam(out, in),
		bias:              newParam(out),
		LearnRateCoef:     1,
		BiasLearnRateCoef: 1,
	}
	retVal.SetTrainOptions(DefaultTrainOptions())
	return retVal
}

func (c *AffineTransform) Type() ComponentType { return TypeAffineTransform }
func (c *AffineTransform) InputDim() int { return c.in }
func (c *AffineTransform) OutputDim() int { return c.out }

// Linearity returns the out×in weight matrix. Modifying it modifies the
// component.
func (c *AffineTransform) Linearity() *tensor.Dense { return c.linearity.value }

// Bias returns the bias vector. Modifying it modifies the component.
func (c *AffineTransform) Bias() []float32 { return c.bias.data() }

// SetLinearity copies w into the weight matrix.
func (c *AffineTransform) SetLinearity(w *tensor.Dense) error {
	rows, cols := dense.Dims(w)
	if rows != c.out || cols != c.in {
		return errors.Wrapf(ErrWidth, "linearity of a %d→%d transform must be %dx%d, got %dx%d", c.in, c.out, c.out, c.in, rows, cols)
	}
	copy(c.linearity.data(), dense.Data(w))
	return nil
}

// SetBias copies b into the bias.
func (c *AffineTransform) SetBias(b []float32) error {
	if len(b) != c.out {
		return errors.Wrapf(ErrWidth, "bias of a %d→%d transform must have %d elements, got %d", c.in, c.out, c.out, len(b))
	}
	copy(c.bias.data(), b)
	return nil
}

func (c *AffineTransform) initData(cfg *tokens) error {
	var (
		biasMean    float32 = -2
		biasRange   float32 = 2
		paramStddev float32 = 0.1
		err         error
	)
	for !cfg.eof() {
		tok, _ := cfg.next()
		switch tok {
		case "<ParamStddev>":
			paramStddev, err = cfg.nextFloat(tok)
		case "<BiasMean>":
			biasMean, err = cfg.nextFloat(tok)
		case "<BiasRange>":
			biasRange, err = cfg.nextFloat(tok)
		case "<LearnRateCoef>":
			c.LearnRateCoef, err = cfg.nextFloat(tok)
		case "<BiasLearnRateCoef>":
			c.BiasLearnRateCoef, err = cfg.nextFloat(tok)
		default:
			err = errors.Wrapf(ErrConfig, "unknown token %q, typo in config? (ParamStddev|BiasMean|BiasRange|LearnRateCoef|BiasLearnRateCoef)", tok)
		}
		if err != nil {
			return err
		}
	}

	if paramStddev > 0 {
		w := G.Gaussian(0, float64(paramStddev))(tensor.Float32, c.out, c.in).([]float32)
		copy(c.linearity.data(), w)
	}
	b := c.bias.data()
	if biasRange > 0 {
		u := G.Uniform(float64(biasMean-biasRange/2), float64(biasMean+biasRange/2))(tensor.Float32, c.out).([]float32)
		copy(b, u)
	} else {
		for i := range b {
			b[i] = biasMean
		}
	}
	c.SetTrainOptions(c.opts)
	return nil
}

func (c *AffineTransform) readData(r *kio.Reader) error {
	var err error
	for _, f := range []struct {
		tok string
		v   *float32
	}{
		{"<LearnRateCoef>", &c.LearnRateCoef},
		{"<BiasLearnRateCoef>", &c.BiasLearnRateCoef},
	} {
		if err = r.ExpectToken(f.tok); err != nil {
			return err
		}
		if *f.v, err = r.ReadFloat(); err != nil {
			return err
		}
	}
	w, err := r.ReadMatrix()
	if err != nil {
		return errors.WithMessage(err, "linearity")
	}
	if err = c.SetLinearity(w); err != nil {
		return err
	}
	b, err := r.ReadVector()
	if err != nil {
		return errors.WithMessage(err, "bias")
	}
	if err = c.SetBias(b); err != nil {
		return err
	}
	c.SetTrainOptions(c.opts)
	return nil
}

func (c *AffineTransform) writeData(w *kio.Writer) {
	w.WriteToken("<LearnRateCoef>")
	w.WriteFloat(c.LearnRateCoef)
	w.WriteToken("<BiasLearnRateCoef>")
	w.WriteFloat(c.BiasLearnRateCoef)
	w.Newline()
	w.WriteMatrix(c.linearity.value)
	w.WriteVector(c.bias.data())
}

// Propagate implements Component.
func (c *AffineTransform) Propagate(in *tensor.Dense) (*tensor.Dense, error) {
	out, err := dense.MatMul(in, dense.Transpose(c.linearity.value))
	if err != nil {
		return nil, err
	}
	b := c.bias.data()
	for _, r := range dense.Rows(out) {
		vecf32.Add(r, b)
	}
	return out, nil
}

// Backpropagate implements Component.
func (c *AffineTransform) Backpropagate(in, out, outDiff *tensor.Dense) (*tensor.Dense, error) {
	return dense.MatMul(outDiff, c.linearity.value)
}

// SetTrainOptions implements Updatable.
func (c *AffineTransform) SetTrainOptions(opts TrainOptions) {
	if !opts.IsValid() {
		panic(fmt.Sprintf("invalid train options %+v", opts))
	}
	c.opts = opts
	c.linearitySolver = opts.solver(c.LearnRateCoef)
	c.biasSolver = opts.solver(c.BiasLearnRateCoef)
}

// Update implements Updatable.
func (c *AffineTransform) Update(in, outDiff *tensor.Dense) error {
	gw, err := dense.MatMul(dense.Transpose(outDiff), in)
	if err != nil {
		return err
	}
	c.lastLinearityGrad = append(c.lastLinearityGrad[:0], dense.Data(gw)...)
	c.lastBiasGrad = dense.ColSums(outDiff)
	c.linearity.setGrad(c.lastLinearityGrad)
	c.bias.setGrad(c.lastBiasGrad)

	if err = c.linearitySolver.Step(c.linearity.valueGrads()); err != nil {
		return errors.Wrap(err, "linearity update")
	}
	if err = c.biasSolver.Step(c.bias.valueGrads()); err != nil {
		return errors.Wrap(err, "bias update")
	}
	return nil
}

// NumParams implements Updatable.
func (c *AffineTransform) NumParams() int { return c.out*c.in + c.out }

// Params implements Updatable. The weights come first, row by row, then the
// bias.
func (c *AffineTransform) Params() []float32 {
	retVal := make([]float32, 0, c.NumParams())
	retVal = append(retVal, c.linearity.data()...)
	return append(retVal, c.bias.data()...)
}

func (c *AffineTransform) Info() string {
	return fmt.Sprintf("\n  linearity%s, lr-coef %v\n  bias%s, lr-coef %v",
		momentStatistics(c.linearity.data()), c.LearnRateCoef,
		momentStatistics(c.bias.data()), c.BiasLearnRateCoef)
}

func (c *AffineTransform) InfoGradient() string {
	return fmt.Sprintf("\n  linearity_grad%s, lr-coef %v\n  bias_grad%s, lr-coef %v",
		momentStatistics(c.lastLinearityGrad), c.LearnRateCoef,
		momentStatistics(c.lastBiasGrad), c.BiasLearnRateCoef)
}
