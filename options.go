package nnet

import (
	G "gorgonia.org/gorgonia"
)

// TrainOptions are the hyper-parameters of the parameter updates.
type TrainOptions struct {
	LearnRate float64
	Momentum  float64
	L1        float64 // L1 regularization
	L2        float64 // L2 regularization
	BatchSize int     // gradients are divided by this
}

// DefaultTrainOptions returns plain SGD with a learning rate of 0.008.
func DefaultTrainOptions() TrainOptions {
	return TrainOptions{
		LearnRate: 0.008,
		BatchSize: 1,
	}
}

// IsValid reports whether the options can be used.
func (opts TrainOptions) IsValid() bool {
	return opts.LearnRate >= 0 &&
		opts.Momentum >= 0 && opts.Momentum < 1 &&
		opts.L1 >= 0 &&
		opts.L2 >= 0 &&
		opts.BatchSize >= 1
}

// solver builds the solver for a parameter whose learning rate is scaled by coef.
func (opts TrainOptions) solver(coef float32) G.Solver {
	solverOpts := []G.SolverOpt{
		G.WithLearnRate(opts.LearnRate * float64(coef)),
		G.WithBatchSize(float64(opts.BatchSize)),
	}
	if opts.L1 > 0 {
		solverOpts = append(solverOpts, G.WithL1Reg(opts.L1))
	}
	if opts.L2 > 0 {
		solverOpts = append(solverOpts, G.WithL2Reg(opts.L2))
	}
	if opts.Momentum > 0 {
		solverOpts = append(solverOpts, G.WithMomentum(opts.Momentum))
		return G.NewMomentum(solverOpts...)
	}
	return G.NewVanillaSolver(solverOpts...)
}
