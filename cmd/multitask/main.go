// Command multitask runs a splice and a two way parallel component on a
// synthetic minibatch, evaluates it with a multi-task loss and backpropagates
// the masked gradient through the branches.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/gorgonia/nnet"
	"github.com/gorgonia/nnet/encoding/gif"
	"github.com/gorgonia/nnet/loss"
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

var (
	protoFile = flag.String("proto", "", "network prototype; a splice into two 5→3 softmax branches when empty")
	lossSpec  = flag.String("loss", "multitask,xent,3,1.0,xent,3,1.0", "multi-task loss specification")
	frames    = flag.Int("frames", 6, "frames per minibatch")
	passes    = flag.Int("passes", 1, "forward/backward passes over the minibatch")
	learnRate = flag.Float64("lr", 0.008, "learning rate")
	verbose   = flag.Int("v", 0, "verbosity of the loss progress")

	dotFile   = flag.String("dot", "", "write the topology in graphviz format")
	csvFile   = flag.String("csv", "", "write the per task progress as CSV")
	gifFile   = flag.String("gif", "", "write one frame per pass as an animated GIF")
	modelFile = flag.String("model", "", "write the network after the last pass")
	binary    = flag.Bool("binary", true, "write the network in binary")
)

const branchProto = `<NnetProto>
<AffineTransform> <InputDim> 5 <OutputDim> 3 <ParamStddev> 0.1 <BiasMean> 0 <BiasRange> 0.2
<Softmax> <InputDim> 3 <OutputDim> 3
</NnetProto>
`

func fixture() (*nnet.Nnet, error) {
	var branches []*nnet.Nnet
	for i := 0; i < 2; i++ {
		n, err := nnet.ParseProto(strings.NewReader(branchProto))
		if err != nil {
			return nil, err
		}
		branches = append(branches, n)
	}
	p, err := nnet.NewParallelComponent(branches...)
	if err != nil {
		return nil, err
	}
	return nnet.New(nnet.NewSplice(5, []int{0, 0}), p)
}

// minibatch returns uniformly random frames with targets cycling through the
// output columns of the tasks, interleaving the tasks.
func minibatch(net *nnet.Nnet, mt *loss.MultiTask, n int) (*tensor.Dense, loss.Posterior) {
	backing := G.Uniform(-1, 1)(tensor.Float32, n, net.InputDim()).([]float32)
	in := tensor.New(tensor.WithShape(n, net.InputDim()), tensor.WithBacking(backing))

	offsets := mt.Offsets()
	post := make(loss.Posterior, n)
	for f := range post {
		task := f % mt.NumTasks()
		width := offsets[task+1] - offsets[task]
		post[f] = []loss.Pair{{Index: offsets[task] + (f/mt.NumTasks())%width, Value: 1}}
	}
	return in, post
}

type snapshot struct {
	*loss.MultiTask
	history []float32
}

func (s snapshot) History() []float32 { return s.history }

func run() error {
	loss.Verbose = *verbose

	var (
		net *nnet.Nnet
		err error
	)
	if *protoFile != "" {
		net, err = nnet.InitFromProto(*protoFile)
	} else {
		net, err = fixture()
	}
	if err != nil {
		return err
	}
	opts := nnet.DefaultTrainOptions()
	opts.LearnRate = *learnRate
	if !opts.IsValid() {
		return errors.Errorf("invalid learning rate %v", *learnRate)
	}
	net.SetTrainOptions(opts)
	log.Printf("Network:\n%s", net.Info())

	mt, err := loss.NewMultiTask(*lossSpec)
	if err != nil {
		return err
	}
	in, post := minibatch(net, mt, *frames)
	weights := make([]float32, *frames)
	for i := range weights {
		weights[i] = 1
	}

	var enc *gif.Encoder
	if *gifFile != "" {
		f, err := os.Create(*gifFile)
		if err != nil {
			return errors.WithStack(err)
		}
		defer f.Close()
		enc = gif.NewGifEncoder(600, 1200)
		enc.Writer = f
	}

	var history []float32
	for pass := 0; pass < *passes; pass++ {
		out, err := net.Propagate(in)
		if err != nil {
			return err
		}
		diff, err := mt.EvalPosterior(weights, out, post)
		if err != nil {
			return err
		}
		if _, err = net.Backpropagate(diff); err != nil {
			return err
		}
		history = append(history, float32(mt.AvgLoss()))
		if enc != nil {
			if err = enc.Encode(pass+1, snapshot{mt, history}); err != nil {
				return err
			}
		}
		if loss.Verbose >= 2 {
			log.Printf("%s%s", net.InfoPropagate(), net.InfoBackPropagate())
		}
	}
	fmt.Print(mt.Report())

	if enc != nil {
		if err = enc.Flush(); err != nil {
			return err
		}
	}
	if *dotFile != "" {
		if err = os.WriteFile(*dotFile, []byte(net.ToDot()), 0644); err != nil {
			return errors.WithStack(err)
		}
	}
	if *csvFile != "" {
		if err = mt.DumpProgress(*csvFile); err != nil {
			return err
		}
	}
	if *modelFile != "" {
		if err = net.WriteFile(*modelFile, *binary); err != nil {
			return err
		}
		log.Printf("Written model to %s", *modelFile)
	}
	return nil
}

func main() {
	flag.Parse()
	if err := run(); err != nil {
		log.Fatalf("%+v", err)
	}
}
