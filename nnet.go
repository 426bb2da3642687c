// Package nnet implements feed-forward networks built from a stack of
// components, including ParallelComponent, which runs independent nested
// networks side by side on disjoint column ranges of its input and output.
//
// Networks are persisted as token streams (see package kio) and can be created
// from prototypes, one component per line:
//
//	<NnetProto>
//	<AffineTransform> <InputDim> 5 <OutputDim> 3 <ParamStddev> 0.1
//	<Softmax> <InputDim> 3 <OutputDim> 3
//	</NnetProto>
package nnet

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/gorgonia/nnet/internal/dense"
	"github.com/gorgonia/nnet/kio"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

const (
	nnetStart  = "<Nnet>"
	nnetEnd    = "</Nnet>"
	protoStart = "<NnetProto>"
	protoEnd   = "</NnetProto>"
)

// Nnet is a stack of components. Propagate keeps the intermediate activations
// so that a following Backpropagate can train the network.
type Nnet struct {
	components []Component
	opts       TrainOptions

	propagateBuf     []*tensor.Dense // input and output of every component
	backpropagateBuf []*tensor.Dense // derivatives w.r.t. the same
}

// New creates a network from the given components. Neighbouring components
// must agree on their dimensions.
func New(components ...Component) (*Nnet, error) {
	if len(components) == 0 {
		return nil, errors.Wrap(ErrConfig, "a network needs at least one component")
	}
	for i := 1; i < len(components); i++ {
		prev, c := components[i-1], components[i]
		if prev.OutputDim() != c.InputDim() {
			return nil, errors.Wrapf(ErrWidth, "component %d %v outputs %d dims, component %d %v takes %d", i, prev.Type(), prev.OutputDim(), i+1, c.Type(), c.InputDim())
		}
	}
	retVal := &Nnet{components: components}
	retVal.SetTrainOptions(DefaultTrainOptions())
	return retVal, nil
}

// InputDim is the input dimension of the first component.
func (n *Nnet) InputDim() int { return n.components[0].InputDim() }

// OutputDim is the output dimension of the last component.
func (n *Nnet) OutputDim() int { return n.components[len(n.components)-1].OutputDim() }

// NumComponents returns the number of components.
func (n *Nnet) NumComponents() int { return len(n.components) }

// Component returns component i.
func (n *Nnet) Component(i int) Component { return n.components[i] }

// Last returns the last component.
func (n *Nnet) Last() Component { return n.components[len(n.components)-1] }

// Propagate runs the network forward and keeps the activations.
func (n *Nnet) Propagate(in *tensor.Dense) (*tensor.Dense, error) {
	var m maebe
	n.propagateBuf = append(n.propagateBuf[:0], in)
	for _, c := range n.components {
		in = m.propagate(c, in)
		n.propagateBuf = append(n.propagateBuf, in)
	}
	if m.err != nil {
		n.propagateBuf = n.propagateBuf[:0]
		return nil, m.err
	}
	return in, nil
}

// Backpropagate runs the network backward from the derivative w.r.t. the output
// of the last Propagate, updating every trainable component on the way. It
// returns the derivative w.r.t. the input.
func (n *Nnet) Backpropagate(outDiff *tensor.Dense) (*tensor.Dense, error) {
	if len(n.propagateBuf) != len(n.components)+1 {
		return nil, errors.New("Backpropagate called without a preceding Propagate")
	}
	var m maebe
	n.backpropagateBuf = make([]*tensor.Dense, len(n.components)+1)
	n.backpropagateBuf[len(n.components)] = outDiff
	for i := len(n.components) - 1; i >= 0; i-- {
		c := n.components[i]
		in, out, diff := n.propagateBuf[i], n.propagateBuf[i+1], n.backpropagateBuf[i+1]
		n.backpropagateBuf[i] = m.backpropagate(c, in, out, diff)
		m.update(c, in, diff)
	}
	if m.err != nil {
		return nil, m.err
	}
	return n.backpropagateBuf[0], nil
}

// Feedforward runs the network forward without keeping the activations.
func (n *Nnet) Feedforward(in *tensor.Dense) (*tensor.Dense, error) {
	var m maebe
	for _, c := range n.components {
		in = m.propagate(c, in)
	}
	return in, m.err
}

// SetTrainOptions sets the training options of every trainable component.
func (n *Nnet) SetTrainOptions(opts TrainOptions) {
	n.opts = opts
	for _, c := range n.components {
		if u, ok := c.(Updatable); ok {
			u.SetTrainOptions(opts)
		}
	}
}

// TrainOptions returns the training options.
func (n *Nnet) TrainOptions() TrainOptions { return n.opts }

// NumParams is the number of trainable parameters.
func (n *Nnet) NumParams() int {
	var retVal int
	for _, c := range n.components {
		if u, ok := c.(Updatable); ok {
			retVal += u.NumParams()
		}
	}
	return retVal
}

// Params returns a copy of all trainable parameters, component by component.
func (n *Nnet) Params() []float32 {
	retVal := make([]float32, 0, n.NumParams())
	for _, c := range n.components {
		if u, ok := c.(Updatable); ok {
			retVal = append(retVal, u.Params()...)
		}
	}
	return retVal
}

// Info describes the network and the statistics of its parameters.
func (n *Nnet) Info() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "num-components %d\ninput-dim %d\noutput-dim %d\nnumber-of-parameters %v millions\n",
		len(n.components), n.InputDim(), n.OutputDim(), float64(n.NumParams())/1e6)
	for i, c := range n.components {
		fmt.Fprintf(&buf, "component %d : %v, input-dim %d, output-dim %d, %s\n", i+1, c.Type(), c.InputDim(), c.OutputDim(), c.Info())
	}
	return buf.String()
}

// InfoGradient describes the gradients of the last update.
func (n *Nnet) InfoGradient() string {
	var buf strings.Builder
	buf.WriteString("### Gradient stats :\n")
	for i, c := range n.components {
		fmt.Fprintf(&buf, "Component %d : %v, %s\n", i+1, c.Type(), c.InfoGradient())
	}
	return buf.String()
}

// InfoPropagate describes the activations of the last Propagate.
func (n *Nnet) InfoPropagate() string {
	var buf strings.Builder
	buf.WriteString("### Forward propagation buffer content :\n")
	for i, m := range n.propagateBuf {
		if i == 0 {
			buf.WriteString("[0] output of <Input>")
		} else {
			fmt.Fprintf(&buf, "[%d] output of %v", i, n.components[i-1].Type())
		}
		buf.WriteString(momentStatistics(dense.Data(m)))
		buf.WriteByte('\n')
		if i > 0 {
			if p, ok := n.components[i-1].(*ParallelComponent); ok {
				buf.WriteString(p.InfoPropagate())
			}
		}
	}
	return buf.String()
}

// InfoBackPropagate describes the derivatives of the last Backpropagate.
func (n *Nnet) InfoBackPropagate() string {
	var buf strings.Builder
	buf.WriteString("### Backward propagation buffer content :\n")
	for i, m := range n.backpropagateBuf {
		if m == nil {
			continue
		}
		if i == 0 {
			buf.WriteString("[0] diff of <Input>")
		} else {
			fmt.Fprintf(&buf, "[%d] diff-output of %v", i, n.components[i-1].Type())
		}
		buf.WriteString(momentStatistics(dense.Data(m)))
		buf.WriteByte('\n')
		if i > 0 {
			if p, ok := n.components[i-1].(*ParallelComponent); ok {
				buf.WriteString(p.InfoBackPropagate())
			}
		}
	}
	return buf.String()
}

func (n *Nnet) write(w *kio.Writer) {
	w.WriteToken(nnetStart)
	w.Newline()
	for _, c := range n.components {
		writeComponent(w, c)
	}
	w.WriteToken(nnetEnd)
	w.Newline()
}

// Write persists the network.
func (n *Nnet) Write(w io.Writer, binary bool) error {
	kw := kio.NewWriter(w, binary)
	kw.WriteHeader()
	n.write(kw)
	return kw.Flush()
}

// WriteFile persists the network to filename.
func (n *Nnet) WriteFile(filename string, binary bool) error {
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return errors.WithStack(err)
	}
	if err = n.Write(f, binary); err != nil {
		f.Close()
		return errors.WithMessage(err, filename)
	}
	return errors.WithStack(f.Close())
}

func read(r *kio.Reader) (*Nnet, error) {
	if err := r.ExpectToken(nnetStart); err != nil {
		return nil, err
	}
	var components []Component
	for {
		c, err := readComponent(r)
		if err != nil {
			return nil, errors.WithMessage(err, fmt.Sprintf("component %d", len(components)+1))
		}
		if c == nil {
			break
		}
		components = append(components, c)
	}
	return New(components...)
}

// Read reads a network persisted in either text or binary form.
func Read(r io.Reader) (*Nnet, error) {
	kr, err := kio.Open(r)
	if err != nil {
		return nil, err
	}
	return read(kr)
}

// ReadFile reads a network from filename.
func ReadFile(filename string) (*Nnet, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer f.Close()
	retVal, err := Read(f)
	if err != nil {
		return nil, errors.WithMessage(err, filename)
	}
	return retVal, nil
}

// ParseProto creates a network from a prototype, one component per line.
func ParseProto(r io.Reader) (*Nnet, error) {
	var components []Component
	s := bufio.NewScanner(r)
	for lineNo := 1; s.Scan(); lineNo++ {
		line := strings.TrimSpace(s.Text())
		if line == "" || line == protoStart || line == protoEnd {
			continue
		}
		c, err := InitComponent(line)
		if err != nil {
			return nil, errors.WithMessage(err, fmt.Sprintf("prototype line %d", lineNo))
		}
		components = append(components, c)
	}
	if err := s.Err(); err != nil {
		return nil, errors.WithStack(err)
	}
	return New(components...)
}

// InitFromProto creates a network from the prototype in filename.
func InitFromProto(filename string) (*Nnet, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer f.Close()
	retVal, err := ParseProto(f)
	if err != nil {
		return nil, errors.WithMessage(err, filename)
	}
	log.Printf("Initialized <Nnet> from prototype : %s", filename)
	return retVal, nil
}
