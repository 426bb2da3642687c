package nnet

import (
	"strconv"
	"strings"

	"github.com/gorgonia/nnet/internal/dense"
	"github.com/gorgonia/nnet/kio"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// ComponentType identifies a kind of component.
type ComponentType byte

const (
	UnknownComponent ComponentType = iota
	TypeAffineTransform
	TypeSoftmax
	TypeSigmoid
	TypeSplice
	TypeParallelComponent
)

var markers = map[ComponentType]string{
	TypeAffineTransform:   "<AffineTransform>",
	TypeSoftmax:           "<Softmax>",
	TypeSigmoid:           "<Sigmoid>",
	TypeSplice:            "<Splice>",
	TypeParallelComponent: "<ParallelComponent>",
}

// String returns the marker the component is persisted under.
func (t ComponentType) String() string {
	if m, ok := markers[t]; ok {
		return m
	}
	return "<UnknownComponent>"
}

// parseMarker is the inverse of ComponentType.String.
func parseMarker(s string) (ComponentType, bool) {
	for t, m := range markers {
		if m == s {
			return t, true
		}
	}
	return UnknownComponent, false
}

const endOfComponent = "<!EndOfComponent>"

// Component is one layer of a network.
type Component interface {
	Type() ComponentType
	InputDim() int
	OutputDim() int

	// Propagate computes the output of the component for the rows of in.
	Propagate(in *tensor.Dense) (*tensor.Dense, error)
	// Backpropagate computes the derivative w.r.t. the input given the input,
	// the output of Propagate and the derivative w.r.t. the output.
	Backpropagate(in, out, outDiff *tensor.Dense) (*tensor.Dense, error)

	Info() string
	InfoGradient() string

	initData(cfg *tokens) error
	readData(r *kio.Reader) error
	writeData(w *kio.Writer)
}

// Updatable is a component with trainable parameters.
type Updatable interface {
	Component

	NumParams() int
	// Params returns a copy of the parameters, flattened.
	Params() []float32
	SetTrainOptions(opts TrainOptions)
	// Update applies the gradient implied by in and outDiff to the parameters.
	Update(in, outDiff *tensor.Dense) error
}

func newComponent(t ComponentType, in, out int) (Component, error) {
	switch t {
	case TypeAffineTransform:
		return NewAffineTransform(in, out), nil
	case TypeSoftmax:
		if in != out {
			return nil, errors.Wrapf(ErrWidth, "%v: input dim %d != output dim %d", t, in, out)
		}
		return NewSoftmax(in), nil
	case TypeSigmoid:
		if in != out {
			return nil, errors.Wrapf(ErrWidth, "%v: input dim %d != output dim %d", t, in, out)
		}
		return NewSigmoid(in), nil
	case TypeSplice:
		return &Splice{in: in, out: out}, nil
	case TypeParallelComponent:
		return &ParallelComponent{in: in, out: out}, nil
	}
	return nil, errors.Wrapf(ErrConfig, "unknown component type %v", t)
}

// InitComponent creates a component from a prototype line such as
//
//	<AffineTransform> <InputDim> 5 <OutputDim> 3 <ParamStddev> 0.1
func InitComponent(line string) (Component, error) {
	cfg := tokenize(line)
	marker, err := cfg.next()
	if err != nil {
		return nil, err
	}
	t, ok := parseMarker(marker)
	if !ok {
		return nil, errors.Wrapf(ErrConfig, "unknown component %q", marker)
	}
	var in, out int
	for !cfg.eof() && (cfg.peek() == "<InputDim>" || cfg.peek() == "<OutputDim>") {
		tok, _ := cfg.next()
		switch tok {
		case "<InputDim>":
			in, err = cfg.nextInt(tok)
		case "<OutputDim>":
			out, err = cfg.nextInt(tok)
		}
		if err != nil {
			return nil, err
		}
	}
	if in <= 0 || out <= 0 {
		return nil, errors.Wrapf(ErrConfig, "%v: <InputDim> and <OutputDim> must be positive, got %d and %d", t, in, out)
	}
	c, err := newComponent(t, in, out)
	if err != nil {
		return nil, err
	}
	if err = c.initData(cfg); err != nil {
		return nil, errors.WithMessage(err, marker)
	}
	return c, nil
}

// readComponent reads one persisted component. It returns nil, nil at the end
// of the enclosing network.
func readComponent(r *kio.Reader) (Component, error) {
	marker, err := r.ReadToken()
	if err != nil {
		return nil, errors.Wrap(err, "reading component")
	}
	if marker == nnetEnd {
		return nil, nil
	}
	t, ok := parseMarker(marker)
	if !ok {
		return nil, errors.Wrapf(ErrConfig, "unknown component %q", marker)
	}
	out, err := r.ReadInt()
	if err != nil {
		return nil, errors.WithMessage(err, marker)
	}
	in, err := r.ReadInt()
	if err != nil {
		return nil, errors.WithMessage(err, marker)
	}
	if in <= 0 || out <= 0 {
		return nil, errors.Wrapf(kio.ErrUnexpectedToken, "%s: dimensions must be positive, got %d and %d", marker, out, in)
	}
	c, err := newComponent(t, in, out)
	if err != nil {
		return nil, err
	}
	if err = c.readData(r); err != nil {
		return nil, errors.WithMessage(err, marker)
	}
	if err = r.ExpectToken(endOfComponent); err != nil {
		return nil, errors.WithMessage(err, marker)
	}
	return c, nil
}

func writeComponent(w *kio.Writer, c Component) {
	w.WriteToken(c.Type().String())
	w.WriteInt(c.OutputDim())
	w.WriteInt(c.InputDim())
	w.Newline()
	c.writeData(w)
	w.WriteToken(endOfComponent)
	w.Newline()
}

// checkCols fails unless m has want columns and at least one frame.
func checkCols(m *tensor.Dense, want int) error {
	rows, cols := dense.Dims(m)
	if cols != want {
		return errors.Wrapf(ErrShape, "expected %d columns, got %d", want, cols)
	}
	if rows == 0 {
		return errors.Wrap(ErrShape, "no frames")
	}
	return nil
}

// tokens is a white space separated configuration line.
type tokens struct {
	toks []string
	pos  int
}

func tokenize(s string) *tokens { return &tokens{toks: strings.Fields(s)} }

func (t *tokens) eof() bool { return t.pos >= len(t.toks) }

func (t *tokens) peek() string {
	if t.eof() {
		return ""
	}
	return t.toks[t.pos]
}

func (t *tokens) next() (string, error) {
	if t.eof() {
		return "", errors.Wrap(ErrConfig, "unexpected end of configuration")
	}
	t.pos++
	return t.toks[t.pos-1], nil
}

func (t *tokens) nextInt(name string) (int, error) {
	tok, err := t.next()
	if err != nil {
		return 0, errors.WithMessage(err, name)
	}
	v, err := strconv.Atoi(tok)
	if err != nil {
		return 0, errors.Wrapf(ErrConfig, "%s: expected an integer, got %q", name, tok)
	}
	return v, nil
}

func (t *tokens) nextFloat(name string) (float32, error) {
	tok, err := t.next()
	if err != nil {
		return 0, errors.WithMessage(err, name)
	}
	v, err := strconv.ParseFloat(tok, 32)
	if err != nil {
		return 0, errors.Wrapf(ErrConfig, "%s: expected a number, got %q", name, tok)
	}
	return float32(v), nil
}

// until collects tokens up to the closing marker end, which is consumed.
func (t *tokens) until(end string) ([]string, error) {
	var retVal []string
	for {
		tok, err := t.next()
		if err != nil {
			return nil, errors.WithMessage(err, "missing "+end)
		}
		if tok == end {
			return retVal, nil
		}
		retVal = append(retVal, tok)
	}
}
