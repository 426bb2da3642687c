package loss

import (
	"bytes"
	"io"
	"log"
	"testing"

	"github.com/gorgonia/nnet/internal/dense"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestProgress(t *testing.T) {
	defer func(v int) { Verbose = v }(Verbose)
	Verbose = 1

	var buf bytes.Buffer
	p := NewProgress(10, "Xent")
	p.Logger = log.New(&buf, "", 0)

	p.Add(6, 12)
	assert.Empty(t, p.History())
	p.Add(4, 8) // exactly the window does not trigger
	assert.Empty(t, p.History())
	p.Add(2, 8)
	assert.Equal(t, []float32{28.0 / 12}, p.History())
	assert.Contains(t, buf.String(), "ProgressLoss[last 0h of 0h]: ")
	assert.Contains(t, buf.String(), "(Xent)")

	buf.Reset()
	Verbose = 0
	p.Add(11, 11)
	assert.Equal(t, []float32{28.0 / 12, 1}, p.History())
	assert.Empty(t, buf.String())
}

func TestProgressStandardLogger(t *testing.T) {
	defer func(v int) { Verbose = v }(Verbose)
	defer func(w io.Writer, flags int) { log.SetOutput(w); log.SetFlags(flags) }(log.Writer(), log.Flags())
	Verbose = 1

	var buf bytes.Buffer
	log.SetOutput(&buf)
	log.SetFlags(0)
	p := NewProgress(1, "Mse")
	p.Add(2, 1)
	assert.Equal(t, "ProgressLoss[last 0h of 0h]: 0.5 (Mse)\n", buf.String())
}

func TestPosteriorToMatrix(t *testing.T) {
	post := Posterior{
		{{Index: 1, Value: 0.25}, {Index: 1, Value: 0.5}, {Index: 0, Value: 0.25}},
		{},
		{{Index: 2, Value: 1}},
	}
	m, err := post.ToMatrix(3)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	assert.Equal(t, []float32{0.25, 0.75, 0, 0, 0, 0, 0, 0, 1}, dense.Data(m))
	assert.True(t, post.HasTargetIn(0, 0, 1))
	assert.False(t, post.HasTargetIn(1, 0, 3))
	assert.False(t, post.HasTargetIn(2, 0, 2))

	_, err = Posterior{{{Index: -1, Value: 1}}}.ToMatrix(3)
	assert.Equal(t, ErrShape, errors.Cause(err))
}

func TestParseInterpMode(t *testing.T) {
	for _, m := range []InterpMode{InterpNone, InterpSoft, InterpHard} {
		got, err := ParseInterpMode(m.String())
		assert.NoError(t, err)
		assert.Equal(t, m, got)
	}
	_, err := ParseInterpMode("linear")
	assert.Equal(t, ErrConfig, errors.Cause(err))
}
