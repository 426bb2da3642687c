package gif

import (
	"bytes"
	"image/gif"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type snapshot struct {
	report  string
	history []float32
}

func (s snapshot) Report() string { return s.report }
func (s snapshot) History() []float32 { return s.history }

func TestEncoder(t *testing.T) {
	var buf bytes.Buffer
	enc := NewGifEncoder(400, 800)
	enc.Writer = &buf

	assert.Error(t, enc.Flush())

	require.NoError(t, enc.Encode(1, snapshot{"AvgLoss: 1.2 (Xent)\nFRAME_ACCURACY >> 50% <<\n", nil}))
	require.NoError(t, enc.Encode(2, snapshot{"AvgLoss: 0.9 (Xent)\nFRAME_ACCURACY >> 62% <<\n", []float32{1.2, 0.9}}))
	require.NoError(t, enc.Encode(3, snapshot{"AvgLoss: 0.9 (Xent)\nFRAME_ACCURACY >> 62% <<\n", []float32{1, 1, 1}}))
	assert.Equal(t, 3, enc.Frames())
	assert.True(t, enc.W <= 800 && enc.H <= 400)
	require.NoError(t, enc.Flush())

	g, err := gif.DecodeAll(&buf)
	require.NoError(t, err)
	assert.Len(t, g.Image, 3)
	assert.Equal(t, enc.W, g.Image[0].Bounds().Dx())
}
