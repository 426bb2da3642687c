package loss

import "log"

// DefaultProgressWindow is one hour of 10ms frames.
const DefaultProgressWindow = 100 * 3600

// Verbose controls the diagnostic logging of the package. Progress checkpoints
// are logged at level 1 and above.
var Verbose int

// Progress accumulates a loss over a window of frames. Every time the frames
// seen since the last checkpoint exceed the window, the windowed average is
// appended to the history and the window restarts.
type Progress struct {
	Window float64
	Name   string
	Logger *log.Logger // defaults to the standard logger

	frames, loss float64
	total        float64
	history      []float32
}

// NewProgress creates a progress accumulator labelled name.
func NewProgress(window float64, name string) *Progress {
	return &Progress{Window: window, Name: name}
}

// Add accounts for frames frames whose summed loss is loss.
func (p *Progress) Add(frames, loss float64) {
	p.frames += frames
	p.loss += loss
	p.total += frames
	if p.frames <= p.Window {
		return
	}
	avg := p.loss / p.frames
	if Verbose >= 1 {
		logger := p.Logger
		if logger == nil {
			logger = log.Default()
		}
		// frame counts are reported in hours of 10ms frames
		logger.Printf("ProgressLoss[last %dh of %dh]: %v (%s)", int(p.frames/100/3600), int(p.total/100/3600), avg, p.Name)
	}
	p.history = append(p.history, float32(avg))
	p.frames = 0
	p.loss = 0
}

// History returns the windowed averages recorded so far.
func (p *Progress) History() []float32 { return p.history }
