package loss

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/pkg/errors"
)

// Statistics collects the progress histories of several losses.
type Statistics struct {
	Names    []string
	Progress map[string][]float32
}

func makeStatistics() Statistics {
	return Statistics{
		Names:    make([]string, 0, 8),
		Progress: make(map[string][]float32),
	}
}

func (s *Statistics) update(name string, h Historian) {
	if _, ok := s.Progress[name]; !ok {
		s.Names = append(s.Names, name)
	}
	s.Progress[name] = append(s.Progress[name], h.History()...)
}

// Dump writes the histories as CSV: a header row with the loss names, then one
// row per progress checkpoint. Shorter histories leave their cells empty.
func (s *Statistics) Dump(filename string) error {
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write(s.Names); err != nil {
		return errors.WithStack(err)
	}
	var n int
	for _, name := range s.Names {
		if len(s.Progress[name]) > n {
			n = len(s.Progress[name])
		}
	}
	records := make([][]string, n)
	for j := range records {
		record := make([]string, len(s.Names))
		for i, name := range s.Names {
			if h := s.Progress[name]; j < len(h) {
				record[i] = strconv.FormatFloat(float64(h[j]), 'f', 6, 32)
			}
		}
		records[j] = record
	}
	if err := w.WriteAll(records); err != nil {
		return errors.WithStack(err)
	}
	w.Flush()
	return errors.WithStack(w.Error())
}

// Statistics gathers the progress history of every task that keeps one.
func (m *MultiTask) Statistics() Statistics {
	s := makeStatistics()
	for i, l := range m.losses {
		if h, ok := l.(Historian); ok {
			s.update(fmt.Sprintf("Loss %d", i+1), h)
		}
	}
	return s
}

// DumpProgress writes the per task progress histories to filename as CSV.
func (m *MultiTask) DumpProgress(filename string) error {
	s := m.Statistics()
	return s.Dump(filename)
}
