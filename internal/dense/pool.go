package dense

import (
	"sync"

	"gorgonia.org/tensor"
)

var (
	poolMu  sync.Mutex
	matPool = make(map[int]map[int]*sync.Pool)
)

// Borrow returns a zeroed rows×cols scratch matrix. Give it back with Return once
// it is no longer referenced.
func Borrow(rows, cols int) *tensor.Dense {
	poolMu.Lock()
	p, ok := matPool[rows][cols]
	poolMu.Unlock()
	if ok {
		retVal := p.Get().(*tensor.Dense)
		retVal.Zero()
		return retVal
	}
	return New(rows, cols)
}

// Return puts a scratch matrix obtained from Borrow back into the pool.
func Return(m *tensor.Dense) {
	rows, cols := Dims(m)
	poolMu.Lock()
	d, ok := matPool[rows]
	if !ok {
		d = make(map[int]*sync.Pool)
		matPool[rows] = d
	}
	p, ok := d[cols]
	if !ok {
		p = newPool(rows, cols)
		d[cols] = p
	}
	poolMu.Unlock()
	p.Put(m)
}

func newPool(rows, cols int) *sync.Pool {
	return &sync.Pool{
		New: func() interface{} { return New(rows, cols) },
	}
}
