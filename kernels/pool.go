package kernels

import "runtime"

// ScratchPool hands out reusable float64 rows of a fixed length.
type ScratchPool struct {
	buffers chan []float64
	size    int
}

// NewScratchPool creates a pool of poolSize rows of length size.
func NewScratchPool(size, poolSize int) *ScratchPool {
	sp := &ScratchPool{
		buffers: make(chan []float64, poolSize),
		size:    size,
	}
	for i := 0; i < poolSize; i++ {
		sp.buffers <- make([]float64, size)
	}
	return sp
}

// DefaultPoolSize is the number of rows a pool keeps around.
func DefaultPoolSize() int {
	return runtime.NumCPU() * 2
}

// Size returns the row length handed out by Get.
func (sp *ScratchPool) Size() int {
	return sp.size
}

// Get retrieves a row from the pool. Its contents are unspecified.
func (sp *ScratchPool) Get() []float64 {
	select {
	case buf := <-sp.buffers:
		return buf[:sp.size]
	default:
		// Pool empty, allocate new buffer
		return make([]float64, sp.size)
	}
}

// Put returns a row to the pool.
func (sp *ScratchPool) Put(buf []float64) {
	if cap(buf) >= sp.size {
		select {
		case sp.buffers <- buf:
		default:
			// Pool full, let GC handle it
		}
	}
}
