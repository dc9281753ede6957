package gemm

import "sync"

// scratchPool recycles the fp32 staging buffers the executors allocate
// within a call. Buffers never escape a call: the last enqueued kernel of a
// call returns them, so concurrent calls each see independent scratch
// without per-call allocator churn.
var scratchPool bufPool

type bufPool struct {
	pool sync.Pool
}

// get returns a buffer of length n. Contents are unspecified; every kernel
// that needs zeroed output zeroes it itself.
func (p *bufPool) get(n int) []float32 {
	if v := p.pool.Get(); v != nil {
		buf := v.([]float32)
		if cap(buf) >= n {
			scratchPoolHits.Inc()
			return buf[:n]
		}
	}
	scratchPoolMisses.Inc()
	return make([]float32, n)
}

func (p *bufPool) put(buf []float32) {
	if buf != nil {
		p.pool.Put(buf[:cap(buf)])
	}
}
