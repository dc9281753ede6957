package gemm

import (
	"math"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/chaofanll/TransformerEngine/internal/simd"
)

// Elementwise kernel library shared by the native and emulated executors.
// All kernels operate on logically flattened rows x cols fp32 buffers and
// compute in single precision regardless of the tensors' storage precision.

const (
	geluSqrt2OverPi = 0.7978845608
	geluCoeff       = 0.044715
)

// gelu is the tanh-approximated GELU: 0.5x(1 + tanh(sqrt(2/pi)(x + 0.044715x^3))).
func gelu(x float32) float32 {
	xf := float64(x)
	return float32(0.5 * xf * (1 + math.Tanh(geluSqrt2OverPi*(xf+geluCoeff*xf*xf*xf))))
}

// geluGrad is the closed-form derivative of gelu evaluated at x.
func geluGrad(x float32) float32 {
	xf := float64(x)
	u := geluSqrt2OverPi * (xf + geluCoeff*xf*xf*xf)
	th := math.Tanh(u)
	sech2 := 1 - th*th
	return float32(0.5*(1+th) + 0.5*xf*sech2*geluSqrt2OverPi*(1+3*geluCoeff*xf*xf))
}

// parallelRows splits [0, rows) across workers and waits for completion.
func parallelRows(rows, workers int, fn func(start, end int)) {
	if workers > rows {
		workers = rows
	}
	if workers <= 1 {
		fn(0, rows)
		return
	}
	var wg sync.WaitGroup
	per := (rows + workers - 1) / workers
	for w := 0; w < workers; w++ {
		start := w * per
		if start >= rows {
			break
		}
		end := start + per
		if end > rows {
			end = rows
		}
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(start, end)
	}
	wg.Wait()
}

// biasAddKernel broadcasts bias[c] onto every row: buf[r,c] += bias[c].
func biasAddKernel(buf, bias []float32, rows, cols, workers int) {
	parallelRows(rows, workers, func(start, end int) {
		for r := start; r < end; r++ {
			simd.VecAdd(buf[r*cols:(r+1)*cols], bias)
		}
	})
}

// geluForwardKernel writes dst = gelu(src), stashing the pre-activation
// values into aux first so the corresponding gradient call can reuse them.
// dst may alias src.
func geluForwardKernel(dst, src, aux []float32, rows, cols, workers int) {
	parallelRows(rows, workers, func(start, end int) {
		for i := start * cols; i < end*cols; i++ {
			x := src[i]
			if aux != nil {
				aux[i] = x
			}
			dst[i] = gelu(x)
		}
	})
}

// geluGradKernel combines the stored pre-activation with the upstream
// gradient: dst = geluGrad(pre) * upstream. dst may alias upstream.
func geluGradKernel(dst, pre, upstream []float32, rows, cols, workers int) {
	parallelRows(rows, workers, func(start, end int) {
		for i := start * cols; i < end*cols; i++ {
			dst[i] = geluGrad(pre[i]) * upstream[i]
		}
	})
}

// atomicAddFloat32 accumulates v into dst[i] with a CAS loop, so concurrent
// waves can target the same output location.
func atomicAddFloat32(dst []float32, i int, v float32) {
	addr := (*uint32)(unsafe.Pointer(&dst[i]))
	for {
		old := atomic.LoadUint32(addr)
		upd := math.Float32bits(math.Float32frombits(old) + v)
		if atomic.CompareAndSwapUint32(addr, old, upd) {
			return
		}
	}
}

// colSumKernel reduces src (rows x cols) along the row axis: dst[c] = sum over
// r of src[r,c]. Rows are processed in waves of blockRows; each wave
// accumulates a local fp32 partial and folds it into dst atomically, so the
// result is independent of wave count and ordering. dst is zeroed first
// because several waves write to the same location.
func colSumKernel(dst, src []float32, rows, cols, blockRows, workers int) {
	for c := range dst[:cols] {
		dst[c] = 0
	}
	if blockRows <= 0 {
		blockRows = (rows + workers - 1) / workers
		if blockRows == 0 {
			blockRows = 1
		}
	}
	waves := (rows + blockRows - 1) / blockRows

	var wg sync.WaitGroup
	sem := make(chan struct{}, workers)
	for w := 0; w < waves; w++ {
		start := w * blockRows
		end := start + blockRows
		if end > rows {
			end = rows
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(s, e int) {
			defer wg.Done()
			defer func() { <-sem }()
			partial := make([]float32, cols)
			for r := s; r < e; r++ {
				simd.VecAdd(partial, src[r*cols:(r+1)*cols])
			}
			for c, v := range partial {
				atomicAddFloat32(dst, c, v)
			}
		}(start, end)
	}
	wg.Wait()
}
