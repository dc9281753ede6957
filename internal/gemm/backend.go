package gemm

import (
	"fmt"
	"runtime"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/chaofanll/TransformerEngine/internal/stream"
)

// Backend is the polymorphic capability object behind dispatch. Two variants
// exist: a fused backend that runs multiply and epilogue as a single kernel,
// and a legacy backend that only offers the bare multiply and leaves the
// epilogue to the emulated executor.
type Backend interface {
	Name() string
	Capability() Capability

	// MatmulFused enqueues the multiply plus the planned epilogue as one
	// kernel on the stream. Only called when classify chose PathNative.
	MatmulFused(st *stream.Stream, pl *plan, A, B, D, bias, aux *Tensor, p Params) error

	// Matmul enqueues the bare multiply dst = alpha*op(a)*op(b) + beta*dst
	// over fp32 buffers. a and b are stored row-major with their pre-op
	// dimensions; the emulated executor owns all staging around this.
	Matmul(st *stream.Stream, transA, transB bool, m, n, k int, alpha float32, a, b []float32, beta float32, dst []float32)
}

// ensure interface compliance
var _ Backend = (*FusedBackend)(nil)
var _ Backend = (*LegacyBackend)(nil)

// blasGemm is the shared bare multiply. It routes through gonum's blas32
// interface, so a cgo build picks up whatever system BLAS netlib registered.
func blasGemm(transA, transB bool, m, n, k int, alpha float32, a, b []float32, beta float32, dst []float32) {
	tA, tB := blas.NoTrans, blas.NoTrans
	aRows, aCols := m, k
	if transA {
		tA = blas.Trans
		aRows, aCols = k, m
	}
	bRows, bCols := k, n
	if transB {
		tB = blas.Trans
		bRows, bCols = n, k
	}
	blas32.Gemm(tA, tB, alpha,
		blas32.General{Rows: aRows, Cols: aCols, Stride: aCols, Data: a},
		blas32.General{Rows: bRows, Cols: bCols, Stride: bCols, Data: b},
		beta,
		blas32.General{Rows: m, Cols: n, Stride: n, Data: dst})
}

// effectiveWorkers caps kernel parallelism by the caller's compute-unit
// budget, defaulting to all CPUs.
func effectiveWorkers(mathSMCount int) int {
	w := runtime.NumCPU()
	if mathSMCount > 0 && mathSMCount < w {
		w = mathSMCount
	}
	return w
}

// FusedBackend executes multiply and epilogue in a single enqueued kernel,
// applies narrow-format scales on the device side, and can quantize narrow
// outputs inside the fused kernel.
type FusedBackend struct{}

func NewFusedBackend() *FusedBackend { return &FusedBackend{} }

func (b *FusedBackend) Name() string { return "fused" }

func (b *FusedBackend) Capability() Capability {
	return Capability{FusedEpilogue: true, NarrowFusedOutput: true, DeviceScaling: true}
}

func (b *FusedBackend) Matmul(st *stream.Stream, transA, transB bool, m, n, k int, alpha float32, a, bb []float32, beta float32, dst []float32) {
	st.Enqueue(func() {
		blasGemm(transA, transB, m, n, k, alpha, a, bb, beta, dst)
	})
}

// LegacyBackend offers only the bare multiply. Everything with an epilogue,
// and every narrow-precision output, is routed to the emulated executor; the
// effective alpha for narrow inputs is resolved on the host by the precision
// resolver before any work is enqueued.
type LegacyBackend struct{}

func NewLegacyBackend() *LegacyBackend { return &LegacyBackend{} }

func (b *LegacyBackend) Name() string { return "legacy" }

func (b *LegacyBackend) Capability() Capability { return Capability{} }

func (b *LegacyBackend) MatmulFused(st *stream.Stream, pl *plan, A, B, D, bias, aux *Tensor, p Params) error {
	return fmt.Errorf("%w: legacy backend has no fused epilogue", ErrUnsupportedType)
}

func (b *LegacyBackend) Matmul(st *stream.Stream, transA, transB bool, m, n, k int, alpha float32, a, bb []float32, beta float32, dst []float32) {
	st.Enqueue(func() {
		blasGemm(transA, transB, m, n, k, alpha, a, bb, beta, dst)
	})
}
