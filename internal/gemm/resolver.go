package gemm

import (
	"fmt"

	"github.com/chaofanll/TransformerEngine/internal/dtype"
	"github.com/chaofanll/TransformerEngine/internal/stream"
)

// nativeType maps an element format to the multiply backend's type tag.
func nativeType(dt dtype.DType) (string, error) {
	switch dt {
	case dtype.Float32:
		return "r_32f", nil
	case dtype.Float16:
		return "r_16f", nil
	case dtype.BFloat16:
		return "r_16bf", nil
	case dtype.Float8E4M3:
		return "r_8f_e4m3", nil
	case dtype.Float8E5M2:
		return "r_8f_e5m2", nil
	default:
		return "", fmt.Errorf("%w: dtype %d", ErrUnsupportedType, dt)
	}
}

// plan is the resolved, validated description of one multiply call. It is
// created at entry, consumed by exactly one executor, and dropped at exit.
type plan struct {
	m, n, k int
	epi     epilogue
	path    Path
	algo    algorithm

	// alpha is the effective multiply scalar. For narrow inputs on a
	// backend without device-side scaling it is resolved on the host by
	// reading back both inverse scales; otherwise it stays 1 and the
	// backend applies the scales itself.
	alpha     float32
	useNarrow bool
	scratch   bool
	workers   int

	tagA, tagB, tagD string
}

// resolve validates every precondition and resolves precision and scale
// handling for one call. All failures here happen before any kernel is
// enqueued on the stream.
func (e *Engine) resolve(st *stream.Stream, A, B, D, bias, aux *Tensor, p Params) (*plan, error) {
	if !A.HasData() || !B.HasData() || !D.HasData() {
		return nil, fmt.Errorf("%w: nil operand tensor", ErrShapeMismatch)
	}

	tagA, err := nativeType(A.DType())
	if err != nil {
		return nil, err
	}
	tagB, err := nativeType(B.DType())
	if err != nil {
		return nil, err
	}
	tagD, err := nativeType(D.DType())
	if err != nil {
		return nil, err
	}

	if p.TransA && p.TransB {
		return nil, ErrBothTransposed
	}

	ar, ac := A.Dims()
	m, k := ar, ac
	if p.TransA {
		m, k = ac, ar
	}
	br, bc := B.Dims()
	kb, n := br, bc
	if p.TransB {
		kb, n = bc, br
	}
	if k != kb {
		return nil, fmt.Errorf("%w: op(A) is %dx%d but op(B) is %dx%d", ErrShapeMismatch, m, k, kb, n)
	}
	if m == 0 || n == 0 || k == 0 {
		return nil, fmt.Errorf("%w: empty dimension m=%d n=%d k=%d", ErrShapeMismatch, m, n, k)
	}
	if dr, dc := D.Dims(); dr != m || dc != n {
		return nil, fmt.Errorf("%w: D is %dx%d, expected %dx%d", ErrShapeMismatch, dr, dc, m, n)
	}

	epi := epilogue{bias: bias.HasData(), act: aux.HasData(), grad: p.Grad}

	if epi.act {
		if aux.DType() != dtype.Float32 {
			return nil, fmt.Errorf("%w: pre-activation buffer must be fp32, got %s", ErrUnsupportedType, aux.DType())
		}
		if xr, xc := aux.Dims(); xr != m || xc != n {
			return nil, fmt.Errorf("%w: pre-activation buffer is %dx%d, expected %dx%d", ErrShapeMismatch, xr, xc, m, n)
		}
	}
	if epi.bias {
		if bias.NumElems() != n {
			return nil, fmt.Errorf("%w: bias has %d elements, expected %d", ErrShapeMismatch, bias.NumElems(), n)
		}
		if !p.Grad && bias.DType().IsNarrow() {
			return nil, fmt.Errorf("%w: narrow bias input", ErrUnsupportedType)
		}
		// In gradient mode the bias tensor is an output; a narrow one needs
		// a scale to encode through, same as a narrow D.
		if p.Grad && bias.DType().IsNarrow() && bias.Scale == nil {
			return nil, ErrMissingScale
		}
	}

	useNarrow := A.DType().IsNarrow() || B.DType().IsNarrow()
	if useNarrow && (A.ScaleInv == nil || B.ScaleInv == nil) {
		return nil, ErrMissingScaleInv
	}
	if D.DType().IsNarrow() {
		if D.Scale == nil {
			return nil, ErrMissingScale
		}
		if p.Accumulate {
			return nil, ErrAccumulateNarrowOutput
		}
	}

	caps := e.backend.Capability()
	alpha := float32(1)
	if useNarrow && !caps.DeviceScaling {
		// The backend cannot apply the scales during the multiply, so the
		// effective alpha is the product of both inverse scales. Reading
		// them means a blocking device-to-host synchronization: the calling
		// thread stalls here until the device writes are visible.
		st.Synchronize()
		alpha = *A.ScaleInv * *B.ScaleInv
	}

	return &plan{
		m: m, n: n, k: k,
		epi:       epi,
		path:      classify(caps, D.DType(), epi),
		alpha:     alpha,
		useNarrow: useNarrow,
		scratch:   scratchRequired(D.DType(), epi),
		workers:   effectiveWorkers(p.MathSMCount),
		tagA:      tagA, tagB: tagB, tagD: tagD,
	}, nil
}
