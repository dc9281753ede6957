package gemm

import (
	"github.com/chaofanll/TransformerEngine/internal/dtype"
)

// Tensor is a borrowed two-dimensional view over caller-owned storage. The
// engine never takes ownership: handles are consumed within a single call and
// nothing persists afterwards.
//
// Float32 tensors view the caller's []float32 directly, so in-place results
// are visible to the caller without a copy. Every other format views raw
// bytes and goes through one decode/encode per kernel launch (the typed
// buffer view is picked once per launch, never per element).
//
// Narrow (8-bit float) tensors additionally carry device-resident scale
// scalars: ScaleInv to dequantize reads, Scale to quantize writes, and an
// optional running max-magnitude Amax updated on writes. For a narrow input
// ScaleInv must be non-nil; that is a precondition, not a recoverable case.
type Tensor struct {
	dt   dtype.DType
	rows int
	cols int

	f32 []float32 // backing store when dt == Float32
	raw []byte    // backing store otherwise

	Scale    *float32
	ScaleInv *float32
	Amax     *float32
}

// NewFloat32 wraps a caller-owned float32 buffer.
func NewFloat32(vals []float32, rows, cols int) *Tensor {
	if len(vals) != rows*cols {
		panic("gemm: tensor data length does not match dimensions")
	}
	return &Tensor{dt: dtype.Float32, rows: rows, cols: cols, f32: vals}
}

// Wrap wraps caller-owned raw bytes holding elements of the given format.
func Wrap(raw []byte, dt dtype.DType, rows, cols int) *Tensor {
	if dt == dtype.Float32 {
		panic("gemm: use NewFloat32 for fp32 tensors")
	}
	if len(raw) != rows*cols*dt.Size() {
		panic("gemm: tensor byte length does not match dimensions")
	}
	return &Tensor{dt: dt, rows: rows, cols: cols, raw: raw}
}

// NewTensor allocates backing storage for a rows x cols tensor of the given
// format.
func NewTensor(dt dtype.DType, rows, cols int) *Tensor {
	if dt == dtype.Float32 {
		return NewFloat32(make([]float32, rows*cols), rows, cols)
	}
	return Wrap(make([]byte, rows*cols*dt.Size()), dt, rows, cols)
}

// DType returns the element format.
func (t *Tensor) DType() dtype.DType { return t.dt }

// Dims returns (rows, cols).
func (t *Tensor) Dims() (int, int) { return t.rows, t.cols }

// NumElems returns rows*cols.
func (t *Tensor) NumElems() int { return t.rows * t.cols }

// SizeBytes returns the byte size of the backing storage.
func (t *Tensor) SizeBytes() int { return t.NumElems() * t.dt.Size() }

// HasData reports whether the handle refers to actual storage. Optional
// tensors (bias, auxiliary buffer) signal absence through a nil handle or a
// nil data pointer, not through a separate flag.
func (t *Tensor) HasData() bool {
	return t != nil && (len(t.f32) > 0 || len(t.raw) > 0)
}

// Float32 returns the fp32 backing slice. Only valid for Float32 tensors.
func (t *Tensor) Float32() []float32 {
	if t.dt != dtype.Float32 {
		panic("gemm: Float32 view of a " + t.dt.String() + " tensor")
	}
	return t.f32
}

// Encode quantizes src into the tensor's storage format. Equivalent to what
// the executors do when they write a staged result.
func (t *Tensor) Encode(src []float32) { t.encodeFrom(src) }

// Decode returns the tensor's contents as a fresh dequantized fp32 slice.
func (t *Tensor) Decode() []float32 {
	out := make([]float32, t.NumElems())
	inv := float32(1)
	if t.dt.IsNarrow() && t.ScaleInv != nil {
		inv = *t.ScaleInv
	}
	t.decodeInto(out, inv)
	return out
}

// decodeInto expands the tensor into dst as float32. Narrow values are
// multiplied by scaleInv; pass 1 to read raw quantized magnitudes when the
// scale is applied elsewhere (as the multiply alpha, for example).
func (t *Tensor) decodeInto(dst []float32, scaleInv float32) {
	if t.dt == dtype.Float32 {
		copy(dst, t.f32)
		return
	}
	dtype.DecodeBuffer(dst, t.raw, t.dt, scaleInv)
}

// encodeFrom quantizes src into the tensor's storage format. For narrow
// outputs the tensor's Scale scalar is read at encode time (device-side) and
// Amax, when present, is raised to the max input magnitude.
func (t *Tensor) encodeFrom(src []float32) {
	if t.dt == dtype.Float32 {
		copy(t.f32, src)
		return
	}
	scale := float32(1)
	if t.dt.IsNarrow() && t.Scale != nil {
		scale = *t.Scale
	}
	amax := dtype.EncodeBuffer(t.raw, src, t.dt, scale)
	if t.Amax != nil && amax > *t.Amax {
		*t.Amax = amax
	}
}
