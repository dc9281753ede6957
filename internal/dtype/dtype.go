// Package dtype defines the element formats the GEMM engine can consume and
// produce, and the conversions between them and float32, which is the
// accumulation precision everywhere in the engine.
package dtype

// DType identifies the storage format of a tensor's elements.
type DType uint8

const (
	Float32 DType = iota
	Float16
	BFloat16
	Float8E4M3
	Float8E5M2
)

// Size returns the byte size of one element.
func (d DType) Size() int {
	switch d {
	case Float32:
		return 4
	case Float16, BFloat16:
		return 2
	case Float8E4M3, Float8E5M2:
		return 1
	default:
		return 4
	}
}

// IsNarrow reports whether the format is an 8-bit float. Narrow tensors are
// only meaningful together with a per-tensor scale factor.
func (d DType) IsNarrow() bool {
	return d == Float8E4M3 || d == Float8E5M2
}

func (d DType) String() string {
	switch d {
	case Float32:
		return "fp32"
	case Float16:
		return "fp16"
	case BFloat16:
		return "bf16"
	case Float8E4M3:
		return "fp8e4m3"
	case Float8E5M2:
		return "fp8e5m2"
	default:
		return "unknown"
	}
}

// Parse maps a precision name (as accepted on command lines) to a DType.
func Parse(s string) (DType, bool) {
	switch s {
	case "fp32", "float32":
		return Float32, true
	case "fp16", "float16":
		return Float16, true
	case "bf16", "bfloat16":
		return BFloat16, true
	case "fp8", "fp8e4m3":
		return Float8E4M3, true
	case "fp8e5m2":
		return Float8E5M2, true
	default:
		return Float32, false
	}
}
