package dtype

import (
	"math"

	"github.com/x448/float16"
)

// FP16 conversions go through the x448/float16 package, which implements
// IEEE 754 binary16 with round-to-nearest-even.

// Float32ToFloat16 converts a float32 to its binary16 bit pattern.
func Float32ToFloat16(f float32) uint16 {
	return float16.Fromfloat32(f).Bits()
}

// Float16ToFloat32 converts a binary16 bit pattern to float32.
func Float16ToFloat32(h uint16) float32 {
	return float16.Frombits(h).Float32()
}

// Float32ToBFloat16 converts a float32 to bfloat16 (upper 16 bits, with
// round-to-nearest on the dropped mantissa bits).
func Float32ToBFloat16(f float32) uint16 {
	bits := math.Float32bits(f)
	if bits&0x7FFFFFFF > 0x7F800000 {
		// NaN: keep it a NaN after truncation
		return uint16(bits>>16) | 0x0040
	}
	// Round to nearest even on bit 16
	round := uint32(0x7FFF + ((bits >> 16) & 1))
	return uint16((bits + round) >> 16)
}

// BFloat16ToFloat32 converts a bfloat16 bit pattern to float32.
func BFloat16ToFloat32(b uint16) float32 {
	return math.Float32frombits(uint32(b) << 16)
}

// fp8Spec captures the layout of an 8-bit float format.
type fp8Spec struct {
	manBits uint
	expBias int
	minExp  int     // smallest normal (unbiased) exponent
	maxExp  int     // largest normal (unbiased) exponent
	maxVal  float64 // largest finite magnitude, used for saturation
}

var (
	specE4M3 = fp8Spec{manBits: 3, expBias: 7, minExp: -6, maxExp: 8, maxVal: 448}
	specE5M2 = fp8Spec{manBits: 2, expBias: 15, minExp: -14, maxExp: 15, maxVal: 57344}
)

// Float32ToFP8 converts a float32 to an 8-bit float of the given format.
// Out-of-range magnitudes saturate to the largest finite value rather than
// producing infinity, matching how training frameworks quantize.
func Float32ToFP8(f float32, dt DType) uint8 {
	spec := specE4M3
	if dt == Float8E5M2 {
		spec = specE5M2
	}

	var sign uint8
	a := float64(f)
	if math.Signbit(a) {
		sign = 0x80
		a = -a
	}
	if math.IsNaN(a) {
		return sign | 0x7F
	}
	if a > spec.maxVal {
		a = spec.maxVal
	}
	if a == 0 {
		return sign
	}

	frac, exp := math.Frexp(a) // a = frac * 2^exp, frac in [0.5, 1)
	e := exp - 1               // unbiased exponent with mantissa in [1, 2)
	manScale := float64(int(1) << spec.manBits)

	if e < spec.minExp {
		// Subnormal: quantize against the smallest subnormal step.
		step := math.Ldexp(1, spec.minExp-int(spec.manBits))
		q := math.RoundToEven(a / step)
		if q == 0 {
			return sign
		}
		if q >= manScale {
			// Rounded up into the smallest normal.
			return sign | uint8(1<<spec.manBits)
		}
		return sign | uint8(q)
	}

	man := math.RoundToEven((frac*2 - 1) * manScale)
	if man >= manScale {
		man = 0
		e++
	}
	biased := e + spec.expBias
	encoded := sign | uint8(biased)<<spec.manBits | uint8(man)
	if e > spec.maxExp || encoded&0x7F == 0x7F {
		// Overflow, or the E4M3 all-ones pattern which is reserved for NaN:
		// saturate to the largest finite encoding.
		return sign | maxFiniteBits(dt)
	}
	return encoded
}

func maxFiniteBits(dt DType) uint8 {
	if dt == Float8E5M2 {
		// exp 30, mantissa 0b11 -> 57344
		return 0x7B
	}
	// exp 15, mantissa 0b110 -> 448 (0x7F is NaN in E4M3)
	return 0x7E
}

// FP8ToFloat32 decodes an 8-bit float of the given format.
func FP8ToFloat32(b uint8, dt DType) float32 {
	spec := specE4M3
	if dt == Float8E5M2 {
		spec = specE5M2
	}

	sign := float64(1)
	if b&0x80 != 0 {
		sign = -1
	}
	manMask := uint8(1<<spec.manBits) - 1
	man := b & manMask
	exp := (b & 0x7F) >> spec.manBits

	if dt == Float8E4M3 && b&0x7F == 0x7F {
		return float32(math.NaN())
	}
	if dt == Float8E5M2 && exp == 0x1F {
		if man == 0 {
			return float32(math.Inf(int(sign)))
		}
		return float32(math.NaN())
	}

	manScale := float64(int(1) << spec.manBits)
	if exp == 0 {
		// Subnormal
		return float32(sign * float64(man) / manScale * math.Ldexp(1, spec.minExp))
	}
	return float32(sign * (1 + float64(man)/manScale) * math.Ldexp(1, int(exp)-spec.expBias))
}

// ToFloat32 decodes one element of the given format from raw bytes.
func ToFloat32(raw []byte, dt DType, i int) float32 {
	switch dt {
	case Float32:
		return math.Float32frombits(uint32(raw[i*4]) | uint32(raw[i*4+1])<<8 |
			uint32(raw[i*4+2])<<16 | uint32(raw[i*4+3])<<24)
	case Float16:
		return Float16ToFloat32(uint16(raw[i*2]) | uint16(raw[i*2+1])<<8)
	case BFloat16:
		return BFloat16ToFloat32(uint16(raw[i*2]) | uint16(raw[i*2+1])<<8)
	default:
		return FP8ToFloat32(raw[i], dt)
	}
}

// EncodeBuffer converts src into dst's storage format, applying scale to each
// value when the format is narrow (q = x*scale). It returns the max magnitude
// of the unscaled inputs so callers can maintain a running amax.
func EncodeBuffer(dst []byte, src []float32, dt DType, scale float32) float32 {
	var amax float32
	switch dt {
	case Float32:
		for i, x := range src {
			bits := math.Float32bits(x)
			dst[i*4] = byte(bits)
			dst[i*4+1] = byte(bits >> 8)
			dst[i*4+2] = byte(bits >> 16)
			dst[i*4+3] = byte(bits >> 24)
			amax = maxAbs(amax, x)
		}
	case Float16:
		for i, x := range src {
			h := Float32ToFloat16(x)
			dst[i*2] = byte(h)
			dst[i*2+1] = byte(h >> 8)
			amax = maxAbs(amax, x)
		}
	case BFloat16:
		for i, x := range src {
			h := Float32ToBFloat16(x)
			dst[i*2] = byte(h)
			dst[i*2+1] = byte(h >> 8)
			amax = maxAbs(amax, x)
		}
	default:
		for i, x := range src {
			dst[i] = Float32ToFP8(x*scale, dt)
			amax = maxAbs(amax, x)
		}
	}
	return amax
}

// DecodeBuffer converts src from the given storage format into float32,
// multiplying by scaleInv when the format is narrow.
func DecodeBuffer(dst []float32, src []byte, dt DType, scaleInv float32) {
	switch dt {
	case Float32:
		for i := range dst {
			dst[i] = ToFloat32(src, Float32, i)
		}
	case Float16:
		for i := range dst {
			dst[i] = Float16ToFloat32(uint16(src[i*2]) | uint16(src[i*2+1])<<8)
		}
	case BFloat16:
		for i := range dst {
			dst[i] = BFloat16ToFloat32(uint16(src[i*2]) | uint16(src[i*2+1])<<8)
		}
	default:
		for i := range dst {
			dst[i] = FP8ToFloat32(src[i], dt) * scaleInv
		}
	}
}

func maxAbs(cur, x float32) float32 {
	if x < 0 {
		x = -x
	}
	if x > cur {
		return x
	}
	return cur
}
