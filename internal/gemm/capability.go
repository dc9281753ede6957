package gemm

import "github.com/chaofanll/TransformerEngine/internal/dtype"

// Capability is what a backend advertises about its fused-epilogue support.
// Dispatch is a pure function of this set, the output precision, and the
// requested epilogue; the executors never probe the backend ad hoc.
type Capability struct {
	// FusedEpilogue: bias/activation can be attached to the multiply itself.
	FusedEpilogue bool
	// NarrowFusedOutput: a fused epilogue may quantize into a narrow output.
	NarrowFusedOutput bool
	// DeviceScaling: per-operand inverse scales are applied during the
	// multiply, so narrow inputs need no host-side alpha resolution.
	DeviceScaling bool
}

// Path selects which executor serves a call.
type Path int

const (
	// PathNative runs the multiply and epilogue as one backend call.
	PathNative Path = iota
	// PathEmulated runs a bare multiply, then hand-written elementwise
	// kernels over an intermediate buffer.
	PathEmulated
)

func (p Path) String() string {
	if p == PathNative {
		return "native"
	}
	return "emulated"
}

// classify decides the execution path. Native is chosen only when the
// backend advertises fused support for the precision combination; a narrow
// output with a non-trivial epilogue never goes native on a backend without
// NarrowFusedOutput.
func classify(c Capability, out dtype.DType, epi epilogue) Path {
	if !c.FusedEpilogue {
		return PathEmulated
	}
	if out.IsNarrow() && !epi.none() && !c.NarrowFusedOutput {
		return PathEmulated
	}
	return PathNative
}

// scratchRequired reports whether the emulated path needs an intermediate
// buffer distinct from D: required whenever an epilogue is requested and the
// output precision differs from the fp32 accumulation precision. Without an
// epilogue the multiply may write into D in place (subject only to the
// storage-format staging the bare multiply itself performs).
func scratchRequired(out dtype.DType, epi epilogue) bool {
	return !epi.none() && out != dtype.Float32
}
