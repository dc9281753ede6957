package gemm

import "errors"

// Every failure in this package is synchronous and fatal to the call in
// flight: precondition violations are detected before any work is enqueued
// on the stream, and heuristic exhaustion aborts dispatch. Nothing is
// retried or downgraded.
var (
	// ErrUnsupportedType reports an element format the multiply backend has
	// no native type tag for.
	ErrUnsupportedType = errors.New("unsupported element format")

	// ErrMissingScaleInv reports a narrow-format operand without an inverse
	// scale. Narrow inputs are meaningless without one.
	ErrMissingScaleInv = errors.New("narrow-format input requires inverse scale")

	// ErrMissingScale reports a narrow-format output without a quantization
	// scale to encode through.
	ErrMissingScale = errors.New("narrow-format output requires scale")

	// ErrAccumulateNarrowOutput reports accumulate=true with a narrow
	// output, which cannot represent the read-modify-write in fp32.
	ErrAccumulateNarrowOutput = errors.New("accumulation unsupported for narrow output")

	// ErrBothTransposed reports the TT layout, which no backend supports.
	ErrBothTransposed = errors.New("transposing both operands is not supported")

	// ErrShapeMismatch reports non-conformable operand or epilogue shapes.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrNoAlgorithm reports that the heuristic search returned zero usable
	// algorithms for the requested shapes and workspace.
	ErrNoAlgorithm = errors.New("no suitable algorithm")
)
