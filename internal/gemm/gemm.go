// Package gemm implements the fused matrix-multiply + epilogue engine:
// precision and scale resolution for narrow formats, capability-based
// dispatch between a native fused path and an emulated path, and the
// elementwise kernels the emulated path is built from.
//
// Every call is stateless: tensors are borrowed, descriptors are call-scoped,
// and no state survives a return. All device work for one call runs on the
// caller's stream in program order.
package gemm

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/chaofanll/TransformerEngine/internal/stream"
)

var tracer = otel.Tracer("te-gemm")

// Params is the per-call multiply operation descriptor. It is owned by the
// caller for the duration of one call and never persisted.
type Params struct {
	TransA bool
	TransB bool

	// Grad selects gradient-mode epilogues. By convention the second
	// multiplicand then carries the upstream gradient.
	Grad bool

	// Accumulate selects beta=1: the multiply adds into D instead of
	// overwriting it. Serializing against D's other writers is the
	// caller's responsibility.
	Accumulate bool

	// UseSplitAccumulator restricts the heuristic to split-accumulation
	// algorithms.
	UseSplitAccumulator bool

	// MathSMCount caps the compute units one call may occupy. 0 = no cap.
	MathSMCount int

	// Workspace is caller-owned scratch the native heuristic may require.
	Workspace *Tensor
}

// Engine dispatches multiply calls. Construct once, share freely: it holds
// no per-call state.
type Engine struct {
	backend Backend
	debug   DebugSink
}

// Option configures an Engine.
type Option func(*Engine)

// WithBackend overrides the default fused backend.
func WithBackend(b Backend) Option {
	return func(e *Engine) { e.backend = b }
}

// WithDebugSink overrides the environment-gated debug sink.
func WithDebugSink(d DebugSink) Option {
	return func(e *Engine) { e.debug = d }
}

// New returns an engine backed by the native-fusion-capable backend unless
// overridden.
func New(opts ...Option) *Engine {
	e := &Engine{
		backend: NewFusedBackend(),
		debug:   envDebugSink{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Backend returns the engine's backend.
func (e *Engine) Backend() Backend { return e.backend }

// MultiplyWithEpilogue computes D = op(A) * op(B) with the epilogue implied
// by the optional tensors: a bias tensor requests bias add (forward) or a
// bias-gradient reduction (gradient mode); a pre-activation buffer requests
// the activation (forward, stashing pre-activation values into it) or the
// activation gradient (reading them back). Absence is signaled by a nil
// handle or nil data pointer.
//
// The call either fails synchronously before any kernel is enqueued, or
// enqueues all of its work on st and returns; results are defined once the
// stream synchronizes.
func (e *Engine) MultiplyWithEpilogue(ctx context.Context, st *stream.Stream, A, B, D, bias, aux *Tensor, p Params) error {
	start := time.Now()
	_, span := tracer.Start(ctx, "MultiplyWithEpilogue")
	defer span.End()

	verbose := e.debug.Enabled() // one lookup per call

	pl, err := e.resolve(st, A, B, D, bias, aux, p)
	if err != nil {
		preconditionFailures.WithLabelValues(conditionLabel(err)).Inc()
		span.RecordError(err)
		return err
	}

	if verbose {
		e.debug.Dump("gemm dispatch",
			"backend", e.backend.Name(),
			"path", pl.path.String(),
			"epilogue", pl.epi.kind().String(),
			"m", pl.m, "n", pl.n, "k", pl.k,
			"type_a", pl.tagA, "type_b", pl.tagB, "type_d", pl.tagD,
			"trans_a", p.TransA, "trans_b", p.TransB,
			"accumulate", p.Accumulate,
			"use_narrow", pl.useNarrow,
			"alpha", pl.alpha,
			"scratch", pl.scratch,
		)
	}
	span.SetAttributes(
		attribute.Int("gemm.m", pl.m),
		attribute.Int("gemm.n", pl.n),
		attribute.Int("gemm.k", pl.k),
		attribute.String("gemm.path", pl.path.String()),
		attribute.String("gemm.epilogue", pl.epi.kind().String()),
	)

	switch pl.path {
	case PathNative:
		ws := 0
		if p.Workspace.HasData() {
			ws = p.Workspace.SizeBytes()
		}
		pl.algo, err = pickAlgorithm(pl.m, pl.n, pl.k, ws, p.UseSplitAccumulator)
		if err != nil {
			heuristicFailures.Inc()
			span.RecordError(err)
			return err
		}
		if err := e.backend.MatmulFused(st, pl, A, B, D, bias, aux, p); err != nil {
			span.RecordError(err)
			return err
		}
	case PathEmulated:
		e.runEmulated(st, pl, A, B, D, bias, aux, p)
	}

	multipliesTotal.WithLabelValues(pl.path.String()).Inc()
	multiplyDuration.WithLabelValues(pl.path.String()).Observe(time.Since(start).Seconds())
	return nil
}

func conditionLabel(err error) string {
	switch {
	case errors.Is(err, ErrUnsupportedType):
		return "unsupported_type"
	case errors.Is(err, ErrMissingScaleInv):
		return "missing_scale_inv"
	case errors.Is(err, ErrMissingScale):
		return "missing_scale"
	case errors.Is(err, ErrAccumulateNarrowOutput):
		return "accumulate_narrow_output"
	case errors.Is(err, ErrBothTransposed):
		return "both_transposed"
	case errors.Is(err, ErrShapeMismatch):
		return "shape_mismatch"
	default:
		return "other"
	}
}
