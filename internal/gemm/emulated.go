package gemm

import (
	"github.com/chaofanll/TransformerEngine/internal/dtype"
	"github.com/chaofanll/TransformerEngine/internal/stream"
)

// runEmulated serves calls the backend cannot fuse: a bare multiply into an
// fp32 intermediate, followed by hand-written elementwise kernels that apply
// the epilogue and write the caller's output. Each step is a separate
// enqueue; stream ordering is the only synchronization between them.
//
// Scratch and staging buffers are acquired here (call entry) and handed back
// to the pool by the last enqueued kernel, so nothing escapes the call even
// though the kernels run asynchronously.
func (e *Engine) runEmulated(st *stream.Stream, pl *plan, A, B, D, bias, aux *Tensor, p Params) {
	m, n, k := pl.m, pl.n, pl.k
	var release [][]float32

	// Stage operands to fp32. Narrow inputs are decoded raw; their combined
	// inverse scale was already folded into alpha by the resolver.
	aF32 := stageOperand(st, A, &release)
	bF32 := stageOperand(st, B, &release)

	// The multiply accumulates in fp32: write directly into D when D is
	// fp32, otherwise through scratch.
	dTemp := opOutput(D)
	direct := dTemp != nil
	if !direct {
		dTemp = scratchPool.get(m * n)
		release = append(release, dTemp)
	}

	beta := float32(0)
	if p.Accumulate {
		beta = 1
		if !direct {
			// Narrow outputs cannot accumulate (rejected up front), so this
			// decode is only ever fp16/bf16.
			st.Enqueue(func() { D.decodeInto(dTemp, 1) })
		}
	}

	e.backend.Matmul(st, p.TransA, p.TransB, m, n, k, pl.alpha, aF32, bF32, beta, dTemp)

	workers := pl.workers
	switch pl.epi.kind() {
	case epilogueIdentity:
		// Nothing to apply; only the storage conversion below.

	case epilogueBias:
		biasF32 := stageOperand(st, bias, &release)
		st.Enqueue(func() { biasAddKernel(dTemp, biasF32, m, n, workers) })

	case epilogueBGradB:
		// dTemp holds the upstream gradient here, not a value to transform:
		// reduce it over the broadcast (row) axis, one value per column,
		// staging through fp32 before any downcast into the caller's
		// bias-gradient tensor.
		dbias := scratchPool.get(n)
		release = append(release, dbias)
		st.Enqueue(func() {
			colSumKernel(dbias, dTemp, m, n, 0, workers)
			bias.encodeFrom(dbias)
		})

	case epilogueGeluAux:
		auxF32 := aux.Float32()
		st.Enqueue(func() { geluForwardKernel(dTemp, dTemp, auxF32, m, n, workers) })

	case epilogueDGelu:
		auxF32 := aux.Float32()
		st.Enqueue(func() { geluGradKernel(dTemp, auxF32, dTemp, m, n, workers) })

	case epilogueGeluAuxBias:
		biasF32 := stageOperand(st, bias, &release)
		auxF32 := aux.Float32()
		st.Enqueue(func() {
			biasAddKernel(dTemp, biasF32, m, n, workers)
			geluForwardKernel(dTemp, dTemp, auxF32, m, n, workers)
		})

	case epilogueDGeluBGrad:
		auxF32 := aux.Float32()
		dbias := scratchPool.get(n)
		release = append(release, dbias)
		st.Enqueue(func() {
			geluGradKernel(dTemp, auxF32, dTemp, m, n, workers)
			// The bias gradient is the column reduction of the
			// activation-gradient output, not of the raw upstream gradient.
			colSumKernel(dbias, dTemp, m, n, 0, workers)
			bias.encodeFrom(dbias)
		})
	}

	if !direct {
		st.Enqueue(func() { D.encodeFrom(dTemp) })
	}

	if len(release) > 0 {
		bufs := release
		st.Enqueue(func() {
			for _, b := range bufs {
				scratchPool.put(b)
			}
		})
	}
}

// stageOperand returns an fp32 view of t, enqueueing a decode into pooled
// scratch when t is not already fp32. Narrow values are decoded raw.
func stageOperand(st *stream.Stream, t *Tensor, release *[][]float32) []float32 {
	if t.DType() == dtype.Float32 {
		return t.Float32()
	}
	buf := scratchPool.get(t.NumElems())
	*release = append(*release, buf)
	st.Enqueue(func() { t.decodeInto(buf, 1) })
	return buf
}
