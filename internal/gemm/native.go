package gemm

import (
	"sync"

	"github.com/chaofanll/TransformerEngine/internal/dtype"
	"github.com/chaofanll/TransformerEngine/internal/simd"
	"github.com/chaofanll/TransformerEngine/internal/stream"
)

// MatmulFused runs the multiply and the planned epilogue as one kernel
// enqueued on the stream. Operand scales for narrow inputs are read inside
// the kernel (device-side), so no host synchronization happens on this path.
// Every staging buffer is call-scoped: acquired when the kernel runs and
// returned before it finishes, on success and error paths alike.
func (bk *FusedBackend) MatmulFused(st *stream.Stream, pl *plan, A, B, D, bias, aux *Tensor, p Params) error {
	st.Enqueue(func() {
		m, n, k := pl.m, pl.n, pl.k

		opA, aPooled := gatherOperand(A, p.TransA, false)
		opBT, bPooled := gatherOperand(B, p.TransB, true)
		defer func() {
			if aPooled {
				scratchPool.put(opA)
			}
			if bPooled {
				scratchPool.put(opBT)
			}
		}()

		alpha := float32(1)
		if pl.useNarrow {
			alpha = *A.ScaleInv * *B.ScaleInv
		}

		// Write fp32 results straight into D when possible; otherwise stage
		// and quantize once at the end.
		dOut := opOutput(D)
		if dOut == nil {
			dOut = scratchPool.get(m * n)
			defer scratchPool.put(dOut)
		}
		var dPrev []float32
		if p.Accumulate && D.DType() != dtype.Float32 {
			dPrev = scratchPool.get(m * n)
			defer scratchPool.put(dPrev)
			D.decodeInto(dPrev, 1)
		}

		var biasF32 []float32
		if pl.epi.bias && !pl.epi.grad {
			biasF32 = scratchPool.get(n)
			defer scratchPool.put(biasF32)
			bias.decodeInto(biasF32, 1)
		}
		var auxF32 []float32
		if pl.epi.act {
			auxF32 = aux.Float32()
		}
		var dbias []float32
		if pl.epi.bias && pl.epi.grad {
			dbias = scratchPool.get(n)
			defer scratchPool.put(dbias)
			for i := range dbias {
				dbias[i] = 0
			}
		}

		kind := pl.epi.kind()
		tile := pl.algo.tile

		// Tile the output and fan tiles out across the compute-unit budget.
		type tileJob struct{ i0, j0 int }
		jobs := make([]tileJob, 0, ((m+tile-1)/tile)*((n+tile-1)/tile))
		for i0 := 0; i0 < m; i0 += tile {
			for j0 := 0; j0 < n; j0 += tile {
				jobs = append(jobs, tileJob{i0, j0})
			}
		}

		var wg sync.WaitGroup
		sem := make(chan struct{}, pl.workers)
		for _, job := range jobs {
			wg.Add(1)
			sem <- struct{}{}
			go func(i0, j0 int) {
				defer wg.Done()
				defer func() { <-sem }()
				iEnd := min(i0+tile, m)
				jEnd := min(j0+tile, n)
				for i := i0; i < iEnd; i++ {
					rowA := opA[i*k : (i+1)*k]
					for j := j0; j < jEnd; j++ {
						idx := i*n + j
						v := alpha * simd.DotProduct(rowA, opBT[j*k:(j+1)*k])
						if p.Accumulate {
							if dPrev != nil {
								v += dPrev[idx]
							} else {
								v += dOut[idx]
							}
						}
						switch kind {
						case epilogueBias:
							v += biasF32[j]
						case epilogueGeluAux:
							auxF32[idx] = v
							v = gelu(v)
						case epilogueGeluAuxBias:
							v += biasF32[j]
							auxF32[idx] = v
							v = gelu(v)
						case epilogueDGelu:
							v = geluGrad(auxF32[idx]) * v
						case epilogueDGeluBGrad:
							v = geluGrad(auxF32[idx]) * v
							atomicAddFloat32(dbias, j, v)
						}
						dOut[idx] = v
					}
				}
			}(job.i0, job.j0)
		}
		wg.Wait()

		// The bias gradient without an activation is reduced from the second
		// operand, not from D.
		if kind == epilogueBGradB {
			bScale := float32(1)
			if B.DType().IsNarrow() {
				bScale = *B.ScaleInv
			}
			parallelRows(n, pl.workers, func(start, end int) {
				for j := start; j < end; j++ {
					var sum float32
					for _, v := range opBT[j*k : (j+1)*k] {
						sum += v
					}
					dbias[j] = bScale * sum
				}
			})
		}

		if dbias != nil {
			bias.encodeFrom(dbias)
		}
		if opOutput(D) == nil {
			D.encodeFrom(dOut)
		}
	})
	return nil
}

// opOutput returns D's fp32 storage when results can be written in place,
// nil when the output must be staged and quantized.
func opOutput(D *Tensor) []float32 {
	if D.DType() == dtype.Float32 {
		return D.Float32()
	}
	return nil
}

// gatherOperand produces a contiguous fp32 view of op(t): row-major m x k for
// the first operand, or the transpose n x k of op(B) so dot products walk
// contiguous memory. Narrow values are decoded raw; their scales are applied
// through alpha. The bool reports whether the slice came from the pool.
func gatherOperand(t *Tensor, trans, second bool) ([]float32, bool) {
	rows, cols := t.Dims()

	// The stored layout already matches when a first operand is untransposed
	// or a second operand is transposed.
	direct := trans == second
	if direct && t.DType() == dtype.Float32 {
		return t.Float32(), false
	}

	flat := scratchPool.get(rows * cols)
	t.decodeInto(flat, 1)
	if direct {
		return flat, true
	}
	out := scratchPool.get(rows * cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			out[c*rows+r] = flat[r*cols+c]
		}
	}
	scratchPool.put(flat)
	return out, true
}
