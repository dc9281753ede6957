package main

import (
	"context"
	"io"
	"math"
	"sync"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"golang.org/x/sync/semaphore"

	"github.com/chaofanll/TransformerEngine/internal/dtype"
	"github.com/chaofanll/TransformerEngine/internal/gemm"
	"github.com/chaofanll/TransformerEngine/internal/stream"
)

// Result is the outcome of one benchmark case: timing over all iterations
// and statistics over the final dequantized output.
type Result struct {
	Case    Case
	Elapsed time.Duration
	GFlops  float64
	Stats   ActivationStats
	Output  []float32
}

// ActivationStats summarizes a result buffer. NaN or Inf counts above zero
// on a forward case usually mean the scale factors are wrong for the value
// distribution.
type ActivationStats struct {
	NaN    int
	Inf    int
	AbsMax float32
}

func collectStats(vals []float32) ActivationStats {
	var s ActivationStats
	for _, v := range vals {
		f := float64(v)
		switch {
		case math.IsNaN(f):
			s.NaN++
		case math.IsInf(f, 0):
			s.Inf++
		default:
			if a := float32(math.Abs(f)); a > s.AbsMax {
				s.AbsMax = a
			}
		}
	}
	return s
}

// runCases executes every case iters times, each case on its own stream,
// with at most maxConcurrent cases in flight. Results keep the input order.
func runCases(ctx context.Context, eng *gemm.Engine, cases []Case, iters, maxConcurrent int) ([]Result, error) {
	sem := semaphore.NewWeighted(int64(maxConcurrent))
	results := make([]Result, len(cases))
	errs := make([]error, len(cases))

	var wg sync.WaitGroup
	for i, c := range cases {
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		wg.Add(1)
		go func(i int, c Case) {
			defer wg.Done()
			defer sem.Release(1)
			results[i], errs[i] = runCase(ctx, eng, c, iters)
		}(i, c)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

func runCase(ctx context.Context, eng *gemm.Engine, c Case, iters int) (Result, error) {
	if err := c.validate(); err != nil {
		return Result{}, err
	}
	ta, _ := dtype.Parse(c.DTypeA)
	tb, _ := dtype.Parse(c.DTypeB)
	td, _ := dtype.Parse(c.DTypeD)

	st := stream.New()
	defer st.Close()

	ar, ac := c.M, c.K
	if c.TransA {
		ar, ac = c.K, c.M
	}
	br, bc := c.K, c.N
	if c.TransB {
		br, bc = c.N, c.K
	}
	A := buildOperand(ta, ar, ac, 1)
	B := buildOperand(tb, br, bc, 2)
	D := buildOperand(td, c.M, c.N, 0)

	var bias, aux *gemm.Tensor
	if c.Bias {
		bias = buildOperand(dtype.Float32, 1, c.N, 3)
	}
	if c.Activation {
		aux = gemm.NewTensor(dtype.Float32, c.M, c.N)
	}

	p := gemm.Params{
		TransA:      c.TransA,
		TransB:      c.TransB,
		Grad:        c.Grad,
		Accumulate:  c.Accumulate,
		MathSMCount: c.MathSMCount,
		Workspace:   gemm.NewTensor(dtype.Float32, 128, 128),
	}

	start := time.Now()
	for it := 0; it < iters; it++ {
		if err := eng.MultiplyWithEpilogue(ctx, st, A, B, D, bias, aux, p); err != nil {
			return Result{}, err
		}
	}
	st.Synchronize()
	elapsed := time.Since(start)

	out := D.Decode()
	flops := 2 * float64(c.M) * float64(c.N) * float64(c.K) * float64(iters)
	return Result{
		Case:    c,
		Elapsed: elapsed,
		GFlops:  flops / elapsed.Seconds() / 1e9,
		Stats:   collectStats(out),
		Output:  out,
	}, nil
}

// buildOperand fills a tensor with a deterministic low-magnitude pattern.
// Narrow tensors get a power-of-two scale so quantization stays exact on
// grid points.
func buildOperand(dt dtype.DType, rows, cols int, seed float64) *gemm.Tensor {
	vals := make([]float32, rows*cols)
	for i := range vals {
		vals[i] = float32(math.Sin(seed + float64(i)*0.7))
	}
	t := gemm.NewTensor(dt, rows, cols)
	if dt.IsNarrow() {
		scale := float32(64)
		inv := 1 / scale
		t.Scale = &scale
		t.ScaleInv = &inv
	}
	if seed != 0 {
		t.Encode(vals)
	}
	return t
}

// writeResultStream writes an m x n result matrix as an Arrow IPC stream:
// one row per record row, the values as a fixed-size float32 list.
func writeResultStream(w io.Writer, name string, vals []float32, m, n int) error {
	pool := memory.NewGoAllocator()

	schema := arrow.NewSchema(
		[]arrow.Field{
			{Name: "case", Type: arrow.BinaryTypes.String},
			{Name: "row", Type: arrow.PrimitiveTypes.Int32},
			{Name: "values", Type: arrow.FixedSizeListOf(int32(n), arrow.PrimitiveTypes.Float32)},
		},
		nil,
	)

	caseBuilder := array.NewStringBuilder(pool)
	defer caseBuilder.Release()
	rowBuilder := array.NewInt32Builder(pool)
	defer rowBuilder.Release()
	valsBuilder := array.NewFixedSizeListBuilder(pool, int32(n), arrow.PrimitiveTypes.Float32)
	defer valsBuilder.Release()
	floatBuilder := valsBuilder.ValueBuilder().(*array.Float32Builder)

	for r := 0; r < m; r++ {
		caseBuilder.Append(name)
		rowBuilder.Append(int32(r))
		valsBuilder.Append(true)
		floatBuilder.AppendValues(vals[r*n:(r+1)*n], nil)
	}

	caseArr := caseBuilder.NewArray()
	defer caseArr.Release()
	rowArr := rowBuilder.NewArray()
	defer rowArr.Release()
	valsArr := valsBuilder.NewArray()
	defer valsArr.Release()

	rec := array.NewRecordBatch(schema, []arrow.Array{caseArr, rowArr, valsArr}, int64(m))
	defer rec.Release()

	writer := ipc.NewWriter(w, ipc.WithSchema(rec.Schema()))
	if err := writer.Write(rec); err != nil {
		_ = writer.Close()
		return err
	}
	return writer.Close()
}
