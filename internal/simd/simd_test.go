package simd

import (
	"math"
	"testing"
)

func TestDotProduct(t *testing.T) {
	a := []float32{1, 2, 3, 4, 5, 6, 7}
	b := []float32{7, 6, 5, 4, 3, 2, 1}

	var want float32
	for i := range a {
		want += a[i] * b[i]
	}

	got := DotProduct(a, b)
	if math.Abs(float64(got-want)) > 1e-6 {
		t.Errorf("DotProduct = %v, want %v", got, want)
	}
}

func TestVecAdd(t *testing.T) {
	dst := []float32{1, 2, 3, 4, 5}
	src := []float32{10, 20, 30, 40, 50}
	VecAdd(dst, src)

	want := []float32{11, 22, 33, 44, 55}
	for i := range dst {
		if dst[i] != want[i] {
			t.Errorf("dst[%d] = %v, want %v", i, dst[i], want[i])
		}
	}
}

func TestVecAddRemainder(t *testing.T) {
	// Length not divisible by the unroll factor
	dst := make([]float32, 9)
	src := make([]float32, 9)
	for i := range src {
		src[i] = float32(i)
	}
	VecAdd(dst, src)
	for i := range dst {
		if dst[i] != float32(i) {
			t.Errorf("dst[%d] = %v, want %v", i, dst[i], float32(i))
		}
	}
}

func BenchmarkDotProduct(b *testing.B) {
	x := make([]float32, 4096)
	y := make([]float32, 4096)
	for i := range x {
		x[i] = float32(i) * 0.001
		y[i] = float32(4096-i) * 0.001
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = DotProduct(x, y)
	}
}
