package gemm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chaofanll/TransformerEngine/internal/dtype"
)

func TestTensorHasData(t *testing.T) {
	var nilTensor *Tensor
	require.False(t, nilTensor.HasData())
	require.False(t, (&Tensor{}).HasData())
	require.True(t, NewTensor(dtype.Float32, 2, 2).HasData())
	require.True(t, NewTensor(dtype.Float8E4M3, 2, 2).HasData())
}

func TestTensorEncodeDecodeScaled(t *testing.T) {
	vals := []float32{0.5, -1.25, 2, -0.0625, 3.5, 0}
	scale := float32(16)
	inv := 1 / scale
	tn := NewTensor(dtype.Float8E4M3, 2, 3)
	tn.Scale = &scale
	tn.ScaleInv = &inv
	var amax float32
	tn.Amax = &amax

	tn.encodeFrom(vals)
	require.Equal(t, float32(3.5), amax, "amax tracks the unscaled input magnitude")

	out := make([]float32, 6)
	tn.decodeInto(out, inv)
	for i := range vals {
		// All inputs land exactly on e4m3 grid points at this scale.
		require.Equal(t, vals[i], out[i], "element %d", i)
	}
}

func TestTensorWrapPanics(t *testing.T) {
	require.Panics(t, func() { Wrap(make([]byte, 3), dtype.Float16, 2, 2) })
	require.Panics(t, func() { NewFloat32(make([]float32, 3), 2, 2) })
	require.Panics(t, func() { NewTensor(dtype.Float16, 1, 1).Float32() })
}

func TestNativeTypeTags(t *testing.T) {
	tag, err := nativeType(dtype.Float8E5M2)
	require.NoError(t, err)
	require.Equal(t, "r_8f_e5m2", tag)

	_, err = nativeType(dtype.DType(200))
	require.ErrorIs(t, err, ErrUnsupportedType)
}
