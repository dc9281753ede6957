package gemm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPickAlgorithmPrefersLargeTiles(t *testing.T) {
	algo, err := pickAlgorithm(1024, 1024, 1024, 1<<20, false)
	require.NoError(t, err)
	require.Equal(t, "tile128_splitk", algo.name)
}

func TestPickAlgorithmWorkspaceFiltering(t *testing.T) {
	// Not enough workspace for the split-K tiles, shape small enough for tile32.
	algo, err := pickAlgorithm(256, 256, 256, 0, false)
	require.NoError(t, err)
	require.Equal(t, "tile32", algo.name)

	// A mid-sized workspace admits the 64-wide tile but not the 128-wide one.
	algo, err = pickAlgorithm(1024, 1024, 1024, 16<<10, false)
	require.NoError(t, err)
	require.Equal(t, "tile64_splitk", algo.name)
}

func TestPickAlgorithmExhaustion(t *testing.T) {
	// Too big for tile32, no workspace for the rest.
	_, err := pickAlgorithm(600, 600, 600, 0, false)
	require.ErrorIs(t, err, ErrNoAlgorithm)

	// Split accumulation disqualifies the only workspace-free candidate.
	_, err = pickAlgorithm(64, 64, 64, 0, true)
	require.ErrorIs(t, err, ErrNoAlgorithm)

	// With workspace the split-accumulator request succeeds.
	algo, err := pickAlgorithm(64, 64, 64, 1<<20, true)
	require.NoError(t, err)
	require.True(t, algo.splitK)
}
