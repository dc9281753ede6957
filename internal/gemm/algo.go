package gemm

import "fmt"

// algorithm is one execution strategy the fused backend can run: an output
// tile size plus the constraints under which the tile is usable. The
// heuristic requests at most one candidate.
type algorithm struct {
	name string
	tile int // square output tile edge

	splitK         bool // splits the accumulation dimension across workers
	maxDim         int  // largest m/n/k the tile handles; 0 = unlimited
	workspaceBytes int  // caller workspace the tile stages through
}

// algoTable is ordered by preference: larger tiles first, the small
// workspace-free tile as the fallback for small shapes.
var algoTable = []algorithm{
	{name: "tile128_splitk", tile: 128, splitK: true, workspaceBytes: 128 * 128 * 4},
	{name: "tile64_splitk", tile: 64, splitK: true, workspaceBytes: 64 * 64 * 4},
	{name: "tile32", tile: 32, maxDim: 512},
}

// pickAlgorithm performs the heuristic search: filter the table by shape,
// workspace, and split-accumulator constraints, requesting a single
// candidate. Zero usable candidates is a distinct fatal condition.
func pickAlgorithm(m, n, k, workspaceBytes int, splitAccumulator bool) (algorithm, error) {
	for _, a := range algoTable {
		if a.maxDim > 0 && (m > a.maxDim || n > a.maxDim || k > a.maxDim) {
			continue
		}
		if workspaceBytes < a.workspaceBytes {
			continue
		}
		if splitAccumulator && !a.splitK {
			continue
		}
		return a, nil
	}
	return algorithm{}, fmt.Errorf("%w for m=%d n=%d k=%d workspace=%dB split_accumulator=%t",
		ErrNoAlgorithm, m, n, k, workspaceBytes, splitAccumulator)
}
