package gemm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBufPoolReuse(t *testing.T) {
	var p bufPool
	a := p.get(1024)
	require.Len(t, a, 1024)
	p.put(a)

	// A smaller request may be served from the recycled buffer's capacity.
	b := p.get(512)
	require.Len(t, b, 512)
	require.GreaterOrEqual(t, cap(b), 512)
	p.put(b)
}

func TestBufPoolGrowsPastRecycledCapacity(t *testing.T) {
	var p bufPool
	p.put(make([]float32, 16))
	b := p.get(4096)
	require.Len(t, b, 4096)
}

func TestBufPoolNilPut(t *testing.T) {
	var p bufPool
	p.put(nil) // must not panic
}
