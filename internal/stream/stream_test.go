package stream

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStreamPreservesOrder(t *testing.T) {
	s := New()
	defer s.Close()

	const n = 1000
	order := make([]int, 0, n)
	for i := 0; i < n; i++ {
		i := i
		s.Enqueue(func() { order = append(order, i) })
	}
	s.Synchronize()

	require.Len(t, order, n)
	for i, v := range order {
		require.Equal(t, i, v)
	}
}

func TestSynchronizeWaitsForAllWork(t *testing.T) {
	s := New()
	defer s.Close()

	var done atomic.Int32
	for i := 0; i < 100; i++ {
		s.Enqueue(func() { done.Add(1) })
	}
	s.Synchronize()
	require.Equal(t, int32(100), done.Load())
}

func TestCloseIsIdempotent(t *testing.T) {
	s := New()
	s.Enqueue(func() {})
	s.Close()
	s.Close()
}
