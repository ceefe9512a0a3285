package innovation

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionInnovationStableWithinGeneration(t *testing.T) {
	r := NewRegistry(3)
	first := r.ConnectionInnovation(1, 3)
	other := r.ConnectionInnovation(2, 3)
	again := r.ConnectionInnovation(1, 3)

	assert.Equal(t, first, again)
	assert.NotEqual(t, first, other)
	assert.NotEqual(t, first, r.ConnectionInnovation(3, 1), "direction matters")
}

func TestResetGenerationNeverReusesIDs(t *testing.T) {
	r := NewRegistry(3)
	seen := map[int64]bool{}
	for gen := 0; gen < 5; gen++ {
		id := r.ConnectionInnovation(1, 3)
		require.False(t, seen[id], "innovation %d reused in generation %d", id, gen)
		seen[id] = true
		r.ResetGeneration()
	}
	assert.Equal(t, 5, r.Generation())
}

func TestSplitNodeSharedWithinGeneration(t *testing.T) {
	r := NewRegistry(3)
	a := r.SplitNode(7)
	b := r.SplitNode(7)
	c := r.SplitNode(8)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, int64(4), a, "first node after the reserved seed nodes")

	r.ResetGeneration()
	assert.NotEqual(t, a, r.SplitNode(7))
}

func TestConcurrentRequestsResolveToOneID(t *testing.T) {
	r := NewRegistry(10)
	const workers = 16
	ids := make([]int64, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i] = r.ConnectionInnovation(4, 9)
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestStateRestore(t *testing.T) {
	r := NewRegistry(2)
	r.ConnectionInnovation(1, 2)
	r.SplitNode(1)
	r.ResetGeneration()

	state := r.State()
	restored, err := Restore(state)
	require.NoError(t, err)
	assert.Equal(t, state, restored.State())
	assert.Equal(t, state.NextInnovation, restored.ConnectionInnovation(5, 6))

	bad := state
	bad.NextNodeID = 0
	_, err = Restore(bad)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestReserve(t *testing.T) {
	r := NewRegistry(0)
	r.ReserveNodes(41)
	r.ReserveInnovations(99)
	assert.Equal(t, int64(42), r.NewNodeID())
	assert.Equal(t, int64(100), r.ConnectionInnovation(1, 2))
}
