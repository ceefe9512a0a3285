package innovation

import (
	"errors"
	"fmt"
	"sync"

	"heredity/internal/model"
)

var ErrInvalidState = errors.New("invalid registry state")

type pair struct {
	source int64
	target int64
}

// Registry hands out structural mutation identifiers. Identical
// (source,target) connections and identical connection splits within one
// generation resolve to the same ids; the global counters never rewind.
// A Registry is safe for concurrent use; callers that need deterministic ids
// must still issue requests in a deterministic order.
type Registry struct {
	mu             sync.Mutex
	generation     int
	nextNodeID     int64
	nextInnovation int64
	connections    map[pair]int64
	splits         map[int64]int64
}

// NewRegistry starts node ids after the reserved seed nodes and innovation
// ids at 1.
func NewRegistry(reservedNodes int64) *Registry {
	return &Registry{
		nextNodeID:     reservedNodes + 1,
		nextInnovation: 1,
		connections:    make(map[pair]int64),
		splits:         make(map[int64]int64),
	}
}

// ConnectionInnovation returns the innovation id for source->target in the
// current generation, allocating the next id on first use.
func (r *Registry) ConnectionInnovation(source, target int64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := pair{source: source, target: target}
	if id, ok := r.connections[key]; ok {
		return id
	}
	id := r.nextInnovation
	r.nextInnovation++
	r.connections[key] = id
	return id
}

// SplitNode returns the hidden node id used when the connection with the
// given innovation is split this generation. Genomes that split the same
// connection in the same generation share the node id.
func (r *Registry) SplitNode(innovation int64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.splits[innovation]; ok {
		return id
	}
	id := r.nextNodeID
	r.nextNodeID++
	r.splits[innovation] = id
	return id
}

// NewNodeID allocates a node id outside of any split bookkeeping.
func (r *Registry) NewNodeID() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextNodeID
	r.nextNodeID++
	return id
}

// ReserveNodes moves the node counter past ids already present in loaded
// genomes.
func (r *Registry) ReserveNodes(maxID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if maxID >= r.nextNodeID {
		r.nextNodeID = maxID + 1
	}
}

func (r *Registry) ReserveInnovations(maxID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if maxID >= r.nextInnovation {
		r.nextInnovation = maxID + 1
	}
}

// ResetGeneration clears the per-generation lookups only.
func (r *Registry) ResetGeneration() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.generation++
	r.connections = make(map[pair]int64)
	r.splits = make(map[int64]int64)
}

func (r *Registry) Generation() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.generation
}

func (r *Registry) State() model.RegistryState {
	r.mu.Lock()
	defer r.mu.Unlock()

	return model.RegistryState{
		Generation:     r.generation,
		NextNodeID:     r.nextNodeID,
		NextInnovation: r.nextInnovation,
	}
}

// Restore loads counters from a saved state and starts a fresh generation
// scope.
func Restore(state model.RegistryState) (*Registry, error) {
	if state.NextNodeID < 1 || state.NextInnovation < 1 || state.Generation < 0 {
		return nil, fmt.Errorf("%w: %+v", ErrInvalidState, state)
	}
	return &Registry{
		generation:     state.Generation,
		nextNodeID:     state.NextNodeID,
		nextInnovation: state.NextInnovation,
		connections:    make(map[pair]int64),
		splits:         make(map[int64]int64),
	}, nil
}
