package dataloader

import (
	"math/rand"
	"time"

	"github.com/pkg/errors"
)

// Order owns the sample ordering: a permutation of [0, n), a read cursor
// and the random source used for shuffling. It is not safe for concurrent
// use; only the goroutine filling batches should touch it.
type Order struct {
	indices []int
	cursor  int
	passes  int
	shuffle bool
	seed    int64
	rng     *rand.Rand
}

// OrderState is a snapshot of an Order sufficient to resume it
type OrderState struct {
	Seed    int64
	Shuffle bool
	Cursor  int
	Passes  int
	Indices []int
}

// NewOrder creates an identity ordering over n samples. A zero seed draws
// one from the clock; Seed reports the value in use.
func NewOrder(n int, shuffle bool, seed int64) *Order {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	return &Order{
		indices: indices,
		shuffle: shuffle,
		seed:    seed,
		rng:     passSource(seed, 0),
	}
}

// passSource returns the random source for a given pass. Seeding per pass
// makes every reshuffle reproducible from (seed, passes) alone.
func passSource(seed int64, pass int) *rand.Rand {
	return rand.New(rand.NewSource(seed + int64(pass)*0x5DEECE66D))
}

// Setup shuffles the ordering if enabled and applies a random initial skip
// drawn uniformly from [0, randSkip).
func (o *Order) Setup(randSkip int) error {
	n := len(o.indices)
	if n == 0 {
		return configErrorf("order setup", "no samples to order")
	}
	if randSkip < 0 {
		return configErrorf("order setup", "rand_skip must be non-negative, got %d", randSkip)
	}

	if o.shuffle {
		o.shuffleIndices()
	}

	o.cursor = 0
	if randSkip > 0 {
		if randSkip >= n {
			return configErrorf("order setup", "not enough samples to skip: rand_skip %d, %d samples", randSkip, n)
		}
		o.cursor = o.rng.Intn(randSkip)
	}
	return nil
}

func (o *Order) shuffleIndices() {
	o.rng.Shuffle(len(o.indices), func(i, j int) {
		o.indices[i], o.indices[j] = o.indices[j], o.indices[i]
	})
}

// Next returns the manifest index under the cursor and advances it. At the
// end of the ordering the cursor wraps to 0 and, if shuffling is enabled,
// the ordering is reshuffled before the following call.
func (o *Order) Next() int {
	idx := o.indices[o.cursor]
	o.cursor++
	if o.cursor >= len(o.indices) {
		o.cursor = 0
		o.passes++
		if o.shuffle {
			o.rng = passSource(o.seed, o.passes)
			o.shuffleIndices()
		}
	}
	return idx
}

// Peek returns the index Next would return without advancing
func (o *Order) Peek() int {
	return o.indices[o.cursor]
}

// Len returns the number of samples in the ordering
func (o *Order) Len() int {
	return len(o.indices)
}

// Cursor returns the current read position
func (o *Order) Cursor() int {
	return o.cursor
}

// Passes returns how many times the cursor has wrapped around
func (o *Order) Passes() int {
	return o.passes
}

// Seed returns the seed in use
func (o *Order) Seed() int64 {
	return o.seed
}

// Shuffle reports whether reshuffling is enabled
func (o *Order) Shuffle() bool {
	return o.shuffle
}

// Indices returns a copy of the current ordering
func (o *Order) Indices() []int {
	out := make([]int, len(o.indices))
	copy(out, o.indices)
	return out
}

// State captures the ordering for a checkpoint
func (o *Order) State() OrderState {
	return OrderState{
		Seed:    o.seed,
		Shuffle: o.shuffle,
		Cursor:  o.cursor,
		Passes:  o.passes,
		Indices: o.Indices(),
	}
}

// Restore replaces the ordering with a previously captured state. The state
// must describe the same number of samples.
func (o *Order) Restore(state OrderState) error {
	n := len(o.indices)
	if len(state.Indices) != n {
		return configErrorf("order restore", "state has %d indices, loader has %d samples", len(state.Indices), n)
	}
	if state.Cursor < 0 || state.Cursor >= n {
		return configErrorf("order restore", "cursor %d out of range [0, %d)", state.Cursor, n)
	}
	if state.Passes < 0 {
		return configErrorf("order restore", "negative pass count %d", state.Passes)
	}
	if err := checkPermutation(state.Indices); err != nil {
		return &ConfigError{Op: "order restore", Err: err}
	}

	copy(o.indices, state.Indices)
	o.cursor = state.Cursor
	o.passes = state.Passes
	o.shuffle = state.Shuffle
	o.seed = state.Seed
	o.rng = passSource(o.seed, o.passes)
	return nil
}

func checkPermutation(indices []int) error {
	seen := make([]bool, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= len(indices) {
			return errors.Errorf("index %d out of range [0, %d)", idx, len(indices))
		}
		if seen[idx] {
			return errors.Errorf("duplicate index %d", idx)
		}
		seen[idx] = true
	}
	return nil
}
