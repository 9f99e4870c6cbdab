package async

import (
	"context"
	"fmt"

	"github.com/tsawler/go-segloader/vision/dataloader"
)

// BufferState is the lifecycle state of one batch buffer
type BufferState int

const (
	StateIdle    BufferState = iota // free, waiting to be filled
	StateFilling                    // owned by the fill goroutine
	StateReady                      // filled, waiting for the consumer
	StateReading                    // handed to the consumer
)

func (s BufferState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFilling:
		return "filling"
	case StateReady:
		return "ready"
	case StateReading:
		return "reading"
	default:
		return fmt.Sprintf("BufferState(%d)", int(s))
	}
}

// stagingBuffer wraps a batch with its pool bookkeeping. state is guarded
// by the owning Prefetcher's mutex.
type stagingBuffer struct {
	batch *dataloader.Batch
	id    int
	state BufferState
}

// stagingPool holds the free batch buffers. Buffers are allocated once and
// circulate between the pool, the fill goroutine and the consumer.
type stagingPool struct {
	buffers   []*stagingBuffer
	available chan *stagingBuffer
}

func newStagingPool(batches []*dataloader.Batch) *stagingPool {
	pool := &stagingPool{
		buffers:   make([]*stagingBuffer, len(batches)),
		available: make(chan *stagingBuffer, len(batches)),
	}
	for i, b := range batches {
		pool.buffers[i] = &stagingBuffer{batch: b, id: i, state: StateIdle}
	}
	return pool
}

// get blocks until a free buffer is available or ctx is done
func (sp *stagingPool) get(ctx context.Context) (*stagingBuffer, error) {
	select {
	case buf := <-sp.available:
		return buf, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// put returns a buffer to the pool. The pool has room for every buffer it
// owns, so a full channel means a buffer was returned twice.
func (sp *stagingPool) put(buf *stagingBuffer) {
	select {
	case sp.available <- buf:
	default:
		panic(fmt.Sprintf("prefetch: staging buffer %d returned twice", buf.id))
	}
}

// free returns the number of buffers waiting in the pool
func (sp *stagingPool) free() int {
	return len(sp.available)
}
