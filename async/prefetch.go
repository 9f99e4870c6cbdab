package async

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/tsawler/go-segloader/vision/dataloader"
)

// ErrStopped is returned by Swap once the prefetcher has been joined
var ErrStopped = errors.New("prefetcher has been stopped")

// Filler fills batch buffers. *dataloader.DataLoader implements it.
type Filler interface {
	NewBatch() *dataloader.Batch
	Fill(b *dataloader.Batch) dataloader.FillStats
}

// PrefetchConfig holds configuration for the prefetcher
type PrefetchConfig struct {
	Logger *slog.Logger
}

// Prefetcher fills batches on a background goroutine using two buffers:
// one is filled while the consumer reads the other. At most one filled
// batch waits for the consumer, so the producer is never more than one
// batch ahead.
type Prefetcher struct {
	filler Filler
	pool   *stagingPool
	ready  chan *stagingBuffer

	// consumer side; current is the buffer last returned by Swap
	consumerMu sync.Mutex
	current    *stagingBuffer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu              sync.RWMutex
	isRunning       bool
	stopped         bool
	batchesProduced uint64
	slotsWritten    uint64
	slotsSkipped    uint64
	wraps           uint64

	logger *slog.Logger
}

// NewPrefetcher allocates both batch buffers from filler
func NewPrefetcher(filler Filler, config PrefetchConfig) (*Prefetcher, error) {
	if filler == nil {
		return nil, errors.New("filler cannot be nil")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	pool := newStagingPool([]*dataloader.Batch{filler.NewBatch(), filler.NewBatch()})
	ctx, cancel := context.WithCancel(context.Background())

	p := &Prefetcher{
		filler: filler,
		pool:   pool,
		ready:  make(chan *stagingBuffer, 1),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}

	// The second buffer starts on the consumer side and is released by the
	// first Swap; until then only one buffer can be filled.
	pool.put(pool.buffers[0])
	p.current = pool.buffers[1]
	return p, nil
}

// Start spawns the fill goroutine
func (p *Prefetcher) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isRunning {
		return errors.New("prefetcher is already running")
	}
	if p.stopped {
		return ErrStopped
	}

	p.isRunning = true
	p.wg.Add(1)
	go p.run()

	p.logger.Info("prefetch: started", "buffers", len(p.pool.buffers))
	return nil
}

// run fills free buffers until the prefetcher is joined. A fill in
// progress always completes.
func (p *Prefetcher) run() {
	defer p.wg.Done()

	for {
		buf, err := p.pool.get(p.ctx)
		if err != nil {
			return
		}
		p.setState(buf, StateFilling)

		stats := p.filler.Fill(buf.batch)

		p.mu.Lock()
		buf.batch.ID = p.batchesProduced
		buf.batch.TraceID = uuid.New().String()
		p.batchesProduced++
		p.slotsWritten += uint64(stats.Written)
		p.slotsSkipped += uint64(stats.Skipped)
		p.wraps += uint64(stats.Wraps)
		buf.state = StateReady
		p.mu.Unlock()

		if stats.Skipped > 0 {
			p.logger.Warn("prefetch: batch has unwritten slots",
				"batch_id", buf.batch.ID,
				"written", stats.Written,
				"skipped", stats.Skipped)
		}
		p.logger.Debug("prefetch: batch ready",
			"batch_id", buf.batch.ID,
			"trace_id", buf.batch.TraceID,
			"buffer", buf.id)

		select {
		case p.ready <- buf:
		case <-p.ctx.Done():
			return
		}
	}
}

// Swap releases the batch returned by the previous call and blocks until
// the next filled batch is available. The returned batch stays valid until
// the next Swap or TrySwap.
func (p *Prefetcher) Swap() (*dataloader.Batch, error) {
	p.consumerMu.Lock()
	defer p.consumerMu.Unlock()

	if err := p.checkRunning(); err != nil {
		return nil, err
	}
	p.releaseCurrent()

	select {
	case buf := <-p.ready:
		p.acquire(buf)
		return buf.batch, nil
	case <-p.ctx.Done():
		return nil, ErrStopped
	}
}

// TrySwap is the non-blocking form of Swap. It returns nil, nil when no
// batch is ready, keeping the current batch.
func (p *Prefetcher) TrySwap() (*dataloader.Batch, error) {
	p.consumerMu.Lock()
	defer p.consumerMu.Unlock()

	if err := p.checkRunning(); err != nil {
		return nil, err
	}

	select {
	case buf := <-p.ready:
		p.releaseCurrent()
		p.acquire(buf)
		return buf.batch, nil
	default:
		return nil, nil
	}
}

func (p *Prefetcher) checkRunning() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrStopped
	}
	if !p.isRunning {
		return errors.New("prefetcher has not been started")
	}
	return nil
}

func (p *Prefetcher) releaseCurrent() {
	if p.current == nil {
		return
	}
	p.setState(p.current, StateIdle)
	p.pool.put(p.current)
	p.current = nil
}

func (p *Prefetcher) acquire(buf *stagingBuffer) {
	p.setState(buf, StateReading)
	p.current = buf
}

func (p *Prefetcher) setState(buf *stagingBuffer, state BufferState) {
	p.mu.Lock()
	buf.state = state
	p.mu.Unlock()
}

// Join stops the prefetcher and waits for the fill goroutine to exit. A
// fill in progress is allowed to finish. Join is idempotent.
func (p *Prefetcher) Join() error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	wasRunning := p.isRunning
	p.isRunning = false
	p.stopped = true
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()

	if wasRunning {
		stats := p.Stats()
		p.logger.Info("prefetch: stopped",
			"batches", stats.BatchesProduced,
			"slots_written", stats.SlotsWritten,
			"slots_skipped", stats.SlotsSkipped)
	}
	return nil
}

// Stats returns statistics about the prefetcher
func (p *Prefetcher) Stats() PrefetchStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	states := make([]BufferState, len(p.pool.buffers))
	for i, buf := range p.pool.buffers {
		states[i] = buf.state
	}
	return PrefetchStats{
		IsRunning:       p.isRunning,
		BatchesProduced: p.batchesProduced,
		SlotsWritten:    p.slotsWritten,
		SlotsSkipped:    p.slotsSkipped,
		Wraps:           p.wraps,
		QueuedBatches:   len(p.ready),
		QueueCapacity:   cap(p.ready),
		FreeBuffers:     p.pool.free(),
		BufferStates:    states,
	}
}

// PrefetchStats provides statistics about the prefetcher
type PrefetchStats struct {
	IsRunning       bool
	BatchesProduced uint64
	SlotsWritten    uint64
	SlotsSkipped    uint64
	Wraps           uint64
	QueuedBatches   int
	QueueCapacity   int
	FreeBuffers     int
	BufferStates    []BufferState
}
