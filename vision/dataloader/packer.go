package dataloader

import (
	"log/slog"

	"github.com/pkg/errors"

	"github.com/tsawler/go-segloader/vision/dataset"
	"github.com/tsawler/go-segloader/vision/preprocessing"
)

// Transformer writes transformed sample pixels into a batch slot.
// preprocessing.DataTransformer is the default implementation.
type Transformer interface {
	OutputShape(channels, height, width int) (int, int, int)
	Transform(sample *preprocessing.Sample, out []float32) error
}

// Packer assembles batches from the ordering and the sample loader
type Packer struct {
	entries     []dataset.Entry
	order       *Order
	loader      *SampleLoader
	transformer Transformer
	layout      preprocessing.LabelLayout
	logger      *slog.Logger

	// decoded shape every sample must have; zero skips the check
	inputShape [3]int
}

// NewPacker creates a packer over entries
func NewPacker(entries []dataset.Entry, order *Order, loader *SampleLoader, transformer Transformer,
	layout preprocessing.LabelLayout, logger *slog.Logger) *Packer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Packer{
		entries:     entries,
		order:       order,
		loader:      loader,
		transformer: transformer,
		layout:      layout,
		logger:      logger,
	}
}

// SetInputShape fixes the decoded shape samples must match
func (p *Packer) SetInputShape(channels, height, width int) {
	p.inputShape = [3]int{channels, height, width}
}

// Fill attempts every slot of b once. A slot whose sample fails to load or
// transform is left unwritten and not retried; the cursor still advances
// past it.
func (p *Packer) Fill(b *Batch) FillStats {
	stats := FillStats{Attempted: b.batchSize}
	startPasses := p.order.Passes()

	for item := 0; item < b.batchSize; item++ {
		b.Written[item] = false
		passes := p.order.Passes()
		idx := p.order.Next()
		if p.order.Passes() != passes {
			p.logger.Debug("dataloader: restarting data prefetching from start",
				"passes", p.order.Passes(),
				"shuffle", p.order.Shuffle())
		}

		if err := p.fillSlot(b, item, p.entries[idx]); err != nil {
			stats.Skipped++
			p.logger.Warn("dataloader: skipping sample",
				"item", item,
				"index", idx,
				"error", err)
			continue
		}
		b.Written[item] = true
		stats.Written++
	}

	stats.Wraps = p.order.Passes() - startPasses
	b.Stats = stats
	return stats
}

func (p *Packer) fillSlot(b *Batch, item int, entry dataset.Entry) error {
	sample, err := p.loader.Load(entry)
	if err != nil {
		return err
	}

	if p.inputShape != [3]int{} && p.inputShape != [3]int{sample.Channels, sample.Height, sample.Width} {
		return &LoadError{
			ImagePath: entry.ImagePath,
			MaskPath:  entry.MaskPath,
			Err: errors.Errorf("sample is %dx%dx%d, loader expects %dx%dx%d",
				sample.Channels, sample.Height, sample.Width, p.inputShape[0], p.inputShape[1], p.inputShape[2]),
		}
	}

	if len(sample.Labels) != p.layout.Len() {
		return &LoadError{
			ImagePath: entry.ImagePath,
			MaskPath:  entry.MaskPath,
			Err:       errors.Errorf("sample has %d labels, layout expects %d", len(sample.Labels), p.layout.Len()),
		}
	}

	if err := p.transformer.Transform(sample, b.Image(item)); err != nil {
		return &LoadError{
			ImagePath: entry.ImagePath,
			MaskPath:  entry.MaskPath,
			Err:       errors.Wrap(err, "transform failed"),
		}
	}

	classes, maskA, maskB := p.layout.Split(sample.Labels)
	copy(b.ClassLabels(item), classes)
	copy(b.MaskA(item), maskA)
	copy(b.MaskB(item), maskB)
	return nil
}
