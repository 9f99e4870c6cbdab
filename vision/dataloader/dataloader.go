package dataloader

import (
	"fmt"
	"log/slog"

	"github.com/tsawler/go-segloader/vision/dataset"
	"github.com/tsawler/go-segloader/vision/preprocessing"
)

// Config holds the setup parameters of a DataLoader
type Config struct {
	Source     string // manifest path
	RootFolder string // prefix for every manifest token
	Shuffle    bool
	Seed       int64 // 0 draws a seed
	RandSkip   int   // skip uniformly in [0, RandSkip) samples at startup

	NewHeight int // resize target; both zero keeps the native size
	NewWidth  int
	BatchSize int
	Grayscale bool // decode single-channel images

	Transform preprocessing.TransformConfig
	CacheSize int // decoded samples to keep in memory, 0 disables

	// Layout defaults to preprocessing.DefaultLabelLayout
	Layout preprocessing.LabelLayout

	// Optional collaborators
	Decoder     preprocessing.Decoder // defaults to a FileDecoder
	Transformer Transformer           // defaults to a DataTransformer built from Transform
	Logger      *slog.Logger
}

// DataLoader packs manifest samples into fixed-shape batches. Its geometry
// is fixed at construction from the first sample. A DataLoader is not safe
// for concurrent use; hand it to an async.Prefetcher to fill in background.
type DataLoader struct {
	config      Config
	dataset     *dataset.ManifestDataset
	order       *Order
	loader      *SampleLoader
	transformer Transformer
	packer      *Packer
	layout      preprocessing.LabelLayout
	logger      *slog.Logger

	channels int
	height   int
	width    int
}

// NewDataLoader validates config, reads the manifest, sets up the ordering
// and decodes one sample to fix the output geometry. Any failure is a
// *ConfigError.
func NewDataLoader(config Config) (*DataLoader, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if config.BatchSize <= 0 {
		return nil, configErrorf("setup", "batch_size must be positive, got %d", config.BatchSize)
	}
	if err := checkGeometry(config.NewHeight, config.NewWidth); err != nil {
		return nil, err
	}

	layout := config.Layout
	if layout == (preprocessing.LabelLayout{}) {
		layout = preprocessing.DefaultLabelLayout
	}
	if err := layout.Validate(); err != nil {
		return nil, &ConfigError{Op: "label layout", Err: err}
	}

	logger.Info("dataloader: opening manifest", "source", config.Source)
	ds, err := dataset.NewManifestDataset(config.Source, config.RootFolder)
	if err != nil {
		return nil, &ConfigError{Op: "manifest", Err: err}
	}
	if ds.Len() == 0 {
		return nil, configErrorf("manifest", "no samples in %s", config.Source)
	}

	order := NewOrder(ds.Len(), config.Shuffle, config.Seed)
	if config.Shuffle {
		logger.Info("dataloader: shuffling data", "seed", order.Seed())
	}
	if err := order.Setup(config.RandSkip); err != nil {
		return nil, err
	}
	logger.Info("dataloader: manifest loaded", "images", ds.Len())
	if config.RandSkip > 0 {
		logger.Info("dataloader: skipping first data points", "skip", order.Cursor())
	}

	decoder := config.Decoder
	if decoder == nil {
		decoder = preprocessing.NewFileDecoder(layout, !config.Grayscale)
	}
	var cache *SampleCache
	if config.CacheSize > 0 {
		cache = NewSampleCache(config.CacheSize)
	}
	loader, err := NewSampleLoader(decoder, config.NewHeight, config.NewWidth, cache)
	if err != nil {
		return nil, err
	}

	// The first sample fixes the geometry of every batch
	first, err := ds.Entry(order.Peek())
	if err != nil {
		return nil, &ConfigError{Op: "first sample", Err: err}
	}
	sample, err := loader.Load(first)
	if err != nil {
		return nil, &ConfigError{Op: "first sample", Err: err}
	}
	if len(sample.Labels) != layout.Len() {
		return nil, configErrorf("first sample", "decoder produced %d labels, layout expects %d", len(sample.Labels), layout.Len())
	}

	transformer := config.Transformer
	if transformer == nil {
		transformer = preprocessing.NewDataTransformer(config.Transform)
	}
	if v, ok := transformer.(interface {
		Validate(channels, height, width int) error
	}); ok {
		if err := v.Validate(sample.Channels, sample.Height, sample.Width); err != nil {
			return nil, &ConfigError{Op: "transform", Err: err}
		}
	}
	channels, height, width := transformer.OutputShape(sample.Channels, sample.Height, sample.Width)

	logger.Info("dataloader: output data size",
		"batch", config.BatchSize,
		"channels", channels,
		"height", height,
		"width", width,
		"labels", layout.Len())

	dl := &DataLoader{
		config:      config,
		dataset:     ds,
		order:       order,
		loader:      loader,
		transformer: transformer,
		layout:      layout,
		logger:      logger,
		channels:    channels,
		height:      height,
		width:       width,
	}
	dl.packer = NewPacker(ds.Entries(), order, loader, transformer, layout, logger)
	dl.packer.SetInputShape(sample.Channels, sample.Height, sample.Width)
	return dl, nil
}

// NewBatch allocates a batch buffer with the loader's geometry
func (dl *DataLoader) NewBatch() *Batch {
	return NewBatch(dl.config.BatchSize, dl.channels, dl.height, dl.width, dl.layout)
}

// Fill packs the next batch into b, which must come from NewBatch
func (dl *DataLoader) Fill(b *Batch) FillStats {
	if !b.sameGeometry(dl.config.BatchSize, dl.channels, dl.height, dl.width, dl.layout) {
		panic(fmt.Sprintf("dataloader: batch shape %v does not match loader shape %v", b.ImageShape(), dl.ImageShape()))
	}
	return dl.packer.Fill(b)
}

// BatchSize returns the number of slots per batch
func (dl *DataLoader) BatchSize() int {
	return dl.config.BatchSize
}

// ImageShape returns (batch, C, H, W)
func (dl *DataLoader) ImageShape() []int {
	return []int{dl.config.BatchSize, dl.channels, dl.height, dl.width}
}

// LabelShape returns (batch, SegNum + 2*LabelSize², 1, 1)
func (dl *DataLoader) LabelShape() []int {
	return []int{dl.config.BatchSize, dl.layout.Len(), 1, 1}
}

// Layout returns the label layout
func (dl *DataLoader) Layout() preprocessing.LabelLayout {
	return dl.layout
}

// Len returns the number of manifest entries
func (dl *DataLoader) Len() int {
	return dl.dataset.Len()
}

// Dataset returns the manifest dataset
func (dl *DataLoader) Dataset() *dataset.ManifestDataset {
	return dl.dataset
}

// Progress returns the cursor and the manifest size. Not safe while a
// prefetcher is filling.
func (dl *DataLoader) Progress() (current, total int) {
	return dl.order.Cursor(), dl.order.Len()
}

// State captures the ordering for a checkpoint. Not safe while a
// prefetcher is filling.
func (dl *DataLoader) State() OrderState {
	return dl.order.State()
}

// Restore resumes the ordering from a checkpoint. Not safe while a
// prefetcher is filling.
func (dl *DataLoader) Restore(state OrderState) error {
	if err := dl.order.Restore(state); err != nil {
		return err
	}
	dl.logger.Info("dataloader: order restored",
		"cursor", state.Cursor,
		"passes", state.Passes)
	return nil
}

// CacheStats returns sample cache statistics; zero if caching is disabled
func (dl *DataLoader) CacheStats() CacheStats {
	if cache := dl.loader.Cache(); cache != nil {
		return cache.Stats()
	}
	return CacheStats{}
}
