package dataloader

import (
	"github.com/pkg/errors"

	"github.com/tsawler/go-segloader/vision/dataset"
	"github.com/tsawler/go-segloader/vision/preprocessing"
)

// SampleLoader decodes manifest entries at a fixed target geometry
type SampleLoader struct {
	decoder preprocessing.Decoder
	height  int
	width   int
	cache   *SampleCache // nil disables caching
}

// NewSampleLoader creates a loader. height and width must both be zero
// (native size) or both positive.
func NewSampleLoader(decoder preprocessing.Decoder, height, width int, cache *SampleCache) (*SampleLoader, error) {
	if err := checkGeometry(height, width); err != nil {
		return nil, err
	}
	if decoder == nil {
		return nil, configErrorf("sample loader", "decoder cannot be nil")
	}
	return &SampleLoader{
		decoder: decoder,
		height:  height,
		width:   width,
		cache:   cache,
	}, nil
}

func checkGeometry(height, width int) error {
	if (height == 0 && width == 0) || (height > 0 && width > 0) {
		return nil
	}
	return configErrorf("geometry", "new_height and new_width must be set at the same time, got %dx%d", height, width)
}

// Load decodes entry. Every failure is returned as a *LoadError.
func (sl *SampleLoader) Load(entry dataset.Entry) (*preprocessing.Sample, error) {
	if sl.cache != nil {
		if sample, ok := sl.cache.Get(entry.ImagePath); ok {
			return sample, nil
		}
	}

	sample, err := sl.decoder.Decode(entry.ImagePath, entry.MaskPath, sl.height, sl.width)
	if err != nil {
		return nil, &LoadError{ImagePath: entry.ImagePath, MaskPath: entry.MaskPath, Err: err}
	}
	if sample == nil {
		return nil, &LoadError{ImagePath: entry.ImagePath, MaskPath: entry.MaskPath, Err: errors.New("decoder returned no sample")}
	}

	if sl.cache != nil {
		sl.cache.Put(entry.ImagePath, sample)
	}
	return sample, nil
}

// Geometry returns the target height and width (0, 0 for native size)
func (sl *SampleLoader) Geometry() (height, width int) {
	return sl.height, sl.width
}

// Cache returns the sample cache, or nil if caching is disabled
func (sl *SampleLoader) Cache() *SampleCache {
	return sl.cache
}
