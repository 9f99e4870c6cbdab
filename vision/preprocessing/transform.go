package preprocessing

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Phase selects between training and evaluation transforms
type Phase int

const (
	PhaseTrain Phase = iota
	PhaseTest
)

func (p Phase) String() string {
	switch p {
	case PhaseTrain:
		return "train"
	case PhaseTest:
		return "test"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// ParsePhase parses "train" or "test" (case-insensitive); empty means train
func ParsePhase(s string) (Phase, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "train":
		return PhaseTrain, nil
	case "test":
		return PhaseTest, nil
	default:
		return PhaseTrain, errors.Errorf("unknown phase %q", s)
	}
}

// TransformConfig holds crop, mirror and normalization settings
type TransformConfig struct {
	Phase      Phase
	CropSize   int       // 0 disables cropping
	Mirror     bool      // random horizontal flip
	Scale      float32   // applied after mean subtraction; 0 means 1
	MeanValues []float32 // one value for all channels or one per channel
	Seed       int64     // 0 draws a seed
}

// DataTransformer crops, mirrors and normalizes CHW pixel data.
// It is not safe for concurrent use.
type DataTransformer struct {
	config TransformConfig
	rng    *rand.Rand
}

// NewDataTransformer creates a transformer, applying defaults
func NewDataTransformer(config TransformConfig) *DataTransformer {
	if config.Scale == 0 {
		config.Scale = 1
	}
	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &DataTransformer{
		config: config,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Config returns the effective configuration
func (dt *DataTransformer) Config() TransformConfig {
	return dt.config
}

// OutputShape returns the transformed shape for an input of the given shape
func (dt *DataTransformer) OutputShape(channels, height, width int) (int, int, int) {
	if dt.config.CropSize > 0 {
		return channels, dt.config.CropSize, dt.config.CropSize
	}
	return channels, height, width
}

// Validate checks the configuration against an input shape
func (dt *DataTransformer) Validate(channels, height, width int) error {
	crop := dt.config.CropSize
	if crop < 0 {
		return errors.Errorf("crop_size must be non-negative, got %d", crop)
	}
	if crop > height || crop > width {
		return errors.Errorf("crop_size %d larger than input %dx%d", crop, height, width)
	}
	if n := len(dt.config.MeanValues); n > 1 && n != channels {
		return errors.Errorf("got %d mean values for %d channels", n, channels)
	}
	return nil
}

// Transform writes the transformed pixels of sample into out, which must
// hold exactly the OutputShape of the sample.
func (dt *DataTransformer) Transform(sample *Sample, out []float32) error {
	c, h, w := sample.Channels, sample.Height, sample.Width
	if len(sample.Pixels) != c*h*w {
		return errors.Errorf("sample has %d pixels, expected %d", len(sample.Pixels), c*h*w)
	}
	if err := dt.Validate(c, h, w); err != nil {
		return err
	}
	_, oh, ow := dt.OutputShape(c, h, w)
	if len(out) != c*oh*ow {
		return errors.Errorf("output holds %d values, expected %d", len(out), c*oh*ow)
	}

	hOff, wOff := 0, 0
	if crop := dt.config.CropSize; crop > 0 {
		if dt.config.Phase == PhaseTrain {
			hOff = dt.rng.Intn(h - crop + 1)
			wOff = dt.rng.Intn(w - crop + 1)
		} else {
			hOff = (h - crop) / 2
			wOff = (w - crop) / 2
		}
	}
	mirror := dt.config.Mirror && dt.rng.Intn(2) == 1
	scale := dt.config.Scale

	for ch := 0; ch < c; ch++ {
		mean := dt.meanFor(ch)
		for y := 0; y < oh; y++ {
			src := sample.Pixels[(ch*h+y+hOff)*w+wOff : (ch*h+y+hOff)*w+wOff+ow]
			dst := out[(ch*oh+y)*ow : (ch*oh+y+1)*ow]
			for x := 0; x < ow; x++ {
				v := src[x]
				if mirror {
					v = src[ow-1-x]
				}
				dst[x] = (v - mean) * scale
			}
		}
	}
	return nil
}

func (dt *DataTransformer) meanFor(channel int) float32 {
	switch len(dt.config.MeanValues) {
	case 0:
		return 0
	case 1:
		return dt.config.MeanValues[0]
	default:
		return dt.config.MeanValues[channel]
	}
}
