package preprocessing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rampSample builds a sample whose pixel value equals its flat CHW index
func rampSample(c, h, w int) *Sample {
	pixels := make([]float32, c*h*w)
	for i := range pixels {
		pixels[i] = float32(i)
	}
	return &Sample{Pixels: pixels, Channels: c, Height: h, Width: w}
}

func TestParsePhase(t *testing.T) {
	p, err := ParsePhase("TEST")
	require.NoError(t, err)
	assert.Equal(t, PhaseTest, p)

	p, err = ParsePhase("")
	require.NoError(t, err)
	assert.Equal(t, PhaseTrain, p)

	_, err = ParsePhase("validate")
	assert.Error(t, err)

	assert.Equal(t, "train", PhaseTrain.String())
	assert.Equal(t, "Phase(7)", Phase(7).String())
}

func TestDataTransformerIdentity(t *testing.T) {
	dt := NewDataTransformer(TransformConfig{})
	assert.Equal(t, float32(1), dt.Config().Scale)

	sample := rampSample(2, 3, 4)
	out := make([]float32, sample.Size())
	require.NoError(t, dt.Transform(sample, out))
	assert.Equal(t, sample.Pixels, out)
}

func TestDataTransformerCenterCrop(t *testing.T) {
	dt := NewDataTransformer(TransformConfig{Phase: PhaseTest, CropSize: 2})

	c, h, w := dt.OutputShape(1, 4, 4)
	assert.Equal(t, []int{1, 2, 2}, []int{c, h, w})

	sample := rampSample(1, 4, 4)
	out := make([]float32, 4)
	require.NoError(t, dt.Transform(sample, out))
	// Offsets (1, 1) on a 4x4 ramp
	assert.Equal(t, []float32{5, 6, 9, 10}, out)
}

func TestDataTransformerRandomCropStaysInBounds(t *testing.T) {
	dt := NewDataTransformer(TransformConfig{Phase: PhaseTrain, CropSize: 3, Seed: 42})
	sample := rampSample(1, 5, 5)
	out := make([]float32, 9)

	for i := 0; i < 50; i++ {
		require.NoError(t, dt.Transform(sample, out))
		top := int(out[0])
		hOff, wOff := top/5, top%5
		assert.LessOrEqual(t, hOff, 2)
		assert.LessOrEqual(t, wOff, 2)
		assert.Equal(t, float32((hOff+2)*5+wOff+2), out[8])
	}
}

func TestDataTransformerMirror(t *testing.T) {
	dt := NewDataTransformer(TransformConfig{Mirror: true, Seed: 7})
	sample := rampSample(1, 1, 3)
	out := make([]float32, 3)

	sawMirror, sawPlain := false, false
	for i := 0; i < 100; i++ {
		require.NoError(t, dt.Transform(sample, out))
		switch {
		case out[0] == 2 && out[1] == 1 && out[2] == 0:
			sawMirror = true
		case out[0] == 0 && out[1] == 1 && out[2] == 2:
			sawPlain = true
		default:
			t.Fatalf("Unexpected output %v", out)
		}
	}
	assert.True(t, sawMirror, "expected at least one mirrored output")
	assert.True(t, sawPlain, "expected at least one plain output")
}

func TestDataTransformerMeanAndScale(t *testing.T) {
	t.Run("PerChannel", func(t *testing.T) {
		dt := NewDataTransformer(TransformConfig{MeanValues: []float32{1, 10}, Scale: 0.5})
		sample := &Sample{Pixels: []float32{3, 5, 20, 30}, Channels: 2, Height: 1, Width: 2}
		out := make([]float32, 4)

		require.NoError(t, dt.Transform(sample, out))
		assert.Equal(t, []float32{1, 2, 5, 10}, out)
	})

	t.Run("Broadcast", func(t *testing.T) {
		dt := NewDataTransformer(TransformConfig{MeanValues: []float32{2}})
		sample := &Sample{Pixels: []float32{3, 5, 20}, Channels: 3, Height: 1, Width: 1}
		out := make([]float32, 3)

		require.NoError(t, dt.Transform(sample, out))
		assert.Equal(t, []float32{1, 3, 18}, out)
	})
}

func TestDataTransformerErrors(t *testing.T) {
	t.Run("CropTooLarge", func(t *testing.T) {
		dt := NewDataTransformer(TransformConfig{CropSize: 8})
		assert.Error(t, dt.Validate(3, 4, 4))
		assert.Error(t, dt.Transform(rampSample(1, 4, 4), make([]float32, 64)))
	})

	t.Run("MeanCountMismatch", func(t *testing.T) {
		dt := NewDataTransformer(TransformConfig{MeanValues: []float32{1, 2}})
		assert.Error(t, dt.Validate(3, 4, 4))
	})

	t.Run("WrongOutputLength", func(t *testing.T) {
		dt := NewDataTransformer(TransformConfig{})
		assert.Error(t, dt.Transform(rampSample(1, 2, 2), make([]float32, 3)))
	})

	t.Run("InconsistentSample", func(t *testing.T) {
		dt := NewDataTransformer(TransformConfig{})
		sample := &Sample{Pixels: []float32{1}, Channels: 1, Height: 2, Width: 2}
		assert.Error(t, dt.Transform(sample, make([]float32, 4)))
	})
}
