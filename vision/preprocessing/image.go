package preprocessing

import (
	"image"
	"image/color"
	"io"
	"os"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// Sample is a decoded image with its packed label vector
type Sample struct {
	Pixels   []float32 // CHW, raw 0..255 intensities
	Channels int
	Height   int
	Width    int
	Labels   []float32
}

// Size returns the number of pixel values (C*H*W)
func (s *Sample) Size() int {
	return s.Channels * s.Height * s.Width
}

// Decoder turns an image and its mask into a Sample. height and width are
// either both zero (keep native size) or both positive.
type Decoder interface {
	Decode(imagePath, maskPath string, height, width int) (*Sample, error)
}

// FileDecoder decodes image and mask files from disk
type FileDecoder struct {
	layout  LabelLayout
	isColor bool
}

// NewFileDecoder creates a decoder producing labels in the given layout.
// Colour images decode to 3 channels (RGB), grayscale to 1.
func NewFileDecoder(layout LabelLayout, isColor bool) *FileDecoder {
	return &FileDecoder{
		layout:  layout,
		isColor: isColor,
	}
}

// Layout returns the label layout of produced samples
func (d *FileDecoder) Layout() LabelLayout {
	return d.layout
}

// Decode reads imagePath and maskPath from disk
func (d *FileDecoder) Decode(imagePath, maskPath string, height, width int) (*Sample, error) {
	imgFile, err := os.Open(imagePath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open image")
	}
	defer imgFile.Close()

	maskFile, err := os.Open(maskPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open mask")
	}
	defer maskFile.Close()

	return d.DecodeFrom(imgFile, maskFile, height, width)
}

// DecodeFrom decodes an image and a mask from readers
func (d *FileDecoder) DecodeFrom(imageReader, maskReader io.Reader, height, width int) (*Sample, error) {
	if (height == 0) != (width == 0) || height < 0 || width < 0 {
		return nil, errors.Errorf("height and width must both be zero or both positive, got %dx%d", height, width)
	}

	img, err := imaging.Decode(imageReader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode image")
	}
	if height > 0 {
		img = imaging.Resize(img, width, height, imaging.Linear)
	}

	mask, err := imaging.Decode(maskReader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode mask")
	}

	labels, err := MaskToLabels(mask, d.layout)
	if err != nil {
		return nil, err
	}

	sample := ImageToCHW(img, d.isColor)
	sample.Labels = labels
	return sample, nil
}

// ImageToCHW converts img into a Sample without labels
func ImageToCHW(img image.Image, isColor bool) *Sample {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	channels := 1
	if isColor {
		channels = 3
	}
	plane := width * height
	data := make([]float32, channels*plane)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := img.At(bounds.Min.X+x, bounds.Min.Y+y)
			idx := y*width + x
			if !isColor {
				data[idx] = float32(color.GrayModel.Convert(c).(color.Gray).Y)
				continue
			}
			r, g, b, _ := c.RGBA()
			data[0*plane+idx] = float32(r >> 8)
			data[1*plane+idx] = float32(g >> 8)
			data[2*plane+idx] = float32(b >> 8)
		}
	}

	return &Sample{
		Pixels:   data,
		Channels: channels,
		Height:   height,
		Width:    width,
	}
}

// classAt returns the class id stored at (x, y): the palette index for
// paletted masks, the gray level otherwise.
func classAt(mask image.Image, x, y int) int {
	switch m := mask.(type) {
	case *image.Paletted:
		return int(m.ColorIndexAt(x, y))
	case *image.Gray:
		return int(m.GrayAt(x, y).Y)
	default:
		return int(color.GrayModel.Convert(mask.At(x, y)).(color.Gray).Y)
	}
}

// MaskToLabels packs a class-id mask into a label vector of layout.Len():
// class presence flags, a foreground map and a boundary map, both sampled
// nearest-neighbour onto a LabelSize×LabelSize grid.
func MaskToLabels(mask image.Image, layout LabelLayout) ([]float32, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	bounds := mask.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width == 0 || height == 0 {
		return nil, errors.Errorf("empty mask %dx%d", width, height)
	}

	labels := make([]float32, layout.Len())
	classes, foreground, boundary := layout.Split(labels)

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if k := classAt(mask, x, y); k < layout.SegNum {
				classes[k] = 1
			}
		}
	}

	size := layout.LabelSize
	grid := make([]int, size*size)
	for gy := 0; gy < size; gy++ {
		sy := bounds.Min.Y + gy*height/size
		for gx := 0; gx < size; gx++ {
			sx := bounds.Min.X + gx*width/size
			grid[gy*size+gx] = classAt(mask, sx, sy)
		}
	}

	for gy := 0; gy < size; gy++ {
		for gx := 0; gx < size; gx++ {
			i := gy*size + gx
			k := grid[i]
			if k != 0 {
				foreground[i] = 1
			}
			if (gx > 0 && grid[i-1] != k) ||
				(gx < size-1 && grid[i+1] != k) ||
				(gy > 0 && grid[i-size] != k) ||
				(gy < size-1 && grid[i+size] != k) {
				boundary[i] = 1
			}
		}
	}

	return labels, nil
}
