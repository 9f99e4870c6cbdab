package dataloader

import (
	"fmt"

	"github.com/tsawler/go-segloader/vision/preprocessing"
)

// FillStats summarizes one Fill call
type FillStats struct {
	Attempted int // slots attempted (always the batch size)
	Written   int // slots freshly written
	Skipped   int // slots left unwritten because the sample failed
	Wraps     int // times the order wrapped around during the fill
}

func (fs FillStats) String() string {
	return fmt.Sprintf("attempted=%d written=%d skipped=%d wraps=%d", fs.Attempted, fs.Written, fs.Skipped, fs.Wraps)
}

// Batch is a fixed-shape batch buffer.
//
// Images has shape (batch, C, H, W). Labels has shape (batch, L, 1, 1) with
// L = SegNum + 2*LabelSize², but it is laid out region-major: all class
// label regions of the batch, then all first masks, then all second masks.
type Batch struct {
	Images  []float32
	Labels  []float32
	Written []bool // per slot: true if the last fill wrote it

	ID      uint64
	TraceID string
	Stats   FillStats

	batchSize int
	channels  int
	height    int
	width     int
	layout    preprocessing.LabelLayout
}

// NewBatch allocates a batch buffer
func NewBatch(batchSize, channels, height, width int, layout preprocessing.LabelLayout) *Batch {
	return &Batch{
		Images:    make([]float32, batchSize*channels*height*width),
		Labels:    make([]float32, batchSize*layout.Len()),
		Written:   make([]bool, batchSize),
		batchSize: batchSize,
		channels:  channels,
		height:    height,
		width:     width,
		layout:    layout,
	}
}

// BatchSize returns the number of slots
func (b *Batch) BatchSize() int {
	return b.batchSize
}

// Layout returns the label layout
func (b *Batch) Layout() preprocessing.LabelLayout {
	return b.layout
}

// ImageShape returns (batch, C, H, W)
func (b *Batch) ImageShape() []int {
	return []int{b.batchSize, b.channels, b.height, b.width}
}

// LabelShape returns (batch, L, 1, 1)
func (b *Batch) LabelShape() []int {
	return []int{b.batchSize, b.layout.Len(), 1, 1}
}

// ItemSize returns the number of image values per slot
func (b *Batch) ItemSize() int {
	return b.channels * b.height * b.width
}

// Image returns the image slice of a slot
func (b *Batch) Image(item int) []float32 {
	size := b.ItemSize()
	return b.Images[item*size : (item+1)*size]
}

// ClassLabels returns the class label slice of a slot
func (b *Batch) ClassLabels(item int) []float32 {
	off := b.layout.ClassOffset(b.batchSize, item)
	return b.Labels[off : off+b.layout.SegNum]
}

// MaskA returns the first mask slice of a slot
func (b *Batch) MaskA(item int) []float32 {
	off := b.layout.MaskAOffset(b.batchSize, item)
	return b.Labels[off : off+b.layout.MaskSize()]
}

// MaskB returns the second mask slice of a slot
func (b *Batch) MaskB(item int) []float32 {
	off := b.layout.MaskBOffset(b.batchSize, item)
	return b.Labels[off : off+b.layout.MaskSize()]
}

// ClassRegion returns the class labels of the whole batch
func (b *Batch) ClassRegion() []float32 {
	return b.Labels[:b.batchSize*b.layout.SegNum]
}

// MaskARegion returns the first masks of the whole batch
func (b *Batch) MaskARegion() []float32 {
	start := b.layout.MaskAOffset(b.batchSize, 0)
	return b.Labels[start : start+b.batchSize*b.layout.MaskSize()]
}

// MaskBRegion returns the second masks of the whole batch
func (b *Batch) MaskBRegion() []float32 {
	start := b.layout.MaskBOffset(b.batchSize, 0)
	return b.Labels[start : start+b.batchSize*b.layout.MaskSize()]
}

// WrittenCount returns how many slots the last fill wrote
func (b *Batch) WrittenCount() int {
	n := 0
	for _, w := range b.Written {
		if w {
			n++
		}
	}
	return n
}

// sameGeometry reports whether b was allocated with these shapes and layout
func (b *Batch) sameGeometry(batchSize, channels, height, width int, layout preprocessing.LabelLayout) bool {
	return b.batchSize == batchSize && b.channels == channels && b.height == height &&
		b.width == width && b.layout == layout &&
		len(b.Images) == batchSize*channels*height*width && len(b.Labels) == batchSize*layout.Len()
}
