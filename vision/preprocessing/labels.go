package preprocessing

import (
	"github.com/pkg/errors"
)

// LabelLayout describes how a flat per-sample label vector decomposes into a
// class label region followed by two square mask regions.
type LabelLayout struct {
	SegNum    int // number of class labels
	LabelSize int // side of each square mask
}

// DefaultLabelLayout is the layout used for buffer sizing and for packing.
// It is fixed per configuration and not exposed in configuration files.
var DefaultLabelLayout = LabelLayout{SegNum: 200, LabelSize: 64}

// MaskSize returns the number of values in one mask region
func (l LabelLayout) MaskSize() int {
	return l.LabelSize * l.LabelSize
}

// Len returns the per-sample label length: SegNum + 2*LabelSize²
func (l LabelLayout) Len() int {
	return l.SegNum + 2*l.MaskSize()
}

// Validate checks that both dimensions are usable
func (l LabelLayout) Validate() error {
	if l.SegNum <= 0 {
		return errors.Errorf("seg_num must be positive, got %d", l.SegNum)
	}
	if l.LabelSize <= 0 {
		return errors.Errorf("label_size must be positive, got %d", l.LabelSize)
	}
	return nil
}

// ClassOffset is the offset of item's class labels inside a batch label buffer
func (l LabelLayout) ClassOffset(batchSize, item int) int {
	return item * l.SegNum
}

// MaskAOffset is the offset of item's first mask inside a batch label buffer.
// All class regions of the batch come first.
func (l LabelLayout) MaskAOffset(batchSize, item int) int {
	return batchSize*l.SegNum + item*l.MaskSize()
}

// MaskBOffset is the offset of item's second mask inside a batch label buffer.
// It follows all class regions and all first masks of the batch.
func (l LabelLayout) MaskBOffset(batchSize, item int) int {
	return batchSize*(l.SegNum+l.MaskSize()) + item*l.MaskSize()
}

// Split returns the three regions of a single sample's label vector.
// labels must have length Len().
func (l LabelLayout) Split(labels []float32) (classes, maskA, maskB []float32) {
	ms := l.MaskSize()
	classes = labels[:l.SegNum]
	maskA = labels[l.SegNum : l.SegNum+ms]
	maskB = labels[l.SegNum+ms : l.SegNum+2*ms]
	return classes, maskA, maskB
}
