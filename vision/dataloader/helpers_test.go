package dataloader

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"

	"github.com/tsawler/go-segloader/vision/dataset"
	"github.com/tsawler/go-segloader/vision/preprocessing"
)

var testLayout = preprocessing.LabelLayout{SegNum: 3, LabelSize: 2}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockDecoder produces samples whose pixels and labels encode the manifest
// index parsed from paths named "img_<n>".
type mockDecoder struct {
	mu       sync.Mutex
	channels int
	height   int
	width    int
	layout   preprocessing.LabelLayout
	fail     map[int]bool
	calls    []int
}

func newMockDecoder(channels, height, width int) *mockDecoder {
	return &mockDecoder{
		channels: channels,
		height:   height,
		width:    width,
		layout:   testLayout,
		fail:     make(map[int]bool),
	}
}

func (md *mockDecoder) Decode(imagePath, maskPath string, height, width int) (*preprocessing.Sample, error) {
	var idx int
	if _, err := fmt.Sscanf(filepath.Base(imagePath), "img_%d", &idx); err != nil {
		return nil, errors.Wrapf(err, "bad test path %s", imagePath)
	}
	if maskPath != imagePath+dataset.MaskSuffix {
		return nil, errors.Errorf("unexpected mask path %s", maskPath)
	}

	md.mu.Lock()
	md.calls = append(md.calls, idx)
	fail := md.fail[idx]
	md.mu.Unlock()
	if fail {
		return nil, errors.Errorf("corrupt sample %d", idx)
	}

	h, w := md.height, md.width
	if height > 0 {
		h, w = height, width
	}
	pixels := make([]float32, md.channels*h*w)
	for i := range pixels {
		pixels[i] = float32(idx)
	}
	labels := make([]float32, md.layout.Len())
	for i := range labels {
		labels[i] = float32(idx*1000 + i)
	}
	return &preprocessing.Sample{
		Pixels:   pixels,
		Channels: md.channels,
		Height:   h,
		Width:    w,
		Labels:   labels,
	}, nil
}

func (md *mockDecoder) Calls() []int {
	md.mu.Lock()
	defer md.mu.Unlock()
	out := make([]int, len(md.calls))
	copy(out, md.calls)
	return out
}

// mockEntries returns n entries named img_0..img_{n-1}
func mockEntries(n int) []dataset.Entry {
	entries := make([]dataset.Entry, n)
	for i := range entries {
		path := fmt.Sprintf("img_%d", i)
		entries[i] = dataset.Entry{ImagePath: path, MaskPath: path + dataset.MaskSuffix}
	}
	return entries
}

// writeMockManifest writes a manifest listing img_0..img_{n-1}
func writeMockManifest(t *testing.T, n int) string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("img_%d", i)
	}
	path := filepath.Join(t.TempDir(), "train.txt")
	if err := os.WriteFile(path, []byte(strings.Join(names, "\n")+"\n"), 0644); err != nil {
		t.Fatalf("Failed to write manifest: %v", err)
	}
	return path
}

// writeImagePair writes a solid PNG image and a two-class gray mask
func writeImagePair(t *testing.T, imagePath string, width, height int, class uint8) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	mask := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: 100, G: 150, B: 200, A: 255})
			if x >= width/2 {
				mask.SetGray(x, y, color.Gray{Y: class})
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode image: %v", err)
	}
	if err := os.WriteFile(imagePath, buf.Bytes(), 0644); err != nil {
		t.Fatalf("Failed to write image: %v", err)
	}

	buf.Reset()
	if err := png.Encode(&buf, mask); err != nil {
		t.Fatalf("Failed to encode mask: %v", err)
	}
	if err := os.WriteFile(imagePath+dataset.MaskSuffix, buf.Bytes(), 0644); err != nil {
		t.Fatalf("Failed to write mask: %v", err)
	}
}
