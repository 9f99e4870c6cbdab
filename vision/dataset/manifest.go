package dataset

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// MaskSuffix is appended to every image path to locate its segmentation mask
const MaskSuffix = ".png"

// Entry is one (image, mask) pair of the manifest
type Entry struct {
	ImagePath string
	MaskPath  string
}

// LoadManifest reads a manifest file of whitespace-separated image paths.
// rootFolder is prepended verbatim to every token.
func LoadManifest(path string, rootFolder string) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open manifest %s", path)
	}
	defer file.Close()

	entries, err := ParseManifest(file, rootFolder)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read manifest %s", path)
	}
	return entries, nil
}

// ParseManifest parses manifest tokens from r. Any amount of whitespace,
// including newlines, separates tokens.
func ParseManifest(r io.Reader, rootFolder string) ([]Entry, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	scanner.Split(bufio.ScanWords)

	var entries []Entry
	for scanner.Scan() {
		imagePath := rootFolder + scanner.Text()
		entries = append(entries, Entry{
			ImagePath: imagePath,
			MaskPath:  imagePath + MaskSuffix,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// ManifestDataset holds the ordered entries of a manifest
type ManifestDataset struct {
	source  string
	entries []Entry
}

// NewManifestDataset loads the manifest at source
func NewManifestDataset(source string, rootFolder string) (*ManifestDataset, error) {
	entries, err := LoadManifest(source, rootFolder)
	if err != nil {
		return nil, err
	}
	return &ManifestDataset{source: source, entries: entries}, nil
}

// NewManifestDatasetFromEntries wraps already parsed entries
func NewManifestDatasetFromEntries(source string, entries []Entry) *ManifestDataset {
	return &ManifestDataset{source: source, entries: entries}
}

// Len returns the number of entries
func (d *ManifestDataset) Len() int {
	return len(d.entries)
}

// Source returns the manifest path the dataset was read from
func (d *ManifestDataset) Source() string {
	return d.source
}

// Entry returns the entry at the given index
func (d *ManifestDataset) Entry(index int) (Entry, error) {
	if index < 0 || index >= len(d.entries) {
		return Entry{}, fmt.Errorf("index %d out of range [0, %d)", index, len(d.entries))
	}
	return d.entries[index], nil
}

// Entries returns a copy of all entries
func (d *ManifestDataset) Entries() []Entry {
	out := make([]Entry, len(d.entries))
	copy(out, d.entries)
	return out
}

// Subset creates a dataset with the entries at the given indices
func (d *ManifestDataset) Subset(indices []int) (*ManifestDataset, error) {
	subset := &ManifestDataset{
		source:  d.source,
		entries: make([]Entry, len(indices)),
	}
	for i, idx := range indices {
		if idx < 0 || idx >= len(d.entries) {
			return nil, fmt.Errorf("subset index %d out of range [0, %d)", idx, len(d.entries))
		}
		subset.entries[i] = d.entries[idx]
	}
	return subset, nil
}

// String returns a short description of the dataset
func (d *ManifestDataset) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("ManifestDataset: %d samples from %s\n", len(d.entries), d.source))
	limit := min(3, len(d.entries))
	for i := 0; i < limit; i++ {
		sb.WriteString(fmt.Sprintf("  %s -> %s\n", d.entries[i].ImagePath, d.entries[i].MaskPath))
	}
	if len(d.entries) > limit {
		sb.WriteString(fmt.Sprintf("  ... %d more\n", len(d.entries)-limit))
	}
	return sb.String()
}
