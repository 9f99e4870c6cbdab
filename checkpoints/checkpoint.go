package checkpoints

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/tsawler/go-segloader/vision/dataloader"
)

const (
	framework = "go-segloader"
	version   = "1.0.0"
)

// CheckpointFormat defines the serialization format
type CheckpointFormat int

const (
	FormatJSON CheckpointFormat = iota
	FormatProto
)

func (cf CheckpointFormat) String() string {
	switch cf {
	case FormatJSON:
		return "JSON"
	case FormatProto:
		return "Proto"
	default:
		return "Unknown"
	}
}

// FormatForPath picks a format from the file extension: ".json" is JSON,
// anything else is protobuf wire.
func FormatForPath(path string) CheckpointFormat {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatProto
}

// Checkpoint is the loader state needed to resume the exact sample order
type Checkpoint struct {
	Source  string `json:"source"`
	Seed    int64  `json:"seed"`
	Shuffle bool   `json:"shuffle"`
	Cursor  int    `json:"cursor"`
	Passes  int    `json:"passes"`
	Indices []int  `json:"indices"`

	// Batches the consumer accepted before the checkpoint was taken
	BatchesConsumed uint64 `json:"batches_consumed"`

	Metadata CheckpointMetadata `json:"metadata"`
}

// CheckpointMetadata contains checkpoint metadata
type CheckpointMetadata struct {
	Version     string    `json:"version"`
	Framework   string    `json:"framework"`
	CreatedAt   time.Time `json:"created_at"`
	Description string    `json:"description,omitempty"`
}

// Capture snapshots the loader's order. The loader must not be filling,
// so stop any prefetcher first.
func Capture(dl *dataloader.DataLoader, batchesConsumed uint64) *Checkpoint {
	state := dl.State()
	return &Checkpoint{
		Source:          dl.Dataset().Source(),
		Seed:            state.Seed,
		Shuffle:         state.Shuffle,
		Cursor:          state.Cursor,
		Passes:          state.Passes,
		Indices:         state.Indices,
		BatchesConsumed: batchesConsumed,
	}
}

// OrderState converts the checkpoint back to a loader order state
func (cp *Checkpoint) OrderState() dataloader.OrderState {
	return dataloader.OrderState{
		Seed:    cp.Seed,
		Shuffle: cp.Shuffle,
		Cursor:  cp.Cursor,
		Passes:  cp.Passes,
		Indices: append([]int(nil), cp.Indices...),
	}
}

// Apply restores a checkpoint into a loader built from the same manifest
func Apply(dl *dataloader.DataLoader, cp *Checkpoint) error {
	if cp.Source != "" && cp.Source != dl.Dataset().Source() {
		return errors.Errorf("checkpoint was taken from %s, loader reads %s", cp.Source, dl.Dataset().Source())
	}
	return dl.Restore(cp.OrderState())
}

// CheckpointSaver handles saving loader checkpoints in various formats
type CheckpointSaver struct {
	format CheckpointFormat
}

// NewCheckpointSaver creates a new checkpoint saver for the specified format
func NewCheckpointSaver(format CheckpointFormat) *CheckpointSaver {
	return &CheckpointSaver{
		format: format,
	}
}

// SaveCheckpoint writes a checkpoint, filling in missing metadata
func (cs *CheckpointSaver) SaveCheckpoint(checkpoint *Checkpoint, path string) error {
	if checkpoint.Metadata.Framework == "" {
		checkpoint.Metadata.Framework = framework
		checkpoint.Metadata.Version = version
	}
	if checkpoint.Metadata.CreatedAt.IsZero() {
		checkpoint.Metadata.CreatedAt = time.Now().UTC()
	}

	var data []byte
	switch cs.format {
	case FormatJSON:
		var err error
		data, err = json.MarshalIndent(checkpoint, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to encode checkpoint")
		}
	case FormatProto:
		data = marshalWire(checkpoint)
	default:
		return errors.Errorf("unsupported checkpoint format: %s", cs.format)
	}

	// write then rename so readers never see a partial file
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrap(err, "failed to write checkpoint file")
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "failed to move checkpoint into place")
	}
	return nil
}

// LoadCheckpoint reads a checkpoint
func (cs *CheckpointSaver) LoadCheckpoint(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open checkpoint file")
	}

	switch cs.format {
	case FormatJSON:
		var checkpoint Checkpoint
		if err := json.Unmarshal(data, &checkpoint); err != nil {
			return nil, errors.Wrap(err, "failed to decode checkpoint")
		}
		return &checkpoint, nil
	case FormatProto:
		checkpoint, err := unmarshalWire(data)
		if err != nil {
			return nil, errors.Wrap(err, "failed to decode checkpoint")
		}
		return checkpoint, nil
	default:
		return nil, errors.Errorf("unsupported checkpoint format: %s", cs.format)
	}
}
