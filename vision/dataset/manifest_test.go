package dataset

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeManifest writes content to a manifest file in a temp dir
func writeManifest(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "train.txt")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write manifest: %v", err)
	}
	return path
}

func TestLoadManifest(t *testing.T) {
	t.Run("OneTokenPerLine", func(t *testing.T) {
		path := writeManifest(t, "img/a.jpg\nimg/b.jpg\nimg/c.jpg\n")

		entries, err := LoadManifest(path, "")
		require.NoError(t, err)
		require.Len(t, entries, 3)

		assert.Equal(t, Entry{ImagePath: "img/a.jpg", MaskPath: "img/a.jpg.png"}, entries[0])
		assert.Equal(t, "img/c.jpg", entries[2].ImagePath)
		assert.Equal(t, "img/c.jpg.png", entries[2].MaskPath)
	})

	t.Run("MixedWhitespace", func(t *testing.T) {
		path := writeManifest(t, "  a.jpg\tb.jpg\n\n c.jpg   d.jpg\r\n")

		entries, err := LoadManifest(path, "")
		require.NoError(t, err)
		require.Len(t, entries, 4)
		assert.Equal(t, "d.jpg", entries[3].ImagePath)
	})

	t.Run("RootFolderPrefix", func(t *testing.T) {
		path := writeManifest(t, "a.jpg b.jpg")

		entries, err := LoadManifest(path, "/data/")
		require.NoError(t, err)
		assert.Equal(t, "/data/a.jpg", entries[0].ImagePath)
		assert.Equal(t, "/data/a.jpg.png", entries[0].MaskPath)
	})

	t.Run("EmptyManifest", func(t *testing.T) {
		path := writeManifest(t, "\n  \n")

		entries, err := LoadManifest(path, "")
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, err := LoadManifest(filepath.Join(t.TempDir(), "missing.txt"), "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to open manifest")
	})
}

func TestParseManifest(t *testing.T) {
	entries, err := ParseManifest(strings.NewReader("x y z"), "r/")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "r/y.png", entries[1].MaskPath)
}

func TestManifestDataset(t *testing.T) {
	path := writeManifest(t, "a b c d e")

	ds, err := NewManifestDataset(path, "")
	require.NoError(t, err)

	t.Run("Entry", func(t *testing.T) {
		assert.Equal(t, 5, ds.Len())
		assert.Equal(t, path, ds.Source())

		entry, err := ds.Entry(1)
		require.NoError(t, err)
		assert.Equal(t, "b", entry.ImagePath)

		_, err = ds.Entry(5)
		assert.Error(t, err)
		_, err = ds.Entry(-1)
		assert.Error(t, err)
	})

	t.Run("EntriesIsCopy", func(t *testing.T) {
		entries := ds.Entries()
		entries[0].ImagePath = "changed"

		entry, _ := ds.Entry(0)
		assert.Equal(t, "a", entry.ImagePath)
	})

	t.Run("Subset", func(t *testing.T) {
		subset, err := ds.Subset([]int{4, 0})
		require.NoError(t, err)
		require.Equal(t, 2, subset.Len())

		first, _ := subset.Entry(0)
		assert.Equal(t, "e", first.ImagePath)

		_, err = ds.Subset([]int{7})
		assert.Error(t, err)
	})

	t.Run("String", func(t *testing.T) {
		s := ds.String()
		assert.Contains(t, s, "5 samples")
		assert.Contains(t, s, "a -> a.png")
		assert.Contains(t, s, "2 more")
	})
}
