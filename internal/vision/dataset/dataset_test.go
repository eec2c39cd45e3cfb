package dataset

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDataset(t *testing.T, root string, classes map[string][]string) {
	t.Helper()
	for class, files := range classes {
		dir := filepath.Join(root, class)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		for _, name := range files {
			require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("img"), 0o644))
		}
	}
}

func TestImageFolderSortedMapping(t *testing.T) {
	root := t.TempDir()
	writeDataset(t, root, map[string][]string{
		"10": {"a.jpg", "b.jpeg"},
		"1":  {"c.png"},
		"74": {"d.jpg", "skip.txt"},
	})

	folder, err := NewImageFolder(root)
	require.NoError(t, err)

	// Lexicographic, not numeric: "1" < "10" < "74".
	assert.Equal(t, []string{"1", "10", "74"}, folder.Classes())
	assert.Equal(t, map[string]int{"1": 0, "10": 1, "74": 2}, folder.ClassToIdx())
	assert.Equal(t, 3, folder.NumClasses())
	assert.Equal(t, 4, folder.Len(), "non-image files are skipped")

	// Samples follow sorted class order.
	assert.Equal(t, 0, folder.Sample(0).Label)
	assert.Equal(t, 2, folder.Sample(3).Label)
}

func TestImageFolderEmptyRoot(t *testing.T) {
	_, err := NewImageFolder(t.TempDir())
	require.Error(t, err)
}

func TestImageFolderWithMappingReusesTrainingIndices(t *testing.T) {
	validRoot := t.TempDir()
	// Validation split is missing class "1"; indices must still match
	// the training-time mapping.
	writeDataset(t, validRoot, map[string][]string{
		"10": {"a.jpg"},
		"74": {"b.jpg"},
	})

	trainMapping := map[string]int{"1": 0, "10": 1, "74": 2}
	folder, err := NewImageFolderWithMapping(validRoot, trainMapping)
	require.NoError(t, err)

	assert.Equal(t, 1, folder.Sample(0).Label)
	assert.Equal(t, 2, folder.Sample(1).Label)
	assert.Equal(t, 3, folder.NumClasses())
}

func TestImageFolderWithMappingRejectsUnknownClass(t *testing.T) {
	root := t.TempDir()
	writeDataset(t, root, map[string][]string{"99": {"a.jpg"}})

	_, err := NewImageFolderWithMapping(root, map[string]int{"1": 0})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "99")
}

func TestLoadCategoryNames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cat_to_name.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"74": "rose", "1": "pink primrose"}`), 0o644))

	names, err := LoadCategoryNames(path)
	require.NoError(t, err)
	assert.Equal(t, "rose", names.Name("74"))
	assert.Equal(t, "5", names.Name("5"), "unknown labels fall back to the label")
}

func TestLoadCategoryNamesBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := LoadCategoryNames(path)
	require.Error(t, err)
}

// buildTarGz packs name->content entries into an in-memory tar.gz.
func buildTarGz(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range entries {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Typeflag: tar.TypeReg,
			Mode:     0o644,
			Size:     int64(len(content)),
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestDownloadExtractsAndRemovesArchive(t *testing.T) {
	archive := buildTarGz(t, map[string]string{
		"train/1/a.jpg": "img-a",
		"valid/1/b.jpg": "img-b",
	})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(archive)
	}))
	defer server.Close()

	dest := t.TempDir()
	require.NoError(t, Download(context.Background(), server.URL+"/flower_data.tar.gz", dest))

	data, err := os.ReadFile(filepath.Join(dest, "train", "1", "a.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "img-a", string(data))

	_, err = os.Stat(filepath.Join(dest, "flower_data.tar.gz"))
	assert.True(t, os.IsNotExist(err), "archive should be removed after extraction")
}

func TestDownloadSkipsWhenTrainExists(t *testing.T) {
	dest := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dest, TrainDir), 0o755))

	// No server at this URL; the early skip means it is never contacted.
	require.NoError(t, Download(context.Background(), "http://127.0.0.1:1/flower_data.tar.gz", dest))
}

func TestDownloadRejectsHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	err := Download(context.Background(), server.URL, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestExtractRejectsPathEscape(t *testing.T) {
	archive := buildTarGz(t, map[string]string{"../evil.txt": "nope"})
	path := filepath.Join(t.TempDir(), "bad.tar.gz")
	require.NoError(t, os.WriteFile(path, archive, 0o644))

	err := extractTarGz(path, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes")
}
