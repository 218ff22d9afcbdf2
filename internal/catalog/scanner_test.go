package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func writeImages(t *testing.T, dir string, names ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("img"), 0o644))
	}
}

func TestScanner_ScanBuildsRelativeKey(t *testing.T) {
	root := t.TempDir()
	imageDir := filepath.Join(root, "清理后", "灵栖清泉曲谱")
	writeImages(t, imageDir, "b.jpg", "A.PNG", "readme.txt", ".jpg")

	scanner := NewScanner(root, WithLocale(language.English))
	cat, err := scanner.Scan(context.Background(), imageDir)
	require.NoError(t, err)

	assert.Equal(t, "清理后/灵栖清泉曲谱", cat.ImageDir)
	assert.Equal(t, []string{"A.PNG", "b.jpg"}, cat.Filenames())
	for _, e := range cat.Entries {
		assert.Equal(t, cat.ImageDir, e.ImageDir)
	}
	assert.Equal(t, "A", cat.Entries[0].Name)
}

func TestScanner_DirKeyIsNFC(t *testing.T) {
	root := t.TempDir()
	scanner := NewScanner(root)

	// "é" spelled as e + combining acute accent
	key, err := scanner.DirKey(filepath.Join(root, "cafe\u0301"))
	require.NoError(t, err)
	assert.Equal(t, "caf\u00e9", key)
}

func TestScanner_ScanAllKeepsOrder(t *testing.T) {
	root := t.TempDir()
	writeImages(t, filepath.Join(root, "one"), "1.jpg")
	writeImages(t, filepath.Join(root, "two"), "2.jpg", "3.jpeg")

	scanner := NewScanner(root)
	cats, err := scanner.ScanAll(context.Background(), []string{
		filepath.Join(root, "two"),
		filepath.Join(root, "one"),
	})
	require.NoError(t, err)
	require.Len(t, cats, 2)
	assert.Equal(t, "two", cats[0].ImageDir)
	assert.Len(t, cats[0].Entries, 2)
	assert.Equal(t, "one", cats[1].ImageDir)
}

func TestScanner_ScanMissingDir(t *testing.T) {
	scanner := NewScanner(t.TempDir())
	_, err := scanner.Scan(context.Background(), filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}
