package maintenance

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"plantwatch/internal/config"
)

func writeImage(t *testing.T, dir, name string, size int, age time.Duration) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0644))
	mtime := now.Add(-age)
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestCleanupImages_AgeCountSize(t *testing.T) {
	dir := t.TempDir()
	writeImage(t, dir, "ancient.jpg", 100, 40*24*time.Hour)
	writeImage(t, dir, "a.jpg", 100, 5*time.Hour)
	writeImage(t, dir, "b.jpeg", 100, 4*time.Hour)
	writeImage(t, dir, "c.png", 300, 3*time.Hour)
	writeImage(t, dir, "d.JPG", 100, 2*time.Hour)
	writeImage(t, dir, "e.jpg", 100, time.Hour)
	writeImage(t, dir, "notes.txt", 5000, 90*24*time.Hour)

	var removed []string
	stats, err := CleanupImages(dir, config.ImageCleanupConfig{
		MaxAge:   30 * 24 * time.Hour,
		MaxCount: 4,
		MaxSize:  250,
	}, now, func(name string) { removed = append(removed, name) })
	require.NoError(t, err)

	// age drops ancient, count drops a, size drops b and c (600 -> 200)
	require.Equal(t, 6, stats.TotalFiles)
	require.Equal(t, 1, stats.RemovedOld)
	require.Equal(t, 1, stats.RemovedCount)
	require.Equal(t, 2, stats.RemovedSize)
	require.Equal(t, 2, stats.Remaining)
	require.Equal(t, int64(600), stats.FreedBytes)
	require.Equal(t, []string{"ancient.jpg", "a.jpg", "b.jpeg", "c.png"}, removed)
	require.Equal(t, []string{"d.JPG", "e.jpg", "notes.txt"}, listDir(t, dir))
}

func TestCleanupImages_NoLimits(t *testing.T) {
	dir := t.TempDir()
	writeImage(t, dir, "a.jpg", 10, 400*24*time.Hour)

	stats, err := CleanupImages(dir, config.ImageCleanupConfig{}, now, nil)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Remaining)
}

func TestCleanupImages_MissingDir(t *testing.T) {
	stats, err := CleanupImages(filepath.Join(t.TempDir(), "nope"), config.ImageCleanupConfig{MaxCount: 1}, now, nil)
	require.NoError(t, err)
	require.Zero(t, stats.TotalFiles)
}
