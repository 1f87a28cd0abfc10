package maintenance

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"plantwatch/internal/config"
	"plantwatch/internal/model"
)

var imageExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

type imageFile struct {
	name    string
	modTime time.Time
	size    int64
}

// CleanupImages removes images from dir older than MaxAge, then the oldest
// beyond MaxCount, then the oldest until the total size fits MaxSize. Zero
// limits are ignored. onRemove, when set, is called with each removed file name.
func CleanupImages(dir string, policy config.ImageCleanupConfig, now time.Time, onRemove func(name string)) (model.ImageCleanupStats, error) {
	var stats model.ImageCleanupStats

	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return stats, nil
	}
	if err != nil {
		return stats, fmt.Errorf("failed to list image directory: %w", err)
	}

	var files []imageFile
	for _, entry := range entries {
		if entry.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, imageFile{name: entry.Name(), modTime: info.ModTime(), size: info.Size()})
	}
	stats.TotalFiles = len(files)

	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.Before(files[j].modTime)
	})

	remove := func(f imageFile) bool {
		if err := os.Remove(filepath.Join(dir, f.name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return false
		}
		stats.FreedBytes += f.size
		if onRemove != nil {
			onRemove(f.name)
		}
		return true
	}

	remaining := files[:0]
	for _, f := range files {
		if policy.MaxAge > 0 && now.Sub(f.modTime) > policy.MaxAge && remove(f) {
			stats.RemovedOld++
			continue
		}
		remaining = append(remaining, f)
	}

	if policy.MaxCount > 0 && len(remaining) > policy.MaxCount {
		excess := len(remaining) - policy.MaxCount
		var kept []imageFile
		for i, f := range remaining {
			if i < excess && remove(f) {
				stats.RemovedCount++
				continue
			}
			kept = append(kept, f)
		}
		remaining = kept
	}

	if policy.MaxSize > 0 {
		var total int64
		for _, f := range remaining {
			total += f.size
		}
		var kept []imageFile
		for _, f := range remaining {
			if total > policy.MaxSize && remove(f) {
				total -= f.size
				stats.RemovedSize++
				continue
			}
			kept = append(kept, f)
		}
		remaining = kept
	}

	stats.Remaining = len(remaining)
	return stats, nil
}
