// Package maintenance bounds the pending queue and the capture directory.
package maintenance

import (
	"fmt"
	"sort"
	"time"

	"plantwatch/internal/config"
	"plantwatch/internal/model"
	"plantwatch/internal/service/submission"
)

// PrunePending applies the retention rules in order: age, retry count,
// then the newest MaxEntries by timestamp. A zero MaxAge or MaxEntries
// disables that rule; a negative MaxRetries disables the retry rule.
// The result is sorted newest first, so pruning it again removes nothing.
func PrunePending(entries []model.PendingSubmission, policy config.PendingCleanupConfig, now time.Time) ([]model.PendingSubmission, model.CleanupStats) {
	stats := model.CleanupStats{TotalBefore: len(entries)}

	kept := make([]model.PendingSubmission, 0, len(entries))
	for _, e := range entries {
		if policy.MaxAge > 0 && now.Sub(e.Timestamp) > policy.MaxAge {
			stats.RemovedOld++
			continue
		}
		if policy.MaxRetries >= 0 && e.Retries > policy.MaxRetries {
			stats.RemovedRetries++
			continue
		}
		kept = append(kept, e)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Timestamp.After(kept[j].Timestamp)
	})
	if policy.MaxEntries > 0 && len(kept) > policy.MaxEntries {
		stats.RemovedExcess = len(kept) - policy.MaxEntries
		kept = kept[:policy.MaxEntries]
	}

	stats.TotalAfter = len(kept)
	return kept, stats
}

// CleanupPending prunes the queue file in place.
func CleanupPending(queue *submission.PendingQueue, policy config.PendingCleanupConfig, now time.Time) (model.CleanupStats, error) {
	var stats model.CleanupStats
	err := queue.Update(func(entries []model.PendingSubmission) []model.PendingSubmission {
		var kept []model.PendingSubmission
		kept, stats = PrunePending(entries, policy, now)
		return kept
	})
	if err != nil {
		return model.CleanupStats{}, fmt.Errorf("failed to clean pending queue: %w", err)
	}
	return stats, nil
}
