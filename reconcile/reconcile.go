// Package reconcile merges task lists fetched from the local store and the
// remote todo service into a single deduplicated listing.
//
// The two backends use disjoint ID spaces, so duplicates are detected with a
// derived natural-identity key built from the task title and owning user.
// Local records win on identity and on every field except a missing
// description, which is backfilled from the matching remote record.
package reconcile

import (
	"sort"
	"strings"

	"TaskAggregatorService/models"
)

// DuplicateKey derives the cross-source identity key for a task: the
// lowercase, whitespace-trimmed title joined with the user ID.
//
// Two tasks with equal titles and both without a user are considered
// duplicates. That is intentional; the matching strategy lives here so it
// can be swapped without touching the merge itself.
func DuplicateKey(task models.Task) string {
	return strings.ToLower(strings.TrimSpace(task.Title)) + "_" + task.UserId
}

// Merge combines the two independently fetched lists into one deduplicated
// list sorted by effective timestamp, most recent first.
//
// Local records are seeded first, keyed by ID. Each external record is then
// matched against the local list by DuplicateKey (first match wins). A match
// produces a copy of the local record tagged models.SourceMerged, keeping
// the local ID and all local fields except an empty description, which is
// taken from the external record. Unmatched external records are carried
// over as-is under their own IDs.
//
// Every input record contributes to exactly one output record. Merge never
// mutates its inputs.
func Merge(localTasks []models.Task, externalTasks []models.Task) []models.Task {
	taskMap := make(map[string]models.Task, len(localTasks)+len(externalTasks))

	for _, task := range localTasks {
		taskMap[task.Id] = task
	}

	for _, externalTask := range externalTasks {
		key := DuplicateKey(externalTask)

		matched := false
		for _, localTask := range localTasks {
			if DuplicateKey(localTask) != key {
				continue
			}
			mergedTask := localTask
			mergedTask.Source = models.SourceMerged
			if mergedTask.Description == "" {
				mergedTask.Description = externalTask.Description
			}
			taskMap[localTask.Id] = mergedTask
			matched = true
			break
		}

		if !matched {
			taskMap[externalTask.Id] = externalTask
		}
	}

	merged := make([]models.Task, 0, len(taskMap))
	for _, task := range taskMap {
		merged = append(merged, task)
	}

	sort.Slice(merged, func(i, j int) bool {
		return merged[i].EffectiveTimestamp().After(merged[j].EffectiveTimestamp())
	})
	return merged
}

// CountMerged returns how many tasks in the list carry models.SourceMerged.
func CountMerged(tasks []models.Task) int {
	count := 0
	for _, task := range tasks {
		if task.Source == models.SourceMerged {
			count++
		}
	}
	return count
}
