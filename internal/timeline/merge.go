package timeline

import "example.com/tinysns/internal/models"

// mergeByTimestamp combines per-author batches, each already ascending by
// timestamp, into one ascending sequence. Timestamps are globally unique,
// but if two ever collide the earlier batch wins, keeping the merge stable.
func mergeByTimestamp(batches [][]models.Post) []models.Post {
	total := 0
	for _, b := range batches {
		total += len(b)
	}
	if total == 0 {
		return nil
	}

	heads := make([]int, len(batches))
	out := make([]models.Post, 0, total)

	for len(out) < total {
		best := -1
		for i, b := range batches {
			if heads[i] >= len(b) {
				continue
			}
			if best == -1 || b[heads[i]].Timestamp < batches[best][heads[best]].Timestamp {
				best = i
			}
		}
		out = append(out, batches[best][heads[best]])
		heads[best]++
	}
	return out
}
