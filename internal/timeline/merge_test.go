package timeline

import (
	"reflect"
	"testing"

	"example.com/tinysns/internal/models"
)

func batch(author string, stamps ...int64) []models.Post {
	res := make([]models.Post, len(stamps))
	for i, ts := range stamps {
		res[i] = models.Post{Author: author, Timestamp: ts}
	}
	return res
}

func stampsOf(posts []models.Post) []int64 {
	res := make([]int64, len(posts))
	for i, p := range posts {
		res[i] = p.Timestamp
	}
	return res
}

func TestMerge_Interleaved(t *testing.T) {
	merged := mergeByTimestamp([][]models.Post{
		batch("x", 1, 4, 6),
		batch("y", 2, 3, 7),
		batch("z", 5),
	})
	want := []int64{1, 2, 3, 4, 5, 6, 7}
	if !reflect.DeepEqual(stampsOf(merged), want) {
		t.Fatalf("merge order: %v", stampsOf(merged))
	}
}

func TestMerge_EmptyBatches(t *testing.T) {
	if got := mergeByTimestamp(nil); got != nil {
		t.Fatalf("expected nil for no batches, got %v", got)
	}
	merged := mergeByTimestamp([][]models.Post{nil, batch("x", 2, 9), nil})
	if !reflect.DeepEqual(stampsOf(merged), []int64{2, 9}) {
		t.Fatalf("merge with empty contributions: %v", stampsOf(merged))
	}
}

// Colliding timestamps cannot happen under the global counter, but the
// merge stays stable if they ever do: the earlier batch wins.
func TestMerge_StableOnTie(t *testing.T) {
	merged := mergeByTimestamp([][]models.Post{
		batch("x", 3),
		batch("y", 3),
	})
	if len(merged) != 2 || merged[0].Author != "x" || merged[1].Author != "y" {
		t.Fatalf("tie not stable: %+v", merged)
	}
}
