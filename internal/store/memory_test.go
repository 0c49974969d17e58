package store

import (
	"errors"
	"reflect"
	"sync"
	"testing"

	"example.com/tinysns/internal/models"
)

func TestEnsureUser_Idempotent(t *testing.T) {
	s := NewMemory()

	created, err := s.EnsureUser("alice")
	if err != nil || !created {
		t.Fatalf("first EnsureUser: created=%v err=%v", created, err)
	}

	created, err = s.EnsureUser("alice")
	if err != nil || created {
		t.Fatalf("second EnsureUser: created=%v err=%v", created, err)
	}

	if !s.Exists("alice") {
		t.Fatalf("expected alice to exist")
	}
	if s.Exists("bob") {
		t.Fatalf("did not expect bob to exist")
	}
}

func TestEnsureUser_EmptyName(t *testing.T) {
	s := NewMemory()
	if _, err := s.EnsureUser(""); !errors.Is(err, ErrInvalidUsername) {
		t.Fatalf("expected ErrInvalidUsername, got %v", err)
	}
}

func TestFollow_Validation(t *testing.T) {
	s := NewMemory()
	s.EnsureUser("alice")

	if err := s.Follow("alice", "alice"); !errors.Is(err, ErrSelfFollow) {
		t.Fatalf("self-follow: expected ErrSelfFollow, got %v", err)
	}
	if err := s.Follow("alice", "bob"); !errors.Is(err, ErrNotExists) {
		t.Fatalf("unknown followee: expected ErrNotExists, got %v", err)
	}

	s.EnsureUser("bob")
	if err := s.Follow("ghost", "bob"); !errors.Is(err, ErrNotExists) {
		t.Fatalf("unknown follower: expected ErrNotExists, got %v", err)
	}
	if err := s.Follow("alice", ""); !errors.Is(err, ErrInvalidUsername) {
		t.Fatalf("empty followee: expected ErrInvalidUsername, got %v", err)
	}

	if err := s.Follow("alice", "bob"); err != nil {
		t.Fatalf("follow failed: %v", err)
	}
	if err := s.Follow("alice", "bob"); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("duplicate edge: expected ErrAlreadyExists, got %v", err)
	}
}

// Edge existence after any follow/unfollow sequence matches the parity of
// the applied operations.
func TestFollowUnfollow_Parity(t *testing.T) {
	s := NewMemory()
	s.EnsureUser("alice")
	s.EnsureUser("bob")

	if err := s.Unfollow("alice", "bob"); !errors.Is(err, ErrNotExists) {
		t.Fatalf("unfollow absent edge: expected ErrNotExists, got %v", err)
	}

	if err := s.Follow("alice", "bob"); err != nil {
		t.Fatalf("follow: %v", err)
	}
	if err := s.Unfollow("alice", "bob"); err != nil {
		t.Fatalf("unfollow: %v", err)
	}
	if err := s.Unfollow("alice", "bob"); !errors.Is(err, ErrNotExists) {
		t.Fatalf("second unfollow: expected ErrNotExists, got %v", err)
	}

	if err := s.Follow("alice", "bob"); err != nil {
		t.Fatalf("re-follow: %v", err)
	}
	following, err := s.ListFollowing("alice")
	if err != nil {
		t.Fatalf("ListFollowing: %v", err)
	}
	if !reflect.DeepEqual(following, []string{"bob"}) {
		t.Fatalf("expected [bob], got %v", following)
	}
}

func TestAppend_TimestampsMatchAppendOrder(t *testing.T) {
	s := NewMemory()
	s.EnsureUser("alice")

	var last int64
	for i := 0; i < 100; i++ {
		post, err := s.Append("alice", "msg")
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		if post.Timestamp <= last {
			t.Fatalf("timestamp not strictly increasing: %d after %d", post.Timestamp, last)
		}
		last = post.Timestamp
	}

	posts := s.PostsAfter("alice", 0)
	if len(posts) != 100 {
		t.Fatalf("expected 100 posts, got %d", len(posts))
	}
	for i := 1; i < len(posts); i++ {
		if posts[i].Timestamp <= posts[i-1].Timestamp {
			t.Fatalf("log out of order at %d", i)
		}
	}
}

// Concurrent appends from many authors must produce distinct timestamps
// covering exactly 1..N.
func TestAppend_ConcurrentNoCollisions(t *testing.T) {
	s := NewMemory()
	authors := []string{"a", "b", "c", "d"}
	for _, a := range authors {
		s.EnsureUser(a)
	}

	const perAuthor = 50
	var wg sync.WaitGroup
	for _, a := range authors {
		wg.Add(1)
		go func(author string) {
			defer wg.Done()
			for i := 0; i < perAuthor; i++ {
				if _, err := s.Append(author, "x"); err != nil {
					t.Errorf("append: %v", err)
					return
				}
			}
		}(a)
	}
	wg.Wait()

	seen := make(map[int64]bool)
	for _, a := range authors {
		for _, p := range s.PostsAfter(a, 0) {
			if seen[p.Timestamp] {
				t.Fatalf("duplicate timestamp %d", p.Timestamp)
			}
			seen[p.Timestamp] = true
		}
	}
	total := int64(len(authors) * perAuthor)
	if int64(len(seen)) != total || s.Clock() != total {
		t.Fatalf("expected %d distinct timestamps and clock, got %d / %d", total, len(seen), s.Clock())
	}
}

func TestPostsAfter_Cursor(t *testing.T) {
	s := NewMemory()
	s.EnsureUser("alice")

	var stamps []int64
	for i := 0; i < 5; i++ {
		p, _ := s.Append("alice", "msg")
		stamps = append(stamps, p.Timestamp)
	}

	after := s.PostsAfter("alice", stamps[1])
	if len(after) != 3 || after[0].Timestamp != stamps[2] {
		t.Fatalf("cursor read wrong: %+v", after)
	}

	if got := s.PostsAfter("alice", stamps[4]); got != nil {
		t.Fatalf("expected nil past end, got %v", got)
	}
	if got := s.PostsAfter("ghost", 0); got != nil {
		t.Fatalf("expected nil for unknown author, got %v", got)
	}
}

func TestListAll(t *testing.T) {
	s := NewMemory()
	for _, name := range []string{"carol", "alice", "bob"} {
		s.EnsureUser(name)
	}
	if got := s.ListAll(); !reflect.DeepEqual(got, []string{"alice", "bob", "carol"}) {
		t.Fatalf("ListAll: %v", got)
	}
}

func TestRestore_ReplaysArchive(t *testing.T) {
	archive := NewMockArchive()
	archive.SaveUser("alice")
	archive.SaveUser("bob")
	archive.SaveUser("carol") // registered, never posted
	archive.SavePost(models.Post{ID: "1", Author: "bob", Text: "first", Timestamp: 10})
	archive.SavePost(models.Post{ID: "2", Author: "alice", Text: "second", Timestamp: 20})

	users, err := archive.LoadUsers()
	if err != nil {
		t.Fatalf("LoadUsers: %v", err)
	}
	posts, err := archive.LoadPosts()
	if err != nil {
		t.Fatalf("LoadPosts: %v", err)
	}

	s := NewMemory()
	if err := s.Restore(users, posts); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	if !s.Exists("alice") || !s.Exists("bob") || !s.Exists("carol") {
		t.Fatalf("restored users missing")
	}
	bobPosts := s.PostsAfter("bob", 0)
	alicePosts := s.PostsAfter("alice", 0)
	if len(bobPosts) != 1 || bobPosts[0].Text != "first" {
		t.Fatalf("bob posts: %+v", bobPosts)
	}
	// Archived order survives even though logical timestamps are reassigned.
	if len(alicePosts) != 1 || alicePosts[0].Timestamp <= bobPosts[0].Timestamp {
		t.Fatalf("restored order broken: %+v vs %+v", alicePosts, bobPosts)
	}
}

func TestMockArchiveFail(t *testing.T) {
	var a ArchiveInterface = &MockArchiveFail{}
	if err := a.SaveUser("x"); err == nil {
		t.Fatalf("expected SaveUser error")
	}
	if _, err := a.LoadPosts(); err == nil {
		t.Fatalf("expected LoadPosts error")
	}
}
