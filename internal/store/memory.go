package store

import (
	"sort"
	"sync"
	"sync/atomic"

	"example.com/tinysns/internal/models"
	"github.com/google/uuid"
)

// userState holds everything owned by a single user. Each state has its own
// lock so concurrent posts from unrelated authors never contend.
type userState struct {
	mu      sync.RWMutex
	follows map[string]struct{}
	posts   []models.Post // ascending by Timestamp
}

// MemoryStore is the canonical in-process store. The outer lock guards only
// the users map; all per-user mutation happens under the user's own lock.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]*userState
	clock atomic.Int64
}

func NewMemory() *MemoryStore {
	return &MemoryStore{users: make(map[string]*userState)}
}

func (s *MemoryStore) Close() {}

func (s *MemoryStore) Clock() int64 {
	return s.clock.Load()
}

func (s *MemoryStore) lookup(username string) (*userState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[username]
	return u, ok
}

func (s *MemoryStore) EnsureUser(username string) (bool, error) {
	if username == "" {
		return false, ErrInvalidUsername
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[username]; ok {
		return false, nil
	}
	s.users[username] = &userState{follows: make(map[string]struct{})}
	return true, nil
}

func (s *MemoryStore) Exists(username string) bool {
	_, ok := s.lookup(username)
	return ok
}

func (s *MemoryStore) Follow(follower, followee string) error {
	if follower == "" || followee == "" {
		return ErrInvalidUsername
	}
	if follower == followee {
		return ErrSelfFollow
	}
	if !s.Exists(followee) {
		return ErrNotExists
	}
	u, ok := s.lookup(follower)
	if !ok {
		return ErrNotExists
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, dup := u.follows[followee]; dup {
		return ErrAlreadyExists
	}
	u.follows[followee] = struct{}{}
	return nil
}

func (s *MemoryStore) Unfollow(follower, followee string) error {
	if follower == "" || followee == "" {
		return ErrInvalidUsername
	}
	u, ok := s.lookup(follower)
	if !ok {
		return ErrNotExists
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, present := u.follows[followee]; !present {
		return ErrNotExists
	}
	delete(u.follows, followee)
	return nil
}

func (s *MemoryStore) ListFollowing(username string) ([]string, error) {
	u, ok := s.lookup(username)
	if !ok {
		return nil, ErrNotExists
	}
	u.mu.RLock()
	defer u.mu.RUnlock()
	res := make([]string, 0, len(u.follows))
	for name := range u.follows {
		res = append(res, name)
	}
	sort.Strings(res)
	return res, nil
}

func (s *MemoryStore) ListAll() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]string, 0, len(s.users))
	for name := range s.users {
		res = append(res, name)
	}
	sort.Strings(res)
	return res
}

func (s *MemoryStore) Append(author, text string) (models.Post, error) {
	if author == "" {
		return models.Post{}, ErrInvalidUsername
	}
	u, ok := s.lookup(author)
	if !ok {
		return models.Post{}, ErrNotExists
	}
	// The clock is advanced under the author's lock, so within one log the
	// timestamps match append order exactly; across logs the atomic counter
	// keeps the total order strict.
	u.mu.Lock()
	defer u.mu.Unlock()
	post := models.Post{
		ID:        uuid.NewString(),
		Author:    author,
		Text:      text,
		Timestamp: s.clock.Add(1),
	}
	u.posts = append(u.posts, post)
	return post, nil
}

func (s *MemoryStore) PostsAfter(author string, cursor int64) []models.Post {
	u, ok := s.lookup(author)
	if !ok {
		// A vanished author contributes nothing rather than failing the merge.
		return nil
	}
	u.mu.RLock()
	defer u.mu.RUnlock()
	idx := sort.Search(len(u.posts), func(i int) bool {
		return u.posts[i].Timestamp > cursor
	})
	if idx == len(u.posts) {
		return nil
	}
	res := make([]models.Post, len(u.posts)-idx)
	copy(res, u.posts[idx:])
	return res
}

// Restore replays an archived user set and post log into the store. Posts
// must arrive in ascending timestamp order; they are re-appended and get
// fresh logical timestamps that preserve the archived order.
func (s *MemoryStore) Restore(users []string, posts []models.Post) error {
	for _, name := range users {
		if _, err := s.EnsureUser(name); err != nil {
			return err
		}
	}
	for _, p := range posts {
		if _, err := s.EnsureUser(p.Author); err != nil {
			return err
		}
		if _, err := s.Append(p.Author, p.Text); err != nil {
			return err
		}
	}
	return nil
}
