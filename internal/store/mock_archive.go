package store

import (
	"errors"
	"sort"
	"sync"

	"example.com/tinysns/internal/models"
)

// MockArchive simulates the Cassandra archive for testing.
type MockArchive struct {
	mu         sync.Mutex
	Users      map[string]struct{}
	Posts      []models.Post
	ShouldFail bool // flag to simulate failures
}

// NewMockArchive initializes a new mock archive
func NewMockArchive() *MockArchive {
	return &MockArchive{Users: make(map[string]struct{})}
}

func (m *MockArchive) Close() {}

func (m *MockArchive) SaveUser(username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return errors.New("mock: save user failed")
	}
	m.Users[username] = struct{}{}
	return nil
}

func (m *MockArchive) SavePost(post models.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return errors.New("mock: save post failed")
	}
	m.Posts = append(m.Posts, post)
	return nil
}

func (m *MockArchive) LoadUsers() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return nil, errors.New("mock: load users failed")
	}
	res := make([]string, 0, len(m.Users))
	for name := range m.Users {
		res = append(res, name)
	}
	sort.Strings(res)
	return res, nil
}

func (m *MockArchive) LoadPosts() ([]models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return nil, errors.New("mock: load posts failed")
	}
	res := make([]models.Post, len(m.Posts))
	copy(res, m.Posts)
	sort.Slice(res, func(i, j int) bool { return res[i].Timestamp < res[j].Timestamp })
	return res, nil
}

// PostCount returns the number of archived posts.
func (m *MockArchive) PostCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Posts)
}

// ---------------------------------------------
// MockArchiveFail always returns errors for negative tests
type MockArchiveFail struct{}

func (m *MockArchiveFail) Close() {}

func (m *MockArchiveFail) SaveUser(username string) error {
	return errors.New("mock archive save user failed")
}

func (m *MockArchiveFail) SavePost(post models.Post) error {
	return errors.New("mock archive save post failed")
}

func (m *MockArchiveFail) LoadUsers() ([]string, error) {
	return nil, errors.New("mock archive load users failed")
}

func (m *MockArchiveFail) LoadPosts() ([]models.Post, error) {
	return nil, errors.New("mock archive load posts failed")
}
