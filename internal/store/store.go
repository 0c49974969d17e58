package store

import (
	"errors"

	"example.com/tinysns/internal/models"
)

// Component-level failures are plain sentinel errors. The server façade is
// the single place that maps them to wire status codes.
var (
	ErrInvalidUsername = errors.New("invalid username")
	ErrNotExists       = errors.New("does not exist")
	ErrAlreadyExists   = errors.New("already exists")
	ErrSelfFollow      = errors.New("cannot follow self")
)

// StoreInterface bundles the user directory, the follow graph and the
// per-author post logs behind one surface.
type StoreInterface interface {
	// EnsureUser registers username if absent and reports whether this
	// call created the entry. Idempotent.
	EnsureUser(username string) (created bool, err error)
	Exists(username string) bool

	Follow(follower, followee string) error
	Unfollow(follower, followee string) error
	ListFollowing(username string) ([]string, error)
	ListAll() []string

	// Append assigns the next logical timestamp and appends the post to
	// the author's log.
	Append(author, text string) (models.Post, error)
	// PostsAfter returns the author's posts with timestamp > cursor in
	// ascending timestamp order. An unknown author yields nil.
	PostsAfter(author string, cursor int64) []models.Post

	// Clock returns the current logical clock value. Posts appended from
	// now on carry strictly greater timestamps.
	Clock() int64

	Close()
}

// ArchiveInterface is the durable side store. It keeps a best-effort copy
// of users and posts so a fresh server can replay them on boot.
type ArchiveInterface interface {
	SaveUser(username string) error
	SavePost(post models.Post) error
	LoadUsers() ([]string, error)
	// LoadPosts returns all archived posts in ascending timestamp order.
	LoadPosts() ([]models.Post, error)
	Close()
}
