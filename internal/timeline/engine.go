package timeline

import (
	"context"
	"errors"
	"sort"
	"time"

	"example.com/tinysns/internal/models"
)

// Feed is the slice of the store the merge engine reads from.
type Feed interface {
	ListFollowing(username string) ([]string, error)
	PostsAfter(author string, cursor int64) []models.Post
	Clock() int64
}

// DefaultPoll is the fallback delivery interval used when a session is not
// woken by post events.
const DefaultPoll = 500 * time.Millisecond

// Session merges the subscriber's own posts and all followees' posts into
// one timestamp-ascending stream. The cursor starts at the store clock at
// session start: the feed shows activity from the moment of subscription
// forward, with no retroactive backfill.
type Session struct {
	feed     Feed
	username string
	cursor   int64
	poll     time.Duration
}

func NewSession(feed Feed, username string, poll time.Duration) *Session {
	if poll <= 0 {
		poll = DefaultPoll
	}
	return &Session{
		feed:     feed,
		username: username,
		cursor:   feed.Clock(),
		poll:     poll,
	}
}

// Cursor returns the timestamp of the last delivered post (or the session
// start clock if nothing has been delivered yet).
func (s *Session) Cursor() int64 {
	return s.cursor
}

// Run delivers posts until ctx is cancelled or deliver fails. The events
// channel wakes the session early; a closed or nil events channel degrades
// to pure interval polling.
func (s *Session) Run(ctx context.Context, events <-chan models.Post, deliver func(models.Post) error) error {
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-events:
			if !ok {
				events = nil
				continue
			}
		case <-ticker.C:
		}

		if err := s.Cycle(deliver); err != nil {
			return err
		}
	}
}

// Cycle performs one delivery pass: snapshot the followee set late-bound,
// gather each author's posts past the cursor, merge, deliver in order and
// advance the cursor. Unfollowed or vanished authors simply stop
// contributing; already-delivered posts are never retracted.
func (s *Session) Cycle(deliver func(models.Post) error) error {
	following, err := s.feed.ListFollowing(s.username)
	if err != nil {
		// Directory inconsistency: treat the graph as empty rather than
		// aborting the stream; own posts below still flow.
		following = nil
	}
	authors := append(following, s.username)

	// Authors are read one lock at a time, so a post can land in an
	// already-read log while a later author appends something newer.
	// Bounding the pass at the clock value seen here keeps the merge
	// complete: anything past the limit waits for the next cycle, and the
	// cursor never passes it.
	limit := s.feed.Clock()

	batches := make([][]models.Post, 0, len(authors))
	for _, author := range authors {
		batch := s.feed.PostsAfter(author, s.cursor)
		if n := sort.Search(len(batch), func(i int) bool {
			return batch[i].Timestamp > limit
		}); n < len(batch) {
			batch = batch[:n]
		}
		if len(batch) > 0 {
			batches = append(batches, batch)
		}
	}

	for _, post := range mergeByTimestamp(batches) {
		if err := deliver(post); err != nil {
			return err
		}
		s.cursor = post.Timestamp
	}
	return nil
}

// ErrStreamClosed is returned by deliver callbacks to end a session without
// treating the shutdown as a failure.
var ErrStreamClosed = errors.New("timeline stream closed")
