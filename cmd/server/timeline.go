package server

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"example.com/tinysns/internal/metrics"
	"example.com/tinysns/internal/middleware"
	"example.com/tinysns/internal/models"
	"example.com/tinysns/internal/timeline"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// timelineConn serializes writes; gorilla permits one concurrent writer and
// both the merge engine and the ack path write to the socket.
type timelineConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *timelineConn) writeFrame(f models.TimelineFrame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(f)
}

// timelineHandler upgrades GET /timeline to the duplex streaming session.
// Entering the stream is one-way: the socket closing ends the session and
// releases its cursor; there is no path back to command mode.
func (s *Server) timelineHandler(w http.ResponseWriter, r *http.Request) {
	username, ok := middleware.UsernameFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !s.store.Exists(username) {
		http.Error(w, "unknown user", http.StatusForbidden)
		return
	}

	raw, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logg.Error("http/timeline", "Websocket upgrade failed", err)
		return
	}
	conn := &timelineConn{conn: raw}
	defer raw.Close()

	metrics.ActiveTimelines.Inc()
	defer metrics.ActiveTimelines.Dec()
	logg.Info("http/timeline", "Timeline stream opened for "+username)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events, unsubscribe := s.bus.Subscribe()
	defer unsubscribe()

	// Inbound: client-submitted posts, one ack per post.
	go s.readPosts(ctx, cancel, conn, username)

	// Outbound: the merge engine drives deliveries until the socket dies.
	session := timeline.NewSession(s.store, username, s.cfg.TimelinePoll)
	err = session.Run(ctx, events, func(post models.Post) error {
		if werr := conn.writeFrame(models.TimelineFrame{Type: models.FramePost, Post: &post}); werr != nil {
			return timeline.ErrStreamClosed
		}
		metrics.PostsDelivered.Inc()
		return nil
	})
	if err != nil && !errors.Is(err, timeline.ErrStreamClosed) && !errors.Is(err, context.Canceled) {
		logg.Error("http/timeline", "Timeline stream ended with error", err)
	}
	logg.Info("http/timeline", "Timeline stream closed for "+username)
}

// readPosts consumes client post submissions until the socket closes, then
// cancels the whole session. Appended posts stay visible to other
// subscribers even after this client disconnects.
func (s *Server) readPosts(ctx context.Context, cancel context.CancelFunc, conn *timelineConn, username string) {
	defer cancel()

	limiter := rate.NewLimiter(rate.Limit(s.cfg.PostRate), s.cfg.PostBurst)

	for {
		var f models.TimelineFrame
		if err := conn.conn.ReadJSON(&f); err != nil {
			return
		}
		if f.Type != models.FramePost {
			if err := conn.writeFrame(models.TimelineFrame{Type: models.FrameAck, Status: models.StatusInvalid}); err != nil {
				return
			}
			continue
		}

		if err := limiter.Wait(ctx); err != nil {
			return
		}

		st := s.acceptPost(username, f.Text)
		if err := conn.writeFrame(models.TimelineFrame{Type: models.FrameAck, Status: st}); err != nil {
			return
		}
	}
}

// acceptPost validates and appends a post, then publishes the post event so
// subscribed timelines wake up.
func (s *Server) acceptPost(author, text string) models.Status {
	if len(text) == 0 || len(text) > s.cfg.PostMaxLen {
		return models.StatusInvalid
	}

	post, err := s.store.Append(author, text)
	if err != nil {
		return statusOf(err)
	}
	metrics.PostsAppended.Inc()

	if err := s.bus.Publish(post); err != nil {
		// The post is already appended and will reach subscribers on their
		// next poll tick; report the append as successful.
		logg.Error("http/timeline", "Failed to publish post event", err)
	}
	return models.StatusSuccess
}
