package server

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"example.com/tinysns/internal/middleware"
	"example.com/tinysns/internal/models"
	"github.com/gorilla/websocket"
)

func dialTimeline(t *testing.T, ts *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/timeline?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	// Give the handler a moment to install the session cursor.
	time.Sleep(100 * time.Millisecond)
	return conn
}

// awaitFrame reads frames until one of the wanted type arrives.
func awaitFrame(t *testing.T, conn *websocket.Conn, frameType string) models.TimelineFrame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var f models.TimelineFrame
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("waiting for %q frame: %v", frameType, err)
		}
		if f.Type == frameType {
			return f
		}
	}
}

// expectSilence asserts no post frame arrives within the window.
func expectSilence(t *testing.T, conn *websocket.Conn, window time.Duration) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(window))
	var f models.TimelineFrame
	if err := conn.ReadJSON(&f); err == nil && f.Type == models.FramePost {
		t.Fatalf("unexpected post frame: %+v", f)
	}
	conn.SetReadDeadline(time.Time{})
}

func TestTimeline_DeliversFolloweePost(t *testing.T) {
	_, ts := setupTestServer(t)

	alice := loginHelper(t, ts, "alice")
	bob := loginHelper(t, ts, "bob")
	callJSON(t, ts, "POST", "/follow", alice.Token, map[string]string{"followee": "bob"})

	aliceConn := dialTimeline(t, ts, alice.Token)
	bobConn := dialTimeline(t, ts, bob.Token)

	if err := bobConn.WriteJSON(models.TimelineFrame{Type: models.FramePost, Text: "hello"}); err != nil {
		t.Fatalf("write post: %v", err)
	}

	// The author gets an ack and sees the post on their own timeline; the
	// two frames may arrive in either order.
	var gotAck, gotOwn bool
	bobConn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for !gotAck || !gotOwn {
		var f models.TimelineFrame
		if err := bobConn.ReadJSON(&f); err != nil {
			t.Fatalf("reading author frames: %v", err)
		}
		switch f.Type {
		case models.FrameAck:
			if f.Status != models.StatusSuccess {
				t.Fatalf("post ack: %+v", f)
			}
			gotAck = true
		case models.FramePost:
			if f.Post == nil || f.Post.Author != "bob" {
				t.Fatalf("author own-post frame: %+v", f)
			}
			gotOwn = true
		}
	}

	frame := awaitFrame(t, aliceConn, models.FramePost)
	if frame.Post == nil || frame.Post.Author != "bob" || frame.Post.Text != "hello" {
		t.Fatalf("delivered frame: %+v", frame)
	}

	// Exactly once: nothing further arrives for alice.
	expectSilence(t, aliceConn, 300*time.Millisecond)
}

// Posts appended before the stream opened never surface on it.
func TestTimeline_ForwardOnly(t *testing.T) {
	s, ts := setupTestServer(t)

	alice := loginHelper(t, ts, "alice")
	loginHelper(t, ts, "bob")
	callJSON(t, ts, "POST", "/follow", alice.Token, map[string]string{"followee": "bob"})

	s.store.Append("bob", "historical")

	conn := dialTimeline(t, ts, alice.Token)
	expectSilence(t, conn, 300*time.Millisecond)

	s.store.Append("bob", "live")
	frame := awaitFrame(t, conn, models.FramePost)
	if frame.Post.Text != "live" {
		t.Fatalf("expected only the live post, got %+v", frame)
	}
}

func TestTimeline_MergesAuthorsByTimestamp(t *testing.T) {
	s, ts := setupTestServer(t)

	alice := loginHelper(t, ts, "alice")
	loginHelper(t, ts, "bob")
	loginHelper(t, ts, "carol")
	callJSON(t, ts, "POST", "/follow", alice.Token, map[string]string{"followee": "bob"})
	callJSON(t, ts, "POST", "/follow", alice.Token, map[string]string{"followee": "carol"})

	conn := dialTimeline(t, ts, alice.Token)

	s.store.Append("bob", "b1")
	s.store.Append("carol", "c1")
	s.store.Append("bob", "b2")

	var last int64
	for _, want := range []string{"b1", "c1", "b2"} {
		frame := awaitFrame(t, conn, models.FramePost)
		if frame.Post.Text != want {
			t.Fatalf("expected %q, got %+v", want, frame)
		}
		if frame.Post.Timestamp <= last {
			t.Fatalf("timestamps not increasing: %+v", frame)
		}
		last = frame.Post.Timestamp
	}
}

func TestTimeline_RejectsOversizedPost(t *testing.T) {
	_, ts := setupTestServer(t)

	bob := loginHelper(t, ts, "bob")
	conn := dialTimeline(t, ts, bob.Token)

	long := strings.Repeat("x", 1001)
	if err := conn.WriteJSON(models.TimelineFrame{Type: models.FramePost, Text: long}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if ack := awaitFrame(t, conn, models.FrameAck); ack.Status != models.StatusInvalid {
		t.Fatalf("oversized post ack: %+v", ack)
	}

	if err := conn.WriteJSON(models.TimelineFrame{Type: models.FramePost, Text: ""}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if ack := awaitFrame(t, conn, models.FrameAck); ack.Status != models.StatusInvalid {
		t.Fatalf("empty post ack: %+v", ack)
	}
}

func TestTimeline_RejectsUnknownFrame(t *testing.T) {
	_, ts := setupTestServer(t)

	bob := loginHelper(t, ts, "bob")
	conn := dialTimeline(t, ts, bob.Token)

	if err := conn.WriteJSON(models.TimelineFrame{Type: "subscribe"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if ack := awaitFrame(t, conn, models.FrameAck); ack.Status != models.StatusInvalid {
		t.Fatalf("unknown frame ack: %+v", ack)
	}
}

func TestTimeline_UnfollowStopsStream(t *testing.T) {
	s, ts := setupTestServer(t)

	alice := loginHelper(t, ts, "alice")
	loginHelper(t, ts, "bob")
	callJSON(t, ts, "POST", "/follow", alice.Token, map[string]string{"followee": "bob"})

	conn := dialTimeline(t, ts, alice.Token)

	s.store.Append("bob", "first")
	if frame := awaitFrame(t, conn, models.FramePost); frame.Post.Text != "first" {
		t.Fatalf("first post: %+v", frame)
	}

	callJSON(t, ts, "POST", "/unfollow", alice.Token, map[string]string{"followee": "bob"})
	s.store.Append("bob", "second")
	expectSilence(t, conn, 300*time.Millisecond)
}

// The limiter throttles bursts by delaying, never by rejecting: every post
// under the length bound is eventually appended and acked SUCCESS.
func TestTimeline_RateLimitDelaysButAcks(t *testing.T) {
	cfg := testConfig()
	cfg.PostRate = 20
	cfg.PostBurst = 1
	_, ts := setupTestServerWithConfig(t, cfg)

	bob := loginHelper(t, ts, "bob")
	conn := dialTimeline(t, ts, bob.Token)

	for i := 0; i < 3; i++ {
		if err := conn.WriteJSON(models.TimelineFrame{Type: models.FramePost, Text: "burst"}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	acked := 0
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for acked < 3 {
		var f models.TimelineFrame
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("after %d acks: %v", acked, err)
		}
		if f.Type != models.FrameAck {
			continue
		}
		if f.Status != models.StatusSuccess {
			t.Fatalf("throttled post rejected: %+v", f)
		}
		acked++
	}
}

// A token naming a user the directory has never seen is refused before the
// upgrade happens.
func TestTimeline_UnknownUserRefused(t *testing.T) {
	_, ts := setupTestServer(t)

	token, err := middleware.IssueToken("ghost")
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/timeline?token=" + token
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatalf("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != 403 {
		t.Fatalf("expected 403, got %+v", resp)
	}
}
