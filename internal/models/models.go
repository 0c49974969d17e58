package models

// Status is the closed set of wire status codes returned by the service.
// Every component-level result is mapped onto exactly one of these before
// crossing the service boundary.
type Status string

const (
	StatusSuccess         Status = "SUCCESS"
	StatusAlreadyExists   Status = "FAILURE_ALREADY_EXISTS"
	StatusNotExists       Status = "FAILURE_NOT_EXISTS"
	StatusInvalidUsername Status = "FAILURE_INVALID_USERNAME"
	StatusInvalid         Status = "FAILURE_INVALID"
	StatusUnknown         Status = "FAILURE_UNKNOWN"
)

type User struct {
	Username string `json:"username"`
}

// Post is immutable once created. Timestamp is the server-assigned logical
// clock value used both as ordering key and as a delivery cursor.
type Post struct {
	ID        string `json:"id"`
	Author    string `json:"author"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

type Follow struct {
	Follower string `json:"follower"`
	Followee string `json:"followee"`
}

// TimelineFrame is the envelope for both directions of the timeline socket.
// Server to client: {"type":"post","post":{...}} deliveries and
// {"type":"ack","status":"..."} acks. Client to server: {"type":"post",
// "text":"..."} submissions.
type TimelineFrame struct {
	Type   string `json:"type"`
	Status Status `json:"status,omitempty"`
	Post   *Post  `json:"post,omitempty"`
	Text   string `json:"text,omitempty"`
}

const (
	FramePost = "post"
	FrameAck  = "ack"
)
