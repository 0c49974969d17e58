package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"example.com/tinysns/internal/metrics"
	"example.com/tinysns/internal/middleware"
	"example.com/tinysns/internal/models"
	"example.com/tinysns/internal/store"
)

// --- HTTP Handlers ---

// Domain failures travel in the response body as a status code from the
// closed taxonomy; HTTP-level errors are reserved for malformed requests
// and broken credentials.

type statusReply struct {
	Status models.Status `json:"status"`
	Token  string        `json:"token,omitempty"`
}

type listReply struct {
	Status             models.Status `json:"status"`
	AllUsernames       []string      `json:"all_usernames"`
	FollowingUsernames []string      `json:"following_usernames"`
}

// statusOf maps store-level sentinel errors onto the wire taxonomy. This is
// the only place that translation happens.
func statusOf(err error) models.Status {
	switch {
	case err == nil:
		return models.StatusSuccess
	case errors.Is(err, store.ErrAlreadyExists):
		return models.StatusAlreadyExists
	case errors.Is(err, store.ErrNotExists):
		return models.StatusNotExists
	case errors.Is(err, store.ErrInvalidUsername):
		return models.StatusInvalidUsername
	case errors.Is(err, store.ErrSelfFollow):
		return models.StatusInvalid
	default:
		return models.StatusUnknown
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// loginHandler handles POST /login.
// Expects JSON body: {"username": "alice"}
// Registering a new user returns SUCCESS; an existing user returns
// FAILURE_ALREADY_EXISTS, which clients treat as a successful login. Both
// replies carry a session token.
func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	var body models.User

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		logg.Error("http/login", "Invalid request body", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if len(body.Username) == 0 || len(body.Username) > 50 {
		logg.Info("http/login", "Invalid username length")
		writeJSON(w, statusReply{Status: models.StatusInvalidUsername})
		return
	}

	created, err := s.store.EnsureUser(body.Username)
	if err != nil {
		writeJSON(w, statusReply{Status: statusOf(err)})
		return
	}

	token, err := middleware.IssueToken(body.Username)
	if err != nil {
		logg.Error("http/login", "Failed to issue session token", err)
		http.Error(w, "failed to issue token", http.StatusInternalServerError)
		return
	}

	metrics.Logins.Inc()

	if created {
		// Announce the registration so the archiver records users who
		// never post; the directory keeps working if the publish fails.
		if err := s.bus.PublishUser(body.Username); err != nil {
			logg.Error("http/login", "Failed to publish user event", err)
		}
		logg.Info("http/login", "New user created: "+body.Username)
		writeJSON(w, statusReply{Status: models.StatusSuccess, Token: token})
		return
	}
	logg.Info("http/login", "Existing user logged in: "+body.Username)
	writeJSON(w, statusReply{Status: models.StatusAlreadyExists, Token: token})
}

// followHandler handles POST /follow.
// Expects JSON body: {"followee": "bob"}; the follower comes from the token.
func (s *Server) followHandler(w http.ResponseWriter, r *http.Request) {
	s.graphHandler(w, r, "follow", s.store.Follow)
}

// unfollowHandler handles POST /unfollow. Removing an absent edge reports
// FAILURE_NOT_EXISTS, it is never fatal.
func (s *Server) unfollowHandler(w http.ResponseWriter, r *http.Request) {
	s.graphHandler(w, r, "unfollow", s.store.Unfollow)
}

func (s *Server) graphHandler(w http.ResponseWriter, r *http.Request, op string, mutate func(follower, followee string) error) {
	type req struct {
		Followee string `json:"followee"`
	}
	var body req

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		logg.Error("http/"+op, "Invalid request body", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	follower, ok := middleware.UsernameFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	st := statusOf(mutate(follower, body.Followee))
	if st != models.StatusSuccess {
		metrics.CommandFailures.WithLabelValues(op).Inc()
		logg.Info("http/"+op, "Rejected "+op+" "+follower+" -> "+body.Followee+": "+string(st))
	} else {
		logg.Info("http/"+op, "Applied "+op+" "+follower+" -> "+body.Followee)
	}
	writeJSON(w, statusReply{Status: st})
}

// listHandler handles GET /list: all registered usernames plus the subset
// the caller follows, as a snapshot of the graph at call time.
func (s *Server) listHandler(w http.ResponseWriter, r *http.Request) {
	username, ok := middleware.UsernameFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	following, err := s.store.ListFollowing(username)
	if err != nil {
		metrics.CommandFailures.WithLabelValues("list").Inc()
		writeJSON(w, listReply{Status: statusOf(err)})
		return
	}

	writeJSON(w, listReply{
		Status:             models.StatusSuccess,
		AllUsernames:       s.store.ListAll(),
		FollowingUsernames: following,
	})
}
