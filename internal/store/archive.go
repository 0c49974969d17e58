package store

import (
	"sort"

	"example.com/tinysns/internal/models"
)

// --- User operations ---

// SaveUser records a registered username. The insert is idempotent so the
// archiver can replay the same event safely.
func (a *CassandraArchive) SaveUser(username string) error {
	if err := a.Session.Query(
		`INSERT INTO users (username) VALUES (?)`,
		username,
	).Exec(); err != nil {
		logg.Error("store", "Failed to archive user", err)
		return err
	}
	return nil
}

func (a *CassandraArchive) LoadUsers() ([]string, error) {
	iter := a.Session.Query(`SELECT username FROM users`).Iter()

	var name string
	var res []string
	for iter.Scan(&name) {
		res = append(res, name)
	}

	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to load archived users", err)
		return nil, err
	}
	return res, nil
}

// --- Post operations ---

func (a *CassandraArchive) SavePost(post models.Post) error {
	if err := a.Session.Query(`
		INSERT INTO posts_by_author (author, ts, post_id, body)
		VALUES (?, ?, ?, ?)`,
		post.Author, post.Timestamp, post.ID, post.Text,
	).Exec(); err != nil {
		logg.Error("store", "Failed to archive post", err)
		return err
	}
	return nil
}

// LoadPosts reads every archived post. Partitions come back in token order,
// so the global timestamp order is restored by sorting here.
func (a *CassandraArchive) LoadPosts() ([]models.Post, error) {
	iter := a.Session.Query(`
		SELECT author, ts, post_id, body FROM posts_by_author`,
	).Iter()

	var res []models.Post
	var author, id, body string
	var ts int64

	for iter.Scan(&author, &ts, &id, &body) {
		res = append(res, models.Post{
			ID:        id,
			Author:    author,
			Text:      body,
			Timestamp: ts,
		})
	}

	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to load archived posts", err)
		return nil, err
	}

	sort.Slice(res, func(i, j int) bool { return res[i].Timestamp < res[j].Timestamp })
	return res, nil
}
