package store

import (
	"time"

	"example.com/mindfeed/internal/models"
)

// --- Comment operations ---

func (s *Store) AddComment(c models.Comment) error {
	if err := s.Session.Query(`
		INSERT INTO comments_by_post (post_id, commented_at, comment_id, author_id, author_username, content, parent_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.Post, c.CommentedAt, c.ID, c.Author, c.AuthorUsername, c.Content, c.ParentID(),
	).Exec(); err != nil {
		logg.Error("store", "Failed to add comment", err)
		return err
	}
	return s.bumpCounter("comments", c.Post, 1)
}

// GetComments returns the flat comment list of a post, oldest first.
func (s *Store) GetComments(postID string) ([]models.Comment, error) {
	iter := s.Session.Query(`
		SELECT comment_id, author_id, author_username, content, parent_id, commented_at
		FROM comments_by_post WHERE post_id = ?`,
		postID,
	).Iter()

	res := []models.Comment{}
	var (
		id, author, username, content, parent string
		at                                    time.Time
	)
	for iter.Scan(&id, &author, &username, &content, &parent, &at) {
		c := models.Comment{
			ID:             id,
			Post:           postID,
			Author:         author,
			AuthorUsername: username,
			Content:        content,
			CommentedAt:    at,
		}
		if parent != "" {
			p := parent
			c.Parent = &p
		}
		res = append(res, c)
	}

	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to get comments", err)
		return nil, err
	}
	return res, nil
}
