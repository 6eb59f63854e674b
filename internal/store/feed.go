package store

import (
	"errors"
	"time"

	"example.com/mindfeed/internal/models"
	"github.com/gocql/gocql"
)

// --- Post operations ---

func (s *Store) AddPost(post models.Post) error {
	if err := s.Session.Query(`
		INSERT INTO posts (post_id, author_id, author_username, body, media, created_at,
			is_retweet, is_quote_retweet, quote_text, parent_post)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		post.ID, post.AuthorID, post.AuthorUsername, post.Body, post.Media, post.Created,
		post.IsRetweet, post.IsQuoteRetweet, post.QuoteText, post.ParentPost,
	).Exec(); err != nil {
		logg.Error("store", "Failed to add post", err)
		return err
	}

	logg.Info("store", "Post added to posts table (post content anonymized)")
	return nil
}

// GetPost returns the stored post row; engagement fields are left zero.
func (s *Store) GetPost(postID string) (models.Post, error) {
	var p models.Post
	err := s.Session.Query(`
		SELECT post_id, author_id, author_username, body, media, created_at,
			is_retweet, is_quote_retweet, quote_text, parent_post
		FROM posts WHERE post_id = ?`,
		postID,
	).Scan(&p.ID, &p.AuthorID, &p.AuthorUsername, &p.Body, &p.Media, &p.Created,
		&p.IsRetweet, &p.IsQuoteRetweet, &p.QuoteText, &p.ParentPost)
	if err != nil {
		if !errors.Is(err, gocql.ErrNotFound) {
			logg.Error("store", "Failed to load post", err)
		}
		return models.Post{}, notFound(err)
	}
	return p, nil
}

// UpdatePost rewrites the editable columns of an existing post.
func (s *Store) UpdatePost(post models.Post) error {
	applied, err := s.Session.Query(`
		UPDATE posts SET body = ?, media = ?, quote_text = ?
		WHERE post_id = ? IF EXISTS`,
		post.Body, post.Media, post.QuoteText, post.ID,
	).MapScanCAS(make(map[string]interface{}))
	if err != nil {
		logg.Error("store", "Failed to update post", err)
		return err
	}
	if !applied {
		return models.ErrNotFound
	}
	return nil
}

// DeletePost removes a post with its engagement and comments. Deleting a
// retweet also releases its claim on the parent. Feed entries are retracted
// by the worker.
func (s *Store) DeletePost(post models.Post) error {
	if post.IsRetweet {
		if err := s.RemoveRetweet(post); err != nil {
			return err
		}
	}
	for _, table := range []string{"posts", "post_likes", "post_retweets", "plain_retweets", "comments_by_post", "post_counters"} {
		if err := s.Session.Query(`DELETE FROM `+table+` WHERE post_id = ?`, post.ID).Exec(); err != nil {
			logg.Error("store", "Failed to delete post rows from "+table, err)
			return err
		}
	}
	logg.Info("store", "Post deleted (post ID anonymized)")
	return nil
}

func (s *Store) AddToFeed(userID string, post models.Post) error {
	if err := s.Session.Query(`
		INSERT INTO feed_by_user (user_id, created_at, post_id, author_id, body)
		VALUES (?, ?, ?, ?, ?)`,
		userID, post.Created, post.ID, post.AuthorID, post.Body,
	).Exec(); err != nil {
		logg.Error("store", "Failed to add post to feed", err)
		return err
	}

	logg.Info("store", "Post added to user's feed (IDs and content anonymized)")
	return nil
}

func (s *Store) RemoveFromFeed(userID string, post models.Post) error {
	if err := s.Session.Query(`
		DELETE FROM feed_by_user WHERE user_id = ? AND created_at = ? AND post_id = ?`,
		userID, post.Created, post.ID,
	).Exec(); err != nil {
		logg.Error("store", "Failed to remove post from feed", err)
		return err
	}
	return nil
}

// GetFeed returns the newest feed entries of a user.
func (s *Store) GetFeed(userID string, limit int) ([]models.Post, error) {
	iter := s.Session.Query(`
		SELECT post_id, author_id, body, created_at
		FROM feed_by_user WHERE user_id = ? LIMIT ?`,
		userID, limit,
	).Iter()

	res := []models.Post{}
	var pid, aid string
	var body string
	var created time.Time

	for iter.Scan(&pid, &aid, &body, &created) {
		res = append(res, models.Post{
			ID:       pid,
			AuthorID: aid,
			Body:     body,
			Created:  created,
		})
	}

	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to retrieve user feed", err)
		return nil, err
	}

	logg.Debug("store", "User feed retrieved successfully (IDs and content anonymized)")
	return res, nil
}
