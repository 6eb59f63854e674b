package store

import (
	"errors"

	"example.com/mindfeed/internal/models"
	"github.com/gocql/gocql"
)

// --- Likes ---

// LikePost records a like and reports whether it was new.
func (s *Store) LikePost(postID, userID string) (bool, error) {
	applied, err := s.Session.Query(
		`INSERT INTO post_likes (post_id, user_id) VALUES (?, ?) IF NOT EXISTS`,
		postID, userID,
	).MapScanCAS(make(map[string]interface{}))
	if err != nil {
		logg.Error("store", "Failed to like post", err)
		return false, err
	}
	if !applied {
		return false, nil
	}
	return true, s.bumpCounter("likes", postID, 1)
}

// UnlikePost removes a like and reports whether one existed.
func (s *Store) UnlikePost(postID, userID string) (bool, error) {
	applied, err := s.Session.Query(
		`DELETE FROM post_likes WHERE post_id = ? AND user_id = ? IF EXISTS`,
		postID, userID,
	).MapScanCAS(make(map[string]interface{}))
	if err != nil {
		logg.Error("store", "Failed to unlike post", err)
		return false, err
	}
	if !applied {
		return false, nil
	}
	return true, s.bumpCounter("likes", postID, -1)
}

func (s *Store) HasLiked(postID, userID string) (bool, error) {
	return s.exists(`SELECT user_id FROM post_likes WHERE post_id = ? AND user_id = ?`, postID, userID)
}

// --- Retweets ---

// AddRetweet links a stored retweet post to its parent. A second plain
// retweet of the same post by the same user is refused with false.
func (s *Store) AddRetweet(retweet models.Post) (bool, error) {
	if !retweet.IsQuoteRetweet {
		applied, err := s.Session.Query(
			`INSERT INTO plain_retweets (post_id, user_id) VALUES (?, ?) IF NOT EXISTS`,
			retweet.ParentPost, retweet.AuthorID,
		).MapScanCAS(make(map[string]interface{}))
		if err != nil {
			logg.Error("store", "Failed to claim retweet", err)
			return false, err
		}
		if !applied {
			return false, nil
		}
	}

	if err := s.Session.Query(
		`INSERT INTO post_retweets (post_id, user_id, retweet_id, is_quote) VALUES (?, ?, ?, ?)`,
		retweet.ParentPost, retweet.AuthorID, retweet.ID, retweet.IsQuoteRetweet,
	).Exec(); err != nil {
		logg.Error("store", "Failed to record retweet", err)
		return false, err
	}
	return true, s.bumpCounter("retweets", retweet.ParentPost, 1)
}

// RemoveRetweet undoes AddRetweet: the link, the plain claim and the counter.
func (s *Store) RemoveRetweet(retweet models.Post) error {
	if err := s.Session.Query(
		`DELETE FROM post_retweets WHERE post_id = ? AND user_id = ? AND retweet_id = ?`,
		retweet.ParentPost, retweet.AuthorID, retweet.ID,
	).Exec(); err != nil {
		logg.Error("store", "Failed to remove retweet", err)
		return err
	}
	if !retweet.IsQuoteRetweet {
		if err := s.Session.Query(
			`DELETE FROM plain_retweets WHERE post_id = ? AND user_id = ?`,
			retweet.ParentPost, retweet.AuthorID,
		).Exec(); err != nil {
			logg.Error("store", "Failed to release retweet claim", err)
			return err
		}
	}
	return s.bumpCounter("retweets", retweet.ParentPost, -1)
}

// HasRetweeted counts plain and quote retweets.
func (s *Store) HasRetweeted(postID, userID string) (bool, error) {
	return s.exists(`SELECT user_id FROM post_retweets WHERE post_id = ? AND user_id = ? LIMIT 1`, postID, userID)
}

func (s *Store) HasPlainRetweeted(postID, userID string) (bool, error) {
	return s.exists(`SELECT user_id FROM plain_retweets WHERE post_id = ? AND user_id = ?`, postID, userID)
}

// GetRetweeters returns each retweeting user once.
func (s *Store) GetRetweeters(postID string) ([]string, error) {
	ids, err := s.scanIDs("retweeters", `SELECT user_id FROM post_retweets WHERE post_id = ?`, postID)
	if err != nil {
		return nil, err
	}
	out := ids[:0]
	for i, id := range ids {
		// rows are clustered by user_id, duplicates are adjacent
		if i == 0 || ids[i-1] != id {
			out = append(out, id)
		}
	}
	return out, nil
}

// --- Counters ---

func (s *Store) GetCounters(postID string) (models.Counters, error) {
	var likes, retweets, comments int64
	err := s.Session.Query(
		`SELECT likes, retweets, comments FROM post_counters WHERE post_id = ?`, postID,
	).Scan(&likes, &retweets, &comments)
	if errors.Is(err, gocql.ErrNotFound) {
		return models.Counters{}, nil
	}
	if err != nil {
		logg.Error("store", "Failed to read counters", err)
		return models.Counters{}, err
	}
	return models.Counters{Likes: int(likes), Retweets: int(retweets), Comments: int(comments)}, nil
}

// column is one of the fixed counter names above, never user input.
func (s *Store) bumpCounter(column, postID string, delta int64) error {
	stmt := `UPDATE post_counters SET ` + column + ` = ` + column + ` + ? WHERE post_id = ?`
	if err := s.Session.Query(stmt, delta, postID).Exec(); err != nil {
		logg.Error("store", "Failed to update "+column+" counter", err)
		return err
	}
	return nil
}

func (s *Store) exists(stmt string, values ...interface{}) (bool, error) {
	var id string
	err := s.Session.Query(stmt, values...).Scan(&id)
	if errors.Is(err, gocql.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
