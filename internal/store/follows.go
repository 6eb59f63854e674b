package store

import (
	"errors"
	"time"

	"github.com/gocql/gocql"
)

// --- Follow operations ---

func (s *Store) CreateFollow(userID, followeeID, profileImage string) error {
	batch := s.Session.NewBatch(gocql.LoggedBatch)
	batch.Query(`INSERT INTO follows (user_id, followee_id, profile_image, created_at) VALUES (?, ?, ?, ?)`,
		userID, followeeID, profileImage, time.Now().UTC())
	batch.Query(`INSERT INTO followers_by_followee (followee_id, user_id) VALUES (?, ?)`, followeeID, userID)

	if err := s.Session.ExecuteBatch(batch); err != nil {
		logg.Error("store", "Failed to create follow relationship", err)
		return err
	}

	logg.Info("store", "Follow relationship created (user IDs anonymized)")
	return nil
}

func (s *Store) DeleteFollow(userID, followeeID string) error {
	batch := s.Session.NewBatch(gocql.LoggedBatch)
	batch.Query(`DELETE FROM follows WHERE user_id = ? AND followee_id = ?`, userID, followeeID)
	batch.Query(`DELETE FROM followers_by_followee WHERE followee_id = ? AND user_id = ?`, followeeID, userID)

	if err := s.Session.ExecuteBatch(batch); err != nil {
		logg.Error("store", "Failed to delete follow relationship", err)
		return err
	}
	return nil
}

func (s *Store) IsFollowing(userID, followeeID string) (bool, error) {
	var id string
	err := s.Session.Query(
		`SELECT followee_id FROM follows WHERE user_id = ? AND followee_id = ?`,
		userID, followeeID,
	).Scan(&id)
	if errors.Is(err, gocql.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) GetFollowers(userID string) ([]string, error) {
	return s.scanIDs("followers",
		`SELECT user_id FROM followers_by_followee WHERE followee_id = ?`, userID)
}

func (s *Store) GetFollowing(userID string) ([]string, error) {
	return s.scanIDs("following",
		`SELECT followee_id FROM follows WHERE user_id = ?`, userID)
}

func (s *Store) scanIDs(what, stmt string, values ...interface{}) ([]string, error) {
	iter := s.Session.Query(stmt, values...).Iter()

	var id string
	res := []string{}
	for iter.Scan(&id) {
		res = append(res, id)
	}

	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to get "+what, err)
		return nil, err
	}
	return res, nil
}
