package store

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"example.com/mindfeed/internal/models"
	"github.com/gocql/gocql"
)

var (
	ErrUsernameTaken = fmt.Errorf("username already taken: %w", models.ErrConflict)
	ErrEmailTaken    = fmt.Errorf("email already registered: %w", models.ErrConflict)
)

// --- User operations ---

// GetUserIDByUsername returns the existing user_id by username.
// If the user does not exist, it returns empty string without an error.
func (s *Store) GetUserIDByUsername(username string) (string, error) {
	return s.lookupID(`SELECT user_id FROM users_by_username WHERE username = ?`, strings.ToLower(username))
}

// GetUserIDByEmail behaves like GetUserIDByUsername for email addresses.
func (s *Store) GetUserIDByEmail(email string) (string, error) {
	return s.lookupID(`SELECT user_id FROM users_by_email WHERE email = ?`, strings.ToLower(email))
}

func (s *Store) lookupID(stmt, key string) (string, error) {
	var id string
	err := s.Session.Query(stmt, key).Scan(&id)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return "", nil
		}
		logg.Error("store", "Failed to look up user id", err)
		return "", err
	}
	return id, nil
}

// CreateUser claims the username and email with lightweight transactions and
// writes the user row. A taken username or email is reported as
// ErrUsernameTaken / ErrEmailTaken.
func (s *Store) CreateUser(user models.User, passwordHash string) (string, error) {
	id := gocql.TimeUUID().String()
	username := strings.ToLower(user.Username)
	email := strings.ToLower(user.Email)

	result := make(map[string]interface{})
	applied, err := s.Session.Query(`
		INSERT INTO users_by_username (username, user_id)
		VALUES (?, ?) IF NOT EXISTS`,
		username, id,
	).MapScanCAS(result)
	if err != nil {
		logg.Error("store", "Failed to create username entry", err)
		return "", err
	}
	if !applied {
		return "", ErrUsernameTaken
	}

	if email != "" {
		result = make(map[string]interface{})
		applied, err = s.Session.Query(`
			INSERT INTO users_by_email (email, user_id)
			VALUES (?, ?) IF NOT EXISTS`,
			email, id,
		).MapScanCAS(result)
		if err != nil || !applied {
			if relErr := s.Session.Query(`DELETE FROM users_by_username WHERE username = ?`, username).Exec(); relErr != nil {
				logg.Error("store", "Failed to release username after email conflict", relErr)
			}
			if err != nil {
				logg.Error("store", "Failed to create email entry", err)
				return "", err
			}
			return "", ErrEmailTaken
		}
	}

	joined := user.Profile.JoinedAt
	if joined.IsZero() {
		joined = time.Now().UTC()
	}
	err = s.Session.Query(`
		INSERT INTO users (user_id, username, email, display_name, bio, avatar, location, joined_at, password_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, user.Username, email, user.DisplayName,
		user.Profile.Bio, user.Profile.Avatar, user.Profile.Location, joined, passwordHash,
	).Exec()
	if err != nil {
		logg.Error("store", "Failed to create user in main table", err)
		return "", err
	}

	logg.Info("store", "User created successfully (username anonymized)")
	return id, nil
}

func (s *Store) GetUser(userID string) (models.User, error) {
	var u models.User
	err := s.Session.Query(`
		SELECT user_id, username, email, display_name, bio, avatar, location, joined_at
		FROM users WHERE user_id = ?`,
		userID,
	).Scan(&u.ID, &u.Username, &u.Email, &u.DisplayName,
		&u.Profile.Bio, &u.Profile.Avatar, &u.Profile.Location, &u.Profile.JoinedAt)
	if err != nil {
		if !errors.Is(err, gocql.ErrNotFound) {
			logg.Error("store", "Failed to load user", err)
		}
		return models.User{}, notFound(err)
	}
	return u, nil
}

func (s *Store) GetPasswordHash(userID string) (string, error) {
	var hash string
	err := s.Session.Query(`SELECT password_hash FROM users WHERE user_id = ?`, userID).Scan(&hash)
	if err != nil {
		return "", notFound(err)
	}
	return hash, nil
}

// UpdateUser rewrites the editable profile columns of an existing user.
func (s *Store) UpdateUser(user models.User) error {
	applied, err := s.Session.Query(`
		UPDATE users SET display_name = ?, bio = ?, avatar = ?, location = ?
		WHERE user_id = ? IF EXISTS`,
		user.DisplayName, user.Profile.Bio, user.Profile.Avatar, user.Profile.Location, user.ID,
	).MapScanCAS(make(map[string]interface{}))
	if err != nil {
		logg.Error("store", "Failed to update user", err)
		return err
	}
	if !applied {
		return models.ErrNotFound
	}
	return nil
}

// ListUsers returns up to limit users in token order.
func (s *Store) ListUsers(limit int) ([]models.User, error) {
	iter := s.Session.Query(`
		SELECT user_id, username, display_name, bio, avatar, location, joined_at
		FROM users LIMIT ?`, limit,
	).Iter()

	res := []models.User{}
	var u models.User
	for iter.Scan(&u.ID, &u.Username, &u.DisplayName,
		&u.Profile.Bio, &u.Profile.Avatar, &u.Profile.Location, &u.Profile.JoinedAt) {
		res = append(res, u)
	}
	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to list users", err)
		return nil, err
	}
	return res, nil
}
