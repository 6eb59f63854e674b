package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"example.com/mindfeed/internal/middleware"
	"example.com/mindfeed/internal/models"
	"example.com/mindfeed/internal/store"
	"example.com/mindfeed/internal/tokens"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLen = 8

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.]{3,30}$`)

// --- Response helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logg.Error("http", "Failed to encode response", err)
	}
}

// writeError answers with {"detail": msg}.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

// writeFieldError answers 400 with {"<field>": [reason]}.
func writeFieldError(w http.ResponseWriter, field, reason string) {
	writeJSON(w, http.StatusBadRequest, map[string][]string{field: {reason}})
}

func decodeBody(w http.ResponseWriter, r *http.Request, module string, dst any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		logg.Error(module, "Invalid request body", err)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func requireUser(w http.ResponseWriter, r *http.Request, module string) (string, bool) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		logg.Info(module, "Unauthorized request")
		writeError(w, http.StatusUnauthorized, "unauthorized")
	}
	return userID, ok
}

// storeError maps store failures to responses.
func storeError(w http.ResponseWriter, module, msg string, err error) {
	if errors.Is(err, models.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	logg.Error(module, msg, err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

// --- Auth handlers ---

type authResponse struct {
	models.Credentials
	User models.User `json:"user"`
}

// registerHandler creates an account and logs it in.
// Expects JSON body: {"username", "email", "password1", "password2"}
func (s *Server) registerHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username    string `json:"username"`
		Email       string `json:"email"`
		Password1   string `json:"password1"`
		Password2   string `json:"password2"`
		DisplayName string `json:"display_name"`
	}
	if !decodeBody(w, r, "http/register", &body) {
		return
	}

	body.Username = strings.TrimSpace(body.Username)
	body.Email = strings.TrimSpace(body.Email)
	switch {
	case !usernamePattern.MatchString(body.Username):
		writeFieldError(w, "username", "Username must be 3-30 letters, digits, dots or underscores.")
		return
	case !strings.Contains(body.Email, "@"):
		writeFieldError(w, "email", "Enter a valid email address.")
		return
	case len(body.Password1) < minPasswordLen:
		writeFieldError(w, "password1", "This password is too short. It must contain at least 8 characters.")
		return
	case body.Password1 != body.Password2:
		writeFieldError(w, "non_field_errors", "The two password fields didn't match.")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(body.Password1), bcrypt.DefaultCost)
	if err != nil {
		logg.Error("http/register", "Failed to hash password", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	user := models.User{Username: body.Username, Email: body.Email, DisplayName: body.DisplayName}
	userID, err := s.store.CreateUser(user, string(hash))
	switch {
	case errors.Is(err, store.ErrUsernameTaken):
		writeFieldError(w, "username", "A user with that username already exists.")
		return
	case errors.Is(err, store.ErrEmailTaken):
		writeFieldError(w, "email", "A user is already registered with this e-mail address.")
		return
	case err != nil:
		logg.Error("http/register", "Failed to create user", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.respondWithSession(w, http.StatusCreated, "http/register", userID)
	logg.Info("http/register", "User registered with user_id="+userID)
}

// loginHandler exchanges username (or email) and password for tokens.
func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, "http/login", &body) {
		return
	}

	invalid := func() {
		writeJSON(w, http.StatusBadRequest, map[string][]string{
			"non_field_errors": {"Unable to log in with provided credentials."},
		})
	}

	identifier := strings.TrimSpace(body.Username)
	if identifier == "" {
		identifier = strings.TrimSpace(body.Email)
	}
	if identifier == "" || body.Password == "" {
		invalid()
		return
	}

	lookup := s.store.GetUserIDByUsername
	if strings.Contains(identifier, "@") {
		lookup = s.store.GetUserIDByEmail
	}
	userID, err := lookup(identifier)
	if err != nil {
		storeError(w, "http/login", "Failed to look up user", err)
		return
	}
	if userID == "" {
		invalid()
		return
	}

	hash, err := s.store.GetPasswordHash(userID)
	if err != nil {
		storeError(w, "http/login", "Failed to load password", err)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(body.Password)) != nil {
		logg.Info("http/login", "Rejected login for user_id="+userID)
		invalid()
		return
	}

	s.respondWithSession(w, http.StatusOK, "http/login", userID)
}

func (s *Server) respondWithSession(w http.ResponseWriter, status int, module, userID string) {
	creds, err := s.tokens.Issue(userID)
	if err != nil {
		logg.Error(module, "Failed to issue tokens", err)
		writeError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}
	user, err := s.store.GetUser(userID)
	if err != nil {
		storeError(w, module, "Failed to load user", err)
		return
	}
	writeJSON(w, status, authResponse{Credentials: creds, User: user})
}

// refreshHandler issues a new access token for a valid refresh token, and a
// new refresh token too when rotation is enabled.
func (s *Server) refreshHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Refresh string `json:"refresh"`
	}
	if !decodeBody(w, r, "http/refresh", &body) {
		return
	}

	userID, err := s.tokens.Verify(body.Refresh, tokens.Refresh)
	if err != nil {
		logg.Info("http/refresh", "Rejected refresh token: "+err.Error())
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"detail": "Token is invalid or expired",
			"code":   "token_not_valid",
		})
		return
	}

	if s.rotateRefresh {
		creds, err := s.tokens.Issue(userID)
		if err != nil {
			logg.Error("http/refresh", "Failed to issue tokens", err)
			writeError(w, http.StatusInternalServerError, "failed to generate token")
			return
		}
		writeJSON(w, http.StatusOK, creds)
		return
	}

	access, err := s.tokens.AccessFor(userID)
	if err != nil {
		logg.Error("http/refresh", "Failed to issue access token", err)
		writeError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}
	writeJSON(w, http.StatusOK, models.Credentials{Access: access})
}

func (s *Server) currentUserHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, "http/user")
	if !ok {
		return
	}
	user, err := s.store.GetUser(userID)
	if err != nil {
		storeError(w, "http/user", "Failed to load user", err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

const (
	maxDisplayNameLen = 50
	maxBioLen         = 300
	maxLocationLen    = 100
)

// updateUserHandler applies a partial profile change to the caller.
// Expects JSON body: {"display_name"?, "bio"?, "location"?, "avatar"?}
func (s *Server) updateUserHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, "http/user")
	if !ok {
		return
	}

	var update models.ProfileUpdate
	if !decodeBody(w, r, "http/user", &update) {
		return
	}
	for _, f := range []struct {
		name  string
		value *string
		max   int
	}{
		{"display_name", update.DisplayName, maxDisplayNameLen},
		{"bio", update.Bio, maxBioLen},
		{"location", update.Location, maxLocationLen},
	} {
		if f.value == nil {
			continue
		}
		*f.value = strings.TrimSpace(*f.value)
		if utf8.RuneCountInString(*f.value) > f.max {
			writeFieldError(w, f.name, "Ensure this field has no more than "+strconv.Itoa(f.max)+" characters.")
			return
		}
	}
	if a := update.Avatar; a != nil && *a != "" && !strings.HasPrefix(*a, "http://") && !strings.HasPrefix(*a, "https://") {
		writeFieldError(w, "avatar", "Enter a valid URL.")
		return
	}

	user, err := s.store.GetUser(userID)
	if err != nil {
		storeError(w, "http/user", "Failed to load user", err)
		return
	}
	user = update.Apply(user)
	if err := s.store.UpdateUser(user); err != nil {
		storeError(w, "http/user", "Failed to update user", err)
		return
	}

	logg.Info("http/user", "Profile updated for user_id="+userID)
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
