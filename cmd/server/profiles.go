package server

import (
	"net/http"
	"strconv"

	"example.com/mindfeed/internal/models"
	"golang.org/x/sync/errgroup"
)

// profileHandler returns a profile as seen by the requesting user.
func (s *Server) profileHandler(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := requireUser(w, r, "http/profile")
	if !ok {
		return
	}

	profileID := r.PathValue("id")
	var (
		g         errgroup.Group
		user      models.User
		followers []string
		following []string
		followed  bool
	)
	g.Go(func() (err error) {
		user, err = s.store.GetUser(profileID)
		return err
	})
	g.Go(func() (err error) {
		followers, err = s.store.GetFollowers(profileID)
		return err
	})
	g.Go(func() (err error) {
		following, err = s.store.GetFollowing(profileID)
		return err
	})
	g.Go(func() (err error) {
		followed, err = s.store.IsFollowing(viewerID, profileID)
		return err
	})
	if err := g.Wait(); err != nil {
		storeError(w, "http/profile", "Failed to load profile", err)
		return
	}

	writeJSON(w, http.StatusOK, models.ProfileView{
		ID:             user.ID,
		Username:       user.Username,
		DisplayName:    user.DisplayName,
		Bio:            user.Profile.Bio,
		Avatar:         user.Profile.Avatar,
		Location:       user.Profile.Location,
		JoinedAt:       user.Profile.JoinedAt,
		FollowersCount: len(followers),
		FollowingCount: len(following),
		Followers:      nonNil(followers),
		Following:      nonNil(following),
		FollowedByMe:   followed,
	})
}

type followResponse struct {
	Following      bool `json:"following"`
	FollowersCount int  `json:"followers_count"`
}

func (s *Server) followHandler(w http.ResponseWriter, r *http.Request) {
	s.setFollow(w, r, true)
}

func (s *Server) unfollowHandler(w http.ResponseWriter, r *http.Request) {
	s.setFollow(w, r, false)
}

// setFollow is idempotent in both directions.
// Follow expects JSON body: {"profile_image": "..."}
func (s *Server) setFollow(w http.ResponseWriter, r *http.Request, follow bool) {
	userID, ok := requireUser(w, r, "http/follow")
	if !ok {
		return
	}

	followeeID := r.PathValue("id")
	if followeeID == userID {
		writeError(w, http.StatusBadRequest, "You cannot follow yourself.")
		return
	}
	if _, err := s.store.GetUser(followeeID); err != nil {
		storeError(w, "http/follow", "Failed to load followee", err)
		return
	}

	var err error
	if follow {
		var body struct {
			ProfileImage string `json:"profile_image"`
		}
		if r.ContentLength != 0 && !decodeBody(w, r, "http/follow", &body) {
			return
		}
		err = s.store.CreateFollow(userID, followeeID, body.ProfileImage)
	} else {
		err = s.store.DeleteFollow(userID, followeeID)
	}
	if err != nil {
		storeError(w, "http/follow", "Failed to update follow", err)
		return
	}

	followers, err := s.store.GetFollowers(followeeID)
	if err != nil {
		storeError(w, "http/follow", "Failed to count followers", err)
		return
	}

	logg.Info("http/follow", "User "+userID+" follow="+strconv.FormatBool(follow)+" user "+followeeID)
	writeJSON(w, http.StatusOK, followResponse{Following: follow, FollowersCount: len(followers)})
}

func (s *Server) myFollowersHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, "http/followers")
	if !ok {
		return
	}
	ids, err := s.store.GetFollowers(userID)
	if err != nil {
		storeError(w, "http/followers", "Failed to list followers", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(ids))
}

func (s *Server) myFollowingHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, "http/following")
	if !ok {
		return
	}
	ids, err := s.store.GetFollowing(userID)
	if err != nil {
		storeError(w, "http/following", "Failed to list following", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(ids))
}

const (
	defaultSuggestions = 10
	maxSuggestions     = 50
	suggestionScan     = 200
)

// suggestionsHandler lists users the caller does not follow yet.
// Query param: ?limit=N
func (s *Server) suggestionsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, "http/suggestions")
	if !ok {
		return
	}

	limit := defaultSuggestions
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxSuggestions)
	}

	following, err := s.store.GetFollowing(userID)
	if err != nil {
		storeError(w, "http/suggestions", "Failed to list following", err)
		return
	}
	skip := make(map[string]bool, len(following)+1)
	skip[userID] = true
	for _, id := range following {
		skip[id] = true
	}

	users, err := s.store.ListUsers(suggestionScan)
	if err != nil {
		storeError(w, "http/suggestions", "Failed to list users", err)
		return
	}
	out := []models.ProfileView{}
	for _, u := range users {
		if skip[u.ID] {
			continue
		}
		out = append(out, models.ProfileView{
			ID:          u.ID,
			Username:    u.Username,
			DisplayName: u.DisplayName,
			Bio:         u.Profile.Bio,
			Avatar:      u.Profile.Avatar,
			Location:    u.Profile.Location,
			JoinedAt:    u.Profile.JoinedAt,
		})
		if len(out) == limit {
			break
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
