package store

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"example.com/mindfeed/internal/models"
)

var mockUserCounter int

type mockFollow struct {
	ProfileImage string
	At           time.Time
}

// MockStore simulates Cassandra operations for testing.
type MockStore struct {
	mu sync.Mutex

	Users      map[string]models.User
	Passwords  map[string]string
	Followers  map[string][]string
	Follows    map[string]map[string]mockFollow
	Feed       map[string][]models.Post
	Posts      map[string]models.Post
	Likes      map[string]map[string]bool
	Retweets   map[string][]models.Post
	Comments   map[string][]models.Comment
	ShouldFail bool // flag to simulate failures
}

// NewMock initializes a new mock store
func NewMock() *MockStore {
	return &MockStore{
		Users:     make(map[string]models.User),
		Passwords: make(map[string]string),
		Followers: make(map[string][]string),
		Follows:   make(map[string]map[string]mockFollow),
		Feed:      make(map[string][]models.Post),
		Posts:     make(map[string]models.Post),
		Likes:     make(map[string]map[string]bool),
		Retweets:  make(map[string][]models.Post),
		Comments:  make(map[string][]models.Comment),
	}
}

func (m *MockStore) Close() {}

func (m *MockStore) fail(op string) error {
	if m.ShouldFail {
		return errors.New("mock: " + op + " failed")
	}
	return nil
}

// CreateUser simulates creating a new user
func (m *MockStore) CreateUser(user models.User, passwordHash string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("create user"); err != nil {
		return "", err
	}
	for _, u := range m.Users {
		if strings.EqualFold(u.Username, user.Username) {
			return "", ErrUsernameTaken
		}
		if user.Email != "" && strings.EqualFold(u.Email, user.Email) {
			return "", ErrEmailTaken
		}
	}
	mockUserCounter++
	id := fmt.Sprintf("user_%d", mockUserCounter)
	user.ID = id
	user.Email = strings.ToLower(user.Email)
	if user.Profile.JoinedAt.IsZero() {
		user.Profile.JoinedAt = time.Now().UTC()
	}
	m.Users[id] = user
	m.Passwords[id] = passwordHash
	return id, nil
}

func (m *MockStore) GetUser(userID string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("get user"); err != nil {
		return models.User{}, err
	}
	u, ok := m.Users[userID]
	if !ok {
		return models.User{}, models.ErrNotFound
	}
	return u, nil
}

// GetUserIDByUsername returns the user ID for a given username
func (m *MockStore) GetUserIDByUsername(username string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("get user by username"); err != nil {
		return "", err
	}
	for id, u := range m.Users {
		if strings.EqualFold(u.Username, username) {
			return id, nil
		}
	}
	return "", nil
}

func (m *MockStore) GetUserIDByEmail(email string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("get user by email"); err != nil {
		return "", err
	}
	for id, u := range m.Users {
		if strings.EqualFold(u.Email, email) {
			return id, nil
		}
	}
	return "", nil
}

func (m *MockStore) GetPasswordHash(userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("get password"); err != nil {
		return "", err
	}
	h, ok := m.Passwords[userID]
	if !ok {
		return "", models.ErrNotFound
	}
	return h, nil
}

func (m *MockStore) UpdateUser(user models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("update user"); err != nil {
		return err
	}
	cur, ok := m.Users[user.ID]
	if !ok {
		return models.ErrNotFound
	}
	cur.DisplayName = user.DisplayName
	cur.Profile.Bio = user.Profile.Bio
	cur.Profile.Avatar = user.Profile.Avatar
	cur.Profile.Location = user.Profile.Location
	m.Users[user.ID] = cur
	return nil
}

// ListUsers returns users ordered by id.
func (m *MockStore) ListUsers(limit int) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("list users"); err != nil {
		return nil, err
	}
	out := make([]models.User, 0, len(m.Users))
	for _, u := range m.Users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CreateFollow simulates creating a follow relationship
func (m *MockStore) CreateFollow(followerID, followeeID, profileImage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("follow"); err != nil {
		return err
	}
	if m.Follows[followerID] == nil {
		m.Follows[followerID] = make(map[string]mockFollow)
	}
	if _, ok := m.Follows[followerID][followeeID]; !ok {
		// Key is followeeID so that GetFollowers(followeeID) returns the followerID
		m.Followers[followeeID] = append(m.Followers[followeeID], followerID)
	}
	m.Follows[followerID][followeeID] = mockFollow{ProfileImage: profileImage, At: time.Now()}
	return nil
}

func (m *MockStore) DeleteFollow(followerID, followeeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("unfollow"); err != nil {
		return err
	}
	delete(m.Follows[followerID], followeeID)
	followers := m.Followers[followeeID][:0]
	for _, id := range m.Followers[followeeID] {
		if id != followerID {
			followers = append(followers, id)
		}
	}
	m.Followers[followeeID] = followers
	return nil
}

func (m *MockStore) IsFollowing(followerID, followeeID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("is following"); err != nil {
		return false, err
	}
	_, ok := m.Follows[followerID][followeeID]
	return ok, nil
}

// GetFollowers returns all followers of a given user
func (m *MockStore) GetFollowers(userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("get followers"); err != nil {
		return nil, err
	}
	return append([]string{}, m.Followers[userID]...), nil
}

func (m *MockStore) GetFollowing(userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("get following"); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(m.Follows[userID]))
	for id := range m.Follows[userID] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// AddPost simulates adding a post
func (m *MockStore) AddPost(post models.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("add post"); err != nil {
		return err
	}
	m.Posts[post.ID] = post
	return nil
}

func (m *MockStore) GetPost(postID string) (models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("get post"); err != nil {
		return models.Post{}, err
	}
	p, ok := m.Posts[postID]
	if !ok {
		return models.Post{}, models.ErrNotFound
	}
	return p, nil
}

func (m *MockStore) UpdatePost(post models.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("update post"); err != nil {
		return err
	}
	cur, ok := m.Posts[post.ID]
	if !ok {
		return models.ErrNotFound
	}
	cur.Body, cur.Media, cur.QuoteText = post.Body, post.Media, post.QuoteText
	m.Posts[post.ID] = cur
	return nil
}

func (m *MockStore) DeletePost(post models.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("delete post"); err != nil {
		return err
	}
	if post.IsRetweet {
		m.removeRetweet(post)
	}
	delete(m.Posts, post.ID)
	delete(m.Likes, post.ID)
	delete(m.Retweets, post.ID)
	delete(m.Comments, post.ID)
	return nil
}

// AddToFeed simulates adding a post to a user's feed
func (m *MockStore) AddToFeed(userID string, post models.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("add to feed"); err != nil {
		return err
	}
	m.Feed[userID] = append(m.Feed[userID], post)
	return nil
}

func (m *MockStore) RemoveFromFeed(userID string, post models.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("remove from feed"); err != nil {
		return err
	}
	feed := m.Feed[userID][:0]
	for _, p := range m.Feed[userID] {
		if p.ID != post.ID {
			feed = append(feed, p)
		}
	}
	m.Feed[userID] = feed
	return nil
}

// GetFeed retrieves a user's feed, newest first, with an optional limit
func (m *MockStore) GetFeed(userID string, limit int) ([]models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("get feed"); err != nil {
		return nil, err
	}
	posts := append([]models.Post{}, m.Feed[userID]...)
	sort.SliceStable(posts, func(i, j int) bool { return posts[i].Created.After(posts[j].Created) })
	if limit > 0 && len(posts) > limit {
		return posts[:limit], nil
	}
	return posts, nil
}

func (m *MockStore) LikePost(postID, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("like"); err != nil {
		return false, err
	}
	if m.Likes[postID] == nil {
		m.Likes[postID] = make(map[string]bool)
	}
	if m.Likes[postID][userID] {
		return false, nil
	}
	m.Likes[postID][userID] = true
	return true, nil
}

func (m *MockStore) UnlikePost(postID, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("unlike"); err != nil {
		return false, err
	}
	if !m.Likes[postID][userID] {
		return false, nil
	}
	delete(m.Likes[postID], userID)
	return true, nil
}

func (m *MockStore) HasLiked(postID, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("has liked"); err != nil {
		return false, err
	}
	return m.Likes[postID][userID], nil
}

func (m *MockStore) AddRetweet(retweet models.Post) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("retweet"); err != nil {
		return false, err
	}
	if !retweet.IsQuoteRetweet {
		for _, r := range m.Retweets[retweet.ParentPost] {
			if r.AuthorID == retweet.AuthorID && !r.IsQuoteRetweet {
				return false, nil
			}
		}
	}
	m.Retweets[retweet.ParentPost] = append(m.Retweets[retweet.ParentPost], retweet)
	return true, nil
}

func (m *MockStore) RemoveRetweet(retweet models.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("remove retweet"); err != nil {
		return err
	}
	m.removeRetweet(retweet)
	return nil
}

func (m *MockStore) removeRetweet(retweet models.Post) {
	kept := m.Retweets[retweet.ParentPost][:0]
	for _, r := range m.Retweets[retweet.ParentPost] {
		if r.ID != retweet.ID {
			kept = append(kept, r)
		}
	}
	m.Retweets[retweet.ParentPost] = kept
}

func (m *MockStore) HasPlainRetweeted(postID, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("has plain retweeted"); err != nil {
		return false, err
	}
	for _, r := range m.Retweets[postID] {
		if r.AuthorID == userID && !r.IsQuoteRetweet {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockStore) HasRetweeted(postID, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("has retweeted"); err != nil {
		return false, err
	}
	for _, r := range m.Retweets[postID] {
		if r.AuthorID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockStore) GetRetweeters(postID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("get retweeters"); err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	out := []string{}
	for _, r := range m.Retweets[postID] {
		if !seen[r.AuthorID] {
			seen[r.AuthorID] = true
			out = append(out, r.AuthorID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *MockStore) GetCounters(postID string) (models.Counters, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("get counters"); err != nil {
		return models.Counters{}, err
	}
	return models.Counters{
		Likes:    len(m.Likes[postID]),
		Retweets: len(m.Retweets[postID]),
		Comments: len(m.Comments[postID]),
	}, nil
}

func (m *MockStore) AddComment(c models.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("add comment"); err != nil {
		return err
	}
	m.Comments[c.Post] = append(m.Comments[c.Post], c)
	return nil
}

func (m *MockStore) GetComments(postID string) ([]models.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("get comments"); err != nil {
		return nil, err
	}
	return append([]models.Comment{}, m.Comments[postID]...), nil
}

// ---------------------------------------------
// MockStoreFail always returns errors for negative tests
type MockStoreFail struct{}

var errMockFail = errors.New("mock store failure")

func (m *MockStoreFail) Close() {}

func (m *MockStoreFail) CreateUser(models.User, string) (string, error) {
	return "", fmt.Errorf("create user: %w", errMockFail)
}
func (m *MockStoreFail) GetUser(string) (models.User, error) {
	return models.User{}, fmt.Errorf("get user: %w", errMockFail)
}
func (m *MockStoreFail) GetUserIDByUsername(string) (string, error) {
	return "", fmt.Errorf("get user by username: %w", errMockFail)
}
func (m *MockStoreFail) GetUserIDByEmail(string) (string, error) {
	return "", fmt.Errorf("get user by email: %w", errMockFail)
}
func (m *MockStoreFail) GetPasswordHash(string) (string, error) {
	return "", fmt.Errorf("get password: %w", errMockFail)
}
func (m *MockStoreFail) UpdateUser(models.User) error {
	return fmt.Errorf("update user: %w", errMockFail)
}
func (m *MockStoreFail) ListUsers(int) ([]models.User, error) {
	return nil, fmt.Errorf("list users: %w", errMockFail)
}
func (m *MockStoreFail) CreateFollow(string, string, string) error {
	return fmt.Errorf("create follow: %w", errMockFail)
}
func (m *MockStoreFail) DeleteFollow(string, string) error {
	return fmt.Errorf("delete follow: %w", errMockFail)
}
func (m *MockStoreFail) IsFollowing(string, string) (bool, error) {
	return false, fmt.Errorf("is following: %w", errMockFail)
}
func (m *MockStoreFail) GetFollowers(string) ([]string, error) {
	return nil, fmt.Errorf("get followers: %w", errMockFail)
}
func (m *MockStoreFail) GetFollowing(string) ([]string, error) {
	return nil, fmt.Errorf("get following: %w", errMockFail)
}
func (m *MockStoreFail) AddPost(models.Post) error {
	return fmt.Errorf("add post: %w", errMockFail)
}
func (m *MockStoreFail) GetPost(string) (models.Post, error) {
	return models.Post{}, fmt.Errorf("get post: %w", errMockFail)
}
func (m *MockStoreFail) UpdatePost(models.Post) error {
	return fmt.Errorf("update post: %w", errMockFail)
}
func (m *MockStoreFail) DeletePost(models.Post) error {
	return fmt.Errorf("delete post: %w", errMockFail)
}
func (m *MockStoreFail) RemoveFromFeed(string, models.Post) error {
	return fmt.Errorf("remove from feed: %w", errMockFail)
}
func (m *MockStoreFail) AddToFeed(string, models.Post) error {
	return fmt.Errorf("add to feed: %w", errMockFail)
}
func (m *MockStoreFail) GetFeed(string, int) ([]models.Post, error) {
	return nil, fmt.Errorf("get feed: %w", errMockFail)
}
func (m *MockStoreFail) LikePost(string, string) (bool, error) {
	return false, fmt.Errorf("like: %w", errMockFail)
}
func (m *MockStoreFail) UnlikePost(string, string) (bool, error) {
	return false, fmt.Errorf("unlike: %w", errMockFail)
}
func (m *MockStoreFail) HasLiked(string, string) (bool, error) {
	return false, fmt.Errorf("has liked: %w", errMockFail)
}
func (m *MockStoreFail) AddRetweet(models.Post) (bool, error) {
	return false, fmt.Errorf("retweet: %w", errMockFail)
}
func (m *MockStoreFail) RemoveRetweet(models.Post) error {
	return fmt.Errorf("remove retweet: %w", errMockFail)
}
func (m *MockStoreFail) HasPlainRetweeted(string, string) (bool, error) {
	return false, fmt.Errorf("has plain retweeted: %w", errMockFail)
}
func (m *MockStoreFail) HasRetweeted(string, string) (bool, error) {
	return false, fmt.Errorf("has retweeted: %w", errMockFail)
}
func (m *MockStoreFail) GetRetweeters(string) ([]string, error) {
	return nil, fmt.Errorf("get retweeters: %w", errMockFail)
}
func (m *MockStoreFail) GetCounters(string) (models.Counters, error) {
	return models.Counters{}, fmt.Errorf("get counters: %w", errMockFail)
}
func (m *MockStoreFail) AddComment(models.Comment) error {
	return fmt.Errorf("add comment: %w", errMockFail)
}
func (m *MockStoreFail) GetComments(string) ([]models.Comment, error) {
	return nil, fmt.Errorf("get comments: %w", errMockFail)
}
