// Package client is a Go SDK for the mindfeed backend. Every call goes through
// the authenticated gateway; engagement toggles are applied optimistically.
package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"example.com/mindfeed/internal/comments"
	"example.com/mindfeed/internal/gateway"
	"example.com/mindfeed/internal/models"
	"example.com/mindfeed/internal/optimistic"
	"example.com/mindfeed/internal/session"
)

// PostState is the engagement part of a post that toggles change.
type PostState struct {
	Liked     bool
	Likes     int
	Retweeted bool
	// PlainRetweeted is set by a plain retweet only; quotes leave it alone.
	PlainRetweeted bool
	Retweets       int
}

func postStateOf(p *models.Post) PostState {
	return PostState{
		Liked:          p.LikedByUser,
		Likes:          p.LikesCount,
		Retweeted:      p.RetweetedByUser,
		PlainRetweeted: p.PlainRetweetedByUser,
		Retweets:       p.RetweetCount,
	}
}

// FollowState is the relation of the session user to one profile.
type FollowState struct {
	Following bool
	Followers int
}

func followStateOf(p *models.ProfileView) FollowState {
	return FollowState{Following: p.FollowedByMe, Followers: p.FollowersCount}
}

type Options struct {
	HTTPClient *http.Client
	Timeout    time.Duration
	// SingleUseRefresh: see gateway.Options.
	SingleUseRefresh bool
	// OnError receives every failed optimistic mutation, keyed by post or profile id.
	OnError func(key string, err error)
}

type Client struct {
	store   *session.MemoryStore
	gw      *gateway.Gateway
	posts   *optimistic.Controller[string, PostState]
	follows *optimistic.Controller[string, FollowState]
}

func New(baseURL string, opts Options) *Client {
	store := session.NewMemoryStore(models.Credentials{})
	factory := gateway.NewFactory(baseURL, opts.HTTPClient, gateway.Options{
		Timeout:          opts.Timeout,
		SingleUseRefresh: opts.SingleUseRefresh,
	})
	return &Client{
		store:   store,
		gw:      factory.For(store),
		posts:   optimistic.New[string, PostState](optimistic.Config[string]{Timeout: opts.Timeout, OnError: opts.OnError}),
		follows: optimistic.New[string, FollowState](optimistic.Config[string]{Timeout: opts.Timeout, OnError: opts.OnError}),
	}
}

// Session exposes the credentials of the client.
func (c *Client) Session() session.TokenStore { return c.store }

// AuthResponse is returned by login and registration.
type AuthResponse struct {
	models.Credentials
	User models.User `json:"user"`
}

func (c *Client) Login(ctx context.Context, username, password string) (*models.User, error) {
	if strings.TrimSpace(username) == "" {
		return nil, models.Invalid("username", "required")
	}
	if password == "" {
		return nil, models.Invalid("password", "required")
	}
	return c.authenticate(ctx, "/auth/login", map[string]string{"username": username, "password": password})
}

type RegisterInput struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password1 string `json:"password1"`
	Password2 string `json:"password2"`
}

func (c *Client) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	if in.Password1 != in.Password2 {
		return nil, models.Invalid("password2", "passwords do not match")
	}
	return c.authenticate(ctx, "/auth/register", in)
}

func (c *Client) authenticate(ctx context.Context, path string, body any) (*models.User, error) {
	resp, err := c.gw.DoPublic(ctx, gateway.Request{Method: http.MethodPost, Path: path, Body: body})
	if err != nil {
		return nil, err
	}
	var out AuthResponse
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	c.store.Set(out.Credentials)
	return &out.User, nil
}

func (c *Client) Logout() { c.store.Clear() }

func (c *Client) Me(ctx context.Context) (*models.User, error) {
	var u models.User
	if err := c.gw.GetJSON(ctx, "/auth/user", &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateProfile changes the fields of the session user that are set in in.
func (c *Client) UpdateProfile(ctx context.Context, in models.ProfileUpdate) (*models.User, error) {
	if in.DisplayName == nil && in.Bio == nil && in.Location == nil && in.Avatar == nil {
		return nil, models.Invalid("non_field_errors", "nothing to update")
	}
	resp, err := c.gw.Do(ctx, gateway.Request{Method: http.MethodPatch, Path: "/auth/user", Body: in})
	if err != nil {
		return nil, err
	}
	var u models.User
	if err := resp.Decode(&u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Feed returns the session user's timeline, newest first.
func (c *Client) Feed(ctx context.Context, limit int) ([]models.Post, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	resp, err := c.gw.Do(ctx, gateway.Request{Method: http.MethodGet, Path: "/posts", Query: q})
	if err != nil {
		return nil, err
	}
	var posts []models.Post
	if err := resp.Decode(&posts); err != nil {
		return nil, err
	}
	for i := range posts {
		c.seedPost(&posts[i])
	}
	return posts, nil
}

// Post fetches one post and refreshes its cached engagement state.
func (c *Client) Post(ctx context.Context, id string) (*models.Post, error) {
	p, err := c.fetchPost(ctx, id)
	if err != nil {
		return nil, err
	}
	c.seedPost(p)
	return p, nil
}

func (c *Client) CreatePost(ctx context.Context, body, media string) (*models.Post, error) {
	if strings.TrimSpace(body) == "" {
		return nil, models.Invalid("body", "required")
	}
	var p models.Post
	if err := c.gw.PostJSON(ctx, "/posts", map[string]string{"body": body, "media": media}, &p); err != nil {
		return nil, err
	}
	c.seedPost(&p)
	return &p, nil
}

// PostEdit holds the post fields to change; nil fields stay as they are.
type PostEdit struct {
	Body      *string `json:"body,omitempty"`
	Media     *string `json:"media,omitempty"`
	QuoteText *string `json:"quote_text,omitempty"`
}

// EditPost changes one of the session user's posts.
func (c *Client) EditPost(ctx context.Context, id string, in PostEdit) (*models.Post, error) {
	if in.QuoteText != nil && strings.TrimSpace(*in.QuoteText) == "" {
		return nil, models.Invalid("quote_text", "quote text is required for a quote retweet")
	}
	resp, err := c.gw.Do(ctx, gateway.Request{
		Method: http.MethodPatch,
		Path:   "/posts/" + url.PathEscape(id),
		Body:   in,
	})
	if err != nil {
		return nil, err
	}
	var p models.Post
	if err := resp.Decode(&p); err != nil {
		return nil, err
	}
	c.seedPost(&p)
	return &p, nil
}

// DeletePost removes one of the session user's posts and forgets its state.
func (c *Client) DeletePost(ctx context.Context, id string) error {
	if _, err := c.gw.Do(ctx, gateway.Request{Method: http.MethodDelete, Path: "/posts/" + url.PathEscape(id)}); err != nil {
		return err
	}
	c.posts.Forget(id)
	return nil
}

// Comments returns the discussion of a post as a reply forest.
func (c *Client) Comments(ctx context.Context, postID string) ([]*models.Comment, error) {
	var flat []models.Comment
	if err := c.gw.GetJSON(ctx, "/posts/"+url.PathEscape(postID)+"/comments", &flat); err != nil {
		return nil, err
	}
	return comments.BuildTree(flat), nil
}

// AddComment posts a comment; parentID is empty for a root comment.
func (c *Client) AddComment(ctx context.Context, postID, content, parentID string) (*models.Comment, error) {
	if strings.TrimSpace(content) == "" {
		return nil, models.Invalid("content", "required")
	}
	body := map[string]any{"post": postID, "content": content, "parent": nil}
	if parentID != "" {
		body["parent"] = parentID
	}
	var out models.Comment
	if err := c.gw.PostJSON(ctx, "/posts/"+url.PathEscape(postID)+"/comments", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Profile(ctx context.Context, id string) (*models.ProfileView, error) {
	p, err := c.fetchProfile(ctx, id)
	if err != nil {
		return nil, err
	}
	c.follows.Put(id, followStateOf(p))
	return p, nil
}

// FollowSuggestions lists profiles the session user does not follow yet.
func (c *Client) FollowSuggestions(ctx context.Context, limit int) ([]models.ProfileView, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	resp, err := c.gw.Do(ctx, gateway.Request{Method: http.MethodGet, Path: "/accounts/profile/can_follow", Query: q})
	if err != nil {
		return nil, err
	}
	var out []models.ProfileView
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	for i := range out {
		if c.follows.Pending(out[i].ID) == 0 {
			c.follows.Put(out[i].ID, followStateOf(&out[i]))
		}
	}
	return out, nil
}

// PostState returns the visible (optimistic) engagement of a post.
func (c *Client) PostState(id string) (PostState, bool) { return c.posts.Get(id) }

// FollowState returns the visible (optimistic) follow relation to a profile.
func (c *Client) FollowState(id string) (FollowState, bool) { return c.follows.Get(id) }

// SubscribePosts registers fn for every visible change of post state.
func (c *Client) SubscribePosts(fn func(id string, s PostState)) func() {
	return c.posts.Subscribe(fn)
}

func (c *Client) seedPost(p *models.Post) {
	if c.posts.Pending(p.ID) == 0 {
		c.posts.Put(p.ID, postStateOf(p))
	}
}

func (c *Client) fetchPost(ctx context.Context, id string) (*models.Post, error) {
	var p models.Post
	if err := c.gw.GetJSON(ctx, "/posts/"+url.PathEscape(id), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) fetchProfile(ctx context.Context, id string) (*models.ProfileView, error) {
	var p models.ProfileView
	if err := c.gw.GetJSON(ctx, "/accounts/profile/"+url.PathEscape(id), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) reconcilePost(id string) func(context.Context) (PostState, error) {
	return func(ctx context.Context) (PostState, error) {
		p, err := c.fetchPost(ctx, id)
		if err != nil {
			return PostState{}, err
		}
		return postStateOf(p), nil
	}
}

func (c *Client) reconcileProfile(id string) func(context.Context) (FollowState, error) {
	return func(ctx context.Context) (FollowState, error) {
		p, err := c.fetchProfile(ctx, id)
		if err != nil {
			return FollowState{}, err
		}
		return followStateOf(p), nil
	}
}

// failed returns an already settled outcome channel.
func failed(err error) <-chan error {
	ch := make(chan error, 1)
	ch <- err
	close(ch)
	return ch
}
