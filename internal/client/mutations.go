package client

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"example.com/mindfeed/internal/gateway"
	"example.com/mindfeed/internal/models"
	"example.com/mindfeed/internal/optimistic"
)

// PlaceholderAvatar is sent when a followed profile has no absolute image URL.
const PlaceholderAvatar = "https://placehold.co/96x96/png"

// ToggleLike likes or unlikes a post depending on its visible state. The flip
// is visible immediately; the channel reports the server outcome.
func (c *Client) ToggleLike(ctx context.Context, postID string) <-chan error {
	cur, err := c.postState(ctx, postID)
	if err != nil {
		return failed(err)
	}

	target := !cur.Liked
	action := "unlike"
	if target {
		action = "like"
	}

	return c.posts.Mutate(ctx, postID, optimistic.Mutation[PostState]{
		Apply: func(s PostState) PostState {
			if s.Liked == target {
				return s
			}
			s.Liked = target
			if target {
				s.Likes++
			} else {
				s.Likes--
			}
			return s
		},
		Call: func(ctx context.Context) error {
			_, err := c.gw.Do(ctx, gateway.Request{
				Method: http.MethodPost,
				Path:   "/posts/" + url.PathEscape(postID) + "/" + action,
			})
			return err
		},
		Reconcile: c.reconcilePost(postID),
	})
}

// ToggleFollow follows or unfollows a profile depending on its visible state.
func (c *Client) ToggleFollow(ctx context.Context, profileID, avatar string) <-chan error {
	cur, err := c.followState(ctx, profileID)
	if err != nil {
		return failed(err)
	}

	target := !cur.Following
	action := "unfollow"
	if target {
		action = "follow"
	}
	if !strings.HasPrefix(avatar, "http") {
		avatar = PlaceholderAvatar
	}

	return c.follows.Mutate(ctx, profileID, optimistic.Mutation[FollowState]{
		Apply: func(s FollowState) FollowState {
			if s.Following == target {
				return s
			}
			s.Following = target
			if target {
				s.Followers++
			} else {
				s.Followers--
			}
			return s
		},
		Call: func(ctx context.Context) error {
			_, err := c.gw.Do(ctx, gateway.Request{
				Method: http.MethodPost,
				Path:   "/accounts/profile/" + url.PathEscape(profileID) + "/" + action,
				Body:   map[string]string{"profile_image": avatar},
			})
			return err
		},
		Reconcile: c.reconcileProfile(profileID),
	})
}

// RetweetPayload is the body of POST /posts/{id}/retweet.
type RetweetPayload struct {
	ParentPost     string `json:"parent_post"`
	Body           string `json:"body"`
	IsRetweet      bool   `json:"is_retweet"`
	IsQuoteRetweet bool   `json:"is_quote_retweet,omitempty"`
	QuoteText      string `json:"quote_text,omitempty"`
}

// Retweet reposts a post, optionally quoting it. A quote needs non-blank text
// and a plain retweet can happen once; both are checked before anything else.
// Quoting a post does not count against the plain retweet.
func (c *Client) Retweet(ctx context.Context, postID, quoteText string, isQuote bool) <-chan error {
	quoteText = strings.TrimSpace(quoteText)
	if isQuote && quoteText == "" {
		return failed(models.Invalid("quote_text", "quote text is required for a quote retweet"))
	}

	cur, err := c.postState(ctx, postID)
	if err != nil {
		return failed(err)
	}
	if !isQuote && cur.PlainRetweeted {
		return failed(models.Invalid("is_retweet", "post already retweeted"))
	}

	payload := RetweetPayload{ParentPost: postID, IsRetweet: true}
	if isQuote {
		payload.IsQuoteRetweet = true
		payload.QuoteText = quoteText
	}

	return c.posts.Mutate(ctx, postID, optimistic.Mutation[PostState]{
		Apply: func(s PostState) PostState {
			s.Retweeted = true
			if !isQuote {
				s.PlainRetweeted = true
			}
			s.Retweets++
			return s
		},
		Call: func(ctx context.Context) error {
			return c.gw.PostJSON(ctx, "/posts/"+url.PathEscape(postID)+"/retweet", payload, nil)
		},
		Reconcile: c.reconcilePost(postID),
	})
}

func (c *Client) postState(ctx context.Context, postID string) (PostState, error) {
	if s, ok := c.posts.Get(postID); ok {
		return s, nil
	}
	if _, err := c.Post(ctx, postID); err != nil {
		return PostState{}, err
	}
	s, _ := c.posts.Get(postID)
	return s, nil
}

func (c *Client) followState(ctx context.Context, profileID string) (FollowState, error) {
	if s, ok := c.follows.Get(profileID); ok {
		return s, nil
	}
	if _, err := c.Profile(ctx, profileID); err != nil {
		return FollowState{}, err
	}
	s, _ := c.follows.Get(profileID)
	return s, nil
}
