package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	appkafka "example.com/mindfeed/internal/broker"
	"example.com/mindfeed/internal/models"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	defaultFeedLimit = 50
	maxFeedLimit     = 100
	maxPostLen       = 1000
	maxCommentLen    = 500
	viewConcurrency  = 8
)

// getFeedHandler returns the newest posts of the user's feed.
// Query param: ?limit=N
func (s *Server) getFeedHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, "http/feed")
	if !ok {
		return
	}

	limit := defaultFeedLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxFeedLimit)
	}

	entries, err := s.store.GetFeed(userID, limit)
	if err != nil {
		storeError(w, "http/feed", "Failed to fetch feed", err)
		return
	}

	// entries whose post row is gone were deleted and await retraction
	views := make([]*models.Post, len(entries))
	var g errgroup.Group
	g.SetLimit(viewConcurrency)
	for i, entry := range entries {
		g.Go(func() error {
			p, err := s.store.GetPost(entry.ID)
			if errors.Is(err, models.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			view, err := s.postView(p, userID)
			if err != nil {
				return err
			}
			views[i] = &view
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		storeError(w, "http/feed", "Failed to assemble feed", err)
		return
	}
	posts := make([]models.Post, 0, len(views))
	for _, v := range views {
		if v != nil {
			posts = append(posts, *v)
		}
	}

	logg.Info("http/feed", "Fetched feed for user_id="+userID+", count="+strconv.Itoa(len(posts)))
	writeJSON(w, http.StatusOK, posts)
}

// createPostHandler stores a post and publishes it for fan-out.
// Expects JSON body: {"body": "...", "media": "..."}
func (s *Server) createPostHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, "http/posts")
	if !ok {
		return
	}

	var body struct {
		Body  string `json:"body"`
		Media string `json:"media"`
	}
	if !decodeBody(w, r, "http/posts", &body) {
		return
	}

	text := strings.TrimSpace(body.Body)
	if text == "" {
		writeFieldError(w, "body", "This field may not be blank.")
		return
	}
	if utf8.RuneCountInString(text) > maxPostLen {
		writeFieldError(w, "body", "Ensure this field has no more than 1000 characters.")
		return
	}

	post, err := s.newPost(userID)
	if err != nil {
		storeError(w, "http/posts", "Failed to load author", err)
		return
	}
	post.Body = text
	post.Media = body.Media

	if !s.publish(w, "http/posts", post) {
		return
	}

	logg.Info("http/posts", "Post created by user_id="+userID+" post_id="+post.ID)
	writeJSON(w, http.StatusCreated, post)
}

// getPostHandler returns one post with counters and the viewer's flags.
func (s *Server) getPostHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, "http/post")
	if !ok {
		return
	}

	post, err := s.store.GetPost(r.PathValue("id"))
	if err != nil {
		storeError(w, "http/post", "Failed to load post", err)
		return
	}
	view, err := s.postView(post, userID)
	if err != nil {
		storeError(w, "http/post", "Failed to assemble post", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// editPostHandler changes the text or media of the caller's own post.
// Expects JSON body: {"body"?, "media"?, "quote_text"?}
func (s *Server) editPostHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, "http/post")
	if !ok {
		return
	}

	post, ok := s.ownPost(w, r, userID, "edit")
	if !ok {
		return
	}

	var body struct {
		Body      *string `json:"body"`
		Media     *string `json:"media"`
		QuoteText *string `json:"quote_text"`
	}
	if !decodeBody(w, r, "http/post", &body) {
		return
	}

	if post.IsRetweet && !post.IsQuoteRetweet {
		writeError(w, http.StatusBadRequest, "A plain retweet cannot be edited.")
		return
	}
	if body.Body != nil {
		text := strings.TrimSpace(*body.Body)
		if text == "" && !post.IsRetweet {
			writeFieldError(w, "body", "This field may not be blank.")
			return
		}
		if utf8.RuneCountInString(text) > maxPostLen {
			writeFieldError(w, "body", "Ensure this field has no more than 1000 characters.")
			return
		}
		post.Body = text
	}
	if body.QuoteText != nil {
		quote := strings.TrimSpace(*body.QuoteText)
		if !post.IsQuoteRetweet {
			writeFieldError(w, "quote_text", "Only a quote retweet has quote text.")
			return
		}
		if quote == "" {
			writeFieldError(w, "quote_text", "Quote text is required for a quote retweet.")
			return
		}
		if utf8.RuneCountInString(quote) > maxPostLen {
			writeFieldError(w, "quote_text", "Ensure this field has no more than 1000 characters.")
			return
		}
		post.QuoteText = quote
	}
	if body.Media != nil {
		post.Media = *body.Media
	}

	if err := s.store.UpdatePost(post); err != nil {
		storeError(w, "http/post", "Failed to update post", err)
		return
	}
	view, err := s.postView(post, userID)
	if err != nil {
		storeError(w, "http/post", "Failed to assemble post", err)
		return
	}

	logg.Info("http/post", "Post edited post_id="+post.ID)
	writeJSON(w, http.StatusOK, view)
}

// deletePostHandler removes the caller's own post and announces the
// retraction so the worker can drop it from feeds.
func (s *Server) deletePostHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, "http/post")
	if !ok {
		return
	}

	post, ok := s.ownPost(w, r, userID, "delete")
	if !ok {
		return
	}
	if err := s.store.DeletePost(post); err != nil {
		storeError(w, "http/post", "Failed to delete post", err)
		return
	}
	// feeds skip deleted posts, so a lost retraction only leaves stale rows
	if err := appkafka.PublishPostDeleted(s.kafkaWriter, post); err != nil {
		logg.Warn("http/post", "Failed to publish post retraction", err)
	}

	logg.Info("http/post", "Post deleted post_id="+post.ID)
	w.WriteHeader(http.StatusNoContent)
}

// ownPost loads the post in the path and checks that userID wrote it.
func (s *Server) ownPost(w http.ResponseWriter, r *http.Request, userID, action string) (models.Post, bool) {
	post, err := s.store.GetPost(r.PathValue("id"))
	if err != nil {
		storeError(w, "http/post", "Failed to load post", err)
		return models.Post{}, false
	}
	if post.AuthorID != userID {
		writeError(w, http.StatusForbidden, "You do not have permission to "+action+" this post.")
		return models.Post{}, false
	}
	return post, true
}

type likeResponse struct {
	Liked      bool `json:"liked"`
	LikesCount int  `json:"likes_count"`
}

func (s *Server) likeHandler(w http.ResponseWriter, r *http.Request) {
	s.setLike(w, r, true)
}

func (s *Server) unlikeHandler(w http.ResponseWriter, r *http.Request) {
	s.setLike(w, r, false)
}

// setLike is idempotent: liking twice keeps one like.
func (s *Server) setLike(w http.ResponseWriter, r *http.Request, like bool) {
	userID, ok := requireUser(w, r, "http/like")
	if !ok {
		return
	}

	postID := r.PathValue("id")
	if _, err := s.store.GetPost(postID); err != nil {
		storeError(w, "http/like", "Failed to load post", err)
		return
	}

	var err error
	if like {
		_, err = s.store.LikePost(postID, userID)
	} else {
		_, err = s.store.UnlikePost(postID, userID)
	}
	if err != nil {
		storeError(w, "http/like", "Failed to update like", err)
		return
	}

	counters, err := s.store.GetCounters(postID)
	if err != nil {
		storeError(w, "http/like", "Failed to load counters", err)
		return
	}

	logg.Debug("http/like", "Like set to "+strconv.FormatBool(like)+" on post_id="+postID)
	writeJSON(w, http.StatusOK, likeResponse{Liked: like, LikesCount: counters.Likes})
}

// retweetHandler creates a plain or quote retweet of the post in the path.
// Expects JSON body: {"body", "is_retweet", "is_quote_retweet", "quote_text"}
func (s *Server) retweetHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, "http/retweet")
	if !ok {
		return
	}

	var body struct {
		ParentPost     string `json:"parent_post"`
		Body           string `json:"body"`
		IsQuoteRetweet bool   `json:"is_quote_retweet"`
		QuoteText      string `json:"quote_text"`
	}
	if !decodeBody(w, r, "http/retweet", &body) {
		return
	}

	parentID := r.PathValue("id")
	if body.ParentPost != "" && body.ParentPost != parentID {
		writeFieldError(w, "parent_post", "Does not match the retweeted post.")
		return
	}
	quote := strings.TrimSpace(body.QuoteText)
	if body.IsQuoteRetweet && quote == "" {
		writeFieldError(w, "quote_text", "Quote text is required for a quote retweet.")
		return
	}
	if utf8.RuneCountInString(quote) > maxPostLen {
		writeFieldError(w, "quote_text", "Ensure this field has no more than 1000 characters.")
		return
	}

	parent, err := s.store.GetPost(parentID)
	if err != nil {
		storeError(w, "http/retweet", "Failed to load parent post", err)
		return
	}

	retweet, err := s.newPost(userID)
	if err != nil {
		storeError(w, "http/retweet", "Failed to load author", err)
		return
	}
	retweet.IsRetweet = true
	retweet.IsQuoteRetweet = body.IsQuoteRetweet
	retweet.ParentPost = parent.ID
	retweet.Body = body.Body
	if body.IsQuoteRetweet {
		retweet.QuoteText = quote
	}

	// claim before publishing; publish releases the claim on failure
	added, err := s.store.AddRetweet(retweet)
	if err != nil {
		storeError(w, "http/retweet", "Failed to record retweet", err)
		return
	}
	if !added {
		writeError(w, http.StatusConflict, "You have already retweeted this post.")
		return
	}

	if !s.publish(w, "http/retweet", retweet) {
		return
	}

	retweet.ParentPostData = &parent
	logg.Info("http/retweet", "Retweet post_id="+retweet.ID+" of parent="+parent.ID)
	writeJSON(w, http.StatusCreated, retweet)
}

func (s *Server) retweetersHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(w, r, "http/retweets"); !ok {
		return
	}
	ids, err := s.store.GetRetweeters(r.PathValue("id"))
	if err != nil {
		storeError(w, "http/retweets", "Failed to list retweeters", err)
		return
	}
	writeJSON(w, http.StatusOK, ids)
}

// listCommentsHandler returns the flat comment list, oldest first.
func (s *Server) listCommentsHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(w, r, "http/comments"); !ok {
		return
	}
	list, err := s.store.GetComments(r.PathValue("id"))
	if err != nil {
		storeError(w, "http/comments", "Failed to list comments", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// addCommentHandler stores a root comment or a reply.
// Expects JSON body: {"content": "...", "parent": null | "<comment id>"}
func (s *Server) addCommentHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, "http/comments")
	if !ok {
		return
	}

	var body struct {
		Content string  `json:"content"`
		Parent  *string `json:"parent"`
	}
	if !decodeBody(w, r, "http/comments", &body) {
		return
	}

	content := strings.TrimSpace(body.Content)
	if content == "" {
		writeFieldError(w, "content", "This field may not be blank.")
		return
	}
	if utf8.RuneCountInString(content) > maxCommentLen {
		writeFieldError(w, "content", "Ensure this field has no more than 500 characters.")
		return
	}

	postID := r.PathValue("id")
	if _, err := s.store.GetPost(postID); err != nil {
		storeError(w, "http/comments", "Failed to load post", err)
		return
	}

	if body.Parent != nil && *body.Parent == "" {
		body.Parent = nil
	}
	if body.Parent != nil {
		existing, err := s.store.GetComments(postID)
		if err != nil {
			storeError(w, "http/comments", "Failed to list comments", err)
			return
		}
		if !containsComment(existing, *body.Parent) {
			writeFieldError(w, "parent", "Parent comment does not belong to this post.")
			return
		}
	}

	author, err := s.store.GetUser(userID)
	if err != nil {
		storeError(w, "http/comments", "Failed to load author", err)
		return
	}

	c := models.Comment{
		ID:             uuid.NewString(),
		Post:           postID,
		Author:         userID,
		AuthorUsername: author.Username,
		Content:        content,
		Parent:         body.Parent,
		CommentedAt:    time.Now().UTC(),
	}
	if err := s.store.AddComment(c); err != nil {
		storeError(w, "http/comments", "Failed to add comment", err)
		return
	}

	logg.Info("http/comments", "Comment "+c.ID+" added to post_id="+postID)
	writeJSON(w, http.StatusCreated, c)
}

func containsComment(list []models.Comment, id string) bool {
	for _, c := range list {
		if c.ID == id {
			return true
		}
	}
	return false
}

// --- Post helpers ---

func (s *Server) newPost(userID string) (models.Post, error) {
	author, err := s.store.GetUser(userID)
	if err != nil {
		return models.Post{}, err
	}
	return models.Post{
		ID:             uuid.NewString(),
		AuthorID:       userID,
		AuthorUsername: author.Username,
		Created:        time.Now().UTC(),
	}, nil
}

// publish stores the post and hands it to Kafka for fan-out. On failure
// nothing of the post survives, including the retweet claim of a retweet.
func (s *Server) publish(w http.ResponseWriter, module string, post models.Post) bool {
	if err := s.store.AddPost(post); err != nil {
		if post.IsRetweet {
			if rerr := s.store.RemoveRetweet(post); rerr != nil {
				logg.Error(module, "Failed to release retweet claim", rerr)
			}
		}
		storeError(w, module, "Failed to store post", err)
		return false
	}
	if err := appkafka.PublishPost(s.kafkaWriter, post); err != nil {
		logg.Error(module, "Failed to publish post to Kafka", err)
		if derr := s.store.DeletePost(post); derr != nil {
			logg.Error(module, "Failed to discard unpublished post", derr)
		}
		writeError(w, http.StatusInternalServerError, "failed to publish post")
		return false
	}
	return true
}

// postView fills counters, viewer flags and the parent of a retweet.
func (s *Server) postView(post models.Post, viewerID string) (models.Post, error) {
	var (
		g        errgroup.Group
		counters models.Counters
		parent   *models.Post
	)
	g.Go(func() (err error) {
		counters, err = s.store.GetCounters(post.ID)
		return err
	})
	g.Go(func() (err error) {
		post.LikedByUser, err = s.store.HasLiked(post.ID, viewerID)
		return err
	})
	g.Go(func() (err error) {
		post.RetweetedByUser, err = s.store.HasRetweeted(post.ID, viewerID)
		return err
	})
	g.Go(func() (err error) {
		post.PlainRetweetedByUser, err = s.store.HasPlainRetweeted(post.ID, viewerID)
		return err
	})
	if post.ParentPost != "" {
		g.Go(func() error {
			p, err := s.store.GetPost(post.ParentPost)
			if errors.Is(err, models.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			parent = &p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return models.Post{}, err
	}

	post.LikesCount = counters.Likes
	post.RetweetCount = counters.Retweets
	post.CommentsCount = counters.Comments
	post.ParentPostData = parent
	return post, nil
}
