package store

import (
	"errors"
	"testing"

	"example.com/mindfeed/internal/models"
)

var (
	_ StoreInterface = (*Store)(nil)
	_ StoreInterface = (*MockStore)(nil)
	_ StoreInterface = (*MockStoreFail)(nil)
)

func TestMockStore_LikesAreIdempotent(t *testing.T) {
	m := NewMock()

	if changed, _ := m.LikePost("p1", "u1"); !changed {
		t.Fatal("first like should change state")
	}
	if changed, _ := m.LikePost("p1", "u1"); changed {
		t.Fatal("second like should be a no-op")
	}
	if c, _ := m.GetCounters("p1"); c.Likes != 1 {
		t.Fatalf("expected 1 like, got %d", c.Likes)
	}
	if changed, _ := m.UnlikePost("p1", "u1"); !changed {
		t.Fatal("unlike should change state")
	}
	if changed, _ := m.UnlikePost("p1", "u1"); changed {
		t.Fatal("second unlike should be a no-op")
	}
}

func TestMockStore_PlainRetweetOnce(t *testing.T) {
	m := NewMock()
	plain := models.Post{ID: "r1", AuthorID: "u1", ParentPost: "p1", IsRetweet: true}

	if ok, _ := m.AddRetweet(plain); !ok {
		t.Fatal("first retweet refused")
	}
	plain.ID = "r2"
	if ok, _ := m.AddRetweet(plain); ok {
		t.Fatal("duplicate plain retweet accepted")
	}
	quote := models.Post{ID: "r3", AuthorID: "u1", ParentPost: "p1", IsRetweet: true, IsQuoteRetweet: true, QuoteText: "yes"}
	if ok, _ := m.AddRetweet(quote); !ok {
		t.Fatal("quote retweet refused")
	}
	ids, _ := m.GetRetweeters("p1")
	if len(ids) != 1 || ids[0] != "u1" {
		t.Fatalf("unexpected retweeters %v", ids)
	}
}

func TestMockStore_UniqueUsernameAndEmail(t *testing.T) {
	m := NewMock()
	if _, err := m.CreateUser(models.User{Username: "ada", Email: "ada@example.com"}, "h"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.CreateUser(models.User{Username: "ADA", Email: "x@example.com"}, "h"); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected username conflict, got %v", err)
	}
	if _, err := m.CreateUser(models.User{Username: "bob", Email: "Ada@Example.com"}, "h"); !errors.Is(err, models.ErrConflict) {
		t.Fatalf("expected email conflict, got %v", err)
	}
}

func TestMockStore_FollowUnfollow(t *testing.T) {
	m := NewMock()
	_ = m.CreateFollow("u1", "u2", "https://placehold.co/96x96/png")
	_ = m.CreateFollow("u1", "u2", "")

	followers, _ := m.GetFollowers("u2")
	if len(followers) != 1 {
		t.Fatalf("duplicate follow recorded: %v", followers)
	}
	if ok, _ := m.IsFollowing("u1", "u2"); !ok {
		t.Fatal("expected u1 to follow u2")
	}

	_ = m.DeleteFollow("u1", "u2")
	followers, _ = m.GetFollowers("u2")
	following, _ := m.GetFollowing("u1")
	if len(followers) != 0 || len(following) != 0 {
		t.Fatalf("unfollow left edges: %v %v", followers, following)
	}
}

func TestMockStore_ShouldFail(t *testing.T) {
	m := NewMock()
	m.ShouldFail = true
	if _, err := m.GetFeed("u1", 10); err == nil {
		t.Fatal("expected failure")
	}
	if _, err := (&MockStoreFail{}).GetPost("p1"); !errors.Is(err, errMockFail) {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestMockStore_PlainRetweetFlagIgnoresQuotes(t *testing.T) {
	m := NewMock()
	quote := models.Post{ID: "r1", AuthorID: "u1", ParentPost: "p1", IsRetweet: true, IsQuoteRetweet: true, QuoteText: "yes"}
	if _, err := m.AddRetweet(quote); err != nil {
		t.Fatal(err)
	}

	if retweeted, _ := m.HasRetweeted("p1", "u1"); !retweeted {
		t.Fatal("quote should count as a retweet")
	}
	if plain, _ := m.HasPlainRetweeted("p1", "u1"); plain {
		t.Fatal("quote should not count as a plain retweet")
	}
}

func TestMockStore_RemoveRetweetReleasesClaim(t *testing.T) {
	m := NewMock()
	plain := models.Post{ID: "r1", AuthorID: "u1", ParentPost: "p1", IsRetweet: true}
	if ok, _ := m.AddRetweet(plain); !ok {
		t.Fatal("first retweet refused")
	}
	if err := m.RemoveRetweet(plain); err != nil {
		t.Fatal(err)
	}
	if c, _ := m.GetCounters("p1"); c.Retweets != 0 {
		t.Fatalf("expected 0 retweets, got %d", c.Retweets)
	}
	plain.ID = "r2"
	if ok, _ := m.AddRetweet(plain); !ok {
		t.Fatal("retweet refused after the claim was released")
	}
}

func TestMockStore_DeletePost(t *testing.T) {
	m := NewMock()
	post := models.Post{ID: "p1", AuthorID: "u1", Body: "hi"}
	retweet := models.Post{ID: "r1", AuthorID: "u2", ParentPost: "p0", IsRetweet: true}
	for _, p := range []models.Post{post, retweet} {
		_ = m.AddPost(p)
		_ = m.AddToFeed("u3", p)
	}
	_, _ = m.AddRetweet(retweet)
	_, _ = m.LikePost("p1", "u2")

	if err := m.DeletePost(post); err != nil {
		t.Fatal(err)
	}
	if err := m.DeletePost(retweet); err != nil {
		t.Fatal(err)
	}
	if _, err := m.GetPost("p1"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if c, _ := m.GetCounters("p1"); c.Likes != 0 {
		t.Fatalf("likes survived delete: %+v", c)
	}
	if plain, _ := m.HasPlainRetweeted("p0", "u2"); plain {
		t.Fatal("deleting the retweet should release the parent claim")
	}

	_ = m.RemoveFromFeed("u3", post)
	if feed, _ := m.GetFeed("u3", 10); len(feed) != 1 || feed[0].ID != "r1" {
		t.Fatalf("unexpected feed after retraction %+v", feed)
	}
}

func TestMockStore_UpdateUserAndPost(t *testing.T) {
	m := NewMock()
	id, _ := m.CreateUser(models.User{Username: "ada", Email: "ada@example.com"}, "h")

	u, _ := m.GetUser(id)
	u.Profile.Bio = "math"
	if err := m.UpdateUser(u); err != nil {
		t.Fatal(err)
	}
	if got, _ := m.GetUser(id); got.Profile.Bio != "math" || got.Email != "ada@example.com" {
		t.Fatalf("unexpected user %+v", got)
	}
	if err := m.UpdateUser(models.User{ID: "nobody"}); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := m.UpdatePost(models.Post{ID: "missing"}); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	_ = m.AddPost(models.Post{ID: "p1", AuthorID: id, Body: "draft"})
	if err := m.UpdatePost(models.Post{ID: "p1", Body: "final"}); err != nil {
		t.Fatal(err)
	}
	if p, _ := m.GetPost("p1"); p.Body != "final" || p.AuthorID != id {
		t.Fatalf("unexpected post %+v", p)
	}

	users, _ := m.ListUsers(10)
	if len(users) != 1 || users[0].ID != id {
		t.Fatalf("unexpected users %+v", users)
	}
}
