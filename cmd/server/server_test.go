package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	appkafka "example.com/mindfeed/internal/broker"
	"example.com/mindfeed/internal/models"
	"example.com/mindfeed/internal/store"
	"example.com/mindfeed/internal/tokens"
)

//
// --- Helpers ---
//

// create HTTP request with JWT token
func sendJSONRequest(t *testing.T, method, url string, body any, token string, expectedStatus int) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("json.Marshal failed: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	if resp.StatusCode != expectedStatus {
		b, _ := io.ReadAll(resp.Body)
		defer resp.Body.Close()
		t.Fatalf("expected %d, got %d: %s", expectedStatus, resp.StatusCode, string(b))
	}
	return resp
}

func decodeResponse[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	return out
}

//
// --- Setup test server ---
//

type testEnv struct {
	s     *Server
	store *store.MockStore
	kafka *appkafka.MockKafka
	iss   *tokens.Issuer
	ts    *httptest.Server
}

func setupTestServer(t *testing.T) *testEnv {
	return setupTestServerWith(t, false, nil, nil)
}

// setupTestServerWith lets a test swap the store or Kafka writer before
// the server starts; nil keeps the mocks.
func setupTestServerWith(t *testing.T, rotate bool, st store.StoreInterface, writer appkafka.KafkaWriter) *testEnv {
	t.Helper()
	mockStore := store.NewMock()
	mockKafka := &appkafka.MockKafka{Store: mockStore}
	iss := tokens.NewIssuer("test-secret", time.Hour, 24*time.Hour)
	if st == nil {
		st = mockStore
	}
	if writer == nil {
		writer = mockKafka
	}

	s := NewServer(st, writer, iss, rotate)
	ts := httptest.NewServer(s.Routes())
	t.Cleanup(ts.Close)

	return &testEnv{s: s, store: mockStore, kafka: mockKafka, iss: iss, ts: ts}
}

// register creates an account through the API and returns its session.
func (e *testEnv) register(t *testing.T, username string) authResponse {
	t.Helper()
	body := map[string]string{
		"username":  username,
		"email":     username + "@example.com",
		"password1": "s3cret-pass",
		"password2": "s3cret-pass",
	}
	resp := sendJSONRequest(t, http.MethodPost, e.ts.URL+"/auth/register", body, "", http.StatusCreated)
	return decodeResponse[authResponse](t, resp)
}

func (e *testEnv) createPost(t *testing.T, token, body string) models.Post {
	t.Helper()
	resp := sendJSONRequest(t, http.MethodPost, e.ts.URL+"/posts", map[string]string{"body": body}, token, http.StatusCreated)
	return decodeResponse[models.Post](t, resp)
}

//
// --- Auth ---
//

func TestRegisterAndLogin(t *testing.T) {
	e := setupTestServer(t)

	reg := e.register(t, "almaz")
	if reg.Access == "" || reg.Refresh == "" {
		t.Fatalf("expected both tokens, got %+v", reg.Credentials)
	}
	if reg.User.Username != "almaz" || reg.User.ID == "" {
		t.Fatalf("unexpected user %+v", reg.User)
	}

	for _, body := range []map[string]string{
		{"username": "almaz", "password": "s3cret-pass"},
		{"email": "almaz@example.com", "password": "s3cret-pass"},
	} {
		resp := sendJSONRequest(t, http.MethodPost, e.ts.URL+"/auth/login", body, "", http.StatusOK)
		login := decodeResponse[authResponse](t, resp)
		if login.User.ID != reg.User.ID {
			t.Fatalf("login returned user %q, want %q", login.User.ID, reg.User.ID)
		}
	}
}

func TestLogin_BadCredentials(t *testing.T) {
	e := setupTestServer(t)
	e.register(t, "almaz")

	cases := []map[string]string{
		{"username": "almaz", "password": "wrong-pass"},
		{"username": "nobody", "password": "s3cret-pass"},
		{"username": "", "password": ""},
	}
	for _, body := range cases {
		resp := sendJSONRequest(t, http.MethodPost, e.ts.URL+"/auth/login", body, "", http.StatusBadRequest)
		out := decodeResponse[map[string][]string](t, resp)
		if len(out["non_field_errors"]) != 1 {
			t.Fatalf("expected non_field_errors, got %v", out)
		}
	}
}

func TestRegister_Validation(t *testing.T) {
	e := setupTestServer(t)
	e.register(t, "almaz")

	cases := []struct {
		name  string
		body  map[string]string
		field string
	}{
		{"short username", map[string]string{"username": "al", "email": "a@x.io", "password1": "s3cret-pass", "password2": "s3cret-pass"}, "username"},
		{"bad email", map[string]string{"username": "nur", "email": "nope", "password1": "s3cret-pass", "password2": "s3cret-pass"}, "email"},
		{"short password", map[string]string{"username": "nur", "email": "n@x.io", "password1": "short", "password2": "short"}, "password1"},
		{"mismatch", map[string]string{"username": "nur", "email": "n@x.io", "password1": "s3cret-pass", "password2": "other-pass"}, "non_field_errors"},
		{"taken username", map[string]string{"username": "ALMAZ", "email": "n@x.io", "password1": "s3cret-pass", "password2": "s3cret-pass"}, "username"},
		{"taken email", map[string]string{"username": "nur", "email": "almaz@example.com", "password1": "s3cret-pass", "password2": "s3cret-pass"}, "email"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := sendJSONRequest(t, http.MethodPost, e.ts.URL+"/auth/register", tc.body, "", http.StatusBadRequest)
			out := decodeResponse[map[string][]string](t, resp)
			if _, ok := out[tc.field]; !ok {
				t.Fatalf("expected error on %q, got %v", tc.field, out)
			}
		})
	}
}

func TestRefreshToken(t *testing.T) {
	e := setupTestServer(t)
	reg := e.register(t, "almaz")

	resp := sendJSONRequest(t, http.MethodPost, e.ts.URL+"/auth/token/refresh",
		map[string]string{"refresh": reg.Refresh}, "", http.StatusOK)
	creds := decodeResponse[models.Credentials](t, resp)
	if creds.Access == "" {
		t.Fatalf("expected access token")
	}
	if creds.Refresh != "" {
		t.Fatalf("refresh token must not rotate by default")
	}

	// the new access token works
	sendJSONRequest(t, http.MethodGet, e.ts.URL+"/auth/user", nil, creds.Access, http.StatusOK).Body.Close()

	// an access token is not a refresh token
	sendJSONRequest(t, http.MethodPost, e.ts.URL+"/auth/token/refresh",
		map[string]string{"refresh": reg.Access}, "", http.StatusUnauthorized).Body.Close()
}

func TestRefreshToken_Rotation(t *testing.T) {
	e := setupTestServerWith(t, true, nil, nil)
	reg := e.register(t, "almaz")

	resp := sendJSONRequest(t, http.MethodPost, e.ts.URL+"/auth/token/refresh",
		map[string]string{"refresh": reg.Refresh}, "", http.StatusOK)
	creds := decodeResponse[models.Credentials](t, resp)
	if creds.Access == "" || creds.Refresh == "" {
		t.Fatalf("expected rotated pair, got %+v", creds)
	}
}

func TestProtectedRoutes_RequireToken(t *testing.T) {
	e := setupTestServer(t)

	for _, path := range []string{"/auth/user", "/posts", "/accounts/me/followers"} {
		sendJSONRequest(t, http.MethodGet, e.ts.URL+path, nil, "", http.StatusUnauthorized).Body.Close()
		sendJSONRequest(t, http.MethodGet, e.ts.URL+path, nil, "garbage", http.StatusUnauthorized).Body.Close()
	}
}

//
// --- Posts ---
//

// full flow: follow -> post -> feed
func TestFollowAndFeedFlow(t *testing.T) {
	e := setupTestServer(t)

	almaz := e.register(t, "almaz")
	nur := e.register(t, "nur")

	// Almaz -> follow Nur
	sendJSONRequest(t, http.MethodPost, e.ts.URL+"/accounts/profile/"+nur.User.ID+"/follow",
		map[string]string{"profile_image": "https://img.example/a.png"}, almaz.Access, http.StatusOK).Body.Close()

	// Nur -> create post
	postBody := "Hello from Nur!"
	post := e.createPost(t, nur.Access, postBody)
	if post.AuthorUsername != "nur" {
		t.Fatalf("expected author username, got %q", post.AuthorUsername)
	}
	if len(e.kafka.Written()) != 1 {
		t.Fatalf("expected 1 published message, got %d", len(e.kafka.Written()))
	}

	// Almaz -> check feed (polling)
	deadline := time.Now().Add(1 * time.Second)
	for time.Now().Before(deadline) {
		feed := getFeedHelper(t, e.ts, almaz.Access)
		for _, p := range feed {
			if p.Body == postBody {
				return
			}
		}
		time.Sleep(20 * time.Millisecond)
	}

	t.Fatalf("expected post in feed")
}

func TestCreatePost_Validation(t *testing.T) {
	e := setupTestServer(t)
	u := e.register(t, "almaz")

	sendJSONRequest(t, http.MethodPost, e.ts.URL+"/posts", map[string]string{"body": "   "}, u.Access, http.StatusBadRequest).Body.Close()
	sendJSONRequest(t, http.MethodPost, e.ts.URL+"/posts", map[string]any{"body": 1}, u.Access, http.StatusBadRequest).Body.Close()
	if len(e.kafka.Written()) != 0 {
		t.Fatalf("rejected posts must not be published")
	}
}

func TestLikeUnlike_Idempotent(t *testing.T) {
	e := setupTestServer(t)
	u := e.register(t, "almaz")
	post := e.createPost(t, u.Access, "like me")
	base := e.ts.URL + "/posts/" + post.ID

	for i := 0; i < 2; i++ {
		resp := sendJSONRequest(t, http.MethodPost, base+"/like", nil, u.Access, http.StatusOK)
		got := decodeResponse[likeResponse](t, resp)
		if !got.Liked || got.LikesCount != 1 {
			t.Fatalf("like #%d: got %+v", i+1, got)
		}
	}

	view := decodeResponse[models.Post](t, sendJSONRequest(t, http.MethodGet, base, nil, u.Access, http.StatusOK))
	if !view.LikedByUser || view.LikesCount != 1 {
		t.Fatalf("unexpected view %+v", view)
	}

	for i := 0; i < 2; i++ {
		resp := sendJSONRequest(t, http.MethodPost, base+"/unlike", nil, u.Access, http.StatusOK)
		got := decodeResponse[likeResponse](t, resp)
		if got.Liked || got.LikesCount != 0 {
			t.Fatalf("unlike #%d: got %+v", i+1, got)
		}
	}

	sendJSONRequest(t, http.MethodPost, e.ts.URL+"/posts/missing/like", nil, u.Access, http.StatusNotFound).Body.Close()
}

func TestRetweet(t *testing.T) {
	e := setupTestServer(t)
	author := e.register(t, "almaz")
	fan := e.register(t, "nur")
	post := e.createPost(t, author.Access, "original")
	url := e.ts.URL + "/posts/" + post.ID + "/retweet"

	plain := map[string]any{"parent_post": post.ID, "body": "", "is_retweet": true}
	resp := sendJSONRequest(t, http.MethodPost, url, plain, fan.Access, http.StatusCreated)
	rt := decodeResponse[models.Post](t, resp)
	if !rt.IsRetweet || rt.ParentPost != post.ID || rt.ParentPostData == nil {
		t.Fatalf("unexpected retweet %+v", rt)
	}

	// a plain retweet happens once per user
	sendJSONRequest(t, http.MethodPost, url, plain, fan.Access, http.StatusConflict).Body.Close()

	// quote retweets need text but are not limited
	quote := map[string]any{"parent_post": post.ID, "is_retweet": true, "is_quote_retweet": true, "quote_text": "  "}
	sendJSONRequest(t, http.MethodPost, url, quote, fan.Access, http.StatusBadRequest).Body.Close()
	quote["quote_text"] = "so true"
	q := decodeResponse[models.Post](t, sendJSONRequest(t, http.MethodPost, url, quote, fan.Access, http.StatusCreated))
	if !q.IsQuoteRetweet || q.QuoteText != "so true" {
		t.Fatalf("unexpected quote retweet %+v", q)
	}

	ids := decodeResponse[[]string](t, sendJSONRequest(t, http.MethodGet, e.ts.URL+"/posts/"+post.ID+"/retweets", nil, author.Access, http.StatusOK))
	if len(ids) != 1 || ids[0] != fan.User.ID {
		t.Fatalf("unexpected retweeters %v", ids)
	}

	view := decodeResponse[models.Post](t, sendJSONRequest(t, http.MethodGet, e.ts.URL+"/posts/"+rt.ID, nil, fan.Access, http.StatusOK))
	if view.ParentPostData == nil || view.ParentPostData.Body != "original" {
		t.Fatalf("expected parent post data, got %+v", view.ParentPostData)
	}
}

func TestRetweet_QuoteDoesNotBlockPlain(t *testing.T) {
	e := setupTestServer(t)
	author := e.register(t, "almaz")
	fan := e.register(t, "nur")
	post := e.createPost(t, author.Access, "original")
	url := e.ts.URL + "/posts/" + post.ID

	quote := map[string]any{"parent_post": post.ID, "is_retweet": true, "is_quote_retweet": true, "quote_text": "so true"}
	sendJSONRequest(t, http.MethodPost, url+"/retweet", quote, fan.Access, http.StatusCreated).Body.Close()

	view := decodeResponse[models.Post](t, sendJSONRequest(t, http.MethodGet, url, nil, fan.Access, http.StatusOK))
	if !view.RetweetedByUser || view.PlainRetweetedByUser {
		t.Fatalf("after a quote: retweeted=%v plain=%v", view.RetweetedByUser, view.PlainRetweetedByUser)
	}

	plain := map[string]any{"parent_post": post.ID, "is_retweet": true}
	sendJSONRequest(t, http.MethodPost, url+"/retweet", plain, fan.Access, http.StatusCreated).Body.Close()

	view = decodeResponse[models.Post](t, sendJSONRequest(t, http.MethodGet, url, nil, fan.Access, http.StatusOK))
	if !view.PlainRetweetedByUser || view.RetweetCount != 2 {
		t.Fatalf("after a plain retweet: plain=%v count=%d", view.PlainRetweetedByUser, view.RetweetCount)
	}
}

func TestRetweet_PublishFailureReleasesClaim(t *testing.T) {
	e := setupTestServer(t)
	author := e.register(t, "almaz")
	fan := e.register(t, "nur")
	post := e.createPost(t, author.Access, "original")
	url := e.ts.URL + "/posts/" + post.ID

	plain := map[string]any{"parent_post": post.ID, "is_retweet": true}
	e.kafka.SetFail(true)
	sendJSONRequest(t, http.MethodPost, url+"/retweet", plain, fan.Access, http.StatusInternalServerError).Body.Close()
	e.kafka.SetFail(false)

	view := decodeResponse[models.Post](t, sendJSONRequest(t, http.MethodGet, url, nil, fan.Access, http.StatusOK))
	if view.RetweetCount != 0 || view.RetweetedByUser || view.PlainRetweetedByUser {
		t.Fatalf("failed retweet left state behind: %+v", view)
	}

	// the retry succeeds instead of reporting a duplicate
	sendJSONRequest(t, http.MethodPost, url+"/retweet", plain, fan.Access, http.StatusCreated).Body.Close()
}

func TestEditPost(t *testing.T) {
	e := setupTestServer(t)
	author := e.register(t, "almaz")
	other := e.register(t, "nur")
	post := e.createPost(t, author.Access, "draft")
	url := e.ts.URL + "/posts/" + post.ID

	sendJSONRequest(t, http.MethodPut, url, map[string]string{"body": "hijack"}, other.Access, http.StatusForbidden).Body.Close()
	sendJSONRequest(t, http.MethodPut, url, map[string]string{"body": "  "}, author.Access, http.StatusBadRequest).Body.Close()
	sendJSONRequest(t, http.MethodPut, e.ts.URL+"/posts/missing", map[string]string{"body": "x"}, author.Access, http.StatusNotFound).Body.Close()

	edited := decodeResponse[models.Post](t, sendJSONRequest(t, http.MethodPatch, url, map[string]string{"body": "final"}, author.Access, http.StatusOK))
	if edited.Body != "final" || edited.ID != post.ID {
		t.Fatalf("unexpected edited post %+v", edited)
	}

	// plain retweets have nothing to edit
	rt := decodeResponse[models.Post](t, sendJSONRequest(t, http.MethodPost, url+"/retweet",
		map[string]any{"parent_post": post.ID, "is_retweet": true}, other.Access, http.StatusCreated))
	sendJSONRequest(t, http.MethodPut, e.ts.URL+"/posts/"+rt.ID, map[string]string{"body": "x"}, other.Access, http.StatusBadRequest).Body.Close()
}

func TestDeletePost(t *testing.T) {
	e := setupTestServer(t)
	author := e.register(t, "almaz")
	fan := e.register(t, "nur")
	sendJSONRequest(t, http.MethodPost, e.ts.URL+"/accounts/profile/"+author.User.ID+"/follow", nil, fan.Access, http.StatusOK).Body.Close()

	kept := e.createPost(t, author.Access, "stays")
	gone := e.createPost(t, author.Access, "goes")
	url := e.ts.URL + "/posts/" + gone.ID

	sendJSONRequest(t, http.MethodDelete, url, nil, fan.Access, http.StatusForbidden).Body.Close()
	sendJSONRequest(t, http.MethodDelete, url, nil, author.Access, http.StatusNoContent).Body.Close()
	sendJSONRequest(t, http.MethodGet, url, nil, author.Access, http.StatusNotFound).Body.Close()
	sendJSONRequest(t, http.MethodDelete, url, nil, author.Access, http.StatusNotFound).Body.Close()

	feed := getFeedHelper(t, e.ts, fan.Access)
	if len(feed) != 1 || feed[0].ID != kept.ID {
		t.Fatalf("expected only the kept post in the feed, got %+v", feed)
	}
	written := e.kafka.Written()
	if last := written[len(written)-1]; string(last.Key) != models.EventPostDeleted {
		t.Fatalf("expected a retraction event, got %q", last.Key)
	}
}

func TestDeletePost_RetweetReleasesClaim(t *testing.T) {
	e := setupTestServer(t)
	author := e.register(t, "almaz")
	fan := e.register(t, "nur")
	post := e.createPost(t, author.Access, "original")
	url := e.ts.URL + "/posts/" + post.ID

	plain := map[string]any{"parent_post": post.ID, "is_retweet": true}
	rt := decodeResponse[models.Post](t, sendJSONRequest(t, http.MethodPost, url+"/retweet", plain, fan.Access, http.StatusCreated))
	sendJSONRequest(t, http.MethodDelete, e.ts.URL+"/posts/"+rt.ID, nil, fan.Access, http.StatusNoContent).Body.Close()

	view := decodeResponse[models.Post](t, sendJSONRequest(t, http.MethodGet, url, nil, fan.Access, http.StatusOK))
	if view.RetweetCount != 0 || view.PlainRetweetedByUser {
		t.Fatalf("deleted retweet still counted: %+v", view)
	}
	sendJSONRequest(t, http.MethodPost, url+"/retweet", plain, fan.Access, http.StatusCreated).Body.Close()
}

func TestComments(t *testing.T) {
	e := setupTestServer(t)
	u := e.register(t, "almaz")
	post := e.createPost(t, u.Access, "discuss")
	url := e.ts.URL + "/posts/" + post.ID + "/comments"

	root := decodeResponse[models.Comment](t, sendJSONRequest(t, http.MethodPost, url,
		map[string]any{"content": "first", "parent": nil}, u.Access, http.StatusCreated))
	if root.Parent != nil || root.AuthorUsername != "almaz" {
		t.Fatalf("unexpected root comment %+v", root)
	}

	reply := decodeResponse[models.Comment](t, sendJSONRequest(t, http.MethodPost, url,
		map[string]any{"content": "reply", "parent": root.ID}, u.Access, http.StatusCreated))
	if reply.ParentID() != root.ID {
		t.Fatalf("reply parent = %q, want %q", reply.ParentID(), root.ID)
	}

	sendJSONRequest(t, http.MethodPost, url, map[string]any{"content": "x", "parent": "unknown"}, u.Access, http.StatusBadRequest).Body.Close()
	sendJSONRequest(t, http.MethodPost, url, map[string]any{"content": ""}, u.Access, http.StatusBadRequest).Body.Close()

	list := decodeResponse[[]models.Comment](t, sendJSONRequest(t, http.MethodGet, url, nil, u.Access, http.StatusOK))
	if len(list) != 2 {
		t.Fatalf("expected 2 comments, got %d", len(list))
	}

	view := decodeResponse[models.Post](t, sendJSONRequest(t, http.MethodGet, e.ts.URL+"/posts/"+post.ID, nil, u.Access, http.StatusOK))
	if view.CommentsCount != 2 {
		t.Fatalf("comments_count = %d, want 2", view.CommentsCount)
	}
}

//
// --- Profiles ---
//

func TestProfileAndFollow(t *testing.T) {
	e := setupTestServer(t)
	almaz := e.register(t, "almaz")
	nur := e.register(t, "nur")
	profileURL := e.ts.URL + "/accounts/profile/" + nur.User.ID

	sendJSONRequest(t, http.MethodPost, e.ts.URL+"/accounts/profile/"+almaz.User.ID+"/follow", nil, almaz.Access, http.StatusBadRequest).Body.Close()

	for i := 0; i < 2; i++ {
		got := decodeResponse[followResponse](t, sendJSONRequest(t, http.MethodPost, profileURL+"/follow",
			map[string]string{"profile_image": "x.png"}, almaz.Access, http.StatusOK))
		if !got.Following || got.FollowersCount != 1 {
			t.Fatalf("follow #%d: got %+v", i+1, got)
		}
	}

	view := decodeResponse[models.ProfileView](t, sendJSONRequest(t, http.MethodGet, profileURL, nil, almaz.Access, http.StatusOK))
	if !view.FollowedByMe || view.FollowersCount != 1 || view.Username != "nur" {
		t.Fatalf("unexpected profile %+v", view)
	}

	following := decodeResponse[[]string](t, sendJSONRequest(t, http.MethodGet, e.ts.URL+"/accounts/me/following", nil, almaz.Access, http.StatusOK))
	if len(following) != 1 || following[0] != nur.User.ID {
		t.Fatalf("unexpected following %v", following)
	}
	followers := decodeResponse[[]string](t, sendJSONRequest(t, http.MethodGet, e.ts.URL+"/accounts/me/followers", nil, nur.Access, http.StatusOK))
	if len(followers) != 1 || followers[0] != almaz.User.ID {
		t.Fatalf("unexpected followers %v", followers)
	}

	got := decodeResponse[followResponse](t, sendJSONRequest(t, http.MethodPost, profileURL+"/unfollow", nil, almaz.Access, http.StatusOK))
	if got.Following || got.FollowersCount != 0 {
		t.Fatalf("unfollow: got %+v", got)
	}

	sendJSONRequest(t, http.MethodGet, e.ts.URL+"/accounts/profile/missing", nil, almaz.Access, http.StatusNotFound).Body.Close()
}

//
// --- Failures ---
//

// Kafka write error surfaces as 500
func TestUpdateUser(t *testing.T) {
	e := setupTestServer(t)
	u := e.register(t, "almaz")
	url := e.ts.URL + "/auth/user"

	sendJSONRequest(t, http.MethodPatch, url, map[string]string{"avatar": "not a url"}, u.Access, http.StatusBadRequest).Body.Close()
	sendJSONRequest(t, http.MethodPatch, url, map[string]string{"bio": string(bytes.Repeat([]byte("a"), 301))}, u.Access, http.StatusBadRequest).Body.Close()

	updated := decodeResponse[models.User](t, sendJSONRequest(t, http.MethodPatch, url,
		map[string]string{"bio": " breathing daily ", "location": "Almaty"}, u.Access, http.StatusOK))
	if updated.Profile.Bio != "breathing daily" || updated.Profile.Location != "Almaty" || updated.Username != "almaz" {
		t.Fatalf("unexpected user %+v", updated)
	}

	// fields absent from the body stay untouched
	updated = decodeResponse[models.User](t, sendJSONRequest(t, http.MethodPatch, url,
		map[string]string{"avatar": "https://cdn.example.com/a.png"}, u.Access, http.StatusOK))
	if updated.Profile.Bio != "breathing daily" || updated.Profile.Avatar != "https://cdn.example.com/a.png" {
		t.Fatalf("unexpected user %+v", updated)
	}

	me := decodeResponse[models.User](t, sendJSONRequest(t, http.MethodGet, url, nil, u.Access, http.StatusOK))
	if me.Profile.Bio != updated.Profile.Bio || me.Profile.Avatar != updated.Profile.Avatar {
		t.Fatalf("GET /auth/user = %+v, want %+v", me.Profile, updated.Profile)
	}
}

func TestFollowSuggestions(t *testing.T) {
	e := setupTestServer(t)
	me := e.register(t, "almaz")
	followed := e.register(t, "nur")
	stranger := e.register(t, "aruzhan")
	sendJSONRequest(t, http.MethodPost, e.ts.URL+"/accounts/profile/"+followed.User.ID+"/follow", nil, me.Access, http.StatusOK).Body.Close()

	url := e.ts.URL + "/accounts/profile/can_follow"
	out := decodeResponse[[]models.ProfileView](t, sendJSONRequest(t, http.MethodGet, url, nil, me.Access, http.StatusOK))
	if len(out) != 1 || out[0].ID != stranger.User.ID {
		t.Fatalf("unexpected suggestions %+v", out)
	}
	sendJSONRequest(t, http.MethodGet, url+"?limit=zero", nil, me.Access, http.StatusBadRequest).Body.Close()
}

func TestCreatePost_KafkaWriteError(t *testing.T) {
	e := setupTestServerWith(t, false, nil, &appkafka.MockKafkaFail{})
	u := e.register(t, "almaz")

	sendJSONRequest(t, http.MethodPost, e.ts.URL+"/posts", map[string]string{"body": "hi"}, u.Access, http.StatusInternalServerError).Body.Close()
}

// Store failure surfaces as 500
func TestStoreFailure(t *testing.T) {
	e := setupTestServerWith(t, false, &store.MockStoreFail{}, nil)
	token, err := e.iss.AccessFor("user_1")
	if err != nil {
		t.Fatal(err)
	}

	sendJSONRequest(t, http.MethodGet, e.ts.URL+"/posts", nil, token, http.StatusInternalServerError).Body.Close()
	sendJSONRequest(t, http.MethodPost, e.ts.URL+"/auth/login",
		map[string]string{"username": "almaz", "password": "x"}, "", http.StatusInternalServerError).Body.Close()
}

//
// --- Helpers for test logic ---
//

// helper: get user feed using JWT token
func getFeedHelper(t *testing.T, ts *httptest.Server, token string) []models.Post {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/posts", nil)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("getFeed failed: %v", err)
	}
	defer resp.Body.Close()

	var posts []models.Post
	_ = json.NewDecoder(resp.Body).Decode(&posts)
	return posts
}
