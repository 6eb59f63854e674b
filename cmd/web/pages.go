package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"example.com/mindfeed/internal/auth"
	"example.com/mindfeed/internal/comments"
	"example.com/mindfeed/internal/gateway"
	"example.com/mindfeed/internal/models"
	"golang.org/x/sync/errgroup"
)

const homeFeedLimit = "20"

// Page models. Rendering is left to the frontend.
type HomePage struct {
	User         *models.User    `json:"user"`
	Feed         []models.Post   `json:"feed"`
	Affirmations json.RawMessage `json:"affirmations,omitempty"`
}

type PostPage struct {
	User     *models.User      `json:"user"`
	Post     models.Post       `json:"post"`
	Comments []*models.Comment `json:"comments"`
}

type ProfilePage struct {
	User      *models.User       `json:"user"`
	Profile   models.ProfileView `json:"profile"`
	IsSelf    bool               `json:"is_self"`
	Following []string           `json:"following"`
}

// pageGateway returns the gateway over the cookie store Require resolved with.
func (wb *Web) pageGateway(w http.ResponseWriter, r *http.Request) (*models.User, *gateway.Gateway) {
	user, _ := auth.UserFromContext(r.Context())
	store, ok := auth.StoreFromContext(r.Context())
	if !ok {
		store = wb.store(w, r)
	}
	return user, wb.gateways.For(store)
}

// pageError sends expired sessions back to the login page.
func (wb *Web) pageError(w http.ResponseWriter, r *http.Request, module string, err error) {
	if errors.Is(err, models.ErrSessionExpired) || errors.Is(err, models.ErrUnauthenticated) {
		http.Redirect(w, r, wb.resolver.LoginPath(), http.StatusFound)
		return
	}
	writeError(w, module, err)
}

func (wb *Web) homePage(w http.ResponseWriter, r *http.Request) {
	user, gw := wb.pageGateway(w, r)
	page := HomePage{User: user, Feed: []models.Post{}}

	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		resp, err := gw.Do(ctx, gateway.Request{
			Method: http.MethodGet,
			Path:   "/posts",
			Query:  url.Values{"limit": {homeFeedLimit}},
		})
		if err != nil {
			return err
		}
		return resp.Decode(&page.Feed)
	})
	if wb.content != nil {
		g.Go(func() error {
			doc, err := wb.content.List(ctx, "affirmations")
			if err != nil {
				// the feed is still useful without them
				logg.Warn("web/home", "Affirmations unavailable", err)
				return nil
			}
			page.Affirmations = doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		wb.pageError(w, r, "web/home", err)
		return
	}

	writeJSON(w, http.StatusOK, page)
}

func (wb *Web) postPage(w http.ResponseWriter, r *http.Request) {
	user, gw := wb.pageGateway(w, r)
	id := url.PathEscape(r.PathValue("id"))
	page := PostPage{User: user}

	var flat []models.Comment
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		return gw.GetJSON(ctx, "/posts/"+id, &page.Post)
	})
	g.Go(func() error {
		return gw.GetJSON(ctx, "/posts/"+id+"/comments", &flat)
	})
	if err := g.Wait(); err != nil {
		wb.pageError(w, r, "web/post", err)
		return
	}

	page.Comments = nonNilTree(comments.BuildTree(flat))
	writeJSON(w, http.StatusOK, page)
}

func (wb *Web) profilePage(w http.ResponseWriter, r *http.Request) {
	user, gw := wb.pageGateway(w, r)
	id := r.PathValue("id")
	page := ProfilePage{User: user, IsSelf: user != nil && user.ID == id}

	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		return gw.GetJSON(ctx, "/accounts/profile/"+url.PathEscape(id), &page.Profile)
	})
	g.Go(func() error {
		return gw.GetJSON(ctx, "/accounts/me/following", &page.Following)
	})
	if err := g.Wait(); err != nil {
		wb.pageError(w, r, "web/profile", err)
		return
	}

	if page.Following == nil {
		page.Following = []string{}
	}
	writeJSON(w, http.StatusOK, page)
}
