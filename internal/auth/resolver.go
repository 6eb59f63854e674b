// Package auth resolves the user behind a session and guards protected pages.
package auth

import (
	"context"
	"errors"
	"net/http"

	"example.com/mindfeed/internal/gateway"
	"example.com/mindfeed/internal/logger"
	"example.com/mindfeed/internal/models"
	"example.com/mindfeed/internal/session"
)

const UserPath = "/auth/user"

var logg = logger.New()

type contextKey string

const (
	userCtxKey  = contextKey("user")
	storeCtxKey = contextKey("token_store")
)

type Resolver struct {
	gateways  *gateway.Factory
	cookies   session.CookieOptions
	loginPath string
}

func NewResolver(gateways *gateway.Factory, cookies session.CookieOptions, loginPath string) *Resolver {
	if loginPath == "" {
		loginPath = "/login"
	}
	return &Resolver{gateways: gateways, cookies: cookies, loginPath: loginPath}
}

// LoginPath is where Require sends unauthenticated requests.
func (r *Resolver) LoginPath() string { return r.loginPath }

// Resolve returns the current user of store. Without any credential it fails
// with models.ErrUnauthenticated before touching the network.
func (r *Resolver) Resolve(ctx context.Context, store session.TokenStore) (*models.User, error) {
	creds := store.Get()
	if creds.Access == "" && creds.Refresh == "" {
		return nil, models.ErrUnauthenticated
	}

	var user models.User
	if err := r.gateways.For(store).GetJSON(ctx, UserPath, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Require runs next only for a resolved user and redirects to the login page
// otherwise. The cookie store used for resolution is handed down so refreshed
// credentials are written once.
func (r *Resolver) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		store := session.NewCookieStore(w, req, r.cookies)

		user, err := r.Resolve(req.Context(), store)
		if err != nil {
			if errors.Is(err, models.ErrSessionExpired) {
				store.Clear()
			}
			if !errors.Is(err, models.ErrUnauthenticated) {
				logg.Info("auth", "session rejected for "+req.URL.Path+": "+err.Error())
			}
			http.Redirect(w, req, r.loginPath, http.StatusFound)
			return
		}

		ctx := WithUser(req.Context(), user)
		ctx = WithStore(ctx, store)
		next.ServeHTTP(w, req.WithContext(ctx))
	})
}

func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userCtxKey, user)
}

func UserFromContext(ctx context.Context) (*models.User, bool) {
	u, ok := ctx.Value(userCtxKey).(*models.User)
	return u, ok && u != nil
}

func WithStore(ctx context.Context, store session.TokenStore) context.Context {
	return context.WithValue(ctx, storeCtxKey, store)
}

// StoreFromContext returns the token store attached by Require.
func StoreFromContext(ctx context.Context) (session.TokenStore, bool) {
	s, ok := ctx.Value(storeCtxKey).(session.TokenStore)
	return s, ok
}
