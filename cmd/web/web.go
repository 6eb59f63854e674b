package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"example.com/mindfeed/internal/auth"
	"example.com/mindfeed/internal/content"
	"example.com/mindfeed/internal/gateway"
	"example.com/mindfeed/internal/logger"
	"example.com/mindfeed/internal/session"
)

var logg = logger.New()

// Web is the browser facing tier. It keeps credentials in cookies and talks to
// the backend API only through the gateway.
type Web struct {
	gateways *gateway.Factory
	resolver *auth.Resolver
	cookies  session.CookieOptions
	content  *content.Repository
}

// Options configure the listener of Run.
type Options struct {
	Addr    string
	TLSCert string
	TLSKey  string
}

// New builds the web tier; repo may be nil when no CMS is configured.
func New(gateways *gateway.Factory, cookies session.CookieOptions, loginPath string, repo *content.Repository) *Web {
	return &Web{
		gateways: gateways,
		resolver: auth.NewResolver(gateways, cookies, loginPath),
		cookies:  cookies,
		content:  repo,
	}
}

// Routes returns the API, page and content routes.
func (wb *Web) Routes() http.Handler {
	mux := http.NewServeMux()

	// Session endpoints
	mux.HandleFunc("POST /api/auth/login", wb.loginHandler)
	mux.HandleFunc("POST /api/auth/register", wb.registerHandler)
	mux.HandleFunc("POST /api/auth/logout", wb.logoutHandler)
	mux.HandleFunc("GET /api/auth/refresh-token", wb.refreshHandler)
	mux.HandleFunc("GET /api/me", wb.meHandler)
	mux.HandleFunc("PATCH /api/auth/update-user", wb.proxy("/auth/user"))

	// Backend API through the gateway
	mux.HandleFunc("GET /api/posts", wb.proxy("/posts"))
	mux.HandleFunc("POST /api/posts", wb.proxy("/posts"))
	mux.HandleFunc("GET /api/posts/{id}", wb.proxy("/posts/{id}"))
	mux.HandleFunc("PUT /api/posts/{id}", wb.proxy("/posts/{id}"))
	mux.HandleFunc("PATCH /api/posts/{id}", wb.proxy("/posts/{id}"))
	mux.HandleFunc("DELETE /api/posts/{id}", wb.proxy("/posts/{id}"))
	mux.HandleFunc("POST /api/posts/{id}/like", wb.proxy("/posts/{id}/like"))
	mux.HandleFunc("POST /api/posts/{id}/unlike", wb.proxy("/posts/{id}/unlike"))
	mux.HandleFunc("POST /api/posts/{id}/retweet", wb.proxy("/posts/{id}/retweet"))
	mux.HandleFunc("GET /api/posts/{id}/retweets", wb.proxy("/posts/{id}/retweets"))
	mux.HandleFunc("GET /api/posts/{id}/comments", wb.commentsHandler)
	mux.HandleFunc("POST /api/posts/{id}/comments", wb.proxy("/posts/{id}/comments"))
	mux.HandleFunc("GET /api/accounts/profile/can_follow", wb.proxy("/accounts/profile/can_follow"))
	mux.HandleFunc("GET /api/accounts/profile/{id}", wb.proxy("/accounts/profile/{id}"))
	mux.HandleFunc("POST /api/accounts/profile/{id}/follow", wb.proxy("/accounts/profile/{id}/follow"))
	mux.HandleFunc("POST /api/accounts/profile/{id}/unfollow", wb.proxy("/accounts/profile/{id}/unfollow"))
	mux.HandleFunc("GET /api/accounts/me/followers", wb.proxy("/accounts/me/followers"))
	mux.HandleFunc("GET /api/accounts/me/following", wb.proxy("/accounts/me/following"))

	// Protected pages
	mux.Handle("GET /home", wb.resolver.Require(http.HandlerFunc(wb.homePage)))
	mux.Handle("GET /posts/{id}", wb.resolver.Require(http.HandlerFunc(wb.postPage)))
	mux.Handle("GET /profile/{id}", wb.resolver.Require(http.HandlerFunc(wb.profilePage)))

	// CMS content
	mux.HandleFunc("GET /api/content/{kind}", wb.contentHandler)
	mux.HandleFunc("GET /api/content/{kind}/{id}", wb.contentHandler)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return mux
}

// Run serves the web tier until ctx is cancelled.
func Run(ctx context.Context, wb *Web, opts Options) {
	srv := &http.Server{
		Addr:         opts.Addr,
		Handler:      wb.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second, // pages wait on several backend calls
	}

	go func() {
		var err error
		if opts.TLSCert != "" && opts.TLSKey != "" {
			logg.Info("web", "Starting HTTPS server on "+opts.Addr)
			err = srv.ListenAndServeTLS(opts.TLSCert, opts.TLSKey)
		} else {
			logg.Info("web", "Starting HTTP server on "+opts.Addr)
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error("web", "Server stopped unexpectedly", err)
		}
	}()

	<-ctx.Done()
	logg.Info("web", "Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logg.Error("web", "Error during server shutdown", err)
	} else {
		logg.Info("web", "Server stopped gracefully")
	}
}
