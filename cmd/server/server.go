package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	appkafka "example.com/mindfeed/internal/broker"
	"example.com/mindfeed/internal/logger"
	"example.com/mindfeed/internal/middleware"
	"example.com/mindfeed/internal/store"
	"example.com/mindfeed/internal/tokens"
)

type Server struct {
	store         store.StoreInterface
	kafkaWriter   appkafka.KafkaWriter
	tokens        *tokens.Issuer
	rotateRefresh bool
}

var logg = logger.New()

// Options configure the listener of Run.
type Options struct {
	Addr          string
	TLSCert       string
	TLSKey        string
	RotateRefresh bool
}

func NewServer(st store.StoreInterface, writer appkafka.KafkaWriter, iss *tokens.Issuer, rotateRefresh bool) *Server {
	return &Server{
		store:         st,
		kafkaWriter:   writer,
		tokens:        iss,
		rotateRefresh: rotateRefresh,
	}
}

// Routes returns the backend API.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	auth := middleware.JWTAuth(s.tokens)
	protect := func(h http.HandlerFunc) http.Handler { return auth(h) }

	// Public endpoints
	mux.HandleFunc("POST /auth/register", s.registerHandler)
	mux.HandleFunc("POST /auth/login", s.loginHandler)
	mux.HandleFunc("POST /auth/token/refresh", s.refreshHandler)
	mux.HandleFunc("GET /healthz", s.healthHandler)

	// Protected endpoints with JWT authentication middleware
	mux.Handle("GET /auth/user", protect(s.currentUserHandler))
	mux.Handle("PATCH /auth/user", protect(s.updateUserHandler))

	mux.Handle("GET /posts", protect(s.getFeedHandler))
	mux.Handle("POST /posts", protect(s.createPostHandler))
	mux.Handle("GET /posts/{id}", protect(s.getPostHandler))
	mux.Handle("PUT /posts/{id}", protect(s.editPostHandler))
	mux.Handle("PATCH /posts/{id}", protect(s.editPostHandler))
	mux.Handle("DELETE /posts/{id}", protect(s.deletePostHandler))
	mux.Handle("POST /posts/{id}/like", protect(s.likeHandler))
	mux.Handle("POST /posts/{id}/unlike", protect(s.unlikeHandler))
	mux.Handle("POST /posts/{id}/retweet", protect(s.retweetHandler))
	mux.Handle("GET /posts/{id}/retweets", protect(s.retweetersHandler))
	mux.Handle("GET /posts/{id}/comments", protect(s.listCommentsHandler))
	mux.Handle("POST /posts/{id}/comments", protect(s.addCommentHandler))

	mux.Handle("GET /accounts/profile/can_follow", protect(s.suggestionsHandler))
	mux.Handle("GET /accounts/profile/{id}", protect(s.profileHandler))
	mux.Handle("POST /accounts/profile/{id}/follow", protect(s.followHandler))
	mux.Handle("POST /accounts/profile/{id}/unfollow", protect(s.unfollowHandler))
	mux.Handle("GET /accounts/me/followers", protect(s.myFollowersHandler))
	mux.Handle("GET /accounts/me/following", protect(s.myFollowingHandler))

	return mux
}

// Run starts the HTTP(S) server with JWT-protected routes and graceful shutdown.
func Run(ctx context.Context, st store.StoreInterface, writer appkafka.KafkaWriter, iss *tokens.Issuer, opts Options) {
	s := NewServer(st, writer, iss, opts.RotateRefresh)

	srv := &http.Server{
		Addr:         opts.Addr,
		Handler:      s.Routes(),
		ReadTimeout:  10 * time.Second, // prevent slowloris attacks
		WriteTimeout: 10 * time.Second,
	}

	// --- Start server in a goroutine ---
	go func() {
		var err error
		if opts.TLSCert != "" && opts.TLSKey != "" {
			logg.Info("server", "Starting HTTPS server on "+opts.Addr)
			err = srv.ListenAndServeTLS(opts.TLSCert, opts.TLSKey)
		} else {
			logg.Info("server", "Starting HTTP server on "+opts.Addr)
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error("server", "Server stopped unexpectedly", err)
		}
	}()

	// --- Graceful shutdown ---
	<-ctx.Done()
	logg.Info("server", "Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logg.Error("server", "Error during server shutdown", err)
	} else {
		logg.Info("server", "Server stopped gracefully")
	}
}
