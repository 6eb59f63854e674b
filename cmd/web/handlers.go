package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"example.com/mindfeed/internal/comments"
	"example.com/mindfeed/internal/content"
	"example.com/mindfeed/internal/gateway"
	"example.com/mindfeed/internal/models"
	"example.com/mindfeed/internal/session"
)

const maxBody = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logg.Error("web", "Failed to encode response", err)
	}
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	if len(body) == 0 {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// writeError maps gateway and validation failures to responses.
func writeError(w http.ResponseWriter, module string, err error) {
	var (
		upErr  *models.UpstreamError
		netErr *models.NetworkError
		valErr *models.ValidationError
	)
	switch {
	case errors.Is(err, models.ErrSessionExpired):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Session expired, please log in again."})
	case errors.Is(err, models.ErrUnauthenticated):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Authentication credentials were not provided."})
	case errors.As(err, &valErr):
		writeJSON(w, http.StatusBadRequest, map[string][]string{fieldOrDefault(valErr.Field): {valErr.Reason}})
	case errors.As(err, &upErr):
		if len(upErr.Body) > 0 && json.Valid(upErr.Body) {
			writeRaw(w, upErr.Status, upErr.Body)
			return
		}
		writeJSON(w, upErr.Status, map[string]string{"detail": upErr.Message})
	case errors.As(err, &netErr):
		logg.Error(module, "Backend unreachable", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"detail": "Backend unavailable."})
	default:
		logg.Error(module, "Request failed", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "internal error"})
	}
}

func fieldOrDefault(field string) string {
	if field == "" {
		return "non_field_errors"
	}
	return field
}

// readJSON returns the raw request body, nil when empty.
func readJSON(r *http.Request) (json.RawMessage, error) {
	defer r.Body.Close()
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		return nil, models.Invalid("", "could not read request body")
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	if !json.Valid(data) {
		return nil, models.Invalid("", "request body must be JSON")
	}
	return data, nil
}

func (wb *Web) store(w http.ResponseWriter, r *http.Request) *session.CookieStore {
	return session.NewCookieStore(w, r, wb.cookies)
}

// --- Session endpoints ---

type authResponse struct {
	models.Credentials
	User models.User `json:"user"`
}

// loginHandler forwards the credentials and keeps the issued tokens in
// HttpOnly cookies. Only the user is returned to the browser.
func (wb *Web) loginHandler(w http.ResponseWriter, r *http.Request) {
	wb.authenticate(w, r, "/auth/login", "web/login")
}

func (wb *Web) registerHandler(w http.ResponseWriter, r *http.Request) {
	wb.authenticate(w, r, "/auth/register", "web/register")
}

func (wb *Web) authenticate(w http.ResponseWriter, r *http.Request, path, module string) {
	body, err := readJSON(r)
	if err != nil {
		writeError(w, module, err)
		return
	}
	if body == nil {
		writeError(w, module, models.Invalid("", "request body is required"))
		return
	}
	if path == "/auth/register" {
		var pw struct {
			Password1 string `json:"password1"`
			Password2 string `json:"password2"`
		}
		if json.Unmarshal(body, &pw) == nil && pw.Password1 != pw.Password2 {
			writeError(w, module, models.Invalid("", "The two password fields didn't match."))
			return
		}
	}

	store := wb.store(w, r)
	resp, err := wb.gateways.For(store).DoPublic(r.Context(), gateway.Request{
		Method: http.MethodPost,
		Path:   path,
		Body:   body,
	})
	if err != nil {
		writeError(w, module, err)
		return
	}

	var out authResponse
	if err := resp.Decode(&out); err != nil {
		writeError(w, module, err)
		return
	}
	if out.Access == "" {
		writeError(w, module, errors.New("backend issued no access token"))
		return
	}
	store.Set(out.Credentials)

	logg.Info(module, "Session started for user_id="+out.User.ID)
	writeJSON(w, resp.Status, map[string]any{"user": out.User})
}

func (wb *Web) logoutHandler(w http.ResponseWriter, r *http.Request) {
	wb.store(w, r).Clear()
	writeJSON(w, http.StatusOK, map[string]string{"detail": "Successfully logged out."})
}

// refreshHandler renews the access cookie from the refresh cookie.
func (wb *Web) refreshHandler(w http.ResponseWriter, r *http.Request) {
	store := wb.store(w, r)
	if _, err := wb.gateways.For(store).Refresh(r.Context()); err != nil {
		writeError(w, "web/refresh", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"refreshed": true})
}

func (wb *Web) meHandler(w http.ResponseWriter, r *http.Request) {
	user, err := wb.resolver.Resolve(r.Context(), wb.store(w, r))
	if err != nil {
		writeError(w, "web/me", err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// --- Backend API ---

// proxy forwards the request to the backend path template; {id} is filled
// from the matched route.
func (wb *Web) proxy(template string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := strings.Replace(template, "{id}", url.PathEscape(r.PathValue("id")), 1)

		req := gateway.Request{Method: r.Method, Path: path, Query: r.URL.Query()}
		if r.Method != http.MethodGet {
			body, err := readJSON(r)
			if err != nil {
				writeError(w, "web/proxy", err)
				return
			}
			if body != nil {
				req.Body = body
			}
		}

		resp, err := wb.gateways.For(wb.store(w, r)).Do(r.Context(), req)
		if err != nil {
			writeError(w, "web/proxy", err)
			return
		}
		writeRaw(w, resp.Status, resp.Body)
	}
}

// commentsHandler returns the discussion of a post as a reply tree.
func (wb *Web) commentsHandler(w http.ResponseWriter, r *http.Request) {
	var flat []models.Comment
	path := "/posts/" + url.PathEscape(r.PathValue("id")) + "/comments"
	if err := wb.gateways.For(wb.store(w, r)).GetJSON(r.Context(), path, &flat); err != nil {
		writeError(w, "web/comments", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNilTree(comments.BuildTree(flat)))
}

func nonNilTree(tree []*models.Comment) []*models.Comment {
	if tree == nil {
		return []*models.Comment{}
	}
	return tree
}

// --- Content ---

func (wb *Web) contentHandler(w http.ResponseWriter, r *http.Request) {
	if wb.content == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"detail": "Content is not configured."})
		return
	}

	var (
		doc json.RawMessage
		err error
	)
	kind, id := r.PathValue("kind"), r.PathValue("id")
	if id == "" {
		doc, err = wb.content.List(r.Context(), kind)
	} else {
		doc, err = wb.content.Get(r.Context(), kind, id)
	}

	switch {
	case errors.Is(err, content.ErrUnknownKind), errors.Is(err, models.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
	case err != nil:
		logg.Error("web/content", "Failed to load "+kind, err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"detail": "Content unavailable."})
	default:
		writeRaw(w, http.StatusOK, doc)
	}
}
