// Package gateway routes every backend API call: it attaches the bearer token
// from the session's TokenStore and recovers an expired access token with
// exactly one refresh-and-retry cycle.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"example.com/mindfeed/internal/logger"
	"example.com/mindfeed/internal/models"
	"example.com/mindfeed/internal/session"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTimeout     = 15 * time.Second
	DefaultRefreshPath = "/auth/token/refresh"
	maxErrorBody       = 4 << 10
)

var logg = logger.New()

// Request describes one backend call. Auth headers are never part of it.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any // JSON encoded when non-nil
}

// Response is a fully read backend response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Decode unmarshals the JSON body into out.
func (r *Response) Decode(out any) error {
	if out == nil || len(r.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// Options are shared by every Gateway built from one Factory.
type Options struct {
	Timeout     time.Duration
	RefreshPath string
	// SingleUseRefresh collapses concurrent refreshes of the same refresh
	// token into one backend call. Needed when the backend rotates and
	// invalidates refresh tokens on use.
	SingleUseRefresh bool
}

// Factory holds the process-wide pieces (HTTP client, refresh lock) and
// binds them to a per-session TokenStore.
type Factory struct {
	baseURL string
	http    *http.Client
	opts    Options
	flight  *singleflight.Group
}

func NewFactory(baseURL string, client *http.Client, opts Options) *Factory {
	if client == nil {
		client = &http.Client{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.RefreshPath == "" {
		opts.RefreshPath = DefaultRefreshPath
	}
	f := &Factory{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    client,
		opts:    opts,
	}
	if opts.SingleUseRefresh {
		f.flight = &singleflight.Group{}
	}
	return f
}

// For returns a Gateway reading and writing credentials through store.
func (f *Factory) For(store session.TokenStore) *Gateway {
	return &Gateway{factory: f, store: store}
}

// Gateway is bound to one session's credentials.
type Gateway struct {
	factory *Factory
	store   session.TokenStore
}

// Do performs an authenticated call. Only a 401 on the first attempt is
// recovered (one refresh, one retry); everything else is returned as is.
func (g *Gateway) Do(ctx context.Context, req Request) (*Response, error) {
	creds := g.store.Get()

	if creds.Access == "" {
		if creds.Refresh == "" {
			return nil, models.ErrUnauthenticated
		}
		access, err := g.refresh(ctx, creds.Refresh)
		if err != nil {
			return nil, err
		}
		return checked(g.send(ctx, req, access))
	}

	resp, err := g.send(ctx, req, creds.Access)
	if err != nil {
		return nil, err
	}
	if resp.Status != http.StatusUnauthorized {
		return checked(resp, nil)
	}
	if creds.Refresh == "" {
		return nil, fmt.Errorf("%w: %w", models.ErrUnauthenticated, upstreamError(resp))
	}

	logg.Debug("gateway", "access token rejected on "+req.Path+", refreshing")
	access, err := g.refresh(ctx, creds.Refresh)
	if err != nil {
		return nil, err
	}
	return checked(g.send(ctx, req, access))
}

// DoPublic performs a call without credentials and without refresh handling.
func (g *Gateway) DoPublic(ctx context.Context, req Request) (*Response, error) {
	return checked(g.send(ctx, req, ""))
}

// Refresh exchanges the stored refresh token for a new access token.
func (g *Gateway) Refresh(ctx context.Context) (string, error) {
	refresh := g.store.Get().Refresh
	if refresh == "" {
		return "", models.ErrUnauthenticated
	}
	return g.refresh(ctx, refresh)
}

// GetJSON issues an authenticated GET and decodes the body into out.
func (g *Gateway) GetJSON(ctx context.Context, path string, out any) error {
	resp, err := g.Do(ctx, Request{Method: http.MethodGet, Path: path})
	if err != nil {
		return err
	}
	return resp.Decode(out)
}

// PostJSON issues an authenticated POST with a JSON body and decodes the reply.
func (g *Gateway) PostJSON(ctx context.Context, path string, body, out any) error {
	resp, err := g.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body})
	if err != nil {
		return err
	}
	return resp.Decode(out)
}

func (g *Gateway) refresh(ctx context.Context, refreshToken string) (string, error) {
	var (
		creds models.Credentials
		err   error
	)
	if g.factory.flight != nil {
		var v any
		v, err, _ = g.factory.flight.Do(refreshToken, func() (any, error) {
			return g.requestRefresh(ctx, refreshToken)
		})
		if err == nil {
			creds = v.(models.Credentials)
		}
	} else {
		creds, err = g.requestRefresh(ctx, refreshToken)
	}

	if err != nil {
		if !refreshRejected(err) {
			// network failures and backend faults leave the session usable
			return "", err
		}
		g.store.Clear()
		logg.Info("gateway", "refresh rejected, session cleared")
		return "", fmt.Errorf("%w: %w", models.ErrSessionExpired, err)
	}

	g.store.Set(creds)
	return creds.Access, nil
}

// refreshRejected reports whether the backend refused the refresh token itself.
func refreshRejected(err error) bool {
	var upErr *models.UpstreamError
	if !errors.As(err, &upErr) {
		return false
	}
	return upErr.Status == http.StatusBadRequest || upErr.Status == http.StatusUnauthorized
}

func (g *Gateway) requestRefresh(ctx context.Context, refreshToken string) (models.Credentials, error) {
	resp, err := g.send(ctx, Request{
		Method: http.MethodPost,
		Path:   g.factory.opts.RefreshPath,
		Body:   map[string]string{"refresh": refreshToken},
	}, "")
	if err != nil {
		return models.Credentials{}, err
	}
	if resp.Status < 200 || resp.Status >= 300 {
		return models.Credentials{}, upstreamError(resp)
	}

	var creds models.Credentials
	if err := resp.Decode(&creds); err != nil {
		return models.Credentials{}, err
	}
	if creds.Access == "" {
		return models.Credentials{}, errors.New("refresh response carried no access token")
	}
	return creds, nil
}

// send performs exactly one HTTP round trip bounded by the gateway timeout.
func (g *Gateway) send(ctx context.Context, req Request, access string) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, g.factory.opts.Timeout)
	defer cancel()

	target := g.factory.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if access != "" {
		httpReq.Header.Set("Authorization", "Bearer "+access)
	}

	resp, err := g.factory.http.Do(httpReq)
	if err != nil {
		netErr := &models.NetworkError{Op: method + " " + req.Path, Err: err}
		logg.Warn("gateway", "network failure", netErr)
		return nil, netErr
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		netErr := &models.NetworkError{Op: "reading " + req.Path, Err: err}
		logg.Warn("gateway", "network failure", netErr)
		return nil, netErr
	}

	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

func checked(resp *Response, err error) (*Response, error) {
	if err != nil {
		return nil, err
	}
	if resp.Status < 200 || resp.Status >= 300 {
		upErr := upstreamError(resp)
		logg.Info("gateway", fmt.Sprintf("upstream error %d", resp.Status))
		return nil, upErr
	}
	return resp, nil
}

// upstreamError extracts the most useful message from an error body.
func upstreamError(resp *Response) *models.UpstreamError {
	body := resp.Body
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return &models.UpstreamError{
		Status:  resp.Status,
		Message: errorMessage(body, resp.Status),
		Body:    body,
	}
}

func errorMessage(body []byte, status int) string {
	var payload struct {
		Error          any      `json:"error"`
		Detail         string   `json:"detail"`
		NonFieldErrors []string `json:"non_field_errors"`
	}
	if json.Unmarshal(body, &payload) == nil {
		switch {
		case len(payload.NonFieldErrors) > 0:
			return payload.NonFieldErrors[0]
		case payload.Detail != "":
			return payload.Detail
		case payload.Error != nil:
			if s, ok := payload.Error.(string); ok {
				return s
			}
			if b, err := json.Marshal(payload.Error); err == nil {
				return string(b)
			}
		}
	}
	if msg := strings.TrimSpace(string(body)); msg != "" {
		return msg
	}
	return http.StatusText(status)
}
