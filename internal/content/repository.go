// Package content reads editorial documents (courses, affirmations, hero
// spotlights, reading list) from the headless CMS query API.
package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"example.com/mindfeed/internal/logger"
	"example.com/mindfeed/internal/models"
)

var logg = logger.New()

var ErrUnknownKind = errors.New("unknown content kind")

// Projections keep every field the schemas define; documents are passed on
// as the CMS returns them.
const (
	courseFields = `..., "slug": slug.current, "modules": modules[]->{..., studySessions[]->{
		..., activity->{...}, rolePlay->{...}, summaryBox->{...},
		takeawayJournalingPrompts[]->{...}, quotes[]->{...}}}`
	affirmationFields = `_id, _createdAt, _updatedAt, title, category, description, subCategory,
		affirmationList, isChallenge, challengeDay, challengeTheme, dailyFocusActivity, reflectionQuestion`
	heroFields = `_id, _createdAt, _updatedAt, name, "imageUrl": image.asset->url, description,
		areaOfExcellence, adversities, overcomingChallenges`
	readingListFields = `_id, _createdAt, bookTitle, description, executiveSummary, coreConcepts,
		whyReadThis, "imageUrl": image.asset->url, alt, linkUrl, categories`
	readingItemFields = `_id, _createdAt, bookTitle, description, executiveSummary,
		name{author, "coverUrl": cover.asset->url},
		coreConceptsSection{coreConcepts, mainPoints[]{..., _type == "image" => {"url": asset->url}}},
		whyReadSection{
			whyReadThis[]{..., _type == "image" => {"url": asset->url}},
			whyMustRead[]{..., _type == "image" => {"url": asset->url}},
			finalWord[]{..., _type == "image" => {"url": asset->url}}},
		"imageUrl": image.asset->url, alt, linkUrl, categories`
)

// queries per kind: the list query and the single-document query. Courses
// are addressed by slug, everything else by document id.
var queries = map[string][2]string{
	"courses": {
		`*[_type == "course"] | order(_createdAt asc) {` + courseFields + `}`,
		`*[_type == "course" && (slug.current == $id || _id == $id)][0] {` + courseFields + `}`,
	},
	"affirmations": {
		`*[_type == "affirmation"] | order(_createdAt desc) {` + affirmationFields + `}`,
		`*[_type == "affirmation" && _id == $id][0] {` + affirmationFields + `}`,
	},
	"heroes": {
		`*[_type == "heroSpotlight"] | order(_createdAt desc) {` + heroFields + `}`,
		`*[_type == "heroSpotlight" && _id == $id][0] {` + heroFields + `}`,
	},
	"reading-list": {
		`*[_type == "readingList"] | order(_createdAt desc) {` + readingListFields + `}`,
		`*[_type == "readingList" && _id == $id][0] {` + readingItemFields + `}`,
	},
}

// Kinds lists the content kinds that can be queried.
func Kinds() []string {
	out := make([]string, 0, len(queries))
	for k := range queries {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type Config struct {
	ProjectID  string
	Dataset    string
	APIVersion string
	Token      string
	CacheTTL   time.Duration
	// BaseURL overrides https://{ProjectID}.api.sanity.io.
	BaseURL    string
	HTTPClient *http.Client
}

type Repository struct {
	cfg   Config
	cache *Cache
	now   func() time.Time
}

// New returns a repository; cache may be nil to disable caching.
func New(cfg Config, cache *Cache) *Repository {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://" + cfg.ProjectID + ".api.sanity.io"
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "2024-01-01"
	}
	cfg.APIVersion = strings.TrimPrefix(cfg.APIVersion, "v")
	return &Repository{cfg: cfg, cache: cache, now: time.Now}
}

// List returns every document of kind as a raw JSON array.
func (r *Repository) List(ctx context.Context, kind string) (json.RawMessage, error) {
	q, ok := queries[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return r.query(ctx, q[0], nil)
}

// Get returns one document of kind, or models.ErrNotFound. For courses id may
// also be the course slug.
func (r *Repository) Get(ctx context.Context, kind, id string) (json.RawMessage, error) {
	q, ok := queries[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	doc, err := r.query(ctx, q[1], map[string]string{"id": id})
	if err != nil {
		return nil, err
	}
	if string(doc) == "null" || len(doc) == 0 {
		return nil, models.ErrNotFound
	}
	return doc, nil
}

func (r *Repository) query(ctx context.Context, groq string, params map[string]string) (json.RawMessage, error) {
	values := url.Values{}
	values.Set("query", groq)
	for name, v := range params {
		encoded, _ := json.Marshal(v)
		values.Set("$"+name, string(encoded))
	}
	key := values.Encode()

	var (
		stale    []byte
		hasStale bool
	)
	if r.cache != nil {
		body, storedAt, ok, err := r.cache.Get(ctx, key)
		if err != nil {
			logg.Warn("content", "cache read failed", err)
		}
		if ok {
			if r.now().Sub(storedAt) < r.cfg.CacheTTL {
				return body, nil
			}
			stale, hasStale = body, true
		}
	}

	result, err := r.fetch(ctx, values)
	if err != nil {
		if hasStale {
			logg.Warn("content", "query failed, serving stale document", err)
			return stale, nil
		}
		return nil, err
	}

	if r.cache != nil {
		if err := r.cache.Put(ctx, key, result, r.now()); err != nil {
			logg.Warn("content", "cache write failed", err)
		}
	}
	return result, nil
}

func (r *Repository) fetch(ctx context.Context, values url.Values) (json.RawMessage, error) {
	endpoint := fmt.Sprintf("%s/v%s/data/query/%s?%s",
		strings.TrimRight(r.cfg.BaseURL, "/"), r.cfg.APIVersion, url.PathEscape(r.cfg.Dataset), values.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if r.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.cfg.Token)
	}

	resp, err := r.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, &models.NetworkError{Op: "content query", Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &models.NetworkError{Op: "reading content", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &models.UpstreamError{Status: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decoding content response: %w", err)
	}
	if len(envelope.Result) == 0 {
		return json.RawMessage("null"), nil
	}
	return envelope.Result, nil
}
