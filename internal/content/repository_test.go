package content

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"example.com/mindfeed/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cms struct {
	hits   atomic.Int32
	down   atomic.Bool
	result string

	mu      sync.Mutex
	queries []string
}

func (c *cms) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.hits.Add(1)
	c.mu.Lock()
	c.queries = append(c.queries, r.URL.Query().Get("query"))
	c.mu.Unlock()
	if c.down.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	if !strings.HasPrefix(r.URL.Path, "/v2024-01-01/data/query/production") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if r.URL.Query().Get("$id") == `"missing"` {
		_, _ = w.Write([]byte(`{"result":null}`))
		return
	}
	_, _ = w.Write([]byte(`{"result":` + c.result + `}`))
}

func newRepo(t *testing.T, server *cms, ttl time.Duration) (*Repository, *Cache) {
	t.Helper()
	srv := httptest.NewServer(server)
	t.Cleanup(srv.Close)

	cache, err := OpenCache(filepath.Join(t.TempDir(), "content.db"))
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })

	repo := New(Config{
		Dataset:    "production",
		APIVersion: "v2024-01-01",
		CacheTTL:   ttl,
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
	}, cache)
	return repo, cache
}

func TestList_CachesWithinTTL(t *testing.T) {
	server := &cms{result: `[{"_id":"c1","title":"Resilience"}]`}
	repo, _ := newRepo(t, server, time.Hour)

	for i := 0; i < 3; i++ {
		docs, err := repo.List(context.Background(), "courses")
		require.NoError(t, err)
		var out []map[string]string
		require.NoError(t, json.Unmarshal(docs, &out))
		assert.Equal(t, "Resilience", out[0]["title"])
	}
	assert.EqualValues(t, 1, server.hits.Load())
}

func TestList_RefetchesAfterTTL(t *testing.T) {
	server := &cms{result: `[]`}
	repo, _ := newRepo(t, server, time.Minute)

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }

	_, err := repo.List(context.Background(), "affirmations")
	require.NoError(t, err)
	now = now.Add(2 * time.Minute)
	_, err = repo.List(context.Background(), "affirmations")
	require.NoError(t, err)

	assert.EqualValues(t, 2, server.hits.Load())
}

func TestList_ServesStaleWhenCMSDown(t *testing.T) {
	server := &cms{result: `[{"_id":"h1"}]`}
	repo, _ := newRepo(t, server, 0)

	first, err := repo.List(context.Background(), "heroes")
	require.NoError(t, err)

	server.down.Store(true)
	second, err := repo.List(context.Background(), "heroes")
	require.NoError(t, err)
	assert.JSONEq(t, string(first), string(second))
}

func TestList_ErrorWithoutCache(t *testing.T) {
	server := &cms{}
	server.down.Store(true)
	repo, _ := newRepo(t, server, time.Hour)

	_, err := repo.List(context.Background(), "reading-list")
	var upErr *models.UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, http.StatusServiceUnavailable, upErr.Status)
}

func TestGet(t *testing.T) {
	server := &cms{result: `{"_id":"r1","title":"Man's Search for Meaning"}`}
	repo, _ := newRepo(t, server, time.Hour)

	doc, err := repo.Get(context.Background(), "reading-list", "r1")
	require.NoError(t, err)
	assert.Contains(t, string(doc), "r1")

	_, err = repo.Get(context.Background(), "reading-list", "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func (c *cms) lastQuery() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queries) == 0 {
		return ""
	}
	return c.queries[len(c.queries)-1]
}

func TestList_ProjectsSchemaFields(t *testing.T) {
	tests := []struct {
		kind   string
		fields []string
	}{
		{"affirmations", []string{"affirmationList", "subCategory", "isChallenge", "reflectionQuestion"}},
		{"heroes", []string{"areaOfExcellence", "adversities", "overcomingChallenges", "imageUrl"}},
		{"reading-list", []string{"bookTitle", "executiveSummary", "coreConcepts", "whyReadThis", "linkUrl", "categories"}},
		{"courses", []string{"...", `"slug": slug.current`, "studySessions"}},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			server := &cms{result: `[]`}
			repo, _ := newRepo(t, server, time.Hour)

			_, err := repo.List(context.Background(), tt.kind)
			require.NoError(t, err)
			q := server.lastQuery()
			for _, f := range tt.fields {
				assert.Contains(t, q, f)
			}
		})
	}
}

func TestGet_CourseBySlug(t *testing.T) {
	server := &cms{result: `{"_id":"c1","slug":"resilience-101"}`}
	repo, _ := newRepo(t, server, time.Hour)

	doc, err := repo.Get(context.Background(), "courses", "resilience-101")
	require.NoError(t, err)
	assert.Contains(t, string(doc), "resilience-101")
	assert.Contains(t, server.lastQuery(), "slug.current == $id")
}

func TestUnknownKind(t *testing.T) {
	repo, _ := newRepo(t, &cms{}, time.Hour)
	_, err := repo.List(context.Background(), "podcasts")
	assert.ErrorIs(t, err, ErrUnknownKind)
	assert.Equal(t, []string{"affirmations", "courses", "heroes", "reading-list"}, Kinds())
}

func TestCache_InMemory(t *testing.T) {
	cache, err := OpenCache(":memory:")
	require.NoError(t, err)
	defer cache.Close()

	at := time.Unix(1700000000, 0)
	require.NoError(t, cache.Put(context.Background(), "k", []byte(`[1]`), at))
	require.NoError(t, cache.Put(context.Background(), "k", []byte(`[2]`), at.Add(time.Second)))

	body, stored, ok, err := cache.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `[2]`, string(body))
	assert.True(t, stored.Equal(at.Add(time.Second)))

	_, _, ok, err = cache.Get(context.Background(), "absent")
	require.NoError(t, err)
	assert.False(t, ok)
}
