package doaj

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperharvest/backend/internal/domain"
)

const searchFixture = `{
  "total": 2,
  "page": 1,
  "pageSize": 50,
  "results": [
    {
      "id": "doaj-article-1",
      "bibjson": {
        "title": "High intensity interval training in adolescents",
        "abstract": "HIIT improves VO2max.",
        "year": "2020",
        "journal": {"title": "BMC Sports Science"},
        "author": [{"name": "John Smith"}, {"name": "Jane Doe"}],
        "identifier": [
          {"type": "pissn", "id": "1234-5678"},
          {"type": "doi", "id": "10.1000/hiit.2020"}
        ],
        "link": [
          {"type": "fulltext", "url": "https://example.org/hiit.pdf", "content_type": "application/pdf"}
        ]
      }
    },
    {
      "id": "doaj-article-2",
      "bibjson": {"title": ""}
    }
  ]
}`

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	return NewClient(Config{BaseURL: baseURL, RateLimit: 1000}, zerolog.Nop())
}

func TestSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasPrefix(r.URL.Path, "/search/articles/"), r.URL.Path)
		query := strings.TrimPrefix(r.URL.Path, "/search/articles/")
		assert.Contains(t, query, `bibjson.title:"interval training"`)
		assert.Contains(t, query, "bibjson.year:[2015 TO 2024]")
		assert.Equal(t, "50", r.URL.Query().Get("pageSize"))
		w.Write([]byte(searchFixture))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	records, err := c.Search(context.Background(), "interval training", 10, domain.YearRange{Start: 2015, End: 2024})
	require.NoError(t, err)

	// The untitled article is skipped.
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, "High intensity interval training in adolescents", rec.Title)
	assert.Equal(t, []string{"John Smith", "Jane Doe"}, rec.Authors)
	assert.Equal(t, 2020, rec.Year)
	assert.Equal(t, "BMC Sports Science", rec.Journal)
	assert.Equal(t, "10.1000/hiit.2020", rec.DOI)
	assert.Equal(t, "doaj-article-1", rec.SourceIDs[domain.SourceDOAJ])
	assert.Equal(t, "https://example.org/hiit.pdf", rec.PDFURL)
	assert.Equal(t, domain.SourceDOAJ, rec.Source)
}

func TestSearchStopsOnShortPage(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(searchFixture))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Search(context.Background(), "interval training", 500, domain.YearRange{})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestFetchByID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/articles/doaj-article-1", r.URL.Path)
		w.Write([]byte(`{"id": "doaj-article-1", "bibjson": {"title": "High intensity interval training in adolescents", "year": "2020"}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	rec, err := c.FetchByID(context.Background(), "doaj-article-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "doaj-article-1", rec.SourceIDs[domain.SourceDOAJ])
}

func TestFetchByIDNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "404 Not Found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	rec, err := c.FetchByID(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, rec)
}
