package openalex

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperharvest/backend/internal/domain"
)

const worksFixture = `{
  "meta": {"count": 2},
  "results": [
    {
      "id": "https://openalex.org/W2741809807",
      "doi": "https://doi.org/10.1000/hrv.2021",
      "title": "Heart rate variability and overtraining",
      "publication_year": 2021,
      "cited_by_count": 42,
      "authorships": [
        {"author": {"display_name": "John Smith"}},
        {"author": {"display_name": "Jane Doe"}}
      ],
      "primary_location": {
        "pdf_url": "https://example.org/hrv.pdf",
        "source": {"display_name": "Sports Medicine"}
      },
      "ids": {
        "openalex": "https://openalex.org/W2741809807",
        "pmid": "https://pubmed.ncbi.nlm.nih.gov/33445566"
      },
      "abstract_inverted_index": {
        "Heart": [0],
        "rate": [1],
        "variability": [2],
        "tracks": [3],
        "recovery.": [4]
      }
    },
    {
      "id": "https://openalex.org/W999",
      "title": "",
      "display_name": "",
      "publication_year": 2020
    }
  ]
}`

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	return NewClient(Config{BaseURL: baseURL, RateLimit: 1000, Email: "dev@example.org"}, zerolog.Nop())
}

func TestSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/works", r.URL.Path)
		assert.Equal(t, "heart rate variability", r.URL.Query().Get("search"))
		assert.Equal(t, "dev@example.org", r.URL.Query().Get("mailto"))
		w.Write([]byte(worksFixture))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	records, err := c.Search(context.Background(), "heart rate variability", 10, domain.YearRange{})
	require.NoError(t, err)

	// The untitled work is skipped.
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, "Heart rate variability and overtraining", rec.Title)
	assert.Equal(t, []string{"John Smith", "Jane Doe"}, rec.Authors)
	assert.Equal(t, "Heart rate variability tracks recovery.", rec.Abstract)
	assert.Equal(t, 2021, rec.Year)
	assert.Equal(t, "Sports Medicine", rec.Journal)
	assert.Equal(t, "10.1000/hrv.2021", rec.DOI)
	assert.Equal(t, 42, rec.CitationCount)
	assert.Equal(t, "W2741809807", rec.SourceIDs["openalex"])
	assert.Equal(t, "33445566", rec.SourceIDs[domain.SourcePubMed])
	assert.Equal(t, "https://example.org/hrv.pdf", rec.PDFURL)
	assert.Equal(t, "openalex", rec.Source)
}

func TestSearchSendsYearFilter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "publication_year:2015-2024", r.URL.Query().Get("filter"))
		w.Write([]byte(`{"meta": {"count": 0}, "results": []}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	records, err := c.Search(context.Background(), "anything", 10, domain.YearRange{Start: 2015, End: 2024})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFetchByID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/works/W2741809807", r.URL.Path)
		w.Write([]byte(`{
			"id": "https://openalex.org/W2741809807",
			"title": "Heart rate variability and overtraining",
			"publication_year": 2021
		}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	rec, err := c.FetchByID(context.Background(), "W2741809807")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "W2741809807", rec.SourceIDs["openalex"])
}

func TestFetchByIDNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	rec, err := c.FetchByID(context.Background(), "Wmissing")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestReconstructAbstract(t *testing.T) {
	tests := []struct {
		name  string
		index map[string][]int
		want  string
	}{
		{"empty", nil, ""},
		{"single word", map[string][]int{"Hello": {0}}, "Hello"},
		{
			"repeated word",
			map[string][]int{"the": {0, 3}, "dog": {1}, "chased": {2}, "cat": {4}},
			"the dog chased the cat",
		},
		{
			"gap in positions",
			map[string][]int{"start": {0}, "end": {5}},
			"start end",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, reconstructAbstract(tt.index))
		})
	}
}
