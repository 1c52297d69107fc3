package pubmed

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

const esearchFixture = `<?xml version="1.0"?>
<eSearchResult>
  <Count>2</Count>
  <IdList>
    <Id>11111111</Id>
    <Id>22222222</Id>
  </IdList>
</eSearchResult>`

const efetchFixture = `<?xml version="1.0"?>
<PubmedArticleSet>
  <PubmedArticle>
    <MedlineCitation>
      <PMID>11111111</PMID>
      <Article>
        <Journal>
          <Title>Sports Medicine</Title>
          <JournalIssue><PubDate><Year>2021</Year><Month>Mar</Month></PubDate></JournalIssue>
        </Journal>
        <ArticleTitle>Sleep extension improves sprint performance</ArticleTitle>
        <Abstract>
          <AbstractText Label="BACKGROUND">Sleep matters.</AbstractText>
          <AbstractText Label="RESULTS">Sprint times improved.</AbstractText>
        </Abstract>
        <AuthorList>
          <Author><LastName>Smith</LastName><ForeName>John</ForeName></Author>
          <Author><LastName>Doe</LastName><ForeName>Jane</ForeName></Author>
        </AuthorList>
      </Article>
    </MedlineCitation>
    <PubmedData>
      <ArticleIdList>
        <ArticleId IdType="pubmed">11111111</ArticleId>
        <ArticleId IdType="doi">10.1000/sleep.2021</ArticleId>
        <ArticleId IdType="pmc">PMC123456</ArticleId>
      </ArticleIdList>
    </PubmedData>
  </PubmedArticle>
  <PubmedArticle>
    <MedlineCitation>
      <PMID>22222222</PMID>
      <Article>
        <ArticleTitle></ArticleTitle>
      </Article>
    </MedlineCitation>
  </PubmedArticle>
</PubmedArticleSet>`

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	return NewClient(Config{BaseURL: baseURL, RateLimit: 1000, Email: "dev@example.org"}, zerolog.Nop())
}

func TestSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/esearch.fcgi":
			assert.Equal(t, "pubmed", r.URL.Query().Get("db"))
			assert.Contains(t, r.URL.Query().Get("term"), `"2015"[PDAT] : "2024"[PDAT]`)
			assert.Equal(t, "dev@example.org", r.URL.Query().Get("email"))
			w.Write([]byte(esearchFixture))
		case "/efetch.fcgi":
			assert.Equal(t, "11111111,22222222", r.URL.Query().Get("id"))
			w.Write([]byte(efetchFixture))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	records, err := c.Search(context.Background(), "sleep recovery", 10, domain.YearRange{Start: 2015, End: 2024})
	require.NoError(t, err)

	// The untitled second article is skipped, not fatal.
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, "Sleep extension improves sprint performance", rec.Title)
	assert.Equal(t, []string{"John Smith", "Jane Doe"}, rec.Authors)
	assert.Equal(t, "BACKGROUND: Sleep matters.\n\nRESULTS: Sprint times improved.", rec.Abstract)
	assert.Equal(t, 2021, rec.Year)
	assert.Equal(t, "Sports Medicine", rec.Journal)
	assert.Equal(t, "10.1000/sleep.2021", rec.DOI)
	assert.Equal(t, "11111111", rec.SourceIDs[domain.SourcePubMed])
	assert.Equal(t, "https://www.ncbi.nlm.nih.gov/pmc/articles/PMC123456/pdf/", rec.PDFURL)
	assert.Equal(t, domain.SourcePubMed, rec.Source)
	assert.Equal(t, "PMC123456", rec.Extra["pmc_id"])
}

func TestSearchNoHits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<eSearchResult><Count>0</Count><IdList></IdList></eSearchResult>`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	records, err := c.Search(context.Background(), "nonexistent topic", 10, domain.YearRange{})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFetchByID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/efetch.fcgi", r.URL.Path)
		assert.Equal(t, "11111111", r.URL.Query().Get("id"))
		w.Write([]byte(efetchFixture))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	rec, err := c.FetchByID(context.Background(), "11111111")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "11111111", rec.SourceIDs[domain.SourcePubMed])
}

func TestFetchByIDMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<PubmedArticleSet></PubmedArticleSet>`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	rec, err := c.FetchByID(context.Background(), "99999999")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestSearchMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not xml at all"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Search(context.Background(), "anything", 10, domain.YearRange{})
	assert.Error(t, err)
}
