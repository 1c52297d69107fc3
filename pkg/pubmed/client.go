// Package pubmed collects paper metadata from the NCBI Entrez E-utilities.
package pubmed

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/paperharvest/backend/internal/domain"
	"github.com/paperharvest/backend/pkg/httpclient"
)

const (
	defaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"
	toolName       = "paperharvest"
	fetchBatchSize = 50
)

type Config struct {
	BaseURL     string
	RateLimit   float64 // NCBI allows 3 rps without an API key
	Timeout     time.Duration
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Email       string // reported to NCBI per their etiquette rules
	APIKey      string
}

type Client struct {
	http *httpclient.Client
	cfg  Config
	log  zerolog.Logger
}

func NewClient(cfg Config, log zerolog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 3
	}
	return &Client{
		http: httpclient.New(httpclient.Config{
			Source:        domain.SourcePubMed,
			RatePerSecond: cfg.RateLimit,
			Timeout:       cfg.Timeout,
			MaxAttempts:   cfg.MaxAttempts,
			BaseDelay:     cfg.BaseDelay,
			MaxDelay:      cfg.MaxDelay,
		}),
		cfg: cfg,
		log: log.With().Str("source", domain.SourcePubMed).Logger(),
	}
}

func (c *Client) Name() string { return domain.SourcePubMed }

// ESearch response types
type eSearchResult struct {
	XMLName xml.Name `xml:"eSearchResult"`
	Count   int      `xml:"Count"`
	IDList  idList   `xml:"IdList"`
}

type idList struct {
	IDs []string `xml:"Id"`
}

// EFetch response types
type pubmedArticleSet struct {
	XMLName  xml.Name        `xml:"PubmedArticleSet"`
	Articles []pubmedArticle `xml:"PubmedArticle"`
}

type pubmedArticle struct {
	MedlineCitation medlineCitation `xml:"MedlineCitation"`
	PubmedData      pubmedData      `xml:"PubmedData"`
}

type medlineCitation struct {
	PMID    pmid    `xml:"PMID"`
	Article article `xml:"Article"`
}

type pmid struct {
	Value string `xml:",chardata"`
}

type article struct {
	Journal      journal       `xml:"Journal"`
	ArticleTitle string        `xml:"ArticleTitle"`
	Abstract     abstract      `xml:"Abstract"`
	AuthorList   authorList    `xml:"AuthorList"`
	ArticleDate  []articleDate `xml:"ArticleDate"`
}

type journal struct {
	Title   string      `xml:"Title"`
	PubDate journalDate `xml:"JournalIssue>PubDate"`
}

type journalDate struct {
	Year  string `xml:"Year"`
	Month string `xml:"Month"`
	Day   string `xml:"Day"`
}

type abstract struct {
	AbstractTexts []abstractText `xml:"AbstractText"`
}

type abstractText struct {
	Label string `xml:"Label,attr"`
	Text  string `xml:",chardata"`
}

type authorList struct {
	Authors []pubmedAuthor `xml:"Author"`
}

type pubmedAuthor struct {
	LastName string `xml:"LastName"`
	ForeName string `xml:"ForeName"`
}

type articleDate struct {
	Year string `xml:"Year"`
}

type pubmedData struct {
	ArticleIDList articleIDList `xml:"ArticleIdList"`
}

type articleIDList struct {
	ArticleIDs []articleID `xml:"ArticleId"`
}

type articleID struct {
	IDType string `xml:"IdType,attr"`
	Value  string `xml:",chardata"`
}

// Search runs an ESearch for PMIDs, then EFetches article details in
// batches. Year bounds are pushed into the query with a [PDAT] range, which
// PubMed resolves natively.
func (c *Client) Search(ctx context.Context, query string, maxResults int, years domain.YearRange) ([]*domain.PaperRecord, error) {
	if maxResults <= 0 {
		maxResults = 20
	}

	term := query
	if !years.IsZero() {
		term = fmt.Sprintf(`%s AND ("%d"[PDAT] : "%d"[PDAT])`, query, years.Start, years.End)
	}

	params := c.baseParams()
	params.Set("db", "pubmed")
	params.Set("term", term)
	params.Set("retmax", strconv.Itoa(maxResults))
	params.Set("sort", "relevance")
	params.Set("retmode", "xml")

	body, err := c.http.Get(ctx, fmt.Sprintf("%s/esearch.fcgi?%s", c.cfg.BaseURL, params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("pubmed esearch request failed: %w", err)
	}

	var searchResult eSearchResult
	if err := xml.Unmarshal(body, &searchResult); err != nil {
		return nil, fmt.Errorf("failed to parse esearch response: %w", err)
	}

	pmids := searchResult.IDList.IDs
	if len(pmids) == 0 {
		return nil, nil
	}

	var records []*domain.PaperRecord
	for start := 0; start < len(pmids); start += fetchBatchSize {
		end := start + fetchBatchSize
		if end > len(pmids) {
			end = len(pmids)
		}
		batch, err := c.fetchArticles(ctx, pmids[start:end])
		if err != nil {
			return records, err
		}
		records = append(records, batch...)
	}
	return records, nil
}

// FetchByID resolves one PMID. Returns (nil, nil) when PubMed has no such
// article.
func (c *Client) FetchByID(ctx context.Context, id string) (*domain.PaperRecord, error) {
	records, err := c.fetchArticles(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

func (c *Client) fetchArticles(ctx context.Context, pmids []string) ([]*domain.PaperRecord, error) {
	params := c.baseParams()
	params.Set("db", "pubmed")
	params.Set("id", strings.Join(pmids, ","))
	params.Set("retmode", "xml")
	params.Set("rettype", "abstract")

	body, err := c.http.Get(ctx, fmt.Sprintf("%s/efetch.fcgi?%s", c.cfg.BaseURL, params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("pubmed efetch request failed: %w", err)
	}

	var articleSet pubmedArticleSet
	if err := xml.Unmarshal(body, &articleSet); err != nil {
		return nil, fmt.Errorf("failed to parse efetch response: %w", err)
	}

	records := make([]*domain.PaperRecord, 0, len(articleSet.Articles))
	for i := range articleSet.Articles {
		rec := articleToRecord(&articleSet.Articles[i])
		if rec == nil {
			c.log.Debug().Int("index", i).Msg("skipping article without pmid or title")
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func (c *Client) baseParams() url.Values {
	params := url.Values{}
	params.Set("tool", toolName)
	if c.cfg.Email != "" {
		params.Set("email", c.cfg.Email)
	}
	if c.cfg.APIKey != "" {
		params.Set("api_key", c.cfg.APIKey)
	}
	return params
}

func articleToRecord(art *pubmedArticle) *domain.PaperRecord {
	id := art.MedlineCitation.PMID.Value
	title := strings.TrimSpace(art.MedlineCitation.Article.ArticleTitle)
	if id == "" || title == "" {
		return nil
	}

	// Labeled abstract sections keep their labels.
	var abstractParts []string
	for _, text := range art.MedlineCitation.Article.Abstract.AbstractTexts {
		part := strings.TrimSpace(text.Text)
		if part == "" {
			continue
		}
		if text.Label != "" {
			part = fmt.Sprintf("%s: %s", text.Label, part)
		}
		abstractParts = append(abstractParts, part)
	}

	authors := make([]string, 0, len(art.MedlineCitation.Article.AuthorList.Authors))
	for _, a := range art.MedlineCitation.Article.AuthorList.Authors {
		name := strings.TrimSpace(a.ForeName + " " + a.LastName)
		if name != "" {
			authors = append(authors, name)
		}
	}

	year := 0
	if y, err := strconv.Atoi(art.MedlineCitation.Article.Journal.PubDate.Year); err == nil {
		year = y
	} else if len(art.MedlineCitation.Article.ArticleDate) > 0 {
		if y, err := strconv.Atoi(art.MedlineCitation.Article.ArticleDate[0].Year); err == nil {
			year = y
		}
	}

	var doi, pmcID string
	for _, aid := range art.PubmedData.ArticleIDList.ArticleIDs {
		switch aid.IDType {
		case "doi":
			doi = strings.TrimSpace(aid.Value)
		case "pmc":
			pmcID = strings.TrimSpace(aid.Value)
		}
	}

	pdfURL := ""
	if pmcID != "" {
		pdfURL = fmt.Sprintf("https://www.ncbi.nlm.nih.gov/pmc/articles/%s/pdf/", pmcID)
	} else if doi != "" {
		pdfURL = fmt.Sprintf("https://doi.org/%s", doi)
	}

	rec := &domain.PaperRecord{
		Title:     title,
		Authors:   authors,
		Abstract:  strings.Join(abstractParts, "\n\n"),
		Year:      year,
		Journal:   strings.TrimSpace(art.MedlineCitation.Article.Journal.Title),
		DOI:       doi,
		SourceIDs: map[string]string{domain.SourcePubMed: id},
		PDFURL:    pdfURL,
		Source:    domain.SourcePubMed,
	}
	if pmcID != "" {
		rec.SetExtra("pmc_id", pmcID)
	}
	return rec
}

// Stats exposes the underlying HTTP client counters.
func (c *Client) Stats() httpclient.Stats { return c.http.Stats() }
