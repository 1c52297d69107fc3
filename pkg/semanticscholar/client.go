// Package semanticscholar collects paper metadata from the Semantic Scholar
// Graph API.
package semanticscholar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/paperharvest/backend/internal/domain"
	"github.com/paperharvest/backend/pkg/httpclient"
)

const (
	defaultBaseURL = "https://api.semanticscholar.org/graph/v1"
	pageSize       = 100
	searchFields   = "title,abstract,year,venue,citationCount,authors,externalIds,openAccessPdf"
)

type Config struct {
	BaseURL     string
	RateLimit   float64 // unauthenticated limit is well under 2 rps
	Timeout     time.Duration
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
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
		cfg.RateLimit = 1.67
	}
	return &Client{
		http: httpclient.New(httpclient.Config{
			Source:        domain.SourceSemanticScholar,
			RatePerSecond: cfg.RateLimit,
			Timeout:       cfg.Timeout,
			MaxAttempts:   cfg.MaxAttempts,
			BaseDelay:     cfg.BaseDelay,
			MaxDelay:      cfg.MaxDelay,
			APIKey:        cfg.APIKey,
			APIKeyHeader:  "x-api-key",
		}),
		cfg: cfg,
		log: log.With().Str("source", domain.SourceSemanticScholar).Logger(),
	}
}

func (c *Client) Name() string { return domain.SourceSemanticScholar }

// API response types
type searchResponse struct {
	Total  int           `json:"total"`
	Offset int           `json:"offset"`
	Data   []paperResult `json:"data"`
}

type paperResult struct {
	PaperID       string         `json:"paperId"`
	Title         string         `json:"title"`
	Abstract      string         `json:"abstract"`
	Year          int            `json:"year"`
	Venue         string         `json:"venue"`
	CitationCount int            `json:"citationCount"`
	Authors       []authorInfo   `json:"authors"`
	ExternalIDs   externalIDs    `json:"externalIds"`
	OpenAccessPDF *openAccessPDF `json:"openAccessPdf"`
}

type authorInfo struct {
	Name string `json:"name"`
}

type externalIDs struct {
	ArXiv  string `json:"ArXiv"`
	DOI    string `json:"DOI"`
	PubMed string `json:"PubMed"`
}

type openAccessPDF struct {
	URL string `json:"url"`
}

// Search pages through /paper/search with offsets until maxResults records
// pass the year filter or the source runs out. Year filtering is applied
// client-side; records without a year are included.
func (c *Client) Search(ctx context.Context, query string, maxResults int, years domain.YearRange) ([]*domain.PaperRecord, error) {
	if maxResults <= 0 {
		maxResults = 20
	}

	var records []*domain.PaperRecord
	for offset := 0; len(records) < maxResults; {
		limit := pageSize
		if remaining := maxResults - len(records); remaining < limit {
			limit = remaining
		}

		params := url.Values{}
		params.Set("query", query)
		params.Set("offset", strconv.Itoa(offset))
		params.Set("limit", strconv.Itoa(limit))
		params.Set("fields", searchFields)

		body, err := c.http.Get(ctx, fmt.Sprintf("%s/paper/search?%s", c.cfg.BaseURL, params.Encode()))
		if err != nil {
			return records, fmt.Errorf("semantic scholar API request failed: %w", err)
		}

		var resp searchResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return records, fmt.Errorf("failed to parse search response: %w", err)
		}

		for i := range resp.Data {
			rec := resultToRecord(&resp.Data[i])
			if rec == nil {
				c.log.Debug().Int("offset", offset+i).Msg("skipping result without id or title")
				continue
			}
			if !years.Contains(rec.Year) {
				continue
			}
			records = append(records, rec)
			if len(records) == maxResults {
				break
			}
		}

		offset += len(resp.Data)
		if len(resp.Data) < limit || offset >= resp.Total {
			break
		}
	}
	return records, nil
}

// FetchByID resolves one paper by Semantic Scholar ID (or any supported
// external ID form such as "DOI:10.1234/x"). Returns (nil, nil) when the
// paper does not exist.
func (c *Client) FetchByID(ctx context.Context, id string) (*domain.PaperRecord, error) {
	params := url.Values{}
	params.Set("fields", searchFields)

	body, err := c.http.Get(ctx, fmt.Sprintf("%s/paper/%s?%s", c.cfg.BaseURL, url.PathEscape(id), params.Encode()))
	if err != nil {
		var statusErr *httpclient.StatusError
		if errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("semantic scholar API request failed: %w", err)
	}

	var result paperResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse paper response: %w", err)
	}
	return resultToRecord(&result), nil
}

func resultToRecord(r *paperResult) *domain.PaperRecord {
	title := strings.TrimSpace(r.Title)
	if r.PaperID == "" || title == "" {
		return nil
	}

	authors := make([]string, 0, len(r.Authors))
	for _, a := range r.Authors {
		if name := strings.TrimSpace(a.Name); name != "" {
			authors = append(authors, name)
		}
	}

	sourceIDs := map[string]string{domain.SourceSemanticScholar: r.PaperID}
	if r.ExternalIDs.ArXiv != "" {
		sourceIDs[domain.SourceArxiv] = r.ExternalIDs.ArXiv
	}
	if r.ExternalIDs.PubMed != "" {
		sourceIDs[domain.SourcePubMed] = r.ExternalIDs.PubMed
	}

	pdfURL := ""
	if r.OpenAccessPDF != nil {
		pdfURL = r.OpenAccessPDF.URL
	}
	if pdfURL == "" && r.ExternalIDs.ArXiv != "" {
		pdfURL = fmt.Sprintf("https://arxiv.org/pdf/%s", r.ExternalIDs.ArXiv)
	}

	return &domain.PaperRecord{
		Title:         title,
		Authors:       authors,
		Abstract:      strings.TrimSpace(r.Abstract),
		Year:          r.Year,
		Journal:       strings.TrimSpace(r.Venue),
		DOI:           r.ExternalIDs.DOI,
		SourceIDs:     sourceIDs,
		CitationCount: r.CitationCount,
		PDFURL:        pdfURL,
		Source:        domain.SourceSemanticScholar,
	}
}

// Stats exposes the underlying HTTP client counters.
func (c *Client) Stats() httpclient.Stats { return c.http.Stats() }
