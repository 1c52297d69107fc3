// Package doaj collects paper metadata from the Directory of Open Access
// Journals search API.
package doaj

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
	defaultBaseURL = "https://doaj.org/api"
	pageSize       = 50
)

type Config struct {
	BaseURL     string
	RateLimit   float64
	Timeout     time.Duration
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
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
		cfg.RateLimit = 2
	}
	return &Client{
		http: httpclient.New(httpclient.Config{
			Source:        domain.SourceDOAJ,
			RatePerSecond: cfg.RateLimit,
			Timeout:       cfg.Timeout,
			MaxAttempts:   cfg.MaxAttempts,
			BaseDelay:     cfg.BaseDelay,
			MaxDelay:      cfg.MaxDelay,
		}),
		cfg: cfg,
		log: log.With().Str("source", domain.SourceDOAJ).Logger(),
	}
}

func (c *Client) Name() string { return domain.SourceDOAJ }

// API response types
type searchResponse struct {
	Total    int             `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"pageSize"`
	Results  []articleResult `json:"results"`
}

type articleResult struct {
	ID      string  `json:"id"`
	BibJSON bibJSON `json:"bibjson"`
}

type bibJSON struct {
	Title       string       `json:"title"`
	Abstract    string       `json:"abstract"`
	Year        string       `json:"year"`
	Journal     bibJournal   `json:"journal"`
	Authors     []bibAuthor  `json:"author"`
	Identifiers []identifier `json:"identifier"`
	Links       []bibLink    `json:"link"`
}

type bibJournal struct {
	Title string `json:"title"`
}

type bibAuthor struct {
	Name string `json:"name"`
}

type identifier struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type bibLink struct {
	Type        string `json:"type"`
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
}

// Search pages through the article search endpoint. The query uses DOAJ's
// Elasticsearch syntax over title and abstract, with the year range pushed
// into the query natively when set.
func (c *Client) Search(ctx context.Context, query string, maxResults int, years domain.YearRange) ([]*domain.PaperRecord, error) {
	if maxResults <= 0 {
		maxResults = 20
	}

	search := fmt.Sprintf(`bibjson.title:%q OR bibjson.abstract:%q`, query, query)
	if !years.IsZero() {
		search = fmt.Sprintf("(%s) AND bibjson.year:[%d TO %d]", search, years.Start, years.End)
	}

	var records []*domain.PaperRecord
	for page := 1; len(records) < maxResults; page++ {
		params := url.Values{}
		params.Set("page", strconv.Itoa(page))
		params.Set("pageSize", strconv.Itoa(pageSize))

		reqURL := fmt.Sprintf("%s/search/articles/%s?%s", c.cfg.BaseURL, url.PathEscape(search), params.Encode())
		body, err := c.http.Get(ctx, reqURL)
		if err != nil {
			return records, fmt.Errorf("doaj search request failed: %w", err)
		}

		var resp searchResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return records, fmt.Errorf("failed to parse doaj response: %w", err)
		}

		for i := range resp.Results {
			rec := resultToRecord(&resp.Results[i])
			if rec == nil {
				c.log.Debug().Int("page", page).Int("index", i).Msg("skipping article without id or title")
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

		if len(resp.Results) < pageSize {
			break
		}
	}
	return records, nil
}

// FetchByID resolves one DOAJ article ID. Returns (nil, nil) when the
// article does not exist.
func (c *Client) FetchByID(ctx context.Context, id string) (*domain.PaperRecord, error) {
	body, err := c.http.Get(ctx, fmt.Sprintf("%s/articles/%s", c.cfg.BaseURL, url.PathEscape(id)))
	if err != nil {
		var statusErr *httpclient.StatusError
		if errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("doaj article request failed: %w", err)
	}

	var result articleResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse doaj article: %w", err)
	}
	return resultToRecord(&result), nil
}

func resultToRecord(r *articleResult) *domain.PaperRecord {
	title := strings.TrimSpace(r.BibJSON.Title)
	if r.ID == "" || title == "" {
		return nil
	}

	authors := make([]string, 0, len(r.BibJSON.Authors))
	for _, a := range r.BibJSON.Authors {
		if name := strings.TrimSpace(a.Name); name != "" {
			authors = append(authors, name)
		}
	}

	year := 0
	if y, err := strconv.Atoi(strings.TrimSpace(r.BibJSON.Year)); err == nil {
		year = y
	}

	doi := ""
	for _, ident := range r.BibJSON.Identifiers {
		if strings.EqualFold(ident.Type, "doi") {
			doi = strings.TrimSpace(ident.ID)
			break
		}
	}

	pdfURL := ""
	for _, l := range r.BibJSON.Links {
		if l.Type == "fulltext" {
			pdfURL = l.URL
			if strings.Contains(strings.ToLower(l.ContentType), "pdf") {
				break
			}
		}
	}

	return &domain.PaperRecord{
		Title:     title,
		Authors:   authors,
		Abstract:  strings.TrimSpace(r.BibJSON.Abstract),
		Year:      year,
		Journal:   strings.TrimSpace(r.BibJSON.Journal.Title),
		DOI:       doi,
		SourceIDs: map[string]string{domain.SourceDOAJ: r.ID},
		PDFURL:    pdfURL,
		Source:    domain.SourceDOAJ,
	}
}

// Stats exposes the underlying HTTP client counters.
func (c *Client) Stats() httpclient.Stats { return c.http.Stats() }
