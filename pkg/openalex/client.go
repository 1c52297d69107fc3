// Package openalex collects paper metadata from the OpenAlex works API.
// OpenAlex is free and fast when a mailto address puts the caller in the
// polite pool.
package openalex

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
	defaultBaseURL = "https://api.openalex.org"
	pageSize       = 100
	sourceName     = domain.SourceOpenAlex
)

type Config struct {
	BaseURL     string
	RateLimit   float64
	Timeout     time.Duration
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Email       string // polite pool address
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
		cfg.RateLimit = 5
	}
	userAgent := "paperharvest/1.0"
	if cfg.Email != "" {
		userAgent = fmt.Sprintf("paperharvest/1.0 (mailto:%s)", cfg.Email)
	}
	return &Client{
		http: httpclient.New(httpclient.Config{
			Source:        sourceName,
			RatePerSecond: cfg.RateLimit,
			Timeout:       cfg.Timeout,
			MaxAttempts:   cfg.MaxAttempts,
			BaseDelay:     cfg.BaseDelay,
			MaxDelay:      cfg.MaxDelay,
			UserAgent:     userAgent,
		}),
		cfg: cfg,
		log: log.With().Str("source", sourceName).Logger(),
	}
}

func (c *Client) Name() string { return sourceName }

// API response types
type searchResponse struct {
	Meta struct {
		Count int `json:"count"`
	} `json:"meta"`
	Results []workResult `json:"results"`
}

type workResult struct {
	ID                    string           `json:"id"`
	DOI                   string           `json:"doi"`
	Title                 string           `json:"title"`
	DisplayName           string           `json:"display_name"`
	PublicationYear       int              `json:"publication_year"`
	CitedByCount          int              `json:"cited_by_count"`
	Authorships           []authorship     `json:"authorships"`
	PrimaryLocation       *location        `json:"primary_location"`
	OpenAccess            *openAccess      `json:"open_access"`
	IDs                   map[string]any   `json:"ids"`
	AbstractInvertedIndex map[string][]int `json:"abstract_inverted_index"`
}

type authorship struct {
	Author struct {
		DisplayName string `json:"display_name"`
	} `json:"author"`
}

type location struct {
	PDFURL string  `json:"pdf_url"`
	Source *source `json:"source"`
}

type source struct {
	DisplayName string `json:"display_name"`
}

type openAccess struct {
	OAURL string `json:"oa_url"`
}

// Search pages through /works. The year bound is pushed into the filter
// param natively; OpenAlex always has a publication year so no client-side
// re-check is needed beyond the shared policy.
func (c *Client) Search(ctx context.Context, query string, maxResults int, years domain.YearRange) ([]*domain.PaperRecord, error) {
	if maxResults <= 0 {
		maxResults = 20
	}

	var records []*domain.PaperRecord
	for page := 1; len(records) < maxResults; page++ {
		limit := pageSize
		if remaining := maxResults - len(records); remaining < limit {
			limit = remaining
		}

		params := url.Values{}
		params.Set("search", query)
		params.Set("per_page", strconv.Itoa(limit))
		params.Set("page", strconv.Itoa(page))
		if !years.IsZero() {
			params.Set("filter", fmt.Sprintf("publication_year:%d-%d", years.Start, years.End))
		}
		if c.cfg.Email != "" {
			params.Set("mailto", c.cfg.Email)
		}

		body, err := c.http.Get(ctx, fmt.Sprintf("%s/works?%s", c.cfg.BaseURL, params.Encode()))
		if err != nil {
			return records, fmt.Errorf("openalex API request failed: %w", err)
		}

		var resp searchResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return records, fmt.Errorf("failed to parse openalex response: %w", err)
		}

		for i := range resp.Results {
			rec := workToRecord(&resp.Results[i])
			if rec == nil {
				c.log.Debug().Int("page", page).Int("index", i).Msg("skipping work without title")
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

		if len(resp.Results) < limit {
			break
		}
	}
	return records, nil
}

// FetchByID resolves one OpenAlex work ID (e.g. "W2741809807"). Returns
// (nil, nil) when the work does not exist.
func (c *Client) FetchByID(ctx context.Context, id string) (*domain.PaperRecord, error) {
	params := url.Values{}
	if c.cfg.Email != "" {
		params.Set("mailto", c.cfg.Email)
	}

	body, err := c.http.Get(ctx, fmt.Sprintf("%s/works/%s?%s", c.cfg.BaseURL, url.PathEscape(id), params.Encode()))
	if err != nil {
		var statusErr *httpclient.StatusError
		if errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("openalex API request failed: %w", err)
	}

	var work workResult
	if err := json.Unmarshal(body, &work); err != nil {
		return nil, fmt.Errorf("failed to parse openalex work: %w", err)
	}
	return workToRecord(&work), nil
}

func workToRecord(w *workResult) *domain.PaperRecord {
	title := strings.TrimSpace(w.Title)
	if title == "" {
		title = strings.TrimSpace(w.DisplayName)
	}
	if title == "" {
		return nil
	}

	authors := make([]string, 0, len(w.Authorships))
	for _, a := range w.Authorships {
		if name := strings.TrimSpace(a.Author.DisplayName); name != "" {
			authors = append(authors, name)
		}
	}

	journal := ""
	if w.PrimaryLocation != nil && w.PrimaryLocation.Source != nil {
		journal = strings.TrimSpace(w.PrimaryLocation.Source.DisplayName)
	}

	sourceIDs := map[string]string{sourceName: strings.TrimPrefix(w.ID, "https://openalex.org/")}
	if pmid := idFromURL(w.IDs, "pmid", "https://pubmed.ncbi.nlm.nih.gov/"); pmid != "" {
		sourceIDs[domain.SourcePubMed] = pmid
	}

	pdfURL := ""
	if w.PrimaryLocation != nil && w.PrimaryLocation.PDFURL != "" {
		pdfURL = w.PrimaryLocation.PDFURL
	} else if w.OpenAccess != nil && w.OpenAccess.OAURL != "" {
		pdfURL = w.OpenAccess.OAURL
	}

	return &domain.PaperRecord{
		Title:         title,
		Authors:       authors,
		Abstract:      reconstructAbstract(w.AbstractInvertedIndex),
		Year:          w.PublicationYear,
		Journal:       journal,
		DOI:           strings.TrimPrefix(w.DOI, "https://doi.org/"),
		SourceIDs:     sourceIDs,
		CitationCount: w.CitedByCount,
		PDFURL:        pdfURL,
		Source:        sourceName,
	}
}

func idFromURL(ids map[string]any, key, prefix string) string {
	raw, ok := ids[key]
	if !ok {
		return ""
	}
	s, ok := raw.(string)
	if !ok {
		return ""
	}
	return strings.Trim(strings.TrimPrefix(s, prefix), "/")
}

// reconstructAbstract rebuilds plain text from OpenAlex's inverted index
// format: {"word": [position1, position2], ...}.
func reconstructAbstract(invertedIndex map[string][]int) string {
	if len(invertedIndex) == 0 {
		return ""
	}

	maxPos := 0
	for _, positions := range invertedIndex {
		for _, pos := range positions {
			if pos > maxPos {
				maxPos = pos
			}
		}
	}

	words := make([]string, maxPos+1)
	for word, positions := range invertedIndex {
		for _, pos := range positions {
			if pos >= 0 && pos <= maxPos {
				words[pos] = word
			}
		}
	}

	var sb strings.Builder
	for _, word := range words {
		if word == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(word)
	}
	return sb.String()
}

// Stats exposes the underlying HTTP client counters.
func (c *Client) Stats() httpclient.Stats { return c.http.Stats() }
