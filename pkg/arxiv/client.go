// Package arxiv collects paper metadata from the arXiv Atom API.
package arxiv

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
	defaultBaseURL = "http://export.arxiv.org/api/query"
	pageSize       = 50
)

type Config struct {
	BaseURL     string
	RateLimit   float64 // arXiv asks for no more than one request every 3s
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
		cfg.RateLimit = 1.0 / 3.0
	}
	return &Client{
		http: httpclient.New(httpclient.Config{
			Source:        domain.SourceArxiv,
			RatePerSecond: cfg.RateLimit,
			Timeout:       cfg.Timeout,
			MaxAttempts:   cfg.MaxAttempts,
			BaseDelay:     cfg.BaseDelay,
			MaxDelay:      cfg.MaxDelay,
		}),
		cfg: cfg,
		log: log.With().Str("source", domain.SourceArxiv).Logger(),
	}
}

func (c *Client) Name() string { return domain.SourceArxiv }

// feed represents the arXiv Atom response.
type feed struct {
	XMLName      xml.Name `xml:"feed"`
	TotalResults int      `xml:"totalResults"`
	Entries      []entry  `xml:"entry"`
}

type entry struct {
	ID         string     `xml:"id"`
	Title      string     `xml:"title"`
	Summary    string     `xml:"summary"`
	Published  string     `xml:"published"`
	JournalRef string     `xml:"journal_ref"`
	DOI        string     `xml:"doi"`
	Authors    []author   `xml:"author"`
	Links      []link     `xml:"link"`
	Categories []category `xml:"category"`
}

type author struct {
	Name string `xml:"name"`
}

type link struct {
	Href  string `xml:"href,attr"`
	Type  string `xml:"type,attr"`
	Title string `xml:"title,attr"`
}

type category struct {
	Term string `xml:"term,attr"`
}

// Search pages through the Atom feed with start offsets until maxResults
// records pass the year filter or a short page signals end of results. The
// year bound goes into the query as a submittedDate range and is re-checked
// client-side so entries without a parseable date are still included.
func (c *Client) Search(ctx context.Context, query string, maxResults int, years domain.YearRange) ([]*domain.PaperRecord, error) {
	if maxResults <= 0 {
		maxResults = 20
	}

	searchQuery := fmt.Sprintf("all:%s", query)
	if !years.IsZero() {
		searchQuery = fmt.Sprintf("%s AND submittedDate:[%d01010000 TO %d12312359]",
			searchQuery, years.Start, years.End)
	}

	var records []*domain.PaperRecord
	for start := 0; len(records) < maxResults; start += pageSize {
		limit := pageSize
		if remaining := maxResults - len(records); remaining < limit {
			limit = remaining
		}

		params := url.Values{}
		params.Set("search_query", searchQuery)
		params.Set("start", strconv.Itoa(start))
		params.Set("max_results", strconv.Itoa(limit))
		params.Set("sortBy", "relevance")
		params.Set("sortOrder", "descending")

		body, err := c.http.Get(ctx, fmt.Sprintf("%s?%s", c.cfg.BaseURL, params.Encode()))
		if err != nil {
			return records, fmt.Errorf("arxiv API request failed: %w", err)
		}

		var f feed
		if err := xml.Unmarshal(body, &f); err != nil {
			return records, fmt.Errorf("failed to parse arxiv response: %w", err)
		}

		for i := range f.Entries {
			rec := entryToRecord(&f.Entries[i])
			if rec == nil {
				c.log.Debug().Int("index", start+i).Msg("skipping entry without id or title")
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

		if len(f.Entries) < limit {
			break
		}
	}
	return records, nil
}

// FetchByID resolves one arXiv identifier (with or without version suffix).
// Returns (nil, nil) when arXiv has no such entry.
func (c *Client) FetchByID(ctx context.Context, id string) (*domain.PaperRecord, error) {
	params := url.Values{}
	params.Set("id_list", id)

	body, err := c.http.Get(ctx, fmt.Sprintf("%s?%s", c.cfg.BaseURL, params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("arxiv API request failed: %w", err)
	}

	var f feed
	if err := xml.Unmarshal(body, &f); err != nil {
		return nil, fmt.Errorf("failed to parse arxiv response: %w", err)
	}
	if len(f.Entries) == 0 {
		return nil, nil
	}
	return entryToRecord(&f.Entries[0]), nil
}

func entryToRecord(e *entry) *domain.PaperRecord {
	arxivID := extractArxivID(e.ID)
	title := strings.TrimSpace(e.Title)
	if arxivID == "" || title == "" {
		return nil
	}

	authors := make([]string, 0, len(e.Authors))
	for _, a := range e.Authors {
		if name := strings.TrimSpace(a.Name); name != "" {
			authors = append(authors, name)
		}
	}

	year := 0
	if e.Published != "" {
		if t, err := time.Parse(time.RFC3339, e.Published); err == nil {
			year = t.Year()
		}
	}

	pdfURL := fmt.Sprintf("https://arxiv.org/pdf/%s", arxivID)
	for _, l := range e.Links {
		if l.Title == "pdf" || l.Type == "application/pdf" {
			pdfURL = l.Href
			break
		}
	}

	rec := &domain.PaperRecord{
		Title:     title,
		Authors:   authors,
		Abstract:  strings.TrimSpace(e.Summary),
		Year:      year,
		Journal:   strings.TrimSpace(e.JournalRef),
		DOI:       strings.TrimSpace(e.DOI),
		SourceIDs: map[string]string{domain.SourceArxiv: arxivID},
		PDFURL:    pdfURL,
		Source:    domain.SourceArxiv,
	}
	if len(e.Categories) > 0 {
		categories := make([]string, 0, len(e.Categories))
		for _, cat := range e.Categories {
			categories = append(categories, cat.Term)
		}
		rec.SetExtra("categories", categories)
	}
	return rec
}

// extractArxivID pulls the bare identifier out of an abs URL, dropping any
// version suffix: "http://arxiv.org/abs/2301.00001v2" -> "2301.00001".
func extractArxivID(fullURL string) string {
	parts := strings.Split(fullURL, "/abs/")
	if len(parts) != 2 {
		return ""
	}
	id := parts[1]
	if idx := strings.LastIndex(id, "v"); idx > 0 {
		versionPart := id[idx+1:]
		isVersion := len(versionPart) > 0
		for _, ch := range versionPart {
			if ch < '0' || ch > '9' {
				isVersion = false
				break
			}
		}
		if isVersion {
			id = id[:idx]
		}
	}
	return id
}

// Stats exposes the underlying HTTP client counters.
func (c *Client) Stats() httpclient.Stats { return c.http.Stats() }
