// Package scholar collects paper metadata from Google Scholar. When a
// SerpAPI key is configured it is used exclusively; otherwise results are
// scraped from the HTML result pages at a much lower rate and with a hard
// cap on pages scanned. A 429 or CAPTCHA interstitial ends the source's
// contribution for the run; whatever was already parsed is returned
// alongside the error.
package scholar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/paperharvest/backend/internal/domain"
	"github.com/paperharvest/backend/pkg/httpclient"
)

const (
	defaultScrapeURL  = "https://scholar.google.com/scholar"
	defaultSerpAPIURL = "https://serpapi.com/search.json"
	scrapePageSize    = 10
	serpAPIPageSize   = 20
	defaultMaxPages   = 10

	// A plain library User-Agent gets blocked instantly when scraping.
	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
)

var (
	yearRe     = regexp.MustCompile(`\b(19|20)\d{2}\b`)
	citedByRe  = regexp.MustCompile(`Cited by (\d+)`)
	titleTagRe = regexp.MustCompile(`^\s*\[[A-Z]+\]\s*`)
)

type Config struct {
	ScrapeURL   string
	SerpAPIURL  string
	SerpAPIKey  string
	RateLimit   float64 // scraping default is one request per 10s
	MaxPages    int
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
	if cfg.ScrapeURL == "" {
		cfg.ScrapeURL = defaultScrapeURL
	}
	if cfg.SerpAPIURL == "" {
		cfg.SerpAPIURL = defaultSerpAPIURL
	}
	if cfg.RateLimit <= 0 {
		if cfg.SerpAPIKey != "" {
			cfg.RateLimit = 1
		} else {
			cfg.RateLimit = 0.1
		}
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = defaultMaxPages
	}
	return &Client{
		http: httpclient.New(httpclient.Config{
			Source:        domain.SourceGoogleScholar,
			RatePerSecond: cfg.RateLimit,
			Timeout:       cfg.Timeout,
			MaxAttempts:   cfg.MaxAttempts,
			BaseDelay:     cfg.BaseDelay,
			MaxDelay:      cfg.MaxDelay,
			UserAgent:     browserUserAgent,
		}),
		cfg: cfg,
		log: log.With().Str("source", domain.SourceGoogleScholar).Logger(),
	}
}

func (c *Client) Name() string { return domain.SourceGoogleScholar }

// Search collects up to maxResults records. Year bounds are passed natively
// (as_ylo/as_yhi) and re-checked client-side so entries with no parseable
// year stay included.
func (c *Client) Search(ctx context.Context, query string, maxResults int, years domain.YearRange) ([]*domain.PaperRecord, error) {
	if maxResults <= 0 {
		maxResults = 20
	}
	if c.cfg.SerpAPIKey != "" {
		return c.searchSerpAPI(ctx, query, maxResults, years)
	}
	return c.searchScrape(ctx, query, maxResults, years)
}

// FetchByID resolves a Scholar cluster ID to its primary result. Returns
// (nil, nil) when the cluster has no results.
func (c *Client) FetchByID(ctx context.Context, id string) (*domain.PaperRecord, error) {
	if c.cfg.SerpAPIKey != "" {
		params := url.Values{}
		params.Set("engine", "google_scholar")
		params.Set("cluster", id)
		params.Set("api_key", c.cfg.SerpAPIKey)

		records, err := c.fetchSerpAPIPage(ctx, params)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, nil
		}
		return records[0], nil
	}

	params := url.Values{}
	params.Set("cluster", id)
	params.Set("hl", "en")

	records, err := c.fetchScrapePage(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

func (c *Client) searchSerpAPI(ctx context.Context, query string, maxResults int, years domain.YearRange) ([]*domain.PaperRecord, error) {
	var records []*domain.PaperRecord
	for page := 0; page < c.cfg.MaxPages && len(records) < maxResults; page++ {
		params := url.Values{}
		params.Set("engine", "google_scholar")
		params.Set("q", query)
		params.Set("start", strconv.Itoa(page*serpAPIPageSize))
		params.Set("num", strconv.Itoa(serpAPIPageSize))
		params.Set("api_key", c.cfg.SerpAPIKey)
		if !years.IsZero() {
			params.Set("as_ylo", strconv.Itoa(years.Start))
			params.Set("as_yhi", strconv.Itoa(years.End))
		}

		results, err := c.fetchSerpAPIPage(ctx, params)
		if err != nil {
			return records, err
		}
		for _, rec := range results {
			if !years.Contains(rec.Year) {
				continue
			}
			records = append(records, rec)
			if len(records) == maxResults {
				break
			}
		}
		if len(results) < serpAPIPageSize {
			break
		}
	}
	return records, nil
}

func (c *Client) fetchSerpAPIPage(ctx context.Context, params url.Values) ([]*domain.PaperRecord, error) {
	body, err := c.http.Get(ctx, c.cfg.SerpAPIURL+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("serpapi request failed: %w", err)
	}

	var resp serpResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse serpapi response: %w", err)
	}

	records := make([]*domain.PaperRecord, 0, len(resp.OrganicResults))
	for i := range resp.OrganicResults {
		rec := serpResultToRecord(&resp.OrganicResults[i])
		if rec == nil {
			c.log.Debug().Int("index", i).Msg("skipping serpapi result without title")
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// SerpAPI response types
type serpResponse struct {
	OrganicResults []serpResult `json:"organic_results"`
}

type serpResult struct {
	ResultID        string `json:"result_id"`
	Title           string `json:"title"`
	Link            string `json:"link"`
	Snippet         string `json:"snippet"`
	PublicationInfo struct {
		Summary string `json:"summary"`
		Authors []struct {
			Name string `json:"name"`
		} `json:"authors"`
	} `json:"publication_info"`
	InlineLinks struct {
		CitedBy struct {
			Total int `json:"total"`
		} `json:"cited_by"`
	} `json:"inline_links"`
	Resources []struct {
		FileFormat string `json:"file_format"`
		Link       string `json:"link"`
	} `json:"resources"`
}

func serpResultToRecord(r *serpResult) *domain.PaperRecord {
	title := strings.TrimSpace(r.Title)
	if title == "" {
		return nil
	}

	authors, journal, year := parseByline(r.PublicationInfo.Summary)
	if len(r.PublicationInfo.Authors) > 0 {
		authors = authors[:0]
		for _, a := range r.PublicationInfo.Authors {
			if name := strings.TrimSpace(a.Name); name != "" {
				authors = append(authors, name)
			}
		}
	}

	pdfURL := ""
	for _, res := range r.Resources {
		if strings.EqualFold(res.FileFormat, "pdf") {
			pdfURL = res.Link
			break
		}
	}

	rec := &domain.PaperRecord{
		Title:         title,
		Authors:       authors,
		Abstract:      strings.TrimSpace(r.Snippet),
		Year:          year,
		Journal:       journal,
		CitationCount: r.InlineLinks.CitedBy.Total,
		PDFURL:        pdfURL,
		Source:        domain.SourceGoogleScholar,
	}
	if r.ResultID != "" {
		rec.SourceIDs = map[string]string{domain.SourceGoogleScholar: r.ResultID}
	}
	if r.Link != "" {
		rec.SetExtra("url", r.Link)
	}
	return rec
}

func (c *Client) searchScrape(ctx context.Context, query string, maxResults int, years domain.YearRange) ([]*domain.PaperRecord, error) {
	var records []*domain.PaperRecord
	for page := 0; page < c.cfg.MaxPages && len(records) < maxResults; page++ {
		params := url.Values{}
		params.Set("q", query)
		params.Set("start", strconv.Itoa(page*scrapePageSize))
		params.Set("hl", "en")
		params.Set("as_sdt", "0,5")
		if !years.IsZero() {
			params.Set("as_ylo", strconv.Itoa(years.Start))
			params.Set("as_yhi", strconv.Itoa(years.End))
		}

		pageRecords, err := c.fetchScrapePage(ctx, params)
		if err != nil {
			if errors.Is(err, httpclient.ErrBlocked) {
				c.log.Warn().Int("page", page).Msg("scholar blocked the run, keeping partial results")
			}
			return records, err
		}
		for _, rec := range pageRecords {
			if !years.Contains(rec.Year) {
				continue
			}
			records = append(records, rec)
			if len(records) == maxResults {
				break
			}
		}
		if len(pageRecords) == 0 {
			break
		}
	}
	return records, nil
}

func (c *Client) fetchScrapePage(ctx context.Context, params url.Values) ([]*domain.PaperRecord, error) {
	body, err := c.http.Get(ctx, c.cfg.ScrapeURL+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("scholar request failed: %w", err)
	}
	if bytes.Contains(body, []byte("gs_captcha")) {
		return nil, fmt.Errorf("scholar served a captcha page: %w", httpclient.ErrBlocked)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse scholar page: %w", err)
	}

	var records []*domain.PaperRecord
	doc.Find("div.gs_r.gs_or.gs_scl").Each(func(i int, sel *goquery.Selection) {
		rec := scrapeResultToRecord(sel)
		if rec == nil {
			c.log.Debug().Int("index", i).Msg("skipping scholar result without title")
			return
		}
		records = append(records, rec)
	})
	return records, nil
}

func scrapeResultToRecord(sel *goquery.Selection) *domain.PaperRecord {
	titleSel := sel.Find("h3.gs_rt")
	title := strings.TrimSpace(titleTagRe.ReplaceAllString(titleSel.Text(), ""))
	if title == "" {
		return nil
	}

	authors, journal, year := parseByline(sel.Find("div.gs_a").Text())

	citations := 0
	sel.Find("div.gs_fl a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if m := citedByRe.FindStringSubmatch(a.Text()); m != nil {
			citations, _ = strconv.Atoi(m[1])
			return false
		}
		return true
	})

	pdfURL, _ := sel.Find("div.gs_or_ggsm a").Attr("href")

	rec := &domain.PaperRecord{
		Title:         title,
		Authors:       authors,
		Abstract:      strings.TrimSpace(sel.Find("div.gs_rs").Text()),
		Year:          year,
		Journal:       journal,
		CitationCount: citations,
		PDFURL:        pdfURL,
		Source:        domain.SourceGoogleScholar,
	}
	if cid, ok := sel.Attr("data-cid"); ok && cid != "" {
		rec.SourceIDs = map[string]string{domain.SourceGoogleScholar: cid}
	}
	if href, ok := sel.Find("h3.gs_rt a").Attr("href"); ok {
		rec.SetExtra("url", href)
	}
	return rec
}

// parseByline splits Scholar's "Authors - Journal, Year - Publisher" line.
// Truncated author entries ("…") are dropped.
func parseByline(byline string) (authors []string, journal string, year int) {
	parts := strings.Split(byline, " - ")
	if len(parts) == 0 {
		return nil, "", 0
	}

	for _, name := range strings.Split(parts[0], ",") {
		name = strings.TrimSpace(name)
		if name == "" || strings.Contains(name, "…") || strings.Contains(name, "...") {
			continue
		}
		authors = append(authors, name)
	}

	if len(parts) >= 2 {
		venue := strings.TrimSpace(parts[1])
		if m := yearRe.FindString(venue); m != "" {
			year, _ = strconv.Atoi(m)
			venue = strings.TrimSpace(strings.TrimSuffix(strings.Replace(venue, m, "", 1), ","))
			venue = strings.TrimSuffix(strings.TrimSpace(venue), ",")
		}
		journal = venue
	}
	return authors, journal, year
}

// Stats exposes the underlying HTTP client counters.
func (c *Client) Stats() httpclient.Stats { return c.http.Stats() }
