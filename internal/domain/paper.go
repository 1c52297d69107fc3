package domain

import "strings"

// Source names as stamped on collected records.
const (
	SourcePubMed          = "pubmed"
	SourceArxiv           = "arxiv"
	SourceSemanticScholar = "semantic_scholar"
	SourceDOAJ            = "doaj"
	SourceGoogleScholar   = "google_scholar"
	SourceOpenAlex        = "openalex"
)

// PaperRecord is the canonical representation of one bibliographic item
// emitted by a source collector. Title is mandatory; adapters drop entries
// without one. Every other field uses its zero value to mean "absent".
type PaperRecord struct {
	Title         string            `json:"title"`
	Authors       []string          `json:"authors,omitempty"`
	Abstract      string            `json:"abstract,omitempty"`
	Year          int               `json:"year,omitempty"`
	Journal       string            `json:"journal,omitempty"`
	DOI           string            `json:"doi,omitempty"`
	SourceIDs     map[string]string `json:"source_ids,omitempty"`
	CitationCount int               `json:"citation_count,omitempty"`
	PDFURL        string            `json:"pdf_url,omitempty"`
	Source        string            `json:"source"`
	Domain        string            `json:"domain,omitempty"`
	Extra         map[string]any    `json:"extra,omitempty"`
}

// IsPreprint reports whether the record looks like a preprint rather than a
// peer-reviewed publication.
func (p *PaperRecord) IsPreprint() bool {
	if p.Source == SourceArxiv {
		return true
	}
	return strings.Contains(strings.ToLower(p.Journal), "preprint")
}

// SetExtra annotates the record without clobbering adapter-provided fields.
func (p *PaperRecord) SetExtra(key string, value any) {
	if p.Extra == nil {
		p.Extra = map[string]any{}
	}
	p.Extra[key] = value
}

// YearRange bounds a collection run by publication year. A zero bound is
// open on that side.
type YearRange struct {
	Start int
	End   int
}

// Contains reports whether a record with the given year passes the filter.
// A record with no discoverable year (0) is always included.
func (r YearRange) Contains(year int) bool {
	if year == 0 {
		return true
	}
	if r.Start != 0 && year < r.Start {
		return false
	}
	if r.End != 0 && year > r.End {
		return false
	}
	return true
}

// IsZero reports whether no bounds are set.
func (r YearRange) IsZero() bool {
	return r.Start == 0 && r.End == 0
}
