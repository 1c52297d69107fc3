// Package dedup reduces a multiset of collected paper records to a set with
// at most one record per underlying publication. Four ordered passes narrow
// the working set: exact DOI grouping, fuzzy title matching, joint
// author+title matching, and cross-source version collapsing. Survivors are
// chosen whole; fields are never merged across duplicates.
package dedup

import (
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/paperharvest/backend/internal/domain"
	"github.com/paperharvest/backend/internal/observability"
)

// Config holds the externally tunable matching thresholds.
type Config struct {
	// TitleThreshold is the minimum title similarity for the
	// title-only pass.
	TitleThreshold float64

	// AuthorThreshold is the minimum author Jaccard similarity for the
	// author+title pass.
	AuthorThreshold float64

	// AuthorTitleFloor is the looser title bound used alongside
	// AuthorThreshold; both must hold for a match.
	AuthorTitleFloor float64
}

func (c *Config) applyDefaults() {
	if c.TitleThreshold <= 0 {
		c.TitleThreshold = 0.85
	}
	if c.AuthorThreshold <= 0 {
		c.AuthorThreshold = 0.7
	}
	if c.AuthorTitleFloor <= 0 {
		c.AuthorTitleFloor = 0.7
	}
}

// Stats summarizes one Deduplicate call.
type Stats struct {
	TotalProcessed     int     `json:"total_processed"`
	UniqueKept         int     `json:"unique_kept"`
	DuplicatesRemoved  int     `json:"duplicates_removed"`
	DOIMatches         int     `json:"doi_matches"`
	TitleMatches       int     `json:"title_matches"`
	AuthorTitleMatches int     `json:"author_title_matches"`
	VersionsCollapsed  int     `json:"versions_collapsed"`
	DuplicateRate      float64 `json:"duplicate_rate"`
}

// Engine applies the four reduction passes. Not safe for concurrent use;
// each Deduplicate call resets the statistics.
type Engine struct {
	cfg   Config
	log   zerolog.Logger
	stats Stats
}

func New(cfg Config, log zerolog.Logger) *Engine {
	cfg.applyDefaults()
	return &Engine{cfg: cfg, log: log.With().Str("component", "dedup").Logger()}
}

// Stats returns the statistics of the most recent Deduplicate call.
func (e *Engine) Stats() Stats {
	return e.stats
}

// Deduplicate reduces records to at most one survivor per publication.
// Input order is significant: on ties the earlier-seen record survives.
func (e *Engine) Deduplicate(records []*domain.PaperRecord) []*domain.PaperRecord {
	e.stats = Stats{TotalProcessed: len(records)}

	out := e.collapseByDOI(records)
	out = e.collapseByTitle(out)
	out = e.collapseByAuthorTitle(out)
	out = e.collapseVersions(out)

	e.stats.UniqueKept = len(out)
	e.stats.DuplicatesRemoved = e.stats.TotalProcessed - len(out)
	if e.stats.TotalProcessed > 0 {
		e.stats.DuplicateRate = float64(e.stats.DuplicatesRemoved) / float64(e.stats.TotalProcessed)
	}

	e.log.Info().
		Int("input", e.stats.TotalProcessed).
		Int("unique", e.stats.UniqueKept).
		Int("doi_matches", e.stats.DOIMatches).
		Int("title_matches", e.stats.TitleMatches).
		Int("author_title_matches", e.stats.AuthorTitleMatches).
		Int("versions_collapsed", e.stats.VersionsCollapsed).
		Float64("duplicate_rate", e.stats.DuplicateRate).
		Msg("deduplication complete")

	return out
}

// collapseByDOI groups records by normalized DOI and keeps one per group.
// Records without a DOI pass through untouched.
func (e *Engine) collapseByDOI(records []*domain.PaperRecord) []*domain.PaperRecord {
	unique := make([]*domain.PaperRecord, 0, len(records))
	seen := make(map[string]int, len(records)) // normalized DOI -> index in unique

	for _, rec := range records {
		doi := NormalizeDOI(rec.DOI)
		if doi == "" {
			unique = append(unique, rec)
			continue
		}
		idx, dup := seen[doi]
		if !dup {
			seen[doi] = len(unique)
			unique = append(unique, rec)
			continue
		}
		e.stats.DOIMatches++
		observability.DuplicatesRemoved.WithLabelValues("doi").Inc()
		e.log.Debug().Str("doi", doi).Str("title", rec.Title).Msg("doi duplicate")
		if !keepExisting(unique[idx], rec) {
			unique[idx] = rec
		}
	}
	return unique
}

// collapseByTitle drops records whose normalized title is at least
// TitleThreshold similar to an already accepted record.
func (e *Engine) collapseByTitle(records []*domain.PaperRecord) []*domain.PaperRecord {
	unique := make([]*domain.PaperRecord, 0, len(records))
	normTitles := make([]string, 0, len(records))

	for _, rec := range records {
		norm := NormalizeTitle(rec.Title)
		if norm == "" {
			unique = append(unique, rec)
			normTitles = append(normTitles, "")
			continue
		}

		match := -1
		for i, existing := range normTitles {
			if existing == "" {
				continue
			}
			if TitleSimilarity(norm, existing) >= e.cfg.TitleThreshold {
				match = i
				break
			}
		}
		if match < 0 {
			unique = append(unique, rec)
			normTitles = append(normTitles, norm)
			continue
		}

		e.stats.TitleMatches++
		observability.DuplicatesRemoved.WithLabelValues("title").Inc()
		e.log.Debug().Str("title", rec.Title).Msg("title duplicate")
		if !keepExisting(unique[match], rec) {
			unique[match] = rec
			normTitles[match] = norm
		}
	}
	return unique
}

// collapseByAuthorTitle drops records matching an accepted record on both
// author overlap and a looser title bound. Records without authors are
// never matched here.
func (e *Engine) collapseByAuthorTitle(records []*domain.PaperRecord) []*domain.PaperRecord {
	unique := make([]*domain.PaperRecord, 0, len(records))
	normTitles := make([]string, 0, len(records))

	for _, rec := range records {
		if len(rec.Authors) == 0 {
			unique = append(unique, rec)
			normTitles = append(normTitles, NormalizeTitle(rec.Title))
			continue
		}
		norm := NormalizeTitle(rec.Title)

		match := -1
		for i, existing := range unique {
			if len(existing.Authors) == 0 || norm == "" || normTitles[i] == "" {
				continue
			}
			if AuthorJaccard(rec.Authors, existing.Authors) >= e.cfg.AuthorThreshold &&
				TitleSimilarity(norm, normTitles[i]) >= e.cfg.AuthorTitleFloor {
				match = i
				break
			}
		}
		if match < 0 {
			unique = append(unique, rec)
			normTitles = append(normTitles, norm)
			continue
		}

		e.stats.AuthorTitleMatches++
		observability.DuplicatesRemoved.WithLabelValues("author_title").Inc()
		e.log.Debug().Str("title", rec.Title).Msg("author+title duplicate")
		if !keepExisting(unique[match], rec) {
			unique[match] = rec
			normTitles[match] = norm
		}
	}
	return unique
}

// collapseVersions groups records by a composite title+authors key and keeps
// the highest-scoring member of each group. Unlike the earlier passes this
// ranks whole groups with versionScore rather than the pairwise cascade.
func (e *Engine) collapseVersions(records []*domain.PaperRecord) []*domain.PaperRecord {
	groups := make(map[string][]*domain.PaperRecord, len(records))
	order := make([]string, 0, len(records))

	for _, rec := range records {
		key := versionKey(rec)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], rec)
	}

	unique := make([]*domain.PaperRecord, 0, len(groups))
	for _, key := range order {
		group := groups[key]
		if len(group) == 1 {
			unique = append(unique, group[0])
			continue
		}

		best := group[0]
		bestScore := versionScore(best)
		for _, rec := range group[1:] {
			if s := versionScore(rec); s > bestScore {
				best = rec
				bestScore = s
			}
		}
		e.stats.VersionsCollapsed += len(group) - 1
		observability.DuplicatesRemoved.WithLabelValues("version").Add(float64(len(group) - 1))
		e.log.Debug().Str("title", best.Title).Int("versions", len(group)).Msg("version group collapsed")
		unique = append(unique, best)
	}
	return unique
}

// keepExisting decides a pairwise duplicate: true keeps the earlier-seen
// record. Tie-breaks run strictly in order: DOI presence, non-preprint,
// citation count, recency, abstract presence, then stable default.
func keepExisting(existing, candidate *domain.PaperRecord) bool {
	existingDOI := NormalizeDOI(existing.DOI) != ""
	candidateDOI := NormalizeDOI(candidate.DOI) != ""
	if existingDOI != candidateDOI {
		return existingDOI
	}

	existingPre := existing.IsPreprint()
	candidatePre := candidate.IsPreprint()
	if existingPre != candidatePre {
		return candidatePre
	}

	if existing.CitationCount != candidate.CitationCount {
		return existing.CitationCount > candidate.CitationCount
	}

	switch {
	case existing.Year != 0 && candidate.Year != 0:
		if existing.Year != candidate.Year {
			return existing.Year > candidate.Year
		}
	case existing.Year != 0:
		return true
	case candidate.Year != 0:
		return false
	}

	existingAbs := existing.Abstract != ""
	candidateAbs := candidate.Abstract != ""
	if existingAbs != candidateAbs {
		return existingAbs
	}

	return true
}

// versionScore ranks members of a version group; the group maximum survives.
func versionScore(p *domain.PaperRecord) float64 {
	score := 0.0
	if NormalizeDOI(p.DOI) != "" {
		score += 100
	}
	if !p.IsPreprint() {
		score += 50
	}
	score += float64(p.CitationCount)
	score += float64(p.Year) * 0.1
	if p.Abstract != "" {
		score += 10
	}
	return score
}

// versionKey builds the composite grouping key: the first 50 characters of
// the normalized title plus the sorted keys of up to three authors.
func versionKey(p *domain.PaperRecord) string {
	title := NormalizeTitle(p.Title)
	if r := []rune(title); len(r) > 50 {
		title = string(r[:50])
	}

	n := len(p.Authors)
	if n > 3 {
		n = 3
	}
	keys := make([]string, 0, n)
	for _, a := range p.Authors[:n] {
		keys = append(keys, normalizeAuthor(a))
	}
	sort.Strings(keys)

	return title + "|" + strings.Join(keys, "|")
}
