package dedup

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperharvest/backend/internal/domain"
)

func newEngine(cfg Config) *Engine {
	return New(cfg, zerolog.Nop())
}

func TestDOIPrecedence(t *testing.T) {
	records := []*domain.PaperRecord{
		{
			Title:  "Sleep and recovery in elite athletes",
			DOI:    "10.1234/test1",
			Source: domain.SourcePubMed,
		},
		{
			Title:         "Sleep & recovery in elite athletes",
			DOI:           "10.1234/test1",
			Source:        domain.SourceSemanticScholar,
			CitationCount: 5,
		},
		{
			Title:  "Gut microbiome composition in infants",
			DOI:    "10.9999/other",
			Source: domain.SourceDOAJ,
		},
	}

	e := newEngine(Config{})
	out := e.Deduplicate(records)

	require.Len(t, out, 2)
	var survivor *domain.PaperRecord
	for _, rec := range out {
		if rec.DOI == "10.1234/test1" {
			survivor = rec
		}
	}
	require.NotNil(t, survivor)
	assert.Equal(t, domain.SourceSemanticScholar, survivor.Source,
		"higher citation count wins after the DOI tie")

	stats := e.Stats()
	assert.Equal(t, 3, stats.TotalProcessed)
	assert.Equal(t, 1, stats.DOIMatches)
	assert.Equal(t, 1, stats.DuplicatesRemoved)
	assert.InDelta(t, 1.0/3.0, stats.DuplicateRate, 1e-9)
}

func TestDOIPrefixVariantsMatch(t *testing.T) {
	records := []*domain.PaperRecord{
		{Title: "Load monitoring in team sports", DOI: "https://doi.org/10.5555/X1"},
		{Title: "Load monitoring in team sports review", DOI: "DOI:10.5555/x1"},
	}
	e := newEngine(Config{})
	out := e.Deduplicate(records)
	assert.Len(t, out, 1)
}

func TestPublishedVersionBeatsPreprint(t *testing.T) {
	records := []*domain.PaperRecord{
		{
			Title:   "Velocity based training improves maximal strength",
			Source:  domain.SourceArxiv,
			Authors: []string{"John Smith"},
		},
		{
			Title:   "Velocity-based training improves maximal strength",
			Source:  domain.SourcePubMed,
			Journal: "Journal of Strength and Conditioning Research",
			Authors: []string{"John Smith"},
		},
	}

	e := newEngine(Config{})
	out := e.Deduplicate(records)

	require.Len(t, out, 1)
	assert.Equal(t, domain.SourcePubMed, out[0].Source)
}

func TestRecordsWithoutDOIPassThroughIdentifierPass(t *testing.T) {
	records := []*domain.PaperRecord{
		{Title: "Aerobic capacity in youth soccer players"},
		{Title: "Gut microbiome composition in infants"},
		{Title: "Tendon stiffness after eccentric loading"},
	}
	e := newEngine(Config{})
	out := e.Deduplicate(records)
	assert.Len(t, out, 3)
	assert.Equal(t, 0, e.Stats().DOIMatches)
}

func TestAuthorTitleJointGating(t *testing.T) {
	// Same author set, moderately similar titles. The title pass is
	// disabled by an unreachable threshold so only the joint pass can
	// merge, and the title strings diverge enough that the version keys
	// differ.
	makeRecords := func() []*domain.PaperRecord {
		return []*domain.PaperRecord{
			{
				Title:   "Concurrent endurance training attenuates hypertrophy responses",
				Authors: []string{"John Smith", "Jane Doe"},
			},
			{
				Title:   "Hypertrophy responses are attenuated following concurrent training interventions",
				Authors: []string{"Smith, John", "Doe, Jane"},
			},
		}
	}

	t.Run("title below floor is not merged", func(t *testing.T) {
		e := newEngine(Config{TitleThreshold: 1.01, AuthorThreshold: 0.7, AuthorTitleFloor: 0.99})
		out := e.Deduplicate(makeRecords())
		assert.Len(t, out, 2, "author overlap alone must not merge")
		assert.Equal(t, 0, e.Stats().AuthorTitleMatches)
	})

	t.Run("title above floor merges", func(t *testing.T) {
		e := newEngine(Config{TitleThreshold: 1.01, AuthorThreshold: 0.7, AuthorTitleFloor: 0.5})
		out := e.Deduplicate(makeRecords())
		assert.Len(t, out, 1)
		assert.Equal(t, 1, e.Stats().AuthorTitleMatches)
	})

	t.Run("disjoint authors are not merged", func(t *testing.T) {
		records := makeRecords()
		records[1].Authors = []string{"Grace Hopper", "Alan Turing"}
		e := newEngine(Config{TitleThreshold: 1.01, AuthorThreshold: 0.7, AuthorTitleFloor: 0.5})
		out := e.Deduplicate(records)
		assert.Len(t, out, 2, "title overlap alone must not merge in the joint pass")
	})
}

func TestVersionCollapseKeepsHighestScore(t *testing.T) {
	// Identical composite keys, earlier passes disabled. The published
	// record with a DOI must win over the preprint despite fewer
	// citations.
	records := []*domain.PaperRecord{
		{
			Title:         "Plyometric training and jump performance",
			Authors:       []string{"John Smith", "Jane Doe"},
			Source:        domain.SourceArxiv,
			CitationCount: 40,
			Year:          2023,
		},
		{
			Title:         "Plyometric training and jump performance",
			Authors:       []string{"Smith, John", "Doe, Jane"},
			Source:        domain.SourcePubMed,
			Journal:       "Sports Medicine",
			DOI:           "10.1000/jump",
			CitationCount: 2,
			Year:          2024,
			Abstract:      "Twelve weeks of plyometric work.",
		},
	}

	e := newEngine(Config{TitleThreshold: 1.01, AuthorThreshold: 1.01, AuthorTitleFloor: 1.01})
	out := e.Deduplicate(records)

	require.Len(t, out, 1)
	assert.Equal(t, domain.SourcePubMed, out[0].Source)
	assert.Equal(t, 1, e.Stats().VersionsCollapsed)
}

func TestVersionKeyLimitsAuthors(t *testing.T) {
	a := &domain.PaperRecord{
		Title:   "Heart rate variability guided training",
		Authors: []string{"John Smith", "Jane Doe", "Alan Turing", "Grace Hopper"},
	}
	b := &domain.PaperRecord{
		Title:   "Heart rate variability guided training",
		Authors: []string{"John Smith", "Jane Doe", "Alan Turing", "Ada Lovelace"},
	}
	assert.Equal(t, versionKey(a), versionKey(b), "only the first three authors participate in the key")
}

func TestIdempotence(t *testing.T) {
	records := []*domain.PaperRecord{
		{Title: "Sleep and recovery in elite athletes", DOI: "10.1234/test1", Source: domain.SourcePubMed},
		{Title: "Sleep and recovery in elite athletes", DOI: "10.1234/test1", Source: domain.SourceSemanticScholar, CitationCount: 5},
		{Title: "Velocity based training improves maximal strength", Source: domain.SourceArxiv, Authors: []string{"John Smith"}},
		{Title: "Velocity-based training improves maximal strength", Source: domain.SourcePubMed, Authors: []string{"John Smith"}},
		{Title: "Gut microbiome composition in infants", DOI: "10.9999/other"},
		{Title: "Tendon stiffness after eccentric loading", Authors: []string{"Jane Doe"}},
	}

	e := newEngine(Config{})
	once := e.Deduplicate(records)
	twice := e.Deduplicate(once)

	require.Equal(t, len(once), len(twice))
	for i := range once {
		assert.Same(t, once[i], twice[i])
	}
	assert.Equal(t, 0, e.Stats().DuplicatesRemoved)
}

func TestKeepExistingCascade(t *testing.T) {
	tests := []struct {
		name         string
		existing     *domain.PaperRecord
		candidate    *domain.PaperRecord
		keepExisting bool
	}{
		{
			name:         "doi beats no doi",
			existing:     &domain.PaperRecord{DOI: "10.1/x"},
			candidate:    &domain.PaperRecord{},
			keepExisting: true,
		},
		{
			name:         "no doi loses to doi",
			existing:     &domain.PaperRecord{},
			candidate:    &domain.PaperRecord{DOI: "10.1/x"},
			keepExisting: false,
		},
		{
			name:         "non-preprint beats preprint journal",
			existing:     &domain.PaperRecord{Journal: "bioRxiv preprint"},
			candidate:    &domain.PaperRecord{Journal: "Nature"},
			keepExisting: false,
		},
		{
			name:         "higher citations win",
			existing:     &domain.PaperRecord{CitationCount: 10},
			candidate:    &domain.PaperRecord{CitationCount: 3},
			keepExisting: true,
		},
		{
			name:         "more recent year wins",
			existing:     &domain.PaperRecord{Year: 2020},
			candidate:    &domain.PaperRecord{Year: 2024},
			keepExisting: false,
		},
		{
			name:         "present year beats absent",
			existing:     &domain.PaperRecord{},
			candidate:    &domain.PaperRecord{Year: 1990},
			keepExisting: false,
		},
		{
			name:         "abstract presence breaks remaining ties",
			existing:     &domain.PaperRecord{Abstract: "some text"},
			candidate:    &domain.PaperRecord{},
			keepExisting: true,
		},
		{
			name:         "full tie keeps earlier-seen",
			existing:     &domain.PaperRecord{},
			candidate:    &domain.PaperRecord{},
			keepExisting: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.keepExisting, keepExisting(tt.existing, tt.candidate))
		})
	}
}
