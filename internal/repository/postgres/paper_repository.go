// Package postgres persists deduplicated paper records. Storage is an
// optional downstream sink; the collection and dedup core never depends
// on it.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paperharvest/backend/internal/domain"
)

type PaperRepository struct {
	db *pgxpool.Pool
}

func NewPaperRepository(db *pgxpool.Pool) *PaperRepository {
	return &PaperRepository{db: db}
}

// UpsertBatch writes records in one pgx batch, keyed on (source,
// external_id). Citation counts only ever move upward so a stale source
// cannot erase a fresher count. Returns how many rows were newly inserted.
func (r *PaperRepository) UpsertBatch(ctx context.Context, records []*domain.PaperRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	now := time.Now()
	for _, rec := range records {
		authors, err := json.Marshal(rec.Authors)
		if err != nil {
			return 0, fmt.Errorf("marshal authors: %w", err)
		}
		extra, err := json.Marshal(rec.Extra)
		if err != nil {
			return 0, fmt.Errorf("marshal extra: %w", err)
		}

		batch.Queue(`
			INSERT INTO papers (id, source, external_id, title, abstract, authors, year,
				journal, doi, citation_count, pdf_url, domain, extra, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, 0), $8, NULLIF($9, ''), $10, $11, $12, $13, $14)
			ON CONFLICT (source, external_id) DO UPDATE SET
				title = EXCLUDED.title,
				abstract = EXCLUDED.abstract,
				authors = EXCLUDED.authors,
				year = COALESCE(EXCLUDED.year, papers.year),
				journal = COALESCE(NULLIF(EXCLUDED.journal, ''), papers.journal),
				doi = COALESCE(EXCLUDED.doi, papers.doi),
				citation_count = GREATEST(EXCLUDED.citation_count, papers.citation_count),
				pdf_url = COALESCE(NULLIF(EXCLUDED.pdf_url, ''), papers.pdf_url),
				domain = EXCLUDED.domain,
				extra = EXCLUDED.extra
		`,
			uuid.New(), rec.Source, externalID(rec), rec.Title, rec.Abstract, authors,
			rec.Year, rec.Journal, rec.DOI, rec.CitationCount, rec.PDFURL,
			rec.Domain, extra, now,
		)
	}

	br := r.db.SendBatch(ctx, batch)
	defer br.Close()

	inserted := 0
	for range records {
		ct, err := br.Exec()
		if err != nil {
			return inserted, fmt.Errorf("upsert paper: %w", err)
		}
		if ct.RowsAffected() > 0 {
			inserted++
		}
	}
	return inserted, nil
}

// GetByDOI fetches one stored record by DOI. Returns (nil, nil) when no
// row matches.
func (r *PaperRepository) GetByDOI(ctx context.Context, doi string) (*domain.PaperRecord, error) {
	row := r.db.QueryRow(ctx, `
		SELECT source, external_id, title, abstract, authors, COALESCE(year, 0),
			COALESCE(journal, ''), COALESCE(doi, ''), COALESCE(citation_count, 0),
			COALESCE(pdf_url, ''), COALESCE(domain, ''), extra
		FROM papers WHERE doi = $1
	`, doi)
	return scanRecord(row)
}

// CountByDomain reports stored record counts per topical domain.
func (r *PaperRepository) CountByDomain(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.Query(ctx, `SELECT COALESCE(domain, ''), COUNT(*) FROM papers GROUP BY 1`)
	if err != nil {
		return nil, fmt.Errorf("count papers: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var d string
		var n int
		if err := rows.Scan(&d, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[d] = n
	}
	return counts, rows.Err()
}

func scanRecord(row pgx.Row) (*domain.PaperRecord, error) {
	rec := &domain.PaperRecord{}
	var externalID string
	var authors, extra []byte
	err := row.Scan(&rec.Source, &externalID, &rec.Title, &rec.Abstract, &authors,
		&rec.Year, &rec.Journal, &rec.DOI, &rec.CitationCount, &rec.PDFURL,
		&rec.Domain, &extra)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan paper: %w", err)
	}

	if len(authors) > 0 {
		if err := json.Unmarshal(authors, &rec.Authors); err != nil {
			return nil, fmt.Errorf("unmarshal authors: %w", err)
		}
	}
	if len(extra) > 0 {
		if err := json.Unmarshal(extra, &rec.Extra); err != nil {
			return nil, fmt.Errorf("unmarshal extra: %w", err)
		}
	}
	rec.SourceIDs = map[string]string{rec.Source: externalID}
	return rec, nil
}

// externalID picks the identity column value: the record's own source-local
// identifier, then the DOI, then the title as a last resort for scraped
// entries that carry neither.
func externalID(rec *domain.PaperRecord) string {
	if id := rec.SourceIDs[rec.Source]; id != "" {
		return id
	}
	if rec.DOI != "" {
		return rec.DOI
	}
	return rec.Title
}
