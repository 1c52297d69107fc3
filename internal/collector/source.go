// Package collector defines the source contract and the orchestrator that
// fans queries out across sources for one topical domain.
package collector

import (
	"context"

	"github.com/paperharvest/backend/internal/domain"
	"github.com/paperharvest/backend/pkg/httpclient"
)

// Source is implemented by every paper source adapter. Search pages through
// the source's native pagination until maxResults records pass the year
// filter or the source runs out; FetchByID resolves one source-local
// identifier, returning (nil, nil) when the source has no such record.
// Stats reports the adapter's cumulative HTTP call counters for the run
// summary.
//
// A Source serializes its own network calls; distinct Sources are
// independent and may be driven concurrently.
type Source interface {
	Name() string
	Search(ctx context.Context, query string, maxResults int, years domain.YearRange) ([]*domain.PaperRecord, error)
	FetchByID(ctx context.Context, id string) (*domain.PaperRecord, error)
	Stats() httpclient.Stats
}
