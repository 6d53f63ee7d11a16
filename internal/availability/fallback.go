package availability

import (
	"context"
	"fmt"
	"io"

	"github.com/labstack/gommon/log"

	"github.com/iliyamo/restaurant-reservation/internal/model"
	"github.com/iliyamo/restaurant-reservation/internal/policy"
	"github.com/iliyamo/restaurant-reservation/internal/source"
)

// CatalogSource synthesizes virtual tables from the sub-area catalog of the
// establishment's profile. Virtual tables carry negative ids and start free.
type CatalogSource struct {
	Profiles *policy.Registry
}

// ListTables implements source.TableSource.
func (s CatalogSource) ListTables(_ context.Context, q source.TableQuery) ([]model.Table, error) {
	if s.Profiles == nil {
		return nil, source.ErrUnavailable
	}
	tables := virtualTables(s.Profiles.ForEstablishment(q.EstablishmentID), q.AreaID)
	if len(tables) == 0 {
		return nil, fmt.Errorf("area %d has no catalog tables: %w", q.AreaID, source.ErrUnavailable)
	}
	return tables, nil
}

func virtualTables(p policy.Profile, areaID int64) []model.Table {
	var out []model.Table
	for _, sa := range p.SubAreasFor(areaID) {
		for _, n := range sa.Tables {
			out = append(out, model.Table{
				ID:          -(areaID*1000 + int64(len(out)) + 1),
				AreaID:      areaID,
				Number:      n,
				Capacity:    sa.Capacity,
				Description: sa.Label,
				Virtual:     true,
			})
		}
	}
	return out
}

// mergeCatalog appends virtual tables for catalog numbers of the area that
// have no physical record, so every sub-area stays representable.
func mergeCatalog(tables []model.Table, p policy.Profile, areaID int64) []model.Table {
	have := make(map[string]bool, len(tables))
	for _, t := range tables {
		have[t.Number] = true
	}
	for _, v := range virtualTables(p, areaID) {
		if !have[v.Number] {
			tables = append(tables, v)
			have[v.Number] = true
		}
	}
	return tables
}

type fallbackSource struct {
	primary  source.TableSource
	fallback source.TableSource
	logger   *log.Logger
}

// WithFallback returns a TableSource that asks primary first and, when it
// fails, answers from fallback. The degradation is logged, never surfaced;
// the primary error is returned only when the fallback fails too.
func WithFallback(primary, fallback source.TableSource, logger *log.Logger) source.TableSource {
	if logger == nil {
		logger = log.New("availability")
		logger.SetOutput(io.Discard)
	}
	return &fallbackSource{primary: primary, fallback: fallback, logger: logger}
}

func (f *fallbackSource) ListTables(ctx context.Context, q source.TableQuery) ([]model.Table, error) {
	tables, err := f.primary.ListTables(ctx, q)
	if err == nil {
		return tables, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	virtual, ferr := f.fallback.ListTables(ctx, q)
	if ferr != nil {
		return nil, err
	}
	f.logger.Warnf("table source failed for area %d on %s, using catalog tables: %v", q.AreaID, q.Date, err)
	return virtual, nil
}
