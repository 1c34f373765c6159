package resolver

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	aggregatedomain "github.com/voltoralabs/voltora/internal/aggregate/domain"
	perioddomain "github.com/voltoralabs/voltora/internal/billingperiod/domain"
	"github.com/voltoralabs/voltora/internal/observability/metrics"
	"github.com/voltoralabs/voltora/internal/orgcontext"
	tariffdomain "github.com/voltoralabs/voltora/internal/tariff/domain"
)

// Module provides the reference resolver.
var Module = fx.Module("resolver",
	fx.Provide(New),
)

const dateLayout = "2006-01-02"

var ErrInvalidOrganization = errors.New("invalid_organization")

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Tariffs tariffdomain.Repository
	Periods perioddomain.Repository
	Metrics *metrics.Metrics `optional:"true"`
}

// Service stamps tariff and billing-period references onto billing
// aggregates. Unresolved references stay NULL and the row stays loadable;
// resolution never blocks a batch.
type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	tariffs tariffdomain.Repository
	periods perioddomain.Repository
	metrics *metrics.Metrics
}

func New(p Params) *Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("resolver.service"),
		tariffs: p.Tariffs,
		periods: p.Periods,
		metrics: p.Metrics,
	}
}

// Stats counts resolution outcomes for one batch.
type Stats struct {
	TariffsResolved int
	TariffsMissing  int
	PeriodsResolved int
	PeriodsMissing  int
}

// ResolveBatch annotates every aggregate in place using at most two bulk
// queries: one for tariff candidates over the distinct group keys, one for
// billing periods over the distinct bill dates. Per-row selection happens in
// memory against the fetched candidates.
func (s *Service) ResolveBatch(ctx context.Context, aggregates []aggregatedomain.MeterAggregate) (Stats, error) {
	var stats Stats
	if len(aggregates) == 0 {
		return stats, nil
	}

	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return stats, ErrInvalidOrganization
	}

	groupKeys := distinctGroupKeys(aggregates)
	billDates := distinctBillDates(aggregates)

	candidatesByKey := map[string][]tariffdomain.Tariff{}
	if len(groupKeys) > 0 {
		candidates, err := s.tariffs.FindCandidatesByGroupKeys(ctx, s.db, orgID, groupKeys)
		if err != nil {
			return stats, err
		}
		for i := range candidates {
			key := candidates[i].GroupKey
			candidatesByKey[key] = append(candidatesByKey[key], candidates[i])
		}
		for key := range candidatesByKey {
			sortCandidates(candidatesByKey[key])
		}
	}

	periodsByEndDate := map[string]perioddomain.BillingPeriod{}
	if len(billDates) > 0 {
		periods, err := s.periods.FindByEndDates(ctx, s.db, orgID, billDates)
		if err != nil {
			return stats, err
		}
		for i := range periods {
			periodsByEndDate[periods[i].EndDate.UTC().Format(dateLayout)] = periods[i]
		}
	}

	missingKeys := map[string]struct{}{}
	missingDates := map[string]struct{}{}
	for i := range aggregates {
		a := &aggregates[i]

		if tariff := pickTariff(candidatesByKey[a.TariffGroupKey], a.BillDate); tariff != nil {
			id := tariff.ID
			a.TariffID = &id
			stats.TariffsResolved++
		} else {
			stats.TariffsMissing++
			if a.TariffGroupKey != "" {
				missingKeys[a.TariffGroupKey] = struct{}{}
			}
		}

		if a.BillDate == nil {
			stats.PeriodsMissing++
			continue
		}
		dateKey := a.BillDate.UTC().Format(dateLayout)
		if period, found := periodsByEndDate[dateKey]; found {
			id := period.ID
			a.BillingPeriodID = &id
			stats.PeriodsResolved++
		} else {
			stats.PeriodsMissing++
			missingDates[dateKey] = struct{}{}
		}
	}

	if stats.TariffsMissing > 0 {
		s.log.Warn("unresolved tariff references",
			zap.Int("rows", stats.TariffsMissing),
			zap.Strings("group_keys", sampleKeys(missingKeys, 5)),
		)
		s.metrics.RecordFKUnresolved(ctx, "tariff", stats.TariffsMissing)
	}
	if stats.PeriodsMissing > 0 {
		s.log.Warn("unresolved billing periods",
			zap.Int("rows", stats.PeriodsMissing),
			zap.Strings("bill_dates", sampleKeys(missingDates, 5)),
		)
		s.metrics.RecordFKUnresolved(ctx, "billing_period", stats.PeriodsMissing)
	}
	s.log.Info("batch resolved",
		zap.Int("rows", len(aggregates)),
		zap.Int("tariffs_resolved", stats.TariffsResolved),
		zap.Int("tariffs_missing", stats.TariffsMissing),
		zap.Int("periods_resolved", stats.PeriodsResolved),
		zap.Int("periods_missing", stats.PeriodsMissing),
	)

	return stats, nil
}

// pickTariff returns the first candidate whose window contains the bill
// date. A nil date, or a date outside every window, falls back to the most
// recent candidate; a key with no candidates resolves to nothing.
func pickTariff(candidates []tariffdomain.Tariff, at *time.Time) *tariffdomain.Tariff {
	if len(candidates) == 0 {
		return nil
	}
	if at != nil {
		for i := range candidates {
			if candidates[i].Covers(*at) {
				return &candidates[i]
			}
		}
	}
	return &candidates[0]
}

// sortCandidates orders by valid_from descending with open starts last. The
// sort runs in Go because NULL ordering differs between dialects.
func sortCandidates(candidates []tariffdomain.Tariff) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i].ValidFrom, candidates[j].ValidFrom
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
}

func distinctGroupKeys(aggregates []aggregatedomain.MeterAggregate) []string {
	seen := map[string]struct{}{}
	keys := make([]string, 0)
	for i := range aggregates {
		key := aggregates[i].TariffGroupKey
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	return keys
}

func distinctBillDates(aggregates []aggregatedomain.MeterAggregate) []time.Time {
	seen := map[string]struct{}{}
	dates := make([]time.Time, 0)
	for i := range aggregates {
		if aggregates[i].BillDate == nil {
			continue
		}
		day := aggregates[i].BillDate.UTC().Truncate(24 * time.Hour)
		key := day.Format(dateLayout)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		dates = append(dates, day)
	}
	return dates
}

func sampleKeys(set map[string]struct{}, limit int) []string {
	keys := make([]string, 0, limit)
	for key := range set {
		if len(keys) == limit {
			break
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
