package marketdata

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/wonny/arena/backend/internal/contracts"
	"github.com/wonny/arena/backend/pkg/logger"
)

// CoveredStore is the slice of the price repository the preparer needs.
type CoveredStore interface {
	CoveredDates(ctx context.Context, symbols []string, dates []time.Time) ([]time.Time, error)
}

// Preparer orchestrates the download of missing price data for a job.
// Partial failure is a degraded-but-valid outcome: the preparer never
// errors on it, it only emits warnings. Only a repository failure is
// escalated as an error.
// ⭐ SSOT: 데이터 준비 오케스트레이션은 여기서만
type Preparer struct {
	checker    *Checker
	store      CoveredStore
	downloader contracts.Downloader
	logger     *logger.Logger
}

// NewPreparer creates a new data preparer
func NewPreparer(checker *Checker, store CoveredStore, downloader contracts.Downloader, log *logger.Logger) *Preparer {
	return &Preparer{
		checker:    checker,
		store:      store,
		downloader: downloader,
		logger:     log.WithField("module", "preparer"),
	}
}

// Prepare ensures price data exists for the requested dates. It returns
// the requested dates with complete coverage after the download pass,
// plus human-readable warnings for anything that degraded the outcome.
func (p *Preparer) Prepare(ctx context.Context, requested []time.Time) ([]time.Time, []string, error) {
	if len(requested) == 0 {
		return nil, nil, nil
	}

	dates := normalize(requested)
	from, to := dates[0], dates[len(dates)-1]
	var warnings []string

	// 1. What is missing across the full range?
	missing, err := p.checker.MissingCoverage(ctx, from, to)
	if err != nil {
		return nil, nil, fmt.Errorf("coverage check: %w", err)
	}

	// 2. Download whatever is missing. The requested date set rides along
	// so the vendor client can prioritize it over lookback padding.
	if len(missing) > 0 {
		result, err := p.downloader.Download(ctx, missing, dates)
		if err != nil {
			// A download transport error degrades, it does not abort:
			// proceed with whatever coverage already exists.
			p.logger.WithError(err).Warn("Price download failed")
			warnings = append(warnings, fmt.Sprintf("price download failed: %v", err))
		} else {
			warnings = append(warnings, classify(result, len(missing))...)
		}
	}

	// 3. Recompute coverage: a requested date is usable only when every
	// universe symbol has a row for it.
	available, err := p.store.CoveredDates(ctx, p.checker.Symbols(), dates)
	if err != nil {
		return nil, nil, fmt.Errorf("recompute coverage: %w", err)
	}

	if skipped := subtract(dates, available); len(skipped) > 0 {
		warnings = append(warnings, fmt.Sprintf(
			"skipped dates with no price data: %s", joinDates(skipped)))
	}

	p.logger.WithFields(map[string]interface{}{
		"requested": len(dates),
		"available": len(available),
		"warnings":  len(warnings),
	}).Info("Data preparation finished")

	return available, warnings, nil
}

// classify turns a download outcome into warnings.
func classify(result *contracts.DownloadResult, totalSymbols int) []string {
	var warnings []string

	if result.RateLimited {
		warnings = append(warnings, fmt.Sprintf(
			"rate limit reached, %d/%d symbols downloaded",
			len(result.Downloaded), totalSymbols))
	}

	if len(result.Failed) > 0 && !result.RateLimited {
		failed := append([]string(nil), result.Failed...)
		sort.Strings(failed)
		warnings = append(warnings, fmt.Sprintf(
			"failed to download price data for: %s", strings.Join(failed, ", ")))
	}

	return warnings
}

// normalize sorts and deduplicates dates at day granularity.
func normalize(dates []time.Time) []time.Time {
	seen := make(map[time.Time]bool, len(dates))
	out := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		day := Day(d)
		if !seen[day] {
			seen[day] = true
			out = append(out, day)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// subtract returns the dates in a that are not in b.
func subtract(a, b []time.Time) []time.Time {
	have := make(map[time.Time]bool, len(b))
	for _, d := range b {
		have[Day(d)] = true
	}

	var out []time.Time
	for _, d := range a {
		if !have[Day(d)] {
			out = append(out, d)
		}
	}
	return out
}

func joinDates(dates []time.Time) string {
	parts := make([]string, len(dates))
	for i, d := range dates {
		parts[i] = d.Format("2006-01-02")
	}
	return strings.Join(parts, ", ")
}
