package marketdata

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/arena/backend/internal/contracts"
	"github.com/wonny/arena/backend/pkg/logger"
)

type fakeDownloader struct {
	result *contracts.DownloadResult
	err    error

	gotMissing   map[string][]time.Time
	gotRequested []time.Time
}

func (f *fakeDownloader) Download(_ context.Context, missing map[string][]time.Time, requested []time.Time) (*contracts.DownloadResult, error) {
	f.gotMissing = missing
	f.gotRequested = requested
	return f.result, f.err
}

type fakeCoveredStore struct {
	covered []time.Time
}

func (f *fakeCoveredStore) CoveredDates(_ context.Context, _ []string, _ []time.Time) ([]time.Time, error) {
	return f.covered, nil
}

func newTestPreparer(missing map[string][]time.Time, covered []time.Time, dl *fakeDownloader) *Preparer {
	checker := NewChecker(&fakeCoverageStore{missing: missing}, []string{"AAPL", "NVDA"})
	return NewPreparer(checker, &fakeCoveredStore{covered: covered}, dl, logger.Nop())
}

func TestPreparer_AllCovered(t *testing.T) {
	dates := []time.Time{day(2026, 1, 5), day(2026, 1, 6)}
	dl := &fakeDownloader{}
	p := newTestPreparer(nil, dates, dl)

	available, warnings, err := p.Prepare(context.Background(), dates)
	require.NoError(t, err)

	assert.Equal(t, dates, available)
	assert.Empty(t, warnings)
	// nothing missing, so no download pass
	assert.Nil(t, dl.gotMissing)
}

func TestPreparer_DownloadsMissing(t *testing.T) {
	dates := []time.Time{day(2026, 1, 5), day(2026, 1, 6)}
	missing := map[string][]time.Time{"NVDA": {day(2026, 1, 6)}}
	dl := &fakeDownloader{result: &contracts.DownloadResult{Downloaded: []string{"NVDA"}}}
	p := newTestPreparer(missing, dates, dl)

	available, warnings, err := p.Prepare(context.Background(), dates)
	require.NoError(t, err)

	assert.Equal(t, dates, available)
	assert.Empty(t, warnings)
	assert.Equal(t, missing, dl.gotMissing)
	assert.Equal(t, dates, dl.gotRequested)
}

func TestPreparer_RateLimitWarning(t *testing.T) {
	dates := []time.Time{day(2026, 1, 5)}
	missing := map[string][]time.Time{
		"AAPL": {day(2026, 1, 5)},
		"NVDA": {day(2026, 1, 5)},
	}
	dl := &fakeDownloader{result: &contracts.DownloadResult{
		Downloaded:  []string{"AAPL"},
		RateLimited: true,
	}}
	p := newTestPreparer(missing, dates, dl)

	_, warnings, err := p.Prepare(context.Background(), dates)
	require.NoError(t, err)

	require.Len(t, warnings, 1)
	assert.Equal(t, "rate limit reached, 1/2 symbols downloaded", warnings[0])
}

func TestPreparer_FailedSymbolsWarning(t *testing.T) {
	dates := []time.Time{day(2026, 1, 5)}
	missing := map[string][]time.Time{
		"AAPL": {day(2026, 1, 5)},
		"NVDA": {day(2026, 1, 5)},
	}
	dl := &fakeDownloader{result: &contracts.DownloadResult{
		Failed: []string{"NVDA", "AAPL"},
	}}
	p := newTestPreparer(missing, dates, dl)

	_, warnings, err := p.Prepare(context.Background(), dates)
	require.NoError(t, err)

	require.Len(t, warnings, 1)
	// sorted for a stable message
	assert.Equal(t, "failed to download price data for: AAPL, NVDA", warnings[0])
}

func TestPreparer_SkippedDatesWarning(t *testing.T) {
	dates := []time.Time{day(2026, 1, 5), day(2026, 1, 6), day(2026, 1, 7)}
	missing := map[string][]time.Time{"AAPL": {day(2026, 1, 6)}}
	dl := &fakeDownloader{result: &contracts.DownloadResult{Downloaded: []string{"AAPL"}}}
	// the 6th stays uncovered, e.g. a market holiday the vendor has no bar for
	p := newTestPreparer(missing, []time.Time{day(2026, 1, 5), day(2026, 1, 7)}, dl)

	available, warnings, err := p.Prepare(context.Background(), dates)
	require.NoError(t, err)

	assert.Equal(t, []time.Time{day(2026, 1, 5), day(2026, 1, 7)}, available)
	require.Len(t, warnings, 1)
	assert.Equal(t, "skipped dates with no price data: 2026-01-06", warnings[0])
}

func TestPreparer_TransportErrorDegrades(t *testing.T) {
	dates := []time.Time{day(2026, 1, 5)}
	missing := map[string][]time.Time{"AAPL": {day(2026, 1, 5)}}
	dl := &fakeDownloader{err: fmt.Errorf("connection refused")}
	// pre-existing coverage still counts
	p := newTestPreparer(missing, dates, dl)

	available, warnings, err := p.Prepare(context.Background(), dates)
	require.NoError(t, err)

	assert.Equal(t, dates, available)
	require.NotEmpty(t, warnings)
	assert.Contains(t, warnings[0], "price download failed")
}

func TestPreparer_EmptyRequest(t *testing.T) {
	p := newTestPreparer(nil, nil, &fakeDownloader{})

	available, warnings, err := p.Prepare(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, available)
	assert.Nil(t, warnings)
}
