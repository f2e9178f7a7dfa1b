package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/sp-ranking/internal/contracts"
)

var f = contracts.Float

// runStoreSuite exercises the contracts.Store behaviour every backend must share
func runStoreSuite(t *testing.T, newStore func(t *testing.T) contracts.Store) {
	t.Run("symbols", func(t *testing.T) { testSymbols(t, newStore(t)) })
	t.Run("metrics cache", func(t *testing.T) { testMetricsCache(t, newStore(t)) })
	t.Run("run lifecycle", func(t *testing.T) { testRunLifecycle(t, newStore(t)) })
	t.Run("fail run", func(t *testing.T) { testFailRun(t, newStore(t)) })
	t.Run("restart replaces rows", func(t *testing.T) { testRestartReplacesRows(t, newStore(t)) })
	t.Run("latest completed", func(t *testing.T) { testLatestCompleted(t, newStore(t)) })
	t.Run("query results", func(t *testing.T) { testQueryResults(t, newStore(t)) })
}

func testSymbols(t *testing.T, st contracts.Store) {
	ctx := context.Background()

	n, err := st.UpsertSymbols(ctx, []contracts.Symbol{
		{Symbol: "MSFT", Name: "Microsoft", Sector: "Tech", MarketCap: f(3e12)},
		{Symbol: "AAPL", Name: "Apple", Sector: "Tech", MarketCap: f(2.9e12)},
		{Symbol: "XOM", Name: "Exxon", Sector: "Energy"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// refresh keeps a known market cap when the update has none
	_, err = st.UpsertSymbols(ctx, []contracts.Symbol{{Symbol: "MSFT", Name: "Microsoft Corp", Sector: "Tech"}})
	require.NoError(t, err)

	symbols, err := st.ListSymbols(ctx)
	require.NoError(t, err)
	require.Len(t, symbols, 3)

	assert.Equal(t, []string{"AAPL", "MSFT", "XOM"}, []string{symbols[0].Symbol, symbols[1].Symbol, symbols[2].Symbol})
	assert.Equal(t, "Microsoft Corp", symbols[1].Name)
	require.NotNil(t, symbols[1].MarketCap)
	assert.Equal(t, 3e12, *symbols[1].MarketCap)
	assert.Nil(t, symbols[2].MarketCap)
}

func testMetricsCache(t *testing.T, st contracts.Store) {
	ctx := context.Background()
	today := time.Date(2026, 3, 2, 15, 4, 5, 0, time.UTC)
	yesterday := today.AddDate(0, 0, -1)

	require.NoError(t, st.PutMetrics(ctx, "AAPL", contracts.MetricsBag{
		contracts.MetricROE: f(0.3),
		contracts.MetricPE:  nil,
	}, today))
	require.NoError(t, st.PutMetrics(ctx, "AAPL", contracts.MetricsBag{contracts.MetricROA: f(0.1)}, yesterday))

	bag, err := st.GetMetrics(ctx, "AAPL", contracts.ScoringMetrics, today)
	require.NoError(t, err)
	assert.Len(t, bag, 2)
	assert.True(t, bag.Has(contracts.MetricPE), "explicit null is cached")
	assert.False(t, bag.Has(contracts.MetricROA), "other days do not leak")

	// overwrite, never duplicate
	require.NoError(t, st.PutMetrics(ctx, "AAPL", contracts.MetricsBag{contracts.MetricROE: f(0.35)}, today.Add(time.Hour)))
	bag, err = st.GetMetrics(ctx, "AAPL", []contracts.MetricName{contracts.MetricROE}, today)
	require.NoError(t, err)
	v, ok := bag.Value(contracts.MetricROE)
	assert.True(t, ok)
	assert.Equal(t, 0.35, v)

	empty, err := st.GetMetrics(ctx, "MSFT", contracts.ScoringMetrics, today)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func sampleResults(n int) []contracts.ScoreResult {
	sectors := []string{"Tech", "Energy", "Health"}
	now := time.Date(2026, 3, 2, 21, 30, 0, 0, time.UTC)

	out := make([]contracts.ScoreResult, n)
	for i := range out {
		out[i] = contracts.ScoreResult{
			Symbol:       fmt.Sprintf("S%02d", i),
			Name:         fmt.Sprintf("Company %02d", i),
			Sector:       sectors[i%len(sectors)],
			MarketCap:    f(float64(i+1) * 5e8),
			ScoreBuffett: f(float64(n - i)),
			CombinedRank: i + 1,
			Completeness: float64(i%6) * 20,
			LastUpdated:  now,
		}
	}
	return out
}

func testRunLifecycle(t *testing.T, st contracts.Store) {
	ctx := context.Background()

	run, err := st.CreateRun(ctx, contracts.ModeBuffett)
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusQueued, run.Status)
	assert.Equal(t, 0, run.Progress)
	assert.Nil(t, run.FinishedAt)

	latest, err := st.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, run.ID, latest.ID)

	require.NoError(t, st.StartRun(ctx, run.ID))

	require.NoError(t, st.UpdateProgress(ctx, run.ID, 50, contracts.ProgressMessage(5, 10)))
	require.NoError(t, st.UpdateProgress(ctx, run.ID, 30, contracts.ProgressMessage(3, 10)))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusRunning, got.Status)
	assert.Equal(t, 50, got.Progress, "progress never decreases")
	assert.Equal(t, "Processed 5/10", got.Message)

	require.NoError(t, st.CompleteRun(ctx, run.ID, sampleResults(4)))

	got, err = st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, contracts.MessageDone, got.Message)
	assert.NotNil(t, got.FinishedAt)

	// terminal states cannot be left
	assert.ErrorIs(t, st.StartRun(ctx, run.ID), contracts.ErrRunTerminal)
	assert.ErrorIs(t, st.FailRun(ctx, run.ID, "late"), contracts.ErrRunTerminal)
	assert.ErrorIs(t, st.CompleteRun(ctx, run.ID, nil), contracts.ErrRunTerminal)

	// progress after completion is ignored
	require.NoError(t, st.UpdateProgress(ctx, run.ID, 100, "again"))
	got, _ = st.GetRun(ctx, run.ID)
	assert.Equal(t, contracts.MessageDone, got.Message)

	items, total, err := st.QueryResults(ctx, run.ID, contracts.ResultQuery{PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Len(t, items, 4)

	_, err = st.GetRun(ctx, run.ID+1000)
	assert.ErrorIs(t, err, contracts.ErrRunNotFound)
	assert.ErrorIs(t, st.StartRun(ctx, run.ID+1000), contracts.ErrRunNotFound)
}

func testFailRun(t *testing.T, st contracts.Store) {
	ctx := context.Background()

	run, err := st.CreateRun(ctx, contracts.ModeBoth)
	require.NoError(t, err)

	// completing a queued run is not a legal transition
	assert.ErrorIs(t, st.CompleteRun(ctx, run.ID, sampleResults(2)), contracts.ErrInvalidTransition)

	require.NoError(t, st.StartRun(ctx, run.ID))
	require.NoError(t, st.UpdateProgress(ctx, run.ID, 40, "Processed 4/10"))
	require.NoError(t, st.FailRun(ctx, run.ID, "Error: provider down"))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusFailed, got.Status)
	assert.Equal(t, 40, got.Progress, "failure keeps the last progress")
	assert.Equal(t, "Error: provider down", got.Message)
	assert.NotNil(t, got.FinishedAt)

	_, total, err := st.QueryResults(ctx, run.ID, contracts.ResultQuery{PageSize: 10})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func testRestartReplacesRows(t *testing.T, st contracts.Store) {
	ctx := context.Background()

	run, err := st.CreateRun(ctx, contracts.ModeBuffett)
	require.NoError(t, err)
	require.NoError(t, st.StartRun(ctx, run.ID))
	require.NoError(t, st.UpdateProgress(ctx, run.ID, 70, "Processed 7/10"))

	// an interrupted run restarts from zero under the same id
	require.NoError(t, st.StartRun(ctx, run.ID))
	got, _ := st.GetRun(ctx, run.ID)
	assert.Equal(t, 0, got.Progress)

	require.NoError(t, st.CompleteRun(ctx, run.ID, sampleResults(6)))

	_, total, err := st.QueryResults(ctx, run.ID, contracts.ResultQuery{PageSize: 100})
	require.NoError(t, err)
	assert.Equal(t, 6, total)
}

func testLatestCompleted(t *testing.T, st contracts.Store) {
	ctx := context.Background()

	_, err := st.LatestCompletedRun(ctx, "")
	assert.ErrorIs(t, err, contracts.ErrRunNotFound)

	complete := func(mode contracts.FormulaMode) int64 {
		run, err := st.CreateRun(ctx, mode)
		require.NoError(t, err)
		require.NoError(t, st.StartRun(ctx, run.ID))
		require.NoError(t, st.CompleteRun(ctx, run.ID, sampleResults(1)))
		return run.ID
	}

	buffett := complete(contracts.ModeBuffett)
	both := complete(contracts.ModeBoth)

	// a newer run that is still running is never "latest completed"
	pending, err := st.CreateRun(ctx, contracts.ModeBuffett)
	require.NoError(t, err)
	require.NoError(t, st.StartRun(ctx, pending.ID))

	got, err := st.LatestCompletedRun(ctx, contracts.ModeBuffett)
	require.NoError(t, err)
	assert.Equal(t, buffett, got.ID)

	got, err = st.LatestCompletedRun(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, both, got.ID)

	_, err = st.LatestCompletedRun(ctx, contracts.ModeCramer)
	assert.ErrorIs(t, err, contracts.ErrRunNotFound)

	latest, err := st.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, pending.ID, latest.ID)
}

func testQueryResults(t *testing.T, st contracts.Store) {
	ctx := context.Background()

	run, err := st.CreateRun(ctx, contracts.ModeBuffett)
	require.NoError(t, err)
	require.NoError(t, st.StartRun(ctx, run.ID))

	rows := sampleResults(12)
	rows[11].MarketCap = nil
	require.NoError(t, st.CompleteRun(ctx, run.ID, rows))

	t.Run("pagination", func(t *testing.T) {
		items, total, err := st.QueryResults(ctx, run.ID, contracts.ResultQuery{Page: 2, PageSize: 5})
		require.NoError(t, err)
		assert.Equal(t, 12, total)
		require.Len(t, items, 2)
		assert.Equal(t, 11, items[0].CombinedRank)
		assert.Equal(t, 12, items[1].CombinedRank)
	})

	t.Run("default order is combined rank ascending", func(t *testing.T) {
		items, _, err := st.QueryResults(ctx, run.ID, contracts.ResultQuery{PageSize: 3, SortBy: "bogus"})
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2, 3}, []int{items[0].CombinedRank, items[1].CombinedRank, items[2].CombinedRank})
	})

	t.Run("sector and market cap compose", func(t *testing.T) {
		items, total, err := st.QueryResults(ctx, run.ID, contracts.ResultQuery{
			Sectors:      []string{"Tech"},
			MarketCapMin: f(1e9),
			PageSize:     50,
		})
		require.NoError(t, err)
		// Tech rows: S00, S03, S06, S09 with caps 0.5e9, 2e9, 3.5e9, 5e9
		assert.Equal(t, 3, total)
		for _, it := range items {
			assert.Equal(t, "Tech", it.Sector)
			require.NotNil(t, it.MarketCap)
			assert.GreaterOrEqual(t, *it.MarketCap, 1e9)
		}
	})

	t.Run("inclusive bounds", func(t *testing.T) {
		_, total, err := st.QueryResults(ctx, run.ID, contracts.ResultQuery{
			MarketCapMin: f(1e9),
			MarketCapMax: f(2e9),
			PageSize:     50,
		})
		require.NoError(t, err)
		assert.Equal(t, 3, total) // 1e9, 1.5e9, 2e9
	})

	t.Run("completeness floor", func(t *testing.T) {
		items, total, err := st.QueryResults(ctx, run.ID, contracts.ResultQuery{
			MinCompleteness: f(80),
			PageSize:        50,
		})
		require.NoError(t, err)
		assert.Equal(t, 4, total) // i%6 in {4,5}
		for _, it := range items {
			assert.GreaterOrEqual(t, it.Completeness, 80.0)
		}
	})

	t.Run("empty result is not an error", func(t *testing.T) {
		items, total, err := st.QueryResults(ctx, run.ID, contracts.ResultQuery{
			Sectors:  []string{"Utilities"},
			PageSize: 50,
		})
		require.NoError(t, err)
		assert.Zero(t, total)
		assert.NotNil(t, items)
		assert.Empty(t, items)
	})

	t.Run("desc with nulls last", func(t *testing.T) {
		items, _, err := st.QueryResults(ctx, run.ID, contracts.ResultQuery{
			SortBy:   contracts.SortMarketCap,
			SortDir:  contracts.SortDesc,
			PageSize: 50,
		})
		require.NoError(t, err)
		require.Len(t, items, 12)
		assert.Equal(t, "S10", items[0].Symbol)
		assert.Nil(t, items[11].MarketCap)
	})

	t.Run("nullable scores round-trip", func(t *testing.T) {
		items, _, err := st.QueryResults(ctx, run.ID, contracts.ResultQuery{PageSize: 1})
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.NotNil(t, items[0].ScoreBuffett)
		assert.Nil(t, items[0].ScoreCramer)
		assert.Equal(t, run.ID, items[0].RunID)
		assert.False(t, items[0].LastUpdated.IsZero())
	})
}
