package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"call-insights-go/internal/types"
)

var baseTime = time.Date(2025, 12, 10, 9, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	s, err := Open(Options{Dialect: DialectSQLite, DSN: fmt.Sprintf("file:%s?mode=memory&cache=shared", name)})
	require.NoError(t, err)
	s.now = func() time.Time { return baseTime }
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func record(id string, created time.Time, intents ...string) types.CallRecord {
	return types.CallRecord{
		CallID:     id,
		CustomerID: types.UnknownCustomer,
		Transcript: "transcript " + id,
		Sentiment:  types.SentimentNeutral,
		Intents:    intents,
		Summary:    "summary " + id,
		CreatedAt:  created,
		ExpiresAt:  created.Add(30 * 24 * time.Hour),
	}
}

func TestUpsertReplacesWholeRecord(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := record("call_1", baseTime.Add(-time.Hour), "billing")
	first.Converted = true
	require.NoError(t, s.Upsert(ctx, first))

	second := record("call_1", baseTime.Add(-time.Minute), "shipping")
	second.Transcript = "second pass"
	second.Sentiment = types.SentimentPositive
	require.NoError(t, s.Upsert(ctx, second))

	all, err := s.List(ctx, Page{})
	require.NoError(t, err)
	require.Len(t, all, 1)

	got, err := s.Get(ctx, "call_1")
	require.NoError(t, err)
	assert.Equal(t, "second pass", got.Transcript)
	assert.Equal(t, []string{"shipping"}, got.Intents)
	assert.Equal(t, types.SentimentPositive, got.Sentiment)
	assert.False(t, got.Converted)
	assert.True(t, got.CreatedAt.Equal(second.CreatedAt))
}

func TestUpsertStoresIntentsAsSet(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Upsert(context.Background(), record("call_2", baseTime, "billing", "billing", "refund")))
	got, err := s.Get(context.Background(), "call_2")
	require.NoError(t, err)
	assert.Equal(t, []string{"billing", "refund"}, got.Intents)
}

func TestUpsertRequiresID(t *testing.T) {
	s := newTestStore(t)
	assert.Error(t, s.Upsert(context.Background(), record("", baseTime, "billing")))
}

func TestGetNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExpiredRecordsAreInvisibleAndSwept(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := record("call_old", baseTime.Add(-40*24*time.Hour), "billing")
	edge := record("call_edge", baseTime.Add(-30*24*time.Hour), "billing")
	fresh := record("call_new", baseTime.Add(-time.Hour), "billing")
	for _, r := range []types.CallRecord{old, edge, fresh} {
		require.NoError(t, s.Upsert(ctx, r))
	}

	_, err := s.Get(ctx, "call_old")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(ctx, "call_edge")
	assert.ErrorIs(t, err, ErrNotFound, "expires_at == now is expired")

	c, err := s.Count(ctx, time.Time{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, c.Total)

	removed, err := s.SweepExpired(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, removed)

	var n int64
	require.NoError(t, s.db.Model(&callRow{}).Count(&n).Error)
	assert.EqualValues(t, 1, n)
}

func TestListWindowAndPagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Upsert(ctx, record(fmt.Sprintf("call_%d", i), baseTime.Add(-time.Duration(i)*time.Hour), "billing")))
	}
	require.NoError(t, s.Upsert(ctx, record("call_lastweek", baseTime.Add(-8*24*time.Hour), "billing")))

	since := baseTime.Add(-24 * time.Hour)
	page, err := s.List(ctx, Page{Since: since, Limit: 2, Skip: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "call_1", page[0].CallID)
	assert.Equal(t, "call_2", page[1].CallID)

	all, err := s.List(ctx, Page{Since: since})
	require.NoError(t, err)
	assert.Len(t, all, 5)

	everything, err := s.List(ctx, Page{})
	require.NoError(t, err)
	assert.Len(t, everything, 6)
}

func TestListByTopicExactMatchInWindow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	since := baseTime.Add(-24 * time.Hour)

	require.NoError(t, s.Upsert(ctx, record("a", baseTime.Add(-time.Hour), "billing")))
	require.NoError(t, s.Upsert(ctx, record("b", baseTime.Add(-2*time.Hour), "billing_sales")))
	require.NoError(t, s.Upsert(ctx, record("c", baseTime.Add(-3*time.Hour), "shipping", "billing")))
	require.NoError(t, s.Upsert(ctx, record("d", baseTime.Add(-48*time.Hour), "billing")))

	got, err := s.ListByTopic(ctx, "billing", since)
	require.NoError(t, err)
	ids := make([]string, 0, len(got))
	for _, r := range got {
		ids = append(ids, r.CallID)
	}
	assert.Equal(t, []string{"a", "c"}, ids)
}

func TestCountAndIntentSets(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	pos := record("p", baseTime.Add(-time.Hour), "billing")
	pos.Sentiment = types.SentimentPositive
	pos.Converted = true
	require.NoError(t, s.Upsert(ctx, pos))
	require.NoError(t, s.Upsert(ctx, record("n", baseTime.Add(-2*time.Hour), "shipping")))

	c, err := s.Count(ctx, baseTime.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, Counts{Total: 2, Positive: 1, Converted: 1}, c)

	sets, err := s.IntentSets(ctx, baseTime.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.ElementsMatch(t, [][]string{{"billing"}, {"shipping"}}, sets)
}

func TestConcurrentUpsertsSameID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.Upsert(ctx, record("same", baseTime, fmt.Sprintf("topic_%d", i))))
		}(i)
	}
	wg.Wait()

	all, err := s.List(ctx, Page{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestDefaultLifecycle(t *testing.T) {
	t.Cleanup(func() {
		_ = Close()
		defaultMu.Lock()
		defaultOpts = nil
		defaultMu.Unlock()
	})

	_ = Close()
	defaultMu.Lock()
	defaultOpts = nil
	defaultMu.Unlock()

	_, err := Default()
	assert.Error(t, err)

	Configure(Options{Dialect: DialectSQLite, DSN: "file:default_lifecycle?mode=memory&cache=shared"})
	a, err := Default()
	require.NoError(t, err)
	b, err := Default()
	require.NoError(t, err)
	assert.Same(t, a, b)

	require.NoError(t, Close())
	c, err := Default()
	require.NoError(t, err)
	assert.NotSame(t, a, c)

	injected := newTestStore(t)
	SetDefault(injected)
	d, err := Default()
	require.NoError(t, err)
	assert.Same(t, injected, d)
}

func TestSweeperRunsUntilCancelled(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Upsert(context.Background(), record("gone", baseTime.Add(-31*24*time.Hour), "billing")))

	w := NewSweeper(s, 10*time.Millisecond, nil)
	var mu sync.Mutex
	var total int64
	w.OnSweep(func(n int64, err error) {
		mu.Lock()
		total += n
		mu.Unlock()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, w.Run(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.EqualValues(t, 1, total)
}

func TestOpenRejectsUnknownDialect(t *testing.T) {
	_, err := Open(Options{Dialect: "mongo"})
	assert.Error(t, err)
}
