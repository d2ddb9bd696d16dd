package datacache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingFetcher struct {
	calls int
	body  []byte
	err   error
}

func (f *countingFetcher) FetchDataset(_ context.Context, _ string) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.body, nil
}

const validDoc = `{
	"locations": [
		{"id": "MCD_1", "latitude": 33.75, "longitude": -84.39, "brand": "MCD", "score": 81.5}
	],
	"metadata": {"total_count": 1, "last_updated": "2026-08-01", "version": "2.0"}
}`

func TestGetCachesWithinTTL(t *testing.T) {
	fetcher := &countingFetcher{body: []byte(validDoc)}
	cache := New(fetcher, time.Hour, nil)

	clock := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return clock }

	ds, err := cache.Get(context.Background(), "MCD")
	require.NoError(t, err)
	require.Len(t, ds.Records, 1)
	assert.Equal(t, "MCD", ds.Key)
	assert.Equal(t, 1, fetcher.calls)

	// within TTL: identical payload, no refetch
	clock = clock.Add(59 * time.Minute)
	again, err := cache.Get(context.Background(), "MCD")
	require.NoError(t, err)
	assert.Same(t, ds, again)
	assert.Equal(t, 1, fetcher.calls)

	// past TTL: exactly one refetch
	clock = clock.Add(2 * time.Minute)
	_, err = cache.Get(context.Background(), "MCD")
	require.NoError(t, err)
	assert.Equal(t, 2, fetcher.calls)
}

func TestGetWithTTLOverride(t *testing.T) {
	fetcher := &countingFetcher{body: []byte(validDoc)}
	cache := New(fetcher, time.Hour, nil)

	clock := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return clock }

	_, err := cache.Get(context.Background(), "MCD")
	require.NoError(t, err)

	// still fresh per the default TTL, but not per the tighter one
	clock = clock.Add(10 * time.Minute)
	_, err = cache.GetWithTTL(context.Background(), "MCD", 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2, fetcher.calls)

	// non-positive override falls back to the configured TTL
	_, err = cache.GetWithTTL(context.Background(), "MCD", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, fetcher.calls)
}

func TestFetchFailureKeepsPriorEntry(t *testing.T) {
	fetcher := &countingFetcher{body: []byte(validDoc)}
	cache := New(fetcher, time.Hour, nil)

	clock := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return clock }

	ds, err := cache.Get(context.Background(), "WEN")
	require.NoError(t, err)

	// entry expires, next fetch blows up
	clock = clock.Add(2 * time.Hour)
	fetcher.err = errors.New("connection refused")

	_, err = cache.Get(context.Background(), "WEN")
	require.Error(t, err)
	var fe *FetchError
	require.ErrorAs(t, err, &fe)

	// the failed load wrote nothing; the stale entry is still reachable
	// for callers that opt into it
	stale, ok := cache.GetCached("WEN")
	require.True(t, ok)
	assert.Same(t, ds, stale)
}

func TestParseErrors(t *testing.T) {
	for name, body := range map[string]string{
		"malformed": `{"locations": [`,
		"missing":   `{"metadata": {"total_count": 0}}`,
	} {
		t.Run(name, func(t *testing.T) {
			cache := New(&countingFetcher{body: []byte(body)}, time.Hour, nil)
			_, err := cache.Get(context.Background(), "BAD")

			var pe *ParseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, "BAD", pe.Key)

			_, ok := cache.GetCached("BAD")
			assert.False(t, ok, "failed parse must not write an entry")
		})
	}
}

func TestInvalidateForcesRefetch(t *testing.T) {
	fetcher := &countingFetcher{body: []byte(validDoc)}
	cache := New(fetcher, time.Hour, nil)

	_, err := cache.Get(context.Background(), "MCD")
	require.NoError(t, err)
	cache.Invalidate("MCD")

	_, err = cache.Get(context.Background(), "MCD")
	require.NoError(t, err)
	assert.Equal(t, 2, fetcher.calls)
}

func TestNullCoordinatesSurviveDecoding(t *testing.T) {
	doc := `{
		"locations": [
			{"id": "a", "latitude": null, "longitude": -84.0, "brand": "MCD", "score": 10},
			{"id": "b", "latitude": 33.0, "longitude": -84.0, "brand": "MCD", "score": 20}
		],
		"metadata": {"total_count": 2}
	}`
	cache := New(&countingFetcher{body: []byte(doc)}, time.Hour, nil)

	ds, err := cache.Get(context.Background(), "MCD")
	require.NoError(t, err)
	require.Len(t, ds.Records, 2)
	assert.Nil(t, ds.Records[0].Latitude, "null latitude must decode to nil, not zero")
	require.NotNil(t, ds.Records[1].Latitude)
	assert.Equal(t, 33.0, *ds.Records[1].Latitude)
}
