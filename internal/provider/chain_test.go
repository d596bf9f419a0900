package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"predeval/pkg/metrics"
)

type fakeProvider struct {
	name   string
	calls  int
	ranges [][2]time.Time
	fetch  func(from, to time.Time) ([]PricePoint, error)
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) FetchRange(_ context.Context, _ string, from, to time.Time) ([]PricePoint, error) {
	f.calls++
	f.ranges = append(f.ranges, [2]time.Time{from, to})
	return f.fetch(from, to)
}

func pointsFor(buckets []time.Time, price float64) []PricePoint {
	pts := make([]PricePoint, len(buckets))
	for i, b := range buckets {
		pts[i] = PricePoint{Time: b, Price: price}
	}
	return pts
}

var base = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func buckets(offsets ...time.Duration) []time.Time {
	out := make([]time.Time, len(offsets))
	for i, o := range offsets {
		out[i] = base.Add(o)
	}
	return out
}

func newChain(providers ...Provider) *Chain {
	return NewChain(providers, time.Second, 30*time.Minute, 5*time.Minute, nil, metrics.Nop{})
}

func TestFetchBatchFirstProviderWins(t *testing.T) {
	want := buckets(0, 5*time.Minute)
	first := &fakeProvider{name: "a", fetch: func(_, _ time.Time) ([]PricePoint, error) {
		return pointsFor(want, 100), nil
	}}
	second := &fakeProvider{name: "b", fetch: func(_, _ time.Time) ([]PricePoint, error) {
		t.Fatal("second provider should not be called")
		return nil, nil
	}}

	got, err := newChain(first, second).FetchBatch(context.Background(), "btc", want)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 resolved, got %d", len(got))
	}
	if first.calls != 1 {
		t.Fatalf("expected one ranged call, got %d", first.calls)
	}
}

func TestFetchBatchPartialMatchFallsThrough(t *testing.T) {
	// one run (gap < maxGap) but far enough apart that the first
	// provider's lone sample cannot satisfy both buckets
	want := buckets(0, 15*time.Minute)
	gappy := &fakeProvider{name: "a", fetch: func(_, _ time.Time) ([]PricePoint, error) {
		return pointsFor(want[:1], 100), nil
	}}
	filler := &fakeProvider{name: "b", fetch: func(_, _ time.Time) ([]PricePoint, error) {
		return pointsFor(want, 200), nil
	}}

	got, err := newChain(gappy, filler).FetchBatch(context.Background(), "btc", want)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected both buckets resolved, got %d", len(got))
	}
	if got[want[0]] != 100 {
		t.Fatalf("first bucket must keep the first provider's price, got %v", got[want[0]])
	}
	if got[want[1]] != 200 {
		t.Fatalf("gap bucket must fall through to the next provider, got %v", got[want[1]])
	}
	if gappy.calls != 1 || filler.calls != 1 {
		t.Fatalf("calls a=%d b=%d", gappy.calls, filler.calls)
	}
	// the follow-up call covers only the unresolved tail
	if r := filler.ranges[0]; r[0].Before(want[1].Add(-5*time.Minute)) {
		t.Fatalf("follow-up range should shrink to the gap, got from=%v", r[0])
	}
}

func TestFetchBatchFallsBackOnError(t *testing.T) {
	want := buckets(0)
	failing := &fakeProvider{name: "a", fetch: func(_, _ time.Time) ([]PricePoint, error) {
		return nil, errors.New("boom")
	}}
	working := &fakeProvider{name: "b", fetch: func(_, _ time.Time) ([]PricePoint, error) {
		return pointsFor(want, 200), nil
	}}

	got, err := newChain(failing, working).FetchBatch(context.Background(), "btc", want)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got[base] != 200 {
		t.Fatalf("expected fallback price, got %v", got)
	}
}

func TestFetchBatchThrottleExcludesForWholeBatch(t *testing.T) {
	// two runs far enough apart to force two ranged calls
	want := buckets(0, 2*time.Hour)
	throttled := &fakeProvider{name: "a", fetch: func(_, _ time.Time) ([]PricePoint, error) {
		return nil, ErrThrottled
	}}
	working := &fakeProvider{name: "b", fetch: func(from, to time.Time) ([]PricePoint, error) {
		var pts []PricePoint
		for _, b := range want {
			if !b.Before(from) && !b.After(to) {
				pts = append(pts, PricePoint{Time: b, Price: 300})
			}
		}
		return pts, nil
	}}

	got, err := newChain(throttled, working).FetchBatch(context.Background(), "btc", want)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected both buckets resolved, got %v", got)
	}
	if throttled.calls != 1 {
		t.Fatalf("throttled provider must not be retried within the batch, calls=%d", throttled.calls)
	}
	if working.calls != 2 {
		t.Fatalf("expected one call per run, got %d", working.calls)
	}
}

func TestFetchBatchAllFail(t *testing.T) {
	failing := &fakeProvider{name: "a", fetch: func(_, _ time.Time) ([]PricePoint, error) {
		return nil, errors.New("down")
	}}

	got, err := newChain(failing).FetchBatch(context.Background(), "btc", buckets(0))
	if !errors.Is(err, ErrAllProvidersFailed) {
		t.Fatalf("expected ErrAllProvidersFailed, got %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no results, got %v", got)
	}
}

func TestFetchBatchEmptySeriesTriesNextProvider(t *testing.T) {
	want := buckets(0)
	empty := &fakeProvider{name: "a", fetch: func(_, _ time.Time) ([]PricePoint, error) {
		return nil, nil
	}}
	working := &fakeProvider{name: "b", fetch: func(_, _ time.Time) ([]PricePoint, error) {
		return pointsFor(want, 400), nil
	}}

	got, err := newChain(empty, working).FetchBatch(context.Background(), "btc", want)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got[base] != 400 {
		t.Fatalf("expected next provider result, got %v", got)
	}
}

func TestGroupRuns(t *testing.T) {
	times := buckets(0, 5*time.Minute, 10*time.Minute, 2*time.Hour, 2*time.Hour+5*time.Minute)
	runs := groupRuns(times, 30*time.Minute)
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if len(runs[0]) != 3 || len(runs[1]) != 2 {
		t.Fatalf("unexpected run sizes %d/%d", len(runs[0]), len(runs[1]))
	}
}

func TestMatchSeriesPicksClosestWithinTolerance(t *testing.T) {
	target := base
	points := []PricePoint{
		{Time: base.Add(-3 * time.Minute), Price: 1},
		{Time: base.Add(time.Minute), Price: 2},
		{Time: base.Add(20 * time.Minute), Price: 3},
	}

	got := matchSeries([]time.Time{target, base.Add(time.Hour)}, points, 5*time.Minute)
	if len(got) != 1 {
		t.Fatalf("expected 1 match, got %d", len(got))
	}
	if got[target] != 2 {
		t.Fatalf("expected closest point price 2, got %v", got[target])
	}
}
